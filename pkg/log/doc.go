// Copyright 2018 Irfan Sharif.
// Copyright 2018 The Kura Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package log implements leveled execution logs for go. Commands register
// the logging flags on their flag set through Options:
//
//     var opts log.Options
//     opts.Register(cmd.FlagSet)
//     if err := cmd.FlagSet.Parse(args); err != nil {
//         return cli.CmdParseError(err)
//     }
//     logger := opts.Build()
//
// which makes the following usage possible:
//
//     $ zus zus-server -log-mode debug \
//                      -log-dir /var/log/zus -log-max-files 5 \
//                      -log-filter lifecycle.go:debug,server.go:warn \
//                      -log-backtrace-at dispatch.go:42
//
// Build applies the global mode, the per-file filters and the trace points,
// then returns a synchronized logger writing to standard error (unless
// -suppress-stderr) and to size-rotated files in -log-dir. The global settings
// can also be changed at runtime with SetGlobalLogMode, SetFileLogMode and
// SetTracePoint.
//
// Loggers can be put together by hand with variadic options:
//
//     writer := log.SynchronizedWriter(log.MultiWriter(os.Stderr,
//             log.LogRotationWriter("/logs", 50<<20 /* 50 MiB */, 10)))
//     logger := log.New(log.Writer(writer), log.Flags(log.Lmode|log.Ltime|log.Lshortfile))
//     logger.Infof("serving %d workers", n)
//
// Tests that do not care about output use log.Discarder().
package log

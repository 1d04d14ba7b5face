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

package log

import (
	"flag"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
)

// ModeFlag is a flag.Value for a global log mode.
type ModeFlag struct {
	Mode     Mode
	Explicit bool
}

func (f *ModeFlag) String() string {
	if f == nil || !f.Explicit {
		return DefaultMode.String()
	}
	return f.Mode.String()
}

func (f *ModeFlag) Set(value string) error {
	m, err := ParseMode(value)
	if err != nil {
		return err
	}
	f.Mode, f.Explicit = m, true
	return nil
}

// FileMode is a per-file override of the global log mode.
type FileMode struct {
	File string
	Mode Mode
}

// FilterFlag is a flag.Value for a comma-separated list of file.go:mode
// overrides.
type FilterFlag []FileMode

var (
	fileNameRegex   = regexp.MustCompile(`^[\w\-]+\.go$`)
	lineNumberRegex = regexp.MustCompile(`^\d+$`)
)

func (f *FilterFlag) String() string {
	var parts []string
	for _, fm := range *f {
		parts = append(parts, fmt.Sprintf("%s:%s", fm.File, fm.Mode))
	}
	return "[" + strings.Join(parts, " ") + "]"
}

func (f *FilterFlag) Set(value string) error {
	for _, entry := range strings.Split(value, ",") {
		parts := strings.Split(entry, ":")
		if len(parts) != 2 {
			return fmt.Errorf("improperly formatted filter %q, expected file.go:mode", entry)
		}
		if !fileNameRegex.MatchString(parts[0]) {
			return fmt.Errorf("expected file name %q to match %s", parts[0], fileNameRegex)
		}
		m, err := ParseMode(parts[1])
		if err != nil {
			return err
		}
		*f = append(*f, FileMode{File: parts[0], Mode: m})
	}
	return nil
}

// BacktraceFlag is a flag.Value for a comma-separated list of file.go:line
// trace points.
type BacktraceFlag []string

func (f *BacktraceFlag) String() string {
	return fmt.Sprint(*f)
}

func (f *BacktraceFlag) Set(value string) error {
	for _, entry := range strings.Split(value, ",") {
		parts := strings.Split(entry, ":")
		if len(parts) != 2 {
			return fmt.Errorf("improperly formatted trace point %q, expected file.go:line", entry)
		}
		if !fileNameRegex.MatchString(parts[0]) {
			return fmt.Errorf("expected file name %q to match %s", parts[0], fileNameRegex)
		}
		if !lineNumberRegex.MatchString(parts[1]) {
			return fmt.Errorf("expected line number %q to match %s", parts[1], lineNumberRegex)
		}
		*f = append(*f, entry)
	}
	return nil
}

// Options collects the logging flags every command accepts.
type Options struct {
	Dir            string
	MaxFiles       int
	SuppressStderr bool
	Mode           ModeFlag
	Filter         FilterFlag
	Backtrace      BacktraceFlag
}

// Register defines the logging flags on fs.
func (o *Options) Register(fs *flag.FlagSet) {
	fs.StringVar(&o.Dir, "log-dir", "",
		"Write log files to the specified directory")
	fs.IntVar(&o.MaxFiles, "log-max-files", 10,
		"Number of rotated log files to keep in -log-dir (0 keeps all)")
	fs.BoolVar(&o.SuppressStderr, "suppress-stderr", false,
		"Suppress standard error logging")
	fs.Var(&o.Mode, "log-mode",
		"Log mode for logs emitted globally (can be overridden using -log-filter)")
	fs.Var(&o.Filter, "log-filter",
		"Comma-separated list of file.go:mode settings for file-filtered logging")
	fs.Var(&o.Backtrace, "log-backtrace-at",
		"Comma-separated list of file.go:N settings to emit backtraces")
}

// Build applies the global settings and returns a logger writing to the
// configured destinations.
func (o *Options) Build() *Logger {
	if o.Mode.Explicit {
		SetGlobalLogMode(o.Mode.Mode)
	}
	for _, fm := range o.Filter {
		SetFileLogMode(fm.File, fm.Mode)
	}
	for _, tp := range o.Backtrace {
		SetTracePoint(tp)
	}

	writer := io.Discard
	if o.Dir != "" {
		writer = LogRotationWriter(o.Dir, 50<<20 /* 50 MiB */, o.MaxFiles)
	}
	if !o.SuppressStderr {
		writer = MultiWriter(writer, os.Stderr)
	}
	writer = SynchronizedWriter(writer)
	logf := Ldate | Ltime | Lmicroseconds | Llongfile | LUTC | Lmode
	return New(Writer(writer), Flags(logf), SkipBasePath())
}

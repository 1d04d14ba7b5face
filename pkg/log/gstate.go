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

package log

import (
	"sync"
	"sync/atomic"
)

// cowMap is a copy-on-write map: readers load it without locking, writers
// serialize on mu and publish a fresh copy.
type cowMap[V any] struct {
	mu sync.Mutex
	m  atomic.Pointer[map[string]V]
}

func (c *cowMap[V]) load() map[string]V {
	if p := c.m.Load(); p != nil {
		return *p
	}
	return nil
}

func (c *cowMap[V]) update(fn func(map[string]V)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cur := c.load()
	next := make(map[string]V, len(cur)+1)
	for k, v := range cur {
		next[k] = v
	}
	fn(next)
	c.m.Store(&next)
}

var gstate struct {
	gmode       atomic.Int64
	tracePoints cowMap[struct{}] // file.go:line
	fileModes   cowMap[Mode]     // file.go
}

func init() {
	gstate.gmode.Store(int64(DefaultMode))
}

// SetGlobalLogMode sets the global log mode. Logging outside of it is
// suppressed, save for per-file overrides.
func SetGlobalLogMode(m Mode) {
	gstate.gmode.Store(int64(m))
}

// GetGlobalLogMode gets the current global log mode.
func GetGlobalLogMode() Mode {
	return Mode(gstate.gmode.Load())
}

// SetTracePoint enables tracepoint tp, of the form file.go:line. Whatever the
// level of the logging statement at that position, executing it emits a
// backtrace.
func SetTracePoint(tp string) {
	gstate.tracePoints.update(func(m map[string]struct{}) { m[tp] = struct{}{} })
}

// ResetTracePoint disables tracepoint tp.
func ResetTracePoint(tp string) {
	gstate.tracePoints.update(func(m map[string]struct{}) { delete(m, tp) })
}

// GetTracePoint checks if tracepoint tp is enabled.
func GetTracePoint(tp string) bool {
	_, ok := gstate.tracePoints.load()[tp]
	return ok
}

// SetFileLogMode overrides the global mode for logging statements in fname.
func SetFileLogMode(fname string, m Mode) {
	gstate.fileModes.update(func(fm map[string]Mode) { fm[fname] = m })
}

// GetFileLogMode gets the override for fname, if any.
func GetFileLogMode(fname string) (m Mode, ok bool) {
	m, ok = gstate.fileModes.load()[fname]
	return m, ok
}

// ResetFileLogMode drops the override for fname.
func ResetFileLogMode(fname string) {
	gstate.fileModes.update(func(fm map[string]Mode) { delete(fm, fname) })
}

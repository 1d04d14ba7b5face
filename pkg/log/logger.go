// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in licenses/BSD-golang.txt.

// Portions of this file are additionally subject to the following
// license and copyright.
//
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

// Portions of this code originated in the standard library 'log' package.

package log

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"strings"
	"time"
)

// Logger writes leveled logs to an io.Writer, with the header format
// determined by its flags. A Logger is safe for concurrent use when its
// writer is; see SynchronizedWriter.
type Logger struct {
	w        io.Writer
	flag     Flag
	basePath string
}

// New returns a Logger writing to a synchronized os.Stderr with LstdFlags,
// adjusted by the provided options.
//
//	I180419 06:33:04.606396 dispatch.go:42] message
func New(options ...option) *Logger {
	l := &Logger{w: DefaultWriter(), flag: LstdFlags}
	for _, option := range options {
		option(l)
	}
	return l
}

// Discarder returns a Logger configured to discard all writes.
func Discarder() *Logger {
	return New(Writer(io.Discard))
}

func (l *Logger) Info(v ...interface{})  { l.log(InfoMode, fmt.Sprintln(v...)) }
func (l *Logger) Warn(v ...interface{})  { l.log(WarnMode, fmt.Sprintln(v...)) }
func (l *Logger) Error(v ...interface{}) { l.log(ErrorMode, fmt.Sprintln(v...)) }
func (l *Logger) Debug(v ...interface{}) { l.log(DebugMode, fmt.Sprintln(v...)) }

func (l *Logger) Infof(format string, v ...interface{}) {
	l.log(InfoMode, fmt.Sprintf(format+"\n", v...))
}

func (l *Logger) Warnf(format string, v ...interface{}) {
	l.log(WarnMode, fmt.Sprintf(format+"\n", v...))
}

func (l *Logger) Errorf(format string, v ...interface{}) {
	l.log(ErrorMode, fmt.Sprintf(format+"\n", v...))
}

func (l *Logger) Debugf(format string, v ...interface{}) {
	l.log(DebugMode, fmt.Sprintf(format+"\n", v...))
}

// Fatal logs to the FATAL log, which is never filtered, then exits with
// status 255.
func (l *Logger) Fatal(v ...interface{}) {
	l.log(FatalMode, fmt.Sprintln(v...))
	os.Exit(255)
}

// Fatalf is Fatal with fmt.Printf style arguments.
func (l *Logger) Fatalf(format string, v ...interface{}) {
	l.log(FatalMode, fmt.Sprintf(format+"\n", v...))
	os.Exit(255)
}

// log must only be called from the exported wrappers; a depth of two
// reaches their caller.
func (l *Logger) log(lmode Mode, data string) {
	file, line := caller(2)
	bfile := filepath.Base(file)

	if GetTracePoint(fmt.Sprintf("%s:%d", bfile, line)) {
		// Skip Logger.log and the exported wrapper.
		l.w.Write(stacktrace(2))
	}

	if !enabled(bfile, lmode) {
		return
	}

	var buf bytes.Buffer
	buf.Write(l.header(lmode, time.Now(), file, line))
	buf.WriteString(data)
	l.w.Write(buf.Bytes())
}

// enabled applies, in order: the per-file override, the global mode, and
// the rule that fatal logs always go through.
func enabled(bfile string, lmode Mode) bool {
	if fmode, ok := GetFileLogMode(bfile); ok {
		return fmode&lmode != DisabledMode || lmode&FatalMode != DisabledMode
	}
	return GetGlobalLogMode()&lmode != DisabledMode || lmode&FatalMode != DisabledMode
}

func (l *Logger) header(lmode Mode, t time.Time, file string, line int) []byte {
	var b []byte
	if l.flag&Lmode != 0 {
		b = append(b, lmode.byte())
	}
	if l.flag&LUTC != 0 {
		t = t.UTC()
	}
	datef := l.flag&Ldate != 0
	timef := l.flag&(Ltime|Lmicroseconds) != 0
	if datef {
		year, month, day := t.Date()
		if year < 2000 {
			year = 2000
		}
		itoa(&b, year-2000, 2)
		itoa(&b, int(month), 2)
		itoa(&b, day, 2)
	}
	if datef && timef {
		b = append(b, ' ')
	}
	if timef {
		hour, min, sec := t.Clock()
		itoa(&b, hour, 2)
		b = append(b, ':')
		itoa(&b, min, 2)
		b = append(b, ':')
		itoa(&b, sec, 2)
		if l.flag&Lmicroseconds != 0 {
			b = append(b, '.')
			itoa(&b, t.Nanosecond()/1e3, 6)
		}
	}
	b = append(b, ' ')

	if l.flag&(Lshortfile|Llongfile) != 0 {
		if l.basePath != "" && strings.HasPrefix(file, l.basePath+"/") {
			file = file[len(l.basePath)+1:]
		}
		if l.flag&Lshortfile != 0 {
			file = filepath.Base(file)
		}
		b = append(b, file...)
		b = append(b, ':')
		itoa(&b, line, -1)
		b = append(b, "] "...)
	}
	return b
}

// itoa appends i as fixed-width decimal ASCII. A negative width avoids zero
// padding.
func itoa(buf *[]byte, i int, wid int) {
	var b [20]byte
	bp := len(b) - 1
	for i >= 10 || wid > 1 {
		wid--
		q := i / 10
		b[bp] = byte('0' + i - q*10)
		bp--
		i = q
	}
	b[bp] = byte('0' + i)
	*buf = append(*buf, b[bp:]...)
}

// stacktrace returns the current goroutine's stack, with the goroutine
// header kept and the skip frames immediately preceding the caller dropped.
func stacktrace(skip int) []byte {
	// Each frame spans two lines; debug.Stack and stacktrace add one each.
	drop := 2*skip + 4

	bs := bytes.Split(debug.Stack(), []byte("\n"))
	if drop >= len(bs) {
		return bs[0]
	}
	bs = append(bs[:1], bs[1+drop:]...)
	return bytes.Join(bs, []byte("\n"))
}

// caller returns the file and line depth frames above its own caller.
func caller(depth int) (file string, line int) {
	_, file, line, ok := runtime.Caller(depth + 1)
	if !ok {
		return "[???]", -1
	}
	return file, line
}

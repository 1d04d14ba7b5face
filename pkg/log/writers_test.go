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
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func logFiles(t *testing.T, dir string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, program+".*.log"))
	if err != nil {
		t.Fatal(err)
	}
	var files []string
	for _, m := range matches {
		if filepath.Base(m) != program+".log" {
			files = append(files, m)
		}
	}
	return files
}

func TestLogRotationWriter(t *testing.T) {
	dir := t.TempDir()
	w := LogRotationWriter(dir, 16, 2)
	defer w.Close()

	line := []byte("0123456789\n")
	for i := 0; i < 4; i++ {
		if _, err := w.Write(line); err != nil {
			t.Fatal(err)
		}
		// Filenames carry millisecond timestamps.
		time.Sleep(2 * time.Millisecond)
	}

	files := logFiles(t, dir)
	if len(files) != 2 {
		t.Fatalf("expected 2 retained log files, got %d: %v", len(files), files)
	}
	for _, f := range files {
		b, err := os.ReadFile(f)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(b, line) {
			t.Errorf("%s: expected a single line per file, got %q", f, b)
		}
	}

	target, err := os.Readlink(filepath.Join(dir, program+".log"))
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Base(files[len(files)-1]); target != want {
		t.Errorf("expected symlink to newest file %s, got %s", want, target)
	}
}

func TestLogRotationWriterOversizedWrite(t *testing.T) {
	dir := t.TempDir()
	w := LogRotationWriter(dir, 4, 0)
	defer w.Close()

	big := []byte(strings.Repeat("x", 64))
	if n, err := w.Write(big); err != nil || n != len(big) {
		t.Fatalf("expected full write, got %d, %v", n, err)
	}
	if files := logFiles(t, dir); len(files) != 1 {
		t.Fatalf("expected one file, got %v", files)
	}
}

type failingWriter struct{ err error }

func (f failingWriter) Write(b []byte) (int, error) { return 0, f.err }

func TestMultiWriter(t *testing.T) {
	var a, b bytes.Buffer
	mw := MultiWriter(&a, &b)
	if _, err := mw.Write([]byte("hello")); err != nil {
		t.Fatal(err)
	}
	if a.String() != "hello" || b.String() != "hello" {
		t.Errorf("expected both writers to see the write, got %q and %q", a.String(), b.String())
	}

	boom := errors.New("boom")
	var c bytes.Buffer
	mw = MultiWriter(failingWriter{boom}, &c)
	n, err := mw.Write([]byte("hi"))
	if !errors.Is(err, boom) || n != 0 {
		t.Errorf("expected (0, boom), got (%d, %v)", n, err)
	}
	if c.String() != "hi" {
		t.Errorf("expected best-effort write to continue, got %q", c.String())
	}
}

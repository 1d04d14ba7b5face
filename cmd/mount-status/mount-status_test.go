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

package mountstatus

import (
	"bytes"
	"strings"
	"testing"

	"github.com/kurafs/zus/pkg/admin"
	"github.com/kurafs/zus/pkg/zus"
)

func TestPrintMounts(t *testing.T) {
	var buf bytes.Buffer
	err := printMounts(&buf, []*admin.Mount{
		{ID: "babab-dabab", Filesystem: "foofs", KernSbID: 0x77, Region: 9, Inodes: 3,
			Statfs: &admin.Statfs{Blocks: 29, BlocksFree: 20}},
		{ID: "babab-dabad", Filesystem: "foofs", KernSbID: 0x78, Region: 10, Inodes: 1},
	})
	if err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header and two rows, got %q", buf.String())
	}
	if got := strings.Fields(lines[1]); strings.Join(got, " ") != "babab-dabab foofs 0x77 9 29 20 3" {
		t.Errorf("unexpected row %q", lines[1])
	}
	if got := strings.Fields(lines[2]); strings.Join(got, " ") != "babab-dabad foofs 0x78 10 - - 1" {
		t.Errorf("unexpected row without usage %q", lines[2])
	}
}

func TestPrintFilesystems(t *testing.T) {
	var buf bytes.Buffer
	if err := printFilesystems(&buf, []*admin.Filesystem{{ID: 1, Name: "foofs", Magic: 0x5a5a, Version: 1}}); err != nil {
		t.Fatal(err)
	}
	want := []string{"ID NAME MAGIC VERSION", "1 foofs 0x5a5a 1"}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != len(want) {
		t.Fatalf("unexpected output %q", buf.String())
	}
	for i, l := range lines {
		if got := strings.Join(strings.Fields(l), " "); got != want[i] {
			t.Errorf("line %d: expected %q, got %q", i, want[i], got)
		}
	}
}

func TestSelectMount(t *testing.T) {
	mounts := []*admin.Mount{
		{ID: zus.MountID(1).String(), Handle: 1},
		{ID: zus.MountID(2).String(), Handle: 2},
	}
	got, err := selectMount(mounts, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Handle != 2 {
		t.Fatalf("unexpected selection %+v", got)
	}
	if _, err := selectMount(mounts, 3); err == nil {
		t.Fatal("expected error for missing mount")
	}
}

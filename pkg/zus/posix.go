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

package zus

import "github.com/kurafs/zus/pkg/zufs"

// Link count bookkeeping shared by back-ends that follow POSIX directory
// semantics.

// StdNewDir initialises zi as a new directory inside dir: its parent is dir
// and it starts with one link, its own.
func StdNewDir(dir, zi zufs.Inode) {
	zi.SetParent(dir.Ino())
	zi.SetNlink(1)
}

// StdAddDentry accounts for a new entry naming zi in dir. A directory child
// also adds a link to dir, through its "..".
func StdAddDentry(dir, zi zufs.Inode) {
	zi.SetNlink(zi.Nlink() + 1)
	if zi.IsDir() {
		dir.SetNlink(dir.Nlink() + 1)
	}
}

// StdRemoveDentry is the inverse of StdAddDentry.
func StdRemoveDentry(dir, zi zufs.Inode) {
	if zi.IsDir() {
		dir.SetNlink(dir.Nlink() - 1)
	}
	zi.SetNlink(zi.Nlink() - 1)
}

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

package zufs

import "syscall"

// InodeSize is the size of an on-media inode.
const InodeSize = 64

// Inode is a view over an on-media inode, normally living in the shared
// region where the kernel reads it directly.
//
//	0   flags      u16
//	2   mode       u16
//	4   nlink      u32
//	8   size       u64
//	16  parent     u64 (directories)
//	24  mtime      u64
//	32  ctime      u64
//	40  uid        u32
//	44  gid        u32
//	48  generation u64
//	56  ino        u64
type Inode []byte

func (i Inode) Flags() uint16 { return le.Uint16(i[0:]) }
func (i Inode) Mode() uint16 { return le.Uint16(i[2:]) }
func (i Inode) Nlink() uint32 { return le.Uint32(i[4:]) }
func (i Inode) Size() uint64 { return le.Uint64(i[8:]) }
func (i Inode) Parent() uint64 { return le.Uint64(i[16:]) }
func (i Inode) Mtime() uint64 { return le.Uint64(i[24:]) }
func (i Inode) Ctime() uint64 { return le.Uint64(i[32:]) }
func (i Inode) UID() uint32 { return le.Uint32(i[40:]) }
func (i Inode) GID() uint32 { return le.Uint32(i[44:]) }
func (i Inode) Generation() uint64 { return le.Uint64(i[48:]) }
func (i Inode) Ino() uint64 { return le.Uint64(i[56:]) }

func (i Inode) SetFlags(v uint16) { le.PutUint16(i[0:], v) }
func (i Inode) SetMode(v uint16) { le.PutUint16(i[2:], v) }
func (i Inode) SetNlink(v uint32) { le.PutUint32(i[4:], v) }
func (i Inode) SetSize(v uint64) { le.PutUint64(i[8:], v) }
func (i Inode) SetParent(v uint64) { le.PutUint64(i[16:], v) }
func (i Inode) SetMtime(v uint64) { le.PutUint64(i[24:], v) }
func (i Inode) SetCtime(v uint64) { le.PutUint64(i[32:], v) }
func (i Inode) SetUID(v uint32) { le.PutUint32(i[40:], v) }
func (i Inode) SetGID(v uint32) { le.PutUint32(i[44:], v) }
func (i Inode) SetGeneration(v uint64) { le.PutUint64(i[48:], v) }
func (i Inode) SetIno(v uint64) { le.PutUint64(i[56:], v) }

// IsDir reports whether the inode's mode describes a directory.
func (i Inode) IsDir() bool {
	return uint32(i.Mode())&syscall.S_IFMT == syscall.S_IFDIR
}

// IsRegular reports whether the inode's mode describes a regular file.
func (i Inode) IsRegular() bool {
	return uint32(i.Mode())&syscall.S_IFMT == syscall.S_IFREG
}

// CopyFrom overwrites i with the contents of src.
func (i Inode) CopyFrom(src Inode) {
	copy(i[:InodeSize], src[:InodeSize])
}

// Clear zeroes the inode.
func (i Inode) Clear() {
	for j := range i[:InodeSize] {
		i[j] = 0
	}
}

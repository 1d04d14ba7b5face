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

import (
	"encoding/binary"
	"fmt"
)

// All multi-byte fields shared with the kernel are little-endian.
var le = binary.LittleEndian

const (
	// HeaderSize is the size of the fixed envelope header.
	HeaderSize = 16

	// MaxEnvelope is the size of the per-channel command buffer.
	MaxEnvelope = 4096

	// MaxName is the longest name a Str can carry.
	MaxName = 255

	strSize = 1 + MaxName
)

// An Envelope is a command buffer shared with the kernel. Its header is
// {err int32, operation uint32, offset uint32, len uint32}; offset and len
// locate the operation payload within the envelope. Replies are written in
// place.
type Envelope []byte

func (e Envelope) Code() uint32 { return le.Uint32(e[4:]) }
func (e Envelope) Operation() Operation { return Operation(e.Code()) }
func (e Envelope) MountOp() MountOp { return MountOp(e.Code()) }
func (e Envelope) Offset() uint32 { return le.Uint32(e[8:]) }
func (e Envelope) Len() uint32 { return le.Uint32(e[12:]) }
func (e Envelope) SetCode(code uint32) { le.PutUint32(e[4:], code) }
func (e Envelope) SetOperation(op Operation) { e.SetCode(uint32(op)) }

// Err returns the errno stored in the header; the wire value is negated.
func (e Envelope) Err() Errno {
	return Errno(-int32(le.Uint32(e[0:])))
}

// SetErr stores errno, negated, into the header.
func (e Envelope) SetErr(errno Errno) {
	le.PutUint32(e[0:], uint32(-int32(errno)))
}

// Payload returns the operation payload described by the header. Headers
// that point outside the envelope are a protocol violation.
func (e Envelope) Payload() ([]byte, error) {
	if len(e) < HeaderSize {
		return nil, fmt.Errorf("zufs: envelope too short (%d bytes): %w", len(e), EPROTO)
	}
	off, n := uint64(e.Offset()), uint64(e.Len())
	if off < HeaderSize || off+n > uint64(len(e)) {
		return nil, fmt.Errorf("zufs: payload [%d, %d) outside envelope of %d bytes: %w",
			off, off+n, len(e), EPROTO)
	}
	return e[off : off+n], nil
}

// NewEnvelope allocates an envelope carrying code with an n byte payload
// placed directly after the header, and returns it along with the payload.
func NewEnvelope(code uint32, n int) (Envelope, []byte) {
	e := make(Envelope, HeaderSize+n)
	e.SetCode(code)
	le.PutUint32(e[8:], HeaderSize)
	le.PutUint32(e[12:], uint32(n))
	return e, e[HeaderSize:]
}

// Reset clears the header and describes an n byte payload after it. Workers
// use it to prime a channel buffer before the first wait.
func (e Envelope) Reset(n int) {
	for i := 0; i < HeaderSize; i++ {
		e[i] = 0
	}
	le.PutUint32(e[8:], HeaderSize)
	le.PutUint32(e[12:], uint32(n))
}

func getStr(b []byte) string {
	n := int(b[0])
	return string(b[1 : 1+n])
}

func putStr(b []byte, s string) error {
	if len(s) > MaxName {
		return fmt.Errorf("zufs: name of %d bytes exceeds %d: %w", len(s), MaxName, EINVAL)
	}
	b[0] = byte(len(s))
	copy(b[1:strSize], s)
	return nil
}

func view(p []byte, size int, what string) error {
	if len(p) < size {
		return fmt.Errorf("zufs: %s payload is %d bytes, want %d: %w", what, len(p), size, EPROTO)
	}
	return nil
}

// MountInfo is the payload of every mount channel command.
//
//	0   fs id       u32  (in)
//	4   pmem id     u32  (in)
//	8   sb id       u64  (in)
//	16  flags       u64  (in, remount)
//	24  sbi handle  u64  (out for mount, in otherwise)
//	32  root offset u64  (out)
//	40  root handle u64  (out)
//	48  options     str
type MountInfo []byte

const MountInfoSize = 48 + strSize

func AsMountInfo(p []byte) (MountInfo, error) {
	if err := view(p, MountInfoSize, "mount"); err != nil {
		return nil, err
	}
	return MountInfo(p[:MountInfoSize]), nil
}

func (m MountInfo) FsID() uint32 { return le.Uint32(m[0:]) }
func (m MountInfo) PmemID() uint32 { return le.Uint32(m[4:]) }
func (m MountInfo) SbID() uint64 { return le.Uint64(m[8:]) }
func (m MountInfo) Flags() uint64 { return le.Uint64(m[16:]) }
func (m MountInfo) SbiHandle() uint64 { return le.Uint64(m[24:]) }
func (m MountInfo) RootOffset() uint64 { return le.Uint64(m[32:]) }
func (m MountInfo) RootHandle() uint64 { return le.Uint64(m[40:]) }
func (m MountInfo) Options() string { return getStr(m[48:]) }
func (m MountInfo) SetFsID(v uint32) { le.PutUint32(m[0:], v) }
func (m MountInfo) SetPmemID(v uint32) { le.PutUint32(m[4:], v) }
func (m MountInfo) SetSbID(v uint64) { le.PutUint64(m[8:], v) }
func (m MountInfo) SetFlags(v uint64) { le.PutUint64(m[16:], v) }
func (m MountInfo) SetSbiHandle(v uint64) { le.PutUint64(m[24:], v) }
func (m MountInfo) SetOptions(s string) error { return putStr(m[48:], s) }

// SetRoot publishes the root inode of a freshly mounted instance.
func (m MountInfo) SetRoot(offset, handle uint64) {
	le.PutUint64(m[32:], offset)
	le.PutUint64(m[40:], handle)
}

// NewInodeFlags qualify a NewInode request.
type NewInodeFlags uint32

// NewInodeTmpFile creates an unnamed inode; no directory entry is added.
const NewInodeTmpFile NewInodeFlags = 1 << 0

// NewInode is the payload of OpNewInode.
//
//	0    inode draft  [64]byte (in, nlink reset by the server)
//	64   name         str
//	320  dir handle   u64
//	328  flags        u32
//	336  offset       u64 (out)
//	344  handle       u64 (out)
type NewInode []byte

const NewInodeSize = 352

func AsNewInode(p []byte) (NewInode, error) {
	if err := view(p, NewInodeSize, "new_inode"); err != nil {
		return nil, err
	}
	return NewInode(p[:NewInodeSize]), nil
}

func (n NewInode) Inode() Inode { return Inode(n[0:InodeSize]) }
func (n NewInode) Name() string { return getStr(n[64:]) }
func (n NewInode) DirHandle() uint64 { return le.Uint64(n[320:]) }
func (n NewInode) Flags() NewInodeFlags { return NewInodeFlags(le.Uint32(n[328:])) }
func (n NewInode) Offset() uint64 { return le.Uint64(n[336:]) }
func (n NewInode) Handle() uint64 { return le.Uint64(n[344:]) }
func (n NewInode) SetName(s string) error { return putStr(n[64:], s) }
func (n NewInode) SetDirHandle(v uint64) { le.PutUint64(n[320:], v) }
func (n NewInode) SetFlags(f NewInodeFlags) { le.PutUint32(n[328:], uint32(f)) }

// SetResult publishes the region offset and handle of the new inode.
func (n NewInode) SetResult(offset, handle uint64) {
	le.PutUint64(n[336:], offset)
	le.PutUint64(n[344:], handle)
}

// Lookup is the payload of OpLookup.
//
//	0    dir handle u64
//	8    name       str
//	264  offset     u64 (out)
//	272  handle     u64 (out)
type Lookup []byte

const LookupSize = 280

func AsLookup(p []byte) (Lookup, error) {
	if err := view(p, LookupSize, "lookup"); err != nil {
		return nil, err
	}
	return Lookup(p[:LookupSize]), nil
}

func (l Lookup) DirHandle() uint64 { return le.Uint64(l[0:]) }
func (l Lookup) Name() string { return getStr(l[8:]) }
func (l Lookup) Offset() uint64 { return le.Uint64(l[264:]) }
func (l Lookup) Handle() uint64 { return le.Uint64(l[272:]) }
func (l Lookup) SetDirHandle(v uint64) { le.PutUint64(l[0:], v) }
func (l Lookup) SetName(s string) error { return putStr(l[8:], s) }

func (l Lookup) SetResult(offset, handle uint64) {
	le.PutUint64(l[264:], offset)
	le.PutUint64(l[272:], handle)
}

// Dentry is the payload of OpAddDentry and OpRemoveDentry.
//
//	0   dir handle u64
//	8   handle     u64
//	16  name       str
type Dentry []byte

const DentrySize = 16 + strSize

func AsDentry(p []byte) (Dentry, error) {
	if err := view(p, DentrySize, "dentry"); err != nil {
		return nil, err
	}
	return Dentry(p[:DentrySize]), nil
}

func (d Dentry) DirHandle() uint64 { return le.Uint64(d[0:]) }
func (d Dentry) Handle() uint64 { return le.Uint64(d[8:]) }
func (d Dentry) Name() string { return getStr(d[16:]) }
func (d Dentry) SetDirHandle(v uint64) { le.PutUint64(d[0:], v) }
func (d Dentry) SetHandle(v uint64) { le.PutUint64(d[8:], v) }
func (d Dentry) SetName(s string) error { return putStr(d[16:], s) }

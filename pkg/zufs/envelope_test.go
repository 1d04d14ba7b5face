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
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelopeHeader(t *testing.T) {
	env, p := NewEnvelope(uint32(OpLookup), LookupSize)
	assert.Len(t, env, HeaderSize+LookupSize)
	assert.Len(t, p, LookupSize)
	assert.Equal(t, OpLookup, env.Operation())
	assert.EqualValues(t, HeaderSize, env.Offset())
	assert.EqualValues(t, LookupSize, env.Len())

	env.SetErr(ENOENT)
	assert.Equal(t, ENOENT, env.Err())
	// The wire carries the negated errno.
	assert.Equal(t, int32(-int32(ENOENT)), int32(le.Uint32(env[0:])))

	got, err := env.Payload()
	require.NoError(t, err)
	assert.Same(t, &p[0], &got[0])

	env.Reset(8)
	assert.Zero(t, env.Err())
	assert.Zero(t, env.Code())
	assert.EqualValues(t, 8, env.Len())
}

func TestEnvelopePayloadBounds(t *testing.T) {
	for _, tc := range []struct {
		name   string
		env    Envelope
		offset uint32
		length uint32
	}{
		{"short", make(Envelope, 4), 0, 0},
		{"offset inside header", make(Envelope, 64), 8, 8},
		{"length past end", make(Envelope, 64), HeaderSize, 64},
		{"overflowing length", make(Envelope, 64), HeaderSize, ^uint32(0)},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if len(tc.env) >= HeaderSize {
				le.PutUint32(tc.env[8:], tc.offset)
				le.PutUint32(tc.env[12:], tc.length)
			}
			_, err := tc.env.Payload()
			assert.ErrorIs(t, err, EPROTO)
		})
	}
}

func TestMountInfo(t *testing.T) {
	_, err := AsMountInfo(make([]byte, MountInfoSize-1))
	assert.ErrorIs(t, err, EPROTO)

	mi, err := AsMountInfo(make([]byte, MountInfoSize))
	require.NoError(t, err)
	mi.SetFsID(3)
	mi.SetPmemID(4)
	mi.SetSbID(5)
	mi.SetFlags(6)
	mi.SetSbiHandle(7)
	mi.SetRoot(8, 9)
	require.NoError(t, mi.SetOptions("dax,ro"))

	assert.EqualValues(t, 3, mi.FsID())
	assert.EqualValues(t, 4, mi.PmemID())
	assert.EqualValues(t, 5, mi.SbID())
	assert.EqualValues(t, 6, mi.Flags())
	assert.EqualValues(t, 7, mi.SbiHandle())
	assert.EqualValues(t, 8, mi.RootOffset())
	assert.EqualValues(t, 9, mi.RootHandle())
	assert.Equal(t, "dax,ro", mi.Options())

	assert.ErrorIs(t, mi.SetOptions(strings.Repeat("x", MaxName+1)), EINVAL)
	require.NoError(t, mi.SetOptions(strings.Repeat("y", MaxName)))
	assert.Equal(t, strings.Repeat("y", MaxName), mi.Options())
}

func TestNewInodeView(t *testing.T) {
	p := make([]byte, NewInodeSize+16)
	n, err := AsNewInode(p)
	require.NoError(t, err)
	assert.Len(t, n, NewInodeSize)

	n.Inode().SetMode(syscall.S_IFDIR | 0700)
	n.Inode().SetNlink(1)
	require.NoError(t, n.SetName("dir"))
	n.SetDirHandle(1<<32 | 1)
	n.SetFlags(NewInodeTmpFile)
	n.SetResult(128, 1<<32|2)

	assert.True(t, n.Inode().IsDir())
	assert.False(t, n.Inode().IsRegular())
	assert.EqualValues(t, 1, n.Inode().Nlink())
	assert.Equal(t, "dir", n.Name())
	assert.EqualValues(t, 1<<32|1, n.DirHandle())
	assert.Equal(t, NewInodeTmpFile, n.Flags())
	assert.EqualValues(t, 128, n.Offset())
	assert.EqualValues(t, 1<<32|2, n.Handle())
}

func TestLookupAndDentryViews(t *testing.T) {
	l, err := AsLookup(make([]byte, LookupSize))
	require.NoError(t, err)
	l.SetDirHandle(11)
	require.NoError(t, l.SetName(".."))
	l.SetResult(64, 12)
	assert.EqualValues(t, 11, l.DirHandle())
	assert.Equal(t, "..", l.Name())
	assert.EqualValues(t, 64, l.Offset())
	assert.EqualValues(t, 12, l.Handle())

	_, err = AsDentry(make([]byte, DentrySize-1))
	assert.ErrorIs(t, err, EPROTO)
	d, err := AsDentry(make([]byte, DentrySize))
	require.NoError(t, err)
	d.SetDirHandle(1)
	d.SetHandle(2)
	require.NoError(t, d.SetName("f"))
	assert.EqualValues(t, 1, d.DirHandle())
	assert.EqualValues(t, 2, d.Handle())
	assert.Equal(t, "f", d.Name())
}

func TestInode(t *testing.T) {
	zi := make(Inode, InodeSize)
	zi.SetFlags(1)
	zi.SetMode(syscall.S_IFREG | 0644)
	zi.SetNlink(2)
	zi.SetSize(3)
	zi.SetParent(4)
	zi.SetMtime(5)
	zi.SetCtime(6)
	zi.SetUID(7)
	zi.SetGID(8)
	zi.SetGeneration(9)
	zi.SetIno(10)

	other := make(Inode, InodeSize)
	other.CopyFrom(zi)
	assert.Equal(t, zi, other)
	assert.True(t, other.IsRegular())
	assert.EqualValues(t, 4, other.Parent())
	assert.EqualValues(t, 10, other.Ino())
	assert.EqualValues(t, 7, other.UID())

	other.Clear()
	assert.Equal(t, make(Inode, InodeSize), other)
}

func TestToErrno(t *testing.T) {
	for _, tc := range []struct {
		err  error
		want Errno
	}{
		{nil, 0},
		{ENOSPC, ENOSPC},
		{fmt.Errorf("wrapped: %w", ESTALE), ESTALE},
		{&os.PathError{Op: "open", Path: "/x", Err: syscall.ENOENT}, ENOENT},
		{errors.New("plain"), EIO},
	} {
		assert.Equal(t, tc.want, ToErrno(tc.err), "%v", tc.err)
	}
	assert.Equal(t, "ENOTSUP", ENOTSUP.ErrnoName())
	text, err := EPROTO.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "EPROTO", string(text))
}

func TestOperationNames(t *testing.T) {
	assert.Equal(t, "LOOKUP", OpLookup.String())
	assert.Equal(t, "BREAK", OpBreak.String())
	assert.Equal(t, "UNKNOWN", Operation(1000).String())
	assert.Equal(t, "REMOUNT", MountOpRemount.String())
	assert.Equal(t, "UNKNOWN", MountOp(0).String())
}

func TestRegisterFS(t *testing.T) {
	r, err := NewRegisterFS("foofs", 0x5a5a, 2, 1, 4096)
	require.NoError(t, err)
	assert.Len(t, r, RegisterFSSize)
	assert.Equal(t, "foofs", strings.TrimRight(string(r[:16]), "\x00"))
	assert.EqualValues(t, 2, r.FsID())
	assert.EqualValues(t, 4096, le.Uint32(r[28:]))

	_, err = NewRegisterFS("", 0, 0, 0, 0)
	assert.ErrorIs(t, err, EINVAL)
	_, err = NewRegisterFS(strings.Repeat("n", 16), 0, 0, 0, 0)
	assert.ErrorIs(t, err, EINVAL)
}

func TestIoctlNumbers(t *testing.T) {
	// _IOWR('Z', 19, 24)
	assert.Equal(t, uintptr(0xc0185a13), iocGrabPmem)
	assert.Equal(t, uintptr(0xc0205a0a), iocRegisterFS)
}

func TestIomapExecutorRejectsForeignStream(t *testing.T) {
	buf := NewIomapExec(1, 2)
	assert.EqualValues(t, 1, le.Uint64(buf[0:]))
	assert.EqualValues(t, 2, le.Uint64(buf[8:]))
	assert.Len(t, buf.Stream(), MaxEnvelope-iomapExecHeader)

	ex := NewIomapExecutor(nil, buf)
	err := ex.Exec(context.Background(), make([]byte, 64), true)
	assert.ErrorIs(t, err, EINVAL)
}

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

package zus_test

import (
	"context"
	"syscall"
	"testing"

	"github.com/kurafs/zus/pkg/log"
	"github.com/kurafs/zus/pkg/zufs"
	"github.com/kurafs/zus/pkg/zus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type dispatchHarness struct {
	*harness
	d    *zus.Dispatcher
	sbi  *zus.SbInfo
	root uint64
}

func newDispatchHarness(t *testing.T, opts ...zus.DispatcherOption) *dispatchHarness {
	h := newHarness(t)
	sbiHandle, root := h.mount(t)
	sbi, err := h.mounts.Get(zus.MountID(sbiHandle))
	require.NoError(t, err)
	return &dispatchHarness{
		harness: h,
		d:       zus.NewDispatcher(log.Discarder(), h.mounts, h.metrics, opts...),
		sbi:     sbi,
		root:    root,
	}
}

// create issues NEW_INODE and returns the reply.
func (h *dispatchHarness) create(dir uint64, name string, mode uint16, flags zufs.NewInodeFlags) (zufs.Envelope, zufs.NewInode, error) {
	env, p := zufs.NewEnvelope(uint32(zufs.OpNewInode), zufs.NewInodeSize)
	req, _ := zufs.AsNewInode(p)
	req.Inode().SetMode(mode)
	req.Inode().SetNlink(1)
	req.SetName(name)
	req.SetDirHandle(dir)
	req.SetFlags(flags)
	err := h.d.Do(context.Background(), env)
	return env, req, err
}

func (h *dispatchHarness) lookup(dir uint64, name string) (zufs.Envelope, zufs.Lookup, error) {
	env, p := zufs.NewEnvelope(uint32(zufs.OpLookup), zufs.LookupSize)
	req, _ := zufs.AsLookup(p)
	req.SetDirHandle(dir)
	req.SetName(name)
	err := h.d.Do(context.Background(), env)
	return env, req, err
}

func (h *dispatchHarness) dentry(op zufs.Operation, dir, ino uint64, name string) error {
	env, p := zufs.NewEnvelope(uint32(op), zufs.DentrySize)
	req, _ := zufs.AsDentry(p)
	req.SetDirHandle(dir)
	req.SetHandle(ino)
	req.SetName(name)
	return h.d.Do(context.Background(), env)
}

func (h *dispatchHarness) inode(t *testing.T, handle uint64) zufs.Inode {
	t.Helper()
	_, ii, err := h.mounts.Inode(zus.Handle(handle))
	require.NoError(t, err)
	return ii.Zi
}

func TestNewInodeLinksIntoParent(t *testing.T) {
	h := newDispatchHarness(t)

	env, req, err := h.create(h.root, "f", syscall.S_IFREG|0644, 0)
	require.NoError(t, err)
	assert.Equal(t, zufs.Errno(0), env.Err())
	require.NotZero(t, req.Handle())

	zi := h.inode(t, req.Handle())
	assert.EqualValues(t, 1, zi.Nlink(), "draft link is dropped, the dentry adds one")
	assert.EqualValues(t, 2, zi.Ino())
	assert.Equal(t, uint64(1*zufs.InodeSize), req.Offset())

	_, found, err := h.lookup(h.root, "f")
	require.NoError(t, err)
	assert.Equal(t, req.Handle(), found.Handle())
	assert.Equal(t, req.Offset(), found.Offset())
}

func TestNewInodeTmpFileStaysUnlinked(t *testing.T) {
	h := newDispatchHarness(t)

	_, req, err := h.create(h.root, "", syscall.S_IFREG|0600, zufs.NewInodeTmpFile)
	require.NoError(t, err)
	zi := h.inode(t, req.Handle())
	assert.Zero(t, zi.Nlink())
	assert.Empty(t, h.fs.lastSb.dents)
}

func TestNewInodeLinkFailureFreesInode(t *testing.T) {
	h := newDispatchHarness(t)
	h.fs.failAdd = zufs.ENOSPC

	env, req, err := h.create(h.root, "f", syscall.S_IFREG|0644, 0)
	assert.ErrorIs(t, err, zufs.ENOSPC)
	assert.Equal(t, zufs.ENOSPC, env.Err())
	assert.Zero(t, req.Handle())
	assert.Equal(t, []uint64{2}, h.fs.freedInos)
	assert.Equal(t, 1, h.sbi.Inodes(), "only the root stays published")

	h.fs.failAdd = nil
	_, _, err = h.lookup(h.root, "f")
	assert.ErrorIs(t, err, zufs.ENOENT)
}

func TestLookupDotAndDotDot(t *testing.T) {
	h := newDispatchHarness(t)
	_, d, err := h.create(h.root, "d", syscall.S_IFDIR|0755, 0)
	require.NoError(t, err)

	hits := h.fs.lookupHits
	_, dot, err := h.lookup(d.Handle(), ".")
	require.NoError(t, err)
	assert.Equal(t, d.Handle(), dot.Handle())

	_, dotdot, err := h.lookup(d.Handle(), "..")
	require.NoError(t, err)
	assert.Equal(t, h.root, dotdot.Handle())

	_, rootdot, err := h.lookup(h.root, "..")
	require.NoError(t, err)
	assert.Equal(t, h.root, rootdot.Handle())
	assert.Equal(t, hits, h.fs.lookupHits, "reserved names never reach the back-end")
}

func TestLookupErrors(t *testing.T) {
	h := newDispatchHarness(t)

	env, _, err := h.lookup(h.root, "missing")
	assert.ErrorIs(t, err, zufs.ENOENT)
	assert.Equal(t, zufs.ENOENT, env.Err())

	env, _, err = h.lookup(h.root, "")
	assert.ErrorIs(t, err, zufs.EINVAL)
	assert.Equal(t, zufs.EINVAL, env.Err())

	// A dentry pointing at an inode the back-end cannot load.
	h.fs.lastSb.dents[dentKey{1, "ghost"}] = 99
	_, _, err = h.lookup(h.root, "ghost")
	assert.ErrorIs(t, err, zufs.ENOENT)

	_, _, err = h.lookup(h.root|0xffff, "x")
	assert.ErrorIs(t, err, zufs.ESTALE)
}

func TestLinkCountScenario(t *testing.T) {
	h := newDispatchHarness(t)

	_, d, err := h.create(h.root, "d", syscall.S_IFDIR|0755, 0)
	require.NoError(t, err)
	dir := h.inode(t, d.Handle())
	rootZi := h.inode(t, h.root)
	assert.EqualValues(t, 1, dir.Parent())
	fresh := append(zufs.Inode(nil), dir...)
	freshRoot := append(zufs.Inode(nil), rootZi...)

	_, f, err := h.create(d.Handle(), "f", syscall.S_IFREG|0644, 0)
	require.NoError(t, err)
	file := h.inode(t, f.Handle())
	assert.EqualValues(t, 1, file.Nlink())
	assert.EqualValues(t, dir.Ino(), file.Parent())
	assert.Equal(t, fresh.Nlink(), dir.Nlink(), "a regular file adds no link to its directory")

	require.NoError(t, h.dentry(zufs.OpRemoveDentry, d.Handle(), f.Handle(), "f"))
	assert.Zero(t, file.Nlink())
	assert.Equal(t, fresh, dir)
	assert.Equal(t, freshRoot, rootZi)

	_, _, err = h.lookup(d.Handle(), "f")
	assert.ErrorIs(t, err, zufs.ENOENT)
}

func TestSubdirectoryLinks(t *testing.T) {
	h := newDispatchHarness(t)
	rootZi := h.inode(t, h.root)
	before := rootZi.Nlink()

	_, d, err := h.create(h.root, "d", syscall.S_IFDIR|0755, 0)
	require.NoError(t, err)
	assert.Equal(t, before+1, rootZi.Nlink())
	assert.EqualValues(t, 2, h.inode(t, d.Handle()).Nlink())

	require.NoError(t, h.dentry(zufs.OpRemoveDentry, h.root, d.Handle(), "d"))
	assert.Equal(t, before, rootZi.Nlink())
	assert.EqualValues(t, 1, h.inode(t, d.Handle()).Nlink())

	require.NoError(t, h.dentry(zufs.OpAddDentry, h.root, d.Handle(), "again"))
	assert.Equal(t, before+1, rootZi.Nlink())
	_, again, err := h.lookup(h.root, "again")
	require.NoError(t, err)
	assert.Equal(t, d.Handle(), again.Handle())
}

func TestDentryErrors(t *testing.T) {
	h := newDispatchHarness(t)
	assert.ErrorIs(t, h.dentry(zufs.OpRemoveDentry, h.root, h.root, "nope"), zufs.ENOENT)
	assert.ErrorIs(t, h.dentry(zufs.OpAddDentry, h.root, h.root+1, "x"), zufs.ESTALE)

	unknownMount := uint64(zus.Handle(h.root).Mount()+1)<<32 | 1
	assert.ErrorIs(t, h.dentry(zufs.OpAddDentry, h.root, unknownMount, "x"), zufs.ESTALE)
}

func TestUnservicedOperations(t *testing.T) {
	h := newDispatchHarness(t)
	for _, op := range []zufs.Operation{
		zufs.OpStatfs, zufs.OpFreeInode, zufs.OpEvictInode, zufs.OpRename,
		zufs.OpReaddir, zufs.OpClone, zufs.OpCopy, zufs.OpRead, zufs.OpPreRead,
		zufs.OpWrite, zufs.OpGetBlock, zufs.OpPutBlock, zufs.OpMmapClose,
		zufs.OpGetSymlink, zufs.OpSetattr, zufs.OpSync, zufs.OpFallocate,
		zufs.OpLlseek, zufs.OpIoctl, zufs.OpXattrGet, zufs.OpXattrSet,
		zufs.OpXattrList,
	} {
		t.Run(op.String(), func(t *testing.T) {
			env, _ := zufs.NewEnvelope(uint32(op), 0)
			assert.ErrorIs(t, h.d.Do(context.Background(), env), zufs.ENOTSUP)
			assert.Equal(t, zufs.ENOTSUP, env.Err())
		})
	}
}

func TestBreakAndUnknownOperations(t *testing.T) {
	lenient := newDispatchHarness(t)
	strict := newDispatchHarness(t, zus.Strict(true))

	for _, h := range []*dispatchHarness{lenient, strict} {
		env, _ := zufs.NewEnvelope(uint32(zufs.OpBreak), 0)
		assert.NoError(t, h.d.Do(context.Background(), env))
		assert.Equal(t, zufs.Errno(0), env.Err())
	}

	for _, code := range []uint32{uint32(zufs.OpNull), uint32(zufs.OpMaxOpt), 1000} {
		env, _ := zufs.NewEnvelope(code, 0)
		assert.NoError(t, lenient.d.Do(context.Background(), env))
		assert.Equal(t, zufs.Errno(0), env.Err())

		env, _ = zufs.NewEnvelope(code, 0)
		assert.ErrorIs(t, strict.d.Do(context.Background(), env), zufs.ENOSYS)
		assert.Equal(t, zufs.ENOSYS, env.Err())
	}
}

func TestMalformedPayload(t *testing.T) {
	h := newDispatchHarness(t)

	env, _ := zufs.NewEnvelope(uint32(zufs.OpLookup), 8)
	assert.ErrorIs(t, h.d.Do(context.Background(), env), zufs.EPROTO)

	env, _ = zufs.NewEnvelope(uint32(zufs.OpNewInode), zufs.NewInodeSize)
	// Payload length beyond the buffer.
	env[12] = 0xff
	env[13] = 0xff
	assert.ErrorIs(t, h.d.Do(context.Background(), env), zufs.EPROTO)
	assert.Equal(t, zufs.EPROTO, env.Err())
}

func TestHandlesGoStaleAfterUmount(t *testing.T) {
	h := newDispatchHarness(t)
	_, f, err := h.create(h.root, "f", syscall.S_IFREG|0644, 0)
	require.NoError(t, err)

	env, _ := mountEnvelope(zufs.MountOpUmount, h.module.ID, uint64(h.sbi.ID))
	require.NoError(t, h.lifecycle.Do(context.Background(), env))

	_, _, err = h.lookup(h.root, "f")
	assert.ErrorIs(t, err, zufs.ESTALE)
	assert.ErrorIs(t, h.dentry(zufs.OpRemoveDentry, h.root, f.Handle(), "f"), zufs.ESTALE)
}

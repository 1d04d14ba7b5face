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
	"errors"
	"os"
	"syscall"
	"testing"

	"github.com/kurafs/zus/pkg/log"
	"github.com/kurafs/zus/pkg/pmem"
	"github.com/kurafs/zus/pkg/zufs"
	"github.com/kurafs/zus/pkg/zus"
	"github.com/stretchr/testify/require"
)

// memfs is a minimal back-end keeping inodes in block 0 of the region and
// directory entries in a map.
type memfs struct {
	allocs, inits, finis, frees, remounts int

	failAlloc  error
	failInit   error
	nilRoot    bool
	failAdd    error
	lastSb     *memsb
	freedInos  []uint64
	lookupHits int
}

type dentKey struct {
	dir  uint64
	name string
}

type memsb struct {
	fs    *memfs
	next  uint64
	inos  map[uint64]*zus.InodeInfo
	dents map[dentKey]uint64
}

var _ zus.SbiFactory = (*memfs)(nil)
var _ zus.SbiRemounter = (*memfs)(nil)
var _ zus.SbiOperations = (*memsb)(nil)

func (fs *memfs) SbiAlloc(*zus.FsModule) (zus.SbiOperations, error) {
	fs.allocs++
	if fs.failAlloc != nil {
		return nil, fs.failAlloc
	}
	fs.lastSb = &memsb{
		fs:    fs,
		next:  1,
		inos:  make(map[uint64]*zus.InodeInfo),
		dents: make(map[dentKey]uint64),
	}
	return fs.lastSb, nil
}

func (fs *memfs) SbiInit(ctx context.Context, sbi *zus.SbInfo, mi zufs.MountInfo) (*zus.InodeInfo, error) {
	fs.inits++
	if fs.failInit != nil {
		return nil, fs.failInit
	}
	if fs.nilRoot {
		return nil, nil
	}
	sb := sbi.Ops.(*memsb)
	zi, err := sb.slot(sbi, 1)
	if err != nil {
		return nil, err
	}
	zi.Clear()
	zi.SetIno(1)
	zi.SetMode(syscall.S_IFDIR | 0755)
	zi.SetParent(1)
	zi.SetNlink(2)
	sb.next = 2
	root := &zus.InodeInfo{Zi: zi}
	sb.inos[1] = root
	return root, nil
}

func (fs *memfs) SbiFini(ctx context.Context, sbi *zus.SbInfo) error {
	fs.finis++
	return nil
}

func (fs *memfs) SbiFree(sbi *zus.SbInfo) {
	fs.frees++
}

func (fs *memfs) SbiRemount(ctx context.Context, sbi *zus.SbInfo, mi zufs.MountInfo) error {
	fs.remounts++
	return nil
}

func (sb *memsb) slot(sbi *zus.SbInfo, ino uint64) (zufs.Inode, error) {
	blk, err := sbi.Region.Block(0)
	if err != nil {
		return nil, err
	}
	off := (ino - 1) * zufs.InodeSize
	if off+zufs.InodeSize > uint64(len(blk)) {
		return nil, zufs.ENOSPC
	}
	return zufs.Inode(blk[off : off+zufs.InodeSize]), nil
}

func (sb *memsb) NewInode(ctx context.Context, sbi *zus.SbInfo, dir *zus.InodeInfo, draft zufs.Inode, name string, flags zufs.NewInodeFlags) (*zus.InodeInfo, error) {
	ino := sb.next
	zi, err := sb.slot(sbi, ino)
	if err != nil {
		return nil, err
	}
	sb.next++
	zi.CopyFrom(draft)
	zi.SetIno(ino)
	zi.SetParent(dir.Zi.Ino())
	if zi.IsDir() {
		zus.StdNewDir(dir.Zi, zi)
	}
	ii := &zus.InodeInfo{Zi: zi}
	sb.inos[ino] = ii
	return ii, nil
}

func (sb *memsb) FreeInode(ctx context.Context, sbi *zus.SbInfo, ii *zus.InodeInfo) error {
	ino := ii.Zi.Ino()
	sb.fs.freedInos = append(sb.fs.freedInos, ino)
	delete(sb.inos, ino)
	ii.Zi.Clear()
	return nil
}

func (sb *memsb) Lookup(ctx context.Context, sbi *zus.SbInfo, dir *zus.InodeInfo, name string) (uint64, error) {
	sb.fs.lookupHits++
	return sb.dents[dentKey{dir.Zi.Ino(), name}], nil
}

func (sb *memsb) AddDentry(ctx context.Context, sbi *zus.SbInfo, dir, ii *zus.InodeInfo, name string) error {
	if sb.fs.failAdd != nil {
		return sb.fs.failAdd
	}
	k := dentKey{dir.Zi.Ino(), name}
	if _, ok := sb.dents[k]; ok {
		return zufs.EEXIST
	}
	sb.dents[k] = ii.Zi.Ino()
	zus.StdAddDentry(dir.Zi, ii.Zi)
	return nil
}

func (sb *memsb) RemoveDentry(ctx context.Context, sbi *zus.SbInfo, dir, ii *zus.InodeInfo, name string) error {
	k := dentKey{dir.Zi.Ino(), name}
	if _, ok := sb.dents[k]; !ok {
		return zufs.ENOENT
	}
	delete(sb.dents, k)
	zus.StdRemoveDentry(dir.Zi, ii.Zi)
	return nil
}

func (sb *memsb) Iget(ctx context.Context, sbi *zus.SbInfo, ino uint64) (*zus.InodeInfo, error) {
	ii, ok := sb.inos[ino]
	if !ok {
		return nil, zufs.ENOENT
	}
	return ii, nil
}

func (sb *memsb) Statfs(ctx context.Context, sbi *zus.SbInfo) (zus.Statfs, error) {
	return zus.Statfs{Files: uint64(len(sb.inos))}, nil
}

// countingBinder records every handle it hands out.
type countingBinder struct {
	pmem.Emulated
	files []*os.File
}

func (b *countingBinder) OpenTmp() (*os.File, error) {
	f, err := b.Emulated.OpenTmp()
	if err == nil {
		b.files = append(b.files, f)
	}
	return f, err
}

func (b *countingBinder) allClosed() bool {
	for _, f := range b.files {
		if err := f.Close(); !errors.Is(err, os.ErrClosed) {
			return false
		}
	}
	return true
}

type harness struct {
	fs        *memfs
	binder    *countingBinder
	module    *zus.FsModule
	mounts    *zus.MountTable
	lifecycle *zus.Lifecycle
	metrics   *zus.Metrics
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		fs:      &memfs{},
		binder:  &countingBinder{Emulated: pmem.Emulated{Geometry: pmem.Geometry{T1Blocks: 4}}},
		mounts:  zus.NewMountTable(),
		metrics: zus.NewMetrics(),
	}
	reg := zus.NewRegistry()
	m, err := reg.Register(zus.Capabilities{Name: "memfs", Magic: 0x5a5a}, h.fs)
	require.NoError(t, err)
	h.module = m
	h.lifecycle = zus.NewLifecycle(log.Discarder(), reg, h.mounts, h.binder, h.metrics)
	return h
}

func mountEnvelope(op zufs.MountOp, fsID zus.FsID, sbiHandle uint64) (zufs.Envelope, zufs.MountInfo) {
	env, p := zufs.NewEnvelope(uint32(op), zufs.MountInfoSize)
	mi, _ := zufs.AsMountInfo(p)
	mi.SetFsID(uint32(fsID))
	mi.SetPmemID(7)
	mi.SetSbID(0xabc)
	mi.SetSbiHandle(sbiHandle)
	return env, mi
}

// mount mounts memfs and returns the instance handle and root handle.
func (h *harness) mount(t *testing.T) (uint64, uint64) {
	t.Helper()
	env, mi := mountEnvelope(zufs.MountOpMount, h.module.ID, 0)
	require.NoError(t, h.lifecycle.Do(context.Background(), env))
	require.Equal(t, zufs.Errno(0), env.Err())
	return mi.SbiHandle(), mi.RootHandle()
}

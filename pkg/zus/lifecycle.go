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

import (
	"context"
	"fmt"
	"time"

	"github.com/kurafs/zus/pkg/log"
	"github.com/kurafs/zus/pkg/pmem"
	"github.com/kurafs/zus/pkg/zufs"
)

// Lifecycle services the mount channel: it builds mount instances on
// mount, tears them down on umount and forwards remount.
type Lifecycle struct {
	logger  *log.Logger
	modules *Registry
	mounts  *MountTable
	binder  pmem.Binder
	metrics *Metrics
}

func NewLifecycle(logger *log.Logger, modules *Registry, mounts *MountTable, binder pmem.Binder, metrics *Metrics) *Lifecycle {
	return &Lifecycle{
		logger:  logger,
		modules: modules,
		mounts:  mounts,
		binder:  binder,
		metrics: metrics,
	}
}

// Do handles one mount channel command and records the resulting errno in
// its header.
func (lc *Lifecycle) Do(ctx context.Context, env zufs.Envelope) error {
	start := time.Now()
	op := env.MountOp()
	err := lc.do(ctx, op, env)
	env.SetErr(zufs.ToErrno(err))
	lc.metrics.observe(op.String(), err, start)
	return err
}

func (lc *Lifecycle) do(ctx context.Context, op zufs.MountOp, env zufs.Envelope) error {
	p, err := env.Payload()
	if err != nil {
		return err
	}
	mi, err := zufs.AsMountInfo(p)
	if err != nil {
		return err
	}
	switch op {
	case zufs.MountOpMount:
		return lc.Mount(ctx, mi)
	case zufs.MountOpUmount:
		return lc.Umount(ctx, mi)
	case zufs.MountOpRemount:
		return lc.Remount(ctx, mi)
	default:
		lc.logger.Errorf("unknown mount operation %d", uint32(op))
		return fmt.Errorf("zus: unknown mount operation %d: %w", uint32(op), zufs.EINVAL)
	}
}

// Mount builds a new instance: allocate, map the region, initialise. On
// success the instance handle and root inode are published in mi. On
// failure the instance is flagged and everything acquired so far is
// released.
func (lc *Lifecycle) Mount(ctx context.Context, mi zufs.MountInfo) error {
	fs, err := lc.modules.Lookup(FsID(mi.FsID()))
	if err != nil {
		return err
	}

	ops, err := fs.Factory.SbiAlloc(fs)
	if err != nil || ops == nil {
		lc.metrics.mountFailed()
		return fmt.Errorf("zus: %s: allocate instance: %v: %w", fs.Caps.Name, err, zufs.ENOMEM)
	}
	sbi := newSbInfo(lc.mounts.reserve(), fs, ops, mi.SbID())

	if err := lc.construct(ctx, sbi, mi); err != nil {
		sbi.SetFlag(FlagError)
		lc.teardown(ctx, sbi)
		lc.metrics.mountFailed()
		lc.logger.Errorf("mount of %s (sb %d) failed: %v", fs.Caps.Name, sbi.KernSbID, err)
		return err
	}

	lc.mounts.publish(sbi)
	lc.metrics.mounted(1)
	lc.logger.Infof("mounted %s as %s (sb %d, region %d)", fs.Caps.Name, sbi.ID, sbi.KernSbID, mi.PmemID())
	return nil
}

func (lc *Lifecycle) construct(ctx context.Context, sbi *SbInfo, mi zufs.MountInfo) error {
	region, err := pmem.Acquire(lc.logger, lc.binder, mi.PmemID(), sbi.Module.Caps.UserPageSize)
	if err != nil {
		return err
	}
	sbi.Region = region

	sbi.initReached = true
	root, err := sbi.Module.Factory.SbiInit(ctx, sbi, mi)
	if err != nil {
		return err
	}
	if root == nil {
		return fmt.Errorf("zus: %s: init returned no root: %w", sbi.Module.Caps.Name, zufs.EIO)
	}

	h := sbi.register(root)
	off, err := sbi.offsetOf(root)
	if err != nil {
		sbi.forget(root)
		return err
	}
	sbi.Root = root
	mi.SetSbiHandle(uint64(sbi.ID))
	mi.SetRoot(off, uint64(h))
	return nil
}

// teardown undoes as much of construction as was reached: back-end fini,
// region release, instance free.
func (lc *Lifecycle) teardown(ctx context.Context, sbi *SbInfo) {
	if sbi.initReached {
		if err := sbi.Module.Factory.SbiFini(ctx, sbi); err != nil {
			lc.logger.Errorf("fini of mount %s: %v", sbi.ID, err)
		}
	}
	if sbi.Region != nil {
		if err := sbi.Region.Release(); err != nil {
			lc.logger.Errorf("release of region %d: %v", sbi.Region.ID(), err)
		}
		sbi.Region = nil
	}
	sbi.Module.Factory.SbiFree(sbi)
	sbi.Root = nil
}

// Umount tears down the instance named by mi's handle. It is withdrawn from
// the mount table first so no new command can reach it.
func (lc *Lifecycle) Umount(ctx context.Context, mi zufs.MountInfo) error {
	sbi, err := lc.mounts.Get(MountID(mi.SbiHandle()))
	if err != nil {
		return err
	}
	lc.mounts.remove(sbi.ID)
	lc.teardown(ctx, sbi)
	lc.metrics.mounted(-1)
	lc.logger.Infof("unmounted %s (sb %d)", sbi.ID, sbi.KernSbID)
	return nil
}

// Remount forwards to the back-end when it supports remount, and succeeds
// otherwise.
func (lc *Lifecycle) Remount(ctx context.Context, mi zufs.MountInfo) error {
	sbi, err := lc.mounts.Get(MountID(mi.SbiHandle()))
	if err != nil {
		return err
	}
	r, ok := sbi.Module.Factory.(SbiRemounter)
	if !ok {
		return nil
	}
	return r.SbiRemount(ctx, sbi, mi)
}

// Iget loads inode ino of sbi and publishes it under the instance. It
// returns nil when the back-end cannot produce the inode.
func Iget(ctx context.Context, logger *log.Logger, sbi *SbInfo, ino uint64) *InodeInfo {
	ii, err := sbi.Ops.Iget(ctx, sbi, ino)
	if err != nil || ii == nil {
		logger.Debugf("iget of inode %d on mount %s: %v", ino, sbi.ID, err)
		return nil
	}
	sbi.register(ii)
	return ii
}

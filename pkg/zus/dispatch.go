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
	"github.com/kurafs/zus/pkg/zufs"
)

// Dispatcher routes worker channel commands to the operations of the mount
// they address. It holds no per-command state and is safe for concurrent
// use by all workers.
type Dispatcher struct {
	logger  *log.Logger
	mounts  *MountTable
	metrics *Metrics
	strict  bool
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// Strict makes unknown operation codes fail with ENOSYS instead of being
// logged and acknowledged.
func Strict(strict bool) DispatcherOption {
	return func(d *Dispatcher) {
		d.strict = strict
	}
}

func NewDispatcher(logger *log.Logger, mounts *MountTable, metrics *Metrics, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{logger: logger, mounts: mounts, metrics: metrics}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Do handles one command and records the resulting errno in its header.
func (d *Dispatcher) Do(ctx context.Context, env zufs.Envelope) error {
	start := time.Now()
	op := env.Operation()
	err := d.do(ctx, op, env)
	env.SetErr(zufs.ToErrno(err))
	d.metrics.observe(op.String(), err, start)
	if err != nil {
		d.logger.Debugf("%s: %v", op, err)
	}
	return err
}

func (d *Dispatcher) do(ctx context.Context, op zufs.Operation, env zufs.Envelope) error {
	switch op {
	case zufs.OpBreak:
		return nil
	case zufs.OpNewInode:
		p, err := env.Payload()
		if err != nil {
			return err
		}
		req, err := zufs.AsNewInode(p)
		if err != nil {
			return err
		}
		return d.newInode(ctx, req)
	case zufs.OpLookup:
		p, err := env.Payload()
		if err != nil {
			return err
		}
		req, err := zufs.AsLookup(p)
		if err != nil {
			return err
		}
		return d.lookup(ctx, req)
	case zufs.OpAddDentry, zufs.OpRemoveDentry:
		p, err := env.Payload()
		if err != nil {
			return err
		}
		req, err := zufs.AsDentry(p)
		if err != nil {
			return err
		}
		return d.dentry(ctx, op == zufs.OpAddDentry, req)
	case zufs.OpFreeInode, zufs.OpEvictInode:
		return fmt.Errorf("zus: %s is not serviced: %w", op, zufs.ENOTSUP)
	case zufs.OpStatfs, zufs.OpRename, zufs.OpReaddir, zufs.OpClone, zufs.OpCopy,
		zufs.OpRead, zufs.OpPreRead, zufs.OpWrite, zufs.OpGetBlock, zufs.OpPutBlock,
		zufs.OpMmapClose, zufs.OpGetSymlink, zufs.OpSetattr, zufs.OpSync,
		zufs.OpFallocate, zufs.OpLlseek, zufs.OpIoctl,
		zufs.OpXattrGet, zufs.OpXattrSet, zufs.OpXattrList:
		// Serviced through InodeOperations on the data path.
		return fmt.Errorf("zus: %s is not serviced by the dispatcher: %w", op, zufs.ENOTSUP)
	default:
		d.logger.Errorf("unknown operation %s (%d)", op, uint32(op))
		if d.strict {
			return fmt.Errorf("zus: unknown operation %d: %w", uint32(op), zufs.ENOSYS)
		}
		return nil
	}
}

// newInode creates an inode from the kernel's draft and, unless it is an
// unlinked temporary file, links it into its directory. An inode that fails
// to link is freed again.
func (d *Dispatcher) newInode(ctx context.Context, req zufs.NewInode) error {
	sbi, dir, err := d.mounts.Inode(Handle(req.DirHandle()))
	if err != nil {
		return err
	}
	draft := req.Inode()
	// The kernel's draft counts one link; links are only made by AddDentry.
	draft.SetNlink(0)

	ii, err := sbi.Ops.NewInode(ctx, sbi, dir, draft, req.Name(), req.Flags())
	if err != nil {
		return err
	}
	if ii == nil {
		return fmt.Errorf("zus: %s: new inode returned nothing: %w", sbi.Module.Caps.Name, zufs.EINVAL)
	}

	h := sbi.register(ii)
	off, err := sbi.offsetOf(ii)
	if err != nil {
		d.free(ctx, sbi, ii)
		return err
	}

	if req.Flags()&zufs.NewInodeTmpFile == 0 {
		if err := sbi.Ops.AddDentry(ctx, sbi, dir, ii, req.Name()); err != nil {
			d.free(ctx, sbi, ii)
			return err
		}
	}
	req.SetResult(off, uint64(h))
	return nil
}

func (d *Dispatcher) free(ctx context.Context, sbi *SbInfo, ii *InodeInfo) {
	if err := sbi.Ops.FreeInode(ctx, sbi, ii); err != nil {
		d.logger.Errorf("free of unlinked inode %d on mount %s: %v", ii.Zi.Ino(), sbi.ID, err)
	}
	sbi.forget(ii)
}

// lookup resolves "." and ".." itself and everything else through the
// back-end.
func (d *Dispatcher) lookup(ctx context.Context, req zufs.Lookup) error {
	sbi, dir, err := d.mounts.Inode(Handle(req.DirHandle()))
	if err != nil {
		return err
	}

	name := req.Name()
	var ino uint64
	switch name {
	case "":
		d.logger.Errorf("lookup of empty name in inode %d on mount %s", dir.Zi.Ino(), sbi.ID)
		return fmt.Errorf("zus: lookup of empty name: %w", zufs.EINVAL)
	case ".":
		ino = dir.Zi.Ino()
	case "..":
		ino = dir.Zi.Parent()
	default:
		ino, err = sbi.Ops.Lookup(ctx, sbi, dir, name)
		if err != nil {
			return err
		}
	}
	if ino == 0 {
		return fmt.Errorf("zus: %q not found: %w", name, zufs.ENOENT)
	}

	ii := Iget(ctx, d.logger, sbi, ino)
	if ii == nil {
		return fmt.Errorf("zus: inode %d of %q not loadable: %w", ino, name, zufs.ENOENT)
	}
	off, err := sbi.offsetOf(ii)
	if err != nil {
		return err
	}
	req.SetResult(off, uint64(ii.Handle()))
	return nil
}

func (d *Dispatcher) dentry(ctx context.Context, add bool, req zufs.Dentry) error {
	sbi, dir, err := d.mounts.Inode(Handle(req.DirHandle()))
	if err != nil {
		return err
	}
	owner, ii, err := d.mounts.Inode(Handle(req.Handle()))
	if err != nil {
		return err
	}
	if owner != sbi {
		return fmt.Errorf("zus: dentry spans mounts %s and %s: %w", sbi.ID, owner.ID, zufs.EINVAL)
	}
	if add {
		return sbi.Ops.AddDentry(ctx, sbi, dir, ii, req.Name())
	}
	return sbi.Ops.RemoveDentry(ctx, sbi, dir, ii, req.Name())
}

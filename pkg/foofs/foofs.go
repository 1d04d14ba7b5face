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

// Package foofs is a small reference file system. Inodes live in a table on
// the persistent-memory region; directory entries and block lists live in an
// Index, which is either volatile (the region is formatted on every mount)
// or kept in a bolt database next to the server.
package foofs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kurafs/zus/pkg/iomap"
	"github.com/kurafs/zus/pkg/log"
	"github.com/kurafs/zus/pkg/pmem"
	"github.com/kurafs/zus/pkg/zufs"
	"github.com/kurafs/zus/pkg/zus"
	"golang.org/x/sys/unix"
)

// Capabilities describe foofs to the registry and the kernel.
var Capabilities = zus.Capabilities{
	Name:    "foofs",
	Magic:   0x0f00f5,
	Version: Version,
}

// A Submitter executes the IO-maps of one mount.
type Submitter interface {
	iomap.Executor

	// Stream returns the buffer IO-maps are built in.
	Stream() []byte
	Close() error
}

// A SubmitterOpener opens the submitter of a mount being initialised.
type SubmitterOpener func(sbi *zus.SbInfo) (Submitter, error)

type Config struct {
	// Indexes defaults to MemIndexes.
	Indexes IndexOpener

	// Submitters may be nil, in which case block maintenance is not
	// reported to the kernel.
	Submitters SubmitterOpener
}

// FS is the foofs file system type.
type FS struct {
	logger *log.Logger
	cfg    Config
}

var _ zus.SbiFactory = (*FS)(nil)
var _ zus.SbiRemounter = (*FS)(nil)

func New(logger *log.Logger, cfg Config) *FS {
	if cfg.Indexes == nil {
		cfg.Indexes = MemIndexes()
	}
	return &FS{logger: logger, cfg: cfg}
}

// sb is one mounted foofs. A single mutex serialises all operations on it.
type sb struct {
	fs     *FS
	logger *log.Logger

	mu       sync.Mutex
	sbi      *zus.SbInfo
	region   *pmem.Region
	layout   layout
	super    superblock
	index    Index
	sub      Submitter
	data     *bitmap
	inodes   map[uint64]*zus.InodeInfo
	readOnly bool
}

var _ zus.SbiOperations = (*sb)(nil)
var _ zus.InodeOperations = (*sb)(nil)

func (fs *FS) SbiAlloc(*zus.FsModule) (zus.SbiOperations, error) {
	return &sb{
		fs:     fs,
		logger: fs.logger,
		inodes: make(map[uint64]*zus.InodeInfo),
	}, nil
}

func (fs *FS) SbiInit(ctx context.Context, sbi *zus.SbInfo, mi zufs.MountInfo) (*zus.InodeInfo, error) {
	s, ok := sbi.Ops.(*sb)
	if !ok {
		return nil, fmt.Errorf("foofs: foreign instance: %w", zufs.EINVAL)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	l, err := newLayout(sbi.Region.Geometry())
	if err != nil {
		return nil, err
	}
	blk, err := sbi.Region.Block(0)
	if err != nil {
		return nil, err
	}
	s.sbi, s.region, s.layout, s.super = sbi, sbi.Region, l, superblock(blk)
	s.data = newBitmap(l.dataStart(), l.dataBlocks())
	s.readOnly = mi.Flags()&unix.MS_RDONLY != 0

	s.index, err = fs.cfg.Indexes(sbi.Region.ID())
	if err != nil {
		return nil, err
	}
	if s.index.Persistent() && s.formatted() {
		err = s.load()
	} else {
		err = s.format()
	}
	if err != nil {
		return nil, err
	}
	s.super.SetMounts(s.super.Mounts() + 1)

	if fs.cfg.Submitters != nil {
		if s.sub, err = fs.cfg.Submitters(sbi); err != nil {
			return nil, err
		}
	}

	root, err := s.iget(RootIno)
	if err != nil {
		return nil, fmt.Errorf("foofs: load root: %w", err)
	}
	s.logger.Infof("foofs on region %d: %d inodes, %d of %d data blocks free, mount #%d",
		sbi.Region.ID(), l.inodes(), s.data.available(), l.dataBlocks(), s.super.Mounts())
	return root, nil
}

func (fs *FS) SbiFini(ctx context.Context, sbi *zus.SbInfo) error {
	s, ok := sbi.Ops.(*sb)
	if !ok {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	if s.sub != nil {
		err = s.sub.Close()
		s.sub = nil
	}
	if s.index != nil {
		if cerr := s.index.Close(); err == nil {
			err = cerr
		}
		s.index = nil
	}
	s.inodes = make(map[uint64]*zus.InodeInfo)
	return err
}

func (fs *FS) SbiFree(sbi *zus.SbInfo) {
	if s, ok := sbi.Ops.(*sb); ok {
		s.mu.Lock()
		s.sbi, s.region, s.super = nil, nil, nil
		s.mu.Unlock()
	}
}

// SbiRemount switches the instance between read-only and read-write.
func (fs *FS) SbiRemount(ctx context.Context, sbi *zus.SbInfo, mi zufs.MountInfo) error {
	s, ok := sbi.Ops.(*sb)
	if !ok {
		return fmt.Errorf("foofs: foreign instance: %w", zufs.EINVAL)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readOnly = mi.Flags()&unix.MS_RDONLY != 0
	s.logger.Infof("foofs on region %d remounted, read-only=%t", s.region.ID(), s.readOnly)
	return nil
}

func (s *sb) formatted() bool {
	return s.super.Magic() == Magic &&
		s.super.Version() == Version &&
		uint64(s.super.InodeBlocks()) == s.layout.inodeBlocks
}

func (s *sb) format() error {
	if err := s.index.Reset(); err != nil {
		return err
	}
	for bn := uint64(1); bn < s.layout.dataStart(); bn++ {
		blk, err := s.region.Block(bn)
		if err != nil {
			return err
		}
		for i := range blk {
			blk[i] = 0
		}
	}
	s.super.format(uint32(s.layout.inodeBlocks))

	zi, err := s.slot(RootIno)
	if err != nil {
		return err
	}
	now := uint64(time.Now().UnixNano())
	zi.SetIno(RootIno)
	zi.SetMode(unix.S_IFDIR | 0755)
	zi.SetParent(RootIno)
	zi.SetNlink(2)
	zi.SetMtime(now)
	zi.SetCtime(now)
	s.logger.Debugf("formatted region %d", s.region.ID())
	return nil
}

func (s *sb) load() error {
	var err error
	ferr := s.index.ForEachBlock(func(ino, bn uint64) {
		if merr := s.data.mark(bn); merr != nil && err == nil {
			err = fmt.Errorf("foofs: inode %d: %w", ino, merr)
		}
	})
	if ferr != nil {
		return ferr
	}
	return err
}

func (s *sb) slot(ino uint64) (zufs.Inode, error) {
	off, err := s.layout.inodeOffset(ino)
	if err != nil {
		return nil, err
	}
	b, err := s.region.Slice(off, zufs.InodeSize)
	if err != nil {
		return nil, err
	}
	return zufs.Inode(b), nil
}

func (s *sb) iget(ino uint64) (*zus.InodeInfo, error) {
	if ii, ok := s.inodes[ino]; ok {
		return ii, nil
	}
	zi, err := s.slot(ino)
	if err != nil {
		return nil, err
	}
	if zi.Ino() != ino {
		return nil, fmt.Errorf("foofs: inode %d is free: %w", ino, zufs.ENOENT)
	}
	ii := &zus.InodeInfo{Ops: s, Zi: zi}
	s.inodes[ino] = ii
	return ii, nil
}

func (s *sb) writable() error {
	if s.readOnly {
		return fmt.Errorf("foofs: region %d is mounted read-only: %w", s.region.ID(), zufs.EROFS)
	}
	return nil
}

func (s *sb) NewInode(ctx context.Context, sbi *zus.SbInfo, dir *zus.InodeInfo, draft zufs.Inode, name string, flags zufs.NewInodeFlags) (*zus.InodeInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writable(); err != nil {
		return nil, err
	}

	for ino := uint64(RootIno + 1); ino <= s.layout.inodes(); ino++ {
		zi, err := s.slot(ino)
		if err != nil {
			return nil, err
		}
		if zi.Ino() != 0 {
			continue
		}
		zi.CopyFrom(draft)
		zi.SetIno(ino)
		zi.SetParent(dir.Zi.Ino())
		zi.SetSize(0)
		zi.SetGeneration(s.super.Mounts())
		if zi.IsDir() {
			zus.StdNewDir(dir.Zi, zi)
		}
		ii := &zus.InodeInfo{Ops: s, Zi: zi}
		s.inodes[ino] = ii
		s.logger.Debugf("new inode %d %q in %d", ino, name, dir.Zi.Ino())
		return ii, nil
	}
	return nil, fmt.Errorf("foofs: inode table of region %d is full: %w", s.region.ID(), zufs.ENOSPC)
}

func (s *sb) FreeInode(ctx context.Context, sbi *zus.SbInfo, ii *zus.InodeInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.release(ii)
}

// release gives back the blocks and table slot of ii.
func (s *sb) release(ii *zus.InodeInfo) error {
	ino := ii.Zi.Ino()
	bns, err := s.index.Blocks(ino)
	if err != nil {
		return err
	}
	for _, bn := range bns {
		s.data.free(bn)
	}
	if err := s.index.SetBlocks(ino, nil); err != nil {
		return err
	}
	delete(s.inodes, ino)
	ii.Zi.Clear()
	return nil
}

func (s *sb) Lookup(ctx context.Context, sbi *zus.SbInfo, dir *zus.InodeInfo, name string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !dir.Zi.IsDir() {
		return 0, fmt.Errorf("foofs: lookup in inode %d: %w", dir.Zi.Ino(), zufs.ENOTDIR)
	}
	return s.index.Lookup(dir.Zi.Ino(), name)
}

func (s *sb) AddDentry(ctx context.Context, sbi *zus.SbInfo, dir, ii *zus.InodeInfo, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writable(); err != nil {
		return err
	}
	if !dir.Zi.IsDir() {
		return fmt.Errorf("foofs: link into inode %d: %w", dir.Zi.Ino(), zufs.ENOTDIR)
	}
	if err := s.index.Link(dir.Zi.Ino(), name, ii.Zi.Ino()); err != nil {
		return err
	}
	zus.StdAddDentry(dir.Zi, ii.Zi)
	touch(dir.Zi)
	return nil
}

func (s *sb) RemoveDentry(ctx context.Context, sbi *zus.SbInfo, dir, ii *zus.InodeInfo, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writable(); err != nil {
		return err
	}
	if ii.Zi.IsDir() {
		ents, err := s.index.Entries(ii.Zi.Ino())
		if err != nil {
			return err
		}
		if len(ents) > 0 {
			return fmt.Errorf("foofs: directory %d has %d entries: %w", ii.Zi.Ino(), len(ents), zufs.ENOTEMPTY)
		}
	}
	if err := s.index.Unlink(dir.Zi.Ino(), name); err != nil {
		return err
	}
	zus.StdRemoveDentry(dir.Zi, ii.Zi)
	touch(dir.Zi)
	return nil
}

func (s *sb) Iget(ctx context.Context, sbi *zus.SbInfo, ino uint64) (*zus.InodeInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.iget(ino)
}

func (s *sb) Statfs(ctx context.Context, sbi *zus.SbInfo) (zus.Statfs, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.region == nil || s.data == nil {
		return zus.Statfs{}, zufs.ESTALE
	}
	st := zus.Statfs{
		Blocks:     s.layout.dataBlocks(),
		BlocksFree: s.data.available(),
		Files:      s.layout.inodes(),
	}
	for ino := uint64(1); ino <= s.layout.inodes(); ino++ {
		zi, err := s.slot(ino)
		if err != nil {
			return zus.Statfs{}, err
		}
		if zi.Ino() == 0 {
			st.FilesFree++
		}
	}
	return st, nil
}

// Entries lists directory dir of the mount. It backs diagnostics; the kernel
// reads directories through its own path.
func Entries(sbi *zus.SbInfo, dir uint64) ([]Dirent, error) {
	s, ok := sbi.Ops.(*sb)
	if !ok {
		return nil, fmt.Errorf("foofs: foreign instance: %w", zufs.EINVAL)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.index == nil {
		return nil, zufs.ESTALE
	}
	return s.index.Entries(dir)
}

func touch(zi zufs.Inode) {
	now := uint64(time.Now().UnixNano())
	zi.SetMtime(now)
	zi.SetCtime(now)
}

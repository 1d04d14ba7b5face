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

package foofs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kurafs/zus/pkg/iomap"
	"github.com/kurafs/zus/pkg/pmem"
	"github.com/kurafs/zus/pkg/zufs"
	"github.com/kurafs/zus/pkg/zus"
	"golang.org/x/sys/unix"
)

func pages(size uint64) uint64 {
	return (size + pmem.BlockSize - 1) / pmem.BlockSize
}

// Evict drops the in-memory state of ii, and its storage once no directory
// entry names it.
func (s *sb) Evict(ctx context.Context, ii *zus.InodeInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ii.Zi.Nlink() == 0 && ii.Zi.Ino() != RootIno {
		return s.release(ii)
	}
	delete(s.inodes, ii.Zi.Ino())
	return nil
}

func (s *sb) Read(ctx context.Context, ii *zus.InodeInfo, off uint64, dst []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !ii.Zi.IsRegular() {
		return 0, fmt.Errorf("foofs: read of inode %d: %w", ii.Zi.Ino(), zufs.EINVAL)
	}
	size := ii.Zi.Size()
	if off >= size {
		return 0, nil
	}
	if rem := size - off; uint64(len(dst)) > rem {
		dst = dst[:rem]
	}
	bns, err := s.index.Blocks(ii.Zi.Ino())
	if err != nil {
		return 0, err
	}
	return s.copyBlocks(bns, off, dst, false)
}

func (s *sb) Write(ctx context.Context, ii *zus.InodeInfo, off uint64, src []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writable(); err != nil {
		return 0, err
	}
	if !ii.Zi.IsRegular() {
		return 0, fmt.Errorf("foofs: write to inode %d: %w", ii.Zi.Ino(), zufs.EINVAL)
	}
	end := off + uint64(len(src))
	if end < off {
		return 0, fmt.Errorf("foofs: write past the end of the file: %w", zufs.ERANGE)
	}
	bns, err := s.grow(ii, pages(end))
	if err != nil {
		return 0, err
	}
	n, err := s.copyBlocks(bns, off, src, true)
	if end > ii.Zi.Size() {
		ii.Zi.SetSize(end)
	}
	touch(ii.Zi)
	return n, err
}

// copyBlocks moves buf to (write) or from the file bytes starting at off.
func (s *sb) copyBlocks(bns []uint64, off uint64, buf []byte, write bool) (int, error) {
	done := 0
	for done < len(buf) {
		pos := off + uint64(done)
		page := pos / pmem.BlockSize
		if page >= uint64(len(bns)) {
			return done, fmt.Errorf("foofs: offset %d beyond the block list: %w", pos, zufs.EIO)
		}
		blk, err := s.region.Block(bns[page])
		if err != nil {
			return done, err
		}
		blk = blk[pos%pmem.BlockSize:]
		if write {
			done += copy(blk, buf[done:])
		} else {
			done += copy(buf[done:], blk)
		}
	}
	return done, nil
}

// grow extends the block list of ii to n zeroed blocks.
func (s *sb) grow(ii *zus.InodeInfo, n uint64) ([]uint64, error) {
	ino := ii.Zi.Ino()
	bns, err := s.index.Blocks(ino)
	if err != nil {
		return nil, err
	}
	have := len(bns)
	for uint64(len(bns)) < n {
		bn, err := s.data.alloc()
		if err == nil {
			var blk []byte
			if blk, err = s.region.Block(bn); err == nil {
				for i := range blk {
					blk[i] = 0
				}
			}
		}
		if err != nil {
			for _, bn := range bns[have:] {
				s.data.free(bn)
			}
			return nil, err
		}
		bns = append(bns, bn)
	}
	if len(bns) > have {
		if err := s.index.SetBlocks(ino, bns); err != nil {
			return nil, err
		}
	}
	return bns, nil
}

func (s *sb) Setattr(ctx context.Context, ii *zus.InodeInfo, attr zus.Attr) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writable(); err != nil {
		return err
	}
	if attr.Valid&zus.AttrMode != 0 {
		ii.Zi.SetMode(ii.Zi.Mode()&unix.S_IFMT | attr.Mode&^unix.S_IFMT)
	}
	if attr.Valid&zus.AttrSize != 0 {
		if err := s.truncate(ctx, ii, attr.Size); err != nil {
			return err
		}
	}
	if attr.Valid&zus.AttrMtime != 0 {
		ii.Zi.SetMtime(attr.Mtime)
	}
	ii.Zi.SetCtime(uint64(time.Now().UnixNano()))
	return nil
}

// truncate resizes ii. Dropped pages are unmapped from the kernel's page
// cache and their blocks discarded before they return to the free pool.
func (s *sb) truncate(ctx context.Context, ii *zus.InodeInfo, size uint64) error {
	if !ii.Zi.IsRegular() {
		return fmt.Errorf("foofs: truncate of inode %d: %w", ii.Zi.Ino(), zufs.EINVAL)
	}
	ino := ii.Zi.Ino()
	keep := pages(size)
	bns, err := s.grow(ii, keep)
	if err != nil {
		return err
	}

	if tail := size % pmem.BlockSize; tail != 0 {
		blk, err := s.region.Block(bns[keep-1])
		if err != nil {
			return err
		}
		for i := tail; i < pmem.BlockSize; i++ {
			blk[i] = 0
		}
	}

	if dropped := bns[keep:]; len(dropped) > 0 {
		if err := s.dropPages(ctx, ino, keep, dropped); err != nil {
			return err
		}
		for _, bn := range dropped {
			s.data.free(bn)
		}
		if err := s.index.SetBlocks(ino, bns[:keep]); err != nil {
			return err
		}
	}
	ii.Zi.SetSize(size)
	return nil
}

// dropPages tells the kernel that pages from index first on are gone and
// that their blocks may be discarded.
func (s *sb) dropPages(ctx context.Context, ino, first uint64, bns []uint64) error {
	if s.sub == nil {
		return nil
	}
	b := iomap.New(s.sub.Stream(), s.region)
	err := s.encode(ctx, b, func() error { return b.EncodeUnmap(first, uint64(len(bns)), ino) })
	for i := 0; err == nil && i < len(bns); {
		j := i + 1
		for j < len(bns) && bns[j] == bns[j-1]+1 {
			j++
		}
		start, n := bns[i], uint64(j-i)
		err = s.encode(ctx, b, func() error { return b.EncodeDiscard(start, n) })
		i = j
	}
	if err == nil {
		err = s.encode(ctx, b, b.EncodeWBInv)
	}
	if err == nil {
		err = s.flush(ctx, b)
	}
	if err != nil {
		return fmt.Errorf("foofs: drop pages of inode %d: %w", ino, err)
	}
	return nil
}

// encode runs one encoder call, flushing the stream first when it is full.
func (s *sb) encode(ctx context.Context, b *iomap.Builder, enc func() error) error {
	err := enc()
	if !errors.Is(err, iomap.ErrNoSpace) || b.Empty() {
		return err
	}
	if err := s.flush(ctx, b); err != nil {
		return err
	}
	return enc()
}

func (s *sb) flush(ctx context.Context, b *iomap.Builder) error {
	if b.Empty() {
		return nil
	}
	b.End()
	err := b.Submit(ctx, s.sub, true)
	b.Start(nil)
	if err != nil {
		s.logger.Errorf("iomap on region %d: %v", s.region.ID(), err)
	}
	return err
}

// Sync writes back and invalidates the CPU caches covering the region.
func (s *sb) Sync(ctx context.Context, ii *zus.InodeInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sub == nil {
		return nil
	}
	b := iomap.New(s.sub.Stream(), s.region)
	if err := b.EncodeWBInv(); err != nil {
		return err
	}
	return s.flush(ctx, b)
}

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
	"encoding/binary"
	"fmt"
	"math/bits"

	"github.com/kurafs/zus/pkg/pmem"
	"github.com/kurafs/zus/pkg/zufs"
)

// Region layout:
//
//	block 0              superblock
//	blocks 1..N          inode table, InodesPerBlock inodes each
//	blocks N+1..T1-1     file data
//
// Inode numbers are table slots counted from one; the root is inode 1.

const (
	Magic   = 0x53465f4f4f46 // "FOO_FS"
	Version = 1

	InodesPerBlock = pmem.BlockSize / zufs.InodeSize
	RootIno        = 1

	// One inode block per inodeRatio region blocks.
	inodeRatio = 16
	minBlocks  = 3
)

var sle = binary.LittleEndian

// superblock is a view of block 0.
//
//	0   magic         u64
//	8   version       u32
//	12  inode blocks  u32
//	16  mounts        u64
type superblock []byte

func (s superblock) Magic() uint64 { return sle.Uint64(s[0:]) }
func (s superblock) Version() uint32 { return sle.Uint32(s[8:]) }
func (s superblock) InodeBlocks() uint32 { return sle.Uint32(s[12:]) }
func (s superblock) Mounts() uint64 { return sle.Uint64(s[16:]) }
func (s superblock) SetMounts(v uint64) { sle.PutUint64(s[16:], v) }

func (s superblock) format(inodeBlocks uint32) {
	for i := range s {
		s[i] = 0
	}
	sle.PutUint64(s[0:], Magic)
	sle.PutUint32(s[8:], Version)
	sle.PutUint32(s[12:], inodeBlocks)
}

type layout struct {
	t1          uint64
	inodeBlocks uint64
}

func newLayout(geo pmem.Geometry) (layout, error) {
	if geo.T1Blocks < minBlocks {
		return layout{}, fmt.Errorf("foofs: region of %d blocks, need at least %d: %w",
			geo.T1Blocks, minBlocks, zufs.EINVAL)
	}
	n := geo.T1Blocks / inodeRatio
	if n == 0 {
		n = 1
	}
	return layout{t1: geo.T1Blocks, inodeBlocks: n}, nil
}

func (l layout) inodes() uint64 { return l.inodeBlocks * InodesPerBlock }
func (l layout) dataStart() uint64 { return 1 + l.inodeBlocks }
func (l layout) dataBlocks() uint64 { return l.t1 - l.dataStart() }

// inodeOffset locates inode ino in the region.
func (l layout) inodeOffset(ino uint64) (pmem.Offset, error) {
	if ino == 0 || ino > l.inodes() {
		return 0, fmt.Errorf("foofs: inode %d out of range: %w", ino, zufs.ENOENT)
	}
	slot := ino - 1
	return pmem.Offset((1+slot/InodesPerBlock)*pmem.BlockSize + slot%InodesPerBlock*zufs.InodeSize), nil
}

// bitmap tracks data block allocation; bit i is data block dataStart+i.
type bitmap struct {
	base  uint64
	words []uint64
	n     uint64
	used  uint64
}

func newBitmap(base, n uint64) *bitmap {
	return &bitmap{base: base, words: make([]uint64, (n+63)/64), n: n}
}

func (b *bitmap) mark(bn uint64) error {
	if bn < b.base || bn-b.base >= b.n {
		return fmt.Errorf("foofs: block %d outside the data area: %w", bn, zufs.ERANGE)
	}
	i := bn - b.base
	if b.words[i/64]&(1<<(i%64)) == 0 {
		b.words[i/64] |= 1 << (i % 64)
		b.used++
	}
	return nil
}

func (b *bitmap) alloc() (uint64, error) {
	for w, word := range b.words {
		if word == ^uint64(0) {
			continue
		}
		i := uint64(w*64 + bits.TrailingZeros64(^word))
		if i >= b.n {
			break
		}
		b.words[w] |= 1 << (i % 64)
		b.used++
		return b.base + i, nil
	}
	return 0, fmt.Errorf("foofs: no free data blocks: %w", zufs.ENOSPC)
}

func (b *bitmap) free(bn uint64) {
	if bn < b.base || bn-b.base >= b.n {
		return
	}
	i := bn - b.base
	if b.words[i/64]&(1<<(i%64)) != 0 {
		b.words[i/64] &^= 1 << (i % 64)
		b.used--
	}
}

func (b *bitmap) available() uint64 { return b.n - b.used }

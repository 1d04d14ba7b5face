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
	"fmt"
	"sync"

	"github.com/google/btree"
	"github.com/kurafs/zus/pkg/zufs"
)

// Dirent is one directory entry.
type Dirent struct {
	Name string
	Ino  uint64
}

// An Index holds what does not fit in the on-region inode: directory entries
// and the data blocks of every file.
type Index interface {
	// Lookup returns the inode name refers to in dir, zero if none.
	Lookup(dir uint64, name string) (uint64, error)
	Link(dir uint64, name string, ino uint64) error
	Unlink(dir uint64, name string) error
	Entries(dir uint64) ([]Dirent, error)

	// Blocks returns the data blocks of ino, in file order.
	Blocks(ino uint64) ([]uint64, error)
	// SetBlocks replaces the block list of ino; an empty list drops it.
	SetBlocks(ino uint64, bns []uint64) error
	ForEachBlock(fn func(ino, bn uint64)) error

	// Reset drops all entries and block lists.
	Reset() error

	// Persistent reports whether the index outlives the mount.
	Persistent() bool
	Close() error
}

// An IndexOpener opens the index of the region with the given id.
type IndexOpener func(regionID uint32) (Index, error)

// MemIndexes opens a fresh in-memory index for every mount.
func MemIndexes() IndexOpener {
	return func(uint32) (Index, error) {
		return NewMemIndex(), nil
	}
}

type dent struct {
	dir  uint64
	name string
	ino  uint64
}

func dentLess(a, b dent) bool {
	if a.dir != b.dir {
		return a.dir < b.dir
	}
	return a.name < b.name
}

// memIndex keeps entries ordered by (directory, name) in a B-tree so a
// directory listing is a range scan.
type memIndex struct {
	mu     sync.RWMutex
	dents  *btree.BTreeG[dent]
	blocks map[uint64][]uint64
}

var _ Index = (*memIndex)(nil)

const btreeDegree = 16

// NewMemIndex returns a volatile index.
func NewMemIndex() Index {
	return &memIndex{
		dents:  btree.NewG(btreeDegree, dentLess),
		blocks: make(map[uint64][]uint64),
	}
}

func (m *memIndex) Lookup(dir uint64, name string) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.dents.Get(dent{dir: dir, name: name})
	if !ok {
		return 0, nil
	}
	return d.ino, nil
}

func (m *memIndex) Link(dir uint64, name string, ino uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dents.Has(dent{dir: dir, name: name}) {
		return fmt.Errorf("foofs: %q exists in directory %d: %w", name, dir, zufs.EEXIST)
	}
	m.dents.ReplaceOrInsert(dent{dir: dir, name: name, ino: ino})
	return nil
}

func (m *memIndex) Unlink(dir uint64, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.dents.Delete(dent{dir: dir, name: name}); !ok {
		return fmt.Errorf("foofs: no %q in directory %d: %w", name, dir, zufs.ENOENT)
	}
	return nil
}

func (m *memIndex) Entries(dir uint64) ([]Dirent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Dirent
	m.dents.AscendGreaterOrEqual(dent{dir: dir}, func(d dent) bool {
		if d.dir != dir {
			return false
		}
		out = append(out, Dirent{Name: d.name, Ino: d.ino})
		return true
	})
	return out, nil
}

func (m *memIndex) Blocks(ino uint64) ([]uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]uint64(nil), m.blocks[ino]...), nil
}

func (m *memIndex) SetBlocks(ino uint64, bns []uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(bns) == 0 {
		delete(m.blocks, ino)
		return nil
	}
	m.blocks[ino] = append([]uint64(nil), bns...)
	return nil
}

func (m *memIndex) ForEachBlock(fn func(ino, bn uint64)) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for ino, bns := range m.blocks {
		for _, bn := range bns {
			fn(ino, bn)
		}
	}
	return nil
}

func (m *memIndex) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dents.Clear(false)
	m.blocks = make(map[uint64][]uint64)
	return nil
}

func (m *memIndex) Persistent() bool { return false }
func (m *memIndex) Close() error { return nil }

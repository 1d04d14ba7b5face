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
	"sort"
	"sync"

	"github.com/kurafs/zus/pkg/zufs"
)

// FsID identifies a registered file system type to the kernel.
type FsID uint32

// Capabilities describe a file system type.
type Capabilities struct {
	Name    string
	Magic   uint32
	Version uint32

	// UserPageSize, when non-zero, asks for a scratch buffer of
	// T1Blocks*UserPageSize bytes alongside every mounted region.
	UserPageSize int
}

// An FsModule is one registered file system type.
type FsModule struct {
	ID      FsID
	Caps    Capabilities
	Factory SbiFactory
}

// SbiFactory creates and destroys mount instances of one file system type.
type SbiFactory interface {
	// SbiAlloc returns the per-mount operations of a new, uninitialised
	// instance.
	SbiAlloc(fs *FsModule) (SbiOperations, error)

	// SbiInit prepares sbi, whose region is mapped, and returns its root.
	SbiInit(ctx context.Context, sbi *SbInfo, mi zufs.MountInfo) (*InodeInfo, error)

	// SbiFini undoes SbiInit. It is also called after a failed SbiInit.
	SbiFini(ctx context.Context, sbi *SbInfo) error

	// SbiFree releases what SbiAlloc allocated.
	SbiFree(sbi *SbInfo)
}

// SbiRemounter is implemented by factories that support remount.
type SbiRemounter interface {
	SbiRemount(ctx context.Context, sbi *SbInfo, mi zufs.MountInfo) error
}

// SbiOperations are the namespace operations of one mount instance.
type SbiOperations interface {
	// NewInode creates an inode from draft, whose link count is zero.
	NewInode(ctx context.Context, sbi *SbInfo, dir *InodeInfo, draft zufs.Inode, name string, flags zufs.NewInodeFlags) (*InodeInfo, error)
	FreeInode(ctx context.Context, sbi *SbInfo, ii *InodeInfo) error

	// Lookup returns the inode number name refers to in dir, zero when
	// there is none.
	Lookup(ctx context.Context, sbi *SbInfo, dir *InodeInfo, name string) (uint64, error)
	AddDentry(ctx context.Context, sbi *SbInfo, dir, ii *InodeInfo, name string) error
	RemoveDentry(ctx context.Context, sbi *SbInfo, dir, ii *InodeInfo, name string) error

	// Iget loads inode ino. Repeated calls for a live inode should return
	// the same InodeInfo so it keeps one handle.
	Iget(ctx context.Context, sbi *SbInfo, ino uint64) (*InodeInfo, error)
	Statfs(ctx context.Context, sbi *SbInfo) (Statfs, error)
}

// InodeOperations are the data operations of one inode.
type InodeOperations interface {
	Evict(ctx context.Context, ii *InodeInfo) error
	Read(ctx context.Context, ii *InodeInfo, off uint64, dst []byte) (int, error)
	Write(ctx context.Context, ii *InodeInfo, off uint64, src []byte) (int, error)
	Setattr(ctx context.Context, ii *InodeInfo, attr Attr) error
	Sync(ctx context.Context, ii *InodeInfo) error
}

// AttrMask selects the fields of an Attr to apply.
type AttrMask uint32

const (
	AttrSize AttrMask = 1 << iota
	AttrMode
	AttrMtime
)

// Attr carries inode attribute changes.
type Attr struct {
	Valid AttrMask
	Size  uint64
	Mode  uint16
	Mtime uint64
}

// Statfs reports space usage of a mount instance.
type Statfs struct {
	Blocks     uint64
	BlocksFree uint64
	Files      uint64
	FilesFree  uint64
}

// A Registry holds the file system types this server offers. It replaces
// any process-wide table: the server owns one and hands it to whoever needs
// it.
type Registry struct {
	mu      sync.RWMutex
	modules map[FsID]*FsModule
	names   map[string]FsID
	next    FsID
}

func NewRegistry() *Registry {
	return &Registry{
		modules: make(map[FsID]*FsModule),
		names:   make(map[string]FsID),
	}
}

// Register adds a file system type and assigns its identifier.
func (r *Registry) Register(caps Capabilities, factory SbiFactory) (*FsModule, error) {
	if caps.Name == "" || factory == nil {
		return nil, fmt.Errorf("zus: file system needs a name and a factory: %w", zufs.EINVAL)
	}
	if caps.UserPageSize < 0 {
		return nil, fmt.Errorf("zus: %s: negative user page size: %w", caps.Name, zufs.EINVAL)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.names[caps.Name]; ok {
		return nil, fmt.Errorf("zus: file system %q already registered: %w", caps.Name, zufs.EEXIST)
	}
	r.next++
	fs := &FsModule{ID: r.next, Caps: caps, Factory: factory}
	r.modules[fs.ID] = fs
	r.names[caps.Name] = fs.ID
	return fs, nil
}

// Lookup returns the file system type registered as id.
func (r *Registry) Lookup(id FsID) (*FsModule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fs, ok := r.modules[id]
	if !ok {
		return nil, fmt.Errorf("zus: no file system with id %d: %w", id, zufs.EINVAL)
	}
	return fs, nil
}

// Modules returns every registered type, ordered by id.
func (r *Registry) Modules() []*FsModule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*FsModule, 0, len(r.modules))
	for _, fs := range r.modules {
		out = append(out, fs)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

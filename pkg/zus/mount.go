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
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kurafs/zus/pkg/pmem"
	"github.com/kurafs/zus/pkg/proquint"
	"github.com/kurafs/zus/pkg/zufs"
)

// MountID is the kernel-visible handle of a mount instance.
type MountID uint32

func (id MountID) String() string {
	return proquint.Encode32(uint32(id))
}

// ParseMountID parses the proquint form produced by String.
func ParseMountID(s string) (MountID, error) {
	v, err := proquint.Decode32(s)
	if err != nil {
		return 0, err
	}
	return MountID(v), nil
}

// Handle is the kernel-visible handle of an inode: the owning mount in the
// high 32 bits, a per-mount slot in the low 32.
type Handle uint64

func makeHandle(id MountID, slot uint32) Handle {
	return Handle(uint64(id)<<32 | uint64(slot))
}

func (h Handle) Mount() MountID { return MountID(h >> 32) }
func (h Handle) slot() uint32 { return uint32(h) }

// InodeInfo is the server-side state of one inode. Back-ends fill in Ops and
// Zi; the handle and owning mount are assigned when the inode is handed to
// the kernel.
type InodeInfo struct {
	Ops InodeOperations
	Zi  zufs.Inode

	// Private is free for the back-end.
	Private interface{}

	handle Handle
}

// Handle returns the inode's handle, zero until it has been published.
func (ii *InodeInfo) Handle() Handle {
	return ii.handle
}

// Mount returns the mount the inode belongs to, zero until published.
func (ii *InodeInfo) Mount() MountID {
	return ii.handle.Mount()
}

// SbFlag is a state bit of a mount instance.
type SbFlag uint32

// FlagError marks an instance whose construction failed.
const FlagError SbFlag = 1 << 0

// SbInfo is one mount instance.
type SbInfo struct {
	ID       MountID
	KernSbID uint64
	Module   *FsModule
	Ops      SbiOperations
	Region   *pmem.Region
	Root     *InodeInfo
	Mounted  time.Time

	flags atomic.Uint32

	mu       sync.Mutex
	inodes   map[uint32]*InodeInfo
	nextSlot uint32

	// Teardown progress.
	initReached bool
}

func newSbInfo(id MountID, fs *FsModule, ops SbiOperations, kernSbID uint64) *SbInfo {
	return &SbInfo{
		ID:       id,
		KernSbID: kernSbID,
		Module:   fs,
		Ops:      ops,
		Mounted:  time.Now(),
		inodes:   make(map[uint32]*InodeInfo),
	}
}

// SetFlag sets f on the instance.
func (sbi *SbInfo) SetFlag(f SbFlag) {
	for {
		old := sbi.flags.Load()
		if sbi.flags.CompareAndSwap(old, old|uint32(f)) {
			return
		}
	}
}

// HasFlag reports whether f is set.
func (sbi *SbInfo) HasFlag(f SbFlag) bool {
	return SbFlag(sbi.flags.Load())&f != 0
}

// register publishes ii under this mount and returns its handle. An inode
// already published keeps its handle.
func (sbi *SbInfo) register(ii *InodeInfo) Handle {
	sbi.mu.Lock()
	defer sbi.mu.Unlock()
	if ii.handle != 0 && ii.handle.Mount() == sbi.ID {
		if cur, ok := sbi.inodes[ii.handle.slot()]; ok && cur == ii {
			return ii.handle
		}
	}
	for {
		sbi.nextSlot++
		if sbi.nextSlot == 0 {
			continue
		}
		if _, taken := sbi.inodes[sbi.nextSlot]; !taken {
			break
		}
	}
	sbi.inodes[sbi.nextSlot] = ii
	ii.handle = makeHandle(sbi.ID, sbi.nextSlot)
	return ii.handle
}

// forget withdraws ii's handle.
func (sbi *SbInfo) forget(ii *InodeInfo) {
	sbi.mu.Lock()
	defer sbi.mu.Unlock()
	if cur, ok := sbi.inodes[ii.handle.slot()]; ok && cur == ii {
		delete(sbi.inodes, ii.handle.slot())
	}
	ii.handle = 0
}

func (sbi *SbInfo) inode(h Handle) (*InodeInfo, error) {
	sbi.mu.Lock()
	defer sbi.mu.Unlock()
	ii, ok := sbi.inodes[h.slot()]
	if !ok {
		return nil, fmt.Errorf("zus: stale inode handle %#x: %w", uint64(h), zufs.ESTALE)
	}
	return ii, nil
}

// Inodes returns the number of published inodes.
func (sbi *SbInfo) Inodes() int {
	sbi.mu.Lock()
	defer sbi.mu.Unlock()
	return len(sbi.inodes)
}

// offsetOf locates ii's on-media inode in the region.
func (sbi *SbInfo) offsetOf(ii *InodeInfo) (uint64, error) {
	off, err := sbi.Region.OffsetOf(ii.Zi)
	if err != nil {
		return 0, fmt.Errorf("zus: inode outside region of mount %s: %w", sbi.ID, err)
	}
	return uint64(off), nil
}

// MountTable maps mount handles to live instances. Handles of torn-down
// mounts resolve to ESTALE, never to freed state.
type MountTable struct {
	mu     sync.RWMutex
	next   MountID
	mounts map[MountID]*SbInfo
}

func NewMountTable() *MountTable {
	return &MountTable{mounts: make(map[MountID]*SbInfo)}
}

// reserve hands out a fresh identifier for an instance under construction.
func (t *MountTable) reserve() MountID {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.next++
	return t.next
}

func (t *MountTable) publish(sbi *SbInfo) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.mounts[sbi.ID] = sbi
}

func (t *MountTable) remove(id MountID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.mounts, id)
}

// Get resolves a mount handle.
func (t *MountTable) Get(id MountID) (*SbInfo, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	sbi, ok := t.mounts[id]
	if !ok {
		return nil, fmt.Errorf("zus: no mount %s: %w", id, zufs.ESTALE)
	}
	return sbi, nil
}

// Inode resolves an inode handle to its mount and inode.
func (t *MountTable) Inode(h Handle) (*SbInfo, *InodeInfo, error) {
	sbi, err := t.Get(h.Mount())
	if err != nil {
		return nil, nil, err
	}
	ii, err := sbi.inode(h)
	if err != nil {
		return nil, nil, err
	}
	return sbi, ii, nil
}

// Snapshot returns the live instances ordered by id.
func (t *MountTable) Snapshot() []*SbInfo {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*SbInfo, 0, len(t.mounts))
	for _, sbi := range t.mounts {
		out = append(out, sbi)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of live instances.
func (t *MountTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.mounts)
}

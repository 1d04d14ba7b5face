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

package pmem

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"unsafe"

	"github.com/kurafs/zus/pkg/log"
	"github.com/kurafs/zus/pkg/zufs"
	"golang.org/x/sys/unix"
)

// BlockSize is the size of a T1 block, and of a page.
const BlockSize = 4096

// FlagShadow marks a region that is mapped twice its nominal size, the
// second half mirroring the first.
const FlagShadow uint32 = 1 << 0

// ErrReleased is returned by offset operations on a released region.
var ErrReleased = errors.New("pmem: region released")

// Geometry describes a region as reported when it is grabbed.
type Geometry struct {
	T1Blocks uint64
	T2Blocks uint64
	Flags    uint32
}

// Shadow reports whether the region is shadowed.
func (g Geometry) Shadow() bool {
	return g.Flags&FlagShadow != 0
}

func (g Geometry) mapLen() uint64 {
	n := g.T1Blocks * BlockSize
	if g.Shadow() {
		n *= 2
	}
	return n
}

// A Region is a persistent-memory region mapped into this process for the
// lifetime of one mount.
type Region struct {
	logger *log.Logger
	id     uint32

	mu       sync.RWMutex
	f        *os.File
	geo      Geometry
	data     []byte
	pages    []byte
	released bool
}

// Acquire binds a fresh handle from b to region id and maps it. When
// pageSize is non-zero a page-aligned scratch buffer of
// T1Blocks*pageSize bytes is allocated as well. On failure only what this
// call acquired is released.
func Acquire(logger *log.Logger, b Binder, id uint32, pageSize int) (*Region, error) {
	f, err := b.OpenTmp()
	if err != nil {
		return nil, err
	}

	geo, err := b.Grab(f, id)
	if err != nil {
		f.Close()
		return nil, err
	}
	if geo.T1Blocks == 0 {
		f.Close()
		return nil, fmt.Errorf("pmem: region %d reports no blocks: %w", id, zufs.EINVAL)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(geo.mapLen()), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("pmem: mmap region %d (%d bytes): %w", id, geo.mapLen(), err)
	}

	// The region must stay out of core dumps; a failure here is not fatal.
	if err := unix.Madvise(data, unix.MADV_DONTDUMP); err != nil {
		logger.Errorf("madvise(DONTDUMP) on region %d failed: %v", id, err)
	}

	r := &Region{logger: logger, id: id, f: f, geo: geo, data: data}
	if pageSize > 0 {
		n := int(geo.T1Blocks) * pageSize
		pages, err := unix.Mmap(-1, 0, n, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
		if err != nil {
			unix.Munmap(data)
			f.Close()
			return nil, fmt.Errorf("pmem: allocate %d byte scratch buffer: %w", n, zufs.ENOMEM)
		}
		r.pages = pages
	}

	logger.Debugf("acquired region %d: t1=%d t2=%d shadow=%t", id, geo.T1Blocks, geo.T2Blocks, geo.Shadow())
	return r, nil
}

// Release frees the scratch buffer, finalizes the region, unmaps it and
// closes its handle, in that order. Releasing twice is a no-op.
func (r *Region) Release() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.released {
		return nil
	}
	r.released = true

	var errs []error
	if r.pages != nil {
		errs = append(errs, unix.Munmap(r.pages))
		r.pages = nil
	}
	r.finalize()
	errs = append(errs, unix.Munmap(r.data))
	r.data = nil
	errs = append(errs, r.f.Close())

	r.logger.Debugf("released region %d", r.id)
	return errors.Join(errs...)
}

// finalize forgets the geometry so nothing can be resolved against it.
func (r *Region) finalize() {
	r.geo = Geometry{}
}

// ID returns the kernel identifier of the region.
func (r *Region) ID() uint32 {
	return r.id
}

// Geometry returns the geometry the region was grabbed with.
func (r *Region) Geometry() Geometry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.geo
}

// Len returns the number of mapped bytes, shadow half included.
func (r *Region) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.data)
}

// Pages returns the scratch buffer, nil when none was requested.
func (r *Region) Pages() []byte {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.pages
}

// An Offset is a byte offset from the base of a region's T1 area. Offsets
// are only produced and consumed by bounds-checked Region methods.
type Offset uint64

// DPP is the token identifying region memory in IO-map instructions.
type DPP uint64

// DPP returns the IO-map token for off.
func (off Offset) DPP() DPP {
	return DPP(off)
}

// OffsetOf resolves b, which must lie within the region's T1 area, to an
// offset.
func (r *Region) OffsetOf(b []byte) (Offset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.released {
		return 0, ErrReleased
	}
	if len(b) == 0 {
		return 0, fmt.Errorf("pmem: empty slice: %w", zufs.ERANGE)
	}
	base := uintptr(unsafe.Pointer(&r.data[0]))
	p := uintptr(unsafe.Pointer(&b[0]))
	t1 := uintptr(r.geo.T1Blocks * BlockSize)
	if p < base || p-base+uintptr(len(b)) > t1 {
		return 0, fmt.Errorf("pmem: slice not within region %d: %w", r.id, zufs.ERANGE)
	}
	return Offset(p - base), nil
}

// Slice returns n bytes of the T1 area starting at off.
func (r *Region) Slice(off Offset, n int) ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.released {
		return nil, ErrReleased
	}
	t1 := r.geo.T1Blocks * BlockSize
	if n < 0 || uint64(off) > t1 || uint64(n) > t1-uint64(off) {
		return nil, fmt.Errorf("pmem: [%d, +%d) outside region %d of %d bytes: %w",
			off, n, r.id, t1, zufs.ERANGE)
	}
	end := uint64(off) + uint64(n)
	return r.data[off:end:end], nil
}

// Block returns T1 block bn.
func (r *Region) Block(bn uint64) ([]byte, error) {
	if bn > (1<<63)/BlockSize {
		return nil, fmt.Errorf("pmem: block %d out of range: %w", bn, zufs.ERANGE)
	}
	return r.Slice(Offset(bn*BlockSize), BlockSize)
}

// Shadow returns the shadow copy of T1 block bn.
func (r *Region) Shadow(bn uint64) ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.released {
		return nil, ErrReleased
	}
	if !r.geo.Shadow() || bn >= r.geo.T1Blocks {
		return nil, fmt.Errorf("pmem: no shadow for block %d in region %d: %w", bn, r.id, zufs.ERANGE)
	}
	start := (r.geo.T1Blocks + bn) * BlockSize
	return r.data[start : start+BlockSize : start+BlockSize], nil
}

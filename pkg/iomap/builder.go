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

package iomap

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"unsafe"

	"github.com/kurafs/zus/pkg/zufs"
)

// ErrNotTerminated is returned by Submit when End has not been called.
var ErrNotTerminated = errors.New("iomap: stream not terminated")

// A Builder encodes instructions into a caller-provided stream buffer. A
// Builder is used by one goroutine at a time and is reusable through Start.
type Builder struct {
	stream   []byte
	resolver Resolver

	cur, end int // byte offsets into stream
	n        uint32
	ended    bool
	done     DoneFunc

	// Caller memory named by zusmem instructions, held until completion.
	pinned [][]byte
}

// New returns a builder over stream, whose length bounds the instruction
// capacity. r resolves region memory for T2 instructions and may be nil when
// the caller only passes raw tokens.
func New(stream []byte, r Resolver) *Builder {
	if len(stream) < HeaderSize {
		panic(fmt.Sprintf("iomap: stream of %d bytes cannot hold a header", len(stream)))
	}
	b := &Builder{stream: stream, resolver: r}
	b.Start(nil)
	return b
}

// Start resets the builder to an empty stream and records the completion
// callback used by Submit. The first instruction slot is zeroed so a stream
// handed on before End reads as empty.
func (b *Builder) Start(done DoneFunc) {
	b.end = HeaderSize + (len(b.stream)-HeaderSize)/WordSize*WordSize
	b.cur = HeaderSize
	b.n = 0
	b.ended = false
	b.done = done
	b.pinned = nil
	le.PutUint32(b.stream[0:], uint32((b.end-HeaderSize)/WordSize))
	le.PutUint32(b.stream[4:], 0)
	if b.end > HeaderSize {
		le.PutUint64(b.stream[HeaderSize:], 0)
	}
}

// Len returns the number of instructions encoded so far.
func (b *Builder) Len() int {
	return int(b.n)
}

// Empty reports whether nothing has been encoded.
func (b *Builder) Empty() bool {
	return b.n == 0
}

// Free returns the number of unused words.
func (b *Builder) Free() int {
	return (b.end - b.cur) / WordSize
}

func (b *Builder) fits(nwords int) bool {
	return b.cur+nwords*WordSize <= b.end
}

func (b *Builder) put(w uint64) {
	le.PutUint64(b.stream[b.cur:], w)
	b.cur += WordSize
}

func tag(t Type, val uint64) uint64 {
	if val > ValMask {
		panic(&RangeError{Type: t, Value: val})
	}
	return uint64(t)<<ValBits | val
}

// record writes one tagged instruction of type t. The value is validated and
// capacity checked before anything is written.
func (b *Builder) record(t Type, val uint64, rest ...uint64) error {
	first := tag(t, val)
	if b.ended {
		return fmt.Errorf("iomap: encode after end: %w", zufs.EINVAL)
	}
	if !b.fits(words[t]) {
		return ErrNoSpace
	}
	b.put(first)
	for _, w := range rest {
		b.put(w)
	}
	b.n++
	return nil
}

// EncodeWBInv appends a cache write-back-and-invalidate.
func (b *Builder) EncodeWBInv() error {
	return b.record(TypeWBInv, 0)
}

// EncodeDiscard appends a discard of pages starting at T2 block bn.
func (b *Builder) EncodeDiscard(bn uint64, pages uint64) error {
	return b.record(TypeDiscard, bn, pages)
}

// EncodeUnmap appends an unmap of n pages of inode ino starting at page
// index.
func (b *Builder) EncodeUnmap(index, n, ino uint64) error {
	return b.record(TypeUnmap, index, n, ino)
}

// EncodeT2IO appends a transfer between T2 block bn and the T1 memory named
// by dpp. write moves T1 to T2.
func (b *Builder) EncodeT2IO(bn uint64, dpp uint64, write bool) error {
	t := TypeT2Read
	if write {
		t = TypeT2Write
	}
	return b.record(t, bn, dpp)
}

// EncodeT2ReadInto appends a read of T2 block bn into dst, which must lie in
// the builder's region.
func (b *Builder) EncodeT2ReadInto(bn uint64, dst []byte) error {
	return b.t2Region(bn, dst, false)
}

// EncodeT2WriteFrom appends a write of src, which must lie in the builder's
// region, to T2 block bn.
func (b *Builder) EncodeT2WriteFrom(bn uint64, src []byte) error {
	return b.t2Region(bn, src, true)
}

func (b *Builder) t2Region(bn uint64, mem []byte, write bool) error {
	if b.resolver == nil {
		return fmt.Errorf("iomap: no region to resolve T1 memory against: %w", zufs.EINVAL)
	}
	off, err := b.resolver.OffsetOf(mem)
	if err != nil {
		return err
	}
	return b.EncodeT2IO(bn, uint64(off.DPP()), write)
}

// EncodeT2Zusmem appends a transfer between T2 block bn and server-owned
// memory mem. mem must stay untouched until the stream completes.
func (b *Builder) EncodeT2Zusmem(bn uint64, mem []byte, write bool) error {
	if len(mem) == 0 {
		return fmt.Errorf("iomap: empty zusmem buffer: %w", zufs.EINVAL)
	}
	t := TypeT2ZusmemRead
	if write {
		t = TypeT2ZusmemWrite
	}
	addr := uint64(uintptr(unsafe.Pointer(&mem[0])))
	if err := b.record(t, bn, addr, uint64(len(mem))); err != nil {
		return err
	}
	b.pinned = append(b.pinned, mem)
	return nil
}

// AppendBN appends the page-run primitive: one untagged word carrying block
// number bn of pool. It is only meaningful in streams made up entirely of
// block numbers. more reports whether room remains for another word.
func (b *Builder) AppendBN(bn uint64, pool uint8) (more bool, err error) {
	if bn > ValMask {
		panic(&RangeError{Type: TypeNone, Value: bn})
	}
	if b.ended {
		return false, fmt.Errorf("iomap: encode after end: %w", zufs.EINVAL)
	}
	if !b.fits(1) {
		return false, ErrNoSpace
	}
	b.put(uint64(pool)<<ValBits | bn)
	b.n++
	return b.fits(1), nil
}

// End terminates the stream: a zero word follows the last instruction when
// there is room for it, and the header records the instruction count.
func (b *Builder) End() {
	if b.cur < b.end {
		le.PutUint64(b.stream[b.cur:], 0)
	}
	le.PutUint32(b.stream[4:], b.n)
	b.ended = true
}

// Bytes returns the encoded stream, header included.
func (b *Builder) Bytes() []byte {
	return b.stream[:b.cur]
}

// Submit hands the terminated stream to ex. A synchronous submit returns
// once the kernel is done, after the completion callback has run. An
// asynchronous submit returns at once and the callback runs on another
// goroutine; the builder must not be restarted before then.
func (b *Builder) Submit(ctx context.Context, ex Executor, sync bool) error {
	if !b.ended {
		return ErrNotTerminated
	}
	done, pinned := b.done, b.pinned
	run := func() error {
		err := ex.Exec(ctx, b.stream, sync)
		runtime.KeepAlive(pinned)
		if done != nil {
			done(err)
		}
		return err
	}
	if sync {
		return run()
	}
	go run()
	return nil
}

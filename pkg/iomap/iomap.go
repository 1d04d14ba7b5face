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

// Package iomap encodes IO-map instruction streams: compact sequences of
// tagged 64-bit words the server hands to the kernel to move data between
// tiers, unmap or discard pages, and flush caches without copying through
// user space.
//
// A stream starts with an 8 byte header, {max u32, n u32}, where max is the
// capacity in words and n the number of instructions, followed by the
// instruction words. Every instruction but the page-run primitive begins
// with a tagged word, type<<56 | value.
package iomap

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/kurafs/zus/pkg/pmem"
	"github.com/kurafs/zus/pkg/zufs"
)

var le = binary.LittleEndian

const (
	// ValBits is the width of the value carried by a tagged word.
	ValBits = 56

	// ValMask is the largest value a tagged word can carry.
	ValMask = 1<<ValBits - 1

	// HeaderSize is the size of the stream header.
	HeaderSize = 8

	// WordSize is the size of one instruction word.
	WordSize = 8
)

// Type is the tag of an instruction.
type Type uint8

const (
	TypeNone Type = iota
	TypeT1Write
	TypeT1Read
	TypeT2Write
	TypeT2Read
	TypeT2ZusmemWrite
	TypeT2ZusmemRead
	TypeUnmap
	TypeWBInv
	TypeDiscard
)

// words is the record size of each tagged type.
var words = [...]int{
	TypeT2Write:       2,
	TypeT2Read:        2,
	TypeT2ZusmemWrite: 3,
	TypeT2ZusmemRead:  3,
	TypeUnmap:         3,
	TypeWBInv:         1,
	TypeDiscard:       2,
}

func (t Type) String() string {
	switch t {
	case TypeNone:
		return "none"
	case TypeT1Write:
		return "t1-write"
	case TypeT1Read:
		return "t1-read"
	case TypeT2Write:
		return "t2-write"
	case TypeT2Read:
		return "t2-read"
	case TypeT2ZusmemWrite:
		return "t2-zusmem-write"
	case TypeT2ZusmemRead:
		return "t2-zusmem-read"
	case TypeUnmap:
		return "unmap"
	case TypeWBInv:
		return "wbinv"
	case TypeDiscard:
		return "discard"
	default:
		return fmt.Sprintf("type(%d)", uint8(t))
	}
}

// ErrNoSpace is returned when an instruction does not fit in the stream. The
// stream is left as it was before the call.
var ErrNoSpace = fmt.Errorf("iomap: stream full: %w", zufs.ENOSPC)

// RangeError is the panic value raised when a tagged value exceeds ValMask.
// Such a value would corrupt the tag and the kernel would misread the
// stream.
type RangeError struct {
	Type  Type
	Value uint64
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("iomap: %s value %#x exceeds %d bits", e.Type, e.Value, ValBits)
}

// An Executor hands a terminated stream to the kernel. With wait set the
// kernel completes the stream before Exec returns.
type Executor interface {
	Exec(ctx context.Context, stream []byte, wait bool) error
}

// A Resolver turns memory inside a persistent-memory region into the offset
// the kernel knows it by.
type Resolver interface {
	OffsetOf(b []byte) (pmem.Offset, error)
}

// DoneFunc is called once a submitted stream completes.
type DoneFunc func(err error)

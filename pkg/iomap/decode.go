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
	"fmt"

	"github.com/kurafs/zus/pkg/zufs"
)

// Instruction is one decoded tagged instruction. Args holds the words that
// follow the tagged word.
type Instruction struct {
	Type  Type
	Value uint64
	Args  []uint64
}

func (in Instruction) String() string {
	return fmt.Sprintf("%s(%#x %v)", in.Type, in.Value, in.Args)
}

// Header returns the capacity and instruction count recorded in stream.
func Header(stream []byte) (max, n uint32) {
	return le.Uint32(stream[0:]), le.Uint32(stream[4:])
}

// Decode parses the tagged instructions of a terminated stream, the way the
// kernel reads them.
func Decode(stream []byte) ([]Instruction, error) {
	if len(stream) < HeaderSize {
		return nil, fmt.Errorf("iomap: stream of %d bytes: %w", len(stream), zufs.EPROTO)
	}
	max, n := Header(stream)
	limit := HeaderSize + int(max)*WordSize
	if limit > len(stream) {
		return nil, fmt.Errorf("iomap: capacity %d words exceeds buffer: %w", max, zufs.EPROTO)
	}

	out := make([]Instruction, 0, n)
	off := HeaderSize
	for i := uint32(0); i < n; i++ {
		if off+WordSize > limit {
			return nil, fmt.Errorf("iomap: instruction %d past end of stream: %w", i, zufs.EPROTO)
		}
		w := le.Uint64(stream[off:])
		t := Type(w >> ValBits)
		if int(t) >= len(words) || words[t] == 0 {
			return nil, fmt.Errorf("iomap: instruction %d has unknown type %d: %w", i, t, zufs.EPROTO)
		}
		size := words[t]
		if off+size*WordSize > limit {
			return nil, fmt.Errorf("iomap: %s instruction %d truncated: %w", t, i, zufs.EPROTO)
		}
		in := Instruction{Type: t, Value: w & ValMask}
		for j := 1; j < size; j++ {
			in.Args = append(in.Args, le.Uint64(stream[off+j*WordSize:]))
		}
		out = append(out, in)
		off += size * WordSize
	}
	return out, nil
}

// BlockRun is one decoded page-run word.
type BlockRun struct {
	BN   uint64
	Pool uint8
}

// DecodeBNs parses a stream made up entirely of page-run words.
func DecodeBNs(stream []byte) ([]BlockRun, error) {
	if len(stream) < HeaderSize {
		return nil, fmt.Errorf("iomap: stream of %d bytes: %w", len(stream), zufs.EPROTO)
	}
	max, n := Header(stream)
	if n > max || HeaderSize+int(n)*WordSize > len(stream) {
		return nil, fmt.Errorf("iomap: %d words do not fit the stream: %w", n, zufs.EPROTO)
	}
	out := make([]BlockRun, n)
	for i := range out {
		w := le.Uint64(stream[HeaderSize+i*WordSize:])
		out[i] = BlockRun{BN: w & ValMask, Pool: uint8(w >> ValBits)}
	}
	return out, nil
}

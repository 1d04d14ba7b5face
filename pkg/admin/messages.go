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

package admin

import (
	"github.com/golang/protobuf/proto"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// The messages of admin.proto. Field numbers and wire types live in the
// protobuf struct tags; keep both files in step.

type Filesystem struct {
	ID      uint32 `protobuf:"varint,1,opt,name=id,proto3" json:"id,omitempty"`
	Name    string `protobuf:"bytes,2,opt,name=name,proto3" json:"name,omitempty"`
	Magic   uint32 `protobuf:"varint,3,opt,name=magic,proto3" json:"magic,omitempty"`
	Version uint32 `protobuf:"varint,4,opt,name=version,proto3" json:"version,omitempty"`
}

func (m *Filesystem) Reset()         { *m = Filesystem{} }
func (m *Filesystem) String() string { return proto.CompactTextString(m) }
func (*Filesystem) ProtoMessage()    {}

type Statfs struct {
	Blocks     uint64 `protobuf:"varint,1,opt,name=blocks,proto3" json:"blocks,omitempty"`
	BlocksFree uint64 `protobuf:"varint,2,opt,name=blocks_free,json=blocksFree,proto3" json:"blocks_free,omitempty"`
	Files      uint64 `protobuf:"varint,3,opt,name=files,proto3" json:"files,omitempty"`
	FilesFree  uint64 `protobuf:"varint,4,opt,name=files_free,json=filesFree,proto3" json:"files_free,omitempty"`
}

func (m *Statfs) Reset()         { *m = Statfs{} }
func (m *Statfs) String() string { return proto.CompactTextString(m) }
func (*Statfs) ProtoMessage()    {}

type Mount struct {
	// ID is the mount handle rendered as a proquint.
	ID         string `protobuf:"bytes,1,opt,name=id,proto3" json:"id,omitempty"`
	Handle     uint32 `protobuf:"varint,2,opt,name=handle,proto3" json:"handle,omitempty"`
	KernSbID   uint64 `protobuf:"varint,3,opt,name=kern_sb_id,json=kernSbId,proto3" json:"kern_sb_id,omitempty"`
	Filesystem string `protobuf:"bytes,4,opt,name=filesystem,proto3" json:"filesystem,omitempty"`
	Region     uint32 `protobuf:"varint,5,opt,name=region,proto3" json:"region,omitempty"`
	T1Blocks   uint64 `protobuf:"varint,6,opt,name=t1_blocks,json=t1Blocks,proto3" json:"t1_blocks,omitempty"`
	T2Blocks   uint64 `protobuf:"varint,7,opt,name=t2_blocks,json=t2Blocks,proto3" json:"t2_blocks,omitempty"`
	Inodes     uint32 `protobuf:"varint,8,opt,name=inodes,proto3" json:"inodes,omitempty"`

	// Statfs is nil when the back-end could not report usage.
	Statfs    *Statfs                `protobuf:"bytes,9,opt,name=statfs,proto3" json:"statfs,omitempty"`
	MountedAt *timestamppb.Timestamp `protobuf:"bytes,10,opt,name=mounted_at,json=mountedAt,proto3" json:"mounted_at,omitempty"`
}

func (m *Mount) Reset()         { *m = Mount{} }
func (m *Mount) String() string { return proto.CompactTextString(m) }
func (*Mount) ProtoMessage()    {}

type ListFilesystemsResponse struct {
	Filesystems []*Filesystem `protobuf:"bytes,1,rep,name=filesystems,proto3" json:"filesystems,omitempty"`
}

func (m *ListFilesystemsResponse) Reset()         { *m = ListFilesystemsResponse{} }
func (m *ListFilesystemsResponse) String() string { return proto.CompactTextString(m) }
func (*ListFilesystemsResponse) ProtoMessage()    {}

type ListMountsResponse struct {
	Mounts []*Mount `protobuf:"bytes,1,rep,name=mounts,proto3" json:"mounts,omitempty"`
}

func (m *ListMountsResponse) Reset()         { *m = ListMountsResponse{} }
func (m *ListMountsResponse) String() string { return proto.CompactTextString(m) }
func (*ListMountsResponse) ProtoMessage()    {}

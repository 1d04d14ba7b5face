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

package zufs

// An Operation is the code carried in a worker channel's command envelope.
// Values are part of the kernel protocol and must not be reordered.
type Operation uint32

const (
	OpNull Operation = iota
	OpStatfs
	OpNewInode
	OpFreeInode
	OpEvictInode
	OpLookup
	OpAddDentry
	OpRemoveDentry
	OpRename
	OpReaddir
	OpClone
	OpCopy
	OpRead
	OpPreRead
	OpWrite
	OpGetBlock
	OpPutBlock
	OpMmapClose
	OpGetSymlink
	OpSetattr
	OpSync
	OpFallocate
	OpLlseek
	OpIoctl
	OpXattrGet
	OpXattrSet
	OpXattrList
	OpBreak
	OpMaxOpt
)

var opNames = [...]string{
	OpNull:         "NULL",
	OpStatfs:       "STATFS",
	OpNewInode:     "NEW_INODE",
	OpFreeInode:    "FREE_INODE",
	OpEvictInode:   "EVICT_INODE",
	OpLookup:       "LOOKUP",
	OpAddDentry:    "ADD_DENTRY",
	OpRemoveDentry: "REMOVE_DENTRY",
	OpRename:       "RENAME",
	OpReaddir:      "READDIR",
	OpClone:        "CLONE",
	OpCopy:         "COPY",
	OpRead:         "READ",
	OpPreRead:      "PRE_READ",
	OpWrite:        "WRITE",
	OpGetBlock:     "GET_BLOCK",
	OpPutBlock:     "PUT_BLOCK",
	OpMmapClose:    "MMAP_CLOSE",
	OpGetSymlink:   "GET_SYMLINK",
	OpSetattr:      "SETATTR",
	OpSync:         "SYNC",
	OpFallocate:    "FALLOCATE",
	OpLlseek:       "LLSEEK",
	OpIoctl:        "IOCTL",
	OpXattrGet:     "XATTR_GET",
	OpXattrSet:     "XATTR_SET",
	OpXattrList:    "XATTR_LIST",
	OpBreak:        "BREAK",
	OpMaxOpt:       "MAX_OPT",
}

func (op Operation) String() string {
	if int(op) < len(opNames) {
		return opNames[op]
	}
	return "UNKNOWN"
}

// A MountOp is the code carried on the mount channel.
type MountOp uint32

const (
	MountOpMount MountOp = iota + 1
	MountOpUmount
	MountOpRemount
)

func (op MountOp) String() string {
	switch op {
	case MountOpMount:
		return "MOUNT"
	case MountOpUmount:
		return "UMOUNT"
	case MountOpRemount:
		return "REMOUNT"
	default:
		return "UNKNOWN"
	}
}

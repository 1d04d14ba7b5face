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

import "fmt"

const (
	iocWrite = 1
	iocRead  = 2

	iocNRShift   = 0
	iocTypeShift = 8
	iocSizeShift = 16
	iocDirShift  = 30

	iocType = 'Z'
)

func iowr(nr, size uintptr) uintptr {
	return (iocRead|iocWrite)<<iocDirShift | size<<iocSizeShift | iocType<<iocTypeShift | nr<<iocNRShift
}

var (
	iocRegisterFS = iowr(10, RegisterFSSize)
	iocMount      = iowr(11, MaxEnvelope)
	iocInitThread = iowr(14, initThreadSize)
	iocWaitOpt    = iowr(15, MaxEnvelope)
	iocIomapExec  = iowr(16, MaxEnvelope)
	iocGrabPmem   = iowr(19, grabPmemSize)
)

// RegisterFS is the payload announcing one file system type to the kernel.
//
//	0   name           [16]byte, NUL padded
//	16  magic          u32
//	20  fs id          u32
//	24  version        u32
//	28  user page size u32
type RegisterFS []byte

const (
	RegisterFSSize = 32
	maxFsName      = 16
)

// NewRegisterFS encodes the registration of a file system type.
func NewRegisterFS(name string, magic, fsID, version, pageSize uint32) (RegisterFS, error) {
	if len(name) == 0 || len(name) >= maxFsName {
		return nil, fmt.Errorf("zufs: file system name %q must be 1-%d bytes: %w", name, maxFsName-1, EINVAL)
	}
	r := make(RegisterFS, RegisterFSSize)
	copy(r[:maxFsName], name)
	le.PutUint32(r[16:], magic)
	le.PutUint32(r[20:], fsID)
	le.PutUint32(r[24:], version)
	le.PutUint32(r[28:], pageSize)
	return r, nil
}

func (r RegisterFS) FsID() uint32 { return le.Uint32(r[20:]) }

// grabPmem: pmem id u32 (in), flags u32, t1 blocks u64, t2 blocks u64 (out).
const grabPmemSize = 24

// initThread: channel number u32, pad u32.
const initThreadSize = 8

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
	"fmt"
	"os"

	"github.com/kurafs/zus/pkg/zufs"
	"golang.org/x/sys/unix"
)

// A Binder opens private handles and binds them to persistent-memory
// regions. The kernel binder is ZufRoot; Emulated backs regions with
// anonymous memory.
type Binder interface {
	// OpenTmp opens a new private handle.
	OpenTmp() (*os.File, error)

	// Grab binds f to the region identified by id and returns its geometry.
	Grab(f *os.File, id uint32) (Geometry, error)
}

// ZufRoot binds regions through the kernel's zuf root mount point.
type ZufRoot struct {
	Path string
}

var _ Binder = ZufRoot{}

func (z ZufRoot) OpenTmp() (*os.File, error) {
	conn, err := zufs.OpenTmp(z.Path)
	if err != nil {
		return nil, err
	}
	return conn.File(), nil
}

func (z ZufRoot) Grab(f *os.File, id uint32) (Geometry, error) {
	flags, t1, t2, err := zufs.GrabPmem(f, id)
	if err != nil {
		return Geometry{}, err
	}
	return Geometry{T1Blocks: t1, T2Blocks: t2, Flags: flags}, nil
}

// Emulated backs every region with a memfd sized to Geometry. It needs no
// kernel module and is what tests and development set-ups use.
type Emulated struct {
	Geometry Geometry
}

var _ Binder = Emulated{}

func (e Emulated) OpenTmp() (*os.File, error) {
	fd, err := unix.MemfdCreate("zus-pmem", unix.MFD_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("pmem: memfd: %w", err)
	}
	return os.NewFile(uintptr(fd), "zus-pmem"), nil
}

func (e Emulated) Grab(f *os.File, id uint32) (Geometry, error) {
	if e.Geometry.T1Blocks == 0 {
		return Geometry{}, fmt.Errorf("pmem: emulated region %d has no blocks: %w", id, zufs.EINVAL)
	}
	if err := f.Truncate(int64(e.Geometry.mapLen())); err != nil {
		return Geometry{}, fmt.Errorf("pmem: size emulated region %d: %w", id, err)
	}
	return e.Geometry, nil
}

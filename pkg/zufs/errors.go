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

import (
	"errors"
	"fmt"
	"syscall"
)

// An ErrorNumber is an error with a specific error number.
//
// Back-ends may return an error value that implements ErrorNumber to control
// what errno is reported back to the kernel.
type ErrorNumber interface {
	// Errno returns the error number (errno) for this error.
	Errno() Errno
}

const (
	// ENOMEM is reported when a back-end could not allocate a mount instance.
	ENOMEM = Errno(syscall.ENOMEM)

	// ENOENT is reported for lookups that resolve to nothing, and for inodes
	// that cannot be loaded.
	ENOENT = Errno(syscall.ENOENT)

	// ENOSPC is reported when an IO-map stream has no room left.
	ENOSPC = Errno(syscall.ENOSPC)

	// ENOTSUP is reported for recognized operations the server does not
	// service.
	ENOTSUP = Errno(syscall.ENOTSUP)

	// ENOSYS is reported for unrecognized operation codes in strict mode.
	ENOSYS = Errno(syscall.ENOSYS)

	// ESTALE is reported for handles that refer to a torn-down mount or a
	// freed inode.
	ESTALE = Errno(syscall.ESTALE)

	EINVAL = Errno(syscall.EINVAL)
	EIO    = Errno(syscall.EIO)
	EEXIST = Errno(syscall.EEXIST)
	EPROTO = Errno(syscall.EPROTO)
	ERANGE = Errno(syscall.ERANGE)

	EROFS     = Errno(syscall.EROFS)
	ENOTDIR   = Errno(syscall.ENOTDIR)
	ENOTEMPTY = Errno(syscall.ENOTEMPTY)
)

// DefaultErrno is the errno used when an error does not implement
// ErrorNumber.
const DefaultErrno = EIO

var errnoNames = map[Errno]string{
	ENOMEM:  "ENOMEM",
	ENOENT:  "ENOENT",
	ENOSPC:  "ENOSPC",
	ENOTSUP: "ENOTSUP",
	ENOSYS:  "ENOSYS",
	ESTALE:  "ESTALE",
	EINVAL:  "EINVAL",
	EIO:     "EIO",
	EEXIST:  "EEXIST",
	EPROTO:  "EPROTO",
	ERANGE:  "ERANGE",

	EROFS:     "EROFS",
	ENOTDIR:   "ENOTDIR",
	ENOTEMPTY: "ENOTEMPTY",
}

// Errno implements error and ErrorNumber using a syscall.Errno.
type Errno syscall.Errno

var _ = ErrorNumber(Errno(0))
var _ = error(Errno(0))

func (e Errno) Errno() Errno {
	return e
}

func (e Errno) String() string {
	return syscall.Errno(e).Error()
}

func (e Errno) Error() string {
	return syscall.Errno(e).Error()
}

// ErrnoName returns the short non-numeric identifier for this errno.
// For example, "EIO".
func (e Errno) ErrnoName() string {
	s := errnoNames[e]
	if s == "" {
		s = fmt.Sprint(int(e))
	}
	return s
}

func (e Errno) MarshalText() ([]byte, error) {
	return []byte(e.ErrnoName()), nil
}

// ToErrno maps err onto the errno reported to the kernel. A nil error maps to
// zero; errors that carry no ErrorNumber anywhere in their chain map to
// DefaultErrno.
func ToErrno(err error) Errno {
	if err == nil {
		return 0
	}
	var en ErrorNumber
	if errors.As(err, &en) {
		return en.Errno()
	}
	var se syscall.Errno
	if errors.As(err, &se) {
		return Errno(se)
	}
	return DefaultErrno
}

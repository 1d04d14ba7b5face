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
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

// ErrClosed is returned by operations on a closed Conn.
var ErrClosed = errors.New("zufs: connection closed")

// A Conn is a private handle on the kernel's zuf root. Every worker channel,
// every region and every IO-map submission uses its own Conn.
type Conn struct {
	dev *os.File

	mu     sync.RWMutex
	closed bool
}

// OpenTmp opens an unnamed file under root (the zuf root mount point).
func OpenTmp(root string) (*Conn, error) {
	fd, err := unix.Open(root, unix.O_TMPFILE|unix.O_RDWR|unix.O_EXCL|unix.O_CLOEXEC, 0666)
	if err != nil {
		return nil, fmt.Errorf("zufs: open tmp on %s: %w", root, err)
	}
	return &Conn{dev: os.NewFile(uintptr(fd), root)}, nil
}

// File exposes the underlying handle; callers must not close it.
func (c *Conn) File() *os.File {
	return c.dev
}

// Close closes the handle. An ioctl still blocked on it keeps the
// descriptor alive until the kernel lets it return.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.dev.Close()
}

func (c *Conn) ioctl(req uintptr, buf []byte) error {
	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return ErrClosed
	}
	return Ioctl(c.dev, req, buf)
}

// Ioctl issues req on f with buf as its argument, retrying on EINTR. The
// descriptor is referenced for the duration of the call.
func Ioctl(f *os.File, req uintptr, buf []byte) error {
	rc, err := f.SyscallConn()
	if err != nil {
		return ErrClosed
	}
	var errno unix.Errno
	cerr := rc.Control(func(fd uintptr) {
		for {
			_, _, errno = unix.Syscall(unix.SYS_IOCTL, fd, req, uintptr(unsafe.Pointer(&buf[0])))
			if errno != unix.EINTR {
				return
			}
		}
	})
	if cerr != nil {
		return ErrClosed
	}
	if errno != 0 {
		return errno
	}
	return nil
}

// RegisterFS announces a file system type to the kernel.
func (c *Conn) RegisterFS(r RegisterFS) error {
	if err := c.ioctl(iocRegisterFS, r); err != nil {
		return fmt.Errorf("zufs: register fs %d: %w", r.FsID(), err)
	}
	return nil
}

// GrabPmem binds the handle to a persistent-memory region and returns the
// region geometry reported by the kernel.
func GrabPmem(f *os.File, pmemID uint32) (flags uint32, t1Blocks, t2Blocks uint64, err error) {
	buf := make([]byte, grabPmemSize)
	le.PutUint32(buf[0:], pmemID)
	if err := Ioctl(f, iocGrabPmem, buf); err != nil {
		return 0, 0, 0, fmt.Errorf("zufs: grab pmem %d: %w", pmemID, err)
	}
	return le.Uint32(buf[4:]), le.Uint64(buf[8:]), le.Uint64(buf[16:]), nil
}

// A Chan is one command channel. The kernel reads the reply left in the
// buffer by the previous command and overwrites it with the next one.
type Chan struct {
	conn *Conn
	req  uintptr
	no   uint32
}

// OpenWorkerChan opens worker channel no under root.
func OpenWorkerChan(root string, no uint32) (*Chan, error) {
	conn, err := OpenTmp(root)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, initThreadSize)
	le.PutUint32(buf, no)
	if err := conn.ioctl(iocInitThread, buf); err != nil {
		conn.Close()
		return nil, fmt.Errorf("zufs: init channel %d: %w", no, err)
	}
	return &Chan{conn: conn, req: iocWaitOpt, no: no}, nil
}

// OpenMountChan opens the channel carrying mount, umount and remount.
func OpenMountChan(root string) (*Chan, error) {
	conn, err := OpenTmp(root)
	if err != nil {
		return nil, err
	}
	return &Chan{conn: conn, req: iocMount}, nil
}

// Wait publishes the reply held in buf and blocks until the kernel places
// the next command in it. buf must be MaxEnvelope bytes.
func (ch *Chan) Wait(buf []byte) error {
	if len(buf) < MaxEnvelope {
		return fmt.Errorf("zufs: channel buffer of %d bytes, want %d: %w", len(buf), MaxEnvelope, EINVAL)
	}
	return ch.conn.ioctl(ch.req, buf[:MaxEnvelope])
}

func (ch *Chan) Close() error {
	return ch.conn.Close()
}

func (ch *Chan) String() string {
	if ch.req == iocMount {
		return "mount"
	}
	return fmt.Sprintf("worker-%d", ch.no)
}

// IomapExec is the IO-map submission buffer.
//
//	0   sb id       u64
//	8   sbi handle  u64
//	16  wait        u32
//	20  reserved    u32
//	24  stream ...
type IomapExec []byte

const iomapExecHeader = 24

// NewIomapExec allocates a submission buffer for the given mount.
func NewIomapExec(sbID, sbiHandle uint64) IomapExec {
	x := make(IomapExec, MaxEnvelope)
	le.PutUint64(x[0:], sbID)
	le.PutUint64(x[8:], sbiHandle)
	return x
}

// Stream returns the region of the buffer an IO-map builder encodes into.
func (x IomapExec) Stream() []byte {
	return x[iomapExecHeader:]
}

// IomapExecutor submits IO-map streams living inside an IomapExec buffer.
type IomapExecutor struct {
	conn *Conn
	buf  IomapExec
}

func NewIomapExecutor(conn *Conn, buf IomapExec) *IomapExecutor {
	return &IomapExecutor{conn: conn, buf: buf}
}

// OpenIomapExecutor opens a private handle under root for submitting the
// IO-maps of one mount.
func OpenIomapExecutor(root string, sbID, sbiHandle uint64) (*IomapExecutor, error) {
	conn, err := OpenTmp(root)
	if err != nil {
		return nil, err
	}
	return NewIomapExecutor(conn, NewIomapExec(sbID, sbiHandle)), nil
}

// Stream returns the buffer IO-maps for this executor are built in.
func (e *IomapExecutor) Stream() []byte {
	return e.buf.Stream()
}

func (e *IomapExecutor) Close() error {
	if e.conn == nil {
		return nil
	}
	return e.conn.Close()
}

// Exec hands the stream to the kernel. The stream must be buf.Stream(); wait
// selects whether the kernel completes it before returning.
func (e *IomapExecutor) Exec(ctx context.Context, stream []byte, wait bool) error {
	if len(stream) == 0 || &stream[0] != &e.buf[iomapExecHeader] {
		return fmt.Errorf("zufs: stream does not belong to this submission buffer: %w", EINVAL)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	var w uint32
	if wait {
		w = 1
	}
	le.PutUint32(e.buf[16:], w)
	return e.conn.ioctl(iocIomapExec, e.buf)
}

package doc

import "github.com/kurafs/zus/pkg/cli"

var IomapCmd = &cli.Command{
	UsageLine: "iomap",
	Short:     "IO-map stream format",
	Long: `
An IO-map stream is a sequence of little-endian 64-bit words handed to the
kernel in one IOMAP_EXEC call. It starts with an 8-byte header: the capacity
of the stream in words (u32) and the number of instructions in it (u32).

Every instruction opens with a tagged word, type<<56 | value, followed by
its remaining operands:

    T2_WRITE         bn, dpp            write T1 memory at dpp to T2 block bn
    T2_READ          bn, dpp            read T2 block bn into T1 memory at dpp
    T2_ZUSMEM_WRITE  bn, ptr, len       as T2_WRITE, from a server buffer
    T2_ZUSMEM_READ   bn, ptr, len       as T2_READ, into a server buffer
    UNMAP            index, n, ino      unmap n pages of inode ino at index
    WBINV            -                  write back and invalidate CPU caches
    DISCARD          bn, pages          drop pages starting at T2 block bn

A stream made up only of block numbers carries untagged words instead,
pool<<56 | bn. The two forms do not mix.

A zero word follows the last instruction when there is room for it. A
synchronous submit returns once the kernel has completed the stream; an
asynchronous one reports the result to a callback on another goroutine. An
instruction that does not fit fails with ENOSPC and leaves the stream as it
was; the caller submits what it has and starts a new stream.
`,
}

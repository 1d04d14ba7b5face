package doc

import "github.com/kurafs/zus/pkg/cli"

var ArchitectureCmd = &cli.Command{
	UsageLine: "architecture",
	Short:     "zus system architecture overview",
	Long: `
zus is the user-space half of a split file system. The zuf kernel module
owns the VFS side; file system logic runs here, in a server the kernel talks
to through the zuf root mount point.

Start-up. Every compiled-in file system is registered with the kernel by
name, magic and version over a temporary file opened on the zuf root. The
server then opens one mount channel and a set of worker channels, one per
CPU by default, and parks a goroutine on each.

Channels. A channel is a fixed 4 KiB buffer shared with the kernel. The
server leaves its reply in the buffer and blocks; the kernel wakes it with the
next command in the same buffer. Every command starts with a 16-byte header:
a negated errno, the operation code, and the offset and length of its
payload.

Mounts. The mount channel carries MOUNT, UMOUNT and REMOUNT. A mount
resolves the file system by id, maps the pmem region the kernel granted,
and asks the file system for its root inode. The result is a handle into the
mount table; the kernel echoes it on every later command. A failed mount is
rolled back completely.

Operations. Worker channels carry everything else: inode creation and
lookup, directory entries, reads and writes. Each command names its mount
and inodes by handle, and the dispatcher resolves those before calling the
file system. Unknown operations fail with ENOSYS unless -strict=false.

Persistent memory. Blocks are addressed by number within the region; the
kernel and the server agree on offsets, never on pointers. When a file
system changes its mapping it sends an IO-map stream (see 'iomap') so the
kernel can unmap, discard and write back the affected pages.

Admin. zus-server exposes /metrics and a small RPC service on its admin
address; 'mount-status' reads the latter.
`,
}

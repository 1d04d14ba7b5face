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

package mountstatus

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/kurafs/zus/pkg/admin"
	"github.com/kurafs/zus/pkg/cli"
	"github.com/kurafs/zus/pkg/zus"
)

var MountStatusCmd = &cli.Command{
	Run:       mountStatusCmdRun,
	UsageLine: "mount-status [-addr host:port] [-fs] [mount-id]",
	Short:     "list the mounts of a running zus-server",
	Long: `
mount-status asks a running zus-server for its active mounts and prints one
line per mount: its id, the file system serving it, the pmem region, and the
block and inode usage the file system reports. Given a mount id, as printed
in the MOUNT column (e.g. babab-babad), only that mount is shown. With -fs it
lists the registered file systems instead.
    `,
}

func mountStatusCmdRun(cmd *cli.Command, args []string) error {
	var (
		addr    string
		fs      bool
		timeout time.Duration
	)
	cmd.FlagSet.StringVar(&addr, "addr", "127.0.0.1:10880", "Admin address of the server")
	cmd.FlagSet.BoolVar(&fs, "fs", false, "List registered file systems instead of mounts")
	cmd.FlagSet.DurationVar(&timeout, "timeout", 5*time.Second, "Request timeout")
	if err := cmd.FlagSet.Parse(args); err != nil {
		return cli.CmdParseError(err)
	}
	if cmd.FlagSet.NArg() > 1 {
		return cli.CmdParseError(errors.New("at most one mount id expected"))
	}
	var want *zus.MountID
	if id := cmd.FlagSet.Arg(0); id != "" {
		mid, err := zus.ParseMountID(id)
		if err != nil {
			return cli.CmdParseError(err)
		}
		want = &mid
	}

	c, err := admin.Dial(addr)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if fs {
		fss, err := c.ListFilesystems(ctx)
		if err != nil {
			return err
		}
		return printFilesystems(os.Stdout, fss)
	}
	mounts, err := c.ListMounts(ctx)
	if err != nil {
		return err
	}
	if want != nil {
		mounts, err = selectMount(mounts, *want)
		if err != nil {
			return err
		}
	}
	return printMounts(os.Stdout, mounts)
}

func selectMount(mounts []*admin.Mount, id zus.MountID) ([]*admin.Mount, error) {
	for _, m := range mounts {
		if m.Handle == uint32(id) {
			return []*admin.Mount{m}, nil
		}
	}
	return nil, fmt.Errorf("no mount %s", id)
}

func printFilesystems(w io.Writer, fss []*admin.Filesystem) error {
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tMAGIC\tVERSION")
	for _, fs := range fss {
		fmt.Fprintf(tw, "%d\t%s\t%#x\t%d\n", fs.ID, fs.Name, fs.Magic, fs.Version)
	}
	return tw.Flush()
}

func printMounts(w io.Writer, mounts []*admin.Mount) error {
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "MOUNT\tFS\tSB\tPMEM\tBLOCKS\tFREE\tINODES")
	for _, m := range mounts {
		blocks, free := "-", "-"
		if m.Statfs != nil {
			blocks = fmt.Sprint(m.Statfs.Blocks)
			free = fmt.Sprint(m.Statfs.BlocksFree)
		}
		fmt.Fprintf(tw, "%s\t%s\t%#x\t%d\t%s\t%s\t%d\n",
			m.ID, m.Filesystem, m.KernSbID, m.Region, blocks, free, m.Inodes)
	}
	return tw.Flush()
}

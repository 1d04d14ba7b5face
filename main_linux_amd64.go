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

package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/kurafs/zus/doc"
	"github.com/kurafs/zus/pkg/cli"

	mountstatus "github.com/kurafs/zus/cmd/mount-status"
	zusserver "github.com/kurafs/zus/cmd/zus-server"
)

func main() {
	// We aggregate all the top-level commands (i.e. 'zus <command> ...') as
	// needed.
	var commands cli.Commands

	commands = append(commands, zusserver.ZusServerCmd)
	commands = append(commands, mountstatus.MountStatusCmd)

	// Documentation pseudo-commands.
	commands = append(commands, doc.ArchitectureCmd)
	commands = append(commands, doc.IomapCmd)

	abstract := "zus is the user-space server of the zuf split file system."
	if err := cli.Process(abstract, commands); errors.Is(err, cli.ErrUsage) {
		os.Exit(2)
	} else if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

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

// Package cli allows the construction of structured command-line interfaces with sub-commands and
// help topics. This is very similar to the interface in git where the top-level program name (git)
// is preceded by a qualifier that determines what sub-command to execute
// (git {reflog,commit,cherry-pick}).
//
// Package cli explicitly avoid init time global hooks and has a minimal binary size footprint.
//
// Example, the zus binary:
//
//	var commands cli.Commands
//	commands = append(commands, zusserver.ZusServerCmd)
//	commands = append(commands, mountstatus.MountStatusCmd)
//
//	// Commands without a Run function are listed as help topics.
//	commands = append(commands, doc.ArchitectureCmd)
//	commands = append(commands, doc.IomapCmd)
//
//	abstract := "zus is the user-space server of the zuf split file system."
//	if err := cli.Process(abstract, commands); err != nil {
//		os.Exit(1)
//	}
//
// This generates the following top-level behaviour:
//
//	$ zus {,-h,help}
//	zus is the user-space server of the zuf split file system.
//
//	Usage:
//
//	    zus command [arguments]
//
//	The commands are:
//
//	        zus-server             serve file systems to the zuf kernel module
//	        mount-status           list the mounts of a running zus-server
//
//	Use 'zus help [command]' for more information about a command.
//
//	Additional help topics:
//
//	        architecture           zus system architecture overview
//	        iomap                  IO-map stream format
//
//	Use "zus help [topic]" for more information about that topic.
//
// 'zus help <command>' prints the command's usage line and long description,
// 'zus help <topic>' the topic text, and every command has its own -h switch
// listing its flags.
package cli


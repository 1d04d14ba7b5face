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

package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
)

// Output destinations; tests swap them out.
var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

// Process is the entry point for CLI commands. User provided arguments are captured and processed
// through the defined commands, and the appropriate one (if any), is executed. There is no root
// level command or flags; when <program> is invoked without any arguments, the full usage is
// printed out instead.
//
// Command line mistakes are reported on os.Stderr and returned as ErrUsage. Command execution
// errors are returned as they are. All remaining output is directed at os.Stdout.
//
// The abstract is used in generating structured help messages. Example:
//
//	$ <program> -h
//	<abstract>
//
//	Usage:
//	    ...
func Process(abstract string, commands Commands) error {
	return process(os.Args[0], os.Args[1:], abstract, commands)
}

func process(program string, args []string, abstract string, commands Commands) error {
	for _, cmd := range commands {
		cmd.FlagSet.Init(cmd.Name(), 0)
		cmd.FlagSet.SetOutput(io.Discard)
	}

	if len(args) == 0 {
		printFullUsage(stdout, program, abstract, commands)
		return nil
	}

	command := args[0]
	// '<program> help' and '<program> -h' print the default usage.
	if (command == "help" || command == "-h") && len(args) == 1 {
		printFullUsage(stdout, program, abstract, commands)
		return nil
	}

	if command == "help" {
		if len(args) > 2 {
			fmt.Fprintf(stderr, "Usage: %s help [command]\n\n", program)
			fmt.Fprintln(stderr, "Too many arguments given.")
			return ErrUsage
		}
		cmd := commands.Lookup(args[1])
		if cmd == nil {
			fmt.Fprintf(stderr, "Unknown help topic '%s'\n\n", args[1])
			fmt.Fprintf(stderr, "Run '%s help' for available topics.\n", program)
			return ErrUsage
		}
		printCommandUsage(stdout, program, cmd)
		return nil
	}

	cmd := commands.Lookup(command)
	if cmd == nil {
		fmt.Fprintf(stderr, "Unknown command '%s'\n\n", command)
		fmt.Fprintf(stderr, "Run '%s help' for available commands.\n", program)
		return ErrUsage
	}
	if !cmd.Runnable() {
		fmt.Fprintf(stderr, "'%s' is a help topic, not a command.\n\n", command)
		fmt.Fprintf(stderr, "Run '%s help %s' to read it.\n", program, command)
		return ErrUsage
	}

	err := cmd.Run(cmd, args[1:])
	var perr *cmdParseError
	if !errors.As(err, &perr) {
		return err
	}

	// The flag package reports -h as an error; it is a valid request for the command's flags. The
	// check comes after cmd.Run as the flags may have been defined there.
	if errors.Is(err, flag.ErrHelp) {
		printCommandHelp(stdout, program, cmd)
		return nil
	}
	printCommandParsingError(stderr, program, cmd, err)
	return ErrUsage
}

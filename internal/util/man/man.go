// Copyright 2021 The kpt Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package man renders the markdown documentation of a repository as a man
// page.
package man

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/cpuguy83/go-md2man/v2/md2man"
	"github.com/kptdev/wsrc/internal/errors"
)

// DefaultFile is the manual of a repository when none is named.
const DefaultFile = "README.md"

// Command displays a markdown file of a repository as a man page.
//
// The file format should be the one supported by the
// github.com/cpuguy83/go-md2man/md2man library.
type Command struct {
	// Dir is the repository directory.
	Dir string

	// File is the manual path relative to Dir. DefaultFile when empty.
	File string

	// ManExecCommand is the exec command to run for displaying the man pages.
	ManExecCommand string

	// StdOut is the StdOut value
	StdOut io.Writer
}

// Run runs the command.
func (m Command) Run() error {
	const op errors.Op = "man.Run"
	if _, err := exec.LookPath(m.GetExecCmd()); err != nil {
		return errors.E(op, errors.MissingParam, fmt.Errorf("%s not installed", m.GetExecCmd()))
	}

	p, err := m.manPath()
	if err != nil {
		return errors.E(op, err)
	}
	b, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.E(op, errors.MissingParam, fmt.Errorf("no manual entry in %q", m.Dir))
		}
		return errors.E(op, errors.IO, err)
	}

	// write the formatted manual to a tmp file so it can be displayed
	f, err := os.CreateTemp("", "wsrc-man")
	if err != nil {
		return errors.E(op, errors.IO, err)
	}
	defer os.Remove(f.Name())
	if err := os.WriteFile(f.Name(), md2man.Render(b), 0600); err != nil {
		return errors.E(op, errors.IO, err)
	}

	manCmd := exec.Command(m.GetExecCmd(), f.Name())
	manCmd.Stderr = os.Stderr
	manCmd.Stdin = os.Stdin
	manCmd.Stdout = m.GetStdOut()
	manCmd.Env = os.Environ()
	return manCmd.Run()
}

// manPath returns the absolute path of the manual, which must be inside
// Dir.
func (m Command) manPath() (string, error) {
	file := m.File
	if file == "" {
		file = DefaultFile
	}
	dir, err := filepath.Abs(m.Dir)
	if err != nil {
		return "", errors.E(errors.IO, err)
	}
	p, err := filepath.Abs(filepath.Join(dir, filepath.FromSlash(file)))
	if err != nil {
		return "", errors.E(errors.IO, err)
	}
	if p != dir && !strings.HasPrefix(p, dir+string(filepath.Separator)) {
		return "", errors.E(errors.InvalidParam, fmt.Errorf("invalid manual location %q", file))
	}
	return p, nil
}

// GetExecCmd returns the command that will be executed to display the
// man pages.
func (m Command) GetExecCmd() string {
	if m.ManExecCommand == "" {
		return "man"
	}
	return m.ManExecCommand
}

// GetStdOut returns the io.Writer that will be used as the man stdout
func (m Command) GetStdOut() io.Writer {
	if m.StdOut == nil {
		return os.Stdout
	}
	return m.StdOut
}

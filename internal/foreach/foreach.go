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

// Package foreach runs an arbitrary command in repositories of the
// workspace.
package foreach

import (
	"bytes"
	"context"
	goerrors "errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/google/shlex"
	"github.com/kptdev/wsrc/internal/errors"
	"github.com/kptdev/wsrc/internal/executor"
	"github.com/kptdev/wsrc/internal/types"
	wstrings "github.com/kptdev/wsrc/internal/util/strings"
	"k8s.io/klog/v2"
)

// ParseCommand returns the argv to run: line split with shell quoting
// rules when set, args otherwise.
func ParseCommand(args []string, line string) ([]string, error) {
	const op errors.Op = "foreach.ParseCommand"
	if line != "" {
		if len(args) > 0 {
			return nil, errors.E(op, errors.InvalidParam,
				fmt.Errorf("a command line and arguments cannot be both given"))
		}
		s, err := shlex.Split(line)
		if err != nil {
			return nil, errors.E(op, errors.InvalidParam, fmt.Errorf("command %q must be valid: %w", line, err))
		}
		args = s
	}
	if len(args) == 0 {
		return nil, errors.E(op, errors.MissingParam, "no command given")
	}
	return args, nil
}

// ExecError is returned when the command exits with a non-zero status.
type ExecError struct {
	Argv     []string
	ExitCode int
	Output   string
	Err      error
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("%s exited with status %d", strings.Join(e.Argv, " "), e.ExitCode)
}

func (e *ExecError) Unwrap() error {
	return e.Err
}

// Command is the executor.Task running Argv in each destination.
type Command struct {
	Argv []string
	Root types.WorkspacePath
}

var _ executor.Task[types.Dest] = &Command{}

func (c *Command) DescribeItem(d types.Dest) string {
	return string(d)
}

func (c *Command) Process(ctx context.Context, _, _ int, d types.Dest) executor.Outcome {
	const op errors.Op = "foreach.run"
	out, err := c.Run(ctx, d)
	summary := wstrings.Underline(fmt.Sprintf("$ %s (in %s)", strings.Join(c.Argv, " "), d))
	if out != "" {
		summary += "\n" + strings.TrimRight(out, "\n")
	}
	if err != nil {
		return executor.Outcome{Summary: summary, Err: errors.E(op, d, err)}
	}
	return executor.Outcome{Summary: summary}
}

// Run runs the command in d and returns its combined output.
func (c *Command) Run(ctx context.Context, d types.Dest) (string, error) {
	cmd := exec.CommandContext(ctx, c.Argv[0], c.Argv[1:]...)
	cmd.Dir = d.In(c.Root)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	klog.V(3).Infof("running %v in %s", c.Argv, cmd.Dir)
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if goerrors.As(err, &exitErr) {
			return out.String(), &ExecError{
				Argv:     c.Argv,
				ExitCode: exitErr.ExitCode(),
				Output:   out.String(),
				Err:      exitErr,
			}
		}
		return out.String(), fmt.Errorf("unable to run %s: %w", c.Argv[0], err)
	}
	return out.String(), nil
}

// Copyright 2019 The kpt Authors
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

// Package gitutil runs git for wsrc. Every git invocation in the codebase
// goes through the Runner interface so the engines can be exercised against
// a scripted fake.
package gitutil

import (
	"bytes"
	"context"
	goerrors "errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/kptdev/wsrc/internal/errors"
	"k8s.io/klog/v2"
)

// TestingEnv is the name of the environment variable that, when set to "1",
// allows git to use file:// remotes. Integration tests rely on it.
const TestingEnv = "WSRC_TESTING"

// Runner runs git with args in dir. A command that exits with a non-zero
// status returns a *GitExecError (wrapped in an *errors.Error) together with
// the captured output.
type Runner interface {
	Run(ctx context.Context, dir string, args ...string) (RunResult, error)
}

// RunResult is the captured result of one git invocation.
type RunResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// NewLocalRunner returns a new LocalRunner using the git found on PATH.
func NewLocalRunner() (*LocalRunner, error) {
	const op errors.Op = "gitutil.NewLocalRunner"
	p, err := exec.LookPath("git")
	if err != nil {
		return nil, errors.E(op, errors.Git, &GitExecError{
			Type: GitExecutableNotFound,
			Err:  fmt.Errorf("no 'git' program on path: %w", err),
		})
	}

	return &LocalRunner{
		gitPath: p,
		testing: os.Getenv(TestingEnv) == "1",
	}, nil
}

// LocalRunner runs git commands as subprocesses.
type LocalRunner struct {
	// Path to the git executable.
	gitPath string

	// testing enables file:// protocol for local remotes.
	testing bool
}

// Run runs a git command.
// Omit the 'git' part of the command.
func (g *LocalRunner) Run(ctx context.Context, dir string, args ...string) (RunResult, error) {
	const op errors.Op = "gitutil.run"

	fullArgs := args
	if g.testing {
		fullArgs = append([]string{"-c", "protocol.file.allow=always"}, args...)
	}
	cmd := exec.CommandContext(ctx, g.gitPath, fullArgs...)
	cmd.Dir = dir
	cmd.Env = os.Environ()

	cmdStdout := &bytes.Buffer{}
	cmdStderr := &bytes.Buffer{}
	cmd.Stdout = cmdStdout
	cmd.Stderr = cmdStderr

	err := cmd.Run()
	rr := RunResult{
		Stdout: cmdStdout.String(),
		Stderr: cmdStderr.String(),
	}
	if err != nil {
		rr.ExitCode = -1
		var exitErr *exec.ExitError
		if goerrors.As(err, &exitErr) {
			rr.ExitCode = exitErr.ExitCode()
		}
	}
	klog.V(3).Infof("git %s (in %s): exit %d", strings.Join(args, " "), dir, rr.ExitCode)
	if err != nil {
		return rr, errors.E(op, errors.Git, NewGitExecError(dir, args, rr, err))
	}
	return rr, nil
}

// Repo binds a Runner to one working copy.
type Repo struct {
	runner Runner
	Dir    string
}

// NewRepo returns a Repo that runs git in dir.
func NewRepo(r Runner, dir string) *Repo {
	return &Repo{runner: r, Dir: dir}
}

// Run runs a git command in the repository.
func (r *Repo) Run(ctx context.Context, args ...string) (RunResult, error) {
	return r.runner.Run(ctx, r.Dir, args...)
}

// Output runs a git command and returns its stdout with surrounding
// whitespace removed.
func (r *Repo) Output(ctx context.Context, args ...string) (string, error) {
	rr, err := r.Run(ctx, args...)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(rr.Stdout), nil
}

// Check runs a git command used as a predicate. It returns true when git
// exits with 0, false when git exits with any other status, and an error
// only when git could not be run at all.
func (r *Repo) Check(ctx context.Context, args ...string) (bool, error) {
	_, err := r.Run(ctx, args...)
	if err == nil {
		return true, nil
	}
	if ExitCode(err) > 0 {
		return false, nil
	}
	return false, err
}

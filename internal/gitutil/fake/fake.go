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

// Package fake provides a scripted gitutil.Runner for unit tests.
package fake

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/kptdev/wsrc/internal/errors"
	"github.com/kptdev/wsrc/internal/gitutil"
)

// AnyDir matches a scripted command regardless of the directory it runs in.
const AnyDir = "*"

// Response is the scripted outcome of one git invocation.
type Response struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Call is one recorded invocation.
type Call struct {
	Dir  string
	Args []string
}

func (c Call) String() string {
	return fmt.Sprintf("%s: git %s", c.Dir, strings.Join(c.Args, " "))
}

// Runner implements gitutil.Runner from scripted responses keyed by
// directory and argv. When several responses are scripted for the same
// command they are consumed in order and the last one repeats. Commands that
// were not scripted fail without an exit code and are listed in Unexpected.
type Runner struct {
	mu         sync.Mutex
	responses  map[string][]Response
	calls      []Call
	unexpected []Call
}

// NewRunner returns an empty Runner.
func NewRunner() *Runner {
	return &Runner{responses: make(map[string][]Response)}
}

func key(dir string, args []string) string {
	return dir + "\x00" + strings.Join(args, "\x00")
}

// Set scripts resp for git args run in dir.
func (r *Runner) Set(dir string, args []string, resp Response) *Runner {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := key(dir, args)
	r.responses[k] = append(r.responses[k], resp)
	return r
}

// OK scripts a successful command printing stdout.
func (r *Runner) OK(dir, stdout string, args ...string) *Runner {
	return r.Set(dir, args, Response{Stdout: stdout})
}

// Fail scripts a command exiting with code and printing stderr.
func (r *Runner) Fail(dir string, code int, stderr string, args ...string) *Runner {
	return r.Set(dir, args, Response{ExitCode: code, Stderr: stderr})
}

func (r *Runner) Run(_ context.Context, dir string, args ...string) (gitutil.RunResult, error) {
	const op errors.Op = "gitutil.run"
	r.mu.Lock()
	defer r.mu.Unlock()

	call := Call{Dir: dir, Args: append([]string(nil), args...)}
	r.calls = append(r.calls, call)

	k := key(dir, args)
	queue, found := r.responses[k]
	if !found {
		k = key(AnyDir, args)
		queue, found = r.responses[k]
	}
	if !found {
		r.unexpected = append(r.unexpected, call)
		return gitutil.RunResult{ExitCode: -1}, errors.E(op, errors.Internal,
			fmt.Errorf("unexpected command %s", call))
	}
	resp := queue[0]
	if len(queue) > 1 {
		r.responses[k] = queue[1:]
	}

	rr := gitutil.RunResult{
		ExitCode: resp.ExitCode,
		Stdout:   resp.Stdout,
		Stderr:   resp.Stderr,
	}
	if resp.ExitCode != 0 {
		return rr, errors.E(op, errors.Git, gitutil.NewGitExecError(dir, args, rr,
			fmt.Errorf("exit status %d", resp.ExitCode)))
	}
	return rr, nil
}

// Calls returns every recorded invocation in order.
func (r *Runner) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// Unexpected returns the invocations that had no scripted response.
func (r *Runner) Unexpected() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.unexpected...)
}

// Ran reports whether git args was run in dir.
func (r *Runner) Ran(dir string, args ...string) bool {
	for _, c := range r.Calls() {
		if c.Dir == dir && strings.Join(c.Args, "\x00") == strings.Join(args, "\x00") {
			return true
		}
	}
	return false
}

// RanSubcommand reports whether any git call in dir used the given
// subcommand, e.g. "reset".
func (r *Runner) RanSubcommand(dir, sub string) bool {
	for _, c := range r.Calls() {
		if c.Dir == dir && len(c.Args) > 0 && c.Args[0] == sub {
			return true
		}
	}
	return false
}

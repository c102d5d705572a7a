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

package gitutil

import (
	"regexp"
	"strings"

	"github.com/kptdev/wsrc/internal/errors"
)

type GitExecErrorType int

const (
	Unknown GitExecErrorType = iota
	GitExecutableNotFound
	UnknownReference
	HTTPSAuthRequired
	RepositoryNotFound
	RepositoryUnavailable
	NotARepository
	LocalChangesOverwritten
	NotPossibleToFastForward
)

type GitExecError struct {
	Type     GitExecErrorType
	Args     []string
	Err      error
	ExitCode int
	Dir      string
	Repo     string
	Ref      string
	StdErr   string
	StdOut   string
}

// NewGitExecError builds a GitExecError from a failed run and classifies it
// from the captured stderr.
func NewGitExecError(dir string, args []string, rr RunResult, err error) *GitExecError {
	return &GitExecError{
		Type:     determineErrorType(rr.Stderr),
		Args:     args,
		Err:      err,
		ExitCode: rr.ExitCode,
		Dir:      dir,
		StdErr:   rr.Stderr,
		StdOut:   rr.Stdout,
	}
}

func (e *GitExecError) Error() string {
	b := new(strings.Builder)
	if len(e.Args) > 0 {
		b.WriteString("git ")
		b.WriteString(strings.Join(e.Args, " "))
		b.WriteString(": ")
	}
	b.WriteString(e.Err.Error())
	if stderr := strings.TrimSpace(e.StdErr); stderr != "" {
		b.WriteString(": ")
		b.WriteString(stderr)
	}
	return b.String()
}

func (e *GitExecError) Unwrap() error {
	return e.Err
}

// Command returns the git subcommand that failed.
func (e *GitExecError) Command() string {
	if len(e.Args) == 0 {
		return ""
	}
	return e.Args[0]
}

func AmendGitExecError(err error, f func(e *GitExecError)) {
	var gitExecErr *GitExecError
	if errors.As(err, &gitExecErr) {
		f(gitExecErr)
	}
}

// ExitCode returns the exit status of the git command that produced err.
// It returns 0 for a nil error and -1 when err does not come from a git
// process that ran to completion.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var gitExecErr *GitExecError
	if errors.As(err, &gitExecErr) {
		return gitExecErr.ExitCode
	}
	return -1
}

func determineErrorType(stdErr string) GitExecErrorType {
	switch {
	case strings.Contains(stdErr, "unknown revision or path not in the working tree"),
		strings.Contains(stdErr, "did not match any file(s) known to git"),
		matches(`Remote branch .* not found in upstream`, stdErr):
		return UnknownReference
	case strings.Contains(stdErr, "could not read Username"):
		return HTTPSAuthRequired
	case strings.Contains(stdErr, "Could not resolve host"):
		return RepositoryUnavailable
	case matches(`fatal: repository '.*' not found`, stdErr),
		strings.Contains(stdErr, "does not appear to be a git repository"):
		return RepositoryNotFound
	case strings.Contains(stdErr, "not a git repository"):
		return NotARepository
	case strings.Contains(stdErr, "would be overwritten"):
		return LocalChangesOverwritten
	case strings.Contains(stdErr, "Not possible to fast-forward"):
		return NotPossibleToFastForward
	}
	return Unknown
}

func matches(pattern, s string) bool {
	matched, err := regexp.Match(pattern, []byte(s))
	if err != nil {
		// This should only return an error if the pattern is invalid, so
		// we just panic if that happens.
		panic(err)
	}
	return matched
}

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

package cmdutil

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/kptdev/wsrc/internal/errors"
	"github.com/kptdev/wsrc/internal/executor"
	"github.com/kptdev/wsrc/internal/gitutil"
	"github.com/kptdev/wsrc/internal/groups"
	"github.com/kptdev/wsrc/internal/types"
	"github.com/kptdev/wsrc/internal/workspace"
	"github.com/spf13/cobra"
)

const (
	StackTraceOnErrors = "WSRC_STACK_TRACE_ON_ERRORS"
	JobsEnv            = "WSRC_PARALLEL_JOBS"
	trueString         = "true"
	autoJobs           = "auto"
)

// FixDocs replaces instances of old with new in the docs for c
func FixDocs(old, new string, c *cobra.Command) {
	c.Use = strings.ReplaceAll(c.Use, old, new)
	c.Short = strings.ReplaceAll(c.Short, old, new)
	c.Long = strings.ReplaceAll(c.Long, old, new)
	c.Example = strings.ReplaceAll(c.Example, old, new)
}

func PrintErrorStacktrace() bool {
	e := os.Getenv(StackTraceOnErrors)
	if StackOnError || e == trueString || e == "1" {
		return true
	}
	return false
}

// StackOnError if true, will print a stack trace on failure.
var StackOnError bool

// ParseJobs parses the number of parallel jobs. An empty value or "auto"
// means one job per CPU.
func ParseJobs(s string) (int, error) {
	const op errors.Op = "cmdutil.ParseJobs"
	s = strings.TrimSpace(s)
	if s == "" || s == autoJobs {
		return runtime.NumCPU(), nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, errors.E(op, errors.InvalidParam,
			fmt.Errorf("jobs must be a positive number or %q, got %q", autoJobs, s))
	}
	return n, nil
}

// ExecFlags are the flags configuring how repositories are processed in
// parallel.
type ExecFlags struct {
	Jobs  string
	Quiet bool
}

func (f *ExecFlags) AddFlags(c *cobra.Command) {
	c.Flags().StringVarP(&f.Jobs, "jobs", "j", os.Getenv(JobsEnv),
		fmt.Sprintf("number of repositories processed in parallel, or %q. Defaults to $%s.", autoJobs, JobsEnv))
	c.Flags().BoolVarP(&f.Quiet, "quiet", "q", false, "do not print a progress line per repository.")
}

// Executor returns the executor configured by the flags.
func (f *ExecFlags) Executor() (executor.Executor, error) {
	jobs, err := ParseJobs(f.Jobs)
	if err != nil {
		return executor.Executor{}, err
	}
	return executor.Executor{Jobs: jobs, Quiet: f.Quiet}, nil
}

// GroupFlags select repositories by group.
type GroupFlags struct {
	Groups        []string
	All           bool
	IgnoreMissing bool
}

func (f *GroupFlags) AddFlags(c *cobra.Command) {
	c.Flags().StringSliceVarP(&f.Groups, "group", "g", nil,
		"groups of repositories to work on. Defaults to the groups of the workspace.")
	c.Flags().BoolVarP(&f.All, "all", "a", false, "work on every repository of the manifest.")
	c.Flags().BoolVar(&f.IgnoreMissing, "ignore-missing-groups", false,
		"ignore groups the manifest does not declare instead of failing.")
}

func (f *GroupFlags) Request() groups.Request {
	return groups.Request{Groups: f.Groups, All: f.All, IgnoreMissing: f.IgnoreMissing}
}

// FilterFlags narrow the selected repositories.
type FilterFlags struct {
	Include   string
	Exclude   string
	AllCloned bool
}

func (f *FilterFlags) AddFlags(c *cobra.Command) {
	c.Flags().StringVarP(&f.Include, "include-regex", "i", "",
		"only work on repositories whose destination matches this regex.")
	c.Flags().StringVarP(&f.Exclude, "exclude-regex", "e", "",
		"skip repositories whose destination matches this regex.")
	c.Flags().BoolVar(&f.AllCloned, "all-cloned", false,
		"only work on repositories present in the workspace.")
}

func (f *FilterFlags) Filter() (workspace.Filter, error) {
	return workspace.NewFilter(f.Include, f.Exclude, f.AllCloned)
}

// WorkspaceFlag locates the workspace a command works on.
type WorkspaceFlag struct {
	Path string
}

func (f *WorkspaceFlag) AddFlags(c *cobra.Command) {
	c.Flags().StringVarP(&f.Path, "workspace", "w", "",
		"root of the workspace. Defaults to the closest parent directory holding a "+workspace.Dir+" directory.")
}

// Root returns the workspace root given by the flag, or found from the
// current directory.
func (f *WorkspaceFlag) Root() (types.WorkspacePath, error) {
	if f.Path != "" {
		return workspace.Find(f.Path)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", errors.E(errors.Op("cmdutil.Root"), errors.IO, err)
	}
	return workspace.Find(cwd)
}

// Open opens the workspace. A runner using the local git binary is created
// when runner is nil.
func (f *WorkspaceFlag) Open(runner gitutil.Runner) (*workspace.Workspace, error) {
	root, err := f.Root()
	if err != nil {
		return nil, err
	}
	if runner == nil {
		if runner, err = NewGitRunner(); err != nil {
			return nil, err
		}
	}
	return workspace.Open(root, runner)
}

// NewGitRunner returns a runner using the local git binary.
func NewGitRunner() (gitutil.Runner, error) {
	r, err := gitutil.NewLocalRunner()
	if err != nil {
		return nil, err
	}
	return r, nil
}

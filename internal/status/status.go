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

// Package status reads the live git state of the repositories of a
// workspace. Nothing in this package writes to a repository.
package status

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/kptdev/wsrc/internal/errors"
	"github.com/kptdev/wsrc/internal/executor"
	"github.com/kptdev/wsrc/internal/gitutil"
	"github.com/kptdev/wsrc/internal/types"
	wstrings "github.com/kptdev/wsrc/internal/util/strings"
	"k8s.io/klog/v2"
)

// Snapshot is the state of a working copy at one point in time.
type Snapshot struct {
	// Empty is set for a repository without any commit. The other fields
	// are then zero.
	Empty bool `json:"empty,omitempty"`

	// Branch is the checked-out branch, "" when HEAD is detached.
	Branch string `json:"branch,omitempty"`
	Commit string `json:"sha1,omitempty"`
	// Tag is the tag shown for HEAD, chosen among Tags.
	Tag string `json:"tag,omitempty"`
	// Tags are all the tags pointing at HEAD, sorted.
	Tags []string `json:"tags,omitempty"`

	// Upstream is the remote-tracking branch of Branch, if one is set.
	Upstream string `json:"upstream,omitempty"`
	Ahead    int    `json:"ahead,omitempty"`
	Behind   int    `json:"behind,omitempty"`

	Dirty     bool `json:"dirty,omitempty"`
	Staged    int  `json:"staged,omitempty"`
	Unstaged  int  `json:"unstaged,omitempty"`
	Untracked int  `json:"untracked,omitempty"`
}

// HasTag reports whether tag points at HEAD.
func (s *Snapshot) HasTag(tag string) bool {
	if s.Tag == tag {
		return true
	}
	for _, t := range s.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Detached reports whether HEAD is not on a branch.
func (s *Snapshot) Detached() bool {
	return !s.Empty && s.Branch == ""
}

// HasUpstream reports whether the current branch tracks a remote branch.
func (s *Snapshot) HasUpstream() bool {
	return s.Upstream != ""
}

// Describe renders the snapshot on one line, e.g.
// "master 0123abc on v1.0 ↑1 ↓2 (dirty)".
func (s *Snapshot) Describe() string {
	if s.Empty {
		return "(empty)"
	}
	var parts []string
	if s.Branch != "" {
		parts = append(parts, s.Branch)
	}
	parts = append(parts, shortSHA(s.Commit))
	if s.Tag != "" {
		parts = append(parts, "on "+s.Tag)
	}
	if s.Ahead > 0 {
		parts = append(parts, fmt.Sprintf("↑%d", s.Ahead))
	}
	if s.Behind > 0 {
		parts = append(parts, fmt.Sprintf("↓%d", s.Behind))
	}
	if s.Dirty {
		parts = append(parts, "(dirty)")
	}
	return strings.Join(parts, " ")
}

func shortSHA(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}

// Result is the outcome of collecting one repository: a Snapshot, the
// NotPresent marker, or an error.
type Result struct {
	Dest       types.Dest
	Snapshot   *Snapshot
	NotPresent bool
	Err        error
}

// Collect reads the state of the working copy at dest. A destination that
// does not exist yields NotPresent, never an error.
func Collect(ctx context.Context, runner gitutil.Runner, root types.WorkspacePath, dest types.Dest) Result {
	const op errors.Op = "status.Collect"
	dir := dest.In(root)
	if _, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return Result{Dest: dest, NotPresent: true}
		}
		return Result{Dest: dest, Err: errors.E(op, dest, errors.IO, err)}
	}
	s, err := snapshot(ctx, gitutil.NewRepo(runner, dir))
	if err != nil {
		return Result{Dest: dest, Err: errors.E(op, dest, err)}
	}
	return Result{Dest: dest, Snapshot: s}
}

func snapshot(ctx context.Context, repo *gitutil.Repo) (*Snapshot, error) {
	s := &Snapshot{}

	commit, err := repo.Output(ctx, "rev-parse", "HEAD")
	if err != nil {
		// a freshly initialized repository has no HEAD commit yet
		isRepo, checkErr := repo.Check(ctx, "rev-parse", "--git-dir")
		if checkErr == nil && isRepo {
			s.Empty = true
			return s, nil
		}
		return nil, err
	}
	s.Commit = commit

	branch, err := repo.Output(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return nil, err
	}
	if branch != "HEAD" {
		s.Branch = branch
	}

	tags, err := repo.Output(ctx, "tag", "--points-at", "HEAD")
	if err != nil {
		return nil, err
	}
	if s.Tags = wstrings.NonEmptyLines(tags); len(s.Tags) > 0 {
		sort.Strings(s.Tags)
		s.Tag = pickTag(s.Tags)
	}

	if s.Branch != "" {
		if err := readUpstream(ctx, repo, s); err != nil {
			return nil, err
		}
	}

	rr, err := repo.Run(ctx, "status", "--porcelain")
	if err != nil {
		return nil, err
	}
	readWorktree(rr.Stdout, s)
	return s, nil
}

func readUpstream(ctx context.Context, repo *gitutil.Repo, s *Snapshot) error {
	rr, err := repo.Run(ctx, "rev-parse", "--abbrev-ref", "--symbolic-full-name", "@{upstream}")
	if err != nil {
		if gitutil.ExitCode(err) > 0 {
			// no upstream configured
			return nil
		}
		return err
	}
	s.Upstream = strings.TrimSpace(rr.Stdout)

	counts, err := repo.Output(ctx, "rev-list", "--left-right", "--count", "@{upstream}...HEAD")
	if err != nil {
		if gitutil.ExitCode(err) > 0 {
			// the upstream ref is configured but gone, e.g. pruned
			klog.Warningf("unable to compare %s with %s in %s", s.Branch, s.Upstream, repo.Dir)
			return nil
		}
		return err
	}
	fields := strings.Fields(counts)
	if len(fields) == 2 {
		s.Behind, _ = strconv.Atoi(fields[0])
		s.Ahead, _ = strconv.Atoi(fields[1])
	}
	return nil
}

// readWorktree parses `git status --porcelain` output.
func readWorktree(out string, s *Snapshot) {
	for _, l := range wstrings.NonEmptyLines(out) {
		if len(l) < 2 {
			continue
		}
		s.Dirty = true
		x, y := l[0], l[1]
		if x == '?' && y == '?' {
			s.Untracked++
			continue
		}
		if x != ' ' {
			s.Staged++
		}
		if y != ' ' {
			s.Unstaged++
		}
	}
}

// IsDirty reports whether git status lists any change in the working
// copy, untracked files included.
func IsDirty(ctx context.Context, repo *gitutil.Repo) (bool, error) {
	rr, err := repo.Run(ctx, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	var s Snapshot
	readWorktree(rr.Stdout, &s)
	return s.Dirty, nil
}

// pickTag chooses the tag to show when HEAD carries several: the highest
// semantic version, else the first in lexical order.
func pickTag(tags []string) string {
	if len(tags) == 0 {
		return ""
	}
	var best *semver.Version
	var bestTag string
	for _, t := range tags {
		v, err := semver.NewVersion(t)
		if err != nil {
			if len(tags) > 1 {
				klog.V(4).Infof("tag %q is not a semantic version", t)
			}
			continue
		}
		if best == nil || v.GreaterThan(best) {
			best, bestTag = v, t
		}
	}
	if best != nil {
		return bestTag
	}
	sorted := append([]string(nil), tags...)
	sort.Strings(sorted)
	return sorted[0]
}

// Collector is an executor.Task collecting the status of many
// destinations. Results are stored by input index.
type Collector struct {
	Runner  gitutil.Runner
	Root    types.WorkspacePath
	results []Result
}

var _ executor.Task[types.Dest] = &Collector{}

func (c *Collector) DescribeItem(dest types.Dest) string {
	return string(dest)
}

func (c *Collector) Process(ctx context.Context, index, _ int, dest types.Dest) executor.Outcome {
	r := Collect(ctx, c.Runner, c.Root, dest)
	c.results[index] = r
	return executor.Outcome{Err: r.Err}
}

// CollectAll collects the status of dests with the executor and returns
// the results keyed by destination.
func CollectAll(ctx context.Context, e executor.Executor, runner gitutil.Runner,
	root types.WorkspacePath, dests []types.Dest) map[types.Dest]Result {
	c := &Collector{Runner: runner, Root: root, results: make([]Result, len(dests))}
	executor.Run[types.Dest](ctx, e, dests, c)

	res := make(map[types.Dest]Result, len(dests))
	for _, r := range c.results {
		res[r.Dest] = r
	}
	return res
}

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

// Package syncer brings the working copy of each repository to the state
// declared in the manifest.
//
// Every repository goes through the same states:
//
//	Start -> Fetched -> (RefResolved | BranchChecked) -> Transitioned
//	      -> SubmodulesUpdated -> Done
//
// and ends in Failed as soon as a step fails. A repository pinned to a tag
// or a commit is hard-reset to it; a repository tracking a branch is
// fast-forwarded to its upstream. Nothing is ever merged otherwise.
package syncer

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/kptdev/wsrc/internal/errors"
	"github.com/kptdev/wsrc/internal/executor"
	"github.com/kptdev/wsrc/internal/gitutil"
	"github.com/kptdev/wsrc/internal/manifest"
	"github.com/kptdev/wsrc/internal/status"
	"github.com/kptdev/wsrc/internal/types"
	wstrings "github.com/kptdev/wsrc/internal/util/strings"
	"k8s.io/klog/v2"
)

// State is a step of the synchronization of one repository.
type State int

const (
	Start State = iota
	Fetched
	RefResolved
	BranchChecked
	Transitioned
	SubmodulesUpdated
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case Start:
		return "start"
	case Fetched:
		return "fetched"
	case RefResolved:
		return "ref-resolved"
	case BranchChecked:
		return "branch-checked"
	case Transitioned:
		return "transitioned"
	case SubmodulesUpdated:
		return "submodules-updated"
	case Done:
		return "done"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Options tune the synchronization.
type Options struct {
	// Force passes --force to git fetch, allowing moved tags to be updated.
	Force bool
	// RemoteName restricts fetching to the remote with this name. Every
	// remote is fetched when empty.
	RemoteName string
	// CorrectBranch checks out the declared branch when another one is
	// checked out and the working tree is clean.
	CorrectBranch bool
}

// Report is the outcome of synchronizing one repository.
type Report struct {
	Dest types.Dest
	// State is Done on success, Failed otherwise. FailedAt is the last
	// state reached before the failure.
	State    State
	FailedAt State
	// Summary describes what changed. It is empty for a no-op.
	Summary string
	Err     error
}

// Syncer is the executor.Task synchronizing repositories of a workspace.
type Syncer struct {
	Runner gitutil.Runner
	Root   types.WorkspacePath
	Options
}

var _ executor.Task[manifest.Repo] = &Syncer{}

func (s *Syncer) DescribeItem(r manifest.Repo) string {
	return string(r.Dest)
}

func (s *Syncer) Process(ctx context.Context, _, _ int, r manifest.Repo) executor.Outcome {
	rep := s.Sync(ctx, r)
	return executor.Outcome{Summary: rep.Summary, Err: rep.Err}
}

// Sync runs the state machine for r.
func (s *Syncer) Sync(ctx context.Context, r manifest.Repo) Report {
	const op errors.Op = "syncer.Sync"
	m := &machine{
		opts:  s.Options,
		repo:  r,
		git:   gitutil.NewRepo(s.Runner, r.Dest.In(s.Root)),
		state: Start,
	}
	summary, err := m.run(ctx)
	if err != nil {
		klog.V(4).Infof("sync of %s failed after state %s", r.Dest, m.state)
		return Report{Dest: r.Dest, State: Failed, FailedAt: m.state, Err: errors.E(op, r.Dest, err)}
	}
	return Report{Dest: r.Dest, State: Done, Summary: summary}
}

// machine holds the state of the synchronization of a single repository.
type machine struct {
	opts  Options
	repo  manifest.Repo
	git   *gitutil.Repo
	state State
	lines []string
}

func (m *machine) advance(s State) {
	klog.V(4).Infof("%s: %s -> %s", m.repo.Dest, m.state, s)
	m.state = s
}

func (m *machine) run(ctx context.Context) (string, error) {
	if err := m.fetch(ctx); err != nil {
		return "", err
	}
	m.advance(Fetched)

	if m.repo.HasRef() {
		if err := m.syncToRef(ctx); err != nil {
			return "", err
		}
	} else {
		if err := m.syncToBranch(ctx); err != nil {
			return "", err
		}
	}
	m.advance(Transitioned)

	if !m.repo.IgnoreSubmodules {
		if err := m.updateSubmodules(ctx); err != nil {
			return "", err
		}
	}
	m.advance(SubmodulesUpdated)
	m.advance(Done)
	return strings.Join(m.lines, "\n"), nil
}

func (m *machine) remotes() ([]manifest.Remote, error) {
	const op errors.Op = "syncer.fetch"
	if m.opts.RemoteName == "" {
		return m.repo.Remotes, nil
	}
	rem, found := m.repo.Remote(m.opts.RemoteName)
	if !found {
		return nil, errors.E(op, m.repo.Dest, errors.RemoteNotFound,
			fmt.Errorf("remote %q not found, declared remotes: %s",
				m.opts.RemoteName, wstrings.JoinStringsWithQuotes(m.repo.RemoteNames())))
	}
	return []manifest.Remote{rem}, nil
}

func (m *machine) fetch(ctx context.Context) error {
	const op errors.Op = "syncer.fetch"
	remotes, err := m.remotes()
	if err != nil {
		return err
	}
	for _, rem := range remotes {
		args := []string{"fetch", "--tags", "--prune"}
		if m.opts.Force {
			args = append(args, "--force")
		}
		args = append(args, rem.Name)
		if _, err := m.git.Run(ctx, args...); err != nil {
			gitutil.AmendGitExecError(err, func(e *gitutil.GitExecError) {
				e.Repo = rem.URL
			})
			return errors.E(op, m.repo.Dest, errors.FetchFailed,
				fmt.Errorf("fetch from %q failed: %w", rem.Name, err))
		}
	}
	return nil
}

// syncToRef hard-resets the working copy to the pinned commit. The working
// tree must be clean.
func (m *machine) syncToRef(ctx context.Context) error {
	const op errors.Op = "syncer.resetToRef"
	dirty, err := status.IsDirty(ctx, m.git)
	if err != nil {
		return errors.E(op, m.repo.Dest, err)
	}
	if dirty {
		return errors.E(op, m.repo.Dest, errors.DirtyWorkingTree,
			fmt.Errorf("cannot sync to %s", m.repo.DescribeRef()))
	}

	commit, err := m.resolveTarget(ctx)
	if err != nil {
		return err
	}
	m.advance(RefResolved)

	branch := m.repo.TargetBranch()
	head, err := m.git.Output(ctx, "rev-parse", "HEAD")
	if err != nil {
		return errors.E(op, m.repo.Dest, err)
	}
	if head == commit {
		current, err := m.currentBranch(ctx)
		if err != nil {
			return errors.E(op, m.repo.Dest, err)
		}
		if branch == "" || current == branch {
			klog.V(4).Infof("%s: already at %s", m.repo.Dest, commit)
			return nil
		}
	}

	if branch != "" {
		if err := m.checkoutContainingBranch(ctx, branch, commit); err != nil {
			return err
		}
	}
	if _, err := m.git.Run(ctx, "reset", "--hard", commit); err != nil {
		return errors.E(op, m.repo.Dest, err)
	}

	ref := m.repo.Tag
	if m.repo.Commit != "" {
		ref = m.repo.Commit
	}
	m.lines = append(m.lines, wstrings.Underline(string(m.repo.Dest)), "Reset to "+ref)
	return nil
}

// resolveTarget returns the full commit id the repository is pinned to.
func (m *machine) resolveTarget(ctx context.Context) (string, error) {
	return ResolveTarget(ctx, m.git, m.repo)
}

// ResolveTarget returns the full commit id r is pinned to in the clone
// held by git. The declared commit wins over the declared tag; when both
// are given the tag must point at that commit.
func ResolveTarget(ctx context.Context, git *gitutil.Repo, r manifest.Repo) (string, error) {
	const op errors.Op = "syncer.resolveTarget"
	var commit string
	if r.Commit != "" {
		c, err := git.Output(ctx, "rev-parse", "--verify", "-q", r.Commit+"^{commit}")
		if err != nil || c == "" {
			return "", errors.E(op, r.Dest, errors.RefResolutionFailed,
				fmt.Errorf("commit %s not found", r.Commit))
		}
		commit = c
	}
	if r.Tag == "" {
		return commit, nil
	}

	tagged, err := git.Output(ctx, "rev-list", "-n", "1", "refs/tags/"+r.Tag)
	if err != nil || tagged == "" {
		return "", errors.E(op, r.Dest, errors.RefResolutionFailed,
			fmt.Errorf("cannot determine commit for tag %q", r.Tag))
	}
	if commit != "" && tagged != commit {
		return "", errors.E(op, r.Dest, errors.RefResolutionFailed,
			fmt.Errorf("tag %q points at %s, not at declared commit %s",
				r.Tag, manifest.ShortSHA(tagged), manifest.ShortSHA(commit)))
	}
	klog.V(4).Infof("%s: tag %s resolved to %s", r.Dest, r.Tag, tagged)
	return tagged, nil
}

// candidates lists the refs that may hold branch: the local branch, then
// the remote-tracking branches of the declared remotes in declaration
// order, then those of any other remote in name order.
func (m *machine) candidates(ctx context.Context, branch string) ([]string, error) {
	out, err := m.git.Output(ctx, "remote")
	if err != nil {
		return nil, err
	}
	declared := m.repo.RemoteNames()
	isDeclared := make(map[string]bool)
	for _, n := range declared {
		isDeclared[n] = true
	}
	var others []string
	for _, n := range wstrings.NonEmptyLines(out) {
		n = strings.TrimSpace(n)
		if !isDeclared[n] {
			others = append(others, n)
		}
	}
	sort.Strings(others)

	res := []string{"refs/heads/" + branch}
	for _, n := range append(declared, others...) {
		res = append(res, "refs/remotes/"+n+"/"+branch)
	}
	return res, nil
}

// checkoutContainingBranch checks out branch from the first candidate ref
// whose history contains commit, creating a tracking branch when no local
// branch exists yet.
func (m *machine) checkoutContainingBranch(ctx context.Context, branch, commit string) error {
	const op errors.Op = "syncer.checkoutBranch"
	cands, err := m.candidates(ctx, branch)
	if err != nil {
		return errors.E(op, m.repo.Dest, err)
	}

	var selected string
	localExists := false
	for i, ref := range cands {
		exists, err := m.git.Check(ctx, "rev-parse", "--verify", "-q", ref)
		if err != nil {
			return errors.E(op, m.repo.Dest, err)
		}
		if !exists {
			continue
		}
		if i == 0 {
			localExists = true
		}
		contains, err := m.git.Check(ctx, "merge-base", "--is-ancestor", commit, ref)
		if err != nil {
			return errors.E(op, m.repo.Dest, err)
		}
		if contains {
			selected = ref
			break
		}
	}
	if selected == "" {
		return errors.E(op, m.repo.Dest, errors.RefResolutionFailed,
			fmt.Errorf("branch %q does not contain commit %s", branch, manifest.ShortSHA(commit)))
	}
	klog.V(4).Infof("%s: %s contains %s", m.repo.Dest, selected, commit)

	if !localExists {
		if _, err := m.git.Run(ctx, "checkout", "--track", "-b", branch, selected); err != nil {
			return errors.E(op, m.repo.Dest, err)
		}
		return nil
	}
	current, err := m.currentBranch(ctx)
	if err != nil {
		return errors.E(op, m.repo.Dest, err)
	}
	if current != branch {
		if _, err := m.git.Run(ctx, "checkout", branch); err != nil {
			return errors.E(op, m.repo.Dest, err)
		}
	}
	return nil
}

// currentBranch returns the checked-out branch, "" when HEAD is detached.
func (m *machine) currentBranch(ctx context.Context) (string, error) {
	b, err := m.git.Output(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", err
	}
	if b == "HEAD" {
		return "", nil
	}
	return b, nil
}

// syncToBranch fast-forwards the declared branch to its upstream.
func (m *machine) syncToBranch(ctx context.Context) error {
	if err := m.checkBranch(ctx); err != nil {
		return err
	}
	m.advance(BranchChecked)
	return m.mergeUpstream(ctx)
}

func (m *machine) checkBranch(ctx context.Context) error {
	const op errors.Op = "syncer.checkBranch"
	current, err := m.currentBranch(ctx)
	if err != nil {
		return errors.E(op, m.repo.Dest, err)
	}
	if current == m.repo.Branch {
		return nil
	}
	mismatch := &errors.IncorrectBranchError{Actual: current, Expected: m.repo.Branch}
	if !m.opts.CorrectBranch {
		return errors.E(op, m.repo.Dest, errors.IncorrectBranch, mismatch)
	}

	dirty, err := status.IsDirty(ctx, m.git)
	if err != nil {
		return errors.E(op, m.repo.Dest, err)
	}
	if dirty {
		return errors.E(op, m.repo.Dest, errors.DirtyWorkingTree,
			fmt.Errorf("cannot check out %q: %w", m.repo.Branch, mismatch))
	}
	if _, err := m.git.Run(ctx, "checkout", m.repo.Branch); err != nil {
		return errors.E(op, m.repo.Dest, err)
	}
	return nil
}

func (m *machine) mergeUpstream(ctx context.Context) error {
	const op errors.Op = "syncer.mergeUpstream"
	branch := m.repo.Branch
	hasUpstream, err := m.git.Check(ctx, "rev-parse", "--abbrev-ref", "--symbolic-full-name", "@{upstream}")
	if err != nil {
		return errors.E(op, m.repo.Dest, err)
	}
	if !hasUpstream {
		return errors.E(op, m.repo.Dest, errors.RefResolutionFailed,
			fmt.Errorf("branch %q has no upstream", branch))
	}

	incoming, err := m.git.Output(ctx, "log", "--oneline", "HEAD..@{upstream}")
	if err != nil {
		return errors.E(op, m.repo.Dest, err)
	}
	if incoming == "" {
		klog.V(4).Infof("%s: %s is up to date", m.repo.Dest, branch)
		return nil
	}

	if _, err := m.git.Run(ctx, "merge", "--ff-only", "@{upstream}"); err != nil {
		return errors.E(op, m.repo.Dest, errors.NonFastForwardMerge,
			fmt.Errorf("%q cannot be fast-forwarded to its upstream: %w", branch, err))
	}
	title := fmt.Sprintf("%s on %s", m.repo.Dest, branch)
	m.lines = append(m.lines, wstrings.Underline(title))
	m.lines = append(m.lines, wstrings.NonEmptyLines(incoming)...)
	return nil
}

func (m *machine) updateSubmodules(ctx context.Context) error {
	const op errors.Op = "syncer.updateSubmodules"
	out, err := m.git.Output(ctx, "submodule", "update", "--init", "--recursive")
	if err != nil {
		return errors.E(op, m.repo.Dest, errors.SubmoduleUpdateFailed, err)
	}
	if out != "" {
		m.lines = append(m.lines, out)
	}
	return nil
}

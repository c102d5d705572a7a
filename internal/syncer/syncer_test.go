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

package syncer

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/kptdev/wsrc/internal/errors"
	"github.com/kptdev/wsrc/internal/executor"
	"github.com/kptdev/wsrc/internal/gitutil/fake"
	"github.com/kptdev/wsrc/internal/manifest"
	printerfake "github.com/kptdev/wsrc/internal/printer/fake"
	"github.com/kptdev/wsrc/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	root   = types.WorkspacePath("/ws")
	commit = "0123456789abcdef0123456789abcdef01234567"
	other  = "fedcba9876543210fedcba9876543210fedcba98"
)

var fooDir = filepath.Join("/ws", "foo")

func branchRepo() manifest.Repo {
	return manifest.Repo{
		Dest:    "foo",
		Remotes: []manifest.Remote{{Name: "origin", URL: "git@example.com:org/foo"}},
		Branch:  "master",
	}
}

func refRepo(tag, sha1 string) manifest.Repo {
	r := branchRepo()
	r.IsDefaultBranch = true
	r.Tag = tag
	r.Commit = sha1
	return r
}

// onBranch scripts a fetch and the branch checks of a repository on
// current.
func onBranch(r *fake.Runner, current string) *fake.Runner {
	return r.
		OK(fooDir, "", "fetch", "--tags", "--prune", "origin").
		OK(fooDir, current+"\n", "rev-parse", "--abbrev-ref", "HEAD").
		OK(fooDir, "origin/master\n", "rev-parse", "--abbrev-ref", "--symbolic-full-name", "@{upstream}").
		OK(fooDir, "", "submodule", "update", "--init", "--recursive")
}

func TestSync_branch(t *testing.T) {
	testCases := map[string]struct {
		current       string
		incoming      string
		correctBranch bool
		porcelain     string
		mergeFails    bool

		expectedKind     errors.Kind
		expectedFailedAt State
		expectedSummary  string
		expectMerge      bool
		expectCheckout   bool
	}{
		"up to date": {
			current: "master",
		},
		"fast-forward": {
			current:         "master",
			incoming:        "abc1234 add feature\ndef5678 fix bug\n",
			expectMerge:     true,
			expectedSummary: "foo on master\n-------------\nabc1234 add feature\ndef5678 fix bug",
		},
		"diverged": {
			current:          "master",
			incoming:         "abc1234 upstream change\n",
			mergeFails:       true,
			expectMerge:      true,
			expectedKind:     errors.NonFastForwardMerge,
			expectedFailedAt: BranchChecked,
		},
		"incorrect branch": {
			current:          "fish",
			expectedKind:     errors.IncorrectBranch,
			expectedFailedAt: Fetched,
		},
		"detached": {
			current:          "HEAD",
			expectedKind:     errors.IncorrectBranch,
			expectedFailedAt: Fetched,
		},
		"correct branch when clean": {
			current:        "fish",
			correctBranch:  true,
			expectCheckout: true,
		},
		"correct branch refused when dirty": {
			current:          "fish",
			correctBranch:    true,
			porcelain:        " M README\n",
			expectedKind:     errors.DirtyWorkingTree,
			expectedFailedAt: Fetched,
		},
	}

	for tn, tc := range testCases {
		t.Run(tn, func(t *testing.T) {
			runner := onBranch(fake.NewRunner(), tc.current).
				OK(fooDir, tc.porcelain, "status", "--porcelain").
				OK(fooDir, "", "checkout", "master").
				OK(fooDir, tc.incoming, "log", "--oneline", "HEAD..@{upstream}")
			if tc.mergeFails {
				runner.Fail(fooDir, 128, "fatal: Not possible to fast-forward, aborting.", "merge", "--ff-only", "@{upstream}")
			} else {
				runner.OK(fooDir, "Updating abc..def\nFast-forward\n", "merge", "--ff-only", "@{upstream}")
			}

			s := &Syncer{Runner: runner, Root: root, Options: Options{CorrectBranch: tc.correctBranch}}
			rep := s.Sync(context.Background(), branchRepo())

			assert.Empty(t, runner.Unexpected())
			assert.Equal(t, tc.expectMerge, runner.RanSubcommand(fooDir, "merge"))
			assert.Equal(t, tc.expectCheckout, runner.RanSubcommand(fooDir, "checkout"))
			assert.False(t, runner.RanSubcommand(fooDir, "reset"))
			if tc.expectedKind != errors.Other {
				require.Error(t, rep.Err)
				assert.Equal(t, tc.expectedKind, errors.KindOf(rep.Err))
				assert.Equal(t, Failed, rep.State)
				assert.Equal(t, tc.expectedFailedAt, rep.FailedAt)
				assert.Contains(t, rep.Err.Error(), "repo foo")
				return
			}
			require.NoError(t, rep.Err)
			assert.Equal(t, Done, rep.State)
			assert.Equal(t, tc.expectedSummary, rep.Summary)
		})
	}
}

func TestSync_incorrectBranchError(t *testing.T) {
	runner := onBranch(fake.NewRunner(), "fish")
	s := &Syncer{Runner: runner, Root: root}

	rep := s.Sync(context.Background(), branchRepo())
	var ibe *errors.IncorrectBranchError
	require.True(t, errors.As(rep.Err, &ibe))
	assert.Equal(t, "fish", ibe.Actual)
	assert.Equal(t, "master", ibe.Expected)
	assert.Contains(t, rep.Err.Error(), "syncer.checkBranch")
}

func TestSync_noUpstream(t *testing.T) {
	runner := fake.NewRunner().
		OK(fooDir, "", "fetch", "--tags", "--prune", "origin").
		OK(fooDir, "master", "rev-parse", "--abbrev-ref", "HEAD").
		Fail(fooDir, 128, "fatal: no upstream configured for branch 'master'",
			"rev-parse", "--abbrev-ref", "--symbolic-full-name", "@{upstream}")
	s := &Syncer{Runner: runner, Root: root}

	rep := s.Sync(context.Background(), branchRepo())
	require.Error(t, rep.Err)
	assert.Equal(t, errors.RefResolutionFailed, errors.KindOf(rep.Err))
	assert.False(t, runner.RanSubcommand(fooDir, "merge"))
}

func TestSync_dirtyTreeBlocksRef(t *testing.T) {
	runner := fake.NewRunner().
		OK(fooDir, "", "fetch", "--tags", "--prune", "origin").
		OK(fooDir, " M file.txt\n", "status", "--porcelain")
	s := &Syncer{Runner: runner, Root: root}

	rep := s.Sync(context.Background(), refRepo("v1.0", ""))
	require.Error(t, rep.Err)
	assert.Equal(t, errors.DirtyWorkingTree, errors.KindOf(rep.Err))
	assert.Equal(t, Fetched, rep.FailedAt)
	assert.Empty(t, runner.Unexpected())
	for _, sub := range []string{"reset", "checkout", "merge", "submodule"} {
		assert.False(t, runner.RanSubcommand(fooDir, sub), sub)
	}
}

func TestSync_refIsIdempotent(t *testing.T) {
	runner := fake.NewRunner().
		OK(fooDir, "", "fetch", "--tags", "--prune", "origin").
		OK(fooDir, "", "status", "--porcelain").
		OK(fooDir, commit+"\n", "rev-parse", "--verify", "-q", commit+"^{commit}").
		OK(fooDir, "HEAD\n", "rev-parse", "--abbrev-ref", "HEAD").
		OK(fooDir, "", "reset", "--hard", commit).
		OK(fooDir, "", "submodule", "update", "--init", "--recursive")
	// HEAD moves to the pinned commit after the first reset
	runner.OK(fooDir, other+"\n", "rev-parse", "HEAD").
		OK(fooDir, commit+"\n", "rev-parse", "HEAD")
	s := &Syncer{Runner: runner, Root: root}

	first := s.Sync(context.Background(), refRepo("", commit))
	require.NoError(t, first.Err)
	assert.Equal(t, "foo\n---\nReset to "+commit, first.Summary)

	second := s.Sync(context.Background(), refRepo("", commit))
	require.NoError(t, second.Err)
	assert.Empty(t, second.Summary)

	resets := 0
	for _, c := range runner.Calls() {
		if c.Args[0] == "reset" {
			resets++
		}
	}
	assert.Equal(t, 1, resets)
	assert.Empty(t, runner.Unexpected())
}

func TestSync_resolveTarget(t *testing.T) {
	testCases := map[string]struct {
		tag, sha1     string
		tagPointsAt   string
		commitMissing bool

		expectedReset string
		expectedKind  errors.Kind
	}{
		"tag only": {
			tag:           "v1.0",
			tagPointsAt:   commit,
			expectedReset: commit,
		},
		"commit wins when tag agrees": {
			tag:           "v1.0",
			sha1:          commit[:10],
			tagPointsAt:   commit,
			expectedReset: commit,
		},
		"tag and commit disagree": {
			tag:          "v1.0",
			sha1:         commit,
			tagPointsAt:  other,
			expectedKind: errors.RefResolutionFailed,
		},
		"unknown tag": {
			tag:          "v9.9",
			expectedKind: errors.RefResolutionFailed,
		},
		"unknown commit": {
			sha1:          "deadbeef",
			commitMissing: true,
			expectedKind:  errors.RefResolutionFailed,
		},
	}

	for tn, tc := range testCases {
		t.Run(tn, func(t *testing.T) {
			runner := fake.NewRunner().
				OK(fooDir, "", "fetch", "--tags", "--prune", "origin").
				OK(fooDir, "", "status", "--porcelain").
				OK(fooDir, other+"\n", "rev-parse", "HEAD").
				OK(fooDir, "", "submodule", "update", "--init", "--recursive")
			if tc.sha1 != "" {
				if tc.commitMissing {
					runner.Fail(fooDir, 1, "", "rev-parse", "--verify", "-q", tc.sha1+"^{commit}")
				} else {
					runner.OK(fooDir, commit+"\n", "rev-parse", "--verify", "-q", tc.sha1+"^{commit}")
				}
			}
			if tc.tagPointsAt != "" {
				runner.OK(fooDir, tc.tagPointsAt+"\n", "rev-list", "-n", "1", "refs/tags/"+tc.tag)
			} else if tc.tag != "" {
				runner.Fail(fooDir, 128, "fatal: bad revision", "rev-list", "-n", "1", "refs/tags/"+tc.tag)
			}
			if tc.expectedReset != "" {
				runner.OK(fooDir, "", "reset", "--hard", tc.expectedReset)
			}

			s := &Syncer{Runner: runner, Root: root}
			rep := s.Sync(context.Background(), refRepo(tc.tag, tc.sha1))

			assert.Empty(t, runner.Unexpected())
			if tc.expectedKind != errors.Other {
				require.Error(t, rep.Err)
				assert.Equal(t, tc.expectedKind, errors.KindOf(rep.Err))
				assert.Contains(t, rep.Err.Error(), "syncer.resolveTarget")
				assert.False(t, runner.RanSubcommand(fooDir, "reset"))
				return
			}
			require.NoError(t, rep.Err)
			assert.True(t, runner.Ran(fooDir, "reset", "--hard", tc.expectedReset))
		})
	}
}

func TestSync_reconcileBranch(t *testing.T) {
	repo := refRepo("", commit)
	repo.ReconcileBranch = "devel"
	repo.Remotes = append(repo.Remotes, manifest.Remote{Name: "upstream", URL: "git@example.com:up/foo"})

	base := func() *fake.Runner {
		return fake.NewRunner().
			OK(fooDir, "", "fetch", "--tags", "--prune", "origin").
			OK(fooDir, "", "fetch", "--tags", "--prune", "upstream").
			OK(fooDir, "", "status", "--porcelain").
			OK(fooDir, commit+"\n", "rev-parse", "--verify", "-q", commit+"^{commit}").
			OK(fooDir, other+"\n", "rev-parse", "HEAD").
			OK(fooDir, "backup\norigin\nupstream\n", "remote").
			OK(fooDir, "", "submodule", "update", "--init", "--recursive").
			OK(fooDir, "", "reset", "--hard", commit)
	}

	t.Run("remote branch found after local", func(t *testing.T) {
		runner := base().
			Fail(fooDir, 1, "", "rev-parse", "--verify", "-q", "refs/heads/devel").
			OK(fooDir, "", "rev-parse", "--verify", "-q", "refs/remotes/origin/devel").
			Fail(fooDir, 1, "", "merge-base", "--is-ancestor", commit, "refs/remotes/origin/devel").
			OK(fooDir, "", "rev-parse", "--verify", "-q", "refs/remotes/upstream/devel").
			OK(fooDir, "", "merge-base", "--is-ancestor", commit, "refs/remotes/upstream/devel").
			OK(fooDir, "", "checkout", "--track", "-b", "devel", "refs/remotes/upstream/devel")
		s := &Syncer{Runner: runner, Root: root}

		rep := s.Sync(context.Background(), repo)
		require.NoError(t, rep.Err)
		assert.Empty(t, runner.Unexpected())
		// backup is not declared and comes last; it is never reached
		assert.False(t, runner.Ran(fooDir, "rev-parse", "--verify", "-q", "refs/remotes/backup/devel"))
		assert.True(t, runner.Ran(fooDir, "reset", "--hard", commit))
	})

	t.Run("local branch wins", func(t *testing.T) {
		runner := base().
			OK(fooDir, "", "rev-parse", "--verify", "-q", "refs/heads/devel").
			OK(fooDir, "", "merge-base", "--is-ancestor", commit, "refs/heads/devel").
			OK(fooDir, "master\n", "rev-parse", "--abbrev-ref", "HEAD").
			OK(fooDir, "", "checkout", "devel")
		s := &Syncer{Runner: runner, Root: root}

		rep := s.Sync(context.Background(), repo)
		require.NoError(t, rep.Err)
		assert.Empty(t, runner.Unexpected())
		assert.False(t, runner.Ran(fooDir, "rev-parse", "--verify", "-q", "refs/remotes/origin/devel"))
		assert.True(t, runner.Ran(fooDir, "checkout", "devel"))
	})

	t.Run("no branch contains the commit", func(t *testing.T) {
		runner := base().
			Fail(fooDir, 1, "", "rev-parse", "--verify", "-q", "refs/heads/devel").
			Fail(fooDir, 1, "", "rev-parse", "--verify", "-q", "refs/remotes/origin/devel").
			Fail(fooDir, 1, "", "rev-parse", "--verify", "-q", "refs/remotes/upstream/devel").
			OK(fooDir, "", "rev-parse", "--verify", "-q", "refs/remotes/backup/devel").
			Fail(fooDir, 1, "", "merge-base", "--is-ancestor", commit, "refs/remotes/backup/devel")
		s := &Syncer{Runner: runner, Root: root}

		rep := s.Sync(context.Background(), repo)
		require.Error(t, rep.Err)
		assert.Equal(t, errors.RefResolutionFailed, errors.KindOf(rep.Err))
		assert.Contains(t, rep.Err.Error(), `branch "devel" does not contain commit 0123456`)
		assert.Equal(t, RefResolved, rep.FailedAt)
		assert.False(t, runner.RanSubcommand(fooDir, "reset"))
		assert.False(t, runner.RanSubcommand(fooDir, "checkout"))
	})
}

func TestSync_fetch(t *testing.T) {
	repo := branchRepo()
	repo.Remotes = append(repo.Remotes, manifest.Remote{Name: "upstream", URL: "git@example.com:up/foo"})

	t.Run("named remote only", func(t *testing.T) {
		runner := fake.NewRunner().
			OK(fooDir, "", "fetch", "--tags", "--prune", "--force", "upstream").
			OK(fooDir, "master", "rev-parse", "--abbrev-ref", "HEAD").
			OK(fooDir, "origin/master", "rev-parse", "--abbrev-ref", "--symbolic-full-name", "@{upstream}").
			OK(fooDir, "", "log", "--oneline", "HEAD..@{upstream}").
			OK(fooDir, "", "submodule", "update", "--init", "--recursive")
		s := &Syncer{Runner: runner, Root: root, Options: Options{RemoteName: "upstream", Force: true}}

		rep := s.Sync(context.Background(), repo)
		require.NoError(t, rep.Err)
		assert.Empty(t, runner.Unexpected())
	})

	t.Run("missing named remote", func(t *testing.T) {
		runner := fake.NewRunner()
		s := &Syncer{Runner: runner, Root: root, Options: Options{RemoteName: "nope"}}

		rep := s.Sync(context.Background(), repo)
		require.Error(t, rep.Err)
		assert.Equal(t, errors.RemoteNotFound, errors.KindOf(rep.Err))
		assert.Equal(t, Start, rep.FailedAt)
		assert.Empty(t, runner.Calls())
	})

	t.Run("fetch failure", func(t *testing.T) {
		runner := fake.NewRunner().
			OK(fooDir, "", "fetch", "--tags", "--prune", "origin").
			Fail(fooDir, 128, "fatal: Could not read from remote repository.", "fetch", "--tags", "--prune", "upstream")
		s := &Syncer{Runner: runner, Root: root}

		rep := s.Sync(context.Background(), repo)
		require.Error(t, rep.Err)
		assert.Equal(t, errors.FetchFailed, errors.KindOf(rep.Err))
		assert.Contains(t, rep.Err.Error(), `fetch from "upstream" failed`)
		assert.Len(t, runner.Calls(), 2)
	})
}

func TestSync_submodules(t *testing.T) {
	t.Run("failure", func(t *testing.T) {
		runner := fake.NewRunner().
			OK(fooDir, "", "fetch", "--tags", "--prune", "origin").
			OK(fooDir, "master", "rev-parse", "--abbrev-ref", "HEAD").
			OK(fooDir, "origin/master", "rev-parse", "--abbrev-ref", "--symbolic-full-name", "@{upstream}").
			OK(fooDir, "", "log", "--oneline", "HEAD..@{upstream}").
			Fail(fooDir, 1, "fatal: clone of 'sub' failed", "submodule", "update", "--init", "--recursive")
		s := &Syncer{Runner: runner, Root: root}

		rep := s.Sync(context.Background(), branchRepo())
		require.Error(t, rep.Err)
		assert.Equal(t, errors.SubmoduleUpdateFailed, errors.KindOf(rep.Err))
		assert.Equal(t, Transitioned, rep.FailedAt)
	})

	t.Run("ignored", func(t *testing.T) {
		runner := fake.NewRunner().
			OK(fooDir, "", "fetch", "--tags", "--prune", "origin").
			OK(fooDir, "master", "rev-parse", "--abbrev-ref", "HEAD").
			OK(fooDir, "origin/master", "rev-parse", "--abbrev-ref", "--symbolic-full-name", "@{upstream}").
			OK(fooDir, "", "log", "--oneline", "HEAD..@{upstream}")
		repo := branchRepo()
		repo.IgnoreSubmodules = true
		s := &Syncer{Runner: runner, Root: root}

		rep := s.Sync(context.Background(), repo)
		require.NoError(t, rep.Err)
		assert.False(t, runner.RanSubcommand(fooDir, "submodule"))
	})
}

func TestSyncer_failuresAreIsolated(t *testing.T) {
	barDir := filepath.Join("/ws", "bar")
	runner := onBranch(fake.NewRunner(), "master").
		OK(fooDir, "", "log", "--oneline", "HEAD..@{upstream}").
		Fail(barDir, 128, "fatal: unable to access", "fetch", "--tags", "--prune", "origin")
	bar := branchRepo()
	bar.Dest = "bar"

	ctx := printerfake.CtxWithNilPrinter()
	c := executor.Run[manifest.Repo](ctx, executor.Executor{Jobs: 2}, []manifest.Repo{branchRepo(), bar},
		&Syncer{Runner: runner, Root: root})

	require.Len(t, c.Results, 2)
	assert.NoError(t, c.Results[0].Err)
	assert.Error(t, c.Results[1].Err)
	err := c.Err()
	require.Error(t, err)
	assert.Equal(t, `1 of 2 repos failed: "bar"`, err.Error())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "ref-resolved", RefResolved.String())
	assert.Equal(t, "submodules-updated", SubmodulesUpdated.String())
	assert.Equal(t, "State(42)", State(42).String())
}

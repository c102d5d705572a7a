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

package cmdsync_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kptdev/wsrc/internal/cmdsync"
	"github.com/kptdev/wsrc/internal/errors"
	"github.com/kptdev/wsrc/internal/gitutil/fake"
	printerfake "github.com/kptdev/wsrc/internal/printer/fake"
	"github.com/kptdev/wsrc/internal/workspace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const manifestYAML = `
repos:
  - dest: foo
    url: git@example.com:org/foo
  - dest: libs/bar
    url: git@example.com:org/bar
    branch: devel
  - dest: baz
    url: git@example.com:org/baz
groups:
  core:
    repos: [foo, libs/bar]
  extra:
    repos: [baz]
`

// newWorkspace writes a workspace with foo cloned and libs/bar missing.
func newWorkspace(t *testing.T) string {
	root := t.TempDir()
	meta := filepath.Join(root, workspace.Dir)
	require.NoError(t, os.MkdirAll(filepath.Join(meta, "manifest"), 0700))
	require.NoError(t, os.WriteFile(filepath.Join(meta, "manifest", "manifest.yml"), []byte(manifestYAML), 0600))
	cfg := workspace.NewConfig("git@example.com:org/manifest", "master")
	cfg.RepoGroups = []string{"core"}
	require.NoError(t, cfg.Save(filepath.Join(meta, workspace.ConfigFileName)))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "foo", ".git"), 0700))
	return root
}

// upToDate scripts a clean sync of the master branch of the repository in
// dir.
func upToDate(r *fake.Runner, dir string, fetch ...string) *fake.Runner {
	return upToDateOn(r, dir, "master", fetch...)
}

func upToDateOn(r *fake.Runner, dir, branch string, fetch ...string) *fake.Runner {
	return r.
		OK(dir, "", fetch...).
		OK(dir, branch+"\n", "rev-parse", "--abbrev-ref", "HEAD").
		OK(dir, "origin/"+branch+"\n", "rev-parse", "--abbrev-ref", "--symbolic-full-name", "@{upstream}").
		OK(dir, "", "log", "--oneline", "HEAD..@{upstream}").
		OK(dir, "", "submodule", "update", "--init", "--recursive")
}

func cloneBar(r *fake.Runner, root string) *fake.Runner {
	return r.OK(filepath.Join(root, "libs"), "", "clone", "--origin", "origin", "git@example.com:org/bar",
		"--branch", "devel", "--recurse-submodules", "bar")
}

func TestCmd(t *testing.T) {
	root := newWorkspace(t)
	foo := filepath.Join(root, "foo")
	bar := filepath.Join(root, "libs", "bar")
	manifestDir := filepath.Join(root, workspace.Dir, "manifest")
	git := upToDate(fake.NewRunner(), foo, "fetch", "--tags", "--prune", "origin")
	git = upToDateOn(cloneBar(git, root), bar, "devel", "fetch", "--tags", "--prune", "origin").
		OK(manifestDir, "", "remote", "set-url", "origin", "git@example.com:org/manifest").
		OK(manifestDir, "", "fetch", "--prune", "origin").
		OK(manifestDir, "", "checkout", "-B", "master").
		OK(manifestDir, "", "branch", "--set-upstream-to", "origin/master", "master").
		OK(manifestDir, "", "reset", "--hard", "origin/master")

	ctx, rp := printerfake.CtxWithRecordingPrinter()
	r := cmdsync.NewRunner(ctx, "wsrc")
	r.GitRunner = git
	r.Command.SetArgs([]string{"-w", root, "-j", "2"})
	require.NoError(t, r.Command.Execute())

	assert.Empty(t, git.Unexpected())
	assert.True(t, git.Ran(manifestDir, "reset", "--hard", "origin/master"))
	assert.True(t, git.Ran(foo, "submodule", "update", "--init", "--recursive"))
	assert.False(t, git.RanSubcommand(foo, "merge"))
	assert.True(t, git.Ran(bar, "submodule", "update", "--init", "--recursive"))
	assert.Contains(t, rp.Output(), "libs/bar cloned from git@example.com:org/bar (on devel)\n")
}

func TestCmd_groupsAndRemote(t *testing.T) {
	root := newWorkspace(t)
	foo := filepath.Join(root, "foo")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "baz", ".git"), 0700))
	git := upToDate(fake.NewRunner(), filepath.Join(root, "baz"), "fetch", "--tags", "--prune", "origin")

	r := cmdsync.NewRunner(printerfake.CtxWithNilPrinter(), "wsrc")
	r.GitRunner = git
	r.Command.SetArgs([]string{"-w", root, "--no-update-manifest", "-g", "extra,nope",
		"--ignore-missing-groups", "-r", "origin"})
	require.NoError(t, r.Command.Execute())

	assert.Empty(t, git.Unexpected())
	assert.True(t, git.Ran(filepath.Join(root, "baz"), "fetch", "--tags", "--prune", "origin"))
	assert.False(t, git.RanSubcommand(foo, "fetch"))

	cfg, err := workspace.LoadConfig(filepath.Join(root, workspace.Dir, workspace.ConfigFileName))
	require.NoError(t, err)
	assert.Equal(t, []string{"extra"}, cfg.RepoGroups)
	assert.Equal(t, "origin", cfg.SingularRemote)
}

func TestCmd_unknownGroup(t *testing.T) {
	root := newWorkspace(t)
	git := fake.NewRunner()

	r := cmdsync.NewRunner(printerfake.CtxWithNilPrinter(), "wsrc")
	r.GitRunner = git
	r.Command.SilenceUsage = true
	r.Command.SetArgs([]string{"-w", root, "--no-update-manifest", "-g", "nope"})
	err := r.Command.Execute()

	require.Error(t, err)
	assert.Equal(t, errors.GroupNotFound, errors.KindOf(err))
	assert.Empty(t, git.Calls())
}

func TestCmd_failures(t *testing.T) {
	root := newWorkspace(t)
	foo := filepath.Join(root, "foo")
	git := fake.NewRunner().
		OK(foo, "", "fetch", "--tags", "--prune", "origin").
		OK(foo, "fish\n", "rev-parse", "--abbrev-ref", "HEAD")
	git = upToDateOn(cloneBar(git, root), filepath.Join(root, "libs", "bar"), "devel",
		"fetch", "--tags", "--prune", "origin")

	ctx, rp := printerfake.CtxWithRecordingPrinter()
	r := cmdsync.NewRunner(ctx, "wsrc")
	r.GitRunner = git
	r.Command.SilenceUsage = true
	r.Command.SetArgs([]string{"-w", root, "--no-update-manifest"})
	err := r.Command.Execute()

	require.Error(t, err)
	assert.Equal(t, `1 of 2 repos failed: "foo"`, err.Error())
	assert.False(t, git.RanSubcommand(foo, "checkout"))
	out := strings.Join(rp.Output(), "")
	assert.Contains(t, out, "repo foo")
	assert.Contains(t, out, `current branch: "fish" does not match expected branch: "master"`)
}

func TestCmd_clonedRepoOnWrongBranch(t *testing.T) {
	root := newWorkspace(t)
	bar := filepath.Join(root, "libs", "bar")
	git := upToDate(fake.NewRunner(), filepath.Join(root, "foo"), "fetch", "--tags", "--prune", "origin")
	git = cloneBar(git, root).
		OK(bar, "", "fetch", "--tags", "--prune", "origin").
		OK(bar, "master\n", "rev-parse", "--abbrev-ref", "HEAD")

	r := cmdsync.NewRunner(printerfake.CtxWithNilPrinter(), "wsrc")
	r.GitRunner = git
	r.Command.SilenceUsage = true
	r.Command.SetArgs([]string{"-w", root, "--no-update-manifest"})
	err := r.Command.Execute()

	require.Error(t, err)
	assert.Equal(t, `1 of 2 repos failed: "libs/bar"`, err.Error())
	assert.Empty(t, git.Unexpected())
}

func TestCmd_staleWorkspaceGroup(t *testing.T) {
	testCases := map[string]struct {
		args           []string
		expectedGroups []string
	}{
		"config updated": {
			expectedGroups: []string{"core"},
		},
		"config kept": {
			args:           []string{"--no-update-config"},
			expectedGroups: []string{"gone", "core"},
		},
	}

	for tn, tc := range testCases {
		t.Run(tn, func(t *testing.T) {
			root := newWorkspace(t)
			cfgPath := filepath.Join(root, workspace.Dir, workspace.ConfigFileName)
			cfg, err := workspace.LoadConfig(cfgPath)
			require.NoError(t, err)
			cfg.RepoGroups = []string{"gone", "core"}
			require.NoError(t, cfg.Save(cfgPath))

			git := upToDate(fake.NewRunner(), filepath.Join(root, "foo"), "fetch", "--tags", "--prune", "origin")

			r := cmdsync.NewRunner(printerfake.CtxWithNilPrinter(), "wsrc")
			r.GitRunner = git
			r.Command.SetArgs(append([]string{"-w", root, "--no-update-manifest", "--no-clone"}, tc.args...))
			require.NoError(t, r.Command.Execute())

			assert.Empty(t, git.Unexpected())
			cfg, err = workspace.LoadConfig(cfgPath)
			require.NoError(t, err)
			assert.Equal(t, tc.expectedGroups, cfg.RepoGroups)
		})
	}
}

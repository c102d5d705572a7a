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

package cmdinit_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/kptdev/wsrc/internal/cmdinit"
	"github.com/kptdev/wsrc/internal/errors"
	"github.com/kptdev/wsrc/internal/gitutil/fake"
	printerfake "github.com/kptdev/wsrc/internal/printer/fake"
	"github.com/kptdev/wsrc/internal/workspace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const manifestURL = "git@example.com:org/manifest"

const manifestYAML = `
repos:
  - dest: foo
    url: git@example.com:org/foo
  - dest: libs/bar
    url: git@example.com:org/bar
    branch: devel
groups:
  core:
    repos: [foo]
  tools:
    repos: [libs/bar]
`

// seedManifest makes the manifest clone already present so that
// initializing the workspace does not clone it.
func seedManifest(t *testing.T, root string) {
	dir := filepath.Join(root, workspace.Dir, "manifest")
	require.NoError(t, os.MkdirAll(dir, 0700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "manifest.yml"), []byte(manifestYAML), 0600))
}

func cloneFoo(r *fake.Runner, root string) *fake.Runner {
	return r.OK(root, "", "clone", "--origin", "origin", "git@example.com:org/foo",
		"--branch", "master", "--recurse-submodules", "foo")
}

func cloneBar(r *fake.Runner, root string) *fake.Runner {
	return r.OK(filepath.Join(root, "libs"), "", "clone", "--origin", "origin", "git@example.com:org/bar",
		"--branch", "devel", "--recurse-submodules", "bar")
}

func TestCmd_groups(t *testing.T) {
	root := t.TempDir()
	seedManifest(t, root)
	git := cloneFoo(fake.NewRunner(), root)

	ctx, rp := printerfake.CtxWithRecordingPrinter()
	r := cmdinit.NewRunner(ctx, "wsrc")
	r.GitRunner = git
	r.Command.SetArgs([]string{manifestURL, root, "-g", "core", "-b", "main"})
	require.NoError(t, r.Command.Execute())

	assert.Empty(t, git.Unexpected())
	assert.Len(t, git.Calls(), 1)
	assert.Contains(t, rp.Output(), "foo cloned from git@example.com:org/foo (on master)\n")

	cfg, err := workspace.LoadConfig(filepath.Join(root, workspace.Dir, workspace.ConfigFileName))
	require.NoError(t, err)
	assert.Equal(t, &workspace.Config{
		ManifestURL:     manifestURL,
		ManifestBranch:  "main",
		ManifestBranch0: "main",
		RepoGroups:      []string{"core"},
	}, cfg)
}

func TestCmd_defaults(t *testing.T) {
	root := t.TempDir()
	seedManifest(t, root)
	git := cloneBar(cloneFoo(fake.NewRunner(), root), root)

	r := cmdinit.NewRunner(printerfake.CtxWithNilPrinter(), "wsrc")
	r.GitRunner = git
	r.Command.SetArgs([]string{manifestURL, root, "-j", "1"})
	require.NoError(t, r.Command.Execute())

	assert.Empty(t, git.Unexpected())
	assert.Len(t, git.Calls(), 2)
	assert.DirExists(t, filepath.Join(root, "libs"))
}

func TestCmd_noClone(t *testing.T) {
	root := t.TempDir()
	seedManifest(t, root)
	git := fake.NewRunner()

	r := cmdinit.NewRunner(printerfake.CtxWithNilPrinter(), "wsrc")
	r.GitRunner = git
	r.Command.SetArgs([]string{manifestURL, root, "--no-clone", "--all"})
	require.NoError(t, r.Command.Execute())

	assert.Empty(t, git.Calls())
	cfg, err := workspace.LoadConfig(filepath.Join(root, workspace.Dir, workspace.ConfigFileName))
	require.NoError(t, err)
	assert.True(t, cfg.CloneAllRepos)
}

func TestCmd_unknownGroup(t *testing.T) {
	root := t.TempDir()
	seedManifest(t, root)

	r := cmdinit.NewRunner(printerfake.CtxWithNilPrinter(), "wsrc")
	r.GitRunner = fake.NewRunner()
	r.Command.SetArgs([]string{manifestURL, root, "-g", "nope"})
	r.Command.SilenceUsage = true
	err := r.Command.Execute()
	require.Error(t, err)
	assert.Equal(t, errors.GroupNotFound, errors.KindOf(err))
}

func TestCmd_cloneFailure(t *testing.T) {
	root := t.TempDir()
	seedManifest(t, root)
	git := fake.NewRunner().Fail(root, 128, "fatal: repository 'git@example.com:org/foo' not found",
		"clone", "--origin", "origin", "git@example.com:org/foo", "--branch", "master", "--recurse-submodules", "foo")

	r := cmdinit.NewRunner(printerfake.CtxWithNilPrinter(), "wsrc")
	r.GitRunner = git
	r.Command.SetArgs([]string{manifestURL, root, "-g", "core"})
	r.Command.SilenceUsage = true
	err := r.Command.Execute()
	require.Error(t, err)
	assert.Equal(t, `1 of 1 repos failed: "foo"`, err.Error())
}

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

package cmdstatus_test

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/kptdev/wsrc/internal/cmdstatus"
	"github.com/kptdev/wsrc/internal/errors"
	"github.com/kptdev/wsrc/internal/gitutil/fake"
	printerfake "github.com/kptdev/wsrc/internal/printer/fake"
	"github.com/kptdev/wsrc/internal/workspace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sha = "0123456789abcdef0123456789abcdef01234567"

const manifestYAML = `
repos:
  - dest: foo
    url: git@example.com:org/foo
  - dest: bar
    url: git@example.com:org/bar
    branch: devel
groups:
  core:
    repos: [foo]
`

// newWorkspace writes a workspace where foo is cloned on master one commit
// ahead of its upstream, bar is not cloned and old is a leftover on fish.
func newWorkspace(t *testing.T, cfg *workspace.Config) (string, *fake.Runner) {
	root := t.TempDir()
	meta := filepath.Join(root, workspace.Dir)
	require.NoError(t, os.MkdirAll(filepath.Join(meta, "manifest"), 0700))
	require.NoError(t, os.WriteFile(filepath.Join(meta, "manifest", "manifest.yml"), []byte(manifestYAML), 0600))
	require.NoError(t, cfg.Save(filepath.Join(meta, workspace.ConfigFileName)))

	git := fake.NewRunner()
	for _, repo := range []struct {
		dest, branch, upstream string
	}{{"foo", "master", "origin/master"}, {"old", "fish", ""}} {
		dir := filepath.Join(root, repo.dest)
		require.NoError(t, os.MkdirAll(filepath.Join(dir, ".git"), 0700))
		git.
			OK(dir, sha, "rev-parse", "HEAD").
			OK(dir, repo.branch, "rev-parse", "--abbrev-ref", "HEAD").
			OK(dir, "", "tag", "--points-at", "HEAD").
			OK(dir, "", "status", "--porcelain")
		if repo.upstream == "" {
			git.Fail(dir, 128, "fatal: no upstream configured for branch",
				"rev-parse", "--abbrev-ref", "--symbolic-full-name", "@{upstream}")
			continue
		}
		git.
			OK(dir, repo.upstream, "rev-parse", "--abbrev-ref", "--symbolic-full-name", "@{upstream}").
			OK(dir, "0\t1\n", "rev-list", "--left-right", "--count", "@{upstream}...HEAD")
	}
	return root, git
}

func run(t *testing.T, root string, git *fake.Runner, args ...string) (string, error) {
	r := cmdstatus.NewRunner(printerfake.CtxWithNilPrinter(), "wsrc")
	r.GitRunner = git
	var out bytes.Buffer
	r.Command.SetOut(&out)
	r.Command.SetErr(&bytes.Buffer{})
	r.Command.SilenceUsage = true
	r.Command.SetArgs(append([]string{"-w", root, "--no-dm", "--no-fm"}, args...))
	err := r.Command.Execute()
	return out.String(), err
}

func TestCmd_table(t *testing.T) {
	cfg := workspace.NewConfig("git@example.com:org/manifest", "release")
	cfg.ManifestBranch0 = "master"
	root, git := newWorkspace(t, cfg)

	out, err := run(t, root, git)
	require.NoError(t, err)
	assert.Empty(t, git.Unexpected())

	for _, s := range []string{
		"manifest: git@example.com:org/manifest (release)\n",
		"manifest branch changes from master to release on the next sync\n",
		"master 0123456 ↑1",
		"manifest-only",
		"not cloned",
		"fish 0123456",
		"leftover",
		"1 matched, 1 not cloned, 1 leftover, 0 incoming\n",
	} {
		assert.Contains(t, out, s)
	}
}

func TestCmd_json(t *testing.T) {
	root, git := newWorkspace(t, workspace.NewConfig("git@example.com:org/manifest", "master"))

	out, err := run(t, root, git, "-o", "json")
	require.NoError(t, err)

	var doc struct {
		ManifestBranch string `json:"manifestBranch"`
		Rows           []struct {
			Dest     string `json:"dest"`
			Class    string `json:"class"`
			Presence string `json:"presence"`
		} `json:"rows"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Equal(t, "master", doc.ManifestBranch)

	type row struct{ Dest, Class, Presence string }
	var got []row
	for _, r := range doc.Rows {
		got = append(got, row{r.Dest, r.Class, r.Presence})
	}
	expected := []row{
		{"foo", "matched", "local,disk"},
		{"bar", "manifest-only", "local"},
		{"old", "leftover", "disk"},
	}
	if diff := cmp.Diff(expected, got); diff != "" {
		t.Errorf("rows (-want +got):\n%s", diff)
	}
}

func TestCmd_yaml(t *testing.T) {
	root, git := newWorkspace(t, workspace.NewConfig("git@example.com:org/manifest", "master"))

	out, err := run(t, root, git, "-o", "yaml", "-g", "core")
	require.NoError(t, err)
	assert.Contains(t, out, "manifestURL: git@example.com:org/manifest\n")
	assert.Contains(t, out, "class: matched\n")
	assert.Contains(t, out, "class: leftover\n")
	assert.NotContains(t, out, "dest: bar\n")
}

func TestCmd_groups(t *testing.T) {
	testCases := map[string]struct {
		args         []string
		expectedKind errors.Kind
		expectedOut  string
	}{
		"strict": {
			args:         []string{"-g", "nope"},
			expectedKind: errors.GroupNotFound,
		},
		"lenient": {
			args:        []string{"-g", "core,nope", "--ignore-missing-groups"},
			expectedOut: "groups not found in any manifest: \"nope\"\n",
		},
	}

	for tn, tc := range testCases {
		t.Run(tn, func(t *testing.T) {
			root, git := newWorkspace(t, workspace.NewConfig("git@example.com:org/manifest", "master"))
			out, err := run(t, root, git, tc.args...)
			if tc.expectedKind != errors.Other {
				require.Error(t, err)
				assert.Equal(t, tc.expectedKind, errors.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Contains(t, out, tc.expectedOut)
		})
	}
}

func TestCmd_badOutput(t *testing.T) {
	root, git := newWorkspace(t, workspace.NewConfig("git@example.com:org/manifest", "master"))
	_, err := run(t, root, git, "-o", "xml")
	require.Error(t, err)
	assert.Equal(t, errors.InvalidParam, errors.KindOf(err))
	assert.Empty(t, git.Calls())
}

func TestCmd_displayFlags(t *testing.T) {
	testCases := map[string]struct {
		args           []string
		expectedMarker bool
		expectedOld    bool
	}{
		"default": {
			expectedMarker: true,
			expectedOld:    true,
		},
		"no manifest marker": {
			args:        []string{"--no-mm"},
			expectedOld: true,
		},
		"strict": {
			args:           []string{"--strict"},
			expectedMarker: true,
		},
	}

	for tn, tc := range testCases {
		t.Run(tn, func(t *testing.T) {
			// foo doubles as the manifest repository
			root, git := newWorkspace(t, workspace.NewConfig("git@example.com:org/foo", "master"))
			out, err := run(t, root, git, tc.args...)
			require.NoError(t, err)
			assert.Empty(t, git.Unexpected())

			if tc.expectedMarker {
				assert.Contains(t, out, "foo (manifest)")
			} else {
				assert.NotContains(t, out, "(manifest)")
			}
			assert.Equal(t, tc.expectedOld, git.RanSubcommand(filepath.Join(root, "old"), "status"))
			assert.Contains(t, out, "1 leftover")
		})
	}
}

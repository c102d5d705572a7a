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

package cmdman_test

import (
	"bytes"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/kptdev/wsrc/internal/cmdman"
	"github.com/kptdev/wsrc/internal/errors"
	printerfake "github.com/kptdev/wsrc/internal/printer/fake"
	"github.com/kptdev/wsrc/internal/workspace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWorkspace(t *testing.T) string {
	root := t.TempDir()
	meta := filepath.Join(root, workspace.Dir)
	require.NoError(t, os.MkdirAll(filepath.Join(meta, "manifest"), 0700))
	require.NoError(t, os.WriteFile(filepath.Join(meta, "manifest", "README.md"), []byte("# MANIFEST\nthe manifest\n"), 0600))
	require.NoError(t, workspace.NewConfig("git@example.com:org/manifest", "master").
		Save(filepath.Join(meta, workspace.ConfigFileName)))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "libs", "bar", ".git"), 0700))
	require.NoError(t, os.WriteFile(filepath.Join(root, "libs", "bar", "README.md"), []byte("# BAR\nthe bar library\n"), 0600))
	return root
}

func TestCmd(t *testing.T) {
	if _, err := exec.LookPath("cat"); err != nil {
		t.Skip("cat is not available")
	}
	testCases := map[string]struct {
		args         []string
		expectedOut  string
		expectedKind errors.Kind
	}{
		"manifest repository": {
			expectedOut: ".SH MANIFEST",
		},
		"workspace repository": {
			args:        []string{"libs/bar/"},
			expectedOut: ".SH BAR",
		},
		"not cloned": {
			args:         []string{"foo"},
			expectedKind: errors.MissingRepo,
		},
	}

	for tn, tc := range testCases {
		t.Run(tn, func(t *testing.T) {
			root := newWorkspace(t)
			r := cmdman.NewRunner(printerfake.CtxWithNilPrinter(), "wsrc")
			r.Man.ManExecCommand = "cat"
			b := &bytes.Buffer{}
			r.Command.SetOut(b)
			r.Command.SilenceUsage = true
			r.Command.SetArgs(append([]string{"-w", root}, tc.args...))
			err := r.Command.Execute()

			if tc.expectedKind != errors.Other {
				require.Error(t, err)
				assert.Equal(t, tc.expectedKind, errors.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Contains(t, b.String(), tc.expectedOut)
		})
	}
}

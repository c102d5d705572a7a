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

package resolver

import (
	"fmt"
	"testing"

	"github.com/kptdev/wsrc/internal/errors"
	"github.com/kptdev/wsrc/internal/executor"
	"github.com/kptdev/wsrc/internal/gitutil"
	"github.com/kptdev/wsrc/internal/types"
	"github.com/stretchr/testify/assert"
)

func TestResolveError_DefaultExitCode(t *testing.T) {
	org := errorResolvers
	AddErrorResolver(&TestErrorResolver{})
	defer func() {
		errorResolvers = org
	}()

	rr, ok := ResolveError(&TestError{})
	assert.True(t, ok)
	assert.Equal(t, 1, rr.ExitCode)
}

func TestResolveError(t *testing.T) {
	testCases := map[string]struct {
		err        error
		expected   string
		unresolved bool
	}{
		"unknown ref": {
			err: errors.E(errors.Op("cloner.Clone"), types.Dest("spam/eggs"), errors.Git, &gitutil.GitExecError{
				Type:   gitutil.UnknownReference,
				Args:   []string{"clone", "--branch", "nope"},
				Repo:   "git@example.com:org/eggs",
				Ref:    "nope",
				StdErr: "fatal: Remote branch nope not found in upstream origin",
				Err:    fmt.Errorf("exit status 128"),
			}),
			expected: `Error: Unknown ref "nope". Please verify that the reference exists in "git@example.com:org/eggs".

Details:
fatal: Remote branch nope not found in upstream origin`,
		},
		"generic git failure": {
			err: errors.E(errors.Op("syncer.fetch"), types.Dest("foo"), errors.Git, &gitutil.GitExecError{
				Args: []string{"fetch", "--tags", "origin"},
				Err:  fmt.Errorf("exit status 1"),
			}),
			expected: `Error: Failed to execute git command "git fetch --tags origin" in repo "foo"`,
		},
		"failed repos": {
			err: &executor.FailedError{Items: []string{"foo", "spam/eggs"}, Total: 3},
			expected: `Error: 2 of 3 repos failed:
  * foo
  * spam/eggs`,
		},
		"group not found": {
			err: errors.E(errors.Op("groups.Check"), errors.GroupNotFound,
				&errors.GroupNotFoundError{Groups: []string{"nope"}}),
			expected: `Error: no such group: "nope". Known groups are listed by 'wsrc manifest'.
Use --ignore-missing-groups to skip groups the manifest does not declare.`,
		},
		"validation": {
			err: errors.E(errors.Op("manifest.Load"), errors.InvalidConfig, &errors.ValidationError{
				File:       "manifest.yml",
				Violations: errors.Violations{{Field: "repos[0].dest", Type: errors.Missing}},
			}),
			expected: "Error: manifest.yml: validation failed for fields \"repos[0].dest\"\n  * repos[0].dest missing",
		},
		"plain": {
			err:        fmt.Errorf("boom"),
			unresolved: true,
		},
	}

	for tn, tc := range testCases {
		t.Run(tn, func(t *testing.T) {
			rr, ok := ResolveError(tc.err)
			if tc.unresolved {
				assert.False(t, ok)
				return
			}
			assert.True(t, ok)
			assert.Equal(t, tc.expected, rr.Message)
			assert.Equal(t, 1, rr.ExitCode)
		})
	}
}

type TestErrorResolver struct{}

func (t *TestErrorResolver) Resolve(err error) (ResolvedResult, bool) {
	var testError *TestError
	if errors.As(err, &testError) {
		return ResolvedResult{}, true
	}
	return ResolvedResult{}, false
}

type TestError struct{}

func (e *TestError) Error() string {
	return "this is a test"
}

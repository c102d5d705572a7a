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

package errors

import (
	"fmt"
	"testing"

	"github.com/kptdev/wsrc/internal/types"
	"github.com/stretchr/testify/assert"
)

func TestError(t *testing.T) {
	testCases := map[string]struct {
		err      error
		expected string
	}{
		"flat": {
			err:      E(Op("syncer.fetch"), types.Dest("foo"), FetchFailed, fmt.Errorf("boom")),
			expected: "syncer.fetch: repo foo: fetch failed: boom",
		},
		"nested": {
			err: E(Op("cmdsync.runE"), types.Dest("foo"),
				E(Op("syncer.merge"), types.Dest("foo"), NonFastForwardMerge, "diverged")),
			expected: "cmdsync.runE: repo foo:\n\tsyncer.merge: non fast-forward merge: diverged",
		},
		"same op": {
			err:      E(Op("a.b"), E(Op("a.b"), IO, "disk full")),
			expected: "a.b:\n\tIO error: disk full",
		},
		"empty": {
			err:      &Error{},
			expected: "no error",
		},
	}

	for tn, tc := range testCases {
		t.Run(tn, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.err.Error())
		})
	}
}

func TestKindOf(t *testing.T) {
	inner := E(Op("syncer.checkout"), IncorrectBranch, &IncorrectBranchError{Actual: "fish", Expected: "master"})
	err := fmt.Errorf("wrapped: %w", E(Op("cmdsync.runE"), inner))

	assert.Equal(t, IncorrectBranch, KindOf(err))
	assert.True(t, IsKind(err, IncorrectBranch))
	assert.False(t, IsKind(err, Git))
	assert.Equal(t, Other, KindOf(fmt.Errorf("plain")))

	var ibe *IncorrectBranchError
	assert.True(t, As(err, &ibe))
	assert.Equal(t, "fish", ibe.Actual)
}

func TestIncorrectBranchError(t *testing.T) {
	testCases := map[string]struct {
		err      IncorrectBranchError
		expected string
	}{
		"mismatch": {
			err:      IncorrectBranchError{Actual: "fish", Expected: "master"},
			expected: `current branch: "fish" does not match expected branch: "master"`,
		},
		"detached": {
			err:      IncorrectBranchError{Expected: "master"},
			expected: `not on any branch, expected branch: "master"`,
		},
	}

	for tn, tc := range testCases {
		t.Run(tn, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.err.Error())
		})
	}
}

func TestGroupNotFoundError(t *testing.T) {
	assert.Equal(t, `no such group: "a"`, (&GroupNotFoundError{Groups: []string{"a"}}).Error())
	assert.Equal(t, `no such groups: "a", "b"`, (&GroupNotFoundError{Groups: []string{"a", "b"}}).Error())
}

func TestValidationError(t *testing.T) {
	err := &ValidationError{
		File: "manifest.yml",
		Violations: Violations{
			{Field: "repos[0].dest", Type: Missing},
			{Field: "repos[1].url", Value: "::", Type: Invalid, Reason: "not a url"},
		},
	}
	assert.Equal(t, "manifest.yml: validation failed for fields \"repos[0].dest\", \"repos[1].url\"\n"+
		"  * repos[0].dest missing\n"+
		"  * repos[1].url invalid (\"::\"): not a url", err.Error())
}

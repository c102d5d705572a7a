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

package workspace

import (
	"fmt"
	"regexp"

	"github.com/kptdev/wsrc/internal/errors"
	"github.com/kptdev/wsrc/internal/manifest"
	"github.com/kptdev/wsrc/internal/types"
)

// Filter narrows a repository selection by destination and presence on
// disk.
type Filter struct {
	Include *regexp.Regexp
	Exclude *regexp.Regexp
	// OnlyCloned keeps only repositories present in the workspace.
	OnlyCloned bool
}

// NewFilter compiles the include and exclude patterns. Empty patterns
// match everything and nothing respectively.
func NewFilter(include, exclude string, onlyCloned bool) (Filter, error) {
	const op errors.Op = "workspace.NewFilter"
	f := Filter{OnlyCloned: onlyCloned}
	var err error
	if include != "" {
		if f.Include, err = regexp.Compile(include); err != nil {
			return Filter{}, errors.E(op, errors.InvalidParam, fmt.Errorf("invalid include regex: %w", err))
		}
	}
	if exclude != "" {
		if f.Exclude, err = regexp.Compile(exclude); err != nil {
			return Filter{}, errors.E(op, errors.InvalidParam, fmt.Errorf("invalid exclude regex: %w", err))
		}
	}
	return f, nil
}

// Apply returns the repositories of repos kept by the filter, in order.
func (f Filter) Apply(w *Workspace, repos []manifest.Repo) []manifest.Repo {
	var res []manifest.Repo
	for _, r := range repos {
		if !f.Match(r.Dest) {
			continue
		}
		if f.OnlyCloned && !w.IsCloned(r.Dest) {
			continue
		}
		res = append(res, r)
	}
	return res
}

// Match reports whether dest passes the include and exclude patterns.
func (f Filter) Match(dest types.Dest) bool {
	d := string(dest)
	if f.Include != nil && !f.Include.MatchString(d) {
		return false
	}
	return f.Exclude == nil || !f.Exclude.MatchString(d)
}

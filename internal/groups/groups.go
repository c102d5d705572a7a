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

// Package groups turns requested group names into repositories and keeps
// track of which requested names were recognized by at least one manifest.
package groups

import (
	"github.com/kptdev/wsrc/internal/errors"
	"github.com/kptdev/wsrc/internal/manifest"
	wstrings "github.com/kptdev/wsrc/internal/util/strings"
	"k8s.io/klog/v2"
)

// ToFind records the group names explicitly requested for one command and
// which of them have been recognized so far. A ToFind is a value: Found
// returns an updated copy and never modifies the receiver.
type ToFind struct {
	requested []string
	found     map[string]bool
}

// NewToFind starts tracking the given names. An empty list means the
// defaults are used and nothing has to be found.
func NewToFind(names []string) ToFind {
	return ToFind{requested: wstrings.Dedupe(names)}
}

// Requested returns the explicitly requested names.
func (g ToFind) Requested() []string {
	return append([]string(nil), g.requested...)
}

// Explicit reports whether any group name was requested.
func (g ToFind) Explicit() bool {
	return len(g.requested) > 0
}

// Found returns a copy of g with names marked as recognized. Names that were
// not requested are ignored.
func (g ToFind) Found(names ...string) ToFind {
	res := ToFind{
		requested: g.requested,
		found:     make(map[string]bool, len(g.found)+len(names)),
	}
	for n := range g.found {
		res.found[n] = true
	}
	for _, n := range names {
		for _, r := range g.requested {
			if r == n {
				res.found[n] = true
			}
		}
	}
	return res
}

// Missing returns the requested names never recognized, in request order.
func (g ToFind) Missing() []string {
	var missing []string
	for _, r := range g.requested {
		if !g.found[r] {
			missing = append(missing, r)
		}
	}
	return missing
}

// AllFound reports whether every requested name was recognized.
func (g ToFind) AllFound() bool {
	return len(g.Missing()) == 0
}

// Check fails with a GroupNotFound error naming the missing groups.
func (g ToFind) Check() error {
	const op errors.Op = "groups.Check"
	if missing := g.Missing(); len(missing) > 0 {
		return errors.E(op, errors.GroupNotFound, &errors.GroupNotFoundError{Groups: missing})
	}
	return nil
}

// Defaults is the part of the workspace configuration used when no group
// is requested.
type Defaults struct {
	CloneAllRepos bool
	RepoGroups    []string
}

// Request is what the user asked for on the command line.
type Request struct {
	Groups []string
	All    bool
	// IgnoreMissing drops unknown group names instead of failing.
	IgnoreMissing bool
}

// Resolver selects repositories of a manifest according to a Request and
// the workspace Defaults.
type Resolver struct {
	Defaults Defaults
}

// Resolve returns the selected repositories and gtf updated with the group
// names m recognized.
//
// The order of precedence is: Request.All, Request.Groups, then
// Defaults.CloneAllRepos, Defaults.RepoGroups and finally the manifest's
// default repositories.
func (r Resolver) Resolve(m *manifest.Manifest, req Request, gtf ToFind) ([]manifest.Repo, ToFind, error) {
	const op errors.Op = "groups.Resolve"

	groups, all := req.Groups, req.All
	if !all && len(groups) == 0 {
		switch {
		case r.Defaults.CloneAllRepos:
			klog.V(4).Infof("no groups requested, workspace clones all repos")
			all = true
		case len(r.Defaults.RepoGroups) > 0:
			klog.V(4).Infof("no groups requested, using workspace groups %v", r.Defaults.RepoGroups)
			groups = r.Defaults.RepoGroups
		}
	}

	repos, found, err := m.GetRepos(groups, all, req.IgnoreMissing)
	gtf = gtf.Found(found...)
	if err != nil {
		return nil, gtf, errors.E(op, err)
	}
	return repos, gtf, nil
}

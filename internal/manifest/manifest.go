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

// Package manifest contains the immutable model of a workspace manifest:
// the declared repositories, their remotes and the named groups that
// partition them.
package manifest

import (
	"strings"

	"github.com/kptdev/wsrc/internal/errors"
	"github.com/kptdev/wsrc/internal/types"
	wstrings "github.com/kptdev/wsrc/internal/util/strings"
)

const (
	// FileName is the name of the manifest file at the root of the
	// manifest repository.
	FileName = "manifest.yml"

	// DefaultBranch is used for repositories that declare no branch.
	DefaultBranch = "master"

	// DefaultGroup, when declared, is the set of repositories used when
	// no group is requested and the workspace configures none.
	DefaultGroup = "default"

	// OriginRemote is the name given to the remote created from the `url`
	// shorthand.
	OriginRemote = "origin"
)

// Remote is a named git remote of a repository.
type Remote struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Repo is a repository declared in a manifest.
type Repo struct {
	Dest    types.Dest `json:"dest"`
	Remotes []Remote   `json:"remotes,omitempty"`

	// Branch is the branch to track. It is DefaultBranch with
	// IsDefaultBranch set when the manifest declares none.
	Branch          string `json:"branch,omitempty"`
	IsDefaultBranch bool   `json:"-"`

	Tag    string `json:"tag,omitempty"`
	Commit string `json:"sha1,omitempty"`

	// ReconcileBranch is the branch that must contain Commit (or the commit
	// Tag points at) when syncing to an exact ref.
	ReconcileBranch string `json:"reconcileBranch,omitempty"`

	IgnoreSubmodules bool `json:"ignoreSubmodules,omitempty"`
}

// CloneURL is the URL of the first remote.
func (r Repo) CloneURL() string {
	if len(r.Remotes) == 0 {
		return ""
	}
	return r.Remotes[0].URL
}

// Remote returns the remote called name.
func (r Repo) Remote(name string) (Remote, bool) {
	for _, rem := range r.Remotes {
		if rem.Name == name {
			return rem, true
		}
	}
	return Remote{}, false
}

// RemoteNames returns the remote names in declaration order.
func (r Repo) RemoteNames() []string {
	names := make([]string, 0, len(r.Remotes))
	for _, rem := range r.Remotes {
		names = append(names, rem.Name)
	}
	return names
}

// HasRef reports whether the repository is pinned to a tag or a commit.
func (r Repo) HasRef() bool {
	return r.Tag != "" || r.Commit != ""
}

// TargetBranch returns the branch that has to contain the pinned ref, or ""
// when the ref should be applied without branch bookkeeping. An explicitly
// declared branch counts; the implicit default branch does not.
func (r Repo) TargetBranch() string {
	if r.ReconcileBranch != "" {
		return r.ReconcileBranch
	}
	if r.HasRef() && !r.IsDefaultBranch {
		return r.Branch
	}
	return ""
}

// DescribeRef renders the declared ref for display, e.g. "master",
// "0123abc on v1.0" or "devel on v1.0".
func (r Repo) DescribeRef() string {
	var parts []string
	if r.Branch != "" && (!r.IsDefaultBranch || !r.HasRef()) {
		parts = append(parts, r.Branch)
	} else if r.Commit != "" {
		parts = append(parts, ShortSHA(r.Commit))
	}
	if r.Tag != "" {
		parts = append(parts, "on "+r.Tag)
	}
	return strings.Join(parts, " ")
}

// SameRef reports whether o declares the same branch, tag and commit as r.
// Commits are compared by prefix so an abbreviated sha1 matches its full
// form.
func (r Repo) SameRef(o Repo) bool {
	if r.Branch != o.Branch || r.Tag != o.Tag {
		return false
	}
	return sameCommit(r.Commit, o.Commit)
}

func sameCommit(a, b string) bool {
	if a == "" || b == "" {
		return a == b
	}
	if len(a) > len(b) {
		a, b = b, a
	}
	return strings.HasPrefix(b, a)
}

// ShortSHA abbreviates a commit id for display.
func ShortSHA(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}

// Group is a named set of repositories. Includes names other groups whose
// members are part of this group too.
type Group struct {
	Name     string
	Repos    []types.Dest
	Includes []string
}

// Manifest is the parsed, validated content of a manifest file. It is never
// modified after construction.
type Manifest struct {
	repos  []Repo
	index  map[types.Dest]int
	groups map[string]Group
	// groupNames keeps declaration order.
	groupNames []string
	// members maps every group to its members, includes expanded, in
	// manifest declaration order.
	members map[string][]types.Dest
}

// Repos returns every declared repository in declaration order.
func (m *Manifest) Repos() []Repo {
	return append([]Repo(nil), m.repos...)
}

// Repo returns the repository declared at dest.
func (m *Manifest) Repo(dest types.Dest) (Repo, bool) {
	i, found := m.index[dest]
	if !found {
		return Repo{}, false
	}
	return m.repos[i], true
}

// Group returns the group called name.
func (m *Manifest) Group(name string) (Group, bool) {
	g, found := m.groups[name]
	return g, found
}

// HasGroup reports whether the manifest declares the group name.
func (m *Manifest) HasGroup(name string) bool {
	_, found := m.groups[name]
	return found
}

// GroupNames returns the group names in declaration order.
func (m *Manifest) GroupNames() []string {
	return append([]string(nil), m.groupNames...)
}

// Members returns the destinations of a group, includes expanded.
func (m *Manifest) Members(name string) ([]types.Dest, bool) {
	members, found := m.members[name]
	return append([]types.Dest(nil), members...), found
}

// GroupsOf returns the names of the groups dest belongs to, directly or
// through an include.
func (m *Manifest) GroupsOf(dest types.Dest) []string {
	var res []string
	for _, name := range m.groupNames {
		for _, d := range m.members[name] {
			if d == dest {
				res = append(res, name)
				break
			}
		}
	}
	return res
}

// DefaultRepos returns the members of the DefaultGroup if the manifest
// declares one, every repository otherwise.
func (m *Manifest) DefaultRepos() []Repo {
	if !m.HasGroup(DefaultGroup) {
		return m.Repos()
	}
	return m.reposOf(m.members[DefaultGroup])
}

// GetRepos selects repositories. With all set every repository is returned.
// Otherwise the members of the named groups are returned in declaration
// order without duplicates; with no group names the DefaultRepos are
// returned. Unknown names fail with a GroupNotFound error unless
// ignoreIfGroupNotFound is set. The second return value lists the requested
// names the manifest recognized.
func (m *Manifest) GetRepos(groups []string, all, ignoreIfGroupNotFound bool) ([]Repo, []string, error) {
	const op errors.Op = "manifest.GetRepos"
	if all {
		return m.Repos(), m.known(groups), nil
	}
	if len(groups) == 0 {
		return m.DefaultRepos(), nil, nil
	}

	found := m.known(groups)
	if missing := m.unknown(groups); len(missing) > 0 && !ignoreIfGroupNotFound {
		return nil, found, errors.E(op, errors.GroupNotFound, &errors.GroupNotFoundError{Groups: missing})
	}

	selected := make(map[types.Dest]bool)
	for _, name := range found {
		for _, d := range m.members[name] {
			selected[d] = true
		}
	}
	var res []Repo
	for _, r := range m.repos {
		if selected[r.Dest] {
			res = append(res, r)
		}
	}
	return res, found, nil
}

// known returns the names from groups the manifest declares, deduplicated.
func (m *Manifest) known(groups []string) []string {
	var found []string
	seen := make(map[string]bool)
	for _, g := range groups {
		if m.HasGroup(g) && !seen[g] {
			seen[g] = true
			found = append(found, g)
		}
	}
	return found
}

// unknown returns the names from groups the manifest does not declare.
func (m *Manifest) unknown(groups []string) []string {
	var missing []string
	for _, g := range wstrings.Dedupe(groups) {
		if !m.HasGroup(g) {
			missing = append(missing, g)
		}
	}
	return missing
}

func (m *Manifest) reposOf(dests []types.Dest) []Repo {
	res := make([]Repo, 0, len(dests))
	for _, d := range dests {
		if r, found := m.Repo(d); found {
			res = append(res, r)
		}
	}
	return res
}

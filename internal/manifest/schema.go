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

package manifest

import (
	"bytes"
	goerrors "errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/kptdev/wsrc/internal/errors"
	"github.com/kptdev/wsrc/internal/types"
	"github.com/philopon/go-toposort"
	pkgerrors "github.com/pkg/errors"
	"gopkg.in/yaml.v3"
	"k8s.io/klog/v2"
)

// File is the on-disk form of a manifest.
type File struct {
	Repos  []RepoEntry  `yaml:"repos"`
	Groups GroupEntries `yaml:"groups,omitempty"`
}

// RepoEntry is one element of the `repos` sequence.
type RepoEntry struct {
	Dest             string        `yaml:"dest"`
	URL              string        `yaml:"url,omitempty"`
	Remotes          []RemoteEntry `yaml:"remotes,omitempty"`
	Branch           string        `yaml:"branch,omitempty"`
	Tag              string        `yaml:"tag,omitempty"`
	SHA1             string        `yaml:"sha1,omitempty"`
	ReconcileBranch  string        `yaml:"reconcile_branch,omitempty"`
	IgnoreSubmodules bool          `yaml:"ignore_submodules,omitempty"`
}

type RemoteEntry struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

type GroupEntry struct {
	Name     string   `yaml:"-"`
	Repos    []string `yaml:"repos"`
	Includes []string `yaml:"includes,omitempty"`
}

// GroupEntries is the `groups` mapping, kept in file order.
type GroupEntries []GroupEntry

func (g *GroupEntries) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: groups must be a mapping", value.Line)
	}
	for i := 0; i+1 < len(value.Content); i += 2 {
		name, body := value.Content[i], value.Content[i+1]
		// Node.Decode does not honor KnownFields
		if body.Kind == yaml.MappingNode {
			for j := 0; j+1 < len(body.Content); j += 2 {
				if k := body.Content[j]; k.Value != "repos" && k.Value != "includes" {
					return fmt.Errorf("line %d: field %s not found in group %s", k.Line, k.Value, name.Value)
				}
			}
		}
		var e GroupEntry
		if err := body.Decode(&e); err != nil {
			return err
		}
		e.Name = name.Value
		*g = append(*g, e)
	}
	return nil
}

// Load reads and parses the manifest file at p.
func Load(p string) (*Manifest, error) {
	const op errors.Op = "manifest.Load"
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, errors.E(op, errors.IO, pkgerrors.Wrapf(err, "unable to read manifest %s", p))
	}
	m, err := Parse(data)
	if err != nil {
		var ve *errors.ValidationError
		if goerrors.As(err, &ve) {
			ve.File = p
		}
		return nil, errors.E(op, pkgerrors.Wrapf(err, "unable to load manifest %s", p))
	}
	return m, nil
}

// Parse decodes and validates manifest content. Unknown fields are rejected.
func Parse(data []byte) (*Manifest, error) {
	const op errors.Op = "manifest.Parse"
	var f File
	d := yaml.NewDecoder(bytes.NewReader(data))
	d.KnownFields(true)
	if err := d.Decode(&f); err != nil && err != io.EOF {
		return nil, errors.E(op, errors.InvalidConfig, fmt.Errorf("unable to parse manifest: %w", err))
	}
	return f.Build()
}

// Build validates the file content and turns it into a Manifest.
func (f File) Build() (*Manifest, error) {
	const op errors.Op = "manifest.Build"

	var violations errors.Violations
	repos := make([]Repo, 0, len(f.Repos))
	for i, e := range f.Repos {
		r, vs := e.toRepo(fmt.Sprintf("repos[%d]", i))
		violations = append(violations, vs...)
		repos = append(repos, r)
	}

	var groups []Group
	for _, g := range f.Groups {
		groups = append(groups, Group{
			Name:     g.Name,
			Repos:    toDests(g.Repos),
			Includes: g.Includes,
		})
	}
	if len(violations) > 0 {
		return nil, errors.E(op, errors.InvalidConfig, &errors.ValidationError{Violations: violations})
	}
	return New(repos, groups)
}

// toRepo converts the entry, applying the `url` shorthand and the default
// branch.
func (e RepoEntry) toRepo(field string) (Repo, errors.Violations) {
	var vs errors.Violations
	r := Repo{
		Dest:             types.Dest(cleanDest(e.Dest)),
		Branch:           e.Branch,
		Tag:              e.Tag,
		Commit:           e.SHA1,
		ReconcileBranch:  e.ReconcileBranch,
		IgnoreSubmodules: e.IgnoreSubmodules,
	}
	if r.Branch == "" {
		r.Branch = DefaultBranch
		r.IsDefaultBranch = true
	}
	if e.URL != "" {
		r.Remotes = append(r.Remotes, Remote{Name: OriginRemote, URL: e.URL})
	}
	for j, rem := range e.Remotes {
		if rem.Name == "" {
			vs = append(vs, errors.Violation{
				Field: fmt.Sprintf("%s.remotes[%d].name", field, j),
				Type:  errors.Missing,
			})
		}
		if rem.URL == "" {
			vs = append(vs, errors.Violation{
				Field: fmt.Sprintf("%s.remotes[%d].url", field, j),
				Type:  errors.Missing,
			})
		}
		r.Remotes = append(r.Remotes, Remote{Name: rem.Name, URL: rem.URL})
	}
	if e.Dest == "" {
		vs = append(vs, errors.Violation{Field: field + ".dest", Type: errors.Missing})
	} else if strings.HasPrefix(e.Dest, "/") || strings.HasPrefix(path.Clean(e.Dest), "..") {
		vs = append(vs, errors.Violation{
			Field:  field + ".dest",
			Value:  e.Dest,
			Type:   errors.Invalid,
			Reason: "must be a relative path inside the workspace",
		})
	}
	return r, vs
}

// New builds a Manifest from repositories and groups, checking that
// destinations and remote names are unique, that groups only reference
// declared repositories and groups, and that includes have no cycle.
func New(repos []Repo, groups []Group) (*Manifest, error) {
	const op errors.Op = "manifest.New"

	var violations errors.Violations
	m := &Manifest{
		index:   make(map[types.Dest]int, len(repos)),
		groups:  make(map[string]Group, len(groups)),
		members: make(map[string][]types.Dest, len(groups)),
	}
	for i, r := range repos {
		field := fmt.Sprintf("repos[%d]", i)
		if _, found := m.index[r.Dest]; found {
			violations = append(violations, errors.Violation{
				Field: field + ".dest",
				Value: string(r.Dest),
				Type:  errors.Duplicate,
			})
			continue
		}
		if len(r.Remotes) == 0 {
			violations = append(violations, errors.Violation{
				Field:  field + ".url",
				Type:   errors.Missing,
				Reason: "either url or remotes must be set",
			})
		}
		seen := make(map[string]bool)
		for _, rem := range r.Remotes {
			if seen[rem.Name] {
				violations = append(violations, errors.Violation{
					Field: field + ".remotes",
					Value: rem.Name,
					Type:  errors.Duplicate,
				})
			}
			seen[rem.Name] = true
		}
		m.index[r.Dest] = len(m.repos)
		m.repos = append(m.repos, r)
	}

	for _, g := range groups {
		field := fmt.Sprintf("groups.%s", g.Name)
		if _, found := m.groups[g.Name]; found {
			violations = append(violations, errors.Violation{Field: field, Type: errors.Duplicate})
			continue
		}
		for _, d := range g.Repos {
			if _, found := m.index[d]; !found {
				violations = append(violations, errors.Violation{
					Field:  field + ".repos",
					Value:  string(d),
					Type:   errors.Invalid,
					Reason: "no such repo",
				})
			}
		}
		m.groups[g.Name] = g
		m.groupNames = append(m.groupNames, g.Name)
	}
	for _, g := range groups {
		for _, inc := range g.Includes {
			if _, found := m.groups[inc]; !found {
				violations = append(violations, errors.Violation{
					Field:  fmt.Sprintf("groups.%s.includes", g.Name),
					Value:  inc,
					Type:   errors.Invalid,
					Reason: "no such group",
				})
			}
		}
	}
	if len(violations) > 0 {
		return nil, errors.E(op, errors.InvalidConfig, &errors.ValidationError{Violations: violations})
	}

	if err := m.expandGroups(); err != nil {
		return nil, errors.E(op, errors.InvalidConfig, err)
	}
	return m, nil
}

// expandGroups computes the members of every group with includes resolved.
// Included groups are expanded before the groups including them.
func (m *Manifest) expandGroups() error {
	graph := toposort.NewGraph(len(m.groupNames))
	graph.AddNodes(m.groupNames...)
	for _, name := range m.groupNames {
		for _, inc := range m.groups[name].Includes {
			graph.AddEdge(name, inc)
		}
	}
	order, ok := graph.Toposort()
	if !ok {
		return fmt.Errorf("group includes form a cycle")
	}

	sets := make(map[string]map[types.Dest]bool, len(order))
	for i := len(order) - 1; i >= 0; i-- {
		name := order[i]
		g := m.groups[name]
		set := make(map[types.Dest]bool)
		for _, d := range g.Repos {
			set[d] = true
		}
		for _, inc := range g.Includes {
			for d := range sets[inc] {
				set[d] = true
			}
		}
		sets[name] = set
	}

	for name, set := range sets {
		var members []types.Dest
		for _, r := range m.repos {
			if set[r.Dest] {
				members = append(members, r.Dest)
			}
		}
		if len(members) == 0 {
			klog.V(4).Infof("group %q has no members", name)
		}
		m.members[name] = members
	}
	return nil
}

func cleanDest(d string) string {
	if d == "" {
		return ""
	}
	return strings.TrimSuffix(path.Clean(strings.ReplaceAll(d, "\\", "/")), "/")
}

func toDests(ds []string) []types.Dest {
	res := make([]types.Dest, 0, len(ds))
	for _, d := range ds {
		res = append(res, types.Dest(cleanDest(d)))
	}
	return res
}

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

package dumpmanifest

import (
	"fmt"
	"io"

	"github.com/kptdev/wsrc/internal/errors"
	"github.com/kptdev/wsrc/internal/manifest"
	"github.com/kptdev/wsrc/internal/types"
	"gopkg.in/yaml.v3"
)

// Options tune how items are written.
type Options struct {
	// SHA1Only writes the commit of every repository, not only of those
	// on no branch and no tag or diverged from their upstream.
	SHA1Only bool
	// NoDelete keeps, when updating, the repositories not found on disk.
	NoDelete bool
	// Deletable, when set, limits the deletions to the destinations it
	// accepts, so repositories outside of the selection are left alone.
	Deletable func(types.Dest) bool
}

func (o Options) deletes(dest types.Dest) bool {
	return !o.NoDelete && (o.Deletable == nil || o.Deletable(dest))
}

// Entry returns the manifest entry of item. A single origin remote is
// written with the url shorthand.
func (o Options) Entry(item Item) manifest.RepoEntry {
	e := manifest.RepoEntry{
		Dest:             string(item.Dest),
		Branch:           item.Branch,
		Tag:              item.Tag,
		IgnoreSubmodules: item.IgnoreSubmodules,
	}
	if (item.Branch == "" && item.Tag == "") || item.Diverged || o.SHA1Only {
		e.SHA1 = item.Commit
	}
	if len(item.Remotes) == 1 && item.Remotes[0].Name == manifest.OriginRemote {
		e.URL = item.Remotes[0].URL
	} else {
		for _, r := range item.Remotes {
			e.Remotes = append(e.Remotes, manifest.RemoteEntry{Name: r.Name, URL: r.URL})
		}
	}
	return e
}

// Create returns a manifest holding items, without groups.
func Create(items []Item, o Options) manifest.File {
	f := manifest.File{Repos: make([]manifest.RepoEntry, 0, len(items))}
	for _, item := range items {
		f.Repos = append(f.Repos, o.Entry(item))
	}
	return f
}

// MissingRemotes lists the items a manifest cannot clone.
func MissingRemotes(items []Item) []types.Dest {
	var res []types.Dest
	for _, item := range items {
		if len(item.Remotes) == 0 {
			res = append(res, item.Dest)
		}
	}
	return res
}

// Encode writes v as YAML with a two space indentation.
func Encode(w io.Writer, v interface{}) error {
	const op errors.Op = "dumpmanifest.Encode"
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return errors.E(op, errors.Internal, err)
	}
	if err := enc.Close(); err != nil {
		return errors.E(op, errors.IO, err)
	}
	return nil
}

// Update applies items to the manifest document doc, keeping its comments,
// key order and groups. Repositories missing from items are removed along
// with their group memberships as o allows, the others have
// their remotes and refs rewritten and new ones are appended. It reports
// whether doc changed.
func Update(doc *yaml.Node, items []Item, o Options) (bool, error) {
	const op errors.Op = "dumpmanifest.Update"
	root := doc
	if root.Kind == yaml.DocumentNode && len(root.Content) > 0 {
		root = root.Content[0]
	}
	if root.Kind != yaml.MappingNode {
		return false, errors.E(op, errors.InvalidConfig, fmt.Errorf("line %d: manifest must be a mapping", root.Line))
	}
	repos := value(root, "repos")
	if repos == nil {
		repos = &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		root.Content = append(root.Content, scalar("repos"), repos)
	}
	if repos.Kind != yaml.SequenceNode {
		return false, errors.E(op, errors.InvalidConfig, fmt.Errorf("line %d: repos must be a sequence", repos.Line))
	}

	wanted := make(map[string]Item, len(items))
	for _, item := range items {
		wanted[string(item.Dest)] = item
	}

	changed := false
	existing := make(map[string]bool)
	removed := make(map[string]bool)
	kept := repos.Content[:0]
	for _, entry := range repos.Content {
		d := value(entry, "dest")
		if d == nil {
			kept = append(kept, entry)
			continue
		}
		item, found := wanted[d.Value]
		if !found && o.deletes(types.Dest(d.Value)) {
			removed[d.Value] = true
			changed = true
			continue
		}
		kept = append(kept, entry)
		existing[d.Value] = true
		if found {
			c, err := updateEntry(entry, item, o)
			if err != nil {
				return false, errors.E(op, types.Dest(d.Value), err)
			}
			changed = changed || c
		}
	}
	repos.Content = kept
	if len(removed) > 0 {
		removeMembers(value(root, "groups"), removed)
	}

	for _, item := range items {
		if existing[string(item.Dest)] {
			continue
		}
		n := &yaml.Node{}
		if err := n.Encode(o.Entry(item)); err != nil {
			return false, errors.E(op, errors.Internal, err)
		}
		repos.Content = append(repos.Content, n)
		changed = true
	}
	return changed, nil
}

// updateEntry rewrites the refs and remotes of the repos entry n.
func updateEntry(n *yaml.Node, item Item, o Options) (bool, error) {
	e := o.Entry(item)
	changed := false
	for _, kv := range []struct{ key, value string }{
		{"branch", e.Branch}, {"tag", e.Tag}, {"sha1", e.SHA1},
	} {
		if kv.value == "" {
			changed = deleteKey(n, kv.key) || changed
		} else {
			changed = setScalar(n, kv.key, kv.value) || changed
		}
	}
	// nothing to compare with
	if len(item.Remotes) == 0 {
		return changed, nil
	}
	if e.URL != "" {
		changed = deleteKey(n, "remotes") || changed
		return setScalar(n, "url", e.URL) || changed, nil
	}
	changed = deleteKey(n, "url") || changed
	var current []manifest.RemoteEntry
	if v := value(n, "remotes"); v != nil {
		if err := v.Decode(&current); err != nil {
			return false, err
		}
	}
	if sameRemotes(current, e.Remotes) {
		return changed, nil
	}
	v := &yaml.Node{}
	if err := v.Encode(e.Remotes); err != nil {
		return false, err
	}
	set(n, "remotes", v)
	return true, nil
}

func sameRemotes(a, b []manifest.RemoteEntry) bool {
	if len(a) != len(b) {
		return false
	}
	names := make(map[string]string, len(a))
	for _, r := range a {
		names[r.Name] = r.URL
	}
	for _, r := range b {
		if url, found := names[r.Name]; !found || url != r.URL {
			return false
		}
	}
	return true
}

// removeMembers drops dests from the repos of every group.
func removeMembers(groups *yaml.Node, dests map[string]bool) {
	if groups == nil || groups.Kind != yaml.MappingNode {
		return
	}
	for i := 1; i < len(groups.Content); i += 2 {
		members := value(groups.Content[i], "repos")
		if members == nil || members.Kind != yaml.SequenceNode {
			continue
		}
		kept := members.Content[:0]
		for _, m := range members.Content {
			if !dests[m.Value] {
				kept = append(kept, m)
			}
		}
		members.Content = kept
	}
}

func value(m *yaml.Node, key string) *yaml.Node {
	if m.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	return nil
}

func scalar(v string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v}
}

func set(m *yaml.Node, key string, v *yaml.Node) {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			m.Content[i+1] = v
			return
		}
	}
	m.Content = append(m.Content, scalar(key), v)
}

func setScalar(m *yaml.Node, key, v string) bool {
	if cur := value(m, key); cur != nil && cur.Kind == yaml.ScalarNode && cur.Value == v {
		return false
	}
	set(m, key, scalar(v))
	return true
}

func deleteKey(m *yaml.Node, key string) bool {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			m.Content = append(m.Content[:i], m.Content[i+2:]...)
			return true
		}
	}
	return false
}

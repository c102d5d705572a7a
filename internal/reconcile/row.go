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

package reconcile

import (
	"fmt"
	"strings"

	"github.com/kptdev/wsrc/internal/errors"
	"github.com/kptdev/wsrc/internal/manifest"
	"github.com/kptdev/wsrc/internal/status"
	"github.com/kptdev/wsrc/internal/types"
)

// Presence is the set of places a destination was found in.
type Presence uint8

const (
	InLocal Presence = 1 << iota
	InDeep
	InFuture
	OnDisk
)

// Has reports whether every bit of p2 is set in p.
func (p Presence) Has(p2 Presence) bool {
	return p&p2 == p2
}

func (p Presence) String() string {
	var parts []string
	for _, b := range []struct {
		bit  Presence
		name string
	}{{InLocal, "local"}, {InDeep, "deep"}, {InFuture, "future"}, {OnDisk, "disk"}} {
		if p.Has(b.bit) {
			parts = append(parts, b.name)
		}
	}
	return strings.Join(parts, ",")
}

func (p Presence) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Class is the classification of a row.
type Class int

const (
	// Matched rows are cloned and selected from the Local manifest.
	Matched Class = iota
	// ManifestOnly rows are selected from the Local manifest but not cloned.
	ManifestOnly
	// Leftover rows are cloned but selected from no manifest.
	Leftover
	// LeftoverDeclared rows are cloned, not selected from the Local
	// manifest, but selected from the Deep or Future one.
	LeftoverDeclared
	// Incoming rows are only selected from the Future manifest.
	Incoming
	// DeepOnly rows are not cloned and only selected from the Deep
	// manifest, possibly together with the Future one.
	DeepOnly
)

func (c Class) String() string {
	switch c {
	case Matched:
		return "matched"
	case ManifestOnly:
		return "manifest-only"
	case Leftover:
		return "leftover"
	case LeftoverDeclared:
		return "leftover-declared"
	case Incoming:
		return "incoming"
	case DeepOnly:
		return "deep-only"
	}
	return fmt.Sprintf("Class(%d)", int(c))
}

func (c Class) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// IsLeftover reports whether the row is cloned without being selected from
// the Local manifest.
func (c Class) IsLeftover() bool {
	return c == Leftover || c == LeftoverDeclared
}

// Declared is the entry of a destination in one manifest, with the groups
// of that manifest it belongs to.
type Declared struct {
	Repo   manifest.Repo `json:"repo"`
	Groups []string      `json:"groups,omitempty"`
}

// Row is everything known about one destination.
type Row struct {
	Dest     types.Dest `json:"dest"`
	Presence Presence   `json:"presence"`
	Class    Class      `json:"class"`

	// IsManifest marks the repository holding the manifest.
	IsManifest bool `json:"isManifest,omitempty"`

	Snapshot *status.Snapshot `json:"status,omitempty"`
	// Err is set when the status of a repository on disk cannot be read.
	Err   error  `json:"-"`
	Error string `json:"error,omitempty"`

	Local  *Declared `json:"local,omitempty"`
	Deep   *Declared `json:"deep,omitempty"`
	Future *Declared `json:"future,omitempty"`
}

func classify(p Presence) Class {
	switch {
	case p.Has(OnDisk) && p.Has(InLocal):
		return Matched
	case p.Has(InLocal):
		return ManifestOnly
	case p.Has(OnDisk) && (p.Has(InDeep) || p.Has(InFuture)):
		return LeftoverDeclared
	case p.Has(OnDisk):
		return Leftover
	case p.Has(InDeep):
		return DeepOnly
	}
	return Incoming
}

// DeepDrift returns the Deep entry when it declares another ref than the
// Local one.
func (r *Row) DeepDrift() (manifest.Repo, bool) {
	return drift(r.Local, r.Deep)
}

// FutureDrift returns the Future entry when it declares another ref than
// the Local one.
func (r *Row) FutureDrift() (manifest.Repo, bool) {
	return drift(r.Local, r.Future)
}

func drift(local, other *Declared) (manifest.Repo, bool) {
	if other == nil {
		return manifest.Repo{}, false
	}
	if local != nil && local.Repo.SameRef(other.Repo) {
		return manifest.Repo{}, false
	}
	return other.Repo, true
}

// BranchMismatch returns the branch error sync would report for a
// repository tracking a branch, nil when the right branch is checked out.
func (r *Row) BranchMismatch() *errors.IncorrectBranchError {
	if r.Local == nil || r.Snapshot == nil || r.Snapshot.Empty || r.Local.Repo.HasRef() {
		return nil
	}
	if r.Snapshot.Branch == r.Local.Repo.Branch {
		return nil
	}
	return &errors.IncorrectBranchError{Actual: r.Snapshot.Branch, Expected: r.Local.Repo.Branch}
}

// RefMismatch describes how the checked-out commit differs from the pinned
// tag or commit of the Local manifest, "" when it does not.
func (r *Row) RefMismatch() string {
	if r.Local == nil || r.Snapshot == nil || !r.Local.Repo.HasRef() {
		return ""
	}
	want := r.Local.Repo
	if want.Commit != "" && !strings.HasPrefix(r.Snapshot.Commit, want.Commit) {
		return "expected " + manifest.ShortSHA(want.Commit)
	}
	if want.Commit == "" && !r.Snapshot.HasTag(want.Tag) {
		return "expected tag " + want.Tag
	}
	return ""
}

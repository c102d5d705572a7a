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

// Package reconcile merges the Local, Deep and Future manifests with the
// live state of the workspace into one row per destination.
package reconcile

import (
	"context"
	"sort"

	"github.com/kptdev/wsrc/internal/errors"
	"github.com/kptdev/wsrc/internal/executor"
	"github.com/kptdev/wsrc/internal/gitutil"
	"github.com/kptdev/wsrc/internal/groups"
	"github.com/kptdev/wsrc/internal/manifest"
	"github.com/kptdev/wsrc/internal/status"
	"github.com/kptdev/wsrc/internal/types"
	"k8s.io/klog/v2"
)

// Source identifies one of the three manifests.
type Source int

const (
	Local Source = iota
	Deep
	Future
)

func (s Source) String() string {
	switch s {
	case Local:
		return "local"
	case Deep:
		return "deep"
	case Future:
		return "future"
	}
	return "unknown"
}

func (s Source) presence() Presence {
	switch s {
	case Deep:
		return InDeep
	case Future:
		return InFuture
	}
	return InLocal
}

// Input is what the report is built from. Deep and Future are nil when not
// requested or not available.
type Input struct {
	Local  *manifest.Manifest
	Deep   *manifest.Manifest
	Future *manifest.Manifest

	// Cloned lists the repositories found on disk.
	Cloned []types.Dest

	Resolver groups.Resolver
	Request  groups.Request

	// MustFindAllGroups fails the report when a requested group is
	// recognized by none of the manifests.
	MustFindAllGroups bool

	// ManifestDest is the destination of the manifest repository, if it is
	// part of the workspace.
	ManifestDest types.Dest

	// NoLeftoverStatus skips collecting the status of leftovers. Their rows
	// then carry no snapshot.
	NoLeftoverStatus bool
}

// Report is the reconciled view of a workspace.
type Report struct {
	Rows []Row `json:"rows"`
	// Groups tells which requested groups were recognized.
	Groups groups.ToFind `json:"-"`
	// Missing lists the requested groups no manifest recognized.
	Missing []string `json:"missingGroups,omitempty"`
}

// Row returns the row of dest.
func (r *Report) Row(dest types.Dest) (Row, bool) {
	for _, row := range r.Rows {
		if row.Dest == dest {
			return row, true
		}
	}
	return Row{}, false
}

// Count returns the number of rows of class c.
func (r *Report) Count(c Class) int {
	n := 0
	for _, row := range r.Rows {
		if row.Class == c {
			n++
		}
	}
	return n
}

// Leftovers returns the destinations cloned without being selected from the
// Local manifest.
func (r *Report) Leftovers() []types.Dest {
	var res []types.Dest
	for _, row := range r.Rows {
		if row.Class.IsLeftover() {
			res = append(res, row.Dest)
		}
	}
	return res
}

// Engine builds reports. Status is collected with the executor.
type Engine struct {
	Runner   gitutil.Runner
	Root     types.WorkspacePath
	Executor executor.Executor
}

// Build resolves the requested groups in every manifest, collects the
// status of every resulting destination and returns one row per
// destination: Local selection first in manifest order, then Deep-only and
// Future-only ones, then leftovers sorted by destination.
func (e *Engine) Build(ctx context.Context, in Input) (*Report, error) {
	const op errors.Op = "reconcile.Build"
	gtf := groups.NewToFind(in.Request.Groups)
	// Unknown names are checked once every manifest had its chance.
	req := in.Request
	req.IgnoreMissing = true

	b := newBuilder()
	for _, src := range []struct {
		source Source
		m      *manifest.Manifest
	}{{Local, in.Local}, {Deep, in.Deep}, {Future, in.Future}} {
		if src.m == nil {
			continue
		}
		repos, found, err := in.Resolver.Resolve(src.m, req, gtf)
		if err != nil {
			return nil, errors.E(op, err)
		}
		gtf = found
		for _, r := range repos {
			b.declare(src.source, r, src.m.GroupsOf(r.Dest))
		}
	}

	declared := len(b.order)
	for _, d := range in.Cloned {
		b.row(d)
	}
	leftovers := b.order[declared:]
	sort.Slice(leftovers, func(i, j int) bool { return leftovers[i] < leftovers[j] })

	collect := b.order
	if in.NoLeftoverStatus {
		collect = b.order[:declared]
	}
	results := status.CollectAll(ctx, e.Executor, e.Runner, e.Root, collect)

	rep := &Report{Groups: gtf}
	for _, d := range b.order {
		row := b.rows[d]
		res := results[d]
		if !res.NotPresent {
			row.Presence |= OnDisk
			row.Snapshot = res.Snapshot
			if res.Err != nil {
				row.Err = res.Err
				row.Error = res.Err.Error()
			}
		}
		row.Class = classify(row.Presence)
		row.IsManifest = in.ManifestDest != "" && d == in.ManifestDest
		rep.Rows = append(rep.Rows, *row)
	}
	rep.Missing = gtf.Missing()

	if len(rep.Missing) > 0 {
		if in.MustFindAllGroups {
			return nil, errors.E(op, gtf.Check())
		}
		klog.V(4).Infof("ignoring groups not found in any manifest: %v", rep.Missing)
	}
	return rep, nil
}

// builder accumulates rows in insertion order.
type builder struct {
	rows  map[types.Dest]*Row
	order []types.Dest
}

func newBuilder() *builder {
	return &builder{rows: make(map[types.Dest]*Row)}
}

func (b *builder) row(d types.Dest) *Row {
	if r, found := b.rows[d]; found {
		return r
	}
	r := &Row{Dest: d}
	b.rows[d] = r
	b.order = append(b.order, d)
	return r
}

func (b *builder) declare(src Source, repo manifest.Repo, groups []string) {
	r := b.row(repo.Dest)
	r.Presence |= src.presence()
	decl := &Declared{Repo: repo, Groups: groups}
	switch src {
	case Local:
		r.Local = decl
	case Deep:
		r.Deep = decl
	case Future:
		r.Future = decl
	}
}

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

// Package dumpmanifest builds manifests from the repositories found on disk.
package dumpmanifest

import (
	"context"
	"fmt"
	"strings"

	"github.com/kptdev/wsrc/internal/errors"
	"github.com/kptdev/wsrc/internal/executor"
	"github.com/kptdev/wsrc/internal/gitutil"
	"github.com/kptdev/wsrc/internal/manifest"
	"github.com/kptdev/wsrc/internal/status"
	"github.com/kptdev/wsrc/internal/types"
	wstrings "github.com/kptdev/wsrc/internal/util/strings"
)

// Item is the state of one repository, as written to a manifest.
type Item struct {
	Dest    types.Dest
	Remotes []manifest.Remote
	Branch  string
	Tag     string
	Commit  string
	// Diverged is set when the branch is ahead of or behind its upstream.
	Diverged         bool
	IgnoreSubmodules bool
}

// Grabber is the executor.Task reading one repository per destination.
// Results are stored by input index.
type Grabber struct {
	Runner gitutil.Runner
	Root   types.WorkspacePath
	// Declared holds what git cannot tell, like ignore_submodules.
	Declared map[types.Dest]manifest.Repo

	items []*Item
}

var _ executor.Task[types.Dest] = &Grabber{}

func (g *Grabber) DescribeItem(dest types.Dest) string {
	return string(dest)
}

func (g *Grabber) Process(ctx context.Context, index, _ int, dest types.Dest) executor.Outcome {
	item, err := g.Grab(ctx, dest)
	if err != nil {
		return executor.Outcome{Err: err}
	}
	g.items[index] = item
	if item == nil {
		return executor.Outcome{Summary: "skipping empty repository " + string(dest)}
	}
	return executor.Outcome{}
}

// Grab reads the remotes and the checked-out ref of the repository at dest.
// A repository without any commit yields a nil Item.
func (g *Grabber) Grab(ctx context.Context, dest types.Dest) (*Item, error) {
	const op errors.Op = "dumpmanifest.Grab"
	res := status.Collect(ctx, g.Runner, g.Root, dest)
	switch {
	case res.NotPresent:
		return nil, errors.E(op, dest, errors.MissingRepo, fmt.Errorf("%s does not exist", dest.In(g.Root)))
	case res.Err != nil:
		return nil, errors.E(op, dest, res.Err)
	case res.Snapshot.Empty:
		return nil, nil
	}

	remotes, err := readRemotes(ctx, gitutil.NewRepo(g.Runner, dest.In(g.Root)))
	if err != nil {
		return nil, errors.E(op, dest, err)
	}
	s := res.Snapshot
	item := &Item{
		Dest:     dest,
		Remotes:  remotes,
		Branch:   s.Branch,
		Tag:      s.Tag,
		Commit:   s.Commit,
		Diverged: s.Ahead > 0 || s.Behind > 0,
	}
	if r, found := g.Declared[dest]; found {
		item.IgnoreSubmodules = r.IgnoreSubmodules
	}
	return item, nil
}

// readRemotes lists the remotes of repo, origin first.
func readRemotes(ctx context.Context, repo *gitutil.Repo) ([]manifest.Remote, error) {
	rr, err := repo.Run(ctx, "config", "--get-regexp", `^remote\..*\.url$`)
	if err != nil {
		// no match
		if gitutil.ExitCode(err) == 1 {
			return nil, nil
		}
		return nil, err
	}
	var origin, others []manifest.Remote
	for _, line := range wstrings.NonEmptyLines(rr.Stdout) {
		key, url, found := strings.Cut(line, " ")
		if !found {
			continue
		}
		name := strings.TrimSuffix(strings.TrimPrefix(key, "remote."), ".url")
		r := manifest.Remote{Name: name, URL: strings.TrimSpace(url)}
		if name == manifest.OriginRemote {
			origin = append(origin, r)
		} else {
			others = append(others, r)
		}
	}
	return append(origin, others...), nil
}

// Grab reads the repositories at dests with the executor. Empty
// repositories are left out.
func Grab(ctx context.Context, e executor.Executor, g *Grabber, dests []types.Dest) ([]Item, error) {
	g.items = make([]*Item, len(dests))
	col := executor.Run[types.Dest](ctx, e, dests, g)
	col.PrintSummaries(ctx)
	var res []Item
	for _, item := range g.items {
		if item != nil {
			res = append(res, *item)
		}
	}
	return res, col.Err()
}

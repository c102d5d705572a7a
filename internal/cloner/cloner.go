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

// Package cloner clones the repositories of a manifest that are missing
// from the workspace.
package cloner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kptdev/wsrc/internal/errors"
	"github.com/kptdev/wsrc/internal/executor"
	"github.com/kptdev/wsrc/internal/gitutil"
	"github.com/kptdev/wsrc/internal/manifest"
	"github.com/kptdev/wsrc/internal/syncer"
	"github.com/kptdev/wsrc/internal/types"
	"k8s.io/klog/v2"
)

// Cloner is the executor.Task cloning one repository per item.
type Cloner struct {
	Runner gitutil.Runner
	Root   types.WorkspacePath

	// Shallow clones with --depth 1. It cannot be used for repositories
	// pinned to a commit.
	Shallow bool
	// RemoteName is the remote to clone from. The first declared remote is
	// used when empty.
	RemoteName string
}

var _ executor.Task[manifest.Repo] = &Cloner{}

func (c *Cloner) DescribeItem(r manifest.Repo) string {
	return string(r.Dest)
}

func (c *Cloner) Process(ctx context.Context, _, _ int, r manifest.Repo) executor.Outcome {
	summary, err := c.Clone(ctx, r)
	return executor.Outcome{Summary: summary, Err: err}
}

// Clone clones r, adds its other remotes and resets it to the declared
// commit, if any. A declared tag must point at that commit.
func (c *Cloner) Clone(ctx context.Context, r manifest.Repo) (string, error) {
	const op errors.Op = "cloner.Clone"
	if c.Shallow && r.Commit != "" {
		return "", errors.E(op, r.Dest, errors.InvalidParam,
			fmt.Errorf("cannot make a shallow clone with a fixed sha1 (%s), consider using a tag instead", r.Commit))
	}
	remote, err := c.chooseRemote(r)
	if err != nil {
		return "", errors.E(op, r.Dest, err)
	}

	dir := r.Dest.In(c.Root)
	parent, name := filepath.Dir(dir), filepath.Base(dir)
	if err := os.MkdirAll(parent, 0755); err != nil {
		return "", errors.E(op, r.Dest, errors.IO, err)
	}

	args := []string{"clone", "--origin", remote.Name, remote.URL}
	ref := r.Tag
	if ref == "" {
		ref = r.Branch
	}
	if ref != "" {
		args = append(args, "--branch", ref)
	}
	if c.Shallow {
		args = append(args, "--depth", "1")
	}
	if !r.IgnoreSubmodules {
		args = append(args, "--recurse-submodules")
	}
	args = append(args, name)
	if _, err := c.Runner.Run(ctx, parent, args...); err != nil {
		gitutil.AmendGitExecError(err, func(e *gitutil.GitExecError) {
			e.Repo = remote.URL
			e.Ref = ref
		})
		return "", errors.E(op, r.Dest, err)
	}

	repo := gitutil.NewRepo(c.Runner, dir)
	for _, rem := range r.Remotes {
		if rem.Name == remote.Name {
			continue
		}
		klog.V(4).Infof("%s: adding remote %s", r.Dest, rem.Name)
		if _, err := repo.Run(ctx, "remote", "add", rem.Name, rem.URL); err != nil {
			return "", errors.E(op, r.Dest, err)
		}
	}

	summary := fmt.Sprintf("%s cloned from %s", r.Dest, remote.URL)
	if ref != "" {
		summary += fmt.Sprintf(" (on %s)", ref)
	}
	if r.Commit != "" {
		commit, err := syncer.ResolveTarget(ctx, repo, r)
		if err != nil {
			return "", errors.E(op, r.Dest, err)
		}
		if _, err := repo.Run(ctx, "reset", "--hard", commit); err != nil {
			return "", errors.E(op, r.Dest, errors.RefResolutionFailed,
				fmt.Errorf("resetting to %s failed: %w", r.Commit, err))
		}
		summary += " and reset to " + r.Commit
	}
	return summary, nil
}

func (c *Cloner) chooseRemote(r manifest.Repo) (manifest.Remote, error) {
	if c.RemoteName == "" {
		if len(r.Remotes) == 0 {
			return manifest.Remote{}, errors.E(errors.InvalidConfig, "no remote declared")
		}
		return r.Remotes[0], nil
	}
	rem, found := r.Remote(c.RemoteName)
	if !found {
		return manifest.Remote{}, errors.E(errors.RemoteNotFound,
			fmt.Errorf("remote %q not found", c.RemoteName))
	}
	return rem, nil
}

// Missing returns the repositories of repos not present in the workspace.
func Missing(root types.WorkspacePath, repos []manifest.Repo) []manifest.Repo {
	var res []manifest.Repo
	for _, r := range repos {
		if _, err := os.Stat(r.Dest.In(root)); os.IsNotExist(err) {
			res = append(res, r)
		}
	}
	return res
}

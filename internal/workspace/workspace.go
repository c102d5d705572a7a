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

// Package workspace locates a workspace on disk, loads its configuration
// and provides the Local, Deep and Future manifests.
package workspace

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/kptdev/wsrc/internal/errors"
	"github.com/kptdev/wsrc/internal/gitutil"
	"github.com/kptdev/wsrc/internal/manifest"
	"github.com/kptdev/wsrc/internal/types"
	pkgerrors "github.com/pkg/errors"
	"k8s.io/klog/v2"
)

const (
	// Dir is the directory holding the workspace metadata, at the root of
	// the workspace.
	Dir = ".wsrc"

	manifestDir       = "manifest"
	futureManifestDir = "future_manifest"
)

// Workspace is a directory holding repositories described by a manifest.
type Workspace struct {
	Root   types.WorkspacePath
	Config *Config

	runner gitutil.Runner
}

// Find returns the workspace containing start: the closest directory,
// start included, that holds a Dir directory.
func Find(start string) (types.WorkspacePath, error) {
	const op errors.Op = "workspace.Find"
	abs, err := filepath.Abs(start)
	if err != nil {
		return "", errors.E(op, errors.IO, err)
	}
	for dir := abs; ; dir = filepath.Dir(dir) {
		if fi, err := os.Stat(filepath.Join(dir, Dir)); err == nil && fi.IsDir() {
			return types.WorkspacePath(dir), nil
		}
		if filepath.Dir(dir) == dir {
			break
		}
	}
	return "", errors.E(op, errors.MissingParam,
		fmt.Errorf("no workspace found in %s or any parent directory (missing %s)", abs, Dir))
}

// Open loads the workspace rooted at root.
func Open(root types.WorkspacePath, runner gitutil.Runner) (*Workspace, error) {
	const op errors.Op = "workspace.Open"
	w := &Workspace{Root: root, runner: runner}
	cfg, err := LoadConfig(w.ConfigPath())
	if err != nil {
		return nil, errors.E(op, err)
	}
	w.Config = cfg
	return w, nil
}

// Init creates the workspace metadata in root: the manifest clone and the
// configuration file.
func Init(ctx context.Context, root types.WorkspacePath, runner gitutil.Runner, cfg *Config) (*Workspace, error) {
	const op errors.Op = "workspace.Init"
	if err := cfg.Validate(); err != nil {
		return nil, errors.E(op, err)
	}
	w := &Workspace{Root: root, Config: cfg, runner: runner}
	if _, err := os.Stat(w.ConfigPath()); err == nil {
		return nil, errors.E(op, errors.Exist, fmt.Errorf("workspace already initialized in %s", root))
	}
	if err := os.MkdirAll(w.metaDir(), 0700); err != nil {
		return nil, errors.E(op, errors.IO, err)
	}
	if _, err := os.Stat(w.ManifestDir()); os.IsNotExist(err) {
		if _, err := runner.Run(ctx, w.metaDir(), "clone", cfg.ManifestURL,
			"--branch", cfg.ManifestBranch, manifestDir); err != nil {
			gitutil.AmendGitExecError(err, func(e *gitutil.GitExecError) {
				e.Repo = cfg.ManifestURL
				e.Ref = cfg.ManifestBranch
			})
			return nil, errors.E(op, err)
		}
	}
	if err := w.SaveConfig(); err != nil {
		return nil, errors.E(op, err)
	}
	return w, nil
}

func (w *Workspace) metaDir() string {
	return filepath.Join(string(w.Root), Dir)
}

// ConfigPath is the path of the configuration file.
func (w *Workspace) ConfigPath() string {
	return filepath.Join(w.metaDir(), ConfigFileName)
}

// ManifestDir is the path of the Local manifest clone.
func (w *Workspace) ManifestDir() string {
	return filepath.Join(w.metaDir(), manifestDir)
}

// FutureManifestDir is the path of the clone used to read the Future
// manifest.
func (w *Workspace) FutureManifestDir() string {
	return filepath.Join(w.metaDir(), futureManifestDir)
}

// Runner returns the git runner of the workspace.
func (w *Workspace) Runner() gitutil.Runner {
	return w.runner
}

// SaveConfig persists the configuration.
func (w *Workspace) SaveConfig() error {
	return w.Config.Save(w.ConfigPath())
}

// LocalManifest reads the manifest from the working tree of the manifest
// clone.
func (w *Workspace) LocalManifest() (*manifest.Manifest, error) {
	const op errors.Op = "workspace.LocalManifest"
	m, err := manifest.Load(filepath.Join(w.ManifestDir(), manifest.FileName))
	if err != nil {
		return nil, errors.E(op, err)
	}
	return m, nil
}

// UpdateManifest resets the Local manifest clone to the tip of the
// configured manifest branch and records that branch as in effect.
func (w *Workspace) UpdateManifest(ctx context.Context) error {
	const op errors.Op = "workspace.UpdateManifest"
	if err := w.updateClone(ctx, w.ManifestDir()); err != nil {
		return errors.E(op, err)
	}
	if w.Config.ManifestBranch0 != w.Config.ManifestBranch {
		w.Config.ManifestBranch0 = w.Config.ManifestBranch
		if err := w.SaveConfig(); err != nil {
			return errors.E(op, err)
		}
	}
	return nil
}

// updateClone points a manifest clone at the configured URL and resets it
// to origin/<manifest_branch>.
func (w *Workspace) updateClone(ctx context.Context, dir string) error {
	repo := gitutil.NewRepo(w.runner, dir)
	branch := w.Config.ManifestBranch
	upstream := "origin/" + branch
	steps := [][]string{
		{"remote", "set-url", "origin", w.Config.ManifestURL},
		{"fetch", "--prune", "origin"},
		{"checkout", "-B", branch},
		{"branch", "--set-upstream-to", upstream, branch},
		{"reset", "--hard", upstream},
	}
	for _, args := range steps {
		if _, err := repo.Run(ctx, args...); err != nil {
			gitutil.AmendGitExecError(err, func(e *gitutil.GitExecError) {
				e.Repo = w.Config.ManifestURL
				e.Ref = branch
			})
			return err
		}
	}
	return nil
}

// ManifestRepo returns the destination of the repository of m whose
// remotes point at the manifest URL.
func (w *Workspace) ManifestRepo(m *manifest.Manifest) (types.Dest, bool) {
	for _, r := range m.Repos() {
		for _, rem := range r.Remotes {
			if gitutil.SameURL(rem.URL, w.Config.ManifestURL) {
				return r.Dest, true
			}
		}
	}
	return "", false
}

// DeepManifest reads the manifest committed at HEAD of the manifest
// repository. When the manifest repository is cloned in the workspace its
// HEAD is used and its destination returned; otherwise the HEAD of the
// Local manifest clone is used.
func (w *Workspace) DeepManifest(ctx context.Context, local *manifest.Manifest) (*manifest.Manifest, types.Dest, error) {
	const op errors.Op = "workspace.DeepManifest"
	dir := w.ManifestDir()
	dest, found := w.ManifestRepo(local)
	if found {
		if _, err := os.Stat(dest.In(w.Root)); err == nil {
			dir = dest.In(w.Root)
		} else {
			klog.Warningf("manifest repository %s is not cloned, reading the deep manifest from %s", dest, dir)
		}
	}

	out, err := gitutil.NewRepo(w.runner, dir).Run(ctx, "show", "HEAD:"+manifest.FileName)
	if err != nil {
		return nil, dest, errors.E(op, dest, err)
	}
	m, err := manifest.Parse([]byte(out.Stdout))
	if err != nil {
		return nil, dest, errors.E(op, dest, pkgerrors.Wrapf(err, "deep manifest in %s", dir))
	}
	return m, dest, nil
}

// FutureManifest reads the manifest at the tip of the configured manifest
// branch, without touching the Local manifest clone. The first call seeds
// a dedicated clone by copying the Local one. With reuse set, an existing
// clone is read as is, without fetching.
func (w *Workspace) FutureManifest(ctx context.Context, reuse bool) (*manifest.Manifest, error) {
	const op errors.Op = "workspace.FutureManifest"
	dir := w.FutureManifestDir()
	_, statErr := os.Stat(dir)
	if os.IsNotExist(statErr) {
		if err := copyDir(w.ManifestDir(), dir); err != nil {
			return nil, errors.E(op, errors.IO, err)
		}
	}
	if !reuse || statErr != nil {
		if err := w.updateClone(ctx, dir); err != nil {
			return nil, errors.E(op, err)
		}
	} else {
		klog.V(4).Infof("reusing the future manifest in %s", dir)
	}
	m, err := manifest.Load(filepath.Join(dir, manifest.FileName))
	if err != nil {
		return nil, errors.E(op, err)
	}
	return m, nil
}

// ClonedDests lists the destinations of every git repository below the
// workspace root. The metadata directory is skipped and nested
// repositories are not descended into.
func (w *Workspace) ClonedDests() ([]types.Dest, error) {
	const op errors.Op = "workspace.ClonedDests"
	var res []types.Dest
	err := filepath.WalkDir(string(w.Root), func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		name := d.Name()
		if p != string(w.Root) && (name == Dir || name == ".git") {
			return filepath.SkipDir
		}
		if _, err := os.Stat(filepath.Join(p, ".git")); err == nil {
			if dest, ok := types.DestFromPath(w.Root, p); ok {
				res = append(res, dest)
				return filepath.SkipDir
			}
		}
		return nil
	})
	if err != nil {
		return nil, errors.E(op, errors.IO, err)
	}
	sort.Slice(res, func(i, j int) bool { return res[i] < res[j] })
	return res, nil
}

// IsCloned reports whether dest exists in the workspace.
func (w *Workspace) IsCloned(dest types.Dest) bool {
	_, err := os.Stat(dest.In(w.Root))
	return err == nil
}

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

// Package cmddumpmanifest contains the dump-manifest command
package cmddumpmanifest

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kptdev/wsrc/internal/docs"
	"github.com/kptdev/wsrc/internal/dumpmanifest"
	"github.com/kptdev/wsrc/internal/errors"
	"github.com/kptdev/wsrc/internal/gitutil"
	"github.com/kptdev/wsrc/internal/groups"
	"github.com/kptdev/wsrc/internal/manifest"
	"github.com/kptdev/wsrc/internal/printer"
	"github.com/kptdev/wsrc/internal/types"
	"github.com/kptdev/wsrc/internal/util/cmdutil"
	"github.com/kptdev/wsrc/internal/workspace"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
	"k8s.io/klog/v2"
)

// NewRunner returns a command runner.
func NewRunner(ctx context.Context, parent string) *Runner {
	r := &Runner{ctx: ctx}
	c := &cobra.Command{
		Use:     "dump-manifest",
		Args:    cobra.NoArgs,
		Short:   docs.DumpManifestShort,
		Long:    docs.DumpManifestShort + "\n" + docs.DumpManifestLong,
		Example: docs.DumpManifestExamples,
		PreRunE: r.preRunE,
		RunE:    r.runE,
	}

	c.Flags().StringVarP(&r.Raw, "raw", "r", "", "read the git repositories below this directory instead of the workspace.")
	c.Flags().BoolVarP(&r.Update, "update", "u", false, "update the manifest of the manifest repository.")
	c.Flags().StringVarP(&r.UpdateOn, "update-on", "U", "", "update this manifest file.")
	c.Flags().BoolVar(&r.NoRepoDelete, "no-repo-delete", false, "keep the repositories that were not found when updating.")
	c.Flags().BoolVar(&r.SHA1Only, "sha1-only", false, "write the commit of every repository.")
	c.Flags().BoolVarP(&r.SkipManifest, "skip-manifest", "X", false, "leave the manifest repository out.")
	c.Flags().BoolVarP(&r.OnlyManifest, "only-manifest", "M", false, "only consider the manifest repository.")
	c.Flags().BoolVarP(&r.Preview, "preview", "p", false, "write the manifest to the standard output.")
	c.Flags().StringVarP(&r.SaveTo, "save-to", "s", "", "file, or directory, to write the manifest to.")
	c.Flags().BoolVarP(&r.Force, "force", "f", false, "overwrite an existing file.")
	r.Groups.AddFlags(c)
	r.Filter.AddFlags(c)
	r.Exec.AddFlags(c)
	r.Workspace.AddFlags(c)
	cmdutil.FixDocs("wsrc", parent, c)
	r.Command = c
	return r
}

func NewCommand(ctx context.Context, parent string) *cobra.Command {
	return NewRunner(ctx, parent).Command
}

// Runner contains the run function
type Runner struct {
	ctx          context.Context
	Command      *cobra.Command
	Raw          string
	Update       bool
	UpdateOn     string
	NoRepoDelete bool
	SHA1Only     bool
	SkipManifest bool
	OnlyManifest bool
	Preview      bool
	SaveTo       string
	Force        bool
	Groups       cmdutil.GroupFlags
	Filter       cmdutil.FilterFlags
	Exec         cmdutil.ExecFlags
	Workspace    cmdutil.WorkspaceFlag

	// GitRunner runs git. The local git binary is used when nil.
	GitRunner gitutil.Runner
}

func (r *Runner) preRunE(_ *cobra.Command, _ []string) error {
	const op errors.Op = "cmddumpmanifest.preRunE"
	if r.Update && r.UpdateOn != "" {
		return errors.E(op, errors.InvalidParam, fmt.Errorf("--update and --update-on cannot be used together"))
	}
	if r.SkipManifest && r.OnlyManifest {
		return errors.E(op, errors.InvalidParam, fmt.Errorf("--skip-manifest and --only-manifest cannot be used together"))
	}
	return nil
}

// source is where the repositories are read from.
type source struct {
	root      types.WorkspacePath
	dests     []types.Dest
	declared  map[types.Dest]manifest.Repo
	deletable func(types.Dest) bool
}

func (r *Runner) runE(c *cobra.Command, _ []string) error {
	const op errors.Op = "cmddumpmanifest.runE"
	pr := printer.FromContextOrDie(r.ctx)
	e, err := r.Exec.Executor()
	if err != nil {
		return errors.E(op, err)
	}
	filter, err := r.Filter.Filter()
	if err != nil {
		return errors.E(op, err)
	}
	runner := r.GitRunner
	if runner == nil {
		if runner, err = cmdutil.NewGitRunner(); err != nil {
			return errors.E(op, err)
		}
	}

	// a workspace is optional in raw mode
	var w *workspace.Workspace
	root, err := r.Workspace.Root()
	switch {
	case err == nil:
		if w, err = workspace.Open(root, runner); err != nil {
			return errors.E(op, err)
		}
	case r.Raw == "":
		return errors.E(op, err)
	}
	var local *manifest.Manifest
	if w != nil {
		if local, err = w.LocalManifest(); err != nil {
			return errors.E(op, err)
		}
	}

	var src source
	if r.Raw != "" {
		src, err = r.rawSource(w, filter)
	} else {
		src, err = r.workspaceSource(w, local, filter)
	}
	if err != nil {
		return errors.E(op, err)
	}
	var skipped types.Dest
	src.dests, skipped = r.manifestFilter(w, local, src)
	if skipped != "" {
		// a skipped manifest repository stays in the updated manifest
		deletable := src.deletable
		src.deletable = func(d types.Dest) bool {
			return d != skipped && (deletable == nil || deletable(d))
		}
	}
	if len(src.dests) == 0 {
		return errors.E(op, errors.MissingRepo, fmt.Errorf("no repositories found"))
	}

	items, err := dumpmanifest.Grab(r.ctx, e, &dumpmanifest.Grabber{Runner: runner, Root: src.root, Declared: src.declared}, src.dests)
	if err != nil {
		return errors.E(op, err)
	}
	if missing := dumpmanifest.MissingRemotes(items); len(missing) > 0 {
		klog.Warningf("repositories without remotes cannot be cloned from this manifest: %s", joinDests(missing))
	}

	updatePath := r.UpdateOn
	if r.Update {
		if updatePath, err = deepManifestPath(w, local); err != nil {
			return errors.E(op, err)
		}
	}
	opts := dumpmanifest.Options{SHA1Only: r.SHA1Only, NoDelete: r.NoRepoDelete, Deletable: src.deletable}
	content, changed, err := render(items, updatePath, opts)
	if err != nil {
		return errors.E(op, err)
	}
	if _, err := manifest.Parse(content); err != nil {
		klog.Warningf("the resulting manifest is not valid: %v", err)
	}

	if r.Preview {
		if _, err := c.OutOrStdout().Write(content); err != nil {
			return errors.E(op, errors.IO, err)
		}
		if !changed {
			pr.Printf("no change detected\n")
		}
		return nil
	}
	if !changed {
		pr.Printf("nothing has been changed, skipping\n")
		return nil
	}

	target, err := r.target(src.root, updatePath)
	if err != nil {
		return errors.E(op, err)
	}
	if err := os.WriteFile(target, content, 0644); err != nil {
		return errors.E(op, errors.IO, err)
	}
	if updatePath != "" {
		pr.Printf("updated %s into %s\n", updatePath, target)
	} else {
		pr.Printf("manifest written to %s\n", target)
	}
	return nil
}

// workspaceSource selects the cloned repositories of the workspace groups.
func (r *Runner) workspaceSource(w *workspace.Workspace, m *manifest.Manifest, filter workspace.Filter) (source, error) {
	req := r.Groups.Request()
	repos, gtf, err := groups.Resolver{Defaults: w.Config.Defaults()}.Resolve(m, req, groups.NewToFind(req.Groups))
	if err != nil {
		return source{}, err
	}
	if !req.IgnoreMissing {
		if err := gtf.Check(); err != nil {
			return source{}, err
		}
	}

	selected := make(map[types.Dest]bool)
	src := source{root: w.Root, declared: make(map[types.Dest]manifest.Repo)}
	for _, repo := range repos {
		if !filter.Match(repo.Dest) {
			continue
		}
		selected[repo.Dest] = true
		if w.IsCloned(repo.Dest) {
			src.dests = append(src.dests, repo.Dest)
			src.declared[repo.Dest] = repo
		}
	}
	src.deletable = func(d types.Dest) bool { return selected[d] }
	return src, nil
}

// rawSource selects the git repositories found below the --raw directory.
func (r *Runner) rawSource(w *workspace.Workspace, filter workspace.Filter) (source, error) {
	dir := r.Raw
	// relative to an explicit workspace
	if w != nil && r.Workspace.Path != "" && !filepath.IsAbs(dir) {
		dir = filepath.Join(string(w.Root), dir)
	}
	root, found, err := dumpmanifest.Scan(dir)
	if err != nil {
		return source{}, err
	}
	pr := printer.FromContextOrDie(r.ctx)
	pr.Printf("found %d repositories in %s\n", len(found), root)

	src := source{root: root, deletable: filter.Match}
	for _, d := range found {
		if filter.Match(d) {
			src.dests = append(src.dests, d)
		}
	}
	return src, nil
}

// manifestFilter applies --skip-manifest and --only-manifest. The
// destination of the skipped manifest repository is returned too.
func (r *Runner) manifestFilter(w *workspace.Workspace, local *manifest.Manifest, src source) ([]types.Dest, types.Dest) {
	if !r.SkipManifest && !r.OnlyManifest {
		return src.dests, ""
	}
	var manifestDir string
	if w != nil {
		if d, found := w.ManifestRepo(local); found {
			manifestDir = d.In(w.Root)
		}
	}
	if manifestDir == "" {
		klog.Warningf("the manifest repository is not part of a workspace")
		if r.OnlyManifest {
			return nil, ""
		}
		return src.dests, ""
	}
	var res []types.Dest
	for _, d := range src.dests {
		if (d.In(src.root) == manifestDir) == r.OnlyManifest {
			res = append(res, d)
		}
	}
	var skipped types.Dest
	if r.SkipManifest {
		skipped, _ = types.DestFromPath(src.root, manifestDir)
	}
	return res, skipped
}

// deepManifestPath returns the manifest file of the manifest repository
// cloned in the workspace.
func deepManifestPath(w *workspace.Workspace, local *manifest.Manifest) (string, error) {
	if w != nil {
		if d, found := w.ManifestRepo(local); found && w.IsCloned(d) {
			return filepath.Join(d.In(w.Root), manifest.FileName), nil
		}
	}
	return "", errors.E(errors.MissingRepo,
		fmt.Errorf("the manifest repository is not cloned in the workspace, use --update-on instead"))
}

// render creates the manifest, or updates the one at updatePath, and
// reports whether the content differs from the update source.
func render(items []dumpmanifest.Item, updatePath string, opts dumpmanifest.Options) ([]byte, bool, error) {
	var out interface{} = dumpmanifest.Create(items, opts)
	changed := true
	if updatePath != "" {
		data, err := os.ReadFile(updatePath)
		if err != nil {
			return nil, false, errors.E(errors.IO, err)
		}
		var doc yaml.Node
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, false, errors.E(errors.InvalidConfig, fmt.Errorf("unable to parse %s: %w", updatePath, err))
		}
		if changed, err = dumpmanifest.Update(&doc, items, opts); err != nil {
			return nil, false, err
		}
		out = &doc
	}
	var buf bytes.Buffer
	if err := dumpmanifest.Encode(&buf, out); err != nil {
		return nil, false, err
	}
	return buf.Bytes(), changed, nil
}

// target returns the file to write. Only the update source may be
// overwritten without --force.
func (r *Runner) target(root types.WorkspacePath, updatePath string) (string, error) {
	target := r.SaveTo
	switch {
	case target == "" && updatePath != "":
		return updatePath, nil
	case target == "":
		target = filepath.Join(string(root), manifest.FileName)
	default:
		if fi, err := os.Stat(target); err == nil && fi.IsDir() {
			target = filepath.Join(target, manifest.FileName)
		}
	}
	if target == updatePath || r.Force {
		return target, nil
	}
	if _, err := os.Stat(target); err == nil {
		return "", errors.E(errors.Exist, fmt.Errorf("%s already exists, use --force to overwrite it", target))
	}
	return target, nil
}

func joinDests(dests []types.Dest) string {
	s := make([]string, len(dests))
	for i, d := range dests {
		s[i] = string(d)
	}
	return strings.Join(s, ", ")
}

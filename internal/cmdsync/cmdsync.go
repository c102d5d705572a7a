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

// Package cmdsync contains the sync command
package cmdsync

import (
	"context"
	"strings"

	"github.com/kptdev/wsrc/internal/cloner"
	"github.com/kptdev/wsrc/internal/docs"
	"github.com/kptdev/wsrc/internal/errors"
	"github.com/kptdev/wsrc/internal/executor"
	"github.com/kptdev/wsrc/internal/gitutil"
	"github.com/kptdev/wsrc/internal/groups"
	"github.com/kptdev/wsrc/internal/manifest"
	"github.com/kptdev/wsrc/internal/printer"
	"github.com/kptdev/wsrc/internal/syncer"
	"github.com/kptdev/wsrc/internal/util/cmdutil"
	"github.com/kptdev/wsrc/internal/workspace"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"
)

// NewRunner returns a command runner.
func NewRunner(ctx context.Context, parent string) *Runner {
	r := &Runner{ctx: ctx}
	c := &cobra.Command{
		Use:     "sync",
		Args:    cobra.NoArgs,
		Short:   docs.SyncShort,
		Long:    docs.SyncShort + "\n" + docs.SyncLong,
		Example: docs.SyncExamples,
		RunE:    r.runE,
	}

	c.Flags().BoolVar(&r.Force, "force", false, "pass --force to git fetch.")
	c.Flags().StringVarP(&r.RemoteName, "singular-remote", "r", "",
		"only fetch this remote. Defaults to the remote stored in the workspace, or every remote.")
	c.Flags().BoolVar(&r.CorrectBranch, "correct-branch", false,
		"check out the expected branch when another one is checked out and the working tree is clean.")
	c.Flags().BoolVar(&r.NoUpdateManifest, "no-update-manifest", false, "do not update the manifest first.")
	c.Flags().BoolVar(&r.NoUpdateConfig, "no-update-config", false,
		"do not store the requested groups in the workspace configuration.")
	c.Flags().BoolVar(&r.NoClone, "no-clone", false, "do not clone missing repositories.")
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
	ctx              context.Context
	Command          *cobra.Command
	Force            bool
	RemoteName       string
	CorrectBranch    bool
	NoUpdateManifest bool
	NoUpdateConfig   bool
	NoClone          bool
	Groups           cmdutil.GroupFlags
	Filter           cmdutil.FilterFlags
	Exec             cmdutil.ExecFlags
	Workspace        cmdutil.WorkspaceFlag

	// GitRunner runs git. The local git binary is used when nil.
	GitRunner gitutil.Runner
}

func (r *Runner) runE(c *cobra.Command, _ []string) error {
	const op errors.Op = "cmdsync.runE"
	pr := printer.FromContextOrDie(r.ctx)

	e, err := r.Exec.Executor()
	if err != nil {
		return errors.E(op, err)
	}
	filter, err := r.Filter.Filter()
	if err != nil {
		return errors.E(op, err)
	}
	w, err := r.Workspace.Open(r.GitRunner)
	if err != nil {
		return errors.E(op, err)
	}

	if !r.NoUpdateManifest {
		pr.Printf("updating manifest from %s (%s)\n", w.Config.ManifestURL, w.Config.ManifestBranch)
		if err := w.UpdateManifest(r.ctx); err != nil {
			return errors.E(op, err)
		}
	}
	m, err := w.LocalManifest()
	if err != nil {
		return errors.E(op, err)
	}

	req := r.Groups.Request()
	if len(req.Groups) == 0 {
		if err := r.pruneGroups(w, m); err != nil {
			return errors.E(op, err)
		}
	}
	repos, gtf, err := groups.Resolver{Defaults: w.Config.Defaults()}.Resolve(m, req, groups.NewToFind(req.Groups))
	if err != nil {
		return errors.E(op, err)
	}
	if !req.IgnoreMissing {
		if err := gtf.Check(); err != nil {
			return errors.E(op, err)
		}
	}
	repos = filter.Apply(w, repos)

	if err := r.updateConfig(c, w, m, gtf); err != nil {
		return errors.E(op, err)
	}
	remote := r.RemoteName
	if remote == "" {
		remote = w.Config.SingularRemote
	}

	var present, missing []manifest.Repo
	for _, repo := range repos {
		if w.IsCloned(repo.Dest) {
			present = append(present, repo)
		} else {
			missing = append(missing, repo)
		}
	}

	var cloneErr error
	if len(missing) > 0 {
		if r.NoClone {
			klog.V(4).Infof("not cloning %d missing repositories", len(missing))
		} else {
			cl := &cloner.Cloner{Runner: w.Runner(), Root: w.Root, Shallow: w.Config.ShallowClones, RemoteName: remote}
			clones := executor.Run(r.ctx, e, missing, cl)
			clones.PrintSummaries(r.ctx)
			cloneErr = clones.Err()
			// fresh clones go through the same sync as the others
			present = append(present, cloned(clones)...)
		}
	}

	s := &syncer.Syncer{
		Runner: w.Runner(),
		Root:   w.Root,
		Options: syncer.Options{
			Force:         r.Force,
			RemoteName:    remote,
			CorrectBranch: r.CorrectBranch,
		},
	}
	synced := executor.Run(r.ctx, e, present, s)
	synced.PrintSummaries(r.ctx)

	total := len(repos)
	if r.NoClone {
		total -= len(missing)
	}
	return executor.JoinFailed(total, cloneErr, synced.Err())
}

// pruneGroups drops the workspace groups removed from the manifest, so the
// remaining ones are still synced. The configuration is only saved when
// updating it is allowed.
func (r *Runner) pruneGroups(w *workspace.Workspace, m *manifest.Manifest) error {
	dropped := w.Config.PruneRepoGroups(m)
	if len(dropped) == 0 {
		return nil
	}
	klog.Warningf("workspace groups %s are no longer in the manifest", strings.Join(dropped, ", "))
	if r.NoUpdateConfig {
		return nil
	}
	return w.SaveConfig()
}

// updateConfig stores the requested groups found in the manifest and the
// singular remote in the workspace configuration.
func (r *Runner) updateConfig(c *cobra.Command, w *workspace.Workspace, m *manifest.Manifest, gtf groups.ToFind) error {
	changed := false
	if !r.NoUpdateConfig && gtf.Explicit() {
		if found := foundGroups(gtf); len(found) > 0 {
			if err := w.Config.UpdateRepoGroups(m, found, false); err != nil {
				return err
			}
			changed = true
		}
	}
	if c.Flags().Changed("singular-remote") {
		w.Config.SingularRemote = r.RemoteName
		changed = true
	}
	if !changed {
		return nil
	}
	return w.SaveConfig()
}

// cloned returns the repositories cloned without error, in input order.
func cloned(c *executor.Collection[manifest.Repo]) []manifest.Repo {
	var res []manifest.Repo
	for _, result := range c.Results {
		if result.Err == nil {
			res = append(res, result.Item)
		}
	}
	return res
}

func foundGroups(gtf groups.ToFind) []string {
	missing := make(map[string]bool)
	for _, g := range gtf.Missing() {
		missing[g] = true
	}
	var found []string
	for _, g := range gtf.Requested() {
		if !missing[g] {
			found = append(found, g)
		}
	}
	return found
}

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

// Package cmdinit contains the init command
package cmdinit

import (
	"context"
	"os"
	"path/filepath"

	"github.com/kptdev/wsrc/internal/cloner"
	"github.com/kptdev/wsrc/internal/docs"
	"github.com/kptdev/wsrc/internal/errors"
	"github.com/kptdev/wsrc/internal/executor"
	"github.com/kptdev/wsrc/internal/gitutil"
	"github.com/kptdev/wsrc/internal/groups"
	"github.com/kptdev/wsrc/internal/printer"
	"github.com/kptdev/wsrc/internal/types"
	"github.com/kptdev/wsrc/internal/util/cmdutil"
	"github.com/kptdev/wsrc/internal/workspace"
	"github.com/spf13/cobra"
)

// NewRunner returns a command runner.
func NewRunner(ctx context.Context, parent string) *Runner {
	r := &Runner{ctx: ctx}
	c := &cobra.Command{
		Use:     "init URL [DIR]",
		Args:    cobra.RangeArgs(1, 2),
		Short:   docs.InitShort,
		Long:    docs.InitShort + "\n" + docs.InitLong,
		Example: docs.InitExamples,
		RunE:    r.runE,
	}

	c.Flags().StringVarP(&r.Branch, "branch", "b", "", "branch of the manifest repository.")
	c.Flags().BoolVar(&r.Shallow, "shallow", false, "make shallow clones.")
	c.Flags().BoolVar(&r.NoClone, "no-clone", false, "only create the workspace.")
	c.Flags().StringVarP(&r.RemoteName, "singular-remote", "r", "",
		"remote to clone from. Defaults to the first remote of each repository.")
	r.Groups.AddFlags(c)
	r.Exec.AddFlags(c)
	cmdutil.FixDocs("wsrc", parent, c)
	r.Command = c
	return r
}

func NewCommand(ctx context.Context, parent string) *cobra.Command {
	return NewRunner(ctx, parent).Command
}

// Runner contains the run function
type Runner struct {
	ctx        context.Context
	Command    *cobra.Command
	Branch     string
	Shallow    bool
	NoClone    bool
	RemoteName string
	Groups     cmdutil.GroupFlags
	Exec       cmdutil.ExecFlags

	// GitRunner runs git. The local git binary is used when nil.
	GitRunner gitutil.Runner
}

func (r *Runner) runE(_ *cobra.Command, args []string) error {
	const op errors.Op = "cmdinit.runE"
	pr := printer.FromContextOrDie(r.ctx)

	dir := "."
	if len(args) > 1 {
		dir = args[1]
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return errors.E(op, errors.IO, err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return errors.E(op, errors.IO, err)
	}
	root := types.WorkspacePath(abs)

	e, err := r.Exec.Executor()
	if err != nil {
		return errors.E(op, err)
	}
	git := r.GitRunner
	if git == nil {
		if git, err = cmdutil.NewGitRunner(); err != nil {
			return errors.E(op, err)
		}
	}

	cfg := workspace.NewConfig(args[0], r.Branch)
	cfg.ShallowClones = r.Shallow
	cfg.CloneAllRepos = r.Groups.All
	cfg.SingularRemote = r.RemoteName

	pr.Printf("initializing workspace in %s from %s (%s)\n", root, cfg.ManifestURL, cfg.ManifestBranch)
	w, err := workspace.Init(r.ctx, root, git, cfg)
	if err != nil {
		return errors.E(op, err)
	}
	m, err := w.LocalManifest()
	if err != nil {
		return errors.E(op, err)
	}
	if err := w.Config.UpdateRepoGroups(m, r.Groups.Groups, r.Groups.IgnoreMissing); err != nil {
		return errors.E(op, err)
	}
	if err := w.SaveConfig(); err != nil {
		return errors.E(op, err)
	}
	if r.NoClone {
		return nil
	}

	resolver := groups.Resolver{Defaults: w.Config.Defaults()}
	repos, _, err := resolver.Resolve(m, groups.Request{IgnoreMissing: true}, groups.NewToFind(nil))
	if err != nil {
		return errors.E(op, err)
	}
	missing := cloner.Missing(root, repos)
	c := &cloner.Cloner{Runner: git, Root: root, Shallow: cfg.ShallowClones, RemoteName: cfg.SingularRemote}
	col := executor.Run(r.ctx, e, missing, c)
	col.PrintSummaries(r.ctx)
	return col.Err()
}

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

// Package cmdmanifest contains the manifest command
package cmdmanifest

import (
	"context"
	"fmt"
	"io"

	"github.com/kptdev/wsrc/internal/docs"
	"github.com/kptdev/wsrc/internal/errors"
	"github.com/kptdev/wsrc/internal/manifest"
	"github.com/kptdev/wsrc/internal/util/cmdutil"
	"github.com/kptdev/wsrc/internal/workspace"
	"github.com/spf13/cobra"
	"github.com/xlab/treeprint"
)

// NewRunner returns a command runner.
func NewRunner(ctx context.Context, parent string) *Runner {
	r := &Runner{ctx: ctx}
	c := &cobra.Command{
		Use:     "manifest",
		Args:    cobra.NoArgs,
		Short:   docs.ManifestShort,
		Long:    docs.ManifestShort + "\n" + docs.ManifestLong,
		Example: docs.ManifestExamples,
		RunE:    r.runE,
	}

	c.Flags().StringVar(&r.Branch, "branch", "", "manifest branch to use from the next sync on.")
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
	ctx       context.Context
	Command   *cobra.Command
	Branch    string
	Workspace cmdutil.WorkspaceFlag
}

func (r *Runner) runE(c *cobra.Command, _ []string) error {
	const op errors.Op = "cmdmanifest.runE"
	root, err := r.Workspace.Root()
	if err != nil {
		return errors.E(op, err)
	}
	// nothing here runs git
	w, err := workspace.Open(root, nil)
	if err != nil {
		return errors.E(op, err)
	}

	if r.Branch != "" && r.Branch != w.Config.ManifestBranch {
		if w.Config.ManifestBranch0 == "" {
			w.Config.ManifestBranch0 = w.Config.ManifestBranch
		}
		w.Config.ManifestBranch = r.Branch
		if err := w.SaveConfig(); err != nil {
			return errors.E(op, err)
		}
	}

	m, err := w.LocalManifest()
	if err != nil {
		return errors.E(op, err)
	}
	printManifest(c.OutOrStdout(), w.Config, m)
	return nil
}

func printManifest(w io.Writer, cfg *workspace.Config, m *manifest.Manifest) {
	fmt.Fprintf(w, "url: %s\n", cfg.ManifestURL)
	fmt.Fprintf(w, "branch: %s\n", cfg.ManifestBranch)
	if from, pending := cfg.PendingBranchChange(); pending {
		fmt.Fprintf(w, "  (currently %s, changed on the next sync)\n", from)
	}
	fmt.Fprintln(w)
	fmt.Fprint(w, groupTree(cfg, m).String())
}

// groupTree renders every group with its members, followed by the
// repositories in no group.
func groupTree(cfg *workspace.Config, m *manifest.Manifest) treeprint.Tree {
	selected := make(map[string]bool)
	for _, g := range cfg.RepoGroups {
		selected[g] = true
	}

	tree := treeprint.New()
	tree.SetValue(manifest.FileName)
	for _, name := range m.GroupNames() {
		label := name
		if selected[name] {
			label += " (workspace)"
		}
		branch := tree.AddBranch(label)
		members, _ := m.Members(name)
		for _, d := range members {
			repo, _ := m.Repo(d)
			branch.AddNode(describe(repo))
		}
	}

	var ungrouped []manifest.Repo
	for _, repo := range m.Repos() {
		if len(m.GroupsOf(repo.Dest)) == 0 {
			ungrouped = append(ungrouped, repo)
		}
	}
	if len(ungrouped) > 0 {
		branch := tree.AddBranch("(no group)")
		for _, repo := range ungrouped {
			branch.AddNode(describe(repo))
		}
	}
	return tree
}

func describe(r manifest.Repo) string {
	return fmt.Sprintf("%s [%s]", r.Dest, r.DescribeRef())
}

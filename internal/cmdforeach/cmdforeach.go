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

// Package cmdforeach contains the foreach command
package cmdforeach

import (
	"context"

	"github.com/kptdev/wsrc/internal/docs"
	"github.com/kptdev/wsrc/internal/errors"
	"github.com/kptdev/wsrc/internal/executor"
	"github.com/kptdev/wsrc/internal/foreach"
	"github.com/kptdev/wsrc/internal/groups"
	"github.com/kptdev/wsrc/internal/types"
	"github.com/kptdev/wsrc/internal/util/cmdutil"
	"github.com/kptdev/wsrc/internal/workspace"
	"github.com/spf13/cobra"
)

// NewRunner returns a command runner.
func NewRunner(ctx context.Context, parent string) *Runner {
	r := &Runner{ctx: ctx}
	c := &cobra.Command{
		Use:     "foreach [-- COMMAND [ARGS...]]",
		Args:    cobra.ArbitraryArgs,
		Short:   docs.ForeachShort,
		Long:    docs.ForeachShort + "\n" + docs.ForeachLong,
		Example: docs.ForeachExamples,
		PreRunE: r.preRunE,
		RunE:    r.runE,
	}
	// flags after the command belong to it
	c.Flags().SetInterspersed(false)

	c.Flags().StringVarP(&r.Line, "command", "c", "", "command line to run, split with shell quoting rules.")
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
	ctx       context.Context
	Command   *cobra.Command
	Line      string
	Groups    cmdutil.GroupFlags
	Filter    cmdutil.FilterFlags
	Exec      cmdutil.ExecFlags
	Workspace cmdutil.WorkspaceFlag

	argv []string
}

func (r *Runner) preRunE(_ *cobra.Command, args []string) error {
	const op errors.Op = "cmdforeach.preRunE"
	argv, err := foreach.ParseCommand(args, r.Line)
	if err != nil {
		return errors.E(op, err)
	}
	r.argv = argv
	return nil
}

func (r *Runner) runE(_ *cobra.Command, _ []string) error {
	const op errors.Op = "cmdforeach.runE"
	e, err := r.Exec.Executor()
	if err != nil {
		return errors.E(op, err)
	}
	filter, err := r.Filter.Filter()
	if err != nil {
		return errors.E(op, err)
	}
	filter.OnlyCloned = true

	root, err := r.Workspace.Root()
	if err != nil {
		return errors.E(op, err)
	}
	w, err := workspace.Open(root, nil)
	if err != nil {
		return errors.E(op, err)
	}
	m, err := w.LocalManifest()
	if err != nil {
		return errors.E(op, err)
	}

	req := r.Groups.Request()
	repos, gtf, err := groups.Resolver{Defaults: w.Config.Defaults()}.Resolve(m, req, groups.NewToFind(req.Groups))
	if err != nil {
		return errors.E(op, err)
	}
	if !req.IgnoreMissing {
		if err := gtf.Check(); err != nil {
			return errors.E(op, err)
		}
	}

	var dests []types.Dest
	for _, repo := range filter.Apply(w, repos) {
		dests = append(dests, repo.Dest)
	}
	col := executor.Run(r.ctx, e, dests, &foreach.Command{Argv: r.argv, Root: w.Root})
	col.PrintSummaries(r.ctx)
	return col.Err()
}

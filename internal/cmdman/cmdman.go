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

// Package cmdman contains the man command.
package cmdman

import (
	"context"
	"fmt"
	"path"
	"path/filepath"

	"github.com/kptdev/wsrc/internal/docs"
	"github.com/kptdev/wsrc/internal/errors"
	"github.com/kptdev/wsrc/internal/types"
	"github.com/kptdev/wsrc/internal/util/cmdutil"
	"github.com/kptdev/wsrc/internal/util/man"
	"github.com/kptdev/wsrc/internal/workspace"
	"github.com/spf13/cobra"
)

// NewRunner returns a command runner.
func NewRunner(ctx context.Context, parent string) *Runner {
	r := &Runner{ctx: ctx}
	c := &cobra.Command{
		Use:     "man [DEST]",
		Args:    cobra.MaximumNArgs(1),
		Short:   docs.ManShort,
		Long:    docs.ManShort + "\n" + docs.ManLong,
		Example: docs.ManExamples,
		RunE:    r.runE,
		PreRunE: r.preRunE,
	}
	c.Flags().StringVar(&r.Man.File, "file", "", "path of the manual inside the repository.")
	r.Workspace.AddFlags(c)
	cmdutil.FixDocs("wsrc", parent, c)

	r.Command = c
	return r
}

func NewCommand(ctx context.Context, parent string) *cobra.Command {
	return NewRunner(ctx, parent).Command
}

type Runner struct {
	ctx       context.Context
	Man       man.Command
	Command   *cobra.Command
	Workspace cmdutil.WorkspaceFlag
}

func (r *Runner) preRunE(c *cobra.Command, args []string) error {
	const op errors.Op = "cmdman.preRunE"
	root, err := r.Workspace.Root()
	if err != nil {
		return errors.E(op, err)
	}
	w, err := workspace.Open(root, nil)
	if err != nil {
		return errors.E(op, err)
	}

	r.Man.Dir = w.ManifestDir()
	if len(args) > 0 {
		d := types.Dest(path.Clean(filepath.ToSlash(args[0])))
		if !w.IsCloned(d) {
			return errors.E(op, errors.MissingRepo, d, fmt.Errorf("repository is not cloned"))
		}
		r.Man.Dir = d.In(w.Root)
	}
	r.Man.StdOut = c.OutOrStdout()
	return nil
}

func (r *Runner) runE(_ *cobra.Command, _ []string) error {
	return r.Man.Run()
}

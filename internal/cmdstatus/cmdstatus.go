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

// Package cmdstatus contains the status command
package cmdstatus

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/kptdev/wsrc/internal/docs"
	"github.com/kptdev/wsrc/internal/errors"
	"github.com/kptdev/wsrc/internal/gitutil"
	"github.com/kptdev/wsrc/internal/groups"
	"github.com/kptdev/wsrc/internal/manifest"
	"github.com/kptdev/wsrc/internal/reconcile"
	"github.com/kptdev/wsrc/internal/util/cmdutil"
	wstrings "github.com/kptdev/wsrc/internal/util/strings"
	"github.com/kptdev/wsrc/internal/workspace"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"
	"sigs.k8s.io/yaml"
)

const (
	outputTable = "table"
	outputYAML  = "yaml"
	outputJSON  = "json"
)

// NewRunner returns a command runner.
func NewRunner(ctx context.Context, parent string) *Runner {
	r := &Runner{ctx: ctx}
	c := &cobra.Command{
		Use:     "status",
		Args:    cobra.NoArgs,
		Short:   docs.StatusShort,
		Long:    docs.StatusShort + "\n" + docs.StatusLong,
		Example: docs.StatusExamples,
		PreRunE: r.preRunE,
		RunE:    r.runE,
	}

	c.Flags().StringVarP(&r.Output, "output", "o", outputTable,
		fmt.Sprintf("output format, one of %s.", wstrings.JoinStringsWithQuotes([]string{outputTable, outputYAML, outputJSON})))
	c.Flags().BoolVar(&r.NoDeep, "no-dm", false, "do not read the deep manifest.")
	c.Flags().BoolVar(&r.NoFuture, "no-fm", false, "do not fetch the future manifest.")
	c.Flags().BoolVar(&r.SameFuture, "same-fm", false, "reuse the future manifest of the previous run without fetching.")
	c.Flags().BoolVar(&r.NoMarker, "no-mm", false, "do not mark the manifest repository.")
	c.Flags().BoolVar(&r.Strict, "strict", false, "do not collect the status of leftovers.")
	r.Groups.AddFlags(c)
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
	ctx        context.Context
	Command    *cobra.Command
	Output     string
	NoDeep     bool
	NoFuture   bool
	SameFuture bool
	NoMarker   bool
	Strict     bool
	Groups     cmdutil.GroupFlags
	Exec       cmdutil.ExecFlags
	Workspace  cmdutil.WorkspaceFlag

	// GitRunner runs git. The local git binary is used when nil.
	GitRunner gitutil.Runner
}

func (r *Runner) preRunE(_ *cobra.Command, _ []string) error {
	const op errors.Op = "cmdstatus.preRunE"
	switch r.Output {
	case outputTable, outputYAML, outputJSON:
		return nil
	}
	return errors.E(op, errors.InvalidParam, fmt.Errorf("unknown output format %q", r.Output))
}

func (r *Runner) runE(c *cobra.Command, _ []string) error {
	const op errors.Op = "cmdstatus.runE"
	e, err := r.Exec.Executor()
	if err != nil {
		return errors.E(op, err)
	}
	e.Quiet = true
	w, err := r.Workspace.Open(r.GitRunner)
	if err != nil {
		return errors.E(op, err)
	}

	local, err := w.LocalManifest()
	if err != nil {
		return errors.E(op, err)
	}
	in := reconcile.Input{
		Local:             local,
		Resolver:          groups.Resolver{Defaults: w.Config.Defaults()},
		Request:           r.Groups.Request(),
		MustFindAllGroups: !r.Groups.IgnoreMissing,
	}
	in.ManifestDest, _ = w.ManifestRepo(local)
	if !r.NoDeep {
		deep, dest, err := w.DeepManifest(r.ctx, local)
		if err != nil {
			klog.Warningf("unable to read the deep manifest: %v", err)
		} else {
			in.Deep, in.ManifestDest = deep, dest
		}
	}
	if !r.NoFuture {
		future, err := w.FutureManifest(r.ctx, r.SameFuture)
		if err != nil {
			klog.Warningf("unable to read the future manifest: %v", err)
		} else {
			in.Future = future
		}
	}
	if r.NoMarker {
		in.ManifestDest = ""
	}
	in.NoLeftoverStatus = r.Strict
	if in.Cloned, err = w.ClonedDests(); err != nil {
		return errors.E(op, err)
	}

	engine := &reconcile.Engine{Runner: w.Runner(), Root: w.Root, Executor: e}
	rep, err := engine.Build(r.ctx, in)
	if err != nil {
		return errors.E(op, err)
	}

	out := c.OutOrStdout()
	switch r.Output {
	case outputYAML, outputJSON:
		return printStructured(out, r.Output, newDocument(w.Config, rep))
	}
	printHeader(out, w.Config)
	printTable(out, rep)
	printFooter(out, rep)
	return nil
}

// document is the yaml and json form of the report.
type document struct {
	ManifestURL    string `json:"manifestURL"`
	ManifestBranch string `json:"manifestBranch"`
	// PendingFrom is the manifest branch in effect until the next sync.
	PendingFrom string `json:"pendingBranchChangeFrom,omitempty"`
	*reconcile.Report
}

func newDocument(cfg *workspace.Config, rep *reconcile.Report) document {
	d := document{
		ManifestURL:    cfg.ManifestURL,
		ManifestBranch: cfg.ManifestBranch,
		Report:         rep,
	}
	d.PendingFrom, _ = cfg.PendingBranchChange()
	return d
}

func printStructured(w io.Writer, format string, d document) error {
	const op errors.Op = "cmdstatus.print"
	var b []byte
	var err error
	if format == outputJSON {
		if b, err = json.MarshalIndent(d, "", "  "); err == nil {
			b = append(b, '\n')
		}
	} else {
		b, err = yaml.Marshal(d)
	}
	if err != nil {
		return errors.E(op, errors.Internal, err)
	}
	_, err = w.Write(b)
	return err
}

func printHeader(w io.Writer, cfg *workspace.Config) {
	fmt.Fprintf(w, "manifest: %s (%s)\n", cfg.ManifestURL, cfg.ManifestBranch)
	if from, pending := cfg.PendingBranchChange(); pending {
		fmt.Fprintf(w, "manifest branch changes from %s to %s on the next sync\n", from, cfg.ManifestBranch)
	}
}

func printTable(w io.Writer, rep *reconcile.Report) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"REPO", "CLASS", "STATUS", "MANIFEST", "NOTES"})
	for i := range rep.Rows {
		row := &rep.Rows[i]
		t.AppendRow(table.Row{repoCell(row), row.Class, statusCell(row), manifestCell(row), strings.Join(notes(row), "\n")})
	}
	t.Render()
}

func printFooter(w io.Writer, rep *reconcile.Report) {
	fmt.Fprintf(w, "%d matched, %d not cloned, %d leftover, %d incoming\n",
		rep.Count(reconcile.Matched), rep.Count(reconcile.ManifestOnly)+rep.Count(reconcile.DeepOnly),
		len(rep.Leftovers()), rep.Count(reconcile.Incoming))
	if len(rep.Missing) > 0 {
		fmt.Fprintf(w, "groups not found in any manifest: %s\n", wstrings.JoinStringsWithQuotes(rep.Missing))
	}
}

func repoCell(row *reconcile.Row) string {
	if row.IsManifest {
		return string(row.Dest) + " (manifest)"
	}
	return string(row.Dest)
}

func statusCell(row *reconcile.Row) string {
	switch {
	case row.Error != "":
		return "error"
	case row.Snapshot != nil:
		return row.Snapshot.Describe()
	case !row.Presence.Has(reconcile.OnDisk):
		return "not cloned"
	}
	return ""
}

func manifestCell(row *reconcile.Row) string {
	if row.Local == nil {
		return "-"
	}
	return row.Local.Repo.DescribeRef()
}

// notes lists what sync would complain about and how the other manifests
// differ from the Local one.
func notes(row *reconcile.Row) []string {
	var res []string
	if row.Err != nil {
		res = append(res, unwrapMessage(row.Err))
	}
	if m := row.BranchMismatch(); m != nil {
		res = append(res, m.Error())
	}
	if m := row.RefMismatch(); m != "" {
		res = append(res, m)
	}
	if d, drift := row.DeepDrift(); drift {
		res = append(res, "deep: "+describe(d))
	}
	if f, drift := row.FutureDrift(); drift {
		res = append(res, "future: "+describe(f))
	}
	return res
}

func describe(r manifest.Repo) string {
	if s := r.DescribeRef(); s != "" {
		return s
	}
	return string(r.Dest)
}

// unwrapMessage returns the message of the innermost error, which is the
// one naming the cause.
func unwrapMessage(err error) string {
	for {
		var e *errors.Error
		if !errors.As(err, &e) || e.Err == nil {
			return err.Error()
		}
		err = e.Err
	}
}

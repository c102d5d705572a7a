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

// Package executor runs a Task over a list of items with a bounded number
// of workers.
package executor

import (
	"context"
	goerrors "errors"
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/kptdev/wsrc/internal/printer"
	wstrings "github.com/kptdev/wsrc/internal/util/strings"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"
)

// Outcome is what processing one item produced: a human readable summary,
// possibly empty, or an error.
type Outcome struct {
	Summary string
	Err     error
}

// Task is the per-item work run by the executor.
type Task[T any] interface {
	// DescribeItem returns a short name for item, used in progress lines
	// and error reports.
	DescribeItem(item T) string
	// Process handles item. index is the position of item in the input
	// and count the number of items. Process must only touch state owned
	// by item.
	Process(ctx context.Context, index, count int, item T) Outcome
}

// Result pairs an item with its outcome.
type Result[T any] struct {
	Item        T
	Description string
	Outcome
}

// Collection holds the results in input order.
type Collection[T any] struct {
	Results []Result[T]
}

// Failed returns the results that carry an error, in input order.
func (c *Collection[T]) Failed() []Result[T] {
	var res []Result[T]
	for _, r := range c.Results {
		if r.Err != nil {
			res = append(res, r)
		}
	}
	return res
}

// Err returns a *FailedError when at least one item failed.
func (c *Collection[T]) Err() error {
	failed := c.Failed()
	if len(failed) == 0 {
		return nil
	}
	fe := &FailedError{Total: len(c.Results)}
	for _, r := range failed {
		fe.Items = append(fe.Items, r.Description)
	}
	return fe
}

// PrintSummaries prints the non-empty summaries in input order, then the
// error of every failed item on stderr.
func (c *Collection[T]) PrintSummaries(ctx context.Context) {
	pr := printer.FromContextOrDie(ctx)
	for _, r := range c.Results {
		if r.Summary != "" {
			pr.Printf("%s\n", r.Summary)
		}
	}
	for _, r := range c.Failed() {
		pr.OptPrintf(printer.NewOpt().Stderr(), "Error: %v\n", r.Err)
	}
}

// JoinFailed merges the *FailedError values of several batches over total
// items. Other errors are returned as is; nil is returned when no batch
// failed.
func JoinFailed(total int, errs ...error) error {
	var fe *FailedError
	for _, err := range errs {
		if err == nil {
			continue
		}
		var f *FailedError
		if !goerrors.As(err, &f) {
			return err
		}
		if fe == nil {
			fe = &FailedError{Total: total}
		}
		fe.Items = append(fe.Items, f.Items...)
	}
	if fe == nil {
		return nil
	}
	return fe
}

// FailedError reports which items of a batch failed.
type FailedError struct {
	Items []string
	Total int
}

func (e *FailedError) Error() string {
	return fmt.Sprintf("%d of %d repos failed: %s", len(e.Items), e.Total,
		wstrings.JoinStringsWithQuotes(e.Items))
}

// Executor configures a run.
type Executor struct {
	// Jobs is the maximum number of items processed at the same time.
	// Values below 1 mean one per CPU.
	Jobs int
	// Quiet disables the per-item progress lines.
	Quiet bool
}

// Run processes every item with task and returns the results in the order
// of items. A failing item never stops the others and the context is not
// cancelled on failure.
func Run[T any](ctx context.Context, e Executor, items []T, task Task[T]) *Collection[T] {
	jobs := e.Jobs
	if jobs < 1 {
		jobs = runtime.NumCPU()
	}
	klog.V(4).Infof("processing %d items with %d jobs", len(items), jobs)

	results := make([]Result[T], len(items))
	var done int32
	count := len(items)

	var g errgroup.Group
	g.SetLimit(jobs)
	for i := range items {
		i := i
		g.Go(func() error {
			item := items[i]
			desc := task.DescribeItem(item)
			out := task.Process(ctx, i, count, item)
			results[i] = Result[T]{Item: item, Description: desc, Outcome: out}
			n := int(atomic.AddInt32(&done, 1))
			if !e.Quiet {
				report(ctx, n-1, count, desc, out)
			}
			return nil
		})
	}
	// workers never return an error
	_ = g.Wait()
	return &Collection[T]{Results: results}
}

// report prints one line per completed item. The printer writes each call
// atomically.
func report(ctx context.Context, n, count int, desc string, out Outcome) {
	pr := printer.FromContextOrDie(ctx)
	status := "[PASS]"
	if out.Err != nil {
		status = "[FAIL]"
	}
	pr.OptPrintf(printer.NewOpt().Count(n, count), "%s %s\n", status, desc)
}

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

// Package printer defines utilities to display wsrc CLI output.
package printer

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/kptdev/wsrc/internal/types"
)

// Printer defines capabilities to display content in wsrc CLI.
// Implementations must be safe for concurrent use: every call writes its
// whole output in one piece so lines from parallel workers never interleave.
type Printer interface {
	Printf(format string, args ...interface{})
	OptPrintf(opt *Options, format string, args ...interface{})
}

// Options are optional options for printer
type Options struct {
	// Indentation is the number of spaces added at the beginning
	// of each line
	Indentation int
	// OutputToStderr indicates should output be printed to stderr instead
	// of stdout
	OutputToStderr bool
	// Dest is the repository the output is about.
	Dest types.Dest
	// Progress is the "(i/n)" counter printed before the repository.
	Progress string
}

// NewOpt returns a pointer to new options
func NewOpt() *Options {
	return &Options{}
}

// Repo sets the repository destination in options
func (opt *Options) Repo(d types.Dest) *Options {
	opt.Dest = d
	return opt
}

// Count sets the "(index/count)" progress counter in options. index is
// zero-based.
func (opt *Options) Count(index, count int) *Options {
	width := len(fmt.Sprint(count))
	opt.Progress = fmt.Sprintf("(%*d/%d)", width, index+1, count)
	return opt
}

// Indent sets the output indentation in options
func (opt *Options) Indent(i int) *Options {
	opt.Indentation = i
	return opt
}

// Stderr sets output to stderr in options
func (opt *Options) Stderr() *Options {
	opt.OutputToStderr = true
	return opt
}

// New returns an instance of Printer.
func New(outStream, errStream io.Writer) Printer {
	if outStream == nil {
		outStream = os.Stdout
	}
	if errStream == nil {
		errStream = os.Stderr
	}
	return &printer{
		outStream: outStream,
		errStream: errStream,
	}
}

// printer implements default Printer to be used in wsrc codebase.
type printer struct {
	mu        sync.Mutex
	outStream io.Writer
	errStream io.Writer
}

// The key type is unexported to prevent collisions with context keys defined in
// other packages.
type contextKey int

// printerKey is the context key for the printer.  Its value of zero is
// arbitrary.  If this package defined other context keys, they would have
// different integer values.
const printerKey contextKey = 0

// Printf is the wrapper over fmt.Printf that displays the output.
func (pr *printer) Printf(format string, args ...interface{}) {
	pr.write(pr.outStream, fmt.Sprintf(format, args...))
}

// OptPrintf is the wrapper over fmt.Printf that displays the output according
// to the opt.
func (pr *printer) OptPrintf(opt *Options, format string, args ...interface{}) {
	if opt == nil {
		pr.Printf(format, args...)
		return
	}
	o := pr.outStream
	if opt.OutputToStderr {
		o = pr.errStream
	}
	pr.write(o, Format(opt, format, args...))
}

func (pr *printer) write(w io.Writer, s string) {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	fmt.Fprint(w, s)
}

// Format renders format and args according to opt without printing them.
func Format(opt *Options, format string, args ...interface{}) string {
	var prefix []string
	if opt.Progress != "" {
		prefix = append(prefix, opt.Progress)
	}
	if !opt.Dest.Empty() {
		prefix = append(prefix, string(opt.Dest)+":")
	}
	if len(prefix) > 0 {
		format = strings.Join(prefix, " ") + " " + format
	}
	s := fmt.Sprintf(format, args...)
	if opt.Indentation != 0 {
		return indent(opt.Indentation, s)
	}
	return s
}

func indent(indentation int, s string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		// don't print indentation when the line is empty
		if l != "" {
			lines[i] = strings.Repeat(" ", indentation) + l
		}
	}
	return strings.Join(lines, "\n")
}

// Helper functions to set and retrieve printer instance from a context.
// Defining them here avoids the context key collision.

// FromContextOrDie returns printer instance associated with the context.
func FromContextOrDie(ctx context.Context) Printer {
	pr, ok := ctx.Value(printerKey).(Printer)
	if ok {
		return pr
	}
	panic("printer missing in context")
}

// WithContext creates new context from the given parent context
// by setting the printer instance.
func WithContext(ctx context.Context, pr Printer) context.Context {
	return context.WithValue(ctx, printerKey, pr)
}

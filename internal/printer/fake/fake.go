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

package fake

import (
	"context"
	"fmt"
	"sync"

	"github.com/kptdev/wsrc/internal/printer"
)

// NilPrinter implements the printer.Printer interface and just ignores
// all print calls.
type NilPrinter struct{}

func (np *NilPrinter) OptPrintf(*printer.Options, string, ...interface{}) {}

func (np *NilPrinter) Printf(string, ...interface{}) {}

// CtxWithNilPrinter returns a new context with the NilPrinter added.
func CtxWithNilPrinter() context.Context {
	ctx := context.Background()
	return printer.WithContext(ctx, &NilPrinter{})
}

// RecordingPrinter keeps every printed chunk in call order. It is safe for
// concurrent use.
type RecordingPrinter struct {
	mu     sync.Mutex
	Chunks []string
}

func (rp *RecordingPrinter) Printf(format string, args ...interface{}) {
	rp.record(fmt.Sprintf(format, args...))
}

func (rp *RecordingPrinter) OptPrintf(opt *printer.Options, format string, args ...interface{}) {
	if opt == nil {
		rp.Printf(format, args...)
		return
	}
	rp.record(printer.Format(opt, format, args...))
}

func (rp *RecordingPrinter) record(s string) {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	rp.Chunks = append(rp.Chunks, s)
}

// Output returns everything printed so far.
func (rp *RecordingPrinter) Output() []string {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	return append([]string(nil), rp.Chunks...)
}

// CtxWithRecordingPrinter returns a new context with a RecordingPrinter
// added, and the printer itself.
func CtxWithRecordingPrinter() (context.Context, *RecordingPrinter) {
	rp := &RecordingPrinter{}
	return printer.WithContext(context.Background(), rp), rp
}

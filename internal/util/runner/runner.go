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

package runner

import (
	"fmt"
	"io"

	"github.com/go-errors/errors"
	"github.com/kptdev/wsrc/internal/errors/resolver"
	"github.com/kptdev/wsrc/internal/util/cmdutil"
)

// HandleError prints err for the user on w and returns the exit code the
// process should terminate with. A nil error yields 0.
func HandleError(w io.Writer, err error) int {
	if err == nil {
		return 0
	}
	if cmdutil.PrintErrorStacktrace() {
		fmt.Fprintf(w, "%s", errors.Wrap(err, 1).Stack())
	}

	if rr, resolved := resolver.ResolveError(err); resolved {
		fmt.Fprintf(w, "%s\n", rr.Message)
		return rr.ExitCode
	}
	fmt.Fprintf(w, "Error: %v\n", err)
	return 1
}

// Copyright 2021 Google LLC
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

// Package errors defines the error handling used by the wsrc codebase.
package errors

import (
	goerrors "errors"
	"fmt"
	"strings"

	"github.com/kptdev/wsrc/internal/types"
	wstrings "github.com/kptdev/wsrc/internal/util/strings"
)

// Error is an implementation of the error interface used in the wsrc
// codebase.
// It is based on the design in https://commandcenter.blogspot.com/2017/12/error-handling-in-upspin.html
type Error struct {
	// Dest is the destination of the repository involved in the operation.
	Dest types.Dest

	// Op is the operation being performed, for ex. syncer.fetch, status.collect
	Op Op

	// Kind refers to class of errors
	Kind Kind

	// Err refers to wrapped error (if any)
	Err error
}

func (e *Error) Error() string {
	b := new(strings.Builder)

	if e.Op != "" {
		pad(b, ": ")
		b.WriteString(string(e.Op))
	}

	if e.Dest != "" {
		pad(b, ": ")
		b.WriteString("repo ")
		b.WriteString(string(e.Dest))
	}

	if e.Kind != 0 {
		pad(b, ": ")
		b.WriteString(e.Kind.String())
	}

	if e.Err != nil {
		if wrappedErr, ok := e.Err.(*Error); ok {
			if !wrappedErr.Zero() {
				pad(b, ":\n\t")
				b.WriteString(wrappedErr.Error())
			}
		} else {
			pad(b, ": ")
			b.WriteString(e.Err.Error())
		}
	}
	if b.Len() == 0 {
		return "no error"
	}
	return b.String()
}

// Unwrap returns the wrapped error so the standard errors.Is and errors.As
// can walk the chain.
func (e *Error) Unwrap() error {
	return e.Err
}

// pad appends given str to the string buffer.
func pad(b *strings.Builder, str string) {
	if b.Len() == 0 {
		return
	}
	b.WriteString(str)
}

func (e *Error) Zero() bool {
	return e.Op == "" && e.Dest == "" && e.Kind == 0 && e.Err == nil
}

// Op describes the operation being performed.
type Op string

// Kind describes the class of errors encountered.
type Kind int

const (
	Other                 Kind = iota // Unclassified. Will not be printed.
	Exist                             // Item already exists.
	Internal                          // Internal error.
	InvalidParam                      // Value is not valid.
	MissingParam                      // Required value is missing or empty.
	Git                               // Errors from Git
	IO                                // Error doing IO operations
	InvalidConfig                     // Manifest or workspace configuration is invalid.
	MissingRepo                       // Repository is declared but not cloned.
	GroupNotFound                     // Requested group is unknown to every manifest.
	IncorrectBranch                   // Checked-out branch is not the declared one.
	DirtyWorkingTree                  // Working tree or index has modifications.
	RemoteNotFound                    // Named remote is not declared for the repository.
	FetchFailed                       // Fetching from a remote failed.
	RefResolutionFailed               // Tag or commit cannot be mapped to a valid target.
	NonFastForwardMerge               // Branch diverged from its upstream.
	SubmoduleUpdateFailed             // Submodule update failed.
)

func (k Kind) String() string {
	switch k {
	case Other:
		return "other error"
	case Exist:
		return "item already exist"
	case Internal:
		return "internal error"
	case InvalidParam:
		return "invalid parameter value"
	case MissingParam:
		return "missing parameter value"
	case Git:
		return "git error"
	case IO:
		return "IO error"
	case InvalidConfig:
		return "invalid configuration"
	case MissingRepo:
		return "missing repo"
	case GroupNotFound:
		return "group not found"
	case IncorrectBranch:
		return "incorrect branch"
	case DirtyWorkingTree:
		return "dirty working tree"
	case RemoteNotFound:
		return "remote not found"
	case FetchFailed:
		return "fetch failed"
	case RefResolutionFailed:
		return "ref resolution failed"
	case NonFastForwardMerge:
		return "non fast-forward merge"
	case SubmoduleUpdateFailed:
		return "submodule update failed"
	}
	return "unknown kind"
}

func E(args ...interface{}) error {
	if len(args) == 0 {
		panic("errors.E must have at least one argument")
	}

	e := &Error{}
	for _, arg := range args {
		switch a := arg.(type) {
		case types.Dest:
			e.Dest = a
		case Op:
			e.Op = a
		case Kind:
			e.Kind = a
		case *Error:
			cp := *a
			e.Err = &cp
		case error:
			e.Err = a
		case string:
			e.Err = goerrors.New(a)
		default:
			panic(fmt.Errorf("unknown type %T for value %v in call to error.E", a, a))
		}
	}

	wrappedErr, ok := e.Err.(*Error)
	if !ok {
		return e
	}

	if e.Dest == wrappedErr.Dest {
		wrappedErr.Dest = ""
	}

	if e.Op == wrappedErr.Op {
		wrappedErr.Op = ""
	}

	if e.Kind == wrappedErr.Kind {
		wrappedErr.Kind = 0
	}

	return e
}

// KindOf returns the first non-zero Kind found walking the error chain.
func KindOf(err error) Kind {
	for err != nil {
		if e, ok := err.(*Error); ok && e.Kind != Other {
			return e.Kind
		}
		err = goerrors.Unwrap(err)
	}
	return Other
}

// IsKind reports whether any error in the chain is an *Error of kind k.
func IsKind(err error, k Kind) bool {
	for err != nil {
		if e, ok := err.(*Error); ok && e.Kind == k {
			return true
		}
		err = goerrors.Unwrap(err)
	}
	return false
}

// As is a thin wrapper over the standard errors.As.
func As(err error, target interface{}) bool {
	return goerrors.As(err, target)
}

// IncorrectBranchError carries the branch found in the working copy and the
// branch declared in the manifest. Actual is empty when HEAD is detached.
type IncorrectBranchError struct {
	Actual   string
	Expected string
}

func (e *IncorrectBranchError) Error() string {
	switch {
	case e.Actual == "":
		return fmt.Sprintf("not on any branch, expected branch: %q", e.Expected)
	case e.Expected == "":
		return fmt.Sprintf("current branch: %q does not match empty branch", e.Actual)
	}
	return fmt.Sprintf("current branch: %q does not match expected branch: %q", e.Actual, e.Expected)
}

// GroupNotFoundError lists requested group names that no manifest
// recognized.
type GroupNotFoundError struct {
	Groups []string
}

func (e *GroupNotFoundError) Error() string {
	if len(e.Groups) == 1 {
		return fmt.Sprintf("no such group: %q", e.Groups[0])
	}
	return "no such groups: " + wstrings.JoinStringsWithQuotes(e.Groups)
}

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

package errors

import (
	"fmt"
	"strings"

	wstrings "github.com/kptdev/wsrc/internal/util/strings"
)

// ValidationError is an error type used when a manifest or workspace
// configuration fails validation.
type ValidationError struct {
	// File is the file being validated, if known.
	File       string
	Violations Violations
}

func (e *ValidationError) Error() string {
	b := new(strings.Builder)
	if e.File != "" {
		fmt.Fprintf(b, "%s: ", e.File)
	}
	fmt.Fprintf(b, "validation failed for fields %s",
		wstrings.JoinStringsWithQuotes(e.Violations.Fields()))
	for _, v := range e.Violations {
		fmt.Fprintf(b, "\n  * %s", v.String())
	}
	return b.String()
}

type ViolationType string

const (
	Missing   ViolationType = "missing"
	Invalid   ViolationType = "invalid"
	Duplicate ViolationType = "duplicate"
)

type Violations []Violation

func (v Violations) Fields() []string {
	var fields []string
	for _, v := range v {
		fields = append(fields, v.Field)
	}
	return wstrings.Dedupe(fields)
}

// Violation is a single validation failure, located by its yaml field path.
type Violation struct {
	Field  string
	Value  string
	Type   ViolationType
	Reason string
}

func (v Violation) String() string {
	s := fmt.Sprintf("%s %s", v.Field, v.Type)
	if v.Value != "" {
		s += fmt.Sprintf(" (%q)", v.Value)
	}
	if v.Reason != "" {
		s += ": " + v.Reason
	}
	return s
}

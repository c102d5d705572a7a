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

package strings

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// JoinStringsWithQuotes combines the elements in the string slice into
// a string, with each element inside quotes.
func JoinStringsWithQuotes(strs []string) string {
	quoted := make([]string, 0, len(strs))
	for _, s := range strs {
		quoted = append(quoted, fmt.Sprintf("%q", s))
	}
	return strings.Join(quoted, ", ")
}

// Underline returns s followed by a line of dashes of the same width.
func Underline(s string) string {
	return s + "\n" + strings.Repeat("-", utf8.RuneCountInString(s))
}

// NonEmptyLines splits s into lines, dropping blank ones and trailing
// whitespace.
func NonEmptyLines(s string) []string {
	var lines []string
	for _, l := range strings.Split(s, "\n") {
		l = strings.TrimRight(l, " \t\r")
		if l == "" {
			continue
		}
		lines = append(lines, l)
	}
	return lines
}

// Dedupe returns strs without repeated entries, keeping first occurrences.
func Dedupe(strs []string) []string {
	seen := make(map[string]bool, len(strs))
	var res []string
	for _, s := range strs {
		if seen[s] {
			continue
		}
		seen[s] = true
		res = append(res, s)
	}
	return res
}

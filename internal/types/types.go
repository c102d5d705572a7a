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

// Package types defines the basic types used by the wsrc codebase.
package types

import (
	"os"
	"path/filepath"
	"strings"
)

// Dest is the destination of a repository relative to the workspace root,
// always slash-separated. It is the unique key of a repository within a
// manifest.
type Dest string

// String returns the destination in string format.
func (d Dest) String() string {
	return string(d)
}

// Empty returns true if the destination is empty.
func (d Dest) Empty() bool {
	return len(d) == 0
}

// In returns the absolute OS path of the destination inside the workspace
// rooted at root.
func (d Dest) In(root WorkspacePath) string {
	return filepath.Join(string(root), filepath.FromSlash(string(d)))
}

// WorkspacePath represents absolute unique OS-defined path to the workspace
// root directory on the filesystem.
type WorkspacePath string

// String returns the absolute path in string format.
func (w WorkspacePath) String() string {
	return string(w)
}

// Empty returns true if the path is empty.
func (w WorkspacePath) Empty() bool {
	return len(w) == 0
}

// RelativePath returns the relative path to current working directory.
func (w WorkspacePath) RelativePath() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	rPath, err := filepath.Rel(cwd, string(w))
	if err != nil {
		return string(w), err
	}
	if strings.HasPrefix(rPath, "..") {
		return string(w), nil
	}
	return rPath, nil
}

// DestFromPath converts an OS path below root into a Dest. The second
// return value is false if p is not inside root.
func DestFromPath(root WorkspacePath, p string) (Dest, bool) {
	rel, err := filepath.Rel(string(root), p)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return Dest(filepath.ToSlash(rel)), true
}

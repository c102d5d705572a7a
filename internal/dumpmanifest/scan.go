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

package dumpmanifest

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kptdev/wsrc/internal/errors"
	"github.com/kptdev/wsrc/internal/types"
)

// Scan looks for git repositories below dir. Hidden directories are not
// descended into, nor are repositories. It returns the deepest directory
// holding every repository found, each keeping its own directory, and the
// repositories relative to it.
func Scan(dir string) (types.WorkspacePath, []types.Dest, error) {
	const op errors.Op = "dumpmanifest.Scan"
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", nil, errors.E(op, errors.IO, err)
	}
	var repos []string
	err = filepath.WalkDir(abs, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != abs && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if _, err := os.Stat(filepath.Join(p, ".git")); err == nil {
			repos = append(repos, p)
			return filepath.SkipDir
		}
		return nil
	})
	if err != nil {
		return "", nil, errors.E(op, errors.IO, err)
	}
	if len(repos) == 0 {
		return types.WorkspacePath(abs), nil, nil
	}

	common := filepath.Dir(repos[0])
	for _, p := range repos[1:] {
		common = commonDir(common, filepath.Dir(p))
	}
	root := types.WorkspacePath(common)
	var dests []types.Dest
	for _, p := range repos {
		if d, ok := types.DestFromPath(root, p); ok {
			dests = append(dests, d)
		}
	}
	sort.Slice(dests, func(i, j int) bool { return dests[i] < dests[j] })
	return root, dests, nil
}

// commonDir returns the deepest directory containing both a and b.
func commonDir(a, b string) string {
	for {
		rel, err := filepath.Rel(a, b)
		if err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return a
		}
		parent := filepath.Dir(a)
		if parent == a {
			return a
		}
		a = parent
	}
}

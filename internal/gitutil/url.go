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

package gitutil

import (
	"net/url"
	"regexp"
	"strings"
)

var scpLike = regexp.MustCompile(`^(?:[^@/]+@)?([^:/]+):(.+)$`)

// NormalizeURL reduces a git remote URL to "host/path" so that the https,
// ssh and scp-like spellings of the same repository compare equal. Local
// paths are returned cleaned, without a ".git" suffix.
func NormalizeURL(u string) string {
	u = strings.TrimSpace(u)
	u = strings.TrimSuffix(u, "/")
	u = strings.TrimSuffix(u, ".git")

	if strings.Contains(u, "://") {
		parsed, err := url.Parse(u)
		if err == nil {
			if parsed.Scheme == "file" {
				return parsed.Path
			}
			return strings.ToLower(parsed.Hostname()) + "/" + strings.TrimPrefix(parsed.Path, "/")
		}
		return u
	}
	// scp-like syntax, e.g. git@github.com:org/repo
	if m := scpLike.FindStringSubmatch(u); m != nil && !strings.HasPrefix(u, "/") {
		return strings.ToLower(m[1]) + "/" + strings.TrimPrefix(m[2], "/")
	}
	return u
}

// SameURL reports whether a and b refer to the same remote repository.
func SameURL(a, b string) bool {
	return NormalizeURL(a) == NormalizeURL(b)
}

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

package resolver

import (
	"strings"

	"github.com/kptdev/wsrc/internal/errors"
	"github.com/kptdev/wsrc/internal/gitutil"
)

//nolint:gochecknoinits
func init() {
	AddErrorResolver(&gitExecErrorResolver{})
}

const (
	genericGitExecError = `
Error: Failed to execute git command {{ printf "%q" .gitcmd }}
{{- if gt (len .dest) 0 }} in repo {{ printf "%q" .dest }}{{ end }}
{{- if gt (len .repo) 0 }} against {{ printf "%q" .repo }}{{ end }}
{{- if gt (len .ref) 0 }} for reference {{ printf "%q" .ref }}{{ end }}
{{- template "ExecOutputDetails" . }}
`

	unknownRefGitExecError = `
Error: Unknown ref {{ printf "%q" .ref }}. Please verify that the reference exists in {{ printf "%q" .repo }}.
{{- template "ExecOutputDetails" . }}
`

	noGitExecError = `
Error: No git executable found. wsrc requires git to be installed and available in the path.
`

	httpsAuthRequired = `
Error: Repository {{ printf "%q" .repo }} requires authentication. Use an ssh url or configure a git credential helper.
{{- template "ExecOutputDetails" . }}
`

	repositoryUnavailable = `
Error: Unable to access repository {{ printf "%q" .repo }}.
{{- template "ExecOutputDetails" . }}
`

	repositoryNotFound = `
Error: Repository {{ printf "%q" .repo }} not found.
{{- template "ExecOutputDetails" . }}
`

	localChangesOverwritten = `
Error: Local changes in {{ printf "%q" .dest }} would be overwritten. Commit or stash them and retry.
{{- template "ExecOutputDetails" . }}
`
)

// gitExecErrorResolver is an implementation of the ErrorResolver interface
// that can produce error messages for errors of the gitutil.GitExecError type.
type gitExecErrorResolver struct{}

func (*gitExecErrorResolver) Resolve(err error) (ResolvedResult, bool) {
	var gitExecErr *gitutil.GitExecError
	if !errors.As(err, &gitExecErr) {
		return ResolvedResult{}, false
	}
	var dest string
	var e *errors.Error
	if errors.As(err, &e) {
		dest = string(e.Dest)
	}

	tmplArgs := map[string]interface{}{
		"gitcmd": "git " + strings.Join(gitExecErr.Args, " "),
		"dest":   dest,
		"repo":   gitExecErr.Repo,
		"ref":    gitExecErr.Ref,
		"stdout": gitExecErr.StdOut,
		"stderr": gitExecErr.StdErr,
	}

	var msg string
	switch gitExecErr.Type {
	case gitutil.UnknownReference:
		msg = ExecuteTemplate(unknownRefGitExecError, tmplArgs)
	case gitutil.GitExecutableNotFound:
		msg = ExecuteTemplate(noGitExecError, tmplArgs)
	case gitutil.HTTPSAuthRequired:
		msg = ExecuteTemplate(httpsAuthRequired, tmplArgs)
	case gitutil.RepositoryUnavailable:
		msg = ExecuteTemplate(repositoryUnavailable, tmplArgs)
	case gitutil.RepositoryNotFound:
		msg = ExecuteTemplate(repositoryNotFound, tmplArgs)
	case gitutil.LocalChangesOverwritten:
		msg = ExecuteTemplate(localChangesOverwritten, tmplArgs)
	default:
		msg = ExecuteTemplate(genericGitExecError, tmplArgs)
	}
	return ResolvedResult{
		Message: msg,
	}, true
}

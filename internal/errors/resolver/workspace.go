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
	"github.com/kptdev/wsrc/internal/errors"
	"github.com/kptdev/wsrc/internal/executor"
)

//nolint:gochecknoinits
func init() {
	AddErrorResolver(&failedReposResolver{})
	AddErrorResolver(&groupNotFoundResolver{})
	AddErrorResolver(&validationErrorResolver{})
}

const (
	failedReposMsg = `
Error: {{ len .items }} of {{ .total }} repos failed:
{{- range .items }}
  * {{ . }}
{{- end }}
`

	groupNotFoundMsg = `
Error: {{ .err }}. Known groups are listed by 'wsrc manifest'.
Use --ignore-missing-groups to skip groups the manifest does not declare.
`
)

// failedReposResolver resolves the error returned when some repositories
// of a batch failed. Their errors are reported as they complete.
type failedReposResolver struct{}

func (*failedReposResolver) Resolve(err error) (ResolvedResult, bool) {
	var fe *executor.FailedError
	if !errors.As(err, &fe) {
		return ResolvedResult{}, false
	}
	return ResolvedResult{
		Message: ExecuteTemplate(failedReposMsg, map[string]interface{}{
			"items": fe.Items,
			"total": fe.Total,
		}),
	}, true
}

type groupNotFoundResolver struct{}

func (*groupNotFoundResolver) Resolve(err error) (ResolvedResult, bool) {
	var gnf *errors.GroupNotFoundError
	if !errors.As(err, &gnf) {
		return ResolvedResult{}, false
	}
	return ResolvedResult{
		Message: ExecuteTemplate(groupNotFoundMsg, map[string]interface{}{
			"err": gnf.Error(),
		}),
	}, true
}

// validationErrorResolver resolves manifest and configuration validation
// errors.
type validationErrorResolver struct{}

func (*validationErrorResolver) Resolve(err error) (ResolvedResult, bool) {
	var ve *errors.ValidationError
	if !errors.As(err, &ve) {
		return ResolvedResult{}, false
	}
	return ResolvedResult{
		Message: "Error: " + ve.Error(),
	}, true
}

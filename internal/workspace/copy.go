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

package workspace

import (
	"github.com/otiai10/copy"
	pkgerrors "github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// copyDir copies a manifest clone, .git directory included, so that the
// copy can be fetched and reset independently of the source.
func copyDir(srcDir, dstDir string) error {
	klog.V(4).Infof("seeding %s from %s", dstDir, srcDir)
	opts := copy.Options{
		// keep symlinks as they are, the clone is only used through git
		OnSymlink: func(string) copy.SymlinkAction {
			return copy.Shallow
		},
	}
	if err := copy.Copy(srcDir, dstDir, opts); err != nil {
		return pkgerrors.Wrapf(err, "unable to copy %s to %s", srcDir, dstDir)
	}
	return nil
}

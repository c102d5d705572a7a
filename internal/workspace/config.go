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
	"bytes"
	"fmt"
	"os"

	"github.com/kptdev/wsrc/internal/errors"
	"github.com/kptdev/wsrc/internal/groups"
	"github.com/kptdev/wsrc/internal/manifest"
	pkgerrors "github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// ConfigFileName is the name of the workspace configuration file inside
// the workspace directory.
const ConfigFileName = "config.yml"

// Config is the persisted workspace configuration.
type Config struct {
	ManifestURL    string `yaml:"manifest_url"`
	ManifestBranch string `yaml:"manifest_branch"`
	// ManifestBranch0 is the manifest branch in effect at the last sync. It
	// differs from ManifestBranch while a branch change is pending.
	ManifestBranch0 string   `yaml:"manifest_branch_0,omitempty"`
	RepoGroups      []string `yaml:"repo_groups"`
	ShallowClones   bool     `yaml:"shallow_clones"`
	CloneAllRepos   bool     `yaml:"clone_all_repos"`
	SingularRemote  string   `yaml:"singular_remote,omitempty"`
}

// LoadConfig reads the configuration file at p.
func LoadConfig(p string) (*Config, error) {
	const op errors.Op = "workspace.LoadConfig"
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, errors.E(op, errors.IO, pkgerrors.Wrapf(err, "unable to read workspace config %s", p))
	}

	var c Config
	d := yaml.NewDecoder(bytes.NewReader(data))
	d.KnownFields(true)
	if err := d.Decode(&c); err != nil {
		return nil, errors.E(op, errors.InvalidConfig, pkgerrors.Wrapf(err, "unable to parse workspace config %s", p))
	}
	if err := c.Validate(); err != nil {
		var ve *errors.ValidationError
		if errors.As(err, &ve) {
			ve.File = p
		}
		return nil, errors.E(op, err)
	}
	return &c, nil
}

// Save writes the configuration to p.
func (c *Config) Save(p string) error {
	const op errors.Op = "workspace.SaveConfig"
	b, err := yaml.Marshal(c)
	if err != nil {
		return errors.E(op, errors.Internal, err)
	}
	if err := os.WriteFile(p, b, 0600); err != nil {
		return errors.E(op, errors.IO, pkgerrors.Wrapf(err, "unable to write workspace config %s", p))
	}
	return nil
}

// Validate checks that the required fields are set.
func (c *Config) Validate() error {
	const op errors.Op = "workspace.Validate"
	var violations errors.Violations
	if c.ManifestURL == "" {
		violations = append(violations, errors.Violation{Field: "manifest_url", Type: errors.Missing})
	}
	if c.ManifestBranch == "" {
		violations = append(violations, errors.Violation{Field: "manifest_branch", Type: errors.Missing})
	}
	if len(violations) > 0 {
		return errors.E(op, errors.InvalidConfig, &errors.ValidationError{Violations: violations})
	}
	return nil
}

// Defaults returns the group defaults used when no group is requested.
func (c *Config) Defaults() groups.Defaults {
	return groups.Defaults{
		CloneAllRepos: c.CloneAllRepos,
		RepoGroups:    c.RepoGroups,
	}
}

// PendingBranchChange reports whether ManifestBranch was changed since the
// last sync, and from which branch.
func (c *Config) PendingBranchChange() (string, bool) {
	if c.ManifestBranch0 == "" || c.ManifestBranch0 == c.ManifestBranch {
		return "", false
	}
	return c.ManifestBranch0, true
}

// NewConfig returns the configuration of a freshly initialized workspace.
func NewConfig(url, branch string) *Config {
	if branch == "" {
		branch = manifest.DefaultBranch
	}
	return &Config{
		ManifestURL:     url,
		ManifestBranch:  branch,
		ManifestBranch0: branch,
	}
}

// UpdateRepoGroups stores the explicitly requested group names found in
// the manifest as the workspace groups. With ignoreMissing set, names the
// manifest does not declare are dropped; otherwise the update is refused.
func (c *Config) UpdateRepoGroups(m *manifest.Manifest, requested []string, ignoreMissing bool) error {
	const op errors.Op = "workspace.UpdateRepoGroups"
	if len(requested) == 0 {
		return nil
	}
	var keep, missing []string
	for _, g := range requested {
		if m.HasGroup(g) {
			keep = append(keep, g)
		} else {
			missing = append(missing, g)
		}
	}
	if len(missing) > 0 && !ignoreMissing {
		return errors.E(op, errors.GroupNotFound, &errors.GroupNotFoundError{Groups: missing})
	}
	if len(keep) == 0 {
		return errors.E(op, errors.InvalidParam, fmt.Errorf("none of the requested groups exist in the manifest"))
	}
	c.RepoGroups = keep
	return nil
}

// PruneRepoGroups drops the workspace groups the manifest no longer
// declares and returns them.
func (c *Config) PruneRepoGroups(m *manifest.Manifest) []string {
	var keep, dropped []string
	for _, g := range c.RepoGroups {
		if m.HasGroup(g) {
			keep = append(keep, g)
		} else {
			dropped = append(dropped, g)
		}
	}
	if len(dropped) > 0 {
		c.RepoGroups = keep
	}
	return dropped
}

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

// Package commands assembles the wsrc command set.
package commands

import (
	"context"
	"strings"

	"github.com/kptdev/wsrc/internal/cmddumpmanifest"
	"github.com/kptdev/wsrc/internal/cmdforeach"
	"github.com/kptdev/wsrc/internal/cmdinit"
	"github.com/kptdev/wsrc/internal/cmdman"
	"github.com/kptdev/wsrc/internal/cmdmanifest"
	"github.com/kptdev/wsrc/internal/cmdstatus"
	"github.com/kptdev/wsrc/internal/cmdsync"
	"github.com/spf13/cobra"
)

// GetWsrcCommands returns the set of wsrc commands to be registered
func GetWsrcCommands(ctx context.Context, name string) []*cobra.Command {
	c := []*cobra.Command{
		cmdinit.NewCommand(ctx, name),
		cmdsync.NewCommand(ctx, name),
		cmdstatus.NewCommand(ctx, name),
		cmdmanifest.NewCommand(ctx, name),
		cmddumpmanifest.NewCommand(ctx, name),
		cmdforeach.NewCommand(ctx, name),
		cmdman.NewCommand(ctx, name),
	}

	// apply cross-cutting issues to commands
	NormalizeCommand(c...)
	return c
}

// NormalizeCommand will modify commands to be consistent, e.g. silencing errors
func NormalizeCommand(c ...*cobra.Command) {
	for i := range c {
		cmd := c[i]
		cmd.Short = strings.TrimPrefix(cmd.Short, "[Alpha] ")
		cmd.SilenceUsage = true
		NormalizeCommand(cmd.Commands()...)
	}
}

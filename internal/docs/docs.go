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

// Package docs holds the help text of the wsrc commands.
package docs

var CliShort = `wsrc manages a workspace of git repositories described by a manifest`
var CliLong = `
wsrc keeps a directory of git repositories in line with a manifest: a yaml
file, versioned in its own repository, listing every repository with its
remotes, the branch it tracks or the exact tag or commit it is pinned to,
and the groups it belongs to.

The manifest is cloned in the .wsrc directory at the root of the workspace.
Commands find the workspace by walking up from the current directory.
`

var InitShort = `Create a workspace from a manifest repository`
var InitLong = `
  wsrc init URL [DIR] [flags]

Args:

  URL:
    The url of the repository holding manifest.yml.

  DIR:
    The root of the workspace. Defaults to the current directory.

Flags:

  --branch, -b:
    The branch of the manifest repository to use. Defaults to master.

  --group, -g:
    The groups of repositories to clone. They are stored in the workspace
    configuration and used by later commands.

  --all, -a:
    Clone every repository of the manifest, now and on later syncs.

  --shallow:
    Make shallow clones.

  --no-clone:
    Only create the workspace, do not clone any repository.
`
var InitExamples = `
  # create a workspace in the current directory with the default repositories
  $ wsrc init git@example.com:org/manifest

  # create a workspace in ws/ cloning the core and tools groups
  $ wsrc init git@example.com:org/manifest ws -g core,tools
`

var SyncShort = `Bring the repositories of the workspace in line with the manifest`
var SyncLong = `
  wsrc sync [flags]

The manifest is updated first, then the missing repositories are cloned and
every other selected repository is synchronized:

  * a repository pinned to a tag or commit is fetched and hard reset to it,
    after checking out its reconcile branch when one is declared. A dirty
    working tree is never reset.
  * a repository tracking a branch must have that branch checked out. It is
    fast-forwarded to its upstream; diverged branches are left untouched.

Submodules are updated unless the manifest opts the repository out.

Flags:

  --force:
    Pass --force to git fetch.

  --singular-remote, -r:
    Only fetch this remote. It is stored in the workspace configuration.

  --correct-branch:
    Check out the expected branch instead of failing when another one is
    checked out. The working tree must be clean.

  --no-update-manifest:
    Use the manifest as it is in the workspace.

  --no-update-config:
    Do not store the requested groups in the workspace configuration.

  --no-clone:
    Do not clone missing repositories.
`
var SyncExamples = `
  # synchronize the repositories of the workspace groups
  $ wsrc sync

  # synchronize the tools group, 8 repositories at a time
  $ wsrc sync -g tools -j 8

  # only synchronize repositories below libs/
  $ wsrc sync -i '^libs/'
`

var StatusShort = `Display the state of the workspace against the manifests`
var StatusLong = `
  wsrc status [flags]

Every repository selected by the manifest in the workspace (local), by the
manifest committed in the manifest repository (deep) or by the tip of the
manifest branch (future) is listed, together with the repositories cloned
without being selected, with its checked-out branch, commit, tag and
changes.

Flags:

  --output, -o:
    Output format: table, yaml or json. Defaults to table.

  --no-dm:
    Do not read the deep manifest.

  --no-fm:
    Do not fetch the future manifest.

  --same-fm:
    Read the future manifest fetched by a previous run, without fetching.

  --no-mm:
    Do not mark the manifest repository.

  --strict:
    Do not collect the status of the leftover repositories.
`
var StatusExamples = `
  # display the status of the workspace
  $ wsrc status

  # display the status of the tools group as yaml
  $ wsrc status -g tools -o yaml
`

var ManifestShort = `Display or change the manifest of the workspace`
var ManifestLong = `
  wsrc manifest [flags]

The manifest url and branch are displayed, followed by the groups of the
manifest and their repositories.

Flags:

  --branch:
    Use this manifest branch from the next sync on.
`
var ManifestExamples = `
  # display the manifest
  $ wsrc manifest

  # switch to the release manifest branch on the next sync
  $ wsrc manifest --branch release
`

var ForeachShort = `Run a command in every cloned repository`
var ForeachLong = `
  wsrc foreach [flags] -- COMMAND [ARGS...]
  wsrc foreach [flags] -c 'COMMAND LINE'

The command is run in the selected repositories present in the workspace.
Its output is displayed per repository once it completes.

Flags:

  --command, -c:
    A command line split with shell quoting rules.
`
var ForeachExamples = `
  # display the last commit of every repository
  $ wsrc foreach -- git log -1 --oneline

  # run a command line in the core group
  $ wsrc foreach -g core -c 'git commit -am "bump version"'
`

var ManShort = `Display the manual of a repository`
var ManLong = `
  wsrc man [DEST] [flags]

Args:

  DEST:
    Destination of a cloned repository. Defaults to the manifest repository.

The markdown manual of the repository is rendered as a man page.

Flags:

  --file:
    Path of the manual inside the repository. Defaults to README.md.
`
var ManExamples = `
  # display the manual of the manifest repository
  $ wsrc man

  # display the design document of libs/bar
  $ wsrc man libs/bar --file docs/design.md
`

var DumpManifestShort = `Write a manifest describing the cloned repositories`
var DumpManifestLong = `
  wsrc dump-manifest [flags]

The remotes and the checked-out branch, tag or commit of every selected
repository are written as a manifest. A commit is written for repositories
on no branch and no tag, and for branches that diverged from their
upstream.

Flags:

  --raw, -r:
    Read every git repository below this directory instead of the
    workspace. The manifest goes to the deepest directory holding them.

  --update, -u:
    Update the manifest of the manifest repository cloned in the
    workspace, keeping its groups and comments.

  --update-on, -U:
    Update this manifest file.

  --no-repo-delete:
    When updating, keep the repositories that were not found.

  --sha1-only:
    Write the commit of every repository.

  --skip-manifest, -X:
    Leave the manifest repository out.

  --only-manifest, -M:
    Only consider the manifest repository.

  --preview, -p:
    Write the manifest to the standard output.

  --save-to, -s:
    Write to this file, or to manifest.yml in this directory.

  --force, -f:
    Overwrite an existing file.
`
var DumpManifestExamples = `
  # write manifest.yml at the root of the workspace
  $ wsrc dump-manifest

  # start a project from repositories cloned by hand
  $ wsrc dump-manifest --raw . --preview

  # refresh the manifest repository with the current commits
  $ wsrc dump-manifest --update --sha1-only
`

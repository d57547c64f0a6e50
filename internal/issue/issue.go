// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"maps"
	"slices"
	"strings"

	"github.com/charmbracelet/glamour"
)

const (
	ModuleNotFoundId Id = iota + 1
	DependencyCycleId
	ExtensionConflictId
	LinkErrorId
	UnknownResourceTypeId
	ConfigLoadFailedId
	StaleBundleId
	NpmInstallFailedId
)

type (
	Id int

	MarkdownMsg string

	HttpLink string

	// Issue is a catalog entry: guidance for one class of failure.
	Issue struct {
		id       Id
		mdMsg    MarkdownMsg
		docLinks []HttpLink
	}
)

func (i *Issue) Id() Id {
	return i.id
}

func (i *Issue) MarkdownMsg() MarkdownMsg {
	return i.mdMsg
}

func (i *Issue) DocLinks() []HttpLink {
	return slices.Clone(i.docLinks)
}

// Render renders the issue with a glamour style ("dark", "light", "auto",
// or a style file path).
func (i *Issue) Render(stylePath string) (string, error) {
	var md strings.Builder
	md.WriteString(string(i.mdMsg))
	if len(i.docLinks) > 0 {
		md.WriteString("\n\n## See also\n")
		for _, link := range i.docLinks {
			md.WriteString("- <" + string(link) + ">\n")
		}
	}
	return render(md.String(), stylePath)
}

var (
	render = glamour.Render

	moduleNotFoundIssue = &Issue{
		id: ModuleNotFoundId,
		mdMsg: `
# Package not found!

A package named in .weld/packages or in a weldmod.cue could not be found.

## Search locations (in order of precedence):
1. <app>/packages/<name>
2. Each directory in WELD_PACKAGE_DIRS or ` + "`package_dirs`" + `
3. The registry, at the version pinned by .weld/release or the newest one

## Things you can try:
- Check the spelling of the package name
- Add the directory holding the package to ` + "`package_dirs`" + `:
~~~cue
package_dirs: ["/path/to/packages"]
~~~`,
	}

	dependencyCycleIssue = &Issue{
		id: DependencyCycleId,
		mdMsg: `
# Circular package dependency!

Two packages use each other, so neither can load first.

## Things you can try:
- Mark one side of the relation as unordered in its weldmod.cue:
~~~cue
unordered: ["other-package"]
~~~
- Or declare a cycle override in your configuration:
~~~cue
cycle_overrides: [{from: "a", to: "b"}]
~~~`,
	}

	extensionConflictIssue = &Issue{
		id: ExtensionConflictId,
		mdMsg: `
# Two packages handle the same file extension!

More than one package visible to the failing package registers a handler
for the extension of the file being added.

## Things you can try:
- Stop using one of the conflicting packages
- Rename the file so a single handler applies`,
	}

	linkErrorIssue = &Issue{
		id: LinkErrorId,
		mdMsg: `
# JavaScript could not be parsed!

Linking needs to parse every JavaScript file to find the variables it
shares with the rest of its package. The file and position named above
contain a syntax error.

## Things you can try:
- Fix the syntax error and rebuild
- Run the file through ` + "`node --check`" + ` for a second opinion`,
	}

	unknownResourceTypeIssue = &Issue{
		id: UnknownResourceTypeId,
		mdMsg: `
# Unknown resource type!

A source handler produced a resource the bundle cannot place. Known types
are js, css, static, head and body; head and body are client-only.`,
	}

	configLoadFailedIssue = &Issue{
		id: ConfigLoadFailedId,
		mdMsg: `
# Failed to load configuration!

A configuration file could not be read or does not match the schema.

## Things you can try:
- Print the effective configuration:
~~~
$ weld config show
~~~
- Write a fresh default file and compare:
~~~
$ weld config init
~~~`,
	}

	staleBundleIssue = &Issue{
		id: StaleBundleId,
		mdMsg: `
# The bundle is stale!

The build reported errors. The output directory was still written so that
watchers keep accurate dependency information, and it contains a STALE file
listing the errors. Do not deploy it.`,
	}

	npmInstallFailedIssue = &Issue{
		id: NpmInstallFailedId,
		mdMsg: `
# npm install failed!

A package declares npm_dependencies and npm exited with an error while
installing them into the package's .npm directory.

## Things you can try:
- Check that npm is on your PATH, or set ` + "`npm.binary`" + `
- Run the install by hand inside the package's .npm directory`,
	}

	issues = map[Id]*Issue{
		moduleNotFoundIssue.Id():      moduleNotFoundIssue,
		dependencyCycleIssue.Id():     dependencyCycleIssue,
		extensionConflictIssue.Id():   extensionConflictIssue,
		linkErrorIssue.Id():           linkErrorIssue,
		unknownResourceTypeIssue.Id(): unknownResourceTypeIssue,
		configLoadFailedIssue.Id():    configLoadFailedIssue,
		staleBundleIssue.Id():         staleBundleIssue,
		npmInstallFailedIssue.Id():    npmInstallFailedIssue,
	}
)

// Values returns every issue ordered by Id.
func Values() []*Issue {
	ids := slices.Sorted(maps.Keys(issues))
	out := make([]*Issue, len(ids))
	for i, id := range ids {
		out[i] = issues[id]
	}
	return out
}

func Get(id Id) *Issue {
	return issues[id]
}

// SPDX-License-Identifier: MPL-2.0

package graph

import (
	"slices"

	"github.com/invowk/weld/internal/env"
	"github.com/invowk/weld/internal/linker"
	"github.com/invowk/weld/internal/manifest"
	"github.com/invowk/weld/pkg/moddesc"
)

type (
	// UnitKey identifies a unit: one role of one loaded descriptor.
	UnitKey struct {
		Module uint64
		Role   moddesc.Role
	}

	// Edge is a use relation from one unit to another.
	Edge struct {
		Target *Unit
		// Unordered edges do not require Target to load first.
		Unordered bool
	}

	// Unit is the activated instance of a descriptor in one role. It
	// accumulates files, resources and exports as the bundle grows.
	Unit struct {
		Descriptor *moddesc.Descriptor
		Role       moddesc.Role

		usedEnvs  map[env.Set]bool
		uses      []*Unit
		usesIndex map[UnitKey]bool
		unordered map[uint64]bool

		pendingJS    map[env.Env][]linker.Input
		resources    map[env.Env][]manifest.Resource
		exports      map[env.Env][]string
		forceExports map[env.Env][]string
		addedFiles   map[env.Env]map[string]bool
		dependencies []string
	}
)

func newUnit(d *moddesc.Descriptor, role moddesc.Role) *Unit {
	u := &Unit{
		Descriptor:   d,
		Role:         role,
		usedEnvs:     map[env.Set]bool{},
		usesIndex:    map[UnitKey]bool{},
		unordered:    map[uint64]bool{},
		pendingJS:    map[env.Env][]linker.Input{},
		resources:    map[env.Env][]manifest.Resource{},
		exports:      map[env.Env][]string{},
		forceExports: map[env.Env][]string{},
		addedFiles:   map[env.Env]map[string]bool{},
	}
	if !d.IsApp() {
		u.addDependency(moddesc.FileName)
	}
	return u
}

// Key returns the unit's identity.
func (u *Unit) Key() UnitKey {
	return UnitKey{Module: u.Descriptor.ID, Role: u.Role}
}

// Name is the package name, or "the app".
func (u *Unit) Name() string {
	return u.Descriptor.DisplayName()
}

// String includes the role when it is not use.
func (u *Unit) String() string {
	if u.Role == moddesc.RoleTest {
		return u.Name() + " (test)"
	}
	return u.Name()
}

// IsApp reports whether the unit belongs to the application.
func (u *Unit) IsApp() bool {
	return u.Descriptor.IsApp()
}

// UsedEnvironments returns the environment sets the unit was activated for.
func (u *Unit) UsedEnvironments() []env.Set {
	out := make([]env.Set, 0, len(u.usedEnvs))
	for s := range u.usedEnvs {
		out = append(out, s)
	}
	slices.Sort(out)
	return out
}

// Uses returns the unit's outgoing edges in the order they were recorded.
func (u *Unit) Uses() []Edge {
	out := make([]Edge, len(u.uses))
	for i, t := range u.uses {
		out[i] = Edge{Target: t, Unordered: u.unordered[t.Descriptor.ID]}
	}
	return out
}

// PendingJS returns the JavaScript inputs waiting to be linked for e.
func (u *Unit) PendingJS(e env.Env) []linker.Input {
	return u.pendingJS[e]
}

// Resources returns the non-JS resources for e, followed by any linked
// output appended after linking.
func (u *Unit) Resources(e env.Env) []manifest.Resource {
	return u.resources[e]
}

// ForceExports returns the symbols the unit exports for e.
func (u *Unit) ForceExports(e env.Env) []string {
	return u.forceExports[e]
}

// Exports returns the symbols the linker published for e.
func (u *Unit) Exports(e env.Env) []string {
	return u.exports[e]
}

// Dependencies returns the files (relative to the source root) whose change
// invalidates the unit.
func (u *Unit) Dependencies() []string {
	return u.dependencies
}

// CombinedServePath is where the linked package file is served.
func (u *Unit) CombinedServePath() string {
	if u.Role == moddesc.RoleTest {
		return "/package-tests/" + u.Descriptor.Name + ".js"
	}
	return "/packages/" + u.Descriptor.Name + ".js"
}

// Imports maps each symbol exported for e by an ordered, use-role
// dependency to that package. Later dependencies take precedence.
func (u *Unit) Imports(e env.Env) map[string]string {
	imports := map[string]string{}
	for _, edge := range u.Uses() {
		t := edge.Target
		if edge.Unordered || t.Role != moddesc.RoleUse || t.IsApp() {
			continue
		}
		for _, sym := range t.exports[e] {
			imports[sym] = t.Descriptor.Name
		}
	}
	return imports
}

// CompleteLink replaces the pending JS for e with the linker's output.
func (u *Unit) CompleteLink(e env.Env, res *linker.Result) {
	delete(u.pendingJS, e)
	for _, f := range res.Files {
		u.resources[e] = append(u.resources[e], manifest.Resource{
			Type:      manifest.TypeJS,
			Env:       e,
			ServePath: f.ServePath,
			Data:      []byte(f.Source),
		})
	}
	u.exports[e] = slices.Clone(res.Exports)
}

func (u *Unit) addUse(t *Unit) {
	if u.usesIndex[t.Key()] {
		return
	}
	u.usesIndex[t.Key()] = true
	u.uses = append(u.uses, t)
}

func (u *Unit) addResource(r manifest.Resource) {
	if r.Type == manifest.TypeJS {
		u.pendingJS[r.Env] = append(u.pendingJS[r.Env], linker.Input{Source: string(r.Data), ServePath: r.ServePath})
		return
	}
	u.resources[r.Env] = append(u.resources[r.Env], r)
}

func (u *Unit) addDependency(rel string) {
	if !slices.Contains(u.dependencies, rel) {
		u.dependencies = append(u.dependencies, rel)
	}
}

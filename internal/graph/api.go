// SPDX-License-Identifier: MPL-2.0

package graph

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/invowk/weld/internal/env"
	"github.com/invowk/weld/internal/handler"
	"github.com/invowk/weld/internal/manifest"
	"github.com/invowk/weld/pkg/moddesc"
)

type (
	// API is what a role handler sees of the unit it is activating.
	API struct {
		bundle *Bundle
		unit   *Unit
	}

	// UseOptions qualifies API.Use.
	UseOptions struct {
		Role      moddesc.Role
		Unordered bool
	}
)

// Unit returns the unit being activated.
func (a *API) Unit() *Unit {
	return a.unit
}

// Use activates each ref for envs and records an edge from the current unit.
func (a *API) Use(ctx context.Context, refs []ModuleRef, envs env.Set, opts UseOptions) error {
	for _, ref := range refs {
		err := a.bundle.Activate(ctx, ref, envs, ActivateOptions{
			Role:      opts.Role,
			From:      a.unit,
			Unordered: opts.Unordered,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// AddFiles adds each path, relative to the unit's source root, for every
// environment in envs. A path already added for an environment is skipped.
func (a *API) AddFiles(ctx context.Context, paths []string, envs env.Set) error {
	for _, e := range envs.OrAll().Envs() {
		for _, p := range paths {
			if err := a.addFile(ctx, p, e); err != nil {
				return err
			}
		}
	}
	return nil
}

// AddResource records a resource produced outside a source handler.
func (a *API) AddResource(r manifest.Resource) error {
	if err := r.Type.Validate(); err != nil {
		return err
	}
	a.unit.addResource(r)
	return nil
}

// ExportSymbol publishes symbols from the unit for every environment in envs.
func (a *API) ExportSymbol(symbols []string, envs env.Set) {
	for _, e := range envs.OrAll().Envs() {
		for _, s := range symbols {
			if !slices.Contains(a.unit.forceExports[e], s) {
				a.unit.forceExports[e] = append(a.unit.forceExports[e], s)
			}
		}
	}
}

// ReportError records a non-fatal error on the bundle.
func (a *API) ReportError(msg string) {
	a.bundle.errors = append(a.bundle.errors, a.unit.String()+": "+msg)
}

// RegisteredExtensions lists the extensions, with a leading dot, that have
// a handler visible to the unit.
func (a *API) RegisteredExtensions() []string {
	var out []string
	collect := func(d *moddesc.Descriptor) {
		for _, ext := range d.ExtensionNames() {
			if !slices.Contains(out, "."+ext) {
				out = append(out, "."+ext)
			}
		}
	}
	if a.unit.Role == moddesc.RoleUse {
		collect(a.unit.Descriptor)
	}
	for _, t := range a.unit.uses {
		if t.Role == moddesc.RoleUse {
			collect(t.Descriptor)
		}
	}
	slices.Sort(out)
	return out
}

func (a *API) addFile(ctx context.Context, rel string, e env.Env) error {
	u := a.unit
	seen := u.addedFiles[e]
	if seen == nil {
		seen = map[string]bool{}
		u.addedFiles[e] = seen
	}
	if seen[rel] {
		return nil
	}
	seen[rel] = true

	data, err := os.ReadFile(filepath.Join(u.Descriptor.SourceRoot, filepath.FromSlash(rel)))
	if err != nil {
		return &ActivationError{Module: u.Name(), Role: u.Role, Err: err}
	}
	u.addDependency(rel)

	servePath := path.Join(u.Descriptor.ServeRoot, rel)
	ext := strings.TrimPrefix(path.Ext(rel), ".")
	name, err := a.sourceHandler(ext, rel)
	if err != nil {
		return err
	}
	if name == "" {
		u.addResource(manifest.Resource{Type: manifest.TypeStatic, Env: e, ServePath: servePath, Data: data})
		return nil
	}

	fn, err := a.bundle.opts.Handlers.Lookup(name)
	if err != nil {
		return &ActivationError{Module: u.Name(), Role: u.Role, Err: err}
	}
	resources, err := fn(ctx, handler.Input{SourcePath: rel, ServePath: servePath, Env: e, Data: data})
	if err != nil {
		return &ActivationError{Module: u.Name(), Role: u.Role, Err: fmt.Errorf("%s: %w", rel, err)}
	}
	for _, r := range resources {
		u.addResource(r)
	}
	return nil
}

// sourceHandler finds the handler for ext among the unit's own extensions
// (use role only) and those of its use-role dependencies.
func (a *API) sourceHandler(ext, file string) (string, error) {
	if ext == "" {
		return "", nil
	}
	var (
		found   string
		modules []string
	)
	check := func(d *moddesc.Descriptor) {
		if h, ok := d.Extensions[ext]; ok {
			found = h
			modules = append(modules, d.DisplayName())
		}
	}
	if a.unit.Role == moddesc.RoleUse {
		check(a.unit.Descriptor)
	}
	for _, t := range a.unit.uses {
		if t.Role == moddesc.RoleUse && t != a.unit {
			check(t.Descriptor)
		}
	}
	if len(modules) > 1 {
		return "", &ExtensionConflictError{Extension: ext, File: file, Modules: modules}
	}
	return found, nil
}

// DescriptorHandler activates a unit from its descriptor: dependencies
// first, then source files, then exports. The application's test role also
// uses the application itself.
func DescriptorHandler(ctx context.Context, api *API, envs env.Set) error {
	u := api.Unit()
	d, role := u.Descriptor, u.Role
	if !d.HasRole(role) {
		return nil
	}

	if d.IsApp() && role == moddesc.RoleTest {
		if err := api.Use(ctx, []ModuleRef{ByDescriptor(d)}, envs, UseOptions{}); err != nil {
			return err
		}
	}

	var (
		names []string
		sets  = map[string]env.Set{}
	)
	for _, e := range envs.Envs() {
		for _, n := range d.UsesFor(role, e) {
			if _, ok := sets[n]; !ok {
				names = append(names, n)
			}
			sets[n] = sets[n].Add(e)
		}
	}
	for _, n := range names {
		err := api.Use(ctx, []ModuleRef{ByName(n)}, sets[n], UseOptions{Unordered: d.Unordered[n]})
		if err != nil {
			return err
		}
	}

	for _, e := range envs.Envs() {
		if err := api.AddFiles(ctx, d.SourcesFor(role, e), env.NewSet(e)); err != nil {
			return err
		}
	}
	for _, e := range envs.Envs() {
		api.ExportSymbol(d.ExportsFor(role, e), env.NewSet(e))
	}
	return nil
}

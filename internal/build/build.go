// SPDX-License-Identifier: MPL-2.0

// Package build runs a whole bundle build: it activates the application and
// its packages, orders and links the units, and assembles and writes the
// output directory.
package build

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"slices"

	"github.com/charmbracelet/log"

	"github.com/invowk/weld/internal/dag"
	"github.com/invowk/weld/internal/env"
	"github.com/invowk/weld/internal/graph"
	"github.com/invowk/weld/internal/handler"
	"github.com/invowk/weld/internal/jsscope"
	"github.com/invowk/weld/internal/linker"
	"github.com/invowk/weld/internal/manifest"
	"github.com/invowk/weld/internal/transform"
	"github.com/invowk/weld/pkg/moddesc"
)

type (
	// Options configures one build.
	Options struct {
		AppDir    string
		OutputDir string
		// TestPackages are activated in the test role after the app.
		TestPackages []string
		Resolver     graph.Resolver
		Handlers     *handler.Registry
		Installer    graph.Installer
		Bootstrap    string
		Overrides    []graph.EdgeOverride
		Minify       bool
		// Minifier defaults to the esbuild minifier.
		Minifier            manifest.Minifier
		PreserveLineNumbers bool
		Ambient             []string
		// Analyzer defaults to the JavaScript scope analyzer.
		Analyzer linker.Analyzer
		// CoreFiles are recorded as core dependencies of the output.
		CoreFiles []string
		Logger    *log.Logger
	}

	// Result describes a finished build. A build with Errors still wrote a
	// stale bundle unless the graph could not be ordered.
	Result struct {
		Errors []string
		// Causes holds the error behind each entry of Errors.
		Causes       []error
		Order        []string
		Manifest     []manifest.Entry
		Load         []string
		OutputDir    string
		Dependencies manifest.Dependencies
	}

	// Plan is an activated and ordered instance graph.
	Plan struct {
		Bundle *graph.Bundle
		App    *moddesc.Descriptor
		Order  []*graph.Unit
		// Extensions lists the app-visible extensions, without dots.
		Extensions []string
		Release    string
	}
)

func (o *Options) logger() *log.Logger {
	if o.Logger == nil {
		return log.New(io.Discard)
	}
	return o.Logger
}

// Activate builds the instance graph for the app in opts.AppDir and any
// test packages. It does not order the graph.
func Activate(ctx context.Context, opts Options) (*Plan, error) {
	logger := opts.logger()
	b := graph.New(graph.Options{
		Resolver:  opts.Resolver,
		Handlers:  opts.Handlers,
		Installer: opts.Installer,
		Bootstrap: opts.Bootstrap,
		Overrides: opts.Overrides,
		Logger:    logger,
	})

	packages, err := moddesc.ReadPackageList(opts.AppDir)
	if err != nil {
		return nil, err
	}
	release, err := moddesc.ReadRelease(opts.AppDir)
	if err != nil {
		return nil, err
	}

	// The app scan picks up every extension a directly used package
	// registers, the bootstrap package included.
	visible := packages
	if opts.Bootstrap != "" {
		visible = append([]string{opts.Bootstrap}, packages...)
	}
	var exts []string
	for _, name := range visible {
		d, err := b.Descriptor(name)
		if err != nil {
			return nil, fmt.Errorf("the app uses %s: %w", name, err)
		}
		for _, ext := range d.ExtensionNames() {
			if !slices.Contains(exts, ext) {
				exts = append(exts, ext)
			}
		}
	}
	slices.Sort(exts)

	app, err := moddesc.ForApp(opts.AppDir, moddesc.AppOptions{Packages: packages, Extensions: exts})
	if err != nil {
		return nil, err
	}
	logger.Debug("activating app", "dir", opts.AppDir, "packages", len(packages), "extensions", len(exts))

	plan := &Plan{Bundle: b, App: app, Extensions: exts, Release: release}
	if err := b.Activate(ctx, graph.ByDescriptor(app), env.Set(0), graph.ActivateOptions{}); err != nil {
		return plan, err
	}
	for _, name := range opts.TestPackages {
		err := b.Activate(ctx, graph.ByName(name), env.Set(0), graph.ActivateOptions{Role: moddesc.RoleTest})
		if err != nil {
			return plan, err
		}
	}
	return plan, nil
}

// order computes the plan's load order.
func (p *Plan) order() error {
	order, err := graph.LoadOrder(p.Bundle)
	if err != nil {
		return err
	}
	p.Order = order
	return nil
}

// NewPlan activates and orders the app.
func NewPlan(ctx context.Context, opts Options) (*Plan, error) {
	p, err := Activate(ctx, opts)
	if err != nil {
		return nil, err
	}
	if err := p.order(); err != nil {
		return nil, err
	}
	return p, nil
}

// Link links every unit of the plan in load order and returns the errors
// of units that failed. A failed unit exports nothing.
func (p *Plan) Link(ctx context.Context, opts Options) []error {
	analyzer := opts.Analyzer
	if analyzer == nil {
		analyzer = jsscope.New()
	}
	var errs []error
	for _, u := range p.Order {
		for _, e := range env.All() {
			res, err := linker.Link(ctx, linker.Options{
				Inputs:              u.PendingJS(e),
				UseGlobalNamespace:  u.IsApp(),
				CombinedServePath:   u.CombinedServePath(),
				Name:                u.Descriptor.Name,
				Imports:             u.Imports(e),
				ForceExports:        u.ForceExports(e),
				PreserveLineNumbers: opts.PreserveLineNumbers,
				Analyzer:            analyzer,
				Ambient:             opts.Ambient,
			})
			if err != nil {
				errs = append(errs, fmt.Errorf("%s (%s): %w", u, e, err))
				u.CompleteLink(e, &linker.Result{})
				continue
			}
			u.CompleteLink(e, res)
		}
	}
	return errs
}

// Build runs every phase in sequence. Fatal build conditions are returned
// in Result.Errors; the returned error is reserved for cancellation and
// output failures. A dependency cycle stops the build before anything is
// written.
func Build(ctx context.Context, opts Options) (*Result, error) {
	logger := opts.logger()
	res := &Result{OutputDir: opts.OutputDir}

	plan, err := Activate(ctx, opts)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		res.fail(err)
		if plan == nil {
			return res, nil
		}
		return res, write(manifest.NewAssembler(), plan, opts, res)
	}

	if err := plan.order(); err != nil {
		var cycle *dag.CycleError
		if errors.As(err, &cycle) {
			res.fail(err)
			return res, nil
		}
		return nil, err
	}
	for _, u := range plan.Order {
		res.Order = append(res.Order, u.String())
	}
	logger.Debug("load order", "units", len(plan.Order))

	for _, err := range plan.Link(ctx, opts) {
		res.fail(err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	asm := manifest.NewAssembler()
	for _, u := range plan.Order {
		for _, e := range env.All() {
			for _, r := range u.Resources(e) {
				if err := asm.AddResource(r); err != nil {
					res.fail(fmt.Errorf("%s: %w", u, err))
				}
			}
		}
	}

	if opts.Minify {
		m := opts.Minifier
		if m == nil {
			m = transform.NewMinifier(logger)
		}
		if err := asm.Minify(ctx, m); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			res.fail(err)
		}
	}

	for _, msg := range plan.Bundle.Errors() {
		res.fail(errors.New(msg))
	}
	if err := write(asm, plan, opts, res); err != nil {
		return nil, err
	}
	return res, nil
}

func (r *Result) fail(err error) {
	r.Errors = append(r.Errors, err.Error())
	r.Causes = append(r.Causes, err)
}

func write(asm *manifest.Assembler, plan *Plan, opts Options, res *Result) error {
	res.Dependencies = dependencies(plan, opts.CoreFiles)
	err := asm.Write(opts.OutputDir, manifest.Metadata{
		Dependencies: res.Dependencies,
		Release:      plan.Release,
		Errors:       res.Errors,
	})
	if err != nil {
		return fmt.Errorf("write bundle: %w", err)
	}
	res.Manifest = asm.Manifest()
	res.Load = asm.Load()
	return nil
}

// Dependencies returns what dependencies.json would record for the plan.
// core lists the configuration files the build read.
func (p *Plan) Dependencies(core []string) manifest.Dependencies {
	return dependencies(p, core)
}

// dependencies collects the watch metadata: app files relative to the app
// directory, package files as absolute paths.
func dependencies(plan *Plan, core []string) manifest.Dependencies {
	deps := manifest.Dependencies{
		Core:     slices.Clone(core),
		App:      []string{filepath.ToSlash(filepath.Join(moddesc.AppMetaDir, moddesc.PackagesFile))},
		Packages: map[string][]string{},
	}
	for _, ext := range plan.Extensions {
		deps.Extensions = append(deps.Extensions, "."+ext)
	}
	for _, re := range moddesc.DefaultIgnore {
		deps.Exclude = append(deps.Exclude, re.String())
	}
	for _, u := range plan.Bundle.Units() {
		if u.IsApp() {
			for _, rel := range u.Dependencies() {
				if !slices.Contains(deps.App, rel) {
					deps.App = append(deps.App, rel)
				}
			}
			continue
		}
		name := u.Descriptor.Name
		for _, rel := range u.Dependencies() {
			abs := filepath.Join(u.Descriptor.SourceRoot, filepath.FromSlash(rel))
			if !slices.Contains(deps.Packages[name], abs) {
				deps.Packages[name] = append(deps.Packages[name], abs)
			}
		}
	}
	return deps
}

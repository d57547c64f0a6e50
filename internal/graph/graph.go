// SPDX-License-Identifier: MPL-2.0

// Package graph builds the instance graph of a bundle: the set of activated
// package roles, the use edges between them, and the resources each one
// collected from its source files.
package graph

import (
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/log"

	"github.com/invowk/weld/internal/env"
	"github.com/invowk/weld/internal/handler"
	"github.com/invowk/weld/pkg/moddesc"
)

// DefaultBootstrap is the package every other unit implicitly uses.
const DefaultBootstrap = "meteor"

type (
	// Resolver finds the descriptor of a package by name.
	Resolver interface {
		Find(name string) (*moddesc.Descriptor, error)
	}

	// Installer fetches a package's declared npm dependencies.
	Installer interface {
		Install(ctx context.Context, d *moddesc.Descriptor) error
	}

	// RoleHandler runs when a unit is activated for a new environment set.
	// envs is never empty.
	RoleHandler func(ctx context.Context, api *API, envs env.Set) error

	// ModuleRef names the package to activate, either by name through the
	// resolver or by an already loaded descriptor.
	ModuleRef struct {
		Name       string
		Descriptor *moddesc.Descriptor
	}

	// EdgeOverride marks every use edge From -> To as unordered.
	EdgeOverride struct {
		From string `json:"from" mapstructure:"from"`
		To   string `json:"to" mapstructure:"to"`
	}

	// Options configures a Bundle.
	Options struct {
		Resolver  Resolver
		Handlers  *handler.Registry
		Installer Installer
		// Bootstrap is implicitly used by every unit other than its own use
		// role. Empty disables the implicit use.
		Bootstrap string
		Overrides []EdgeOverride
		// RoleHandlers replaces the descriptor-driven handler for the named
		// packages.
		RoleHandlers map[string]RoleHandler
		Logger       *log.Logger
	}

	// ActivateOptions qualifies one activation.
	ActivateOptions struct {
		Role moddesc.Role
		// From is the unit recording the use edge; nil for roots.
		From *Unit
		// Unordered records the edge as not constraining load order.
		Unordered bool
	}

	// Bundle is the instance graph under construction.
	Bundle struct {
		opts        Options
		logger      *log.Logger
		units       map[UnitKey]*Unit
		order       []*Unit
		descriptors map[string]*moddesc.Descriptor
		installed   map[uint64]bool
		errors      []string
	}
)

// ByName refers to a package through the resolver.
func ByName(name string) ModuleRef {
	return ModuleRef{Name: name}
}

// ByDescriptor refers to an already loaded descriptor.
func ByDescriptor(d *moddesc.Descriptor) ModuleRef {
	return ModuleRef{Name: d.Name, Descriptor: d}
}

// New returns an empty bundle.
func New(opts Options) *Bundle {
	if opts.Handlers == nil {
		opts.Handlers = handler.NewRegistry()
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Bundle{
		opts:        opts,
		logger:      logger,
		units:       map[UnitKey]*Unit{},
		descriptors: map[string]*moddesc.Descriptor{},
		installed:   map[uint64]bool{},
	}
}

// Units returns every unit in creation order.
func (b *Bundle) Units() []*Unit {
	return b.order
}

// Unit returns the unit for key, if activated.
func (b *Bundle) Unit(key UnitKey) (*Unit, bool) {
	u, ok := b.units[key]
	return u, ok
}

// Errors returns the non-fatal errors reported by role handlers.
func (b *Bundle) Errors() []string {
	return b.errors
}

// Activate ensures the unit for ref in opts.Role exists, records the edge
// from opts.From, and runs the role handler the first time the unit is
// activated for the canonical form of envs. An empty envs means every
// environment.
func (b *Bundle) Activate(ctx context.Context, ref ModuleRef, envs env.Set, opts ActivateOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	role := opts.Role
	if role == "" {
		role = moddesc.RoleUse
	}
	if err := role.Validate(); err != nil {
		return err
	}

	d, err := b.descriptor(ref)
	if err != nil {
		if opts.From != nil {
			return fmt.Errorf("%s uses %s: %w", opts.From, ref.Name, err)
		}
		return err
	}

	u, err := b.unit(ctx, d, role)
	if err != nil {
		return err
	}

	if from := opts.From; from != nil {
		from.addUse(u)
		if opts.Unordered || b.overridden(from, u) {
			from.unordered[d.ID] = true
		} else {
			delete(from.unordered, d.ID)
		}
	}

	canonical := envs.OrAll()
	if u.usedEnvs[canonical] {
		return nil
	}
	u.usedEnvs[canonical] = true
	b.logger.Debug("activate", "unit", u.String(), "envs", canonical.String())

	if err := b.install(ctx, d); err != nil {
		return &ActivationError{Module: d.DisplayName(), Role: role, Err: err}
	}

	h := DescriptorHandler
	if custom, ok := b.opts.RoleHandlers[d.Name]; ok && !d.IsApp() {
		h = custom
	}
	return h(ctx, &API{bundle: b, unit: u}, canonical)
}

// Descriptor resolves name once per bundle; later activations by name use
// the same descriptor.
func (b *Bundle) Descriptor(name string) (*moddesc.Descriptor, error) {
	return b.descriptor(ByName(name))
}

func (b *Bundle) descriptor(ref ModuleRef) (*moddesc.Descriptor, error) {
	if ref.Descriptor != nil {
		if !ref.Descriptor.IsApp() {
			if _, ok := b.descriptors[ref.Descriptor.Name]; !ok {
				b.descriptors[ref.Descriptor.Name] = ref.Descriptor
			}
		}
		return ref.Descriptor, nil
	}
	if d, ok := b.descriptors[ref.Name]; ok {
		return d, nil
	}
	if b.opts.Resolver == nil {
		return nil, fmt.Errorf("%w: %s", ErrModuleNotFound, ref.Name)
	}
	d, err := b.opts.Resolver.Find(ref.Name)
	if err != nil {
		return nil, err
	}
	b.descriptors[ref.Name] = d
	return d, nil
}

func (b *Bundle) unit(ctx context.Context, d *moddesc.Descriptor, role moddesc.Role) (*Unit, error) {
	key := UnitKey{Module: d.ID, Role: role}
	if u, ok := b.units[key]; ok {
		return u, nil
	}
	u := newUnit(d, role)
	b.units[key] = u
	b.order = append(b.order, u)

	boot := b.opts.Bootstrap
	if boot == "" || (d.Name == boot && role == moddesc.RoleUse) {
		return u, nil
	}
	if err := b.Activate(ctx, ByName(boot), env.Set(0), ActivateOptions{From: u}); err != nil {
		return nil, err
	}
	return u, nil
}

func (b *Bundle) overridden(from, to *Unit) bool {
	for _, o := range b.opts.Overrides {
		if o.From == from.Descriptor.Name && o.To == to.Descriptor.Name {
			return true
		}
	}
	return false
}

func (b *Bundle) install(ctx context.Context, d *moddesc.Descriptor) error {
	if len(d.NpmDependencies) == 0 || b.installed[d.ID] || b.opts.Installer == nil {
		return nil
	}
	b.installed[d.ID] = true
	if err := b.opts.Installer.Install(ctx, d); err != nil {
		return fmt.Errorf("install npm dependencies: %w", err)
	}
	return nil
}

// SPDX-License-Identifier: MPL-2.0

package graph

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"testing"

	"github.com/invowk/weld/internal/dag"
	"github.com/invowk/weld/internal/env"
	"github.com/invowk/weld/internal/linker"
	"github.com/invowk/weld/internal/manifest"
	"github.com/invowk/weld/internal/testutil"
	"github.com/invowk/weld/pkg/moddesc"
)

type (
	dirResolver string

	countingInstaller struct {
		calls []string
	}
)

func (r dirResolver) Find(name string) (*moddesc.Descriptor, error) {
	d, err := moddesc.Load(name, filepath.Join(string(r), name))
	if errors.Is(err, moddesc.ErrDescriptorNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrModuleNotFound, name)
	}
	return d, err
}

func (c *countingInstaller) Install(_ context.Context, d *moddesc.Descriptor) error {
	c.calls = append(c.calls, d.Name)
	return nil
}

func writePackages(t *testing.T, pkgs ...testutil.Package) string {
	t.Helper()
	dir := t.TempDir()
	for _, p := range pkgs {
		testutil.WritePackage(t, dir, p)
	}
	return dir
}

func unitNames(units []*Unit) []string {
	out := make([]string, len(units))
	for i, u := range units {
		out[i] = u.String()
	}
	return out
}

func activate(t *testing.T, b *Bundle, name string) error {
	t.Helper()
	return b.Activate(t.Context(), ByName(name), env.Set(0), ActivateOptions{})
}

func TestActivateWithBootstrap(t *testing.T) {
	t.Parallel()

	pkgDir := writePackages(t,
		testutil.Package{
			Name:       "meteor",
			Extensions: map[string]string{"js": "js", "css": "css"},
			Sources:    []string{"meteor.js"},
			Files:      testutil.Tree{"meteor.js": "Meteor = {};"},
		},
		testutil.Package{Name: "a", Uses: []string{"b"}, Sources: []string{"a.js"}, Files: testutil.Tree{"a.js": "A = 1;"}},
		testutil.Package{Name: "b", Sources: []string{"b.js"}, Files: testutil.Tree{"b.js": "B = 1;"}},
	)
	appDir := t.TempDir()
	testutil.WriteTree(t, appDir, testutil.Tree{"main.js": "start();"})
	app, err := moddesc.ForApp(appDir, moddesc.AppOptions{Packages: []string{"a"}, Extensions: []string{"js"}})
	if err != nil {
		t.Fatalf("ForApp() error = %v", err)
	}

	b := New(Options{Resolver: dirResolver(pkgDir), Bootstrap: DefaultBootstrap})
	if err := b.Activate(t.Context(), ByDescriptor(app), env.Set(0), ActivateOptions{}); err != nil {
		t.Fatalf("Activate() error = %v", err)
	}

	if got, want := unitNames(b.Units()), []string{"the app", "meteor", "a", "b"}; !slices.Equal(got, want) {
		t.Errorf("Units() = %v, want %v", got, want)
	}

	order, err := LoadOrder(b)
	if err != nil {
		t.Fatalf("LoadOrder() error = %v", err)
	}
	if got, want := unitNames(order), []string{"meteor", "b", "a", "the app"}; !slices.Equal(got, want) {
		t.Errorf("LoadOrder() = %v, want %v", got, want)
	}

	meteor := order[0]
	for _, e := range meteor.Uses() {
		t.Errorf("bootstrap package uses %s", e.Target)
	}
	for _, e := range env.All() {
		pending := b.order[0].PendingJS(e)
		if len(pending) != 1 || pending[0].ServePath != "/main.js" {
			t.Errorf("app PendingJS(%s) = %+v", e, pending)
		}
	}
}

func TestLoadOrderCycles(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		unordered []string
		overrides []EdgeOverride
		wantCycle bool
	}{
		{name: "ordered cycle", wantCycle: true},
		{name: "unordered edge breaks cycle", unordered: []string{"a"}},
		{name: "override breaks cycle", overrides: []EdgeOverride{{From: "b", To: "a"}}},
		{name: "override on other edge", overrides: []EdgeOverride{{From: "a", To: "c"}}, wantCycle: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			dir := writePackages(t,
				testutil.Package{Name: "a", Uses: []string{"b"}},
				testutil.Package{Name: "b", Uses: []string{"a"}, Unordered: tt.unordered},
			)
			b := New(Options{Resolver: dirResolver(dir), Overrides: tt.overrides})
			if err := activate(t, b, "a"); err != nil {
				t.Fatalf("Activate() error = %v", err)
			}

			order, err := LoadOrder(b)
			if !tt.wantCycle {
				if err != nil {
					t.Fatalf("LoadOrder() error = %v", err)
				}
				if got, want := unitNames(order), []string{"b", "a"}; !slices.Equal(got, want) {
					t.Errorf("LoadOrder() = %v, want %v", got, want)
				}
				return
			}
			var cycle *dag.CycleError
			if !errors.As(err, &cycle) {
				t.Fatalf("LoadOrder() error = %v, want *dag.CycleError", err)
			}
		})
	}
}

func TestActivateIsIdempotentPerEnvSet(t *testing.T) {
	t.Parallel()

	var runs []env.Set
	b := New(Options{
		Resolver: dirResolver(writePackages(t, testutil.Package{Name: "p"})),
		RoleHandlers: map[string]RoleHandler{
			"p": func(_ context.Context, _ *API, envs env.Set) error {
				runs = append(runs, envs)
				return nil
			},
		},
	})
	ctx := t.Context()
	for _, envs := range []env.Set{env.Set(0), env.AllSet(), env.NewSet(env.Client), env.NewSet(env.Client)} {
		if err := b.Activate(ctx, ByName("p"), envs, ActivateOptions{}); err != nil {
			t.Fatalf("Activate(%s) error = %v", envs, err)
		}
	}
	want := []env.Set{env.AllSet(), env.NewSet(env.Client)}
	if !slices.Equal(runs, want) {
		t.Errorf("handler ran for %v, want %v", runs, want)
	}
	u, _ := b.Unit(UnitKey{Module: b.Units()[0].Descriptor.ID, Role: moddesc.RoleUse})
	if got := u.UsedEnvironments(); len(got) != 2 {
		t.Errorf("UsedEnvironments() = %v, want 2 sets", got)
	}
}

func TestActivateModuleNotFound(t *testing.T) {
	t.Parallel()

	dir := writePackages(t, testutil.Package{Name: "a", Uses: []string{"missing"}})
	b := New(Options{Resolver: dirResolver(dir)})
	err := activate(t, b, "a")
	if !errors.Is(err, ErrModuleNotFound) {
		t.Fatalf("Activate() error = %v, want ErrModuleNotFound", err)
	}
}

func TestExtensionConflict(t *testing.T) {
	t.Parallel()

	dir := writePackages(t,
		testutil.Package{Name: "x", Extensions: map[string]string{"coffee": "js"}},
		testutil.Package{Name: "y", Extensions: map[string]string{"coffee": "js"}},
		testutil.Package{
			Name:    "c",
			Uses:    []string{"x", "y"},
			Sources: []string{"f.coffee"},
			Files:   testutil.Tree{"f.coffee": "f = 1"},
		},
	)
	b := New(Options{Resolver: dirResolver(dir)})
	err := activate(t, b, "c")
	var conflict *ExtensionConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("Activate() error = %v, want *ExtensionConflictError", err)
	}
	if conflict.Extension != "coffee" || !slices.Equal(conflict.Modules, []string{"x", "y"}) {
		t.Errorf("conflict = %+v", conflict)
	}
}

func TestAddFilesByHandler(t *testing.T) {
	t.Parallel()

	dir := writePackages(t,
		testutil.Package{Name: "js", Extensions: map[string]string{"js": "js", "css": "css", "html": "html"}},
		testutil.Package{
			Name:          "p",
			Uses:          []string{"js"},
			Sources:       []string{"p.js", "logo.txt"},
			ClientSources: []string{"p.css", "p.html"},
			Files: testutil.Tree{
				"p.js":     "P = 1;",
				"logo.txt": "logo",
				"p.css":    "body{}",
				"p.html":   "<head><title>x</title></head>",
			},
		},
	)
	b := New(Options{Resolver: dirResolver(dir)})
	if err := activate(t, b, "p"); err != nil {
		t.Fatalf("Activate() error = %v", err)
	}
	p := b.Units()[0]

	if got := p.PendingJS(env.Server); len(got) != 1 || got[0].ServePath != "/packages/p/p.js" {
		t.Errorf("PendingJS(server) = %+v", got)
	}

	types := func(e env.Env) []manifest.Type {
		var out []manifest.Type
		for _, r := range p.Resources(e) {
			out = append(out, r.Type)
		}
		return out
	}
	if got, want := types(env.Client), []manifest.Type{manifest.TypeStatic, manifest.TypeCSS, manifest.TypeHead}; !slices.Equal(got, want) {
		t.Errorf("client resource types = %v, want %v", got, want)
	}
	if got, want := types(env.Server), []manifest.Type{manifest.TypeStatic}; !slices.Equal(got, want) {
		t.Errorf("server resource types = %v, want %v", got, want)
	}
	if got := p.Resources(env.Server)[0].ServePath; got != "/packages/p/logo.txt" {
		t.Errorf("static serve path = %q", got)
	}
	wantDeps := []string{"weldmod.cue", "p.js", "logo.txt", "p.css", "p.html"}
	if got := p.Dependencies(); !slices.Equal(got, wantDeps) {
		t.Errorf("Dependencies() = %v, want %v", got, wantDeps)
	}
}

func TestImportsFollowLinkedExports(t *testing.T) {
	t.Parallel()

	dir := writePackages(t,
		testutil.Package{Name: "a", Uses: []string{"b", "c"}},
		testutil.Package{Name: "b", Exports: []string{"B"}},
		testutil.Package{Name: "c", Exports: []string{"C"}},
	)
	b := New(Options{Resolver: dirResolver(dir)})
	if err := activate(t, b, "a"); err != nil {
		t.Fatalf("Activate() error = %v", err)
	}
	units := b.Units()
	a, pb, pc := units[0], units[1], units[2]

	if got := pb.ForceExports(env.Client); !slices.Equal(got, []string{"B"}) {
		t.Errorf("ForceExports() = %v", got)
	}
	pb.CompleteLink(env.Client, &linker.Result{
		Files:   []linker.Output{{ServePath: "/packages/b.js", Source: "x"}},
		Exports: []string{"B"},
	})
	pc.CompleteLink(env.Client, &linker.Result{Exports: []string{"C"}})

	got := a.Imports(env.Client)
	if len(got) != 2 || got["B"] != "b" || got["C"] != "c" {
		t.Errorf("Imports(client) = %v", got)
	}
	if got := a.Imports(env.Server); len(got) != 0 {
		t.Errorf("Imports(server) = %v, want none", got)
	}
	if res := pb.Resources(env.Client); len(res) != 1 || res[0].Type != manifest.TypeJS {
		t.Errorf("linked resources = %+v", res)
	}
}

func TestInstallerRunsOncePerDescriptor(t *testing.T) {
	t.Parallel()

	dir := writePackages(t,
		testutil.Package{Name: "n", Npm: map[string]string{"left-pad": "1.3.0"}},
		testutil.Package{Name: "m", Uses: []string{"n"}},
	)
	inst := &countingInstaller{}
	b := New(Options{Resolver: dirResolver(dir), Installer: inst})
	ctx := t.Context()
	if err := b.Activate(ctx, ByName("m"), env.Set(0), ActivateOptions{}); err != nil {
		t.Fatal(err)
	}
	if err := b.Activate(ctx, ByName("n"), env.NewSet(env.Server), ActivateOptions{}); err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(inst.calls, []string{"n"}) {
		t.Errorf("installer calls = %v", inst.calls)
	}
}

func TestReportError(t *testing.T) {
	t.Parallel()

	b := New(Options{
		Resolver: dirResolver(writePackages(t, testutil.Package{Name: "p"})),
		RoleHandlers: map[string]RoleHandler{
			"p": func(_ context.Context, api *API, _ env.Set) error {
				api.ReportError("bad thing")
				return nil
			},
		},
	})
	if err := activate(t, b, "p"); err != nil {
		t.Fatal(err)
	}
	if got := b.Errors(); !slices.Equal(got, []string{"p: bad thing"}) {
		t.Errorf("Errors() = %v", got)
	}
}

func TestTestRoleUsesOwnExtensions(t *testing.T) {
	t.Parallel()

	dir := writePackages(t,
		testutil.Package{
			Name:        "p",
			Extensions:  map[string]string{"js": "js"},
			TestUses:    []string{"p"},
			TestSources: []string{"p_test.js"},
			Files:       testutil.Tree{"p_test.js": "check();"},
		},
	)
	b := New(Options{Resolver: dirResolver(dir)})
	err := b.Activate(t.Context(), ByName("p"), env.Set(0), ActivateOptions{Role: moddesc.RoleTest})
	if err != nil {
		t.Fatalf("Activate() error = %v", err)
	}
	var tu *Unit
	for _, u := range b.Units() {
		if u.Role == moddesc.RoleTest {
			tu = u
		}
	}
	if tu == nil {
		t.Fatal("no test unit")
	}
	if got := tu.PendingJS(env.Client); len(got) != 1 {
		t.Errorf("PendingJS(client) = %+v, want the test file handled as js", got)
	}
	if got := tu.CombinedServePath(); got != "/package-tests/p.js" {
		t.Errorf("CombinedServePath() = %q", got)
	}
}

// SPDX-License-Identifier: MPL-2.0

package manifest

import (
	"encoding/json"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/invowk/weld/internal/env"
	"github.com/invowk/weld/internal/testutil"
)

func TestWrite(t *testing.T) {
	t.Parallel()

	out := filepath.Join(t.TempDir(), "bundle")
	testutil.MustWriteFile(t, filepath.Join(out, "old.txt"), "previous build")

	a := NewAssembler()
	mustAdd(t, a,
		Resource{Type: TypeJS, Env: env.Client, ServePath: "/packages/a.js", Data: []byte("var a;")},
		Resource{Type: TypeStatic, Env: env.Client, ServePath: "/logo.png", Data: []byte("PNG")},
		Resource{Type: TypeJS, Env: env.Server, ServePath: "/server.js", Data: []byte("serve();")},
		Resource{Type: TypeBody, Env: env.Client, Data: []byte("<p>hi</p>")},
	)

	meta := Metadata{
		Dependencies: Dependencies{
			App:      []string{".weld/packages"},
			Packages: map[string][]string{"a": {"weldmod.cue", "a.js"}},
		},
		Release: "0.5.2",
	}
	if err := a.Write(out, meta); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if _, err := os.Stat(filepath.Join(out, "old.txt")); !os.IsNotExist(err) {
		t.Error("previous bundle contents should be replaced")
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(out), ".build.bundle")); !os.IsNotExist(err) {
		t.Error("build directory should be renamed away")
	}

	if got := testutil.MustReadFile(t, filepath.Join(out, "static_cacheable", "packages", "a.js")); got != "var a;" {
		t.Errorf("cacheable js = %q", got)
	}
	if got := testutil.MustReadFile(t, filepath.Join(out, "static", "logo.png")); got != "PNG" {
		t.Errorf("static = %q", got)
	}
	if got := testutil.MustReadFile(t, filepath.Join(out, "app", "server.js")); got != "serve();" {
		t.Errorf("server = %q", got)
	}
	if got := testutil.MustReadFile(t, filepath.Join(out, "body.html")); got != "<p>hi</p>" {
		t.Errorf("body = %q", got)
	}

	var app appJSON
	if err := json.Unmarshal([]byte(testutil.MustReadFile(t, filepath.Join(out, AppFile))), &app); err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(app.Load, []string{"app/server.js"}) || len(app.Manifest) != 2 || app.Stale || app.Release != "0.5.2" {
		t.Errorf("app.json = %+v", app)
	}

	var deps Dependencies
	if err := json.Unmarshal([]byte(testutil.MustReadFile(t, filepath.Join(out, DependenciesFile))), &deps); err != nil {
		t.Fatal(err)
	}
	if deps.Core == nil || deps.Exclude == nil || !slices.Equal(deps.Packages["a"], []string{"weldmod.cue", "a.js"}) {
		t.Errorf("dependencies.json = %+v", deps)
	}

	if _, err := os.Stat(filepath.Join(out, StaleFile)); !os.IsNotExist(err) {
		t.Error("successful build must not be marked stale")
	}
}

func TestWriteStale(t *testing.T) {
	t.Parallel()

	out := filepath.Join(t.TempDir(), "bundle")
	a := NewAssembler()
	if err := a.Write(out, Metadata{Errors: []string{"circular dependency between packages a and b"}}); err != nil {
		t.Fatal(err)
	}

	var app appJSON
	if err := json.Unmarshal([]byte(testutil.MustReadFile(t, filepath.Join(out, AppFile))), &app); err != nil {
		t.Fatal(err)
	}
	if !app.Stale {
		t.Error("app.json should be marked stale")
	}
	if got := testutil.MustReadFile(t, filepath.Join(out, StaleFile)); got != "circular dependency between packages a and b\n" {
		t.Errorf("STALE = %q", got)
	}
}

func TestWriteRejectsEscapingPath(t *testing.T) {
	t.Parallel()

	out := filepath.Join(t.TempDir(), "bundle")
	a := NewAssembler()
	mustAdd(t, a, Resource{Type: TypeStatic, Env: env.Server, ServePath: "/../../evil", Data: []byte("x")})
	if err := a.Write(out, Metadata{}); err == nil {
		t.Fatal("expected escape error")
	}
}

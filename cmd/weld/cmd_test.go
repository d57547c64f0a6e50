// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"testing"

	"github.com/rogpeppe/go-internal/testscript"

	"github.com/invowk/weld/internal/config"
	"github.com/invowk/weld/internal/dag"
	"github.com/invowk/weld/internal/graph"
	"github.com/invowk/weld/internal/issue"
	"github.com/invowk/weld/internal/linker"
	"github.com/invowk/weld/internal/manifest"
	"github.com/invowk/weld/internal/npm"
	"github.com/invowk/weld/internal/resolver"
)

func TestMain(m *testing.M) {
	testscript.Main(m, map[string]func(){
		"weld": Execute,
	})
}

// TestScripts runs the command-line scenarios in testdata.
func TestScripts(t *testing.T) {
	t.Parallel()

	testscript.Run(t, testscript.Params{
		Dir: "testdata",
		Setup: func(env *testscript.Env) error {
			env.Setenv("XDG_CONFIG_HOME", filepath.Join(env.WorkDir, ".config"))
			env.Setenv("NO_COLOR", "1")
			return nil
		},
	})
}

func TestIssueFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want issue.Id
		ok   bool
	}{
		{"not found", fmt.Errorf("the app uses x: %w", &resolver.NotFoundError{Name: "x"}), issue.ModuleNotFoundId, true},
		{"cycle", &dag.CycleError{From: "a", To: "b"}, issue.DependencyCycleId, true},
		{"conflict", &graph.ExtensionConflictError{Extension: "js", File: "a.js", Modules: []string{"p", "q"}}, issue.ExtensionConflictId, true},
		{"link", fmt.Errorf("a (client): %w", &linker.AnalysisError{ServePath: "/a.js", Err: errors.New("bad")}), issue.LinkErrorId, true},
		{"resource", manifest.Type("weird").Validate(), issue.UnknownResourceTypeId, true},
		{"npm", &npm.InstallError{Module: "a", ExitCode: 1}, issue.NpmInstallFailedId, true},
		{"other", errors.New("disk full"), 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := issueFor(tt.err)
			if got != tt.want || ok != tt.ok {
				t.Errorf("issueFor(%v) = (%v, %v), want (%v, %v)", tt.err, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestOutputIgnore(t *testing.T) {
	t.Parallel()

	app := filepath.Join(string(filepath.Separator), "work", "app")
	tests := []struct {
		name string
		out  string
		want []string
	}{
		{"outside", filepath.Join(string(filepath.Separator), "work", "out"), nil},
		{"app itself", app, nil},
		{"inside", filepath.Join(app, "out"), []string{"out", "out/**", ".build.out", ".build.out/**"}},
		{"nested", filepath.Join(app, "dist", "web"), []string{"dist/web", "dist/web/**", "dist/.build.web", "dist/.build.web/**"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := outputIgnore(app, tt.out); !slices.Equal(got, tt.want) {
				t.Errorf("outputIgnore() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWatchedFiles(t *testing.T) {
	t.Parallel()

	app := filepath.Join(string(filepath.Separator), "work", "app")
	deps := manifest.Dependencies{
		App:      []string{".weld/packages", "main.js"},
		Packages: map[string][]string{"b": {"/p/b/b.js"}, "a": {"/p/a/weldmod.cue", "/p/a/a.js"}},
	}
	want := []string{
		filepath.Join(app, ".weld", "packages"),
		filepath.Join(app, "main.js"),
		"/p/a/weldmod.cue",
		"/p/a/a.js",
		"/p/b/b.js",
	}
	if got := watchedFiles(app, deps); !slices.Equal(got, want) {
		t.Errorf("watchedFiles() = %v, want %v", got, want)
	}
	if got := watchPatterns(manifest.Dependencies{Extensions: []string{".js", ".css"}}); !slices.Equal(got, []string{"**/*.js", "**/*.css"}) {
		t.Errorf("watchPatterns() = %v", got)
	}
}

func TestGlamourStyle(t *testing.T) {
	t.Parallel()

	if got := glamourStyle(nil); got != "auto" {
		t.Errorf("glamourStyle(nil) = %q", got)
	}
	cfg := config.DefaultConfig()
	cfg.UI.ColorScheme = config.ColorSchemeLight
	if got := glamourStyle(cfg); got != "light" {
		t.Errorf("glamourStyle(light) = %q", got)
	}
}

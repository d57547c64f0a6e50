// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/invowk/weld/internal/issue"
	"github.com/invowk/weld/internal/testutil"
)

func load(t *testing.T, opts LoadOptions) (*Config, error) {
	t.Helper()
	return NewProvider().Load(t.Context(), opts)
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := load(t, LoadOptions{ConfigDirPath: t.TempDir()})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	def := DefaultConfig()
	if cfg.BootstrapModule != def.BootstrapModule || cfg.Minify != def.Minify || cfg.Banner != def.Banner {
		t.Errorf("Load() = %+v, want defaults %+v", cfg, def)
	}
	if cfg.UI.ColorScheme != ColorSchemeAuto || cfg.Npm.Binary != "npm" {
		t.Errorf("nested defaults = %+v / %+v", cfg.UI, cfg.Npm)
	}
	if len(cfg.Sources) != 0 {
		t.Errorf("Sources = %v, want none", cfg.Sources)
	}
}

func TestCycleOverrideDefaults(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		app  string
		want []CycleOverride
	}{
		{"bootstrap pair by default", "", []CycleOverride{{From: "meteor", To: "handlebars"}}},
		{"file list replaces the default", `cycle_overrides: [{from: "a", to: "b"}]`, []CycleOverride{{From: "a", To: "b"}}},
		{"empty list clears it", `cycle_overrides: []`, []CycleOverride{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			appDir := t.TempDir()
			if tt.app != "" {
				testutil.MustWriteFile(t, filepath.Join(appDir, AppConfigFile), tt.app)
			}
			cfg, err := load(t, LoadOptions{ConfigDirPath: t.TempDir(), AppDir: appDir})
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if !slices.Equal(cfg.CycleOverrides, tt.want) {
				t.Errorf("CycleOverrides = %+v, want %+v", cfg.CycleOverrides, tt.want)
			}
		})
	}
}

func TestLoadLayers(t *testing.T) {
	t.Parallel()

	cfgDir := t.TempDir()
	appDir := t.TempDir()
	userFile := filepath.Join(cfgDir, ConfigFileName+"."+ConfigFileExt)
	appFile := filepath.Join(appDir, AppConfigFile)
	testutil.MustWriteFile(t, userFile, `
bootstrap_module: "core"
minify: false
package_dirs: ["/user/pkgs"]
ui: {verbose: true}
`)
	testutil.MustWriteFile(t, appFile, `
package_dirs: ["/app/pkgs"]
cycle_overrides: [{from: "a", to: "b"}]
linker: {ambient: ["Buffer"]}
`)

	cfg, err := load(t, LoadOptions{ConfigDirPath: cfgDir, AppDir: appDir})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BootstrapModule != "core" || cfg.Minify || !cfg.UI.Verbose {
		t.Errorf("user layer not applied: %+v", cfg)
	}
	if !slices.Equal(cfg.PackageDirs, []string{"/app/pkgs"}) {
		t.Errorf("PackageDirs = %v, want the app layer", cfg.PackageDirs)
	}
	if len(cfg.CycleOverrides) != 1 || cfg.CycleOverrides[0] != (CycleOverride{From: "a", To: "b"}) {
		t.Errorf("CycleOverrides = %+v", cfg.CycleOverrides)
	}
	if !slices.Equal(cfg.Linker.Ambient, []string{"Buffer"}) {
		t.Errorf("Linker.Ambient = %v", cfg.Linker.Ambient)
	}
	if !slices.Equal(cfg.Sources, []string{userFile, appFile}) {
		t.Errorf("Sources = %v", cfg.Sources)
	}
}

func TestLoadExplicitFileReplacesLayers(t *testing.T) {
	t.Parallel()

	cfgDir := t.TempDir()
	testutil.MustWriteFile(t, filepath.Join(cfgDir, "config.cue"), `bootstrap_module: "ignored"`)
	explicit := filepath.Join(t.TempDir(), "custom.cue")
	testutil.MustWriteFile(t, explicit, `banner: false`)

	cfg, err := load(t, LoadOptions{ConfigFilePath: explicit, ConfigDirPath: cfgDir})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Banner || cfg.BootstrapModule != DefaultBootstrapModule {
		t.Errorf("Load() = %+v", cfg)
	}

	_, err = load(t, LoadOptions{ConfigFilePath: filepath.Join(cfgDir, "missing.cue")})
	var ae *issue.ActionableError
	if !errors.As(err, &ae) || !strings.Contains(ae.Error(), "config file not found") {
		t.Errorf("missing explicit file error = %v", err)
	}
}

func TestLoadRejectsSchemaViolations(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
	}{
		{"unknown field", `output_format: "zip"`},
		{"wrong type", `minify: "yes"`},
		{"bad color scheme", `ui: {color_scheme: "neon"}`},
		{"override missing endpoint", `cycle_overrides: [{from: "a"}]`},
		{"bad ambient identifier", `linker: {ambient: ["not valid"]}`},
		{"syntax error", `minify: {`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			file := filepath.Join(t.TempDir(), "c.cue")
			testutil.MustWriteFile(t, file, tt.content)
			_, err := load(t, LoadOptions{ConfigFilePath: file})
			var ae *issue.ActionableError
			if !errors.As(err, &ae) {
				t.Fatalf("Load() error = %v, want *issue.ActionableError", err)
			}
		})
	}
}

//nolint:paralleltest // mutates the process environment
func TestLoadEnvironmentOverrides(t *testing.T) {
	dirs := "/one" + string(filepath.ListSeparator) + "/two"
	t.Setenv("WELD_MINIFY", "false")
	t.Setenv("WELD_NPM_INSTALL", "true")
	t.Setenv(PackageDirsEnv, dirs)

	cfg, err := load(t, LoadOptions{ConfigDirPath: t.TempDir()})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Minify || !cfg.Npm.Install {
		t.Errorf("env overrides not applied: minify=%v npm.install=%v", cfg.Minify, cfg.Npm.Install)
	}
	if !slices.Equal(cfg.PackageDirs, []string{"/one", "/two"}) {
		t.Errorf("PackageDirs = %v", cfg.PackageDirs)
	}
}

func TestGenerateCUERoundTrips(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.PackageDirs = []string{"/p"}
	cfg.CycleOverrides = []CycleOverride{{From: "x", To: "y"}}
	cfg.UI.ColorScheme = ColorSchemeDark

	file := filepath.Join(t.TempDir(), "config.cue")
	testutil.MustWriteFile(t, file, GenerateCUE(cfg))
	got, err := load(t, LoadOptions{ConfigFilePath: file})
	if err != nil {
		t.Fatalf("Load(GenerateCUE()) error = %v", err)
	}
	if !slices.Equal(got.PackageDirs, cfg.PackageDirs) || got.UI.ColorScheme != ColorSchemeDark ||
		len(got.CycleOverrides) != 1 || got.CycleOverrides[0].To != "y" {
		t.Errorf("round trip = %+v", got)
	}
}

func TestCreateDefaultConfig(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "weld")
	path, created, err := CreateDefaultConfig(dir)
	if err != nil || !created {
		t.Fatalf("CreateDefaultConfig() = %q, %v, %v", path, created, err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatal(err)
	}
	if _, created, err := CreateDefaultConfig(dir); err != nil || created {
		t.Errorf("second CreateDefaultConfig() created = %v, err = %v", created, err)
	}
}

func TestConfigIsValid(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	if valid, errs := cfg.IsValid(); !valid {
		t.Fatalf("DefaultConfig().IsValid() = %v", errs)
	}

	cfg.PackageDirs = []string{" "}
	cfg.CycleOverrides = []CycleOverride{{From: "a"}}
	cfg.UI.ColorScheme = "neon"
	valid, errs := cfg.IsValid()
	if valid || len(errs) != 1 {
		t.Fatalf("IsValid() = %v, %v", valid, errs)
	}
	var ice *InvalidConfigError
	if !errors.As(errs[0], &ice) || len(ice.FieldErrors) != 3 {
		t.Fatalf("errs[0] = %v", errs[0])
	}
	for _, target := range []error{ErrInvalidPackageDir, ErrInvalidCycleOverride, ErrInvalidColorScheme} {
		if !slices.ContainsFunc(ice.FieldErrors, func(e error) bool { return errors.Is(e, target) }) {
			t.Errorf("field errors lack %v", target)
		}
	}
	if !errors.Is(errs[0], ErrInvalidConfig) {
		t.Error("InvalidConfigError does not wrap ErrInvalidConfig")
	}
}

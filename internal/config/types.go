// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

const (
	// ColorSchemeAuto detects the terminal color scheme automatically.
	ColorSchemeAuto ColorScheme = "auto"
	// ColorSchemeDark forces dark color scheme.
	ColorSchemeDark ColorScheme = "dark"
	// ColorSchemeLight forces light color scheme.
	ColorSchemeLight ColorScheme = "light"

	// DefaultBootstrapModule is the package every other package implicitly uses.
	DefaultBootstrapModule = "meteor"
)

var (
	// ErrInvalidColorScheme is returned when a ColorScheme value is not recognized.
	ErrInvalidColorScheme = errors.New("invalid color scheme")
	// ErrInvalidPackageDir is returned for an empty or whitespace-only search directory.
	ErrInvalidPackageDir = errors.New("invalid package directory")
	// ErrInvalidCycleOverride is returned for an override missing an endpoint.
	ErrInvalidCycleOverride = errors.New("invalid cycle override")
	// ErrInvalidConfig is the sentinel error wrapped by InvalidConfigError.
	ErrInvalidConfig = errors.New("invalid config")
)

type (
	// ColorScheme specifies the terminal color scheme preference.
	ColorScheme string

	// InvalidColorSchemeError is returned when a ColorScheme value is not recognized.
	// It wraps ErrInvalidColorScheme for errors.Is() compatibility.
	InvalidColorSchemeError struct {
		Value ColorScheme
	}

	// InvalidPackageDirError carries the rejected directory and its index.
	InvalidPackageDirError struct {
		Index int
		Value string
	}

	// InvalidCycleOverrideError carries the rejected override.
	InvalidCycleOverrideError struct {
		Index    int
		Override CycleOverride
	}

	// InvalidConfigError collects every field error of a Config.
	InvalidConfigError struct {
		FieldErrors []error
	}

	// Config holds the application configuration.
	Config struct {
		// BootstrapModule is implicitly used by every other package.
		BootstrapModule string `json:"bootstrap_module" mapstructure:"bootstrap_module"`
		// PackageDirs are searched after the application's own packages.
		PackageDirs []string `json:"package_dirs" mapstructure:"package_dirs"`
		// RegistryDir holds versioned packages as <name>/<version>.
		RegistryDir string `json:"registry_dir" mapstructure:"registry_dir"`
		// Minify combines and minifies client JavaScript and CSS.
		Minify bool `json:"minify" mapstructure:"minify"`
		// Banner selects the banner wrap for linked files.
		Banner bool `json:"banner" mapstructure:"banner"`
		// CycleOverrides mark package edges as unordered.
		CycleOverrides []CycleOverride `json:"cycle_overrides" mapstructure:"cycle_overrides"`
		Linker         LinkerConfig    `json:"linker" mapstructure:"linker"`
		Npm            NpmConfig       `json:"npm" mapstructure:"npm"`
		UI             UIConfig        `json:"ui" mapstructure:"ui"`

		// Sources lists the config files that were merged, in order.
		Sources []string `json:"-" mapstructure:"-"`
	}

	// CycleOverride marks the use edge From -> To as unordered.
	CycleOverride struct {
		From string `json:"from" mapstructure:"from"`
		To   string `json:"to" mapstructure:"to"`
	}

	// LinkerConfig configures free-identifier analysis.
	LinkerConfig struct {
		// Ambient extends the built-in table of global identifiers.
		Ambient []string `json:"ambient" mapstructure:"ambient"`
	}

	// NpmConfig configures npm dependency installation.
	NpmConfig struct {
		Install bool   `json:"install" mapstructure:"install"`
		Binary  string `json:"binary" mapstructure:"binary"`
	}

	// UIConfig configures terminal output.
	UIConfig struct {
		Verbose     bool        `json:"verbose" mapstructure:"verbose"`
		ColorScheme ColorScheme `json:"color_scheme" mapstructure:"color_scheme"`
	}
)

// DefaultCycleOverrides breaks the bootstrap loop: the bootstrap package uses
// handlebars, which like every package implicitly uses the bootstrap.
var DefaultCycleOverrides = []CycleOverride{
	{From: DefaultBootstrapModule, To: "handlebars"},
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	registry := ""
	if home, err := os.UserHomeDir(); err == nil {
		registry = filepath.Join(home, ".weld", "packages")
	}
	return &Config{
		BootstrapModule: DefaultBootstrapModule,
		PackageDirs:     []string{},
		RegistryDir:     registry,
		Minify:          true,
		Banner:          true,
		CycleOverrides:  slices.Clone(DefaultCycleOverrides),
		Linker:          LinkerConfig{Ambient: []string{}},
		Npm:             NpmConfig{Binary: "npm"},
		UI:              UIConfig{ColorScheme: ColorSchemeAuto},
	}
}

// String returns the string representation of the ColorScheme.
func (c ColorScheme) String() string { return string(c) }

// IsValid returns whether the ColorScheme is one of the defined schemes.
// The zero value is treated as auto.
func (c ColorScheme) IsValid() (bool, []error) {
	switch c {
	case "", ColorSchemeAuto, ColorSchemeDark, ColorSchemeLight:
		return true, nil
	default:
		return false, []error{&InvalidColorSchemeError{Value: c}}
	}
}

// Error implements the error interface.
func (e *InvalidColorSchemeError) Error() string {
	return fmt.Sprintf("invalid color scheme %q (valid: auto, dark, light)", e.Value)
}

// Unwrap returns ErrInvalidColorScheme for errors.Is() compatibility.
func (e *InvalidColorSchemeError) Unwrap() error { return ErrInvalidColorScheme }

func (e *InvalidPackageDirError) Error() string {
	return fmt.Sprintf("package_dirs[%d]: %q is empty", e.Index, e.Value)
}

func (e *InvalidPackageDirError) Unwrap() error { return ErrInvalidPackageDir }

func (e *InvalidCycleOverrideError) Error() string {
	return fmt.Sprintf("cycle_overrides[%d]: from %q to %q needs both packages", e.Index, e.Override.From, e.Override.To)
}

func (e *InvalidCycleOverrideError) Unwrap() error { return ErrInvalidCycleOverride }

// Error implements the error interface for InvalidConfigError.
func (e *InvalidConfigError) Error() string {
	msgs := make([]string, len(e.FieldErrors))
	for i, err := range e.FieldErrors {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("invalid config: %s", strings.Join(msgs, "; "))
}

// Unwrap returns ErrInvalidConfig for errors.Is() compatibility.
func (e *InvalidConfigError) Unwrap() error { return ErrInvalidConfig }

// IsValid returns whether the Config has valid fields. Environment
// overrides bypass the CUE schema, so the checks are repeated here.
func (c Config) IsValid() (bool, []error) {
	var errs []error
	for i, d := range c.PackageDirs {
		if strings.TrimSpace(d) == "" {
			errs = append(errs, &InvalidPackageDirError{Index: i, Value: d})
		}
	}
	for i, o := range c.CycleOverrides {
		if o.From == "" || o.To == "" {
			errs = append(errs, &InvalidCycleOverrideError{Index: i, Override: o})
		}
	}
	if valid, fieldErrs := c.UI.ColorScheme.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if len(errs) > 0 {
		return false, []error{&InvalidConfigError{FieldErrors: errs}}
	}
	return true, nil
}

// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/viper"

	"github.com/invowk/weld/internal/issue"
	"github.com/invowk/weld/pkg/cueutil"
)

const (
	// AppName is the application name.
	AppName = "weld"
	// ConfigFileName is the name of the config file (without extension).
	ConfigFileName = "config"
	// ConfigFileExt is the config file extension.
	ConfigFileExt = "cue"
	// AppConfigFile is the per-application config file.
	AppConfigFile = "weld.cue"
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "WELD"
	// PackageDirsEnv lists package directories in path-list syntax.
	PackageDirsEnv = "WELD_PACKAGE_DIRS"
)

//go:embed config_schema.cue
var configSchema []byte

// ConfigDir returns the weld configuration directory using platform-specific
// conventions: Windows uses %APPDATA%, macOS uses ~/Library/Application Support,
// and Linux/others use $XDG_CONFIG_HOME (defaulting to ~/.config).
//
//nolint:revive // ConfigDir is more descriptive than Dir for external callers
func ConfigDir() (string, error) {
	if configDirOverride != "" {
		return configDirOverride, nil
	}

	var configDir string

	switch runtime.GOOS {
	case "windows":
		configDir = os.Getenv("APPDATA")
		if configDir == "" {
			configDir = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(home, "Library", "Application Support")
	default: // Linux and others
		configDir = os.Getenv("XDG_CONFIG_HOME")
		if configDir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("failed to get home directory: %w", err)
			}
			configDir = filepath.Join(home, ".config")
		}
	}

	return filepath.Join(configDir, AppName), nil
}

// ConfigFilePath returns the path of the user config file, which may not exist.
func ConfigFilePath(configDirPath string) (string, error) {
	cfgDir, err := configDirWithOverride(configDirPath)
	if err != nil {
		return "", err
	}
	return filepath.Join(cfgDir, ConfigFileName+"."+ConfigFileExt), nil
}

// loadWithOptions layers defaults, config files and environment overrides.
func loadWithOptions(ctx context.Context, opts LoadOptions) (*Config, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("load config canceled: %w", ctx.Err())
	default:
	}

	v := viper.New()

	defaults := DefaultConfig()
	v.SetDefault("bootstrap_module", defaults.BootstrapModule)
	v.SetDefault("package_dirs", defaults.PackageDirs)
	v.SetDefault("registry_dir", defaults.RegistryDir)
	v.SetDefault("minify", defaults.Minify)
	v.SetDefault("banner", defaults.Banner)
	v.SetDefault("cycle_overrides", overrideMaps(defaults.CycleOverrides))
	v.SetDefault("linker.ambient", defaults.Linker.Ambient)
	v.SetDefault("npm.install", defaults.Npm.Install)
	v.SetDefault("npm.binary", defaults.Npm.Binary)
	v.SetDefault("ui.verbose", defaults.UI.Verbose)
	v.SetDefault("ui.color_scheme", string(defaults.UI.ColorScheme))

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var sources []string
	if opts.ConfigFilePath != "" {
		// An explicit file replaces both file layers.
		if !fileExists(opts.ConfigFilePath) {
			return nil, issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(opts.ConfigFilePath).
				WithSuggestion("Verify the file path is correct").
				WithSuggestion("Use 'weld config show' to see the default configuration").
				Wrap(fmt.Errorf("config file not found: %s", opts.ConfigFilePath)).
				BuildError()
		}
		if err := mergeFile(v, opts.ConfigFilePath); err != nil {
			return nil, err
		}
		sources = append(sources, opts.ConfigFilePath)
	} else {
		cuePath, err := ConfigFilePath(opts.ConfigDirPath)
		if err != nil {
			return nil, err
		}
		candidates := []string{cuePath}
		if opts.AppDir != "" {
			candidates = append(candidates, filepath.Join(opts.AppDir, AppConfigFile))
		}
		for _, path := range candidates {
			if !fileExists(path) {
				continue
			}
			if err := mergeFile(v, path); err != nil {
				return nil, err
			}
			sources = append(sources, path)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if list, ok := os.LookupEnv(PackageDirsEnv); ok {
		cfg.PackageDirs = splitList(list)
	}
	cfg.Sources = sources

	if valid, errs := cfg.IsValid(); !valid {
		return nil, issue.NewErrorContext().
			WithOperation("validate configuration").
			WithSuggestion("Check the WELD_* environment variables").
			WithSuggestion("Run 'weld config show' to see the effective configuration").
			Wrap(errs[0]).
			BuildError()
	}
	return &cfg, nil
}

// mergeFile validates a CUE config file against #Config and merges it into
// v over what is already there.
func mergeFile(v *viper.Viper, path string) error {
	configMap, err := readCUE(path)
	if err != nil {
		return issue.NewErrorContext().
			WithOperation("load configuration").
			WithResource(path).
			WithSuggestion("Check that the file contains valid CUE syntax").
			WithSuggestion("Verify the configuration values match the expected schema").
			WithSuggestion("See 'weld config --help' for configuration options").
			Wrap(err).
			BuildError()
	}
	if err := v.MergeConfigMap(configMap); err != nil {
		return fmt.Errorf("failed to merge config: %w", err)
	}
	return nil
}

// readCUE decodes path into a map. Fields are optional, so the file is not
// required to be concrete.
func readCUE(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return cueutil.DecodeMap(configSchema, data, "#Config",
		cueutil.WithFilename(path), cueutil.WithConcrete(false))
}

func configDirWithOverride(configDirPath string) (string, error) {
	if configDirPath != "" {
		return configDirPath, nil
	}
	return ConfigDir()
}

func splitList(list string) []string {
	out := []string{}
	for _, d := range filepath.SplitList(list) {
		if d = strings.TrimSpace(d); d != "" {
			out = append(out, d)
		}
	}
	return out
}

// fileExists checks if a file exists and is not a directory
func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// CreateDefaultConfig writes the default config file unless one exists,
// returning its path.
func CreateDefaultConfig(configDirPath string) (string, bool, error) {
	cfgPath, err := ConfigFilePath(configDirPath)
	if err != nil {
		return "", false, err
	}
	if fileExists(cfgPath) {
		return cfgPath, false, nil
	}
	if err := os.MkdirAll(filepath.Dir(cfgPath), 0o755); err != nil {
		return "", false, fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(cfgPath, []byte(GenerateCUE(DefaultConfig())), 0o644); err != nil {
		return "", false, fmt.Errorf("failed to write config file: %w", err)
	}
	return cfgPath, true, nil
}

// GenerateCUE generates a CUE representation of the configuration
func GenerateCUE(cfg *Config) string {
	var sb strings.Builder

	sb.WriteString("// weld configuration file\n\n")

	fmt.Fprintf(&sb, "bootstrap_module: %q\n", cfg.BootstrapModule)
	sb.WriteString("package_dirs: " + cueList(cfg.PackageDirs) + "\n")
	fmt.Fprintf(&sb, "registry_dir: %q\n", cfg.RegistryDir)
	fmt.Fprintf(&sb, "minify: %v\n", cfg.Minify)
	fmt.Fprintf(&sb, "banner: %v\n", cfg.Banner)

	if len(cfg.CycleOverrides) > 0 {
		sb.WriteString("\ncycle_overrides: [\n")
		for _, o := range cfg.CycleOverrides {
			fmt.Fprintf(&sb, "\t{from: %q, to: %q},\n", o.From, o.To)
		}
		sb.WriteString("]\n")
	}

	sb.WriteString("\nlinker: {\n")
	sb.WriteString("\tambient: " + cueList(cfg.Linker.Ambient) + "\n")
	sb.WriteString("}\n")

	sb.WriteString("\nnpm: {\n")
	fmt.Fprintf(&sb, "\tinstall: %v\n", cfg.Npm.Install)
	if cfg.Npm.Binary != "" {
		fmt.Fprintf(&sb, "\tbinary: %q\n", cfg.Npm.Binary)
	}
	sb.WriteString("}\n")

	sb.WriteString("\nui: {\n")
	fmt.Fprintf(&sb, "\tverbose: %v\n", cfg.UI.Verbose)
	scheme := cfg.UI.ColorScheme
	if scheme == "" {
		scheme = ColorSchemeAuto
	}
	fmt.Fprintf(&sb, "\tcolor_scheme: %q\n", scheme)
	sb.WriteString("}\n")

	return sb.String()
}

func cueList(items []string) string {
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = fmt.Sprintf("%q", s)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

// overrideMaps renders overrides the way a decoded config file holds them.
func overrideMaps(overrides []CycleOverride) []any {
	out := make([]any, len(overrides))
	for i, o := range overrides {
		out[i] = map[string]any{"from": o.From, "to": o.To}
	}
	return out
}

// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/invowk/weld/internal/config"
)

// newConfigCommand creates the `weld config` command tree.
func newConfigCommand(app *App) *cobra.Command {
	var appDir string

	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage weld configuration",
		Long: `Manage weld configuration.

Settings are layered: built-in defaults, the user file (config.cue in the
weld config directory), the application's weld.cue, and WELD_*
environment variables. --config replaces both files.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cfgCmd.PersistentFlags().StringVar(&appDir, "app", "", "include this application's weld.cue")

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.Config.Load(cmd.Context(), config.LoadOptions{ConfigFilePath: app.configPath, AppDir: appDir})
			if err != nil {
				app.reportConfigError(err)
				return &ExitError{Code: ExitUsage}
			}
			app.showConfig(cfg)
			return nil
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "dump",
		Short: "Output the effective configuration as CUE",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.Config.Load(cmd.Context(), config.LoadOptions{ConfigFilePath: app.configPath, AppDir: appDir})
			if err != nil {
				app.reportConfigError(err)
				return &ExitError{Code: ExitUsage}
			}
			fmt.Fprint(app.stdout, config.GenerateCUE(cfg))
			return nil
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Create the default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, created, err := config.CreateDefaultConfig("")
			if err != nil {
				return err
			}
			if !created {
				fmt.Fprintf(app.stdout, "%s Configuration already exists at %s\n", WarningStyle.Render("!"), path)
				return nil
			}
			fmt.Fprintf(app.stdout, "%s Created default configuration at %s\n", SuccessStyle.Render(successIcon), path)
			return nil
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show the configuration file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.ConfigFilePath("")
			if err != nil {
				return err
			}
			fmt.Fprintln(app.stdout, path)
			return nil
		},
	})

	return cfgCmd
}

func (a *App) showConfig(cfg *config.Config) {
	key := UnitStyle.Render
	val := SuccessStyle.Render
	w := a.stdout

	fmt.Fprintln(w, TitleStyle.Render("Current Configuration"))
	fmt.Fprintln(w)
	if len(cfg.Sources) == 0 {
		fmt.Fprintf(w, "%s: %s\n", key("sources"), SubtitleStyle.Render("(using defaults)"))
	} else {
		fmt.Fprintf(w, "%s: %s\n", key("sources"), strings.Join(cfg.Sources, ", "))
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "%s: %s\n", key("bootstrap_module"), val(cfg.BootstrapModule))
	fmt.Fprintf(w, "%s: %s\n", key("registry_dir"), val(cfg.RegistryDir))
	fmt.Fprintf(w, "%s: %s\n", key("minify"), val(fmt.Sprint(cfg.Minify)))
	fmt.Fprintf(w, "%s: %s\n", key("banner"), val(fmt.Sprint(cfg.Banner)))

	fmt.Fprintf(w, "%s:\n", key("package_dirs"))
	if len(cfg.PackageDirs) == 0 {
		fmt.Fprintf(w, "  %s\n", SubtitleStyle.Render("(none configured)"))
	}
	for _, dir := range cfg.PackageDirs {
		fmt.Fprintf(w, "  - %s\n", val(dir))
	}

	if len(cfg.CycleOverrides) > 0 {
		fmt.Fprintf(w, "%s:\n", key("cycle_overrides"))
		for _, o := range cfg.CycleOverrides {
			fmt.Fprintf(w, "  - %s -> %s\n", val(o.From), val(o.To))
		}
	}

	fmt.Fprintf(w, "%s:\n", key("linker"))
	fmt.Fprintf(w, "  ambient: %s\n", val(strings.Join(cfg.Linker.Ambient, ", ")))
	fmt.Fprintf(w, "%s:\n", key("npm"))
	fmt.Fprintf(w, "  install: %s\n", val(fmt.Sprint(cfg.Npm.Install)))
	fmt.Fprintf(w, "  binary: %s\n", val(cfg.Npm.Binary))
	fmt.Fprintf(w, "%s:\n", key("ui"))
	fmt.Fprintf(w, "  verbose: %s\n", val(fmt.Sprint(cfg.UI.Verbose)))
	fmt.Fprintf(w, "  color_scheme: %s\n", val(cfg.UI.ColorScheme.String()))
}

// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"github.com/invowk/weld/internal/build"
)

const (
	formatJSON = "json"
	formatTOML = "toml"
)

func newDepsCommand(app *App) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "deps <app-dir>",
		Short: "List the files a rebuild depends on",
		Long: `List the files a rebuild depends on, in the shape build writes to
dependencies.json: configuration files, app files relative to the app
directory, package files by package, the source extensions the app scan
uses, and the file name patterns it skips.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != formatJSON && format != formatTOML {
				return &ExitError{Code: ExitUsage, Err: fmt.Errorf("unknown format %q (want json or toml)", format)}
			}
			s, err := app.newSession(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			opts, err := s.buildOptions(app.stderr)
			if err != nil {
				app.reportFailures(s, []error{err}, false)
				return &ExitError{Code: ExitBuildFailed}
			}
			plan, err := build.Activate(cmd.Context(), opts)
			if err != nil {
				app.reportFailures(s, []error{err}, false)
				return &ExitError{Code: ExitBuildFailed}
			}
			deps := plan.Dependencies(s.cfg.Sources).Normalize()

			var out []byte
			switch format {
			case formatTOML:
				out, err = toml.Marshal(deps)
			default:
				out, err = json.MarshalIndent(deps, "", "  ")
				out = append(out, '\n')
			}
			if err != nil {
				return fmt.Errorf("encode dependencies: %w", err)
			}
			_, err = app.stdout.Write(out)
			return err
		},
	}
	cmd.Flags().StringVar(&format, "format", formatJSON, "output format (json or toml)")
	return cmd
}

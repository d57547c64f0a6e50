// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/invowk/weld/internal/build"
)

type buildFlags struct {
	noMinify bool
	tests    []string
}

func newBuildCommand(app *App) *cobra.Command {
	var flags buildFlags
	cmd := &cobra.Command{
		Use:   "build <app-dir> <output-dir>",
		Short: "Build the bundle for an application",
		Long: `Build the bundle for an application.

The output directory is replaced atomically. When the build reports errors
the bundle is still written, marked with a STALE file, and the command
exits with status 1. A dependency cycle aborts before anything is written.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := app.newSession(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			res, err := app.runBuild(cmd.Context(), s, args[1], flags)
			if err != nil {
				return err
			}
			return app.reportBuild(s, res)
		},
	}
	cmd.Flags().BoolVar(&flags.noMinify, "no-minify", false, "keep client JavaScript and CSS as separate files")
	cmd.Flags().StringSliceVar(&flags.tests, "test", nil, "also build the tests of these packages")
	return cmd
}

// runBuild builds s's application into outDir.
func (a *App) runBuild(ctx context.Context, s *session, outDir string, flags buildFlags) (*build.Result, error) {
	opts, err := s.buildOptions(a.stderr)
	if err != nil {
		a.reportFailures(s, []error{err}, false)
		return nil, &ExitError{Code: ExitBuildFailed}
	}
	abs, err := filepath.Abs(outDir)
	if err != nil {
		return nil, &ExitError{Code: ExitUsage, Err: err}
	}
	opts.OutputDir = abs
	opts.TestPackages = flags.tests
	if flags.noMinify {
		opts.Minify = false
	}
	return build.Build(ctx, opts)
}

// reportBuild prints the outcome of a build and returns the exit error
// for a failed one.
func (a *App) reportBuild(s *session, res *build.Result) error {
	if a.isVerbose(s) && len(res.Order) > 0 {
		for i, name := range res.Order {
			fmt.Fprintf(a.stdout, "%3d. %s\n", i+1, UnitStyle.Render(name))
		}
	}
	if len(res.Errors) > 0 {
		// Only a written bundle carries dependencies.
		a.reportFailures(s, res.Causes, res.Dependencies.App != nil)
		return &ExitError{Code: ExitBuildFailed}
	}
	fmt.Fprintf(a.stdout, "%s Built %d units into %s\n",
		SuccessStyle.Render(successIcon), len(res.Order), pathStyle.Render(res.OutputDir))
	return nil
}

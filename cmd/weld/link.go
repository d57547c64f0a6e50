// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/invowk/weld/internal/build"
	"github.com/invowk/weld/internal/env"
	"github.com/invowk/weld/internal/graph"
	"github.com/invowk/weld/internal/manifest"
	"github.com/invowk/weld/pkg/moddesc"
)

// appUnitName selects the application's own unit in `weld link`.
const appUnitName = "app"

func newLinkCommand(app *App) *cobra.Command {
	var (
		envName string
		test    bool
	)
	cmd := &cobra.Command{
		Use:   "link <app-dir> <package>",
		Short: "Print the linked JavaScript of one unit",
		Long: `Print the linked JavaScript of one unit and the symbols it exports.

Use "app" as the package name for the application itself, and --test for
a package's test unit (which must also be named with --test on build).`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := env.Parse(envName)
			if err != nil {
				return &ExitError{Code: ExitUsage, Err: err}
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
			if test {
				opts.TestPackages = []string{args[1]}
			}
			plan, err := build.NewPlan(cmd.Context(), opts)
			if err != nil {
				app.reportFailures(s, []error{err}, false)
				return &ExitError{Code: ExitBuildFailed}
			}
			if errs := plan.Link(cmd.Context(), opts); len(errs) > 0 {
				app.reportFailures(s, errs, false)
				return &ExitError{Code: ExitBuildFailed}
			}

			u := findUnit(plan.Order, args[1], test)
			if u == nil {
				return &ExitError{Code: ExitUsage, Err: fmt.Errorf("%s is not part of the bundle", args[1])}
			}
			for _, r := range u.Resources(e) {
				if r.Type != manifest.TypeJS {
					continue
				}
				fmt.Fprintln(app.stdout, SubtitleStyle.Render("// "+r.ServePath))
				fmt.Fprintln(app.stdout, string(r.Data))
			}
			if exports := u.Exports(e); len(exports) > 0 {
				fmt.Fprintf(app.stdout, "%s %s\n", TitleStyle.Render("exports:"), strings.Join(exports, ", "))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&envName, "env", env.Client.String(), "environment to print (client or server)")
	cmd.Flags().BoolVar(&test, "test", false, "print the package's test unit")
	return cmd
}

func findUnit(units []*graph.Unit, name string, test bool) *graph.Unit {
	role := moddesc.RoleUse
	if test {
		role = moddesc.RoleTest
	}
	for _, u := range units {
		if u.Role != role {
			continue
		}
		if (name == appUnitName && u.IsApp()) || (!u.IsApp() && u.Descriptor.Name == name) {
			return u
		}
	}
	return nil
}

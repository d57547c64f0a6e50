// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/invowk/weld/internal/build"
)

func newOrderCommand(app *App) *cobra.Command {
	var tests []string
	cmd := &cobra.Command{
		Use:   "order <app-dir>",
		Short: "Print the load order of an application's units",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := app.newSession(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			opts, err := s.buildOptions(app.stderr)
			if err != nil {
				app.reportFailures(s, []error{err}, false)
				return &ExitError{Code: ExitBuildFailed}
			}
			opts.TestPackages = tests
			plan, err := build.NewPlan(cmd.Context(), opts)
			if err != nil {
				app.reportFailures(s, []error{err}, false)
				return &ExitError{Code: ExitBuildFailed}
			}
			for _, u := range plan.Order {
				fmt.Fprintln(app.stdout, u.String())
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&tests, "test", nil, "include the tests of these packages")
	return cmd
}

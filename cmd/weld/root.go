// SPDX-License-Identifier: MPL-2.0

// Package cmd contains the weld command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"
)

// NewRootCommand assembles the command tree around app.
func NewRootCommand(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:   "weld",
		Short: "Build application bundles from packages",
		Long: TitleStyle.Render("weld") + SubtitleStyle.Render(" - build application bundles from packages") + `

weld resolves the packages an application uses, orders them, links each
package's JavaScript into a single scope, and writes a bundle directory
with a program manifest for the client and the server.

` + SubtitleStyle.Render("Examples:") + `
  weld build ./myapp ./out     Build the bundle for ./myapp into ./out
  weld order ./myapp           Show the package load order
  weld deps ./myapp            List the files a rebuild depends on
  weld watch ./myapp ./out     Rebuild whenever a source file changes`,
		SilenceUsage: true,
	}

	root.PersistentFlags().BoolVarP(&app.verbose, "verbose", "v", false, "enable verbose output")
	root.PersistentFlags().StringVar(&app.configPath, "config", "", "config file (default is $XDG_CONFIG_HOME/weld/config.cue)")

	root.AddCommand(
		newBuildCommand(app),
		newOrderCommand(app),
		newLinkCommand(app),
		newDepsCommand(app),
		newWatchCommand(app),
		newConfigCommand(app),
	)
	return root
}

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// Execute runs the CLI and exits with the command's exit code.
func Execute() {
	app := NewApp(Dependencies{})
	if err := fang.Execute(
		context.Background(),
		NewRootCommand(app),
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
		fang.WithErrorHandler(handleError),
	); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(ExitUsage)
	}
}

// handleError prints errors the commands have not already reported.
func handleError(w io.Writer, styles fang.Styles, err error) {
	var exitErr *ExitError
	if errors.As(err, &exitErr) && exitErr.Err == nil {
		return
	}
	fang.DefaultErrorHandler(w, styles, err)
}

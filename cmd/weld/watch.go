// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"maps"
	"path"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/invowk/weld/internal/manifest"
	"github.com/invowk/weld/internal/watch"
	"github.com/invowk/weld/pkg/moddesc"
)

func newWatchCommand(app *App) *cobra.Command {
	var (
		flags    buildFlags
		debounce time.Duration
	)
	cmd := &cobra.Command{
		Use:   "watch <app-dir> <output-dir>",
		Short: "Rebuild the bundle whenever a source file changes",
		Long: `Build the bundle, then rebuild it whenever a file it depends on
changes. Every rebuild starts from scratch; a failed rebuild leaves a
stale bundle and watching continues. Stop with Ctrl+C.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := app.newSession(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return app.watch(cmd.Context(), s, args[1], flags, debounce)
		},
	}
	cmd.Flags().BoolVar(&flags.noMinify, "no-minify", false, "keep client JavaScript and CSS as separate files")
	cmd.Flags().StringSliceVar(&flags.tests, "test", nil, "also build the tests of these packages")
	cmd.Flags().DurationVar(&debounce, "debounce", 0, "quiet period before rebuilding (default 300ms)")
	return cmd
}

func (a *App) watch(ctx context.Context, s *session, outDir string, flags buildFlags, debounce time.Duration) error {
	absOut, err := filepath.Abs(outDir)
	if err != nil {
		return &ExitError{Code: ExitUsage, Err: err}
	}

	rebuild := func(ctx context.Context) (manifest.Dependencies, error) {
		res, err := a.runBuild(ctx, s, absOut, flags)
		if err != nil {
			return manifest.Dependencies{}, err
		}
		if reportErr := a.reportBuild(s, res); reportErr != nil {
			s.logger.Warn("build failed; waiting for changes")
		}
		return res.Dependencies, nil
	}

	deps, err := rebuild(ctx)
	if err != nil {
		var exitErr *ExitError
		if !errors.As(err, &exitErr) {
			return err
		}
	}
	if deps.App == nil {
		// Nothing was written, so only the package list is known.
		deps.App = []string{path.Join(moddesc.AppMetaDir, moddesc.PackagesFile)}
	}

	var w *watch.Watcher
	w, err = watch.New(watch.Config{
		BaseDir:      s.appDir,
		Patterns:     watchPatterns(deps),
		Ignore:       outputIgnore(s.appDir, absOut),
		ExcludeNames: excludePatterns(deps, s.logger.Warn),
		Files:        watchedFiles(s.appDir, deps),
		Debounce:     debounce,
		Stderr:       a.stderr,
		OnChange: func(ctx context.Context, changed []string) error {
			s.logger.Info("rebuilding", "changed", strings.Join(changed, ", "))
			next, err := rebuild(ctx)
			if err != nil {
				return err
			}
			if next.App != nil {
				w.SetFiles(watchedFiles(s.appDir, next))
			}
			return nil
		},
	})
	if err != nil {
		return err
	}
	s.logger.Info("watching for changes", "app", s.appDir)
	return w.Run(ctx)
}

// watchPatterns selects the app files that trigger a rebuild by source
// extension.
func watchPatterns(deps manifest.Dependencies) []string {
	return watch.PatternsForExtensions(deps.Extensions)
}

// outputIgnore keeps an output directory inside the app from retriggering.
func outputIgnore(appDir, outDir string) []string {
	rel, err := filepath.Rel(appDir, outDir)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil
	}
	rel = filepath.ToSlash(rel)
	// The writer stages the bundle next to the output directory.
	staging := filepath.ToSlash(filepath.Join(filepath.Dir(rel), ".build."+filepath.Base(rel)))
	return []string{rel, rel + "/**", staging, staging + "/**"}
}

func excludePatterns(deps manifest.Dependencies, warn func(any, ...any)) []*regexp.Regexp {
	var out []*regexp.Regexp
	for _, expr := range deps.Exclude {
		re, err := regexp.Compile(expr)
		if err != nil {
			warn("ignoring exclude pattern", "pattern", expr, "error", err)
			continue
		}
		out = append(out, re)
	}
	return out
}

// watchedFiles lists the recorded app files, made absolute, and every
// package file.
func watchedFiles(appDir string, deps manifest.Dependencies) []string {
	files := make([]string, 0, len(deps.App))
	for _, rel := range deps.App {
		files = append(files, filepath.Join(appDir, filepath.FromSlash(rel)))
	}
	for _, name := range slices.Sorted(maps.Keys(deps.Packages)) {
		files = append(files, deps.Packages[name]...)
	}
	return files
}

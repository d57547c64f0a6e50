// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"

	"github.com/invowk/weld/internal/build"
	"github.com/invowk/weld/internal/config"
	"github.com/invowk/weld/internal/graph"
	"github.com/invowk/weld/internal/handler"
	"github.com/invowk/weld/internal/npm"
	"github.com/invowk/weld/internal/resolver"
	"github.com/invowk/weld/pkg/moddesc"
)

type (
	// App is the composition root of the CLI. Command handlers load
	// configuration and build services through it.
	App struct {
		Config config.Provider
		stdout io.Writer
		stderr io.Writer

		verbose    bool
		configPath string
	}

	// Dependencies are the injection points for NewApp. Nil fields get
	// production defaults.
	Dependencies struct {
		Config config.Provider
		Stdout io.Writer
		Stderr io.Writer
	}

	// session is the per-invocation state shared by the build commands.
	session struct {
		cfg    *config.Config
		logger *log.Logger
		appDir string
	}
)

// NewApp creates an App with defaults for omitted dependencies.
func NewApp(deps Dependencies) *App {
	if deps.Stdout == nil {
		deps.Stdout = os.Stdout
	}
	if deps.Stderr == nil {
		deps.Stderr = os.Stderr
	}
	if deps.Config == nil {
		deps.Config = config.NewProvider()
	}
	return &App{Config: deps.Config, stdout: deps.Stdout, stderr: deps.Stderr}
}

// newSession loads the configuration for appDir and sets up logging.
// Configuration failures are reported here and come back as usage errors.
func (a *App) newSession(ctx context.Context, appDir string) (*session, error) {
	abs, err := filepath.Abs(appDir)
	if err != nil {
		return nil, &ExitError{Code: ExitUsage, Err: err}
	}
	cfg, err := a.Config.Load(ctx, config.LoadOptions{ConfigFilePath: a.configPath, AppDir: abs})
	if err != nil {
		a.reportConfigError(err)
		return nil, &ExitError{Code: ExitUsage}
	}
	return &session{cfg: cfg, logger: a.newLogger(cfg), appDir: abs}, nil
}

// newLogger writes to stderr at info level, or debug with --verbose or
// ui.verbose. It also becomes the slog default.
func (a *App) newLogger(cfg *config.Config) *log.Logger {
	level := log.InfoLevel
	if a.verbose || (cfg != nil && cfg.UI.Verbose) {
		level = log.DebugLevel
	}
	logger := log.NewWithOptions(a.stderr, log.Options{
		Prefix: "weld",
		Level:  level,
	})
	slog.SetDefault(slog.New(logger))
	return logger
}

func (a *App) isVerbose(s *session) bool {
	return a.verbose || (s != nil && s.cfg.UI.Verbose)
}

// buildOptions wires the resolver, installer and linker settings from the
// session's configuration.
func (s *session) buildOptions(stderr io.Writer) (build.Options, error) {
	release, err := moddesc.ReadRelease(s.appDir)
	if err != nil {
		return build.Options{}, err
	}
	res, err := resolver.New(resolver.Options{
		AppDir:      s.appDir,
		PackageDirs: s.cfg.PackageDirs,
		RegistryDir: s.cfg.RegistryDir,
		Release:     release,
		Logger:      s.logger,
	})
	if err != nil {
		return build.Options{}, err
	}

	var installer graph.Installer = npm.LogInstaller{Logger: s.logger}
	if s.cfg.Npm.Install {
		installer = &npm.ShellInstaller{
			Npm:    s.cfg.Npm.Binary,
			Stdout: stderr,
			Stderr: stderr,
			Logger: s.logger,
		}
	}

	overrides := make([]graph.EdgeOverride, 0, len(s.cfg.CycleOverrides))
	for _, o := range s.cfg.CycleOverrides {
		overrides = append(overrides, graph.EdgeOverride{From: o.From, To: o.To})
	}

	return build.Options{
		AppDir:              s.appDir,
		Resolver:            res,
		Handlers:            handler.NewRegistry(),
		Installer:           installer,
		Bootstrap:           s.cfg.BootstrapModule,
		Overrides:           overrides,
		Minify:              s.cfg.Minify,
		PreserveLineNumbers: !s.cfg.Banner,
		Ambient:             s.cfg.Linker.Ambient,
		CoreFiles:           s.cfg.Sources,
		Logger:              s.logger,
	}, nil
}

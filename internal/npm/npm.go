// SPDX-License-Identifier: MPL-2.0

// Package npm installs the npm dependencies a package declares into the
// package's private .npm directory.
package npm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/charmbracelet/log"
	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"

	"github.com/invowk/weld/pkg/moddesc"
)

// Dir is the per-package directory npm installs into.
const Dir = ".npm"

type (
	// ShellInstaller runs `npm install` through the embedded shell
	// interpreter for every declared dependency that is missing or at a
	// different version.
	ShellInstaller struct {
		// Npm is the npm executable; empty means "npm" on PATH.
		Npm    string
		Env    []string
		Stdout io.Writer
		Stderr io.Writer
		Logger *log.Logger
		// ExecHandler wraps command execution. Tests use it to stand in
		// for npm.
		ExecHandler func(next interp.ExecHandlerFunc) interp.ExecHandlerFunc
	}

	// LogInstaller records what would be installed without running npm.
	LogInstaller struct {
		Logger *log.Logger
	}

	// InstallError is a failed npm run.
	InstallError struct {
		Module   string
		ExitCode int
		Err      error
	}

	packageJSON struct {
		Version string `json:"version"`
	}
)

func (e *InstallError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("npm install for %s: %v", e.Module, e.Err)
	}
	return fmt.Sprintf("npm install for %s exited with status %d", e.Module, e.ExitCode)
}

func (e *InstallError) Unwrap() error { return e.Err }

// Install implements graph.Installer.
func (s *ShellInstaller) Install(ctx context.Context, d *moddesc.Descriptor) error {
	dir := filepath.Join(d.SourceRoot, Dir)
	missing := Missing(dir, d.NpmDependencies)
	if len(missing) == 0 {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	script, err := s.script(dir, missing)
	if err != nil {
		return &InstallError{Module: d.Name, Err: err}
	}
	prog, err := syntax.NewParser().Parse(strings.NewReader(script), "npm-install")
	if err != nil {
		return &InstallError{Module: d.Name, Err: fmt.Errorf("parse install command: %w", err)}
	}

	environ := s.Env
	if environ == nil {
		environ = os.Environ()
	}
	opts := []interp.RunnerOption{
		interp.Dir(dir),
		interp.Env(expand.ListEnviron(environ...)),
		interp.StdIO(nil, writerOr(s.Stdout), writerOr(s.Stderr)),
	}
	if s.ExecHandler != nil {
		opts = append(opts, interp.ExecHandlers(s.ExecHandler))
	}
	runner, err := interp.New(opts...)
	if err != nil {
		return &InstallError{Module: d.Name, Err: fmt.Errorf("create interpreter: %w", err)}
	}

	logger(s.Logger).Info("installing npm dependencies", "module", d.Name, "packages", strings.Join(missing, " "))
	if err := runner.Run(ctx, prog); err != nil {
		var status interp.ExitStatus
		if errors.As(err, &status) {
			return &InstallError{Module: d.Name, ExitCode: int(status)}
		}
		return &InstallError{Module: d.Name, Err: err}
	}
	return nil
}

func (s *ShellInstaller) script(dir string, specs []string) (string, error) {
	npm := s.Npm
	if npm == "" {
		npm = "npm"
	}
	args := append([]string{npm, "install", "--no-save", "--prefix", dir}, specs...)
	quoted := make([]string, len(args))
	for i, a := range args {
		q, err := syntax.Quote(a, syntax.LangBash)
		if err != nil {
			return "", err
		}
		quoted[i] = q
	}
	return strings.Join(quoted, " ") + "\n", nil
}

// Install implements graph.Installer.
func (l LogInstaller) Install(_ context.Context, d *moddesc.Descriptor) error {
	missing := Missing(filepath.Join(d.SourceRoot, Dir), d.NpmDependencies)
	if len(missing) > 0 {
		logger(l.Logger).Warn("npm install disabled; dependencies not installed",
			"module", d.Name, "packages", strings.Join(missing, " "))
	}
	return nil
}

// Missing returns name@version for each dependency not installed under dir
// at exactly the declared version, sorted by name.
func Missing(dir string, deps map[string]string) []string {
	names := make([]string, 0, len(deps))
	for n := range deps {
		names = append(names, n)
	}
	slices.Sort(names)

	var out []string
	for _, n := range names {
		if installedVersion(dir, n) != deps[n] {
			out = append(out, n+"@"+deps[n])
		}
	}
	return out
}

func installedVersion(dir, name string) string {
	data, err := os.ReadFile(filepath.Join(dir, "node_modules", filepath.FromSlash(name), "package.json"))
	if err != nil {
		return ""
	}
	var pkg packageJSON
	if err := json.Unmarshal(data, &pkg); err != nil {
		return ""
	}
	return pkg.Version
}

func writerOr(w io.Writer) io.Writer {
	if w == nil {
		return io.Discard
	}
	return w
}

func logger(l *log.Logger) *log.Logger {
	if l == nil {
		return log.New(io.Discard)
	}
	return l
}

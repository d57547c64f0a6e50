// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/invowk/weld/internal/config"
	"github.com/invowk/weld/internal/dag"
	"github.com/invowk/weld/internal/graph"
	"github.com/invowk/weld/internal/issue"
	"github.com/invowk/weld/internal/linker"
	"github.com/invowk/weld/internal/manifest"
	"github.com/invowk/weld/internal/npm"
	"github.com/invowk/weld/pkg/moddesc"
)

// issueFor maps a build failure to its catalog entry.
func issueFor(err error) (issue.Id, bool) {
	var (
		cycle    *dag.CycleError
		conflict *graph.ExtensionConflictError
		analysis *linker.AnalysisError
		install  *npm.InstallError
	)
	switch {
	case errors.Is(err, moddesc.ErrModuleNotFound):
		return issue.ModuleNotFoundId, true
	case errors.As(err, &cycle):
		return issue.DependencyCycleId, true
	case errors.As(err, &conflict):
		return issue.ExtensionConflictId, true
	case errors.As(err, &analysis):
		return issue.LinkErrorId, true
	case errors.Is(err, manifest.ErrUnknownResourceType):
		return issue.UnknownResourceTypeId, true
	case errors.As(err, &install):
		return issue.NpmInstallFailedId, true
	}
	return 0, false
}

// glamourStyle picks the glamour style for a color scheme.
func glamourStyle(cfg *config.Config) string {
	if cfg == nil || cfg.UI.ColorScheme == "" {
		return string(config.ColorSchemeAuto)
	}
	return string(cfg.UI.ColorScheme)
}

// reportFailures lists errs on stderr, then renders each distinct catalog
// entry they map to. A stale bundle adds the stale-bundle entry.
func (a *App) reportFailures(s *session, errs []error, stale bool) {
	var ids []issue.Id
	for _, err := range errs {
		fmt.Fprintf(a.stderr, "%s %s\n", ErrorStyle.Render(errorIcon), err)
		if id, ok := issueFor(err); ok && !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	if stale {
		ids = append(ids, issue.StaleBundleId)
	}
	if !a.isVerbose(s) {
		return
	}
	for _, id := range ids {
		a.renderIssue(s.cfg, id)
	}
}

func (a *App) renderIssue(cfg *config.Config, id issue.Id) {
	rendered, err := issue.Get(id).Render(glamourStyle(cfg))
	if err != nil {
		slog.Warn("failed to render issue catalog entry", "issueID", id, "error", err)
		return
	}
	fmt.Fprint(a.stderr, rendered)
}

// reportConfigError prints an actionable configuration error.
func (a *App) reportConfigError(err error) {
	var ae *issue.ActionableError
	if errors.As(err, &ae) {
		fmt.Fprintln(a.stderr, ErrorStyle.Render(errorIcon)+" "+ae.Format(a.verbose))
	} else {
		fmt.Fprintln(a.stderr, ErrorStyle.Render(errorIcon)+" "+err.Error())
	}
	if a.verbose {
		a.renderIssue(nil, issue.ConfigLoadFailedId)
	}
}

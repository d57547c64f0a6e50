// SPDX-License-Identifier: MPL-2.0

package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// AppFile is the bundle's load list and client manifest.
	AppFile = "app.json"
	// DependenciesFile lists the sources a watcher should observe.
	DependenciesFile = "dependencies.json"
	// StaleFile marks a bundle written by a failed build.
	StaleFile = "STALE"
	// HeadFile and BodyFile hold the collected HTML fragments.
	HeadFile = "head.html"
	BodyFile = "body.html"
)

type (
	// Dependencies is the watch metadata for a bundle.
	Dependencies struct {
		Core       []string            `json:"core" toml:"core"`
		App        []string            `json:"app" toml:"app"`
		Packages   map[string][]string `json:"packages" toml:"packages"`
		Extensions []string            `json:"extensions" toml:"extensions"`
		Exclude    []string            `json:"exclude" toml:"exclude"`
	}

	// Metadata is the non-resource part of a bundle.
	Metadata struct {
		Dependencies Dependencies
		Release      string
		// Errors marks the bundle stale when non-empty.
		Errors []string
	}

	appJSON struct {
		Load     []string `json:"load"`
		Manifest []Entry  `json:"manifest"`
		Release  string   `json:"release,omitempty"`
		Stale    bool     `json:"stale,omitempty"`
	}
)

// Write finalizes the assembler and writes the bundle to dir. The bundle is
// built next to dir under ".build.<name>" and renamed into place, so dir is
// either the previous bundle or the complete new one.
func (a *Assembler) Write(dir string, meta Metadata) error {
	if err := a.Finalize(); err != nil {
		return err
	}

	dir = filepath.Clean(dir)
	buildPath := filepath.Join(filepath.Dir(dir), ".build."+filepath.Base(dir))
	if err := os.RemoveAll(buildPath); err != nil {
		return fmt.Errorf("clear %s: %w", buildPath, err)
	}
	if err := os.MkdirAll(buildPath, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", buildPath, err)
	}

	if err := a.writeAll(buildPath, meta); err != nil {
		_ = os.RemoveAll(buildPath) // best-effort cleanup
		return err
	}

	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove previous bundle %s: %w", dir, err)
	}
	if err := os.Rename(buildPath, dir); err != nil {
		return fmt.Errorf("move bundle into place: %w", err)
	}
	return nil
}

func (a *Assembler) writeAll(root string, meta Metadata) error {
	tables := []struct {
		dir   string
		table *fileTable
	}{
		{StaticDir, &a.client},
		{CacheableDir, &a.clientCacheable},
		{ServerDir, &a.server},
	}
	for _, tt := range tables {
		for _, p := range tt.table.order {
			if err := writeUnder(filepath.Join(root, tt.dir), p, tt.table.data[p]); err != nil {
				return err
			}
		}
	}

	if err := writeFile(filepath.Join(root, HeadFile), []byte(a.Head())); err != nil {
		return err
	}
	if err := writeFile(filepath.Join(root, BodyFile), []byte(a.Body())); err != nil {
		return err
	}

	if err := writeJSON(filepath.Join(root, AppFile), appJSON{
		Load:     a.load,
		Manifest: a.manifest,
		Release:  meta.Release,
		Stale:    len(meta.Errors) > 0,
	}); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(root, DependenciesFile), meta.Dependencies.Normalize()); err != nil {
		return err
	}

	if len(meta.Errors) > 0 {
		if err := writeFile(filepath.Join(root, StaleFile), []byte(strings.Join(meta.Errors, "\n")+"\n")); err != nil {
			return err
		}
	}
	return nil
}

// Normalize replaces nil fields with empty values so they encode as [] and {}.
func (d Dependencies) Normalize() Dependencies {
	if d.Core == nil {
		d.Core = []string{}
	}
	if d.App == nil {
		d.App = []string{}
	}
	if d.Packages == nil {
		d.Packages = map[string][]string{}
	}
	if d.Extensions == nil {
		d.Extensions = []string{}
	}
	if d.Exclude == nil {
		d.Exclude = []string{}
	}
	return d
}

// writeUnder writes data at base/servePath, refusing paths that leave base.
func writeUnder(base, servePath string, data []byte) error {
	rel := filepath.FromSlash(strings.TrimPrefix(servePath, "/"))
	target := filepath.Join(base, rel)
	if r, err := filepath.Rel(base, target); err != nil || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return fmt.Errorf("serve path %q escapes the bundle", servePath)
	}
	return writeFile(target, data)
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	return writeFile(path, append(data, '\n'))
}

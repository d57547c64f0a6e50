// SPDX-License-Identifier: MPL-2.0

// Package resolver locates package directories by name.
package resolver

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"golang.org/x/mod/semver"

	"github.com/invowk/weld/pkg/cueutil"
	"github.com/invowk/weld/pkg/moddesc"
)

// Source is the kind of location a package was found in.
const (
	SourceApp Source = iota
	SourcePackageDir
	SourceRegistry
)

// ReleasesDir is the registry subdirectory holding release pin files.
const ReleasesDir = "releases"

var (
	//go:embed release_schema.cue
	releaseSchema []byte

	// ErrReleaseNotFound is returned when a release pin file is missing.
	ErrReleaseNotFound = errors.New("release not found")
)

type (
	// Source is where a package was found.
	Source int

	// Location is a resolved package directory.
	Location struct {
		Dir    string
		Source Source
		// Version is set for registry packages.
		Version string
	}

	// Options configures a Resolver.
	Options struct {
		// AppDir adds <AppDir>/packages as the first search location.
		AppDir string
		// PackageDirs are searched in order after the app.
		PackageDirs []string
		RegistryDir string
		// Release pins registry versions through
		// <RegistryDir>/releases/<Release>.cue.
		Release string
		Logger  *log.Logger
	}

	// Resolver finds packages in the app, the configured package
	// directories, and the registry, in that order.
	Resolver struct {
		opts   Options
		pins   map[string]string
		logger *log.Logger
	}

	// NotFoundError lists the locations searched for a missing package.
	NotFoundError struct {
		Name     string
		Searched []string
	}

	releaseFile struct {
		Packages map[string]string `json:"packages"`
	}
)

// String returns a human-readable source name.
func (s Source) String() string {
	switch s {
	case SourceApp:
		return "app packages"
	case SourcePackageDir:
		return "package directory"
	case SourceRegistry:
		return "registry"
	default:
		return "unknown"
	}
}

func (e *NotFoundError) Error() string {
	if len(e.Searched) == 0 {
		return fmt.Sprintf("package %q not found", e.Name)
	}
	return fmt.Sprintf("package %q not found (searched %s)", e.Name, strings.Join(e.Searched, ", "))
}

func (e *NotFoundError) Unwrap() error { return moddesc.ErrModuleNotFound }

// SplitPackageDirs splits a list in the platform's path-list syntax, as
// used by WELD_PACKAGE_DIRS, dropping empty entries.
func SplitPackageDirs(list string) []string {
	var out []string
	for _, d := range filepath.SplitList(list) {
		if d = strings.TrimSpace(d); d != "" {
			out = append(out, d)
		}
	}
	return out
}

// New returns a Resolver. A configured release must have a pin file.
func New(opts Options) (*Resolver, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	r := &Resolver{opts: opts, logger: logger}
	if opts.Release != "" && opts.RegistryDir != "" {
		pins, err := LoadRelease(opts.RegistryDir, opts.Release)
		if err != nil {
			return nil, err
		}
		r.pins = pins
	}
	return r, nil
}

// LoadRelease reads the version pins of release from the registry.
func LoadRelease(registryDir, release string) (map[string]string, error) {
	if strings.ContainsAny(release, `/\`) || release == ".." {
		return nil, fmt.Errorf("invalid release name %q", release)
	}
	file := filepath.Join(registryDir, ReleasesDir, release+".cue")
	data, err := os.ReadFile(file)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s (%s)", ErrReleaseNotFound, release, file)
		}
		return nil, fmt.Errorf("read release %s: %w", file, err)
	}
	res, err := cueutil.Decode[releaseFile](releaseSchema, data, "#Release", cueutil.WithFilename(file))
	if err != nil {
		return nil, err
	}
	return res.Value.Packages, nil
}

// Find locates name and loads its descriptor.
func (r *Resolver) Find(name string) (*moddesc.Descriptor, error) {
	loc, err := r.Locate(name)
	if err != nil {
		return nil, err
	}
	r.logger.Debug("resolved package", "module", name, "source", loc.Source, "dir", loc.Dir)
	return moddesc.Load(name, loc.Dir)
}

// Locate returns the first location holding a weldmod.cue for name.
func (r *Resolver) Locate(name string) (Location, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return Location{}, &NotFoundError{Name: name}
	}

	var searched []string
	check := func(dir string, src Source, version string) (Location, bool) {
		searched = append(searched, dir)
		if hasDescriptor(dir) {
			return Location{Dir: dir, Source: src, Version: version}, true
		}
		return Location{}, false
	}

	if r.opts.AppDir != "" {
		if loc, ok := check(filepath.Join(r.opts.AppDir, "packages", name), SourceApp, ""); ok {
			return loc, nil
		}
	}
	for _, d := range r.opts.PackageDirs {
		if loc, ok := check(filepath.Join(d, name), SourcePackageDir, ""); ok {
			return loc, nil
		}
	}
	if r.opts.RegistryDir != "" {
		version := r.pins[name]
		if version == "" {
			version = newestVersion(filepath.Join(r.opts.RegistryDir, name))
		}
		if version != "" {
			if loc, ok := check(filepath.Join(r.opts.RegistryDir, name, version), SourceRegistry, version); ok {
				return loc, nil
			}
		} else {
			searched = append(searched, filepath.Join(r.opts.RegistryDir, name))
		}
	}
	return Location{}, &NotFoundError{Name: name, Searched: searched}
}

// newestVersion returns the highest semantic version directory under dir.
// Entries that are not versions are ignored.
func newestVersion(dir string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	best := ""
	for _, e := range entries {
		if !e.IsDir() || !semver.IsValid("v"+e.Name()) {
			continue
		}
		if best == "" || semver.Compare("v"+e.Name(), "v"+best) > 0 {
			best = e.Name()
		}
	}
	return best
}

func hasDescriptor(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, moddesc.FileName))
	return err == nil && info.Mode().IsRegular()
}

// SPDX-License-Identifier: MPL-2.0

package moddesc

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/invowk/weld/internal/env"
	"github.com/invowk/weld/pkg/cueutil"
)

const (
	// RoleUse is the role a package plays when another package uses it.
	RoleUse Role = "use"
	// RoleTest is the role that bundles a package's own tests.
	RoleTest Role = "test"

	// FileName is the descriptor file inside a package directory.
	FileName = "weldmod.cue"

	// MaxPathLength bounds source paths declared in a descriptor.
	MaxPathLength = 4096
)

var (
	//go:embed weldmod_schema.cue
	weldmodSchema []byte

	// ErrInvalidRole is returned for a role other than use or test.
	ErrInvalidRole = errors.New("invalid role")

	// ErrDescriptorNotFound is returned when a directory has no weldmod.cue.
	ErrDescriptorNotFound = errors.New("weldmod.cue not found")

	// ErrModuleNotFound is returned when no search location holds a package
	// with the requested name.
	ErrModuleNotFound = errors.New("package not found")

	// ErrInexactVersion is returned for npm dependency versions that are
	// ranges rather than exact versions.
	ErrInexactVersion = errors.New("npm dependency version must be exact")

	nextID atomic.Uint64
)

type (
	// Role selects which face of a module is being activated.
	Role string

	// EnvLists maps each environment to an ordered list of names or paths.
	EnvLists map[env.Env][]string

	// Descriptor is the declared capability of one module. A Descriptor is
	// never mutated after it is built.
	Descriptor struct {
		// ID is unique within the process; reloading a module yields a new ID.
		ID uint64
		// Name is empty for the application.
		Name       string
		SourceRoot string
		ServeRoot  string
		Summary    string
		Internal   bool
		// Extensions maps a file extension (no dot) to a handler name.
		Extensions      map[string]string
		Uses            map[Role]EnvLists
		Unordered       map[string]bool
		Sources         map[Role]EnvLists
		Exports         map[Role]EnvLists
		NpmDependencies map[string]string
	}

	// InvalidRoleError carries the rejected role.
	InvalidRoleError struct {
		Value Role
	}

	// InvalidSourcePathError describes a source path that escapes its root.
	InvalidSourcePathError struct {
		File   string
		Field  string
		Path   string
		Reason string
	}

	weldmodFile struct {
		Name            string            `json:"name"`
		Summary         string            `json:"summary,omitempty"`
		Internal        bool              `json:"internal,omitempty"`
		Extensions      map[string]string `json:"extensions,omitempty"`
		Use             *roleFile         `json:"use,omitempty"`
		Test            *roleFile         `json:"test,omitempty"`
		Unordered       []string          `json:"unordered,omitempty"`
		NpmDependencies map[string]string `json:"npm_dependencies,omitempty"`
	}

	roleFile struct {
		Uses    perEnvFile `json:"uses,omitempty"`
		Sources perEnvFile `json:"sources,omitempty"`
		Exports perEnvFile `json:"exports,omitempty"`
	}

	perEnvFile struct {
		Client []string `json:"client,omitempty"`
		Server []string `json:"server,omitempty"`
	}
)

// Roles returns both roles, use first.
func Roles() []Role {
	return []Role{RoleUse, RoleTest}
}

// ParseRole converts a string to a Role.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if err := r.Validate(); err != nil {
		return "", err
	}
	return r, nil
}

// Validate returns an error when r is not a known role.
func (r Role) Validate() error {
	if r == RoleUse || r == RoleTest {
		return nil
	}
	return &InvalidRoleError{Value: r}
}

// String returns the role name.
func (r Role) String() string { return string(r) }

// Error implements the error interface.
func (e *InvalidRoleError) Error() string {
	return fmt.Sprintf("invalid role %q (valid: use, test)", e.Value)
}

// Unwrap returns ErrInvalidRole for errors.Is compatibility.
func (e *InvalidRoleError) Unwrap() error { return ErrInvalidRole }

// Error implements the error interface.
func (e *InvalidSourcePathError) Error() string {
	return fmt.Sprintf("%s: %s: %q: %s", e.File, e.Field, e.Path, e.Reason)
}

// NewID returns a fresh process-unique descriptor identity.
func NewID() uint64 {
	return nextID.Add(1)
}

// IsApp reports whether d is the application descriptor.
func (d *Descriptor) IsApp() bool {
	return d.Name == ""
}

// DisplayName is the package name, or "the app" for the application.
func (d *Descriptor) DisplayName() string {
	if d.IsApp() {
		return "the app"
	}
	return d.Name
}

// HasRole reports whether d declares anything for role. The use role is
// always present; the test role only when the descriptor has a test block.
func (d *Descriptor) HasRole(role Role) bool {
	if role == RoleUse {
		return true
	}
	_, ok := d.Uses[role]
	return ok
}

// UsesFor returns the packages d uses in role for environment e.
func (d *Descriptor) UsesFor(role Role, e env.Env) []string {
	return d.Uses[role][e]
}

// SourcesFor returns the source paths d adds in role for environment e.
func (d *Descriptor) SourcesFor(role Role, e env.Env) []string {
	return d.Sources[role][e]
}

// ExportsFor returns the symbols d exports in role for environment e.
func (d *Descriptor) ExportsFor(role Role, e env.Env) []string {
	return d.Exports[role][e]
}

// ExtensionNames returns the registered extensions, sorted.
func (d *Descriptor) ExtensionNames() []string {
	out := make([]string, 0, len(d.Extensions))
	for ext := range d.Extensions {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// Load reads dir/weldmod.cue and checks that it declares the expected name.
// An empty name skips the check.
func Load(name, dir string) (*Descriptor, error) {
	file := filepath.Join(dir, FileName)
	data, err := os.ReadFile(file)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", dir, ErrDescriptorNotFound)
		}
		return nil, fmt.Errorf("read %s: %w", file, err)
	}

	d, err := Parse(data, file)
	if err != nil {
		return nil, err
	}
	if name != "" && d.Name != name {
		return nil, fmt.Errorf("%s: declares package %q but was found as %q", file, d.Name, name)
	}

	d.SourceRoot = dir
	return d, nil
}

// Parse decodes descriptor bytes. SourceRoot is left empty; Load fills it.
func Parse(data []byte, file string) (*Descriptor, error) {
	res, err := cueutil.Decode[weldmodFile](weldmodSchema, data, "#Weldmod", cueutil.WithFilename(file))
	if err != nil {
		return nil, err
	}
	raw := res.Value

	if err := ensureExactVersions(raw.NpmDependencies, file); err != nil {
		return nil, err
	}

	d := &Descriptor{
		ID:              NewID(),
		Name:            raw.Name,
		ServeRoot:       "/packages/" + raw.Name,
		Summary:         raw.Summary,
		Internal:        raw.Internal,
		Extensions:      map[string]string{},
		Uses:            map[Role]EnvLists{},
		Unordered:       map[string]bool{},
		Sources:         map[Role]EnvLists{},
		Exports:         map[Role]EnvLists{},
		NpmDependencies: map[string]string{},
	}
	for ext, h := range raw.Extensions {
		d.Extensions[ext] = h
	}
	for _, n := range raw.Unordered {
		d.Unordered[n] = true
	}
	for n, v := range raw.NpmDependencies {
		d.NpmDependencies[n] = v
	}

	for _, rr := range []struct {
		role Role
		rf   *roleFile
	}{{RoleUse, raw.Use}, {RoleTest, raw.Test}} {
		role, rf := rr.role, rr.rf
		if rf == nil {
			if role == RoleUse {
				d.Uses[role], d.Sources[role], d.Exports[role] = EnvLists{}, EnvLists{}, EnvLists{}
			}
			continue
		}
		for _, e := range env.All() {
			if err := validateSources(rf.Sources.get(e), file, fmt.Sprintf("%s.sources.%s", role, e)); err != nil {
				return nil, err
			}
		}
		d.Uses[role] = rf.Uses.lists()
		d.Sources[role] = rf.Sources.lists()
		d.Exports[role] = rf.Exports.lists()
	}

	return d, nil
}

func (p perEnvFile) get(e env.Env) []string {
	if e == env.Client {
		return p.Client
	}
	return p.Server
}

func (p perEnvFile) lists() EnvLists {
	return EnvLists{
		env.Client: slices.Clone(p.Client),
		env.Server: slices.Clone(p.Server),
	}
}

// validateSources keeps every declared source inside the package root.
func validateSources(paths []string, file, field string) error {
	for i, p := range paths {
		f := fmt.Sprintf("%s[%d]", field, i)
		switch {
		case p == "":
			return &InvalidSourcePathError{File: file, Field: f, Path: p, Reason: "empty path"}
		case len(p) > MaxPathLength:
			return &InvalidSourcePathError{File: file, Field: f, Path: p[:32] + "...", Reason: "path too long"}
		case strings.ContainsRune(p, '\x00'):
			return &InvalidSourcePathError{File: file, Field: f, Path: p, Reason: "contains null byte"}
		case path.IsAbs(p) || filepath.IsAbs(p):
			return &InvalidSourcePathError{File: file, Field: f, Path: p, Reason: "absolute paths are not allowed"}
		}
		clean := path.Clean(filepath.ToSlash(p))
		if clean == ".." || strings.HasPrefix(clean, "../") {
			return &InvalidSourcePathError{File: file, Field: f, Path: p, Reason: "path escapes the package directory"}
		}
	}
	return nil
}

// ensureExactVersions rejects semver ranges. The schema pattern already
// does this; the Go check gives the user a message naming the dependency.
func ensureExactVersions(deps map[string]string, file string) error {
	for name, v := range deps {
		if v == "" || strings.ContainsAny(v[:1], "^~<>=*xX") || strings.Contains(v, " ") {
			return fmt.Errorf("%s: npm_dependencies.%s: %q: %w", file, name, v, ErrInexactVersion)
		}
	}
	return nil
}

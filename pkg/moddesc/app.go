// SPDX-License-Identifier: MPL-2.0

package moddesc

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/invowk/weld/internal/env"
)

const (
	// AppMetaDir holds per-app build metadata.
	AppMetaDir = ".weld"
	// PackagesFile lists the packages the app uses, one per line.
	PackagesFile = "packages"
	// ReleaseFile pins the app to a registry release.
	ReleaseFile = "release"

	packagesDir = "packages"
	testsDir    = "tests"
)

// DefaultIgnore matches file and directory names skipped by the app scan:
// editor backups, OS metadata and VCS directories.
var DefaultIgnore = []*regexp.Regexp{
	regexp.MustCompile(`~$`),
	regexp.MustCompile(`^\.#`),
	regexp.MustCompile(`^#.*#$`),
	regexp.MustCompile(`^\.DS_Store$`),
	regexp.MustCompile(`^ehthumbs\.db$`),
	regexp.MustCompile(`^Icon.$`),
	regexp.MustCompile(`^Thumbs\.db$`),
	regexp.MustCompile(`^\.weld$`),
	regexp.MustCompile(`^\.git$`),
}

// AppOptions configures ForApp.
type AppOptions struct {
	// Packages are used by the app in both roles and environments.
	Packages []string
	// Extensions (no dot) select which files the scan picks up.
	Extensions []string
	// Ignore replaces DefaultIgnore when non-nil.
	Ignore []*regexp.Regexp
}

// ForApp builds the anonymous descriptor for the application in appDir.
func ForApp(appDir string, opts AppOptions) (*Descriptor, error) {
	ignore := opts.Ignore
	if ignore == nil {
		ignore = DefaultIgnore
	}

	files, err := scanTree(appDir, opts.Extensions, ignore)
	if err != nil {
		return nil, err
	}

	d := &Descriptor{
		ID:              NewID(),
		SourceRoot:      appDir,
		ServeRoot:       "/",
		Extensions:      map[string]string{},
		Uses:            map[Role]EnvLists{},
		Unordered:       map[string]bool{},
		Sources:         map[Role]EnvLists{},
		Exports:         map[Role]EnvLists{},
		NpmDependencies: map[string]string{},
	}
	for _, role := range Roles() {
		d.Uses[role] = EnvLists{}
		d.Sources[role] = EnvLists{}
		d.Exports[role] = EnvLists{}
		for _, e := range env.All() {
			d.Uses[role][e] = slices.Clone(opts.Packages)
			d.Sources[role][e] = selectSources(files, role, e)
		}
	}
	return d, nil
}

// ReadPackageList returns the names listed in appDir/.weld/packages.
// A missing file yields an empty list.
func ReadPackageList(appDir string) ([]string, error) {
	data, err := os.ReadFile(filepath.Join(appDir, AppMetaDir, PackagesFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read package list: %w", err)
	}

	var names []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := sc.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line != "" && !slices.Contains(names, line) {
			names = append(names, line)
		}
	}
	return names, sc.Err()
}

// ReadRelease returns the release pinned in appDir/.weld/release, or "".
func ReadRelease(appDir string) (string, error) {
	data, err := os.ReadFile(filepath.Join(appDir, AppMetaDir, ReleaseFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("read release: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// scanTree lists every non-ignored file under root whose extension is in
// extensions, as slash-separated paths relative to root, in load order.
func scanTree(root string, extensions []string, ignore []*regexp.Regexp) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if p == root {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if isIgnored(d.Name(), ignore) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if rel == packagesDir {
				return filepath.SkipDir
			}
			return nil
		}
		if hasExtension(d.Name(), extensions) {
			files = append(files, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", root, err)
	}

	SortLoadOrder(files)
	return files, nil
}

// selectSources keeps the files that belong to role and environment e. A
// client build skips anything under a server/ directory and vice versa; only
// the test role sees files under tests/.
func selectSources(files []string, role Role, e env.Env) []string {
	except := "server"
	if e == env.Server {
		except = "client"
	}

	out := make([]string, 0, len(files))
	for _, f := range files {
		if hasSegment(f, except) {
			continue
		}
		if hasSegment(f, testsDir) != (role == RoleTest) {
			continue
		}
		out = append(out, f)
	}
	return out
}

// SortLoadOrder sorts slash-separated paths so deeper files come first and
// files at the same depth are alphabetical, then hoists .html files to the
// front so templates exist before code that refers to them.
func SortLoadOrder(files []string) {
	slices.SortFunc(files, func(a, b string) int {
		da, db := strings.Count(a, "/"), strings.Count(b, "/")
		if da != db {
			return db - da
		}
		return strings.Compare(a, b)
	})
	slices.SortStableFunc(files, func(a, b string) int {
		ha, hb := strings.HasSuffix(a, ".html"), strings.HasSuffix(b, ".html")
		switch {
		case ha && !hb:
			return -1
		case hb && !ha:
			return 1
		default:
			return 0
		}
	})
}

func hasSegment(p, seg string) bool {
	return strings.Contains("/"+p+"/", "/"+seg+"/")
}

func hasExtension(name string, extensions []string) bool {
	ext := strings.TrimPrefix(filepath.Ext(name), ".")
	return ext != "" && slices.Contains(extensions, ext)
}

func isIgnored(name string, ignore []*regexp.Regexp) bool {
	for _, re := range ignore {
		if re.MatchString(name) {
			return true
		}
	}
	return false
}

// SPDX-License-Identifier: MPL-2.0

// Package watch rebuilds on change. It watches an application tree for
// files selected by glob patterns plus an explicit set of package files
// elsewhere on disk, and fires a debounced callback with what changed.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
)

// defaultDebounce coalesces bursts such as an editor's write-then-rename.
const defaultDebounce = 300 * time.Millisecond

// ErrAlreadyRunning is returned by a second call to Run.
var ErrAlreadyRunning = errors.New("watch: Run called more than once")

// defaultIgnores are never watched.
var defaultIgnores = []string{
	"**/.git/**",
	"**/node_modules/**",
	"**/.npm/**",
	"**/*.swp",
	"**/*~",
	"**/.DS_Store",
}

type (
	// Config holds the parameters for a Watcher.
	Config struct {
		// BaseDir is the application directory, watched recursively.
		BaseDir string

		// Patterns are doublestar globs, relative to BaseDir, selecting the
		// files that trigger a rebuild. Empty matches every file.
		Patterns []string

		// Ignore are extra doublestar globs, relative to BaseDir, that never
		// trigger. They are added to the defaults.
		Ignore []string

		// ExcludeNames are matched against a changed file's base name.
		ExcludeNames []*regexp.Regexp

		// Files also trigger, wherever they live and regardless of Patterns
		// and ExcludeNames. Package sources and app metadata go here.
		Files []string

		Debounce time.Duration

		// OnChange receives the changed paths, sorted: relative for files
		// under BaseDir, absolute otherwise.
		OnChange func(ctx context.Context, changed []string) error

		Stderr io.Writer
	}

	// Watcher monitors the application and its package files.
	Watcher struct {
		cfg      Config
		fsw      *fsnotify.Watcher
		ignores  []string
		stderr   io.Writer
		debounce time.Duration
		baseDir  string
		started  atomic.Bool

		filesMu  sync.Mutex
		files    map[string]bool
		fileDirs map[string]bool
	}
)

// New validates cfg and registers BaseDir's directories and the parent
// directory of every file in cfg.Files.
func New(cfg Config) (*Watcher, error) {
	if cfg.BaseDir == "" {
		return nil, errors.New("watch: base directory is required")
	}
	absBase, err := filepath.Abs(cfg.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("watch: resolve base directory: %w", err)
	}
	for _, set := range [][]string{cfg.Patterns, cfg.Ignore} {
		for _, pat := range set {
			if !doublestar.ValidatePattern(pat) {
				return nil, fmt.Errorf("watch: invalid pattern %q", pat)
			}
		}
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: create fsnotify watcher: %w", err)
	}

	w := &Watcher{
		cfg:      cfg,
		fsw:      fsw,
		ignores:  append(slices.Clone(defaultIgnores), cfg.Ignore...),
		stderr:   cfg.Stderr,
		debounce: cfg.Debounce,
		baseDir:  absBase,
		files:    map[string]bool{},
		fileDirs: map[string]bool{},
	}
	if w.stderr == nil {
		w.stderr = os.Stderr
	}
	if w.debounce <= 0 {
		w.debounce = defaultDebounce
	}

	if err := w.addTree(); err != nil {
		fsw.Close() //nolint:errcheck // best-effort cleanup
		return nil, err
	}
	w.SetFiles(cfg.Files)
	return w, nil
}

// SetFiles replaces the watched file set. A rebuild calls it with the new
// dependency list so added packages are picked up.
func (w *Watcher) SetFiles(files []string) {
	w.filesMu.Lock()
	defer w.filesMu.Unlock()

	clear(w.files)
	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			continue
		}
		w.files[abs] = true
		dir := filepath.Dir(abs)
		if w.fileDirs[dir] {
			continue
		}
		if err := w.fsw.Add(dir); err != nil {
			fmt.Fprintf(w.stderr, "watch: add %q: %v\n", dir, err)
			continue
		}
		w.fileDirs[dir] = true
	}
}

// Run processes events until ctx is done. The callback never runs
// concurrently with itself; events arriving while it runs are kept for the
// next round.
func (w *Watcher) Run(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	var (
		mu      sync.Mutex
		pending = map[string]struct{}{}
		timer   *time.Timer
		busy    atomic.Bool
	)

	var fire func()
	fire = func() {
		if ctx.Err() != nil {
			return
		}
		if !busy.CompareAndSwap(false, true) {
			mu.Lock()
			timer.Reset(w.debounce)
			mu.Unlock()
			return
		}
		defer busy.Store(false)

		mu.Lock()
		changed := slices.Sorted(maps.Keys(pending))
		clear(pending)
		mu.Unlock()
		if len(changed) == 0 || w.cfg.OnChange == nil {
			return
		}
		if err := w.cfg.OnChange(ctx, changed); err != nil {
			fmt.Fprintf(w.stderr, "watch: rebuild failed: %v\n", err)
		}
	}

	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
		if err := w.fsw.Close(); err != nil {
			fmt.Fprintf(w.stderr, "watch: close fsnotify: %v\n", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case evt, ok := <-w.fsw.Events:
			if !ok {
				return errors.New("watch: event channel closed")
			}
			if evt.Has(fsnotify.Create) {
				w.maybeAddDir(evt.Name)
			}
			key, ok := w.relevant(evt.Name)
			if !ok {
				continue
			}
			mu.Lock()
			pending[key] = struct{}{}
			if timer == nil {
				timer = time.AfterFunc(w.debounce, fire)
			} else {
				timer.Reset(w.debounce)
			}
			mu.Unlock()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return errors.New("watch: error channel closed")
			}
			if isFatalFsnotifyError(err) {
				return fmt.Errorf("watch: fatal fsnotify error: %w", err)
			}
			fmt.Fprintf(w.stderr, "watch: fsnotify error: %v\n", err)
		}
	}
}

// relevant reports whether a change to path should trigger, and the key it
// is reported under.
func (w *Watcher) relevant(path string) (string, bool) {
	w.filesMu.Lock()
	isFile := w.files[path]
	w.filesMu.Unlock()

	rel, err := filepath.Rel(w.baseDir, path)
	if err != nil || !w.underBase(path) {
		if isFile {
			return path, true
		}
		return "", false
	}
	rel = filepath.ToSlash(rel)
	if isFile {
		return rel, true
	}
	if w.excludedName(filepath.Base(path)) || w.isIgnored(rel) || !w.matchesPatterns(rel) {
		return "", false
	}
	return rel, true
}

func (w *Watcher) underBase(path string) bool {
	rel, err := filepath.Rel(w.baseDir, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// addTree registers every non-ignored directory under BaseDir. Unreadable
// directories are reported and skipped.
func (w *Watcher) addTree() error {
	err := filepath.WalkDir(w.baseDir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			fmt.Fprintf(w.stderr, "watch: skipping %q: %v\n", path, walkErr)
			return nil //nolint:nilerr // skip inaccessible paths
		}
		if !d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(w.baseDir, path)
		if err != nil {
			return nil //nolint:nilerr // cannot happen under WalkDir
		}
		if rel != "." && (w.isIgnored(rel) || w.isIgnored(rel+"/") || w.excludedName(d.Name())) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("watch: add directory %q: %w", path, err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("watch: walk %s: %w", w.baseDir, err)
	}
	return nil
}

// maybeAddDir extends the recursive watch to directories created under
// BaseDir after startup.
func (w *Watcher) maybeAddDir(path string) {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() || !w.underBase(path) {
		return
	}
	rel, err := filepath.Rel(w.baseDir, path)
	if err != nil || w.isIgnored(rel) || w.isIgnored(rel+"/") || w.excludedName(info.Name()) {
		return
	}
	if err := w.fsw.Add(path); err != nil {
		fmt.Fprintf(w.stderr, "watch: add new directory %q: %v\n", path, err)
	}
}

func (w *Watcher) isIgnored(rel string) bool {
	normalized := filepath.ToSlash(rel)
	for _, pat := range w.ignores {
		if ok, _ := doublestar.Match(pat, normalized); ok {
			return true
		}
	}
	return false
}

func (w *Watcher) matchesPatterns(rel string) bool {
	if len(w.cfg.Patterns) == 0 {
		return true
	}
	normalized := filepath.ToSlash(rel)
	for _, pat := range w.cfg.Patterns {
		if ok, _ := doublestar.Match(pat, normalized); ok {
			return true
		}
	}
	return false
}

func (w *Watcher) excludedName(name string) bool {
	for _, re := range w.cfg.ExcludeNames {
		if re.MatchString(name) {
			return true
		}
	}
	return false
}

// DefaultIgnores returns a copy of the built-in ignore patterns.
func DefaultIgnores() []string {
	return slices.Clone(defaultIgnores)
}

// PatternsForExtensions turns dotted extensions into recursive globs.
func PatternsForExtensions(exts []string) []string {
	out := make([]string, 0, len(exts))
	for _, ext := range exts {
		out = append(out, "**/*"+ext)
	}
	return out
}

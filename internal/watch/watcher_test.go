// SPDX-License-Identifier: MPL-2.0

package watch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/invowk/weld/internal/testutil"
)

func TestIsFatalFsnotifyError(t *testing.T) {
	t.Parallel()

	for _, errno := range fatalErrnos {
		if !isFatalFsnotifyError(fmt.Errorf("fsnotify: %w", errno)) {
			t.Errorf("wrapped %v should be fatal", errno)
		}
	}
	if isFatalFsnotifyError(errors.New("transient")) {
		t.Error("plain error should not be fatal")
	}
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	if _, err := New(Config{}); err == nil {
		t.Error("expected error for missing base directory")
	}
	if _, err := New(Config{BaseDir: t.TempDir(), Patterns: []string{"[unclosed"}}); err == nil {
		t.Error("expected error for invalid pattern")
	}
}

func TestRelevant(t *testing.T) {
	t.Parallel()

	app := t.TempDir()
	pkgDir := t.TempDir()
	pkgFile := filepath.Join(pkgDir, "a.js")
	testutil.MustWriteFile(t, pkgFile, "")
	testutil.MustMkdirAll(t, filepath.Join(app, "client"))
	meta := filepath.Join(app, ".weld", "packages")
	testutil.MustWriteFile(t, meta, "")

	w, err := New(Config{
		BaseDir:      app,
		Patterns:     PatternsForExtensions([]string{".js", ".css"}),
		Ignore:       []string{"build/**"},
		ExcludeNames: []*regexp.Regexp{regexp.MustCompile(`^\.#`), regexp.MustCompile(`^\.weld$`)},
		Files:        []string{pkgFile, meta},
		Stderr:       io.Discard,
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	t.Cleanup(func() { w.fsw.Close() }) //nolint:errcheck // test cleanup

	tests := []struct {
		path string
		key  string
		ok   bool
	}{
		{filepath.Join(app, "client", "main.js"), "client/main.js", true},
		{filepath.Join(app, "style.css"), "style.css", true},
		{filepath.Join(app, "notes.txt"), "", false},
		{filepath.Join(app, "build", "out.js"), "", false},
		{filepath.Join(app, "node_modules", "x", "i.js"), "", false},
		{filepath.Join(app, ".#main.js"), "", false},
		{pkgFile, pkgFile, true},
		{meta, ".weld/packages", true},
		{filepath.Join(app, ".weld", "release"), "", false},
		{filepath.Join(pkgDir, "other.js"), "", false},
	}
	for _, tt := range tests {
		key, ok := w.relevant(tt.path)
		if ok != tt.ok || key != tt.key {
			t.Errorf("relevant(%q) = (%q, %v), want (%q, %v)", tt.path, key, ok, tt.key, tt.ok)
		}
	}

	w.SetFiles(nil)
	if _, ok := w.relevant(pkgFile); ok {
		t.Error("file should stop triggering after SetFiles(nil)")
	}
}

func TestRunDebouncesChanges(t *testing.T) {
	t.Parallel()

	app := t.TempDir()
	var (
		mu    sync.Mutex
		calls [][]string
	)
	done := make(chan struct{}, 1)

	w, err := New(Config{
		BaseDir:  app,
		Patterns: []string{"**/*.js"},
		Debounce: 50 * time.Millisecond,
		Stderr:   io.Discard,
		OnChange: func(_ context.Context, changed []string) error {
			mu.Lock()
			calls = append(calls, changed)
			mu.Unlock()
			select {
			case done <- struct{}{}:
			default:
			}
			return nil
		},
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	ctx, cancel := context.WithCancel(t.Context())
	errc := make(chan error, 1)
	go func() { errc <- w.Run(ctx) }()

	// Give the event loop a moment to start before writing.
	time.Sleep(50 * time.Millisecond)
	for _, name := range []string{"a.js", "b.js", "ignored.txt"} {
		if err := os.WriteFile(filepath.Join(app, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	seen := func() []string {
		mu.Lock()
		defer mu.Unlock()
		var all []string
		for _, c := range calls {
			all = append(all, c...)
		}
		slices.Sort(all)
		return slices.Compact(all)
	}
	deadline := time.After(5 * time.Second)
	for !slices.Equal(seen(), []string{"a.js", "b.js"}) {
		select {
		case <-done:
		case <-deadline:
			t.Fatalf("changed = %v, want [a.js b.js]", seen())
		}
	}
	cancel()
	if err := <-errc; err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if err := w.Run(t.Context()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Run() = %v, want ErrAlreadyRunning", err)
	}
}

// SPDX-License-Identifier: MPL-2.0

package manifest

import (
	"context"
	"crypto/sha1" //nolint:gosec // content addressing, not security
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/invowk/weld/internal/env"
)

const (
	// StaticDir holds client files served without long-lived caching.
	StaticDir = "static"
	// CacheableDir holds client files whose URLs change with their content.
	CacheableDir = "static_cacheable"
	// ServerDir holds server files named in the load list.
	ServerDir = "app"
)

// ErrFinalized is returned when resources are added after Finalize.
var ErrFinalized = errors.New("assembler already finalized")

type (
	// Entry describes one client artifact in app.json.
	Entry struct {
		Path      string `json:"path"`
		Where     string `json:"where"`
		Type      Type   `json:"type"`
		Cacheable bool   `json:"cacheable"`
		URL       string `json:"url"`
		Size      int    `json:"size"`
		Hash      string `json:"hash"`
	}

	// Minifier compresses concatenated client code.
	Minifier interface {
		JS(ctx context.Context, code string) (string, error)
		CSS(ctx context.Context, code string) (string, error)
	}

	// Assembler collects resources in load order and lays them out as a
	// bundle. It is not safe for concurrent use.
	Assembler struct {
		client          fileTable
		clientCacheable fileTable
		server          fileTable

		js     map[env.Env][]string
		css    []string
		static map[env.Env][]string
		head   []string
		body   []string

		manifest  []Entry
		load      []string
		finalized bool
	}

	// fileTable is a serve path -> contents map that remembers insertion order.
	fileTable struct {
		order []string
		data  map[string][]byte
	}
)

// NewAssembler returns an empty Assembler.
func NewAssembler() *Assembler {
	return &Assembler{
		client:          newFileTable(),
		clientCacheable: newFileTable(),
		server:          newFileTable(),
		js:              map[env.Env][]string{},
		static:          map[env.Env][]string{},
		manifest:        []Entry{},
		load:            []string{},
	}
}

// Hash returns the lowercase hex SHA-1 of data.
func Hash(data []byte) string {
	sum := sha1.Sum(data) //nolint:gosec // content addressing
	return hex.EncodeToString(sum[:])
}

// AddResource files r under its environment. CSS outside the client is
// dropped without error.
func (a *Assembler) AddResource(r Resource) error {
	if a.finalized {
		return ErrFinalized
	}
	if err := r.Type.Validate(); err != nil {
		return err
	}
	if !r.Env.Valid() {
		return &ResourceError{Type: r.Type, Env: r.Env, ServePath: r.ServePath, Err: ErrWrongEnvironment}
	}

	switch r.Type {
	case TypeJS:
		if r.ServePath == "" {
			return &ResourceError{Type: r.Type, Env: r.Env, Err: ErrMissingServePath}
		}
		a.table(r.Env).put(r.ServePath, r.Data)
		a.js[r.Env] = append(a.js[r.Env], r.ServePath)

	case TypeCSS:
		if r.Env != env.Client {
			return nil
		}
		if r.ServePath == "" {
			return &ResourceError{Type: r.Type, Env: r.Env, Err: ErrMissingServePath}
		}
		a.client.put(r.ServePath, r.Data)
		a.css = append(a.css, r.ServePath)

	case TypeStatic:
		if r.ServePath == "" {
			return &ResourceError{Type: r.Type, Env: r.Env, Err: ErrMissingServePath}
		}
		a.table(r.Env).put(r.ServePath, r.Data)
		a.static[r.Env] = append(a.static[r.Env], r.ServePath)

	case TypeHead, TypeBody:
		if r.Env != env.Client {
			return &ResourceError{Type: r.Type, Env: r.Env, Err: ErrWrongEnvironment}
		}
		if r.Type == TypeHead {
			a.head = append(a.head, string(r.Data))
		} else {
			a.body = append(a.body, string(r.Data))
		}
	}
	return nil
}

// Minify replaces the client JS and CSS with one content-addressed file
// each. Server code is left alone.
func (a *Assembler) Minify(ctx context.Context, m Minifier) error {
	if a.finalized {
		return ErrFinalized
	}

	if paths := a.js[env.Client]; len(paths) > 0 {
		minified, err := m.JS(ctx, a.client.takeAll(paths, "\n;\n"))
		if err != nil {
			return fmt.Errorf("minify client js: %w", err)
		}
		a.addMinified(TypeJS, []byte(minified))
		a.js[env.Client] = nil
	}

	if len(a.css) > 0 {
		minified, err := m.CSS(ctx, a.client.takeAll(a.css, "\n"))
		if err != nil {
			return fmt.Errorf("minify client css: %w", err)
		}
		a.addMinified(TypeCSS, []byte(minified))
		a.css = nil
	}
	return nil
}

func (a *Assembler) addMinified(t Type, data []byte) {
	hash := Hash(data)
	name := "/" + hash + "." + string(t)
	a.clientCacheable.put(name, data)
	a.manifest = append(a.manifest, Entry{
		Path:      CacheableDir + name,
		Where:     env.Client.String(),
		Type:      t,
		Cacheable: true,
		URL:       name,
		Size:      len(data),
		Hash:      hash,
	})
}

// Finalize builds the manifest and load list. Client code still in the
// plain table moves to the cacheable table with a content-hash query
// string; other client files become non-cacheable entries; server files
// become the load list. Calling Finalize again is a no-op.
func (a *Assembler) Finalize() error {
	if a.finalized {
		return nil
	}

	for _, p := range a.js[env.Client] {
		a.promote(TypeJS, p)
	}
	for _, p := range a.css {
		a.promote(TypeCSS, p)
	}
	a.js[env.Client], a.css = nil, nil

	for _, p := range a.client.order {
		data := a.client.data[p]
		rel := strings.TrimPrefix(p, "/")
		a.manifest = append(a.manifest, Entry{
			Path:  StaticDir + "/" + rel,
			Where: env.Client.String(),
			Type:  TypeStatic,
			URL:   "/" + rel,
			Size:  len(data),
			Hash:  Hash(data),
		})
	}

	for _, p := range a.server.order {
		a.load = append(a.load, ServerDir+"/"+strings.TrimPrefix(p, "/"))
	}

	a.finalized = true
	return nil
}

func (a *Assembler) promote(t Type, p string) {
	data, ok := a.client.take(p)
	if !ok {
		return
	}
	a.clientCacheable.put(p, data)
	hash := Hash(data)
	a.manifest = append(a.manifest, Entry{
		Path:      CacheableDir + "/" + strings.TrimPrefix(p, "/"),
		Where:     env.Client.String(),
		Type:      t,
		Cacheable: true,
		URL:       p + "?" + hash,
		Size:      len(data),
		Hash:      hash,
	})
}

// Manifest returns the client manifest entries.
func (a *Assembler) Manifest() []Entry { return a.manifest }

// Load returns the server load list.
func (a *Assembler) Load() []string { return a.load }

// Head returns the concatenated head fragments.
func (a *Assembler) Head() string { return strings.Join(a.head, "\n") }

// Body returns the concatenated body fragments.
func (a *Assembler) Body() string { return strings.Join(a.body, "\n") }

// ServerJS returns the server code paths in load order.
func (a *Assembler) ServerJS() []string { return a.js[env.Server] }

func (a *Assembler) table(e env.Env) *fileTable {
	if e == env.Server {
		return &a.server
	}
	return &a.client
}

func newFileTable() fileTable {
	return fileTable{data: map[string][]byte{}}
}

func (t *fileTable) put(p string, data []byte) {
	if _, ok := t.data[p]; !ok {
		t.order = append(t.order, p)
	}
	t.data[p] = data
}

func (t *fileTable) take(p string) ([]byte, bool) {
	data, ok := t.data[p]
	if !ok {
		return nil, false
	}
	delete(t.data, p)
	for i, q := range t.order {
		if q == p {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	return data, true
}

func (t *fileTable) takeAll(paths []string, sep string) string {
	parts := make([]string, 0, len(paths))
	for _, p := range paths {
		if data, ok := t.take(p); ok {
			parts = append(parts, string(data))
		}
	}
	return strings.Join(parts, sep)
}

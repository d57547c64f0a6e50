// SPDX-License-Identifier: MPL-2.0

// Package handler turns one source file into the resources it contributes.
// Packages bind file extensions to these handlers by name in weldmod.cue.
package handler

import (
	"context"
	"errors"
	"fmt"
	"path"
	"regexp"
	"slices"
	"strings"

	"github.com/invowk/weld/internal/env"
	"github.com/invowk/weld/internal/manifest"
	"github.com/invowk/weld/internal/transform"
)

const (
	JS   = "js"
	CSS  = "css"
	HTML = "html"
	TS   = "ts"
)

// ErrUnknownHandler is returned by Lookup for an unregistered name.
var ErrUnknownHandler = errors.New("unknown source handler")

var (
	headRe = regexp.MustCompile(`(?is)<head[^>]*>(.*?)</head\s*>`)
	bodyRe = regexp.MustCompile(`(?is)<body[^>]*>(.*?)</body\s*>`)
)

type (
	// Input is one source file presented to a handler.
	Input struct {
		// SourcePath is relative to the module's source root.
		SourcePath string
		// ServePath is where the file would be served unprocessed.
		ServePath string
		Env       env.Env
		Data      []byte
	}

	// Func processes one file for one environment.
	Func func(ctx context.Context, in Input) ([]manifest.Resource, error)

	// Registry maps handler names to implementations.
	Registry struct {
		handlers map[string]Func
	}
)

// NewRegistry returns a registry holding the built-in handlers.
func NewRegistry() *Registry {
	r := &Registry{handlers: map[string]Func{}}
	r.Register(JS, handleJS)
	r.Register(CSS, handleCSS)
	r.Register(HTML, handleHTML)
	r.Register(TS, handleTS)
	return r
}

// Register binds name to fn, replacing any previous binding.
func (r *Registry) Register(name string, fn Func) {
	r.handlers[name] = fn
}

// Lookup returns the handler bound to name.
func (r *Registry) Lookup(name string) (Func, error) {
	fn, ok := r.handlers[name]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownHandler, name)
	}
	return fn, nil
}

// Names returns the registered handler names, sorted.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.handlers))
	for n := range r.handlers {
		out = append(out, n)
	}
	slices.Sort(out)
	return out
}

func handleJS(_ context.Context, in Input) ([]manifest.Resource, error) {
	return []manifest.Resource{{Type: manifest.TypeJS, Env: in.Env, ServePath: in.ServePath, Data: in.Data}}, nil
}

func handleCSS(_ context.Context, in Input) ([]manifest.Resource, error) {
	return []manifest.Resource{{Type: manifest.TypeCSS, Env: in.Env, ServePath: in.ServePath, Data: in.Data}}, nil
}

// handleHTML contributes <head> and <body> contents to the client page. A
// file with neither element is treated as a body fragment.
func handleHTML(_ context.Context, in Input) ([]manifest.Resource, error) {
	if in.Env != env.Client {
		return nil, nil
	}

	var out []manifest.Resource
	head := headRe.FindSubmatch(in.Data)
	body := bodyRe.FindSubmatch(in.Data)
	if head != nil {
		out = append(out, manifest.Resource{Type: manifest.TypeHead, Env: in.Env, Data: trimFragment(head[1])})
	}
	if body != nil {
		out = append(out, manifest.Resource{Type: manifest.TypeBody, Env: in.Env, Data: trimFragment(body[1])})
	}
	if head == nil && body == nil {
		if frag := trimFragment(in.Data); len(frag) > 0 {
			out = append(out, manifest.Resource{Type: manifest.TypeBody, Env: in.Env, Data: frag})
		}
	}
	return out, nil
}

func handleTS(ctx context.Context, in Input) ([]manifest.Resource, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	code, err := transform.TypeScript(string(in.Data), in.SourcePath)
	if err != nil {
		return nil, err
	}
	servePath := strings.TrimSuffix(in.ServePath, path.Ext(in.ServePath)) + ".js"
	return []manifest.Resource{{Type: manifest.TypeJS, Env: in.Env, ServePath: servePath, Data: []byte(code)}}, nil
}

func trimFragment(b []byte) []byte {
	return []byte(strings.TrimSpace(string(b)))
}

// SPDX-License-Identifier: MPL-2.0

package handler

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/invowk/weld/internal/env"
	"github.com/invowk/weld/internal/manifest"
)

func run(t *testing.T, name string, in Input) []manifest.Resource {
	t.Helper()
	fn, err := NewRegistry().Lookup(name)
	if err != nil {
		t.Fatalf("Lookup(%s): %v", name, err)
	}
	out, err := fn(context.Background(), in)
	if err != nil {
		t.Fatalf("%s handler: %v", name, err)
	}
	return out
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	if !slices.Equal(r.Names(), []string{"css", "html", "js", "ts"}) {
		t.Errorf("Names() = %v", r.Names())
	}
	if _, err := r.Lookup("coffee"); !errors.Is(err, ErrUnknownHandler) {
		t.Errorf("expected ErrUnknownHandler, got %v", err)
	}

	r.Register("txt", handleJS)
	if _, err := r.Lookup("txt"); err != nil {
		t.Errorf("registered handler not found: %v", err)
	}
}

func TestJSAndCSS(t *testing.T) {
	t.Parallel()

	js := run(t, JS, Input{ServePath: "/packages/a/a.js", Env: env.Server, Data: []byte("x()")})
	if len(js) != 1 || js[0].Type != manifest.TypeJS || js[0].Env != env.Server || js[0].ServePath != "/packages/a/a.js" {
		t.Errorf("js = %+v", js)
	}

	css := run(t, CSS, Input{ServePath: "/a.css", Env: env.Client, Data: []byte("a{}")})
	if len(css) != 1 || css[0].Type != manifest.TypeCSS || string(css[0].Data) != "a{}" {
		t.Errorf("css = %+v", css)
	}
}

func TestHTML(t *testing.T) {
	t.Parallel()

	page := []byte("<head>\n  <title>Todos</title>\n</head>\n<body class=\"x\">\n  <p>hi</p>\n</body>\n")
	out := run(t, HTML, Input{ServePath: "/index.html", Env: env.Client, Data: page})
	if len(out) != 2 {
		t.Fatalf("expected head and body, got %+v", out)
	}
	if out[0].Type != manifest.TypeHead || string(out[0].Data) != "<title>Todos</title>" {
		t.Errorf("head = %q", out[0].Data)
	}
	if out[1].Type != manifest.TypeBody || string(out[1].Data) != "<p>hi</p>" {
		t.Errorf("body = %q", out[1].Data)
	}

	frag := run(t, HTML, Input{ServePath: "/frag.html", Env: env.Client, Data: []byte("<div>x</div>\n")})
	if len(frag) != 1 || frag[0].Type != manifest.TypeBody {
		t.Errorf("fragment = %+v", frag)
	}

	if server := run(t, HTML, Input{ServePath: "/index.html", Env: env.Server, Data: page}); len(server) != 0 {
		t.Errorf("html contributes nothing on the server, got %+v", server)
	}
}

func TestTS(t *testing.T) {
	t.Parallel()

	out := run(t, TS, Input{SourcePath: "lib/x.ts", ServePath: "/packages/a/lib/x.ts", Env: env.Client, Data: []byte("const n: number = 2;\nconsole.log(n);\n")})
	if len(out) != 1 || out[0].ServePath != "/packages/a/lib/x.js" || out[0].Type != manifest.TypeJS {
		t.Fatalf("ts = %+v", out)
	}
	if strings.Contains(string(out[0].Data), ": number") {
		t.Errorf("types not stripped: %q", out[0].Data)
	}

	fn, _ := NewRegistry().Lookup(TS)
	if _, err := fn(context.Background(), Input{SourcePath: "bad.ts", Data: []byte("const = ;")}); err == nil {
		t.Error("expected transpile error")
	}
}

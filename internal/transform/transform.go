// SPDX-License-Identifier: MPL-2.0

// Package transform wraps esbuild's transform API for the two jobs the
// bundler delegates to it: minifying client code and transpiling TypeScript.
package transform

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/evanw/esbuild/pkg/api"
)

type (
	// Minifier minifies JS and CSS with esbuild. The zero value is usable.
	Minifier struct {
		// Logger receives warnings reported by esbuild. Nil discards them.
		Logger *log.Logger
	}

	// Error collects the error messages of one esbuild transform.
	Error struct {
		Op       string
		Messages []string
	}
)

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, strings.Join(e.Messages, "; "))
}

// NewMinifier returns a Minifier logging to logger.
func NewMinifier(logger *log.Logger) *Minifier {
	return &Minifier{Logger: logger}
}

// JS minifies JavaScript. Top-level names are kept; only whitespace,
// syntax and local identifiers are compressed.
func (m *Minifier) JS(ctx context.Context, code string) (string, error) {
	return m.run(ctx, "minify js", code, api.TransformOptions{
		Loader:            api.LoaderJS,
		MinifyWhitespace:  true,
		MinifyIdentifiers: true,
		MinifySyntax:      true,
		LegalComments:     api.LegalCommentsNone,
		LogLevel:          api.LogLevelSilent,
	})
}

// CSS minifies a stylesheet.
func (m *Minifier) CSS(ctx context.Context, code string) (string, error) {
	return m.run(ctx, "minify css", code, api.TransformOptions{
		Loader:           api.LoaderCSS,
		MinifyWhitespace: true,
		MinifySyntax:     true,
		LogLevel:         api.LogLevelSilent,
	})
}

func (m *Minifier) run(ctx context.Context, op, code string, opts api.TransformOptions) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	result := api.Transform(code, opts)
	if len(result.Errors) > 0 {
		return "", &Error{Op: op, Messages: formatMessages(result.Errors)}
	}
	if m.Logger != nil {
		for _, w := range formatMessages(result.Warnings) {
			m.Logger.Warn("esbuild", "op", op, "message", w)
		}
	}
	return string(result.Code), nil
}

// TypeScript transpiles one TypeScript source file to JavaScript without
// bundling or type checking.
func TypeScript(source, filename string) (string, error) {
	result := api.Transform(source, api.TransformOptions{
		Loader:     api.LoaderTS,
		Sourcefile: filename,
		Format:     api.FormatDefault,
		Target:     api.ES2017,
		LogLevel:   api.LogLevelSilent,
	})
	if len(result.Errors) > 0 {
		return "", &Error{Op: "transpile " + filename, Messages: formatMessages(result.Errors)}
	}
	return string(result.Code), nil
}

func formatMessages(msgs []api.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		if loc := msg.Location; loc != nil {
			file := loc.File
			if file == "" {
				file = "<stdin>"
			}
			out = append(out, fmt.Sprintf("%s:%d:%d: %s", file, loc.Line, loc.Column, msg.Text))
			continue
		}
		out = append(out, msg.Text)
	}
	return out
}

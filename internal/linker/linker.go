// SPDX-License-Identifier: MPL-2.0

// Package linker wraps a unit's JavaScript so each file gets its own function
// scope while the files of one package share a package scope. Identifiers a
// package assigns without declaring become package-scope variables instead
// of leaking into the global namespace, and a file whose top-level
// declarations other files use is emitted in the package scope itself.
package linker

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
)

// DefaultGlobalImportsPath serves the stub that exposes imported symbols to
// application code.
const DefaultGlobalImportsPath = "/packages/global-imports.js"

var (
	// ErrNoAnalyzer is returned when Options.Analyzer is nil.
	ErrNoAnalyzer = errors.New("linker: no analyzer configured")
	// ErrNoCombinedPath is returned when a package link has no output path.
	ErrNoCombinedPath = errors.New("linker: combined serve path is required")
)

type (
	// Input is one JavaScript file of a unit.
	Input struct {
		Source    string
		ServePath string
	}

	// Output is one linked file.
	Output struct {
		ServePath string
		Source    string
	}

	// Options configures Link.
	Options struct {
		Inputs []Input
		// UseGlobalNamespace links application code: every input becomes its
		// own output and no package scope is introduced.
		UseGlobalNamespace bool
		// CombinedServePath is where a package's single output is served.
		CombinedServePath string
		// Name is the package name used in the exports block.
		Name string
		// Imports maps a symbol to the package exporting it.
		Imports map[string]string
		// ForceExports are symbols the package exports.
		ForceExports []string
		// PreserveLineNumbers drops a package's banners so every line keeps
		// its original number. Application code never gets a banner.
		PreserveLineNumbers bool
		Analyzer            Analyzer
		// Ambient extends the built-in ambient identifier table.
		Ambient []string
		// GlobalImportsPath overrides DefaultGlobalImportsPath.
		GlobalImportsPath string
	}

	// Result is the outcome of Link.
	Result struct {
		Files []Output
		// FreeIdentifiers is the sorted union of free identifiers across the
		// unit's files, after ambient and top-level names are removed.
		FreeIdentifiers []string
		// Exports lists the symbols the package publishes.
		Exports []string
	}
)

// Link wraps opts.Inputs. A unit with no inputs links to no files.
func Link(ctx context.Context, opts Options) (*Result, error) {
	if len(opts.Inputs) == 0 {
		return &Result{}, nil
	}
	if opts.Analyzer == nil {
		return nil, ErrNoAnalyzer
	}
	if !opts.UseGlobalNamespace && opts.CombinedServePath == "" {
		return nil, ErrNoCombinedPath
	}

	analyses, err := analyzeAll(ctx, opts.Analyzer, opts.Inputs)
	if err != nil {
		return nil, err
	}
	free := freeIdentifiers(analyses, ambientSet(opts.Ambient))

	if opts.UseGlobalNamespace {
		return linkGlobal(opts, free), nil
	}
	return linkPackage(opts, analyses, free), nil
}

// freeIdentifiers unions the per-file free names, dropping ambient names and
// names any file of the unit declares at top level.
func freeIdentifiers(analyses []*Analysis, ambient map[string]bool) []string {
	declared := map[string]bool{}
	for _, a := range analyses {
		for _, n := range a.Declared {
			declared[n] = true
		}
	}

	seen := map[string]bool{}
	var out []string
	for _, a := range analyses {
		for _, n := range a.Free {
			if seen[n] || declared[n] || ambient[n] {
				continue
			}
			seen[n] = true
			out = append(out, n)
		}
	}
	slices.Sort(out)
	return out
}

// sharedFiles reports which inputs declare a top-level name that some file
// of the unit references or that the unit exports. Such a file is emitted in
// the package scope instead of its own closure, so its declarations bind
// there exactly as they would in the concatenated source.
func sharedFiles(analyses []*Analysis, exports []string) []bool {
	wanted := map[string]bool{}
	for _, sym := range exports {
		wanted[sym] = true
	}
	for _, a := range analyses {
		for _, n := range a.Free {
			wanted[n] = true
		}
	}

	shared := make([]bool, len(analyses))
	for i, a := range analyses {
		shared[i] = slices.ContainsFunc(a.Declared, func(n string) bool { return wanted[n] })
	}
	return shared
}

// wrapMember renders one file of a package. Inline files end in an empty
// statement so the next file cannot continue their last expression.
func (o Options) wrapMember(in Input, inline bool, width int) string {
	switch {
	case inline && o.PreserveLineNumbers:
		return in.Source + "\n;\n"
	case inline:
		return inlineWithBanner(in.Source, in.ServePath, width) + ";\n"
	case o.PreserveLineNumbers:
		return wrapPreserving(in.Source)
	default:
		return wrapWithBanner(in.Source, in.ServePath, width)
	}
}

func linkGlobal(opts Options, free []string) *Result {
	res := &Result{FreeIdentifiers: free}

	var stub strings.Builder
	for _, sym := range free {
		if pkg, ok := opts.Imports[sym]; ok {
			if stub.Len() == 0 {
				stub.WriteString("/* Imports for global scope */\n\n")
			}
			fmt.Fprintf(&stub, "%s = Package[%q].%s;\n", sym, pkg, sym)
		}
	}
	if stub.Len() > 0 {
		p := opts.GlobalImportsPath
		if p == "" {
			p = DefaultGlobalImportsPath
		}
		res.Files = append(res.Files, Output{ServePath: p, Source: stub.String()})
	}

	for _, in := range opts.Inputs {
		res.Files = append(res.Files, Output{ServePath: in.ServePath, Source: wrapPreserving(in.Source)})
	}
	return res
}

func linkPackage(opts Options, analyses []*Analysis, free []string) *Result {
	exports := exportRoots(opts.ForceExports)
	shared := sharedFiles(analyses, exports)

	// An exported name declared at top level already binds in the package
	// scope through its inline file.
	declared := map[string]bool{}
	for _, a := range analyses {
		for _, n := range a.Declared {
			declared[n] = true
		}
	}

	type binding struct{ sym, pkg string }
	var imports []binding
	imported := map[string]bool{}
	for _, sym := range free {
		if pkg, ok := opts.Imports[sym]; ok && !slices.Contains(exports, sym) {
			imports = append(imports, binding{sym, pkg})
			imported[sym] = true
		}
	}

	var vars []string
	for _, sym := range free {
		if !imported[sym] {
			vars = append(vars, sym)
		}
	}
	for _, sym := range exports {
		if !declared[sym] && !slices.Contains(vars, sym) {
			vars = append(vars, sym)
		}
	}
	slices.Sort(vars)

	var b strings.Builder
	b.WriteString("(function () {\n\n")
	if len(vars) > 0 {
		b.WriteString("/* Package-scope variables */\n")
		b.WriteString("var " + strings.Join(vars, ", ") + ";\n\n")
	}
	if len(imports) > 0 {
		b.WriteString("/* Imports */\n")
		for _, imp := range imports {
			fmt.Fprintf(&b, "var %s = Package[%q].%s;\n", imp.sym, imp.pkg, imp.sym)
		}
		b.WriteString("\n")
	}
	width := sourceWidth(opts.Inputs)
	for i, in := range opts.Inputs {
		b.WriteString(opts.wrapMember(in, shared[i], width))
		b.WriteString("\n")
	}
	if opts.Name != "" && len(exports) > 0 {
		pairs := make([]string, len(exports))
		for i, sym := range exports {
			pairs[i] = sym + ": " + sym
		}
		b.WriteString("/* Exports */\n")
		b.WriteString("if (typeof Package === 'undefined') Package = {};\n")
		fmt.Fprintf(&b, "Package[%q] = {%s};\n", opts.Name, strings.Join(pairs, ", "))
	}
	b.WriteString("\n})();\n")

	return &Result{
		Files:           []Output{{ServePath: opts.CombinedServePath, Source: b.String()}},
		FreeIdentifiers: free,
		Exports:         exports,
	}
}

// exportRoots reduces "Foo.bar" to "Foo" and removes duplicates, keeping
// first-seen order.
func exportRoots(symbols []string) []string {
	var out []string
	for _, s := range symbols {
		root, _, _ := strings.Cut(s, ".")
		if root != "" && !slices.Contains(out, root) {
			out = append(out, root)
		}
	}
	return out
}

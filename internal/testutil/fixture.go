// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"testing"
)

type (
	// Tree maps slash-separated relative paths to file contents.
	Tree map[string]string

	// Package describes a weldmod.cue fixture. Per-environment lists apply
	// to both client and server unless the Client/Server variants are set.
	Package struct {
		Name          string
		Uses          []string
		Unordered     []string
		Sources       []string
		ClientSources []string
		ServerSources []string
		Exports       []string
		TestUses      []string
		TestSources   []string
		Extensions    map[string]string
		Npm           map[string]string
		Files         Tree
	}
)

// WriteTree writes every file of tree under root.
func WriteTree(t testing.TB, root string, tree Tree) {
	t.Helper()
	paths := make([]string, 0, len(tree))
	for p := range tree {
		paths = append(paths, p)
	}
	slices.Sort(paths)
	for _, p := range paths {
		MustWriteFile(t, filepath.Join(root, filepath.FromSlash(p)), tree[p])
	}
}

// WritePackage writes pkg's weldmod.cue and files into dir/<name> and
// returns the package directory.
func WritePackage(t testing.TB, dir string, pkg Package) string {
	t.Helper()
	root := filepath.Join(dir, pkg.Name)
	MustWriteFile(t, filepath.Join(root, "weldmod.cue"), pkg.CUE())
	WriteTree(t, root, pkg.Files)
	return root
}

// CUE renders the descriptor source.
func (p Package) CUE() string {
	var b strings.Builder
	fmt.Fprintf(&b, "name: %q\n", p.Name)

	if len(p.Extensions) > 0 {
		b.WriteString("extensions: {\n")
		keys := make([]string, 0, len(p.Extensions))
		for k := range p.Extensions {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "\t%q: %q\n", k, p.Extensions[k])
		}
		b.WriteString("}\n")
	}
	if len(p.Unordered) > 0 {
		fmt.Fprintf(&b, "unordered: %s\n", list(p.Unordered))
	}
	if len(p.Npm) > 0 {
		b.WriteString("npm_dependencies: {\n")
		for k, v := range p.Npm {
			fmt.Fprintf(&b, "\t%q: %q\n", k, v)
		}
		b.WriteString("}\n")
	}

	client := append(slices.Clone(p.Sources), p.ClientSources...)
	server := append(slices.Clone(p.Sources), p.ServerSources...)
	b.WriteString("use: {\n")
	writePerEnv(&b, "uses", p.Uses, p.Uses)
	writePerEnv(&b, "sources", client, server)
	writePerEnv(&b, "exports", p.Exports, p.Exports)
	b.WriteString("}\n")

	if len(p.TestUses) > 0 || len(p.TestSources) > 0 {
		b.WriteString("test: {\n")
		writePerEnv(&b, "uses", p.TestUses, p.TestUses)
		writePerEnv(&b, "sources", p.TestSources, p.TestSources)
		b.WriteString("}\n")
	}
	return b.String()
}

func writePerEnv(b *strings.Builder, field string, client, server []string) {
	if len(client) == 0 && len(server) == 0 {
		return
	}
	fmt.Fprintf(b, "\t%s: {\n", field)
	if len(client) > 0 {
		fmt.Fprintf(b, "\t\tclient: %s\n", list(client))
	}
	if len(server) > 0 {
		fmt.Fprintf(b, "\t\tserver: %s\n", list(server))
	}
	b.WriteString("\t}\n")
}

func list(items []string) string {
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = fmt.Sprintf("%q", s)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

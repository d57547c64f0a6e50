// SPDX-License-Identifier: MPL-2.0

// Package jsscope finds the free identifiers of a JavaScript file using the
// tdewolff/parse scope tracker.
package jsscope

import (
	"errors"
	"slices"

	"github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/js"

	"github.com/invowk/weld/internal/linker"
)

// Analyzer implements linker.Analyzer. It holds no state and is safe for
// concurrent use.
type Analyzer struct{}

// New returns an Analyzer.
func New() Analyzer {
	return Analyzer{}
}

// Analyze parses source as a script and reports the names it references
// without declaring, and the names it declares at top level.
func (Analyzer) Analyze(source string) (*linker.Analysis, error) {
	ast, err := js.Parse(parse.NewInputString(source), js.Options{})
	if err != nil {
		var perr *parse.Error
		if errors.As(err, &perr) {
			return nil, &linker.SyntaxError{Line: perr.Line, Column: perr.Column, Message: perr.Message}
		}
		return nil, err
	}

	scope := ast.BlockStmt.Scope
	declared := names(scope.Declared)

	var free []string
	for _, n := range names(scope.Undeclared) {
		if !slices.Contains(declared, n) {
			free = append(free, n)
		}
	}
	return &linker.Analysis{Free: free, Declared: declared}, nil
}

func names(vars js.VarArray) []string {
	out := make([]string, 0, len(vars))
	for _, v := range vars {
		n := string(v.Data)
		if n != "" && !slices.Contains(out, n) {
			out = append(out, n)
		}
	}
	slices.Sort(out)
	return out
}

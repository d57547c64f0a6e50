// SPDX-License-Identifier: MPL-2.0

package linker

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
)

type (
	// Analysis is the scope information of one source file.
	Analysis struct {
		// Free lists identifiers referenced but not declared in any
		// enclosing scope.
		Free []string
		// Declared lists identifiers declared at the file's top level.
		Declared []string
	}

	// Analyzer computes an Analysis. Implementations must be safe for
	// concurrent use.
	Analyzer interface {
		Analyze(source string) (*Analysis, error)
	}

	// SyntaxError is returned by an Analyzer for source it cannot parse.
	SyntaxError struct {
		Line    int
		Column  int
		Message string
	}

	// AnalysisError ties an analyzer failure to the file it came from.
	AnalysisError struct {
		ServePath string
		Line      int
		Column    int
		Err       error
	}
)

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%d:%d: %s", e.Line, e.Column, e.Message)
}

func (e *AnalysisError) Error() string {
	var syn *SyntaxError
	if errors.As(e.Err, &syn) {
		return fmt.Sprintf("%s:%d:%d: %s", e.ServePath, e.Line, e.Column, syn.Message)
	}
	return fmt.Sprintf("%s: %v", e.ServePath, e.Err)
}

func (e *AnalysisError) Unwrap() error { return e.Err }

func newAnalysisError(servePath string, err error) *AnalysisError {
	ae := &AnalysisError{ServePath: servePath, Err: err}
	var syn *SyntaxError
	if errors.As(err, &syn) {
		ae.Line, ae.Column = syn.Line, syn.Column
	}
	return ae
}

// analyzeAll runs the analyzer over every input concurrently. Results and
// the reported error follow input order regardless of completion order.
func analyzeAll(ctx context.Context, a Analyzer, inputs []Input) ([]*Analysis, error) {
	results := make([]*Analysis, len(inputs))
	errs := make([]error, len(inputs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, in := range inputs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := a.Analyze(in.Source)
			if err != nil {
				errs[i] = newAnalysisError(in.ServePath, err)
				return nil
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return results, nil
}

// SPDX-License-Identifier: MPL-2.0

package cmd

import "fmt"

const (
	// ExitBuildFailed is returned when a build reported errors.
	ExitBuildFailed = 1
	// ExitUsage is returned for bad arguments and configuration.
	ExitUsage = 2
)

// ExitError signals a non-zero exit code without forcing os.Exit in RunE handlers.
// A nil Err means the command already reported the failure.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("exit status %d", e.Code)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

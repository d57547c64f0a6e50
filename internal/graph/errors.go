// SPDX-License-Identifier: MPL-2.0

package graph

import (
	"fmt"
	"strings"

	"github.com/invowk/weld/pkg/moddesc"
)

// ErrModuleNotFound is returned when a used package cannot be resolved.
var ErrModuleNotFound = moddesc.ErrModuleNotFound

type (
	// ExtensionConflictError reports a file extension claimed by more than
	// one package visible to the unit adding the file.
	ExtensionConflictError struct {
		Extension string
		File      string
		Modules   []string
	}

	// ActivationError ties a failure to the package being activated.
	ActivationError struct {
		Module string
		Role   moddesc.Role
		Err    error
	}
)

func (e *ExtensionConflictError) Error() string {
	return fmt.Sprintf("conflict: two packages provide a handler for .%s (%s) while adding %s",
		e.Extension, strings.Join(e.Modules, ", "), e.File)
}

func (e *ActivationError) Error() string {
	if e.Role == moddesc.RoleTest {
		return fmt.Sprintf("%s (test): %v", e.Module, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Module, e.Err)
}

func (e *ActivationError) Unwrap() error { return e.Err }

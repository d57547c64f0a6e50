// SPDX-License-Identifier: MPL-2.0

package manifest

import (
	"errors"
	"fmt"

	"github.com/invowk/weld/internal/env"
)

const (
	TypeJS     Type = "js"
	TypeCSS    Type = "css"
	TypeStatic Type = "static"
	TypeHead   Type = "head"
	TypeBody   Type = "body"
)

var (
	// ErrUnknownResourceType is returned for a resource whose type is not
	// one of js, css, static, head or body.
	ErrUnknownResourceType = errors.New("unknown resource type")

	// ErrMissingServePath is returned for js, css and static resources
	// without a serve path.
	ErrMissingServePath = errors.New("resource requires a serve path")

	// ErrWrongEnvironment is returned when a resource targets an
	// environment that cannot hold it.
	ErrWrongEnvironment = errors.New("resource not allowed in environment")
)

type (
	// Type is the kind of a built artifact.
	Type string

	// Resource is one built artifact produced by a source handler or the
	// linker. Data holds the contents; ServePath is empty for head/body.
	Resource struct {
		Type      Type
		Env       env.Env
		ServePath string
		Data      []byte
	}

	// ResourceError wraps a resource rejection with its identity.
	ResourceError struct {
		Type      Type
		Env       env.Env
		ServePath string
		Err       error
	}
)

// Validate reports whether t is a known resource type.
func (t Type) Validate() error {
	switch t {
	case TypeJS, TypeCSS, TypeStatic, TypeHead, TypeBody:
		return nil
	}
	return &ResourceError{Type: t, Err: ErrUnknownResourceType}
}

func (e *ResourceError) Error() string {
	switch {
	case e.ServePath != "":
		return fmt.Sprintf("%s resource %s (%s): %v", e.Type, e.ServePath, e.Env, e.Err)
	case errors.Is(e.Err, ErrUnknownResourceType):
		return fmt.Sprintf("%v %q", e.Err, string(e.Type))
	default:
		return fmt.Sprintf("%s resource (%s): %v", e.Type, e.Env, e.Err)
	}
}

func (e *ResourceError) Unwrap() error { return e.Err }

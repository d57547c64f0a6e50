// SPDX-License-Identifier: MPL-2.0

// Package env defines the deployment environments a bundle targets and a
// compact set type used to key activations by environment.
package env

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// Client is the browser environment.
	Client Env = iota
	// Server is the server-side runtime environment.
	Server

	numEnvs
)

// ErrInvalidEnv is returned when an environment name is not recognized.
var ErrInvalidEnv = errors.New("invalid environment")

var names = [numEnvs]string{"client", "server"}

type (
	// Env is a single deployment environment.
	Env uint8

	// Set is a set of environments. Two sets holding the same members are
	// equal with ==, so a Set can key a map directly.
	Set uint8

	// InvalidEnvError carries the rejected environment name.
	InvalidEnvError struct {
		Value string
	}
)

// All returns every environment in canonical order.
func All() []Env {
	return []Env{Client, Server}
}

// Parse converts an environment name to an Env.
func Parse(s string) (Env, error) {
	for i, n := range names {
		if n == s {
			return Env(i), nil
		}
	}
	return 0, &InvalidEnvError{Value: s}
}

// String returns the environment name.
func (e Env) String() string {
	if e < numEnvs {
		return names[e]
	}
	return fmt.Sprintf("env(%d)", uint8(e))
}

// Valid reports whether e is a known environment.
func (e Env) Valid() bool {
	return e < numEnvs
}

// Error implements the error interface.
func (e *InvalidEnvError) Error() string {
	return fmt.Sprintf("invalid environment %q (valid: %s)", e.Value, strings.Join(names[:], ", "))
}

// Unwrap returns ErrInvalidEnv for errors.Is compatibility.
func (e *InvalidEnvError) Unwrap() error {
	return ErrInvalidEnv
}

// NewSet returns a Set holding envs.
func NewSet(envs ...Env) Set {
	var s Set
	for _, e := range envs {
		s = s.Add(e)
	}
	return s
}

// AllSet returns the set of every environment.
func AllSet() Set {
	return NewSet(All()...)
}

// ParseSet converts a list of names to a Set.
func ParseSet(list []string) (Set, error) {
	var s Set
	for _, n := range list {
		e, err := Parse(n)
		if err != nil {
			return 0, err
		}
		s = s.Add(e)
	}
	return s, nil
}

// Add returns s with e added.
func (s Set) Add(e Env) Set {
	return s | 1<<e
}

// Has reports whether e is in s.
func (s Set) Has(e Env) bool {
	return s&(1<<e) != 0
}

// IsEmpty reports whether s has no members.
func (s Set) IsEmpty() bool {
	return s == 0
}

// Len returns the number of members.
func (s Set) Len() int {
	n := 0
	for _, e := range All() {
		if s.Has(e) {
			n++
		}
	}
	return n
}

// Envs returns the members of s in canonical order.
func (s Set) Envs() []Env {
	out := make([]Env, 0, numEnvs)
	for _, e := range All() {
		if s.Has(e) {
			out = append(out, e)
		}
	}
	return out
}

// OrAll returns s, or the set of every environment when s is empty.
// An activation that names no environment applies everywhere.
func (s Set) OrAll() Set {
	if s.IsEmpty() {
		return AllSet()
	}
	return s
}

// String renders the set as a bracketed, comma-separated list.
func (s Set) String() string {
	parts := make([]string, 0, numEnvs)
	for _, e := range s.Envs() {
		parts = append(parts, e.String())
	}
	return "[" + strings.Join(parts, ",") + "]"
}

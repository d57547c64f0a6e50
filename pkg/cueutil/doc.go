// SPDX-License-Identifier: MPL-2.0

// Package cueutil holds the CUE decoding flow shared by module descriptors,
// release pins, and the configuration file:
//
//  1. compile the embedded schema
//  2. compile the user file and unify it with the schema definition
//  3. validate, then decode into a Go value
//
// Errors carry the file name and the JSON-style path of the offending field:
//
//	weldmod.cue: use.sources.client[2]: conflicting values 3 and string
package cueutil

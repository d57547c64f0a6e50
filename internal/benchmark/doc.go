// SPDX-License-Identifier: MPL-2.0

// Package benchmark holds benchmarks for the build's hot paths, used to
// collect PGO profiles:
//   - weldmod.cue parsing and schema validation
//   - JavaScript scope analysis and linking
//   - load ordering
//   - a whole build, with and without minification
//
// To generate a profile, run:
//
//	go test -run '^$' -bench . -cpuprofile default.pgo ./internal/benchmark
package benchmark

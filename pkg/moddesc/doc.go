// SPDX-License-Identifier: MPL-2.0

// Package moddesc models a module descriptor: the immutable record of what a
// package (or the application itself) contributes to a bundle in each role
// and environment.
//
// Named packages declare themselves in a weldmod.cue file:
//
//	name: "session"
//	use: {
//		uses:    client: ["deps", "json"]
//		sources: client: ["session.js"]
//		exports: client: ["Session"]
//	}
//
// The application is an anonymous descriptor built by ForApp from a scan of
// the app directory.
package moddesc

// SPDX-License-Identifier: MPL-2.0

// Package testutil provides fixture builders and environment helpers that
// fail the calling test on error instead of returning one.
package testutil

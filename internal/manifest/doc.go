// SPDX-License-Identifier: MPL-2.0

// Package manifest assembles built resources into the on-disk bundle layout:
// content-addressed client assets with a manifest, the ordered server load
// list, head/body fragments and the dependency metadata used by watchers.
package manifest

// SPDX-License-Identifier: MPL-2.0

package linker

// ambient names resolve in every host the bundle runs in, so a package that
// references one must not shadow it with a package-scope variable.
var ambient = []string{
	// ECMAScript
	"Array", "ArrayBuffer", "BigInt", "BigInt64Array", "BigUint64Array", "Boolean",
	"DataView", "Date", "Error", "EvalError", "Float32Array", "Float64Array",
	"Function", "Infinity", "Int16Array", "Int32Array", "Int8Array", "Intl", "JSON",
	"Map", "Math", "NaN", "Number", "Object", "Promise", "Proxy", "RangeError",
	"ReferenceError", "Reflect", "RegExp", "Set", "String", "Symbol", "SyntaxError",
	"TypeError", "URIError", "Uint16Array", "Uint32Array", "Uint8Array",
	"Uint8ClampedArray", "WeakMap", "WeakSet", "arguments", "decodeURI",
	"decodeURIComponent", "encodeURI", "encodeURIComponent", "escape", "eval",
	"globalThis", "isFinite", "isNaN", "parseFloat", "parseInt", "undefined", "unescape",

	// Browser
	"Blob", "CustomEvent", "DOMParser", "Element", "Event", "File", "FileReader",
	"FormData", "HTMLElement", "Image", "MutationObserver", "Node", "Option",
	"URL", "URLSearchParams", "WebSocket", "XMLHttpRequest", "alert", "atob", "btoa",
	"cancelAnimationFrame", "clearInterval", "clearTimeout", "confirm", "console",
	"document", "fetch", "frames", "history", "localStorage", "location", "navigator",
	"parent", "performance", "prompt", "requestAnimationFrame", "screen",
	"sessionStorage", "self", "setInterval", "setTimeout", "top", "window",

	// Server runtime
	"Buffer", "__dirname", "__filename", "clearImmediate", "exports", "global",
	"module", "process", "require", "setImmediate",

	// Bundle runtime
	"Package", "Npm",
}

// ambientSet returns the built-in ambient names plus extra.
func ambientSet(extra []string) map[string]bool {
	set := make(map[string]bool, len(ambient)+len(extra))
	for _, n := range ambient {
		set[n] = true
	}
	for _, n := range extra {
		set[n] = true
	}
	return set
}

// IsAmbient reports whether name is in the built-in ambient table.
func IsAmbient(name string) bool {
	for _, n := range ambient {
		if n == name {
			return true
		}
	}
	return false
}

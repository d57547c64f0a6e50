// SPDX-License-Identifier: MPL-2.0

// Package config handles weld configuration using Viper with CUE as the file format.
//
// Configuration is layered: built-in defaults, then config.cue from the platform
// config directory (~/.config/weld on Linux, ~/Library/Application Support/weld on
// macOS, %APPDATA%\weld on Windows), then weld.cue in the application directory,
// then WELD_* environment variables. An explicit --config file replaces both files.
//
// Every file is validated against the embedded #Config schema (config_schema.cue).
package config

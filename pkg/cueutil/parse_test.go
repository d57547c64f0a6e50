// SPDX-License-Identifier: MPL-2.0

package cueutil

import (
	"errors"
	"strings"
	"testing"
)

const testSchema = `
#Pin: {
	name:     string
	version:  string & =~"^[0-9]+\\.[0-9]+\\.[0-9]+$"
	summary?: string
	tags?: [...string]
}
`

type testPin struct {
	Name    string   `json:"name"`
	Version string   `json:"version"`
	Summary string   `json:"summary,omitempty"`
	Tags    []string `json:"tags,omitempty"`
}

func TestDecode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		data    string
		wantErr string
	}{
		{
			name: "valid",
			data: `name: "jquery"
version: "1.8.2"
tags: ["dom"]`,
		},
		{
			name: "optional omitted",
			data: `name: "jquery"
version: "1.8.2"`,
		},
		{
			name:    "pattern violation",
			data:    `name: "jquery", version: "^1.8"`,
			wantErr: "version",
		},
		{
			name:    "missing required field",
			data:    `name: "jquery"`,
			wantErr: "version",
		},
		{
			name:    "syntax error",
			data:    `name: "jquery`,
			wantErr: "pin.cue",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			res, err := Decode[testPin]([]byte(testSchema), []byte(tt.data), "#Pin", WithFilename("pin.cue"))
			if tt.wantErr != "" {
				if err == nil {
					t.Fatal("expected error")
				}
				if !strings.Contains(err.Error(), tt.wantErr) {
					t.Errorf("error %q should mention %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if res.Value.Name != "jquery" || res.Value.Version != "1.8.2" {
				t.Errorf("decoded %+v", res.Value)
			}
		})
	}
}

func TestDecodeMapNonConcrete(t *testing.T) {
	t.Parallel()

	schema := `#Cfg: { minify?: bool, dirs?: [...string] }`
	m, err := DecodeMap([]byte(schema), []byte(`dirs: ["a", "b"]`), "#Cfg", WithConcrete(false))
	if err != nil {
		t.Fatalf("DecodeMap: %v", err)
	}
	dirs, ok := m["dirs"].([]any)
	if !ok || len(dirs) != 2 {
		t.Errorf("dirs = %#v", m["dirs"])
	}
}

func TestFileSizeLimit(t *testing.T) {
	t.Parallel()

	data := []byte(`name: "x", version: "1.0.0"`)
	_, err := Decode[testPin]([]byte(testSchema), data, "#Pin", WithMaxFileSize(4), WithFilename("big.cue"))
	if err == nil || !strings.Contains(err.Error(), "exceeds maximum") {
		t.Fatalf("expected size error, got %v", err)
	}
}

func TestMissingDefinition(t *testing.T) {
	t.Parallel()

	_, err := Decode[testPin]([]byte(testSchema), []byte(`name: "x"`), "#Nope")
	if err == nil || !strings.Contains(err.Error(), "#Nope") {
		t.Fatalf("expected missing definition error, got %v", err)
	}
}

func TestFormatError(t *testing.T) {
	t.Parallel()

	if FormatError(nil, "a.cue") != nil {
		t.Error("nil error should stay nil")
	}

	err := FormatError(errors.New("boom"), "a.cue")
	if err == nil || err.Error() != "a.cue: boom" {
		t.Errorf("FormatError = %v", err)
	}
}

func TestFormatPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path []string
		want string
	}{
		{nil, ""},
		{[]string{"name"}, "name"},
		{[]string{"use", "sources", "client", "2"}, "use.sources.client[2]"},
		{[]string{"0"}, "0"},
	}
	for _, tt := range tests {
		if got := formatPath(tt.path); got != tt.want {
			t.Errorf("formatPath(%v) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

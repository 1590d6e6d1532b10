// Bustinel - GTFS-Realtime Trip Recorder
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bustinel

package upstream

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestParseHeaders(t *testing.T) {
	input := strings.Join([]string{
		"# comment",
		"",
		"X-Key: abc",
		"Referer:https://example.org/path:with:colons",
		"not a header",
		": empty name",
		"  X-Padded  :  value  ",
	}, "\n")

	headers, err := parseHeaders(strings.NewReader(input))
	if err != nil {
		t.Fatalf("parseHeaders() error = %v", err)
	}

	tests := []struct {
		name string
		want string
	}{
		{"X-Key", "abc"},
		{"Referer", "https://example.org/path:with:colons"},
		{"X-Padded", "value"},
	}
	for _, tt := range tests {
		if got := headers.Get(tt.name); got != tt.want {
			t.Errorf("%s = %q, want %q", tt.name, got, tt.want)
		}
	}
	if len(headers) != 3 {
		t.Errorf("got %d headers, want 3: %v", len(headers), headers)
	}
}

func TestLoadHeadersFile_Missing(t *testing.T) {
	headers, err := LoadHeadersFile(filepath.Join(t.TempDir(), "nope.txt"))
	if err != nil {
		t.Fatalf("LoadHeadersFile() error = %v", err)
	}
	if len(headers) != 0 {
		t.Errorf("headers = %v, want empty", headers)
	}

	headers, err = LoadHeadersFile("")
	if err != nil || len(headers) != 0 {
		t.Errorf("LoadHeadersFile(\"\") = %v, %v", headers, err)
	}
}

// Bustinel - GTFS-Realtime Trip Recorder
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bustinel

package upstream

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"strings"
)

// LoadHeadersFile reads extra request headers from path, one "Name: value"
// per line. Blank lines, lines starting with # and lines without a colon are
// ignored. A missing file yields an empty header set.
func LoadHeadersFile(path string) (http.Header, error) {
	if path == "" {
		return http.Header{}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return http.Header{}, nil
		}
		return nil, fmt.Errorf("open headers file: %w", err)
	}
	defer f.Close()

	return parseHeaders(f)
}

func parseHeaders(r io.Reader) (http.Header, error) {
	headers := http.Header{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		headers.Set(name, strings.TrimSpace(value))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read headers file: %w", err)
	}
	return headers, nil
}

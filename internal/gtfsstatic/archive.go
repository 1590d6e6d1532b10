// Bustinel - GTFS-Realtime Trip Recorder
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bustinel

// Package gtfsstatic reads the agency and route tables of a GTFS static
// zip archive.
package gtfsstatic

import (
	"archive/zip"
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/jszwec/csvutil"
)

// Table file names.
const (
	AgencyFile = "agency.txt"
	RoutesFile = "routes.txt"
)

// ErrMissingTable is returned when a required table is not in the archive.
var ErrMissingTable = errors.New("gtfs archive: table not found")

// AgencyRow is one row of agency.txt. agency_id is optional in GTFS when
// the feed has a single agency, so it is not validated here.
type AgencyRow struct {
	AgencyID string `csv:"agency_id"`
	Name     string `csv:"agency_name" validate:"required"`
	URL      string `csv:"agency_url" validate:"required"`
	Timezone string `csv:"agency_timezone" validate:"required"`
	Lang     string `csv:"agency_lang"`
	Phone    string `csv:"agency_phone"`
	FareURL  string `csv:"agency_fare_url"`
	Email    string `csv:"agency_email"`
}

// RouteRow is one row of routes.txt. route_type is kept as text so that a
// malformed value degrades to an unknown vehicle type instead of failing the
// whole table.
type RouteRow struct {
	RouteID     string `csv:"route_id" validate:"required"`
	AgencyID    string `csv:"agency_id"`
	ShortName   string `csv:"route_short_name"`
	LongName    string `csv:"route_long_name"`
	Description string `csv:"route_desc"`
	RouteType   string `csv:"route_type"`
}

// Archive is an opened GTFS static zip.
type Archive struct {
	files map[string]*zip.File
}

// Open reads a zip archive from memory. Tables are matched by base name,
// so archives that wrap everything in a top-level folder also work.
func Open(data []byte) (*Archive, error) {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open gtfs archive: %w", err)
	}

	files := make(map[string]*zip.File, len(r.File))
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		name := path.Base(f.Name)
		// Prefer the shallowest copy if the same table appears twice.
		if existing, ok := files[name]; ok && strings.Count(existing.Name, "/") <= strings.Count(f.Name, "/") {
			continue
		}
		files[name] = f
	}
	return &Archive{files: files}, nil
}

// Has reports whether the archive contains the named table.
func (a *Archive) Has(name string) bool {
	_, ok := a.files[name]
	return ok
}

// Agencies decodes agency.txt.
func (a *Archive) Agencies() ([]AgencyRow, error) {
	var rows []AgencyRow
	if err := a.decode(AgencyFile, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// Routes decodes routes.txt.
func (a *Archive) Routes() ([]RouteRow, error) {
	var rows []RouteRow
	if err := a.decode(RoutesFile, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (a *Archive) decode(name string, out interface{}) error {
	f, ok := a.files[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrMissingTable, name)
	}
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("open %s: %w", name, err)
	}
	defer rc.Close()

	reader := csv.NewReader(skipBOM(rc))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("read %s header: %w", name, err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	dec, err := csvutil.NewDecoder(&paddedReader{r: reader, width: len(header)}, header...)
	if err != nil {
		return fmt.Errorf("create %s decoder: %w", name, err)
	}
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	return nil
}

// skipBOM drops a leading UTF-8 byte order mark, which several operators'
// export tools write.
func skipBOM(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	if b, err := br.Peek(3); err == nil && bytes.Equal(b, []byte{0xEF, 0xBB, 0xBF}) {
		_, _ = br.Discard(3)
	}
	return br
}

// paddedReader normalizes ragged rows to the header width and trims cells.
type paddedReader struct {
	r     *csv.Reader
	width int
}

func (p *paddedReader) Read() ([]string, error) {
	record, err := p.r.Read()
	if err != nil {
		return nil, err
	}
	for i := range record {
		record[i] = strings.TrimSpace(record[i])
	}
	switch {
	case len(record) < p.width:
		record = append(record, make([]string, p.width-len(record))...)
	case len(record) > p.width:
		record = record[:p.width]
	}
	return record, nil
}

// Copyright (C) 2024  wwhai
//
// This program is free software; you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation; either version 2 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License along
// with this program; if not, see <https://www.gnu.org/licenses/>.

package han

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
)

// csvHeaders lists the columns of a flat element table. Input and command
// lists use the NAME=value,NAME=value form and must be quoted.
var csvHeaders = []string{
	"code",
	"device",
	"channel",
	"units",
	"parameter",
	"inputs",
	"commands",
	"format",
	"scaling",
}

var (
	_ DeviceRepository = (*CSVRepository)(nil)
	_ DeviceRepository = (*SQLRepository)(nil)
)

// CSVRepository is an in-memory DeviceRepository loaded from CSV.
type CSVRepository struct {
	mu       sync.RWMutex
	elements map[string]*ElementDescriptor
}

// NewCSVRepository creates an empty repository.
func NewCSVRepository() *CSVRepository {
	return &CSVRepository{elements: make(map[string]*ElementDescriptor)}
}

// LoadCSVFile reads a CSV element table from path.
func LoadCSVFile(path string) (*CSVRepository, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("han: open element table: %w", err)
	}
	defer f.Close()
	repo := NewCSVRepository()
	if err := repo.Load(f); err != nil {
		return nil, err
	}
	return repo, nil
}

// Load parses CSV data and adds every row. The load is all or nothing.
func (r *CSVRepository) Load(reader io.Reader) error {
	elements, err := ParseElementCSV(reader)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range elements {
		r.elements[e.Code] = e
	}
	return nil
}

// Put adds or replaces one element.
func (r *CSVRepository) Put(d *ElementDescriptor) error {
	if err := validateDescriptor(d); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.elements[d.Code] = d
	return nil
}

// Codes returns the element codes in the repository.
func (r *CSVRepository) Codes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	codes := make([]string, 0, len(r.elements))
	for c := range r.elements {
		codes = append(codes, c)
	}
	return codes
}

// Lookup implements DeviceRepository.
func (r *CSVRepository) Lookup(_ context.Context, code string) (*ElementDescriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.elements[code]
	if !ok {
		return nil, &FatalError{Op: "lookup element", Err: fmt.Errorf("no element %q", code)}
	}
	cp := *d
	return &cp, nil
}

// ParseElementCSV parses CSV data into element descriptors.
func ParseElementCSV(reader io.Reader) ([]*ElementDescriptor, error) {
	csvReader := csv.NewReader(reader)
	csvReader.TrimLeadingSpace = true
	csvReader.Comment = '#'

	records, err := csvReader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("han: failed to read CSV: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("han: empty CSV file")
	}

	headerMap := make(map[string]int)
	for i, h := range records[0] {
		headerMap[strings.TrimSpace(h)] = i
	}
	for _, field := range []string{"code", "device", "format"} {
		if _, exists := headerMap[field]; !exists {
			return nil, fmt.Errorf("han: missing required field in CSV header: %s", field)
		}
	}

	seen := make(map[string]bool)
	var elements []*ElementDescriptor
	for i, record := range records[1:] {
		rowNum := i + 2
		e, err := parseElementRecord(record, headerMap)
		if err != nil {
			return nil, fmt.Errorf("han: error parsing row %d: %w", rowNum, err)
		}
		if err := validateDescriptor(e); err != nil {
			return nil, fmt.Errorf("han: validation error for row %d: %w", rowNum, err)
		}
		if seen[e.Code] {
			return nil, fmt.Errorf("han: duplicate element code %s at row %d", e.Code, rowNum)
		}
		seen[e.Code] = true
		elements = append(elements, e)
	}
	return elements, nil
}

func parseElementRecord(record []string, headerMap map[string]int) (*ElementDescriptor, error) {
	getField := func(name string) string {
		if idx, exists := headerMap[name]; exists && idx < len(record) {
			return strings.TrimSpace(record[idx])
		}
		return ""
	}

	e := &ElementDescriptor{
		Code:      getField("code"),
		Units:     getField("units"),
		Parameter: getField("parameter"),
		Format:    getField("format"),
		Scaling:   getField("scaling"),
	}
	e.Function = e.Code

	device, err := strconv.ParseUint(getField("device"), 0, 8)
	if err != nil {
		return nil, fmt.Errorf("invalid 'device': %w", err)
	}
	e.Device = uint8(device)

	if s := getField("channel"); s != "" {
		if e.Channel, err = strconv.Atoi(s); err != nil {
			return nil, fmt.Errorf("invalid 'channel': %w", err)
		}
	}
	if e.Inputs, err = ParseAssignments(getField("inputs")); err != nil {
		return nil, fmt.Errorf("invalid 'inputs': %w", err)
	}
	if e.Commands, err = ParseAssignments(getField("commands")); err != nil {
		return nil, fmt.Errorf("invalid 'commands': %w", err)
	}
	return e, nil
}

// WriteElementCSV writes elements as CSV with a header row.
func WriteElementCSV(w io.Writer, elements []*ElementDescriptor) error {
	csvWriter := csv.NewWriter(w)
	if err := csvWriter.Write(csvHeaders); err != nil {
		return fmt.Errorf("han: failed to write CSV header: %w", err)
	}
	for _, e := range elements {
		record := []string{
			e.Code,
			strconv.Itoa(int(e.Device)),
			strconv.Itoa(e.Channel),
			e.Units,
			e.Parameter,
			FormatAssignments(e.Inputs),
			FormatAssignments(e.Commands),
			e.Format,
			e.Scaling,
		}
		if err := csvWriter.Write(record); err != nil {
			return fmt.Errorf("han: failed to write CSV record for %s: %w", e.Code, err)
		}
	}
	csvWriter.Flush()
	return csvWriter.Error()
}

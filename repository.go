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
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Reserved input names of an element's function.
const (
	InputChannel = "CHANNEL"
	InputCommand = "COMMAND"
)

// ElementDescriptor is the device metadata needed to talk to one element:
// where it lives on the bus, which inputs and commands it accepts, how its
// transaction is formatted and how the reply is scaled.
type ElementDescriptor struct {
	Code      string         `json:"code" yaml:"code"`
	Function  string         `json:"function" yaml:"function"`
	Device    uint8          `json:"device" yaml:"device"`       // Node address
	Channel   int            `json:"channel" yaml:"channel"`     // Channel number within the node
	Units     string         `json:"units" yaml:"units"`         // Engineering units of the scaled value
	Parameter string         `json:"parameter" yaml:"parameter"` // Free form parameter column
	Inputs    map[string]int `json:"inputs" yaml:"inputs"`       // Input name -> parameter position
	Commands  map[string]int `json:"commands" yaml:"commands"`   // Command name -> command code
	Format    string         `json:"format" yaml:"format"`       // Format descriptor text
	Scaling   string         `json:"scaling" yaml:"scaling"`     // Scaling expression
}

// DeviceRepository maps an element code to its descriptor. Lookup failures
// are returned as *FatalError.
type DeviceRepository interface {
	Lookup(ctx context.Context, code string) (*ElementDescriptor, error)
}

// ParseAssignments parses "NAME=value,NAME=value" lists. Empty input yields
// an empty map.
func ParseAssignments(s string) (map[string]int, error) {
	out := make(map[string]int)
	s = strings.TrimSpace(s)
	if s == "" {
		return out, nil
	}
	for _, item := range strings.Split(s, ",") {
		kv := strings.SplitN(item, "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("invalid assignment %q", item)
		}
		name := strings.TrimSpace(kv[0])
		if name == "" {
			return nil, fmt.Errorf("empty name in assignment %q", item)
		}
		v, err := strconv.Atoi(strings.TrimSpace(kv[1]))
		if err != nil {
			return nil, fmt.Errorf("invalid value in assignment %q: %w", item, err)
		}
		out[name] = v
	}
	return out, nil
}

// FormatAssignments is the inverse of ParseAssignments, sorted by name.
func FormatAssignments(m map[string]int) string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, k := range names {
		parts[i] = k + "=" + strconv.Itoa(m[k])
	}
	return strings.Join(parts, ",")
}

// validateDescriptor checks the fields every repository must fill.
func validateDescriptor(d *ElementDescriptor) error {
	if d.Code == "" {
		return fmt.Errorf("element code is required")
	}
	if _, err := ParseFormat(d.Format); err != nil {
		return fmt.Errorf("element %s: %w", d.Code, err)
	}
	for name, pos := range d.Inputs {
		if pos < 0 || pos >= maxElementParams {
			return fmt.Errorf("element %s: input %s position %d out of range 0..%d", d.Code, name, pos, maxElementParams-1)
		}
	}
	for name, code := range d.Commands {
		if code < 0 || code > 0xFF {
			return fmt.Errorf("element %s: command %s code %d out of range", d.Code, name, code)
		}
	}
	return nil
}

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
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// ParamSource supplies the values encoded into a formatted transaction.
// Positions with a missing or non-numeric value resolve to 0, which is sent
// to the node as a placeholder for the corresponding return field.
type ParamSource interface {
	Values(n int) []int
}

// Positional supplies parameters in call order.
type Positional []any

// Params builds a Positional source from its arguments.
func Params(v ...any) Positional { return Positional(v) }

// Values implements ParamSource.
func (p Positional) Values(n int) []int {
	out := make([]int, n)
	for i := 0; i < n && i < len(p); i++ {
		out[i] = numericValue(p[i])
	}
	return out
}

// Indexed supplies parameters keyed by field position. When used it is the
// only source of values; there is no merging with positional arguments.
type Indexed map[int]any

// Values implements ParamSource.
func (m Indexed) Values(n int) []int {
	out := make([]int, n)
	for i := 0; i < n; i++ {
		if v, ok := m[i]; ok {
			out[i] = numericValue(v)
		}
	}
	return out
}

// numericValue coerces v to an int. Floats truncate toward zero.
func numericValue(v any) int {
	switch x := v.(type) {
	case int:
		return x
	case int8:
		return int(x)
	case int16:
		return int(x)
	case int32:
		return int(x)
	case int64:
		return int(x)
	case uint:
		return int(x)
	case uint8:
		return int(x)
	case uint16:
		return int(x)
	case uint32:
		return int(x)
	case uint64:
		return int(x)
	case float32:
		return floatValue(float64(x))
	case float64:
		return floatValue(x)
	case json.Number:
		return stringValue(x.String())
	case string:
		return stringValue(x)
	}
	return 0
}

func floatValue(f float64) int {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return int(f)
}

func stringValue(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return int(i)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return floatValue(f)
	}
	return 0
}

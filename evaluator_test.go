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
	"math"
	"strings"
	"testing"
)

func TestExprEvaluator(t *testing.T) {
	values := []FieldValue{ByteValue(4), ByteValue(0), ByteValue(0), SignedWordValue(-250)}
	tests := []struct {
		expr string
		want float64
	}{
		{"return($r[3]/(1.0 * $r[0]));", -62.5},
		{"r[3] / 10", -25},
		{"abs(r[3]) + r[0]", 254},
		{"sqrt(r[0])", 2},
		{"pow(r[0], 2) + fmod(7, 4)", 19},
		{"round(pi() * 100) / 100", 3.14},
		{"", 4},
		{"max(r[0], r[1])", 4},
	}
	e := NewExprEvaluator()
	for _, tt := range tests {
		got, err := e.Evaluate(values, tt.expr)
		if err != nil {
			t.Errorf("Evaluate(%q) failed: %v", tt.expr, err)
			continue
		}
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("Evaluate(%q) = %v, expected %v", tt.expr, got, tt.want)
		}
	}
}

func TestExprEvaluatorErrors(t *testing.T) {
	values := []FieldValue{ByteValue(0), ByteValue(1)}
	tests := []struct {
		expr    string
		wantErr string
	}{
		{"r[0] = 1", "not allowed"},
		{"r[0] +", "function parse error"},
		{"r[0] / r[0]", "returned NaN"},
		{"r[1] / r[0]", "returned +Inf"},
		{"r[0] < r[1]", "not a number"},
		{"r[7]", "function evaluation error"},
	}
	e := NewExprEvaluator()
	for _, tt := range tests {
		_, err := e.Evaluate(values, tt.expr)
		if err == nil {
			t.Errorf("Evaluate(%q) should fail", tt.expr)
			continue
		}
		if !strings.Contains(err.Error(), tt.wantErr) {
			t.Errorf("Evaluate(%q) error %q does not contain %q", tt.expr, err, tt.wantErr)
		}
	}
}

func TestExprEvaluatorCachesPrograms(t *testing.T) {
	e := NewExprEvaluator()
	for i := 0; i < 3; i++ {
		if _, err := e.Evaluate([]FieldValue{ByteValue(uint8(i))}, "r[0] * 2"); err != nil {
			t.Fatalf("Evaluate failed: %v", err)
		}
	}
	if len(e.programs) != 1 {
		t.Errorf("expected one cached program, got %d", len(e.programs))
	}
}

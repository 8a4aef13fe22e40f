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
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// ExpressionEvaluator turns the values of a reply into one scaled number.
type ExpressionEvaluator interface {
	Evaluate(values []FieldValue, expression string) (float64, error)
}

// ExprEvaluator evaluates scaling expressions with expr. The reply values
// are bound to r as floats, so "r[3] / r[1]" divides the fourth value by
// the second. The older "return($r[3]/(1.0 * $r[1]));" form is accepted.
// An empty expression yields r[0].
type ExprEvaluator struct {
	mu       sync.Mutex
	programs map[string]*vm.Program
}

// NewExprEvaluator creates an evaluator with an empty program cache.
func NewExprEvaluator() *ExprEvaluator {
	return &ExprEvaluator{programs: make(map[string]*vm.Program)}
}

// Math functions available to scaling expressions in addition to the expr
// builtins (abs, ceil, floor, round, max, min).
var scalingFuncs = map[string]any{
	"pow":   math.Pow,
	"exp":   math.Exp,
	"sqrt":  math.Sqrt,
	"sin":   math.Sin,
	"cos":   math.Cos,
	"tan":   math.Tan,
	"asin":  math.Asin,
	"acos":  math.Acos,
	"atan":  math.Atan,
	"atan2": math.Atan2,
	"sinh":  math.Sinh,
	"cosh":  math.Cosh,
	"tanh":  math.Tanh,
	"asinh": math.Asinh,
	"acosh": math.Acosh,
	"atanh": math.Atanh,
	"log":   math.Log,
	"log10": math.Log10,
	"fmod":  math.Mod,
	"pi":    func() float64 { return math.Pi },
}

func scalingEnv(r []float64) map[string]any {
	env := make(map[string]any, len(scalingFuncs)+1)
	for k, v := range scalingFuncs {
		env[k] = v
	}
	env["r"] = r
	return env
}

// normalizeExpression strips the statement wrapping of stored expressions.
func normalizeExpression(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimSpace(strings.TrimSuffix(s, ";"))
	if rest, ok := strings.CutPrefix(s, "return"); ok {
		s = strings.TrimSpace(rest)
	}
	s = strings.ReplaceAll(s, "$r", "r")
	if s == "" {
		s = "r[0]"
	}
	return s
}

func (e *ExprEvaluator) compile(expression string) (*vm.Program, error) {
	code := normalizeExpression(expression)
	if strings.Contains(code, "=") {
		return nil, fmt.Errorf("= not allowed in math expression")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if p, ok := e.programs[code]; ok {
		return p, nil
	}
	p, err := expr.Compile(code, expr.Env(scalingEnv(nil)))
	if err != nil {
		return nil, fmt.Errorf("function parse error: %w", err)
	}
	e.programs[code] = p
	return p, nil
}

// Evaluate implements ExpressionEvaluator.
func (e *ExprEvaluator) Evaluate(values []FieldValue, expression string) (float64, error) {
	program, err := e.compile(expression)
	if err != nil {
		return 0, err
	}
	r := make([]float64, len(values))
	for i, v := range values {
		r[i] = v.Float64()
	}
	out, err := expr.Run(program, scalingEnv(r))
	if err != nil {
		return 0, fmt.Errorf("function evaluation error: %w", err)
	}
	var f float64
	switch x := out.(type) {
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	default:
		return 0, fmt.Errorf("expression returned %T, not a number", out)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("returned %v", f)
	}
	return f, nil
}

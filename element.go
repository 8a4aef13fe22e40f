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
	"sync"
)

// maxElementParams is the size of an element's parameter block and the
// longest instruction list an element accepts.
const maxElementParams = 16

// Instructions maps input names of an element's function to their values.
// COMMAND takes a command name, every other input a number.
type Instructions map[string]any

// Element is a named device element: a function on a node, with its
// parameter layout and reply scaling taken from a DeviceRepository.
type Element struct {
	han        HanApi
	eval       ExpressionEvaluator
	desc       ElementDescriptor
	descriptor *FormatDescriptor

	mu     sync.Mutex
	reason string
}

// NewElement looks up code in repo and binds the element to han. A failed
// lookup is returned as-is, normally a *FatalError.
func NewElement(ctx context.Context, repo DeviceRepository, code string, han HanApi, eval ExpressionEvaluator) (*Element, error) {
	d, err := repo.Lookup(ctx, code)
	if err != nil {
		return nil, err
	}
	return NewElementFromDescriptor(d, han, eval)
}

// NewElementFromDescriptor binds an already loaded descriptor to han.
func NewElementFromDescriptor(d *ElementDescriptor, han HanApi, eval ExpressionEvaluator) (*Element, error) {
	if err := validateDescriptor(d); err != nil {
		return nil, &FatalError{Op: "load element", Err: err}
	}
	fd, err := ParseFormat(d.Format)
	if err != nil {
		return nil, &FatalError{Op: "load element " + d.Code, Err: err}
	}
	if eval == nil {
		eval = NewExprEvaluator()
	}
	return &Element{han: han, eval: eval, desc: *d, descriptor: fd}, nil
}

// Code returns the element code.
func (e *Element) Code() string { return e.desc.Code }

// Descriptor returns a copy of the element's metadata.
func (e *Element) Descriptor() ElementDescriptor { return e.desc }

// Inputs returns the input names a caller supplies, CHANNEL excluded.
func (e *Element) Inputs() []string {
	out := make([]string, 0, len(e.desc.Inputs))
	for name := range e.desc.Inputs {
		if name != InputChannel {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Commands returns the valid command names.
func (e *Element) Commands() []string {
	out := make([]string, 0, len(e.desc.Commands))
	for name := range e.desc.Commands {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Device returns the node address.
func (e *Element) Device() uint8 { return e.desc.Device }

// Channel returns the channel number within the node.
func (e *Element) Channel() int { return e.desc.Channel }

// Units returns the engineering units of Transact results.
func (e *Element) Units() string { return e.desc.Units }

// Validate checks an instruction list against the element's inputs.
func (e *Element) Validate(instr Instructions) error {
	if len(instr) > maxElementParams {
		return validationErrorf("too many instructions: %d > %d", len(instr), maxElementParams)
	}
	if v, ok := instr[InputCommand]; ok {
		name, _ := v.(string)
		if _, ok := e.desc.Commands[name]; !ok {
			return validationErrorf("unknown command %v for element %s", v, e.desc.Code)
		}
	}
	for _, name := range e.Inputs() {
		if _, ok := instr[name]; !ok {
			return validationErrorf("missing input %s for element %s", name, e.desc.Code)
		}
	}
	return nil
}

// params lays the instruction list out by input position. CHANNEL is
// filled from the element. Instructions naming no input are ignored.
func (e *Element) params(instr Instructions) Indexed {
	p := make(Indexed, maxElementParams)
	for i := 0; i < maxElementParams; i++ {
		p[i] = 0
	}
	if pos, ok := e.desc.Inputs[InputChannel]; ok {
		p[pos] = e.desc.Channel
	}
	for name, v := range instr {
		pos, ok := e.desc.Inputs[name]
		if !ok || name == InputChannel {
			continue
		}
		if name == InputCommand {
			s, _ := v.(string)
			p[pos] = e.desc.Commands[s]
			continue
		}
		p[pos] = v
	}
	return p
}

// Transact validates instr, runs the element's transaction and returns the
// scaled result.
func (e *Element) Transact(instr Instructions) (float64, error) {
	if err := e.Validate(instr); err != nil {
		return 0, e.fail("Validation Failed", err)
	}
	values, err := e.han.PTransactDescriptor(e.desc.Device, e.descriptor, e.params(instr))
	if err != nil {
		return 0, e.fail(reasonOf(err), err)
	}
	v, err := e.eval.Evaluate(values, e.desc.Scaling)
	if err != nil {
		return 0, e.fail(err.Error(), fmt.Errorf("han: element %s: %w", e.desc.Code, err))
	}
	return v, nil
}

func (e *Element) fail(reason string, err error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reason = reason
	return err
}

// GetLastError returns the reason of the last failed Transact.
func (e *Element) GetLastError() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.reason
}

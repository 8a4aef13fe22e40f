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
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Reading is one scaled element value.
type Reading struct {
	Code  string    `json:"code" yaml:"code"`
	Value float64   `json:"value" yaml:"value"`
	Units string    `json:"units" yaml:"units"`
	Time  time.Time `json:"time" yaml:"time"`
}

// DefaultPollInterval is used when a poller is created with a non-positive
// interval.
const DefaultPollInterval = 5 * time.Second

// OnDataFunc is a callback type for pushing readings
type OnDataFunc func([]Reading)

// OnErrorFunc is a callback type for error reporting
type OnErrorFunc func(code string, err error)

type polledElement struct {
	element *Element
	instr   Instructions
}

// ElementPoller reads a set of elements at a fixed interval. Elements are
// read one after another since a session carries one exchange at a time.
type ElementPoller struct {
	logger   zerolog.Logger
	interval time.Duration

	mu       sync.Mutex // Protects elements
	elements []polledElement

	onData  atomic.Value // Stores OnDataFunc callback
	onError atomic.Value // Stores OnErrorFunc callback

	stopCh  chan struct{}
	wg      sync.WaitGroup
	started bool
}

// NewElementPoller creates a poller with the given interval. A non-positive
// interval falls back to DefaultPollInterval.
func NewElementPoller(interval time.Duration, logger zerolog.Logger) *ElementPoller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &ElementPoller{
		logger:   logger,
		interval: interval,
	}
}

// Add registers an element with the instructions used to read it.
func (p *ElementPoller) Add(e *Element, instr Instructions) error {
	if err := e.Validate(instr); err != nil {
		return fmt.Errorf("han: poll %s: %w", e.Code(), err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, pe := range p.elements {
		if pe.element.Code() == e.Code() {
			return fmt.Errorf("han: duplicate element: %s", e.Code())
		}
	}
	p.elements = append(p.elements, polledElement{element: e, instr: instr})
	return nil
}

// Interval returns the time between polling rounds.
func (p *ElementPoller) Interval() time.Duration {
	return p.interval
}

// SetOnData sets the callback for data events
func (p *ElementPoller) SetOnData(fn OnDataFunc) {
	p.onData.Store(fn)
}

// SetOnError sets the callback for error events
func (p *ElementPoller) SetOnError(fn OnErrorFunc) {
	p.onError.Store(fn)
}

// PollOnce reads every element once and dispatches the results.
func (p *ElementPoller) PollOnce() []Reading {
	p.mu.Lock()
	elements := append([]polledElement(nil), p.elements...)
	p.mu.Unlock()

	readings := make([]Reading, 0, len(elements))
	for _, pe := range elements {
		v, err := pe.element.Transact(pe.instr)
		if err != nil {
			p.logger.Warn().Err(err).Str("element", pe.element.Code()).Msg("han: poll failed")
			if cb := p.onError.Load(); cb != nil {
				cb.(OnErrorFunc)(pe.element.Code(), err)
			}
			continue
		}
		readings = append(readings, Reading{
			Code:  pe.element.Code(),
			Value: v,
			Units: pe.element.Units(),
			Time:  time.Now(),
		})
	}
	if len(readings) > 0 {
		if cb := p.onData.Load(); cb != nil {
			cb.(OnDataFunc)(readings)
		}
	}
	return readings
}

// Start initiates the polling process.
func (p *ElementPoller) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true
	p.stopCh = make(chan struct{})
	p.wg.Add(1)
	go p.poll(p.stopCh)
}

// poll runs the polling loop.
func (p *ElementPoller) poll(stopCh <-chan struct{}) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			p.PollOnce()
		}
	}
}

// Stop stops the polling loop and waits for the current round to finish.
func (p *ElementPoller) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	close(p.stopCh)
	p.mu.Unlock()
	p.wg.Wait()
}

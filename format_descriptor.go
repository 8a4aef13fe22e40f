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
	"strconv"
	"strings"
	"sync"
)

// FormatDescriptor is a parsed format string: a command code plus an ordered
// list of field tags. The same tag sequence lays out both the outbound
// parameters and the inbound reply values.
//
// Format strings start with "0:" followed by a 2 digit hex command and then
// zero or more field tags (B, I or U), e.g. "0:12BBBI".
type FormatDescriptor struct {
	text    string
	command uint8
	fields  []FieldType
}

// ParseFormat validates and parses a format string.
func ParseFormat(text string) (*FormatDescriptor, error) {
	if !strings.HasPrefix(text, FormatSentinel) {
		return nil, validationErrorf("malformed header in format %q", text)
	}
	rest := text[len(FormatSentinel):]
	if len(rest) < 2 || !isHexString(rest[:2]) {
		return nil, validationErrorf("malformed command in format %q", text)
	}
	cmd, _ := strconv.ParseUint(rest[:2], 16, 8)

	tags := rest[2:]
	fields := make([]FieldType, 0, len(tags))
	for i := 0; i < len(tags); i++ {
		t := FieldType(tags[i])
		if !t.Valid() {
			return nil, validationErrorf("unrecognized format code %q at position %d in format %q",
				rune(tags[i]), len(FormatSentinel)+2+i, text)
		}
		fields = append(fields, t)
	}
	return &FormatDescriptor{text: text, command: uint8(cmd), fields: fields}, nil
}

// MustParseFormat is like ParseFormat but panics on error. Intended for
// descriptors compiled into a program.
func MustParseFormat(text string) *FormatDescriptor {
	d, err := ParseFormat(text)
	if err != nil {
		panic(err)
	}
	return d
}

// Command returns the embedded command code.
func (d *FormatDescriptor) Command() uint8 { return d.command }

// NumFields returns the number of field tags.
func (d *FormatDescriptor) NumFields() int { return len(d.fields) }

// Fields returns a copy of the field tags in order.
func (d *FormatDescriptor) Fields() []FieldType {
	out := make([]FieldType, len(d.fields))
	copy(out, d.fields)
	return out
}

// ReplyWidth returns the number of payload hex characters Decode consumes.
func (d *FormatDescriptor) ReplyWidth() int {
	n := 0
	for _, t := range d.fields {
		n += t.Width()
	}
	return n
}

func (d *FormatDescriptor) String() string { return d.text }

// Encode renders one value per field tag. Missing trailing values encode as 0.
func (d *FormatDescriptor) Encode(values []int) (string, error) {
	var sb strings.Builder
	sb.Grow(d.ReplyWidth())
	for i, t := range d.fields {
		v := 0
		if i < len(values) {
			v = values[i]
		}
		s, err := EncodeField(t, v)
		if err != nil {
			return "", validationErrorf("parameter %d: %s", i, err.(*ValidationError).Reason)
		}
		sb.WriteString(s)
	}
	return sb.String(), nil
}

// Decode breaks a reply payload out into values by replaying the tags.
func (d *FormatDescriptor) Decode(payload string) ([]FieldValue, error) {
	values := make([]FieldValue, 0, len(d.fields))
	pos := 0
	for i, t := range d.fields {
		if !t.Valid() {
			return nil, &FieldDecodeError{Field: i, Type: t, Position: pos, Reason: "unrecognized format code"}
		}
		if pos+t.Width() > len(payload) {
			return nil, &FieldDecodeError{Field: i, Type: t, Position: pos,
				Reason: "reply shorter than format (" + strconv.Itoa(len(payload)) + " hex characters)"}
		}
		v, err := DecodeField(t, payload[pos:pos+t.Width()])
		if err != nil {
			fe := err.(*FieldDecodeError)
			fe.Field = i
			fe.Position += pos
			return nil, fe
		}
		values = append(values, v)
		pos += t.Width()
	}
	return values, nil
}

// FormatCache parses each distinct format string once.
type FormatCache struct {
	mu      sync.RWMutex
	entries map[string]*FormatDescriptor
}

// NewFormatCache creates an empty cache.
func NewFormatCache() *FormatCache {
	return &FormatCache{entries: make(map[string]*FormatDescriptor)}
}

// Get returns the cached descriptor for text, parsing it on first use.
// Malformed formats are not cached.
func (c *FormatCache) Get(text string) (*FormatDescriptor, error) {
	c.mu.RLock()
	d, ok := c.entries[text]
	c.mu.RUnlock()
	if ok {
		return d, nil
	}
	d, err := ParseFormat(text)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.entries[text] = d
	c.mu.Unlock()
	return d, nil
}

// Len returns the number of cached descriptors.
func (c *FormatCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

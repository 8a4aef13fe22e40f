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
	"strconv"
)

// FieldType is a format descriptor tag. It governs both the wire width of a
// field and the numeric interpretation applied on decode.
type FieldType byte

const (
	FieldByte         FieldType = 'B' // 8 bit byte
	FieldSignedWord   FieldType = 'I' // 16 bit signed integer, little endian
	FieldUnsignedWord FieldType = 'U' // 16 bit unsigned integer, little endian
)

// Valid reports whether t is a known tag.
func (t FieldType) Valid() bool {
	switch t {
	case FieldByte, FieldSignedWord, FieldUnsignedWord:
		return true
	}
	return false
}

// Width returns the number of hex characters the field occupies on the wire.
func (t FieldType) Width() int {
	switch t {
	case FieldByte:
		return 2
	case FieldSignedWord, FieldUnsignedWord:
		return 4
	}
	return 0
}

func (t FieldType) String() string {
	switch t {
	case FieldByte:
		return "byte"
	case FieldSignedWord:
		return "int16"
	case FieldUnsignedWord:
		return "uint16"
	}
	return fmt.Sprintf("unknown(%q)", rune(t))
}

// valueRange returns the inclusive range accepted for encoding.
func (t FieldType) valueRange() (int, int) {
	switch t {
	case FieldByte:
		return 0, 0xFF
	case FieldSignedWord:
		return -32768, 32767
	case FieldUnsignedWord:
		return 0, 0xFFFF
	}
	return 0, -1
}

// FieldValue is one decoded reply field.
type FieldValue struct {
	Type  FieldType `json:"type" yaml:"type"`
	Value int32     `json:"value" yaml:"value"`
}

// Int returns the value as an int.
func (v FieldValue) Int() int { return int(v.Value) }

// Float64 returns the value as a float64, for scaling expressions.
func (v FieldValue) Float64() float64 { return float64(v.Value) }

func (v FieldValue) String() string {
	return strconv.Itoa(int(v.Value))
}

// ByteValue, SignedWordValue and UnsignedWordValue build FieldValues.
func ByteValue(b uint8) FieldValue          { return FieldValue{Type: FieldByte, Value: int32(b)} }
func SignedWordValue(w int16) FieldValue    { return FieldValue{Type: FieldSignedWord, Value: int32(w)} }
func UnsignedWordValue(w uint16) FieldValue { return FieldValue{Type: FieldUnsignedWord, Value: int32(w)} }

// EncodeField renders v as hex for the given tag. Words go out low byte
// first regardless of signedness. Values outside the tag's range are
// rejected rather than masked.
func EncodeField(t FieldType, v int) (string, error) {
	if !t.Valid() {
		return "", validationErrorf("unrecognized format code %q", rune(t))
	}
	lo, hi := t.valueRange()
	if v < lo || v > hi {
		return "", validationErrorf("value %d out of range for %s field (%d..%d)", v, t, lo, hi)
	}
	if t == FieldByte {
		return fmt.Sprintf("%02X", v), nil
	}
	return fmt.Sprintf("%02X%02X", v&0xFF, (v>>8)&0xFF), nil
}

// DecodeField decodes exactly t.Width() hex characters from s.
func DecodeField(t FieldType, s string) (FieldValue, error) {
	if !t.Valid() {
		return FieldValue{}, &FieldDecodeError{Type: t, Reason: "unrecognized format code"}
	}
	if len(s) < t.Width() {
		return FieldValue{}, &FieldDecodeError{Type: t, Reason: fmt.Sprintf("need %d hex characters, have %d", t.Width(), len(s))}
	}
	low, err := decodeHexByte(s[0:2])
	if err != nil {
		return FieldValue{}, &FieldDecodeError{Type: t, Reason: err.Error()}
	}
	if t == FieldByte {
		return ByteValue(low), nil
	}
	high, err := decodeHexByte(s[2:4])
	if err != nil {
		return FieldValue{}, &FieldDecodeError{Type: t, Position: 2, Reason: err.Error()}
	}
	if t == FieldSignedWord {
		return FieldValue{Type: t, Value: int32(ToSigned16(low, high))}, nil
	}
	return FieldValue{Type: t, Value: int32(int(high)*256 + int(low))}, nil
}

// ToSigned16 returns a signed 16 bit quantity from two byte values.
func ToSigned16(low, high uint8) int {
	res := int(high)*256 + int(low)
	if res > 32767 {
		res -= 65536
	}
	return res
}

// decodeHexByte parses a two character hex group.
func decodeHexByte(s string) (uint8, error) {
	if len(s) != 2 {
		return 0, fmt.Errorf("invalid hex group %q", s)
	}
	v, err := strconv.ParseUint(s, 16, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid hex group %q", s)
	}
	return uint8(v), nil
}

// isHexString reports whether s is non-empty and all hex digits.
func isHexString(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F') {
			return false
		}
	}
	return true
}

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
	"errors"
	"testing"
)

func TestEncodeField(t *testing.T) {
	testCases := []struct {
		typ  FieldType
		v    int
		want string
	}{
		{FieldByte, 0, "00"},
		{FieldByte, 255, "FF"},
		{FieldSignedWord, 10, "0A00"},
		{FieldSignedWord, -1, "FFFF"},
		{FieldSignedWord, -32768, "0080"},
		{FieldUnsignedWord, 0x1234, "3412"},
		{FieldUnsignedWord, 65535, "FFFF"},
	}
	for _, tc := range testCases {
		got, err := EncodeField(tc.typ, tc.v)
		if err != nil {
			t.Fatalf("EncodeField(%s, %d) failed: %v", tc.typ, tc.v, err)
		}
		if got != tc.want {
			t.Errorf("EncodeField(%s, %d) = %q, expected %q", tc.typ, tc.v, got, tc.want)
		}
	}
}

func TestEncodeFieldRejectsOverflow(t *testing.T) {
	testCases := []struct {
		typ FieldType
		v   int
	}{
		{FieldByte, 256},
		{FieldByte, -1},
		{FieldSignedWord, 32768},
		{FieldSignedWord, -32769},
		{FieldUnsignedWord, 65536},
		{FieldUnsignedWord, -1},
		{FieldType('X'), 0},
	}
	for _, tc := range testCases {
		_, err := EncodeField(tc.typ, tc.v)
		var ve *ValidationError
		if !errors.As(err, &ve) {
			t.Errorf("EncodeField(%s, %d) returned %v, expected a ValidationError", tc.typ, tc.v, err)
		}
	}
}

func TestSignedWordRoundTrip(t *testing.T) {
	for v := -32768; v <= 32767; v++ {
		s, err := EncodeField(FieldSignedWord, v)
		if err != nil {
			t.Fatalf("EncodeField(%d) failed: %v", v, err)
		}
		got, err := DecodeField(FieldSignedWord, s)
		if err != nil {
			t.Fatalf("DecodeField(%q) failed: %v", s, err)
		}
		if got.Int() != v {
			t.Fatalf("round trip of %d gave %d", v, got.Int())
		}
	}
}

func TestUnsignedWordRoundTrip(t *testing.T) {
	for v := 0; v <= 65535; v++ {
		s, err := EncodeField(FieldUnsignedWord, v)
		if err != nil {
			t.Fatalf("EncodeField(%d) failed: %v", v, err)
		}
		got, err := DecodeField(FieldUnsignedWord, s)
		if err != nil {
			t.Fatalf("DecodeField(%q) failed: %v", s, err)
		}
		if got.Int() != v {
			t.Fatalf("round trip of %d gave %d", v, got.Int())
		}
	}
}

func TestToSigned16(t *testing.T) {
	testCases := []struct {
		low, high uint8
		want      int
	}{
		{0x00, 0x00, 0},
		{0xFF, 0x7F, 32767},
		{0x00, 0x80, -32768},
		{0xFF, 0xFF, -1},
		{0x0A, 0x00, 10},
	}
	for _, tc := range testCases {
		if got := ToSigned16(tc.low, tc.high); got != tc.want {
			t.Errorf("ToSigned16(%#02x, %#02x) = %d, expected %d", tc.low, tc.high, got, tc.want)
		}
	}
}

func TestDecodeFieldErrors(t *testing.T) {
	testCases := []struct {
		name string
		typ  FieldType
		in   string
	}{
		{"short byte", FieldByte, "F"},
		{"short word", FieldUnsignedWord, "0A0"},
		{"non hex low", FieldSignedWord, "ZZ00"},
		{"non hex high", FieldSignedWord, "00ZZ"},
		{"bad tag", FieldType('Q'), "00"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeField(tc.typ, tc.in)
			var fe *FieldDecodeError
			if !errors.As(err, &fe) {
				t.Fatalf("expected a FieldDecodeError, got %v", err)
			}
		})
	}
}

func TestFieldTypeWidth(t *testing.T) {
	if FieldByte.Width() != 2 || FieldSignedWord.Width() != 4 || FieldUnsignedWord.Width() != 4 {
		t.Errorf("unexpected widths: B=%d I=%d U=%d", FieldByte.Width(), FieldSignedWord.Width(), FieldUnsignedWord.Width())
	}
	if FieldType('X').Valid() {
		t.Error("X should not be a valid field type")
	}
}

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

func TestPackCall(t *testing.T) {
	p := NewTextPackager("")
	for n := 0; n <= MaxRawParams; n++ {
		params := make([]uint8, n)
		for i := range params {
			params[i] = uint8(i * 17)
		}
		cmd, err := p.PackCall(0x06, 0x12, params)
		if err != nil {
			t.Fatalf("PackCall with %d params failed: %v", n, err)
		}
		if len(cmd) != 6+2*n {
			t.Errorf("PackCall with %d params has length %d, expected %d", n, len(cmd), 6+2*n)
		}
		if cmd[:6] != "CA0612" {
			t.Errorf("PackCall prefix = %q", cmd[:6])
		}
	}
	cmd, _ := p.PackCall(0xAB, 0x01, []uint8{0x0F, 0xF0})
	if cmd != "CAAB010FF0" {
		t.Errorf("PackCall = %q, expected CAAB010FF0", cmd)
	}
}

func TestPackCallTooManyParams(t *testing.T) {
	p := NewTextPackager("")
	_, err := p.PackCall(1, 2, make([]uint8, MaxRawParams+1))
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected a ValidationError, got %v", err)
	}
}

func TestPackFormattedWithTerminator(t *testing.T) {
	p := NewTextPackager("\n")
	cmd, err := p.PackFormatted(0x06, MustParseFormat("0:12BBBI"), []int{1, 0, 0, 0})
	if err != nil {
		t.Fatalf("PackFormatted failed: %v", err)
	}
	if cmd != "CA06120100000000\n" {
		t.Errorf("PackFormatted = %q", cmd)
	}
	if p.PackControl("IE") != "IE\n" {
		t.Errorf("PackControl = %q", p.PackControl("IE"))
	}
}

func TestUnpack(t *testing.T) {
	p := NewTextPackager("")
	r, err := p.Unpack([]byte("RS06120100000A00\r\n"))
	if err != nil {
		t.Fatalf("Unpack failed: %v", err)
	}
	if r.Status() != "RS" || r.Payload() != "0100000A00" {
		t.Errorf("status %q payload %q", r.Status(), r.Payload())
	}
	b, err := r.Bytes()
	if err != nil {
		t.Fatalf("Bytes failed: %v", err)
	}
	assertBytesEqual(t, []uint8{0x01, 0x00, 0x00, 0x0A, 0x00}, b)

	empty, err := p.Unpack([]byte("RS0612\n"))
	if err != nil {
		t.Fatalf("Unpack failed: %v", err)
	}
	if b, _ := empty.Bytes(); len(b) != 0 {
		t.Errorf("expected no payload bytes, got %v", b)
	}
}

func TestUnpackErrors(t *testing.T) {
	p := NewTextPackager("")
	tests := []struct {
		line string
		code string
	}{
		{"ER\n", "ER"},
		{"CE05\n", "CE"},
		{"X\n", "X"},
	}
	for _, tt := range tests {
		_, err := p.Unpack([]byte(tt.line))
		var pe *ProtocolError
		if !errors.As(err, &pe) {
			t.Errorf("Unpack(%q) returned %v, expected a ProtocolError", tt.line, err)
			continue
		}
		if pe.Code != tt.code {
			t.Errorf("Unpack(%q) code = %q, expected %q", tt.line, pe.Code, tt.code)
		}
	}
}

func TestReplyBytesOddLength(t *testing.T) {
	p := NewTextPackager("")
	r, _ := p.Unpack([]byte("RS0612ABC\n"))
	var fe *FieldDecodeError
	if _, err := r.Bytes(); !errors.As(err, &fe) {
		t.Errorf("expected a FieldDecodeError, got %v", err)
	}
}

func TestParseInterruptEvent(t *testing.T) {
	ev, err := ParseInterruptEvent([]byte("EI0701FF10\n"))
	if err != nil {
		t.Fatalf("ParseInterruptEvent failed: %v", err)
	}
	if ev.Address != 0x07 || ev.Status != [3]uint8{0x01, 0xFF, 0x10} {
		t.Errorf("unexpected event %+v", ev)
	}
	if _, err := ParseInterruptEvent([]byte("EI07\n")); err == nil {
		t.Error("expected an error for a short event")
	}
	if _, err := ParseInterruptEvent([]byte("RS0612\n")); err == nil {
		t.Error("expected an error for a non interrupt line")
	}
}

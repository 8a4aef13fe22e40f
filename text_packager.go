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
	"strings"
)

// TextPackager builds gateway commands and splits gateway replies.
//
// Request: "CA" + address (2 hex) + command (2 hex) + parameters (2 hex each).
// Reply:   status (2 chars) + echoed address + echoed command + payload, newline terminated.
type TextPackager struct {
	terminator string
}

// NewTextPackager creates a packager. terminator is appended to every
// command; the gateway accepts unterminated commands, so it is usually "".
func NewTextPackager(terminator string) *TextPackager {
	return &TextPackager{terminator: terminator}
}

// PackCall builds a raw call-address command.
func (p *TextPackager) PackCall(address, command uint8, params []uint8) (string, error) {
	if len(params) > MaxRawParams {
		return "", validationErrorf("invalid number of parameters: %d, maximum %d", len(params), MaxRawParams)
	}
	var sb strings.Builder
	sb.Grow(6 + 2*len(params) + len(p.terminator))
	fmt.Fprintf(&sb, "%s%02X%02X", RequestSentinel, address, command)
	for _, b := range params {
		fmt.Fprintf(&sb, "%02X", b)
	}
	sb.WriteString(p.terminator)
	return sb.String(), nil
}

// PackFormatted builds a call-address command from a descriptor and the
// already resolved parameter values.
func (p *TextPackager) PackFormatted(address uint8, d *FormatDescriptor, values []int) (string, error) {
	body, err := d.Encode(values)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%02X%02X%s%s", RequestSentinel, address, d.Command(), body, p.terminator), nil
}

// PackControl builds a bare two letter control command such as IE or ID.
func (p *TextPackager) PackControl(cmd string) string {
	return cmd + p.terminator
}

// Reply is a successful gateway reply line.
type Reply struct {
	line string
}

// Status returns the two character status, always RS for a Reply.
func (r Reply) Status() string { return r.line[:2] }

// Line returns the reply without its terminator.
func (r Reply) Line() string { return r.line }

// Payload returns the hex text starting at ReplyPayloadOffset.
func (r Reply) Payload() string {
	if len(r.line) <= ReplyPayloadOffset {
		return ""
	}
	return r.line[ReplyPayloadOffset:]
}

// Bytes decodes the payload two hex characters per byte.
func (r Reply) Bytes() ([]uint8, error) {
	payload := r.Payload()
	if len(payload)%2 != 0 {
		return nil, &FieldDecodeError{Field: len(payload) / 2, Type: FieldByte, Position: len(payload) - 1,
			Reason: "odd number of hex characters in reply"}
	}
	out := make([]uint8, 0, len(payload)/2)
	for i := 0; i < len(payload); i += 2 {
		b, err := decodeHexByte(payload[i : i+2])
		if err != nil {
			return nil, &FieldDecodeError{Field: i / 2, Type: FieldByte, Position: i, Reason: err.Error()}
		}
		out = append(out, b)
	}
	return out, nil
}

// Unpack validates a reply line. Any status other than RS is returned as a
// *ProtocolError carrying the two characters received.
func (p *TextPackager) Unpack(raw []byte) (Reply, error) {
	line := trimLine(raw)
	if len(line) < 2 {
		return Reply{}, &ProtocolError{Code: line, Line: line}
	}
	if code := line[:2]; code != ReplySentinel {
		return Reply{}, &ProtocolError{Code: code, Line: line}
	}
	return Reply{line: line}, nil
}

// InterruptEvent is an unsolicited "EI" line sent by the gateway while
// interrupt reporting is enabled.
type InterruptEvent struct {
	Address uint8    `json:"address" yaml:"address"`
	Status  [3]uint8 `json:"status" yaml:"status"` // Status[0] is the interrupt reason code
}

// ParseInterruptEvent decodes "EI" + address + three status bytes.
func ParseInterruptEvent(raw []byte) (InterruptEvent, error) {
	line := trimLine(raw)
	if !strings.HasPrefix(line, StatusInterrupt) {
		return InterruptEvent{}, fmt.Errorf("han: not an interrupt event: %q", line)
	}
	if len(line) < 10 {
		return InterruptEvent{}, fmt.Errorf("han: short interrupt event: %q", line)
	}
	var ev InterruptEvent
	var err error
	if ev.Address, err = decodeHexByte(line[2:4]); err != nil {
		return InterruptEvent{}, fmt.Errorf("han: interrupt event address: %w", err)
	}
	for i := range ev.Status {
		off := 4 + 2*i
		if ev.Status[i], err = decodeHexByte(line[off : off+2]); err != nil {
			return InterruptEvent{}, fmt.Errorf("han: interrupt event status %d: %w", i, err)
		}
	}
	return ev, nil
}

func isInterruptLine(raw []byte) bool {
	return len(raw) >= 2 && string(raw[:2]) == StatusInterrupt
}

func trimLine(raw []byte) string {
	return strings.TrimRight(string(raw), "\r\n")
}

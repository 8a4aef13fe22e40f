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
	"fmt"
)

// ErrTimedOut is returned when no reply line arrives before the read deadline.
var ErrTimedOut = errors.New("han: timed out waiting for response")

// ErrClosed is returned by operations on a closed transporter or handler.
var ErrClosed = errors.New("han: transporter is closed")

// ConnectError reports that the gateway session was never established.
type ConnectError struct {
	Address string
	Err     error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("han: connect to %s failed: %v", e.Address, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// ConnectionBrokenError reports that the stream failed in the middle of an exchange.
type ConnectionBrokenError struct {
	Op  string // "write" or "read"
	Err error
}

func (e *ConnectionBrokenError) Error() string {
	return fmt.Sprintf("han: connection broken during %s: %v", e.Op, e.Err)
}

func (e *ConnectionBrokenError) Unwrap() error { return e.Err }

// ProtocolError carries the status the gateway replied with instead of RS.
type ProtocolError struct {
	Code string // First two characters of the reply
	Line string // Complete reply line without terminator
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("han: received error %s from node", e.Code)
}

// ValidationError is raised before any network I/O for malformed input.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "han: " + e.Reason
}

func validationErrorf(format string, args ...any) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// FieldDecodeError reports a reply payload that does not match its descriptor.
type FieldDecodeError struct {
	Field    int       // Index of the field being decoded
	Type     FieldType // Tag of the field being decoded
	Position int       // Character offset into the payload
	Reason   string
}

func (e *FieldDecodeError) Error() string {
	return fmt.Sprintf("han: problem processing return values: field %d (%s) at offset %d: %s",
		e.Field, e.Type, e.Position, e.Reason)
}

// FatalError marks a collaborator failure that the caller must treat as
// non-recoverable, such as a failed device metadata lookup.
type FatalError struct {
	Op  string
	Err error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("han: fatal: %s: %v", e.Op, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// IsFatal reports whether err, or any error it wraps, is a FatalError.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}

// IsTimeout reports whether err is a reply timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimedOut)
}

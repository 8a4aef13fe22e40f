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
	"time"

	"github.com/rs/zerolog"
)

// HAN gateway text protocol constants
const (
	DefaultPort         = 1129             // Gateway TCP port
	DefaultReplyTimeout = 10 * time.Second // Deadline for a reply line
	MaxReplyLength      = 49               // Bytes read per reply line, newline included
	MaxRawParams        = 17               // Parameter ceiling of a raw transaction
	RequestSentinel     = "CA"             // Call-address command
	ReplySentinel       = "RS"             // Successful reply status
	FormatSentinel      = "0:"             // Format descriptor header
	ReplyPayloadOffset  = 6                // RS + echoed address + echoed command
)

// Gateway status codes other than ReplySentinel.
const (
	StatusError     = "ER" // Gateway could not parse the command
	StatusCommError = "CE" // Bus communication error, followed by a code
	StatusOK        = "OK" // Acknowledgement of IE/ID
	StatusInterrupt = "EI" // Unsolicited interrupt event
)

const (
	interruptEnableCmd  = "IE"
	interruptDisableCmd = "ID"
)

// HanApi defines the interface for HAN gateway client operations.
type HanApi interface {
	// Handler API
	GetLastError() string            // GetLastError returns the reason of the last failed call
	GetMode() string                 // GetMode returns the transport in use: "tcp" or "serial"
	SetLogger(logger zerolog.Logger) // SetLogger sets the logger for the client
	// Transactions
	// Transact sends a raw command and returns the reply bytes.
	Transact(address, command uint8, params ...uint8) ([]uint8, error)
	// PTransact runs a transaction described by a format string.
	PTransact(address uint8, format string, params ParamSource) ([]FieldValue, error)
	// PTransactDescriptor runs a transaction with an already parsed descriptor.
	PTransactDescriptor(address uint8, d *FormatDescriptor, params ParamSource) ([]FieldValue, error)
	// Interrupt reporting
	EnableInterrupts() error  // EnableInterrupts asks the gateway to forward node interrupts
	DisableInterrupts() error // DisableInterrupts stops interrupt forwarding
	SetOnInterrupt(fn OnInterruptFunc)
	// Lifecycle
	Close() error
}

// OnInterruptFunc receives interrupt events read while a transaction waits for its reply.
type OnInterruptFunc func(InterruptEvent)

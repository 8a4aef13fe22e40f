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
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// maxInterruptLines bounds how many EI lines one exchange will skip over
// while waiting for its reply.
const maxInterruptLines = 16

var _ HanApi = (*HanHandler)(nil)

var (
	_ HanTransporter = (*TCPTransporter)(nil)
	_ HanTransporter = (*LineTransport)(nil)
)

// HanHandler implements the HanApi interface on top of a HanTransporter.
//
// Every call is one strict request/reply exchange. A timeout ends the call
// but leaves the connection as it is: a late reply to a timed out request
// is read by the next call, which then sees the wrong reply. Callers that
// hit ErrTimedOut should close the handler and open a new one.
type HanHandler struct {
	logger      zerolog.Logger
	transporter HanTransporter
	packager    *TextPackager
	formats     *FormatCache
	timeout     time.Duration
	mode        string

	mu          sync.Mutex // One exchange in flight
	lastError   string
	interrupts  bool
	onInterrupt OnInterruptFunc
	pending     []InterruptEvent // Read during an exchange, delivered after it
}

// HandlerConfig tunes a HanHandler.
type HandlerConfig struct {
	ReplyTimeout time.Duration // Defaults to DefaultReplyTimeout
	Terminator   string        // Appended to every command, usually ""
	Logger       *zerolog.Logger
}

// NewHanHandler creates a handler over an established transporter.
func NewHanHandler(t HanTransporter, cfg HandlerConfig) *HanHandler {
	if cfg.ReplyTimeout <= 0 {
		cfg.ReplyTimeout = DefaultReplyTimeout
	}
	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	mode := "line"
	switch t.(type) {
	case *TCPTransporter:
		mode = "tcp"
	case *LineTransport:
		mode = "serial"
	}
	return &HanHandler{
		logger:      logger,
		transporter: t,
		packager:    NewTextPackager(cfg.Terminator),
		formats:     NewFormatCache(),
		timeout:     cfg.ReplyTimeout,
		mode:        mode,
	}
}

// NewHanTCPHandler connects to a gateway over TCP. Connection failure is
// returned to the caller, never fatal here.
func NewHanTCPHandler(tcp TCPConfig, cfg HandlerConfig) (*HanHandler, error) {
	if tcp.Logger == nil {
		tcp.Logger = cfg.Logger
	}
	t, err := DialTCP(tcp)
	if err != nil {
		return nil, err
	}
	return NewHanHandler(t, cfg), nil
}

// NewHanSerialHandler opens a gateway console on a serial line.
func NewHanSerialHandler(sc SerialConfig, cfg HandlerConfig) (*HanHandler, error) {
	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	t, err := OpenSerial(sc, logger)
	if err != nil {
		return nil, err
	}
	return NewHanHandler(t, cfg), nil
}

// GetMode implements HanApi.
func (h *HanHandler) GetMode() string {
	return h.mode
}

// SetLogger implements HanApi.
func (h *HanHandler) SetLogger(logger zerolog.Logger) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.logger = logger
}

// GetLastError returns the reason of the last failed call. It is never
// cleared by a successful call; check the call's own error first.
func (h *HanHandler) GetLastError() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastError
}

// setLastError records err as the last failure reason and returns it.
// Callers hold h.mu.
func (h *HanHandler) setLastError(err error) error {
	h.lastError = reasonOf(err)
	h.logger.Debug().Err(err).Str("remote", h.transporter.RemoteAddr()).Msg("han: transaction failed")
	return err
}

// SetOnInterrupt registers the callback for EI lines read during exchanges.
// The callback runs after the exchange has released the handler, so it may
// call back into the handler.
func (h *HanHandler) SetOnInterrupt(fn OnInterruptFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onInterrupt = fn
}

// Transact sends a raw command with up to MaxRawParams parameter bytes and
// returns the reply payload as bytes.
func (h *HanHandler) Transact(address, command uint8, params ...uint8) ([]uint8, error) {
	defer h.deliverInterrupts()
	h.mu.Lock()
	defer h.mu.Unlock()

	cmd, err := h.packager.PackCall(address, command, params)
	if err != nil {
		return nil, h.setLastError(err)
	}
	reply, err := h.exchange(cmd)
	if err != nil {
		return nil, h.setLastError(err)
	}
	data, err := reply.Bytes()
	if err != nil {
		return nil, h.setLastError(err)
	}
	return data, nil
}

// PTransact parses (or reuses) format and runs the transaction it describes.
// Format strings start with "0:" followed by a 2 digit hex command and then
// zero or more field tags: B 8 bit byte, I 16 bit signed, U 16 bit unsigned.
// If params lacks a value for a field, 0 is sent as a placeholder for the
// corresponding return value.
func (h *HanHandler) PTransact(address uint8, format string, params ParamSource) ([]FieldValue, error) {
	d, err := h.formats.Get(format)
	if err != nil {
		h.mu.Lock()
		defer h.mu.Unlock()
		return nil, h.setLastError(err)
	}
	return h.PTransactDescriptor(address, d, params)
}

// PTransactDescriptor runs a transaction with an already parsed descriptor
// and returns one value per field tag.
func (h *HanHandler) PTransactDescriptor(address uint8, d *FormatDescriptor, params ParamSource) ([]FieldValue, error) {
	defer h.deliverInterrupts()
	h.mu.Lock()
	defer h.mu.Unlock()

	if d == nil {
		return nil, h.setLastError(validationErrorf("nil format descriptor"))
	}
	if params == nil {
		params = Positional(nil)
	}
	cmd, err := h.packager.PackFormatted(address, d, params.Values(d.NumFields()))
	if err != nil {
		return nil, h.setLastError(err)
	}
	reply, err := h.exchange(cmd)
	if err != nil {
		return nil, h.setLastError(err)
	}
	values, err := d.Decode(reply.Payload())
	if err != nil {
		return nil, h.setLastError(err)
	}
	return values, nil
}

// EnableInterrupts asks the gateway to forward node interrupts on this session.
func (h *HanHandler) EnableInterrupts() error {
	return h.control(interruptEnableCmd, true)
}

// DisableInterrupts stops interrupt forwarding on this session.
func (h *HanHandler) DisableInterrupts() error {
	return h.control(interruptDisableCmd, false)
}

func (h *HanHandler) control(cmd string, enable bool) error {
	defer h.deliverInterrupts()
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.transporter.WriteRaw([]byte(h.packager.PackControl(cmd))); err != nil {
		return h.setLastError(err)
	}
	raw, err := h.readReply()
	if err != nil {
		return h.setLastError(err)
	}
	if line := trimLine(raw); line != StatusOK {
		code := line
		if len(code) > 2 {
			code = code[:2]
		}
		return h.setLastError(&ProtocolError{Code: code, Line: line})
	}
	h.interrupts = enable
	return nil
}

// exchange performs Idle -> Sent -> ReplyReceived | TimedOut | ConnectionBroken.
// Callers hold h.mu.
func (h *HanHandler) exchange(cmd string) (Reply, error) {
	h.logger.Debug().Str("command", cmd).Str("remote", h.transporter.RemoteAddr()).Msg("han: sending command")
	if err := h.transporter.WriteRaw([]byte(cmd)); err != nil {
		return Reply{}, err
	}
	raw, err := h.readReply()
	if err != nil {
		return Reply{}, err
	}
	reply, err := h.packager.Unpack(raw)
	if err != nil {
		return Reply{}, err
	}
	h.logger.Debug().Str("reply", reply.Line()).Msg("han: reply received")
	return reply, nil
}

// readReply reads the next reply line, delivering any interrupt events that
// precede it when interrupt reporting is enabled.
func (h *HanHandler) readReply() ([]byte, error) {
	for i := 0; ; i++ {
		raw, err := h.transporter.ReadLine(MaxReplyLength, h.timeout)
		if err != nil {
			return nil, err
		}
		if !h.interrupts || !isInterruptLine(raw) || i >= maxInterruptLines {
			return raw, nil
		}
		ev, err := ParseInterruptEvent(raw)
		if err != nil {
			h.logger.Warn().Err(err).Msg("han: dropping malformed interrupt event")
			continue
		}
		h.logger.Debug().Uint8("address", ev.Address).Uint8("reason", ev.Status[0]).Msg("han: interrupt event")
		if h.onInterrupt != nil {
			h.pending = append(h.pending, ev)
		}
	}
}

// deliverInterrupts hands queued events to the callback. Callers must not
// hold h.mu.
func (h *HanHandler) deliverInterrupts() {
	h.mu.Lock()
	events, fn := h.pending, h.onInterrupt
	h.pending = nil
	h.mu.Unlock()
	if fn == nil {
		return
	}
	for _, ev := range events {
		fn(ev)
	}
}

// Close releases the transporter. The handler is unusable afterwards.
func (h *HanHandler) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.transporter.Close()
}

// reasonOf renders the human readable reason kept in the last error slot.
func reasonOf(err error) string {
	var (
		ce *ConnectError
		pe *ProtocolError
		ve *ValidationError
		fe *FieldDecodeError
		be *ConnectionBrokenError
	)
	switch {
	case errors.Is(err, ErrTimedOut):
		return "Timed out waiting for response"
	case errors.Is(err, ErrClosed):
		return "Connection closed"
	case errors.As(err, &ce):
		return "Connect failed"
	case errors.As(err, &pe):
		return fmt.Sprintf("Received error %s from node", pe.Code)
	case errors.As(err, &ve):
		return ve.Reason
	case errors.As(err, &fe):
		return "Problem processing return values: " + fe.Reason
	case errors.As(err, &be):
		return "Connection broken: " + be.Err.Error()
	}
	return err.Error()
}

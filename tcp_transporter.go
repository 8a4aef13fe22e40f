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
	"bufio"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// TCPConfig holds the parameters used to open a gateway session over TCP.
type TCPConfig struct {
	Host         string        // Hostname, IPv4 literal or IPv6 literal
	Port         int           // Defaults to DefaultPort
	DialTimeout  time.Duration // Defaults to DefaultReplyTimeout
	WriteTimeout time.Duration // Defaults to DefaultReplyTimeout
	Lookup       LookupAAAA    // Defaults to DefaultLookupAAAA
	Logger       *zerolog.Logger
}

// TCPTransporter owns one TCP connection to the gateway. There is no
// reconnection: once the connection fails the transporter stays unusable.
type TCPTransporter struct {
	conn         net.Conn
	reader       *bufio.Reader
	endpoint     Endpoint
	writeTimeout time.Duration
	logger       zerolog.Logger
	mu           sync.Mutex // Protects connection operations
	closed       bool
}

// DialTCP resolves cfg.Host and connects to the gateway. A failure is
// returned as a *ConnectError; the caller decides whether it is fatal.
func DialTCP(cfg TCPConfig) (*TCPTransporter, error) {
	ep := ResolveEndpoint(cfg.Host, cfg.Port, cfg.Lookup)
	dialTimeout := cfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = DefaultReplyTimeout
	}
	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	logger.Debug().Str("endpoint", ep.Address()).Stringer("form", ep.Form).Msg("connecting to gateway")

	conn, err := net.DialTimeout("tcp", ep.Address(), dialTimeout)
	if err != nil {
		return nil, &ConnectError{Address: ep.Address(), Err: err}
	}
	t := NewTCPTransporter(conn, cfg.WriteTimeout, logger)
	t.endpoint = ep
	return t, nil
}

// NewTCPTransporter wraps an established connection.
func NewTCPTransporter(conn net.Conn, writeTimeout time.Duration, logger zerolog.Logger) *TCPTransporter {
	if writeTimeout <= 0 {
		writeTimeout = DefaultReplyTimeout
	}
	return &TCPTransporter{
		conn:         conn,
		reader:       bufio.NewReaderSize(conn, 256),
		writeTimeout: writeTimeout,
		logger:       logger.With().Str("transport", "tcp").Logger(),
	}
}

// Endpoint returns the resolved target; zero for wrapped connections.
func (t *TCPTransporter) Endpoint() Endpoint {
	return t.endpoint
}

// WriteRaw writes raw bytes directly to the connection
func (t *TCPTransporter) WriteRaw(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrClosed
	}
	if len(data) == 0 {
		return fmt.Errorf("han: no data to write")
	}

	if err := t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout)); err != nil {
		return &ConnectionBrokenError{Op: "write", Err: err}
	}
	defer t.conn.SetWriteDeadline(time.Time{})

	written := 0
	for written < len(data) {
		n, err := t.conn.Write(data[written:])
		if err != nil {
			return &ConnectionBrokenError{Op: "write", Err: fmt.Errorf("after %d bytes: %w", written, err)}
		}
		written += n
	}
	t.logger.Debug().Bytes("data", data).Msg("sent")
	return nil
}

// ReadLine reads up to maxLen bytes, stopping after a newline. The deadline
// applies to the whole line. Expiry is detected from the read status and
// returned as ErrTimedOut; the partial line is discarded. Bytes received
// after the newline stay buffered for the next call.
func (t *TCPTransporter) ReadLine(maxLen int, timeout time.Duration) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, ErrClosed
	}
	if maxLen <= 0 {
		maxLen = MaxReplyLength
	}
	if timeout > 0 {
		if err := t.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return nil, &ConnectionBrokenError{Op: "read", Err: err}
		}
		defer t.conn.SetReadDeadline(time.Time{})
	}

	line, err := readLine(t.reader, maxLen)
	if err != nil {
		if isTimeout(err) {
			if len(line) > 0 {
				t.logger.Debug().Bytes("partial", line).Msg("discarding partial reply after timeout")
			}
			return nil, ErrTimedOut
		}
		return nil, &ConnectionBrokenError{Op: "read", Err: err}
	}
	t.logger.Debug().Bytes("data", line).Msg("received")
	return line, nil
}

// Close closes the underlying connection and marks the transporter as closed
func (t *TCPTransporter) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	t.logger.Debug().Msg("closing tcp transporter")
	return t.conn.Close()
}

// IsClosed returns whether the transporter is closed
func (t *TCPTransporter) IsClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// RemoteAddr returns the remote network address
func (t *TCPTransporter) RemoteAddr() string {
	if t.conn == nil || t.conn.RemoteAddr() == nil {
		return ""
	}
	return t.conn.RemoteAddr().String()
}

// isTimeout reports whether a read failed because its deadline expired.
func isTimeout(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}

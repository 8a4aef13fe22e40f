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
	"io"
	"net"
	"strings"
	"sync"
	"time"

	serial "github.com/hootrhino/goserial"
	"github.com/rs/zerolog"
)

// SerialConfig describes a serial line to a gateway console that speaks the
// same text protocol as the TCP socket.
type SerialConfig struct {
	Address     string        `toml:"address"`      // Device path, e.g. /dev/ttyUSB0
	BaudRate    int           `toml:"baud_rate"`    // Defaults to 9600
	DataBits    int           `toml:"data_bits"`    // Defaults to 8
	StopBits    int           `toml:"stop_bits"`    // Defaults to 1
	Parity      string        `toml:"parity"`       // N, E or O; defaults to N
	ReadTimeout time.Duration `toml:"read_timeout"` // Per read call; defaults to 100ms
}

// OpenSerial opens the serial device and wraps it in a LineTransport.
func OpenSerial(cfg SerialConfig, logger zerolog.Logger) (*LineTransport, error) {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = 9600
	}
	if cfg.DataBits == 0 {
		cfg.DataBits = 8
	}
	if cfg.StopBits == 0 {
		cfg.StopBits = 1
	}
	if cfg.Parity == "" {
		cfg.Parity = "N"
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 100 * time.Millisecond
	}
	port, err := serial.Open(&serial.Config{
		Address:  cfg.Address,
		BaudRate: cfg.BaudRate,
		DataBits: cfg.DataBits,
		StopBits: cfg.StopBits,
		Parity:   cfg.Parity,
		Timeout:  cfg.ReadTimeout,
	})
	if err != nil {
		return nil, &ConnectError{Address: cfg.Address, Err: err}
	}
	t := NewLineTransport(port, DefaultReplyTimeout, logger)
	t.name = cfg.Address
	return t, nil
}

// LineTransport carries the text protocol over any io.ReadWriteCloser
// (a serial port, a socket, or an in-memory pipe in tests).
type LineTransport struct {
	conn         io.ReadWriteCloser
	reader       *bufio.Reader
	writeTimeout time.Duration
	name         string
	logger       zerolog.Logger
	mu           sync.Mutex
}

// NewLineTransport wraps conn. Write deadlines are only applied when conn is a net.Conn.
func NewLineTransport(conn io.ReadWriteCloser, writeTimeout time.Duration, logger zerolog.Logger) *LineTransport {
	return &LineTransport{
		conn:         conn,
		reader:       bufio.NewReaderSize(conn, 256),
		writeTimeout: writeTimeout,
		name:         "line",
		logger:       logger.With().Str("transport", "line").Logger(),
	}
}

// WriteRaw writes raw bytes to the underlying connection.
func (t *LineTransport) WriteRaw(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return ErrClosed
	}
	if len(data) == 0 {
		return fmt.Errorf("han: cannot write empty data")
	}
	if c, ok := t.conn.(net.Conn); ok && t.writeTimeout > 0 {
		_ = c.SetWriteDeadline(time.Now().Add(t.writeTimeout))
		defer c.SetWriteDeadline(time.Time{})
	}
	n, err := t.conn.Write(data)
	if err != nil {
		return &ConnectionBrokenError{Op: "write", Err: fmt.Errorf("after %d bytes: %w", n, err)}
	}
	if n != len(data) {
		return &ConnectionBrokenError{Op: "write", Err: fmt.Errorf("partial write: expected %d bytes, wrote %d", len(data), n)}
	}
	t.logger.Debug().Bytes("data", data).Msg("sent")
	return nil
}

// ReadLine reads one reply line. The underlying port reports its own read
// timeouts; those are retried until the overall timeout has elapsed.
func (t *LineTransport) ReadLine(maxLen int, timeout time.Duration) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil, ErrClosed
	}
	if maxLen <= 0 {
		maxLen = MaxReplyLength
	}
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
		if c, ok := t.conn.(net.Conn); ok {
			_ = c.SetReadDeadline(deadline)
			defer c.SetReadDeadline(time.Time{})
		}
	}

	line := make([]byte, 0, maxLen)
	for {
		part, err := readLine(t.reader, maxLen-len(line))
		line = append(line, part...)
		if err == nil {
			t.logger.Debug().Bytes("data", line).Msg("received")
			return line, nil
		}
		if !isPortTimeout(err) {
			return nil, &ConnectionBrokenError{Op: "read", Err: err}
		}
		if deadline.IsZero() || time.Now().After(deadline) {
			if len(line) > 0 {
				t.logger.Debug().Bytes("partial", line).Msg("discarding partial reply after timeout")
			}
			return nil, ErrTimedOut
		}
	}
}

// RemoteAddr returns the device name or "line".
func (t *LineTransport) RemoteAddr() string {
	return t.name
}

// Close closes the underlying connection.
func (t *LineTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	return err
}

// IsConnected returns true if the connection is still open.
func (t *LineTransport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn != nil
}

// readLine reads bytes until a newline (kept) or until maxLen bytes.
func readLine(r *bufio.Reader, maxLen int) ([]byte, error) {
	line := make([]byte, 0, maxLen)
	for len(line) < maxLen {
		c, err := r.ReadByte()
		if err != nil {
			return line, err
		}
		line = append(line, c)
		if c == '\n' {
			break
		}
	}
	return line, nil
}

// isPortTimeout widens isTimeout for serial drivers, which report an
// expired read either as a timeout error or as a read returning nothing.
func isPortTimeout(err error) bool {
	if isTimeout(err) || errors.Is(err, io.ErrNoProgress) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "timeout")
}

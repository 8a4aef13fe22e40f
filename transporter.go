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

import "time"

// HanTransporter defines the byte-level session with a HAN gateway. A
// transporter carries one request/reply exchange at a time.
type HanTransporter interface {
	WriteRaw(data []byte) error
	ReadLine(maxLen int, timeout time.Duration) ([]byte, error)
	RemoteAddr() string
	Close() error
}

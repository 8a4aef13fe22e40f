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
	"net"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeGateway accepts TCP sessions and answers each command it reads with
// whatever respond returns. An empty answer sends nothing.
type fakeGateway struct {
	ln      net.Listener
	respond func(req string) string

	mu       sync.Mutex
	requests []string
}

func newFakeGateway(t *testing.T, respond func(req string) string) *fakeGateway {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	g := &fakeGateway{ln: ln, respond: respond}
	go g.serve()
	t.Cleanup(func() { ln.Close() })
	return g
}

func (g *fakeGateway) serve() {
	for {
		conn, err := g.ln.Accept()
		if err != nil {
			return
		}
		go g.session(conn)
	}
}

func (g *fakeGateway) session(conn net.Conn) {
	defer conn.Close()
	buf := make([]byte, 256)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		req := strings.TrimRight(string(buf[:n]), "\r\n")
		g.mu.Lock()
		g.requests = append(g.requests, req)
		g.mu.Unlock()
		if reply := g.respond(req); reply != "" {
			if _, err := conn.Write([]byte(reply)); err != nil {
				return
			}
		}
	}
}

func (g *fakeGateway) port() int {
	return g.ln.Addr().(*net.TCPAddr).Port
}

func (g *fakeGateway) received() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.requests...)
}

// dialFake opens a handler on the fake gateway.
func dialFake(t *testing.T, g *fakeGateway, timeout time.Duration) *HanHandler {
	t.Helper()
	h, err := NewHanTCPHandler(TCPConfig{Host: "127.0.0.1", Port: g.port(), DialTimeout: time.Second},
		HandlerConfig{ReplyTimeout: timeout})
	if err != nil {
		t.Fatalf("Failed to connect to fake gateway: %v", err)
	}
	t.Cleanup(func() { h.Close() })
	return h
}

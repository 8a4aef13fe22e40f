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
	"net"
	"testing"
)

func TestResolveEndpoint(t *testing.T) {
	lookup := func(host string) ([]net.IP, error) {
		switch host {
		case "gw6":
			return []net.IP{net.ParseIP("2001:db8::5")}, nil
		case "gwmapped":
			return []net.IP{net.ParseIP("192.0.2.1")}, nil
		}
		return nil, errors.New("no such host")
	}
	tests := []struct {
		host string
		port int
		addr string
		form AddressForm
	}{
		{"::1", 0, "[::1]:1129", FormIPv6Literal},
		{"[fe80::1]", 2000, "[fe80::1]:2000", FormIPv6Literal},
		{"gw6", 0, "[2001:db8::5]:1129", FormIPv6Resolved},
		{"gwmapped", 0, "gwmapped:1129", FormHost},
		{"phones", 0, "phones:1129", FormHost},
		{"10.0.0.7", 1129, "10.0.0.7:1129", FormHost},
	}
	for _, tt := range tests {
		ep := ResolveEndpoint(tt.host, tt.port, lookup)
		if ep.Address() != tt.addr {
			t.Errorf("ResolveEndpoint(%q) = %s, expected %s", tt.host, ep.Address(), tt.addr)
		}
		if ep.Form != tt.form {
			t.Errorf("ResolveEndpoint(%q) form = %s, expected %s", tt.host, ep.Form, tt.form)
		}
	}
}

func TestResolveEndpointSkipsLookupForIPv4(t *testing.T) {
	called := false
	ResolveEndpoint("127.0.0.1", 0, func(string) ([]net.IP, error) {
		called = true
		return nil, nil
	})
	if called {
		t.Error("lookup should not run for IPv4 literals")
	}
}

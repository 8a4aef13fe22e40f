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
	"context"
	"net"
	"strconv"
	"strings"
	"time"
)

// AddressForm records which addressing rule produced an Endpoint.
type AddressForm int

const (
	FormIPv6Literal  AddressForm = iota // Host token contained a colon
	FormIPv6Resolved                    // AAAA lookup succeeded
	FormHost                            // Hostname or IPv4 literal used as given
)

func (f AddressForm) String() string {
	switch f {
	case FormIPv6Literal:
		return "ipv6-literal"
	case FormIPv6Resolved:
		return "ipv6-resolved"
	case FormHost:
		return "host"
	}
	return "unknown"
}

// Endpoint is a resolved gateway connection target.
type Endpoint struct {
	Host string // Bracketed for IPv6 forms
	Port int
	Form AddressForm
}

// Address returns host:port suitable for net.Dial.
func (e Endpoint) Address() string {
	return e.Host + ":" + strconv.Itoa(e.Port)
}

func (e Endpoint) String() string { return e.Address() }

// LookupAAAA returns the IPv6 addresses recorded for a host name.
type LookupAAAA func(host string) ([]net.IP, error)

// DefaultLookupAAAA queries the system resolver for IPv6 addresses only.
func DefaultLookupAAAA(host string) ([]net.IP, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return net.DefaultResolver.LookupIP(ctx, "ip6", host)
}

// ResolveEndpoint applies the gateway addressing rules to a host token:
// a token containing a colon is an IPv6 literal and is bracketed; otherwise
// an AAAA lookup is attempted and the first IPv6 address is used in bracket
// form; failing that the token is used as given (hostname or IPv4 literal).
func ResolveEndpoint(host string, port int, lookup LookupAAAA) Endpoint {
	if port <= 0 {
		port = DefaultPort
	}
	if strings.Contains(host, ":") {
		return Endpoint{Host: "[" + strings.Trim(host, "[]") + "]", Port: port, Form: FormIPv6Literal}
	}
	if lookup == nil {
		lookup = DefaultLookupAAAA
	}
	// IPv4 literals never carry AAAA records.
	if net.ParseIP(host) == nil {
		if ips, err := lookup(host); err == nil {
			for _, ip := range ips {
				if ip.To4() == nil && ip.To16() != nil {
					return Endpoint{Host: "[" + ip.String() + "]", Port: port, Form: FormIPv6Resolved}
				}
			}
		}
	}
	return Endpoint{Host: host, Port: port, Form: FormHost}
}

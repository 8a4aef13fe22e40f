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

package main

import (
	"fmt"
	"strconv"

	han "github.com/hootrhino/gohan"
	"github.com/spf13/cobra"
)

var rawCmd = &cobra.Command{
	Use:   "raw <address> <command> [param...]",
	Short: "Send a raw command and print the reply bytes",
	Args:  cobra.RangeArgs(2, 2+han.MaxRawParams),
	RunE: func(cmd *cobra.Command, args []string) error {
		bytes := make([]uint8, len(args))
		for i, a := range args {
			b, err := parseByte(a)
			if err != nil {
				return err
			}
			bytes[i] = b
		}
		h, err := cfg.OpenHandler(logger)
		if err != nil {
			return err
		}
		defer h.Close()
		data, err := h.Transact(bytes[0], bytes[1], bytes[2:]...)
		if err != nil {
			return fmt.Errorf("%s: %w", h.GetLastError(), err)
		}
		fmt.Fprint(cmd.OutOrStdout(), formatter.Format(data))
		return nil
	},
}

var callCmd = &cobra.Command{
	Use:   "call <address> <format> [value...]",
	Short: "Run a formatted transaction, e.g. call 6 0:12BBBI 1",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, err := parseByte(args[0])
		if err != nil {
			return err
		}
		d, err := han.ParseFormat(args[1])
		if err != nil {
			return err
		}
		params := make(han.Positional, 0, len(args)-2)
		for _, a := range args[2:] {
			params = append(params, a)
		}
		h, err := cfg.OpenHandler(logger)
		if err != nil {
			return err
		}
		defer h.Close()
		values, err := h.PTransactDescriptor(addr, d, params)
		if err != nil {
			return fmt.Errorf("%s: %w", h.GetLastError(), err)
		}
		fmt.Fprint(cmd.OutOrStdout(), formatter.Format(values))
		return nil
	},
}

// parseByte accepts decimal or 0x prefixed hex.
func parseByte(s string) (uint8, error) {
	v, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid byte %q: %w", s, err)
	}
	return uint8(v), nil
}

func init() {
	rootCmd.AddCommand(rawCmd)
	rootCmd.AddCommand(callCmd)
}

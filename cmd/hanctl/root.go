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
	"context"
	"errors"
	"fmt"
	"os"

	han "github.com/hootrhino/gohan"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile      string
	outputFormat string
	hostFlag     string
	portFlag     int
	logLevel     string

	// Shared state set during PersistentPreRun
	cfg       han.Config
	logger    zerolog.Logger
	formatter Formatter
)

var rootCmd = &cobra.Command{
	Use:   "hanctl",
	Short: "Talk to HAN bus nodes through a gateway",
	Long: `hanctl sends commands to nodes on a HAN bus through the gateway's
text protocol, runs element transactions described by a device repository,
and polls elements at an interval.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if cfgFile != "" {
			cfg, err = han.LoadConfig(cfgFile)
			if err != nil {
				return err
			}
		} else {
			cfg = han.DefaultConfig()
		}
		if hostFlag != "" {
			cfg.Gateway.Transport = "tcp"
			cfg.Gateway.Host = hostFlag
		}
		if portFlag != 0 {
			cfg.Gateway.Port = portFlag
		}
		if logLevel != "" {
			cfg.Log.Level = logLevel
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		logger, err = han.NewLogger(cfg.Log)
		if err != nil {
			return err
		}
		formatter = NewFormatter(outputFormat)
		return nil
	},
}

// Execute runs the root command. Fatal errors exit with status 2.
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		var fe *han.FatalError
		if errors.As(err, &fe) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "TOML config file")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "text", "output format: text, json, yaml")
	rootCmd.PersistentFlags().StringVar(&hostFlag, "host", "", "gateway host (overrides config)")
	rootCmd.PersistentFlags().IntVar(&portFlag, "port", 0, "gateway port (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "debug", "", "debug level: none, unexpected, expected, status, action")
}

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
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	han "github.com/hootrhino/gohan"
	"github.com/spf13/cobra"
)

var (
	pollInterval time.Duration
	pollCount    int
)

var elementCmd = &cobra.Command{
	Use:   "element <code> [NAME=value...]",
	Short: "Run an element transaction and print the scaled value",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		instr, err := parseInstructions(args[1:])
		if err != nil {
			return err
		}
		repo, closeRepo, err := cfg.OpenRepository()
		if err != nil {
			return &han.FatalError{Op: "open repository", Err: err}
		}
		defer closeRepo()
		h, err := cfg.OpenHandler(logger)
		if err != nil {
			return err
		}
		defer h.Close()

		e, err := han.NewElement(cmd.Context(), repo, args[0], h, nil)
		if err != nil {
			return err
		}
		v, err := e.Transact(instr)
		if err != nil {
			return fmt.Errorf("%s: %w", e.GetLastError(), err)
		}
		r := han.Reading{Code: e.Code(), Value: v, Units: e.Units(), Time: time.Now()}
		fmt.Fprint(cmd.OutOrStdout(), formatter.Format(r))
		return nil
	},
}

var pollCmd = &cobra.Command{
	Use:   "poll <code>...",
	Short: "Poll elements with the POLL command at an interval",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if pollInterval <= 0 {
			return fmt.Errorf("--interval must be positive, got %s", pollInterval)
		}
		repo, closeRepo, err := cfg.OpenRepository()
		if err != nil {
			return &han.FatalError{Op: "open repository", Err: err}
		}
		defer closeRepo()
		h, err := cfg.OpenHandler(logger)
		if err != nil {
			return err
		}
		defer h.Close()

		p := han.NewElementPoller(pollInterval, logger)
		for _, code := range args {
			e, err := han.NewElement(cmd.Context(), repo, code, h, nil)
			if err != nil {
				return err
			}
			instr := han.Instructions{}
			for _, name := range e.Inputs() {
				instr[name] = 0
			}
			if _, ok := e.Descriptor().Commands["POLL"]; ok {
				instr[han.InputCommand] = "POLL"
			}
			if err := p.Add(e, instr); err != nil {
				return err
			}
		}

		out := cmd.OutOrStdout()
		errOut := cmd.ErrOrStderr()
		done := make(chan struct{}, 1)
		rounds := 0
		p.SetOnError(func(code string, err error) {
			fmt.Fprintf(errOut, "%s: %v\n", code, err)
		})

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		p.SetOnData(func(readings []han.Reading) {
			fmt.Fprint(out, formatter.Format(readings))
			rounds++
			if pollCount > 0 && rounds >= pollCount {
				select {
				case done <- struct{}{}:
				default:
				}
			}
		})
		p.Start()
		defer p.Stop()
		select {
		case <-ctx.Done():
		case <-done:
		}
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import <elements.csv>",
	Short: "Load a CSV element table into the SQL repository",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		elements, err := han.ParseElementCSV(f)
		if err != nil {
			return err
		}
		driver := cfg.Repository.Driver
		if driver == "" {
			driver = "sqlite3"
		}
		repo, err := han.OpenSQLRepository(driver, cfg.Repository.DSN)
		if err != nil {
			return err
		}
		defer repo.Close()
		ctx := cmd.Context()
		if err := repo.CreateSchema(ctx); err != nil {
			return err
		}
		for _, e := range elements {
			if err := repo.Put(ctx, e); err != nil {
				return err
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Imported %d elements.\n", len(elements))
		return nil
	},
}

// parseInstructions turns NAME=value arguments into an instruction list.
func parseInstructions(args []string) (han.Instructions, error) {
	instr := han.Instructions{}
	for _, a := range args {
		name, value, ok := strings.Cut(a, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid instruction %q, want NAME=value", a)
		}
		instr[strings.ToUpper(name)] = value
	}
	return instr, nil
}

func init() {
	pollCmd.Flags().DurationVar(&pollInterval, "interval", han.DefaultPollInterval, "poll interval")
	pollCmd.Flags().IntVar(&pollCount, "count", 0, "stop after this many rounds with data (0 runs until interrupted)")
	rootCmd.AddCommand(elementCmd)
	rootCmd.AddCommand(pollCmd)
	rootCmd.AddCommand(importCmd)
}

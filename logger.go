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
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// DebugLevel is the verbosity scale used by HAN tools: each level includes
// the ones below it.
type DebugLevel int

const (
	DebugNone       DebugLevel = iota // Disables debug output
	DebugUnexpected                   // Things that should not happen
	DebugExpected                     // Expected but noteworthy conditions
	DebugStatus                       // Status changes
	DebugAction                       // Every action taken
	DebugAll
)

// LevelToString maps DebugLevel to its string representation.
var LevelToString = map[DebugLevel]string{
	DebugNone:       "NONE",
	DebugUnexpected: "UNEXPECTED",
	DebugExpected:   "EXPECTED",
	DebugStatus:     "STATUS",
	DebugAction:     "ACTION",
	DebugAll:        "ALL",
}

// StringToLevel maps string representation of DebugLevel to its value.
var StringToLevel = map[string]DebugLevel{
	"NONE":       DebugNone,
	"UNEXPECTED": DebugUnexpected,
	"EXPECTED":   DebugExpected,
	"STATUS":     DebugStatus,
	"ACTION":     DebugAction,
	"ALL":        DebugAll,
}

// ParseDebugLevel accepts a level name (case insensitive) or its number.
func ParseDebugLevel(s string) (DebugLevel, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if level, ok := StringToLevel[s]; ok {
		return level, nil
	}
	if n, err := strconv.Atoi(s); err == nil && n >= int(DebugNone) && n <= int(DebugAll) {
		return DebugLevel(n), nil
	}
	return DebugNone, fmt.Errorf("invalid debug level: %s. Available levels: %v", s, availableLevels())
}

func availableLevels() []string {
	levels := make([]string, 0, len(StringToLevel))
	for levelStr := range StringToLevel {
		levels = append(levels, levelStr)
	}
	sort.Strings(levels)
	return levels
}

// zerologLevel maps a debug level to the minimum zerolog level it lets through.
func (l DebugLevel) zerologLevel() zerolog.Level {
	switch l {
	case DebugNone:
		return zerolog.ErrorLevel
	case DebugUnexpected:
		return zerolog.WarnLevel
	case DebugExpected:
		return zerolog.InfoLevel
	case DebugStatus:
		return zerolog.DebugLevel
	default:
		return zerolog.TraceLevel
	}
}

// eventLevel is the zerolog level a debug message of this level is written at.
func (l DebugLevel) eventLevel() zerolog.Level {
	switch l {
	case DebugUnexpected:
		return zerolog.WarnLevel
	case DebugExpected:
		return zerolog.InfoLevel
	case DebugStatus:
		return zerolog.DebugLevel
	default:
		return zerolog.TraceLevel
	}
}

// LogConfig selects the log sink.
type LogConfig struct {
	Level     string    `toml:"level"`     // Debug level name, e.g. "unexpected"
	Format    string    `toml:"format"`    // "console" (default) or "json"
	Timestamp bool      `toml:"timestamp"` // Prefix entries with a timestamp
	Output    io.Writer `toml:"-"`         // Defaults to os.Stderr
}

// NewLogger builds a zerolog.Logger for HAN tools. The threshold is kept
// on the returned logger. zerolog drops trace events below its global level
// (debug unless changed), so a level of ACTION or ALL lowers the global
// level to trace. The global level is never raised; loggers built later
// still filter at their own threshold.
func NewLogger(cfg LogConfig) (zerolog.Logger, error) {
	level := DebugNone
	if cfg.Level != "" {
		var err error
		if level, err = ParseDebugLevel(cfg.Level); err != nil {
			return zerolog.Nop(), err
		}
	}
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	switch strings.ToLower(cfg.Format) {
	case "", "console":
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339, NoColor: true}
	case "json":
	default:
		return zerolog.Nop(), fmt.Errorf("invalid log format: %s", cfg.Format)
	}
	threshold := level.zerologLevel()
	if threshold < zerolog.GlobalLevel() {
		zerolog.SetGlobalLevel(threshold)
	}
	ctx := zerolog.New(out).Level(threshold).With()
	if cfg.Timestamp {
		ctx = ctx.Timestamp()
	}
	return ctx.Str("app", "han").Logger(), nil
}

// Debugf writes a leveled debug message the way the HAN daemons do.
func Debugf(logger zerolog.Logger, level DebugLevel, format string, args ...any) {
	if level <= DebugNone || level >= DebugAll {
		return
	}
	logger.WithLevel(level.eventLevel()).Str("debug", LevelToString[level]).Msgf(format, args...)
}

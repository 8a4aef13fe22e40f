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
	"bytes"
	"strings"
	"testing"
)

func TestParseDebugLevel(t *testing.T) {
	tests := []struct {
		in   string
		want DebugLevel
	}{
		{"none", DebugNone},
		{"UNEXPECTED", DebugUnexpected},
		{" expected ", DebugExpected},
		{"3", DebugStatus},
		{"action", DebugAction},
		{"5", DebugAll},
	}
	for _, tt := range tests {
		got, err := ParseDebugLevel(tt.in)
		if err != nil {
			t.Fatalf("ParseDebugLevel(%q) failed: %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseDebugLevel(%q) = %v, expected %v", tt.in, got, tt.want)
		}
	}
	for _, bad := range []string{"loud", "6", "-1"} {
		if _, err := ParseDebugLevel(bad); err == nil {
			t.Errorf("ParseDebugLevel(%q) should fail", bad)
		}
	}
}

func TestDebugfRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(LogConfig{Level: "expected", Format: "json", Output: &buf})
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}

	Debugf(logger, DebugUnexpected, "node %d vanished", 6)
	Debugf(logger, DebugExpected, "retrying node %d", 6)
	Debugf(logger, DebugStatus, "node %d online", 6)
	Debugf(logger, DebugAll, "never printed")

	out := buf.String()
	if !strings.Contains(out, "node 6 vanished") || !strings.Contains(out, "retrying node 6") {
		t.Errorf("expected unexpected and expected messages, got %q", out)
	}
	if strings.Contains(out, "online") || strings.Contains(out, "never printed") {
		t.Errorf("messages above the level were written: %q", out)
	}
	if !strings.Contains(out, `"debug":"UNEXPECTED"`) {
		t.Errorf("missing debug level field: %q", out)
	}
}

func TestNewLoggerNoneSuppressesDebug(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(LogConfig{Output: &buf})
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	Debugf(logger, DebugUnexpected, "hidden")
	if buf.Len() != 0 {
		t.Errorf("expected no output, got %q", buf.String())
	}
}

func TestNewLoggerConsole(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(LogConfig{Level: "action", Output: &buf})
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	Debugf(logger, DebugAction, "sending CA0612")
	if !strings.Contains(buf.String(), "sending CA0612") {
		t.Errorf("console output missing message: %q", buf.String())
	}
}

func TestNewLoggerErrors(t *testing.T) {
	if _, err := NewLogger(LogConfig{Level: "shout"}); err == nil {
		t.Error("expected an error for a bad level")
	}
	if _, err := NewLogger(LogConfig{Format: "xml"}); err == nil {
		t.Error("expected an error for a bad format")
	}
}

func TestNewLoggerThresholdStaysOnLogger(t *testing.T) {
	var verbose, quiet bytes.Buffer
	vl, err := NewLogger(LogConfig{Level: "all", Format: "json", Output: &verbose})
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	ql, err := NewLogger(LogConfig{Level: "unexpected", Format: "json", Output: &quiet})
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}

	Debugf(vl, DebugAction, "sending CA0612")
	Debugf(ql, DebugAction, "sending CA0612")
	Debugf(ql, DebugStatus, "node 6 online")
	if !strings.Contains(verbose.String(), "sending CA0612") {
		t.Errorf("verbose logger dropped an action message: %q", verbose.String())
	}
	if quiet.Len() != 0 {
		t.Errorf("quiet logger wrote messages above its level: %q", quiet.String())
	}
}

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
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if cfg.Gateway.Port != DefaultPort {
		t.Errorf("port = %d", cfg.Gateway.Port)
	}
	d, err := cfg.ReplyTimeout()
	if err != nil || d != DefaultReplyTimeout {
		t.Errorf("ReplyTimeout = %v, %v", d, err)
	}
}

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig(`
[gateway]
host = "phones"
port = 2000
timeout = "2s"
terminator = "\n"

[serial]
address = "/dev/ttyUSB0"
baud_rate = 19200
read_timeout = "50ms"

[repository]
csv = "/etc/han/elements.csv"

[log]
level = "status"
format = "json"
`)
	if err != nil {
		t.Fatalf("ParseConfig failed: %v", err)
	}
	if cfg.Gateway.Host != "phones" || cfg.Gateway.Port != 2000 || cfg.Gateway.Terminator != "\n" {
		t.Errorf("unexpected gateway %+v", cfg.Gateway)
	}
	if cfg.Gateway.Transport != "tcp" {
		t.Errorf("transport = %q", cfg.Gateway.Transport)
	}
	if cfg.Serial.BaudRate != 19200 || cfg.Serial.ReadTimeout != 50*time.Millisecond {
		t.Errorf("unexpected serial %+v", cfg.Serial)
	}
	if d, _ := cfg.DialTimeout(); d != 2*time.Second {
		t.Errorf("DialTimeout = %v, expected the reply timeout", d)
	}
	if cfg.Repository.CSV != "/etc/han/elements.csv" || cfg.Log.Format != "json" {
		t.Errorf("unexpected repository/log %+v %+v", cfg.Repository, cfg.Log)
	}
}

func TestConfigValidateErrors(t *testing.T) {
	tests := []struct {
		name    string
		toml    string
		wantErr string
	}{
		{"bad transport", "[gateway]\ntransport = \"udp\"\n", "unsupported gateway.transport"},
		{"serial without device", "[gateway]\ntransport = \"serial\"\n", "serial.address is required"},
		{"empty host", "[gateway]\nhost = \"\"\n", "gateway.host is required"},
		{"bad port", "[gateway]\nport = 70000\n", "out of range"},
		{"bad timeout", "[gateway]\ntimeout = \"soon\"\n", "parse gateway.timeout"},
		{"negative timeout", "[gateway]\ntimeout = \"-1s\"\n", "must be positive"},
		{"bad driver", "[repository]\ndriver = \"mysql\"\n", "unsupported repository.driver"},
		{"bad level", "[log]\nlevel = \"loud\"\n", "log.level"},
		{"bad toml", "[gateway\n", "parse config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig(tt.toml)
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadConfigAndOpen(t *testing.T) {
	gw := newFakeGateway(t, func(req string) string {
		if req == "CA0612" {
			return "RS061201\n"
		}
		return "ER\n"
	})
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "elements.csv")
	if err := os.WriteFile(csvPath, []byte(elementCSV), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	cfgPath := filepath.Join(dir, "han.toml")
	body := "[gateway]\nhost = \"127.0.0.1\"\ntimeout = \"1s\"\nport = " + strconv.Itoa(gw.port()) +
		"\n\n[repository]\ncsv = \"" + filepath.ToSlash(csvPath) + "\"\n"
	if err := os.WriteFile(cfgPath, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	cfg, err := LoadConfig(cfgPath)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	h, err := cfg.OpenHandler(zerolog.Nop())
	if err != nil {
		t.Fatalf("OpenHandler failed: %v", err)
	}
	defer h.Close()
	data, err := h.Transact(0x06, 0x12)
	if err != nil {
		t.Fatalf("Transact failed: %v", err)
	}
	assertBytesEqual(t, []uint8{0x01}, data)

	repo, closeRepo, err := cfg.OpenRepository()
	if err != nil {
		t.Fatalf("OpenRepository failed: %v", err)
	}
	defer closeRepo()
	if _, ok := repo.(*CSVRepository); !ok {
		t.Errorf("expected a CSV repository, got %T", repo)
	}

	if _, err := LoadConfig(filepath.Join(dir, "missing.toml")); err == nil {
		t.Error("expected an error for a missing file")
	}
}

func TestOpenRepositoryCloser(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Repository.DSN = ":memory:"
	repo, closeRepo, err := cfg.OpenRepository()
	if err != nil {
		t.Fatalf("OpenRepository failed: %v", err)
	}
	if closeRepo == nil {
		t.Fatal("close function is nil on success")
	}
	if _, ok := repo.(*SQLRepository); !ok {
		t.Errorf("expected a SQL repository, got %T", repo)
	}
	if err := closeRepo(); err != nil {
		t.Errorf("close failed: %v", err)
	}

	cfg.Repository.CSV = filepath.Join(t.TempDir(), "missing.csv")
	if _, _, err := cfg.OpenRepository(); err == nil {
		t.Error("expected an error for a missing element table")
	}
}

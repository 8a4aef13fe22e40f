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
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog"
)

// Config is the TOML configuration of HAN tools.
//
//	[gateway]
//	host = "gw1"
//	timeout = "10s"
//
//	[repository]
//	driver = "sqlite3"
//	dsn = "/var/lib/han/elements.db"
//
//	[log]
//	level = "unexpected"
type Config struct {
	Gateway    GatewayConfig    `toml:"gateway"`
	Serial     SerialConfig     `toml:"serial"`
	Repository RepositoryConfig `toml:"repository"`
	Log        LogConfig        `toml:"log"`
}

// GatewayConfig selects how the gateway is reached.
type GatewayConfig struct {
	Transport   string `toml:"transport"`    // "tcp" (default) or "serial"
	Host        string `toml:"host"`         // Gateway host for tcp
	Port        int    `toml:"port"`         // Defaults to DefaultPort
	Timeout     string `toml:"timeout"`      // Reply timeout, e.g. "10s"
	DialTimeout string `toml:"dial_timeout"` // Connect timeout; defaults to the reply timeout
	Terminator  string `toml:"terminator"`   // Appended to each command
}

// RepositoryConfig selects the element metadata store. CSV takes
// precedence over Driver/DSN when set.
type RepositoryConfig struct {
	Driver string `toml:"driver"` // "sqlite3" or "postgres"
	DSN    string `toml:"dsn"`
	CSV    string `toml:"csv"` // Path of a CSV element table
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	return Config{
		Gateway: GatewayConfig{
			Transport: "tcp",
			Host:      "localhost",
			Port:      DefaultPort,
			Timeout:   DefaultReplyTimeout.String(),
		},
		Repository: RepositoryConfig{Driver: "sqlite3"},
		Log:        LogConfig{Level: "none", Format: "console"},
	}
}

// LoadConfig reads a TOML file over DefaultConfig and validates the result.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("han: load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ParseConfig decodes TOML text over DefaultConfig and validates the result.
func ParseConfig(data string) (Config, error) {
	cfg := DefaultConfig()
	if _, err := toml.Decode(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("han: parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration for values no component accepts.
func (c *Config) Validate() error {
	c.Gateway.Transport = strings.ToLower(strings.TrimSpace(c.Gateway.Transport))
	switch c.Gateway.Transport {
	case "", "tcp":
		c.Gateway.Transport = "tcp"
		if strings.TrimSpace(c.Gateway.Host) == "" {
			return fmt.Errorf("han: config: gateway.host is required")
		}
	case "serial":
		if strings.TrimSpace(c.Serial.Address) == "" {
			return fmt.Errorf("han: config: serial.address is required")
		}
	default:
		return fmt.Errorf("han: config: unsupported gateway.transport %q", c.Gateway.Transport)
	}
	if c.Gateway.Port < 0 || c.Gateway.Port > 65535 {
		return fmt.Errorf("han: config: gateway.port %d out of range", c.Gateway.Port)
	}
	if _, err := c.ReplyTimeout(); err != nil {
		return err
	}
	if _, err := c.DialTimeout(); err != nil {
		return err
	}
	if c.Repository.CSV == "" {
		switch c.Repository.Driver {
		case "", "sqlite3", "postgres":
		default:
			return fmt.Errorf("han: config: unsupported repository.driver %q", c.Repository.Driver)
		}
	}
	if c.Log.Level != "" {
		if _, err := ParseDebugLevel(c.Log.Level); err != nil {
			return fmt.Errorf("han: config: log.level: %w", err)
		}
	}
	return nil
}

// ReplyTimeout returns gateway.timeout, DefaultReplyTimeout when unset.
func (c *Config) ReplyTimeout() (time.Duration, error) {
	return parseTimeout("gateway.timeout", c.Gateway.Timeout, DefaultReplyTimeout)
}

// DialTimeout returns gateway.dial_timeout, the reply timeout when unset.
func (c *Config) DialTimeout() (time.Duration, error) {
	def, err := c.ReplyTimeout()
	if err != nil {
		return 0, err
	}
	return parseTimeout("gateway.dial_timeout", c.Gateway.DialTimeout, def)
}

func parseTimeout(key, s string, def time.Duration) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("han: config: parse %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("han: config: %s must be positive", key)
	}
	return d, nil
}

// OpenHandler connects to the gateway described by the configuration.
func (c *Config) OpenHandler(logger zerolog.Logger) (*HanHandler, error) {
	timeout, err := c.ReplyTimeout()
	if err != nil {
		return nil, err
	}
	dial, err := c.DialTimeout()
	if err != nil {
		return nil, err
	}
	hc := HandlerConfig{ReplyTimeout: timeout, Terminator: c.Gateway.Terminator, Logger: &logger}
	if c.Gateway.Transport == "serial" {
		return NewHanSerialHandler(c.Serial, hc)
	}
	return NewHanTCPHandler(TCPConfig{
		Host:         c.Gateway.Host,
		Port:         c.Gateway.Port,
		DialTimeout:  dial,
		WriteTimeout: timeout,
		Logger:       &logger,
	}, hc)
}

// OpenRepository opens the element metadata store. The returned close
// function is never nil when err is nil.
func (c *Config) OpenRepository() (DeviceRepository, func() error, error) {
	if c.Repository.CSV != "" {
		repo, err := LoadCSVFile(c.Repository.CSV)
		if err != nil {
			return nil, nil, err
		}
		return repo, func() error { return nil }, nil
	}
	driver := c.Repository.Driver
	if driver == "" {
		driver = "sqlite3"
	}
	repo, err := OpenSQLRepository(driver, c.Repository.DSN)
	if err != nil {
		return nil, nil, err
	}
	return repo, repo.Close, nil
}

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
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Schema creates the four metadata tables. Element rows point at a
// function; a function names its command format, its scaling expression and
// its input and command lists.
const Schema = `
CREATE TABLE IF NOT EXISTS element (
	ecode     VARCHAR(64) PRIMARY KEY,
	fcode     VARCHAR(64) NOT NULL,
	device    INTEGER NOT NULL,
	channel   INTEGER NOT NULL DEFAULT 0,
	units     VARCHAR(32) NOT NULL DEFAULT '',
	parameter VARCHAR(64) NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS function (
	fcode    VARCHAR(64) PRIMARY KEY,
	ccode    VARCHAR(64) NOT NULL,
	scode    VARCHAR(64) NOT NULL,
	inputs   VARCHAR(255) NOT NULL DEFAULT '',
	commands VARCHAR(255) NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS commands (
	ccode  VARCHAR(64) PRIMARY KEY,
	format VARCHAR(64) NOT NULL
);
CREATE TABLE IF NOT EXISTS scaling (
	scode      VARCHAR(64) PRIMARY KEY,
	expression VARCHAR(255) NOT NULL
);
`

// SQLRepository reads element metadata from a relational store. The
// "sqlite3" and "postgres" drivers are registered by this package.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// OpenSQLRepository opens and pings the database.
func OpenSQLRepository(driver, dsn string) (*SQLRepository, error) {
	switch driver {
	case "sqlite3", "postgres":
	default:
		return nil, fmt.Errorf("han: unsupported repository driver %q", driver)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("han: repository open: %w", err)
	}
	if driver == "sqlite3" {
		// An in-memory database lives only as long as its one connection.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("han: repository ping: %w", err)
	}
	return &SQLRepository{db: db, driver: driver}, nil
}

// NewSQLRepository wraps an open database handle.
func NewSQLRepository(db *sql.DB, driver string) *SQLRepository {
	return &SQLRepository{db: db, driver: driver}
}

// DB returns the underlying sql.DB for direct queries.
func (r *SQLRepository) DB() *sql.DB {
	return r.db
}

// Close closes the database.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// CreateSchema creates the metadata tables if they do not exist.
func (r *SQLRepository) CreateSchema(ctx context.Context) error {
	for _, stmt := range strings.Split(Schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("han: create schema: %w", err)
		}
	}
	return nil
}

// Put inserts or replaces the rows describing d.
func (r *SQLRepository) Put(ctx context.Context, d *ElementDescriptor) error {
	if err := validateDescriptor(d); err != nil {
		return err
	}
	fcode := d.Function
	if fcode == "" {
		fcode = d.Code
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("han: begin: %w", err)
	}
	defer tx.Rollback()

	stmts := []struct {
		table string
		key   string
		cols  []string
		args  []any
	}{
		{"element", "ecode", []string{"ecode", "fcode", "device", "channel", "units", "parameter"},
			[]any{d.Code, fcode, int(d.Device), d.Channel, d.Units, d.Parameter}},
		{"function", "fcode", []string{"fcode", "ccode", "scode", "inputs", "commands"},
			[]any{fcode, fcode, fcode, FormatAssignments(d.Inputs), FormatAssignments(d.Commands)}},
		{"commands", "ccode", []string{"ccode", "format"}, []any{fcode, d.Format}},
		{"scaling", "scode", []string{"scode", "expression"}, []any{fcode, d.Scaling}},
	}
	for _, s := range stmts {
		if _, err := tx.ExecContext(ctx, r.rebind("DELETE FROM "+s.table+" WHERE "+s.key+" = ?"), s.args[0]); err != nil {
			return fmt.Errorf("han: put %s: %w", s.table, err)
		}
		q := "INSERT INTO " + s.table + " (" + strings.Join(s.cols, ", ") + ") VALUES (" +
			strings.TrimSuffix(strings.Repeat("?, ", len(s.cols)), ", ") + ")"
		if _, err := tx.ExecContext(ctx, r.rebind(q), s.args...); err != nil {
			return fmt.Errorf("han: put %s: %w", s.table, err)
		}
	}
	return tx.Commit()
}

// Lookup implements DeviceRepository. Every failure, including a missing
// row, is a *FatalError.
func (r *SQLRepository) Lookup(ctx context.Context, code string) (*ElementDescriptor, error) {
	d := &ElementDescriptor{Code: code}
	var device int
	err := r.db.QueryRowContext(ctx,
		r.rebind("SELECT fcode, device, channel, units, parameter FROM element WHERE ecode = ?"), code).
		Scan(&d.Function, &device, &d.Channel, &d.Units, &d.Parameter)
	if err != nil {
		return nil, lookupFailure("element", code, err)
	}
	if device < 0 || device > 0xFF {
		return nil, &FatalError{Op: "lookup element " + code, Err: fmt.Errorf("device address %d out of range", device)}
	}
	d.Device = uint8(device)

	var ccode, scode, inputs, commands string
	err = r.db.QueryRowContext(ctx,
		r.rebind("SELECT ccode, scode, inputs, commands FROM function WHERE fcode = ?"), d.Function).
		Scan(&ccode, &scode, &inputs, &commands)
	if err != nil {
		return nil, lookupFailure("function", d.Function, err)
	}
	if d.Inputs, err = ParseAssignments(inputs); err != nil {
		return nil, &FatalError{Op: "lookup function " + d.Function, Err: err}
	}
	if d.Commands, err = ParseAssignments(commands); err != nil {
		return nil, &FatalError{Op: "lookup function " + d.Function, Err: err}
	}

	err = r.db.QueryRowContext(ctx, r.rebind("SELECT format FROM commands WHERE ccode = ?"), ccode).Scan(&d.Format)
	if err != nil {
		return nil, lookupFailure("commands", ccode, err)
	}
	err = r.db.QueryRowContext(ctx, r.rebind("SELECT expression FROM scaling WHERE scode = ?"), scode).Scan(&d.Scaling)
	if err != nil {
		return nil, lookupFailure("scaling", scode, err)
	}
	return d, nil
}

// rebind rewrites ? placeholders as $n for postgres.
func (r *SQLRepository) rebind(q string) string {
	if r.driver != "postgres" {
		return q
	}
	var sb strings.Builder
	n := 0
	for _, c := range q {
		if c == '?' {
			n++
			sb.WriteString("$" + strconv.Itoa(n))
			continue
		}
		sb.WriteRune(c)
	}
	return sb.String()
}

func lookupFailure(table, key string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		err = fmt.Errorf("no %s row for %q", table, key)
	}
	return &FatalError{Op: "query " + table, Err: err}
}

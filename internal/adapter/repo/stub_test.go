package repo

import (
	"context"
	"fmt"
	"reflect"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"spritegen/internal/infra"
)

// stubDB scripts responses per query constant and records the calls made.
type stubDB struct {
	rows    map[string]func(args []any) pgx.Row
	execs   map[string]func(args []any) (pgconn.CommandTag, error)
	calls   []string
	args    map[string][]any
	txCount int
}

func newStubDB() *stubDB {
	return &stubDB{
		rows:  map[string]func(args []any) pgx.Row{},
		execs: map[string]func(args []any) (pgconn.CommandTag, error){},
		args:  map[string][]any{},
	}
}

func (s *stubDB) Exec(_ context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	s.calls = append(s.calls, query)
	s.args[query] = args
	if fn, ok := s.execs[query]; ok {
		return fn(args)
	}
	return pgconn.NewCommandTag("UPDATE 1"), nil
}

func (s *stubDB) QueryRow(_ context.Context, query string, args ...any) pgx.Row {
	s.calls = append(s.calls, query)
	s.args[query] = args
	if fn, ok := s.rows[query]; ok {
		return fn(args)
	}
	return errRow{err: fmt.Errorf("unexpected query row: %s", query)}
}

func (s *stubDB) Query(_ context.Context, query string, _ ...any) (pgx.Rows, error) {
	return nil, fmt.Errorf("unexpected query: %s", query)
}

func (s *stubDB) InTx(_ context.Context, fn func(infra.SQLExecutor) error) error {
	s.txCount++
	return fn(s)
}

func (s *stubDB) called(query string) bool {
	for _, c := range s.calls {
		if c == query {
			return true
		}
	}
	return false
}

func tag(rows int) func([]any) (pgconn.CommandTag, error) {
	return func([]any) (pgconn.CommandTag, error) {
		return pgconn.NewCommandTag(fmt.Sprintf("UPDATE %d", rows)), nil
	}
}

func values(vals ...any) func([]any) pgx.Row {
	return func([]any) pgx.Row { return valueRow{vals: vals} }
}

func noRows() func([]any) pgx.Row {
	return func([]any) pgx.Row { return errRow{err: pgx.ErrNoRows} }
}

type valueRow struct {
	vals []any
}

func (r valueRow) Scan(dest ...any) error {
	if len(dest) != len(r.vals) {
		return fmt.Errorf("scan: got %d destinations for %d values", len(dest), len(r.vals))
	}
	for i, d := range dest {
		target := reflect.ValueOf(d).Elem()
		if r.vals[i] == nil {
			target.Set(reflect.Zero(target.Type()))
			continue
		}
		target.Set(reflect.ValueOf(r.vals[i]))
	}
	return nil
}

type errRow struct {
	err error
}

func (r errRow) Scan(...any) error { return r.err }

var _ infra.TxExecutor = (*stubDB)(nil)

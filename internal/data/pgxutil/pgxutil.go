// Package pgxutil reaches through database/sql handles opened with the pgx
// stdlib driver for bulk COPY loads and struct row collection.
package pgxutil

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
)

// ErrNotPgx is returned when the pool was opened with a driver other than pgx.
var ErrNotPgx = errors.New("database handle is not backed by the pgx stdlib driver")

// ShortCopyError reports a COPY that loaded fewer rows than it was given.
type ShortCopyError struct {
	Table    string
	Copied   int64
	Expected int
}

func (e *ShortCopyError) Error() string {
	return fmt.Sprintf("copy into %s: copied %d of %d rows", e.Table, e.Copied, e.Expected)
}

// withConn pins one pool connection and hands fn its native pgx connection.
func withConn(ctx context.Context, db *sql.DB, fn func(*pgx.Conn) error) error {
	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("get conn from pool: %w", err)
	}
	defer conn.Close() //nolint:errcheck // returning the conn to the pool

	return conn.Raw(func(dc any) error {
		std, ok := dc.(*stdlib.Conn)
		if !ok {
			return ErrNotPgx
		}
		return fn(std.Conn())
	})
}

// CopyRows bulk-loads rows into table inside one transaction. Either every row
// lands or none do.
func CopyRows(ctx context.Context, db *sql.DB, table string, columns []string, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}
	return withConn(ctx, db, func(conn *pgx.Conn) error {
		return pgx.BeginFunc(ctx, conn, func(tx pgx.Tx) error {
			n, err := tx.CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromRows(rows))
			if err != nil {
				return err
			}
			if n != int64(len(rows)) {
				return &ShortCopyError{Table: table, Copied: n, Expected: len(rows)}
			}
			return nil
		})
	})
}

// QueryStructs runs query and maps each row onto T by `db` struct tags. No
// rows yields an empty, non-nil slice.
func QueryStructs[T any](ctx context.Context, db *sql.DB, query string, args ...any) ([]T, error) {
	var out []T
	err := withConn(ctx, db, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		out, err = pgx.CollectRows(rows, pgx.RowToStructByName[T])
		return err
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []T{}
	}
	return out, nil
}

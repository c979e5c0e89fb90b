package core

import (
	"context"
	"database/sql"
	"strings"
)

type (
	DBExecutor interface {
		ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
		QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
		QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	}

	DB interface {
		DBExecutor

		PingContext(ctx context.Context) error
		BeginTx(context.Context, *sql.TxOptions) (*sql.Tx, error)
		Close() error
	}
)

type DBOrdering struct {
	Field     string
	Ascending bool
}

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}

// OrderBy renders an ORDER BY clause from the orderings whose field is a key of columns.
// Unknown fields are dropped. fallback is used when nothing is left.
func OrderBy(orderings []DBOrdering, columns map[string]string, fallback DBOrdering) string {
	parts := make([]string, 0, len(orderings))
	for _, ord := range orderings {
		if col, ok := columns[ord.Field]; ok {
			parts = append(parts, DBOrdering{Field: col, Ascending: ord.Ascending}.String())
		}
	}
	if len(parts) == 0 {
		parts = append(parts, fallback.String())
	}
	return "ORDER BY " + strings.Join(parts, ", ")
}

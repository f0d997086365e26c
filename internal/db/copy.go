package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// CopyFrom streams items into table over the COPY protocol, mapping each item
// to its column values with row. Run it on a pgx.Tx to make the copy part of
// a larger transaction. A short copy is reported as an error.
func CopyFrom[T any](ctx context.Context, q Querier, table string, columns []string, items []T, row func(T) []any) (int64, error) {
	if len(items) == 0 {
		return 0, nil
	}

	src := pgx.CopyFromSlice(len(items), func(i int) ([]any, error) {
		return row(items[i]), nil
	})
	n, err := q.CopyFrom(ctx, pgx.Identifier{table}, columns, src)
	if err != nil {
		return 0, eris.Wrapf(err, "db: COPY INTO %s", table)
	}
	if n != int64(len(items)) {
		return n, eris.Errorf("db: COPY INTO %s wrote %d of %d rows", table, n, len(items))
	}
	return n, nil
}

package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/record-pager/pkg/pagination"
	"github.com/Sternrassler/record-pager/pkg/records"
)

// Table reads pages of one table with LIMIT/OFFSET. Rows are scanned into T by
// column name, so T's db tags must match the selected columns.
type Table[T any] struct {
	pool    *pgxpool.Pool
	name    string
	columns []string
	orderBy string
	values  func(*T) []any

	filter string
	args   []any
	logger zerolog.Logger
}

// NewTable creates a reader for table. orderBy must give a stable order,
// otherwise rows can move between pages. values returns a row's column values in
// the order of columns and is used by Insert.
func NewTable[T any](pool *pgxpool.Pool, table string, columns []string, orderBy string, values func(*T) []any) *Table[T] {
	return &Table[T]{
		pool:    pool,
		name:    table,
		columns: columns,
		orderBy: orderBy,
		values:  values,
		logger:  log.With().Str("component", "postgres").Str("table", table).Logger(),
	}
}

// Where returns a copy restricted by cond. Placeholders in cond are numbered from $1.
func (t *Table[T]) Where(cond string, args ...any) *Table[T] {
	c := *t
	c.filter = cond
	c.args = append([]any(nil), args...)
	return &c
}

// FetchPage implements pagination.Fetcher.
func (t *Table[T]) FetchPage(ctx context.Context, page, pageSize int) ([]*T, error) {
	args := append(append([]any(nil), t.args...), pageSize, pagination.Offset(page, pageSize))

	rows, err := t.pool.Query(ctx, t.pageQuery(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", t.name, err)
	}

	items, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[T])
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", t.name, err)
	}

	t.logger.Debug().Int("page", page).Int("page_size", pageSize).Int("rows", len(items)).Msg("Page queried")
	return items, nil
}

// Count implements pagination.Fetcher.
func (t *Table[T]) Count(ctx context.Context) (int, error) {
	var total int
	if err := t.pool.QueryRow(ctx, t.countQuery(), t.args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", t.name, err)
	}
	return total, nil
}

// Insert copies items into the table.
func (t *Table[T]) Insert(ctx context.Context, items ...*T) (int64, error) {
	if t.values == nil {
		return 0, fmt.Errorf("table %s has no row mapping", t.name)
	}

	n, err := t.pool.CopyFrom(ctx,
		pgx.Identifier{t.name},
		t.columns,
		pgx.CopyFromSlice(len(items), func(i int) ([]any, error) {
			return t.values(items[i]), nil
		}),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert into %s: %w", t.name, err)
	}
	return n, nil
}

func (t *Table[T]) where() string {
	if t.filter == "" {
		return ""
	}
	return " WHERE " + t.filter
}

func (t *Table[T]) pageQuery() string {
	n := len(t.args)
	return fmt.Sprintf("SELECT %s FROM %s%s ORDER BY %s LIMIT $%d OFFSET $%d",
		strings.Join(t.columns, ", "), t.name, t.where(), t.orderBy, n+1, n+2)
}

func (t *Table[T]) countQuery() string {
	return fmt.Sprintf("SELECT COUNT(*) FROM %s%s", t.name, t.where())
}

// Tickets returns the tickets table, newest first.
func Tickets(pool *pgxpool.Pool) *Table[records.Ticket] {
	return NewTable(pool, "tickets",
		[]string{"id", "number", "title", "status", "station_id", "created_at"},
		"created_at DESC, id",
		func(r *records.Ticket) []any {
			return []any{r.ID, r.Number, r.Title, r.Status, r.StationID, r.CreatedAt}
		})
}

// Stations returns the stations table ordered by name.
func Stations(pool *pgxpool.Pool) *Table[records.Station] {
	return NewTable(pool, "stations",
		[]string{"id", "name", "location", "created_at"},
		"name, id",
		func(r *records.Station) []any {
			return []any{r.ID, r.Name, r.Location, r.CreatedAt}
		})
}

// Collections returns the collections table ordered by name.
func Collections(pool *pgxpool.Pool) *Table[records.Collection] {
	return NewTable(pool, "collections",
		[]string{"id", "name", "description", "ticket_count", "created_at"},
		"name, id",
		func(r *records.Collection) []any {
			return []any{r.ID, r.Name, r.Description, r.TicketCount, r.CreatedAt}
		})
}

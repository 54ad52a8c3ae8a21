// Package sqlite serves record pages from a SQLite database through gorm.
//
// It is the default source for local runs of the proxy and for the examples.
package sqlite

import (
	"context"
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Sternrassler/record-pager/pkg/pagination"
	"github.com/Sternrassler/record-pager/pkg/records"
)

// Open opens the database at path and migrates the record tables.
// Use ":memory:" for a throwaway database.
func Open(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	if err := db.AutoMigrate(&records.Station{}, &records.Ticket{}, &records.Collection{}); err != nil {
		return nil, fmt.Errorf("failed to migrate sqlite database: %w", err)
	}
	return db, nil
}

// Repository reads and writes one record type.
type Repository[T any] struct {
	db      *gorm.DB
	orderBy string
	scopes  []func(*gorm.DB) *gorm.DB
}

// NewRepository creates a repository ordered by orderBy, which must give a stable order.
func NewRepository[T any](db *gorm.DB, orderBy string) *Repository[T] {
	return &Repository[T]{db: db, orderBy: orderBy}
}

// Where returns a copy restricted by query and args, as in gorm's Where.
func (r *Repository[T]) Where(query any, args ...any) *Repository[T] {
	c := *r
	c.scopes = append(append([]func(*gorm.DB) *gorm.DB(nil), r.scopes...), func(db *gorm.DB) *gorm.DB {
		return db.Where(query, args...)
	})
	return &c
}

// FetchPage implements pagination.Fetcher.
func (r *Repository[T]) FetchPage(ctx context.Context, page, pageSize int) ([]*T, error) {
	var items []*T
	err := r.query(ctx).
		Order(r.orderBy).
		Limit(pageSize).
		Offset(pagination.Offset(page, pageSize)).
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query page %d: %w", page, err)
	}
	return items, nil
}

// Count implements pagination.Fetcher.
func (r *Repository[T]) Count(ctx context.Context) (int, error) {
	var total int64
	if err := r.query(ctx).Count(&total).Error; err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return int(total), nil
}

// Create inserts items in one batch.
func (r *Repository[T]) Create(ctx context.Context, items ...*T) error {
	if len(items) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(items).Error
}

// Save updates or inserts item.
func (r *Repository[T]) Save(ctx context.Context, item *T) error {
	return r.db.WithContext(ctx).Save(item).Error
}

// Delete removes the record with the given primary key.
func (r *Repository[T]) Delete(ctx context.Context, id any) error {
	var zero T
	return r.db.WithContext(ctx).Delete(&zero, "id = ?", id).Error
}

func (r *Repository[T]) query(ctx context.Context) *gorm.DB {
	var zero T
	return r.db.WithContext(ctx).Model(&zero).Scopes(r.scopes...)
}

// Tickets returns the ticket repository, newest first.
func Tickets(db *gorm.DB) *Repository[records.Ticket] {
	return NewRepository[records.Ticket](db, "created_at DESC, id")
}

// Stations returns the station repository ordered by name.
func Stations(db *gorm.DB) *Repository[records.Station] {
	return NewRepository[records.Station](db, "name, id")
}

// Collections returns the collection repository ordered by name.
func Collections(db *gorm.DB) *Repository[records.Collection] {
	return NewRepository[records.Collection](db, "name, id")
}

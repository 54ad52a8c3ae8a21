// Package records defines the record types served by the list views.
//
// The struct tags serve every source: db for pgx row scanning, gorm for the
// SQLite repository and json for the remote page protocol and the proxy.
package records

import (
	"time"

	"github.com/google/uuid"
)

// Ticket status values.
const (
	StatusOpen     = "open"
	StatusAssigned = "assigned"
	StatusClosed   = "closed"
)

// Ticket is a work item raised at a station.
type Ticket struct {
	ID        uuid.UUID `json:"id" db:"id" gorm:"type:text;primaryKey"`
	Number    string    `json:"number" db:"number" gorm:"not null;index"`
	Title     string    `json:"title" db:"title" gorm:"not null"`
	Status    string    `json:"status" db:"status" gorm:"not null;default:open"`
	StationID uuid.UUID `json:"station_id" db:"station_id" gorm:"type:text;index"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Equal compares the fields a list row renders.
func (t *Ticket) Equal(o *Ticket) bool {
	if t == nil || o == nil {
		return t == o
	}
	return t.ID == o.ID &&
		t.Number == o.Number &&
		t.Title == o.Title &&
		t.Status == o.Status &&
		t.StationID == o.StationID &&
		t.CreatedAt.Equal(o.CreatedAt)
}

// Station is a location tickets are raised at.
type Station struct {
	ID        uuid.UUID `json:"id" db:"id" gorm:"type:text;primaryKey"`
	Name      string    `json:"name" db:"name" gorm:"not null;uniqueIndex"`
	Location  string    `json:"location" db:"location"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Equal compares the fields a list row renders.
func (s *Station) Equal(o *Station) bool {
	if s == nil || o == nil {
		return s == o
	}
	return s.ID == o.ID && s.Name == o.Name && s.Location == o.Location && s.CreatedAt.Equal(o.CreatedAt)
}

// Collection groups tickets under a name.
type Collection struct {
	ID          uuid.UUID `json:"id" db:"id" gorm:"type:text;primaryKey"`
	Name        string    `json:"name" db:"name" gorm:"not null"`
	Description string    `json:"description" db:"description"`
	TicketCount int       `json:"ticket_count" db:"ticket_count"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// Equal compares the fields a list row renders.
func (c *Collection) Equal(o *Collection) bool {
	if c == nil || o == nil {
		return c == o
	}
	return c.ID == o.ID &&
		c.Name == o.Name &&
		c.Description == o.Description &&
		c.TicketCount == o.TicketCount &&
		c.CreatedAt.Equal(o.CreatedAt)
}

// NewTicket creates an open ticket with a fresh ID.
func NewTicket(number, title string, stationID uuid.UUID) *Ticket {
	return &Ticket{
		ID:        uuid.New(),
		Number:    number,
		Title:     title,
		Status:    StatusOpen,
		StationID: stationID,
		CreatedAt: time.Now().UTC(),
	}
}

// NewStation creates a station with a fresh ID.
func NewStation(name, location string) *Station {
	return &Station{
		ID:        uuid.New(),
		Name:      name,
		Location:  location,
		CreatedAt: time.Now().UTC(),
	}
}

// NewCollection creates an empty collection with a fresh ID.
func NewCollection(name, description string) *Collection {
	return &Collection{
		ID:          uuid.New(),
		Name:        name,
		Description: description,
		CreatedAt:   time.Now().UTC(),
	}
}

package main

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/Sternrassler/record-pager/pkg/records"
	"github.com/Sternrassler/record-pager/pkg/store/sqlite"
)

var seedStations = []struct{ name, location string }{
	{"North Desk", "Building A"},
	{"South Desk", "Building B"},
	{"Warehouse", "Dock 3"},
}

// seedSQLite writes n demo tickets, the stations they belong to and one
// collection into an empty database. It reports the number of tickets written.
func seedSQLite(ctx context.Context, db *gorm.DB, n int) (int, error) {
	tickets := sqlite.Tickets(db)
	existing, err := tickets.Count(ctx)
	if err != nil {
		return 0, err
	}
	if existing > 0 {
		return 0, nil
	}

	stations := make([]*records.Station, len(seedStations))
	for i, s := range seedStations {
		stations[i] = records.NewStation(s.name, s.location)
	}
	if err := sqlite.Stations(db).Create(ctx, stations...); err != nil {
		return 0, err
	}

	batch := make([]*records.Ticket, n)
	for i := range batch {
		t := records.NewTicket(fmt.Sprintf("T-%03d", i+1), fmt.Sprintf("Demo ticket %d", i+1), stations[i%len(stations)].ID)
		if i%4 == 0 {
			t.Status = records.StatusClosed
		}
		batch[i] = t
	}
	if err := tickets.Create(ctx, batch...); err != nil {
		return 0, err
	}

	demo := records.NewCollection("Demo", "Seeded tickets")
	demo.TicketCount = n
	if err := sqlite.Collections(db).Create(ctx, demo); err != nil {
		return 0, err
	}
	return n, nil
}

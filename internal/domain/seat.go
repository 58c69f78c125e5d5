package domain

import (
	"context"
	"fmt"

	"github.com/samber/lo"
)

const (
	DefaultSeatRows = 10
	DefaultSeatCols = 10
)

type SeatState int

const (
	SeatFree SeatState = iota
	SeatOccupied
)

// Seat is a zero-indexed coordinate on a show's seat map.
type Seat struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

func (s Seat) String() string {
	return fmt.Sprintf("(%d,%d)", s.Row, s.Col)
}

// SeatMap is the occupancy grid of a single show. Rows and Cols never change
// after the show is created. Version is bumped by the storage layer on every
// committed write and is used to detect lost updates.
type SeatMap struct {
	Rows    int           `json:"rows"`
	Cols    int           `json:"cols"`
	Cells   [][]SeatState `json:"cells"`
	Version int           `json:"version"`
}

func NewSeatMap(rows, cols int) SeatMap {
	cells := make([][]SeatState, rows)
	for i := range cells {
		cells[i] = make([]SeatState, cols)
	}

	return SeatMap{
		Rows:  rows,
		Cols:  cols,
		Cells: cells,
	}
}

func (m SeatMap) InBounds(s Seat) bool {
	return s.Row >= 0 && s.Row < m.Rows && s.Col >= 0 && s.Col < m.Cols
}

// OutOfRange returns every seat that falls outside the grid, in request order.
func (m SeatMap) OutOfRange(seats []Seat) []Seat {
	return lo.Filter(seats, func(s Seat, _ int) bool {
		return !m.InBounds(s)
	})
}

// Occupied returns every seat that is already taken, in request order. Seats
// must be in bounds.
func (m SeatMap) Occupied(seats []Seat) []Seat {
	return lo.Filter(seats, func(s Seat, _ int) bool {
		return m.Cells[s.Row][s.Col] == SeatOccupied
	})
}

func (m *SeatMap) Occupy(seats []Seat) {
	for _, s := range seats {
		m.Cells[s.Row][s.Col] = SeatOccupied
	}
}

func (m *SeatMap) Free(seats []Seat) {
	for _, s := range seats {
		m.Cells[s.Row][s.Col] = SeatFree
	}
}

func (m SeatMap) FreeCount() int {
	count := 0

	for _, row := range m.Cells {
		for _, cell := range row {
			if cell == SeatFree {
				count++
			}
		}
	}

	return count
}

func (m SeatMap) Clone() SeatMap {
	clone := SeatMap{
		Rows:    m.Rows,
		Cols:    m.Cols,
		Version: m.Version,
		Cells:   make([][]SeatState, len(m.Cells)),
	}

	for i, row := range m.Cells {
		clone.Cells[i] = append([]SeatState(nil), row...)
	}

	return clone
}

// UniqueSeats drops repeated coordinates, keeping the first occurrence.
func UniqueSeats(seats []Seat) []Seat {
	return lo.Uniq(seats)
}

// SeatMapCache holds availability snapshots. Get reports the show's
// invalidation generation alongside the snapshot, and Set drops the write when
// an Invalidate ran after that generation was read.
type SeatMapCache interface {
	Get(ctx context.Context, showID int) (*SeatMap, int64, error)
	Set(ctx context.Context, showID int, generation int64, seatMap SeatMap) error
	Invalidate(ctx context.Context, showID int) error
}

package domain

import (
	"context"
	"time"
)

type ShowPhase string

const (
	ShowScheduled ShowPhase = "scheduled"
	ShowActive    ShowPhase = "active"
	ShowPast      ShowPhase = "past"
)

type Show struct {
	ID              int
	MovieID         int
	ScreenID        int
	TheaterID       int
	StartTime       time.Time
	DurationMinutes int
	SeatMap         SeatMap
	CreatedAt       time.Time
}

func NewShow(movie *Movie, screen *Screen, start time.Time, durationMinutes int) *Show {
	return &Show{
		MovieID:         movie.ID,
		ScreenID:        screen.ID,
		TheaterID:       screen.TheaterID,
		StartTime:       start.UTC(),
		DurationMinutes: durationMinutes,
		SeatMap:         NewSeatMap(screen.Rows, screen.Cols),
	}
}

func (s Show) EndTime() time.Time {
	return s.StartTime.Add(time.Duration(s.DurationMinutes) * time.Minute)
}

func (s Show) Interval() Interval {
	return Interval{Start: s.StartTime, End: s.EndTime()}
}

// Phase derives the show's lifecycle stage from the clock; nothing about it
// is stored.
func (s Show) Phase(now time.Time) ShowPhase {
	switch {
	case now.Before(s.StartTime):
		return ShowScheduled
	case now.Before(s.EndTime()):
		return ShowActive
	default:
		return ShowPast
	}
}

// Interval is the half-open range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether the two intervals share any instant. Intervals
// that only touch at a boundary do not overlap.
func (i Interval) Overlaps(other Interval) bool {
	return other.Start.Before(i.End) && other.End.After(i.Start)
}

// FindOverlap returns the first show whose interval intersects candidate, or
// nil when the slot is free.
func FindOverlap(shows []Show, candidate Interval) *Show {
	for i := range shows {
		if shows[i].Interval().Overlaps(candidate) {
			return &shows[i]
		}
	}

	return nil
}

type ShowRepository interface {
	GetByID(ctx context.Context, id int) (*Show, error)
	GetSeatMap(ctx context.Context, showID int) (*SeatMap, error)
	ListByScreen(ctx context.Context, screenID int) ([]Show, error)
	ListByMovieAndDate(ctx context.Context, movieID int, day time.Time) ([]Show, error)
	// CreateOnScreen serializes show creation per screen. build receives every
	// show already on the screen and returns the show to insert, or an error
	// that aborts the creation.
	CreateOnScreen(ctx context.Context, screenID int, build func(existing []Show) (*Show, error)) (*Show, error)
}

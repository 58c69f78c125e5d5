package domain

import (
	"context"
	"time"
)

type Movie struct {
	ID              int
	Title           string
	DurationMinutes int
	Genre           string
	Language        string
	ReleaseDate     *time.Time
}

type Theater struct {
	ID       int
	Name     string
	Location string
}

// Screen is a physical auditorium. Rows and Cols form the seat template that
// every show scheduled on it starts from.
type Screen struct {
	ID        int
	TheaterID int
	Name      string
	Rows      int
	Cols      int
}

type CatalogRepository interface {
	GetMovie(ctx context.Context, id int) (*Movie, error)
	GetScreen(ctx context.Context, id int) (*Screen, error)
}

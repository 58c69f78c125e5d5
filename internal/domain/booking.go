package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type BookingStatus string

const (
	BookingConfirmed BookingStatus = "CONFIRMED"
	BookingCancelled BookingStatus = "CANCELLED"
)

type Booking struct {
	ID          uuid.UUID
	UserID      int
	ShowID      int
	Seats       []Seat
	Status      BookingStatus
	CreatedAt   time.Time
	CancelledAt *time.Time
}

func NewBooking(userID, showID int, seats []Seat, now time.Time) *Booking {
	return &Booking{
		ID:        uuid.New(),
		UserID:    userID,
		ShowID:    showID,
		Seats:     append([]Seat(nil), seats...),
		Status:    BookingConfirmed,
		CreatedAt: now.UTC(),
	}
}

func (b Booking) Active() bool {
	return b.Status == BookingConfirmed
}

func (b *Booking) Cancel(now time.Time) {
	t := now.UTC()
	b.Status = BookingCancelled
	b.CancelledAt = &t
}

// User is the authenticated caller as vouched for by the identity provider.
type User struct {
	ID    int `validate:"min=1"`
	Email string
	Admin bool
}

type BookingRepository interface {
	// Reserve runs apply against the show's current seat map inside a single
	// transaction. When apply returns a booking, the mutated seat map and the
	// booking are committed together; when it returns an error nothing is
	// written.
	Reserve(ctx context.Context, showID int, apply func(seatMap *SeatMap) (*Booking, error)) (*Booking, error)
	// Cancel loads an active booking and its show's seat map in one
	// transaction, runs apply and commits both when apply succeeds.
	Cancel(ctx context.Context, bookingID uuid.UUID, apply func(booking *Booking, seatMap *SeatMap) error) (*Booking, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Booking, error)
	ListByUser(ctx context.Context, userID int, pagination Pagination) ([]Booking, *Metadata, error)
}

// Package api holds the request and response bodies of the HTTP surface.
package api

import (
	"time"

	"github.com/google/uuid"
)

type ErrorResponse struct {
	Code              string    `json:"code,omitempty"`
	Message           string    `json:"message"`
	Seats             []Seat    `json:"seats,omitempty"`
	ConflictingShowId *int      `json:"conflictingShowId,omitempty"`
	RequestId         string    `json:"requestId"`
	Timestamp         time.Time `json:"timestamp"`
}

type ValidationError struct {
	Field string `json:"field"`
	Issue string `json:"issue"`
}

type ValidationErrorResponse struct {
	Message          string            `json:"message"`
	RequestId        string            `json:"requestId"`
	Timestamp        time.Time         `json:"timestamp"`
	ValidationErrors []ValidationError `json:"validationErrors"`
}

type SystemInfo struct {
	Version     string `json:"version"`
	Environment string `json:"environment"`
}

type HealthcheckResponse struct {
	Status     string     `json:"status"`
	SystemInfo SystemInfo `json:"systemInfo"`
}

type Seat struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

type CreateBookingRequest struct {
	Seats []Seat `json:"seats"`
}

type BookingResponse struct {
	Id          uuid.UUID  `json:"id"`
	UserId      int        `json:"userId"`
	ShowId      int        `json:"showId"`
	Seats       []Seat     `json:"seats"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"createdAt"`
	CancelledAt *time.Time `json:"cancelledAt,omitempty"`
}

type Metadata struct {
	CurrentPage  int `json:"currentPage"`
	FirstPage    int `json:"firstPage"`
	LastPage     int `json:"lastPage"`
	PageSize     int `json:"pageSize"`
	TotalRecords int `json:"totalRecords"`
}

type UserBookingsResponse struct {
	Bookings []BookingResponse `json:"bookings"`
	Metadata Metadata          `json:"metadata"`
}

type GetUserBookingsParams struct {
	Page     *int `json:"page,omitempty" validate:"omitempty,min=1"`
	PageSize *int `json:"pageSize,omitempty" validate:"omitempty,min=1,max=100"`
}

// SeatMapResponse reports every cell as 0 (free) or 1 (booked).
type SeatMapResponse struct {
	ShowId         int     `json:"showId"`
	Rows           int     `json:"rows"`
	Cols           int     `json:"cols"`
	Version        int     `json:"version"`
	AvailableSeats int     `json:"availableSeats"`
	Cells          [][]int `json:"cells"`
}

type CreateShowRequest struct {
	MovieId         int       `json:"movieId"`
	StartTime       time.Time `json:"startTime"`
	DurationMinutes int       `json:"durationMinutes"`
}

type ShowResponse struct {
	Id              int       `json:"id"`
	MovieId         int       `json:"movieId"`
	ScreenId        int       `json:"screenId"`
	TheaterId       int       `json:"theaterId"`
	StartTime       time.Time `json:"startTime"`
	EndTime         time.Time `json:"endTime"`
	DurationMinutes int       `json:"durationMinutes"`
	Phase           string    `json:"phase"`
	AvailableSeats  int       `json:"availableSeats"`
}

type ShowsResponse struct {
	Shows []ShowResponse `json:"shows"`
}

type GetMovieShowsParams struct {
	Date string `json:"date" validate:"required,date_only"`
}

package app

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/metinatakli/cinex-booking/api"
	"github.com/metinatakli/cinex-booking/internal/booking"
	"github.com/metinatakli/cinex-booking/internal/domain"
)

func (app *Application) CreateBookingHandler(w http.ResponseWriter, r *http.Request) {
	showID, err := readIDParam(r, "showId")
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	var input api.CreateBookingRequest

	err = app.readJSON(w, r, &input)
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	user := app.contextMustGetUser(r)

	result, err := app.bookings.Reserve(r.Context(), booking.ReserveInput{
		ShowID: showID,
		User:   *user,
		Seats:  toDomainSeats(input.Seats),
	})
	if err != nil {
		app.domainErrorResponse(w, r, err)
		return
	}

	headers := make(http.Header)
	headers.Set("Location", fmt.Sprintf("/bookings/%s", result.ID))

	err = app.writeJSON(w, http.StatusCreated, toBookingResponse(result), headers)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

func (app *Application) DeleteBookingHandler(w http.ResponseWriter, r *http.Request) {
	bookingID, err := uuid.Parse(chi.URLParam(r, "bookingId"))
	if err != nil {
		app.badRequestResponse(w, r, fmt.Errorf("bookingId must be a valid UUID"))
		return
	}

	user := app.contextMustGetUser(r)

	result, err := app.bookings.Release(r.Context(), booking.ReleaseInput{
		BookingID: bookingID,
		User:      *user,
	})
	if err != nil {
		app.domainErrorResponse(w, r, err)
		return
	}

	err = app.writeJSON(w, http.StatusOK, toBookingResponse(result), nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

func (app *Application) GetUserBookingsHandler(w http.ResponseWriter, r *http.Request) {
	var params api.GetUserBookingsParams
	var err error

	params.Page, err = readIntQuery(r, "page")
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	params.PageSize, err = readIntQuery(r, "pageSize")
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	err = app.validator.Struct(params)
	if err != nil {
		app.failedValidationResponse(w, r, err)
		return
	}

	user := app.contextMustGetUser(r)

	bookings, metadata, err := app.bookings.ListUserBookings(r.Context(), user.ID, toPagination(params))
	if err != nil {
		app.domainErrorResponse(w, r, err)
		return
	}

	resp := api.UserBookingsResponse{
		Bookings: make([]api.BookingResponse, len(bookings)),
		Metadata: toAPIMetadata(metadata),
	}

	for i := range bookings {
		resp.Bookings[i] = toBookingResponse(&bookings[i])
	}

	err = app.writeJSON(w, http.StatusOK, resp, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

func toPagination(params api.GetUserBookingsParams) domain.Pagination {
	pagination := domain.Pagination{
		Page:     domain.DefaultPage,
		PageSize: domain.DefaultPageSize,
	}

	if params.Page != nil {
		pagination.Page = *params.Page
	}

	if params.PageSize != nil {
		pagination.PageSize = *params.PageSize
	}

	return pagination
}

func toBookingResponse(b *domain.Booking) api.BookingResponse {
	return api.BookingResponse{
		Id:          b.ID,
		UserId:      b.UserID,
		ShowId:      b.ShowID,
		Seats:       toAPISeats(b.Seats),
		Status:      string(b.Status),
		CreatedAt:   b.CreatedAt,
		CancelledAt: b.CancelledAt,
	}
}

func toAPIMetadata(m *domain.Metadata) api.Metadata {
	if m == nil {
		return api.Metadata{}
	}

	return api.Metadata{
		CurrentPage:  m.CurrentPage,
		FirstPage:    m.FirstPage,
		LastPage:     m.LastPage,
		PageSize:     m.PageSize,
		TotalRecords: m.TotalRecords,
	}
}

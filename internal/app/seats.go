package app

import (
	"net/http"

	"github.com/metinatakli/cinex-booking/api"
	"github.com/metinatakli/cinex-booking/internal/domain"
)

func (app *Application) GetSeatMapHandler(w http.ResponseWriter, r *http.Request) {
	showID, err := readIDParam(r, "showId")
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	seatMap, err := app.bookings.GetAvailability(r.Context(), showID)
	if err != nil {
		app.domainErrorResponse(w, r, err)
		return
	}

	err = app.writeJSON(w, http.StatusOK, toSeatMapResponse(showID, seatMap), nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

func toSeatMapResponse(showID int, seatMap *domain.SeatMap) api.SeatMapResponse {
	cells := make([][]int, len(seatMap.Cells))
	for i, row := range seatMap.Cells {
		cells[i] = make([]int, len(row))
		for j, cell := range row {
			cells[i][j] = int(cell)
		}
	}

	return api.SeatMapResponse{
		ShowId:         showID,
		Rows:           seatMap.Rows,
		Cols:           seatMap.Cols,
		Version:        seatMap.Version,
		AvailableSeats: seatMap.FreeCount(),
		Cells:          cells,
	}
}

func toAPISeats(seats []domain.Seat) []api.Seat {
	if len(seats) == 0 {
		return nil
	}

	resp := make([]api.Seat, len(seats))
	for i, s := range seats {
		resp[i] = api.Seat{Row: s.Row, Col: s.Col}
	}

	return resp
}

func toDomainSeats(seats []api.Seat) []domain.Seat {
	resp := make([]domain.Seat, len(seats))
	for i, s := range seats {
		resp[i] = domain.Seat{Row: s.Row, Col: s.Col}
	}

	return resp
}

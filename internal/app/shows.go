package app

import (
	"fmt"
	"net/http"
	"time"

	"github.com/metinatakli/cinex-booking/api"
	"github.com/metinatakli/cinex-booking/internal/domain"
	"github.com/metinatakli/cinex-booking/internal/scheduler"
	appvalidator "github.com/metinatakli/cinex-booking/internal/validator"
)

func (app *Application) CreateShowHandler(w http.ResponseWriter, r *http.Request) {
	screenID, err := readIDParam(r, "screenId")
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	var input api.CreateShowRequest

	err = app.readJSON(w, r, &input)
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	show, err := app.scheduler.ScheduleShow(r.Context(), scheduler.ScheduleInput{
		ScreenID:        screenID,
		MovieID:         input.MovieId,
		StartTime:       input.StartTime,
		DurationMinutes: input.DurationMinutes,
	})
	if err != nil {
		app.domainErrorResponse(w, r, err)
		return
	}

	headers := make(http.Header)
	headers.Set("Location", fmt.Sprintf("/shows/%d/seats", show.ID))

	err = app.writeJSON(w, http.StatusCreated, app.toShowResponse(show), headers)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

func (app *Application) GetScreenShowsHandler(w http.ResponseWriter, r *http.Request) {
	screenID, err := readIDParam(r, "screenId")
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	shows, err := app.scheduler.ListScreenShows(r.Context(), screenID)
	if err != nil {
		app.domainErrorResponse(w, r, err)
		return
	}

	app.writeShows(w, r, shows)
}

func (app *Application) GetMovieShowsHandler(w http.ResponseWriter, r *http.Request) {
	movieID, err := readIDParam(r, "movieId")
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	params := api.GetMovieShowsParams{Date: r.URL.Query().Get("date")}

	err = app.validator.Struct(params)
	if err != nil {
		app.failedValidationResponse(w, r, err)
		return
	}

	// already validated against the same layout
	day, _ := time.Parse(appvalidator.DateLayout, params.Date)

	shows, err := app.scheduler.ListMovieShows(r.Context(), movieID, day)
	if err != nil {
		app.domainErrorResponse(w, r, err)
		return
	}

	app.writeShows(w, r, shows)
}

func (app *Application) writeShows(w http.ResponseWriter, r *http.Request, shows []domain.Show) {
	resp := api.ShowsResponse{Shows: make([]api.ShowResponse, len(shows))}
	for i := range shows {
		resp.Shows[i] = app.toShowResponse(&shows[i])
	}

	err := app.writeJSON(w, http.StatusOK, resp, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

func (app *Application) toShowResponse(show *domain.Show) api.ShowResponse {
	return api.ShowResponse{
		Id:              show.ID,
		MovieId:         show.MovieID,
		ScreenId:        show.ScreenID,
		TheaterId:       show.TheaterID,
		StartTime:       show.StartTime,
		EndTime:         show.EndTime(),
		DurationMinutes: show.DurationMinutes,
		Phase:           string(show.Phase(app.now())),
		AvailableSeats:  show.SeatMap.FreeCount(),
	}
}

package app

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/riandyrn/otelchi"
)

func (app *Application) Routes() http.Handler {
	r := chi.NewRouter()

	r.NotFound(app.notFoundResponse)
	r.MethodNotAllowed(app.methodNotAllowedResponse)

	r.Use(otelchi.Middleware("cinex-booking", otelchi.WithChiRoutes(r)))
	r.Use(middleware.RequestID)
	r.Use(app.logRequest)
	r.Use(app.recoverPanic)
	r.Use(app.authenticate)

	r.Get("/healthcheck", app.GetHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Get("/shows/{showId}/seats", app.GetSeatMapHandler)
	r.Get("/screens/{screenId}/shows", app.GetScreenShowsHandler)
	r.Get("/movies/{movieId}/shows", app.GetMovieShowsHandler)

	r.Group(func(r chi.Router) {
		r.Use(app.requireAuthentication)

		r.Post("/shows/{showId}/bookings", app.CreateBookingHandler)
		r.Delete("/bookings/{bookingId}", app.DeleteBookingHandler)
		r.Get("/users/me/bookings", app.GetUserBookingsHandler)

		r.With(app.requireAdmin).Post("/screens/{screenId}/shows", app.CreateShowHandler)
	})

	return r
}

package app

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/metinatakli/cinex-booking/api"
	"github.com/metinatakli/cinex-booking/internal/booking"
	"github.com/metinatakli/cinex-booking/internal/cache"
	"github.com/metinatakli/cinex-booking/internal/domain"
	"github.com/metinatakli/cinex-booking/internal/lock"
	"github.com/metinatakli/cinex-booking/internal/notify"
	"github.com/metinatakli/cinex-booking/internal/repository"
	"github.com/metinatakli/cinex-booking/internal/scheduler"
	"github.com/metinatakli/cinex-booking/internal/validator"
	"github.com/stretchr/testify/require"
)

const (
	testJWTSecret = "test-secret"
	testJWTIssuer = "cinex-test"
)

var (
	testNow         = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	testReleaseDate = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	alice = domain.User{ID: 1, Email: "alice@example.com"}
	bob   = domain.User{ID: 2, Email: "bob@example.com"}
	admin = domain.User{ID: 99, Email: "admin@example.com", Admin: true}
)

type testEnv struct {
	app      *Application
	store    *repository.MemoryStore
	notifier *notify.MockNotifier
	movie    domain.Movie
	screen   domain.Screen
}

// newTestEnv builds an application on the in-memory store with a released
// movie and a 3x4 screen.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := repository.NewMemoryStore()
	notifier := notify.NewMockNotifier()
	validate := validator.NewValidator()
	locker := lock.NewKeyedMutex()
	now := func() time.Time { return testNow }

	releaseDate := testReleaseDate
	movie := store.AddMovie(domain.Movie{Title: "Arrival", DurationMinutes: 116, ReleaseDate: &releaseDate})
	screen := store.AddScreen(domain.Screen{TheaterID: 1, Name: "Screen 1", Rows: 3, Cols: 4})

	app := &Application{
		config: Config{
			Env: "test",
			JWT: JWTConfig{Secret: testJWTSecret, Issuer: testJWTIssuer},
		},
		logger:    logger,
		validator: validate,
		now:       now,
		bookings: booking.New(booking.Deps{
			Shows:     store.Shows(),
			Bookings:  store.Bookings(),
			Catalog:   store.Catalog(),
			Locker:    locker,
			Cache:     cache.NopSeatMapCache{},
			Notifier:  notifier,
			Validator: validate,
			Logger:    logger,
			Now:       now,
		}),
		scheduler: scheduler.New(scheduler.Deps{
			Shows:     store.Shows(),
			Catalog:   store.Catalog(),
			Locker:    locker,
			Validator: validate,
			Logger:    logger,
		}),
	}

	return &testEnv{
		app:      app,
		store:    store,
		notifier: notifier,
		movie:    movie,
		screen:   screen,
	}
}

// scheduleShow places a two hour show on the test screen starting at start.
func (e *testEnv) scheduleShow(t *testing.T, start time.Time) *domain.Show {
	t.Helper()

	show, err := e.app.scheduler.ScheduleShow(t.Context(), scheduler.ScheduleInput{
		ScreenID:        e.screen.ID,
		MovieID:         e.movie.ID,
		StartTime:       start,
		DurationMinutes: 120,
	})
	require.NoError(t, err)

	return show
}

func (e *testEnv) reserve(t *testing.T, user domain.User, showID int, seats ...domain.Seat) *domain.Booking {
	t.Helper()

	b, err := e.app.bookings.Reserve(t.Context(), booking.ReserveInput{ShowID: showID, User: user, Seats: seats})
	require.NoError(t, err)

	return b
}

func (e *testEnv) do(t *testing.T, method, url string, body any, user *domain.User) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader = http.NoBody
	if body != nil {
		jsonData, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(jsonData)
	}

	r := httptest.NewRequest(method, url, reader)
	r.Header.Set("Content-Type", "application/json")

	if user != nil {
		r.Header.Set("Authorization", "Bearer "+issueTestToken(t, *user))
	}

	w := httptest.NewRecorder()
	e.app.Routes().ServeHTTP(w, r)

	return w
}

func issueTestToken(t *testing.T, user domain.User) string {
	t.Helper()

	token, err := IssueToken(testJWTSecret, testJWTIssuer, user, time.Hour)
	require.NoError(t, err)

	return token
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&v))

	return v
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) api.ErrorResponse {
	return decode[api.ErrorResponse](t, w)
}

func ptr[T any](v T) *T {
	return &v
}

package integration_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/metinatakli/cinex-booking/internal/booking"
	"github.com/metinatakli/cinex-booking/internal/cache"
	"github.com/metinatakli/cinex-booking/internal/domain"
	"github.com/metinatakli/cinex-booking/internal/lock"
	"github.com/metinatakli/cinex-booking/internal/notify"
	"github.com/metinatakli/cinex-booking/internal/repository"
	"github.com/metinatakli/cinex-booking/internal/scheduler"
	appvalidator "github.com/metinatakli/cinex-booking/internal/validator"
	"github.com/stretchr/testify/suite"
)

// BookingTestSuite drives the engine and the scheduler over the Postgres
// repositories, the Redis locker and the Redis seat map cache.
type BookingTestSuite struct {
	BaseSuite
	shows     *repository.PostgresShowRepository
	bookings  *repository.PostgresBookingRepository
	engine    *booking.Engine
	scheduler *scheduler.Scheduler
	notifier  *notify.MockNotifier
	screenID  int
	movieID   int
}

func TestBookingSuite(t *testing.T) {
	if testing.Short() {
		t.Skip()
	}
	suite.Run(t, new(BookingTestSuite))
}

func (s *BookingTestSuite) SetupTest() {
	s.BaseSuite.SetupTest()

	validate := appvalidator.NewValidator()
	locker := lock.NewRedisLocker(s.redis, s.logger, lock.DefaultRedisLockTTL)
	catalog := repository.NewPostgresCatalogRepository(s.db)

	s.shows = repository.NewPostgresShowRepository(s.db)
	s.bookings = repository.NewPostgresBookingRepository(s.db)
	s.notifier = notify.NewMockNotifier()

	s.engine = booking.New(booking.Deps{
		Shows:     s.shows,
		Bookings:  s.bookings,
		Catalog:   catalog,
		Locker:    locker,
		Cache:     cache.NewRedisSeatMapCache(s.redis, time.Minute),
		Notifier:  s.notifier,
		Validator: validate,
		Logger:    s.logger,
	})

	s.scheduler = scheduler.New(scheduler.Deps{
		Shows:     s.shows,
		Catalog:   catalog,
		Locker:    locker,
		Validator: validate,
		Logger:    s.logger,
	})

	s.screenID, s.movieID = s.seedCatalog(4, 5)
}

func (s *BookingTestSuite) schedule(start time.Time, minutes int) (*domain.Show, error) {
	return s.scheduler.ScheduleShow(context.Background(), scheduler.ScheduleInput{
		ScreenID:        s.screenID,
		MovieID:         s.movieID,
		StartTime:       start,
		DurationMinutes: minutes,
	})
}

func (s *BookingTestSuite) TestScheduleShowPersistsEmptySeatMap() {
	start := time.Date(2095, 1, 1, 18, 0, 0, 0, time.UTC)

	show, err := s.schedule(start, 150)
	s.Require().NoError(err)

	stored, err := s.shows.GetByID(context.Background(), show.ID)
	s.Require().NoError(err)

	s.True(stored.StartTime.Equal(start))
	s.Equal(150, stored.DurationMinutes)
	s.Equal(4, stored.SeatMap.Rows)
	s.Equal(5, stored.SeatMap.Cols)
	s.Equal(1, stored.SeatMap.Version)
	s.Equal(20, stored.SeatMap.FreeCount())

	_, err = s.schedule(start.Add(149*time.Minute), 60)
	s.ErrorIs(err, domain.ErrShowTimeOverlap)

	_, err = s.schedule(start.Add(150*time.Minute), 60)
	s.NoError(err)

	shows, err := s.scheduler.ListMovieShows(context.Background(), s.movieID, start)
	s.Require().NoError(err)
	s.Len(shows, 2)
}

func (s *BookingTestSuite) TestConcurrentSchedulingKeepsScreenFree() {
	start := time.Date(2095, 1, 1, 18, 0, 0, 0, time.UTC)

	const attempts = 8

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		overlaps  int
	)

	for i := range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()

			_, err := s.schedule(start.Add(time.Duration(i)*time.Minute), 120)

			mu.Lock()
			defer mu.Unlock()

			switch {
			case err == nil:
				successes++
			case errors.Is(err, domain.ErrShowTimeOverlap):
				overlaps++
			default:
				s.T().Errorf("unexpected error: %v", err)
			}
		}()
	}

	wg.Wait()

	s.Equal(1, successes)
	s.Equal(attempts-1, overlaps)

	shows, err := s.scheduler.ListScreenShows(context.Background(), s.screenID)
	s.Require().NoError(err)
	s.Len(shows, 1)
}

func (s *BookingTestSuite) TestConcurrentReservationsNeverDoubleBook() {
	show, err := s.schedule(time.Date(2095, 1, 1, 18, 0, 0, 0, time.UTC), 120)
	s.Require().NoError(err)

	const users = 10

	var (
		wg          sync.WaitGroup
		mu          sync.Mutex
		successes   int
		unavailable int
	)

	for i := range users {
		wg.Add(1)
		go func() {
			defer wg.Done()

			// every request shares seat (1,1)
			_, err := s.engine.Reserve(context.Background(), booking.ReserveInput{
				ShowID: show.ID,
				User:   domain.User{ID: i + 1},
				Seats:  []domain.Seat{{Row: 1, Col: 1}, {Row: i % 4, Col: 4}},
			})

			mu.Lock()
			defer mu.Unlock()

			switch {
			case err == nil:
				successes++
			case errors.Is(err, domain.ErrSeatUnavailable):
				unavailable++
			default:
				s.T().Errorf("unexpected error: %v", err)
			}
		}()
	}

	wg.Wait()

	s.Equal(1, successes)
	s.Equal(users-1, unavailable)

	seatMap, err := s.engine.GetAvailability(context.Background(), show.ID)
	s.Require().NoError(err)
	s.Equal(2, seatMap.Version)
	s.Equal(18, seatMap.FreeCount())

	var activeSeats int
	err = s.db.QueryRow(context.Background(),
		`SELECT COUNT(*) FROM booking_seats WHERE show_id = $1 AND released_at IS NULL`, show.ID).Scan(&activeSeats)
	s.Require().NoError(err)
	s.Equal(2, activeSeats)
}

func (s *BookingTestSuite) TestReleaseFreesSeatsForRebooking() {
	ctx := context.Background()

	show, err := s.schedule(time.Date(2095, 1, 1, 18, 0, 0, 0, time.UTC), 120)
	s.Require().NoError(err)

	seats := []domain.Seat{{Row: 0, Col: 0}, {Row: 0, Col: 1}}

	first, err := s.engine.Reserve(ctx, booking.ReserveInput{ShowID: show.ID, User: testUser, Seats: seats})
	s.Require().NoError(err)

	// warm the cache so that release has something to invalidate
	_, err = s.engine.GetAvailability(ctx, show.ID)
	s.Require().NoError(err)

	_, err = s.engine.Release(ctx, booking.ReleaseInput{BookingID: first.ID, User: otherUser})
	s.ErrorIs(err, domain.ErrNotAuthorized)

	released, err := s.engine.Release(ctx, booking.ReleaseInput{BookingID: first.ID, User: testUser})
	s.Require().NoError(err)
	s.Equal(domain.BookingCancelled, released.Status)
	s.NotNil(released.CancelledAt)

	seatMap, err := s.engine.GetAvailability(ctx, show.ID)
	s.Require().NoError(err)
	s.Equal(3, seatMap.Version)
	s.Equal(20, seatMap.FreeCount())

	_, err = s.engine.Release(ctx, booking.ReleaseInput{BookingID: first.ID, User: testUser})
	s.ErrorIs(err, domain.ErrBookingNotFound)

	second, err := s.engine.Reserve(ctx, booking.ReserveInput{ShowID: show.ID, User: otherUser, Seats: seats})
	s.Require().NoError(err)

	bookings, metadata, err := s.engine.ListUserBookings(ctx, testUser.ID, domain.Pagination{Page: 1, PageSize: 10})
	s.Require().NoError(err)
	s.Equal(1, metadata.TotalRecords)
	s.Equal(domain.BookingCancelled, bookings[0].Status)

	stored, err := s.bookings.GetByID(ctx, second.ID)
	s.Require().NoError(err)
	s.Equal(seats, stored.Seats)

	subjects := []string{}
	for _, n := range s.notifier.Sent() {
		subjects = append(subjects, n.Subject)
	}
	s.Equal([]string{"Booking Confirmation", "Booking Cancelled", "Booking Confirmation"}, subjects)
}

func (s *BookingTestSuite) TestSeatIndexRejectsStaleSeatMap() {
	ctx := context.Background()

	show, err := s.schedule(time.Date(2095, 1, 1, 18, 0, 0, 0, time.UTC), 120)
	s.Require().NoError(err)

	seat := []domain.Seat{{Row: 2, Col: 2}}

	_, err = s.engine.Reserve(ctx, booking.ReserveInput{ShowID: show.ID, User: testUser, Seats: seat})
	s.Require().NoError(err)

	// a writer that ignores the seat map still cannot take the seat
	_, err = s.bookings.Reserve(ctx, show.ID, func(seatMap *domain.SeatMap) (*domain.Booking, error) {
		return domain.NewBooking(otherUser.ID, show.ID, seat, time.Now()), nil
	})
	s.ErrorIs(err, domain.ErrSeatAlreadyReserved)

	seatMap, err := s.shows.GetSeatMap(ctx, show.ID)
	s.Require().NoError(err)
	s.Equal(2, seatMap.Version, "the failed transaction must not bump the version")
}

func (s *BookingTestSuite) TestReserveReportsMissingShow() {
	_, err := s.engine.Reserve(context.Background(), booking.ReserveInput{
		ShowID: 4242,
		User:   testUser,
		Seats:  []domain.Seat{{Row: 0, Col: 0}},
	})
	s.ErrorIs(err, domain.ErrShowNotFound)
}

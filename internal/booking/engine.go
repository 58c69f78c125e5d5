// Package booking is the seat map engine: it reserves and releases seats on
// a show so that no seat is ever held by two active bookings.
package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/metinatakli/cinex-booking/internal/domain"
	"github.com/metinatakli/cinex-booking/internal/lock"
	"github.com/metinatakli/cinex-booking/internal/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	maxAttempts = 3

	subjectConfirmed = "Booking Confirmation"
	subjectCancelled = "Booking Cancelled"
)

type ReserveInput struct {
	ShowID int           `json:"showId"`
	User   domain.User   `json:"-"`
	Seats  []domain.Seat `json:"seats" validate:"max=100"`
}

type ReleaseInput struct {
	BookingID uuid.UUID   `json:"bookingId" validate:"required"`
	User      domain.User `json:"-"`
}

type Deps struct {
	Shows     domain.ShowRepository
	Bookings  domain.BookingRepository
	Catalog   domain.CatalogRepository
	Locker    lock.Locker
	Cache     domain.SeatMapCache
	Notifier  domain.Notifier
	Validator *validator.Validate
	Logger    *slog.Logger
	Now       func() time.Time
}

type Engine struct {
	shows    domain.ShowRepository
	bookings domain.BookingRepository
	catalog  domain.CatalogRepository
	locker   lock.Locker
	cache    domain.SeatMapCache
	notifier domain.Notifier
	validate *validator.Validate
	logger   *slog.Logger
	tracer   trace.Tracer
	now      func() time.Time
}

func New(deps Deps) *Engine {
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	return &Engine{
		shows:    deps.Shows,
		bookings: deps.Bookings,
		catalog:  deps.Catalog,
		locker:   deps.Locker,
		cache:    deps.Cache,
		notifier: deps.Notifier,
		validate: deps.Validator,
		logger:   deps.Logger,
		tracer:   otel.Tracer("github.com/metinatakli/cinex-booking/internal/booking"),
		now:      now,
	}
}

// Reserve books every requested seat or none of them. Duplicate coordinates
// in the request count once.
func (e *Engine) Reserve(ctx context.Context, in ReserveInput) (booking *domain.Booking, err error) {
	ctx, span := e.tracer.Start(ctx, "booking.Reserve", trace.WithAttributes(
		attribute.Int("show.id", in.ShowID),
		attribute.Int("user.id", in.User.ID),
		attribute.Int("seats.requested", len(in.Seats)),
	))
	defer func() { e.finish(span, "reserve", err) }()

	if in.ShowID < 1 {
		return nil, domain.ErrShowNotFound
	}

	if len(in.Seats) == 0 {
		return nil, domain.ErrEmptySeatRequest
	}

	// the batch cap counts distinct seats
	in.Seats = domain.UniqueSeats(in.Seats)
	seats := in.Seats

	err = e.validate.Struct(in)
	if err != nil {
		return nil, fmt.Errorf("invalid reserve request: %w", err)
	}

	err = e.withLock(ctx, "show", lock.ShowKey(in.ShowID), func() error {
		return e.retryOnConflict(ctx, func() error {
			booking, err = e.bookings.Reserve(ctx, in.ShowID, func(seatMap *domain.SeatMap) (*domain.Booking, error) {
				if invalid := seatMap.OutOfRange(seats); len(invalid) > 0 {
					return nil, domain.SeatOutOfRangeError(invalid)
				}

				if taken := seatMap.Occupied(seats); len(taken) > 0 {
					return nil, domain.SeatUnavailableError(taken)
				}

				seatMap.Occupy(seats)

				return domain.NewBooking(in.User.ID, in.ShowID, seats, e.now()), nil
			})

			return err
		})
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrRecordNotFound):
			return nil, domain.ErrShowNotFound
		case errors.Is(err, domain.ErrSeatAlreadyReserved):
			return nil, domain.SeatUnavailableError(seats).WithCause(err)
		default:
			return nil, err
		}
	}

	e.invalidate(ctx, in.ShowID)
	metrics.TrackSeats("reserve", len(seats))

	e.logger.Info("seats reserved",
		"booking_id", booking.ID, "show_id", in.ShowID, "user_id", in.User.ID, "seats", len(seats))

	e.notify(ctx, in.User, subjectConfirmed, booking)

	return booking, nil
}

// Release cancels an active booking and frees exactly its seats. Only the
// user who made the booking may release it.
func (e *Engine) Release(ctx context.Context, in ReleaseInput) (booking *domain.Booking, err error) {
	ctx, span := e.tracer.Start(ctx, "booking.Release", trace.WithAttributes(
		attribute.String("booking.id", in.BookingID.String()),
		attribute.Int("user.id", in.User.ID),
	))
	defer func() { e.finish(span, "release", err) }()

	err = e.validate.Struct(in)
	if err != nil {
		return nil, fmt.Errorf("invalid release request: %w", err)
	}

	existing, err := e.bookings.GetByID(ctx, in.BookingID)
	if err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) {
			return nil, domain.ErrBookingNotFound
		}

		return nil, err
	}

	if !existing.Active() {
		return nil, domain.ErrBookingNotFound
	}

	if existing.UserID != in.User.ID {
		return nil, domain.ErrNotAuthorized
	}

	err = e.withLock(ctx, "show", lock.ShowKey(existing.ShowID), func() error {
		return e.retryOnConflict(ctx, func() error {
			booking, err = e.bookings.Cancel(ctx, in.BookingID, func(b *domain.Booking, seatMap *domain.SeatMap) error {
				if b.UserID != in.User.ID {
					return domain.ErrNotAuthorized
				}

				seatMap.Free(b.Seats)
				b.Cancel(e.now())

				return nil
			})

			return err
		})
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrRecordNotFound):
			return nil, domain.ErrBookingNotFound
		case errors.Is(err, domain.ErrDanglingBooking):
			e.logger.Error("booking references a missing show",
				"booking_id", in.BookingID, "show_id", existing.ShowID)
			return nil, domain.ErrShowNotFound.WithCause(err)
		default:
			return nil, err
		}
	}

	e.invalidate(ctx, booking.ShowID)
	metrics.TrackSeats("release", len(booking.Seats))

	e.logger.Info("booking released",
		"booking_id", booking.ID, "show_id", booking.ShowID, "user_id", in.User.ID, "seats", len(booking.Seats))

	e.notify(ctx, in.User, subjectCancelled, booking)

	return booking, nil
}

// GetAvailability returns a point-in-time copy of the show's seat map.
func (e *Engine) GetAvailability(ctx context.Context, showID int) (seatMap *domain.SeatMap, err error) {
	ctx, span := e.tracer.Start(ctx, "booking.GetAvailability", trace.WithAttributes(
		attribute.Int("show.id", showID),
	))
	defer func() { e.finish(span, "availability", err) }()

	if showID < 1 {
		return nil, domain.ErrShowNotFound
	}

	cached, generation, cacheErr := e.cache.Get(ctx, showID)
	if cacheErr != nil {
		e.logger.Warn("seat map cache read failed", "show_id", showID, "error", cacheErr)
	}
	if cached != nil {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return cached, nil
	}

	seatMap, err = e.shows.GetSeatMap(ctx, showID)
	if err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) {
			return nil, domain.ErrShowNotFound
		}

		return nil, err
	}

	// a writer that committed after the read above has bumped the generation,
	// so this snapshot is dropped instead of outliving the invalidation
	if cacheErr == nil {
		err = e.cache.Set(ctx, showID, generation, *seatMap)
		if err != nil {
			e.logger.Warn("seat map cache write failed", "show_id", showID, "error", err)
		}
	}

	return seatMap, nil
}

// ListUserBookings returns the user's bookings, newest first. Cancelled
// bookings are included.
func (e *Engine) ListUserBookings(
	ctx context.Context,
	userID int,
	pagination domain.Pagination) ([]domain.Booking, *domain.Metadata, error) {

	err := e.validate.Struct(pagination)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid pagination: %w", err)
	}

	return e.bookings.ListByUser(ctx, userID, pagination)
}

func (e *Engine) withLock(ctx context.Context, scope, key string, fn func() error) error {
	start := time.Now()

	unlock, err := e.locker.Lock(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to acquire %s lock: %w", key, err)
	}
	defer unlock()

	metrics.TrackLockWait(scope, time.Since(start))

	return fn()
}

func (e *Engine) retryOnConflict(ctx context.Context, fn func() error) error {
	for attempt := 1; ; attempt++ {
		err := fn()
		if !errors.Is(err, domain.ErrEditConflict) {
			return err
		}

		metrics.TrackEditConflict()

		if attempt == maxAttempts || ctx.Err() != nil {
			return domain.ErrConcurrentUpdate.WithCause(err)
		}

		e.logger.Warn("seat map changed underneath, retrying", "attempt", attempt)
	}
}

func (e *Engine) invalidate(ctx context.Context, showID int) {
	err := e.cache.Invalidate(ctx, showID)
	if err != nil {
		e.logger.Warn("seat map cache invalidation failed", "show_id", showID, "error", err)
	}
}

func (e *Engine) notify(ctx context.Context, user domain.User, subject string, booking *domain.Booking) {
	if user.Email == "" {
		return
	}

	n := domain.Notification{
		Recipient: user.Email,
		Subject:   subject,
		Body:      e.describe(ctx, subject, booking),
	}

	err := e.notifier.Notify(ctx, n)
	if err != nil {
		e.logger.Warn(domain.NotificationFailedError(err).Error(), "booking_id", booking.ID)
	}
}

func (e *Engine) describe(ctx context.Context, subject string, booking *domain.Booking) string {
	title := fmt.Sprintf("show #%d", booking.ShowID)
	showTime := "unknown"

	show, err := e.shows.GetByID(ctx, booking.ShowID)
	if err == nil {
		showTime = show.StartTime.Format(time.RFC1123)

		movie, err := e.catalog.GetMovie(ctx, show.MovieID)
		if err == nil {
			title = movie.Title
		}
	}

	seats := make([]string, len(booking.Seats))
	for i, s := range booking.Seats {
		seats[i] = fmt.Sprintf("Row: %d, Col: %d", s.Row, s.Col)
	}

	if subject == subjectCancelled {
		return fmt.Sprintf("Your booking for the movie %q has been cancelled.\nShowtime: %s\nReleased seats: %s\n",
			title, showTime, strings.Join(seats, "; "))
	}

	return fmt.Sprintf("Your booking for the movie %q has been confirmed.\nShowtime: %s\nSeats: %s\nEnjoy your movie!\n",
		title, showTime, strings.Join(seats, "; "))
}

func (e *Engine) finish(span trace.Span, operation string, err error) {
	defer span.End()

	if err == nil {
		metrics.TrackOperation(operation, metrics.OutcomeSuccess)
		return
	}

	outcome := metrics.OutcomeError
	if domainErr, ok := domain.AsError(err); ok {
		outcome = string(domainErr.Code)
	}

	metrics.TrackOperation(operation, outcome)
	span.RecordError(err)
	span.SetStatus(codes.Error, outcome)
}

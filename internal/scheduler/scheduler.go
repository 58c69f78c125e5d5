// Package scheduler places shows on screens. A show is accepted only when
// its movie has been released and its time slot is free on the screen.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/metinatakli/cinex-booking/internal/domain"
	"github.com/metinatakli/cinex-booking/internal/lock"
	"github.com/metinatakli/cinex-booking/internal/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type ScheduleInput struct {
	ScreenID        int       `json:"screenId" validate:"min=1"`
	MovieID         int       `json:"movieId" validate:"min=1"`
	StartTime       time.Time `json:"startTime" validate:"required"`
	DurationMinutes int       `json:"durationMinutes" validate:"max=1440"`
}

type Deps struct {
	Shows     domain.ShowRepository
	Catalog   domain.CatalogRepository
	Locker    lock.Locker
	Validator *validator.Validate
	Logger    *slog.Logger
}

type Scheduler struct {
	shows    domain.ShowRepository
	catalog  domain.CatalogRepository
	locker   lock.Locker
	validate *validator.Validate
	logger   *slog.Logger
	tracer   trace.Tracer
}

func New(deps Deps) *Scheduler {
	return &Scheduler{
		shows:    deps.Shows,
		catalog:  deps.Catalog,
		locker:   deps.Locker,
		validate: deps.Validator,
		logger:   deps.Logger,
		tracer:   otel.Tracer("github.com/metinatakli/cinex-booking/internal/scheduler"),
	}
}

// ScheduleShow creates a show with an all-free seat map sized from the
// screen. Shows on the same screen may touch but never overlap.
func (s *Scheduler) ScheduleShow(ctx context.Context, in ScheduleInput) (show *domain.Show, err error) {
	ctx, span := s.tracer.Start(ctx, "scheduler.ScheduleShow", trace.WithAttributes(
		attribute.Int("screen.id", in.ScreenID),
		attribute.Int("movie.id", in.MovieID),
		attribute.String("show.start", in.StartTime.UTC().Format(time.RFC3339)),
		attribute.Int("show.duration_minutes", in.DurationMinutes),
	))
	defer func() { finish(span, "schedule", err) }()

	if in.DurationMinutes <= 0 {
		return nil, domain.ErrInvalidDuration
	}

	err = s.validate.Struct(in)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule request: %w", err)
	}

	screen, err := s.catalog.GetScreen(ctx, in.ScreenID)
	if err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) {
			return nil, domain.ErrScreenNotFound
		}

		return nil, err
	}

	movie, err := s.catalog.GetMovie(ctx, in.MovieID)
	if err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) {
			return nil, domain.ErrMovieNotFound
		}

		return nil, err
	}

	if movie.ReleaseDate == nil {
		return nil, domain.ErrMovieNotFound
	}

	start := in.StartTime.UTC()
	if start.Before(*movie.ReleaseDate) {
		return nil, domain.ErrReleaseDateViolation
	}

	lockStart := time.Now()

	unlock, err := s.locker.Lock(ctx, lock.ScreenKey(screen.ID))
	if err != nil {
		return nil, fmt.Errorf("failed to acquire %s lock: %w", lock.ScreenKey(screen.ID), err)
	}
	defer unlock()

	metrics.TrackLockWait("screen", time.Since(lockStart))

	show, err = s.shows.CreateOnScreen(ctx, screen.ID, func(existing []domain.Show) (*domain.Show, error) {
		candidate := domain.NewShow(movie, screen, start, in.DurationMinutes)

		if conflict := domain.FindOverlap(existing, candidate.Interval()); conflict != nil {
			return nil, domain.ShowTimeOverlapError(conflict.ID)
		}

		return candidate, nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) {
			return nil, domain.ErrScreenNotFound
		}

		return nil, err
	}

	s.logger.Info("show scheduled",
		"show_id", show.ID, "screen_id", show.ScreenID, "movie_id", show.MovieID,
		"start", show.StartTime, "end", show.EndTime())

	return show, nil
}

// ListScreenShows returns every show on the screen ordered by start time.
func (s *Scheduler) ListScreenShows(ctx context.Context, screenID int) ([]domain.Show, error) {
	_, err := s.catalog.GetScreen(ctx, screenID)
	if err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) {
			return nil, domain.ErrScreenNotFound
		}

		return nil, err
	}

	return s.shows.ListByScreen(ctx, screenID)
}

// ListMovieShows returns the movie's shows starting on the UTC calendar day
// of day.
func (s *Scheduler) ListMovieShows(ctx context.Context, movieID int, day time.Time) ([]domain.Show, error) {
	_, err := s.catalog.GetMovie(ctx, movieID)
	if err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) {
			return nil, domain.ErrMovieNotFound
		}

		return nil, err
	}

	return s.shows.ListByMovieAndDate(ctx, movieID, day)
}

func finish(span trace.Span, operation string, err error) {
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

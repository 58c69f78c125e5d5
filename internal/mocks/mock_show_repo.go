package mocks

import (
	"context"
	"time"

	"github.com/metinatakli/cinex-booking/internal/domain"
	"github.com/stretchr/testify/mock"
)

type MockShowRepo struct {
	mock.Mock
	domain.ShowRepository
}

func (m *MockShowRepo) GetByID(ctx context.Context, id int) (*domain.Show, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Show), args.Error(1)
}

func (m *MockShowRepo) GetSeatMap(ctx context.Context, showID int) (*domain.SeatMap, error) {
	args := m.Called(ctx, showID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SeatMap), args.Error(1)
}

func (m *MockShowRepo) ListByScreen(ctx context.Context, screenID int) ([]domain.Show, error) {
	args := m.Called(ctx, screenID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Show), args.Error(1)
}

func (m *MockShowRepo) ListByMovieAndDate(ctx context.Context, movieID int, day time.Time) ([]domain.Show, error) {
	args := m.Called(ctx, movieID, day)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Show), args.Error(1)
}

func (m *MockShowRepo) CreateOnScreen(
	ctx context.Context,
	screenID int,
	build func(existing []domain.Show) (*domain.Show, error)) (*domain.Show, error) {

	args := m.Called(ctx, screenID, build)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Show), args.Error(1)
}

package mocks

import (
	"context"

	"github.com/metinatakli/cinex-booking/internal/domain"
	"github.com/stretchr/testify/mock"
)

type MockSeatMapCache struct {
	mock.Mock
}

func (m *MockSeatMapCache) Get(ctx context.Context, showID int) (*domain.SeatMap, int64, error) {
	args := m.Called(ctx, showID)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).(*domain.SeatMap), args.Get(1).(int64), args.Error(2)
}

func (m *MockSeatMapCache) Set(ctx context.Context, showID int, generation int64, seatMap domain.SeatMap) error {
	args := m.Called(ctx, showID, generation, seatMap)
	return args.Error(0)
}

func (m *MockSeatMapCache) Invalidate(ctx context.Context, showID int) error {
	args := m.Called(ctx, showID)
	return args.Error(0)
}

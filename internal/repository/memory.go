package repository

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/metinatakli/cinex-booking/internal/domain"
)

// MemoryStore keeps the catalog, shows and bookings in process. A single
// mutex makes every repository call one atomic step, which gives the same
// guarantees as the Postgres transactions for a single instance.
type MemoryStore struct {
	mu       sync.Mutex
	movies   map[int]domain.Movie
	screens  map[int]domain.Screen
	shows    map[int]*domain.Show
	bookings map[uuid.UUID]*domain.Booking
	order    []uuid.UUID
	lastID   int
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		movies:   make(map[int]domain.Movie),
		screens:  make(map[int]domain.Screen),
		shows:    make(map[int]*domain.Show),
		bookings: make(map[uuid.UUID]*domain.Booking),
		now:      time.Now,
	}
}

func (s *MemoryStore) nextID() int {
	s.lastID++
	return s.lastID
}

// AddMovie stores m, assigning an id when it has none.
func (s *MemoryStore) AddMovie(m domain.Movie) domain.Movie {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m.ID == 0 {
		m.ID = s.nextID()
	}
	s.movies[m.ID] = m

	return m
}

// AddScreen stores sc, assigning an id and the default 10x10 template when
// they are missing.
func (s *MemoryStore) AddScreen(sc domain.Screen) domain.Screen {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sc.ID == 0 {
		sc.ID = s.nextID()
	}
	if sc.Rows == 0 {
		sc.Rows = domain.DefaultSeatRows
	}
	if sc.Cols == 0 {
		sc.Cols = domain.DefaultSeatCols
	}
	s.screens[sc.ID] = sc

	return sc
}

// DeleteShow removes a show without touching its bookings. It exists to
// reproduce dangling bookings.
func (s *MemoryStore) DeleteShow(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.shows, id)
}

func (s *MemoryStore) Catalog() *MemoryCatalogRepository {
	return &MemoryCatalogRepository{store: s}
}

func (s *MemoryStore) Shows() *MemoryShowRepository {
	return &MemoryShowRepository{store: s}
}

func (s *MemoryStore) Bookings() *MemoryBookingRepository {
	return &MemoryBookingRepository{store: s}
}

type MemoryCatalogRepository struct {
	store *MemoryStore
}

func (r *MemoryCatalogRepository) GetMovie(_ context.Context, id int) (*domain.Movie, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	m, ok := r.store.movies[id]
	if !ok {
		return nil, domain.ErrRecordNotFound
	}

	return &m, nil
}

func (r *MemoryCatalogRepository) GetScreen(_ context.Context, id int) (*domain.Screen, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	sc, ok := r.store.screens[id]
	if !ok {
		return nil, domain.ErrRecordNotFound
	}

	return &sc, nil
}

type MemoryShowRepository struct {
	store *MemoryStore
}

func (r *MemoryShowRepository) GetByID(_ context.Context, id int) (*domain.Show, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	show, ok := r.store.shows[id]
	if !ok {
		return nil, domain.ErrRecordNotFound
	}

	return copyShow(show), nil
}

func (r *MemoryShowRepository) GetSeatMap(_ context.Context, showID int) (*domain.SeatMap, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	show, ok := r.store.shows[showID]
	if !ok {
		return nil, domain.ErrRecordNotFound
	}

	seatMap := show.SeatMap.Clone()
	return &seatMap, nil
}

func (r *MemoryShowRepository) ListByScreen(_ context.Context, screenID int) ([]domain.Show, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	return r.store.filterShows(func(show *domain.Show) bool {
		return show.ScreenID == screenID
	}), nil
}

func (r *MemoryShowRepository) ListByMovieAndDate(_ context.Context, movieID int, day time.Time) ([]domain.Show, error) {
	start, end := dayBounds(day)

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	return r.store.filterShows(func(show *domain.Show) bool {
		return show.MovieID == movieID && !show.StartTime.Before(start) && show.StartTime.Before(end)
	}), nil
}

func (r *MemoryShowRepository) CreateOnScreen(
	_ context.Context,
	screenID int,
	build func(existing []domain.Show) (*domain.Show, error)) (*domain.Show, error) {

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, ok := r.store.screens[screenID]; !ok {
		return nil, domain.ErrRecordNotFound
	}

	existing := r.store.filterShows(func(show *domain.Show) bool {
		return show.ScreenID == screenID
	})

	show, err := build(existing)
	if err != nil {
		return nil, err
	}

	show.ID = r.store.nextID()
	show.CreatedAt = r.store.now().UTC()
	show.SeatMap.Version = 1
	r.store.shows[show.ID] = copyShow(show)

	return show, nil
}

// filterShows returns copies ordered by start time. Callers hold the lock.
func (s *MemoryStore) filterShows(keep func(*domain.Show) bool) []domain.Show {
	shows := make([]domain.Show, 0)

	for _, show := range s.shows {
		if keep(show) {
			shows = append(shows, *copyShow(show))
		}
	}

	slices.SortFunc(shows, func(a, b domain.Show) int {
		return a.StartTime.Compare(b.StartTime)
	})

	return shows
}

type MemoryBookingRepository struct {
	store *MemoryStore
}

func (r *MemoryBookingRepository) Reserve(
	_ context.Context,
	showID int,
	apply func(seatMap *domain.SeatMap) (*domain.Booking, error)) (*domain.Booking, error) {

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	show, ok := r.store.shows[showID]
	if !ok {
		return nil, domain.ErrRecordNotFound
	}

	working := show.SeatMap.Clone()

	booking, err := apply(&working)
	if err != nil {
		return nil, err
	}

	working.Version++
	show.SeatMap = working

	stored := copyBooking(booking)
	r.store.bookings[stored.ID] = stored
	r.store.order = append(r.store.order, stored.ID)

	return booking, nil
}

func (r *MemoryBookingRepository) Cancel(
	_ context.Context,
	bookingID uuid.UUID,
	apply func(booking *domain.Booking, seatMap *domain.SeatMap) error) (*domain.Booking, error) {

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	stored, ok := r.store.bookings[bookingID]
	if !ok || !stored.Active() {
		return nil, domain.ErrRecordNotFound
	}

	show, ok := r.store.shows[stored.ShowID]
	if !ok {
		return nil, domain.ErrDanglingBooking
	}

	booking := copyBooking(stored)
	working := show.SeatMap.Clone()

	err := apply(booking, &working)
	if err != nil {
		return nil, err
	}

	working.Version++
	show.SeatMap = working
	r.store.bookings[bookingID] = copyBooking(booking)

	return booking, nil
}

func (r *MemoryBookingRepository) GetByID(_ context.Context, id uuid.UUID) (*domain.Booking, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	booking, ok := r.store.bookings[id]
	if !ok {
		return nil, domain.ErrRecordNotFound
	}

	return copyBooking(booking), nil
}

// ListByUser returns the user's bookings, newest first.
func (r *MemoryBookingRepository) ListByUser(
	_ context.Context,
	userID int,
	pagination domain.Pagination) ([]domain.Booking, *domain.Metadata, error) {

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	all := make([]domain.Booking, 0)
	for i := len(r.store.order) - 1; i >= 0; i-- {
		booking := r.store.bookings[r.store.order[i]]
		if booking.UserID == userID {
			all = append(all, *copyBooking(booking))
		}
	}

	start := min(pagination.Offset(), len(all))
	end := min(start+pagination.Limit(), len(all))

	return all[start:end], domain.NewMetadata(len(all), pagination.Page, pagination.PageSize), nil
}

func copyShow(show *domain.Show) *domain.Show {
	c := *show
	c.SeatMap = show.SeatMap.Clone()
	return &c
}

func copyBooking(b *domain.Booking) *domain.Booking {
	c := *b
	c.Seats = slices.Clone(b.Seats)
	if b.CancelledAt != nil {
		t := *b.CancelledAt
		c.CancelledAt = &t
	}
	return &c
}

// dayBounds returns the UTC calendar day containing day as [start, end).
func dayBounds(day time.Time) (time.Time, time.Time) {
	y, m, d := day.UTC().Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 0, 1)
}

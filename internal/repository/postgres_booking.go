package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/metinatakli/cinex-booking/internal/domain"
)

const bookingColumns = `id, user_id, show_id, seats, status, created_at, cancelled_at`

type PostgresBookingRepository struct {
	db *pgxpool.Pool
}

func NewPostgresBookingRepository(db *pgxpool.Pool) *PostgresBookingRepository {
	return &PostgresBookingRepository{
		db: db,
	}
}

func (p *PostgresBookingRepository) Reserve(
	ctx context.Context,
	showID int,
	apply func(seatMap *domain.SeatMap) (*domain.Booking, error)) (*domain.Booking, error) {

	var booking *domain.Booking

	err := runInTx(ctx, p.db, func(tx pgx.Tx) error {
		seatMap, err := lockSeatMap(ctx, tx, showID)
		if err != nil {
			return err
		}

		booking, err = apply(seatMap)
		if err != nil {
			return err
		}

		err = updateSeatMap(ctx, tx, showID, seatMap)
		if err != nil {
			return err
		}

		return insertBooking(ctx, tx, booking)
	})
	if err != nil {
		return nil, err
	}

	return booking, nil
}

func (p *PostgresBookingRepository) Cancel(
	ctx context.Context,
	bookingID uuid.UUID,
	apply func(booking *domain.Booking, seatMap *domain.SeatMap) error) (*domain.Booking, error) {

	var booking *domain.Booking

	err := runInTx(ctx, p.db, func(tx pgx.Tx) error {
		query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1 AND status = $2 FOR UPDATE`

		var err error

		booking, err = scanBooking(tx.QueryRow(ctx, query, bookingID, domain.BookingConfirmed))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.ErrRecordNotFound
			}

			return err
		}

		seatMap, err := lockSeatMap(ctx, tx, booking.ShowID)
		if err != nil {
			if errors.Is(err, domain.ErrRecordNotFound) {
				return domain.ErrDanglingBooking
			}

			return err
		}

		err = apply(booking, seatMap)
		if err != nil {
			return err
		}

		err = updateSeatMap(ctx, tx, booking.ShowID, seatMap)
		if err != nil {
			return err
		}

		query = `
			UPDATE bookings
			SET status = $1, cancelled_at = $2
			WHERE id = $3
		`

		_, err = tx.Exec(ctx, query, booking.Status, booking.CancelledAt, booking.ID)
		if err != nil {
			return err
		}

		query = `
			UPDATE booking_seats
			SET released_at = $1
			WHERE booking_id = $2 AND released_at IS NULL
		`

		_, err = tx.Exec(ctx, query, booking.CancelledAt, booking.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	return booking, nil
}

func (p *PostgresBookingRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`

	booking, err := scanBooking(p.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRecordNotFound
		}

		return nil, err
	}

	return booking, nil
}

func (p *PostgresBookingRepository) ListByUser(
	ctx context.Context,
	userID int,
	pagination domain.Pagination) ([]domain.Booking, *domain.Metadata, error) {

	query := `
		SELECT COUNT(*) OVER(), ` + bookingColumns + `
		FROM bookings
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := p.db.Query(ctx, query, userID, pagination.Limit(), pagination.Offset())
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	bookings := make([]domain.Booking, 0)
	totalRecords := 0

	for rows.Next() {
		var (
			booking domain.Booking
			seats   []byte
		)

		err := rows.Scan(
			&totalRecords,
			&booking.ID,
			&booking.UserID,
			&booking.ShowID,
			&seats,
			&booking.Status,
			&booking.CreatedAt,
			&booking.CancelledAt,
		)
		if err != nil {
			return nil, nil, err
		}

		err = json.Unmarshal(seats, &booking.Seats)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to decode seats of booking %s: %w", booking.ID, err)
		}

		normalizeBookingTimes(&booking)
		bookings = append(bookings, booking)
	}

	if err = rows.Err(); err != nil {
		return nil, nil, err
	}

	metadata := domain.NewMetadata(totalRecords, pagination.Page, pagination.PageSize)

	return bookings, metadata, nil
}

func lockSeatMap(ctx context.Context, tx pgx.Tx, showID int) (*domain.SeatMap, error) {
	query := `SELECT seat_map, version FROM shows WHERE id = $1 FOR UPDATE`

	seatMap, err := scanSeatMap(tx.QueryRow(ctx, query, showID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRecordNotFound
		}

		return nil, err
	}

	return seatMap, nil
}

func insertBooking(ctx context.Context, tx pgx.Tx, booking *domain.Booking) error {
	seats, err := json.Marshal(booking.Seats)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO bookings (id, user_id, show_id, seats, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err = tx.Exec(
		ctx,
		query,
		booking.ID,
		booking.UserID,
		booking.ShowID,
		seats,
		booking.Status,
		booking.CreatedAt)
	if err != nil {
		return err
	}

	rows := make([][]any, 0, len(booking.Seats))
	for _, seat := range booking.Seats {
		rows = append(rows, []any{
			booking.ID,
			booking.ShowID,
			seat.Row,
			seat.Col,
		})
	}

	_, err = tx.CopyFrom(
		ctx,
		pgx.Identifier{"booking_seats"},
		[]string{"booking_id", "show_id", "seat_row", "seat_col"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrSeatAlreadyReserved
		}

		return err
	}

	return nil
}

func scanBooking(row pgx.Row) (*domain.Booking, error) {
	var (
		booking domain.Booking
		seats   []byte
	)

	err := row.Scan(
		&booking.ID,
		&booking.UserID,
		&booking.ShowID,
		&seats,
		&booking.Status,
		&booking.CreatedAt,
		&booking.CancelledAt,
	)
	if err != nil {
		return nil, err
	}

	err = json.Unmarshal(seats, &booking.Seats)
	if err != nil {
		return nil, fmt.Errorf("failed to decode seats of booking %s: %w", booking.ID, err)
	}

	normalizeBookingTimes(&booking)

	return &booking, nil
}

func normalizeBookingTimes(booking *domain.Booking) {
	booking.CreatedAt = booking.CreatedAt.UTC()
	if booking.CancelledAt != nil {
		t := booking.CancelledAt.UTC()
		booking.CancelledAt = &t
	}
}

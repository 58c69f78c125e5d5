package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/metinatakli/cinex-booking/internal/domain"
)

const showColumns = `id, movie_id, screen_id, theater_id, start_time, duration_minutes, seat_map, version, created_at`

type PostgresShowRepository struct {
	db *pgxpool.Pool
}

func NewPostgresShowRepository(db *pgxpool.Pool) *PostgresShowRepository {
	return &PostgresShowRepository{
		db: db,
	}
}

func (p *PostgresShowRepository) GetByID(ctx context.Context, id int) (*domain.Show, error) {
	query := `SELECT ` + showColumns + ` FROM shows WHERE id = $1`

	show, err := scanShow(p.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRecordNotFound
		}

		return nil, err
	}

	return show, nil
}

func (p *PostgresShowRepository) GetSeatMap(ctx context.Context, showID int) (*domain.SeatMap, error) {
	query := `SELECT seat_map, version FROM shows WHERE id = $1`

	seatMap, err := scanSeatMap(p.db.QueryRow(ctx, query, showID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRecordNotFound
		}

		return nil, err
	}

	return seatMap, nil
}

func (p *PostgresShowRepository) ListByScreen(ctx context.Context, screenID int) ([]domain.Show, error) {
	query := `SELECT ` + showColumns + ` FROM shows WHERE screen_id = $1 ORDER BY start_time`

	rows, err := p.db.Query(ctx, query, screenID)
	if err != nil {
		return nil, err
	}

	return collectShows(rows)
}

func (p *PostgresShowRepository) ListByMovieAndDate(ctx context.Context, movieID int, day time.Time) ([]domain.Show, error) {
	start, end := dayBounds(day)

	query := `
		SELECT ` + showColumns + `
		FROM shows
		WHERE movie_id = $1 AND start_time >= $2 AND start_time < $3
		ORDER BY start_time
	`

	rows, err := p.db.Query(ctx, query, movieID, start, end)
	if err != nil {
		return nil, err
	}

	return collectShows(rows)
}

// CreateOnScreen locks the screen row so that two creations on the same
// screen see each other's shows.
func (p *PostgresShowRepository) CreateOnScreen(
	ctx context.Context,
	screenID int,
	build func(existing []domain.Show) (*domain.Show, error)) (*domain.Show, error) {

	var show *domain.Show

	err := runInTx(ctx, p.db, func(tx pgx.Tx) error {
		var id int

		err := tx.QueryRow(ctx, `SELECT id FROM screens WHERE id = $1 FOR UPDATE`, screenID).Scan(&id)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.ErrRecordNotFound
			}

			return err
		}

		query := `SELECT ` + showColumns + ` FROM shows WHERE screen_id = $1 ORDER BY start_time`

		rows, err := tx.Query(ctx, query, screenID)
		if err != nil {
			return err
		}

		existing, err := collectShows(rows)
		if err != nil {
			return err
		}

		show, err = build(existing)
		if err != nil {
			return err
		}

		seatMap, err := json.Marshal(show.SeatMap)
		if err != nil {
			return err
		}

		query = `
			INSERT INTO shows (movie_id, screen_id, theater_id, start_time, duration_minutes, seat_map)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id, version, created_at
		`

		return tx.QueryRow(
			ctx,
			query,
			show.MovieID,
			show.ScreenID,
			show.TheaterID,
			show.StartTime,
			show.DurationMinutes,
			seatMap).Scan(&show.ID, &show.SeatMap.Version, &show.CreatedAt)
	})
	if err != nil {
		return nil, err
	}

	return show, nil
}

func scanShow(row pgx.Row) (*domain.Show, error) {
	var show domain.Show

	err := row.Scan(
		&show.ID,
		&show.MovieID,
		&show.ScreenID,
		&show.TheaterID,
		&show.StartTime,
		&show.DurationMinutes,
		&show.SeatMap,
		&show.SeatMap.Version,
		&show.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	show.StartTime = show.StartTime.UTC()

	return &show, nil
}

func scanSeatMap(row pgx.Row) (*domain.SeatMap, error) {
	var (
		seatMap domain.SeatMap
		version int
	)

	err := row.Scan(&seatMap, &version)
	if err != nil {
		return nil, err
	}

	seatMap.Version = version

	return &seatMap, nil
}

func collectShows(rows pgx.Rows) ([]domain.Show, error) {
	defer rows.Close()

	shows := make([]domain.Show, 0)

	for rows.Next() {
		show, err := scanShow(rows)
		if err != nil {
			return nil, err
		}

		shows = append(shows, *show)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return shows, nil
}

// updateSeatMap writes seatMap only if nobody bumped the version since it was
// read.
func updateSeatMap(ctx context.Context, tx pgx.Tx, showID int, seatMap *domain.SeatMap) error {
	data, err := json.Marshal(seatMap)
	if err != nil {
		return err
	}

	query := `
		UPDATE shows
		SET seat_map = $1, version = version + 1
		WHERE id = $2 AND version = $3
		RETURNING version
	`

	err = tx.QueryRow(ctx, query, data, showID, seatMap.Version).Scan(&seatMap.Version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrEditConflict
		}

		return fmt.Errorf("failed to update seat map of show %d: %w", showID, err)
	}

	return nil
}

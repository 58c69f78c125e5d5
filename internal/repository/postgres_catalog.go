package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/metinatakli/cinex-booking/internal/domain"
)

type PostgresCatalogRepository struct {
	db *pgxpool.Pool
}

func NewPostgresCatalogRepository(db *pgxpool.Pool) *PostgresCatalogRepository {
	return &PostgresCatalogRepository{
		db: db,
	}
}

func (p *PostgresCatalogRepository) GetMovie(ctx context.Context, id int) (*domain.Movie, error) {
	query := `
		SELECT id, title, duration_minutes, genre, language, release_date
		FROM movies
		WHERE id = $1
	`

	var movie domain.Movie

	err := p.db.QueryRow(ctx, query, id).Scan(
		&movie.ID,
		&movie.Title,
		&movie.DurationMinutes,
		&movie.Genre,
		&movie.Language,
		&movie.ReleaseDate,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRecordNotFound
		}

		return nil, err
	}

	return &movie, nil
}

func (p *PostgresCatalogRepository) GetScreen(ctx context.Context, id int) (*domain.Screen, error) {
	query := `
		SELECT id, theater_id, name, seat_rows, seat_cols
		FROM screens
		WHERE id = $1
	`

	var screen domain.Screen

	err := p.db.QueryRow(ctx, query, id).Scan(
		&screen.ID,
		&screen.TheaterID,
		&screen.Name,
		&screen.Rows,
		&screen.Cols,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRecordNotFound
		}

		return nil, err
	}

	return &screen, nil
}

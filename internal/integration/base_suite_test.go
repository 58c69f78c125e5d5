package integration_test

import (
	"context"
	"io"
	"log"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/metinatakli/cinex-booking/internal/app"
	"github.com/metinatakli/cinex-booking/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
)

const (
	dbName         = "cinex_booking"
	dbUser         = "test_user"
	dbPassword     = "test_password"
	dbImageName    = "postgres:17-alpine"
	cacheImageName = "redis:7"

	jwtSecret = "integration-secret"
	jwtIssuer = "cinex-integration"
)

var (
	testUser  = domain.User{ID: 1, Email: "test@example.com"}
	otherUser = domain.User{ID: 2, Email: "other@example.com"}
	adminUser = domain.User{ID: 100, Email: "admin@example.com", Admin: true}
)

// BaseSuite runs every test against a real Postgres and Redis. Tables and
// keys are wiped before each test.
type BaseSuite struct {
	suite.Suite
	app            *app.Application
	db             *pgxpool.Pool
	redis          *redis.Client
	logger         *slog.Logger
	dbContainer    *PostgresContainer
	cacheContainer *RedisContainer
	server         *httptest.Server
}

func (s *BaseSuite) SetupSuite() {
	ctx := context.Background()

	postgresContainer, err := getDbContainer(ctx)
	s.Require().NoError(err)
	s.dbContainer = postgresContainer

	redisContainer, err := getCacheContainer(ctx)
	s.Require().NoError(err)
	s.cacheContainer = redisContainer

	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg := app.Config{
		Port: 3000,
		Env:  "test",
		DB: app.DBConfig{
			DSN:          postgresContainer.ConnectionString,
			MaxOpenConns: 25,
			MaxIdleTime:  2 * time.Minute,
		},
		Redis: app.RedisConfig{
			URL:          redisContainer.ConnectionString,
			MaxOpenConns: 10,
			MaxIdleConns: 10,
			MaxIdleTime:  2 * time.Minute,
		},
		JWT:    app.JWTConfig{Secret: jwtSecret, Issuer: jwtIssuer},
		Lock:   app.LockConfig{Backend: "redis", TTL: 5 * time.Second},
		Cache:  app.CacheConfig{SeatMapTTL: 2 * time.Second},
		Notify: app.NotifyConfig{Workers: 1, QueueSize: 100},
	}

	s.app, err = app.NewApp(cfg, s.logger)
	s.Require().NoError(err)

	s.db, err = pgxpool.New(ctx, postgresContainer.ConnectionString)
	s.Require().NoError(err)

	s.redis = redis.NewClient(&redis.Options{Addr: redisContainer.ConnectionString})

	s.server = httptest.NewServer(s.app.Routes())
}

func (s *BaseSuite) TearDownSuite() {
	if s.server != nil {
		s.server.Close()
	}
	if s.app != nil {
		s.app.Close()
	}
	if s.db != nil {
		s.db.Close()
	}
	if s.redis != nil {
		s.redis.Close()
	}
	if s.dbContainer != nil {
		if err := testcontainers.TerminateContainer(s.dbContainer.Container); err != nil {
			log.Printf("failed to terminate container: %s", err)
		}
	}
	if s.cacheContainer != nil {
		if err := testcontainers.TerminateContainer(s.cacheContainer.Container); err != nil {
			log.Printf("failed to terminate container: %s", err)
		}
	}
}

func (s *BaseSuite) SetupTest() {
	ctx := context.Background()

	_, err := s.db.Exec(ctx,
		`TRUNCATE booking_seats, bookings, shows, movies, screens, theaters RESTART IDENTITY CASCADE`)
	s.Require().NoError(err)

	s.Require().NoError(s.redis.FlushAll(ctx).Err())
}

// seedCatalog inserts a theater, a rows x cols screen and a movie released on
// 2025-01-01.
func (s *BaseSuite) seedCatalog(rows, cols int) (screenID, movieID int) {
	ctx := context.Background()

	var theaterID int
	err := s.db.QueryRow(ctx,
		`INSERT INTO theaters (name, location) VALUES ('Test Theater', 'Istanbul') RETURNING id`).Scan(&theaterID)
	s.Require().NoError(err)

	err = s.db.QueryRow(ctx,
		`INSERT INTO screens (theater_id, name, seat_rows, seat_cols) VALUES ($1, 'Screen 1', $2, $3) RETURNING id`,
		theaterID, rows, cols).Scan(&screenID)
	s.Require().NoError(err)

	err = s.db.QueryRow(ctx,
		`INSERT INTO movies (title, duration_minutes, release_date) VALUES ('Test Movie', 120, '2025-01-01') RETURNING id`,
	).Scan(&movieID)
	s.Require().NoError(err)

	return screenID, movieID
}

func (s *BaseSuite) bearer(user domain.User) map[string]string {
	token, err := app.IssueToken(jwtSecret, jwtIssuer, user, time.Hour)
	s.Require().NoError(err)

	return map[string]string{"Authorization": "Bearer " + token}
}

type Scenario struct {
	Name             string
	Method           string
	URL              string
	Body             string
	Headers          map[string]string
	ExpectedStatus   int
	ExpectedResponse string
	BeforeTestFunc   func(t testing.TB)
	AfterTestFunc    func(t testing.TB, res *http.Response)
}

func (s Scenario) Run(t *testing.T, handler http.Handler) {
	t.Run(s.Name, func(t *testing.T) {
		var body io.Reader
		if s.Body != "" {
			body = strings.NewReader(s.Body)
		}

		req, err := prepareRequest(s.Method, s.URL, body, s.Headers)
		require.NoError(t, err)

		if s.BeforeTestFunc != nil {
			s.BeforeTestFunc(t)
		}

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		res := rec.Result()
		defer res.Body.Close()

		assert.Equal(t, s.ExpectedStatus, res.StatusCode)

		if s.ExpectedResponse != "" {
			compareResponse(t, res.Body, s.ExpectedResponse)
		}

		if s.AfterTestFunc != nil {
			s.AfterTestFunc(t, res)
		}
	})
}

package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/exaring/otelpgx"
	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/metinatakli/cinex-booking/internal/booking"
	"github.com/metinatakli/cinex-booking/internal/cache"
	"github.com/metinatakli/cinex-booking/internal/domain"
	"github.com/metinatakli/cinex-booking/internal/lock"
	"github.com/metinatakli/cinex-booking/internal/notify"
	"github.com/metinatakli/cinex-booking/internal/repository"
	"github.com/metinatakli/cinex-booking/internal/scheduler"
	appvalidator "github.com/metinatakli/cinex-booking/internal/validator"
	"github.com/metinatakli/cinex-booking/internal/vcs"
	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

var (
	version = vcs.Version()
)

type bookingService interface {
	Reserve(ctx context.Context, in booking.ReserveInput) (*domain.Booking, error)
	Release(ctx context.Context, in booking.ReleaseInput) (*domain.Booking, error)
	GetAvailability(ctx context.Context, showID int) (*domain.SeatMap, error)
	ListUserBookings(ctx context.Context, userID int, pagination domain.Pagination) ([]domain.Booking, *domain.Metadata, error)
}

type showScheduler interface {
	ScheduleShow(ctx context.Context, in scheduler.ScheduleInput) (*domain.Show, error)
	ListScreenShows(ctx context.Context, screenID int) ([]domain.Show, error)
	ListMovieShows(ctx context.Context, movieID int, day time.Time) ([]domain.Show, error)
}

type Application struct {
	config     Config
	logger     *slog.Logger
	db         *pgxpool.Pool
	redis      redis.UniversalClient
	validator  *validator.Validate
	dispatcher *notify.Dispatcher
	closers    []func() error

	bookings  bookingService
	scheduler showScheduler
	now       func() time.Time
}

type Config struct {
	Port             int
	Env              string
	OtelCollectorUrl string
	DB               DBConfig
	Redis            RedisConfig
	SMTP             SMTPConfig
	AMQP             AMQPConfig
	JWT              JWTConfig
	Lock             LockConfig
	Cache            CacheConfig
	Notify           NotifyConfig
}

type DBConfig struct {
	DSN          string
	MaxOpenConns int
	MaxIdleTime  time.Duration
}

type RedisConfig struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
	MaxIdleTime  time.Duration
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	Sender   string
}

type AMQPConfig struct {
	URL   string
	Queue string
}

type JWTConfig struct {
	Secret string
	Issuer string
}

type LockConfig struct {
	// Backend is "memory" or "redis".
	Backend string
	TTL     time.Duration
}

type CacheConfig struct {
	SeatMapTTL time.Duration
}

type NotifyConfig struct {
	Workers   int
	QueueSize int
}

func Run() error {
	// a missing .env file is fine, flags and the environment still apply
	_ = godotenv.Load()

	var cfg Config

	flag.IntVar(&cfg.Port, "port", envInt("PORT", 3000), "server port")
	flag.StringVar(&cfg.Env, "env", envString("ENV", "dev"), "Environment (dev|staging|prod)")
	flag.StringVar(&cfg.OtelCollectorUrl, "otel-collector-url", envString("OTEL_COLLECTOR_URL", ""), "OpenTelemetry collector gRPC endpoint")

	flag.StringVar(&cfg.DB.DSN, "db-dsn", envString("DB_DSN", ""), "PostgreSQL DSN (in-memory storage when empty)")
	flag.IntVar(&cfg.DB.MaxOpenConns, "db-max-open-conns", 25, "PostgreSQL max open connections")
	flag.DurationVar(&cfg.DB.MaxIdleTime, "db-max-idle-time", 15*time.Minute, "PostgreSQL max idle time for connections")

	flag.StringVar(&cfg.Redis.URL, "redis-url", envString("REDIS_URL", ""), "Redis address")
	flag.IntVar(&cfg.Redis.MaxOpenConns, "redis-max-open-conns", 25, "Redis max open connections")
	flag.IntVar(&cfg.Redis.MaxIdleConns, "redis-max-idle-conns", 10, "Redis max idle connections")
	flag.DurationVar(&cfg.Redis.MaxIdleTime, "redis-max-idle-time", 2*time.Minute, "Redis max idle time for connections")

	flag.StringVar(&cfg.SMTP.Host, "smtp-host", envString("SMTP_HOST", ""), "SMTP host")
	flag.IntVar(&cfg.SMTP.Port, "smtp-port", envInt("SMTP_PORT", 2525), "SMTP port")
	flag.StringVar(&cfg.SMTP.Username, "smtp-username", envString("SMTP_USERNAME", ""), "SMTP username")
	flag.StringVar(&cfg.SMTP.Password, "smtp-password", envString("SMTP_PASSWORD", ""), "SMTP password")
	flag.StringVar(&cfg.SMTP.Sender, "smtp-sender", envString("SMTP_SENDER", "CineX <no-reply@cinex.metinatakli.net>"), "SMTP sender")

	flag.StringVar(&cfg.AMQP.URL, "amqp-url", envString("AMQP_URL", ""), "RabbitMQ URL for the mail queue")
	flag.StringVar(&cfg.AMQP.Queue, "amqp-queue", notify.MailQueue, "RabbitMQ mail queue")

	flag.StringVar(&cfg.JWT.Secret, "jwt-secret", envString("JWT_SECRET", ""), "HMAC secret of the identity provider tokens")
	flag.StringVar(&cfg.JWT.Issuer, "jwt-issuer", envString("JWT_ISSUER", ""), "Expected token issuer (any when empty)")

	flag.StringVar(&cfg.Lock.Backend, "lock-backend", envString("LOCK_BACKEND", "memory"), "Show and screen lock backend (memory|redis)")
	flag.DurationVar(&cfg.Lock.TTL, "lock-ttl", lock.DefaultRedisLockTTL, "Redis lock lease")

	flag.DurationVar(&cfg.Cache.SeatMapTTL, "seat-map-cache-ttl", cache.DefaultSeatMapTTL, "Seat map snapshot cache TTL")

	flag.IntVar(&cfg.Notify.Workers, "notify-workers", notify.DefaultWorkers, "Notification delivery workers")
	flag.IntVar(&cfg.Notify.QueueSize, "notify-queue-size", notify.DefaultQueueSize, "Notification queue size")

	displayVersion := flag.Bool("version", false, "Display version and exit")

	flag.Parse()

	if *displayVersion {
		fmt.Printf("Version:\t%s\n", version)
		os.Exit(0)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	shutdownTelemetry, logger, err := InitTelemetry(cfg, logger)
	if err != nil {
		return err
	}
	defer shutdownTelemetry(context.Background())

	app, err := NewApp(cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return app.Serve(ctx)
}

// NewApp wires storage, locking, caching and notification according to cfg.
// Every external dependency is optional: without a DSN the store is in
// memory, without Redis locks are in-process and the cache is disabled.
func NewApp(cfg Config, logger *slog.Logger) (*Application, error) {
	app := &Application{
		config:    cfg,
		logger:    logger,
		validator: appvalidator.NewValidator(),
		now:       time.Now,
	}

	var (
		shows    domain.ShowRepository
		bookings domain.BookingRepository
		catalog  domain.CatalogRepository
	)

	if cfg.DB.DSN != "" {
		db, err := newDatabasePool(cfg)
		if err != nil {
			return nil, err
		}

		app.db = db
		app.closers = append(app.closers, func() error { db.Close(); return nil })

		shows = repository.NewPostgresShowRepository(db)
		bookings = repository.NewPostgresBookingRepository(db)
		catalog = repository.NewPostgresCatalogRepository(db)
	} else {
		logger.Warn("no database DSN configured, using in-memory storage")

		store := repository.NewMemoryStore()
		if cfg.Env == "dev" {
			seedDemoCatalog(store)
		}

		shows = store.Shows()
		bookings = store.Bookings()
		catalog = store.Catalog()
	}

	var seatMapCache domain.SeatMapCache = cache.NopSeatMapCache{}
	var locker lock.Locker = lock.NewKeyedMutex()

	if cfg.Redis.URL != "" {
		redisClient, err := newRedisClient(cfg)
		if err != nil {
			app.Close()
			return nil, err
		}

		app.redis = redisClient
		app.closers = append(app.closers, redisClient.Close)

		seatMapCache = cache.NewRedisSeatMapCache(redisClient, cfg.Cache.SeatMapTTL)

		if cfg.Lock.Backend == "redis" {
			locker = lock.NewRedisLocker(redisClient, logger, cfg.Lock.TTL)
		}
	} else if cfg.Lock.Backend == "redis" {
		app.Close()
		return nil, errors.New("redis lock backend requires -redis-url")
	}

	notifier, err := app.newNotifier()
	if err != nil {
		app.Close()
		return nil, err
	}

	app.dispatcher = notify.NewDispatcher(notifier, logger, cfg.Notify.QueueSize, cfg.Notify.Workers)

	app.bookings = booking.New(booking.Deps{
		Shows:     shows,
		Bookings:  bookings,
		Catalog:   catalog,
		Locker:    locker,
		Cache:     seatMapCache,
		Notifier:  app.dispatcher,
		Validator: app.validator,
		Logger:    logger,
	})

	app.scheduler = scheduler.New(scheduler.Deps{
		Shows:     shows,
		Catalog:   catalog,
		Locker:    locker,
		Validator: app.validator,
		Logger:    logger,
	})

	return app, nil
}

func (app *Application) newNotifier() (domain.Notifier, error) {
	switch {
	case app.config.AMQP.URL != "":
		publisher, err := notify.NewAMQPPublisher(app.config.AMQP.URL, app.config.AMQP.Queue)
		if err != nil {
			return nil, err
		}

		app.closers = append(app.closers, publisher.Close)
		return publisher, nil
	case app.config.SMTP.Host != "":
		smtp := app.config.SMTP
		return notify.NewSMTPMailer(smtp.Host, smtp.Port, smtp.Username, smtp.Password, smtp.Sender), nil
	default:
		app.logger.Warn("no mail transport configured, notifications will only be logged")
		return notify.NewLogNotifier(app.logger), nil
	}
}

// Close releases connections in reverse order of acquisition.
func (app *Application) Close() {
	for i := len(app.closers) - 1; i >= 0; i-- {
		if err := app.closers[i](); err != nil {
			app.logger.Error("failed to close resource", "error", err)
		}
	}

	app.closers = nil
}

func newRedisClient(cfg Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:            cfg.Redis.URL,
		MaxIdleConns:    cfg.Redis.MaxIdleConns,
		MaxActiveConns:  cfg.Redis.MaxOpenConns,
		ConnMaxIdleTime: cfg.Redis.MaxIdleTime,
	})

	err := redisotel.InstrumentTracing(rdb)
	if err != nil {
		rdb.Close()
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	err = rdb.Ping(ctx).Err()
	if err != nil {
		rdb.Close()
		return nil, err
	}

	return rdb, nil
}

func newDatabasePool(cfg Config) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(cfg.DB.DSN)
	if err != nil {
		return nil, err
	}

	config.MaxConnIdleTime = cfg.DB.MaxIdleTime
	config.MaxConns = int32(cfg.DB.MaxOpenConns)
	config.ConnConfig.Tracer = otelpgx.NewTracer()

	db, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	err = db.Ping(ctx)
	if err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// Serve runs the HTTP server and the notification workers until ctx is
// cancelled, then shuts both down.
func (app *Application) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:         fmt.Sprintf("0.0.0.0:%d", app.config.Port),
		Handler:      app.Routes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		ErrorLog:     slog.NewLogLogger(app.logger.Handler(), slog.LevelDebug),
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return app.dispatcher.Run(ctx)
	})

	g.Go(func() error {
		app.logger.Info("starting server", "addr", srv.Addr, "env", app.config.Env)

		err := srv.ListenAndServe()
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	})

	g.Go(func() error {
		<-ctx.Done()

		app.logger.Info("shutting down server", "addr", srv.Addr)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		return srv.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	if err != nil {
		return err
	}

	app.logger.Info("stopped server", "addr", srv.Addr)

	return nil
}

// seedDemoCatalog gives an in-memory dev server something to schedule on.
func seedDemoCatalog(store *repository.MemoryStore) {
	releaseDate := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	store.AddMovie(domain.Movie{ID: 1, Title: "Demo Movie", DurationMinutes: 120, ReleaseDate: &releaseDate})
	store.AddScreen(domain.Screen{ID: 1, TheaterID: 1, Name: "Screen 1"})
}

func envString(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}

	return fallback
}

func envInt(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}

	return n
}

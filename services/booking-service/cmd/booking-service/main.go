package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/slotwise/libs/config"
	"github.com/md-rashed-zaman/slotwise/libs/db"
	"github.com/md-rashed-zaman/slotwise/libs/grpcx"
	"github.com/md-rashed-zaman/slotwise/libs/httpx"
	"github.com/md-rashed-zaman/slotwise/libs/kafkax"
	otelx "github.com/md-rashed-zaman/slotwise/libs/otel"
	"github.com/md-rashed-zaman/slotwise/libs/runtime"
	"github.com/md-rashed-zaman/slotwise/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/slotwise/services/booking-service/internal/consumer"
	"github.com/md-rashed-zaman/slotwise/services/booking-service/internal/handlers"
	"github.com/md-rashed-zaman/slotwise/services/booking-service/internal/idempotency"
	"github.com/md-rashed-zaman/slotwise/services/booking-service/internal/inbox"
	"github.com/md-rashed-zaman/slotwise/services/booking-service/internal/locking"
	"github.com/md-rashed-zaman/slotwise/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/slotwise/services/booking-service/internal/policy"
	"github.com/md-rashed-zaman/slotwise/services/booking-service/internal/scheduling"
	"github.com/md-rashed-zaman/slotwise/services/booking-service/internal/storage"
	"github.com/md-rashed-zaman/slotwise/services/booking-service/internal/storage/memstore"
	"github.com/md-rashed-zaman/slotwise/services/booking-service/migrations"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type settings struct {
	service      string
	port         string
	grpcPort     string
	storageMode  string
	databaseURL  string
	autoMigrate  bool
	dbMaxConns   int
	redisAddr    string
	lockTTL      time.Duration
	kafkaBrokers string
	kafkaGroupID string
	topics       []string
	location     *time.Location
	openMinute   int
	closeMinute  int
	workdays     []time.Weekday
	slotPolicy   policy.SlotPolicy
	publicLimit  int
	corsOrigins  []string
}

func loadSettings() (settings, error) {
	var s settings
	var err error
	s.service = config.String("SERVICE_NAME", "booking-service")
	if s.port, err = config.Port("PORT", "8083"); err != nil {
		return s, err
	}
	if s.grpcPort, err = config.Port("GRPC_PORT", "9093"); err != nil {
		return s, err
	}
	s.storageMode = strings.ToLower(config.String("STORAGE_MODE", "postgres"))
	switch s.storageMode {
	case "postgres":
		if s.databaseURL, err = config.RequiredString("DATABASE_URL"); err != nil {
			return s, err
		}
	case "memory":
	default:
		return s, fmt.Errorf("STORAGE_MODE must be postgres or memory (got %q)", s.storageMode)
	}
	s.autoMigrate = config.Bool("AUTO_MIGRATE", false)
	if s.dbMaxConns, err = config.Int("DB_MAX_CONNS", 10); err != nil {
		return s, err
	}
	s.redisAddr = config.String("REDIS_ADDR", "")
	if s.lockTTL, err = config.Duration("LOCK_TTL", 10*time.Second); err != nil {
		return s, err
	}
	s.kafkaBrokers = config.String("KAFKA_BROKERS", "")
	s.kafkaGroupID = config.String("KAFKA_GROUP_ID", "booking-service")
	s.topics = config.List("CATALOG_TOPICS", consumer.TopicStaffUpserted+","+consumer.TopicServiceUpserted)

	if s.location, err = config.Location("BUSINESS_TIMEZONE", "UTC"); err != nil {
		return s, err
	}
	if s.openMinute, err = config.ClockTime("WORKDAY_START", "09:00"); err != nil {
		return s, err
	}
	if s.closeMinute, err = config.ClockTime("WORKDAY_END", "19:00"); err != nil {
		return s, err
	}
	if s.workdays, err = scheduling.ParseWeekdays(config.List("WORKDAYS", "mon,tue,wed,thu,fri,sat")); err != nil {
		return s, err
	}
	if s.slotPolicy.Step, err = config.Minutes("SLOT_STEP_MINUTES", 15); err != nil {
		return s, err
	}
	if s.slotPolicy.Buffer, err = config.Duration("SLOT_BUFFER", policy.DefaultSlotPolicy.Buffer); err != nil {
		return s, err
	}
	if s.publicLimit, err = config.Int("PUBLIC_RATE_LIMIT", 60); err != nil {
		return s, err
	}
	s.corsOrigins = config.List("CORS_ORIGINS", "")
	return s, nil
}

func main() {
	cfg, err := loadSettings()
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(cfg.service)

	ctx, stop := runtime.SignalContext(logger)
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(cfg.service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	var readyChecks []runtime.ReadyCheck

	var rdb *redis.Client
	if cfg.redisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.redisAddr})
		defer func() { _ = rdb.Close() }()
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}

	var (
		store   booking.Store
		catalog consumer.Catalog
		events  booking.EventSink
		dedupe  consumer.Inbox
	)
	switch cfg.storageMode {
	case "postgres":
		pool, err := db.OpenWithOptions(ctx, cfg.databaseURL, db.PoolOptions{MaxConns: int32(cfg.dbMaxConns)})
		if err != nil {
			logger.Error("db connection failed", "err", err)
			panic(err)
		}
		defer pool.Close()
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)})

		if cfg.autoMigrate {
			n, err := db.NewMigrator(pool, migrations.FS).Up(ctx)
			if err != nil {
				logger.Error("migrations failed", "err", err)
				panic(err)
			}
			logger.Info("migrations applied", "count", n)
		}

		repo := storage.NewBookingRepository(pool)
		outboxRepo := outbox.NewRepository()
		store, catalog = repo, repo
		events = outbox.NewSink(pool, outboxRepo)
		dedupe = inbox.NewRepository(pool)

		publisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
			Brokers:   cfg.kafkaBrokers,
			PollEvery: 2 * time.Second,
			BatchSize: 50,
		})
		go publisher.Run(ctx)
	default:
		mem := memstore.New()
		store, catalog = mem, mem
		events = outbox.NewLogSink(logger)
		dedupe = inbox.NewMemory()
		logger.Warn("running with in-memory storage; data is lost on restart")
	}

	if cfg.kafkaBrokers != "" {
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(cfg.kafkaBrokers)})
		if len(cfg.topics) > 0 {
			catalogConsumer := consumer.New(logger, dedupe, consumer.Config{
				Brokers: cfg.kafkaBrokers,
				GroupID: cfg.kafkaGroupID,
				Topics:  cfg.topics,
			}, consumer.CatalogHandler(catalog))
			go catalogConsumer.Run(ctx)
		}
	}

	var locker booking.Locker = locking.NewLocal()
	var idem idempotency.Store = idempotency.NewMemory(24 * time.Hour)
	if rdb != nil {
		locker = locking.NewRedis(rdb, locking.RedisOptions{Prefix: "slotwise:lock", TTL: cfg.lockTTL}, logger)
		idem = idempotency.NewRedis(rdb, 24*time.Hour, "slotwise:idem")
	}

	hours, err := scheduling.NewStaticProvider(cfg.openMinute, cfg.closeMinute, cfg.workdays)
	if err != nil {
		panic(err)
	}
	policies, err := policy.NewStaticProvider(cfg.slotPolicy)
	if err != nil {
		panic(err)
	}

	clock := booking.Clock{Location: cfg.location}
	detector := booking.NewDetector(store, clock, logger)
	manager := booking.NewManager(booking.ManagerConfig{
		Store:    store,
		Detector: detector,
		Locker:   locker,
		Events:   events,
		Clock:    clock,
		Logger:   logger,
	})
	bookingHandler := handlers.NewBookingHandler(handlers.Config{
		Manager:     manager,
		SlotFinder:  booking.NewSlotFinder(store, hours, policies, clock),
		Detector:    detector,
		Idempotency: idem,
		Locker:      locker,
		Location:    cfg.location,
		Logger:      logger,
	})

	var publicLimiter httpx.Middleware
	if rdb != nil {
		publicLimiter = httpx.NewRedisRateLimiter(rdb, cfg.publicLimit, time.Minute, "slotwise:rl").Middleware(logger, true)
	} else {
		publicLimiter = httpx.NewRateLimiter(cfg.publicLimit, time.Minute).Middleware()
	}

	mux := runtime.NewBaseMuxWithReady(readyChecks...)
	bookingHandler.Register(mux, publicLimiter)
	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: cfg.corsOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", "Idempotency-Key", httpx.TenantHeader, "X-Request-Id"},
			MaxAge:         10 * time.Minute,
		}),
		httpx.WithBodyLimit(1<<20),
		httpx.WithTimeout(15*time.Second),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
	srv := &http.Server{
		Addr:              ":" + cfg.port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcSrv, health := grpcx.NewServer(logger)
	lis, err := net.Listen("tcp", ":"+cfg.grpcPort)
	if err != nil {
		logger.Error("grpc listen failed", "err", err)
		panic(err)
	}
	go func() {
		logger.Info("grpc admin server starting", "addr", lis.Addr().String())
		if err := grpcSrv.Serve(lis); err != nil {
			logger.Error("grpc server error", "err", err)
		}
	}()

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	health.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	grpcSrv.GracefulStop()
	logger.Info("servers stopped")
}

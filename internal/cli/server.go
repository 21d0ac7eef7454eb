package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"assessment-engine/internal/app"
	"assessment-engine/internal/config"
	"assessment-engine/internal/infra/memory"
	"assessment-engine/internal/infra/postgres"
	infraredis "assessment-engine/internal/infra/redis"
	"assessment-engine/internal/logger"
	"assessment-engine/internal/metrics"
	transport "assessment-engine/internal/transport/http"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the assessment server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

// deps holds everything opened for one process so it can be closed in one place.
type deps struct {
	services *app.Services
	sessions app.SessionRepository
	db       *bun.DB
	pool     *pgxpool.Pool
	redis    *redis.Client
}

func (d *deps) Close() {
	if d.redis != nil {
		_ = d.redis.Close()
	}
	if d.pool != nil {
		d.pool.Close()
	}
	if d.db != nil {
		_ = d.db.Close()
	}
}

// buildDeps wires Postgres and Redis when configured and falls back to in-memory stores.
func buildDeps(ctx context.Context, cfg config.Config, log *zap.Logger, rec app.Recorder) (*deps, error) {
	d := &deps{}

	if cfg.Redis.Addr != "" {
		d.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)
	questionTTL := config.TTLDuration(cfg.Questions.TTL, 10*time.Minute)

	var (
		catalog interface {
			app.Catalog
			memory.QuestionLoader
		}
		stores app.Stores
	)
	if cfg.Postgres.URL != "" {
		d.db = postgres.Open(cfg.Postgres.URL)
		if err := runMigrations(ctx, d.db, log.Named("migrate")); err != nil {
			d.Close()
			return nil, err
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			d.Close()
			return nil, err
		}
		d.pool = pool
		catalog = postgres.NewCatalogLoader(pool)

		store := postgres.NewStore(d.db)
		stores = app.Stores{Attempts: store, Lessons: store, Completions: store, Certificates: store}
		log.Info("using postgres stores")
	} else {
		catalog = demoCatalog()
		progress := memory.NewProgressStore()
		stores = app.Stores{
			Attempts:     memory.NewAttemptStore(),
			Lessons:      progress,
			Completions:  progress,
			Certificates: memory.NewCertificateStore(),
		}
		log.Warn("postgres not configured; using in-memory stores with the demo catalog")
	}
	stores.Catalog = catalog

	if d.redis != nil {
		stores.Questions = infraredis.NewQuestionBank(d.redis, catalog, questionTTL)
		d.sessions = infraredis.NewSessionStore(d.redis, redisTTL)
	} else {
		stores.Questions = memory.NewQuestionBank(catalog, questionTTL)
		d.sessions = memory.NewSessionStore()
	}

	d.services = app.NewServices(stores, app.Settings{
		DailyPassThreshold: cfg.Engine.DailyPassThreshold,
		GrandtestCooldown:  config.TTLDuration(cfg.Engine.GrandtestCooldown, app.DefaultGrandtestCooldown),
		EssayMinLength:     cfg.Engine.EssayMinLength,
	}, app.WithLogger(log), app.WithRecorder(rec))
	return d, nil
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := logger.New(cfg.Log.Mode, cfg.Log.File)
	defer func() { _ = log.Sync() }()

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rec := metrics.New(registry)

	d, err := buildDeps(ctx, cfg, log, rec)
	if err != nil {
		return err
	}
	defer d.Close()

	api := transport.NewAPI(d.services,
		transport.WithAPILogger(log.Named("http")),
		transport.WithDefaultTest(cfg.Engine.DefaultTestID),
		transport.WithVerifyLimit(cfg.Verify.RatePerSecond, cfg.Verify.Burst),
	)
	wsHandler := transport.NewWSHandler(d.services.Engine, d.sessions, log.Named("ws"))

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/ws/attempts", wsHandler.ServeWS)
	api.Register(mux)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info("starting assessment engine", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("failed to start server", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info("shutting down server")
	case <-ctx.Done():
		log.Info("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/example/careride/internal/config"
	"github.com/example/careride/internal/eta"
	httpapi "github.com/example/careride/internal/http"
	"github.com/example/careride/internal/ingest"
	"github.com/example/careride/internal/logging"
	"github.com/example/careride/internal/notify"
	"github.com/example/careride/internal/schedule"
	"github.com/example/careride/internal/storage"
	"github.com/example/careride/internal/tracking"
)

func main() {
	cfg, err := config.LoadServerConfig()
	logger := logging.NewLogger("careride-api", cfg.LogLevel)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	if cfg.PGDSN != "" && cfg.RunMigrations {
		runMigrations(cfg.PGDSN, logger)
	}

	var users storage.UserStore
	var rides storage.RideStore
	var marks storage.ScheduleStore
	if cfg.PGDSN != "" {
		pg, err := storage.NewPostgresStore(cfg.PGDSN)
		if err != nil {
			logger.Error("postgres unavailable", "error", err)
			os.Exit(1)
		}
		defer pg.Close()
		users, rides, marks = pg, pg, pg
	} else {
		mem := storage.NewMemoryStore()
		users, rides, marks = mem, mem, mem
		logger.Warn("PG_DSN unset, using in-memory storage")
	}

	var window tracking.WindowStore
	if cfg.RedisAddr != "" {
		rw := tracking.NewRedisWindow(cfg.RedisAddr, cfg.RedisPassword)
		defer rw.Close()
		window = rw
	} else {
		window = tracking.NewMemoryWindow()
		logger.Warn("REDIS_ADDR unset, ride windows are process-local")
	}

	hub := tracking.NewHub(window, rides, logging.Component(logger, "hub"))

	dispatcher := notify.NewDispatcher(notify.DefaultRegistry(), users, logging.Component(logger, "dispatcher"))
	dispatcher.Realtime = hub
	dispatcher.Timeout = cfg.DispatchWait
	if cfg.EmailConfigured() {
		dispatcher.Email = &notify.SMTPEmailSender{
			Host:     cfg.SMTPHost,
			Port:     strconv.Itoa(cfg.SMTPPort),
			From:     cfg.SMTPFrom,
			Password: cfg.SMTPPassword,
		}
	} else {
		logger.Warn("email channel not configured")
	}
	if cfg.SMSConfigured() {
		dispatcher.SMS = notify.NewTwilioSMSSender(cfg.TwilioSID, cfg.TwilioToken, cfg.TwilioFrom)
	} else {
		logger.Warn("sms channel not configured")
	}
	if cfg.PushConfigured() {
		dispatcher.Push = notify.NewHTTPPushSender(cfg.PushEndpoint, cfg.PushAPIKey)
	} else {
		logger.Warn("push channel not configured")
	}

	estimator := &eta.Estimator{Cache: eta.NewCache(5 * time.Minute), Timeout: cfg.RouteTimeout}
	if cfg.OSRMBaseURL != "" {
		estimator.Client = eta.NewOSRMClient(cfg.OSRMBaseURL)
	}

	// with brokers configured the tracker process owns the window
	// writes; the hub hands accepted fixes to Kafka instead of
	// appending them itself
	if len(cfg.KafkaBrokers) > 0 {
		producer := ingest.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer producer.Close()
		hub.UseSink(producer)
	}

	srv := httpapi.NewServer(hub, estimator, dispatcher, users, rides, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	scheduler := schedule.New(schedule.Config{
		Interval:    cfg.ScanInterval,
		SummaryHour: cfg.SummaryHour,
	}, users, rides, marks, dispatcher, logging.Component(logger, "scheduler"))
	go func() {
		if err := scheduler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("scheduler stopped", "error", err)
		}
	}()

	// no WriteTimeout: SSE streams and websocket upgrades outlive any
	// fixed write deadline
	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv,
		ReadHeaderTimeout: cfg.ReadTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}

	go func() {
		logger.Info("listening", "addr", cfg.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}

func runMigrations(dsn string, logger *slog.Logger) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		logger.Error("migration db open error", "error", err)
		return
	}
	defer db.Close()
	entries, err := os.ReadDir("migrations")
	if err != nil {
		logger.Error("migration dir read error", "error", err)
		return
	}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".sql" {
			continue
		}
		b, err := os.ReadFile(filepath.Join("migrations", e.Name()))
		if err != nil {
			logger.Error("migration read error", "file", e.Name(), "error", err)
			continue
		}
		if _, err := db.Exec(string(b)); err != nil {
			logger.Error("migration exec error", "file", e.Name(), "error", err)
		}
	}
}

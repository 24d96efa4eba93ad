package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hackgods/clinicdesk/internal/agenda"
	"github.com/hackgods/clinicdesk/internal/api"
	"github.com/hackgods/clinicdesk/internal/audit"
	"github.com/hackgods/clinicdesk/internal/availability"
	"github.com/hackgods/clinicdesk/internal/config"
	"github.com/hackgods/clinicdesk/internal/db"
	"github.com/hackgods/clinicdesk/internal/form"
	"github.com/hackgods/clinicdesk/internal/gateway"
	"github.com/hackgods/clinicdesk/internal/history"
	"github.com/hackgods/clinicdesk/internal/logger"
	"github.com/hackgods/clinicdesk/internal/metrics"
	"github.com/hackgods/clinicdesk/internal/patient"
	"github.com/hackgods/clinicdesk/internal/postal"
	redisclient "github.com/hackgods/clinicdesk/internal/redis"
	"github.com/hackgods/clinicdesk/internal/session"
)

const version = "0.1.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("config load error: " + err.Error() + "\n")
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	log.Info("api-server starting up", zap.String("env", cfg.Env), zap.String("http_port", cfg.HTTPPort))

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatal("postgres connection error", zap.Error(err))
	}
	defer pgPool.Close()
	log.Info("connected to Postgres")

	auditStore := audit.NewPgStore(pgPool)
	if err := auditStore.EnsureSchema(rootCtx); err != nil {
		log.Fatal("audit schema", zap.Error(err))
	}
	recorder := audit.NewRecorder(auditStore, log.Named("audit"))

	// Connect Redis
	rdb, err := redisclient.NewRedisClient(rootCtx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		log.Fatal("redis connection error", zap.Error(err))
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Warn("error closing redis", zap.Error(err))
		}
	}()
	log.Info("connected to Redis")

	collector := metrics.NewCollector("clinicdesk")

	backend := gateway.New(cfg.BackendURL, &http.Client{Timeout: cfg.BackendTimeout}, session.Session{})
	postalClient := postal.New(cfg.PostalURL, nil,
		postal.WithCache(redisclient.NewJSONCache(rdb, "postal:", cfg.PostalCacheTTL)),
		postal.WithRecorder(collector),
		postal.WithLogger(log.Named("postal")),
	)

	loc := cfg.Location()
	now := func() time.Time { return time.Now().In(loc) }

	forms := form.NewRegistry(form.Deps{
		Appointments: backend,
		Patients:     backend,
		Postal:       postalClient,
		Checker:      availability.NewChecker(backend, log.Named("availability"), collector),
		Locker:       redisclient.NewRedisSlotLocker(rdb, cfg.LockTTL),
		Audit:        recorder,
		Now:          now,
		Debounce:     cfg.CheckDebounce,
		Log:          log.Named("forms"),
		Recorder:     collector,
	}, cfg.FormTTL)
	collector.GaugeFunc("clinicdesk", "open_forms", "Forms currently open.", func() float64 {
		return float64(forms.Open())
	})

	agendas := agenda.NewBook(backend, recorder, log.Named("agenda"), cfg.DeskIdleTTL)
	desks := history.NewDesks(backend, recorder, log.Named("history"), cfg.DeskIdleTTL)
	collector.GaugeFunc("clinicdesk", "agendas", "Agendas held in memory.", func() float64 {
		return float64(agendas.Len())
	})
	collector.GaugeFunc("clinicdesk", "desks", "Consultation desks held in memory.", func() float64 {
		return float64(desks.Len())
	})

	go forms.Run(rootCtx, cfg.SweepInterval)
	go agendas.Run(rootCtx, cfg.AgendaRefresh)
	go desks.Run(rootCtx, cfg.SweepInterval)

	sessions := session.Parser{}
	if cfg.JWTSecret != "" {
		sessions.Key = []byte(cfg.JWTSecret)
	} else {
		log.Warn("JWT_SECRET not set, token subjects are not verified")
	}

	router := api.NewRouter(api.RouterConfig{
		Backend:        backend,
		Forms:          forms,
		Agendas:        agendas,
		Patients:       patient.NewDirectory(backend, recorder),
		Desks:          desks,
		Catalogs:       history.NewCatalogs(backend),
		Postal:         postalClient,
		Metrics:        collector,
		Health:         api.NewHealthHandler(pgPool, rdb, backend, cfg.Env, version),
		Log:            log.Named("http"),
		Now:            now,
		AllowedOrigins: cfg.AllowedOrigins,
		RateLimit:      cfg.RateLimit,
		Sessions:       sessions,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-rootCtx.Done()

	log.Info("shutting down api-server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("graceful shutdown failed", zap.Error(err))
	}
}

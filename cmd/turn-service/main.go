package main

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"qms/turn-service/internal/auth"
	"qms/turn-service/internal/config"
	"qms/turn-service/internal/httpapi"
	"qms/turn-service/internal/queue"
	"qms/turn-service/internal/registry"
	"qms/turn-service/internal/store"
	"qms/turn-service/internal/store/memory"
	"qms/turn-service/internal/store/postgres"
	"qms/turn-service/internal/telemetry"
	"qms/turn-service/migrations"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	serviceName = "turn-service"
	version     = "0.1.0"
)

func main() {
	var envFile, port string
	var migrateOnly bool
	flags := pflag.NewFlagSet(serviceName, pflag.ExitOnError)
	flags.StringVar(&envFile, "env-file", ".env", "load environment variables from this file when present")
	flags.BoolVar(&migrateOnly, "migrate", false, "apply database migrations and exit")
	flags.StringVar(&port, "port", "", "listen port (overrides PORT)")
	_ = flags.Parse(os.Args[1:])

	if err := config.LoadEnvFile(envFile); err != nil {
		log.Fatalf("env file: %v", err)
	}
	cfg := config.Load()
	if port != "" {
		cfg.Port = port
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	if cfg.LogFile != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    cfg.LogMaxSizeMB,
			MaxBackups: cfg.LogMaxBackups,
			Compress:   true,
		}
		defer rotator.Close()
		log.SetOutput(io.MultiWriter(os.Stderr, rotator))
	}

	ctx := context.Background()
	shutdownTracing := telemetry.Setup(ctx, telemetry.OptionsFromEnv(serviceName, version))
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Printf("telemetry shutdown error: %v", err)
		}
	}()

	st, closeStore := openStore(ctx, cfg, migrateOnly)
	defer closeStore()
	if migrateOnly {
		return
	}

	queueService := queue.NewService(st, queue.Options{
		Location:     cfg.Location(),
		TicketPrefix: cfg.TicketPrefix,
		TicketPad:    cfg.TicketPad,
		PreviewSize:  cfg.PreviewSize,
	})
	registryService := registry.NewService(st)
	if _, err := registryService.EnsureAdmin(ctx, cfg.BootstrapAdminEmail, cfg.BootstrapAdminPassword); err != nil {
		log.Fatalf("bootstrap admin: %v", err)
	}

	tokens, err := auth.NewTokens(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		log.Fatalf("tokens: %v", err)
	}
	metrics := httpapi.NewMetrics(prometheus.NewRegistry(), queueService)
	handler := httpapi.NewHandler(st, queueService, registryService, tokens, httpapi.Options{
		Metrics:      metrics,
		CookieSecure: cfg.CookieSecure,
	})
	limiter := httpapi.NewRateLimiter(httpapi.RateLimitConfig{
		IPPerMinute:    cfg.RateLimitPerMinute,
		IPBurst:        cfg.RateLimitBurst,
		StaffPerMinute: cfg.StaffRateLimitPerMinute,
		StaffBurst:     cfg.StaffRateLimitBurst,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      otelhttp.NewHandler(handler.Stack(limiter), serviceName),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("%s listening on %s store=%s timezone=%s", serviceName, server.Addr, cfg.StoreDriver, cfg.Timezone)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}

// openStore connects the configured store. The postgres store is migrated on
// every start.
func openStore(ctx context.Context, cfg config.Config, migrateOnly bool) (store.Store, func()) {
	if cfg.StoreDriver == config.DriverMemory {
		if migrateOnly {
			log.Fatalf("--migrate requires STORE_DRIVER=%s", config.DriverPostgres)
		}
		log.Printf("using in-memory store; data is lost on exit")
		return memory.New(), func() {}
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	applied, err := postgres.Migrate(ctx, pool, migrations.Files)
	if err != nil {
		pool.Close()
		log.Fatalf("migrate: %v", err)
	}
	log.Printf("migrations complete applied=%d", applied)
	return postgres.NewStore(pool), pool.Close
}

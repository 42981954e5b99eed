package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/compass-dev/compass/internal/jury"
	"github.com/compass-dev/compass/internal/memory"
	"github.com/compass-dev/compass/internal/observability"
	"github.com/compass-dev/compass/internal/router"
	"github.com/compass-dev/compass/internal/server"
	"github.com/compass-dev/compass/internal/station"
	"github.com/compass-dev/compass/pkg/config"
)

var (
	// Version information (set via ldflags)
	Version = "dev"

	configFile = flag.String("config", os.Getenv("CONFIG_FILE"), "Optional YAML configuration file")
	rateLimit  = flag.Float64("rate-limit", 0, "Requests per second across all clients (0 disables)")
)

func main() {
	flag.Parse()

	log.Printf("Starting Compass v%s", Version)

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	observability.InitMetrics()
	if err := observability.InitTracingFromEnv(); err != nil {
		log.Printf("Tracing disabled: %v", err)
	}

	routerClient := router.NewClient(cfg.RouterURL, cfg.RouterToken, cfg.AgentID)

	sessions := memory.NewSessionManager(cfg.SessionTTL)
	var backend memory.Backend
	if cfg.RedisAddr != "" {
		rb, err := memory.NewRedisBackend(memory.RedisConfig{Addr: cfg.RedisAddr})
		if err != nil {
			log.Fatalf("Redis backend error: %v", err)
		}
		backend = rb
		log.Printf("Long-term memory backed by redis at %s", cfg.RedisAddr)
	}
	longTerm := memory.NewLongTermStore(backend)

	orch := jury.New(routerClient, jury.Config{
		Models:           cfg.Models,
		ReflectionModel:  cfg.ReflectionModel,
		EnableReflection: cfg.EnableReflection,
		EnableMemory:     cfg.EnableMemory,
		EnableGuardrails: cfg.EnableGuardrails,
		EnableModeration: cfg.EnableModeration,
	}, sessions, longTerm)

	stationClient := station.NewClient(station.Config{
		StationURL:      cfg.StationURL,
		CollectorURL:    cfg.CollectorURL,
		AgentID:         cfg.AgentID,
		AgentKey:        cfg.AgentKey,
		AgentName:       "compass",
		RequestsHandled: observability.RequestsHandled,
		CustomMetrics: func() map[string]float64 {
			stats := sessions.Stats()
			m := map[string]float64{
				"active_sessions":       float64(stats.ActiveSessions),
				"total_session_queries": float64(stats.TotalEntries),
			}
			if n, err := longTerm.Len(context.Background()); err == nil {
				m["long_term_memory_size"] = float64(n)
			}
			return m
		},
	})

	srv := server.New(server.Config{
		Port:      cfg.Port,
		Models:    cfg.Models,
		RateLimit: *rateLimit,
	}, orch, sessions, longTerm, stationClient, routerClient)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := stationClient.Transition(ctx, station.StateProvisioned, "startup"); err != nil {
		log.Fatalf("Lifecycle error: %v", err)
	}
	if err := stationClient.Transition(ctx, station.StateActive, "startup complete"); err != nil {
		log.Fatalf("Lifecycle error: %v", err)
	}

	go stationClient.RunHeartbeat(ctx)

	scheduler := cron.New()
	if _, err := scheduler.AddFunc("@every 5m", func() {
		sessions.Reap()
	}); err != nil {
		log.Fatalf("Scheduler error: %v", err)
	}
	if _, err := scheduler.AddFunc("@every 60s", func() {
		reportCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		stationClient.ReportMetrics(reportCtx)
	}); err != nil {
		log.Fatalf("Scheduler error: %v", err)
	}
	scheduler.Start()

	if err := srv.Start(ctx); err != nil {
		log.Printf("HTTP server error: %v", err)
	}

	// Graceful shutdown: drain, then terminate.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	<-scheduler.Stop().Done()

	if err := stationClient.Transition(shutdownCtx, station.StateDraining, "shutdown"); err != nil {
		log.Printf("Lifecycle error: %v", err)
	}
	if err := stationClient.Transition(shutdownCtx, station.StateTerminated, "shutdown complete"); err != nil {
		log.Printf("Lifecycle error: %v", err)
	}

	if err := longTerm.Close(); err != nil {
		log.Printf("Memory backend close error: %v", err)
	}
	if err := observability.ShutdownTracing(shutdownCtx); err != nil {
		log.Printf("Tracing shutdown error: %v", err)
	}

	log.Println("Compass stopped")
}

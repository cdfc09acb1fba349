package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"carevrp/internal/api"
	"carevrp/internal/config"
	"carevrp/internal/events"
	"carevrp/internal/jobs"
	"carevrp/internal/store"
	"carevrp/internal/webhooks"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Store selection: in-memory unless DATABASE_URL is set
	var st store.Store
	if cfg.DatabaseURL == "" {
		st = store.NewMemory()
	} else {
		pg, err := store.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("postgres: %v", err)
		}
		defer pg.Close()
		if os.Getenv("DB_MIGRATE") != "false" {
			if err := pg.Migrate(ctx); err != nil {
				log.Fatalf("migrate: %v", err)
			}
		}
		st = pg
	}

	// Broker selection
	var broker events.Broker = events.NewMemory()
	if cfg.RedisURL != "" {
		rb, err := events.NewRedis(ctx, cfg.RedisURL)
		if err != nil {
			log.Printf("redis unavailable, using in-memory broker: %v", err)
		} else {
			defer rb.Close()
			broker = rb
		}
	}

	solver, err := cfg.NewSolver()
	if err != nil {
		log.Fatalf("solver: %v", err)
	}

	worker := jobs.NewWorker(st, broker, solver, cfg.EngineConfig())
	worker.Interval = cfg.Server.WorkerInterval
	worker.Concurrency = cfg.Server.WorkerConcurrency
	worker.Start()
	callbacks := webhooks.NewWorker(st)
	callbacks.Start()

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           logMiddleware(api.Instrument(api.NewServer(cfg, st, broker).Routes())),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdown)
	}()

	log.Printf("API listening on %s backend=%s", cfg.Server.Addr, solver.Name())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server error: %v", err)
	}
	close(worker.Stop)
	close(callbacks.Stop)
	log.Printf("API stopped")
}

func logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		dur := time.Since(start)
		log.Printf("%s %s %s %v", r.RemoteAddr, r.Method, r.URL.Path, dur)
	})
}

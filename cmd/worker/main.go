package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"classroom/internal/attendance"
	"classroom/internal/config"
	"classroom/internal/events"
	"classroom/internal/roster"
	"classroom/internal/sessions"
	"classroom/internal/store"
)

// Worker sweeps active sessions that outlived their check-in window plus a
// grace period and closes them, so a teacher who forgets to close a class
// does not leave the slot locked forever.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()

	var bus events.Bus
	if cfg.BusBackend == "redis" {
		redisClient := store.NewRedis(cfg.RedisAddr)
		bus = events.NewRedisBus(redisClient.Client, "classroom:events")
	} else {
		bus = events.NewInMemory(64)
	}

	svc := sessions.NewService(
		sessions.NewRepository(db.Client),
		attendance.NewRepository(db.Client),
		roster.NewRepository(db.Client),
		bus,
	)

	maxAge := cfg.LateWindow + cfg.SweepGrace
	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	log.Printf("sweeper started, interval %s, max session age %s", cfg.SweepInterval, maxAge)
	for {
		select {
		case <-ctx.Done():
			log.Println("sweeper stopped")
			return
		case <-ticker.C:
			closed, err := svc.CloseExpired(ctx, maxAge)
			if err != nil {
				log.Printf("sweep failed: %v", err)
				continue
			}
			if closed > 0 {
				log.Printf("sweep closed %d expired session(s)", closed)
			}
		}
	}
}

package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"classroom/internal/attendance"
	"classroom/internal/claims"
	"classroom/internal/config"
	"classroom/internal/events"
	"classroom/internal/httpapi"
	"classroom/internal/metrics"
	"classroom/internal/realtime"
	"classroom/internal/reservations"
	"classroom/internal/rooms"
	"classroom/internal/roster"
	"classroom/internal/sessions"
	"classroom/internal/store"
	"classroom/internal/timing"
)

func main() {
	cfg := config.Load()

	// Set Gin mode based on environment
	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

// backends bundles the storage implementations picked by STORE_BACKEND.
type backends struct {
	catalog      rooms.Catalog
	reservations reservations.Store
	sessions     sessions.Store
	claims       claims.Store
	records      attendance.Store
	roster       roster.Store
	db           *store.DB
}

func buildBackends(ctx context.Context, cfg config.App) (*backends, error) {
	if cfg.StoreBackend == "memory" {
		b := &backends{
			catalog:      rooms.NewMemCatalog(),
			reservations: reservations.NewMemStore(),
			sessions:     sessions.NewMemStore(),
			claims:       claims.NewMemStore(),
			records:      attendance.NewMemStore(),
			roster:       roster.NewMemStore(),
		}
		seedDev(ctx, b)
		return b, nil
	}

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := db.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	return &backends{
		catalog:      rooms.NewCached(rooms.NewRepository(db.Client), 5*time.Minute),
		reservations: reservations.NewRepository(db.Client),
		sessions:     sessions.NewRepository(db.Client),
		claims:       claims.NewRepository(db.Client),
		records:      attendance.NewRepository(db.Client),
		roster:       roster.NewRepository(db.Client),
		db:           db,
	}, nil
}

// seedDev loads a demo room and roster so the memory backend is usable
// out of the box.
func seedDev(ctx context.Context, b *backends) {
	_ = b.catalog.Put(ctx, rooms.Room{
		ID:          "room-101",
		Name:        "Lecture Hall 101",
		Rows:        6,
		SeatsPerRow: 8,
		Unavailable: []string{"F7", "F8"},
		Special:     []string{"A1", "A2"},
	})
	ms, ok := b.roster.(*roster.MemStore)
	if !ok {
		return
	}
	for _, s := range []roster.Student{
		{ID: "stu-1", Code: "S001", Name: "Asha Rao"},
		{ID: "stu-2", Code: "S002", Name: "Ben Ortiz"},
		{ID: "stu-3", Code: "S003", Name: "Chen Wei"},
	} {
		ms.Enroll("course-cs101", s)
	}
	log.Println("memory backend seeded with demo room and roster")
}

func runHTTP(cfg config.App) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b, err := buildBackends(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if b.db != nil {
			_ = b.db.Close()
		}
	}()

	redisClient := store.NewRedis(cfg.RedisAddr)

	var bus events.Bus
	if cfg.BusBackend == "redis" {
		bus = events.NewRedisBus(redisClient.Client, "classroom:events")
	} else {
		bus = events.NewInMemory(256)
	}

	m := metrics.New(prometheus.DefaultRegisterer)

	sessionSvc := sessions.NewService(b.sessions, b.records, b.roster, bus)
	reservationSvc := reservations.NewService(b.reservations)
	policy := timing.New(cfg.OnTimeWindow, cfg.LateWindow)
	coordinator := claims.NewCoordinator(sessionSvc, b.catalog, b.claims,
		b.records, b.roster, policy, bus, m)

	// Subscribers get the current seat map before the live stream starts.
	// When the room has no active session the bare template is sent.
	snapshot := func(ctx context.Context, roomID, date, slot string) (*events.Event, error) {
		evt := &events.Event{
			Type:   events.SeatMapSnapshot,
			RoomID: roomID,
			Date:   date,
			Slot:   slot,
			At:     time.Now().UTC(),
		}
		sess, err := sessionSvc.ActiveByRoom(ctx, roomID, date, slot)
		if err != nil {
			return nil, err
		}
		if sess == nil {
			room, err := b.catalog.Get(ctx, roomID)
			if err != nil {
				return nil, err
			}
			sm := rooms.BuildSeatMap(room, nil)
			evt.SeatMap = &sm
			return evt, nil
		}
		sm, err := coordinator.SeatMapFor(ctx, sess)
		if err != nil {
			return nil, err
		}
		evt.SessionID = sess.ID
		evt.CheckedIn = sess.CheckedIn
		evt.SeatMap = sm
		return evt, nil
	}

	hub := realtime.NewHub(snapshot, m)
	go func() {
		if err := hub.Run(ctx, bus); err != nil && ctx.Err() == nil {
			log.Printf("hub pump stopped: %v", err)
		}
	}()

	r := gin.New()

	// Recovery middleware
	r.Use(gin.Recovery())

	// Custom logger
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))

	// CORS middleware
	r.Use(corsMiddleware())

	// Security headers
	r.Use(securityHeaders())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		status := http.StatusOK
		health := gin.H{"status": "ok"}
		if cfg.BusBackend == "redis" {
			healthy := redisClient.Healthy(c.Request.Context())
			health["redis"] = healthy
			if !healthy {
				status = http.StatusServiceUnavailable
			}
		}
		if b.db != nil {
			healthy := b.db.Client.PingContext(c.Request.Context()) == nil
			health["db"] = healthy
			if !healthy {
				status = http.StatusServiceUnavailable
			}
		}
		if status != http.StatusOK {
			health["status"] = "degraded"
		}
		c.JSON(status, health)
	})

	httpapi.New(cfg, reservationSvc, sessionSvc, coordinator,
		b.catalog, b.roster, b.records, hub).Register(r)

	// Graceful shutdown
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Starting server on :%s (store=%s bus=%s)", cfg.HTTPPort, cfg.StoreBackend, cfg.BusBackend)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")
	cancel()

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}

	log.Println("Server exited")
	return nil
}

// CORS middleware for browser requests
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Security headers middleware
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		// Only add HSTS in production
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}

package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"campusops/internal/app"
	"campusops/internal/auth"
	"campusops/internal/config"
	"campusops/internal/handler"
	"campusops/internal/httpmiddleware"
	"campusops/internal/scheduler"
)

func main() {
	cfg := config.Load()

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if cfg.EmbeddedScheduler {
		runner := scheduler.NewRunner(a.Location, a.Lease, a.Tasks()...)
		scheduler.Start(ctx, runner, cfg.SchedulerTick, time.Now)
	}
	// An in-process queue has no other consumer.
	if cfg.EmbeddedScheduler || cfg.QueueBackend == "memory" {
		go func() {
			if err := a.ConsumeRenewals(ctx); err != nil {
				log.Printf("renewal consumer: %v", err)
			}
		}()
	}

	var limiter httpmiddleware.Limiter = httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin)
	if cfg.RateLimitBackend == "redis" {
		limiter = httpmiddleware.NewRedisWindow(a.Redis.Client, "campusops:ratelimit", cfg.RateLimitPerMin)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowCredentials: true,
		MaxAge:           24 * time.Hour,
	}))
	r.Use(securityHeaders())
	r.Use(httpmiddleware.RateLimit(limiter, httpmiddleware.ByClientIP))

	h := &handler.Handler{
		Renewal:    a.Renewal,
		Attendance: a.Attendance,
		Payments:   a.Payments,
		Borrowings: a.Borrowings,
		Queue:      a.Queue,
		Health:     a.HealthChecks(),
		Location:   a.Location,
	}
	h.Register(r, handler.Middleware{
		Authenticate: auth.Authenticate(cfg.JWTSigningKey, cfg.JWTIssuer),
		ScanLimit:    httpmiddleware.RateLimit(limiter, bySubject),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting server on :%s (store=%s, tz=%s)", cfg.HTTPPort, cfg.StoreBackend, a.Location)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}

	log.Println("Server exited")
	return nil
}

// bySubject keys scan throttling on the authenticated identity.
func bySubject(c *gin.Context) string {
	if claims, ok := auth.ClaimsFrom(c); ok {
		return "scan:" + claims.Subject
	}
	return httpmiddleware.ByClientIP(c)
}

// Security headers middleware
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}

package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"campusops/internal/app"
	"campusops/internal/config"
	"campusops/internal/scheduler"
)

// Worker runs the periodic renewal, sweep and status-refresh tasks and
// consumes queued renewal requests.
func main() {
	cfg := config.Load()
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("startup failed: %v", err)
	}
	defer a.Close()

	runner := scheduler.NewRunner(a.Location, a.Lease, a.Tasks()...)
	scheduler.Start(ctx, runner, cfg.SchedulerTick, time.Now)

	log.Println("worker started, waiting for messages...")
	if err := a.ConsumeRenewals(ctx); err != nil {
		log.Printf("renewal consumer: %v", err)
	}
	<-ctx.Done()
	log.Println("worker stopped")
}

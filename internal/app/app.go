// Package app assembles the services shared by the api, worker and opsctl
// binaries from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"campusops/internal/attendance"
	"campusops/internal/borrowing"
	"campusops/internal/config"
	"campusops/internal/payment"
	"campusops/internal/queue"
	"campusops/internal/renewal"
	"campusops/internal/schedule"
	"campusops/internal/scheduler"
	"campusops/internal/store"
	"campusops/internal/token"
)

// App holds the wired services.
type App struct {
	Config   config.App
	Location *time.Location

	DB    *store.DB
	Redis *store.Redis

	Occurrences schedule.Repository
	Tokens      token.Store
	Issuer      *token.Issuer
	Renewal     *renewal.Engine
	Attendance  *attendance.Service
	Payments    *payment.Service
	Borrowings  *borrowing.Service
	Queue       queue.Queue
	Lease       scheduler.Lease
}

// New connects the configured backends. STORE_BACKEND=memory runs without
// Postgres, seeded from OCCURRENCES_FILE.
func New(ctx context.Context, cfg config.App) (*App, error) {
	a := &App{Config: cfg, Location: cfg.Location()}

	if cfg.QueueBackend == "redis" || cfg.LeaseBackend == "redis" || cfg.RateLimitBackend == "redis" {
		a.Redis = store.NewRedis(store.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPass,
			DB:       cfg.RedisDB,
			Timeout:  cfg.StoreTimeout,
		})
	}

	var (
		ledger     attendance.Ledger
		payments   payment.Repository
		borrowings borrowing.Repository
	)
	switch cfg.StoreBackend {
	case "memory":
		occs := schedule.NewMemoryRepository()
		if cfg.OccurrencesFile != "" {
			seeded, err := schedule.LoadFile(cfg.OccurrencesFile)
			if err != nil {
				return nil, fmt.Errorf("seed occurrences: %w", err)
			}
			for _, o := range seeded {
				occs.Put(o)
			}
			log.Printf("seeded %d occurrences from %s", len(seeded), cfg.OccurrencesFile)
		}
		a.Occurrences = occs
		a.Tokens = token.NewMemoryStore()
		ledger = attendance.NewMemoryLedger()
		payments = payment.NewMemoryRepository()
		borrowings = borrowing.NewMemoryRepository()
	case "postgres":
		db, err := store.NewDB(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		a.DB = db
		if err := db.Migrate(ctx); err != nil {
			a.Close()
			return nil, err
		}
		a.Occurrences = schedule.NewPostgresRepository(db.Client)
		a.Tokens = token.NewPostgresStore(db.Client)
		ledger = attendance.NewPostgresLedger(db.Client, a.Location)
		payments = payment.NewPostgresRepository(db.Client)
		borrowings = borrowing.NewPostgresRepository(db.Client)
	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}

	a.Issuer = token.NewIssuer(a.Tokens, token.IssuerOptions{
		Location: a.Location,
		Code:     token.RandomCode(cfg.CodeLength),
		Attempts: cfg.IssueAttempts,
		Timeout:  cfg.StoreTimeout,
	})
	a.Renewal = renewal.NewEngine(a.Occurrences, a.Tokens, a.Issuer, renewal.Options{
		Location:     a.Location,
		Lookahead:    cfg.RenewLookahead,
		StoreTimeout: cfg.StoreTimeout,
	})
	a.Attendance = attendance.NewService(ledger, a.Tokens, a.Occurrences, attendance.Options{
		Location:     a.Location,
		Grace:        cfg.ScanGrace,
		MinInterval:  cfg.CheckoutMinInterval,
		StoreTimeout: cfg.StoreTimeout,
	})
	a.Payments = payment.NewService(payments, cfg.StoreTimeout)
	a.Borrowings = borrowing.NewService(borrowings, cfg.StoreTimeout)

	if cfg.QueueBackend == "redis" {
		a.Queue = queue.NewRedisQueue(a.Redis.Client, "campusops:renewals")
	} else {
		a.Queue = queue.NewInMemory(64)
	}
	if cfg.LeaseBackend == "redis" {
		a.Lease = scheduler.NewRedisLease(a.Redis.Client, "campusops:lease:")
	} else {
		a.Lease = scheduler.NewMemoryLease()
	}
	return a, nil
}

// Close releases connections.
func (a *App) Close() {
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			log.Printf("close postgres: %v", err)
		}
	}
	if err := a.Redis.Close(); err != nil {
		log.Printf("close redis: %v", err)
	}
}

// HealthChecks lists the backends /healthz probes.
func (a *App) HealthChecks() map[string]func(context.Context) bool {
	checks := map[string]func(context.Context) bool{}
	if a.DB != nil {
		checks["db"] = a.DB.Healthy
	}
	if a.Redis != nil {
		checks["redis"] = a.Redis.Healthy
	}
	return checks
}

// Tasks are the periodic jobs: a daily renewal at day start, an hourly
// renewal catch-up, the hourly expiry sweep and the daily status refresh of
// payments and borrowings.
func (a *App) Tasks() []scheduler.Task {
	return []scheduler.Task{
		{Name: "renew-daily", Period: scheduler.Daily, Run: a.renewTask(renewal.Daily)},
		{Name: "renew-hourly", Period: scheduler.Hourly, Run: a.renewTask(renewal.Hourly)},
		{Name: "token-sweep", Period: scheduler.Hourly, Run: func(ctx context.Context, at time.Time) error {
			n, err := a.Renewal.Sweep(ctx, at)
			if err == nil && n > 0 {
				log.Printf("sweep: retired %d expired tokens", n)
			}
			return err
		}},
		{Name: "status-refresh", Period: scheduler.Daily, Run: func(ctx context.Context, at time.Time) error {
			np, perr := a.Payments.Refresh(ctx, at)
			nb, berr := a.Borrowings.Refresh(ctx, at)
			if np+nb > 0 {
				log.Printf("status refresh: %d payments, %d borrowings now overdue", np, nb)
			}
			return errors.Join(perr, berr)
		}},
	}
}

func (a *App) renewTask(c renewal.Cadence) func(context.Context, time.Time) error {
	return func(ctx context.Context, at time.Time) error {
		res, err := a.Renewal.Renew(ctx, c, at)
		if err != nil {
			return err
		}
		log.Printf("renewal %s: renewed=%d skipped=%d failed=%d", c, len(res.Renewed), len(res.Skipped), len(res.Failed))
		return nil
	}
}

// ConsumeRenewals runs queued renewal requests until ctx ends.
func (a *App) ConsumeRenewals(ctx context.Context) error {
	messages, err := a.Queue.Consume(ctx)
	if err != nil {
		return fmt.Errorf("queue consume init: %w", err)
	}
	for msg := range messages {
		if msg.Type != queue.TypeRenew {
			log.Printf("queue: ignoring message of type %q", msg.Type)
			continue
		}
		var req queue.RenewRequest
		if err := msg.Decode(queue.TypeRenew, &req); err != nil {
			log.Printf("queue: bad renewal request: %v", err)
			continue
		}
		c, err := renewal.ParseCadence(req.Cadence)
		if err != nil {
			log.Printf("queue: %v", err)
			continue
		}
		log.Printf("renewal %s requested by %s", c, req.RequestedBy)
		if err := a.renewTask(c)(ctx, time.Now()); err != nil {
			log.Printf("renewal %s: %v", c, err)
		}
	}
	return nil
}

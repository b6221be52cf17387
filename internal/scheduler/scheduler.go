// Package scheduler fires periodic tasks on wall-clock slots.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"campusops/internal/metrics"
)

// Scheduler runs whatever tasks are due at an instant.
type Scheduler interface {
	RunDue(ctx context.Context, at time.Time) error
}

// Period is how often a task fires.
type Period int

const (
	Hourly Period = iota
	Daily
)

// Slot names the window at falls in, e.g. "2026-10-20" or "2026-10-20T09".
func (p Period) Slot(at time.Time, loc *time.Location) string {
	local := at.In(loc)
	if p == Daily {
		return local.Format("2006-01-02")
	}
	return local.Format("2006-01-02T15")
}

func (p Period) leaseTTL() time.Duration {
	if p == Daily {
		return 25 * time.Hour
	}
	return 2 * time.Hour
}

// Task is a unit of periodic work. It runs at most once per slot across
// every process sharing the same Lease.
type Task struct {
	Name   string
	Period Period
	Run    func(ctx context.Context, at time.Time) error
}

// Runner is the Scheduler used by the worker.
type Runner struct {
	tasks []Task
	lease Lease
	loc   *time.Location

	mu   sync.Mutex
	last map[string]string
}

// NewRunner creates a runner. A nil lease means single-process operation.
func NewRunner(loc *time.Location, lease Lease, tasks ...Task) *Runner {
	if loc == nil {
		loc = time.UTC
	}
	if lease == nil {
		lease = NewMemoryLease()
	}
	return &Runner{tasks: tasks, lease: lease, loc: loc, last: make(map[string]string)}
}

// RunDue runs each task whose current slot has not run yet. Errors from
// individual tasks are collected; the remaining tasks still run.
func (r *Runner) RunDue(ctx context.Context, at time.Time) error {
	var firstErr error
	for _, task := range r.tasks {
		if err := r.runTask(ctx, task, at); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *Runner) runTask(ctx context.Context, task Task, at time.Time) error {
	slot := task.Period.Slot(at, r.loc)
	r.mu.Lock()
	done := r.last[task.Name] == slot
	r.mu.Unlock()
	if done {
		return nil
	}

	key := task.Name + ":" + slot
	acquired, err := r.lease.Acquire(ctx, key, task.Period.leaseTTL())
	if err != nil {
		// Renewal is safe to run concurrently, so a lease outage only costs duplicate work.
		log.Printf("scheduler: lease %s unavailable, running anyway: %v", key, err)
		acquired = true
	}
	if !acquired {
		r.markDone(task.Name, slot)
		metrics.SchedulerRuns.WithLabelValues(task.Name, "leased_elsewhere").Inc()
		return nil
	}

	if err := task.Run(ctx, at); err != nil {
		if rerr := r.lease.Release(ctx, key); rerr != nil {
			log.Printf("scheduler: release %s: %v", key, rerr)
		}
		metrics.SchedulerRuns.WithLabelValues(task.Name, "error").Inc()
		return fmt.Errorf("task %s: %w", task.Name, err)
	}
	r.markDone(task.Name, slot)
	metrics.SchedulerRuns.WithLabelValues(task.Name, "ok").Inc()
	return nil
}

func (r *Runner) markDone(name, slot string) {
	r.mu.Lock()
	r.last[name] = slot
	r.mu.Unlock()
}

// Start calls RunDue immediately and then on every tick until ctx ends.
func Start(ctx context.Context, s Scheduler, tick time.Duration, now func() time.Time) {
	if tick <= 0 {
		tick = time.Minute
	}
	go func() {
		log.Println("scheduler started")
		ticker := time.NewTicker(tick)
		defer ticker.Stop()
		for {
			if err := s.RunDue(ctx, now()); err != nil {
				log.Printf("scheduler: %v", err)
			}
			select {
			case <-ctx.Done():
				log.Println("scheduler stopped")
				return
			case <-ticker.C:
			}
		}
	}()
}

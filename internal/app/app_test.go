package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campusops/internal/config"
	"campusops/internal/queue"
	"campusops/internal/scheduler"
)

const seed = `[
  {"id":"algo-tue","course_ref":"algo","department_ref":"cs","year_level":2,"day":"tuesday","start":"09:00","end":"11:00","room":"C3"},
  {"id":"algo-thu","course_ref":"algo","department_ref":"cs","year_level":2,"day":"thursday","start":"14:00","end":"16:00","room":"C3"}
]`

func memoryConfig(t *testing.T) config.App {
	t.Helper()
	path := filepath.Join(t.TempDir(), "occurrences.json")
	require.NoError(t, os.WriteFile(path, []byte(seed), 0o600))
	return config.App{
		StoreBackend:     "memory",
		QueueBackend:     "memory",
		LeaseBackend:     "memory",
		RateLimitBackend: "memory",
		Timezone:         "UTC",
		OccurrencesFile:  path,
		StoreTimeout:     time.Second,
		RenewLookahead:   time.Hour,
		IssueAttempts:    5,
		CodeLength:       8,
	}
}

func TestNew_MemoryBackendIsSeeded(t *testing.T) {
	a, err := New(context.Background(), memoryConfig(t))
	require.NoError(t, err)
	defer a.Close()

	occs, err := a.Occurrences.ListPublished(context.Background())
	require.NoError(t, err)
	assert.Len(t, occs, 2)
	assert.Nil(t, a.Redis)
	assert.Empty(t, a.HealthChecks())
}

func TestNew_UnknownBackend(t *testing.T) {
	cfg := memoryConfig(t)
	cfg.StoreBackend = "cassandra"
	_, err := New(context.Background(), cfg)
	assert.Error(t, err)
}

func TestTasks_DailyRenewalThroughRunner(t *testing.T) {
	a, err := New(context.Background(), memoryConfig(t))
	require.NoError(t, err)
	ctx := context.Background()

	runner := scheduler.NewRunner(a.Location, a.Lease, a.Tasks()...)
	tuesday := time.Date(2026, 10, 20, 0, 1, 0, 0, time.UTC)
	require.NoError(t, runner.RunDue(ctx, tuesday))

	tok, err := a.Renewal.Current(ctx, "algo-tue", tuesday)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 10, 20, 11, 0, 0, 0, time.UTC), tok.ExpiresAt)

	_, err = a.Renewal.Current(ctx, "algo-thu", tuesday)
	assert.Error(t, err, "thursday is outside the daily window")
}

func TestConsumeRenewals(t *testing.T) {
	a, err := New(context.Background(), memoryConfig(t))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- a.ConsumeRenewals(ctx) }()

	msg, err := queue.NewMessage(queue.TypeRenew, queue.RenewRequest{Cadence: "hourly", RequestedBy: "admin-1"})
	require.NoError(t, err)
	require.NoError(t, a.Queue.Publish(ctx, queue.Message{Type: "unknown"}))
	require.NoError(t, a.Queue.Publish(ctx, msg))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop")
	}
}

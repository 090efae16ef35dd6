package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TPCMinistries/Perpetualcore-sub007/pkg/logging"
	syncer "github.com/TPCMinistries/Perpetualcore-sub007/pkg/sync"
)

// countingRunner records sync invocations
type countingRunner struct {
	mu    sync.Mutex
	calls []string
}

func (r *countingRunner) Sync(ctx context.Context, accountID, integrationID string) (*syncer.SyncResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, integrationID)
	return &syncer.SyncResult{Success: true, Synced: 1}, nil
}

func (r *countingRunner) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func newTestScheduler(t *testing.T) (*Scheduler, *countingRunner, *miniredis.Miniredis) {
	t.Helper()

	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	runner := &countingRunner{}

	return NewScheduler(client, runner, logging.NewNopLogger()), runner, server
}

func TestAddScheduleFires(t *testing.T) {
	scheduler, runner, _ := newTestScheduler(t)

	require.NoError(t, scheduler.Start(context.Background()))
	defer scheduler.Stop()

	schedule, err := scheduler.AddSchedule(context.Background(), "acct-1", "int-1", "* * * * * *")
	require.NoError(t, err)
	assert.NotEmpty(t, schedule.ID)
	assert.False(t, schedule.NextRunAt.IsZero())

	require.Eventually(t, func() bool {
		return runner.count() >= 1
	}, 3*time.Second, 50*time.Millisecond)
}

func TestAddScheduleAcceptsStandardSpec(t *testing.T) {
	scheduler, _, _ := newTestScheduler(t)

	require.NoError(t, scheduler.Start(context.Background()))
	defer scheduler.Stop()

	schedule, err := scheduler.AddSchedule(context.Background(), "acct-1", "int-1", "*/5 * * * *")
	require.NoError(t, err)
	assert.Equal(t, "*/5 * * * *", schedule.Spec)

	_, err = scheduler.AddSchedule(context.Background(), "acct-1", "int-1", "not a spec")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid cron schedule")
}

func TestSchedulesSurviveRestart(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})

	first := NewScheduler(client, &countingRunner{}, logging.NewNopLogger())
	require.NoError(t, first.Start(context.Background()))

	schedule, err := first.AddSchedule(context.Background(), "acct-1", "int-1", "* * * * * *")
	require.NoError(t, err)
	first.Stop()

	// A fresh scheduler against the same Redis picks the schedule back up
	runner := &countingRunner{}
	second := NewScheduler(client, runner, logging.NewNopLogger())
	require.NoError(t, second.Start(context.Background()))
	defer second.Stop()

	loaded, err := second.GetSchedule(context.Background(), "acct-1", schedule.ID)
	require.NoError(t, err)
	assert.Equal(t, "int-1", loaded.IntegrationID)

	require.Eventually(t, func() bool {
		return runner.count() >= 1
	}, 3*time.Second, 50*time.Millisecond)
}

func TestRemoveScheduleStopsFiring(t *testing.T) {
	scheduler, runner, _ := newTestScheduler(t)

	require.NoError(t, scheduler.Start(context.Background()))
	defer scheduler.Stop()

	schedule, err := scheduler.AddSchedule(context.Background(), "acct-1", "int-1", "* * * * * *")
	require.NoError(t, err)

	require.NoError(t, scheduler.RemoveSchedule(context.Background(), "acct-1", schedule.ID))

	_, err = scheduler.GetSchedule(context.Background(), "acct-1", schedule.ID)
	assert.Error(t, err)

	// Give the cron loop a moment; a removed schedule must not fire
	before := runner.count()
	time.Sleep(1500 * time.Millisecond)
	assert.Equal(t, before, runner.count())
}

func TestScheduleTenantScoping(t *testing.T) {
	scheduler, _, _ := newTestScheduler(t)

	require.NoError(t, scheduler.Start(context.Background()))
	defer scheduler.Stop()

	mine, err := scheduler.AddSchedule(context.Background(), "acct-1", "int-1", "0 0 * * *")
	require.NoError(t, err)
	_, err = scheduler.AddSchedule(context.Background(), "acct-2", "int-2", "0 0 * * *")
	require.NoError(t, err)

	schedules, err := scheduler.ListSchedules(context.Background(), "acct-1")
	require.NoError(t, err)
	require.Len(t, schedules, 1)
	assert.Equal(t, mine.ID, schedules[0].ID)

	_, err = scheduler.GetSchedule(context.Background(), "acct-2", mine.ID)
	assert.Error(t, err)

	err = scheduler.RemoveSchedule(context.Background(), "acct-2", mine.ID)
	assert.Error(t, err)
}

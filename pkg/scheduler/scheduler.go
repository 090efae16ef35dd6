// Package scheduler runs periodic workflow syncs on cron schedules
// persisted in Redis.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/TPCMinistries/Perpetualcore-sub007/pkg/logging"
	syncer "github.com/TPCMinistries/Perpetualcore-sub007/pkg/sync"
)

const scheduleKeyPrefix = "sync:schedule:"

// SyncRunner runs one sync pass for an integration
type SyncRunner interface {
	Sync(ctx context.Context, accountID, integrationID string) (*syncer.SyncResult, error)
}

// Schedule is a persisted periodic sync
type Schedule struct {
	// ID of the schedule
	ID string `json:"id"`

	// AccountID is the owning tenant
	AccountID string `json:"account_id"`

	// IntegrationID is the integration to sync
	IntegrationID string `json:"integration_id"`

	// Spec is the cron expression, standard five fields or six with seconds
	Spec string `json:"spec"`

	// NextRunAt is the next scheduled run
	NextRunAt time.Time `json:"next_run_at"`

	// LastRunAt is when the schedule last fired
	LastRunAt *time.Time `json:"last_run_at,omitempty"`

	// CreatedAt is when the schedule was created
	CreatedAt time.Time `json:"created_at"`
}

// Scheduler keeps sync schedules running and persisted across restarts
type Scheduler struct {
	redis  *redis.Client
	cron   *cron.Cron
	runner SyncRunner
	logger logging.Logger

	mu      sync.Mutex
	entries map[string]cron.EntryID
}

// NewScheduler creates a new sync scheduler
func NewScheduler(redisClient *redis.Client, runner SyncRunner, logger logging.Logger) *Scheduler {
	return &Scheduler{
		redis:   redisClient,
		cron:    cron.New(cron.WithSeconds()),
		runner:  runner,
		logger:  logger,
		entries: make(map[string]cron.EntryID),
	}
}

// Start verifies the Redis connection, re-registers persisted schedules and
// starts the cron loop
func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	keys, err := s.redis.Keys(ctx, scheduleKeyPrefix+"*").Result()
	if err != nil {
		return fmt.Errorf("failed to load schedules: %w", err)
	}

	for _, key := range keys {
		data, err := s.redis.Get(ctx, key).Result()
		if err != nil {
			s.logger.Warn("failed to load schedule", logging.Field{Key: "key", Value: key}, logging.Field{Key: "error", Value: err.Error()})
			continue
		}

		var schedule Schedule
		if err := json.Unmarshal([]byte(data), &schedule); err != nil {
			s.logger.Warn("failed to parse schedule", logging.Field{Key: "key", Value: key}, logging.Field{Key: "error", Value: err.Error()})
			continue
		}

		if err := s.register(schedule); err != nil {
			s.logger.Warn("failed to register schedule", logging.Field{Key: "schedule_id", Value: schedule.ID}, logging.Field{Key: "error", Value: err.Error()})
		}
	}

	s.cron.Start()

	s.logger.LogSystemEvent("scheduler_started", map[string]interface{}{
		"schedules": len(keys),
	})

	return nil
}

// Stop halts the cron loop and waits for running jobs to finish
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// AddSchedule persists and registers a new sync schedule
func (s *Scheduler) AddSchedule(ctx context.Context, accountID, integrationID, spec string) (Schedule, error) {
	parsed, err := parseSpec(spec)
	if err != nil {
		return Schedule{}, fmt.Errorf("invalid cron schedule: %w", err)
	}

	schedule := Schedule{
		ID:            uuid.New().String(),
		AccountID:     accountID,
		IntegrationID: integrationID,
		Spec:          spec,
		NextRunAt:     parsed.Next(time.Now()),
		CreatedAt:     time.Now(),
	}

	if err := s.save(ctx, schedule); err != nil {
		return Schedule{}, err
	}

	if err := s.register(schedule); err != nil {
		return Schedule{}, fmt.Errorf("failed to register schedule: %w", err)
	}

	return schedule, nil
}

// GetSchedule retrieves a schedule scoped to a tenant
func (s *Scheduler) GetSchedule(ctx context.Context, accountID, scheduleID string) (Schedule, error) {
	data, err := s.redis.Get(ctx, scheduleKeyPrefix+scheduleID).Result()
	if err != nil {
		return Schedule{}, fmt.Errorf("schedule not found: %w", err)
	}

	var schedule Schedule
	if err := json.Unmarshal([]byte(data), &schedule); err != nil {
		return Schedule{}, fmt.Errorf("failed to parse schedule: %w", err)
	}
	if schedule.AccountID != accountID {
		return Schedule{}, fmt.Errorf("schedule not found")
	}

	return schedule, nil
}

// ListSchedules returns all schedules for a tenant
func (s *Scheduler) ListSchedules(ctx context.Context, accountID string) ([]Schedule, error) {
	keys, err := s.redis.Keys(ctx, scheduleKeyPrefix+"*").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list schedules: %w", err)
	}

	schedules := make([]Schedule, 0, len(keys))
	for _, key := range keys {
		data, err := s.redis.Get(ctx, key).Result()
		if err != nil {
			continue
		}

		var schedule Schedule
		if err := json.Unmarshal([]byte(data), &schedule); err != nil {
			continue
		}
		if schedule.AccountID != accountID {
			continue
		}

		schedules = append(schedules, schedule)
	}

	return schedules, nil
}

// RemoveSchedule unregisters and deletes a schedule
func (s *Scheduler) RemoveSchedule(ctx context.Context, accountID, scheduleID string) error {
	if _, err := s.GetSchedule(ctx, accountID, scheduleID); err != nil {
		return err
	}

	s.mu.Lock()
	if entryID, ok := s.entries[scheduleID]; ok {
		s.cron.Remove(entryID)
		delete(s.entries, scheduleID)
	}
	s.mu.Unlock()

	if err := s.redis.Del(ctx, scheduleKeyPrefix+scheduleID).Err(); err != nil {
		return fmt.Errorf("failed to delete schedule: %w", err)
	}

	return nil
}

// register adds a schedule to the cron loop and tracks its entry ID so it
// can be removed later
func (s *Scheduler) register(schedule Schedule) error {
	spec := schedule.Spec
	if _, err := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow).Parse(spec); err != nil {
		// Standard five-field spec; the scheduler runs with a seconds field
		spec = "0 " + spec
	}

	entryID, err := s.cron.AddFunc(spec, func() { s.run(schedule.ID) })
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.entries[schedule.ID] = entryID
	s.mu.Unlock()

	return nil
}

// run fires one sync pass for a schedule and stamps the run times
func (s *Scheduler) run(scheduleID string) {
	ctx := context.Background()

	data, err := s.redis.Get(ctx, scheduleKeyPrefix+scheduleID).Result()
	if err != nil {
		// Schedule was deleted between registration and firing
		return
	}

	var schedule Schedule
	if err := json.Unmarshal([]byte(data), &schedule); err != nil {
		s.logger.Error("failed to parse schedule", logging.Field{Key: "schedule_id", Value: scheduleID}, logging.Field{Key: "error", Value: err.Error()})
		return
	}

	result, err := s.runner.Sync(ctx, schedule.AccountID, schedule.IntegrationID)
	if err != nil {
		s.logger.Error("scheduled sync failed",
			logging.Field{Key: "schedule_id", Value: scheduleID},
			logging.Field{Key: "integration_id", Value: schedule.IntegrationID},
			logging.Field{Key: "error", Value: err.Error()})
	} else {
		s.logger.LogSyncEvent(schedule.IntegrationID, "scheduled_sync", map[string]interface{}{
			"schedule_id": scheduleID,
			"synced":      result.Synced,
			"success":     result.Success,
		})
	}

	now := time.Now()
	schedule.LastRunAt = &now
	if parsed, err := parseSpec(schedule.Spec); err == nil {
		schedule.NextRunAt = parsed.Next(now)
	}

	if err := s.save(ctx, schedule); err != nil {
		s.logger.Error("failed to stamp schedule run", logging.Field{Key: "schedule_id", Value: scheduleID}, logging.Field{Key: "error", Value: err.Error()})
	}
}

func (s *Scheduler) save(ctx context.Context, schedule Schedule) error {
	data, err := json.Marshal(schedule)
	if err != nil {
		return fmt.Errorf("failed to marshal schedule: %w", err)
	}

	if err := s.redis.Set(ctx, scheduleKeyPrefix+schedule.ID, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save schedule: %w", err)
	}

	return nil
}

// parseSpec accepts six-field specs with seconds and standard five-field
// specs
func parseSpec(spec string) (cron.Schedule, error) {
	parsed, err := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow).Parse(spec)
	if err == nil {
		return parsed, nil
	}

	return cron.ParseStandard(spec)
}

// Package scheduler runs periodic background jobs.
package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/go-co-op/gocron"
)

// SyncRunner retries remote sync for every known user.
type SyncRunner interface {
	MigrateAll(ctx context.Context)
}

// Scheduler manages scheduled tasks for the server.
type Scheduler struct {
	scheduler *gocron.Scheduler
	sync      SyncRunner
	interval  time.Duration
}

// New creates a scheduler that runs sync every interval.
func New(sync SyncRunner, interval time.Duration) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	return &Scheduler{scheduler: s, sync: sync, interval: interval}
}

// Start begins running all scheduled tasks in the background.
func (s *Scheduler) Start() error {
	if _, err := s.scheduler.Every(s.interval).WaitForSchedule().Do(s.runSync); err != nil {
		return err
	}
	s.scheduler.StartAsync()
	log.Printf("sync retry scheduled every %s", s.interval)
	return nil
}

// Stop terminates all scheduled tasks.
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
}

func (s *Scheduler) runSync() {
	ctx, cancel := context.WithTimeout(context.Background(), s.interval)
	defer cancel()
	s.sync.MigrateAll(ctx)
}

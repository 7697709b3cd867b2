// Package cron implements social.TaskScheduler over robfig/cron/v3,
// gated to run jobs only on the cluster leader per §6.
package cron

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Scheduler wraps a single cron.Cron runner. Jobs registered through
// Reschedule only fire their callback when isLeader() is true at the
// moment cron ticks them; a non-leader replica still runs the
// scheduler (so a failover doesn't need to bootstrap one), it just
// skips the work.
type Scheduler struct {
	mu       sync.Mutex
	cron     *cron.Cron
	entries  map[string]cron.EntryID
	isLeader func() bool
	log      zerolog.Logger
}

// New builds a Scheduler. isLeader is consulted on every tick; pass a
// function that always returns true for a single-process deployment.
func New(isLeader func() bool, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron:     cron.New(cron.WithSeconds()),
		entries:  make(map[string]cron.EntryID),
		isLeader: isLeader,
		log:      log,
	}
}

func (s *Scheduler) Start() { s.cron.Start() }

func (s *Scheduler) Stop(ctx context.Context) {
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}
}

// Reschedule implements social.TaskScheduler: it replaces any existing
// entry registered under name with a fresh one on cronExpr.
func (s *Scheduler) Reschedule(name string, cronExpr string, fn func(ctx context.Context)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.entries[name]; ok {
		s.cron.Remove(id)
		delete(s.entries, name)
	}

	id, err := s.cron.AddFunc(cronExpr, func() {
		if !s.isLeader() {
			return
		}
		defer func() {
			if r := recover(); r != nil {
				s.log.Error().Str("job", name).Interface("panic", r).Msg("cron job panicked")
			}
		}()
		fn(context.Background())
	})
	if err != nil {
		return fmt.Errorf("schedule job %q: %w", name, err)
	}
	s.entries[name] = id
	return nil
}

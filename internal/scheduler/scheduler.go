// Package scheduler runs the periodic maintenance jobs: the ring timeout
// sweep, stale typing cleanup and catalog cache expiry.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"campuschat/internal/catalog"
	"campuschat/internal/config"
	"campuschat/internal/metrics"
	"campuschat/internal/services"
	"campuschat/pkg/logger"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const (
	JobSweepCalls   = "sweep_calls"
	JobClearTyping  = "clear_typing"
	JobPurgeCatalog = "purge_catalog_cache"
)

// Task is one run of a job. It returns how many items it touched.
type Task func(ctx context.Context) (int64, error)

type job struct {
	spec string
	task Task
}

type Scheduler struct {
	mu      sync.Mutex
	cron    *cron.Cron
	jobs    map[string]job
	timeout time.Duration
	ctx     context.Context
	running bool
}

// New returns an idle scheduler. Each run is bounded by timeout.
func New(timeout time.Duration) *Scheduler {
	log := cronLogger{}
	return &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.Recover(log),
			cron.SkipIfStillRunning(log),
		)),
		jobs:    make(map[string]job),
		timeout: timeout,
		ctx:     context.Background(),
	}
}

// Add registers task under name. An empty spec leaves the job registered
// for manual runs only.
func (s *Scheduler) Add(name, spec string, task Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %q already registered", name)
	}
	if spec != "" {
		if _, err := s.cron.AddFunc(spec, func() { s.Run(s.context(), name) }); err != nil {
			return fmt.Errorf("job %q: invalid schedule %q: %w", name, spec, err)
		}
	}
	s.jobs[name] = job{spec: spec, task: task}
	return nil
}

// Start begins firing scheduled jobs. Runs started by the scheduler are
// cancelled with ctx.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.ctx = ctx
	s.running = true
	s.cron.Start()

	for name, j := range s.jobs {
		if j.spec != "" {
			logger.WithFields(logrus.Fields{"job": name, "schedule": j.spec}).Info("Job scheduled")
		}
	}
}

// Stop halts the schedule and waits for running jobs to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	<-s.cron.Stop().Done()
}

func (s *Scheduler) context() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

// Run executes the named job once, outside the schedule.
func (s *Scheduler) Run(ctx context.Context, name string) (int64, error) {
	s.mu.Lock()
	j, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return 0, fmt.Errorf("unknown job %q", name)
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	n, err := j.task(ctx)
	elapsed := time.Since(start)
	metrics.RecordJobRun(name, elapsed, err == nil)

	if err != nil {
		logger.LogError(err, "Scheduled job failed", map[string]interface{}{"job": name})
		return n, err
	}
	if n > 0 {
		logger.WithFields(logrus.Fields{
			"job":      name,
			"affected": n,
			"duration": elapsed.String(),
		}).Info("Scheduled job completed")
	}
	return n, nil
}

// Jobs lists the registered job names.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	return names
}

// RegisterMaintenance adds the server's maintenance jobs. A zero ring
// timeout or typing TTL disables the matching job.
func RegisterMaintenance(s *Scheduler, cfg *config.Config, calls *services.CallService, chats *services.ChatService, cat *catalog.Service) error {
	if cfg.Calls.RingTimeout > 0 {
		timeout := cfg.Calls.RingTimeout
		err := s.Add(JobSweepCalls, cfg.Calls.SweepSchedule, func(ctx context.Context) (int64, error) {
			n, err := calls.SweepUnanswered(ctx, timeout)
			return int64(n), err
		})
		if err != nil {
			return err
		}
	}

	if cfg.Calls.TypingTTL > 0 {
		ttl := cfg.Calls.TypingTTL
		err := s.Add(JobClearTyping, "@every "+ttl.String(), func(ctx context.Context) (int64, error) {
			n, err := chats.ClearStaleTyping(ctx, ttl)
			return int64(n), err
		})
		if err != nil {
			return err
		}
	}

	if cat != nil {
		if err := s.Add(JobPurgeCatalog, cfg.Spotify.PurgeSchedule, cat.PurgeCache); err != nil {
			return err
		}
	}
	return nil
}

// cronLogger routes cron's own messages through the application logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	logger.WithFields(pairs(keysAndValues)).Debugf("cron: %s", msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	logger.WithFields(pairs(keysAndValues)).WithError(err).Errorf("cron: %s", msg)
}

func pairs(kv []interface{}) logrus.Fields {
	fields := make(logrus.Fields, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		fields[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return fields
}

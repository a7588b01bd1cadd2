package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"omochi-bot/internal/metrics"
)

// Job is one periodic task. Run gets a context bounded by the scheduler's
// timeout.
type Job struct {
	Name string
	Spec string
	Run  func(ctx context.Context) (outcome string, err error)
}

// Scheduler runs jobs on cron schedules in a fixed location.
type Scheduler struct {
	cron    *cron.Cron
	ctx     context.Context
	cancel  context.CancelFunc
	timeout time.Duration
	logger  logrus.FieldLogger
	metrics *metrics.Metrics

	mu      sync.Mutex
	running map[string]bool
}

func New(loc *time.Location, timeout time.Duration, logger logrus.FieldLogger, m *metrics.Metrics) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:    cron.New(cron.WithLocation(loc)),
		ctx:     ctx,
		cancel:  cancel,
		timeout: timeout,
		logger:  logger,
		metrics: m,
		running: make(map[string]bool),
	}
}

func (s *Scheduler) Add(job Job) error {
	if _, err := s.cron.AddFunc(job.Spec, func() { s.RunNow(job) }); err != nil {
		return fmt.Errorf("schedule %s (%q): %w", job.Name, job.Spec, err)
	}
	s.logger.WithField("job", job.Name).WithField("spec", job.Spec).Info("📅 job scheduled")
	return nil
}

// RunNow executes job synchronously. A job still running from a previous
// tick is not started again.
func (s *Scheduler) RunNow(job Job) {
	s.mu.Lock()
	if s.running[job.Name] {
		s.mu.Unlock()
		s.logger.WithField("job", job.Name).Warn("previous run still in progress, skipping tick")
		return
	}
	s.running[job.Name] = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.running, job.Name)
		s.mu.Unlock()
	}()

	ctx := s.ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	started := time.Now()
	outcome, err := job.Run(ctx)
	took := time.Since(started)
	log := s.logger.WithField("job", job.Name).WithField("took", took.Round(time.Millisecond))
	if err != nil {
		s.metrics.SyncRun(job.Name, "error", took)
		log.WithError(err).Error("❌ job failed")
		return
	}
	s.metrics.SyncRun(job.Name, outcome, took)
	log.WithField("outcome", outcome).Info("job finished")
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.WithField("jobs", len(s.cron.Entries())).Info("📅 Scheduler started")
}

// Stop waits for running jobs after cancelling their contexts.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.cron != nil {
		ctx := s.cron.Stop()
		<-ctx.Done()
	}
	s.logger.Info("📅 Scheduler stopped")
}

func (s *Scheduler) IsRunning() bool {
	return s.cron != nil && len(s.cron.Entries()) > 0
}

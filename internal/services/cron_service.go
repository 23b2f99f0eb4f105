package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// CronConfig holds the job schedules. Specs use the six-field format with
// seconds, or descriptors such as "@every 60s".
type CronConfig struct {
	ExpirationSpec      string
	PollingSpec         string
	TrackingCleanupSpec string
	SweepTimeout        time.Duration
}

// Job names reported by GetJobStatus
const (
	JobBookingExpiration = "booking-expiration"
	JobPaymentPolling    = "payment-polling"
	JobTrackingCleanup   = "polling-tracking-cleanup"
)

// CronService manages scheduled background jobs
type CronService struct {
	cron          *cron.Cron
	expirationSvc *BookingExpirationService
	pollingSvc    *PaymentPollingService
	config        CronConfig
	logger        *logrus.Logger

	mu   sync.RWMutex
	jobs map[cron.EntryID]string
}

// NewCronService creates a new CronService. A job that is still running
// when its next tick fires is skipped, so a sweep never overlaps itself.
func NewCronService(
	expirationSvc *BookingExpirationService,
	pollingSvc *PaymentPollingService,
	config CronConfig,
	logger *logrus.Logger,
) *CronService {
	if config.SweepTimeout <= 0 {
		config.SweepTimeout = 50 * time.Second
	}

	cronLog := cronLogger{logger: logger}
	c := cron.New(
		cron.WithSeconds(),
		cron.WithLogger(cronLog),
		cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
	)

	return &CronService{
		cron:          c,
		expirationSvc: expirationSvc,
		pollingSvc:    pollingSvc,
		config:        config,
		logger:        logger,
		jobs:          make(map[cron.EntryID]string),
	}
}

// Start starts all cron jobs
func (s *CronService) Start() error {
	s.logger.Info("Starting cron service")

	schedule := []struct {
		name string
		spec string
		job  func()
	}{
		{JobBookingExpiration, s.config.ExpirationSpec, s.bookingExpirationJob},
		{JobPaymentPolling, s.config.PollingSpec, s.paymentPollingJob},
		{JobTrackingCleanup, s.config.TrackingCleanupSpec, s.trackingCleanupJob},
	}

	for _, entry := range schedule {
		id, err := s.cron.AddFunc(entry.spec, entry.job)
		if err != nil {
			return fmt.Errorf("failed to schedule %s job: %w", entry.name, err)
		}
		s.mu.Lock()
		s.jobs[id] = entry.name
		s.mu.Unlock()

		s.logger.WithFields(logrus.Fields{"job": entry.name, "spec": entry.spec}).Info("Scheduled job")
	}

	s.cron.Start()
	s.logger.Info("Cron service started")

	return nil
}

// Stop stops the scheduler and waits for running jobs to finish
func (s *CronService) Stop() {
	s.logger.Info("Stopping cron service")
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Cron service stopped")
}

func (s *CronService) sweepContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.config.SweepTimeout)
}

// bookingExpirationJob cancels expired bookings
func (s *CronService) bookingExpirationJob() {
	ctx, cancel := s.sweepContext()
	defer cancel()

	if _, err := s.expirationSvc.RunSweep(ctx); err != nil {
		s.logger.WithError(err).WithField("job", JobBookingExpiration).Error("Cron job failed")
	}
}

// paymentPollingJob reconciles pending payments with the gateway
func (s *CronService) paymentPollingJob() {
	ctx, cancel := s.sweepContext()
	defer cancel()

	if _, err := s.pollingSvc.PollPending(ctx); err != nil {
		s.logger.WithError(err).WithField("job", JobPaymentPolling).Error("Cron job failed")
	}
}

// trackingCleanupJob drops stale polling tracking entries
func (s *CronService) trackingCleanupJob() {
	s.pollingSvc.CleanupTracking()
}

// RunBookingExpirationNow runs the expiration job immediately
func (s *CronService) RunBookingExpirationNow() {
	s.logger.WithField("job", JobBookingExpiration).Info("Running job manually")
	s.bookingExpirationJob()
}

// RunPaymentPollingNow runs the polling job immediately
func (s *CronService) RunPaymentPollingNow() {
	s.logger.WithField("job", JobPaymentPolling).Info("Running job manually")
	s.paymentPollingJob()
}

// JobStatus describes one scheduled job
type JobStatus struct {
	ID      int       `json:"id"`
	Name    string    `json:"name"`
	NextRun time.Time `json:"next_run"`
	PrevRun time.Time `json:"prev_run"`
}

// GetJobStatus returns the status of scheduled jobs
func (s *CronService) GetJobStatus() map[string]interface{} {
	entries := s.cron.Entries()

	s.mu.RLock()
	jobs := make([]JobStatus, 0, len(entries))
	for _, entry := range entries {
		jobs = append(jobs, JobStatus{
			ID:      int(entry.ID),
			Name:    s.jobs[entry.ID],
			NextRun: entry.Next,
			PrevRun: entry.Prev,
		})
	}
	s.mu.RUnlock()

	sort.Slice(jobs, func(i, j int) bool { return jobs[i].ID < jobs[j].ID })

	return map[string]interface{}{
		"running":   len(entries) > 0,
		"job_count": len(entries),
		"jobs":      jobs,
	}
}

// cronLogger routes robfig/cron's internal logging to logrus
type cronLogger struct {
	logger *logrus.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.WithFields(kvFields(keysAndValues)).Debug("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.WithError(err).WithFields(kvFields(keysAndValues)).Error("cron: " + msg)
}

func kvFields(keysAndValues []interface{}) logrus.Fields {
	fields := logrus.Fields{}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return fields
}

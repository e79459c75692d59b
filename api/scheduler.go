/*
scheduler.go - Automated ledger integrity audit

PURPOSE:
  Periodically re-checks every case against the funding invariants and
  logs anything that fails. A ledger that only mutates through its own
  operations never fails the check, so any finding means the persisted
  snapshot was edited behind the ledger's back.

DESIGN:
  - robfig/cron drives the schedule (AUDIT_SCHEDULE, e.g. "@every 1h")
  - Each run takes the ledger's read view only; no case locks are held
  - The last report is kept for GET /api/integrity

USAGE:
  s := NewIntegrityScheduler(l, "@every 1h", log)
  if err := s.Start(); err != nil { ... }
  defer s.Stop()

SEE ALSO:
  - ledger/types.go: Case.Validate
  - handlers.go: GetIntegrity (manual run)
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/bailaid/case-ledger/ledger"
)

// IntegrityReport is the outcome of one audit run.
type IntegrityReport struct {
	RanAt    time.Time `json:"ran_at"`
	Checked  int       `json:"checked"`
	Problems []string  `json:"problems"`
}

// Healthy reports whether the run found nothing.
func (r IntegrityReport) Healthy() bool { return len(r.Problems) == 0 }

// IntegrityScheduler runs the integrity audit on a cron schedule.
type IntegrityScheduler struct {
	ledger   *ledger.Ledger
	schedule string
	log      *zap.Logger

	cron *cron.Cron
	mu   sync.Mutex
	last *IntegrityReport
}

// NewIntegrityScheduler creates a new scheduler. An empty schedule disables it.
func NewIntegrityScheduler(l *ledger.Ledger, schedule string, log *zap.Logger) *IntegrityScheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &IntegrityScheduler{
		ledger:   l,
		schedule: schedule,
		log:      log,
		cron:     cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger))),
	}
}

// Start registers the audit job and starts the cron loop.
func (s *IntegrityScheduler) Start() error {
	if s.schedule == "" {
		s.log.Info("integrity scheduler disabled")
		return nil
	}
	if _, err := s.cron.AddFunc(s.schedule, func() { s.RunNow() }); err != nil {
		return err
	}
	s.cron.Start()
	s.log.Info("integrity scheduler started", zap.String("schedule", s.schedule))
	return nil
}

// Stop waits for a running audit to finish.
func (s *IntegrityScheduler) Stop() context.Context {
	ctx := s.cron.Stop()
	s.log.Info("integrity scheduler stopped")
	return ctx
}

// RunNow performs one audit immediately (for testing/admin).
func (s *IntegrityScheduler) RunNow() IntegrityReport {
	errs := s.ledger.Audit()
	report := IntegrityReport{
		RanAt:    time.Now().UTC(),
		Checked:  len(s.ledger.List()),
		Problems: make([]string, 0, len(errs)),
	}
	for _, err := range errs {
		report.Problems = append(report.Problems, err.Error())
		s.log.Error("integrity violation", zap.Error(err))
	}
	if report.Healthy() {
		s.log.Info("integrity audit passed", zap.Int("cases", report.Checked))
	}

	s.mu.Lock()
	s.last = &report
	s.mu.Unlock()
	return report
}

// LastReport returns the most recent report, if any run happened.
func (s *IntegrityScheduler) LastReport() (IntegrityReport, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return IntegrityReport{}, false
	}
	return *s.last, true
}

// NextRun returns when the next scheduled audit will occur.
func (s *IntegrityScheduler) NextRun() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

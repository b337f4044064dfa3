/*
scheduler.go - Automated monthly accrual runs

PURPOSE:
  Periodically invokes the accrual generator for the current month. The
  generator's period-key idempotence makes the interval uncritical: extra
  runs are silent no-ops, and a run after downtime simply fills the gap.

USAGE:
  scheduler := NewAccrualScheduler(generator, metrics)
  scheduler.Start()
  // ... later
  scheduler.Stop()
*/
package api

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/warp/leave-ledger/leave"
	"github.com/warp/leave-ledger/ledger"
)

// AccrualScheduler runs the accrual generator on an interval.
type AccrualScheduler struct {
	Generator     *leave.AccrualGenerator
	Metrics       *Metrics
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan bool
	wg     sync.WaitGroup
	mu     sync.Mutex
}

func NewAccrualScheduler(generator *leave.AccrualGenerator, metrics *Metrics) *AccrualScheduler {
	return &AccrualScheduler{
		Generator:     generator,
		Metrics:       metrics,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		stop:          make(chan bool),
	}
}

// Start begins the scheduler.
func (s *AccrualScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		log.Println("[Scheduler] Disabled, not starting")
		return
	}

	s.ticker = time.NewTicker(s.CheckInterval)
	s.wg.Add(1)

	go s.run()

	log.Printf("[Scheduler] Started with check interval: %v", s.CheckInterval)
}

// Stop stops the scheduler. Safe to call more than once.
func (s *AccrualScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker != nil {
		s.ticker.Stop()
		close(s.stop)
		s.wg.Wait()
		s.ticker = nil
		log.Println("[Scheduler] Stopped")
	}
}

func (s *AccrualScheduler) run() {
	defer s.wg.Done()

	// Run immediately on start
	s.runOnce()

	for {
		select {
		case <-s.ticker.C:
			s.runOnce()
		case <-s.stop:
			return
		}
	}
}

func (s *AccrualScheduler) runOnce() {
	ctx := context.Background()
	start := time.Now()

	period := ledger.StartOfMonth(ledger.Today())
	summary, err := s.Generator.RunPeriod(ctx, period)
	if err != nil {
		log.Printf("[Scheduler] Accrual run failed for %s: %v", period.PeriodKey(), err)
		return
	}

	s.Metrics.AccrualRunDuration.Observe(time.Since(start).Seconds())
	if summary.Posted > 0 {
		log.Printf("[Scheduler] Accruals posted for %s: %d", summary.Period, summary.Posted)
	}
}

// RunNow triggers an immediate run (for testing/admin).
func (s *AccrualScheduler) RunNow() {
	s.runOnce()
}

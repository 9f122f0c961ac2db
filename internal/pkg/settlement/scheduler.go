package settlement

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"

	"github.com/renavest/renavest-next-sub002/internal/pkg/cache"
	counter "github.com/renavest/renavest-next-sub002/internal/pkg/metrics/counter"
)

const (
	sweepLeaseKey = "settlement:sweep:lease"
	sweepBatch    = 100
)

// Scheduler periodically completes sessions whose therapist never marked
// them done. A session becomes eligible once its end time is older than the
// configured grace window; each eligible session runs through the same
// completion path the manual endpoint uses.
type Scheduler struct {
	processor *Processor
	interval  time.Duration
	holderID  string

	sweepTicker *time.Ticker
	stopCh      chan struct{}
	wg          sync.WaitGroup
	mu          sync.Mutex
	running     bool
}

// SweepResult summarizes one sweeper pass.
type SweepResult struct {
	Processed int
	Completed int
	Errors    int
}

// NewScheduler creates a sweeper around the given processor. A
// non-positive interval falls back to hourly.
func NewScheduler(processor *Processor, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Scheduler{
		processor: processor,
		interval:  interval,
		holderID:  uuid.NewString(),
	}
}

// Start launches the background sweep worker.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}

	// Recreate stop channel for each start cycle so the scheduler can be
	// restarted safely.
	s.stopCh = make(chan struct{})
	s.running = true
	log.Infof("[Settlement Scheduler] Starting auto-completion sweeper (interval: %s)", s.interval)

	s.sweepTicker = time.NewTicker(s.interval)
	s.wg.Add(1)
	go s.sweepWorker()
}

// Stop stops the background sweep worker and waits for it to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	log.Info("[Settlement Scheduler] Stopping auto-completion sweeper...")

	if s.sweepTicker != nil {
		s.sweepTicker.Stop()
	}

	// The closed channel stays in place so a worker re-entering the select
	// still receives immediately; Start recreates it.
	close(s.stopCh)
	s.running = false

	s.wg.Wait()

	log.Info("[Settlement Scheduler] Stopped successfully")
}

func (s *Scheduler) sweepWorker() {
	defer s.wg.Done()

	for {
		select {
		case <-s.stopCh:
			log.Info("[Settlement Scheduler] Sweep worker stopping")
			return
		case <-s.sweepTicker.C:
			s.runLeasedSweep()
		}
	}
}

// runLeasedSweep takes a short Redis lease before sweeping so only one
// instance sweeps per interval when several replicas run.
func (s *Scheduler) runLeasedSweep() {
	acquired, err := cache.AcquireLease(sweepLeaseKey, s.holderID, s.interval/2)
	if err != nil {
		log.Warnf("[Settlement Scheduler] lease check failed, sweeping anyway: %v", err)
	} else if !acquired {
		log.Debug("[Settlement Scheduler] another instance holds the sweep lease, skipping")
		return
	}
	defer func() {
		if acquired {
			_ = cache.ReleaseLease(sweepLeaseKey)
		}
	}()

	res := s.Sweep(context.Background(), time.Now())
	log.Infof("[Settlement Scheduler] Sweep done: %d eligible, %d completed, %d errors",
		res.Processed, res.Completed, res.Errors)
}

// Sweep completes every session whose grace window elapsed before now.
// A failure on one session is logged and counted but never stops the rest
// of the batch.
func (s *Scheduler) Sweep(ctx context.Context, now time.Time) SweepResult {
	_ = counter.Add(counter.FieldSweepsRun, 1)

	cutoff := now.Add(-s.processor.cfg.AutoCompleteGrace)
	sessions, err := s.processor.repo.ListAutoCompletable(cutoff, sweepBatch)
	if err != nil {
		log.Errorf("[Settlement Scheduler] could not list auto-completable sessions: %v", err)
		return SweepResult{Errors: 1}
	}

	var res SweepResult
	for i := range sessions {
		session := &sessions[i]
		res.Processed++

		err := s.processor.CompleteSession(ctx, session.ID, session.TherapistID, true)
		switch {
		case err == nil:
			res.Completed++
			log.Infof("[Settlement Scheduler] auto-completed session %d (ended %s)", session.ID, session.EndTime.Format(time.RFC3339))
		case isBenignSweepError(err):
			// Another actor completed or cancelled it between listing and
			// processing, or its payment can no longer be collected.
			log.Debugf("[Settlement Scheduler] session %d no longer eligible: %v", session.ID, err)
		default:
			res.Errors++
			log.Errorf("[Settlement Scheduler] auto-completion of session %d failed: %v", session.ID, err)
		}
	}

	if res.Completed > 0 {
		_ = counter.Add(counter.FieldSweepsCompleted, int64(res.Completed))
	}
	return res
}

func isBenignSweepError(err error) bool {
	return errors.Is(err, ErrAlreadyCompleted) ||
		errors.Is(err, ErrAlreadySettled) ||
		errors.Is(err, ErrSessionNotFound) ||
		errors.Is(err, ErrSessionNotEnded) ||
		errors.Is(err, ErrPaymentNotCollectable)
}

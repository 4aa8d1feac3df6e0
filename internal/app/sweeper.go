/**
 * @description
 * Cron sweeper that reports pending payments stuck past the configured cutoff.
 * A payment whose callback never arrives stays PENDING; that is an accepted
 * state, so the sweeper only logs the stuck rows for operators and never
 * mutates payment state.
 */

package app

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Frankie466/frank-quiz/internal/store"
)

// StalePaymentSweeper periodically scans for PENDING payments older than the
// cutoff and logs them.
type StalePaymentSweeper struct {
	cron          *cron.Cron
	repo          store.Repository
	schedule      string
	cutoffMinutes int
}

// NewStalePaymentSweeper creates a sweeper with the given cron spec (for
// example "@every 10m") and cutoff in minutes.
func NewStalePaymentSweeper(repo store.Repository, schedule string, cutoffMinutes int) *StalePaymentSweeper {
	c := cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger)))
	return &StalePaymentSweeper{
		cron:          c,
		repo:          repo,
		schedule:      schedule,
		cutoffMinutes: cutoffMinutes,
	}
}

// Start registers the sweep job and starts the scheduler.
func (s *StalePaymentSweeper) Start() {
	if _, err := s.cron.AddFunc(s.schedule, s.Sweep); err != nil {
		log.Printf("level=error component=sweeper msg=\"failed to schedule stale payment sweep\" schedule=%q err=%v", s.schedule, err)
		return
	}
	log.Printf("level=info component=sweeper msg=\"scheduled stale payment sweep\" schedule=%q cutoff_minutes=%d", s.schedule, s.cutoffMinutes)
	s.cron.Start()
}

// Stop gracefully stops the scheduler and returns a context that is done once
// running jobs finish.
func (s *StalePaymentSweeper) Stop() context.Context {
	return s.cron.Stop()
}

// Sweep performs one scan. Exported so tests can invoke it directly.
func (s *StalePaymentSweeper) Sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cutoff := time.Now().Add(-time.Duration(s.cutoffMinutes) * time.Minute)
	stale, err := s.repo.ListStalePendingPayments(ctx, cutoff)
	if err != nil {
		log.Printf("level=error component=sweeper msg=\"stale payment scan failed\" err=%v", err)
		return
	}
	if len(stale) == 0 {
		return
	}

	log.Printf("level=warn component=sweeper msg=\"payments stuck pending past cutoff\" count=%d cutoff_minutes=%d", len(stale), s.cutoffMinutes)
	for _, p := range stale {
		log.Printf("level=warn component=sweeper checkout_request_id=%s account_id=%s age_minutes=%.0f msg=\"payment still pending\"", p.CheckoutRequestID, p.AccountID, time.Since(p.CreatedAt).Minutes())
	}
}

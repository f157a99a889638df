package service

import (
	"context"
	"log"
	"time"

	"mentorship-chat/internal/observability"
	"mentorship-chat/internal/repositories"
)

// Sweeper closes expired chats on a fixed interval: active chats past
// expires_at and pending requests past pending_expires_at. Failures are
// transient; the next tick retries the whole sweep.
type Sweeper struct {
	chats    repositories.ChatRepository
	interval time.Duration
	now      func() time.Time
}

// NewSweeper constructs the expiry sweeper.
func NewSweeper(chats repositories.ChatRepository, interval time.Duration) *Sweeper {
	return &Sweeper{chats: chats, interval: interval, now: time.Now}
}

// Run sweeps once immediately, then on every tick until the context ends.
func (s *Sweeper) Run(ctx context.Context) {
	if err := s.Sweep(ctx); err != nil {
		log.Printf("chat expiry sweep failed: %v", err)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil {
				log.Printf("chat expiry sweep failed: %v", err)
			}
		}
	}
}

// Sweep performs the two bulk transitions once. Closing is idempotent: a
// second immediate run affects zero rows.
func (s *Sweeper) Sweep(ctx context.Context) error {
	activeClosed, pendingClosed, err := s.chats.CloseExpired(ctx, s.now())
	if err != nil {
		observability.IncSweepFailure()
		return err
	}
	observability.ObserveSweep(activeClosed, pendingClosed)
	if activeClosed > 0 || pendingClosed > 0 {
		log.Printf("chat expiry sweep closed active=%d pending=%d", activeClosed, pendingClosed)
	}
	return nil
}

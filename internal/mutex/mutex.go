// Package mutex implements the distributed merge mutex: a time-boxed lease
// over the shared integration workspace, acquired by staking a claim on
// workspace://<project>/default.
//
// The lease is purely cooperative. The claims store does not serialize
// writers by itself; correctness depends on every writer honoring the same
// stake, retry, release discipline. A process that mutates the default
// workspace without holding the lease races everyone else.
package mutex

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/usher-cli/usher/internal/errs"
	"github.com/usher-cli/usher/internal/log"
)

// backoffLadder holds the base delays between stake attempts. Once
// attempts outrun the ladder, the last rung repeats.
var backoffLadder = []time.Duration{
	2 * time.Second,
	4 * time.Second,
	8 * time.Second,
	15 * time.Second,
}

// jitterFraction is the maximum relative perturbation applied to each
// rung, in both directions.
const jitterFraction = 0.3

// Staker stakes and releases claims. Satisfied by *claims.Service.
type Staker interface {
	Stake(ctx context.Context, uri string, ttlSecs int, memo string) (bool, error)
	Release(ctx context.Context, uri string) error
}

// Announcer watches the shared channel for merge-completed broadcasts.
// Satisfied by *announce.Service.
type Announcer interface {
	MergeCompletedSince(ctx context.Context, since time.Time) (bool, error)
}

// Mutex acquires the integration-workspace lease.
type Mutex struct {
	staker   Staker
	announce Announcer
	project  string
	ttlSecs  int
	rng      *rand.Rand
	sleep    func(ctx context.Context, d time.Duration) error
	logger   *slog.Logger
}

// New returns a merge mutex for project whose leases carry ttlSecs.
func New(staker Staker, announcer Announcer, project string, ttlSecs int) *Mutex {
	return &Mutex{
		staker:   staker,
		announce: announcer,
		project:  project,
		ttlSecs:  ttlSecs,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep:    sleepCtx,
		logger:   log.WithComponent("mutex"),
	}
}

// URI returns the claim URI the lease is staked on.
func (m *Mutex) URI() string {
	return fmt.Sprintf("workspace://%s/default", m.project)
}

// Lease is a held merge lease. Release is safe to call more than once so
// callers can defer it unconditionally.
type Lease struct {
	m        *Mutex
	released bool
}

// Acquire stakes the lease, retrying on contention with the jittered
// backoff ladder until budget elapses. Between waits it polls the
// announcement channel; a merge-completed broadcast newer than the last
// attempt skips the remaining wait, because the lock has likely just
// freed. The returned lease must be released on every exit path.
func (m *Mutex) Acquire(ctx context.Context, budget time.Duration, memo string) (*Lease, error) {
	deadline := time.Now().Add(budget)

	for attempt := 0; ; attempt++ {
		attemptAt := time.Now()
		acquired, err := m.staker.Stake(ctx, m.URI(), m.ttlSecs, memo)
		if err != nil {
			return nil, err
		}
		if acquired {
			m.logger.Debug("merge lease acquired", "attempt", attempt)
			return &Lease{m: m}, nil
		}

		delay := m.jittered(baseDelay(attempt))
		if time.Now().Add(delay).After(deadline) {
			return nil, &errs.TimeoutError{Tool: "merge-mutex", Budget: budget}
		}

		// Event-assisted backoff: if the holder already announced a
		// finished merge, waiting out the full window just burns time.
		freed, annErr := m.announce.MergeCompletedSince(ctx, attemptAt)
		if annErr != nil {
			// The channel being flaky only degrades us to plain backoff.
			m.logger.Warn("announcement poll failed", "error", annErr)
		} else if freed {
			m.logger.Debug("merge completed broadcast seen, retrying immediately", "attempt", attempt)
			continue
		}

		m.logger.Debug("merge lease contended, backing off", "attempt", attempt, "delay", delay)
		if err := m.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}

// Release gives the lease back. Idempotent.
func (l *Lease) Release(ctx context.Context) error {
	if l == nil || l.released {
		return nil
	}
	l.released = true
	return l.m.staker.Release(ctx, l.m.URI())
}

// baseDelay returns the ladder rung for attempt, repeating the last rung
// past the end.
func baseDelay(attempt int) time.Duration {
	if attempt >= len(backoffLadder) {
		return backoffLadder[len(backoffLadder)-1]
	}
	return backoffLadder[attempt]
}

// jittered perturbs base by up to ±jitterFraction, clamped to never go
// negative.
func (m *Mutex) jittered(base time.Duration) time.Duration {
	f := 1 + (m.rng.Float64()*2-1)*jitterFraction
	d := time.Duration(float64(base) * f)
	if d < 0 {
		d = 0
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

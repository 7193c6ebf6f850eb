// internal/matchmaking/scheduler.go
// Background jobs: expiry sweeps, tombstone purges and audit retention.

package matchmaking

import (
    "context"
    "log"
    "time"
)

// Scheduler drives the pipeline's timekeeping.
type Scheduler struct {
    repo    Repository
    pool    *Pool
    pending *PendingMatchManager

    sweepInterval  time.Duration
    auditRetention time.Duration
}

// NewScheduler creates the scheduler.
func NewScheduler(repo Repository, pool *Pool, pending *PendingMatchManager, sweepInterval, auditRetention time.Duration) *Scheduler {
    return &Scheduler{
        repo:           repo,
        pool:           pool,
        pending:        pending,
        sweepInterval:  sweepInterval,
        auditRetention: auditRetention,
    }
}

// Start launches the background loops. They stop when ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
    go s.runEvery(ctx, s.sweepInterval, s.sweepExpired)
    go s.runEvery(ctx, s.sweepInterval, s.sweepStalledMaterializations)
    go s.runEvery(ctx, time.Hour, s.purgeTombstones)
    go s.runEvery(ctx, time.Hour, s.purgeAudit)
}

func (s *Scheduler) runEvery(ctx context.Context, interval time.Duration, task func(context.Context) error) {
    ticker := time.NewTicker(interval)
    defer ticker.Stop()

    for {
        select {
        case <-ticker.C:
            if err := task(ctx); err != nil {
                log.Printf("Scheduled task failed: %v", err)
            }
        case <-ctx.Done():
            return
        }
    }
}

// sweepExpired fires expiry for attempts whose TTL has passed. The sweep
// may lag; accept/decline re-check the clock themselves.
func (s *Scheduler) sweepExpired(ctx context.Context) error {
    attempts, err := s.repo.ListExpiredAttempts(ctx, time.Now(), 500)
    if err != nil {
        return err
    }
    for _, a := range attempts {
        if err := s.pending.Expire(ctx, a.ID); err != nil {
            log.Printf("Failed to expire attempt %s: %v", a.ID, err)
        }
    }
    return nil
}

// sweepStalledMaterializations resumes MUTUALLY_ACCEPTED attempts whose
// in-process retry loop died with them (restart, transient repo error).
// The one-interval grace keeps the sweep off attempts a live retry
// goroutine is still backing off on.
func (s *Scheduler) sweepStalledMaterializations(ctx context.Context) error {
    attempts, err := s.repo.ListStalledMaterializations(ctx, time.Now().Add(-s.sweepInterval), 100)
    if err != nil {
        return err
    }
    for _, a := range attempts {
        if err := s.pending.ResumeMaterialization(ctx, a.ID); err != nil {
            log.Printf("Failed to resume materialization of attempt %s: %v", a.ID, err)
        }
    }
    return nil
}

func (s *Scheduler) purgeTombstones(ctx context.Context) error {
    s.pool.PurgeTombstones(ctx)
    return nil
}

func (s *Scheduler) purgeAudit(ctx context.Context) error {
    n, err := s.repo.PurgeTerminalAttempts(ctx, time.Now().Add(-s.auditRetention))
    if err != nil {
        return err
    }
    if n > 0 {
        log.Printf("Purged %d terminal match attempts past audit retention", n)
    }
    return nil
}

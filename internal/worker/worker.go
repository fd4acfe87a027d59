// Package worker implements the newsletter delivery worker: a long-lived
// background loop that drains the durable delivery queue and hands each task
// to the email sender.
//
// Semantics (per task):
//   - at-least-once delivery: a task is removed only after a successful
//     send; transient sender failures leave it queued and it retries
//     indefinitely with a short backoff. There is no retry ceiling.
//   - mutual exclusion: the lease-based claim in the repo layer guarantees
//     no two worker instances process the same task concurrently, across
//     processes and restarts, with no coordination beyond the database.
//   - permanent conditions terminate a task without a send: a malformed
//     stored address removes that one task; a missing issue removes every
//     task fanned out for that issue.
//
// No ordering is promised across tasks. The loop is polling, not push-based:
// an empty queue sleeps a fixed idle interval, trading delivery latency for
// simplicity. Shutdown is "pull the plug safely": cancel the context; no
// in-flight state exists outside the current lease, which simply expires.
package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/tbourn/go-newsletter-backend/internal/domain"
	"github.com/tbourn/go-newsletter-backend/internal/repo"
)

// EmailSender is the slice of the email client the worker needs.
// Satisfied by *email.Client; tests substitute scripted fakes.
type EmailSender interface {
	Send(ctx context.Context, to domain.SubscriberEmail, subject, textBody, htmlBody string) error
}

// Outcome reports what one ExecuteNextTask pass did.
type Outcome int

const (
	// OutcomeTaskCompleted means one task reached a terminal state
	// (delivered, or pruned as invalid/orphaned) and the loop should poll
	// again immediately.
	OutcomeTaskCompleted Outcome = iota
	// OutcomeEmptyQueue means no task was claimable.
	OutcomeEmptyQueue
)

// Default loop intervals, overridable per Worker.
const (
	DefaultIdleSleep    = 10 * time.Second
	DefaultFailureSleep = time.Second
	DefaultLeaseTTL     = time.Minute
)

// Worker drains the delivery queue. Configure the exported fields before
// calling Run; zero values fall back to the defaults above. Multiple Worker
// instances (in one process or many) may run against the same database.
type Worker struct {
	DB     *gorm.DB
	Sender EmailSender
	Log    zerolog.Logger

	// ID identifies this instance in queue leases and logs.
	// Defaults to a fresh UUID.
	ID string

	IdleSleep    time.Duration // sleep when the queue is empty
	FailureSleep time.Duration // backoff after a transient failure
	LeaseTTL     time.Duration // how long a claim protects a task
}

// Run executes the delivery loop until ctx is cancelled. It always returns
// ctx.Err(): every other failure mode is retried, not fatal.
func (w *Worker) Run(ctx context.Context) error {
	w.applyDefaults()
	w.Log.Info().Str("worker_id", w.ID).Msg("delivery worker started")

	for {
		if err := ctx.Err(); err != nil {
			w.Log.Info().Str("worker_id", w.ID).Msg("delivery worker stopped")
			return err
		}
		outcome, err := w.ExecuteNextTask(ctx)
		switch {
		case err != nil:
			if !w.sleep(ctx, w.FailureSleep) {
				return ctx.Err()
			}
		case outcome == OutcomeEmptyQueue:
			if !w.sleep(ctx, w.IdleSleep) {
				return ctx.Err()
			}
		}
	}
}

// ExecuteNextTask claims and processes at most one queue task.
//
// A returned error is always transient (sender failure, store failure); the
// claimed task, if any, has been released and remains queued. Permanent
// conditions (invalid address, orphaned issue) are handled internally: the
// affected tasks are pruned and the pass reports OutcomeTaskCompleted.
func (w *Worker) ExecuteNextTask(ctx context.Context) (Outcome, error) {
	w.applyDefaults()

	task, err := repo.ClaimDeliveryTask(ctx, w.DB, w.ID, w.LeaseTTL)
	if err != nil {
		return OutcomeEmptyQueue, err
	}
	if task == nil {
		return OutcomeEmptyQueue, nil
	}

	lg := w.Log.With().
		Str("worker_id", w.ID).
		Str("issue_id", task.NewsletterIssueID).
		Logger()

	addr, err := domain.ParseSubscriberEmail(task.SubscriberEmail)
	if err != nil {
		// Permanent: a malformed stored address will never send. Drop the
		// single task; the address itself stays out of logs.
		lg.Error().Err(err).Msg("stored subscriber address is invalid, dropping task")
		if derr := repo.DeleteDeliveryTask(ctx, w.DB, task); derr != nil {
			return w.retry(ctx, task, derr)
		}
		deliveriesTotal.WithLabelValues(outcomeInvalidAddress).Inc()
		return OutcomeTaskCompleted, nil
	}

	issue, err := repo.GetNewsletterIssue(ctx, w.DB, task.NewsletterIssueID)
	if err == repo.ErrNotFound {
		// The issue is gone: every task fanned out for it is an orphan.
		// Bulk-delete them all so the missing referent cannot cause retry
		// churn across the whole fan-out.
		lg.Error().Msg("newsletter issue missing, dropping all its delivery tasks")
		if derr := repo.DeleteDeliveryTasksForIssue(ctx, w.DB, task.NewsletterIssueID); derr != nil {
			return w.retry(ctx, task, derr)
		}
		deliveriesTotal.WithLabelValues(outcomeOrphaned).Inc()
		return OutcomeTaskCompleted, nil
	}
	if err != nil {
		return w.retry(ctx, task, err)
	}

	start := time.Now()
	if err := w.Sender.Send(ctx, addr, issue.Subject, issue.TextBody, issue.HTMLBody); err != nil {
		lg.Warn().Err(err).Msg("send failed, task stays queued")
		return w.retry(ctx, task, err)
	}
	sendDuration.Observe(time.Since(start).Seconds())

	if err := repo.DeleteDeliveryTask(ctx, w.DB, task); err != nil {
		// The email went out but the task survived: the lease still guards
		// it, and once that lapses the task is re-sent. At-least-once, not
		// exactly-once, is the promise here.
		return w.retry(ctx, task, err)
	}
	deliveriesTotal.WithLabelValues(outcomeDelivered).Inc()
	lg.Info().Msg("issue delivered")
	return OutcomeTaskCompleted, nil
}

// retry releases the task's lease so it is immediately claimable again and
// reports the transient error to the loop. If the release itself fails the
// lease still expires on its own.
func (w *Worker) retry(ctx context.Context, task *domain.DeliveryTask, cause error) (Outcome, error) {
	if rerr := repo.ReleaseDeliveryTask(ctx, w.DB, task); rerr != nil {
		w.Log.Warn().Err(rerr).Msg("lease release failed, waiting for expiry")
	}
	deliveriesTotal.WithLabelValues(outcomeRetried).Inc()
	return OutcomeTaskCompleted, cause
}

// sleep waits for d or until ctx is cancelled. Returns false on cancellation.
func (w *Worker) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (w *Worker) applyDefaults() {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	if w.IdleSleep <= 0 {
		w.IdleSleep = DefaultIdleSleep
	}
	if w.FailureSleep <= 0 {
		w.FailureSleep = DefaultFailureSleep
	}
	if w.LeaseTTL <= 0 {
		w.LeaseTTL = DefaultLeaseTTL
	}
}

// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the durable delivery queue shared by
// all worker instances.
//
// Claiming uses a leased-ownership column instead of FOR UPDATE SKIP LOCKED
// so the same code runs against SQLite (tests, development) and PostgreSQL
// (production): a worker claims a task with a compare-and-set UPDATE that
// only succeeds while no live lease is held, which guarantees that no two
// workers process the same task concurrently. A crashed worker holds no
// state outside the row itself; its lease simply lapses and the task becomes
// claimable again.
//
// Tasks are removed only on terminal outcomes (delivered, permanently
// invalid address, orphaned issue). A transient send failure releases the
// lease and leaves the row in place, giving at-least-once delivery.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-newsletter-backend/internal/domain"
)

// claimAttempts bounds how many candidate rows one ClaimDeliveryTask call
// races for before reporting an empty claim. The caller loops anyway, so a
// lost race costs one idle interval at worst.
const claimAttempts = 3

// EnqueueDeliveries fans one issue out to every currently confirmed
// subscriber: one DeliveryTask row per address, snapshotted inside the
// publish transaction (not a live join at delivery time). Returns the number
// of tasks created.
func EnqueueDeliveries(ctx context.Context, tx *gorm.DB, issueID string) (int64, error) {
	res := tx.WithContext(ctx).Exec(
		`INSERT INTO issue_delivery_queue (newsletter_issue_id, subscriber_email)
		 SELECT ?, email FROM subscribers WHERE status = ?`,
		issueID, domain.SubscriberStatusConfirmed,
	)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

// ClaimDeliveryTask attempts to claim one queue task for owner, leasing it
// for ttl. It returns (nil, nil) when no claimable task exists, either because the
// queue is empty or every row is inside someone else's live lease.
//
// The claim is a compare-and-set: the UPDATE only matches while the lease is
// absent or expired, so of N workers racing for the same row exactly one
// observes RowsAffected == 1.
func ClaimDeliveryTask(ctx context.Context, db *gorm.DB, owner string, ttl time.Duration) (*domain.DeliveryTask, error) {
	for i := 0; i < claimAttempts; i++ {
		now := time.Now().UTC()

		var task domain.DeliveryTask
		err := db.WithContext(ctx).
			Where("leased_until IS NULL OR leased_until < ?", now).
			First(&task).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}

		until := now.Add(ttl)
		res := db.WithContext(ctx).
			Model(&domain.DeliveryTask{}).
			Where("newsletter_issue_id = ? AND subscriber_email = ? AND (leased_until IS NULL OR leased_until < ?)",
				task.NewsletterIssueID, task.SubscriberEmail, now).
			Updates(map[string]any{"leased_by": owner, "leased_until": until})
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 1 {
			task.LeasedBy = &owner
			task.LeasedUntil = &until
			return &task, nil
		}
		// Lost the race for this row; pick another candidate.
	}
	return nil, nil
}

// ReleaseDeliveryTask clears the lease on a claimed task so it becomes
// immediately claimable again. Used after a transient send failure; if the
// release itself fails the lease still expires on its own.
func ReleaseDeliveryTask(ctx context.Context, db *gorm.DB, task *domain.DeliveryTask) error {
	return db.WithContext(ctx).
		Model(&domain.DeliveryTask{}).
		Where("newsletter_issue_id = ? AND subscriber_email = ?", task.NewsletterIssueID, task.SubscriberEmail).
		Updates(map[string]any{"leased_by": nil, "leased_until": nil}).Error
}

// DeleteDeliveryTask removes a single task on a terminal outcome
// (successful send or permanently invalid address).
func DeleteDeliveryTask(ctx context.Context, db *gorm.DB, task *domain.DeliveryTask) error {
	return db.WithContext(ctx).
		Where("newsletter_issue_id = ? AND subscriber_email = ?", task.NewsletterIssueID, task.SubscriberEmail).
		Delete(&domain.DeliveryTask{}).Error
}

// DeleteDeliveryTasksForIssue removes every task referencing issueID. Called
// when the issue row no longer exists: without the bulk delete, each of the
// issue's fan-out rows would churn through the retry path forever.
func DeleteDeliveryTasksForIssue(ctx context.Context, db *gorm.DB, issueID string) error {
	return db.WithContext(ctx).
		Where("newsletter_issue_id = ?", issueID).
		Delete(&domain.DeliveryTask{}).Error
}

// CountDeliveryTasks returns the number of outstanding tasks, across all
// issues when issueID is empty.
func CountDeliveryTasks(ctx context.Context, db *gorm.DB, issueID string) (int64, error) {
	q := db.WithContext(ctx).Model(&domain.DeliveryTask{})
	if issueID != "" {
		q = q.Where("newsletter_issue_id = ?", issueID)
	}
	var n int64
	err := q.Count(&n).Error
	return n, err
}

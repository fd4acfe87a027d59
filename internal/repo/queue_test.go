package repo

import (
	"context"
	"testing"
	"time"

	"github.com/tbourn/go-newsletter-backend/internal/domain"
)

func TestEnqueueDeliveries_SnapshotsConfirmedOnly(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	for i, email := range []string{"a@x.com", "b@x.com"} {
		sub := &domain.Subscriber{
			ID: string(rune('1' + i)), Email: email, Name: "n",
			Status: domain.SubscriberStatusConfirmed, SubscribedAt: time.Now().UTC(),
		}
		if err := db.Create(sub).Error; err != nil {
			t.Fatalf("seed confirmed: %v", err)
		}
	}
	pending := &domain.Subscriber{
		ID: "p1", Email: "pending@x.com", Name: "n",
		Status: domain.SubscriberStatusPending, SubscribedAt: time.Now().UTC(),
	}
	if err := db.Create(pending).Error; err != nil {
		t.Fatalf("seed pending: %v", err)
	}

	n, err := EnqueueDeliveries(ctx, db, "issue-1")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if n != 2 {
		t.Fatalf("fan-out = %d, want 2 (pending subscriber must be excluded)", n)
	}

	total, err := CountDeliveryTasks(ctx, db, "issue-1")
	if err != nil || total != 2 {
		t.Fatalf("queue count = %d err=%v, want 2", total, err)
	}
}

func TestClaimDeliveryTask_EmptyQueue(t *testing.T) {
	db := newTestDB(t)
	task, err := ClaimDeliveryTask(context.Background(), db, "w1", time.Minute)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if task != nil {
		t.Fatalf("expected nil task on empty queue, got %+v", task)
	}
}

func TestClaimDeliveryTask_MutualExclusion(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if err := db.Create(&domain.DeliveryTask{
		NewsletterIssueID: "i1", SubscriberEmail: "a@x.com",
	}).Error; err != nil {
		t.Fatalf("seed task: %v", err)
	}

	first, err := ClaimDeliveryTask(ctx, db, "w1", time.Minute)
	if err != nil || first == nil {
		t.Fatalf("first claim: task=%v err=%v", first, err)
	}
	if first.LeasedBy == nil || *first.LeasedBy != "w1" {
		t.Fatalf("lease owner not recorded: %+v", first)
	}

	// While the lease is live, no other worker can claim the row.
	second, err := ClaimDeliveryTask(ctx, db, "w2", time.Minute)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if second != nil {
		t.Fatalf("second worker claimed a leased task: %+v", second)
	}
}

func TestClaimDeliveryTask_ExpiredLeaseIsClaimable(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	dead := "crashed-worker"
	past := time.Now().UTC().Add(-time.Minute)
	if err := db.Create(&domain.DeliveryTask{
		NewsletterIssueID: "i1", SubscriberEmail: "a@x.com",
		LeasedBy: &dead, LeasedUntil: &past,
	}).Error; err != nil {
		t.Fatalf("seed task: %v", err)
	}

	task, err := ClaimDeliveryTask(ctx, db, "w2", time.Minute)
	if err != nil || task == nil {
		t.Fatalf("expired lease should be claimable: task=%v err=%v", task, err)
	}
	if *task.LeasedBy != "w2" {
		t.Fatalf("lease not transferred: %+v", task)
	}
}

func TestReleaseDeliveryTask_MakesTaskClaimable(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if err := db.Create(&domain.DeliveryTask{
		NewsletterIssueID: "i1", SubscriberEmail: "a@x.com",
	}).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}
	task, err := ClaimDeliveryTask(ctx, db, "w1", time.Hour)
	if err != nil || task == nil {
		t.Fatalf("claim: task=%v err=%v", task, err)
	}

	if err := ReleaseDeliveryTask(ctx, db, task); err != nil {
		t.Fatalf("release: %v", err)
	}
	again, err := ClaimDeliveryTask(ctx, db, "w2", time.Minute)
	if err != nil || again == nil {
		t.Fatalf("released task should be claimable immediately: task=%v err=%v", again, err)
	}
}

func TestDeleteDeliveryTasksForIssue_BulkCleanup(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	for _, task := range []domain.DeliveryTask{
		{NewsletterIssueID: "orphan", SubscriberEmail: "a@x.com"},
		{NewsletterIssueID: "orphan", SubscriberEmail: "b@x.com"},
		{NewsletterIssueID: "alive", SubscriberEmail: "a@x.com"},
	} {
		if err := db.Create(&task).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	if err := DeleteDeliveryTasksForIssue(ctx, db, "orphan"); err != nil {
		t.Fatalf("bulk delete: %v", err)
	}

	gone, err := CountDeliveryTasks(ctx, db, "orphan")
	if err != nil || gone != 0 {
		t.Fatalf("orphan tasks remaining = %d err=%v, want 0", gone, err)
	}
	kept, err := CountDeliveryTasks(ctx, db, "alive")
	if err != nil || kept != 1 {
		t.Fatalf("unrelated issue lost tasks: n=%d err=%v", kept, err)
	}
}

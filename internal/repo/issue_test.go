package repo

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestInsertAndGetNewsletterIssue(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	id, err := InsertNewsletterIssue(ctx, db, "Issue #1", "plain", "<p>html</p>")
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if id == "" {
		t.Fatal("expected generated issue id")
	}

	issue, err := GetNewsletterIssue(ctx, db, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if issue.Subject != "Issue #1" || issue.TextBody != "plain" || issue.HTMLBody != "<p>html</p>" {
		t.Fatalf("unexpected issue: %+v", issue)
	}
	if issue.PublishedAt.IsZero() {
		t.Fatal("expected published_at to be set")
	}
}

func TestGetNewsletterIssue_Missing(t *testing.T) {
	db := newTestDB(t)
	if _, err := GetNewsletterIssue(context.Background(), db, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListNewsletterIssuesPage(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := InsertNewsletterIssue(ctx, db, fmt.Sprintf("Issue #%d", i), "t", "h"); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}

	total, err := CountNewsletterIssues(ctx, db)
	if err != nil || total != 5 {
		t.Fatalf("count = %d err=%v, want 5", total, err)
	}

	page, err := ListNewsletterIssuesPage(ctx, db, 0, 3)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page) != 3 {
		t.Fatalf("page size = %d, want 3", len(page))
	}

	rest, err := ListNewsletterIssuesPage(ctx, db, 3, 3)
	if err != nil || len(rest) != 2 {
		t.Fatalf("second page = %d err=%v, want 2", len(rest), err)
	}
}

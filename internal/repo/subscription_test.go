package repo

import (
	"context"
	"errors"
	"testing"

	"github.com/tbourn/go-newsletter-backend/internal/domain"
)

func mustEmail(t *testing.T, raw string) domain.SubscriberEmail {
	t.Helper()
	e, err := domain.ParseSubscriberEmail(raw)
	if err != nil {
		t.Fatalf("ParseSubscriberEmail(%q): %v", raw, err)
	}
	return e
}

func TestInsertSubscriber_AndDuplicate(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	id, err := InsertSubscriber(ctx, db, "Ursula", mustEmail(t, "ursula@x.com"))
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if id == "" {
		t.Fatal("expected generated subscriber id")
	}

	if _, err := InsertSubscriber(ctx, db, "Other Name", mustEmail(t, "ursula@x.com")); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate for same email, got %v", err)
	}
}

func TestConfirmationTokenFlow(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	id, err := InsertSubscriber(ctx, db, "Ursula", mustEmail(t, "ursula@x.com"))
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := StoreSubscriptionToken(ctx, db, id, "tok4u7x9q2w8e5r1t6y3u0i2o"); err != nil {
		t.Fatalf("store token: %v", err)
	}

	got, err := GetSubscriberIDFromToken(ctx, db, "tok4u7x9q2w8e5r1t6y3u0i2o")
	if err != nil {
		t.Fatalf("resolve token: %v", err)
	}
	if got != id {
		t.Fatalf("token resolved to %q, want %q", got, id)
	}

	if err := ConfirmSubscriber(ctx, db, id); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	var sub domain.Subscriber
	if err := db.First(&sub, "id = ?", id).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if sub.Status != domain.SubscriberStatusConfirmed {
		t.Fatalf("status = %q, want confirmed", sub.Status)
	}

	// Clicking the link twice is harmless.
	if err := ConfirmSubscriber(ctx, db, id); err != nil {
		t.Fatalf("re-confirm: %v", err)
	}
}

func TestGetSubscriberIDFromToken_Unknown(t *testing.T) {
	db := newTestDB(t)
	if _, err := GetSubscriberIDFromToken(context.Background(), db, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestConfirmSubscriber_Unknown(t *testing.T) {
	db := newTestDB(t)
	if err := ConfirmSubscriber(context.Background(), db, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCountConfirmedSubscribers(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	idA, _ := InsertSubscriber(ctx, db, "A", mustEmail(t, "a@x.com"))
	if _, err := InsertSubscriber(ctx, db, "B", mustEmail(t, "b@x.com")); err != nil {
		t.Fatalf("insert b: %v", err)
	}
	if err := ConfirmSubscriber(ctx, db, idA); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	n, err := CountConfirmedSubscribers(ctx, db)
	if err != nil || n != 1 {
		t.Fatalf("confirmed = %d err=%v, want 1", n, err)
	}
}

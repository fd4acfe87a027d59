package domain

import (
	"errors"
	"strings"
	"testing"
)

func TestParseIdempotencyKey_Valid(t *testing.T) {
	for _, raw := range []string{
		"k",
		"2f0a7f0e-4df5-4e1c-9c2b-0f9a2b6f4d11",
		"retry attempt 2", // spaces are printable ASCII
		strings.Repeat("x", MaxIdempotencyKeyLength),
	} {
		k, err := ParseIdempotencyKey(raw)
		if err != nil {
			t.Fatalf("ParseIdempotencyKey(%q) error: %v", raw, err)
		}
		if k.String() != raw {
			t.Fatalf("round-trip mismatch: got %q want %q", k.String(), raw)
		}
	}
}

func TestParseIdempotencyKey_Invalid(t *testing.T) {
	cases := map[string]string{
		"empty":     "",
		"too long":  strings.Repeat("x", MaxIdempotencyKeyLength+1),
		"control":   "abc\ndef",
		"non-ascii": "clé-idempotente",
	}
	for name, raw := range cases {
		if _, err := ParseIdempotencyKey(raw); !errors.Is(err, ErrInvalidIdempotencyKey) {
			t.Errorf("%s: expected ErrInvalidIdempotencyKey, got %v", name, err)
		}
	}
}

func TestIdempotencyRecord_Completed(t *testing.T) {
	rec := &IdempotencyRecord{}
	if rec.Completed() {
		t.Fatal("fresh claim should not be completed")
	}
	status := 202
	rec.ResponseStatus = &status
	if !rec.Completed() {
		t.Fatal("record with response status should be completed")
	}
}

func TestTableNames(t *testing.T) {
	if got := (IdempotencyRecord{}).TableName(); got != "idempotency" {
		t.Errorf("IdempotencyRecord table = %q", got)
	}
	if got := (NewsletterIssue{}).TableName(); got != "newsletter_issues" {
		t.Errorf("NewsletterIssue table = %q", got)
	}
	if got := (DeliveryTask{}).TableName(); got != "issue_delivery_queue" {
		t.Errorf("DeliveryTask table = %q", got)
	}
	if got := (Subscriber{}).TableName(); got != "subscribers" {
		t.Errorf("Subscriber table = %q", got)
	}
	if got := (SubscriptionToken{}).TableName(); got != "subscription_tokens" {
		t.Errorf("SubscriptionToken table = %q", got)
	}
}

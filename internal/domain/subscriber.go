// Package domain defines the core persistence models and validated value
// objects for the application. This file covers newsletter subscribers,
// their confirmation tokens, and the validated email/name value objects.
package domain

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"
)

// Subscriber lifecycle statuses. A subscriber starts as pending and becomes
// confirmed once the emailed confirmation token is exercised. Only confirmed
// subscribers receive newsletter issues.
const (
	SubscriberStatusPending   = "pending_confirmation"
	SubscriberStatusConfirmed = "confirmed"
)

// Subscriber represents one signup: a name, an email address, and the
// confirmation status. Email addresses are unique across the table.
type Subscriber struct {
	ID           string    `json:"id"            gorm:"type:char(36);primaryKey"`
	Email        string    `json:"email"         gorm:"type:varchar(254);not null;uniqueIndex:ux_subscribers_email"`
	Name         string    `json:"name"          gorm:"type:varchar(256);not null"`
	Status       string    `json:"status"        gorm:"type:varchar(32);not null;index"`
	SubscribedAt time.Time `json:"subscribed_at" gorm:"not null"`
}

// TableName returns the database table name for Subscriber.
func (Subscriber) TableName() string { return "subscribers" }

// SubscriptionToken links a one-time confirmation token to a subscriber.
// The token is emailed at signup and consumed by the confirmation endpoint.
type SubscriptionToken struct {
	Token        string `gorm:"type:char(25);primaryKey"`
	SubscriberID string `gorm:"type:char(36);not null;index"`
}

// TableName returns the database table name for SubscriptionToken.
func (SubscriptionToken) TableName() string { return "subscription_tokens" }

//
// Value objects
//

// ErrInvalidEmail is returned by ParseSubscriberEmail for addresses that do
// not satisfy RFC 5322 addr-spec syntax (or exceed sane length bounds).
var ErrInvalidEmail = errors.New("invalid subscriber email")

// ErrInvalidName is returned by ParseSubscriberName for names that are
// empty, too long, or contain characters commonly used in injection attacks.
var ErrInvalidName = errors.New("invalid subscriber name")

// maxEmailLength is the SMTP limit on a forward path.
const maxEmailLength = 254

// maxNameLength bounds subscriber display names.
const maxNameLength = 256

// SubscriberEmail is a validated email address. It is immutable; construct
// one with ParseSubscriberEmail. The delivery worker re-validates stored
// addresses through this type before every send, so an address that was
// valid at signup but is malformed in storage is treated as a dead item.
type SubscriberEmail struct {
	value string
}

// ParseSubscriberEmail validates a raw address.
//
// The address must be a bare addr-spec ("user@example.com", no display
// name), contain no whitespace, and fit within the SMTP length limit.
func ParseSubscriberEmail(raw string) (SubscriberEmail, error) {
	if raw == "" {
		return SubscriberEmail{}, fmt.Errorf("%w: empty", ErrInvalidEmail)
	}
	if len(raw) > maxEmailLength {
		return SubscriberEmail{}, fmt.Errorf("%w: longer than %d characters", ErrInvalidEmail, maxEmailLength)
	}
	if strings.ContainsAny(raw, " \t\r\n") {
		return SubscriberEmail{}, fmt.Errorf("%w: contains whitespace", ErrInvalidEmail)
	}
	addr, err := mail.ParseAddress(raw)
	if err != nil {
		return SubscriberEmail{}, fmt.Errorf("%w: %q", ErrInvalidEmail, raw)
	}
	// mail.ParseAddress accepts "Name <user@host>"; require the bare form.
	if addr.Address != raw {
		return SubscriberEmail{}, fmt.Errorf("%w: %q", ErrInvalidEmail, raw)
	}
	return SubscriberEmail{value: raw}, nil
}

// String returns the validated address.
func (e SubscriberEmail) String() string { return e.value }

// forbiddenNameChars are rejected in subscriber names to keep stored names
// inert in HTML and shell contexts.
const forbiddenNameChars = `/(){}"<>\`

// ParseSubscriberName validates and trims a raw subscriber display name.
func ParseSubscriberName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidName)
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return "", fmt.Errorf("%w: longer than %d characters", ErrInvalidName, maxNameLength)
	}
	if strings.ContainsAny(name, forbiddenNameChars) {
		return "", fmt.Errorf("%w: forbidden character", ErrInvalidName)
	}
	return name, nil
}

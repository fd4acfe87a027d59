// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for subscribers
// and their one-time confirmation tokens.
//
// Error semantics:
//   - ErrDuplicate on uniqueness violations (email already subscribed).
//   - ErrNotFound when a token or subscriber does not exist.
//   - Raw gorm errors otherwise.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-newsletter-backend/internal/domain"
)

// InsertSubscriber stores a new subscriber in pending_confirmation status
// and returns the generated id. Returns ErrDuplicate when the email address
// is already subscribed.
func InsertSubscriber(ctx context.Context, tx *gorm.DB, name string, email domain.SubscriberEmail) (string, error) {
	sub := &domain.Subscriber{
		ID:           uuid.NewString(),
		Email:        email.String(),
		Name:         name,
		Status:       domain.SubscriberStatusPending,
		SubscribedAt: time.Now().UTC(),
	}
	if err := tx.WithContext(ctx).Create(sub).Error; err != nil {
		if isUniqueViolation(err) {
			return "", ErrDuplicate
		}
		return "", err
	}
	return sub.ID, nil
}

// StoreSubscriptionToken links a one-time confirmation token to a
// subscriber. Tokens are primary-keyed, so a (vanishingly unlikely) token
// collision surfaces as ErrDuplicate rather than silently rebinding.
func StoreSubscriptionToken(ctx context.Context, tx *gorm.DB, subscriberID, token string) error {
	rec := &domain.SubscriptionToken{Token: token, SubscriberID: subscriberID}
	if err := tx.WithContext(ctx).Create(rec).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// GetSubscriberIDFromToken resolves a confirmation token to its subscriber
// id, or ErrNotFound for unknown tokens.
func GetSubscriberIDFromToken(ctx context.Context, db *gorm.DB, token string) (string, error) {
	var rec domain.SubscriptionToken
	err := db.WithContext(ctx).Where("token = ?", token).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return rec.SubscriberID, nil
}

// ConfirmSubscriber flips a subscriber to confirmed status. Confirming an
// already confirmed subscriber is a no-op success (the confirmation link may
// be clicked more than once). Returns ErrNotFound for unknown ids.
func ConfirmSubscriber(ctx context.Context, db *gorm.DB, subscriberID string) error {
	res := db.WithContext(ctx).
		Model(&domain.Subscriber{}).
		Where("id = ?", subscriberID).
		Update("status", domain.SubscriberStatusConfirmed)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CountConfirmedSubscribers returns the size of the current confirmed
// snapshot, i.e. the fan-out width of the next publish.
func CountConfirmedSubscribers(ctx context.Context, db *gorm.DB) (int64, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.Subscriber{}).
		Where("status = ?", domain.SubscriberStatusConfirmed).
		Count(&n).Error
	return n, err
}

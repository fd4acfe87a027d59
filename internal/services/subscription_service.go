// Package services – SubscriptionService
//
// This file implements the subscriber signup and confirmation flow: store a
// pending subscriber together with a one-time token, email the confirmation
// link, and flip the subscriber to confirmed when the link is followed.
// Only confirmed subscribers are included in the fan-out snapshot when an
// issue is published.
package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"net/url"

	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-newsletter-backend/internal/domain"
	"github.com/tbourn/go-newsletter-backend/internal/repo"
)

// ConfirmationSender is the slice of the email client the subscription flow
// needs. Satisfied by *email.Client; tests substitute a recorder.
type ConfirmationSender interface {
	Send(ctx context.Context, to domain.SubscriberEmail, subject, textBody, htmlBody string) error
}

// tokenLength matches the stored char(25) token column.
const tokenLength = 25

// tokenAlphabet is the character set for confirmation tokens.
const tokenAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// SubscriptionService coordinates signups and confirmations.
type SubscriptionService struct {
	DB     *gorm.DB
	Sender ConfirmationSender
	// BaseURL is the public root of this application, used to build the
	// confirmation link (e.g. "https://newsletter.example.com").
	BaseURL string
}

// Subscribe validates and stores a new pending subscriber, then emails the
// confirmation link. The subscriber and token rows commit before the email
// goes out; a failed send returns ErrConfirmationSend but leaves the
// pending row in place so the signup can be retried by support tooling.
//
// Errors:
//   - domain.ErrInvalidEmail / domain.ErrInvalidName for bad input.
//   - ErrAlreadySubscribed for duplicate addresses.
//   - ErrConfirmationSend (wrapping the cause) when the email API fails.
func (s *SubscriptionService) Subscribe(ctx context.Context, rawName, rawEmail string) (string, error) {
	tr := otel.Tracer("services/SubscriptionService")
	ctx, span := tr.Start(ctx, "Subscribe")
	defer span.End()

	name, err := domain.ParseSubscriberName(rawName)
	if err != nil {
		return "", err
	}
	addr, err := domain.ParseSubscriberEmail(rawEmail)
	if err != nil {
		return "", err
	}

	token, err := generateSubscriptionToken()
	if err != nil {
		return "", err
	}

	var subscriberID string
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		id, err := repo.InsertSubscriber(ctx, tx, name, addr)
		if err != nil {
			return err
		}
		subscriberID = id
		return repo.StoreSubscriptionToken(ctx, tx, id, token)
	})
	if errors.Is(err, repo.ErrDuplicate) {
		return "", ErrAlreadySubscribed
	}
	if err != nil {
		return "", err
	}
	span.SetAttributes(attribute.String("subscriber.id", subscriberID))

	if err := s.sendConfirmation(ctx, addr, token); err != nil {
		return subscriberID, fmt.Errorf("%w: %v", ErrConfirmationSend, err)
	}
	return subscriberID, nil
}

// Confirm exercises a confirmation token: resolves it to its subscriber and
// flips the status to confirmed. Idempotent: following the link twice
// succeeds twice.
func (s *SubscriptionService) Confirm(ctx context.Context, token string) error {
	tr := otel.Tracer("services/SubscriptionService")
	ctx, span := tr.Start(ctx, "Confirm",
		trace.WithAttributes(attribute.Int("token.length", len(token))),
	)
	defer span.End()

	if len(token) != tokenLength {
		return ErrUnknownToken
	}
	subscriberID, err := repo.GetSubscriberIDFromToken(ctx, s.DB, token)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrUnknownToken
	}
	if err != nil {
		return err
	}
	if err := repo.ConfirmSubscriber(ctx, s.DB, subscriberID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrUnknownToken
		}
		return err
	}
	return nil
}

// sendConfirmation emails the one-time confirmation link.
func (s *SubscriptionService) sendConfirmation(ctx context.Context, to domain.SubscriberEmail, token string) error {
	link := fmt.Sprintf("%s/subscriptions/confirm?subscription_token=%s",
		s.BaseURL, url.QueryEscape(token))
	text := fmt.Sprintf("Welcome to our newsletter!\nVisit %s to confirm your subscription.", link)
	html := fmt.Sprintf(`Welcome to our newsletter!<br/><a href="%s">Click here</a> to confirm your subscription.`, link)
	return s.Sender.Send(ctx, to, "Please confirm your subscription", text, html)
}

// generateSubscriptionToken returns a cryptographically random 25-character
// alphanumeric token.
func generateSubscriptionToken() (string, error) {
	out := make([]byte, tokenLength)
	max := big.NewInt(int64(len(tokenAlphabet)))
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate subscription token: %w", err)
		}
		out[i] = tokenAlphabet[n.Int64()]
	}
	return string(out), nil
}

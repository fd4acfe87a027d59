// Package services defines the business logic for publishing newsletter
// issues and managing subscriptions. This file centralizes common
// service-level error values so that they can be consistently returned by
// service methods and checked by callers.
//
// These errors are intended for internal use by the service layer; mapping
// into user-facing messages and HTTP status codes is performed at the
// handler layer.
package services

import "errors"

// Publishing errors.
var (
	// ErrEmptySubject is returned when a publish request carries an empty
	// subject line.
	ErrEmptySubject = errors.New("subject is empty")

	// ErrEmptyBody is returned when a publish request is missing either the
	// plain-text or the HTML rendering of the issue.
	ErrEmptyBody = errors.New("issue body is empty")

	// ErrPublishInProgress is returned when a concurrent request holds the
	// claim for the same idempotency key but has not committed its response
	// yet. The condition is transient: the caller should invite a client
	// retry, which will then replay the stored response.
	ErrPublishInProgress = errors.New("publish with this idempotency key is in progress")
)

// Subscription errors.
var (
	// ErrAlreadySubscribed is returned when the email address is already on
	// the subscriber list.
	ErrAlreadySubscribed = errors.New("email is already subscribed")

	// ErrUnknownToken is returned when a confirmation token does not match
	// any pending subscription.
	ErrUnknownToken = errors.New("unknown subscription token")

	// ErrConfirmationSend is returned when the subscriber row was stored but
	// the confirmation email could not be delivered to the email API.
	ErrConfirmationSend = errors.New("failed to send confirmation email")
)

// Package services – PublishService
//
// This file implements PublishService, the application-level component that
// owns the idempotent publish pipeline: claim the idempotency key, persist
// the newsletter issue, fan delivery tasks out to the confirmed-subscriber
// snapshot, record the acknowledgement response, and commit, all inside a
// single database transaction.
//
// The transaction boundary is the whole point. Because the ledger claim is
// inserted inside the same transaction as the side effects, any failure
// rolls back everything including the claim itself, and a retry with the
// same key starts from scratch. A committed claim, on the other hand, makes
// every later submission of the same (user, key) replay the stored
// acknowledgement byte for byte, with no side effects.
//
// Observability: public methods are OpenTelemetry-instrumented; spans carry
// the acting user and the generated issue id.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-newsletter-backend/internal/domain"
	"github.com/tbourn/go-newsletter-backend/internal/repo"
)

// PublishService coordinates idempotent newsletter publishing.
type PublishService struct {
	DB *gorm.DB
}

// PublishAck is the acknowledgement body returned (and persisted for
// replay) by a successful publish. It acknowledges acceptance for delivery,
// not delivery itself; the worker drains the queue asynchronously.
type PublishAck struct {
	IssueID         string `json:"issue_id"`
	SubscriberCount int64  `json:"subscriber_count"`
	Message         string `json:"message"`
}

// Publish runs the idempotent publish pipeline for one request.
//
// Returns the response to serve (fresh or replayed) and replayed=true when
// the response came from the ledger instead of fresh side effects.
//
// Errors:
//   - ErrEmptySubject / ErrEmptyBody for invalid content (no transaction is
//     opened).
//   - ErrPublishInProgress when a concurrent request owns the key but has
//     not committed yet (retryable).
//   - Database errors otherwise; in every error case the transaction has
//     been rolled back and no side effect survives.
func (s *PublishService) Publish(ctx context.Context, userID string, key domain.IdempotencyKey, subject, textBody, htmlBody string) (resp *domain.StoredResponse, replayed bool, err error) {
	tr := otel.Tracer("services/PublishService")
	ctx, span := tr.Start(ctx, "Publish",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	if strings.TrimSpace(subject) == "" {
		return nil, false, ErrEmptySubject
	}
	if strings.TrimSpace(textBody) == "" || strings.TrimSpace(htmlBody) == "" {
		return nil, false, ErrEmptyBody
	}

	tx := s.DB.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, false, tx.Error
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	claimed, err := repo.ClaimIdempotencyKey(ctx, tx, userID, key)
	if err != nil {
		return nil, false, err
	}
	if !claimed {
		// Another request owns (or owned) this key. Nothing of ours to keep.
		tx.Rollback()
		return s.replay(ctx, userID, key)
	}

	issueID, err := repo.InsertNewsletterIssue(ctx, tx, subject, textBody, htmlBody)
	if err != nil {
		return nil, false, err
	}
	span.SetAttributes(attribute.String("newsletter.issue_id", issueID))

	fanout, err := repo.EnqueueDeliveries(ctx, tx, issueID)
	if err != nil {
		return nil, false, err
	}

	resp, err = buildAck(issueID, fanout)
	if err != nil {
		return nil, false, err
	}
	if err = repo.SaveIdempotentResponse(ctx, tx, userID, key, resp); err != nil {
		return nil, false, err
	}
	if err = tx.Commit().Error; err != nil {
		return nil, false, err
	}
	return resp, false, nil
}

// replay serves the stored response after a lost claim.
func (s *PublishService) replay(ctx context.Context, userID string, key domain.IdempotencyKey) (*domain.StoredResponse, bool, error) {
	saved, err := repo.GetSavedResponse(ctx, s.DB, userID, key)
	switch {
	case err == nil:
		return saved, true, nil
	case errors.Is(err, repo.ErrResponsePending), errors.Is(err, repo.ErrNotFound):
		// Pending: the winner has not committed yet. NotFound: the winner
		// rolled back between our claim attempt and this lookup. Both are
		// transient; fabricating a response here would break the contract
		// that a claimed key eventually yields one.
		return nil, false, ErrPublishInProgress
	default:
		return nil, false, err
	}
}

// buildAck constructs the acknowledgement that is both persisted to the
// ledger and served to the client, so first response and replays are
// byte-identical.
func buildAck(issueID string, fanout int64) (*domain.StoredResponse, error) {
	body, err := json.Marshal(PublishAck{
		IssueID:         issueID,
		SubscriberCount: fanout,
		Message:         "newsletter accepted for delivery",
	})
	if err != nil {
		return nil, fmt.Errorf("encode publish acknowledgement: %w", err)
	}
	return &domain.StoredResponse{
		StatusCode: 202,
		Headers: []domain.HeaderPair{
			{Name: "Content-Type", Value: "application/json; charset=utf-8"},
		},
		Body: body,
	}, nil
}

// ListPage returns one page of published issues, newest first, plus the
// total count for pagination metadata.
func (s *PublishService) ListPage(ctx context.Context, page, pageSize int) ([]domain.NewsletterIssue, int64, error) {
	tr := otel.Tracer("services/PublishService")
	ctx, span := tr.Start(ctx, "ListPage",
		trace.WithAttributes(
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 1
	}

	total, err := repo.CountNewsletterIssues(ctx, s.DB)
	if err != nil {
		return nil, 0, err
	}
	items, err := repo.ListNewsletterIssuesPage(ctx, s.DB, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the idempotency ledger: the claim /
// replay protocol that gives administrator publish requests exactly-once
// side effects under retries and concurrent duplicate submissions.
//
// Protocol:
//
//   - ClaimIdempotencyKey inserts the ledger row with "do nothing on
//     conflict" semantics inside the caller's transaction. Affecting a row
//     means the caller owns the key and must complete the row (via
//     SaveIdempotentResponse) before committing.
//   - A caller that loses the claim reads the stored response with
//     GetSavedResponse and replays it verbatim. If the winning request has
//     not committed its response yet, ErrResponsePending signals a transient
//     race that the HTTP layer must surface as retryable.
//
// The uniqueness constraint on (user_id, key) is the only synchronization
// primitive; no external lock manager is involved.
package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-newsletter-backend/internal/domain"
)

// ErrResponsePending is returned by GetSavedResponse when the ledger row
// exists but its response columns are still empty: a concurrent request
// claimed the key and has not committed yet. Callers must treat this as
// retryable, never as "not found"; a claimed key eventually yields a
// response.
var ErrResponsePending = errors.New("idempotent response not recorded yet")

// ClaimIdempotencyKey attempts to insert the ledger row for (userID, key)
// within tx. It returns true when the row was inserted, meaning the caller
// owns execution of the side effects for this key. It returns false when the
// key was already claimed (or completed) by another request.
//
// tx must be an open transaction: if the caller's subsequent work fails and
// the transaction rolls back, the claim evaporates with it and a retry of
// the same key is treated as a fresh attempt.
func ClaimIdempotencyKey(ctx context.Context, tx *gorm.DB, userID string, key domain.IdempotencyKey) (bool, error) {
	rec := &domain.IdempotencyRecord{
		ID:     uuid.NewString(),
		UserID: userID,
		Key:    key.String(),
	}
	res := tx.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(rec)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// GetSavedResponse returns the completed response stored for (userID, key).
//
// Errors:
//   - ErrNotFound when no ledger row exists for the pair.
//   - ErrResponsePending when the row exists but is not completed.
func GetSavedResponse(ctx context.Context, db *gorm.DB, userID string, key domain.IdempotencyKey) (*domain.StoredResponse, error) {
	var rec domain.IdempotencyRecord
	err := db.WithContext(ctx).
		Where("user_id = ? AND key = ?", userID, key.String()).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if !rec.Completed() {
		return nil, ErrResponsePending
	}

	var headers []domain.HeaderPair
	if len(rec.ResponseHeader) > 0 {
		if err := json.Unmarshal(rec.ResponseHeader, &headers); err != nil {
			return nil, fmt.Errorf("decode stored response headers: %w", err)
		}
	}
	return &domain.StoredResponse{
		StatusCode: *rec.ResponseStatus,
		Headers:    headers,
		Body:       rec.ResponseBody,
	}, nil
}

// SaveIdempotentResponse writes the response columns onto the claimed ledger
// row within tx. Under correct use the row is written exactly once per
// claim: the caller holds the claim inside the same transaction, so no other
// request can observe or overwrite the row before commit.
//
// Returns ErrNotFound if no claimed row exists for (userID, key), which
// indicates a programming error in the caller.
func SaveIdempotentResponse(ctx context.Context, tx *gorm.DB, userID string, key domain.IdempotencyKey, resp *domain.StoredResponse) error {
	headers, err := json.Marshal(resp.Headers)
	if err != nil {
		return fmt.Errorf("encode response headers: %w", err)
	}
	res := tx.WithContext(ctx).
		Model(&domain.IdempotencyRecord{}).
		Where("user_id = ? AND key = ?", userID, key.String()).
		Updates(map[string]any{
			"response_status": resp.StatusCode,
			"response_header": headers,
			"response_body":   resp.Body,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

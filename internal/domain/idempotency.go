// Package domain defines the core persistence models and validated value
// objects for the application. These types are used by GORM for database
// schema mapping and are shared across the repository and service layers.
package domain

import (
	"errors"
	"fmt"
	"time"
)

// MaxIdempotencyKeyLength caps the accepted length of a client-supplied
// idempotency key. Keys are expected to be UUIDs or similar short tokens;
// anything longer is rejected before a transaction is opened.
const MaxIdempotencyKeyLength = 50

// ErrInvalidIdempotencyKey is returned by ParseIdempotencyKey for keys that
// are empty, too long, or contain non-printable-ASCII characters.
var ErrInvalidIdempotencyKey = errors.New("invalid idempotency key")

// IdempotencyKey is a validated, bounded-length token supplied by the client
// to deduplicate unsafe requests. It is immutable; construct one with
// ParseIdempotencyKey. Equality is by content.
type IdempotencyKey struct {
	value string
}

// ParseIdempotencyKey validates a raw client-supplied key.
//
// Rules:
//   - must be non-empty
//   - must not exceed MaxIdempotencyKeyLength bytes
//   - must consist of printable ASCII characters only (0x21..0x7E plus space)
func ParseIdempotencyKey(raw string) (IdempotencyKey, error) {
	if raw == "" {
		return IdempotencyKey{}, fmt.Errorf("%w: empty", ErrInvalidIdempotencyKey)
	}
	if len(raw) > MaxIdempotencyKeyLength {
		return IdempotencyKey{}, fmt.Errorf("%w: longer than %d characters", ErrInvalidIdempotencyKey, MaxIdempotencyKeyLength)
	}
	for _, r := range raw {
		if r < 0x20 || r > 0x7e {
			return IdempotencyKey{}, fmt.Errorf("%w: non-printable character", ErrInvalidIdempotencyKey)
		}
	}
	return IdempotencyKey{value: raw}, nil
}

// String returns the validated key value.
func (k IdempotencyKey) String() string { return k.value }

// HeaderPair is one recorded (name, value) response header. The order of
// pairs is preserved so a replayed response is byte-identical to the
// original, header ordering included.
type HeaderPair struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// StoredResponse is the replayable HTTP outcome recorded for a completed
// idempotent request: status code, ordered headers, and the raw body.
type StoredResponse struct {
	StatusCode int
	Headers    []HeaderPair
	Body       []byte
}

// IdempotencyRecord represents the ledger row for one (user_id, key) pair.
// It exists in one of two lifecycle phases:
//
//   - claimed:   row present, response columns NULL. The inserting request
//     owns the side effects for this key and must complete the row within
//     the same transaction that produces them.
//   - completed: response columns populated; subsequent requests with the
//     same (user_id, key) replay the stored response verbatim.
//
// At most one record exists per key per user (unique index). Records are
// never deleted by the publishing pipeline; retention is an operational
// concern.
type IdempotencyRecord struct {
	ID             string    `gorm:"type:char(36);primaryKey"`
	UserID         string    `gorm:"type:varchar(64);not null;uniqueIndex:ux_idempotency_user_key,priority:1"`
	Key            string    `gorm:"type:varchar(50);not null;uniqueIndex:ux_idempotency_user_key,priority:2"`
	ResponseStatus *int      `gorm:"type:INTEGER"`
	ResponseHeader []byte    `gorm:"type:blob"` // JSON-encoded []HeaderPair, ordered
	ResponseBody   []byte    `gorm:"type:blob"`
	CreatedAt      time.Time `gorm:"not null;autoCreateTime"`
}

// TableName implements the GORM tabler interface.
func (IdempotencyRecord) TableName() string { return "idempotency" }

// Completed reports whether the response columns have been populated, i.e.
// the record reached the completed phase.
func (r *IdempotencyRecord) Completed() bool { return r.ResponseStatus != nil }

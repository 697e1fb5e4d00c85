package core

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// IdempotencyTTL is how long a record shields its key against replays.
const IdempotencyTTL = 24 * time.Hour

// IdempotencyStatus is the lifecycle of an idempotency record.
type IdempotencyStatus string

const (
	IdempotencyPending   IdempotencyStatus = "pending"
	IdempotencyCompleted IdempotencyStatus = "completed"
	IdempotencyFailed    IdempotencyStatus = "failed"
)

// KeyHash returns a stable one-way hash of a caller-supplied idempotency
// token. The raw token is never stored or used as a lookup key.
func KeyHash(rawKey string) string {
	sum := sha256.Sum256([]byte(rawKey))
	return hex.EncodeToString(sum[:])
}

// RequestHash hashes the semantic request payload in canonical form.
// encoding/json serializes map keys in sorted order, so semantically identical
// payloads hash identically regardless of field order, including nested maps.
func RequestHash(payload map[string]any) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize payload: %w", err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// CachedResponse is the reply body captured when an idempotent operation
// completes, replayed verbatim (original status code included) on retries.
type CachedResponse struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// IdempotencyRecord deduplicates requests on (KeyHash, Scope). A second
// request for the same pair with a different RequestHash is a conflict.
type IdempotencyRecord struct {
	ID          uint
	KeyHash     string
	Scope       string
	RequestHash string
	Status      IdempotencyStatus
	Response    *CachedResponse
	ExpiresAt   time.Time
}

// CheckOutcome discriminates the result of an idempotency check.
type CheckOutcome string

const (
	// CheckProceed means the record is new or still pending; the caller may
	// attempt the operation.
	CheckProceed CheckOutcome = "proceed"
	// CheckCached means a prior identical request completed; the caller must
	// replay the stored response verbatim.
	CheckCached CheckOutcome = "cached"
	// CheckConflict means the key was reused with a different payload; the
	// underlying operation must not be invoked.
	CheckConflict CheckOutcome = "conflict"
)

// IdempotencyCheck is the tagged result of IdempotencyStore.Check.
type IdempotencyCheck struct {
	Outcome CheckOutcome
	Record  *IdempotencyRecord // set when Outcome is CheckProceed
	Cached  *CachedResponse    // set when Outcome is CheckCached
}

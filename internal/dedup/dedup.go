// Package dedup suppresses repeated notifications within a short window.
//
// A key is recorded with Add, which reports whether it was new. Keys expire
// after the configured TTL. Memory is process-local; Redis shares the window
// across instances.
package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"slices"
	"strings"
	"time"
)

// DefaultTTL is the suppression window for mention notifications.
const DefaultTTL = 5 * time.Second

// ErrEmptyKey is returned when Add or Remove is called with an empty key.
var ErrEmptyKey = errors.New("dedup: empty key")

// Deduper records keys for a bounded time.
type Deduper interface {
	// Add records key and returns true when it was not already present.
	Add(ctx context.Context, key string) (bool, error)

	// Remove forgets key so the next Add succeeds.
	Remove(ctx context.Context, key string) error
}

// Key builds the dedup key for a notification about cardID with the given
// content sent to recipients. Recipient order and duplicates do not matter.
func Key(cardID, content string, recipients []string) string {
	sum := sha256.Sum256([]byte(content))

	ids := slices.Clone(recipients)
	slices.Sort(ids)
	ids = slices.Compact(ids)

	return cardID + ":" + hex.EncodeToString(sum[:]) + ":" + strings.Join(ids, ",")
}

package store

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"fara-hq/governor/pkg/action"
)

// chainHash computes the tamper-evident record hash for an event:
// SHA-256 over the previous record hash concatenated with the canonical
// serialization of the event's immutable fields. The first event in a
// chain uses an empty previous hash.
func chainHash(prevHash string, e *action.Event) string {
	canonical := action.CanonicalJSON(map[string]any{
		"id":         e.ID,
		"action_id":  e.ActionID,
		"event_type": string(e.EventType),
		"meta":       e.Meta,
		"created_at": e.CreatedAt.UTC().Format(time.RFC3339Nano),
	})
	sum := sha256.Sum256([]byte(prevHash + canonical))
	return hex.EncodeToString(sum[:])
}

// VerifyChain walks an ordered event list and reports whether every
// record hash links correctly to its predecessor. Events without record
// hashes (chaining disabled when they were written) are skipped.
func VerifyChain(events []*action.Event) bool {
	prev := ""
	for _, e := range events {
		if e.RecordHash == "" {
			continue
		}
		if e.PrevHash != prev {
			return false
		}
		if chainHash(prev, e) != e.RecordHash {
			return false
		}
		prev = e.RecordHash
	}
	return true
}

// Package translator converts natural-language research queries into
// structured upstream search parameters.
//
// The primary path sends the query to a generative language model with a
// fixed instruction and sanitizes the structured response against a
// parameter whitelist. When the model is unavailable, misconfigured, or
// returns something unusable, a heuristic builder derives parameters from
// the raw query text instead, so translation always produces a usable
// request.
package translator

import (
	"sync"
)

// KeyRotator cycles through a set of API keys. Safe for concurrent use.
//
// The cursor advances on every call to Next. If the configured key set
// changes, Replace resets the cursor to the start of the new set.
type KeyRotator struct {
	mu   sync.Mutex
	keys []string
	next int
}

// NewKeyRotator creates a rotator over the given keys.
func NewKeyRotator(keys []string) *KeyRotator {
	return &KeyRotator{keys: append([]string(nil), keys...)}
}

// Next returns the current key and advances the cursor. Returns false when
// no keys are configured.
func (r *KeyRotator) Next() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.keys) == 0 {
		return "", false
	}

	key := r.keys[r.next]
	r.next = (r.next + 1) % len(r.keys)
	return key, true
}

// Replace swaps in a new key set. When the set differs from the current one
// the cursor resets to the first key; an identical set leaves the cursor
// untouched.
func (r *KeyRotator) Replace(keys []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if equalKeys(r.keys, keys) {
		return
	}
	r.keys = append([]string(nil), keys...)
	r.next = 0
}

// Len returns the number of configured keys.
func (r *KeyRotator) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.keys)
}

func equalKeys(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

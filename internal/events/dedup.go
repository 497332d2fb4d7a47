package events

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// Deduper remembers recently seen envelope IDs so consumers can drop
// redeliveries. It is safe for concurrent use.
type Deduper struct {
	seen *lru.Cache[string, struct{}]
}

// NewDeduper keeps the last capacity IDs.
func NewDeduper(capacity int) *Deduper {
	if capacity <= 0 {
		capacity = 1024
	}
	cache, err := lru.New[string, struct{}](capacity)
	if err != nil {
		// only returned for non-positive sizes
		panic(err)
	}
	return &Deduper{seen: cache}
}

// Seen records env and reports whether it was already delivered.
func (d *Deduper) Seen(env Envelope) bool {
	if env.ID == "" {
		return false
	}
	found, _ := d.seen.ContainsOrAdd(env.ID, struct{}{})
	return found
}

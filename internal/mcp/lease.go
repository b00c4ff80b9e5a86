package mcp

import (
	"fmt"
	"time"
)

// DefaultEditTTL is how long an edit started with ideas_edit_start stays open
// without a submit or cancel.
const DefaultEditTTL = 30 * time.Minute

// editLease tracks the idea an agent is editing and when that edit lapses.
type editLease struct {
	IdeaID    string
	StartedAt time.Time
	ExpiresAt time.Time
}

func newEditLease(id string, now time.Time, ttl time.Duration) *editLease {
	return &editLease{
		IdeaID:    id,
		StartedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

// IsExpired returns true if the lease has exceeded its TTL.
func (l *editLease) IsExpired(now time.Time) bool {
	return now.After(l.ExpiresAt)
}

// check returns an error if the open edit has lapsed. A nil lease means the
// form is idle and is always valid.
func (l *editLease) check(now time.Time) error {
	if l != nil && l.IsExpired(now) {
		return fmt.Errorf("edit of %s expired at %s", l.IdeaID, l.ExpiresAt.Format(time.RFC3339))
	}
	return nil
}

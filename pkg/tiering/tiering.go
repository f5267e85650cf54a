// Package tiering classifies memory entries into the two lifetime tiers the
// engine recognizes — Semantic (permanent) and Episodic (carries a
// wall-clock expiry) — and provides the lazy, read-time expiry check plus an
// optional best-effort physical sweep. Nothing in this package runs on a
// timer: eviction is checked when an entry is read, the way the teacher's
// MemoryLayer enum drives behavior through plain conversion functions rather
// than a background goroutine.
package tiering

import (
	"context"
	"fmt"
	"time"
)

// Tier names an entry's lifetime class.
type Tier string

const (
	// Semantic entries never expire.
	Semantic Tier = "semantic"
	// Episodic entries carry a TTL and are lazily evicted once it passes.
	Episodic Tier = "episodic"
)

// Valid reports whether t is one of the two recognized tiers.
func (t Tier) Valid() bool {
	return t == Semantic || t == Episodic
}

// ParseTier converts a stored tier string back into a Tier, rejecting
// anything that isn't one of the two recognized values.
func ParseTier(s string) (Tier, error) {
	t := Tier(s)
	if !t.Valid() {
		return "", fmt.Errorf("tiering: unrecognized tier %q", s)
	}
	return t, nil
}

// ExpiryFor computes the expires_at timestamp for a newly ingested entry
// given its tier and, for Episodic entries, the configured TTL. Semantic
// entries always get a nil expiry.
func ExpiryFor(tier Tier, ttl time.Duration, now time.Time) *time.Time {
	if tier != Episodic {
		return nil
	}
	t := now.Add(ttl)
	return &t
}

// IsExpired reports whether an entry with the given tier and expiry should
// be treated as gone at instant now. Semantic entries (nil expiry) are never
// expired; an Episodic entry with a nil expiry is treated as a storage
// invariant violation and conservatively reported as expired rather than
// risking an entry that never gets evicted.
func IsExpired(tier Tier, expiresAt *time.Time, now time.Time) bool {
	if tier == Semantic {
		return false
	}
	if expiresAt == nil {
		return true
	}
	return !now.Before(*expiresAt)
}

// expirySource is the narrow storage capability Sweep needs: delete every
// row whose expiry has passed as of cutoff, reporting how many were removed.
// pkg/storage.Store satisfies this directly.
type expirySource interface {
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// Sweep performs a best-effort physical deletion of every expired episodic
// entry. It is never invoked from the ingest or search hot path — callers
// (the memcorectl sweep subcommand, or an operator-triggered maintenance
// task) opt into paying its cost explicitly.
func Sweep(ctx context.Context, store expirySource, now time.Time) (int, error) {
	n, err := store.DeleteExpiredBefore(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("tiering: sweep: %w", err)
	}
	return n, nil
}

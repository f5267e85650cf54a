package tiering

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestParseTierRoundTrip(t *testing.T) {
	for _, s := range []string{"semantic", "episodic"} {
		tier, err := ParseTier(s)
		if err != nil {
			t.Fatalf("ParseTier(%q): %v", s, err)
		}
		if string(tier) != s {
			t.Fatalf("ParseTier(%q) = %q", s, tier)
		}
	}
}

func TestParseTierRejectsUnknown(t *testing.T) {
	if _, err := ParseTier("eternal"); err == nil {
		t.Fatal("ParseTier(\"eternal\") did not error")
	}
}

func TestExpiryForSemanticIsNil(t *testing.T) {
	if exp := ExpiryFor(Semantic, time.Hour, time.Now()); exp != nil {
		t.Fatalf("ExpiryFor(Semantic) = %v, want nil", exp)
	}
}

func TestExpiryForEpisodicAddsTTL(t *testing.T) {
	now := time.Now()
	exp := ExpiryFor(Episodic, time.Hour, now)
	if exp == nil {
		t.Fatal("ExpiryFor(Episodic) = nil")
	}
	if !exp.Equal(now.Add(time.Hour)) {
		t.Fatalf("ExpiryFor(Episodic) = %v, want %v", exp, now.Add(time.Hour))
	}
}

func TestIsExpiredSemanticNeverExpires(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	if IsExpired(Semantic, &past, time.Now()) {
		t.Fatal("Semantic entry reported expired")
	}
	if IsExpired(Semantic, nil, time.Now()) {
		t.Fatal("Semantic entry with nil expiry reported expired")
	}
}

func TestIsExpiredEpisodicBoundary(t *testing.T) {
	now := time.Now()
	future := now.Add(time.Minute)
	if IsExpired(Episodic, &future, now) {
		t.Fatal("future expiry reported expired")
	}
	past := now.Add(-time.Minute)
	if !IsExpired(Episodic, &past, now) {
		t.Fatal("past expiry not reported expired")
	}
	if !IsExpired(Episodic, &now, now) {
		t.Fatal("expiry exactly at now not reported expired")
	}
}

func TestIsExpiredEpisodicNilExpiryIsExpired(t *testing.T) {
	if !IsExpired(Episodic, nil, time.Now()) {
		t.Fatal("Episodic entry with nil expiry not reported expired")
	}
}

type fakeExpirySource struct {
	deleted int
	err     error
}

func (f *fakeExpirySource) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int, error) {
	return f.deleted, f.err
}

func TestSweepPropagatesCount(t *testing.T) {
	src := &fakeExpirySource{deleted: 3}
	n, err := Sweep(context.Background(), src, time.Now())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if n != 3 {
		t.Fatalf("Sweep = %d, want 3", n)
	}
}

func TestSweepWrapsError(t *testing.T) {
	want := errors.New("boom")
	src := &fakeExpirySource{err: want}
	_, err := Sweep(context.Background(), src, time.Now())
	if err == nil || !errors.Is(err, want) {
		t.Fatalf("Sweep error = %v, want wrapping %v", err, want)
	}
}

// Package engine implements ingestion and the three-stage search funnel:
// binary quantization + bounded Hamming scan (stage 1), Matryoshka-truncated
// cosine refinement (stage 2), and full-precision cosine re-rank (stage 3).
// It owns a Storage backend and an Embedder capability, wiring them together
// the way the teacher's SQLiteStore owns its similarityFn — by constructor
// injection, never a package-level default.
package engine

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/chewxy/math32"
	"github.com/google/uuid"

	"github.com/sqmem/memcore/pkg/embedder"
	"github.com/sqmem/memcore/pkg/storage"
	"github.com/sqmem/memcore/pkg/tiering"
	"github.com/sqmem/memcore/pkg/vector"
)

// Logger is the structured-logging capability the engine needs, identical in
// shape to storage.Logger so both layers can share one implementation.
type Logger interface {
	Debug(msg string, keyvals ...any)
	Info(msg string, keyvals ...any)
	Warn(msg string, keyvals ...any)
	Error(msg string, keyvals ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// NopLogger returns a Logger that discards everything.
func NopLogger() Logger { return nopLogger{} }

// Storage is the persistence capability the engine depends on.
// *storage.Store satisfies it directly.
type Storage interface {
	Put(ctx context.Context, e storage.Entry) error
	GetMeta(ctx context.Context, id string) (text string, metadata map[string]any, tier string, expiresAt *time.Time, found bool, err error)
	GetVec(ctx context.Context, id string) ([]float32, bool, error)
	GetBit(ctx context.Context, id string) ([]byte, bool, error)
	ScanBit(ctx context.Context) ([]storage.BitRow, error)
	ScanMeta(ctx context.Context) ([]storage.MetaRow, error)
	Delete(ctx context.Context, id string) error
	Stats(ctx context.Context) (storage.Stats, error)
}

// PostIngestHook is an optional extension point invoked after a successful
// Ingest, modeled on the teacher's ConsolidateFn callback shape. Its error
// is logged as a warning and never propagated: a failing hook must not make
// an otherwise-successful ingest look like it failed.
type PostIngestHook func(ctx context.Context, id string, text string) error

// Engine ties storage, the embedder, and the funnel configuration together.
type Engine struct {
	store  Storage
	embed  embedder.Embedder
	cfg    Config
	logger Logger
	hook   PostIngestHook
}

// New constructs an Engine. hook may be nil.
func New(store Storage, embed embedder.Embedder, cfg Config, logger Logger, hook PostIngestHook) *Engine {
	if logger == nil {
		logger = NopLogger()
	}
	return &Engine{store: store, embed: embed, cfg: cfg, logger: logger, hook: hook}
}

// IngestInput is the caller-supplied payload for Ingest.
type IngestInput struct {
	Text     string
	Metadata map[string]any
	Tier     tiering.Tier
	// TTL overrides cfg.DefaultTTL for Episodic entries when non-zero.
	TTL time.Time
}

// Ingest embeds text, quantizes the resulting vector, and writes all three
// keyspaces atomically, returning the newly allocated id.
func (e *Engine) Ingest(ctx context.Context, in IngestInput) (string, error) {
	const op = "engine.Ingest"
	if in.Text == "" {
		return "", wrapErr(op, KindInvalidInput, fmt.Errorf("text must not be empty"))
	}
	tier := in.Tier
	if tier == "" {
		tier = tiering.Semantic
	}
	if !tier.Valid() {
		return "", wrapErr(op, KindInvalidInput, fmt.Errorf("unrecognized tier %q", tier))
	}

	vec, err := e.embed.Embed(ctx, in.Text)
	if err != nil {
		return "", wrapErr(op, KindEmbedderFailure, err)
	}
	if len(vec) != e.cfg.Dim {
		return "", wrapErr(op, KindEmbedderFailure, fmt.Errorf("embedder returned %d dims, want %d", len(vec), e.cfg.Dim))
	}
	unit, err := vector.Normalize(vec)
	if err != nil {
		return "", wrapErr(op, KindDegenerateVector, err)
	}
	bits := vector.Quantize(unit)

	id := uuid.NewString()
	var expiresAt *time.Time
	if tier == tiering.Episodic {
		ttl := e.cfg.DefaultTTL
		if !in.TTL.IsZero() {
			ttl = time.Until(in.TTL)
		}
		expiresAt = tiering.ExpiryFor(tier, ttl, time.Now())
	}

	entry := storage.Entry{
		ID:        id,
		Text:      in.Text,
		Metadata:  in.Metadata,
		Tier:      string(tier),
		ExpiresAt: expiresAt,
		Vector:    unit,
		Bits:      bits,
	}
	if err := e.store.Put(ctx, entry); err != nil {
		return "", wrapErr(op, KindStorageFailure, err)
	}
	e.logger.Info("entry ingested", "id", id, "tier", tier)

	if e.hook != nil {
		if hookErr := e.hook(ctx, id, in.Text); hookErr != nil {
			e.logger.Warn("post-ingest hook failed", "id", id, "err", hookErr)
		}
	}
	return id, nil
}

// Result is one ranked hit from Search.
type Result struct {
	ID       string         `json:"id"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Tier     string         `json:"tier"`
	Score    float32        `json:"score"`
}

// SearchInput is the caller-supplied payload for Search.
type SearchInput struct {
	Text    string
	TopK    int
	Stage1K int // 0 means "use the configured default"
	Stage2K int // 0 means "use the configured default"
}

// Search runs the three-stage funnel: a bounded Hamming scan over every
// stored bit vector, a Matryoshka-truncated cosine refinement over the
// survivors, and a full-precision cosine re-rank over that smaller set.
// Expired episodic entries are skipped at the Hamming stage so they never
// reach a later, more expensive stage.
func (e *Engine) Search(ctx context.Context, in SearchInput) ([]Result, error) {
	const op = "engine.Search"
	if in.Text == "" {
		return nil, wrapErr(op, KindInvalidInput, fmt.Errorf("text must not be empty"))
	}
	if in.TopK <= 0 {
		return nil, wrapErr(op, KindInvalidInput, fmt.Errorf("top_k must be positive"))
	}

	stage1K := in.Stage1K
	if stage1K <= 0 {
		stage1K = e.cfg.Stage1K
	}
	stage2K := in.Stage2K
	if stage2K <= 0 {
		stage2K = e.cfg.Stage2K
	}
	stage1K, stage2K = clampStageBudgets(in.TopK, stage1K, stage2K)

	queryVec, err := e.embed.Embed(ctx, in.Text)
	if err != nil {
		return nil, wrapErr(op, KindEmbedderFailure, err)
	}
	if len(queryVec) != e.cfg.Dim {
		return nil, wrapErr(op, KindEmbedderFailure, fmt.Errorf("embedder returned %d dims, want %d", len(queryVec), e.cfg.Dim))
	}
	queryUnit, err := vector.Normalize(queryVec)
	if err != nil {
		return nil, wrapErr(op, KindDegenerateVector, err)
	}
	queryBits := vector.Quantize(queryUnit)
	queryMatryoshka, err := vector.Slice(queryUnit, e.cfg.MatryoshkaDim)
	if err != nil {
		return nil, wrapErr(op, KindDegenerateVector, err)
	}

	// Stage 1: bounded Hamming scan over every live bit vector.
	bitRows, err := e.store.ScanBit(ctx)
	if err != nil {
		return nil, wrapErr(op, KindStorageFailure, err)
	}
	live, err := e.liveIDs(ctx)
	if err != nil {
		return nil, err
	}

	var stage1Heap distMaxHeap
	for _, row := range bitRows {
		if !live[row.ID] {
			continue
		}
		d := vector.Hamming(queryBits, row.Bits)
		pushBoundedDist(&stage1Heap, distCandidate{id: row.ID, distance: d}, stage1K)
	}
	stage1 := drainSortedAscendingDist(&stage1Heap)
	if len(stage1) == 0 {
		return nil, nil
	}

	// Stage 2: Matryoshka-truncated cosine refinement over the stage 1
	// survivors.
	var stage2Heap scoreMinHeap
	for _, c := range stage1 {
		full, found, err := e.store.GetVec(ctx, c.id)
		if err != nil {
			return nil, wrapErr(op, KindStorageFailure, err)
		}
		if !found {
			continue
		}
		sliced, err := vector.Slice(full, e.cfg.MatryoshkaDim)
		if err != nil {
			// A degenerate prefix drops this candidate's rank to the floor
			// rather than failing the whole search.
			pushBoundedScore(&stage2Heap, scoreCandidate{id: c.id, score: math32.NaN()}, stage2K)
			continue
		}
		score := vector.Cosine(queryMatryoshka, sliced)
		pushBoundedScore(&stage2Heap, scoreCandidate{id: c.id, score: score}, stage2K)
	}
	stage2 := drainSortedDescending(&stage2Heap)
	if len(stage2) == 0 {
		return nil, nil
	}

	// Stage 3: full-precision cosine re-rank over the stage 2 survivors.
	var stage3Heap scoreMinHeap
	for _, c := range stage2 {
		full, found, err := e.store.GetVec(ctx, c.id)
		if err != nil {
			return nil, wrapErr(op, KindStorageFailure, err)
		}
		if !found {
			continue
		}
		score := vector.Cosine(queryUnit, full)
		pushBoundedScore(&stage3Heap, scoreCandidate{id: c.id, score: score}, in.TopK)
	}
	ranked := drainSortedDescending(&stage3Heap)

	results := make([]Result, 0, len(ranked))
	for _, c := range ranked {
		text, metadata, tier, _, found, err := e.store.GetMeta(ctx, c.id)
		if err != nil {
			return nil, wrapErr(op, KindStorageFailure, err)
		}
		if !found {
			continue
		}
		results = append(results, Result{ID: c.id, Text: text, Metadata: metadata, Tier: tier, Score: c.score})
	}
	return results, nil
}

// liveIDs returns the set of ids whose tier/expiry mark them as not yet
// lazily evicted, so Search never surfaces a logically-expired entry even
// if no sweep has physically removed its rows yet.
func (e *Engine) liveIDs(ctx context.Context) (map[string]bool, error) {
	metaRows, err := e.store.ScanMeta(ctx)
	if err != nil {
		return nil, wrapErr("engine.liveIDs", KindStorageFailure, err)
	}
	now := time.Now()
	live := make(map[string]bool, len(metaRows))
	for _, row := range metaRows {
		tier, err := tiering.ParseTier(row.Tier)
		if err != nil {
			continue
		}
		if tiering.IsExpired(tier, row.ExpiresAt, now) {
			continue
		}
		live[row.ID] = true
	}
	return live, nil
}

// Delete removes an entry. Returns a KindNotFound error if id doesn't exist.
func (e *Engine) Delete(ctx context.Context, id string) error {
	const op = "engine.Delete"
	_, _, _, _, found, err := e.store.GetMeta(ctx, id)
	if err != nil {
		return wrapErr(op, KindStorageFailure, err)
	}
	if !found {
		return wrapErr(op, KindNotFound, fmt.Errorf("no entry with id %q", id))
	}
	if err := e.store.Delete(ctx, id); err != nil {
		return wrapErr(op, KindStorageFailure, err)
	}
	e.logger.Info("entry deleted", "id", id)
	return nil
}

// DeleteByFilter removes every live entry whose metadata matches every
// key/value pair in filters (exact equality), returning how many entries
// were removed. An empty or non-matching filter set removes nothing and is
// not an error — the caller (the tool dispatcher) reports {success:false,
// deleted:0} rather than raising, the same discipline as Delete by unknown
// id.
func (e *Engine) DeleteByFilter(ctx context.Context, filters map[string]any) (int, error) {
	const op = "engine.DeleteByFilter"
	metaRows, err := e.store.ScanMeta(ctx)
	if err != nil {
		return 0, wrapErr(op, KindStorageFailure, err)
	}
	now := time.Now()
	var matched []string
	for _, row := range metaRows {
		tier, err := tiering.ParseTier(row.Tier)
		if err != nil || tiering.IsExpired(tier, row.ExpiresAt, now) {
			continue
		}
		if matchesFilter(row.Metadata, filters) {
			matched = append(matched, row.ID)
		}
	}
	for _, id := range matched {
		if err := e.store.Delete(ctx, id); err != nil {
			return 0, wrapErr(op, KindStorageFailure, err)
		}
	}
	if len(matched) > 0 {
		e.logger.Info("entries deleted by filter", "count", len(matched))
	}
	return len(matched), nil
}

// matchesFilter reports whether metadata contains every key/value pair in
// filters, by deep equality on the decoded JSON value.
func matchesFilter(metadata map[string]any, filters map[string]any) bool {
	if len(filters) == 0 {
		return false
	}
	for k, want := range filters {
		got, ok := metadata[k]
		if !ok || !reflect.DeepEqual(got, want) {
			return false
		}
	}
	return true
}

// Stats reports entry count (excluding lazily-expired episodic entries),
// configured dimension, and approximate on-disk size.
func (e *Engine) Stats(ctx context.Context) (storage.Stats, error) {
	const op = "engine.Stats"
	raw, err := e.store.Stats(ctx)
	if err != nil {
		return storage.Stats{}, wrapErr(op, KindStorageFailure, err)
	}
	live, err := e.liveIDs(ctx)
	if err != nil {
		return storage.Stats{}, err
	}
	raw.Count = len(live)
	return raw, nil
}

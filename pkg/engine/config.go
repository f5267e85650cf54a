package engine

import "time"

// Config carries the knobs the engine needs, mirroring the teacher's
// embedding.go Config/DefaultConfig shape: a plain struct with a defaults
// constructor, no file-format parsing layered on top.
type Config struct {
	// StoragePath is the SQLite database file backing the three keyspaces.
	StoragePath string
	// Dim is the full embedding dimension (stage 3).
	Dim int
	// MatryoshkaDim is the truncated dimension used for stage 2 refinement.
	MatryoshkaDim int
	// Stage1K is the number of candidates the Hamming scan keeps.
	Stage1K int
	// Stage2K is the number of candidates the Matryoshka refinement keeps.
	Stage2K int
	// DefaultTTL is the TTL applied to episodic entries that don't specify
	// their own.
	DefaultTTL time.Duration
}

// DefaultConfig returns a Config with the defaults spec §6 calls out:
// 768-dim embeddings, 256-dim Matryoshka prefix, stage1_k=100, stage2_k=10,
// and the default episodic TTL of one hour (3600 seconds, spec §4.3).
func DefaultConfig() Config {
	return Config{
		StoragePath:   "memcore.db",
		Dim:           768,
		MatryoshkaDim: 256,
		Stage1K:       100,
		Stage2K:       10,
		DefaultTTL:    time.Hour,
	}
}

// clampStageBudgets enforces top_k <= stage2_k <= stage1_k by widening the
// stage budgets rather than rejecting the request, per the resolved open
// question in spec §9: a caller asking for more than the configured window
// gets a wider window, not an error.
func clampStageBudgets(topK, stage1K, stage2K int) (s1, s2 int) {
	s2 = stage2K
	if s2 < topK {
		s2 = topK
	}
	s1 = stage1K
	if s1 < s2 {
		s1 = s2
	}
	return s1, s2
}

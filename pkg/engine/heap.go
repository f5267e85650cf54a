package engine

import (
	"container/heap"
	"sort"

	"github.com/sqmem/memcore/pkg/vector"
)

// distCandidate is one Stage 1 survivor: a candidate id and its Hamming
// distance from the query's bit vector. Lower distance is better.
type distCandidate struct {
	id       string
	distance int
}

// distMaxHeap is a bounded max-heap on distance: the worst (largest
// distance) survivor sits at the root, so bounding to k candidates is a
// single pop-then-push when a closer candidate arrives. Grounded directly on
// the teacher's pkg/index/flat.go flatMaxHeap.
type distMaxHeap []distCandidate

func (h distMaxHeap) Len() int            { return len(h) }
func (h distMaxHeap) Less(i, j int) bool  { return h[i].distance > h[j].distance }
func (h distMaxHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *distMaxHeap) Push(x interface{}) { *h = append(*h, x.(distCandidate)) }
func (h *distMaxHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// pushBoundedDist maintains h as the k candidates with the smallest distance
// seen so far.
func pushBoundedDist(h *distMaxHeap, c distCandidate, k int) {
	if k <= 0 {
		return
	}
	if h.Len() < k {
		heap.Push(h, c)
		return
	}
	if c.distance < (*h)[0].distance {
		(*h)[0] = c
		heap.Fix(h, 0)
	}
}

// scoreCandidate is a Stage 2/3 survivor: a candidate id and its cosine
// similarity against the query. Higher score is better.
type scoreCandidate struct {
	id    string
	score float32
}

// scoreMinHeap is a bounded min-heap on score using the funnel's NaN-safe
// total order: the worst (lowest, or NaN) survivor sits at the root, so
// bounding to k is a single pop-then-push when a stronger candidate arrives.
type scoreMinHeap []scoreCandidate

func (h scoreMinHeap) Len() int { return len(h) }
func (h scoreMinHeap) Less(i, j int) bool {
	return vector.Less(h[i].score, h[j].score)
}
func (h scoreMinHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *scoreMinHeap) Push(x interface{}) { *h = append(*h, x.(scoreCandidate)) }
func (h *scoreMinHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// pushBoundedScore maintains h as the k candidates with the highest score
// seen so far.
func pushBoundedScore(h *scoreMinHeap, c scoreCandidate, k int) {
	if k <= 0 {
		return
	}
	if h.Len() < k {
		heap.Push(h, c)
		return
	}
	if vector.Less((*h)[0].score, c.score) {
		(*h)[0] = c
		heap.Fix(h, 0)
	}
}

// drainSortedDescending empties h and returns its contents sorted by
// descending score (best first), breaking exact ties by ascending id (byte
// order) per the funnel's Stage 3 tie-break rule: the heap's own internal
// order says nothing about which of two equal-scoring candidates comes
// first, so a final stable sort settles it.
func drainSortedDescending(h *scoreMinHeap) []scoreCandidate {
	out := make([]scoreCandidate, h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(h).(scoreCandidate)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].score == out[j].score {
			return out[i].id < out[j].id
		}
		return vector.Less(out[j].score, out[i].score)
	})
	return out
}

// drainSortedAscendingDist empties h and returns its contents sorted by
// ascending distance (closest first).
func drainSortedAscendingDist(h *distMaxHeap) []distCandidate {
	out := make([]distCandidate, h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(h).(distCandidate)
	}
	return out
}

package dsa

import "slices"

// ─── Bounded Top-K (Min-Heap) ───────────────────────────────────────────────
// Keeps the K best items seen so far. The root is the worst retained item,
// so a candidate only enters when it beats the root.
//
// Operations:
//   Offer:   O(log k): replace root + sift down, or push + sift up
//   Worst:   O(1)
//   Sorted:  O(k log k)
//
// Used to cut a large population down to a leaderboard's top N before
// ranking, without sorting everyone.

// TopK retains the k greatest items under better.
// better(a, b) must be a strict weak ordering: true when a ranks above b.
type TopK[T any] struct {
	k      int
	heap   []T
	better func(a, b T) bool
}

// NewTopK creates an empty selector. k <= 0 retains nothing.
func NewTopK[T any](k int, better func(a, b T) bool) *TopK[T] {
	if k < 0 {
		k = 0
	}
	return &TopK[T]{k: k, better: better, heap: make([]T, 0, min(k, 1024))}
}

// Offer considers item for retention. Returns true if it was kept.
func (t *TopK[T]) Offer(item T) bool {
	if t.k == 0 {
		return false
	}
	if len(t.heap) < t.k {
		t.heap = append(t.heap, item)
		t.siftUp(len(t.heap) - 1)
		return true
	}
	if !t.better(item, t.heap[0]) {
		return false
	}
	t.heap[0] = item
	t.siftDown(0)
	return true
}

// Worst returns the lowest-ranked retained item.
func (t *TopK[T]) Worst() (T, bool) {
	if len(t.heap) == 0 {
		var zero T
		return zero, false
	}
	return t.heap[0], true
}

// Len returns the number of retained items.
func (t *TopK[T]) Len() int { return len(t.heap) }

// Sorted returns the retained items best-first. The selector is unchanged.
func (t *TopK[T]) Sorted() []T {
	out := slices.Clone(t.heap)
	slices.SortFunc(out, func(a, b T) int {
		switch {
		case t.better(a, b):
			return -1
		case t.better(b, a):
			return 1
		}
		return 0
	})
	return out
}

// less orders the heap worst-first.
func (t *TopK[T]) less(i, j int) bool {
	return t.better(t.heap[j], t.heap[i])
}

// siftUp restores heap property after insertion.
func (t *TopK[T]) siftUp(idx int) {
	for idx > 0 {
		parent := (idx - 1) / 2
		if t.less(idx, parent) {
			t.heap[idx], t.heap[parent] = t.heap[parent], t.heap[idx]
			idx = parent
		} else {
			break
		}
	}
}

// siftDown restores heap property after replacing the root.
func (t *TopK[T]) siftDown(idx int) {
	n := len(t.heap)
	for {
		smallest := idx
		left := 2*idx + 1
		right := 2*idx + 2

		if left < n && t.less(left, smallest) {
			smallest = left
		}
		if right < n && t.less(right, smallest) {
			smallest = right
		}
		if smallest == idx {
			break
		}
		t.heap[idx], t.heap[smallest] = t.heap[smallest], t.heap[idx]
		idx = smallest
	}
}

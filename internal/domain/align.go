package domain

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"time"
)

// DefaultTolerance is the largest accepted |reference − ground| offset.
const DefaultTolerance = 300 * time.Second

// ErrUnsortedInput is returned when an aligner input is not in chronological
// order. Sorting is the caller's job; this is a contract violation, not a data
// condition.
var ErrUnsortedInput = errors.New("series not sorted by instant")

// Timestamped is any element that can be placed on the canonical time base.
type Timestamped interface {
	At() time.Time
}

// AlignedPair is one reference element matched to one ground element.
type AlignedPair[R, G Timestamped] struct {
	Reference R
	Ground    G
	// Offset is reference − ground.
	Offset time.Duration
}

// AlignResult holds the matched pairs in reference order and the number of
// reference elements that found no ground element within tolerance.
type AlignResult[R, G Timestamped] struct {
	Pairs     []AlignedPair[R, G]
	Unmatched int
}

// SortByInstant orders xs chronologically, keeping the relative order of
// elements with equal instants.
func SortByInstant[T Timestamped](xs []T) {
	slices.SortStableFunc(xs, compareInstant[T])
}

// Align pairs every reference element with the nearest unclaimed ground
// element whose instant differs by at most tolerance. Both inputs must be
// sorted by instant. Each ground element is claimed at most once; when two
// candidates are equally distant the earlier one wins. Reference elements
// without a candidate are dropped and counted in Unmatched.
//
// Runs in O((n+m) log m): a binary search finds the insertion point and two
// union-find skip lists jump over claimed ground elements.
func Align[R, G Timestamped](reference []R, ground []G, tolerance time.Duration) (AlignResult[R, G], error) {
	if tolerance < 0 {
		return AlignResult[R, G]{}, fmt.Errorf("negative tolerance %s", tolerance)
	}
	if !slices.IsSortedFunc(reference, compareInstant[R]) {
		return AlignResult[R, G]{}, fmt.Errorf("reference: %w", ErrUnsortedInput)
	}
	if !slices.IsSortedFunc(ground, compareInstant[G]) {
		return AlignResult[R, G]{}, fmt.Errorf("ground: %w", ErrUnsortedInput)
	}

	result := AlignResult[R, G]{
		Pairs: make([]AlignedPair[R, G], 0, min(len(reference), len(ground))),
	}
	free := newFreeList(len(ground))

	for _, ref := range reference {
		t := ref.At()
		pos := sort.Search(len(ground), func(i int) bool {
			return !ground[i].At().Before(t)
		})

		best := -1
		var bestDiff time.Duration
		if left := free.prev(pos - 1); left >= 0 {
			// Among unclaimed elements sharing that instant, prefer the first.
			lt := ground[left].At()
			left = free.next(sort.Search(left, func(i int) bool {
				return !ground[i].At().Before(lt)
			}))
			if d := t.Sub(lt); d <= tolerance {
				best, bestDiff = left, d
			}
		}
		if right := free.next(pos); right < len(ground) {
			if d := ground[right].At().Sub(t); d <= tolerance && (best < 0 || d < bestDiff) {
				best = right
			}
		}

		if best < 0 {
			result.Unmatched++
			continue
		}
		free.claim(best)
		result.Pairs = append(result.Pairs, AlignedPair[R, G]{
			Reference: ref,
			Ground:    ground[best],
			Offset:    t.Sub(ground[best].At()),
		})
	}
	return result, nil
}

func compareInstant[T Timestamped](a, b T) int {
	return a.At().Compare(b.At())
}

// freeList tracks unclaimed indexes in [0, n). nxt[i] points towards the
// smallest unclaimed index >= i (n when none); prv is shifted by one so that
// slot 0 stands for "none" and prv[i+1] points towards the largest unclaimed
// index <= i.
type freeList struct {
	nxt []int
	prv []int
}

func newFreeList(n int) *freeList {
	f := &freeList{nxt: make([]int, n+1), prv: make([]int, n+1)}
	for i := range f.nxt {
		f.nxt[i] = i
		f.prv[i] = i
	}
	return f
}

// next returns the smallest unclaimed index >= i, or n.
func (f *freeList) next(i int) int {
	return find(f.nxt, i)
}

// prev returns the largest unclaimed index <= i, or -1.
func (f *freeList) prev(i int) int {
	return find(f.prv, i+1) - 1
}

func (f *freeList) claim(i int) {
	f.nxt[i] = i + 1
	f.prv[i+1] = i
}

func find(parent []int, i int) int {
	root := i
	for parent[root] != root {
		root = parent[root]
	}
	for parent[i] != root {
		parent[i], i = root, parent[i]
	}
	return root
}

package domain

import (
	"math/rand/v2"
	"strconv"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var alignBase = time.Date(2023, 11, 1, 17, 0, 0, 0, time.UTC)

type tick struct {
	ID string
	T  time.Time
}

func (k tick) At() time.Time { return k.T }

func tk(id string, offset time.Duration) tick {
	return tick{ID: id, T: alignBase.Add(offset)}
}

func pairIDs(r AlignResult[tick, tick]) [][2]string {
	out := make([][2]string, 0, len(r.Pairs))
	for _, p := range r.Pairs {
		out = append(out, [2]string{p.Reference.ID, p.Ground.ID})
	}
	return out
}

func TestAlign(t *testing.T) {
	tests := []struct {
		name      string
		reference []tick
		ground    []tick
		tolerance time.Duration
		want      [][2]string
		unmatched int
	}{
		{
			name:      "exact match",
			reference: []tick{tk("r1", 0)},
			ground:    []tick{tk("g1", 0)},
			tolerance: DefaultTolerance,
			want:      [][2]string{{"r1", "g1"}},
		},
		{
			name:      "offset equal to tolerance is accepted",
			reference: []tick{tk("r1", 0)},
			ground:    []tick{tk("g1", 300*time.Second)},
			tolerance: DefaultTolerance,
			want:      [][2]string{{"r1", "g1"}},
		},
		{
			name:      "offset just past tolerance is rejected",
			reference: []tick{tk("r1", 0)},
			ground:    []tick{tk("g1", 300*time.Second+time.Millisecond)},
			tolerance: DefaultTolerance,
			want:      [][2]string{},
			unmatched: 1,
		},
		{
			name:      "reference with no ground in range is counted not emitted",
			reference: []tick{tk("r1", 0), tk("r2", time.Hour), tk("r3", 2*time.Hour)},
			ground:    []tick{tk("g1", 10*time.Second), tk("g2", 2*time.Hour-time.Second)},
			tolerance: DefaultTolerance,
			want:      [][2]string{{"r1", "g1"}, {"r3", "g2"}},
			unmatched: 1,
		},
		{
			name:      "nearest wins",
			reference: []tick{tk("r1", 100*time.Second)},
			ground:    []tick{tk("g1", 0), tk("g2", 90*time.Second), tk("g3", 120*time.Second)},
			tolerance: DefaultTolerance,
			want:      [][2]string{{"r1", "g2"}},
		},
		{
			name:      "tie goes to the earlier ground element",
			reference: []tick{tk("r1", 10*time.Second)},
			ground:    []tick{tk("g1", 5*time.Second), tk("g2", 15*time.Second)},
			tolerance: DefaultTolerance,
			want:      [][2]string{{"r1", "g1"}},
		},
		{
			name:      "ground element is claimed once",
			reference: []tick{tk("r1", 0), tk("r2", time.Second)},
			ground:    []tick{tk("g1", 0)},
			tolerance: DefaultTolerance,
			want:      [][2]string{{"r1", "g1"}},
			unmatched: 1,
		},
		{
			name:      "claimed element is skipped for the next nearest",
			reference: []tick{tk("r1", 10*time.Second), tk("r2", 11*time.Second)},
			ground:    []tick{tk("g1", 0), tk("g2", 10*time.Second), tk("g3", 30*time.Second)},
			tolerance: DefaultTolerance,
			want:      [][2]string{{"r1", "g2"}, {"r2", "g1"}},
		},
		{
			name:      "equal ground instants claimed in order",
			reference: []tick{tk("r1", 5*time.Second), tk("r2", 5*time.Second), tk("r3", 5*time.Second)},
			ground:    []tick{tk("g1", 0), tk("g2", 0), tk("g3", 0)},
			tolerance: DefaultTolerance,
			want:      [][2]string{{"r1", "g1"}, {"r2", "g2"}, {"r3", "g3"}},
		},
		{
			name:      "zero tolerance",
			reference: []tick{tk("r1", 0), tk("r2", time.Second)},
			ground:    []tick{tk("g1", 0), tk("g2", 2*time.Second)},
			tolerance: 0,
			want:      [][2]string{{"r1", "g1"}},
			unmatched: 1,
		},
		{
			name:      "empty ground",
			reference: []tick{tk("r1", 0)},
			tolerance: DefaultTolerance,
			want:      [][2]string{},
			unmatched: 1,
		},
		{
			name:      "empty reference",
			ground:    []tick{tk("g1", 0)},
			tolerance: DefaultTolerance,
			want:      [][2]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Align(tt.reference, tt.ground, tt.tolerance)
			require.NoError(t, err)
			assert.Equal(t, tt.want, pairIDs(got))
			assert.Equal(t, tt.unmatched, got.Unmatched)
			assert.Equal(t, len(tt.reference), len(got.Pairs)+got.Unmatched)
		})
	}
}

func TestAlign_Offset(t *testing.T) {
	got, err := Align([]tick{tk("r1", 0)}, []tick{tk("g1", 90*time.Second)}, DefaultTolerance)
	require.NoError(t, err)
	require.Len(t, got.Pairs, 1)
	assert.Equal(t, -90*time.Second, got.Pairs[0].Offset)
}

func TestAlign_InvalidInput(t *testing.T) {
	sorted := []tick{tk("a", 0), tk("b", time.Second)}
	unsorted := []tick{tk("b", time.Second), tk("a", 0)}

	_, err := Align(unsorted, sorted, DefaultTolerance)
	require.ErrorIs(t, err, ErrUnsortedInput)

	_, err = Align(sorted, unsorted, DefaultTolerance)
	require.ErrorIs(t, err, ErrUnsortedInput)

	_, err = Align(sorted, sorted, -time.Second)
	require.Error(t, err)
}

func TestAlign_Deterministic(t *testing.T) {
	reference := []tick{tk("r1", 0), tk("r2", 7*time.Second), tk("r3", 7*time.Second), tk("r4", 20*time.Second)}
	ground := []tick{tk("g1", 3*time.Second), tk("g2", 7*time.Second), tk("g3", 11*time.Second), tk("g4", 25*time.Second)}

	first, err := Align(reference, ground, 10*time.Second)
	require.NoError(t, err)
	second, err := Align(reference, ground, 10*time.Second)
	require.NoError(t, err)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("alignment not deterministic (-first +second):\n%s", diff)
	}
}

// bruteForceAlign is the quadratic reference for Align: each reference element
// scans every unclaimed ground element and keeps the first strictly closer one.
func bruteForceAlign(reference, ground []tick, tolerance time.Duration) AlignResult[tick, tick] {
	claimed := make([]bool, len(ground))
	result := AlignResult[tick, tick]{Pairs: []AlignedPair[tick, tick]{}}
	for _, ref := range reference {
		best := -1
		var bestDiff time.Duration
		for j, g := range ground {
			if claimed[j] {
				continue
			}
			d := ref.T.Sub(g.T)
			if d < 0 {
				d = -d
			}
			if d > tolerance {
				continue
			}
			if best < 0 || d < bestDiff {
				best, bestDiff = j, d
			}
		}
		if best < 0 {
			result.Unmatched++
			continue
		}
		claimed[best] = true
		result.Pairs = append(result.Pairs, AlignedPair[tick, tick]{
			Reference: ref,
			Ground:    ground[best],
			Offset:    ref.T.Sub(ground[best].T),
		})
	}
	return result
}

func randomTicks(r *rand.Rand, prefix string, n, span int) []tick {
	out := make([]tick, n)
	for i := range out {
		out[i] = tk(prefix+strconv.Itoa(i), time.Duration(r.IntN(span))*time.Second)
	}
	SortByInstant(out)
	return out
}

func TestAlign_MatchesBruteForce(t *testing.T) {
	r := rand.New(rand.NewPCG(42, 7))
	for round := 0; round < 200; round++ {
		reference := randomTicks(r, "r", r.IntN(30), 120)
		ground := randomTicks(r, "g", r.IntN(30), 120)
		tolerance := time.Duration(r.IntN(15)) * time.Second

		got, err := Align(reference, ground, tolerance)
		require.NoError(t, err)
		want := bruteForceAlign(reference, ground, tolerance)

		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("round %d tolerance %s (-brute +fast):\n%s", round, tolerance, diff)
		}
	}
}

func TestSortByInstant_Stable(t *testing.T) {
	xs := []tick{tk("c", time.Second), tk("a", 0), tk("d", time.Second), tk("b", 0)}
	SortByInstant(xs)
	ids := make([]string, len(xs))
	for i, x := range xs {
		ids[i] = x.ID
	}
	assert.Equal(t, []string{"a", "b", "c", "d"}, ids)
}

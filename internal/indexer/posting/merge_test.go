package posting

import (
	"cmp"
	"errors"
	"math/rand"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ints(values ...int) Iterator[int] {
	return FromSlice(values)
}

func TestMergeZeroInputs(t *testing.T) {
	got, err := Collect(Merge(cmp.Compare[int]))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMergeSingleInput(t *testing.T) {
	got, err := Collect(Merge(cmp.Compare[int], ints(1, 2, 2, 7)))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 2, 7}, got)
}

func TestMergeManyInputsWithEmptiesAndDuplicates(t *testing.T) {
	got, err := Collect(Merge(cmp.Compare[int],
		ints(),
		ints(1, 4, 9),
		ints(4, 4, 5),
		ints(),
		ints(0, 9, 10),
	))
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 4, 4, 4, 5, 9, 9, 10}, got)
}

func TestMergeRandomRunsMatchesSort(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 50; trial++ {
		var all []int
		var inputs []Iterator[int]
		for k := rng.Intn(8); k >= 0; k-- {
			run := make([]int, rng.Intn(20))
			for i := range run {
				run[i] = rng.Intn(30)
			}
			slices.Sort(run)
			all = append(all, run...)
			inputs = append(inputs, FromSlice(run))
		}
		slices.Sort(all)

		got, err := Collect(Merge(cmp.Compare[int], inputs...))
		require.NoError(t, err)
		if len(all) == 0 {
			assert.Empty(t, got)
			continue
		}
		assert.Equal(t, all, got)
	}
}

func TestMergePostingsGlobalOrder(t *testing.T) {
	a := []Posting{
		{Field: "content", Term: "apple", DocNum: 1, Weight: 1},
		{Field: "content", Term: "bear", DocNum: 0, Weight: 2},
		{Field: "title", Term: "apple", DocNum: 3, Weight: 1},
	}
	b := []Posting{
		{Field: "content", Term: "apple", DocNum: 0, Weight: 1},
		{Field: "content", Term: "apple", DocNum: 2, Weight: 1},
		{Field: "title", Term: "zebra", DocNum: 0, Weight: 1},
	}
	got, err := Collect(MergePostings(FromSlice(a), FromSlice(b)))
	require.NoError(t, err)
	require.Len(t, got, 6)
	assert.True(t, slices.IsSortedFunc(got, Compare))
	assert.Equal(t, uint32(0), got[0].DocNum)
	assert.Equal(t, "bear", got[3].Term)
}

type failingIterator struct {
	Iterator[int]
	err    error
	closed bool
}

func (f *failingIterator) Next() bool {
	if f.Iterator.Next() {
		return true
	}
	return false
}

func (f *failingIterator) Err() error { return f.err }

func (f *failingIterator) Close() error {
	f.closed = true
	return nil
}

func TestMergeSurfacesInputErrorAndClosesInputs(t *testing.T) {
	boom := errors.New("run read failed")
	bad := &failingIterator{Iterator: ints(2), err: boom}
	good := &failingIterator{Iterator: ints(1, 3, 5)}

	it := Merge(cmp.Compare[int], good, bad)
	var got []int
	for it.Next() {
		got = append(got, it.Item())
	}
	assert.ErrorIs(t, it.Err(), boom)
	assert.Equal(t, []int{1, 2}, got)

	require.NoError(t, it.Close())
	assert.True(t, bad.closed)
	assert.True(t, good.closed)
}

func TestCompareTieBreaks(t *testing.T) {
	base := Posting{Field: "f", Term: "t", DocNum: 1, Weight: 1, Payload: []byte{1}}

	other := base
	other.Weight = 2
	assert.Negative(t, Compare(base, other))

	other = base
	other.Payload = []byte{2}
	assert.Negative(t, Compare(base, other))

	other = base
	other.Field = "e"
	other.DocNum = 0
	assert.Positive(t, Compare(base, other))
	assert.Zero(t, Compare(base, base))
}

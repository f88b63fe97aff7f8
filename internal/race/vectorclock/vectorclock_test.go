package vectorclock

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kolkov/raceverify/internal/race/event"
)

func TestGetMissingThreadReadsZero(t *testing.T) {
	vc := New()
	require.Equal(t, event.Clock(0), vc.Get(42))
}

func TestIncrementIsMonotonic(t *testing.T) {
	vc := New()
	const tid = event.ThreadID(3)
	for i := 1; i <= 10; i++ {
		vc.Increment(tid)
		require.Equal(t, event.Clock(i), vc.Get(tid))
	}
}

func TestJoinIsPointwiseMax(t *testing.T) {
	a := New()
	a.Set(1, 5)
	a.Set(2, 1)

	b := New()
	b.Set(1, 3)
	b.Set(2, 7)
	b.Set(3, 2)

	a.Join(b)
	require.Equal(t, event.Clock(5), a.Get(1))
	require.Equal(t, event.Clock(7), a.Get(2))
	require.Equal(t, event.Clock(2), a.Get(3))

	// b is untouched.
	require.Equal(t, event.Clock(3), b.Get(1))
}

func TestHappensBeforeIsStrict(t *testing.T) {
	a := New()
	a.Set(1, 2)
	b := New()
	b.Set(1, 2)

	// Equal clocks are not ordered.
	require.False(t, a.HappensBefore(b))
	require.False(t, b.HappensBefore(a))

	b.Increment(2)
	require.True(t, a.HappensBefore(b))
	require.False(t, b.HappensBefore(a))
}

func TestHappensBeforeIncomparable(t *testing.T) {
	a := New()
	a.Set(1, 2)
	b := New()
	b.Set(2, 2)

	require.False(t, a.HappensBefore(b))
	require.False(t, b.HappensBefore(a))
}

func TestHappensBeforeEmptyPrecedesNonEmpty(t *testing.T) {
	a := New()
	b := New()
	b.Set(1, 1)
	require.True(t, a.HappensBefore(b))
	require.False(t, b.HappensBefore(a))
	// Two empty clocks are equal, not ordered.
	require.False(t, New().HappensBefore(New()))
}

func TestSetZeroErasesEntry(t *testing.T) {
	a := New()
	a.Set(1, 4)
	a.Set(1, 0)
	require.True(t, a.Equal(New()))
}

func TestCloneIsDeep(t *testing.T) {
	a := New()
	a.Set(1, 4)
	c := a.Clone()
	c.Increment(1)
	require.Equal(t, event.Clock(4), a.Get(1))
	require.Equal(t, event.Clock(5), c.Get(1))
}

func TestAssignAndClear(t *testing.T) {
	a := New()
	a.Set(1, 4)
	b := New()
	b.Assign(a)
	require.True(t, a.Equal(b))

	a.Clear()
	require.Equal(t, event.Clock(0), a.Get(1))
	require.Equal(t, event.Clock(4), b.Get(1))
}

func TestStringIsSorted(t *testing.T) {
	a := New()
	a.Set(10, 1)
	a.Set(2, 3)
	a.Set(7, 2)
	require.Equal(t, "{2:3, 7:2, 10:1}", a.String())
	require.Equal(t, "{}", New().String())
}

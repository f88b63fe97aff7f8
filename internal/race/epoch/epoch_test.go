package epoch

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kolkov/raceverify/internal/race/event"
	"github.com/kolkov/raceverify/internal/race/vectorclock"
)

func TestNewDecodeRoundTrip(t *testing.T) {
	e := New(7, 1234)
	tid, clk := e.Decode()
	require.Equal(t, event.ThreadID(7), tid)
	require.Equal(t, event.Clock(1234), clk)
	require.Equal(t, event.ThreadID(7), e.Thread())
	require.Equal(t, event.Clock(1234), e.Clock())
}

func TestHappensBefore(t *testing.T) {
	vc := vectorclock.New()
	vc.Set(2, 10)

	require.True(t, New(2, 9).HappensBefore(vc))
	require.True(t, New(2, 10).HappensBefore(vc))
	require.False(t, New(2, 11).HappensBefore(vc))

	// A thread the observer never synchronized with reads as 0.
	require.False(t, New(3, 1).HappensBefore(vc))
	require.True(t, New(3, 0).HappensBefore(vc))
}

func TestString(t *testing.T) {
	require.Equal(t, "42@5", New(5, 42).String())
	require.Equal(t, "0@0", Epoch(0).String())
}

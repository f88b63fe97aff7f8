package region

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddContainsRemoveRoundTrip(t *testing.T) {
	f := NewFilter()

	require.False(t, f.Contains(0x1000))

	f.Add(0x1000, 64)
	require.True(t, f.Contains(0x1000))
	require.True(t, f.Contains(0x103f))
	require.False(t, f.Contains(0x1040))
	require.False(t, f.Contains(0xfff))

	require.Equal(t, uint64(64), f.Remove(0x1000))
	require.False(t, f.Contains(0x1000))
}

func TestRemoveUnknownAddress(t *testing.T) {
	f := NewFilter()
	require.Equal(t, uint64(0), f.Remove(0x2000))
}

func TestDisjointRegions(t *testing.T) {
	f := NewFilter()
	f.Add(0x1000, 16)
	f.Add(0x2000, 16)
	f.Add(0x3000, 16)

	require.Equal(t, 3, f.Len())
	require.True(t, f.Contains(0x2008))
	require.False(t, f.Contains(0x1800))

	// Removing the middle region leaves its neighbors intact.
	require.Equal(t, uint64(16), f.Remove(0x2000))
	require.False(t, f.Contains(0x2008))
	require.True(t, f.Contains(0x1008))
	require.True(t, f.Contains(0x3008))
}

func TestReAddReplacesStaleInterval(t *testing.T) {
	f := NewFilter()
	f.Add(0x1000, 64)
	f.Add(0x1000, 8)
	require.True(t, f.Contains(0x1004))
	require.False(t, f.Contains(0x1010))
	require.Equal(t, uint64(8), f.Remove(0x1000))
}

func TestZeroSizeIsIgnored(t *testing.T) {
	f := NewFilter()
	f.Add(0x1000, 0)
	require.Equal(t, 0, f.Len())
	require.False(t, f.Contains(0x1000))
}

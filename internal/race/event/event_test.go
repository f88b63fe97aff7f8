package event

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestThreadIDValid(t *testing.T) {
	require.False(t, InvalidThreadID.Valid())
	require.True(t, ThreadID(1).Valid())
}

func TestAddrAlignment(t *testing.T) {
	require.Equal(t, Addr(0x1000), Addr(0x1003).AlignDown(4))
	require.Equal(t, Addr(0x1000), Addr(0x1000).AlignDown(4))
	require.Equal(t, Addr(0x1004), Addr(0x1001).AlignUp(4))
	require.Equal(t, Addr(0x1000), Addr(0x1000).AlignUp(4))
}

func TestAccessKind(t *testing.T) {
	require.Equal(t, "read", Read.String())
	require.Equal(t, "write", Write.String())
	require.Equal(t, "atomic", Atomic.String())

	require.False(t, Read.IsWrite())
	require.True(t, Write.IsWrite())
	require.True(t, Atomic.IsWrite())
}

func TestRaces(t *testing.T) {
	require.False(t, Races(Read, Read))
	require.True(t, Races(Read, Write))
	require.True(t, Races(Write, Read))
	require.True(t, Races(Write, Write))
	require.True(t, Races(Atomic, Read))
}

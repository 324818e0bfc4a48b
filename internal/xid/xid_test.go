package xid

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDisabledXidNotValid(t *testing.T) {
	require.False(t, DisabledXid.Valid())
	require.True(t, Xid(1).Valid())
}

func TestGeneratorMonotonic(t *testing.T) {
	g := NewGenerator(DisabledXid)
	a := g.Next()
	b := g.Next()
	require.True(t, a.Valid())
	require.Less(t, uint32(a), uint32(b))
}

func TestGeneratorNeverYieldsDisabled(t *testing.T) {
	g := NewGenerator(Xid(0xFFFFFFFE))
	for i := 0; i < 4; i++ {
		require.True(t, g.Next().Valid())
	}
}

func TestCidBounds(t *testing.T) {
	require.Equal(t, Cid(0), FirstCid)
	require.Equal(t, Cid(0xFFFF), MaxCid)
}

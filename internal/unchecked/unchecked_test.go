package unchecked

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gonano/nanod/internal/nanotype"
)

func TestPutAndRelease(t *testing.T) {
	m := New(10)
	dep := nanotype.Hash{1}
	b := nanotype.NewBlock(nanotype.BlockTypeState, dep, nanotype.Account{2}, nanotype.Account{2},
		nanotype.AmountFromUint64(1), nanotype.ZeroHash, [64]byte{}, 0)
	m.Put(dep, b, nanotype.SourceLive)
	require.Equal(t, 1, m.Len())

	staged := m.Peek(dep)
	require.Len(t, staged, 1)
	require.Equal(t, 1, m.Len(), "peek must not remove")

	released := m.Release(dep)
	require.Len(t, released, 1)
	require.Equal(t, 0, m.Len())
	require.Empty(t, m.Peek(dep))
}

func TestCapacityEviction(t *testing.T) {
	m := New(2)
	h1, h2, h3 := nanotype.Hash{1}, nanotype.Hash{2}, nanotype.Hash{3}
	mk := func(h nanotype.Hash) *nanotype.Block {
		return nanotype.NewBlock(nanotype.BlockTypeState, h, nanotype.Account{9}, nanotype.Account{9},
			nanotype.AmountFromUint64(1), nanotype.ZeroHash, [64]byte{}, 0)
	}
	m.Put(h1, mk(h1), nanotype.SourceLive)
	m.Put(h2, mk(h2), nanotype.SourceLive)
	require.Equal(t, 2, m.Len())

	m.Put(h3, mk(h3), nanotype.SourceLive)
	require.Equal(t, 2, m.Len(), "capacity must not be exceeded")
	require.Empty(t, m.Peek(h1), "oldest entry should have been evicted")
	require.NotEmpty(t, m.Peek(h3))
}

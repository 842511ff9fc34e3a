package fairqueue

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPushRespectsMaxSize(t *testing.T) {
	q := New[int, string, string](1)
	q.SetMaxSize("live", 2)

	require.True(t, q.Push(1, "live", "live"))
	require.True(t, q.Push(2, "live", "live"))
	require.False(t, q.Push(3, "live", "live"), "push past max_size must fail, not evict")
	require.Equal(t, 2, q.Len())
}

func TestPopNextIsFIFOWithinOrigin(t *testing.T) {
	q := New[int, string, string](1)
	q.Push(1, "live", "chan-a")
	q.Push(2, "live", "chan-a")

	v, _, _, ok := q.PopNext()
	require.True(t, ok)
	require.Equal(t, 1, v)

	v, _, _, ok = q.PopNext()
	require.True(t, ok)
	require.Equal(t, 2, v)

	_, _, _, ok = q.PopNext()
	require.False(t, ok)
}

func TestPopNextWeightsByPriority(t *testing.T) {
	q := New[string, string, string](1)
	q.SetPriority("local", 16)
	q.SetPriority("bootstrap", 1)

	for i := 0; i < 100; i++ {
		q.Push("x", "local", "local")
		q.Push("x", "bootstrap", "bootstrap")
	}

	localCount, bootstrapCount := 0, 0
	for i := 0; i < 100; i++ {
		_, source, _, ok := q.PopNext()
		require.True(t, ok)
		switch source {
		case "local":
			localCount++
		case "bootstrap":
			bootstrapCount++
		}
	}
	require.Greater(t, localCount, bootstrapCount,
		"higher-priority origin must be served proportionally more often")
}

func TestLenByAndRemoveBy(t *testing.T) {
	q := New[int, string, string](1)
	q.Push(1, "live", "chan-a")
	q.Push(2, "bootstrap", "chan-a")
	q.Push(3, "live", "chan-b")

	require.Equal(t, 2, q.LenBy("live"))
	require.Equal(t, 1, q.LenBy("bootstrap"))

	removed := q.RemoveBy("chan-a")
	require.Len(t, removed, 2)
	require.Equal(t, 1, q.Len())
	require.Equal(t, 1, q.LenBy("live"))
	require.Equal(t, 0, q.LenBy("bootstrap"))
}

func TestClear(t *testing.T) {
	q := New[int, string, string](1)
	q.Push(1, "live", "chan-a")
	q.Clear()
	require.Equal(t, 0, q.Len())
	_, _, _, ok := q.PopNext()
	require.False(t, ok)
}

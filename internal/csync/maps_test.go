package csync

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMap(t *testing.T) {
	t.Parallel()

	m := NewMap[string, int]()
	m.Set("a", 1)
	m.Set("b", 2)

	v, ok := m.Get("a")
	require.True(t, ok)
	require.Equal(t, 1, v)
	require.Equal(t, 2, m.Len())

	m.Del("a")
	_, ok = m.Get("a")
	require.False(t, ok)
	v, ok = m.Get("b")
	require.True(t, ok)
	require.Equal(t, 2, v)
}

func TestMapDeleteFunc(t *testing.T) {
	t.Parallel()

	m := NewMap[string, int]()
	m.Set("a", 1)
	m.Set("b", 2)
	m.Set("c", 3)
	removed := m.DeleteFunc(func(_ string, v int) bool { return v%2 == 1 })
	require.Equal(t, 2, removed)
	require.Equal(t, 1, m.Len())

	m.Reset()
	require.Zero(t, m.Len())
}

func TestMapConcurrentAccess(t *testing.T) {
	t.Parallel()

	m := NewMap[int, int]()
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Set(i, i)
			_, _ = m.Get(i)
		}()
	}
	wg.Wait()
	require.Equal(t, 50, m.Len())
}

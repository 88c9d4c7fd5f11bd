package handle

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAssignsIncreasingIDsUntilFull(t *testing.T) {
	tbl := New[string](4)

	var last ID
	for i := 0; i < 4; i++ {
		id, err := tbl.Register("r")
		require.NoError(t, err)
		assert.Equal(t, ID(i+1), id)
		assert.Greater(t, id, last)
		last = id
	}

	id, err := tbl.Register("overflow")
	assert.ErrorIs(t, err, ErrFull)
	assert.Equal(t, Invalid, id)
	assert.Equal(t, 4, tbl.Len())
}

func TestLookupRejectsUnknownIDs(t *testing.T) {
	tbl := New[string](8)
	id, err := tbl.Register("a")
	require.NoError(t, err)

	v, err := tbl.Lookup(id)
	require.NoError(t, err)
	assert.Equal(t, "a", v)

	for _, bad := range []ID{0, -1, 2, 8, 9, 1 << 40} {
		_, err := tbl.Lookup(bad)
		assert.ErrorIs(t, err, ErrNotFound, "id %d", bad)
	}
}

func TestReleaseRejectsStaleIDs(t *testing.T) {
	tbl := New[string](2)
	a, _ := tbl.Register("a")
	b, _ := tbl.Register("b")

	v, err := tbl.Release(a)
	require.NoError(t, err)
	assert.Equal(t, "a", v)

	_, err = tbl.Lookup(a)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = tbl.Release(a)
	assert.ErrorIs(t, err, ErrNotFound)

	c, err := tbl.Register("c")
	require.NoError(t, err)
	assert.Equal(t, ID(3), c, "slot 0 reused with generation 1")
	assert.NotEqual(t, a, c)

	got, err := tbl.Lookup(c)
	require.NoError(t, err)
	assert.Equal(t, "c", got)
	got, err = tbl.Lookup(b)
	require.NoError(t, err)
	assert.Equal(t, "b", got)
}

func TestReleasedSlotsAreReusedOldestFirst(t *testing.T) {
	tbl := New[int](3)
	ids := make([]ID, 3)
	for i := range ids {
		ids[i], _ = tbl.Register(i)
	}
	_, _ = tbl.Release(ids[2])
	_, _ = tbl.Release(ids[0])

	next, err := tbl.Register(10)
	require.NoError(t, err)
	assert.Equal(t, ID(3+3), next, "slot 2 released first")
}

func TestIDsAreNeverReissued(t *testing.T) {
	tbl := New[int](1)
	seen := map[ID]bool{}
	for i := 0; i < 100; i++ {
		id, err := tbl.Register(i)
		require.NoError(t, err)
		require.False(t, seen[id], "id %d reissued", id)
		seen[id] = true
		_, err = tbl.Release(id)
		require.NoError(t, err)
	}
}

func TestExhaustedGenerationRetiresSlot(t *testing.T) {
	tbl := New[int](1)
	tbl.maxGen = 1

	a, _ := tbl.Register(1)
	_, _ = tbl.Release(a)
	a2, err := tbl.Register(2)
	require.NoError(t, err)
	assert.Equal(t, ID(2), a2)
	_, err = tbl.Release(a2)
	require.NoError(t, err)

	_, err = tbl.Register(3)
	assert.ErrorIs(t, err, ErrFull, "slot retired after its last generation")
	_, err = tbl.Lookup(a2)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRangeVisitsLiveEntries(t *testing.T) {
	tbl := New[string](4)
	a, _ := tbl.Register("a")
	_, _ = tbl.Register("b")
	c, _ := tbl.Register("c")
	_, _ = tbl.Release(a)

	var got []string
	tbl.Range(func(id ID, v string) bool {
		got = append(got, v)
		return true
	})
	assert.Equal(t, []string{"b", "c"}, got)

	var first ID
	tbl.Range(func(id ID, v string) bool {
		first = id
		return false
	})
	assert.Equal(t, ID(2), first)
	assert.True(t, tbl.Contains(c))
}

func TestConcurrentRegisterRelease(t *testing.T) {
	tbl := New[int](64)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				id, err := tbl.Register(i)
				if err != nil {
					continue
				}
				if _, err := tbl.Lookup(id); err != nil {
					t.Errorf("lookup %d: %v", id, err)
				}
				_, _ = tbl.Release(id)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, tbl.Len())
}

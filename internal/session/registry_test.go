package session

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_PutGetRemove(t *testing.T) {
	r := NewRegistry()
	s := newSession("1", &fakeConn{})

	_, ok := r.Get("1")
	assert.False(t, ok)

	r.Put("1", s)
	r.SetCode("1", "CODE")

	got, ok := r.Get("1")
	require.True(t, ok)
	assert.Same(t, s, got)

	r.Remove("1")
	_, ok = r.Get("1")
	assert.False(t, ok)
	_, ok = r.GetCode("1")
	assert.False(t, ok, "remove must drop the cached code too")
}

func TestRegistry_CodeOverwriteKeepsLatest(t *testing.T) {
	r := NewRegistry()
	r.SetCode("1", "first")
	r.SetCode("1", "second")

	code, ok := r.GetCode("1")
	require.True(t, ok)
	assert.Equal(t, "second", code)

	r.ClearCode("1")
	_, ok = r.GetCode("1")
	assert.False(t, ok)
}

func TestRegistry_CompareAndAct(t *testing.T) {
	r := NewRegistry()
	old := newSession("1", &fakeConn{})
	current := newSession("1", &fakeConn{})
	r.Put("1", current)

	assert.False(t, r.SetCodeFor("1", old, "STALE"))
	_, ok := r.GetCode("1")
	assert.False(t, ok)

	assert.True(t, r.SetCodeFor("1", current, "FRESH"))
	assert.False(t, r.ClearCodeFor("1", old))
	code, _ := r.GetCode("1")
	assert.Equal(t, "FRESH", code)

	assert.False(t, r.RemoveIfCurrent("1", old))
	_, ok = r.Get("1")
	assert.True(t, ok)

	assert.True(t, r.ClearCodeFor("1", current))
	assert.True(t, r.RemoveIfCurrent("1", current))
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_IDsSorted(t *testing.T) {
	r := NewRegistry()
	for _, id := range []string{"3", "1", "2"} {
		r.Put(id, newSession(id, &fakeConn{}))
	}
	assert.Equal(t, []string{"1", "2", "3"}, r.IDs())
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprint(i)
			r.Put(id, newSession(id, &fakeConn{}))
			r.SetCode(id, "c")
			r.Get(id)
			r.GetCode(id)
			r.IDs()
			r.Remove(id)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 0, r.Len())
}

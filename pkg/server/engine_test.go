package server

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/filemq/internal/dir"
	"github.com/marmos91/filemq/internal/file"
)

// ============================================================================
// Registry
// ============================================================================

func TestRegistryHandles(t *testing.T) {
	var r registry
	a, b := &client{}, &client{}
	ha := r.add(a)
	hb := r.add(b)
	assert.Equal(t, 2, r.len())
	assert.Same(t, a, r.get(ha))
	assert.Same(t, b, r.get(hb))

	r.remove(ha)
	assert.Nil(t, r.get(ha))
	assert.Equal(t, 1, r.len())

	c := &client{}
	hc := r.add(c)
	assert.Equal(t, ha.index, hc.index, "slot is reused")
	assert.NotEqual(t, ha.generation, hc.generation)
	assert.Nil(t, r.get(ha), "stale handle stays invalid")
	assert.Same(t, c, r.get(hc))
}

func TestRegistryRemoveDuringIteration(t *testing.T) {
	var r registry
	clients := []*client{{}, {}, {}}
	for _, c := range clients {
		r.add(c)
	}

	var visited []*client
	r.each(func(c *client) {
		visited = append(visited, c)
		r.remove(c.handle)
	})
	assert.Equal(t, clients, visited)
	assert.Equal(t, 0, r.len())
	for _, c := range clients {
		assert.Nil(t, r.get(c.handle))
	}
}

func TestRegistryHidesTerminated(t *testing.T) {
	var r registry
	c := &client{}
	h := r.add(c)
	c.terminated = true
	assert.Nil(t, r.get(h))

	visited := 0
	r.each(func(*client) { visited++ })
	assert.Zero(t, visited)
}

// ============================================================================
// Subscriptions
// ============================================================================

func TestCovers(t *testing.T) {
	tests := []struct {
		prefix, name string
		want         bool
	}{
		{"/", "/anything", true},
		{"/photos", "/photos", true},
		{"/photos", "/photos/a.jpg", true},
		{"/photos", "/photosx/a.jpg", false},
		{"/photos/2024", "/photos", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, covers(tt.prefix, tt.name), "%s covers %s", tt.prefix, tt.name)
	}
}

func TestSubscriptionCoalescing(t *testing.T) {
	m := &mount{alias: "/"}
	h := handle{index: 1}
	other := handle{index: 2}

	narrow := m.subscribe(h, "/photos/2024", nil)
	m.subscribe(other, "/photos/2024", nil)
	require.Len(t, m.subs, 2)

	t.Run("CoveredRequestIsNoop", func(t *testing.T) {
		got := m.subscribe(h, "/photos/2024/june", nil)
		assert.Same(t, narrow, got)
		assert.Len(t, m.subs, 2)
	})

	t.Run("GeneralizingReplaces", func(t *testing.T) {
		wide := m.subscribe(h, "/photos/", nil)
		assert.Equal(t, "/photos", wide.path)
		require.Len(t, m.subs, 2)
		assert.Equal(t, other, m.subs[0].client, "other clients keep theirs")
		assert.Same(t, wide, m.subs[1])
	})

	t.Run("Purge", func(t *testing.T) {
		m.purge(h)
		require.Len(t, m.subs, 1)
		assert.Equal(t, other, m.subs[0].client)
	})
}

func TestSubscriptionCacheKeys(t *testing.T) {
	sub := newSubscription(handle{}, "/photos", map[string]string{
		"a.jpg":         "AA",
		"/photos/b.jpg": "BB",
		"/other//c.jpg": "CC",
	})
	assert.Equal(t, map[string]string{
		"/photos/a.jpg": "AA",
		"/photos/b.jpg": "BB",
		"/other/c.jpg":  "CC",
	}, sub.cache)
}

func TestSubscriptionWants(t *testing.T) {
	pub := t.TempDir()
	writeAged(t, filepath.Join(pub, "a.txt"), "abc")
	rec := file.New(filepath.Join(pub, "a.txt"))
	create := dir.NewPatch(pub, rec, dir.Create, "/")
	del := dir.NewPatch(pub, rec, dir.Delete, "/")

	t.Run("SameDigestSkipped", func(t *testing.T) {
		sub := newSubscription(handle{}, "/", map[string]string{"a.txt": "a9993e364706816aba3e25717850c26c9cd0d89d"})
		assert.False(t, sub.wants(create))
		assert.Contains(t, sub.cache, "/a.txt")
	})

	t.Run("DifferentDigestSentAndForgotten", func(t *testing.T) {
		sub := newSubscription(handle{}, "/", map[string]string{"a.txt": "0000"})
		assert.True(t, sub.wants(create))
		assert.NotContains(t, sub.cache, "/a.txt")
	})

	t.Run("DeleteForgets", func(t *testing.T) {
		sub := newSubscription(handle{}, "/", map[string]string{"a.txt": "a9993e364706816aba3e25717850c26c9cd0d89d"})
		assert.True(t, sub.wants(del))
		assert.Empty(t, sub.cache)
	})

	t.Run("Uncached", func(t *testing.T) {
		sub := newSubscription(handle{}, "/", nil)
		assert.True(t, sub.wants(create))
	})
}

// ============================================================================
// Client queue
// ============================================================================

func TestQueueOnePatchPerPath(t *testing.T) {
	pub := t.TempDir()
	writeAged(t, filepath.Join(pub, "a.txt"), "a")
	writeAged(t, filepath.Join(pub, "b.txt"), "b")
	a := file.New(filepath.Join(pub, "a.txt"))
	b := file.New(filepath.Join(pub, "b.txt"))

	c := &client{}
	c.enqueue(dir.NewPatch(pub, a, dir.Create, "/"))
	c.enqueue(dir.NewPatch(pub, b, dir.Create, "/"))
	c.enqueue(dir.NewPatch(pub, a, dir.Delete, "/"))

	require.Len(t, c.queue, 2)
	first := c.pop()
	assert.Equal(t, "/b.txt", first.Virtual())
	second := c.pop()
	assert.Equal(t, "/a.txt", second.Virtual())
	assert.Equal(t, dir.Delete, second.Op(), "the newer patch replaces the queued one")
	assert.Nil(t, c.pop())
}

// ============================================================================
// Transition table
// ============================================================================

func TestTransitionTable(t *testing.T) {
	tests := []struct {
		state state
		event event
		ok    bool
		next  state
	}{
		{stateStart, eventHello, true, stateChecking},
		{stateStart, eventSubscribe, false, 0},
		{stateChecking, eventMaybe, true, stateChallenging},
		{stateChallenging, eventResponse, true, stateChecking},
		{stateChallenging, eventCredit, false, 0},
		{stateReady, eventCredit, true, stateDispatching},
		{stateReady, eventHello, true, stateChecking},
		{stateDispatching, eventFinished, true, stateReady},
		{stateDispatching, eventNoCredit, true, stateReady},
		{stateDispatching, eventBusy, true, stateReady},
		{stateReady, eventBusy, false, 0},
		{stateChecking, eventDispatch, true, stay},
		{stateChallenging, eventHeartbeatMsg, true, stay},
		{stateReady, eventUnexpected, false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.state.String()+"/"+tt.event.String(), func(t *testing.T) {
			tr, ok := lookup(tt.state, tt.event)
			require.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.next, tr.next)
			}
		})
	}
}

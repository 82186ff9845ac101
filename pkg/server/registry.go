package server

// handle addresses a client slot. A handle whose generation no longer
// matches its slot refers to a client that is gone.
type handle struct {
	index      uint32
	generation uint32
}

type slot struct {
	generation uint32
	client     *client
}

// registry is a slot arena of client records. Removals requested while
// iterating are applied when the outermost iteration ends.
type registry struct {
	slots     []slot
	free      []uint32
	count     int
	iterating int
	pending   []handle
}

func (r *registry) add(c *client) handle {
	var idx uint32
	if n := len(r.free); n > 0 {
		idx = r.free[n-1]
		r.free = r.free[:n-1]
	} else {
		idx = uint32(len(r.slots))
		r.slots = append(r.slots, slot{})
	}
	r.slots[idx].client = c
	r.count++
	h := handle{index: idx, generation: r.slots[idx].generation}
	c.handle = h
	return h
}

// get returns the live client for h, or nil.
func (r *registry) get(h handle) *client {
	if int(h.index) >= len(r.slots) {
		return nil
	}
	s := r.slots[h.index]
	if s.generation != h.generation || s.client == nil || s.client.terminated {
		return nil
	}
	return s.client
}

func (r *registry) remove(h handle) {
	if r.iterating > 0 {
		r.pending = append(r.pending, h)
		return
	}
	r.release(h)
}

func (r *registry) release(h handle) {
	if int(h.index) >= len(r.slots) {
		return
	}
	s := &r.slots[h.index]
	if s.generation != h.generation || s.client == nil {
		return
	}
	s.client = nil
	s.generation++
	r.free = append(r.free, h.index)
	r.count--
}

// each visits live clients in slot order.
func (r *registry) each(fn func(*client)) {
	r.iterating++
	for i := range r.slots {
		if c := r.slots[i].client; c != nil && !c.terminated {
			fn(c)
		}
	}
	r.iterating--
	if r.iterating == 0 {
		for _, h := range r.pending {
			r.release(h)
		}
		r.pending = r.pending[:0]
	}
}

func (r *registry) len() int { return r.count }

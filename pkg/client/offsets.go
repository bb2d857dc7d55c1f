package client

import "sync"

// rawMark is an upstream position: the raw offset and the number of
// unpublished items skipped before it.
type rawMark struct {
	raw     int
	dropped int
}

// offsetMap translates published-item offsets to upstream offsets.
type offsetMap struct {
	mu    sync.Mutex
	marks map[int]rawMark
}

func newOffsetMap() *offsetMap {
	return &offsetMap{marks: map[int]rawMark{0: {}}}
}

// at returns the upstream position for offset. Offsets not reached through
// this client are assumed to have nothing dropped before them.
func (m *offsetMap) at(offset int) rawMark {
	m.mu.Lock()
	defer m.mu.Unlock()
	if mark, ok := m.marks[offset]; ok {
		return mark
	}
	return rawMark{raw: offset}
}

func (m *offsetMap) set(offset int, mark rawMark) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.marks[offset] = mark
}

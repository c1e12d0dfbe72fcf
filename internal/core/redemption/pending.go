package redemption

import "github.com/LeJamon/goVaultd/internal/core/journal"

// pendingIndex is a dense list of request ids with an id to position map,
// giving O(1) removal by swapping the last element into the hole.
type pendingIndex struct {
	ids []uint64
	pos map[uint64]int
}

func newPendingIndex() *pendingIndex {
	return &pendingIndex{pos: make(map[uint64]int)}
}

func (p *pendingIndex) len() int { return len(p.ids) }

func (p *pendingIndex) contains(id uint64) bool {
	_, ok := p.pos[id]
	return ok
}

func (p *pendingIndex) list() []uint64 {
	out := make([]uint64, len(p.ids))
	copy(out, p.ids)
	return out
}

func (p *pendingIndex) add(id uint64, j *journal.Journal) {
	if p.contains(id) {
		return
	}
	p.pos[id] = len(p.ids)
	p.ids = append(p.ids, id)
	j.Record(func() { p.removeUnjournaled(id) })
}

func (p *pendingIndex) remove(id uint64, j *journal.Journal) bool {
	i, ok := p.pos[id]
	if !ok {
		return false
	}
	p.removeUnjournaled(id)
	j.Record(func() { p.insertAt(id, i) })
	return true
}

func (p *pendingIndex) removeUnjournaled(id uint64) {
	i, ok := p.pos[id]
	if !ok {
		return
	}
	last := len(p.ids) - 1
	moved := p.ids[last]
	p.ids[i] = moved
	p.pos[moved] = i
	p.ids = p.ids[:last]
	delete(p.pos, id)
}

// insertAt reverses a swap-and-pop removal of id from position i.
func (p *pendingIndex) insertAt(id uint64, i int) {
	if i == len(p.ids) {
		p.ids = append(p.ids, id)
		p.pos[id] = i
		return
	}
	displaced := p.ids[i]
	p.ids = append(p.ids, displaced)
	p.pos[displaced] = len(p.ids) - 1
	p.ids[i] = id
	p.pos[id] = i
}

func (p *pendingIndex) reset(ids []uint64) {
	p.ids = p.ids[:0]
	p.pos = make(map[uint64]int, len(ids))
	for _, id := range ids {
		if _, dup := p.pos[id]; dup {
			continue
		}
		p.pos[id] = len(p.ids)
		p.ids = append(p.ids, id)
	}
}

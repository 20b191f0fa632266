package transfer

import (
	"sort"
	"sync"
	"time"
)

// ChunkAttempt tracks push bookkeeping for one chunk index.
type ChunkAttempt struct {
	Index        uint32    `json:"index"`
	Attempts     int       `json:"attempts"`
	Rejections   int       `json:"rejections"`
	FirstAttempt time.Time `json:"first_attempt"`
	LastAttempt  time.Time `json:"last_attempt"`
	LastOutcome  string    `json:"last_outcome"`
}

// ProgressLog records per-chunk push attempts for one sender session. The
// event loop is the only writer; Status readers come in concurrently.
type ProgressLog struct {
	mu    sync.RWMutex
	items map[uint32]ChunkAttempt
}

func NewProgressLog() *ProgressLog {
	return &ProgressLog{
		items: make(map[uint32]ChunkAttempt),
	}
}

func (p *ProgressLog) MarkAttempt(index uint32, at time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	item, ok := p.items[index]
	if !ok {
		item = ChunkAttempt{Index: index, FirstAttempt: at}
	}
	item.Attempts++
	item.LastAttempt = at
	item.LastOutcome = "pending"
	p.items[index] = item
}

func (p *ProgressLog) MarkResult(index uint32, accepted bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	item, ok := p.items[index]
	if !ok {
		return
	}
	if accepted {
		item.LastOutcome = "accepted"
	} else {
		item.LastOutcome = "rejected"
		item.Rejections++
	}
	p.items[index] = item
}

func (p *ProgressLog) Get(index uint32) (ChunkAttempt, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	item, ok := p.items[index]
	return item, ok
}

func (p *ProgressLog) List() []ChunkAttempt {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]ChunkAttempt, 0, len(p.items))
	for _, item := range p.items {
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Index < out[j].Index
	})
	return out
}

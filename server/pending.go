package server

import (
	"sort"
	"sync"
	"time"
)

type ticket struct {
	seq      uint64
	deadline time.Time
}

// pending tracks the unanswered request ids of one session. Each tracked id
// gets a sequence number so a late result for an expired request can never
// be delivered under a newer request that reused the same id.
type pending struct {
	mu      sync.Mutex
	nextSeq uint64
	tickets map[string]ticket
}

func newPending() *pending {
	return &pending{tickets: make(map[string]ticket)}
}

// track registers id; it returns false if id is already outstanding
func (p *pending) track(id string, deadline time.Time) (uint64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.tickets[id]; exists {
		return 0, false
	}
	p.nextSeq++
	p.tickets[id] = ticket{seq: p.nextSeq, deadline: deadline}
	return p.nextSeq, true
}

// complete removes id if it is still the same outstanding request.
// false means the request was abandoned and its response must be dropped.
func (p *pending) complete(id string, seq uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	t, exists := p.tickets[id]
	if !exists || t.seq != seq {
		return false
	}
	delete(p.tickets, id)
	return true
}

// expire drops every request whose deadline is not after now
func (p *pending) expire(now time.Time) []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	var expired []string
	for id, t := range p.tickets {
		if !t.deadline.After(now) {
			expired = append(expired, id)
			delete(p.tickets, id)
		}
	}
	sort.Strings(expired)
	return expired
}

func (p *pending) clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tickets = make(map[string]ticket)
}

func (p *pending) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.tickets)
}

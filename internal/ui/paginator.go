// internal/ui/paginator.go
package ui

import "sync"

// Paginator tracks which episode of a story is on screen. Stepping wraps
// around at both ends. With one episode or none stepping does nothing;
// CanStep lets views disable the controls in that case.
type Paginator struct {
	mu      sync.RWMutex
	current int
	count   int
}

// Position is the "Episode X of N" label. Number is 1-based.
type Position struct {
	Index  int `json:"index"`
	Number int `json:"number"`
	Total  int `json:"total"`
}

// NewPaginator starts at the first of count episodes
func NewPaginator(count int) *Paginator {
	if count < 0 {
		count = 0
	}
	return &Paginator{count: count}
}

// Reset loads a new story and goes back to the first episode
func (p *Paginator) Reset(count int) {
	if count < 0 {
		count = 0
	}
	p.mu.Lock()
	p.count = count
	p.current = 0
	p.mu.Unlock()
}

// Current returns the 0-based index on screen
func (p *Paginator) Current() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}

// Count returns the number of episodes
func (p *Paginator) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.count
}

// CanStep reports whether next and previous do anything
func (p *Paginator) CanStep() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.count > 1
}

// Next advances one episode, wrapping to the first after the last
func (p *Paginator) Next() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.count > 1 {
		p.current = (p.current + 1) % p.count
	}
	return p.current
}

// Previous goes back one episode, wrapping to the last before the first
func (p *Paginator) Previous() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.count > 1 {
		p.current = (p.current - 1 + p.count) % p.count
	}
	return p.current
}

// JumpTo moves to index i. Out of range indexes are ignored and false is
// returned.
func (p *Paginator) JumpTo(i int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if i < 0 || i >= p.count {
		return false
	}
	p.current = i
	return true
}

// Position returns the label values for the current episode
func (p *Paginator) Position() Position {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.count == 0 {
		return Position{}
	}
	return Position{Index: p.current, Number: p.current + 1, Total: p.count}
}

// Package notify implements the per-account long-poll wakeup map: a waiter
// registers before the final snapshot check (to avoid a lost wakeup between
// "no new row" and "start waiting"), and is released either by a fresh
// notification or by context cancellation.
package notify

import "sync"

// Hub holds one broadcast channel per account login, created lazily and
// removed once its last waiter has gone.
type Hub struct {
	mu  sync.Mutex
	acc map[string]*topic
}

type topic struct {
	refs int
	ch   chan struct{}
}

func NewHub() *Hub {
	return &Hub{acc: make(map[string]*topic)}
}

// Register returns a channel that is closed the next time Publish(login)
// is called, and a release function the caller must invoke exactly once
// when it stops waiting (success, timeout, or cancellation).
func (h *Hub) Register(login string) (wake <-chan struct{}, release func()) {
	h.mu.Lock()
	t, ok := h.acc[login]
	if !ok {
		t = &topic{ch: make(chan struct{})}
		h.acc[login] = t
	}
	t.refs++
	ch := t.ch
	self := t
	h.mu.Unlock()

	var once sync.Once
	release = func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			self.refs--
			if self.refs <= 0 {
				if cur, ok := h.acc[login]; ok && cur == self {
					delete(h.acc, login)
				}
			}
		})
	}
	return ch, release
}

// Publish wakes every current waiter for login by closing its channel and
// installing a fresh one for subsequent registrants.
func (h *Hub) Publish(login string) {
	h.mu.Lock()
	t, ok := h.acc[login]
	if !ok {
		h.mu.Unlock()
		return
	}
	old := t.ch
	t.ch = make(chan struct{})
	h.mu.Unlock()
	close(old)
}

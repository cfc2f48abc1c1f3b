package attendance

import "sync"

// Guards tracks which sessions have a reconcile call in flight.
// It is a client-local lock; cross-device safety comes from the store predicate.
type Guards struct {
	mu       sync.Mutex
	inflight map[string]struct{}
}

// NewGuards returns an empty guard set.
func NewGuards() *Guards {
	return &Guards{inflight: make(map[string]struct{})}
}

// TryAcquire claims the session without blocking. The returned release func is
// safe to call more than once.
func (g *Guards) TryAcquire(session string) (release func(), ok bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.inflight[session]; busy {
		return nil, false
	}
	g.inflight[session] = struct{}{}
	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.inflight, session)
			g.mu.Unlock()
		})
	}, true
}

// InFlight reports whether session currently holds the guard.
func (g *Guards) InFlight(session string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, busy := g.inflight[session]
	return busy
}

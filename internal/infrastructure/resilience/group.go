package resilience

import "sync"

// Group lazily creates one breaker per key (typically a host) so a failing
// upstream does not trip requests to healthy ones.
type Group struct {
	prefix   string
	settings Settings

	mu       sync.Mutex
	breakers map[string]*Breaker
}

// NewGroup creates a breaker group; every member shares settings
func NewGroup(prefix string, settings Settings) *Group {
	return &Group{
		prefix:   prefix,
		settings: settings,
		breakers: make(map[string]*Breaker),
	}
}

// Get returns the breaker for key, creating it on first use
func (g *Group) Get(key string) *Breaker {
	g.mu.Lock()
	defer g.mu.Unlock()

	b, ok := g.breakers[key]
	if !ok {
		b = New(g.prefix+":"+key, g.settings)
		g.breakers[key] = b
	}
	return b
}

// States returns a snapshot of every member's state
func (g *Group) States() map[string]State {
	g.mu.Lock()
	members := make(map[string]*Breaker, len(g.breakers))
	for k, b := range g.breakers {
		members[k] = b
	}
	g.mu.Unlock()

	out := make(map[string]State, len(members))
	for k, b := range members {
		out[k] = b.State()
	}
	return out
}

package gateway

import (
	"context"
	"errors"
	"sync"
)

var ErrBusy = errors.New("a request for this client is already in progress")

// SubmitGuard is the server side submit control: one running chain per client key.
type SubmitGuard struct {
	mu     sync.Mutex
	active map[string]struct{}
	// OnRelease, when set, is called once per released submission.
	OnRelease func(key string)
}

func NewSubmitGuard() *SubmitGuard {
	return &SubmitGuard{active: make(map[string]struct{})}
}

// Acquire disables the control for key. The returned release re-enables it and
// is safe to call more than once; only the first call has an effect.
func (g *SubmitGuard) Acquire(key string) (release func(), ok bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.active == nil {
		g.active = make(map[string]struct{})
	}
	if _, busy := g.active[key]; busy {
		return func() {}, false
	}
	g.active[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.active, key)
			hook := g.OnRelease
			g.mu.Unlock()
			if hook != nil {
				hook(key)
			}
		})
	}, true
}

// Enabled reports whether a new submission for key would be accepted.
func (g *SubmitGuard) Enabled(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, busy := g.active[key]
	return !busy
}

// Submitter ties the guard to the orchestrator.
type Submitter struct {
	Service *Service
	Guard   *SubmitGuard
}

// Submit runs one query for the client key. The control stays disabled for the
// whole retry chain and is re-enabled exactly once, whatever the outcome.
func (s *Submitter) Submit(ctx context.Context, key, rawURL string) (*Outcome, error) {
	release, ok := s.Guard.Acquire(key)
	if !ok {
		return nil, ErrBusy
	}
	defer release()
	return s.Service.Query(ctx, rawURL)
}

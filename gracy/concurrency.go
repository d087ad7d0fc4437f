package gracy

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
)

// ConcurrencyScope picks whether a ConcurrencyGate key is per-endpoint or a
// single process-wide key, folded in from the Python original's
// ConcurrentRequestLimit.limit_per_uurl toggle (§1.3 of SPEC_FULL).
type ConcurrencyScope int

const (
	ScopeEndpoint ConcurrencyScope = iota
	ScopeGlobal
)

// ConcurrencyPolicy is the behavior bundle attached to
// GracyConfig.ConcurrentRequests.
type ConcurrencyPolicy struct {
	Limit int
	Scope ConcurrencyScope

	// BlockingArgs names substitution args that further partition the
	// semaphore key within ScopeEndpoint — e.g. limiting concurrent requests
	// per {USER_ID} rather than per endpoint as a whole.
	BlockingArgs []string

	LogLimitReached LogEvent
	LogLimitFreed   LogEvent
}

// namedSemaphore is a counted permit pool with an atomic in-flight counter
// used purely to detect the limit-reached/limit-freed transitions.
type namedSemaphore struct {
	slots    chan struct{}
	limit    int
	inFlight int32
}

// ConcurrencyGate maps a scope key to a namedSemaphore, built lazily.
type ConcurrencyGate struct {
	mu   sync.Mutex
	sems map[string]*namedSemaphore
}

// NewConcurrencyGate builds an empty gate.
func NewConcurrencyGate() *ConcurrencyGate {
	return &ConcurrencyGate{sems: make(map[string]*namedSemaphore)}
}

func (g *ConcurrencyGate) keyFor(rc *RequestContext, policy ConcurrencyPolicy) string {
	if policy.Scope == ScopeGlobal {
		return "\x00global"
	}
	var b strings.Builder
	b.WriteString(rc.UnformattedEndpoint)
	for _, arg := range policy.BlockingArgs {
		b.WriteByte('|')
		b.WriteString(arg)
		b.WriteByte('=')
		b.WriteString(rc.Args[arg])
	}
	return b.String()
}

func (g *ConcurrencyGate) semaphoreFor(key string, limit int) *namedSemaphore {
	g.mu.Lock()
	defer g.mu.Unlock()
	sem, ok := g.sems[key]
	if !ok {
		sem = &namedSemaphore{slots: make(chan struct{}, limit), limit: limit}
		g.sems[key] = sem
	}
	return sem
}

// Acquire blocks until a permit is available for rc under policy, emitting
// LogLimitReached on the transition into full saturation. The returned
// release func must be called exactly once; cancellation while waiting never
// leaks a permit since the channel send and ctx.Done() select are mutually
// exclusive.
func (g *ConcurrencyGate) Acquire(ctx context.Context, rc *RequestContext, policy ConcurrencyPolicy, logger Logger) (release func(), err error) {
	sem := g.semaphoreFor(g.keyFor(rc, policy), policy.Limit)

	select {
	case sem.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if n := atomic.AddInt32(&sem.inFlight, 1); int(n) == sem.limit {
		logger.emit(policy.LogLimitReached, contextPlaceholders(rc))
	}

	var released int32
	release = func() {
		if !atomic.CompareAndSwapInt32(&released, 0, 1) {
			return
		}
		if n := atomic.AddInt32(&sem.inFlight, -1); int(n) == sem.limit-1 {
			logger.emit(policy.LogLimitFreed, contextPlaceholders(rc))
		}
		<-sem.slots
	}
	return release, nil
}

package gracy

import "context"

// BeforeHookFunc runs once per execute() call (and is skipped for nested
// calls made from inside a hook — see the re-entrancy guard below).
type BeforeHookFunc func(ctx context.Context, rc *RequestContext)

// AfterHookFunc runs at execute() exit and, additionally, once per retry
// attempt with state non-nil so a hook can react to — or pause — the retry
// loop (e.g. a Retry-After observer).
type AfterHookFunc func(ctx context.Context, rc *RequestContext, resp *Response, err error, state *RetryState)

// reentryGuardKey marks a context.Context as already inside hook dispatch.
// Go has no goroutine-local storage, so the guard travels as a context value
// instead of a dispatcher-owned flag.
type reentryGuardKey struct{}

func withHookGuard(ctx context.Context) context.Context {
	return context.WithValue(ctx, reentryGuardKey{}, true)
}

func inHookDispatch(ctx context.Context) bool {
	v, _ := ctx.Value(reentryGuardKey{}).(bool)
	return v
}

// HookDispatcher fans out before/after callbacks, isolating caller panics and
// errors so an observational hook can never alter the outcome of the
// request it observed.
type HookDispatcher struct {
	before []BeforeHookFunc
	after  []AfterHookFunc
	logger Logger
}

// NewHookDispatcher builds a dispatcher with the given hooks.
func NewHookDispatcher(logger Logger, before []BeforeHookFunc, after []AfterHookFunc) *HookDispatcher {
	return &HookDispatcher{before: before, after: after, logger: logger}
}

// DispatchBefore runs every before hook, unless ctx is already inside hook
// dispatch (a nested call made from within a hook). Returns a context
// carrying the re-entrancy guard, to be used for any request the hook itself
// issues.
func (d *HookDispatcher) DispatchBefore(ctx context.Context, rc *RequestContext) context.Context {
	guarded := withHookGuard(ctx)
	if inHookDispatch(ctx) {
		return guarded
	}
	for _, h := range d.before {
		d.safeCall(rc, func() { h(guarded, rc) })
	}
	return guarded
}

// DispatchAfter runs every after hook, unless ctx is already inside hook
// dispatch.
func (d *HookDispatcher) DispatchAfter(ctx context.Context, rc *RequestContext, resp *Response, err error, state *RetryState) {
	if inHookDispatch(ctx) {
		return
	}
	guarded := withHookGuard(ctx)
	for _, h := range d.after {
		d.safeCall(rc, func() { h(guarded, rc, resp, err, state) })
	}
}

// safeCall isolates a panic or the fact that a hook has nothing to report:
// hooks are observational and never influence the pipeline's outcome, so
// any panic is recovered and logged rather than propagated.
func (d *HookDispatcher) safeCall(rc *RequestContext, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.logError(rc, newError(KindUserDefined, rc, nil, nil, "hook panicked"))
		}
	}()
	fn()
}

package gracy

import (
	"context"
	"errors"
	"time"
)

// ReplayMode picks how RequestPipeline.dispatch sources a response.
type ReplayMode int

const (
	// ModeLive dispatches through the Sender and never touches a ReplayStore.
	ModeLive ReplayMode = iota
	// ModeRecord dispatches through the Sender and writes every completed
	// exchange to the ReplayStore; the live response is still returned.
	ModeRecord
	// ModeReplay loads a stored exchange instead of dispatching.
	ModeReplay
)

// RequestPipeline orchestrates one execute() call: concurrency gate, throttle
// admission, dispatch/replay, validation, retry, parsing, hooks, metrics —
// the single public operation named in §4.1.
type RequestPipeline struct {
	Sender      Sender
	Throttle    *ThrottleController
	Concurrency *ConcurrencyGate
	Hooks       *HookDispatcher
	Metrics     *MetricsCollector
	Logger      Logger

	ReplayStore           ReplayStore
	Mode                  ReplayMode
	SelectedReplayHeaders []string
}

// kindForCtxErr maps a context error to the matching terminal Kind.
func kindForCtxErr(err error) Kind {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, context.Canceled):
		return KindCancelled
	default:
		return KindTransport
	}
}

// dispatch sources one attempt's Response, either from the Sender (Live,
// Record) or from ReplayStore.Load (Replay), per §4.6.
func (p *RequestPipeline) dispatch(ctx context.Context, rc *RequestContext) (*Response, error) {
	if p.Mode == ModeReplay {
		fp := Fingerprint(rc.Method, rc.URL, rc.Body, rc.Headers, p.SelectedReplayHeaders)
		ex, err := p.ReplayStore.Load(ctx, fp)
		if err != nil {
			return nil, err
		}
		if ex.DiscardOnBadStatus && !isSuccess(ex.Status, rc.Config) {
			return nil, ErrNoReplayFound
		}
		return &Response{
			StatusCode: ex.Status,
			Header:     ex.ResponseHeaders,
			Body:       ex.ResponseBody,
			ReceivedAt: ex.RecordedAt,
			Replayed:   true,
		}, nil
	}

	resp, err := p.Sender.Send(OutgoingRequest{
		Ctx:     ctx,
		Method:  rc.Method,
		URL:     rc.URL,
		Headers: rc.Headers,
		Body:    rc.Body,
	})
	if err != nil {
		return nil, err
	}

	if p.Mode == ModeRecord && p.ReplayStore != nil {
		fp := Fingerprint(rc.Method, rc.URL, rc.Body, rc.Headers, p.SelectedReplayHeaders)
		_ = p.ReplayStore.Record(ctx, Exchange{
			Fingerprint:     fp,
			Method:          rc.Method,
			URL:             rc.URL,
			RequestHeaders:  rc.Headers,
			RequestBody:     rc.Body,
			Status:          resp.StatusCode,
			ResponseHeaders: resp.Header,
			ResponseBody:    resp.Body,
			RecordedAt:      time.Now(),
		})
	}
	return resp, nil
}

// terminalError builds the *Error a failed_terminal transition raises.
// KindRetryExhausted is used only when attempts were actually consumed
// (MaxAttempts > 1); a single-attempt failure (no retry policy, or
// immediately filtered out by retry_on) keeps the outcome's own Kind, per
// §4.4's distinction between exhaustion and retry_on rejection.
func (p *RequestPipeline) terminalError(rc *RequestContext, state *RetryState) error {
	kind := state.kind()
	if state.exhaustedByAttempts() && state.MaxAttempts > 1 {
		kind = KindRetryExhausted
	}
	return newError(kind, rc, state.lastResp, state.lastErr, state.Cause())
}

// Execute runs the pipeline for rc, returning the parsed value or a *Error.
func (p *RequestPipeline) Execute(ctx context.Context, rc *RequestContext) (value any, err error) {
	if policy, ok := rc.Config.ConcurrentRequests.Get(); ok {
		release, aerr := p.Concurrency.Acquire(ctx, rc, policy, p.Logger)
		if aerr != nil {
			gerr := newError(kindForCtxErr(aerr), rc, nil, aerr, "concurrency gate")
			p.Logger.logError(rc, gerr)
			p.Hooks.DispatchAfter(ctx, rc, nil, gerr, nil)
			p.Metrics.Record(rc, nil, false, false)
			return nil, gerr
		}
		defer release()
	}

	hookCtx := p.Hooks.DispatchBefore(ctx, rc)
	p.Logger.logRequest(rc)

	retryPolicy, hasRetry := rc.Config.Retry.Get()
	state := newRetryState(retryPolicy)
	if !hasRetry {
		state.MaxAttempts = 1
	}

	var (
		finalResp *Response
		throttled bool
		retried   bool
	)

	defer func() {
		if err != nil {
			p.Logger.logError(rc, err)
		} else {
			p.Logger.logResponse(rc, finalResp)
		}
		var afterState *RetryState
		if err != nil {
			afterState = state
		}
		p.Hooks.DispatchAfter(ctx, rc, finalResp, err, afterState)
		p.Metrics.Record(rc, finalResp, retried, throttled)
	}()

	for {
		if hookCtx.Err() != nil {
			return nil, newError(kindForCtxErr(hookCtx.Err()), rc, nil, hookCtx.Err(), "context done")
		}

		if tp, ok := rc.Config.Throttling.Get(); ok {
			waited, terr := p.Throttle.Await(hookCtx, rc, tp, p.Logger)
			if terr != nil {
				return nil, newError(kindForCtxErr(terr), rc, nil, terr, "throttle wait cancelled")
			}
			if waited {
				throttled = true
			}
		}

		resp, dispatchErr := p.dispatch(hookCtx, rc)
		switch {
		case dispatchErr != nil:
			if errors.Is(dispatchErr, ErrNoReplayFound) {
				return nil, newError(KindNoReplay, rc, nil, dispatchErr, "no replay found")
			}
			state.recordTransportError(dispatchErr)
		case isSuccess(resp.StatusCode, rc.Config):
			if verr := runValidators(rc, resp, rc.Config.Validators.GetOr(nil)); verr != nil {
				state.recordValidatorFailed(resp, verr)
			} else {
				finalResp = resp
				parsed, perr := parseResponse(rc.Config, rc, resp)
				return parsed, perr
			}
		default:
			state.recordBadStatus(resp)
		}

		if state.Attempt > 1 {
			p.Logger.logAfterRetry(rc, state)
		}

		if hasRetry && state.shouldRetry() {
			retried = true
			// §4.7: after fires once per retry attempt too, around the retry
			// itself, so a hook can read retry_state and react (e.g. a
			// Retry-After observer) before the next attempt goes out.
			p.Hooks.DispatchAfter(ctx, rc, state.lastResp, state.lastErr, state)
			delay := state.delay()
			p.Logger.logBeforeRetry(rc, state, delay)
			select {
			case <-time.After(delay):
			case <-hookCtx.Done():
				return nil, newError(kindForCtxErr(hookCtx.Err()), rc, nil, hookCtx.Err(), "cancelled during retry delay")
			}
			state.advance()
			continue
		}

		if hasRetry && state.exhaustedByAttempts() {
			p.Logger.logExhausted(rc, state)
		}

		finalResp = state.lastResp
		if hasRetry && retryPolicy.Behavior == RetryPass && state.lastKind != outcomeTransportError && state.lastResp != nil {
			parsed, perr := parseResponse(rc.Config, rc, state.lastResp)
			return parsed, perr
		}

		return nil, p.terminalError(rc, state)
	}
}

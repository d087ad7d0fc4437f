package gracy

import (
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// placeholder names recognized by renderTemplate. Any token in a LogEvent's
// Template that isn't one of these is left untouched, per §6's tolerance
// requirement for unknown placeholders.
const (
	phURL               = "URL"
	phUURL              = "UURL"
	phEndpoint          = "ENDPOINT"
	phUEndpoint         = "UENDPOINT"
	phMethod            = "METHOD"
	phStatus            = "STATUS"
	phElapsed           = "ELAPSED"
	phReplay            = "REPLAY"
	phIsReplay          = "IS_REPLAY"
	phRetryDelay        = "RETRY_DELAY"
	phRetryCause        = "RETRY_CAUSE"
	phCurAttempt        = "CUR_ATTEMPT"
	phMaxAttempt        = "MAX_ATTEMPT"
	phThrottleLimit     = "THROTTLE_LIMIT"
	phThrottleTime      = "THROTTLE_TIME"
	phThrottleTimeRange = "THROTTLE_TIME_RANGE"
	phRequestID         = "REQUEST_ID"
)

// renderTemplate substitutes {PLACEHOLDER} tokens present in values, leaving
// any other brace-delimited token in tmpl exactly as written.
func renderTemplate(tmpl string, values map[string]string) string {
	if len(values) == 0 {
		return tmpl
	}
	pairs := make([]string, 0, len(values)*2)
	for k, v := range values {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}

// contextPlaceholders builds the subset of the placeholder vocabulary
// derivable from a RequestContext alone.
func contextPlaceholders(rc *RequestContext) map[string]string {
	return map[string]string{
		phURL:       rc.URL,
		phUURL:      rc.UnformattedURL,
		phEndpoint:  rc.FormattedEndpoint,
		phUEndpoint: rc.UnformattedEndpoint,
		phMethod:    rc.Method,
		phRequestID: rc.RequestID,
	}
}

// Logger renders LogEvents through zerolog. The zero value is usable and logs
// nowhere useful (zerolog.Nop()); construct via NewLogger to attach a real
// sink.
type Logger struct {
	zl zerolog.Logger
}

// NewLogger wraps an existing zerolog.Logger.
func NewLogger(zl zerolog.Logger) Logger { return Logger{zl: zl} }

// emit logs ev.Template (rendered against values) at ev.Level, doing nothing
// if ev is disabled.
func (l Logger) emit(ev LogEvent, values map[string]string) {
	if !ev.Enabled {
		return
	}
	msg := renderTemplate(ev.Template, values)
	var e *zerolog.Event
	switch ev.Level {
	case LogLevelDebug:
		e = l.zl.Debug()
	case LogLevelWarn:
		e = l.zl.Warn()
	case LogLevelError:
		e = l.zl.Error()
	default:
		e = l.zl.Info()
	}
	e.Msg(msg)
}

func (l Logger) logRequest(rc *RequestContext) {
	ev, ok := rc.Config.LogRequest.Get()
	if !ok {
		return
	}
	l.emit(ev, contextPlaceholders(rc))
}

func (l Logger) logResponse(rc *RequestContext, resp *Response) {
	ev, ok := rc.Config.LogResponse.Get()
	if !ok {
		return
	}
	values := contextPlaceholders(rc)
	if resp != nil {
		values[phStatus] = strconv.Itoa(resp.StatusCode)
		values[phElapsed] = resp.Elapsed.String()
		values[phIsReplay] = strconv.FormatBool(resp.Replayed)
		values[phReplay] = strconv.FormatBool(resp.Replayed)
	}
	l.emit(ev, values)
}

func (l Logger) logError(rc *RequestContext, err error) {
	ev, ok := rc.Config.LogErrors.Get()
	if !ok {
		return
	}
	values := contextPlaceholders(rc)
	if gerr, isG := err.(*Error); isG {
		values[phRetryCause] = gerr.Kind.String()
	}
	l.emit(ev, values)
}

func (l Logger) logBeforeRetry(rc *RequestContext, state *RetryState, delay time.Duration) {
	ev := rc.Config.Retry.GetOr(RetryPolicy{}).LogBeforeRetry
	if !ev.Enabled {
		return
	}
	values := contextPlaceholders(rc)
	values[phRetryDelay] = delay.String()
	values[phRetryCause] = state.Cause()
	values[phCurAttempt] = strconv.Itoa(state.Attempt)
	values[phMaxAttempt] = strconv.Itoa(state.MaxAttempts)
	l.emit(ev, values)
}

func (l Logger) logAfterRetry(rc *RequestContext, state *RetryState) {
	ev := rc.Config.Retry.GetOr(RetryPolicy{}).LogAfterRetry
	if !ev.Enabled {
		return
	}
	values := contextPlaceholders(rc)
	values[phCurAttempt] = strconv.Itoa(state.Attempt)
	values[phMaxAttempt] = strconv.Itoa(state.MaxAttempts)
	l.emit(ev, values)
}

func (l Logger) logExhausted(rc *RequestContext, state *RetryState) {
	ev := rc.Config.Retry.GetOr(RetryPolicy{}).LogExhausted
	if !ev.Enabled {
		return
	}
	values := contextPlaceholders(rc)
	values[phCurAttempt] = strconv.Itoa(state.Attempt)
	values[phMaxAttempt] = strconv.Itoa(state.MaxAttempts)
	values[phRetryCause] = state.Cause()
	l.emit(ev, values)
}

func (l Logger) logThrottle(rc *RequestContext, ev LogEvent, rule ThrottleRule, wait time.Duration) {
	if !ev.Enabled {
		return
	}
	values := contextPlaceholders(rc)
	values[phThrottleLimit] = strconv.Itoa(rule.MaxRequests)
	values[phThrottleTime] = wait.String()
	values[phThrottleTimeRange] = rule.PerTime.String()
	l.emit(ev, values)
}

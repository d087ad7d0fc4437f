package gracy

import (
	"math"
	"strconv"
	"time"
)

// RetryBehavior controls what happens once a RetryPolicy's attempts are
// exhausted.
type RetryBehavior int

const (
	// RetryBreak raises the terminal failure (the default).
	RetryBreak RetryBehavior = iota
	// RetryPass delivers the last response to the parser as if it had
	// succeeded, provided the last outcome was a response and not a
	// transport error.
	RetryPass
)

// RetryOn filters which outcomes are worth retrying. The zero value matches
// any failure — the Go rendition of the Python source's "retry_on=None
// means any failure".
type RetryOn struct {
	statuses  StatusSet
	kinds     map[Kind]struct{}
	hasFilter bool
}

// RetryOnAny is the explicit spelling of the zero value: retry on any
// failure kind or status.
func RetryOnAny() RetryOn { return RetryOn{} }

// RetryOnStatus restricts retrying to the given statuses. Outcomes without a
// listed status, such as transport errors, are not retried.
func RetryOnStatus(codes ...int) RetryOn {
	return RetryOn{statuses: Status(codes...), hasFilter: true}
}

// RetryOnKind restricts retrying to the given error kinds.
func RetryOnKind(kinds ...Kind) RetryOn {
	m := make(map[Kind]struct{}, len(kinds))
	for _, k := range kinds {
		m[k] = struct{}{}
	}
	return RetryOn{kinds: m, hasFilter: true}
}

// Matches reports whether an outcome of the given kind/status should be
// retried under this filter.
func (r RetryOn) Matches(kind Kind, status int) bool {
	if !r.hasFilter {
		return true
	}
	if r.statuses.Contains(status) {
		return true
	}
	_, ok := r.kinds[kind]
	return ok
}

// RetryOverride is applied in place of the policy's default delay/filter
// when the previous outcome's status matches the override key.
type RetryOverride struct {
	Delay         time.Duration
	HasDelay      bool
	RetryOnFilter RetryOn
	HasFilter     bool
}

// RetryPolicy is the behavior bundle attached to GracyConfig.Retry.
type RetryPolicy struct {
	BaseDelay     time.Duration
	MaxAttempts   int
	DelayModifier float64
	RetryOn       RetryOn
	Behavior      RetryBehavior

	// Overrides maps a response status to a RetryOverride applied when the
	// last outcome's status matches the key.
	Overrides map[int]RetryOverride

	LogBeforeRetry LogEvent
	LogAfterRetry  LogEvent
	LogExhausted   LogEvent
}

// outcomeKind classifies what the last attempt produced, for Cause()
// rendering and for matching against RetryOn/Overrides.
type outcomeKind int

const (
	outcomeNone outcomeKind = iota
	outcomeBadStatus
	outcomeValidatorFailed
	outcomeTransportError
)

// RetryState tracks one execute() call's progress through the attempt loop.
// Grounded on _models.py's GracefulRetryState: attempt counter, current
// delay, and the human-readable cause used for logging and {RETRY_CAUSE}.
type RetryState struct {
	Attempt     int
	MaxAttempts int

	policy RetryPolicy

	lastKind    outcomeKind
	lastStatus  int
	lastErr     error
	lastResp    *Response
}

// newRetryState seeds a RetryState at attempt 1.
func newRetryState(policy RetryPolicy) *RetryState {
	return &RetryState{Attempt: 1, MaxAttempts: policy.MaxAttempts, policy: policy}
}

// recordBadStatus records that the last dispatch returned a response whose
// status failed the success check.
func (s *RetryState) recordBadStatus(resp *Response) {
	s.lastKind = outcomeBadStatus
	s.lastStatus = resp.StatusCode
	s.lastResp = resp
	s.lastErr = nil
}

// recordValidatorFailed records that a user Validator rejected the response.
func (s *RetryState) recordValidatorFailed(resp *Response, err error) {
	s.lastKind = outcomeValidatorFailed
	s.lastStatus = resp.StatusCode
	s.lastResp = resp
	s.lastErr = err
}

// recordTransportError records that the dispatch itself failed.
func (s *RetryState) recordTransportError(err error) {
	s.lastKind = outcomeTransportError
	s.lastStatus = 0
	s.lastResp = nil
	s.lastErr = err
}

// kind maps the recorded outcome to an error Kind for RetryOn matching.
func (s *RetryState) kind() Kind {
	switch s.lastKind {
	case outcomeBadStatus:
		return KindBadStatus
	case outcomeValidatorFailed:
		return KindValidatorFailed
	case outcomeTransportError:
		return KindTransport
	default:
		return KindTransport
	}
}

// Cause renders a short human string describing why a retry triggered,
// consumed by {RETRY_CAUSE} and surfaced via Cause() to callers inspecting a
// retry_exhausted error.
func (s *RetryState) Cause() string {
	switch s.lastKind {
	case outcomeBadStatus:
		return "bad status " + strconv.Itoa(s.lastStatus)
	case outcomeValidatorFailed:
		return "validator failed"
	case outcomeTransportError:
		if s.lastErr != nil {
			return "transport error: " + s.lastErr.Error()
		}
		return "transport error"
	default:
		return "none"
	}
}

// override returns the RetryOverride registered for the last outcome's
// status, if any.
func (s *RetryState) override() (RetryOverride, bool) {
	if s.policy.Overrides == nil {
		return RetryOverride{}, false
	}
	ov, ok := s.policy.Overrides[s.lastStatus]
	return ov, ok
}

// shouldRetry implements the deciding→{failed_terminal,delaying} transition:
// failed_terminal if attempts are exhausted or the outcome kind/status is
// filtered out by retry_on (or its override); delaying otherwise.
func (s *RetryState) shouldRetry() bool {
	if s.Attempt >= s.MaxAttempts {
		return false
	}
	filter := s.policy.RetryOn
	if ov, ok := s.override(); ok && ov.HasFilter {
		filter = ov.RetryOnFilter
	}
	return filter.Matches(s.kind(), s.lastStatus)
}

// exhaustedByAttempts reports whether shouldRetry's false resulted from
// running out of attempts rather than an retry_on filter rejection — the
// distinction log_exhausted depends on (§4.4: "not when filtered out by
// retry_on").
func (s *RetryState) exhaustedByAttempts() bool {
	return s.Attempt >= s.MaxAttempts
}

// delay computes the wait before the next attempt: the override's delay if
// the last outcome's status has one, else base × modifier^(attempt-1),
// matching §4.4's "deciding → delaying" formula (the attempt hasn't been
// incremented yet when this runs, so attempt-1 here equals n-2 once the
// caller's n = Attempt+1 for the upcoming try).
func (s *RetryState) delay() time.Duration {
	if ov, ok := s.override(); ok && ov.HasDelay {
		return ov.Delay
	}
	if s.Attempt <= 1 {
		return s.policy.BaseDelay
	}
	mult := math.Pow(s.policy.DelayModifier, float64(s.Attempt-1))
	return time.Duration(float64(s.policy.BaseDelay) * mult)
}

// advance moves Attempt forward after a delay, entering the next attempting
// state.
func (s *RetryState) advance() { s.Attempt++ }

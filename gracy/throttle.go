package gracy

import (
	"context"
	"regexp"
	"sync"
	"time"
)

// ThrottleRule matches requests by formatted URL and caps them to
// MaxRequests per sliding window of PerTime.
type ThrottleRule struct {
	URLPattern *regexp.Regexp

	MaxRequests int
	PerTime     time.Duration

	LogLimitReached LogEvent
	LogWaitOver     LogEvent
}

// NewThrottleRule compiles pattern and builds a rule. PerTime defaults to one
// second when zero, matching the per-rule default in §3.
func NewThrottleRule(pattern string, maxRequests int, perTime time.Duration) (ThrottleRule, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return ThrottleRule{}, err
	}
	if perTime <= 0 {
		perTime = time.Second
	}
	return ThrottleRule{URLPattern: re, MaxRequests: maxRequests, PerTime: perTime}, nil
}

func (r ThrottleRule) matches(url string) bool {
	return r.URLPattern != nil && r.URLPattern.MatchString(url)
}

// ThrottlePolicy is the set of rules attached to GracyConfig.Throttling.
type ThrottlePolicy struct {
	Rules []ThrottleRule
}

// ruleWindow is the mutable per-rule sliding-window state: recent admission
// timestamps plus whether the rule's current saturation event has already
// logged "limit reached".
type ruleWindow struct {
	times     []time.Time
	saturated bool
}

// ThrottleController owns one ruleWindow per rule and a single coordination
// lock serializing admission decisions across every rule — a per-rule
// semaphore would not suffice here because PerTime is a sliding window, not a
// token bucket refilled on a fixed cadence (§4.2).
type ThrottleController struct {
	mu     sync.Mutex
	states map[*ThrottleRule]*ruleWindow
}

// NewThrottleController builds an empty controller; rule state is created
// lazily on first match.
func NewThrottleController() *ThrottleController {
	return &ThrottleController{states: make(map[*ThrottleRule]*ruleWindow)}
}

func (c *ThrottleController) windowFor(rule *ThrottleRule) *ruleWindow {
	w, ok := c.states[rule]
	if !ok {
		w = &ruleWindow{}
		c.states[rule] = w
	}
	return w
}

// Await runs the admission protocol in §4.2 for rc's formatted URL against
// policy's rules, blocking (cooperatively, respecting ctx) until every
// matching rule admits the request — AND semantics across rules, confirmed
// against the Python original's _gracefully_throttle loop.
// Await's second return value reports whether the caller had to wait at all,
// so MetricsCollector can tell throttled calls from immediately-admitted
// ones.
func (c *ThrottleController) Await(ctx context.Context, rc *RequestContext, policy ThrottlePolicy, logger Logger) (bool, error) {
	matching := make([]*ThrottleRule, 0, len(policy.Rules))
	for i := range policy.Rules {
		if policy.Rules[i].matches(rc.URL) {
			matching = append(matching, &policy.Rules[i])
		}
	}
	if len(matching) == 0 {
		return false, nil
	}

	waited := false
	for {
		now := time.Now()

		c.mu.Lock()
		var maxWait time.Duration
		var waitingRule *ThrottleRule
		for _, rule := range matching {
			w := c.windowFor(rule)
			oldestAllowed := now.Add(-rule.PerTime)
			i := 0
			for i < len(w.times) && !w.times[i].After(oldestAllowed) {
				i++
			}
			w.times = w.times[i:]

			var wait time.Duration
			if len(w.times) >= rule.MaxRequests {
				wait = w.times[0].Add(rule.PerTime).Sub(now)
			}
			if wait > maxWait {
				maxWait = wait
				waitingRule = rule
			}
		}

		if maxWait <= 0 {
			var waitOverRules []*ThrottleRule
			for _, rule := range matching {
				w := c.windowFor(rule)
				w.times = append(w.times, now)
				if w.saturated {
					w.saturated = false
					waitOverRules = append(waitOverRules, rule)
				}
			}
			c.mu.Unlock()
			for _, rule := range waitOverRules {
				logger.logThrottle(rc, rule.LogWaitOver, *rule, 0)
			}
			return waited, nil
		}

		w := c.windowFor(waitingRule)
		shouldLog := !w.saturated
		if shouldLog {
			w.saturated = true
		}
		rule := *waitingRule
		c.mu.Unlock()

		if shouldLog {
			logger.logThrottle(rc, rule.LogLimitReached, rule, maxWait)
		}

		waited = true
		select {
		case <-time.After(maxWait):
		case <-ctx.Done():
			return waited, ctx.Err()
		}
	}
}

package gracy

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryState_ShouldRetry(t *testing.T) {
	t.Parallel()

	t.Run("given attempts remain and retry_on matches, then shouldRetry is true", func(t *testing.T) {
		policy := RetryPolicy{MaxAttempts: 3, RetryOn: RetryOnAny()}
		state := newRetryState(policy)
		state.recordBadStatus(&Response{StatusCode: 503})

		assert.True(t, state.shouldRetry())
		assert.False(t, state.exhaustedByAttempts())
	})

	t.Run("given attempts exhausted, then shouldRetry is false and exhaustedByAttempts is true", func(t *testing.T) {
		policy := RetryPolicy{MaxAttempts: 2, RetryOn: RetryOnAny()}
		state := newRetryState(policy)
		state.Attempt = 2
		state.recordBadStatus(&Response{StatusCode: 503})

		assert.False(t, state.shouldRetry())
		assert.True(t, state.exhaustedByAttempts())
	})

	t.Run("given retry_on filters out the outcome's status, then shouldRetry is false without being exhausted", func(t *testing.T) {
		policy := RetryPolicy{MaxAttempts: 5, RetryOn: RetryOnStatus(503)}
		state := newRetryState(policy)
		state.recordBadStatus(&Response{StatusCode: 404})

		assert.False(t, state.shouldRetry())
		assert.False(t, state.exhaustedByAttempts())
	})

	t.Run("given an override with its own retry_on filter for the last status, then the override wins", func(t *testing.T) {
		policy := RetryPolicy{
			MaxAttempts: 5,
			RetryOn:     RetryOnStatus(503),
			Overrides: map[int]RetryOverride{
				429: {HasFilter: true, RetryOnFilter: RetryOnAny()},
			},
		}
		state := newRetryState(policy)
		state.recordBadStatus(&Response{StatusCode: 429})

		assert.True(t, state.shouldRetry())
	})
}

func TestRetryState_Delay(t *testing.T) {
	t.Parallel()

	t.Run("given the first attempt, then delay is the base delay", func(t *testing.T) {
		policy := RetryPolicy{BaseDelay: time.Second, DelayModifier: 2}
		state := newRetryState(policy)

		assert.Equal(t, time.Second, state.delay())
	})

	t.Run("given subsequent attempts, then delay grows by delay_modifier^(attempt-1)", func(t *testing.T) {
		policy := RetryPolicy{BaseDelay: time.Second, DelayModifier: 2}
		state := newRetryState(policy)
		state.Attempt = 3

		assert.Equal(t, 4*time.Second, state.delay())
	})

	t.Run("given an override delay for the last status, then it replaces the computed delay", func(t *testing.T) {
		policy := RetryPolicy{
			BaseDelay:     time.Second,
			DelayModifier: 2,
			Overrides: map[int]RetryOverride{
				429: {HasDelay: true, Delay: 30 * time.Second},
			},
		}
		state := newRetryState(policy)
		state.recordBadStatus(&Response{StatusCode: 429})

		assert.Equal(t, 30*time.Second, state.delay())
	})
}

func TestRetryState_Cause(t *testing.T) {
	t.Parallel()

	t.Run("given a transport error, then Cause describes it", func(t *testing.T) {
		state := newRetryState(RetryPolicy{})
		state.recordTransportError(errors.New("connection reset"))

		assert.Contains(t, state.Cause(), "connection reset")
		assert.Equal(t, KindTransport, state.kind())
	})

	t.Run("given a bad status, then Cause names the status code", func(t *testing.T) {
		state := newRetryState(RetryPolicy{})
		state.recordBadStatus(&Response{StatusCode: 503})

		assert.Contains(t, state.Cause(), "503")
		assert.Equal(t, KindBadStatus, state.kind())
	})
}

func TestRetryOn_Matches(t *testing.T) {
	t.Parallel()

	t.Run("given the zero value, then it matches any outcome", func(t *testing.T) {
		var filter RetryOn
		assert.True(t, filter.Matches(KindTransport, 0))
		assert.True(t, filter.Matches(KindBadStatus, 503))
	})

	t.Run("given RetryOnKind, then only listed kinds match", func(t *testing.T) {
		filter := RetryOnKind(KindTransport)
		assert.True(t, filter.Matches(KindTransport, 0))
		assert.False(t, filter.Matches(KindBadStatus, 503))
	})
}

func TestRetryPolicy_Behavior(t *testing.T) {
	t.Parallel()
	require.Equal(t, RetryBehavior(0), RetryBreak)
}

package gracy

import (
	"context"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreakerTransport_Send(t *testing.T) {
	t.Parallel()

	t.Run("given a 5xx response, then the breaker counts a failure but the response still reaches the caller", func(t *testing.T) {
		next := SenderFunc(func(OutgoingRequest) (*Response, error) {
			return &Response{StatusCode: 503}, nil
		})
		s := newBreakerTransport(next, DefaultBreakerConfig())

		resp, err := s.Send(OutgoingRequest{Ctx: context.Background()})

		require.NoError(t, err)
		assert.Equal(t, 503, resp.StatusCode)
	})

	t.Run("given a 2xx response, then it passes through untouched", func(t *testing.T) {
		next := SenderFunc(func(OutgoingRequest) (*Response, error) {
			return &Response{StatusCode: 200}, nil
		})
		s := newBreakerTransport(next, DefaultBreakerConfig())

		resp, err := s.Send(OutgoingRequest{Ctx: context.Background()})

		require.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)
	})

	t.Run("given enough failures to trip the breaker, then subsequent Sends fail fast without calling next", func(t *testing.T) {
		var calls int32
		next := SenderFunc(func(OutgoingRequest) (*Response, error) {
			atomic.AddInt32(&calls, 1)
			return &Response{StatusCode: 503}, nil
		})
		cfg := BreakerConfig{MaxRequests: 1, Interval: time.Minute, Timeout: time.Minute, FailureThreshold: 2, FailureRatio: 0.5}
		s := newBreakerTransport(next, cfg)

		for i := 0; i < 2; i++ {
			_, _ = s.Send(OutgoingRequest{Ctx: context.Background()})
		}

		_, err := s.Send(OutgoingRequest{Ctx: context.Background()})
		assert.Error(t, err)
		assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	})
}

func TestRateLimitedTransport_Send(t *testing.T) {
	t.Parallel()

	t.Run("given rps <= 0, then newRateLimitedTransport returns the underlying sender unwrapped", func(t *testing.T) {
		next := SenderFunc(func(OutgoingRequest) (*Response, error) { return &Response{}, nil })
		s := newRateLimitedTransport(next, 0, 0)
		_, ok := s.(*rateLimitedTransport)
		assert.False(t, ok)
	})

	t.Run("given a tight limiter, then a second Send waits for a token", func(t *testing.T) {
		next := SenderFunc(func(OutgoingRequest) (*Response, error) { return &Response{}, nil })
		s := newRateLimitedTransport(next, 20, 1)

		_, err := s.Send(OutgoingRequest{Ctx: context.Background()})
		require.NoError(t, err)

		start := time.Now()
		_, err = s.Send(OutgoingRequest{Ctx: context.Background()})
		require.NoError(t, err)
		assert.Greater(t, time.Since(start), time.Duration(0))
	})
}

func TestCoalescingTransport_Send(t *testing.T) {
	t.Parallel()

	t.Run("given concurrent identical requests, then next is invoked once for both callers", func(t *testing.T) {
		var calls int32
		release := make(chan struct{})
		next := SenderFunc(func(OutgoingRequest) (*Response, error) {
			atomic.AddInt32(&calls, 1)
			<-release
			return &Response{StatusCode: 200}, nil
		})
		s := newCoalescingTransport(next)

		req := OutgoingRequest{Ctx: context.Background(), Method: http.MethodGet, URL: "https://api.example.com/x"}

		done := make(chan *Response, 2)
		go func() {
			r, _ := s.Send(req)
			done <- r
		}()
		go func() {
			time.Sleep(10 * time.Millisecond)
			r, _ := s.Send(req)
			done <- r
		}()

		time.Sleep(20 * time.Millisecond)
		close(release)

		r1 := <-done
		r2 := <-done
		require.NotNil(t, r1)
		require.NotNil(t, r2)
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	})
}

func TestDefaultSender(t *testing.T) {
	t.Parallel()

	t.Run("given default config, then DefaultSender builds a usable layered Sender", func(t *testing.T) {
		cfg := DefaultTransportConfig()
		s := DefaultSender(cfg)
		assert.NotNil(t, s)
	})
}

package gracy

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderTemplate(t *testing.T) {
	t.Parallel()

	t.Run("given known placeholders, then they are substituted", func(t *testing.T) {
		out := renderTemplate("{METHOD} {URL} -> {STATUS}", map[string]string{
			phMethod: "GET",
			phURL:    "https://api.example.com/pokemon/ditto",
			phStatus: "200",
		})
		assert.Equal(t, "GET https://api.example.com/pokemon/ditto -> 200", out)
	})

	t.Run("given an unknown placeholder, then it is left untouched", func(t *testing.T) {
		out := renderTemplate("{METHOD} did {SOMETHING_ELSE}", map[string]string{phMethod: "GET"})
		assert.Equal(t, "GET did {SOMETHING_ELSE}", out)
	})

	t.Run("given no values, then the template is returned verbatim", func(t *testing.T) {
		out := renderTemplate("{METHOD}", nil)
		assert.Equal(t, "{METHOD}", out)
	})
}

func TestLogger_LogRequest(t *testing.T) {
	t.Parallel()

	t.Run("given LogRequest disabled, then nothing is written", func(t *testing.T) {
		buf := &bytes.Buffer{}
		l := NewLogger(zerolog.New(buf))
		rc := &RequestContext{Method: "GET", URL: "https://api.example.com/x"}

		l.logRequest(rc)

		assert.Empty(t, buf.String())
	})

	t.Run("given LogRequest enabled, then the rendered template is written", func(t *testing.T) {
		buf := &bytes.Buffer{}
		l := NewLogger(zerolog.New(buf))
		rc := &RequestContext{
			Method: "GET",
			URL:    "https://api.example.com/x",
			Config: GracyConfig{LogRequest: Set(Log(LogLevelInfo, "requesting {METHOD} {URL}"))},
		}

		l.logRequest(rc)

		require.NotEmpty(t, buf.String())
		assert.Contains(t, buf.String(), "requesting GET https://api.example.com/x")
	})
}

func TestLogger_LogResponse(t *testing.T) {
	t.Parallel()

	t.Run("given a response, then status and replay placeholders are populated", func(t *testing.T) {
		buf := &bytes.Buffer{}
		l := NewLogger(zerolog.New(buf))
		rc := &RequestContext{Config: GracyConfig{LogResponse: Set(Log(LogLevelInfo, "status={STATUS} replay={IS_REPLAY}"))}}
		resp := &Response{StatusCode: 200, Replayed: true}

		l.logResponse(rc, resp)

		assert.Contains(t, buf.String(), "status=200 replay=true")
	})
}

func TestLogger_LogBeforeRetry(t *testing.T) {
	t.Parallel()

	t.Run("given an enabled retry log event, then attempt counters are rendered", func(t *testing.T) {
		buf := &bytes.Buffer{}
		l := NewLogger(zerolog.New(buf))
		rc := &RequestContext{
			Config: GracyConfig{Retry: Set(RetryPolicy{LogBeforeRetry: Log(LogLevelWarn, "retry {CUR_ATTEMPT}/{MAX_ATTEMPT} in {RETRY_DELAY}")})},
		}
		state := &RetryState{Attempt: 1, MaxAttempts: 3}

		l.logBeforeRetry(rc, state, 0)

		assert.Contains(t, buf.String(), "retry 1/3")
	})
}

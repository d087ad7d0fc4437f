package gracy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubstitute(t *testing.T) {
	t.Parallel()

	t.Run("given matching args, then placeholders are replaced and escaped", func(t *testing.T) {
		out := substitute("/pokemon/{NAME}", map[string]string{"NAME": "mr mime"})
		assert.Equal(t, "/pokemon/mr%20mime", out)
	})

	t.Run("given an unmatched placeholder, then it is left literal", func(t *testing.T) {
		out := substitute("/pokemon/{NAME}/{UNKNOWN}", map[string]string{"NAME": "ditto"})
		assert.Equal(t, "/pokemon/ditto/{UNKNOWN}", out)
	})
}

func TestJoinURL(t *testing.T) {
	t.Parallel()

	t.Run("given a base with a trailing slash and a path with a leading slash, then exactly one slash separates them", func(t *testing.T) {
		assert.Equal(t, "https://api.example.com/pokemon/ditto", joinURL("https://api.example.com/", "/pokemon/ditto"))
	})

	t.Run("given an empty base, then the path is returned as-is", func(t *testing.T) {
		assert.Equal(t, "/pokemon/ditto", joinURL("", "/pokemon/ditto"))
	})

	t.Run("given an empty path, then the base is returned as-is", func(t *testing.T) {
		assert.Equal(t, "https://api.example.com", joinURL("https://api.example.com", ""))
	})
}

func TestNewRequestContext(t *testing.T) {
	t.Parallel()

	t.Run("given a template and args, then URL/UnformattedURL/Query/Headers are all ready to use", func(t *testing.T) {
		rc := newRequestContext(context.Background(), "GET", "https://api.example.com", "/pokemon/{NAME}", map[string]string{"NAME": "ditto"}, GracyConfig{})

		require.NotNil(t, rc.Query)
		require.NotNil(t, rc.Headers)
		assert.Equal(t, "https://api.example.com/pokemon/ditto", rc.URL)
		assert.Equal(t, "https://api.example.com/pokemon/{NAME}", rc.UnformattedURL)

		assert.NotPanics(t, func() { rc.Query.Add("a", "1") })
	})

	t.Run("given two calls, then each gets a distinct generated RequestID", func(t *testing.T) {
		rc1 := newRequestContext(context.Background(), "GET", "https://api.example.com", "/x", nil, GracyConfig{})
		rc2 := newRequestContext(context.Background(), "GET", "https://api.example.com", "/x", nil, GracyConfig{})

		require.NotEmpty(t, rc1.RequestID)
		assert.NotEqual(t, rc1.RequestID, rc2.RequestID)
	})
}

package replaystore

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guilatrova/gracy/gracy"
)

func TestMemory_RecordAndLoad(t *testing.T) {
	t.Parallel()

	t.Run("given a recorded exchange, when loaded by fingerprint, then returns it", func(t *testing.T) {
		store := NewMemory()
		ex := gracy.Exchange{
			Fingerprint:     "abc123",
			Method:          http.MethodGet,
			URL:             "https://api.example.com/pokemon/ditto",
			Status:          200,
			ResponseBody:    []byte(`{"name":"ditto"}`),
			ResponseHeaders: http.Header{"Content-Type": []string{"application/json"}},
			RecordedAt:      time.Now(),
		}

		require.NoError(t, store.Record(context.Background(), ex))

		got, err := store.Load(context.Background(), "abc123")
		require.NoError(t, err)
		assert.Equal(t, ex.Status, got.Status)
		assert.Equal(t, ex.ResponseBody, got.ResponseBody)
		assert.Equal(t, 1, store.Len())
	})

	t.Run("given no recorded exchange, when loaded, then returns ErrNoReplayFound", func(t *testing.T) {
		store := NewMemory()
		_, err := store.Load(context.Background(), "missing")
		assert.True(t, errors.Is(err, gracy.ErrNoReplayFound))
	})

	t.Run("given the same fingerprint recorded twice, then the second overwrites the first", func(t *testing.T) {
		store := NewMemory()
		require.NoError(t, store.Record(context.Background(), gracy.Exchange{Fingerprint: "k", Status: 500}))
		require.NoError(t, store.Record(context.Background(), gracy.Exchange{Fingerprint: "k", Status: 200}))

		got, err := store.Load(context.Background(), "k")
		require.NoError(t, err)
		assert.Equal(t, 200, got.Status)
		assert.Equal(t, 1, store.Len())
	})
}

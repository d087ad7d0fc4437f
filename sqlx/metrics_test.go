package sqlx

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/stretchr/testify/require"
)

func TestNewMetrics(t *testing.T) {
	meter := noop.NewMeterProvider().Meter("test")

	m, err := newMetrics(meter)

	require.NoError(t, err)
	require.NotNil(t, m.queryDuration)
}

func TestMetrics_RecordQueryDuration(t *testing.T) {
	t.Run("given a nil metrics receiver, then it does not panic", func(t *testing.T) {
		var m *metrics
		require.NotPanics(t, func() {
			m.recordQueryDuration(context.Background(), time.Millisecond, "SELECT", nil, nil)
		})
	})

	t.Run("given a noop meter and an error, then recording does not panic", func(t *testing.T) {
		meter := noop.NewMeterProvider().Meter("test")
		m, err := newMetrics(meter)
		require.NoError(t, err)

		require.NotPanics(t, func() {
			m.recordQueryDuration(context.Background(), time.Millisecond, "SELECT",
				[]attribute.KeyValue{attribute.String("db.system", "postgresql")},
				errors.New("boom"))
		})
	})
}

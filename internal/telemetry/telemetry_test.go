package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

func TestInitWithoutEndpointIsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), "order-api", "")

	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestResourceCarriesServiceName(t *testing.T) {
	res, err := Resource(context.Background(), "order-reconciler")
	require.NoError(t, err)

	v, ok := res.Set().Value(semconv.ServiceNameKey)
	require.True(t, ok)
	assert.Equal(t, "order-reconciler", v.AsString())
}

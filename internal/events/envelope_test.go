package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAndDecode(t *testing.T) {
	env, err := New(EventOrderStatusChanged, "order-api", "o-1", OrderStatusChangedPayload{
		OrderID: "o-1", From: "pending", To: "cancelled", Reason: "out of time",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, env.EventID)
	assert.Equal(t, 1, env.EventVersion)
	assert.Equal(t, "o-1", env.CorrelationID)
	assert.False(t, env.OccurredAt.IsZero())

	p, err := Decode[OrderStatusChangedPayload](env)
	require.NoError(t, err)
	assert.Equal(t, "cancelled", p.To)
	assert.Equal(t, "out of time", p.Reason)
}

func TestPartitionKey(t *testing.T) {
	assert.Equal(t, []byte("o-9"), PartitionKey("o-9"))
}

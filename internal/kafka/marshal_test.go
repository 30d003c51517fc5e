package kafka

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/warehouse-orders/internal/domain"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	env := NewEnvelope(domain.EventStockAdjusted, "order-api", "trace-1", 42,
		domain.StockAdjustedPayload{ProductID: 7, OrderID: 42, Delta: -3, Stock: 5, MinStock: 2})

	assert.NotEmpty(t, env.EventID)
	assert.Equal(t, 1, env.EventVersion)
	assert.Equal(t, "42", env.CorrelationID)

	got, err := DecodeEnvelope(MustMarshal(env))
	require.NoError(t, err)
	assert.Equal(t, env.EventID, got.EventID)
	assert.Equal(t, domain.EventStockAdjusted, got.EventType)
	assert.Equal(t, "trace-1", got.TraceID)

	p, err := UnwrapPayload[domain.StockAdjustedPayload](got.Payload)
	require.NoError(t, err)
	assert.Equal(t, -3, p.Delta)
	assert.Equal(t, int64(7), p.ProductID)
}

func TestEnvelopeIDsAreUnique(t *testing.T) {
	a := NewEnvelope(domain.EventOrderCreated, "p", "", 1, struct{}{})
	b := NewEnvelope(domain.EventOrderCreated, "p", "", 1, struct{}{})
	assert.NotEqual(t, a.EventID, b.EventID)
}

func TestDecodeEnvelopeRejectsGarbage(t *testing.T) {
	_, err := DecodeEnvelope([]byte("nope"))
	assert.Error(t, err)
}

func TestHeaders(t *testing.T) {
	h := Headers(domain.EventStockLow)
	require.Len(t, h, 2)
	assert.Equal(t, "x-event-type", h[0].Key)
	assert.Equal(t, domain.EventStockLow, string(h[0].Value))
}

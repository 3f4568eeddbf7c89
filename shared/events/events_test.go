package events

import (
	"testing"

	"github.com/draftea/order-fulfillment/shared/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopic_Matches(t *testing.T) {
	tests := []struct {
		name     string
		topic    Topic
		pattern  Topic
		expected bool
	}{
		{name: "empty pattern matches everything", topic: OrderCreatedEvent, pattern: "", expected: true},
		{name: "hash matches everything", topic: PaymentFailedEvent, pattern: "#", expected: true},
		{name: "prefix wildcard", topic: StockReservedEvent, pattern: AllOrderEvents, expected: true},
		{name: "suffix wildcard", topic: PaymentFailedEvent, pattern: "#.failed", expected: true},
		{name: "contains wildcard", topic: StockReservationCancelledEvent, pattern: "#stock#", expected: true},
		{name: "single segment wildcard", topic: PaymentCompletedEvent, pattern: "order.*.completed", expected: true},
		{name: "segment count mismatch", topic: OrderCompletedEvent, pattern: "order.*.completed", expected: false},
		{name: "exact mismatch", topic: OrderCreatedEvent, pattern: OrderCancelledEvent, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.topic.Matches(tt.pattern))
		})
	}
}

func TestEvent_UnmarshalPayload(t *testing.T) {
	orderID := models.ID("550e8400-e29b-41d4-a716-446655440010")
	event := NewEvent(orderID, 3, PaymentCompletedEvent, PaymentCompletedData{
		OrderID:   orderID,
		ReceiptID: "rcpt-1",
		Amount:    models.NewMoney(2500, "USD"),
	})

	t.Run("same type", func(t *testing.T) {
		var data PaymentCompletedData
		require.NoError(t, event.UnmarshalPayload(&data))
		assert.Equal(t, "rcpt-1", data.ReceiptID)
	})

	t.Run("after wire round trip", func(t *testing.T) {
		raw, err := event.ToJSON()
		require.NoError(t, err)

		decoded, err := FromJSON(raw)
		require.NoError(t, err)
		assert.Equal(t, int64(3), decoded.Sequence)
		assert.Equal(t, orderID, decoded.AggregateID)

		var data PaymentCompletedData
		require.NoError(t, decoded.UnmarshalPayload(&data))
		assert.Equal(t, "rcpt-1", data.ReceiptID)
		assert.Equal(t, int64(2500), data.Amount.Amount)
	})

	t.Run("non pointer receiver", func(t *testing.T) {
		var data PaymentCompletedData
		assert.ErrorIs(t, event.UnmarshalPayload(data), ErrInvalidReceiver)
	})

	t.Run("missing payload", func(t *testing.T) {
		empty := NewEvent(orderID, 1, OrderCompletedEvent, nil)
		var data OrderCompletedData
		assert.ErrorIs(t, empty.UnmarshalPayload(&data), ErrInvalidPayload)
	})
}

func TestPartition(t *testing.T) {
	key := "550e8400-e29b-41d4-a716-446655440010"
	first := Partition(key, 8)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Partition(key, 8))
	}
	assert.True(t, first >= 0 && first < 8)
	assert.Equal(t, 0, Partition(key, 1))
	assert.Equal(t, 0, Partition(key, 0))
}

func TestEvent_Clone(t *testing.T) {
	event := NewEvent(models.GenerateUUID(), 1, OrderCreatedEvent, nil).WithMetadata("source", "test")
	clone := event.Clone()
	clone.Metadata.Set("source", "changed")

	value, _ := event.Metadata.Get("source")
	assert.Equal(t, "test", value)
	assert.Equal(t, event.ID, clone.ID)
}

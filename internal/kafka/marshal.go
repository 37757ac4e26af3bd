package kafka

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/ariefcatur/go-qr-orders/internal/events"
	"github.com/segmentio/kafka-go"
)

const (
	HeaderEventType    = "x-event-type"
	HeaderEventVersion = "x-event-version"
)

// Encode turns an envelope into a message keyed by its correlation id, so all
// events of one order land on the same partition.
func Encode(env events.Envelope) (key, value []byte, headers []kafka.Header, err error) {
	value, err = json.Marshal(env)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("encode envelope %s: %w", env.EventID, err)
	}
	headers = []kafka.Header{
		{Key: HeaderEventType, Value: []byte(env.EventType)},
		{Key: HeaderEventVersion, Value: []byte(strconv.Itoa(env.EventVersion))},
	}
	return events.PartitionKey(env.CorrelationID), value, headers, nil
}

func Decode(m kafka.Message) (events.Envelope, error) {
	var env events.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return env, fmt.Errorf("decode envelope at %s/%d@%d: %w", m.Topic, m.Partition, m.Offset, err)
	}
	return env, nil
}

// Header returns the value of the first header named key.
func Header(m kafka.Message, key string) string {
	for _, h := range m.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

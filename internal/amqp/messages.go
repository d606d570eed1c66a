package amqp

import (
	"encoding/json"
	"time"
)

// OutboxChangedMessage tells the worker that an outbox entry is waiting.
// It carries only the entry's coordinates; the worker reads the entry itself
// from the local database.
type OutboxChangedMessage struct {
	QueueID    int64     `json:"queueId"`
	Collection string    `json:"collection"`
	Key        string    `json:"key"`
	Timestamp  time.Time `json:"timestamp"`
}

func NewOutboxChangedMessage(collection, key string, queueID int64) *OutboxChangedMessage {
	return &OutboxChangedMessage{
		QueueID:    queueID,
		Collection: collection,
		Key:        key,
		Timestamp:  time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *OutboxChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func OutboxChangedMessageFromJSON(data []byte) (*OutboxChangedMessage, error) {
	var msg OutboxChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

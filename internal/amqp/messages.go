package amqp

import (
	"encoding/json"
	"errors"
	"time"
)

// RecordsChangedMessage announces that a user's records changed. It carries
// no record data; consumers reload from the database.
type RecordsChangedMessage struct {
	UserID string `json:"user_id"`
	// Version is the owner's write counter after the change.
	Version int64 `json:"version"`
	// Origin identifies the publishing process so it can skip its own events.
	Origin    string    `json:"origin,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

var ErrMissingUserID = errors.New("records changed message without user_id")

func NewRecordsChangedMessage(userID string, version int64, origin string) *RecordsChangedMessage {
	return &RecordsChangedMessage{
		UserID:    userID,
		Version:   version,
		Origin:    origin,
		Timestamp: time.Now(),
	}
}

func (m *RecordsChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// RecordsChangedMessageFromJSON decodes and validates a message body.
func RecordsChangedMessageFromJSON(data []byte) (*RecordsChangedMessage, error) {
	var msg RecordsChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.UserID == "" {
		return nil, ErrMissingUserID
	}
	return &msg, nil
}

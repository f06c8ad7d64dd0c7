package websocket

import (
	"encoding/json"
	"fmt"
)

// Message types exchanged with clients
const (
	TypeChange       = "change"
	TypeSubscribe    = "subscribe"
	TypeUnsubscribe  = "unsubscribe"
	TypeSubscribed   = "subscribed"
	TypeUnsubscribed = "unsubscribed"
	TypePing         = "ping"
	TypePong         = "pong"
	TypeError        = "error"
)

// Message is a websocket frame
type Message struct {
	Type    string          `json:"type"`
	Data    json.RawMessage `json:"data,omitempty"`
	Payload interface{}     `json:"-"`
}

// URIPayload carries an identifier for change and subscription frames
type URIPayload struct {
	URI string `json:"uri"`
}

// marshalMessage converts a Message to JSON bytes
func marshalMessage(message *Message) ([]byte, error) {
	if message.Payload != nil {
		data, err := json.Marshal(message.Payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal payload: %w", err)
		}
		message.Data = data
	}

	return json.Marshal(message)
}

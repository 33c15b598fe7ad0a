package stream

import (
	"encoding/json"
	"errors"
)

var (
	ErrNotConnected  = errors.New("not connected")
	ErrAlreadyClosed = errors.New("already closed")
)

// request is the envelope for client-to-server commands. The session tokens
// ride on every command, not only the subscribe.
type request struct {
	Destination   string `json:"destination"`
	CorrelationID string `json:"correlationId"`
	CST           string `json:"cst"`
	SecurityToken string `json:"securityToken"`
	Payload       any    `json:"payload,omitempty"`
}

// subscribePayload carries the epics for a marketData.subscribe command.
type subscribePayload struct {
	Epics []string `json:"epics"`
}

// serverMessage is the envelope of every server-to-client message.
type serverMessage struct {
	Status        string          `json:"status"`
	Destination   string          `json:"destination"`
	CorrelationID string          `json:"correlationId"`
	Payload       json.RawMessage `json:"payload"`
}

// quotePayload is the payload of a destination=quote message. Timestamp is
// epoch milliseconds; "ofr" is the offer (ask) side.
type quotePayload struct {
	Epic      string  `json:"epic"`
	Bid       float64 `json:"bid"`
	Ofr       float64 `json:"ofr"`
	Timestamp int64   `json:"timestamp"`
}

// subscriptionsPayload is the payload of a subscribe acknowledgement. The
// map value is "PROCESSED" per accepted epic.
type subscriptionsPayload struct {
	Subscriptions map[string]string `json:"subscriptions"`
}

package uds

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/modoterra/tailcast/pkg/core"
)

var reqCounter atomic.Uint64

// MsgType identifies the kind of message.
type MsgType string

const (
	MsgTypeReq MsgType = "req"
	MsgTypeRes MsgType = "res"
	MsgTypeEvt MsgType = "evt"
)

// Message is the NDJSON envelope for all communication.
type Message struct {
	Type   MsgType         `json:"type"`
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Data   json.RawMessage `json:"data,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// UnmarshalData decodes the payload into v. An empty payload leaves v untouched.
func (m Message) UnmarshalData(v any) error {
	if len(m.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(m.Data, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", m.Method, err)
	}
	return nil
}

func encode(data any) (json.RawMessage, error) {
	if data == nil {
		return nil, nil
	}
	b, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// NewRequest creates a new request message with a unique ID.
func NewRequest(method string, data any) (Message, error) {
	raw, err := encode(data)
	if err != nil {
		return Message{}, err
	}
	return Message{
		Type:   MsgTypeReq,
		ID:     fmt.Sprintf("req-%d", reqCounter.Add(1)),
		Method: method,
		Data:   raw,
	}, nil
}

// NewResponse creates a response to a request.
func NewResponse(reqID, method string, data any) (Message, error) {
	raw, err := encode(data)
	if err != nil {
		return Message{}, err
	}
	return Message{
		Type:   MsgTypeRes,
		ID:     reqID,
		Method: method,
		Data:   raw,
	}, nil
}

// NewErrorResponse creates an error response.
func NewErrorResponse(reqID, method, errMsg string) Message {
	return Message{
		Type:   MsgTypeRes,
		ID:     reqID,
		Method: method,
		Error:  errMsg,
	}
}

// NewEvent creates a server-pushed event.
func NewEvent(method string, data any) (Message, error) {
	raw, err := encode(data)
	if err != nil {
		return Message{}, err
	}
	return Message{
		Type:   MsgTypeEvt,
		ID:     fmt.Sprintf("evt-%d", reqCounter.Add(1)),
		Method: method,
		Data:   raw,
	}, nil
}

// Methods
const (
	MethodPing            = "Ping"
	MethodStatus          = "Status"
	MethodLogsByDate      = "LogsByDate"
	MethodLogsSubscribe   = "LogsSubscribe"
	MethodLogsUnsubscribe = "LogsUnsubscribe"

	EventLogsLine   = "logs.line"
	EventLogsStatus = "logs.status"
	EventLogsClosed = "logs.closed"
)

// PingResponse is the response to a Ping request.
type PingResponse struct {
	Pong    bool   `json:"pong"`
	Version string `json:"version,omitempty"`
}

// StatusResponse describes the daemon and its hub.
type StatusResponse struct {
	Source      string    `json:"source"`
	StartedAt   time.Time `json:"started_at"`
	Subscribers int       `json:"subscribers"`
	Buffered    int       `json:"buffered"`
	Capacity    int       `json:"capacity"`
	LastSeq     uint64    `json:"last_seq"`
	Published   uint64    `json:"published"`
	Dropped     uint64    `json:"dropped"`
	Degraded    bool      `json:"degraded"`
	Reason      string    `json:"reason,omitempty"`
}

// LogsByDateRequest asks for the lines of one day, formatted YYYYMMDD.
type LogsByDateRequest struct {
	Date string `json:"date"`
}

// LogsByDateResponse carries the matching lines in file order.
type LogsByDateResponse struct {
	Date  string   `json:"date"`
	Lines []string `json:"lines"`
}

// LogsSubscribeResponse acknowledges a subscription. The replayed lines
// arrive as logs.line events ahead of any live line.
type LogsSubscribeResponse struct {
	SubscriberID uint64 `json:"subscriber_id"`
	Replayed     int    `json:"replayed"`
}

// LogsLineEvent is the payload of logs.line.
type LogsLineEvent = core.LogLine

// LogsStatusEvent is the payload of logs.status.
type LogsStatusEvent struct {
	Degraded bool   `json:"degraded"`
	Reason   string `json:"reason,omitempty"`
}

// LogsClosedEvent tells the client its subscription was dropped by the server.
type LogsClosedEvent struct {
	Reason string `json:"reason"`
}

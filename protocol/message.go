package protocol

import (
	"encoding/json"
	"fmt"
)

// MessageKind discriminates the closed set of wire message variants.
type MessageKind int

const (
	KindRequest MessageKind = iota + 1
	KindResponse
	KindNotification
)

func (k MessageKind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindResponse:
		return "response"
	case KindNotification:
		return "notification"
	default:
		return fmt.Sprintf("MessageKind(%d)", int(k))
	}
}

// Message is the tagged variant for a decoded wire message. Exactly one of
// Request, Response or Notification is non-nil, matching Kind.
type Message struct {
	Kind         MessageKind
	Request      *Request
	Response     *Response
	Notification *Notification
}

// envelope is the minimal probe used to classify an incoming message.
type envelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
}

// ParseMessage decodes raw bytes into a classified Message. A message with a
// method and an id is a request; a method without an id is a notification; an
// id without a method is a response. Anything else is rejected.
func ParseMessage(data []byte) (*Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("invalid JSON frame: %w", err)
	}
	if env.JSONRPC != Version {
		return nil, fmt.Errorf("unsupported jsonrpc version %q", env.JSONRPC)
	}
	hasID := len(env.ID) > 0 && string(env.ID) != "null"

	switch {
	case env.Method != "" && hasID:
		var req Request
		if err := json.Unmarshal(data, &req); err != nil {
			return nil, fmt.Errorf("invalid request frame: %w", err)
		}
		return &Message{Kind: KindRequest, Request: &req}, nil
	case env.Method != "":
		var note Notification
		if err := json.Unmarshal(data, &note); err != nil {
			return nil, fmt.Errorf("invalid notification frame: %w", err)
		}
		return &Message{Kind: KindNotification, Notification: &note}, nil
	case hasID:
		var resp Response
		if err := json.Unmarshal(data, &resp); err != nil {
			return nil, fmt.Errorf("invalid response frame: %w", err)
		}
		return &Message{Kind: KindResponse, Response: &resp}, nil
	default:
		return nil, fmt.Errorf("message is neither a request, response nor notification")
	}
}

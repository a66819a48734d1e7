package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/bytedance/sonic"
)

// FrameType tags every frame on the wire.
type FrameType string

const (
	FrameRequest      FrameType = "request"
	FrameReply        FrameType = "reply"
	FrameNotification FrameType = "notification"
)

// Params carries every argument a method may take. Unused fields are empty.
type Params struct {
	Identity   string          `json:"identity,omitempty"`
	ID         string          `json:"id,omitempty"`
	Descriptor json.RawMessage `json:"descriptor,omitempty"`
}

// Request is an extension call.
type Request struct {
	Type   FrameType `json:"type"`
	Seq    uint64    `json:"seq"`
	Method Method    `json:"method"`
	Params Params    `json:"params"`
}

// Reply answers exactly one Request.
type Reply struct {
	Type    FrameType `json:"type"`
	Seq     uint64    `json:"seq"`
	OK      bool      `json:"ok"`
	Granted *bool     `json:"granted,omitempty"`
	Version string    `json:"version,omitempty"`
	Error   *Error    `json:"error,omitempty"`
}

// Notification is pushed by the host without a matching request.
type Notification struct {
	Type    FrameType `json:"type"`
	Event   Event     `json:"event"`
	Granted *bool     `json:"granted,omitempty"`
	ID      string    `json:"id,omitempty"`
}

// NewRequest builds a request frame.
func NewRequest(seq uint64, m Method, p Params) Request {
	return Request{Type: FrameRequest, Seq: seq, Method: m, Params: p}
}

// Success builds an ok reply for seq.
func Success(seq uint64) Reply {
	return Reply{Type: FrameReply, Seq: seq, OK: true}
}

// Granted builds an ok reply carrying an authorization result.
func Granted(seq uint64, granted bool) Reply {
	r := Success(seq)
	r.Granted = &granted
	return r
}

// Version builds an ok reply carrying the host version.
func Version(seq uint64, v string) Reply {
	r := Success(seq)
	r.Version = v
	return r
}

// Failure builds a failed reply from any error.
func Failure(seq uint64, err error) Reply {
	return Reply{Type: FrameReply, Seq: seq, Error: AsError(err)}
}

// AuthorizationChanged builds the authorizationChanged notification.
func AuthorizationChanged(granted bool) Notification {
	return Notification{Type: FrameNotification, Event: EventAuthorizationChanged, Granted: &granted}
}

// Dismissed builds the dismiss notification for an item.
func Dismissed(ev Event, id string) Notification {
	return Notification{Type: FrameNotification, Event: ev, ID: id}
}

// Marshal encodes any frame.
func Marshal(v any) ([]byte, error) {
	return sonic.Marshal(v)
}

// DecodeRequest parses an inbound frame. Anything other than a well-formed
// request frame is an error carrying CodeDecodeFailure; the returned seq is
// best effort so the caller can still address a reply.
func DecodeRequest(data []byte) (Request, error) {
	var req Request
	if err := sonic.Unmarshal(data, &req); err != nil {
		seq, _ := peekSeq(data)
		return Request{Seq: seq}, Errorf(CodeDecodeFailure, "invalid frame: %v", err)
	}
	if req.Type != FrameRequest {
		return req, Errorf(CodeDecodeFailure, "unexpected frame type %q", req.Type)
	}
	return req, nil
}

// DecodeInbound parses a frame received by an extension: either a reply or
// a notification.
func DecodeInbound(data []byte) (any, error) {
	node, err := sonic.Get(data, "type")
	if err != nil {
		return nil, fmt.Errorf("read frame type: %w", err)
	}
	t, err := node.String()
	if err != nil {
		return nil, fmt.Errorf("read frame type: %w", err)
	}

	switch FrameType(t) {
	case FrameReply:
		var r Reply
		if err := sonic.Unmarshal(data, &r); err != nil {
			return nil, fmt.Errorf("decode reply: %w", err)
		}
		return r, nil
	case FrameNotification:
		var n Notification
		if err := sonic.Unmarshal(data, &n); err != nil {
			return nil, fmt.Errorf("decode notification: %w", err)
		}
		return n, nil
	}
	return nil, fmt.Errorf("unexpected frame type %q", t)
}

func peekSeq(data []byte) (uint64, bool) {
	node, err := sonic.Get(data, "seq")
	if err != nil {
		return 0, false
	}
	n, err := node.Int64()
	if err != nil || n < 0 {
		return 0, false
	}
	return uint64(n), true
}

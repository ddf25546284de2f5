package relay

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/nbd-wtf/go-nostr"

	"github.com/randalmurphal/nostrchess/pkg/nostrchess/codec"
)

// FrameType is the first element of a wire array.
type FrameType string

// Frame types. EVENT, REQ and CLOSE are sent; EVENT, NOTICE, EOSE, OK and
// CLOSED are understood on receipt.
const (
	FrameEvent  FrameType = "EVENT"
	FrameReq    FrameType = "REQ"
	FrameClose  FrameType = "CLOSE"
	FrameNotice FrameType = "NOTICE"
	FrameEOSE   FrameType = "EOSE"
	FrameOK     FrameType = "OK"
	FrameClosed FrameType = "CLOSED"
)

// Inbound is a decoded relay-to-client frame. Only the fields relevant to
// Type are set. Event stays raw so the codec can decode it strictly.
type Inbound struct {
	Type           FrameType
	SubscriptionID string
	Event          json.RawMessage
	EventID        string
	Accepted       bool
	Message        string
}

// EncodeEvent builds ["EVENT", event].
func EncodeEvent(ev codec.Event) ([]byte, error) {
	data, err := json.Marshal([]any{FrameEvent, ev})
	if err != nil {
		return nil, fmt.Errorf("encode event frame: %w", err)
	}
	return data, nil
}

// EncodeReq builds ["REQ", id, filter...].
func EncodeReq(subID string, filters []nostr.Filter) ([]byte, error) {
	arr := make([]any, 0, len(filters)+2)
	arr = append(arr, FrameReq, subID)
	for i := range filters {
		arr = append(arr, &filters[i])
	}
	data, err := json.Marshal(arr)
	if err != nil {
		return nil, fmt.Errorf("encode req frame: %w", err)
	}
	return data, nil
}

// EncodeClose builds ["CLOSE", id].
func EncodeClose(subID string) ([]byte, error) {
	data, err := json.Marshal([]any{FrameClose, subID})
	if err != nil {
		return nil, fmt.Errorf("encode close frame: %w", err)
	}
	return data, nil
}

// DecodeInbound parses a relay frame. Unrecognized shapes return false.
func DecodeInbound(raw []byte) (Inbound, bool) {
	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err != nil || len(arr) < 2 {
		return Inbound{}, false
	}
	var typ string
	if !decodeString(arr[0], &typ) {
		return Inbound{}, false
	}

	in := Inbound{Type: FrameType(typ)}
	switch in.Type {
	case FrameEvent:
		if len(arr) != 3 || !decodeString(arr[1], &in.SubscriptionID) {
			return Inbound{}, false
		}
		obj := bytes.TrimSpace(arr[2])
		if len(obj) == 0 || obj[0] != '{' {
			return Inbound{}, false
		}
		in.Event = obj
	case FrameNotice:
		if len(arr) != 2 || !decodeString(arr[1], &in.Message) {
			return Inbound{}, false
		}
	case FrameEOSE:
		if len(arr) != 2 || !decodeString(arr[1], &in.SubscriptionID) {
			return Inbound{}, false
		}
	case FrameClosed:
		if len(arr) < 2 || !decodeString(arr[1], &in.SubscriptionID) {
			return Inbound{}, false
		}
		if len(arr) > 2 && !decodeString(arr[2], &in.Message) {
			return Inbound{}, false
		}
	case FrameOK:
		if len(arr) < 3 || !decodeString(arr[1], &in.EventID) {
			return Inbound{}, false
		}
		if err := json.Unmarshal(arr[2], &in.Accepted); err != nil {
			return Inbound{}, false
		}
		if len(arr) > 3 && !decodeString(arr[3], &in.Message) {
			return Inbound{}, false
		}
	default:
		return Inbound{}, false
	}
	return in, true
}

func decodeString(raw json.RawMessage, dst *string) bool {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '"' {
		return false
	}
	return json.Unmarshal(raw, dst) == nil
}

package chat

import (
	"encoding/json"
	"strings"

	"ensemble-relay/tools/decode"
	"ensemble-relay/tools/errs"
)

// Event names on the wire.
const (
	EventSendMessage    = "send_message"    // client -> server
	EventSetProfile     = "set_profile"     // client -> server
	EventReceiveMessage = "receive_message" // server -> every other client
	EventError          = "error"           // server -> offending client only
	EventConnected      = "connected"       // server -> client once Active
	EventPing           = "ping"            // client -> server heartbeat
	EventPong           = "pong"            // server -> client heartbeat reply
)

// Envelope is one websocket text frame: {"event": "...", "data": {...}}.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// SendMessagePayload is the data of a send_message event. Pointer fields
// distinguish "absent" from "empty".
type SendMessagePayload struct {
	ID           string   `json:"id,omitempty"`
	Username     *string  `json:"username,omitempty"`
	ProfilePhoto *string  `json:"profilePhoto,omitempty"`
	Message      string   `json:"message"`
	Kind         string   `json:"kind,omitempty"`
	Lat          *float64 `json:"lat,omitempty"`
	Lon          *float64 `json:"lon,omitempty"`
}

// Profile extracts the display-field update the payload carries.
func (p SendMessagePayload) Profile() ProfileUpdate {
	return ProfileUpdate{DisplayName: p.Username, AvatarRef: p.ProfilePhoto}
}

// Content resolves the tagged content. Without an explicit kind, a text that
// is a maps link is read as a location.
func (p SendMessagePayload) Content() (Content, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(p.Kind))) {
	case KindLocation:
		if p.Lat != nil && p.Lon != nil {
			return LocationContent(*p.Lat, *p.Lon), nil
		}
		if lat, lon, ok := ParseLegacyLocation(p.Message); ok {
			return LocationContent(lat, lon), nil
		}
		return Content{}, errs.ErrInvalidLocation.WrapMsg("location without coordinates")
	case KindText:
		return TextContent(p.Message), nil
	case "":
		if lat, lon, ok := ParseLegacyLocation(p.Message); ok {
			return LocationContent(lat, lon), nil
		}
		return TextContent(p.Message), nil
	default:
		return Content{}, errs.ErrBadPayload.WrapMsg("unknown kind", "kind", p.Kind)
	}
}

// ProfilePayload is the data of a set_profile event.
type ProfilePayload struct {
	Username     *string `json:"username,omitempty"`
	ProfilePhoto *string `json:"profilePhoto,omitempty"`
}

// ReceiveMessagePayload is the data of a receive_message event.
type ReceiveMessagePayload struct {
	ID           string   `json:"id"`
	Username     string   `json:"username"`
	ProfilePhoto string   `json:"profilePhoto,omitempty"`
	Message      string   `json:"message"`
	Kind         Kind     `json:"kind"`
	Lat          *float64 `json:"lat,omitempty"`
	Lon          *float64 `json:"lon,omitempty"`
	Timestamp    int64    `json:"timestamp"` // unix millis, server receipt time
}

func NewReceivePayload(m ChatMessage) ReceiveMessagePayload {
	p := ReceiveMessagePayload{
		ID:           m.ID,
		Username:     m.SenderName,
		ProfilePhoto: m.SenderAvatarRef,
		Message:      m.Content.Body(),
		Kind:         m.Content.Kind,
		Timestamp:    m.Timestamp.UnixMilli(),
	}
	if m.Content.Kind == KindLocation {
		lat, lon := m.Content.Lat, m.Content.Lon
		p.Lat, p.Lon = &lat, &lon
	}
	return p
}

// ErrorPayload is the data of an error event.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	ID      string `json:"id,omitempty"` // client message id the error refers to
}

// PongPayload answers an application-level ping; browsers cannot send
// websocket ping frames themselves.
type PongPayload struct {
	Timestamp int64 `json:"timestamp"`
}

type ConnectedPayload struct {
	ConnectionID string `json:"connectionId"`
}

// EncodeEvent renders one envelope frame.
func EncodeEvent(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, errs.WrapMsg(err, "marshal event data", "event", event)
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

// ParseEnvelope decodes one inbound frame.
func ParseEnvelope(frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, errs.ErrBadPayload.WrapMsg("envelope", "err", err)
	}
	env.Event = strings.TrimSpace(env.Event)
	if env.Event == "" {
		return Envelope{}, errs.ErrBadPayload.WrapMsg("missing event name")
	}
	return env, nil
}

// DecodePayload decodes event data leniently: numbers sent as strings and
// unknown keys are accepted.
func DecodePayload[T any](data json.RawMessage) (T, error) {
	out, err := decode.DecodeJSON[T](data)
	if err != nil {
		var zero T
		return zero, errs.ErrBadPayload.WrapMsg("", "err", err)
	}
	return *out, nil
}

var errorKeys = map[int]string{
	errs.EmptyMessageError:    "empty_message",
	errs.InvalidLocationError: "invalid_location",
	errs.MessageTooLongError:  "message_too_long",
	errs.UnknownEventError:    "unknown_event",
	errs.BadPayloadError:      "bad_payload",
	errs.UnknownSenderError:   "unknown_sender",
}

// NewErrorPayload maps err to the wire error shape.
func NewErrorPayload(err error, msgID string) ErrorPayload {
	ce, ok := errs.AsCode(err)
	if !ok {
		return ErrorPayload{Code: "internal", Message: "internal error", ID: msgID}
	}
	key, ok := errorKeys[ce.Code]
	if !ok {
		key = "internal"
	}
	return ErrorPayload{Code: key, Message: ce.Msg, ID: msgID}
}

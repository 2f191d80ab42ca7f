package chat

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"ensemble-relay/tools/errs"
)

func TestParseEnvelope(t *testing.T) {
	env, err := ParseEnvelope([]byte(`{"event":" send_message ","data":{"message":"hi"}}`))
	if err != nil {
		t.Fatal(err)
	}
	if env.Event != EventSendMessage || !strings.Contains(string(env.Data), "hi") {
		t.Fatalf("env = %+v", env)
	}
	for _, bad := range []string{`not json`, `{"data":{}}`, `{"event":""}`} {
		if _, err := ParseEnvelope([]byte(bad)); !errors.Is(err, errs.ErrBadPayload) {
			t.Errorf("%s: err = %v", bad, err)
		}
	}
}

func TestDecodeSendMessagePayload(t *testing.T) {
	p, err := DecodePayload[SendMessagePayload](json.RawMessage(`{"id":"m1","username":"alice","message":"hi","extra":1}`))
	if err != nil {
		t.Fatal(err)
	}
	if p.ID != "m1" || p.Username == nil || *p.Username != "alice" || p.ProfilePhoto != nil || p.Message != "hi" {
		t.Fatalf("payload %+v", p)
	}
	if p.Profile().AvatarRef != nil {
		t.Fatal("absent profilePhoto decoded as set")
	}

	p, err = DecodePayload[SendMessagePayload](json.RawMessage(`{"kind":"location","lat":"1.5","lon":2}`))
	if err != nil {
		t.Fatalf("string coordinates: %v", err)
	}
	if p.Lat == nil || *p.Lat != 1.5 || p.Lon == nil || *p.Lon != 2 {
		t.Fatalf("coords %+v", p)
	}

	if _, err := DecodePayload[SendMessagePayload](json.RawMessage(`[1,2]`)); !errors.Is(err, errs.ErrBadPayload) {
		t.Fatalf("array payload err = %v", err)
	}
}

func TestSendMessageContent(t *testing.T) {
	lat, lon := 1.0, 2.0
	cases := []struct {
		name string
		p    SendMessagePayload
		kind Kind
		err  error
	}{
		{"plain", SendMessagePayload{Message: "hi"}, KindText, nil},
		{"legacy url", SendMessagePayload{Message: "https://maps.google.com/?q=1,2"}, KindLocation, nil},
		{"forced text", SendMessagePayload{Kind: "text", Message: "https://maps.google.com/?q=1,2"}, KindText, nil},
		{"coords", SendMessagePayload{Kind: "Location", Lat: &lat, Lon: &lon}, KindLocation, nil},
		{"location from url", SendMessagePayload{Kind: "location", Message: "https://maps.google.com/?q=1,2"}, KindLocation, nil},
		{"location missing", SendMessagePayload{Kind: "location", Lat: &lat}, "", errs.ErrInvalidLocation},
		{"unknown kind", SendMessagePayload{Kind: "gif"}, "", errs.ErrBadPayload},
	}
	for _, c := range cases {
		got, err := c.p.Content()
		if c.err != nil {
			if !errors.Is(err, c.err) {
				t.Errorf("%s: err = %v", c.name, err)
			}
			continue
		}
		if err != nil || got.Kind != c.kind {
			t.Errorf("%s: got %+v, %v", c.name, got, err)
		}
	}
}

func TestEncodeReceiveMessage(t *testing.T) {
	msg := ChatMessage{
		ID:         "m1",
		SenderID:   "A",
		SenderName: "alice",
		Content:    LocationContent(1.5, -2),
		Timestamp:  time.UnixMilli(1234),
	}
	frame, err := EncodeEvent(EventReceiveMessage, NewReceivePayload(msg))
	if err != nil {
		t.Fatal(err)
	}
	var out struct {
		Event string         `json:"event"`
		Data  map[string]any `json:"data"`
	}
	if err := json.Unmarshal(frame, &out); err != nil {
		t.Fatal(err)
	}
	if out.Event != "receive_message" {
		t.Fatalf("event %q", out.Event)
	}
	d := out.Data
	if d["id"] != "m1" || d["username"] != "alice" || d["kind"] != "location" ||
		d["lat"] != 1.5 || d["lon"] != -2.0 || d["timestamp"] != 1234.0 ||
		d["message"] != "https://www.google.com/maps?q=1.5,-2" {
		t.Fatalf("data %v", d)
	}
	if _, has := d["senderId"]; has {
		t.Fatal("connection id leaked to recipients")
	}
}

func TestNewErrorPayload(t *testing.T) {
	p := NewErrorPayload(&HandlerError{MsgID: "m9", Err: errs.ErrEmptyMessage.Wrap()}, "m9")
	if p.Code != "empty_message" || p.ID != "m9" || p.Message == "" {
		t.Fatalf("payload %+v", p)
	}
	if p := NewErrorPayload(errors.New("boom"), ""); p.Code != "internal" {
		t.Fatalf("plain error mapped to %q", p.Code)
	}
	if p := NewErrorPayload(errs.ErrDuplicateConnection.Wrap(), ""); p.Code != "internal" {
		t.Fatalf("unmapped code mapped to %q", p.Code)
	}
}

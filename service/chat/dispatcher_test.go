package chat

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"ensemble-relay/tools/errs"
)

func TestDispatcherRoutesByEvent(t *testing.T) {
	d := NewDispatcher(nil)
	var gotConn string
	var gotData json.RawMessage
	d.Register(HandlerFunc("ping", func(_ context.Context, connID string, data json.RawMessage) error {
		gotConn, gotData = connID, data
		return nil
	}))

	err := d.Dispatch(context.Background(), "c1", Envelope{Event: "ping", Data: json.RawMessage(`{"x":1}`)})
	if err != nil {
		t.Fatal(err)
	}
	if gotConn != "c1" || string(gotData) != `{"x":1}` {
		t.Fatalf("handler got %q %s", gotConn, gotData)
	}
	if d.GetHandler("nope") != nil {
		t.Fatal("unexpected handler")
	}
}

func TestDispatcherUnknownEvent(t *testing.T) {
	strict := false
	d := NewDispatcher(func() bool { return strict })

	if err := d.Dispatch(context.Background(), "c1", Envelope{Event: "typing"}); err != nil {
		t.Fatalf("lenient mode returned %v", err)
	}
	strict = true
	if err := d.Dispatch(context.Background(), "c1", Envelope{Event: "typing"}); !errors.Is(err, errs.ErrUnknownEvent) {
		t.Fatalf("strict mode err = %v", err)
	}
}

func TestHandlerErrorUnwraps(t *testing.T) {
	err := error(&HandlerError{MsgID: "m1", Err: errs.ErrEmptyMessage.Wrap()})
	if !errors.Is(err, errs.ErrEmptyMessage) {
		t.Fatal("HandlerError hides its cause")
	}
	var ee *HandlerError
	if !errors.As(err, &ee) || ee.MsgID != "m1" {
		t.Fatal("errors.As failed")
	}
}

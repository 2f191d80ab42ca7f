package decode

import "testing"

type sample struct {
	Name  string   `json:"name"`
	Count int      `json:"count"`
	Lat   *float64 `json:"lat"`
	Tags  []string `json:"tags"`
}

func TestDecodeJSONWeak(t *testing.T) {
	out, err := DecodeJSON[sample]([]byte(`{"name":"a","count":"3","lat":"12.5","tags":["x",2],"extra":true}`))
	if err != nil {
		t.Fatalf("DecodeJSON: %v", err)
	}
	if out.Name != "a" || out.Count != 3 || out.Lat == nil || *out.Lat != 12.5 {
		t.Fatalf("unexpected %+v", out)
	}
	if len(out.Tags) != 2 || out.Tags[1] != "2" {
		t.Fatalf("tags = %v", out.Tags)
	}
}

func TestDecodeJSONEmpty(t *testing.T) {
	for _, raw := range []string{"", "null", "  "} {
		out, err := DecodeJSON[sample]([]byte(raw))
		if err != nil || out == nil || out.Name != "" {
			t.Fatalf("DecodeJSON(%q) = %+v, %v", raw, out, err)
		}
	}
}

func TestDecodeJSONStrict(t *testing.T) {
	if _, err := DecodeJSON[sample]([]byte(`{"count":"3"}`), WithWeaklyTypedInput(false)); err == nil {
		t.Fatalf("expected strict decode to reject string count")
	}
	if _, err := DecodeJSON[sample]([]byte(`[1,2]`)); err == nil {
		t.Fatalf("expected array document to be rejected")
	}
	if _, err := DecodeJSON[sample]([]byte(`{"zzz":1}`), Options{WeaklyTypedInput: true, ErrorUnused: true}); err == nil {
		t.Fatalf("expected unused key to be rejected")
	}
}

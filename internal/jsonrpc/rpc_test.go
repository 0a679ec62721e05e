package jsonrpc

import (
	"testing"

	"pairing/internal/testutil"
)

func TestRequestParamsRoundTrip(t *testing.T) {
	type outcome struct {
		Reason string `json:"reason"`
	}
	req, err := NewRequest(MethodPairingDelete, outcome{Reason: "user_disconnect"})
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if req.Method != MethodPairingDelete {
		t.Fatalf("method = %s, want %s", req.Method, MethodPairingDelete)
	}

	var got outcome
	if err := req.UnmarshalParams(&got); err != nil {
		t.Fatalf("UnmarshalParams: %v", err)
	}
	if got.Reason != "user_disconnect" {
		t.Fatalf("reason = %s, want user_disconnect", got.Reason)
	}
}

func TestDecodeClassifiesRequestVsResponse(t *testing.T) {
	req, err := NewRequest(MethodPairingPayload, map[string]string{"foo": "bar"})
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	raw, err := Encode(req)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	payload, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if payload.Request == nil || payload.Response != nil {
		t.Fatalf("expected request payload, got %+v", payload)
	}

	resp := NewError(req.ID, CodeUnauthorized, "Unauthorized JSON-RPC Method Requested: foo_bar")
	raw, err = Encode(resp)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	payload, err = Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if payload.Response == nil || payload.Request != nil {
		t.Fatalf("expected response payload, got %+v", payload)
	}
	if !payload.Response.IsError() {
		t.Fatalf("expected response to carry an error")
	}
}

func TestNewIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewID()
		if seen[id] {
			t.Fatalf("duplicate id generated: %s", id)
		}
		seen[id] = true
	}
}

func TestIsReservedMethod(t *testing.T) {
	for _, m := range []string{MethodPairingRespond, MethodPairingPayload, MethodPairingUpdate, MethodPairingDelete} {
		if !IsReservedMethod(m) {
			t.Fatalf("expected %s to be reserved", m)
		}
	}
	if IsReservedMethod(MethodSessionPropose) {
		t.Fatalf("session_propose is a permission grant, not a reserved wire method")
	}
	if IsReservedMethod("foo_bar") {
		t.Fatalf("foo_bar should not be reserved")
	}
}

func FuzzDecode(f *testing.F) {
	f.Add([]byte(`{"jsonrpc":"2.0","id":"1","method":"pairing_delete","params":{"reason":"x"}}`))
	f.Add([]byte(`{"jsonrpc":"2.0","id":"1","result":true}`))
	f.Add([]byte(`{"jsonrpc":"2.0","id":"1","error":{"code":-32001,"message":"nope"}}`))
	f.Fuzz(func(t *testing.T, data []byte) {
		data = testutil.CapBytes(data, testutil.DefaultMaxFuzzBytes)
		testutil.WithTimeout(t, testutil.DefaultFuzzTimeout, func() {
			_, _ = Decode(data)
		})
	})
}

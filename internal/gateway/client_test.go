package gateway

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestMapAgentError(t *testing.T) {
	cases := []struct {
		name        string
		err         error
		opOnElement bool
		want        string
	}{
		{
			"timeout by code",
			&agentError{Code: "timeout", Message: "script timed out"},
			false, "timeout",
		},
		{
			"timeout by message",
			&agentError{Code: "Error", Message: "async script timed out"},
			false, "timeout",
		},
		{
			"no such window",
			&agentError{Code: "no such window", Message: "no such window"},
			false, "no such window",
		},
		{
			"no such alert",
			&agentError{Code: "Error", Message: "no such alert"},
			false, "no such alert",
		},
		{
			"frame not found",
			&agentError{Code: "Error", Message: "frame not found"},
			false, "no such frame",
		},
		{
			"inaccessible frame document",
			&agentError{Code: "Error", Message: "cannot access frame document"},
			false, "no such frame",
		},
		{
			"no shadow root",
			&agentError{Code: "Error", Message: "no shadow root"},
			false, "no such shadow root",
		},
		{
			"element op went stale",
			&agentError{Code: "Error", Message: "element not found"},
			true, "stale element reference",
		},
		{
			"shadow ref went stale",
			&agentError{Code: "Error", Message: "shadow element not found or stale"},
			true, "stale element reference",
		},
		{
			"find saw nothing",
			&agentError{Code: "Error", Message: "element not found"},
			false, "no such element",
		},
		{
			"anything else",
			&agentError{Code: "Error", Message: "exploded"},
			false, "unknown error",
		},
		{
			"transport failure",
			errors.New("connection refused"),
			false, "unknown error",
		},
	}

	for _, tc := range cases {
		got := mapAgentError(tc.err, tc.opOnElement)
		if got.Code != tc.want {
			t.Errorf("%s: mapped to %q, want %q", tc.name, got.Code, tc.want)
		}
	}
}

func TestMapScriptError(t *testing.T) {
	got := mapScriptError(&agentError{
		Code: "Error", Message: "x", Stacktrace: "Error: x\n  at <anonymous>",
	})
	if got.Code != "javascript error" {
		t.Errorf("expected javascript error, got %q", got.Code)
	}
	if got.Message != "x" {
		t.Errorf("expected original message, got %q", got.Message)
	}
	if got.Stacktrace == "" {
		t.Error("expected the stacktrace to survive")
	}

	got = mapScriptError(&agentError{Code: "timeout", Message: "script timed out"})
	if got.Code != "timeout" {
		t.Errorf("script timeouts must map to timeout, got %q", got.Code)
	}
}

func TestAgentClientPost(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer ts.Close()

	c := &agentClient{baseURL: ts.URL, httpClient: &http.Client{Timeout: time.Second}}
	raw, err := c.post("/anything", map[string]int{"n": 1})
	if err != nil {
		t.Fatalf("post failed: %v", err)
	}
	if string(raw) != `{"ok":true}` {
		t.Errorf("unexpected body: %s", raw)
	}
}

func TestAgentClientPostError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"Error","message":"boom"}`))
	}))
	defer ts.Close()

	c := &agentClient{baseURL: ts.URL, httpClient: &http.Client{Timeout: time.Second}}
	_, err := c.post("/anything", nil)
	if err == nil {
		t.Fatal("expected error")
	}
	ae, ok := err.(*agentError)
	if !ok {
		t.Fatalf("expected *agentError, got %T", err)
	}
	if ae.Message != "boom" {
		t.Errorf("expected boom, got %q", ae.Message)
	}
}

func TestAgentClientTransportError(t *testing.T) {
	// Point at a closed server.
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	ts.Close()

	c := &agentClient{baseURL: ts.URL, httpClient: &http.Client{Timeout: time.Second}}
	_, err := c.post("/anything", nil)
	if err == nil {
		t.Fatal("expected transport error")
	}
	if _, ok := err.(*agentError); ok {
		t.Error("transport failures must not look like agent errors")
	}
}

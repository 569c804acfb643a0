package agent

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"
)

var resolveIDPattern = regexp.MustCompile(`resolve\("([0-9a-f-]{36})"`)

// fakeHost scripts the webview side: it records every eval and settles
// each one with the next queued reply, the way the bridge would.
type fakeHost struct {
	agent *Agent

	mu      sync.Mutex
	evals   []string
	replies []string
	evalErr error
	noReply bool
}

func (h *fakeHost) Eval(label, script string) error {
	h.mu.Lock()
	h.evals = append(h.evals, script)
	err := h.evalErr
	var reply string
	hasReply := false
	if !h.noReply && len(h.replies) > 0 {
		reply = h.replies[0]
		h.replies = h.replies[1:]
		hasReply = true
	}
	h.mu.Unlock()

	if err != nil {
		return err
	}
	if hasReply {
		m := resolveIDPattern.FindStringSubmatch(script)
		if m != nil {
			go h.agent.Resolve(m[1], json.RawMessage(reply))
		}
	}
	return nil
}

func (h *fakeHost) lastEval() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.evals) == 0 {
		return ""
	}
	return h.evals[len(h.evals)-1]
}

func (h *fakeHost) Labels() []string             { return []string{"main"} }
func (h *fakeHost) HasWindow(label string) bool  { return label == "main" }
func (h *fakeHost) Rect(string) (WindowRect, error) {
	return WindowRect{X: 0, Y: 0, Width: 800, Height: 600}, nil
}
func (h *fakeHost) SetRect(string, *float64, *float64, *float64, *float64) error { return nil }
func (h *fakeHost) Insets(string) (Insets, error)                                { return Insets{Top: 28, Y: 28}, nil }
func (h *fakeHost) Fullscreen(string) error                                      { return nil }
func (h *fakeHost) Minimize(string) error                                        { return nil }
func (h *fakeHost) Maximize(string) error                                        { return nil }
func (h *fakeHost) Focus(string) error                                           { return nil }
func (h *fakeHost) Close(string) error                                           { return nil }
func (h *fakeHost) NewWindow() (string, error)                                   { return "", errors.New("unsupported") }

// emptyHost has no windows at all
type emptyHost struct{ fakeHost }

func (h *emptyHost) Labels() []string       { return nil }
func (h *emptyHost) HasWindow(string) bool  { return false }

func newTestAgent(replies ...string) (*Agent, *fakeHost) {
	h := &fakeHost{replies: replies}
	a := New(h)
	h.agent = a
	return a, h
}

func TestEvalReturnsValue(t *testing.T) {
	a, h := newTestAgent(`"hello"`)

	result, err := a.eval("return 'hello'")
	if err != nil {
		t.Fatalf("eval failed: %v", err)
	}
	if string(result) != `"hello"` {
		t.Errorf("expected \"hello\", got %s", result)
	}

	script := h.lastEval()
	if !strings.Contains(script, "return 'hello'") {
		t.Errorf("user script missing from wrapper: %q", script)
	}
	if !strings.Contains(script, "window.__WEBDRIVER__.resolve(") {
		t.Errorf("wrapper must call the bridge resolve: %q", script)
	}
	if strings.Contains(script, "(function(document)") {
		t.Error("top-level eval must not shadow document")
	}
}

func TestEvalScriptError(t *testing.T) {
	a, _ := newTestAgent(`{"error":"Error","message":"boom","stacktrace":"Error: boom"}`)

	_, err := a.eval("throw new Error('boom')")
	if err == nil {
		t.Fatal("expected error")
	}
	var se *scriptError
	if !errors.As(err, &se) {
		t.Fatalf("expected scriptError, got %T", err)
	}
	if se.Name != "Error" || se.Message != "boom" {
		t.Errorf("unexpected script error: %+v", se)
	}
	if se.Stacktrace == "" {
		t.Error("expected the stacktrace to survive")
	}
}

func TestEvalTimeoutKeepsRegistrationAndDropsLateReply(t *testing.T) {
	a, h := newTestAgent()
	h.noReply = true
	a.scriptTimeout = 50 * time.Millisecond

	_, err := a.eval("return 1")
	if err == nil || !strings.Contains(err.Error(), "timed out") {
		t.Fatalf("expected timeout, got %v", err)
	}

	// The registration stays so the late reply is recognized.
	a.mu.Lock()
	pending := len(a.pending)
	a.mu.Unlock()
	if pending != 1 {
		t.Fatalf("expected 1 pending entry after timeout, got %d", pending)
	}

	m := resolveIDPattern.FindStringSubmatch(h.lastEval())
	if m == nil {
		t.Fatal("could not extract pending id")
	}
	a.Resolve(m[1], json.RawMessage(`"late"`))

	a.mu.Lock()
	pending = len(a.pending)
	a.mu.Unlock()
	if pending != 0 {
		t.Errorf("late reply should clear the registration, got %d", pending)
	}
}

func TestResolveUnknownIDIgnored(t *testing.T) {
	a, _ := newTestAgent()
	// Must not panic or block.
	a.Resolve("never-registered", json.RawMessage(`1`))
}

func TestEvalDispatchFailure(t *testing.T) {
	a, h := newTestAgent()
	h.evalErr = errors.New("webview gone")

	_, err := a.eval("return 1")
	if err == nil || !strings.Contains(err.Error(), "eval dispatch failed") {
		t.Errorf("expected dispatch failure, got %v", err)
	}
}

func TestEvalNoWindow(t *testing.T) {
	h := &emptyHost{}
	a := New(h)
	h.agent = a

	_, err := a.eval("return 1")
	if !errors.Is(err, ErrNoWindow) {
		t.Errorf("expected ErrNoWindow, got %v", err)
	}
}

func TestFramePrefixEmpty(t *testing.T) {
	a, _ := newTestAgent()
	if prefix := a.framePrefix(); prefix != "" {
		t.Errorf("expected empty prefix at top level, got %q", prefix)
	}
}

func TestFramePrefixDescent(t *testing.T) {
	a, _ := newTestAgent()
	a.frames = []frameRef{
		{Selector: "iframe", Index: 0},
		{Selector: "#inner", Index: 2},
	}

	prefix := a.framePrefix()
	if !strings.Contains(prefix, "var __doc=document;") {
		t.Errorf("prefix must start from the top document: %q", prefix)
	}
	if !strings.Contains(prefix, `querySelectorAll("iframe")[0]`) {
		t.Errorf("first hop missing: %q", prefix)
	}
	if !strings.Contains(prefix, `querySelectorAll("#inner")[2]`) {
		t.Errorf("second hop missing: %q", prefix)
	}
	if !strings.Contains(prefix, "contentDocument||__f.shadowRoot") {
		t.Errorf("descent must accept frame documents and shadow roots: %q", prefix)
	}
	if !strings.Contains(prefix, "throw new Error('frame not found')") {
		t.Errorf("missing frames must throw: %q", prefix)
	}
}

func TestEvalInFrameShadowsDocument(t *testing.T) {
	a, h := newTestAgent(`null`)
	a.frames = []frameRef{{Selector: "iframe", Index: 0}}

	if _, err := a.eval("return document.title"); err != nil {
		t.Fatalf("eval failed: %v", err)
	}
	script := h.lastEval()
	if !strings.Contains(script, "(function(document){") {
		t.Errorf("frame eval must shadow document via a parameter: %q", script)
	}
	if !strings.Contains(script, ".call(null,__doc)") {
		t.Errorf("frame eval must pass the frame document: %q", script)
	}
}

func TestEvalCallbackSubstitutesID(t *testing.T) {
	a, h := newTestAgent(`"data"`)

	result, err := a.evalCallback(
		`window.__WEBDRIVER__.resolve("__CALLBACK_ID__","data")`)
	if err != nil {
		t.Fatalf("evalCallback failed: %v", err)
	}
	if string(result) != `"data"` {
		t.Errorf("expected \"data\", got %s", result)
	}
	if strings.Contains(h.lastEval(), "__CALLBACK_ID__") {
		t.Error("callback id placeholder must be substituted")
	}
}

func TestNotifyNavigationClearsFrames(t *testing.T) {
	a, _ := newTestAgent()
	a.frames = []frameRef{{Selector: "iframe", Index: 0}}
	a.NotifyNavigation()

	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.frames) != 0 {
		t.Error("navigation must clear the frame stack")
	}
}

func TestCheckScriptErrorShapes(t *testing.T) {
	cases := []struct {
		in    string
		isErr bool
	}{
		{`{"error":"TypeError","message":"x","stacktrace":""}`, true},
		{`{"error":"E","message":"m"}`, true},
		{`"plain string"`, false},
		{`42`, false},
		{`null`, false},
		{`[1,2]`, false},
		{`{"name":"not an error"}`, false},
	}
	for _, tc := range cases {
		_, err := checkScriptError(json.RawMessage(tc.in))
		if tc.isErr && err == nil {
			t.Errorf("checkScriptError(%s) should detect an error", tc.in)
		}
		if !tc.isErr && err != nil {
			t.Errorf("checkScriptError(%s) false positive: %v", tc.in, err)
		}
	}
}

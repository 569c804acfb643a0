package gateway

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/danielraffel/tauri-webdriver/internal/config"
)

func TestParsePortLine(t *testing.T) {
	cases := []struct {
		line string
		port int
		ok   bool
	}{
		{"[webdriver] listening on port 8080", 8080, true},
		{"[webdriver] listening on port 65535", 65535, true},
		{"[webdriver] listening on port 0", 0, false},
		{"[webdriver] listening on port 70000", 0, false},
		{"[webdriver] listening on port eight", 0, false},
		{"listening on port 8080", 0, false},
		{"", 0, false},
		{"app booting", 0, false},
	}
	for _, tc := range cases {
		port, ok := ParsePortLine(tc.line)
		if ok != tc.ok {
			t.Errorf("ParsePortLine(%q) ok = %v, want %v", tc.line, ok, tc.ok)
		}
		if ok && port != tc.port {
			t.Errorf("ParsePortLine(%q) = %d, want %d", tc.line, port, tc.port)
		}
	}
}

func TestParseBinary(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
		ok   bool
	}{
		{
			"alwaysMatch binary",
			`{"capabilities":{"alwaysMatch":{"tauri:options":{"binary":"/apps/demo"}}}}`,
			"/apps/demo", true,
		},
		{
			"alwaysMatch application alias",
			`{"capabilities":{"alwaysMatch":{"tauri:options":{"application":"/apps/demo"}}}}`,
			"/apps/demo", true,
		},
		{
			"firstMatch binary",
			`{"capabilities":{"firstMatch":[{"tauri:options":{"binary":"/apps/demo"}}]}}`,
			"/apps/demo", true,
		},
		{
			"unknown entries ignored",
			`{"capabilities":{"alwaysMatch":{"browserName":"tauri","goog:chromeOptions":{},"tauri:options":{"binary":"/apps/demo"}}}}`,
			"/apps/demo", true,
		},
		{
			"missing options",
			`{"capabilities":{"alwaysMatch":{}}}`,
			"", false,
		},
		{
			"empty body",
			`{}`,
			"", false,
		},
	}

	for _, tc := range cases {
		got, err := parseBinary(json.RawMessage(tc.body))
		if tc.ok && err != nil {
			t.Errorf("%s: unexpected error: %v", tc.name, err)
		}
		if !tc.ok && err == nil {
			t.Errorf("%s: expected error", tc.name)
		}
		if got != tc.want {
			t.Errorf("%s: binary = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestStoreElementMintsFreshIDs(t *testing.T) {
	s := &Session{
		elements: make(map[string]ElementRef),
		shadows:  make(map[string]ElementRef),
	}
	ref := ElementRef{Using: "css", Selector: "#x", Index: 0}

	first := s.StoreElement(ref)
	second := s.StoreElement(ref)

	if first == second {
		t.Error("identical triples must still get distinct element ids")
	}

	got, ok := s.Element(first)
	if !ok || got != ref {
		t.Errorf("Element(%q) = %+v, %v", first, got, ok)
	}
	got, ok = s.Element(second)
	if !ok || got != ref {
		t.Errorf("Element(%q) = %+v, %v", second, got, ok)
	}
}

func TestElementUnknownID(t *testing.T) {
	s := &Session{elements: make(map[string]ElementRef)}
	if _, ok := s.Element("nope"); ok {
		t.Error("unknown element id should not resolve")
	}
}

func TestStoreShadow(t *testing.T) {
	s := &Session{
		elements: make(map[string]ElementRef),
		shadows:  make(map[string]ElementRef),
	}
	host := ElementRef{Using: "css", Selector: "#shadow-host", Index: 0}
	id := s.StoreShadow(host)

	got, ok := s.Shadow(id)
	if !ok || got != host {
		t.Errorf("Shadow(%q) = %+v, %v", id, got, ok)
	}
}

func TestDefaultTimeouts(t *testing.T) {
	tm := DefaultTimeouts()
	if tm.Script != 30000 {
		t.Errorf("expected script 30000, got %d", tm.Script)
	}
	if tm.PageLoad != 300000 {
		t.Errorf("expected pageLoad 300000, got %d", tm.PageLoad)
	}
	if tm.Implicit != 0 {
		t.Errorf("expected implicit 0, got %d", tm.Implicit)
	}
}

func TestSetTimeoutsPartial(t *testing.T) {
	s := &Session{
		agent:    newAgentClient(1, time.Second),
		timeouts: DefaultTimeouts(),
	}
	script := uint64(5000)
	s.SetTimeouts(&script, nil, nil)

	tm := s.Timeouts()
	if tm.Script != 5000 {
		t.Errorf("expected script 5000, got %d", tm.Script)
	}
	if tm.PageLoad != 300000 {
		t.Errorf("pageLoad should be unchanged, got %d", tm.PageLoad)
	}
}

// writeStubApp writes a shell script that mimics the target app: it
// announces a port on stdout and then sleeps.
func writeStubApp(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stub-app")
	script := "#!/bin/sh\n" + body
	if err := os.WriteFile(path, []byte(script), 0755); err != nil {
		t.Fatal(err)
	}
	return path
}

func testManager(t *testing.T) *Manager {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.App.LaunchTimeout = 5
	cfg.App.KillGrace = 1
	return NewManager(cfg, log.New(os.Stderr, "[test] ", 0))
}

func sessionBody(binary string) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(
		`{"capabilities":{"alwaysMatch":{"tauri:options":{"binary":%q}}}}`, binary))
}

func TestCreateAndDeleteSession(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("stub app requires a POSIX shell")
	}

	app := writeStubApp(t,
		"echo \"[webdriver] listening on port 45678\"\nexec sleep 60\n")
	m := testManager(t)

	session, caps, werr := m.Create(sessionBody(app))
	if werr != nil {
		t.Fatalf("Create failed: %s", werr.Message)
	}
	if session.ID == "" {
		t.Error("expected a session id")
	}
	if caps.BrowserName != "tauri" {
		t.Errorf("expected browserName tauri, got %s", caps.BrowserName)
	}
	if caps.TauriOptions["binary"] != app {
		t.Errorf("expected binary %s, got %s", app, caps.TauriOptions["binary"])
	}
	if !m.Active() {
		t.Error("manager should report an active session")
	}

	if werr := m.Delete(session.ID); werr != nil {
		t.Fatalf("Delete failed: %s", werr.Message)
	}
	if m.Active() {
		t.Error("manager should be idle after delete")
	}
	if !session.Exited() {
		t.Error("process should have exited after delete")
	}
}

func TestCreateSecondSessionRejected(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("stub app requires a POSIX shell")
	}

	app := writeStubApp(t,
		"echo \"[webdriver] listening on port 45678\"\nexec sleep 60\n")
	m := testManager(t)

	session, _, werr := m.Create(sessionBody(app))
	if werr != nil {
		t.Fatalf("Create failed: %s", werr.Message)
	}
	defer m.Delete(session.ID)

	if _, _, werr := m.Create(sessionBody(app)); werr == nil {
		t.Fatal("second create should fail while a session is active")
	} else if werr.Code != "session not created" {
		t.Errorf("expected session not created, got %q", werr.Code)
	}
}

func TestCreateMissingBinary(t *testing.T) {
	m := testManager(t)
	_, _, werr := m.Create(json.RawMessage(`{"capabilities":{"alwaysMatch":{}}}`))
	if werr == nil {
		t.Fatal("expected error")
	}
	if werr.Code != "session not created" {
		t.Errorf("expected session not created, got %q", werr.Code)
	}
}

func TestCreateSpawnFailure(t *testing.T) {
	m := testManager(t)
	_, _, werr := m.Create(sessionBody("/nonexistent/binary/path"))
	if werr == nil {
		t.Fatal("expected error")
	}
	if werr.Code != "session not created" {
		t.Errorf("expected session not created, got %q", werr.Code)
	}
}

func TestCreateNoPortAnnouncement(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("stub app requires a POSIX shell")
	}

	// The app exits without ever printing the signature line.
	app := writeStubApp(t, "echo \"booting\"\n")
	cfg := config.DefaultConfig()
	cfg.App.LaunchTimeout = 2
	cfg.App.KillGrace = 1
	m := NewManager(cfg, log.New(os.Stderr, "[test] ", 0))

	_, _, werr := m.Create(sessionBody(app))
	if werr == nil {
		t.Fatal("expected error when the port line never appears")
	}
	if werr.Code != "session not created" {
		t.Errorf("expected session not created, got %q", werr.Code)
	}
}

func TestGetUnknownSession(t *testing.T) {
	m := testManager(t)
	if _, werr := m.Get("missing"); werr == nil {
		t.Fatal("expected invalid session id")
	} else if werr.Code != "invalid session id" {
		t.Errorf("expected invalid session id, got %q", werr.Code)
	}
}

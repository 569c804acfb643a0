// Session lifecycle: launching the target application, discovering the
// agent's port from its stdout, and tearing the process down again.
// The gateway holds at most one session at a time.
package gateway

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/danielraffel/tauri-webdriver/internal/config"
	"github.com/danielraffel/tauri-webdriver/internal/w3c"
)

// automationEnv is set in the child environment so the application
// registers its automation agent.
const automationEnv = "TAURI_WEBVIEW_AUTOMATION=true"

// portLinePrefix is the stdout announcement the agent prints.
const portLinePrefix = "[webdriver] listening on port "

// Timeouts is the session timeout configuration in milliseconds
type Timeouts struct {
	Script   uint64 `json:"script"`
	PageLoad uint64 `json:"pageLoad"`
	Implicit uint64 `json:"implicit"`
}

// DefaultTimeouts returns the W3C default timeout configuration
func DefaultTimeouts() Timeouts {
	return Timeouts{Script: 30000, PageLoad: 300000, Implicit: 0}
}

// ElementRef is the stable identity of a located element: the locator
// strategy, the selector string, and the match index.
type ElementRef struct {
	Using    string `json:"using"`
	Selector string `json:"selector"`
	Index    int    `json:"index"`
}

// Session is the single active WebDriver session
type Session struct {
	ID     string
	Binary string

	agent *agentClient
	cmd   *exec.Cmd

	mu       sync.Mutex
	elements map[string]ElementRef
	shadows  map[string]ElementRef // shadow id -> host element triple
	timeouts Timeouts

	// done is closed when the application process exits
	done chan struct{}
}

// StoreElement mints a fresh element id for the triple. A new id is
// issued even for a triple already in the table: callers must never
// observe deduplication of element references.
func (s *Session) StoreElement(ref ElementRef) string {
	id := uuid.New().String()
	s.mu.Lock()
	s.elements[id] = ref
	s.mu.Unlock()
	return id
}

// Element resolves an element id to its triple
func (s *Session) Element(id string) (ElementRef, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ref, ok := s.elements[id]
	return ref, ok
}

// StoreShadow records a shadow root id for the host element triple
func (s *Session) StoreShadow(host ElementRef) string {
	id := uuid.New().String()
	s.mu.Lock()
	s.shadows[id] = host
	s.mu.Unlock()
	return id
}

// Shadow resolves a shadow id to its host triple
func (s *Session) Shadow(id string) (ElementRef, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ref, ok := s.shadows[id]
	return ref, ok
}

// Timeouts returns a copy of the session timeout configuration
func (s *Session) Timeouts() Timeouts {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeouts
}

// SetTimeouts updates any provided timeout fields and resizes the agent
// client deadline to match the script timeout.
func (s *Session) SetTimeouts(script, pageLoad, implicit *uint64) {
	s.mu.Lock()
	if script != nil {
		s.timeouts.Script = *script
	}
	if pageLoad != nil {
		s.timeouts.PageLoad = *pageLoad
	}
	if implicit != nil {
		s.timeouts.Implicit = *implicit
	}
	scriptMs := s.timeouts.Script
	s.mu.Unlock()
	// Leave headroom over the agent's own deadline so its timeout error
	// arrives instead of a dropped connection.
	s.agent.setTimeout(time.Duration(scriptMs)*time.Millisecond + 5*time.Second)
}

// Exited reports whether the application process has exited
func (s *Session) Exited() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Manager owns the single session slot
type Manager struct {
	cfg    *config.Config
	logger *log.Logger

	mu      sync.Mutex
	session *Session
}

// NewManager creates a session manager
func NewManager(cfg *config.Config, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.Default()
	}
	return &Manager{cfg: cfg, logger: logger}
}

// Get returns the session with the given id, or an invalid-session error
func (m *Manager) Get(id string) (*Session, *w3c.Error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil || m.session.ID != id {
		return nil, w3c.ErrNoSession()
	}
	if m.session.Exited() {
		// The application died under us; drop the session so the
		// client gets invalid session id from here on.
		s := m.session
		m.session = nil
		go m.reap(s)
		return nil, w3c.ErrNoSession()
	}
	return m.session, nil
}

// Active reports whether a session currently exists
func (m *Manager) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session != nil && !m.session.Exited()
}

// Capabilities is the negotiated capability set returned on create
type Capabilities struct {
	BrowserName  string            `json:"browserName"`
	PlatformName string            `json:"platformName"`
	TauriOptions map[string]string `json:"tauri:options"`
}

// parseBinary extracts tauri:options.binary from a new-session request
// body, accepting the "application" alias and both alwaysMatch and
// firstMatch placements. Unknown capability entries are ignored.
func parseBinary(body json.RawMessage) (string, error) {
	var req struct {
		Capabilities struct {
			AlwaysMatch map[string]json.RawMessage   `json:"alwaysMatch"`
			FirstMatch  []map[string]json.RawMessage `json:"firstMatch"`
		} `json:"capabilities"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return "", fmt.Errorf("malformed capabilities: %w", err)
	}

	candidates := []map[string]json.RawMessage{req.Capabilities.AlwaysMatch}
	if len(req.Capabilities.FirstMatch) > 0 {
		candidates = append(candidates, req.Capabilities.FirstMatch[0])
	}

	for _, caps := range candidates {
		raw, ok := caps["tauri:options"]
		if !ok {
			continue
		}
		var opts struct {
			Binary      string `json:"binary"`
			Application string `json:"application"`
		}
		if err := json.Unmarshal(raw, &opts); err != nil {
			continue
		}
		if opts.Binary != "" {
			return opts.Binary, nil
		}
		if opts.Application != "" {
			return opts.Application, nil
		}
	}

	return "", fmt.Errorf("missing tauri:options.binary (or application) in capabilities")
}

// Create launches the application and establishes the session. It fails
// with "session not created" if one is already active, the spawn fails,
// or the agent port never appears on stdout.
func (m *Manager) Create(body json.RawMessage) (*Session, Capabilities, *w3c.Error) {
	binary, err := parseBinary(body)
	if err != nil {
		return nil, Capabilities{}, w3c.ErrSessionNotCreated(err.Error())
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session != nil && !m.session.Exited() {
		return nil, Capabilities{}, w3c.ErrSessionNotCreated(
			"a session is already active")
	}

	cmd := exec.Command(binary)
	cmd.Env = append(os.Environ(), automationEnv)
	cmd.Env = append(cmd.Env, m.cfg.App.Env...)
	cmd.Stderr = os.Stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, Capabilities{}, w3c.ErrSessionNotCreated(
			fmt.Sprintf("failed to capture app stdout: %v", err))
	}

	if err := cmd.Start(); err != nil {
		return nil, Capabilities{}, w3c.ErrSessionNotCreated(
			fmt.Sprintf("failed to launch %s: %v", binary, err))
	}

	done := make(chan struct{})
	go func() {
		cmd.Wait()
		close(done)
	}()

	scanner := bufio.NewScanner(stdout)
	port, err := m.scanForPort(scanner, done)
	if err != nil {
		terminate(cmd, done, time.Duration(m.cfg.App.KillGrace)*time.Second)
		return nil, Capabilities{}, w3c.ErrSessionNotCreated(err.Error())
	}

	// Keep draining stdout so the app never blocks on a full pipe.
	go func() {
		for scanner.Scan() {
		}
	}()

	timeouts := DefaultTimeouts()
	session := &Session{
		ID:       uuid.New().String(),
		Binary:   binary,
		agent:    newAgentClient(port, time.Duration(timeouts.Script)*time.Millisecond+5*time.Second),
		cmd:      cmd,
		elements: make(map[string]ElementRef),
		shadows:  make(map[string]ElementRef),
		timeouts: timeouts,
		done:     done,
	}
	m.session = session
	m.logger.Printf("session %s created, agent on port %d (pid %d)",
		session.ID, port, cmd.Process.Pid)

	caps := Capabilities{
		BrowserName:  "tauri",
		PlatformName: "mac",
		TauriOptions: map[string]string{"binary": binary},
	}
	return session, caps, nil
}

// scanForPort reads stdout lines until the agent announcement appears
// or the launch deadline passes.
func (m *Manager) scanForPort(scanner *bufio.Scanner, done chan struct{}) (int, error) {
	type result struct {
		port int
		err  error
	}
	resultCh := make(chan result, 1)

	go func() {
		for scanner.Scan() {
			line := scanner.Text()
			m.logger.Printf("app stdout: %s", line)
			if port, ok := ParsePortLine(line); ok {
				resultCh <- result{port: port}
				return
			}
		}
		resultCh <- result{err: fmt.Errorf(
			"app exited without reporting the agent port")}
	}()

	deadline := time.Duration(m.cfg.App.LaunchTimeout) * time.Second
	select {
	case r := <-resultCh:
		return r.port, r.err
	case <-time.After(deadline):
		return 0, fmt.Errorf("app did not report the agent port within %s", deadline)
	case <-done:
		// Give the scanner a moment to deliver a line that raced with
		// process exit.
		select {
		case r := <-resultCh:
			return r.port, r.err
		case <-time.After(time.Second):
			return 0, fmt.Errorf("app exited without reporting the agent port")
		}
	}
}

// ParsePortLine extracts the agent port from a stdout line, matching
// exactly the announcement format.
func ParsePortLine(line string) (int, bool) {
	rest, ok := strings.CutPrefix(line, portLinePrefix)
	if !ok {
		return 0, false
	}
	port, err := strconv.Atoi(strings.TrimSpace(rest))
	if err != nil || port < 1 || port > 65535 {
		return 0, false
	}
	return port, true
}

// Delete tears down the session with the given id
func (m *Manager) Delete(id string) *w3c.Error {
	m.mu.Lock()
	if m.session == nil || m.session.ID != id {
		m.mu.Unlock()
		return w3c.ErrNoSession()
	}
	s := m.session
	m.session = nil
	m.mu.Unlock()

	m.reap(s)
	m.logger.Printf("session %s deleted", s.ID)
	return nil
}

// Shutdown tears down any active session, for server exit
func (m *Manager) Shutdown() {
	m.mu.Lock()
	s := m.session
	m.session = nil
	m.mu.Unlock()
	if s != nil {
		m.reap(s)
		m.logger.Printf("killed app process for session %s on shutdown", s.ID)
	}
}

// reap terminates the session's application process
func (m *Manager) reap(s *Session) {
	terminate(s.cmd, s.done, time.Duration(m.cfg.App.KillGrace)*time.Second)
}

// terminate signals the process politely, then forcefully after grace.
func terminate(cmd *exec.Cmd, done chan struct{}, grace time.Duration) {
	if cmd == nil || cmd.Process == nil {
		return
	}
	select {
	case <-done:
		return
	default:
	}

	cmd.Process.Signal(syscall.SIGTERM)
	select {
	case <-done:
		return
	case <-time.After(grace):
	}
	cmd.Process.Kill()
	<-done
}

package agent

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

//go:embed bridge.js
var bridgeScript string

// BridgeScript returns the in-page bridge source. The host application
// must inject it into every webview before page scripts run and bind
// the __wdResolve IPC callback to the agent's Resolve method.
func BridgeScript() string {
	return bridgeScript
}

// DefaultScriptTimeout bounds how long an eval waits for the bridge to
// call back before the request fails.
const DefaultScriptTimeout = 30 * time.Second

// portAnnouncement is the stdout line format the gateway scans for.
const portAnnouncement = "[webdriver] listening on port %d\n"

// frameRef addresses one step of frame descent: a selector plus the
// match index within the enclosing document.
type frameRef struct {
	Selector string
	Index    int
}

// scriptError is a JavaScript exception reported by the bridge.
type scriptError struct {
	Name       string
	Message    string
	Stacktrace string
}

func (e *scriptError) Error() string {
	return e.Message
}

// Agent is the in-process automation server. One instance is linked
// into the application; Start binds its loopback listener and announces
// the port on stdout for the gateway to discover.
type Agent struct {
	host   Host
	logger *log.Logger

	mu      sync.Mutex
	pending map[string]chan json.RawMessage
	frames  []frameRef
	current string // current window label, "" selects the host default

	scriptTimeout time.Duration

	listener net.Listener
	server   *http.Server
}

// New creates an agent driving the given host.
func New(host Host) *Agent {
	return &Agent{
		host:          host,
		logger:        log.New(os.Stderr, "[webdriver] ", log.LstdFlags),
		pending:       make(map[string]chan json.RawMessage),
		scriptTimeout: DefaultScriptTimeout,
	}
}

// Start binds 127.0.0.1 on an OS-assigned port, prints the port
// announcement line to stdout, and serves the private API in the
// background. It returns the bound port.
func (a *Agent) Start() (int, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("failed to bind agent listener: %w", err)
	}
	a.listener = listener

	a.server = &http.Server{Handler: a.createRouter()}
	go func() {
		if err := a.server.Serve(listener); err != http.ErrServerClosed {
			a.logger.Printf("agent server error: %v", err)
		}
	}()

	port := listener.Addr().(*net.TCPAddr).Port
	// The gateway parses this line from the app's stdout. Nothing else
	// may be printed to stdout before it.
	fmt.Printf(portAnnouncement, port)

	return port, nil
}

// Shutdown stops the private API server.
func (a *Agent) Shutdown(ctx context.Context) error {
	if a.server == nil {
		return nil
	}
	return a.server.Shutdown(ctx)
}

// Resolve delivers a script result for a pending eval. The host binds
// this to the bridge's IPC callback. A late reply for an eval that
// already timed out still finds its entry (await keeps it), removes it,
// and its value is discarded. Unknown ids (duplicate calls, or ids that
// were never registered) are dropped.
func (a *Agent) Resolve(id string, result json.RawMessage) {
	a.mu.Lock()
	ch, ok := a.pending[id]
	if ok {
		delete(a.pending, id)
	}
	a.mu.Unlock()
	if !ok {
		a.logger.Printf("dropping late script result for %s", id)
		return
	}
	// The channel is buffered; if the waiter has given up the value is
	// simply discarded with the channel.
	select {
	case ch <- result:
	default:
	}
}

// NotifyNavigation tells the agent a top-level navigation completed.
// Hosts that can observe navigation should call this; the agent also
// clears the stack itself on the navigation endpoints.
func (a *Agent) NotifyNavigation() {
	a.mu.Lock()
	a.frames = nil
	a.mu.Unlock()
}

func (a *Agent) currentLabel() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

// resolveLabel maps the current-window setting to a concrete host
// label, preferring "main" when no explicit window was selected.
func (a *Agent) resolveLabel() (string, error) {
	label := a.currentLabel()
	if label != "" {
		if !a.host.HasWindow(label) {
			return "", ErrNoWindow
		}
		return label, nil
	}
	if a.host.HasWindow("main") {
		return "main", nil
	}
	labels := a.host.Labels()
	if len(labels) == 0 {
		return "", ErrNoWindow
	}
	return labels[0], nil
}

// framePrefix builds the JS that descends the frame stack, leaving the
// target document in __doc. Empty when the stack is empty.
func (a *Agent) framePrefix() string {
	a.mu.Lock()
	frames := make([]frameRef, len(a.frames))
	copy(frames, a.frames)
	a.mu.Unlock()

	if len(frames) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("var __doc=document;")
	for _, fr := range frames {
		sel, _ := json.Marshal(fr.Selector)
		fmt.Fprintf(&b,
			"var __f=__doc.querySelectorAll(%s)[%d];"+
				"if(!__f)throw new Error('frame not found');"+
				"var __fd=__f.contentDocument||__f.shadowRoot;"+
				"if(!__fd)throw new Error('cannot access frame document');"+
				"__doc=__fd;",
			sel, fr.Index)
	}
	return b.String()
}

// register creates a pending entry and returns its id and result slot.
func (a *Agent) register() (string, chan json.RawMessage) {
	id := uuid.New().String()
	ch := make(chan json.RawMessage, 1)
	a.mu.Lock()
	a.pending[id] = ch
	a.mu.Unlock()
	return id, ch
}

// await blocks on the result slot up to the script timeout. On timeout
// the registration stays in place so a late reply is recognized and
// dropped by Resolve instead of matching a future eval.
func (a *Agent) await(id string, ch chan json.RawMessage) (json.RawMessage, error) {
	timer := time.NewTimer(a.scriptTimeout)
	defer timer.Stop()
	select {
	case result := <-ch:
		return checkScriptError(result)
	case <-timer.C:
		return nil, fmt.Errorf("script timed out")
	}
}

// checkScriptError detects the bridge's thrown-value wrapping.
func checkScriptError(result json.RawMessage) (json.RawMessage, error) {
	var probe struct {
		Error      *string `json:"error"`
		Message    *string `json:"message"`
		Stacktrace string  `json:"stacktrace"`
	}
	if err := json.Unmarshal(result, &probe); err == nil &&
		probe.Error != nil && probe.Message != nil {
		return nil, &scriptError{
			Name:       *probe.Error,
			Message:    *probe.Message,
			Stacktrace: probe.Stacktrace,
		}
	}
	return result, nil
}

// eval runs script in the current frame context and waits for its
// return value. The script body may use `return`; inside a frame the
// frame document shadows `document` via the wrapper's parameter so the
// body needs no awareness of frames.
func (a *Agent) eval(script string) (json.RawMessage, error) {
	label, err := a.resolveLabel()
	if err != nil {
		return nil, err
	}

	id, ch := a.register()

	prefix := a.framePrefix()
	var wrapped string
	if prefix != "" {
		wrapped = fmt.Sprintf(
			"(function(){try{%s"+
				"var __r=(function(document){%s}).call(null,__doc);"+
				"window.__WEBDRIVER__.resolve(%q,__r)"+
				"}catch(__e){window.__WEBDRIVER__.resolve(%q,"+
				"{error:__e.name,message:__e.message,stacktrace:__e.stack||\"\"})"+
				"}})()",
			prefix, script, id, id)
	} else {
		wrapped = fmt.Sprintf(
			"(function(){try{var __r=(function(){%s})();"+
				"window.__WEBDRIVER__.resolve(%q,__r)"+
				"}catch(__e){window.__WEBDRIVER__.resolve(%q,"+
				"{error:__e.name,message:__e.message,stacktrace:__e.stack||\"\"})"+
				"}})()",
			script, id, id)
	}

	if err := a.host.Eval(label, wrapped); err != nil {
		return nil, fmt.Errorf("eval dispatch failed: %w", err)
	}
	return a.await(id, ch)
}

// evalCallback runs a script that calls resolve itself. The literal
// __CALLBACK_ID__ in the script is replaced with the pending id.
func (a *Agent) evalCallback(script string) (json.RawMessage, error) {
	label, err := a.resolveLabel()
	if err != nil {
		return nil, err
	}

	id, ch := a.register()
	final := strings.ReplaceAll(script, "__CALLBACK_ID__", id)

	if err := a.host.Eval(label, final); err != nil {
		return nil, fmt.Errorf("eval dispatch failed: %w", err)
	}
	return a.await(id, ch)
}

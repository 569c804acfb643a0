// Package gateway implements the public W3C WebDriver server: session
// lifecycle for the target application, element and shadow reference
// bookkeeping, and translation of each W3C command into agent API calls.
package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/danielraffel/tauri-webdriver/internal/w3c"
)

// agentError is a failure reported by the agent's private API
type agentError struct {
	Status     int
	Code       string `json:"error"`
	Message    string `json:"message"`
	Stacktrace string `json:"stacktrace"`
}

func (e *agentError) Error() string {
	return fmt.Sprintf("agent error: %s: %s", e.Code, e.Message)
}

// agentClient talks to the in-app automation agent over loopback HTTP
type agentClient struct {
	baseURL    string
	httpClient *http.Client
}

// newAgentClient creates a client for the agent at the given port
func newAgentClient(port int, timeout time.Duration) *agentClient {
	return &agentClient{
		baseURL: fmt.Sprintf("http://127.0.0.1:%d", port),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// setTimeout adjusts the per-request deadline, used when the session's
// script timeout changes.
func (c *agentClient) setTimeout(d time.Duration) {
	c.httpClient.Timeout = d
}

// post sends a JSON request to the agent and returns the raw response
// body. Agent failures come back as *agentError; transport failures as
// plain errors.
func (c *agentClient) post(path string, body any) (json.RawMessage, error) {
	if body == nil {
		body = map[string]any{}
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Post(c.baseURL+path, "application/json",
		bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("agent request failed: %w", err)
	}
	defer resp.Body.Close()

	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("agent response parse failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		ae := &agentError{Status: resp.StatusCode}
		if err := json.Unmarshal(raw, ae); err != nil || ae.Message == "" && ae.Code == "" {
			ae.Code = "unknown error"
			ae.Message = string(raw)
		}
		return nil, ae
	}

	return raw, nil
}

// postObject posts and unmarshals an object response into out
func (c *agentClient) postObject(path string, body, out any) error {
	raw, err := c.post(path, body)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

// mapAgentError converts an agent failure into the W3C error for the
// given operation context. opOnElement distinguishes operations on a
// previously returned element id, where a failed lookup means the
// reference went stale rather than that nothing matched.
func mapAgentError(err error, opOnElement bool) *w3c.Error {
	ae, ok := err.(*agentError)
	if !ok {
		return w3c.ErrUnknown(err.Error())
	}

	msg := strings.ToLower(ae.Message)
	switch {
	case ae.Code == "timeout" || strings.Contains(msg, "timed out"):
		return w3c.ErrTimeout(ae.Message)
	case ae.Code == "no such window":
		return w3c.NewError(http.StatusNotFound, w3c.CodeNoSuchWindow, ae.Message)
	case strings.Contains(msg, "no such alert"):
		return w3c.NewError(http.StatusNotFound, w3c.CodeNoSuchAlert, ae.Message)
	case strings.Contains(msg, "frame not found"),
		strings.Contains(msg, "cannot access frame document"):
		return w3c.NewError(http.StatusNotFound, w3c.CodeNoSuchFrame, ae.Message)
	case strings.Contains(msg, "no shadow root"):
		return w3c.NewError(http.StatusNotFound, w3c.CodeNoSuchShadowRoot, ae.Message)
	case opOnElement && (strings.Contains(msg, "element not found") ||
		strings.Contains(msg, "not found or stale")):
		return w3c.NewError(http.StatusNotFound, w3c.CodeStaleElementRef, ae.Message)
	case strings.Contains(msg, "element not found"):
		return w3c.NewError(http.StatusNotFound, w3c.CodeNoSuchElement, ae.Message)
	default:
		return w3c.ErrUnknown(ae.Message)
	}
}

// mapScriptError converts an execute/sync or execute/async failure.
// Thrown values keep their message and stack under "javascript error".
func mapScriptError(err error) *w3c.Error {
	ae, ok := err.(*agentError)
	if !ok {
		return w3c.ErrUnknown(err.Error())
	}
	if ae.Code == "timeout" || strings.Contains(strings.ToLower(ae.Message), "timed out") {
		return w3c.ErrTimeout(ae.Message)
	}
	we := w3c.ErrJavascript(ae.Message)
	we.Stacktrace = ae.Stacktrace
	return we
}

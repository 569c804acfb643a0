// Agent HTTP router and the window, frame, and navigation endpoint
// handlers. Every endpoint is POST with a JSON body and returns either
// the documented JSON shape or an error object {error, message}.
package agent

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

// createRouter creates the HTTP router with all private API endpoints
func (a *Agent) createRouter() http.Handler {
	mux := http.NewServeMux()

	// Window management
	mux.HandleFunc("/window/handle", a.handleWindowHandle)
	mux.HandleFunc("/window/handles", a.handleWindowHandles)
	mux.HandleFunc("/window/rect", a.handleWindowRect)
	mux.HandleFunc("/window/set-rect", a.handleWindowSetRect)
	mux.HandleFunc("/window/set-current", a.handleWindowSetCurrent)
	mux.HandleFunc("/window/close", a.handleWindowClose)
	mux.HandleFunc("/window/new", a.handleWindowNew)
	mux.HandleFunc("/window/fullscreen", a.handleWindowFullscreen)
	mux.HandleFunc("/window/minimize", a.handleWindowMinimize)
	mux.HandleFunc("/window/maximize", a.handleWindowMaximize)
	mux.HandleFunc("/window/insets", a.handleWindowInsets)

	// Element location and interaction
	mux.HandleFunc("/element/find", a.handleElementFind)
	mux.HandleFunc("/element/find-from", a.handleElementFindFrom)
	mux.HandleFunc("/element/text", a.handleElementText)
	mux.HandleFunc("/element/tag", a.handleElementTag)
	mux.HandleFunc("/element/attribute", a.handleElementAttribute)
	mux.HandleFunc("/element/property", a.handleElementProperty)
	mux.HandleFunc("/element/rect", a.handleElementRect)
	mux.HandleFunc("/element/displayed", a.handleElementDisplayed)
	mux.HandleFunc("/element/enabled", a.handleElementEnabled)
	mux.HandleFunc("/element/selected", a.handleElementSelected)
	mux.HandleFunc("/element/computed-role", a.handleElementComputedRole)
	mux.HandleFunc("/element/computed-label", a.handleElementComputedLabel)
	mux.HandleFunc("/element/active", a.handleElementActive)
	mux.HandleFunc("/element/click", a.handleElementClick)
	mux.HandleFunc("/element/clear", a.handleElementClear)
	mux.HandleFunc("/element/send-keys", a.handleElementSendKeys)
	mux.HandleFunc("/element/set-files", a.handleElementSetFiles)

	// Shadow DOM
	mux.HandleFunc("/element/shadow", a.handleElementShadow)
	mux.HandleFunc("/shadow/find", a.handleShadowFind)

	// Frames
	mux.HandleFunc("/frame/switch", a.handleFrameSwitch)
	mux.HandleFunc("/frame/parent", a.handleFrameParent)

	// Scripts
	mux.HandleFunc("/script/execute", a.handleScriptExecute)
	mux.HandleFunc("/script/execute-async", a.handleScriptExecuteAsync)

	// Navigation
	mux.HandleFunc("/navigate/url", a.handleNavigateURL)
	mux.HandleFunc("/navigate/current", a.handleNavigateCurrent)
	mux.HandleFunc("/navigate/title", a.handleNavigateTitle)
	mux.HandleFunc("/navigate/back", a.handleNavigateBack)
	mux.HandleFunc("/navigate/forward", a.handleNavigateForward)
	mux.HandleFunc("/navigate/refresh", a.handleNavigateRefresh)
	mux.HandleFunc("/source", a.handleSource)

	// Screenshots and print
	mux.HandleFunc("/screenshot", a.handleScreenshot)
	mux.HandleFunc("/screenshot/element", a.handleScreenshotElement)
	mux.HandleFunc("/print", a.handlePrint)

	// Cookies
	mux.HandleFunc("/cookie/get-all", a.handleCookieGetAll)
	mux.HandleFunc("/cookie/get", a.handleCookieGet)
	mux.HandleFunc("/cookie/add", a.handleCookieAdd)
	mux.HandleFunc("/cookie/delete", a.handleCookieDelete)
	mux.HandleFunc("/cookie/delete-all", a.handleCookieDeleteAll)

	// Alerts
	mux.HandleFunc("/alert/text", a.handleAlertText)
	mux.HandleFunc("/alert/accept", a.handleAlertAccept)
	mux.HandleFunc("/alert/dismiss", a.handleAlertDismiss)
	mux.HandleFunc("/alert/send-text", a.handleAlertSendText)

	return mux
}

// ErrorResponse is the error body for failed agent requests
type ErrorResponse struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	Stacktrace string `json:"stacktrace,omitempty"`
}

// writeJSON writes a success response body
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// writeError classifies err and writes the error body. Script errors
// keep their JavaScript name and stack; everything else is tagged by
// failure class so the gateway can map it to a W3C code.
func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")

	var se *scriptError
	switch {
	case errors.As(err, &se):
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(ErrorResponse{
			Error:      se.Name,
			Message:    se.Message,
			Stacktrace: se.Stacktrace,
		})
	case errors.Is(err, ErrNoWindow):
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(ErrorResponse{
			Error:   "no such window",
			Message: err.Error(),
		})
	case strings.Contains(err.Error(), "timed out"):
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(ErrorResponse{
			Error:   "timeout",
			Message: err.Error(),
		})
	default:
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(ErrorResponse{
			Error:   "unknown error",
			Message: err.Error(),
		})
	}
}

// decode parses the request body into req
func decode(r *http.Request, req any) error {
	return json.NewDecoder(r.Body).Decode(req)
}

// --- Window handlers ---

// LabelRequest addresses a window; an empty label means the current one
type LabelRequest struct {
	Label string `json:"label"`
}

func (a *Agent) windowLabel(req LabelRequest) (string, error) {
	if req.Label != "" {
		if !a.host.HasWindow(req.Label) {
			return "", ErrNoWindow
		}
		return req.Label, nil
	}
	return a.resolveLabel()
}

func (a *Agent) handleWindowHandle(w http.ResponseWriter, r *http.Request) {
	label, err := a.resolveLabel()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, label)
}

func (a *Agent) handleWindowHandles(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, a.host.Labels())
}

func (a *Agent) handleWindowRect(w http.ResponseWriter, r *http.Request) {
	var req LabelRequest
	decode(r, &req)
	label, err := a.windowLabel(req)
	if err != nil {
		writeError(w, err)
		return
	}
	rect, err := a.host.Rect(label)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, rect)
}

// SetRectRequest moves and/or resizes a window
type SetRectRequest struct {
	Label  string   `json:"label"`
	X      *float64 `json:"x"`
	Y      *float64 `json:"y"`
	Width  *float64 `json:"width"`
	Height *float64 `json:"height"`
}

func (a *Agent) handleWindowSetRect(w http.ResponseWriter, r *http.Request) {
	var req SetRectRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	label, err := a.windowLabel(LabelRequest{Label: req.Label})
	if err != nil {
		writeError(w, err)
		return
	}
	if err := a.host.SetRect(label, req.X, req.Y, req.Width, req.Height); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, true)
}

// SetCurrentRequest selects the window subsequent operations target
type SetCurrentRequest struct {
	Label string `json:"label"`
}

func (a *Agent) handleWindowSetCurrent(w http.ResponseWriter, r *http.Request) {
	var req SetCurrentRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if !a.host.HasWindow(req.Label) {
		writeError(w, ErrNoWindow)
		return
	}
	a.host.Focus(req.Label)
	// Switching windows always lands in the top-level browsing context.
	a.mu.Lock()
	a.current = req.Label
	a.frames = nil
	a.mu.Unlock()
	writeJSON(w, true)
}

// CloseRequest names the window to close
type CloseRequest struct {
	Label string `json:"label"`
}

func (a *Agent) handleWindowClose(w http.ResponseWriter, r *http.Request) {
	var req CloseRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if !a.host.HasWindow(req.Label) {
		writeError(w, ErrNoWindow)
		return
	}
	if err := a.host.Close(req.Label); err != nil {
		writeError(w, err)
		return
	}
	a.mu.Lock()
	if a.current == req.Label {
		a.current = ""
	}
	// The frame stack may point into the closed window's document.
	a.frames = nil
	a.mu.Unlock()
	writeJSON(w, true)
}

func (a *Agent) handleWindowNew(w http.ResponseWriter, r *http.Request) {
	label, err := a.host.NewWindow()
	if err != nil {
		writeError(w, err)
		return
	}
	a.host.Focus(label)
	writeJSON(w, map[string]string{"handle": label, "type": "window"})
}

func (a *Agent) handleWindowFullscreen(w http.ResponseWriter, r *http.Request) {
	a.windowStateOp(w, r, a.host.Fullscreen)
}

func (a *Agent) handleWindowMinimize(w http.ResponseWriter, r *http.Request) {
	a.windowStateOp(w, r, a.host.Minimize)
}

func (a *Agent) handleWindowMaximize(w http.ResponseWriter, r *http.Request) {
	a.windowStateOp(w, r, a.host.Maximize)
}

func (a *Agent) windowStateOp(w http.ResponseWriter, r *http.Request, op func(string) error) {
	var req LabelRequest
	decode(r, &req)
	label, err := a.windowLabel(req)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := op(label); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, true)
}

func (a *Agent) handleWindowInsets(w http.ResponseWriter, r *http.Request) {
	var req LabelRequest
	decode(r, &req)
	label, err := a.windowLabel(req)
	if err != nil {
		writeError(w, err)
		return
	}
	insets, err := a.host.Insets(label)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, insets)
}

// --- Frame handlers ---

// FrameSwitchRequest switches frame context. ID is null for top-level,
// an integer for switch-by-index, or a {selector, index} object.
type FrameSwitchRequest struct {
	ID json.RawMessage `json:"id"`
}

func (a *Agent) handleFrameSwitch(w http.ResponseWriter, r *http.Request) {
	var req FrameSwitchRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	trimmed := strings.TrimSpace(string(req.ID))
	if trimmed == "" || trimmed == "null" {
		a.mu.Lock()
		a.frames = nil
		a.mu.Unlock()
		writeJSON(w, nil)
		return
	}

	var index int
	if err := json.Unmarshal(req.ID, &index); err == nil {
		a.mu.Lock()
		a.frames = append(a.frames, frameRef{Selector: "iframe", Index: index})
		a.mu.Unlock()
		writeJSON(w, nil)
		return
	}

	var ref struct {
		Selector string `json:"selector"`
		Index    int    `json:"index"`
	}
	if err := json.Unmarshal(req.ID, &ref); err == nil && ref.Selector != "" {
		a.mu.Lock()
		a.frames = append(a.frames, frameRef{Selector: ref.Selector, Index: ref.Index})
		a.mu.Unlock()
		writeJSON(w, nil)
		return
	}

	writeError(w, errors.New("invalid frame id"))
}

func (a *Agent) handleFrameParent(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	if len(a.frames) > 0 {
		a.frames = a.frames[:len(a.frames)-1]
	}
	a.mu.Unlock()
	writeJSON(w, nil)
}

// --- Navigation handlers ---

// NavigateRequest carries the target URL
type NavigateRequest struct {
	URL string `json:"url"`
}

func (a *Agent) handleNavigateURL(w http.ResponseWriter, r *http.Request) {
	var req NavigateRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	url, _ := json.Marshal(req.URL)
	// Navigation must target the top-level document regardless of the
	// current frame context.
	a.NotifyNavigation()
	if _, err := a.eval("window.location.href=" + string(url) + ";return null"); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, nil)
}

func (a *Agent) handleNavigateCurrent(w http.ResponseWriter, r *http.Request) {
	result, err := a.eval("return window.location.href")
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]json.RawMessage{"url": result})
}

func (a *Agent) handleNavigateTitle(w http.ResponseWriter, r *http.Request) {
	// window.document reaches the real document even when the frame
	// prefix shadows the document parameter.
	result, err := a.eval("return window.document.title")
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]json.RawMessage{"title": result})
}

func (a *Agent) handleNavigateBack(w http.ResponseWriter, r *http.Request) {
	a.NotifyNavigation()
	if _, err := a.eval("window.history.back();return null"); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, nil)
}

func (a *Agent) handleNavigateForward(w http.ResponseWriter, r *http.Request) {
	a.NotifyNavigation()
	if _, err := a.eval("window.history.forward();return null"); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, nil)
}

func (a *Agent) handleNavigateRefresh(w http.ResponseWriter, r *http.Request) {
	a.NotifyNavigation()
	if _, err := a.eval("window.location.reload();return null"); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, nil)
}

func (a *Agent) handleSource(w http.ResponseWriter, r *http.Request) {
	result, err := a.eval("return document.documentElement.outerHTML")
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]json.RawMessage{"source": result})
}

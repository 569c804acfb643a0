// Navigation, frame, and window handlers: thin translations onto the
// agent's window API and navigation evals.
package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/danielraffel/tauri-webdriver/internal/w3c"
)

// forward posts to the agent and returns the named field of its
// response envelope, handling the error mapping uniformly.
func (s *Server) forward(w http.ResponseWriter, session *Session, path string, body any, field string) {
	raw, err := session.agent.post(path, body)
	if err != nil {
		w3c.WriteError(w, mapAgentError(err, false))
		return
	}
	if field == "" {
		w3c.WriteValue(w, nil)
		return
	}
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(raw, &envelope); err != nil {
		w3c.WriteError(w, w3c.ErrUnknown("malformed agent response"))
		return
	}
	w3c.WriteValue(w, envelope[field])
}

// --- Navigation ---

func (s *Server) handleNavigateTo(w http.ResponseWriter, r *http.Request) {
	session, werr := s.session(r)
	if werr != nil {
		w3c.WriteError(w, werr)
		return
	}
	var req struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(readBody(r), &req); err != nil || req.URL == "" {
		w3c.WriteError(w, w3c.ErrInvalidArgument("missing url"))
		return
	}
	s.forward(w, session, "/navigate/url", map[string]string{"url": req.URL}, "")
}

func (s *Server) handleGetURL(w http.ResponseWriter, r *http.Request) {
	session, werr := s.session(r)
	if werr != nil {
		w3c.WriteError(w, werr)
		return
	}
	s.forward(w, session, "/navigate/current", nil, "url")
}

func (s *Server) handleGetTitle(w http.ResponseWriter, r *http.Request) {
	session, werr := s.session(r)
	if werr != nil {
		w3c.WriteError(w, werr)
		return
	}
	s.forward(w, session, "/navigate/title", nil, "title")
}

func (s *Server) handleGetSource(w http.ResponseWriter, r *http.Request) {
	session, werr := s.session(r)
	if werr != nil {
		w3c.WriteError(w, werr)
		return
	}
	s.forward(w, session, "/source", nil, "source")
}

func (s *Server) handleBack(w http.ResponseWriter, r *http.Request) {
	session, werr := s.session(r)
	if werr != nil {
		w3c.WriteError(w, werr)
		return
	}
	s.forward(w, session, "/navigate/back", nil, "")
}

func (s *Server) handleForward(w http.ResponseWriter, r *http.Request) {
	session, werr := s.session(r)
	if werr != nil {
		w3c.WriteError(w, werr)
		return
	}
	s.forward(w, session, "/navigate/forward", nil, "")
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	session, werr := s.session(r)
	if werr != nil {
		w3c.WriteError(w, werr)
		return
	}
	s.forward(w, session, "/navigate/refresh", nil, "")
}

// --- Frames ---

func (s *Server) handleSwitchToFrame(w http.ResponseWriter, r *http.Request) {
	session, werr := s.session(r)
	if werr != nil {
		w3c.WriteError(w, werr)
		return
	}
	var req struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(readBody(r), &req); err != nil {
		w3c.WriteError(w, w3c.ErrInvalidArgument("malformed frame body"))
		return
	}

	id := req.ID
	if len(id) == 0 || string(id) == "null" {
		s.forward(w, session, "/frame/switch", map[string]any{"id": nil}, "")
		return
	}

	var index int
	if err := json.Unmarshal(id, &index); err == nil {
		if index < 0 {
			w3c.WriteError(w, w3c.ErrInvalidArgument("frame index must not be negative"))
			return
		}
		s.forward(w, session, "/frame/switch", map[string]any{"id": index}, "")
		return
	}

	// An object form must be a W3C element reference to a frame element.
	var ref map[string]string
	if err := json.Unmarshal(id, &ref); err == nil {
		if eid, ok := ref[w3c.ElementKey]; ok {
			elem, found := session.Element(eid)
			if !found {
				w3c.WriteError(w, w3c.ErrNoElement(eid))
				return
			}
			s.forward(w, session, "/frame/switch", map[string]any{
				"id": map[string]any{
					"selector": elem.Selector,
					"index":    elem.Index,
				},
			}, "")
			return
		}
	}

	w3c.WriteError(w, w3c.ErrInvalidArgument("invalid frame id"))
}

func (s *Server) handleSwitchToParentFrame(w http.ResponseWriter, r *http.Request) {
	session, werr := s.session(r)
	if werr != nil {
		w3c.WriteError(w, werr)
		return
	}
	s.forward(w, session, "/frame/parent", nil, "")
}

// --- Window ---

func (s *Server) handleGetWindowHandle(w http.ResponseWriter, r *http.Request) {
	session, werr := s.session(r)
	if werr != nil {
		w3c.WriteError(w, werr)
		return
	}
	raw, err := session.agent.post("/window/handle", nil)
	if err != nil {
		w3c.WriteError(w, mapAgentError(err, false))
		return
	}
	w3c.WriteValue(w, json.RawMessage(raw))
}

func (s *Server) handleGetWindowHandles(w http.ResponseWriter, r *http.Request) {
	session, werr := s.session(r)
	if werr != nil {
		w3c.WriteError(w, werr)
		return
	}
	raw, err := session.agent.post("/window/handles", nil)
	if err != nil {
		w3c.WriteError(w, mapAgentError(err, false))
		return
	}
	w3c.WriteValue(w, json.RawMessage(raw))
}

func (s *Server) handleSwitchToWindow(w http.ResponseWriter, r *http.Request) {
	session, werr := s.session(r)
	if werr != nil {
		w3c.WriteError(w, werr)
		return
	}
	var req struct {
		Handle string `json:"handle"`
	}
	if err := json.Unmarshal(readBody(r), &req); err != nil || req.Handle == "" {
		w3c.WriteError(w, w3c.ErrInvalidArgument("missing 'handle'"))
		return
	}
	if _, err := session.agent.post("/window/set-current",
		map[string]string{"label": req.Handle}); err != nil {
		w3c.WriteError(w, w3c.NewError(http.StatusNotFound, w3c.CodeNoSuchWindow,
			"window '"+req.Handle+"' not found"))
		return
	}
	w3c.WriteValue(w, nil)
}

func (s *Server) handleCloseWindow(w http.ResponseWriter, r *http.Request) {
	session, werr := s.session(r)
	if werr != nil {
		w3c.WriteError(w, werr)
		return
	}
	raw, err := session.agent.post("/window/handle", nil)
	if err != nil {
		w3c.WriteError(w, mapAgentError(err, false))
		return
	}
	var label string
	json.Unmarshal(raw, &label)
	if _, err := session.agent.post("/window/close",
		map[string]string{"label": label}); err != nil {
		w3c.WriteError(w, mapAgentError(err, false))
		return
	}
	handles, err := session.agent.post("/window/handles", nil)
	if err != nil {
		w3c.WriteError(w, mapAgentError(err, false))
		return
	}
	w3c.WriteValue(w, json.RawMessage(handles))
}

// windowRect posts an op then returns the resulting window geometry,
// the shape every rect-returning window command shares.
func (s *Server) windowRect(w http.ResponseWriter, session *Session, opPath string) {
	if opPath != "" {
		if _, err := session.agent.post(opPath, nil); err != nil {
			w3c.WriteError(w, mapAgentError(err, false))
			return
		}
	}
	raw, err := session.agent.post("/window/rect", nil)
	if err != nil {
		w3c.WriteError(w, mapAgentError(err, false))
		return
	}
	w3c.WriteValue(w, json.RawMessage(raw))
}

func (s *Server) handleGetWindowRect(w http.ResponseWriter, r *http.Request) {
	session, werr := s.session(r)
	if werr != nil {
		w3c.WriteError(w, werr)
		return
	}
	s.windowRect(w, session, "")
}

func (s *Server) handleSetWindowRect(w http.ResponseWriter, r *http.Request) {
	session, werr := s.session(r)
	if werr != nil {
		w3c.WriteError(w, werr)
		return
	}
	var req struct {
		X      *float64 `json:"x"`
		Y      *float64 `json:"y"`
		Width  *float64 `json:"width"`
		Height *float64 `json:"height"`
	}
	if err := json.Unmarshal(readBody(r), &req); err != nil {
		w3c.WriteError(w, w3c.ErrInvalidArgument("malformed rect body"))
		return
	}
	if _, err := session.agent.post("/window/set-rect", req); err != nil {
		w3c.WriteError(w, mapAgentError(err, false))
		return
	}
	s.windowRect(w, session, "")
}

func (s *Server) handleMaximizeWindow(w http.ResponseWriter, r *http.Request) {
	session, werr := s.session(r)
	if werr != nil {
		w3c.WriteError(w, werr)
		return
	}
	s.windowRect(w, session, "/window/maximize")
}

func (s *Server) handleMinimizeWindow(w http.ResponseWriter, r *http.Request) {
	session, werr := s.session(r)
	if werr != nil {
		w3c.WriteError(w, werr)
		return
	}
	s.windowRect(w, session, "/window/minimize")
}

func (s *Server) handleFullscreenWindow(w http.ResponseWriter, r *http.Request) {
	session, werr := s.session(r)
	if werr != nil {
		w3c.WriteError(w, werr)
		return
	}
	s.windowRect(w, session, "/window/fullscreen")
}

func (s *Server) handleNewWindow(w http.ResponseWriter, r *http.Request) {
	session, werr := s.session(r)
	if werr != nil {
		w3c.WriteError(w, werr)
		return
	}
	var resp struct {
		Handle string `json:"handle"`
		Type   string `json:"type"`
	}
	if err := session.agent.postObject("/window/new", nil, &resp); err != nil {
		w3c.WriteError(w, mapAgentError(err, false))
		return
	}
	if resp.Type == "" {
		resp.Type = "window"
	}
	w3c.WriteValue(w, map[string]string{"handle": resp.Handle, "type": resp.Type})
}

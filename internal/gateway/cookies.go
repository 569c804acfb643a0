// Cookie and alert handlers: forwards onto the agent's in-page stores.
package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/danielraffel/tauri-webdriver/internal/w3c"
)

func (s *Server) handleGetAllCookies(w http.ResponseWriter, r *http.Request) {
	session, werr := s.session(r)
	if werr != nil {
		w3c.WriteError(w, werr)
		return
	}
	raw, err := session.agent.post("/cookie/get-all", nil)
	if err != nil {
		w3c.WriteError(w, mapAgentError(err, false))
		return
	}
	var envelope struct {
		Cookies json.RawMessage `json:"cookies"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil || envelope.Cookies == nil {
		w3c.WriteValue(w, []any{})
		return
	}
	w3c.WriteValue(w, envelope.Cookies)
}

func (s *Server) handleGetNamedCookie(w http.ResponseWriter, r *http.Request) {
	session, werr := s.session(r)
	if werr != nil {
		w3c.WriteError(w, werr)
		return
	}
	name := r.PathValue("name")
	var envelope struct {
		Cookie json.RawMessage `json:"cookie"`
	}
	if err := session.agent.postObject("/cookie/get",
		map[string]string{"name": name}, &envelope); err != nil {
		w3c.WriteError(w, mapAgentError(err, false))
		return
	}
	if envelope.Cookie == nil || string(envelope.Cookie) == "null" {
		w3c.WriteError(w, w3c.NewError(http.StatusNotFound, w3c.CodeNoSuchCookie,
			fmt.Sprintf("cookie %q not found", name)))
		return
	}
	w3c.WriteValue(w, envelope.Cookie)
}

func (s *Server) handleAddCookie(w http.ResponseWriter, r *http.Request) {
	session, werr := s.session(r)
	if werr != nil {
		w3c.WriteError(w, werr)
		return
	}
	var req struct {
		Cookie json.RawMessage `json:"cookie"`
	}
	if err := json.Unmarshal(readBody(r), &req); err != nil || req.Cookie == nil {
		w3c.WriteError(w, w3c.ErrInvalidArgument("missing cookie"))
		return
	}
	s.forward(w, session, "/cookie/add", map[string]json.RawMessage{"cookie": req.Cookie}, "")
}

func (s *Server) handleDeleteCookie(w http.ResponseWriter, r *http.Request) {
	session, werr := s.session(r)
	if werr != nil {
		w3c.WriteError(w, werr)
		return
	}
	s.forward(w, session, "/cookie/delete",
		map[string]string{"name": r.PathValue("name")}, "")
}

func (s *Server) handleDeleteAllCookies(w http.ResponseWriter, r *http.Request) {
	session, werr := s.session(r)
	if werr != nil {
		w3c.WriteError(w, werr)
		return
	}
	s.forward(w, session, "/cookie/delete-all", nil, "")
}

// --- Alerts ---

// alertError narrows agent failures on alert endpoints: a missing
// dialog is "no such alert" rather than an unknown error.
func alertError(err error) *w3c.Error {
	if ae, ok := err.(*agentError); ok &&
		strings.Contains(strings.ToLower(ae.Message), "no such alert") {
		return w3c.NewError(http.StatusNotFound, w3c.CodeNoSuchAlert, ae.Message)
	}
	return mapAgentError(err, false)
}

func (s *Server) handleDismissAlert(w http.ResponseWriter, r *http.Request) {
	session, werr := s.session(r)
	if werr != nil {
		w3c.WriteError(w, werr)
		return
	}
	if _, err := session.agent.post("/alert/dismiss", nil); err != nil {
		w3c.WriteError(w, alertError(err))
		return
	}
	w3c.WriteValue(w, nil)
}

func (s *Server) handleAcceptAlert(w http.ResponseWriter, r *http.Request) {
	session, werr := s.session(r)
	if werr != nil {
		w3c.WriteError(w, werr)
		return
	}
	if _, err := session.agent.post("/alert/accept", nil); err != nil {
		w3c.WriteError(w, alertError(err))
		return
	}
	w3c.WriteValue(w, nil)
}

func (s *Server) handleGetAlertText(w http.ResponseWriter, r *http.Request) {
	session, werr := s.session(r)
	if werr != nil {
		w3c.WriteError(w, werr)
		return
	}
	var envelope struct {
		Text json.RawMessage `json:"text"`
	}
	if err := session.agent.postObject("/alert/text", nil, &envelope); err != nil {
		w3c.WriteError(w, alertError(err))
		return
	}
	w3c.WriteValue(w, envelope.Text)
}

func (s *Server) handleSendAlertText(w http.ResponseWriter, r *http.Request) {
	session, werr := s.session(r)
	if werr != nil {
		w3c.WriteError(w, werr)
		return
	}
	var req struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(readBody(r), &req); err != nil {
		w3c.WriteError(w, w3c.ErrInvalidArgument("malformed alert body"))
		return
	}
	if _, err := session.agent.post("/alert/send-text",
		map[string]string{"text": req.Text}); err != nil {
		w3c.WriteError(w, alertError(err))
		return
	}
	w3c.WriteValue(w, nil)
}

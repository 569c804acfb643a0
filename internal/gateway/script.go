// Script execution and screenshot handlers. Scripts forward verbatim;
// W3C element references in the argument array are substituted with
// {selector, index} handles the page script can address.
package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/danielraffel/tauri-webdriver/internal/w3c"
)

// scriptRequest is the W3C execute request body
type scriptRequest struct {
	Script string            `json:"script"`
	Args   []json.RawMessage `json:"args"`
}

// substituteElementArgs rewrites W3C element references in script
// arguments into {selector, index, using} objects.
func substituteElementArgs(session *Session, args []json.RawMessage) []any {
	out := make([]any, 0, len(args))
	for _, arg := range args {
		var ref map[string]json.RawMessage
		if err := json.Unmarshal(arg, &ref); err == nil {
			if rawID, ok := ref[w3c.ElementKey]; ok {
				var eid string
				if json.Unmarshal(rawID, &eid) == nil {
					if elem, found := session.Element(eid); found {
						out = append(out, map[string]any{
							"selector": elem.Selector,
							"index":    elem.Index,
							"using":    elem.Using,
						})
						continue
					}
				}
			}
		}
		out = append(out, arg)
	}
	return out
}

func (s *Server) executeScript(w http.ResponseWriter, r *http.Request, path string) {
	session, werr := s.session(r)
	if werr != nil {
		w3c.WriteError(w, werr)
		return
	}
	var req scriptRequest
	if err := json.Unmarshal(readBody(r), &req); err != nil {
		w3c.WriteError(w, w3c.ErrInvalidArgument("malformed script body"))
		return
	}

	args := substituteElementArgs(session, req.Args)
	raw, err := session.agent.post(path, map[string]any{
		"script": req.Script,
		"args":   args,
	})
	if err != nil {
		w3c.WriteError(w, mapScriptError(err))
		return
	}
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(raw, &envelope); err != nil {
		w3c.WriteError(w, w3c.ErrUnknown("malformed agent response"))
		return
	}
	if v, ok := envelope["value"]; ok {
		w3c.WriteValue(w, v)
		return
	}
	w3c.WriteValue(w, nil)
}

func (s *Server) handleExecuteSync(w http.ResponseWriter, r *http.Request) {
	s.executeScript(w, r, "/script/execute")
}

func (s *Server) handleExecuteAsync(w http.ResponseWriter, r *http.Request) {
	s.executeScript(w, r, "/script/execute-async")
}

// --- Screenshots and print ---

func (s *Server) handleScreenshot(w http.ResponseWriter, r *http.Request) {
	session, werr := s.session(r)
	if werr != nil {
		w3c.WriteError(w, werr)
		return
	}
	s.forward(w, session, "/screenshot", nil, "data")
}

func (s *Server) handleElementScreenshot(w http.ResponseWriter, r *http.Request) {
	session, werr := s.session(r)
	if werr != nil {
		w3c.WriteError(w, werr)
		return
	}
	ref, werr := resolveElement(session, r)
	if werr != nil {
		w3c.WriteError(w, werr)
		return
	}
	raw, err := session.agent.post("/screenshot/element", elementBody(ref))
	if err != nil {
		w3c.WriteError(w, mapAgentError(err, true))
		return
	}
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(raw, &envelope); err != nil {
		w3c.WriteError(w, w3c.ErrUnknown("malformed agent response"))
		return
	}
	w3c.WriteValue(w, envelope["data"])
}

func (s *Server) handlePrint(w http.ResponseWriter, r *http.Request) {
	session, werr := s.session(r)
	if werr != nil {
		w3c.WriteError(w, werr)
		return
	}
	s.forward(w, session, "/print", nil, "data")
}

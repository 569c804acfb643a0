// W3C actions translation. Each tick across all input sources is
// synthesized as DOM event dispatches executed through the agent's
// script endpoint; this is deliberately not native OS input. Pointer
// position is tracked between ticks in page globals.
package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/danielraffel/tauri-webdriver/internal/w3c"
)

// actionsRequest is the W3C actions body
type actionsRequest struct {
	Actions []actionSequence `json:"actions"`
}

// actionSequence is one input source's tick list
type actionSequence struct {
	Type    string       `json:"type"` // key, pointer, wheel, none
	ID      string       `json:"id"`
	Actions []actionItem `json:"actions"`
}

// actionItem is one tick of one input source
type actionItem struct {
	Type     string          `json:"type"`
	Value    string          `json:"value"`
	Button   int             `json:"button"`
	X        float64         `json:"x"`
	Y        float64         `json:"y"`
	DeltaX   float64         `json:"deltaX"`
	DeltaY   float64         `json:"deltaY"`
	Duration uint64          `json:"duration"`
	Origin   json.RawMessage `json:"origin"`
}

func (s *Server) handlePerformActions(w http.ResponseWriter, r *http.Request) {
	session, werr := s.session(r)
	if werr != nil {
		w3c.WriteError(w, werr)
		return
	}
	var req actionsRequest
	if err := json.Unmarshal(readBody(r), &req); err != nil || req.Actions == nil {
		w3c.WriteError(w, w3c.ErrInvalidArgument("missing 'actions' array"))
		return
	}

	tickCount := 0
	for _, seq := range req.Actions {
		if len(seq.Actions) > tickCount {
			tickCount = len(seq.Actions)
		}
	}

	for tick := 0; tick < tickCount; tick++ {
		var js []string
		var pause time.Duration

		for _, seq := range req.Actions {
			if tick >= len(seq.Actions) {
				continue
			}
			action := seq.Actions[tick]
			part, d, werr := s.tickJS(session, seq.Type, action)
			if werr != nil {
				w3c.WriteError(w, werr)
				return
			}
			if part != "" {
				js = append(js, part)
			}
			if d > pause {
				pause = d
			}
		}

		if len(js) > 0 {
			script := strings.Join(js, "") + "return null"
			if _, err := session.agent.post("/script/execute", map[string]any{
				"script": script,
				"args":   []any{},
			}); err != nil {
				w3c.WriteError(w, mapScriptError(err))
				return
			}
		}
		if pause > 0 {
			time.Sleep(pause)
		}
	}

	w3c.WriteValue(w, nil)
}

// tickJS renders one action of one source into a JS fragment, plus any
// pause duration the tick carries.
func (s *Server) tickJS(session *Session, sourceType string, action actionItem) (string, time.Duration, *w3c.Error) {
	switch {
	case action.Type == "pause":
		return "", time.Duration(action.Duration) * time.Millisecond, nil

	case sourceType == "key" && (action.Type == "keyDown" || action.Type == "keyUp"):
		event := "keydown"
		if action.Type == "keyUp" {
			event = "keyup"
		}
		key, _ := json.Marshal(action.Value)
		return fmt.Sprintf(
			"(function(){var k=%s;"+
				"var code=k.length===1?'Key'+k.toUpperCase():k;"+
				"var tgt=document.activeElement||document.body;"+
				"tgt.dispatchEvent(new KeyboardEvent('%s',"+
				"{key:k,code:code,bubbles:true,cancelable:true}))})();",
			key, event), 0, nil

	case sourceType == "pointer" && action.Type == "pointerMove":
		move, werr := s.pointerMoveJS(session, action)
		if werr != nil {
			return "", 0, werr
		}
		return move +
			"(function(){var tgt=document.elementFromPoint(" +
			"window.__wdPointerX||0,window.__wdPointerY||0)||document.body;" +
			"tgt.dispatchEvent(new MouseEvent('mousemove'," +
			"{clientX:window.__wdPointerX||0,clientY:window.__wdPointerY||0," +
			"bubbles:true,cancelable:true}))})();", 0, nil

	case sourceType == "pointer" && action.Type == "pointerDown":
		return fmt.Sprintf(
			"(function(){var tgt=document.elementFromPoint("+
				"window.__wdPointerX||0,window.__wdPointerY||0)||document.body;"+
				"tgt.dispatchEvent(new MouseEvent('mousedown',"+
				"{clientX:window.__wdPointerX||0,clientY:window.__wdPointerY||0,"+
				"button:%d,bubbles:true,cancelable:true}))})();",
			action.Button), 0, nil

	case sourceType == "pointer" && action.Type == "pointerUp":
		return fmt.Sprintf(
			"(function(){var tgt=document.elementFromPoint("+
				"window.__wdPointerX||0,window.__wdPointerY||0)||document.body;"+
				"tgt.dispatchEvent(new MouseEvent('mouseup',"+
				"{clientX:window.__wdPointerX||0,clientY:window.__wdPointerY||0,"+
				"button:%d,bubbles:true,cancelable:true}));"+
				"tgt.dispatchEvent(new MouseEvent('click',"+
				"{clientX:window.__wdPointerX||0,clientY:window.__wdPointerY||0,"+
				"button:%d,bubbles:true,cancelable:true}))})();",
			action.Button, action.Button), 0, nil

	case sourceType == "wheel" && action.Type == "scroll":
		return fmt.Sprintf(
			"(function(){var tgt=document.elementFromPoint(%g,%g)||document.body;"+
				"tgt.dispatchEvent(new WheelEvent('wheel',"+
				"{clientX:%g,clientY:%g,deltaX:%g,deltaY:%g,"+
				"bubbles:true,cancelable:true}))})();",
			action.X, action.Y, action.X, action.Y,
			action.DeltaX, action.DeltaY), 0, nil
	}

	// Unknown source/action combinations are ignored rather than
	// rejected, matching how clients probe for extensions.
	return "", 0, nil
}

// pointerMoveJS renders the pointer position update for a move action,
// resolving element-reference origins to the element's center.
func (s *Server) pointerMoveJS(session *Session, action actionItem) (string, *w3c.Error) {
	// Element-reference origin: {"element-6066...": eid}
	if len(action.Origin) > 0 && action.Origin[0] == '{' {
		var ref map[string]string
		if err := json.Unmarshal(action.Origin, &ref); err == nil {
			if eid, ok := ref[w3c.ElementKey]; ok {
				elem, found := session.Element(eid)
				if !found {
					return "", w3c.ErrNoElement(eid)
				}
				sel, _ := json.Marshal(elem.Selector)
				return fmt.Sprintf(
					"(function(){var el=document.querySelectorAll(%s)[%d];"+
						"if(el){var r=el.getBoundingClientRect();"+
						"window.__wdPointerX=r.x+r.width/2+%g;"+
						"window.__wdPointerY=r.y+r.height/2+%g;}})();",
					sel, elem.Index, action.X, action.Y), nil
			}
		}
		return "", w3c.ErrInvalidArgument("invalid pointer origin")
	}

	var origin string
	json.Unmarshal(action.Origin, &origin)
	if origin == "pointer" {
		return fmt.Sprintf(
			"window.__wdPointerX=(window.__wdPointerX||0)+%g;"+
				"window.__wdPointerY=(window.__wdPointerY||0)+%g;",
			action.X, action.Y), nil
	}
	// "viewport" and anything else are absolute coordinates.
	return fmt.Sprintf(
		"window.__wdPointerX=%g;window.__wdPointerY=%g;",
		action.X, action.Y), nil
}

func (s *Server) handleReleaseActions(w http.ResponseWriter, r *http.Request) {
	session, werr := s.session(r)
	if werr != nil {
		w3c.WriteError(w, werr)
		return
	}
	// No pressed state is tracked across requests; releasing is a no-op
	// beyond acknowledging the call.
	_ = session
	w3c.WriteValue(w, nil)
}

// Gateway HTTP server: the public W3C WebDriver endpoint surface and
// the session-level handlers.
package gateway

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"

	"github.com/danielraffel/tauri-webdriver/internal/config"
	"github.com/danielraffel/tauri-webdriver/internal/w3c"
)

// Server is the public WebDriver server
type Server struct {
	cfg     *config.Config
	logger  *log.Logger
	manager *Manager

	httpServer *http.Server
	listener   net.Listener
}

// NewServer creates a gateway server
func NewServer(cfg *config.Config, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{
		cfg:     cfg,
		logger:  logger,
		manager: NewManager(cfg, logger),
	}
}

// Manager returns the session manager, for shutdown hooks
func (s *Server) Manager() *Manager {
	return s.manager
}

// Router builds the W3C route table
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	// Session
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("POST /session", s.handleCreateSession)
	mux.HandleFunc("DELETE /session/{sid}", s.handleDeleteSession)
	mux.HandleFunc("GET /session/{sid}/timeouts", s.handleGetTimeouts)
	mux.HandleFunc("POST /session/{sid}/timeouts", s.handleSetTimeouts)

	// Navigation
	mux.HandleFunc("POST /session/{sid}/url", s.handleNavigateTo)
	mux.HandleFunc("GET /session/{sid}/url", s.handleGetURL)
	mux.HandleFunc("GET /session/{sid}/title", s.handleGetTitle)
	mux.HandleFunc("GET /session/{sid}/source", s.handleGetSource)
	mux.HandleFunc("POST /session/{sid}/back", s.handleBack)
	mux.HandleFunc("POST /session/{sid}/forward", s.handleForward)
	mux.HandleFunc("POST /session/{sid}/refresh", s.handleRefresh)

	// Window
	mux.HandleFunc("GET /session/{sid}/window", s.handleGetWindowHandle)
	mux.HandleFunc("POST /session/{sid}/window", s.handleSwitchToWindow)
	mux.HandleFunc("DELETE /session/{sid}/window", s.handleCloseWindow)
	mux.HandleFunc("GET /session/{sid}/window/handles", s.handleGetWindowHandles)
	mux.HandleFunc("GET /session/{sid}/window/rect", s.handleGetWindowRect)
	mux.HandleFunc("POST /session/{sid}/window/rect", s.handleSetWindowRect)
	mux.HandleFunc("POST /session/{sid}/window/maximize", s.handleMaximizeWindow)
	mux.HandleFunc("POST /session/{sid}/window/minimize", s.handleMinimizeWindow)
	mux.HandleFunc("POST /session/{sid}/window/fullscreen", s.handleFullscreenWindow)
	mux.HandleFunc("POST /session/{sid}/window/new", s.handleNewWindow)

	// Frames
	mux.HandleFunc("POST /session/{sid}/frame", s.handleSwitchToFrame)
	mux.HandleFunc("POST /session/{sid}/frame/parent", s.handleSwitchToParentFrame)

	// Elements
	mux.HandleFunc("POST /session/{sid}/element", s.handleFindElement)
	mux.HandleFunc("POST /session/{sid}/elements", s.handleFindElements)
	mux.HandleFunc("GET /session/{sid}/element/active", s.handleGetActiveElement)
	mux.HandleFunc("POST /session/{sid}/element/{eid}/element", s.handleFindElementFromElement)
	mux.HandleFunc("POST /session/{sid}/element/{eid}/elements", s.handleFindElementsFromElement)
	mux.HandleFunc("POST /session/{sid}/element/{eid}/click", s.handleElementClick)
	mux.HandleFunc("POST /session/{sid}/element/{eid}/clear", s.handleElementClear)
	mux.HandleFunc("POST /session/{sid}/element/{eid}/value", s.handleElementSendKeys)
	mux.HandleFunc("GET /session/{sid}/element/{eid}/text", s.handleElementText)
	mux.HandleFunc("GET /session/{sid}/element/{eid}/name", s.handleElementName)
	mux.HandleFunc("GET /session/{sid}/element/{eid}/attribute/{name}", s.handleElementAttribute)
	mux.HandleFunc("GET /session/{sid}/element/{eid}/property/{name}", s.handleElementProperty)
	mux.HandleFunc("GET /session/{sid}/element/{eid}/css/{name}", s.handleElementCSS)
	mux.HandleFunc("GET /session/{sid}/element/{eid}/rect", s.handleElementRect)
	mux.HandleFunc("GET /session/{sid}/element/{eid}/enabled", s.handleElementEnabled)
	mux.HandleFunc("GET /session/{sid}/element/{eid}/selected", s.handleElementSelected)
	mux.HandleFunc("GET /session/{sid}/element/{eid}/displayed", s.handleElementDisplayed)
	mux.HandleFunc("GET /session/{sid}/element/{eid}/computedrole", s.handleElementComputedRole)
	mux.HandleFunc("GET /session/{sid}/element/{eid}/computedlabel", s.handleElementComputedLabel)
	mux.HandleFunc("GET /session/{sid}/element/{eid}/shadow", s.handleGetShadowRoot)
	mux.HandleFunc("POST /session/{sid}/shadow/{shid}/element", s.handleFindInShadow)
	mux.HandleFunc("POST /session/{sid}/shadow/{shid}/elements", s.handleFindAllInShadow)

	// Scripts
	mux.HandleFunc("POST /session/{sid}/execute/sync", s.handleExecuteSync)
	mux.HandleFunc("POST /session/{sid}/execute/async", s.handleExecuteAsync)

	// Cookies
	mux.HandleFunc("GET /session/{sid}/cookie", s.handleGetAllCookies)
	mux.HandleFunc("POST /session/{sid}/cookie", s.handleAddCookie)
	mux.HandleFunc("DELETE /session/{sid}/cookie", s.handleDeleteAllCookies)
	mux.HandleFunc("GET /session/{sid}/cookie/{name}", s.handleGetNamedCookie)
	mux.HandleFunc("DELETE /session/{sid}/cookie/{name}", s.handleDeleteCookie)

	// Alerts
	mux.HandleFunc("POST /session/{sid}/alert/dismiss", s.handleDismissAlert)
	mux.HandleFunc("POST /session/{sid}/alert/accept", s.handleAcceptAlert)
	mux.HandleFunc("GET /session/{sid}/alert/text", s.handleGetAlertText)
	mux.HandleFunc("POST /session/{sid}/alert/text", s.handleSendAlertText)

	// Actions
	mux.HandleFunc("POST /session/{sid}/actions", s.handlePerformActions)
	mux.HandleFunc("DELETE /session/{sid}/actions", s.handleReleaseActions)

	// Screenshots and print
	mux.HandleFunc("GET /session/{sid}/screenshot", s.handleScreenshot)
	mux.HandleFunc("GET /session/{sid}/element/{eid}/screenshot", s.handleElementScreenshot)
	mux.HandleFunc("POST /session/{sid}/print", s.handlePrint)

	return mux
}

// ListenAndServe binds the configured address and serves until Shutdown
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", addr, err)
	}
	s.listener = listener
	s.httpServer = &http.Server{Handler: s.Router()}
	s.logger.Printf("tauri-wd listening on %s", addr)
	if err := s.httpServer.Serve(listener); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Close stops the HTTP server and tears down any active session
func (s *Server) Close() {
	s.manager.Shutdown()
	if s.httpServer != nil {
		s.httpServer.Close()
	}
}

// session resolves the {sid} path parameter to the active session
func (s *Server) session(r *http.Request) (*Session, *w3c.Error) {
	return s.manager.Get(r.PathValue("sid"))
}

// readBody reads the request body, tolerating an empty one
func readBody(r *http.Request) json.RawMessage {
	data, err := io.ReadAll(r.Body)
	if err != nil || len(data) == 0 {
		return json.RawMessage("{}")
	}
	return data
}

// --- Session handlers ---

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ready := !s.manager.Active()
	message := "ready"
	if !ready {
		message = "session active, at capacity"
	}
	w3c.WriteValue(w, map[string]any{"ready": ready, "message": message})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	session, caps, werr := s.manager.Create(readBody(r))
	if werr != nil {
		w3c.WriteError(w, werr)
		return
	}
	w3c.WriteValue(w, map[string]any{
		"sessionId":    session.ID,
		"capabilities": caps,
	})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if werr := s.manager.Delete(r.PathValue("sid")); werr != nil {
		w3c.WriteError(w, werr)
		return
	}
	w3c.WriteValue(w, nil)
}

func (s *Server) handleGetTimeouts(w http.ResponseWriter, r *http.Request) {
	session, werr := s.session(r)
	if werr != nil {
		w3c.WriteError(w, werr)
		return
	}
	w3c.WriteValue(w, session.Timeouts())
}

func (s *Server) handleSetTimeouts(w http.ResponseWriter, r *http.Request) {
	session, werr := s.session(r)
	if werr != nil {
		w3c.WriteError(w, werr)
		return
	}
	var req struct {
		Script   *uint64 `json:"script"`
		PageLoad *uint64 `json:"pageLoad"`
		Implicit *uint64 `json:"implicit"`
	}
	if err := json.Unmarshal(readBody(r), &req); err != nil {
		w3c.WriteError(w, w3c.ErrInvalidArgument("malformed timeouts body"))
		return
	}
	session.SetTimeouts(req.Script, req.PageLoad, req.Implicit)
	w3c.WriteValue(w, nil)
}

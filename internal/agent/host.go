// Package agent implements the in-process automation server linked into
// the application in debug builds. It binds a loopback HTTP listener on
// an OS-assigned port, announces the port on stdout, and translates each
// request into JavaScript evaluated in the host's webview through the
// injected bridge.
package agent

import "errors"

// ErrNoWindow is returned when a window label cannot be resolved.
var ErrNoWindow = errors.New("no such window")

// WindowRect is a window's position and size in logical pixels.
type WindowRect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Insets describes the non-content chrome of a window (title bar).
type Insets struct {
	Top    float64 `json:"top"`
	Bottom float64 `json:"bottom"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
}

// Host abstracts the application framework the agent is linked into:
// script evaluation in a window's webview plus the window operations the
// private surface forwards. Implementations must accept Eval calls from
// any goroutine and funnel them onto the framework's UI context.
type Host interface {
	// Eval schedules script evaluation in the webview of the window
	// with the given label. It does not wait for the script's result;
	// results arrive through the bridge's resolve callback.
	Eval(label, script string) error

	// Labels returns the labels of all open windows.
	Labels() []string

	// HasWindow reports whether a window with the label exists.
	HasWindow(label string) bool

	// Rect returns the outer geometry of a window.
	Rect(label string) (WindowRect, error)

	// SetRect moves and/or resizes a window. Nil fields are unchanged.
	SetRect(label string, x, y, width, height *float64) error

	// Insets returns the window's chrome insets.
	Insets(label string) (Insets, error)

	Fullscreen(label string) error
	Minimize(label string) error
	Maximize(label string) error
	Focus(label string) error

	// Close closes the window with the label.
	Close(label string) error

	// NewWindow opens a new window and returns its label.
	NewWindow() (string, error)
}

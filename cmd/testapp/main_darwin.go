//go:build darwin && cgo

// testapp is a demo host application: a single WKWebView window with
// the automation agent linked in, serving the fixture page the
// end-to-end scenarios drive. Run it under the gateway by passing its
// path in the tauri:options.binary capability.
package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"sync"

	webview "github.com/webview/webview_go"

	"github.com/danielraffel/tauri-webdriver/internal/agent"
)

const pageHTML = `<!DOCTYPE html>
<html>
<head><title>Test App</title></head>
<body>
  <h1 id="title">Test App</h1>
  <div id="counter">Count: 0</div>
  <button id="increment">Increment</button>
  <script>
    var count = 0;
    document.getElementById('increment').addEventListener('click', function () {
      count++;
      document.getElementById('counter').textContent = 'Count: ' + count;
    });
  </script>
  <iframe id="frame" srcdoc="&lt;h2 id=&quot;frame-title&quot;&gt;Inside Frame&lt;/h2&gt;"></iframe>
  <div id="shadow-host"></div>
  <script>
    var host = document.getElementById('shadow-host');
    var root = host.attachShadow({mode: 'open'});
    var span = document.createElement('span');
    span.className = 'shadow-text';
    span.textContent = 'Shadow Content';
    root.appendChild(span);
  </script>
</body>
</html>`

// webviewHost adapts the single webview_go window to the agent's Host
// interface. webview_go manages one window, labelled "main"; eval calls
// are funnelled onto the UI loop via Dispatch.
type webviewHost struct {
	w webview.WebView

	mu     sync.Mutex
	width  float64
	height float64
}

func (h *webviewHost) Eval(label, script string) error {
	if label != "main" {
		return agent.ErrNoWindow
	}
	h.w.Dispatch(func() {
		h.w.Eval(script)
	})
	return nil
}

func (h *webviewHost) Labels() []string { return []string{"main"} }

func (h *webviewHost) HasWindow(label string) bool { return label == "main" }

func (h *webviewHost) Rect(label string) (agent.WindowRect, error) {
	if label != "main" {
		return agent.WindowRect{}, agent.ErrNoWindow
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return agent.WindowRect{Width: h.width, Height: h.height}, nil
}

func (h *webviewHost) SetRect(label string, x, y, width, height *float64) error {
	if label != "main" {
		return agent.ErrNoWindow
	}
	if width != nil && height != nil {
		w, ht := int(*width), int(*height)
		h.w.Dispatch(func() {
			h.w.SetSize(w, ht, webview.HintNone)
		})
		h.mu.Lock()
		h.width, h.height = *width, *height
		h.mu.Unlock()
	}
	// webview_go exposes no window positioning, so x/y are ignored.
	return nil
}

func (h *webviewHost) Insets(label string) (agent.Insets, error) {
	if label != "main" {
		return agent.Insets{}, agent.ErrNoWindow
	}
	return agent.Insets{}, nil
}

func (h *webviewHost) Fullscreen(label string) error { return h.unsupported(label) }
func (h *webviewHost) Minimize(label string) error   { return h.unsupported(label) }
func (h *webviewHost) Maximize(label string) error   { return h.unsupported(label) }

func (h *webviewHost) unsupported(label string) error {
	if label != "main" {
		return agent.ErrNoWindow
	}
	return fmt.Errorf("window state changes are not supported by this host")
}

func (h *webviewHost) Focus(label string) error {
	if label != "main" {
		return agent.ErrNoWindow
	}
	return nil
}

func (h *webviewHost) Close(label string) error {
	if label != "main" {
		return agent.ErrNoWindow
	}
	h.w.Dispatch(func() {
		h.w.Terminate()
	})
	return nil
}

func (h *webviewHost) NewWindow() (string, error) {
	return "", fmt.Errorf("additional windows are not supported by this host")
}

func main() {
	w := webview.New(false)
	defer w.Destroy()
	w.SetTitle("Test App")
	w.SetSize(800, 600, webview.HintNone)

	host := &webviewHost{w: w, width: 800, height: 600}
	a := agent.New(host)

	// The bridge must be installed before any page script runs, and the
	// resolve binding is the bridge's way back into the agent.
	w.Init(agent.BridgeScript())
	w.Bind("__wdResolve", func(id string, result any) {
		raw, err := json.Marshal(result)
		if err != nil {
			raw = []byte("null")
		}
		a.Resolve(id, raw)
	})

	if _, err := a.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start automation agent: %v\n", err)
		os.Exit(1)
	}

	w.Navigate("data:text/html," + url.PathEscape(pageHTML))
	w.Run()
}

package agent

import (
	"strings"
	"testing"
)

func TestBridgeScriptMembers(t *testing.T) {
	js := BridgeScript()

	members := []string{
		"resolve:",
		"findElement:",
		"findElementByXPath:",
		"findElementInShadow:",
		"getActiveElement:",
		"cache:",
		"__shadowCache:",
		"cookies:",
		"__dialog:",
	}
	for _, m := range members {
		if !strings.Contains(js, m) {
			t.Errorf("bridge is missing member %q", m)
		}
	}
}

func TestBridgeScriptLockdown(t *testing.T) {
	js := BridgeScript()

	if !strings.Contains(js, "Object.defineProperty(window, '__WEBDRIVER__'") {
		t.Error("bridge namespace must be installed via defineProperty")
	}
	if !strings.Contains(js, "writable: false") ||
		!strings.Contains(js, "configurable: false") {
		t.Error("bridge namespace must be non-writable and non-configurable")
	}
}

func TestBridgeScriptIPC(t *testing.T) {
	js := BridgeScript()

	if !strings.Contains(js, "window.__wdResolve(id, result)") {
		t.Error("resolve must invoke the host IPC binding")
	}
	if !strings.Contains(js, "stacktrace") {
		t.Error("error wrapping must carry a stacktrace field")
	}
}

func TestBridgeScriptActiveElementStamping(t *testing.T) {
	js := BridgeScript()

	if !strings.Contains(js, "data-wd-id") {
		t.Error("active element must be stamped with a data attribute")
	}
}

func TestBridgeScriptDialogOverrides(t *testing.T) {
	js := BridgeScript()

	for _, fn := range []string{"window.alert =", "window.confirm =", "window.prompt ="} {
		if !strings.Contains(js, fn) {
			t.Errorf("bridge must override %s", strings.TrimSuffix(fn, " ="))
		}
	}
}

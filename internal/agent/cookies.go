// Cookie and dialog endpoints. Cookies live in the bridge's in-page
// store because the app's custom URL scheme blocks the engine's native
// cookie interface; dialogs are records captured by the bridge's
// alert/confirm/prompt overrides.
package agent

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// CookieNameRequest addresses a cookie by name
type CookieNameRequest struct {
	Name string `json:"name"`
}

// Cookie is the stored cookie record
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Path     string  `json:"path"`
	Domain   *string `json:"domain,omitempty"`
	Secure   bool    `json:"secure"`
	HTTPOnly bool    `json:"httpOnly"`
	Expiry   *uint64 `json:"expiry,omitempty"`
}

// CookieAddRequest adds one cookie
type CookieAddRequest struct {
	Cookie Cookie `json:"cookie"`
}

func (a *Agent) handleCookieGetAll(w http.ResponseWriter, r *http.Request) {
	script := "var store=window.__WEBDRIVER__.cookies;" +
		"var cookies=[];var keys=Object.keys(store);" +
		"for(var i=0;i<keys.length;i++)cookies.push(store[keys[i]]);" +
		"return cookies"
	result, err := a.eval(script)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]json.RawMessage{"cookies": result})
}

func (a *Agent) handleCookieGet(w http.ResponseWriter, r *http.Request) {
	var req CookieNameRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	name, _ := json.Marshal(req.Name)
	result, err := a.eval(fmt.Sprintf(
		"var c=window.__WEBDRIVER__.cookies[%s];return c||null", name))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]json.RawMessage{"cookie": result})
}

func (a *Agent) handleCookieAdd(w http.ResponseWriter, r *http.Request) {
	var req CookieAddRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	c := req.Cookie
	if c.Path == "" {
		c.Path = "/"
	}
	name, _ := json.Marshal(c.Name)
	value, _ := json.Marshal(c.Value)
	path, _ := json.Marshal(c.Path)
	domainJS := "window.location.hostname"
	if c.Domain != nil {
		d, _ := json.Marshal(*c.Domain)
		domainJS = string(d)
	}
	expiryJS := "null"
	if c.Expiry != nil {
		expiryJS = fmt.Sprintf("%d", *c.Expiry)
	}

	script := fmt.Sprintf(
		"window.__WEBDRIVER__.cookies[%s]={"+
			"name:%s,value:%s,path:%s,"+
			"domain:%s,secure:%t,httpOnly:%t,"+
			"expiry:%s,sameSite:\"Lax\""+
			"};return null",
		name, name, value, path, domainJS, c.Secure, c.HTTPOnly, expiryJS)

	if _, err := a.eval(script); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, nil)
}

func (a *Agent) handleCookieDelete(w http.ResponseWriter, r *http.Request) {
	var req CookieNameRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	name, _ := json.Marshal(req.Name)
	if _, err := a.eval(fmt.Sprintf(
		"delete window.__WEBDRIVER__.cookies[%s];return null", name)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, nil)
}

func (a *Agent) handleCookieDeleteAll(w http.ResponseWriter, r *http.Request) {
	script := "var s=window.__WEBDRIVER__.cookies;" +
		"var k=Object.keys(s);for(var i=0;i<k.length;i++)delete s[k[i]];" +
		"return null"
	if _, err := a.eval(script); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, nil)
}

// --- Alert handlers ---

// AlertTextRequest carries prompt response text
type AlertTextRequest struct {
	Text string `json:"text"`
}

func (a *Agent) handleAlertText(w http.ResponseWriter, r *http.Request) {
	result, err := a.eval(
		"var d=window.__WEBDRIVER__.__dialog;" +
			"if(!d.open)throw new Error('no such alert');" +
			"return d.text")
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]json.RawMessage{"text": result})
}

func (a *Agent) handleAlertAccept(w http.ResponseWriter, r *http.Request) {
	_, err := a.eval(
		"var d=window.__WEBDRIVER__.__dialog;" +
			"if(!d.open)throw new Error('no such alert');" +
			"if(d.type==='confirm')d.response=true;" +
			"if(d.type==='prompt'&&d.response===null)d.response=d.defaultValue||'';" +
			"d.open=false;" +
			"return null")
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, nil)
}

func (a *Agent) handleAlertDismiss(w http.ResponseWriter, r *http.Request) {
	_, err := a.eval(
		"var d=window.__WEBDRIVER__.__dialog;" +
			"if(!d.open)throw new Error('no such alert');" +
			"if(d.type==='confirm')d.response=false;" +
			"if(d.type==='prompt')d.response=null;" +
			"d.open=false;" +
			"return null")
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, nil)
}

func (a *Agent) handleAlertSendText(w http.ResponseWriter, r *http.Request) {
	var req AlertTextRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	text, _ := json.Marshal(req.Text)
	_, err := a.eval(fmt.Sprintf(
		"var d=window.__WEBDRIVER__.__dialog;"+
			"if(!d.open)throw new Error('no such alert');"+
			"if(d.type!=='prompt')throw new Error('no such alert');"+
			"d.response=%s;"+
			"return null", text))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, nil)
}

// Element endpoint handlers: location, reads, writes, and shadow DOM.
// Elements are addressed by (selector, index) pairs that re-resolve on
// every use; the bridge caches only where re-resolution is impossible.
package agent

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// FindRequest locates elements in the current frame context
type FindRequest struct {
	Using string `json:"using"` // "css" or "xpath"
	Value string `json:"value"`
}

// FindFromRequest locates elements scoped under a parent element
type FindFromRequest struct {
	ParentSelector string `json:"parent_selector"`
	ParentIndex    int    `json:"parent_index"`
	ParentUsing    string `json:"parent_using"`
	Using          string `json:"using"`
	Value          string `json:"value"`
}

// ElementRequest addresses one located element
type ElementRequest struct {
	Selector string `json:"selector"`
	Index    int    `json:"index"`
	Using    string `json:"using"`
}

// ElementNameRequest addresses an element plus an attribute or
// property name
type ElementNameRequest struct {
	Selector string `json:"selector"`
	Index    int    `json:"index"`
	Using    string `json:"using"`
	Name     string `json:"name"`
}

// SendKeysRequest types text into an element
type SendKeysRequest struct {
	Selector string `json:"selector"`
	Index    int    `json:"index"`
	Using    string `json:"using"`
	Text     string `json:"text"`
}

// FileInfo is one file for a file-input upload
type FileInfo struct {
	Name string `json:"name"`
	Data string `json:"data"` // base64-encoded content
	Mime string `json:"mime"`
}

// SetFilesRequest populates a file input
type SetFilesRequest struct {
	Selector string     `json:"selector"`
	Index    int        `json:"index"`
	Using    string     `json:"using"`
	Files    []FileInfo `json:"files"`
}

// ShadowFindRequest locates elements inside a host's shadow root
type ShadowFindRequest struct {
	HostSelector string `json:"host_selector"`
	HostIndex    int    `json:"host_index"`
	HostUsing    string `json:"host_using"`
	Using        string `json:"using"`
	Value        string `json:"value"`
}

// lookupJS builds the snippet that binds `el` to the addressed element,
// throwing when it cannot be resolved. Inside a frame context `document`
// is already the frame document, so the lookups below scope correctly.
func lookupJS(selector string, index int, using string) string {
	return lookupJSAs("el", selector, index, using)
}

// evalOnElement resolves the element and runs body with `el` bound.
func (a *Agent) evalOnElement(req ElementRequest, body string) (json.RawMessage, error) {
	return a.eval(lookupJS(req.Selector, req.Index, req.Using) + body)
}

func (a *Agent) handleElementFind(w http.ResponseWriter, r *http.Request) {
	var req FindRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	val, _ := json.Marshal(req.Value)

	var script string
	if req.Using == "xpath" {
		script = fmt.Sprintf(
			"var r=document.evaluate(%s,document,null,"+
				"XPathResult.ORDERED_NODE_SNAPSHOT_TYPE,null);"+
				"var a=[];for(var i=0;i<r.snapshotLength;i++)"+
				"a.push({selector:%s,index:i,using:\"xpath\"});"+
				"return a",
			val, val)
	} else {
		script = fmt.Sprintf(
			"var els=document.querySelectorAll(%s);"+
				"var a=[];for(var i=0;i<els.length;i++)"+
				"a.push({selector:%s,index:i});"+
				"return a",
			val, val)
	}

	result, err := a.eval(script)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]json.RawMessage{"elements": result})
}

func (a *Agent) handleElementFindFrom(w http.ResponseWriter, r *http.Request) {
	var req FindFromRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	parentSel, _ := json.Marshal(req.ParentSelector)
	val, _ := json.Marshal(req.Value)

	var parentJS string
	if req.ParentUsing == "xpath" {
		parentJS = fmt.Sprintf(
			"var __xr=document.evaluate(%s,document,null,"+
				"XPathResult.ORDERED_NODE_SNAPSHOT_TYPE,null);"+
				"var parent=__xr.snapshotItem(%d);"+
				"if(!parent)throw new Error('parent element not found');",
			parentSel, req.ParentIndex)
	} else {
		parentJS = fmt.Sprintf(
			"var parent=document.querySelectorAll(%s)[%d];"+
				"if(!parent)throw new Error('parent element not found');",
			parentSel, req.ParentIndex)
	}

	// Children found under a parent have no standalone selector, so each
	// is stamped with a data attribute addressable by a fresh CSS pair.
	var childJS string
	if req.Using == "xpath" {
		childJS = fmt.Sprintf(
			"var r=document.evaluate(%s,parent,null,"+
				"XPathResult.ORDERED_NODE_SNAPSHOT_TYPE,null);"+
				"var a=[];for(var i=0;i<r.snapshotLength;i++){"+
				"var e=r.snapshotItem(i);var id='wd-'+(++window.__wdFindFromCtr);"+
				"e.setAttribute('data-wd-id',id);"+
				"a.push({selector:'[data-wd-id=\"'+id+'\"]',index:0})}"+
				"return a",
			val)
	} else {
		childJS = fmt.Sprintf(
			"var els=parent.querySelectorAll(%s);"+
				"var a=[];for(var i=0;i<els.length;i++){"+
				"var id='wd-'+(++window.__wdFindFromCtr);"+
				"els[i].setAttribute('data-wd-id',id);"+
				"a.push({selector:'[data-wd-id=\"'+id+'\"]',index:0})}"+
				"return a",
			val)
	}

	script := "if(!window.__wdFindFromCtr)window.__wdFindFromCtr=0;" + parentJS + childJS
	result, err := a.eval(script)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]json.RawMessage{"elements": result})
}

// elementRead runs body against the addressed element and wraps the
// result under key.
func (a *Agent) elementRead(w http.ResponseWriter, r *http.Request, key, body string) {
	var req ElementRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	result, err := a.evalOnElement(req, body)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]json.RawMessage{key: result})
}

// elementWrite runs body against the addressed element and returns null.
func (a *Agent) elementWrite(w http.ResponseWriter, r *http.Request, body string) {
	var req ElementRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if _, err := a.evalOnElement(req, body); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, nil)
}

func (a *Agent) handleElementText(w http.ResponseWriter, r *http.Request) {
	a.elementRead(w, r, "text", "return el.textContent||''")
}

func (a *Agent) handleElementTag(w http.ResponseWriter, r *http.Request) {
	a.elementRead(w, r, "tag", "return el.tagName.toLowerCase()")
}

func (a *Agent) handleElementAttribute(w http.ResponseWriter, r *http.Request) {
	var req ElementNameRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	name, _ := json.Marshal(req.Name)
	result, err := a.evalOnElement(
		ElementRequest{Selector: req.Selector, Index: req.Index, Using: req.Using},
		fmt.Sprintf("return el.getAttribute(%s)", name))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]json.RawMessage{"value": result})
}

// cssPropertyPrefix marks property names that should read from the
// computed style instead of the element object.
const cssPropertyPrefix = "__css__"

func (a *Agent) handleElementProperty(w http.ResponseWriter, r *http.Request) {
	var req ElementNameRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	var body string
	if len(req.Name) > len(cssPropertyPrefix) && req.Name[:len(cssPropertyPrefix)] == cssPropertyPrefix {
		name, _ := json.Marshal(req.Name[len(cssPropertyPrefix):])
		body = fmt.Sprintf(
			"return window.getComputedStyle(el).getPropertyValue(%s)", name)
	} else {
		name, _ := json.Marshal(req.Name)
		body = fmt.Sprintf("var v=el[%s];return v===undefined?null:v", name)
	}

	result, err := a.evalOnElement(
		ElementRequest{Selector: req.Selector, Index: req.Index, Using: req.Using}, body)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]json.RawMessage{"value": result})
}

func (a *Agent) handleElementRect(w http.ResponseWriter, r *http.Request) {
	var req ElementRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	result, err := a.evalOnElement(req,
		"var r=el.getBoundingClientRect();"+
			"return{x:r.x,y:r.y,width:r.width,height:r.height}")
	if err != nil {
		writeError(w, err)
		return
	}
	// The rect is the whole response body, not wrapped under a key.
	writeJSON(w, result)
}

func (a *Agent) handleElementDisplayed(w http.ResponseWriter, r *http.Request) {
	a.elementRead(w, r, "displayed",
		"var s=window.getComputedStyle(el);"+
			"return s.display!=='none'&&s.visibility!=='hidden'&&s.opacity!=='0'")
}

func (a *Agent) handleElementEnabled(w http.ResponseWriter, r *http.Request) {
	a.elementRead(w, r, "enabled", "return !el.disabled")
}

func (a *Agent) handleElementSelected(w http.ResponseWriter, r *http.Request) {
	a.elementRead(w, r, "selected", "return el.selected||el.checked||false")
}

// computedRoleJS maps an element to its implicit or explicit ARIA role.
const computedRoleJS = `var tag=el.tagName.toLowerCase();
var role=el.getAttribute('role');
if(role)return role;
var map={button:'button',a:'link',h1:'heading',h2:'heading',h3:'heading',h4:'heading',h5:'heading',h6:'heading',
input:'textbox',textarea:'textbox',select:'combobox',option:'option',ul:'list',ol:'list',li:'listitem',
table:'table',tr:'row',td:'cell',th:'columnheader',img:'img',nav:'navigation',main:'main',header:'banner',
footer:'contentinfo',aside:'complementary',form:'form',details:'group',summary:'button',dialog:'dialog',
progress:'progressbar',meter:'meter'};
if(tag==='input'){var t=(el.getAttribute('type')||'text').toLowerCase();
if(t==='checkbox')return 'checkbox';if(t==='radio')return 'radio';
if(t==='range')return 'slider';if(t==='number')return 'spinbutton';
if(t==='search')return 'searchbox';return 'textbox'}
if(tag==='a'&&el.hasAttribute('href'))return 'link';
return map[tag]||'generic'`

// computedLabelJS resolves the accessible name in precedence order.
const computedLabelJS = `var lblBy=el.getAttribute('aria-labelledby');
if(lblBy){var ids=lblBy.split(/\s+/);var parts=[];
for(var i=0;i<ids.length;i++){var e=document.getElementById(ids[i]);if(e)parts.push(e.textContent.trim())}
if(parts.length)return parts.join(' ')}
var lbl=el.getAttribute('aria-label');if(lbl)return lbl;
if(el.id){var labels=document.querySelectorAll('label[for="'+el.id+'"]');
if(labels.length)return labels[0].textContent.trim()}
if(el.placeholder)return el.placeholder;
if(el.alt)return el.alt;
if(el.title)return el.title;
return ''`

func (a *Agent) handleElementComputedRole(w http.ResponseWriter, r *http.Request) {
	a.elementRead(w, r, "role", computedRoleJS)
}

func (a *Agent) handleElementComputedLabel(w http.ResponseWriter, r *http.Request) {
	a.elementRead(w, r, "label", computedLabelJS)
}

func (a *Agent) handleElementActive(w http.ResponseWriter, r *http.Request) {
	result, err := a.eval("return window.__WEBDRIVER__.getActiveElement()")
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]json.RawMessage{"element": result})
}

func (a *Agent) handleElementClick(w http.ResponseWriter, r *http.Request) {
	a.elementWrite(w, r,
		"el.scrollIntoView({block:'center',inline:'center'});"+
			"el.focus();el.click();return null")
}

func (a *Agent) handleElementClear(w http.ResponseWriter, r *http.Request) {
	a.elementWrite(w, r,
		"el.focus();el.value='';"+
			"el.dispatchEvent(new Event('input',{bubbles:true}));"+
			"el.dispatchEvent(new Event('change',{bubbles:true}));return null")
}

func (a *Agent) handleElementSendKeys(w http.ResponseWriter, r *http.Request) {
	var req SendKeysRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	text, _ := json.Marshal(req.Text)
	body := fmt.Sprintf(
		"el.focus();el.value+=%s;"+
			"el.dispatchEvent(new Event('input',{bubbles:true}));"+
			"el.dispatchEvent(new Event('change',{bubbles:true}));return null",
		text)
	if _, err := a.evalOnElement(
		ElementRequest{Selector: req.Selector, Index: req.Index, Using: req.Using}, body); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, nil)
}

func (a *Agent) handleElementSetFiles(w http.ResponseWriter, r *http.Request) {
	var req SetFilesRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	files, _ := json.Marshal(req.Files)
	body := fmt.Sprintf(
		"if(el.tagName!=='INPUT'||el.type!=='file')"+
			"throw new Error('element is not a file input');"+
			"var _files=%s;"+
			"var dt=new DataTransfer();"+
			"for(var i=0;i<_files.length;i++){"+
			"var raw=atob(_files[i].data);"+
			"var bytes=new Uint8Array(raw.length);"+
			"for(var j=0;j<raw.length;j++)bytes[j]=raw.charCodeAt(j);"+
			"dt.items.add(new File([bytes],_files[i].name,{type:_files[i].mime}));"+
			"}"+
			"el.files=dt.files;"+
			"el.dispatchEvent(new Event('input',{bubbles:true}));"+
			"el.dispatchEvent(new Event('change',{bubbles:true}));"+
			"return null",
		files)
	if _, err := a.evalOnElement(
		ElementRequest{Selector: req.Selector, Index: req.Index, Using: req.Using}, body); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, nil)
}

// --- Shadow DOM handlers ---

func (a *Agent) handleElementShadow(w http.ResponseWriter, r *http.Request) {
	var req ElementRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	result, err := a.evalOnElement(req, "return el.shadowRoot!==null")
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]json.RawMessage{"hasShadow": result})
}

func (a *Agent) handleShadowFind(w http.ResponseWriter, r *http.Request) {
	var req ShadowFindRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	val, _ := json.Marshal(req.Value)

	// Shadow-interior nodes cannot be re-resolved by a document-level
	// selector, so each match goes into the bridge's shadow cache under
	// a generated key that later lookups address directly.
	script := lookupJSAs("host", req.HostSelector, req.HostIndex, req.HostUsing) +
		fmt.Sprintf(
			"if(!window.__wdShadowCtr)window.__wdShadowCtr=0;"+
				"var sr=host.shadowRoot;"+
				"if(!sr)throw new Error('no shadow root');"+
				"var els=sr.querySelectorAll(%s);"+
				"var a=[];for(var i=0;i<els.length;i++){"+
				"var id='wds-'+(++window.__wdShadowCtr);"+
				"window.__WEBDRIVER__.__shadowCache[id]=els[i];"+
				"a.push({selector:id,index:0,using:'shadow'})}"+
				"return a",
			val)

	result, err := a.eval(script)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]json.RawMessage{"elements": result})
}

// lookupJSAs is lookupJS with a caller-chosen variable name.
func lookupJSAs(varName, selector string, index int, using string) string {
	sel, _ := json.Marshal(selector)
	switch using {
	case "shadow":
		return fmt.Sprintf(
			"var %s=window.__WEBDRIVER__.findElementInShadow(%s);"+
				"if(!%s)throw new Error(\"shadow element not found or stale\");",
			varName, sel, varName)
	case "xpath":
		return fmt.Sprintf(
			"var __xr=document.evaluate(%s,document,null,"+
				"XPathResult.ORDERED_NODE_SNAPSHOT_TYPE,null);"+
				"var %s=__xr.snapshotItem(%d);"+
				"if(!%s)throw new Error(\"element not found\");",
			sel, varName, index, varName)
	default:
		return fmt.Sprintf(
			"var %s=document.querySelectorAll(%s)[%d];"+
				"if(!%s)throw new Error(\"element not found\");",
			varName, sel, index, varName)
	}
}

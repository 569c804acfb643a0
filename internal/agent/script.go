// Script execution, screenshot, and print endpoints. Screenshots and
// printing rasterize the DOM by serializing it into an SVG
// foreignObject, drawing that onto a canvas, and exporting PNG data;
// the engine offers no direct capture hook on this URL scheme.
package agent

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// ScriptRequest carries a user script and its arguments
type ScriptRequest struct {
	Script string            `json:"script"`
	Args   []json.RawMessage `json:"args"`
}

func (a *Agent) handleScriptExecute(w http.ResponseWriter, r *http.Request) {
	var req ScriptRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	args, _ := json.Marshal(req.Args)
	if req.Args == nil {
		args = []byte("[]")
	}
	script := fmt.Sprintf(
		"var __args=%s;return (function(){%s}).apply(null,__args)",
		args, req.Script)
	result, err := a.eval(script)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]json.RawMessage{"value": result})
}

func (a *Agent) handleScriptExecuteAsync(w http.ResponseWriter, r *http.Request) {
	var req ScriptRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	args, _ := json.Marshal(req.Args)
	if req.Args == nil {
		args = []byte("[]")
	}

	// The user script's final argument is the done callback; the script
	// itself settles the pending slot, so this is a callback eval.
	script := fmt.Sprintf(
		"(function(){var __args=%s;"+
			"var __done=function(r){window.__WEBDRIVER__.resolve(\"__CALLBACK_ID__\",r)};"+
			"__args.push(__done);"+
			"try{(function(){%s}).apply(null,__args)}"+
			"catch(__e){window.__WEBDRIVER__.resolve(\"__CALLBACK_ID__\","+
			"{error:__e.name,message:__e.message,stacktrace:__e.stack||\"\"})}})();",
		args, req.Script)

	result, err := a.evalCallback(script)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]json.RawMessage{"value": result})
}

// screenshotJS renders the full document and resolves with base64 PNG.
const screenshotJS = `(function(){try{
var el=document.documentElement;
var w=Math.max(el.scrollWidth,el.clientWidth);
var h=Math.max(el.scrollHeight,el.clientHeight);
var xml=new XMLSerializer().serializeToString(el);
var svg='<svg xmlns="http://www.w3.org/2000/svg" width="'+w+'" height="'+h+'">'
+'<foreignObject width="100%" height="100%">'+xml+'</foreignObject></svg>';
var c=document.createElement('canvas');c.width=w;c.height=h;
var ctx=c.getContext('2d');var img=new Image();
img.onload=function(){try{ctx.drawImage(img,0,0);
var d=c.toDataURL('image/png').split(',')[1];
window.__WEBDRIVER__.resolve("__CALLBACK_ID__",d)}
catch(e){window.__WEBDRIVER__.resolve("__CALLBACK_ID__",
{error:"SecurityError",message:e.message,stacktrace:""})}};
img.onerror=function(){window.__WEBDRIVER__.resolve("__CALLBACK_ID__",
{error:"ScreenshotError",message:"SVG render failed",stacktrace:""})};
img.src='data:image/svg+xml;charset=utf-8,'+encodeURIComponent(svg)
}catch(e){window.__WEBDRIVER__.resolve("__CALLBACK_ID__",
{error:e.name,message:e.message,stacktrace:e.stack||""})}})()`

func (a *Agent) handleScreenshot(w http.ResponseWriter, r *http.Request) {
	result, err := a.evalCallback(screenshotJS)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]json.RawMessage{"data": result})
}

func (a *Agent) handleScreenshotElement(w http.ResponseWriter, r *http.Request) {
	var req ElementRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	findFn := "findElement"
	if req.Using == "xpath" {
		findFn = "findElementByXPath"
	}
	sel, _ := json.Marshal(req.Selector)
	// Render the full page once, then crop the element's bounding box
	// into a second canvas.
	script := fmt.Sprintf(`(function(){try{
var tgt=window.__WEBDRIVER__.%s(%s,%d);
if(!tgt){window.__WEBDRIVER__.resolve("__CALLBACK_ID__",
{error:"NoSuchElement",message:"element not found",stacktrace:""});return}
var rect=tgt.getBoundingClientRect();
var el=document.documentElement;
var w=Math.max(el.scrollWidth,el.clientWidth);
var h=Math.max(el.scrollHeight,el.clientHeight);
var xml=new XMLSerializer().serializeToString(el);
var svg='<svg xmlns="http://www.w3.org/2000/svg" width="'+w+'" height="'+h+'">'
+'<foreignObject width="100%%" height="100%%">'+xml+'</foreignObject></svg>';
var fc=document.createElement('canvas');fc.width=w;fc.height=h;
var fctx=fc.getContext('2d');var img=new Image();
img.onload=function(){try{fctx.drawImage(img,0,0);
var c=document.createElement('canvas');
c.width=Math.ceil(rect.width);c.height=Math.ceil(rect.height);
var ctx=c.getContext('2d');
ctx.drawImage(fc,rect.x,rect.y,rect.width,rect.height,0,0,rect.width,rect.height);
var d=c.toDataURL('image/png').split(',')[1];
window.__WEBDRIVER__.resolve("__CALLBACK_ID__",d)}
catch(e){window.__WEBDRIVER__.resolve("__CALLBACK_ID__",
{error:"SecurityError",message:e.message,stacktrace:""})}};
img.onerror=function(){window.__WEBDRIVER__.resolve("__CALLBACK_ID__",
{error:"ScreenshotError",message:"SVG render failed",stacktrace:""})};
img.src='data:image/svg+xml;charset=utf-8,'+encodeURIComponent(svg)
}catch(e){window.__WEBDRIVER__.resolve("__CALLBACK_ID__",
{error:e.name,message:e.message,stacktrace:e.stack||""})}})()`,
		findFn, sel, req.Index)

	result, err := a.evalCallback(script)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]json.RawMessage{"data": result})
}

// printJS rasterizes the page like a screenshot and wraps the PNG in a
// minimal single-page PDF 1.4 structure, resolved as base64.
const printJS = `(function(){try{
var el=document.documentElement;
var w=Math.max(el.scrollWidth,el.clientWidth);
var h=Math.max(el.scrollHeight,el.clientHeight);
var xml=new XMLSerializer().serializeToString(el);
var svg='<svg xmlns="http://www.w3.org/2000/svg" width="'+w+'" height="'+h+'">'
+'<foreignObject width="100%" height="100%">'+xml+'</foreignObject></svg>';
var c=document.createElement('canvas');c.width=w;c.height=h;
var ctx=c.getContext('2d');var img=new Image();
img.onload=function(){try{ctx.drawImage(img,0,0);
var pngDataUrl=c.toDataURL('image/png');
var pngB64=pngDataUrl.split(',')[1];
var bin=atob(pngB64);var len=bin.length;
var imgW=w;var imgH=h;
var pageW=612;var pageH=792;
var scaleX=pageW/imgW;var scaleY=pageH/imgH;
var sc=Math.min(scaleX,scaleY);
var dw=Math.round(imgW*sc);var dh=Math.round(imgH*sc);
var objs=[];var offsets=[];
function addObj(s){offsets.push(objs.join('').length);objs.push(s)}
addObj('%PDF-1.4\n');
addObj('1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n');
addObj('2 0 obj\n<< /Type /Pages /Kids [3 0 R] /Count 1 >>\nendobj\n');
addObj('3 0 obj\n<< /Type /Page /Parent 2 0 R /MediaBox [0 0 '+pageW+' '+pageH+'] /Contents 5 0 R /Resources << /XObject << /Img 4 0 R >> >> >>\nendobj\n');
var imgStream='4 0 obj\n<< /Type /XObject /Subtype /Image /Width '+imgW+' /Height '+imgH+' /ColorSpace /DeviceRGB /BitsPerComponent 8 /Filter /ASCIIHexDecode /Length '+(len*2+1)+' >>\nstream\n';
var hexParts=[];for(var i=0;i<len;i++){
var byte=bin.charCodeAt(i);
hexParts.push(('0'+byte.toString(16)).slice(-2))}
imgStream+=hexParts.join('')+'>\nendstream\nendobj\n';
addObj(imgStream);
var contentStr='q '+dw+' 0 0 '+dh+' 0 '+(pageH-dh)+' cm /Img Do Q';
addObj('5 0 obj\n<< /Length '+contentStr.length+' >>\nstream\n'+contentStr+'\nendstream\nendobj\n');
var body=objs.join('');
var xrefOff=body.length;
var xref='xref\n0 6\n0000000000 65535 f \n';
for(var j=1;j<offsets.length;j++){
xref+=('0000000000'+offsets[j]).slice(-10)+' 00000 n \n'}
xref+='trailer\n<< /Size 6 /Root 1 0 R >>\nstartxref\n'+xrefOff+'\n%%EOF';
var pdf=body+xref;
var pdfB64=btoa(pdf);
window.__WEBDRIVER__.resolve("__CALLBACK_ID__",pdfB64)}
catch(e){window.__WEBDRIVER__.resolve("__CALLBACK_ID__",
{error:e.name,message:e.message,stacktrace:e.stack||""})}};
img.onerror=function(){window.__WEBDRIVER__.resolve("__CALLBACK_ID__",
{error:"PrintError",message:"SVG render failed",stacktrace:""})};
img.src='data:image/svg+xml;charset=utf-8,'+encodeURIComponent(svg)
}catch(e){window.__WEBDRIVER__.resolve("__CALLBACK_ID__",
{error:e.name,message:e.message,stacktrace:e.stack||""})}})()`

func (a *Agent) handlePrint(w http.ResponseWriter, r *http.Request) {
	result, err := a.evalCallback(printJS)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]json.RawMessage{"data": result})
}

// Element endpoint handlers: id minting on find, triple lookup and
// forwarding for reads and writes, and shadow root traversal.
package gateway

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/danielraffel/tauri-webdriver/internal/w3c"
)

// agentElement is one element as the agent reports it
type agentElement struct {
	Selector string `json:"selector"`
	Index    int    `json:"index"`
	Using    string `json:"using"`
}

// elementsResponse is the agent's find response envelope
type elementsResponse struct {
	Elements []agentElement `json:"elements"`
}

func (e agentElement) ref() ElementRef {
	using := e.Using
	if using == "" {
		using = "css"
	}
	return ElementRef{Using: using, Selector: e.Selector, Index: e.Index}
}

// elementBody is the forward payload addressing one element
func elementBody(ref ElementRef) map[string]any {
	return map[string]any{
		"selector": ref.Selector,
		"index":    ref.Index,
		"using":    ref.Using,
	}
}

// w3cElement wraps an element id in the W3C reference shape
func w3cElement(id string) map[string]string {
	return map[string]string{w3c.ElementKey: id}
}

// resolveElement looks up the {eid} path parameter
func resolveElement(session *Session, r *http.Request) (ElementRef, *w3c.Error) {
	eid := r.PathValue("eid")
	ref, ok := session.Element(eid)
	if !ok {
		return ElementRef{}, w3c.ErrNoElement(eid)
	}
	return ref, nil
}

// findOnAgent runs a find call and returns the located elements
func findOnAgent(session *Session, path string, body any) ([]agentElement, *w3c.Error) {
	var resp elementsResponse
	if err := session.agent.postObject(path, body, &resp); err != nil {
		return nil, mapAgentError(err, false)
	}
	return resp.Elements, nil
}

// --- Find handlers ---

func (s *Server) handleFindElement(w http.ResponseWriter, r *http.Request) {
	session, werr := s.session(r)
	if werr != nil {
		w3c.WriteError(w, werr)
		return
	}
	using, value, werr := decodeLocator(readBody(r))
	if werr != nil {
		w3c.WriteError(w, werr)
		return
	}
	elements, werr := findOnAgent(session, "/element/find",
		map[string]string{"using": using, "value": value})
	if werr != nil {
		w3c.WriteError(w, werr)
		return
	}
	if len(elements) == 0 {
		w3c.WriteError(w, w3c.NewError(http.StatusNotFound, w3c.CodeNoSuchElement,
			fmt.Sprintf("no element found with %s: %s", using, value)))
		return
	}
	id := session.StoreElement(elements[0].ref())
	w3c.WriteValue(w, w3cElement(id))
}

func (s *Server) handleFindElements(w http.ResponseWriter, r *http.Request) {
	session, werr := s.session(r)
	if werr != nil {
		w3c.WriteError(w, werr)
		return
	}
	using, value, werr := decodeLocator(readBody(r))
	if werr != nil {
		w3c.WriteError(w, werr)
		return
	}
	elements, werr := findOnAgent(session, "/element/find",
		map[string]string{"using": using, "value": value})
	if werr != nil {
		w3c.WriteError(w, werr)
		return
	}
	refs := make([]map[string]string, 0, len(elements))
	for _, elem := range elements {
		refs = append(refs, w3cElement(session.StoreElement(elem.ref())))
	}
	w3c.WriteValue(w, refs)
}

func (s *Server) findFromElement(w http.ResponseWriter, r *http.Request, single bool) {
	session, werr := s.session(r)
	if werr != nil {
		w3c.WriteError(w, werr)
		return
	}
	parent, werr := resolveElement(session, r)
	if werr != nil {
		w3c.WriteError(w, werr)
		return
	}
	using, value, werr := decodeLocator(readBody(r))
	if werr != nil {
		w3c.WriteError(w, werr)
		return
	}
	elements, werr := findOnAgent(session, "/element/find-from", map[string]any{
		"parent_selector": parent.Selector,
		"parent_index":    parent.Index,
		"parent_using":    parent.Using,
		"using":           using,
		"value":           value,
	})
	if werr != nil {
		w3c.WriteError(w, werr)
		return
	}
	if single {
		if len(elements) == 0 {
			w3c.WriteError(w, w3c.NewError(http.StatusNotFound, w3c.CodeNoSuchElement,
				fmt.Sprintf("no child element found with %s: %s", using, value)))
			return
		}
		w3c.WriteValue(w, w3cElement(session.StoreElement(elements[0].ref())))
		return
	}
	refs := make([]map[string]string, 0, len(elements))
	for _, elem := range elements {
		refs = append(refs, w3cElement(session.StoreElement(elem.ref())))
	}
	w3c.WriteValue(w, refs)
}

func (s *Server) handleFindElementFromElement(w http.ResponseWriter, r *http.Request) {
	s.findFromElement(w, r, true)
}

func (s *Server) handleFindElementsFromElement(w http.ResponseWriter, r *http.Request) {
	s.findFromElement(w, r, false)
}

func (s *Server) handleGetActiveElement(w http.ResponseWriter, r *http.Request) {
	session, werr := s.session(r)
	if werr != nil {
		w3c.WriteError(w, werr)
		return
	}
	var resp struct {
		Element *agentElement `json:"element"`
	}
	if err := session.agent.postObject("/element/active", nil, &resp); err != nil {
		w3c.WriteError(w, mapAgentError(err, false))
		return
	}
	if resp.Element == nil {
		w3c.WriteError(w, w3c.NewError(http.StatusNotFound, w3c.CodeNoSuchElement,
			"no element is focused"))
		return
	}
	w3c.WriteValue(w, w3cElement(session.StoreElement(resp.Element.ref())))
}

// --- Element reads ---

// elementRead forwards an element-addressed read and returns the field
// of the agent response, with fallback when the field is absent.
func (s *Server) elementRead(w http.ResponseWriter, r *http.Request, path, field string, fallback any) {
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
	raw, err := session.agent.post(path, elementBody(ref))
	if err != nil {
		w3c.WriteError(w, mapAgentError(err, true))
		return
	}
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(raw, &envelope); err != nil {
		w3c.WriteError(w, w3c.ErrUnknown("malformed agent response"))
		return
	}
	if v, ok := envelope[field]; ok && string(v) != "null" {
		w3c.WriteValue(w, v)
		return
	}
	w3c.WriteValue(w, fallback)
}

func (s *Server) handleElementText(w http.ResponseWriter, r *http.Request) {
	s.elementRead(w, r, "/element/text", "text", "")
}

func (s *Server) handleElementName(w http.ResponseWriter, r *http.Request) {
	s.elementRead(w, r, "/element/tag", "tag", "")
}

func (s *Server) handleElementEnabled(w http.ResponseWriter, r *http.Request) {
	s.elementRead(w, r, "/element/enabled", "enabled", true)
}

func (s *Server) handleElementSelected(w http.ResponseWriter, r *http.Request) {
	s.elementRead(w, r, "/element/selected", "selected", false)
}

func (s *Server) handleElementDisplayed(w http.ResponseWriter, r *http.Request) {
	s.elementRead(w, r, "/element/displayed", "displayed", true)
}

func (s *Server) handleElementComputedRole(w http.ResponseWriter, r *http.Request) {
	s.elementRead(w, r, "/element/computed-role", "role", "generic")
}

func (s *Server) handleElementComputedLabel(w http.ResponseWriter, r *http.Request) {
	s.elementRead(w, r, "/element/computed-label", "label", "")
}

func (s *Server) handleElementRect(w http.ResponseWriter, r *http.Request) {
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
	raw, err := session.agent.post("/element/rect", elementBody(ref))
	if err != nil {
		w3c.WriteError(w, mapAgentError(err, true))
		return
	}
	w3c.WriteValue(w, json.RawMessage(raw))
}

// namedElementRead handles attribute/property reads carrying a {name}
func (s *Server) namedElementRead(w http.ResponseWriter, r *http.Request, path, name string) {
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
	body := elementBody(ref)
	body["name"] = name
	raw, err := session.agent.post(path, body)
	if err != nil {
		w3c.WriteError(w, mapAgentError(err, true))
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

func (s *Server) handleElementAttribute(w http.ResponseWriter, r *http.Request) {
	s.namedElementRead(w, r, "/element/attribute", r.PathValue("name"))
}

func (s *Server) handleElementProperty(w http.ResponseWriter, r *http.Request) {
	s.namedElementRead(w, r, "/element/property", r.PathValue("name"))
}

func (s *Server) handleElementCSS(w http.ResponseWriter, r *http.Request) {
	// CSS reads ride the property endpoint under the computed-style
	// name convention.
	s.namedElementRead(w, r, "/element/property", "__css__"+r.PathValue("name"))
}

// --- Element writes ---

// elementWrite forwards an element-addressed mutation
func (s *Server) elementWrite(w http.ResponseWriter, r *http.Request, path string, extra map[string]any) {
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
	body := elementBody(ref)
	for k, v := range extra {
		body[k] = v
	}
	if _, err := session.agent.post(path, body); err != nil {
		w3c.WriteError(w, mapAgentError(err, true))
		return
	}
	w3c.WriteValue(w, nil)
}

func (s *Server) handleElementClick(w http.ResponseWriter, r *http.Request) {
	s.elementWrite(w, r, "/element/click", nil)
}

func (s *Server) handleElementClear(w http.ResponseWriter, r *http.Request) {
	s.elementWrite(w, r, "/element/clear", nil)
}

func (s *Server) handleElementSendKeys(w http.ResponseWriter, r *http.Request) {
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
	var req struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(readBody(r), &req); err != nil {
		w3c.WriteError(w, w3c.ErrInvalidArgument("malformed value body"))
		return
	}

	// File inputs take newline-separated paths, uploaded by content.
	isFile, werr := s.isFileInput(session, ref)
	if werr != nil {
		w3c.WriteError(w, werr)
		return
	}
	if isFile {
		files, werr := readUploadFiles(req.Text)
		if werr != nil {
			w3c.WriteError(w, werr)
			return
		}
		body := elementBody(ref)
		body["files"] = files
		if _, err := session.agent.post("/element/set-files", body); err != nil {
			w3c.WriteError(w, mapAgentError(err, true))
			return
		}
		w3c.WriteValue(w, nil)
		return
	}

	body := elementBody(ref)
	body["text"] = req.Text
	if _, err := session.agent.post("/element/send-keys", body); err != nil {
		w3c.WriteError(w, mapAgentError(err, true))
		return
	}
	w3c.WriteValue(w, nil)
}

// isFileInput probes the element's tag and type attribute
func (s *Server) isFileInput(session *Session, ref ElementRef) (bool, *w3c.Error) {
	var tagResp struct {
		Tag string `json:"tag"`
	}
	if err := session.agent.postObject("/element/tag", elementBody(ref), &tagResp); err != nil {
		return false, mapAgentError(err, true)
	}
	if !strings.EqualFold(tagResp.Tag, "input") {
		return false, nil
	}
	body := elementBody(ref)
	body["name"] = "type"
	var attrResp struct {
		Value *string `json:"value"`
	}
	if err := session.agent.postObject("/element/attribute", body, &attrResp); err != nil {
		return false, mapAgentError(err, true)
	}
	return attrResp.Value != nil && strings.EqualFold(*attrResp.Value, "file"), nil
}

// uploadFile is one file payload for /element/set-files
type uploadFile struct {
	Name string `json:"name"`
	Data string `json:"data"`
	Mime string `json:"mime"`
}

// readUploadFiles loads newline-separated paths into upload payloads
func readUploadFiles(text string) ([]uploadFile, *w3c.Error) {
	var files []uploadFile
	for _, path := range strings.Split(text, "\n") {
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, w3c.ErrInvalidArgument(
				fmt.Sprintf("cannot read file %s: %v", path, err))
		}
		files = append(files, uploadFile{
			Name: filepath.Base(path),
			Data: base64.StdEncoding.EncodeToString(data),
			Mime: mimeFromExtension(path),
		})
	}
	return files, nil
}

// mimeFromExtension guesses a MIME type from the file extension
func mimeFromExtension(path string) string {
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(path), ".")) {
	case "txt":
		return "text/plain"
	case "html", "htm":
		return "text/html"
	case "css":
		return "text/css"
	case "js":
		return "application/javascript"
	case "json":
		return "application/json"
	case "xml":
		return "application/xml"
	case "pdf":
		return "application/pdf"
	case "zip":
		return "application/zip"
	case "png":
		return "image/png"
	case "jpg", "jpeg":
		return "image/jpeg"
	case "gif":
		return "image/gif"
	case "svg":
		return "image/svg+xml"
	case "webp":
		return "image/webp"
	case "mp4":
		return "video/mp4"
	case "mp3":
		return "audio/mpeg"
	default:
		return "application/octet-stream"
	}
}

// --- Shadow DOM ---

func (s *Server) handleGetShadowRoot(w http.ResponseWriter, r *http.Request) {
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
	var resp struct {
		HasShadow bool `json:"hasShadow"`
	}
	if err := session.agent.postObject("/element/shadow", elementBody(ref), &resp); err != nil {
		w3c.WriteError(w, mapAgentError(err, true))
		return
	}
	if !resp.HasShadow {
		w3c.WriteError(w, w3c.NewError(http.StatusNotFound, w3c.CodeNoSuchShadowRoot,
			fmt.Sprintf("element %s does not have a shadow root", r.PathValue("eid"))))
		return
	}
	id := session.StoreShadow(ref)
	w3c.WriteValue(w, map[string]string{w3c.ShadowKey: id})
}

func (s *Server) findInShadow(w http.ResponseWriter, r *http.Request, single bool) {
	session, werr := s.session(r)
	if werr != nil {
		w3c.WriteError(w, werr)
		return
	}
	shid := r.PathValue("shid")
	host, ok := session.Shadow(shid)
	if !ok {
		w3c.WriteError(w, w3c.NewError(http.StatusNotFound, w3c.CodeNoSuchShadowRoot,
			fmt.Sprintf("shadow root %s not found", shid)))
		return
	}
	using, value, werr := decodeLocator(readBody(r))
	if werr != nil {
		w3c.WriteError(w, werr)
		return
	}
	elements, werr := findOnAgent(session, "/shadow/find", map[string]any{
		"host_selector": host.Selector,
		"host_index":    host.Index,
		"host_using":    host.Using,
		"using":         using,
		"value":         value,
	})
	if werr != nil {
		w3c.WriteError(w, werr)
		return
	}
	if single {
		if len(elements) == 0 {
			w3c.WriteError(w, w3c.NewError(http.StatusNotFound, w3c.CodeNoSuchElement,
				fmt.Sprintf("no element found in shadow with %s: %s", using, value)))
			return
		}
		w3c.WriteValue(w, w3cElement(session.StoreElement(elements[0].ref())))
		return
	}
	refs := make([]map[string]string, 0, len(elements))
	for _, elem := range elements {
		refs = append(refs, w3cElement(session.StoreElement(elem.ref())))
	}
	w3c.WriteValue(w, refs)
}

func (s *Server) handleFindInShadow(w http.ResponseWriter, r *http.Request) {
	s.findInShadow(w, r, true)
}

func (s *Server) handleFindAllInShadow(w http.ResponseWriter, r *http.Request) {
	s.findInShadow(w, r, false)
}

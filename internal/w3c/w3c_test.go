package w3c

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWriteValue(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteValue(rec, map[string]int{"n": 3})

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	var body struct {
		Value map[string]int `json:"value"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse body: %v", err)
	}
	if body.Value["n"] != 3 {
		t.Errorf("expected value.n 3, got %d", body.Value["n"])
	}
}

func TestWriteValueNull(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteValue(rec, nil)

	if got := rec.Body.String(); got != "{\"value\":null}\n" {
		t.Errorf("unexpected body: %q", got)
	}
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, ErrNoSession())

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}

	var body struct {
		Value Error `json:"value"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse body: %v", err)
	}
	if body.Value.Code != CodeInvalidSessionID {
		t.Errorf("expected %q, got %q", CodeInvalidSessionID, body.Value.Code)
	}
	if body.Value.Message == "" {
		t.Error("expected a message")
	}
}

func TestWriteErrorPlain(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, json.Unmarshal([]byte("{"), &struct{}{}))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}

	var body struct {
		Value Error `json:"value"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse body: %v", err)
	}
	if body.Value.Code != CodeUnknownError {
		t.Errorf("expected %q, got %q", CodeUnknownError, body.Value.Code)
	}
}

func TestErrorString(t *testing.T) {
	err := ErrInvalidArgument("missing url")
	if err.Error() != "invalid argument: missing url" {
		t.Errorf("unexpected error string: %q", err.Error())
	}
	if err.Status != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", err.Status)
	}
}

func TestKeyLiterals(t *testing.T) {
	if ElementKey != "element-6066-11e4-a52e-4f735466cecf" {
		t.Errorf("element key literal changed: %q", ElementKey)
	}
	if ShadowKey != "shadow-6066-11e4-a52e-4f735466cecf" {
		t.Errorf("shadow key literal changed: %q", ShadowKey)
	}
}

package call

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/skinsense/telehealth/internal/platform/auth"
)

func expectStatus(t *testing.T, err error, want int) {
	t.Helper()
	var he *echo.HTTPError
	if !errors.As(err, &he) {
		t.Fatalf("expected *echo.HTTPError, got %v", err)
	}
	if he.Code != want {
		t.Errorf("expected status %d, got %d", want, he.Code)
	}
}

func newContext(method, body string, s *auth.Session, name, value string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if s != nil {
		req = req.WithContext(auth.WithSession(req.Context(), s))
	}
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(req, rec)
	c.SetParamNames(name)
	c.SetParamValues(value)
	return c, rec
}

func TestHandler_StartAndJoin(t *testing.T) {
	e := newTestEnv()
	h := NewHandler(e.svc)

	c, rec := newContext(http.MethodPost, "", e.patient, "peerId", e.doctor.UserID.String())
	if err := h.Start(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	var sess Session
	if err := json.Unmarshal(rec.Body.Bytes(), &sess); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if sess.Token == "" || sess.State != StateInitialized {
		t.Errorf("unexpected session %+v", sess)
	}

	c, rec = newContext(http.MethodPost, "", e.patient, "id", sess.ID.String())
	if err := h.Join(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"state":"joined"`) {
		t.Errorf("expected joined, got %s", rec.Body.String())
	}

	c, rec = newContext(http.MethodPut, `{"video":true}`, e.patient, "id", sess.ID.String())
	if err := h.SetMedia(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"video":true`) {
		t.Errorf("expected video on, got %s", rec.Body.String())
	}
}

func TestHandler_Errors(t *testing.T) {
	e := newTestEnv()
	h := NewHandler(e.svc)
	sess, _ := e.svc.Start(context.Background(), e.patient, e.doctor.UserID)

	c, _ := newContext(http.MethodPost, "", e.patient, "peerId", "nope")
	expectStatus(t, h.Start(c), http.StatusBadRequest)

	c, _ = newContext(http.MethodPost, "", e.patient, "peerId", uuid.NewString())
	expectStatus(t, h.Start(c), http.StatusNotFound)

	c, _ = newContext(http.MethodPost, "", e.patient, "id", sess.ID.String())
	expectStatus(t, h.Leave(c), http.StatusConflict)

	c, _ = newContext(http.MethodPost, "", e.doctor, "id", sess.ID.String())
	expectStatus(t, h.Join(c), http.StatusForbidden)

	c, _ = newContext(http.MethodDelete, "", e.patient, "id", uuid.NewString())
	expectStatus(t, h.Release(c), http.StatusNotFound)

	c, _ = newContext(http.MethodPost, "", nil, "peerId", e.doctor.UserID.String())
	expectStatus(t, h.Start(c), http.StatusUnauthorized)
}

func TestHandler_TokenUnavailable(t *testing.T) {
	e := newTestEnv()
	e.tokens.err = ErrTokenUnavailable
	h := NewHandler(e.svc)

	c, _ := newContext(http.MethodPost, "", e.patient, "peerId", e.doctor.UserID.String())
	expectStatus(t, h.Start(c), http.StatusBadGateway)
}

func TestHandler_Release(t *testing.T) {
	e := newTestEnv()
	h := NewHandler(e.svc)
	sess, _ := e.svc.Start(context.Background(), e.patient, e.doctor.UserID)

	c, rec := newContext(http.MethodDelete, "", e.patient, "id", sess.ID.String())
	if err := h.Release(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
}

package identity

import (
	"bytes"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/skinsense/telehealth/internal/platform/auth"
)

func newTestHandler() (*Handler, *testEnv, *echo.Echo) {
	env := newTestEnv()
	return NewHandler(env.svc), env, echo.New()
}

func jsonRequest(method, body string) *http.Request {
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func withSession(req *http.Request, s *auth.Session) *http.Request {
	return req.WithContext(auth.WithSession(req.Context(), s))
}

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

func TestHandler_SignUp(t *testing.T) {
	h, _, e := newTestHandler()
	body := `{"email":"p@example.com","password":"secret123","name":"Pat","role":"patient"}`
	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, body), rec)

	if err := h.SignUp(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	var res map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &res)
	if res["accessToken"] == "" || res["accessToken"] == nil {
		t.Error("expected access token in response")
	}
	if strings.Contains(rec.Body.String(), "password") {
		t.Error("response must not contain the password hash")
	}
}

func TestHandler_SignUp_BadRole(t *testing.T) {
	h, _, e := newTestHandler()
	body := `{"email":"p@example.com","password":"secret123","name":"Pat","role":"nurse"}`
	c := e.NewContext(jsonRequest(http.MethodPost, body), httptest.NewRecorder())

	expectStatus(t, h.SignUp(c), http.StatusBadRequest)
}

func TestHandler_SignUp_Conflict(t *testing.T) {
	h, env, e := newTestHandler()
	env.signUp(t, "p@example.com", auth.RolePatient)
	body := `{"email":"p@example.com","password":"secret123","name":"Pat","role":"patient"}`
	c := e.NewContext(jsonRequest(http.MethodPost, body), httptest.NewRecorder())

	expectStatus(t, h.SignUp(c), http.StatusConflict)
}

func TestHandler_SignIn_Unauthorized(t *testing.T) {
	h, env, e := newTestHandler()
	env.signUp(t, "p@example.com", auth.RolePatient)
	c := e.NewContext(jsonRequest(http.MethodPost, `{"email":"p@example.com","password":"nope-nope"}`), httptest.NewRecorder())

	expectStatus(t, h.SignIn(c), http.StatusUnauthorized)
}

func TestHandler_Me(t *testing.T) {
	h, env, e := newTestHandler()
	res := env.signUp(t, "p@example.com", auth.RolePatient)
	req := withSession(httptest.NewRequest(http.MethodGet, "/", nil), &auth.Session{UserID: res.User.ID, Role: auth.RolePatient})
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.Me(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), res.User.ID.String()) {
		t.Errorf("expected user id in body, got %s", rec.Body.String())
	}
}

func TestHandler_Me_NoSession(t *testing.T) {
	h, _, e := newTestHandler()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())

	expectStatus(t, h.Me(c), http.StatusUnauthorized)
}

func TestHandler_SignOut(t *testing.T) {
	h, env, e := newTestHandler()
	res := env.signUp(t, "p@example.com", auth.RolePatient)
	session, _ := env.issuer.Verify(res.AccessToken)
	rec := httptest.NewRecorder()
	c := e.NewContext(withSession(httptest.NewRequest(http.MethodPost, "/", nil), session), rec)

	if err := h.SignOut(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
}

func TestHandler_GetProfile(t *testing.T) {
	h, env, e := newTestHandler()
	res := env.signUp(t, "doc@example.com", auth.RoleDoctor)

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	c.SetParamNames("id")
	c.SetParamValues(res.User.ID.String())
	if err := h.GetProfile(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(uuid.New().String())
	expectStatus(t, h.GetProfile(c), http.StatusNotFound)

	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("not-a-uuid")
	expectStatus(t, h.GetProfile(c), http.StatusBadRequest)
}

func TestHandler_UpdateProfile(t *testing.T) {
	h, env, e := newTestHandler()
	res := env.signUp(t, "doc@example.com", auth.RoleDoctor)
	req := withSession(jsonRequest(http.MethodPut, `{"name":"Dr. Who","specialty":"Dermatology"}`),
		&auth.Session{UserID: res.User.ID, Role: auth.RoleDoctor})
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.UpdateProfile(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), "Dr. Who") {
		t.Errorf("expected updated name in body, got %s", rec.Body.String())
	}
}

func TestHandler_UploadProfileImage(t *testing.T) {
	h, env, e := newTestHandler()
	res := env.signUp(t, "p@example.com", auth.RolePatient)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, _ := mw.CreateFormFile("image", "me.png")
	part.Write(pngBytes())
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/", &body)
	req.Header.Set(echo.HeaderContentType, mw.FormDataContentType())
	req = withSession(req, &auth.Session{UserID: res.User.ID, Role: auth.RolePatient})
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.UploadProfileImage(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), "profileImages/"+res.User.ID.String()+"/profile.jpg") {
		t.Errorf("expected profile image url in body, got %s", rec.Body.String())
	}
}

func TestHandler_UploadProfileImage_MissingFile(t *testing.T) {
	h, env, e := newTestHandler()
	res := env.signUp(t, "p@example.com", auth.RolePatient)
	req := withSession(jsonRequest(http.MethodPost, `{}`), &auth.Session{UserID: res.User.ID, Role: auth.RolePatient})
	c := e.NewContext(req, httptest.NewRecorder())

	expectStatus(t, h.UploadProfileImage(c), http.StatusBadRequest)
}

func TestHandler_ListDoctors(t *testing.T) {
	h, env, e := newTestHandler()
	env.signUp(t, "doc@example.com", auth.RoleDoctor)
	env.signUp(t, "p@example.com", auth.RolePatient)

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/?limit=10", nil), rec)
	if err := h.ListDoctors(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var resp struct {
		Data  []User `json:"data"`
		Total int    `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total != 1 || len(resp.Data) != 1 || resp.Data[0].Role != auth.RoleDoctor {
		t.Errorf("expected one doctor, got %+v", resp)
	}
}

package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

func contextWithRole(role Role) echo.Context {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	s := &Session{UserID: uuid.New(), Role: role}
	req = req.WithContext(WithSession(req.Context(), s))
	return e.NewContext(req, httptest.NewRecorder())
}

func TestRequireRole_Allowed(t *testing.T) {
	c := contextWithRole(RoleDoctor)
	if err := RequireRole(RoleDoctor)(okHandler)(c); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestRequireRole_AnyOf(t *testing.T) {
	c := contextWithRole(RolePatient)
	if err := RequireRole(RoleDoctor, RolePatient)(okHandler)(c); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestRequireRole_Denied(t *testing.T) {
	c := contextWithRole(RolePatient)
	expectHTTPStatus(t, RequireRole(RoleDoctor)(okHandler)(c), http.StatusForbidden)
}

func TestRequireRole_NoSession(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	expectHTTPStatus(t, RequireRole(RoleDoctor)(okHandler)(c), http.StatusUnauthorized)
}

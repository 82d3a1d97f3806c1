package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func contextWithRoles(roles ...string) echo.Context {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if roles != nil {
		ctx := context.WithValue(req.Context(), UserRolesKey, roles)
		req = req.WithContext(ctx)
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec)
}

func TestRequireRole_Allows(t *testing.T) {
	mw := RequireRole("reception")
	called := false
	handler := mw(func(c echo.Context) error {
		called = true
		return nil
	})

	if err := handler(contextWithRoles("reception")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Error("expected handler to run")
	}
}

func TestRequireRole_AdminPassesEverything(t *testing.T) {
	mw := RequireRole("therapist")
	handler := mw(func(c echo.Context) error { return nil })

	if err := handler(contextWithRoles("admin")); err != nil {
		t.Errorf("unexpected error for admin: %v", err)
	}
}

func TestRequireRole_Forbidden(t *testing.T) {
	mw := RequireRole("admin")
	handler := mw(func(c echo.Context) error { return nil })

	err := handler(contextWithRoles("reception"))
	if err == nil {
		t.Fatal("expected forbidden error")
	}
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %v", err)
	}
}

func TestRequireRole_NoRoles(t *testing.T) {
	mw := RequireRole("reception")
	handler := mw(func(c echo.Context) error { return nil })

	if err := handler(contextWithRoles()); err == nil {
		t.Error("expected error for request without roles")
	}
}

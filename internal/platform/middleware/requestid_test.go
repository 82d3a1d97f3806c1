package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

func TestRequestID_Generates(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := RequestID()(func(c echo.Context) error { return nil })
	if err := handler(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rid := rec.Header().Get(RequestIDHeader)
	if rid == "" {
		t.Fatal("expected a request id in the response headers")
	}
	if _, err := uuid.Parse(rid); err != nil {
		t.Errorf("expected a uuid, got %q", rid)
	}
	if got := c.Get("request_id"); got != rid {
		t.Errorf("expected context id %q, got %v", rid, got)
	}
}

func TestRequestID_HonorsInbound(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "caller-supplied-id")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := RequestID()(func(c echo.Context) error { return nil })
	if err := handler(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if rid := rec.Header().Get(RequestIDHeader); rid != "caller-supplied-id" {
		t.Errorf("expected caller-supplied-id, got %q", rid)
	}
}

package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

var testSecret = []byte("test-secret")

func newAuthedServer(mw echo.MiddlewareFunc) *echo.Echo {
	e := echo.New()
	e.GET("/whoami", func(c echo.Context) error {
		ctx := c.Request().Context()
		return c.JSON(http.StatusOK, map[string]string{
			"user_id": UserIDFromContext(ctx).String(),
			"role":    RoleFromContext(ctx),
		})
	}, mw)
	e.GET("/admin-only", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}, mw, RequireRole("admin"))
	return e
}

func TestMiddleware_ValidToken(t *testing.T) {
	e := newAuthedServer(Middleware(testSecret))
	userID := uuid.New()
	token, err := IssueToken(testSecret, userID, "patient", time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := rec.Body.String()
	if !contains(body, userID.String()) || !contains(body, "patient") {
		t.Errorf("unexpected body: %s", body)
	}
}

func TestMiddleware_MissingToken(t *testing.T) {
	e := newAuthedServer(Middleware(testSecret))
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestMiddleware_WrongSecret(t *testing.T) {
	e := newAuthedServer(Middleware(testSecret))
	token, err := IssueToken([]byte("other-secret"), uuid.New(), "patient", time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestMiddleware_ExpiredToken(t *testing.T) {
	e := newAuthedServer(Middleware(testSecret))
	token, err := IssueToken(testSecret, uuid.New(), "patient", -time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestRequireRole(t *testing.T) {
	e := newAuthedServer(Middleware(testSecret))

	adminToken, _ := IssueToken(testSecret, uuid.New(), "admin", time.Hour)
	req := httptest.NewRequest(http.MethodGet, "/admin-only", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+adminToken)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 for admin, got %d", rec.Code)
	}

	patientToken, _ := IssueToken(testSecret, uuid.New(), "patient", time.Hour)
	req = httptest.NewRequest(http.MethodGet, "/admin-only", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+patientToken)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 for patient, got %d", rec.Code)
	}
}

func TestDevMiddleware(t *testing.T) {
	e := newAuthedServer(DevMiddleware())
	userID := uuid.New()

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("X-User-ID", userID.String())
	req.Header.Set("X-User-Role", "doctor")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !contains(rec.Body.String(), "doctor") {
		t.Errorf("unexpected body: %s", rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/whoami", nil)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without headers, got %d", rec.Code)
	}
}

func contains(s, sub string) bool {
	return strings.Contains(s, sub)
}

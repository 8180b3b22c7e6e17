package dispensing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinichq/clinic/internal/domain/scope"
	"github.com/clinichq/clinic/internal/platform/auth"
)

// guardedEcho wires the handler under an echo instance with a fixed
// scope and role set, standing in for the auth and scope middleware.
func guardedEcho(h *Handler, s scope.Scope, roles []string) *echo.Echo {
	e := echo.New()
	api := e.Group("/api/v1")
	api.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := context.WithValue(c.Request().Context(), auth.UserRolesKey, roles)
			ctx = scope.NewContext(ctx, s)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	})
	h.RegisterRoutes(api)
	return e
}

func serve(e *echo.Echo, method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestRoutes_DeduplicateRequiresAdmin(t *testing.T) {
	svc, _, _, _ := newTestService()
	h := NewHandler(svc)

	e := guardedEcho(h, scope.Individual("practitioner-1"), []string{"practitioner"})
	if rec := serve(e, http.MethodPost, "/api/v1/dispensing/deduplicate"); rec.Code != http.StatusForbidden {
		t.Errorf("non-admin dedupe status = %d, want 403", rec.Code)
	}

	e = guardedEcho(h, scope.Individual("practitioner-1"), []string{"admin"})
	if rec := serve(e, http.MethodPost, "/api/v1/dispensing/deduplicate"); rec.Code != http.StatusOK {
		t.Errorf("admin dedupe status = %d, want 200", rec.Code)
	}
}

func TestRoutes_AuditClearRequiresAdmin(t *testing.T) {
	svc, _, _, _ := newTestService()
	h := NewHandler(svc)

	e := guardedEcho(h, scope.Individual("practitioner-1"), []string{"practitioner"})
	if rec := serve(e, http.MethodDelete, "/api/v1/usage-audit"); rec.Code != http.StatusForbidden {
		t.Errorf("non-admin clear status = %d, want 403", rec.Code)
	}

	e = guardedEcho(h, scope.Individual("practitioner-1"), []string{"admin"})
	if rec := serve(e, http.MethodDelete, "/api/v1/usage-audit"); rec.Code != http.StatusNoContent {
		t.Errorf("admin clear status = %d, want 204", rec.Code)
	}
}

func TestRoutes_DeleteRequiresWriteOffPermission(t *testing.T) {
	svc, records, _, _ := newTestService()
	h := NewHandler(svc)

	rec := &Record{DispensedAt: time.Now()}
	if err := records.Create(context.Background(), rec); err != nil {
		t.Fatal(err)
	}

	restricted := scope.Organization("practitioner-1", uuid.New(),
		scope.Permissions{ManagePatients: true})
	e := guardedEcho(h, restricted, []string{"practitioner"})
	if res := serve(e, http.MethodDelete, "/api/v1/dispensing/"+rec.ID.String()); res.Code != http.StatusForbidden {
		t.Errorf("restricted delete status = %d, want 403", res.Code)
	}

	e = guardedEcho(h, scope.Individual("practitioner-1"), []string{"practitioner"})
	if res := serve(e, http.MethodDelete, "/api/v1/dispensing/"+rec.ID.String()); res.Code != http.StatusNoContent {
		t.Errorf("permitted delete status = %d, want 204", res.Code)
	}
}

package scope

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinichq/clinic/internal/platform/auth"
)

// OrgHeader selects organization mode for a request. Absent, the request
// targets the caller's individual partition.
const OrgHeader = "X-Org-ID"

// MembershipResolver verifies that a user belongs to an organization and
// returns the member's permission flags. Implemented by the organization
// repository; declared here so scope resolution does not depend on it.
type MembershipResolver interface {
	ResolveMember(ctx context.Context, orgID uuid.UUID, userID string) (Permissions, error)
}

// Middleware resolves the owner scope for every request and stores it in
// the request context. Organization mode requires a verified membership.
func Middleware(members MembershipResolver) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			userID := auth.UserIDFromContext(ctx)
			if userID == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
			}

			var s Scope
			if orgHeader := c.Request().Header.Get(OrgHeader); orgHeader != "" {
				orgID, err := uuid.Parse(orgHeader)
				if err != nil {
					return echo.NewHTTPError(http.StatusBadRequest, "invalid organization id")
				}
				perms, err := members.ResolveMember(ctx, orgID, userID)
				if err != nil {
					return echo.NewHTTPError(http.StatusForbidden, "not a member of this organization")
				}
				s = Organization(userID, orgID, perms)
			} else {
				s = Individual(userID)
			}

			c.SetRequest(c.Request().WithContext(NewContext(ctx, s)))
			return next(c)
		}
	}
}

// RequirePermission returns middleware that rejects requests whose
// resolved scope lacks the named permission flag. Must be registered
// after Middleware so the scope is present.
func RequirePermission(name string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			s, err := FromContext(c.Request().Context())
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
			}
			if !s.Permissions.Has(name) {
				return echo.NewHTTPError(http.StatusForbidden, "required permission: "+name)
			}
			return next(c)
		}
	}
}

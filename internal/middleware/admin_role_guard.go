package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// contextに入っているroleが許可されたものか確認します。
// AuthJWTの後に置く
func RoleGuard(allowed ...string) echo.MiddlewareFunc {
	ok := make(map[string]bool, len(allowed))
	for _, r := range allowed {
		ok[r] = true
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role, _ := c.Get(CtxUserRoleKey).(string)
			if role == "" {
				return c.JSON(http.StatusUnauthorized, errorJSON("unauthorized", "unauthorized"))
			}
			if !ok[role] {
				return c.JSON(http.StatusForbidden, errorJSON("forbidden", "forbidden"))
			}
			return next(c)
		}
	}
}

// adminだけ
func AdminRoleGuard() echo.MiddlewareFunc {
	return RoleGuard("admin")
}

package middleware

import (
	"order-service/app/domain"
	"order-service/app/handler/api/response"
	"order-service/pkg/ctxutil"

	"github.com/gofiber/fiber/v2"
)

type Role struct {
	Level       int
	Permissions []string
}

const adminLevel = 2

// roleTable is the static role/permission lookup, fixed at compile time and
// never mutated at runtime.
var roleTable = map[string]Role{
	"superadmin": {Level: 3, Permissions: []string{"orders:read", "orders:write", "orders:delete", "stock:read", "stock:write"}},
	"admin":      {Level: 2, Permissions: []string{"orders:read", "orders:write", "orders:delete", "stock:read"}},
	"staff":      {Level: 1, Permissions: []string{"orders:read", "stock:read"}},
	"customer":   {Level: 0, Permissions: []string{"orders:read"}},
}

func LookupRole(name string) (Role, bool) {
	role, ok := roleTable[name]
	return role, ok
}

func RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		roleName := ctxutil.GetRoleCtx(c.Context())
		role, ok := LookupRole(roleName)
		if !ok || role.Level < adminLevel {
			return c.Status(fiber.StatusUnauthorized).JSON(response.Error(domain.ErrUnauthorized))
		}

		return c.Next()
	}
}

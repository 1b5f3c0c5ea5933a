package middleware

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/farmer-objection-service/internal/service"
)

// Actor is the authenticated caller as established by JWTAuth.
type Actor struct {
	Role     service.Role
	FarmerID uint64 // zero for admins
}

// ActorFrom reads the caller from the context. ok is false when no role
// is present, or when a farmer token carries no usable numeric subject.
func ActorFrom(c echo.Context) (Actor, bool) {
	role, _ := c.Get(KeyRole).(string)
	if role == "" {
		return Actor{}, false
	}
	a := Actor{Role: service.Role(role)}
	if a.Role != service.RoleFarmer {
		return a, true
	}
	id, ok := farmerID(c.Get(KeyUserID))
	if !ok {
		return Actor{}, false
	}
	a.FarmerID = id
	return a, true
}

func farmerID(v any) (uint64, bool) {
	switch t := v.(type) {
	case uint64:
		return t, t > 0
	case float64:
		return uint64(t), t >= 1
	case string:
		n, err := strconv.ParseUint(t, 10, 64)
		return n, err == nil && n > 0
	}
	return 0, false
}

// userID returns the subject for rate-limit keys, or "anon".
func userID(c echo.Context) string {
	if s, ok := c.Get(KeyUserID).(string); ok && s != "" {
		return s
	}
	return "anon"
}

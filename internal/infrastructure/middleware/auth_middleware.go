package middleware

import (
	"strconv"
	"strings"

	"physlab/internal/core/domain"
	"physlab/internal/core/ports"
	"physlab/internal/core/services"
	apperrors "physlab/pkg/errors"
	"physlab/pkg/logger"

	"github.com/gin-gonic/gin"
)

const identityKey = "identity"

// AuthMiddleware resolves the bearer token into an identity. Requests without
// a valid token are rejected with 401.
func AuthMiddleware(auth ports.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			abortWithError(c, apperrors.NewUnauthenticatedError("authorization header required"))
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			abortWithError(c, apperrors.NewUnauthenticatedError("invalid authorization header format"))
			return
		}

		id, err := auth.Authenticate(c.Request.Context(), strings.TrimSpace(parts[1]))
		if err != nil {
			abortWithError(c, err)
			return
		}

		c.Set(identityKey, id)
		ctx := logger.WithUserID(c.Request.Context(), strconv.FormatUint(uint64(id.UserID), 10))
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// OptionalAuthMiddleware resolves a bearer token when one is present and
// otherwise lets the request through anonymously.
func OptionalAuthMiddleware(auth ports.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
		if len(parts) == 2 && parts[0] == "Bearer" {
			if id, err := auth.Authenticate(c.Request.Context(), strings.TrimSpace(parts[1])); err == nil {
				c.Set(identityKey, id)
			}
		}
		c.Next()
	}
}

// RequirePermission rejects callers whose role the policy does not allow for op.
func RequirePermission(policy *services.AccessPolicy, op services.Operation) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := IdentityFrom(c)
		if !ok {
			abortWithError(c, apperrors.NewUnauthenticatedError("authentication required"))
			return
		}
		if err := policy.Authorize(op, id); err != nil {
			abortWithError(c, err)
			return
		}
		c.Next()
	}
}

// IdentityFrom returns the identity stored by AuthMiddleware.
func IdentityFrom(c *gin.Context) (domain.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return domain.Identity{}, false
	}
	id, ok := v.(domain.Identity)
	return id, ok
}

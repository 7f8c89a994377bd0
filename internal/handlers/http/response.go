package http

import (
	"net/http"
	"strconv"

	"physlab/internal/core/domain"
	"physlab/internal/core/services"
	"physlab/internal/infrastructure/middleware"
	apperrors "physlab/pkg/errors"
	"physlab/pkg/validation"

	"github.com/gin-gonic/gin"
)

var errNoRoute = apperrors.NewNotFoundError("route")

// Guards are the per-group middlewares handlers attach to their routes.
type Guards struct {
	Auth     gin.HandlerFunc
	Optional gin.HandlerFunc
	Policy   *services.AccessPolicy
}

func (g Guards) require(op services.Operation) gin.HandlerFunc {
	return middleware.RequirePermission(g.Policy, op)
}

type envelope struct {
	Data interface{} `json:"data"`
	Meta interface{} `json:"meta,omitempty"`
}

func respond(c *gin.Context, status int, data interface{}) {
	c.JSON(status, envelope{Data: data})
}

func respondPage(c *gin.Context, data interface{}, meta interface{}) {
	c.JSON(http.StatusOK, envelope{Data: data, Meta: meta})
}

// identity is the caller resolved by the auth middleware. Anonymous callers
// on optional-auth routes get the zero Identity.
func identity(c *gin.Context) domain.Identity {
	id, _ := middleware.IdentityFrom(c)
	return id
}

func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.Error(validation.FromBindingError(err))
		return false
	}
	return true
}

func bindQuery(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindQuery(dst); err != nil {
		c.Error(validation.FromBindingError(err))
		return false
	}
	return true
}

func idParam(c *gin.Context, name string) (uint, bool) {
	v, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || v == 0 {
		c.Error(apperrors.NewValidationError(name, name+" must be a positive integer"))
		return 0, false
	}
	return uint(v), true
}

// pageQuery is the shared page/limit query pair.
type pageQuery struct {
	Page  int `form:"page" binding:"omitempty,min=1"`
	Limit int `form:"limit" binding:"omitempty,min=1"`
}

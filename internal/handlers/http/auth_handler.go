package http

import (
	"net/http"

	"physlab/internal/core/domain"
	"physlab/internal/core/ports"
	"physlab/pkg/validation"

	"github.com/gin-gonic/gin"
)

type AuthHandler struct {
	authService ports.AuthService
}

func NewAuthHandler(authService ports.AuthService) *AuthHandler {
	return &AuthHandler{
		authService: authService,
	}
}

func (h *AuthHandler) SetupRoutes(api *gin.RouterGroup, g Guards) {
	auth := api.Group("/auth")
	{
		auth.POST("/telegram", h.Login)
		auth.GET("/profile", g.Auth, h.Profile)
		auth.PUT("/profile", g.Auth, h.UpdateProfile)
	}
}

type TelegramLoginRequest struct {
	InitData string `json:"initData" binding:"required,max=8192"`
}

type ProfileRequest struct {
	Name      *string  `json:"name" binding:"omitempty,max=100"`
	Surname   *string  `json:"surname" binding:"omitempty,max=100"`
	BirthDate *string  `json:"birth_date"`
	Phone     *string  `json:"phone" binding:"omitempty,max=32"`
	School    *string  `json:"school" binding:"omitempty,max=200"`
	Class     *string  `json:"class" binding:"omitempty,max=20"`
	Subjects  []string `json:"subjects" binding:"omitempty,max=20,dive,max=50"`
	PhotoURL  *string  `json:"photo_url" binding:"omitempty,max=2048"`
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req TelegramLoginRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.authService.LoginWithTelegram(c.Request.Context(), req.InitData)
	if err != nil {
		c.Error(err)
		return
	}
	respond(c, http.StatusOK, result)
}

func (h *AuthHandler) Profile(c *gin.Context) {
	user, err := h.authService.Profile(c.Request.Context(), identity(c))
	if err != nil {
		c.Error(err)
		return
	}
	respond(c, http.StatusOK, user)
}

func (h *AuthHandler) UpdateProfile(c *gin.Context) {
	var req ProfileRequest
	if !bindJSON(c, &req) {
		return
	}

	update := domain.ProfileUpdate{
		Name:     req.Name,
		Surname:  req.Surname,
		Phone:    req.Phone,
		School:   req.School,
		Class:    req.Class,
		Subjects: req.Subjects,
		PhotoURL: req.PhotoURL,
	}
	if req.BirthDate != nil && *req.BirthDate != "" {
		d, err := validation.ParseDate(*req.BirthDate, "birth_date")
		if err != nil {
			c.Error(err)
			return
		}
		update.BirthDate = &d
	}

	user, err := h.authService.UpdateProfile(c.Request.Context(), identity(c), update)
	if err != nil {
		c.Error(err)
		return
	}
	respond(c, http.StatusOK, user)
}

package http

import (
	"context"
	"net/http"

	"physlab/internal/core/domain"
	"physlab/internal/core/ports"
	"physlab/internal/core/services"
	"physlab/pkg/utils"

	"github.com/gin-gonic/gin"
)

const defaultMaterialLimit = 10

type MaterialHandler struct {
	materialService ports.MaterialService
}

func NewMaterialHandler(materialService ports.MaterialService) *MaterialHandler {
	return &MaterialHandler{
		materialService: materialService,
	}
}

func (h *MaterialHandler) SetupRoutes(api *gin.RouterGroup, g Guards) {
	materials := api.Group("/materials")
	{
		materials.GET("", h.List)
		materials.GET("/:id", g.Optional, h.Get)
		materials.GET("/:id/stats", g.Auth, g.require(services.OpMaterialStats), h.Stats)
		materials.POST("", g.Auth, g.require(services.OpMaterialCreate), h.Create)
		materials.PUT("/:id", g.Auth, g.require(services.OpMaterialUpdate), h.Update)
		materials.POST("/:id/publish", g.Auth, g.require(services.OpMaterialPublish), h.Publish)
		materials.POST("/:id/unpublish", g.Auth, g.require(services.OpMaterialPublish), h.Unpublish)
		materials.DELETE("/:id", g.Auth, g.require(services.OpMaterialDelete), h.Delete)
		materials.GET("/teacher/:teacherId", g.Auth, g.require(services.OpMaterialListAuthor), h.ListByTeacher)
	}
}

type MaterialRequest struct {
	Title       string         `json:"title" binding:"max=255"`
	Description string         `json:"description" binding:"max=2000"`
	Content     string         `json:"content"`
	Type        string         `json:"type" binding:"max=50"`
	Category    string         `json:"category" binding:"max=100"`
	Difficulty  string         `json:"difficulty"`
	Duration    int            `json:"duration" binding:"min=0"`
	FileURL     string         `json:"fileUrl" binding:"max=2048"`
	Tags        []string       `json:"tags" binding:"max=20,dive,max=50"`
	IsPublished bool           `json:"isPublished"`
	TeacherID   *domain.UserID `json:"teacherId"`
}

func (r MaterialRequest) input() domain.MaterialInput {
	return domain.MaterialInput{
		Title:       r.Title,
		Description: r.Description,
		Content:     r.Content,
		Type:        r.Type,
		Subject:     r.Category,
		Difficulty:  r.Difficulty,
		Duration:    r.Duration,
		FileURL:     r.FileURL,
		Tags:        r.Tags,
		IsPublished: r.IsPublished,
		AuthorID:    r.TeacherID,
	}
}

type MaterialPatchRequest struct {
	Title       *string  `json:"title" binding:"omitempty,max=255"`
	Description *string  `json:"description" binding:"omitempty,max=2000"`
	Content     *string  `json:"content"`
	Type        *string  `json:"type" binding:"omitempty,max=50"`
	Category    *string  `json:"category" binding:"omitempty,max=100"`
	Difficulty  *string  `json:"difficulty"`
	Duration    *int     `json:"duration" binding:"omitempty,min=0"`
	FileURL     *string  `json:"fileUrl" binding:"omitempty,max=2048"`
	Tags        []string `json:"tags" binding:"omitempty,max=20,dive,max=50"`
	IsPublished *bool    `json:"isPublished"`
	Version     *int     `json:"version" binding:"omitempty,min=1"`
}

func (r MaterialPatchRequest) patch() domain.MaterialPatch {
	return domain.MaterialPatch{
		Title:       r.Title,
		Description: r.Description,
		Content:     r.Content,
		Type:        r.Type,
		Subject:     r.Category,
		Difficulty:  r.Difficulty,
		Duration:    r.Duration,
		FileURL:     r.FileURL,
		Tags:        r.Tags,
		IsPublished: r.IsPublished,
		Version:     r.Version,
	}
}

func (h *MaterialHandler) List(c *gin.Context) {
	var q struct {
		pageQuery
		Subject string `form:"subject"`
		Type    string `form:"type"`
	}
	if !bindQuery(c, &q) {
		return
	}

	page := utils.NewPage(q.Page, q.Limit, defaultMaterialLimit)
	list, total, err := h.materialService.List(c.Request.Context(), domain.MaterialFilter{
		Subject: q.Subject,
		Type:    q.Type,
		Offset:  page.Offset(),
		Limit:   page.Limit,
	})
	if err != nil {
		c.Error(err)
		return
	}
	respondPage(c, list, page.Meta(total))
}

func (h *MaterialHandler) Get(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	m, err := h.materialService.Get(c.Request.Context(), identity(c), domain.MaterialID(id))
	if err != nil {
		c.Error(err)
		return
	}
	respond(c, http.StatusOK, m)
}

func (h *MaterialHandler) Stats(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	stats, err := h.materialService.Stats(c.Request.Context(), identity(c), domain.MaterialID(id))
	if err != nil {
		c.Error(err)
		return
	}
	respond(c, http.StatusOK, stats)
}

func (h *MaterialHandler) Create(c *gin.Context) {
	var req MaterialRequest
	if !bindJSON(c, &req) {
		return
	}

	m, err := h.materialService.Create(c.Request.Context(), identity(c), req.input())
	if err != nil {
		c.Error(err)
		return
	}
	respond(c, http.StatusCreated, m)
}

func (h *MaterialHandler) Update(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req MaterialPatchRequest
	if !bindJSON(c, &req) {
		return
	}

	m, err := h.materialService.Update(c.Request.Context(), identity(c), domain.MaterialID(id), req.patch())
	if err != nil {
		c.Error(err)
		return
	}
	respond(c, http.StatusOK, m)
}

func (h *MaterialHandler) Publish(c *gin.Context) {
	h.transition(c, h.materialService.Publish)
}

func (h *MaterialHandler) Unpublish(c *gin.Context) {
	h.transition(c, h.materialService.Unpublish)
}

func (h *MaterialHandler) transition(c *gin.Context, fn func(ctx context.Context, id domain.Identity, materialID domain.MaterialID) (*domain.Material, error)) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	m, err := fn(c.Request.Context(), identity(c), domain.MaterialID(id))
	if err != nil {
		c.Error(err)
		return
	}
	respond(c, http.StatusOK, m)
}

func (h *MaterialHandler) Delete(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	m, err := h.materialService.Delete(c.Request.Context(), identity(c), domain.MaterialID(id))
	if err != nil {
		c.Error(err)
		return
	}
	respond(c, http.StatusOK, gin.H{"id": m.ID, "title": m.Title})
}

func (h *MaterialHandler) ListByTeacher(c *gin.Context) {
	teacherID, ok := idParam(c, "teacherId")
	if !ok {
		return
	}
	h.listByAuthor(c, domain.UserID(teacherID))
}

func (h *MaterialHandler) listByAuthor(c *gin.Context, author domain.UserID) {
	var q struct {
		Status  string `form:"status"`
		Subject string `form:"subject"`
	}
	if !bindQuery(c, &q) {
		return
	}

	list, err := h.materialService.ListByAuthor(c.Request.Context(), identity(c), domain.AuthorFilter{
		AuthorID: author,
		Status:   domain.MaterialStatus(q.Status),
		Subject:  q.Subject,
	})
	if err != nil {
		c.Error(err)
		return
	}
	respond(c, http.StatusOK, list)
}

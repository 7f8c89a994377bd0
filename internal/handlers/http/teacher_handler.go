package http

import (
	"net/http"

	"physlab/internal/core/domain"
	"physlab/internal/core/ports"
	"physlab/internal/core/services"
	"physlab/pkg/utils"

	"github.com/gin-gonic/gin"
)

const defaultStudentLimit = 20

// TeacherHandler serves the teacher console. Material authoring here reuses
// the material handler with the subject/status field names the console sends.
type TeacherHandler struct {
	teacherService ports.TeacherService
	materials      *MaterialHandler
}

func NewTeacherHandler(teacherService ports.TeacherService, materials *MaterialHandler) *TeacherHandler {
	return &TeacherHandler{
		teacherService: teacherService,
		materials:      materials,
	}
}

func (h *TeacherHandler) SetupRoutes(api *gin.RouterGroup, g Guards) {
	teachers := api.Group("/teachers", g.Auth)
	{
		teachers.GET("/students", g.require(services.OpTeacherStudents), h.Students)
		teachers.GET("/students/:id", g.require(services.OpTeacherStudents), h.StudentDetail)
		teachers.GET("/materials", g.require(services.OpMaterialListAuthor), h.OwnMaterials)
		teachers.POST("/materials", g.require(services.OpMaterialCreate), h.CreateMaterial)
		teachers.PUT("/materials/:id", g.require(services.OpMaterialUpdate), h.UpdateMaterial)
		teachers.DELETE("/materials/:id", g.require(services.OpMaterialDelete), h.materials.Delete)
		teachers.POST("/tests", g.require(services.OpTestCreate), h.CreateTest)
		teachers.GET("/analytics/class", g.require(services.OpTeacherAnalytics), h.ClassAnalytics)
	}
}

type TeacherMaterialRequest struct {
	Title       string   `json:"title" binding:"max=255"`
	Description string   `json:"description" binding:"max=2000"`
	Content     string   `json:"content"`
	Type        string   `json:"type" binding:"max=50"`
	Subject     string   `json:"subject" binding:"max=100"`
	Difficulty  string   `json:"difficulty"`
	Duration    int      `json:"duration" binding:"min=0"`
	Tags        []string `json:"tags" binding:"max=20,dive,max=50"`
	Status      string   `json:"status" binding:"omitempty,oneof=draft published"`
}

type TeacherMaterialPatchRequest struct {
	Title       *string  `json:"title" binding:"omitempty,max=255"`
	Description *string  `json:"description" binding:"omitempty,max=2000"`
	Content     *string  `json:"content"`
	Type        *string  `json:"type" binding:"omitempty,max=50"`
	Subject     *string  `json:"subject" binding:"omitempty,max=100"`
	Tags        []string `json:"tags" binding:"omitempty,max=20,dive,max=50"`
	Status      *string  `json:"status" binding:"omitempty,oneof=draft published"`
	Version     *int     `json:"version" binding:"omitempty,min=1"`
}

type CreateTestRequest struct {
	Title      string            `json:"title" binding:"max=200"`
	Subject    string            `json:"subject" binding:"max=100"`
	Questions  []domain.Question `json:"questions" binding:"max=200"`
	TimeLimit  int               `json:"time_limit" binding:"min=0"`
	Difficulty string            `json:"difficulty"`
}

func (h *TeacherHandler) Students(c *gin.Context) {
	var q struct {
		pageQuery
		Search string `form:"search"`
		Class  string `form:"class"`
	}
	if !bindQuery(c, &q) {
		return
	}

	page := utils.NewPage(q.Page, q.Limit, defaultStudentLimit)
	list, total, err := h.teacherService.Students(c.Request.Context(), domain.StudentQuery{
		Search: q.Search,
		Class:  q.Class,
		Offset: page.Offset(),
		Limit:  page.Limit,
	})
	if err != nil {
		c.Error(err)
		return
	}
	respondPage(c, list, page.Meta(total))
}

func (h *TeacherHandler) StudentDetail(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	detail, err := h.teacherService.StudentDetail(c.Request.Context(), domain.UserID(id))
	if err != nil {
		c.Error(err)
		return
	}
	respond(c, http.StatusOK, detail)
}

func (h *TeacherHandler) OwnMaterials(c *gin.Context) {
	h.materials.listByAuthor(c, identity(c).UserID)
}

func (h *TeacherHandler) CreateMaterial(c *gin.Context) {
	var req TeacherMaterialRequest
	if !bindJSON(c, &req) {
		return
	}

	m, err := h.materials.materialService.Create(c.Request.Context(), identity(c), domain.MaterialInput{
		Title:       req.Title,
		Description: req.Description,
		Content:     req.Content,
		Type:        req.Type,
		Subject:     req.Subject,
		Difficulty:  req.Difficulty,
		Duration:    req.Duration,
		Tags:        req.Tags,
		IsPublished: req.Status == string(domain.StatusPublished),
	})
	if err != nil {
		c.Error(err)
		return
	}
	respond(c, http.StatusCreated, m)
}

func (h *TeacherHandler) UpdateMaterial(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req TeacherMaterialPatchRequest
	if !bindJSON(c, &req) {
		return
	}

	patch := domain.MaterialPatch{
		Title:       req.Title,
		Description: req.Description,
		Content:     req.Content,
		Type:        req.Type,
		Subject:     req.Subject,
		Tags:        req.Tags,
		Version:     req.Version,
	}
	if req.Status != nil {
		published := *req.Status == string(domain.StatusPublished)
		patch.IsPublished = &published
	}

	m, err := h.materials.materialService.Update(c.Request.Context(), identity(c), domain.MaterialID(id), patch)
	if err != nil {
		c.Error(err)
		return
	}
	respond(c, http.StatusOK, m)
}

func (h *TeacherHandler) CreateTest(c *gin.Context) {
	var req CreateTestRequest
	if !bindJSON(c, &req) {
		return
	}

	test, err := h.teacherService.CreateTest(c.Request.Context(), identity(c), domain.Test{
		Title:      req.Title,
		Subject:    req.Subject,
		Questions:  req.Questions,
		TimeLimit:  req.TimeLimit,
		Difficulty: req.Difficulty,
	})
	if err != nil {
		c.Error(err)
		return
	}
	respond(c, http.StatusCreated, test)
}

func (h *TeacherHandler) ClassAnalytics(c *gin.Context) {
	report, err := h.teacherService.ClassAnalytics(c.Request.Context(), c.Query("class"))
	if err != nil {
		c.Error(err)
		return
	}
	respond(c, http.StatusOK, report)
}

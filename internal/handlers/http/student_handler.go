package http

import (
	"net/http"

	"physlab/internal/core/domain"
	"physlab/internal/core/ports"
	"physlab/internal/core/services"
	"physlab/pkg/utils"

	"github.com/gin-gonic/gin"
)

type StudentHandler struct {
	studentService ports.StudentService
}

func NewStudentHandler(studentService ports.StudentService) *StudentHandler {
	return &StudentHandler{
		studentService: studentService,
	}
}

func (h *StudentHandler) SetupRoutes(api *gin.RouterGroup, g Guards) {
	students := api.Group("/students", g.Auth)
	{
		students.GET("/progress", h.Overview)
		students.GET("/materials", h.Materials)
		students.POST("/progress/:materialId", g.require(services.OpStudentProgress), h.UpdateProgress)
		students.GET("/tests", h.Tests)
		students.POST("/tests/:id/submit", g.require(services.OpStudentTestSubmit), h.SubmitTest)
		students.GET("/leaderboard", h.Leaderboard)
	}
}

type ProgressRequest struct {
	ProgressPercentage int `json:"progress_percentage" binding:"min=0,max=100"`
	TimeSpent          int `json:"time_spent" binding:"min=0"`
}

type SubmitTestRequest struct {
	Answers   []domain.Answer `json:"answers" binding:"required,max=200"`
	TimeTaken int             `json:"time_taken" binding:"min=0"`
}

func (h *StudentHandler) Overview(c *gin.Context) {
	dashboard, err := h.studentService.Overview(c.Request.Context(), identity(c))
	if err != nil {
		c.Error(err)
		return
	}
	respond(c, http.StatusOK, dashboard)
}

func (h *StudentHandler) Materials(c *gin.Context) {
	var q struct {
		pageQuery
		Subject string `form:"subject"`
	}
	if !bindQuery(c, &q) {
		return
	}

	page := utils.NewPage(q.Page, q.Limit, defaultMaterialLimit)
	list, total, err := h.studentService.Materials(c.Request.Context(), identity(c), domain.MaterialFilter{
		Subject: q.Subject,
		Offset:  page.Offset(),
		Limit:   page.Limit,
	})
	if err != nil {
		c.Error(err)
		return
	}
	respondPage(c, list, page.Meta(total))
}

func (h *StudentHandler) UpdateProgress(c *gin.Context) {
	materialID, ok := idParam(c, "materialId")
	if !ok {
		return
	}
	var req ProgressRequest
	if !bindJSON(c, &req) {
		return
	}

	change, err := h.studentService.UpdateProgress(c.Request.Context(), identity(c),
		domain.MaterialID(materialID), req.ProgressPercentage, req.TimeSpent)
	if err != nil {
		c.Error(err)
		return
	}
	respond(c, http.StatusOK, change)
}

func (h *StudentHandler) Tests(c *gin.Context) {
	tests, err := h.studentService.Tests(c.Request.Context(), c.Query("subject"))
	if err != nil {
		c.Error(err)
		return
	}
	respond(c, http.StatusOK, tests)
}

func (h *StudentHandler) SubmitTest(c *gin.Context) {
	testID, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req SubmitTestRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.studentService.SubmitTest(c.Request.Context(), identity(c),
		domain.TestID(testID), req.Answers, req.TimeTaken)
	if err != nil {
		c.Error(err)
		return
	}
	respond(c, http.StatusOK, result)
}

func (h *StudentHandler) Leaderboard(c *gin.Context) {
	board, err := h.studentService.Leaderboard(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}
	respond(c, http.StatusOK, board)
}

package http

import (
	"net/http"
	"time"

	"physlab/internal/core/domain"
	"physlab/internal/core/ports"
	"physlab/internal/core/services"
	"physlab/pkg/validation"

	"github.com/gin-gonic/gin"
)

type ScheduleHandler struct {
	scheduleService ports.ScheduleService
}

func NewScheduleHandler(scheduleService ports.ScheduleService) *ScheduleHandler {
	return &ScheduleHandler{
		scheduleService: scheduleService,
	}
}

func (h *ScheduleHandler) SetupRoutes(api *gin.RouterGroup, g Guards) {
	schedule := api.Group("/schedule", g.Auth)
	{
		schedule.GET("", h.List)
		schedule.POST("", g.require(services.OpScheduleCreate), h.Create)
		schedule.PUT("/:id", g.require(services.OpScheduleUpdate), h.Update)
		schedule.DELETE("/:id", g.require(services.OpScheduleDelete), h.Delete)
	}
}

// ScheduleRequest carries timestamps as strings so a bad value is reported by field name.
type ScheduleRequest struct {
	Title       *string `json:"title" binding:"omitempty,max=200"`
	Description *string `json:"description" binding:"omitempty,max=2000"`
	StartTime   *string `json:"start_time"`
	EndTime     *string `json:"end_time"`
	Type        *string `json:"type" binding:"omitempty,max=50"`
	Subject     *string `json:"subject" binding:"omitempty,max=100"`
	Teacher     *string `json:"teacher" binding:"omitempty,max=200"`
	Classroom   *string `json:"classroom" binding:"omitempty,max=50"`
	TargetUsers *string `json:"target_users" binding:"omitempty,max=50"`
}

func (r ScheduleRequest) patch() (domain.SchedulePatch, error) {
	p := domain.SchedulePatch{
		Title:       r.Title,
		Description: r.Description,
		Type:        r.Type,
		Subject:     r.Subject,
		Teacher:     r.Teacher,
		Classroom:   r.Classroom,
		TargetUsers: r.TargetUsers,
	}
	var err error
	if p.StartTime, err = optionalTimestamp(r.StartTime, "start_time"); err != nil {
		return p, err
	}
	if p.EndTime, err = optionalTimestamp(r.EndTime, "end_time"); err != nil {
		return p, err
	}
	return p, nil
}

func optionalTimestamp(v *string, field string) (*time.Time, error) {
	if v == nil || *v == "" {
		return nil, nil
	}
	t, err := validation.ParseTimestamp(*v, field)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (h *ScheduleHandler) List(c *gin.Context) {
	list, err := h.scheduleService.List(c.Request.Context(), c.Query("date"), c.Query("week"))
	if err != nil {
		c.Error(err)
		return
	}
	respond(c, http.StatusOK, list)
}

func (h *ScheduleHandler) Create(c *gin.Context) {
	var req ScheduleRequest
	if !bindJSON(c, &req) {
		return
	}
	patch, err := req.patch()
	if err != nil {
		c.Error(err)
		return
	}

	var entry domain.Schedule
	entry.Apply(patch)
	created, err := h.scheduleService.Create(c.Request.Context(), identity(c), entry)
	if err != nil {
		c.Error(err)
		return
	}
	respond(c, http.StatusCreated, created)
}

func (h *ScheduleHandler) Update(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req ScheduleRequest
	if !bindJSON(c, &req) {
		return
	}
	patch, err := req.patch()
	if err != nil {
		c.Error(err)
		return
	}

	updated, err := h.scheduleService.Update(c.Request.Context(), identity(c), domain.ScheduleID(id), patch)
	if err != nil {
		c.Error(err)
		return
	}
	respond(c, http.StatusOK, updated)
}

func (h *ScheduleHandler) Delete(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	if err := h.scheduleService.Delete(c.Request.Context(), identity(c), domain.ScheduleID(id)); err != nil {
		c.Error(err)
		return
	}
	respond(c, http.StatusOK, gin.H{"id": id})
}

package api

import (
	"context"
	"net/http"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"

	"github.com/Jarrydtb/scripter/internal/services"
)

type ScheduleHandler struct {
	Schedules *services.ScheduleService
}

func NewScheduleHandler(schedules *services.ScheduleService) *ScheduleHandler {
	return &ScheduleHandler{Schedules: schedules}
}

type CreateScheduleRequest struct {
	ScriptID string `json:"script_id" validate:"required,gt=0"`
	Cron     string `json:"cron" validate:"required,gt=0"`
	Enabled  bool   `json:"enabled"`
}

func (h *ScheduleHandler) CreateSchedule(ctx context.Context, c *app.RequestContext) {
	var req CreateScheduleRequest
	if err := c.Bind(&req); err != nil {
		c.JSON(http.StatusBadRequest, utils.H{"error": "Invalid request format: " + err.Error()})
		return
	}
	if err := c.Validate(&req); err != nil {
		c.JSON(http.StatusBadRequest, utils.H{"error": "Invalid request payload: " + err.Error()})
		return
	}
	schedule, err := h.Schedules.Create(ctx, services.CreateScheduleInput{
		ScriptID: req.ScriptID,
		Cron:     req.Cron,
		Enabled:  req.Enabled,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, schedule)
}

func (h *ScheduleHandler) GetSchedules(ctx context.Context, c *app.RequestContext) {
	q := services.ScheduleQuery{Page: queryInt(c, "page", 0), Limit: queryInt(c, "limit", 100)}
	if scriptID := c.Query("script_id"); scriptID != "" {
		q.ScriptID = &scriptID
	}
	list, err := h.Schedules.List(ctx, q)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *ScheduleHandler) GetScheduleByID(ctx context.Context, c *app.RequestContext) {
	scheduleID, ok := paramUint(c, "id")
	if !ok {
		return
	}
	schedule, err := h.Schedules.Get(ctx, scheduleID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, schedule)
}

type UpdateScheduleRequest struct {
	Cron    *string `json:"cron"`
	Enabled *bool   `json:"enabled"`
}

func (h *ScheduleHandler) UpdateSchedule(ctx context.Context, c *app.RequestContext) {
	scheduleID, ok := paramUint(c, "id")
	if !ok {
		return
	}
	var req UpdateScheduleRequest
	if err := c.Bind(&req); err != nil {
		c.JSON(http.StatusBadRequest, utils.H{"error": "Invalid request format: " + err.Error()})
		return
	}
	schedule, err := h.Schedules.Update(ctx, scheduleID, services.ScheduleUpdate{
		Cron:    req.Cron,
		Enabled: req.Enabled,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, schedule)
}

func (h *ScheduleHandler) DeleteSchedule(ctx context.Context, c *app.RequestContext) {
	scheduleID, ok := paramUint(c, "id")
	if !ok {
		return
	}
	if err := h.Schedules.Delete(ctx, scheduleID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, utils.H{"message": "Schedule deleted"})
}

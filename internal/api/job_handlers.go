package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"

	"github.com/Jarrydtb/scripter/internal/models"
	"github.com/Jarrydtb/scripter/internal/services"
)

type JobHandler struct {
	Jobs *services.JobService
}

func NewJobHandler(jobs *services.JobService) *JobHandler {
	return &JobHandler{Jobs: jobs}
}

func (h *JobHandler) RunScript(ctx context.Context, c *app.RequestContext) {
	job, err := h.Jobs.StartRun(ctx, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, job)
}

func (h *JobHandler) GetScriptJobs(ctx context.Context, c *app.RequestContext) {
	q := services.JobQuery{
		ScriptID: c.Param("id"),
		Page:     queryInt(c, "page", 0),
		Limit:    queryInt(c, "limit", 100),
	}
	if raw := c.Query("status"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, utils.H{"error": "Invalid status filter"})
			return
		}
		status := models.JobStatus(v)
		q.Status = &status
	}
	list, err := h.Jobs.List(ctx, q)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *JobHandler) GetJobByID(ctx context.Context, c *app.RequestContext) {
	jobID, ok := paramUint(c, "id")
	if !ok {
		return
	}
	job, err := h.Jobs.Get(ctx, jobID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

func (h *JobHandler) CancelJob(ctx context.Context, c *app.RequestContext) {
	jobID, ok := paramUint(c, "id")
	if !ok {
		return
	}
	if err := h.Jobs.Cancel(ctx, jobID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, utils.H{"message": "Job cancelled"})
}

func (h *JobHandler) GetJobLogs(ctx context.Context, c *app.RequestContext) {
	jobID, ok := paramUint(c, "id")
	if !ok {
		return
	}
	offset, err := strconv.ParseInt(c.DefaultQuery("position", "0"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, utils.H{"error": "Invalid position"})
		return
	}
	chunk, err := h.Jobs.GetLogs(ctx, jobID, offset)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, chunk)
}

func (h *JobHandler) DeleteJob(ctx context.Context, c *app.RequestContext) {
	jobID, ok := paramUint(c, "id")
	if !ok {
		return
	}
	if err := h.Jobs.Delete(ctx, jobID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, utils.H{"message": "Job deleted"})
}

func paramUint(c *app.RequestContext, key string) (uint, bool) {
	v, err := strconv.ParseUint(c.Param(key), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, utils.H{"error": "Invalid ID format"})
		return 0, false
	}
	return uint(v), true
}

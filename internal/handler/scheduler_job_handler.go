package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/mesa-scheduler/internal/dto"
	appErrors "github.com/noah-isme/mesa-scheduler/pkg/errors"
	"github.com/noah-isme/mesa-scheduler/pkg/response"
)

type schedulerJobs interface {
	Submit(ctx context.Context, req dto.SchedulerJobRequest) (*dto.SchedulerJob, error)
	Get(ctx context.Context, id string) (*dto.SchedulerJob, error)
}

// SchedulerJobHandler exposes asynchronous scheduler runs.
type SchedulerJobHandler struct {
	jobs schedulerJobs
}

// NewSchedulerJobHandler constructs the handler.
func NewSchedulerJobHandler(jobs schedulerJobs) *SchedulerJobHandler {
	return &SchedulerJobHandler{jobs: jobs}
}

// Submit godoc
// @Summary Queue a grouping, batch assignment or reoptimization run
// @Tags Scheduler Jobs
// @Accept json
// @Produce json
// @Param payload body dto.SchedulerJobRequest true "Job payload"
// @Success 202 {object} response.Envelope
// @Router /scheduler/jobs [post]
func (h *SchedulerJobHandler) Submit(c *gin.Context) {
	if h.jobs == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "scheduler jobs are disabled"))
		return
	}
	var req dto.SchedulerJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid job payload"))
		return
	}
	job, err := h.jobs.Submit(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Location", c.Request.URL.Path+"/"+job.ID)
	response.Accepted(c, job)
}

// Get godoc
// @Summary Get the state of a scheduler job
// @Tags Scheduler Jobs
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Router /scheduler/jobs/{id} [get]
func (h *SchedulerJobHandler) Get(c *gin.Context) {
	if h.jobs == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "scheduler jobs are disabled"))
		return
	}
	job, err := h.jobs.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, job)
}

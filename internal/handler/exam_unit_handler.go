package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/mesa-scheduler/internal/dto"
	"github.com/noah-isme/mesa-scheduler/internal/middleware"
	appErrors "github.com/noah-isme/mesa-scheduler/pkg/errors"
	"github.com/noah-isme/mesa-scheduler/pkg/response"
)

type batchAssignRunner interface {
	RunBatchAssign(ctx context.Context, req dto.BatchAssignRequest) (*dto.BatchAssignReport, error)
}

type unitMutator interface {
	SplitStudentOut(ctx context.Context, origin int64, req dto.SplitStudentRequest) (*dto.SplitResult, error)
	MoveNumber(ctx context.Context, number int64, req dto.MoveNumberRequest) (*dto.MoveResult, error)
	RemoveNumberFromGroup(ctx context.Context, number int64) (*dto.RemoveResult, error)
}

// ExamUnitHandler exposes batch creation and per-number mutations.
type ExamUnitHandler struct {
	batch   batchAssignRunner
	mutator unitMutator
}

// NewExamUnitHandler constructs the handler.
func NewExamUnitHandler(batch batchAssignRunner, mutator unitMutator) *ExamUnitHandler {
	return &ExamUnitHandler{batch: batch, mutator: mutator}
}

// BatchAssign godoc
// @Summary Create dated exam units for pending subjects
// @Description Places up to two pending subjects per student inside the date range. Items that cannot be placed are reported as omissions.
// @Tags Exam Units
// @Accept json
// @Produce json
// @Param payload body dto.BatchAssignRequest true "Batch assignment payload"
// @Success 200 {object} response.Envelope
// @Router /exam-units/batch-assign [post]
func (h *ExamUnitHandler) BatchAssign(c *gin.Context) {
	var req dto.BatchAssignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid batch assign payload"))
		return
	}
	report, err := h.batch.RunBatchAssign(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetRun(c, report.RunID, report.DryRun)
	response.JSON(c, http.StatusOK, report, middleware.ExtractMeta(c))
}

// Split godoc
// @Summary Move one student out of an exam number
// @Tags Exam Units
// @Accept json
// @Produce json
// @Param number path int true "Exam number"
// @Param payload body dto.SplitStudentRequest true "Student to split out"
// @Success 200 {object} response.Envelope
// @Router /exam-units/{number}/split [post]
func (h *ExamUnitHandler) Split(c *gin.Context) {
	number, err := positiveParam(c, "number")
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.SplitStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid split payload"))
		return
	}
	result, err := h.mutator.SplitStudentOut(c.Request.Context(), number, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}

// Move godoc
// @Summary Move an exam number into another group
// @Tags Exam Units
// @Accept json
// @Produce json
// @Param number path int true "Exam number"
// @Param payload body dto.MoveNumberRequest true "Destination group"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /exam-units/{number}/move [post]
func (h *ExamUnitHandler) Move(c *gin.Context) {
	number, err := positiveParam(c, "number")
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.MoveNumberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid move payload"))
		return
	}
	result, err := h.mutator.MoveNumber(c.Request.Context(), number, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}

// RemoveFromGroup godoc
// @Summary Take an exam number out of its group
// @Tags Exam Units
// @Produce json
// @Param number path int true "Exam number"
// @Success 200 {object} response.Envelope
// @Router /exam-units/{number}/group [delete]
func (h *ExamUnitHandler) RemoveFromGroup(c *gin.Context) {
	number, err := positiveParam(c, "number")
	if err != nil {
		response.Error(c, err)
		return
	}
	result, err := h.mutator.RemoveNumberFromGroup(c.Request.Context(), number)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}

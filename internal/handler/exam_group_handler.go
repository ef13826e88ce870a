package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/mesa-scheduler/internal/dto"
	"github.com/noah-isme/mesa-scheduler/internal/middleware"
	appErrors "github.com/noah-isme/mesa-scheduler/pkg/errors"
	"github.com/noah-isme/mesa-scheduler/pkg/response"
)

type groupingRunner interface {
	RunGrouping(ctx context.Context, req dto.RunGroupingRequest) (*dto.GroupingReport, error)
}

type reoptimizeRunner interface {
	RunReoptimize(ctx context.Context, req dto.ReoptimizeRequest) (*dto.ReoptimizeReport, error)
}

type groupMembership interface {
	AddNumberToGroup(ctx context.Context, groupID int64, req dto.AddMemberRequest) (*dto.MoveResult, error)
	ListUngroupedCandidates(ctx context.Context, query dto.CandidateQuery) ([]dto.UngroupedCandidate, error)
}

// ExamGroupHandler exposes grouping runs and group membership endpoints.
type ExamGroupHandler struct {
	grouping   groupingRunner
	reoptimize reoptimizeRunner
	members    groupMembership
}

// NewExamGroupHandler constructs the handler.
func NewExamGroupHandler(grouping groupingRunner, reoptimize reoptimizeRunner, members groupMembership) *ExamGroupHandler {
	return &ExamGroupHandler{grouping: grouping, reoptimize: reoptimize, members: members}
}

// Run godoc
// @Summary Group scheduled exam units by slot and area
// @Description Packs ungrouped numbers into groups of up to four, resolves precedence violations and optionally schedules undated units.
// @Tags Exam Groups
// @Accept json
// @Produce json
// @Param payload body dto.RunGroupingRequest false "Grouping options"
// @Success 200 {object} response.Envelope
// @Router /exam-groups/run [post]
func (h *ExamGroupHandler) Run(c *gin.Context) {
	var req dto.RunGroupingRequest
	if !bindOptionalJSON(c, &req, "invalid grouping payload") {
		return
	}
	report, err := h.grouping.RunGrouping(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetRun(c, report.RunID, report.DryRun)
	response.JSON(c, http.StatusOK, report, middleware.ExtractMeta(c))
}

// Reoptimize godoc
// @Summary Consolidate ungrouped numbers into groups
// @Tags Exam Groups
// @Accept json
// @Produce json
// @Param payload body dto.ReoptimizeRequest false "Reoptimization options"
// @Success 200 {object} response.Envelope
// @Router /exam-groups/reoptimize [post]
func (h *ExamGroupHandler) Reoptimize(c *gin.Context) {
	var req dto.ReoptimizeRequest
	if !bindOptionalJSON(c, &req, "invalid reoptimize payload") {
		return
	}
	report, err := h.reoptimize.RunReoptimize(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetRun(c, report.RunID, report.DryRun)
	response.JSON(c, http.StatusOK, report, middleware.ExtractMeta(c))
}

// AddMember godoc
// @Summary Add an exam number to a group
// @Tags Exam Groups
// @Accept json
// @Produce json
// @Param id path int true "Group ID"
// @Param payload body dto.AddMemberRequest true "Member payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /exam-groups/{id}/members [post]
func (h *ExamGroupHandler) AddMember(c *gin.Context) {
	groupID, err := positiveParam(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.AddMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid member payload"))
		return
	}
	result, err := h.members.AddNumberToGroup(c.Request.Context(), groupID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}

// Candidates godoc
// @Summary List ungrouped numbers and their eligibility for a slot
// @Tags Exam Groups
// @Produce json
// @Param date query string false "Target date (YYYY-MM-DD)"
// @Param shift query string false "Shift (1, 2, FIRST or SECOND)"
// @Param exclude query int false "Number to leave out"
// @Success 200 {object} response.Envelope
// @Router /exam-groups/candidates [get]
func (h *ExamGroupHandler) Candidates(c *gin.Context) {
	var query dto.CandidateQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid candidate query"))
		return
	}
	candidates, err := h.members.ListUngroupedCandidates(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, candidates, map[string]interface{}{"count": len(candidates)})
}

// bindOptionalJSON accepts an empty body as the zero request.
func bindOptionalJSON(c *gin.Context, dest interface{}, message string) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(dest); err != nil && !errors.Is(err, io.EOF) {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, message))
		return false
	}
	return true
}

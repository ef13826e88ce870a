package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/mesa-scheduler/internal/dto"
	appErrors "github.com/noah-isme/mesa-scheduler/pkg/errors"
)

type fakeJobs struct {
	submitted *dto.SchedulerJobRequest
	jobs      map[string]dto.SchedulerJob
}

func (f *fakeJobs) Submit(_ context.Context, req dto.SchedulerJobRequest) (*dto.SchedulerJob, error) {
	if req.Kind == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "kind is required")
	}
	f.submitted = &req
	return &dto.SchedulerJob{ID: "job-1", Kind: req.Kind, Status: dto.JobStatusQueued, EnqueuedAt: time.Now()}, nil
}

func (f *fakeJobs) Get(_ context.Context, id string) (*dto.SchedulerJob, error) {
	job, ok := f.jobs[id]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "job not found")
	}
	return &job, nil
}

func jobRouter(jobs schedulerJobs) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewSchedulerJobHandler(jobs)
	r := gin.New()
	r.POST("/scheduler/jobs", h.Submit)
	r.GET("/scheduler/jobs/:id", h.Get)
	return r
}

func TestSchedulerJobHandlerSubmit(t *testing.T) {
	f := &fakeJobs{}
	rec := doJSON(jobRouter(f), http.MethodPost, "/scheduler/jobs", `{"kind":"reoptimize","reoptimize":{"maxIter":5}}`)

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "/scheduler/jobs/job-1", rec.Header().Get("Location"))
	require.NotNil(t, f.submitted)
	require.NotNil(t, f.submitted.Reoptimize)
	assert.Equal(t, 5, f.submitted.Reoptimize.MaxIter)

	var job dto.SchedulerJob
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &job))
	assert.Equal(t, dto.JobStatusQueued, job.Status)
}

func TestSchedulerJobHandlerSubmitValidation(t *testing.T) {
	f := &fakeJobs{}
	r := jobRouter(f)

	assert.Equal(t, http.StatusBadRequest, doJSON(r, http.MethodPost, "/scheduler/jobs", `{}`).Code)
	assert.Equal(t, http.StatusBadRequest, doJSON(r, http.MethodPost, "/scheduler/jobs", `[`).Code)
	assert.Nil(t, f.submitted)
}

func TestSchedulerJobHandlerGet(t *testing.T) {
	finished := time.Now()
	f := &fakeJobs{jobs: map[string]dto.SchedulerJob{
		"job-9": {ID: "job-9", Kind: dto.JobKindGrouping, Status: dto.JobStatusFailed, Error: "lock timeout", FinishedAt: &finished},
	}}
	r := jobRouter(f)

	rec := doJSON(r, http.MethodGet, "/scheduler/jobs/job-9", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var job dto.SchedulerJob
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &job))
	assert.Equal(t, dto.JobStatusFailed, job.Status)
	assert.Equal(t, "lock timeout", job.Error)

	assert.Equal(t, http.StatusNotFound, doJSON(r, http.MethodGet, "/scheduler/jobs/unknown", "").Code)
}

func TestSchedulerJobHandlerDisabled(t *testing.T) {
	rec := doJSON(jobRouter(nil), http.MethodPost, "/scheduler/jobs", `{"kind":"grouping"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	apperrors "github.com/soulprintlabs/soulprint-backend/internal/pkg/errors"
	"github.com/soulprintlabs/soulprint-backend/internal/requestdata"
	"github.com/soulprintlabs/soulprint-backend/internal/services"
	"github.com/soulprintlabs/soulprint-backend/internal/types"
)

type JobsHandler struct {
	jobs services.JobService
}

func NewJobsHandler(jobs services.JobService) *JobsHandler {
	return &JobsHandler{jobs: jobs}
}

// GET /api/jobs/:id
func (h *JobsHandler) GetJobByID(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		RespondServiceError(c, apperrors.ErrUnauthorized)
		return
	}
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_job_id", err)
		return
	}
	job, err := h.jobs.GetByIDForUser(c.Request.Context(), rd.UserID, jobID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"job": job})
}

// GET /api/jobs/latest
func (h *JobsHandler) GetLatestJob(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		RespondServiceError(c, apperrors.ErrUnauthorized)
		return
	}
	jobType := c.Query("type")
	if jobType == "" {
		jobType = types.JobTypeMemoryFullPass
	}
	job, err := h.jobs.GetLatestForUser(c.Request.Context(), rd.UserID, jobType)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"job": job})
}

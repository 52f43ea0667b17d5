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

type MemoryHandler struct {
	jobs     services.JobService
	profiles services.ProfileService
}

func NewMemoryHandler(jobs services.JobService, profiles services.ProfileService) *MemoryHandler {
	return &MemoryHandler{jobs: jobs, profiles: profiles}
}

type fullPassRequest struct {
	ExportRef string `json:"export_ref" binding:"required"`
}

// POST /api/memory/full-pass
func (h *MemoryHandler) StartFullPass(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		RespondServiceError(c, apperrors.ErrUnauthorized)
		return
	}
	var req fullPassRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	job, created, err := h.jobs.Enqueue(c.Request.Context(), rd.UserID, types.JobTypeMemoryFullPass, map[string]any{
		"export_ref": req.ExportRef,
	})
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	status := http.StatusAccepted
	if !created {
		// An active pass already exists; the caller gets that one back.
		status = http.StatusOK
	}
	c.JSON(status, gin.H{"job": job, "created": created})
}

// GET /api/memory
func (h *MemoryHandler) GetMemory(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		RespondServiceError(c, apperrors.ErrUnauthorized)
		return
	}
	profile, err := h.profiles.GetForUser(c.Request.Context(), rd.UserID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"profile": profile})
}

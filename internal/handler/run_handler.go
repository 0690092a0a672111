// internal/handler/run_handler.go
package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"gnss-configurator/internal/model"
	"gnss-configurator/internal/repository"
	"gnss-configurator/internal/utils"
)

var errJournalDisabled = errors.New("journal disabled")

// RunHandler serves the provisioning journal. runs is nil when the journal
// is disabled.
type RunHandler struct {
	runs   repository.RunRepository
	logger *utils.ServiceLogger
}

// NewRunHandler creates a new run handler
func NewRunHandler(runs repository.RunRepository, logger *zap.Logger) *RunHandler {
	return &RunHandler{
		runs:   runs,
		logger: utils.NewServiceLogger(logger, "run-handler"),
	}
}

// ListRuns lists journaled runs, newest first
// @Summary List runs
// @Tags Runs
// @Produce json
// @Param status query string false "Run status" Enums(RUNNING, COMPLETED, FAILED)
// @Param port query string false "Serial port"
// @Param page query int false "Page number" default(1)
// @Param per_page query int false "Items per page" default(20)
// @Success 200 {object} utils.APIResponse{data=object{runs=[]model.Run,pagination=object}}
// @Failure 503 {object} utils.APIResponse "Journal disabled"
// @Router /runs [get]
func (h *RunHandler) ListRuns(c *gin.Context) {
	if h.runs == nil {
		utils.ErrorResponse(c, http.StatusServiceUnavailable, "Run journal is disabled", errJournalDisabled)
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))
	filter := &repository.RunFilter{Page: page, PerPage: perPage}

	if status := c.Query("status"); status != "" {
		s := model.RunStatus(status)
		switch s {
		case model.RunStatusRunning, model.RunStatusCompleted, model.RunStatusFailed:
			filter.Status = &s
		default:
			utils.ErrorResponse(c, http.StatusBadRequest, "Invalid status filter", nil)
			return
		}
	}
	if port := c.Query("port"); port != "" {
		filter.Port = &port
	}

	runs, total, err := h.runs.ListRuns(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list runs", zap.Error(err))
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to list runs", err)
		return
	}

	totalPages := (total + filter.PerPage - 1) / filter.PerPage
	utils.SuccessResponse(c, http.StatusOK, "Runs retrieved", gin.H{
		"runs": runs,
		"pagination": gin.H{
			"page":        filter.Page,
			"per_page":    filter.PerPage,
			"total":       total,
			"total_pages": totalPages,
		},
	})
}

// GetRun returns a run with its frames
// @Summary Get run
// @Tags Runs
// @Produce json
// @Param run_id path string true "Run ID"
// @Success 200 {object} utils.APIResponse{data=model.Run}
// @Failure 400 {object} utils.APIResponse "Invalid run ID"
// @Failure 404 {object} utils.APIResponse "Run not found"
// @Router /runs/{run_id} [get]
func (h *RunHandler) GetRun(c *gin.Context) {
	if h.runs == nil {
		utils.ErrorResponse(c, http.StatusServiceUnavailable, "Run journal is disabled", errJournalDisabled)
		return
	}

	runID, err := uuid.Parse(c.Param("run_id"))
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid run ID", err)
		return
	}

	run, err := h.runs.GetRun(c.Request.Context(), runID)
	if err != nil {
		if errors.Is(err, repository.ErrRunNotFound) {
			utils.ErrorResponse(c, http.StatusNotFound, "Run not found", err)
			return
		}
		h.logger.Error("Failed to get run", zap.Error(err))
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to get run", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Run retrieved", run)
}

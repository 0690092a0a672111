// internal/handler/schema_handler.go
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"gnss-configurator/internal/schema"
	"gnss-configurator/internal/utils"
)

// SchemaHandler exposes the loaded record layout
type SchemaHandler struct {
	schema *schema.Schema
	logger *utils.ServiceLogger
}

// NewSchemaHandler creates a new schema handler
func NewSchemaHandler(s *schema.Schema, logger *zap.Logger) *SchemaHandler {
	return &SchemaHandler{
		schema: s,
		logger: utils.NewServiceLogger(logger, "schema-handler"),
	}
}

// ListRecords lists the record templates
// @Summary List schema records
// @Tags Schema
// @Produce json
// @Success 200 {object} utils.APIResponse{data=object{records=[]model.Record,total=int}}
// @Router /schema/records [get]
func (h *SchemaHandler) ListRecords(c *gin.Context) {
	records := h.schema.Records()
	utils.SuccessResponse(c, http.StatusOK, "Schema records retrieved", gin.H{
		"records": records,
		"total":   len(records),
	})
}

// GetRecord returns one record template by name
// @Summary Get schema record
// @Tags Schema
// @Produce json
// @Param name path string true "Record name"
// @Success 200 {object} utils.APIResponse{data=model.Record}
// @Failure 404 {object} utils.APIResponse "Record not found"
// @Router /schema/records/{name} [get]
func (h *SchemaHandler) GetRecord(c *gin.Context) {
	name := c.Param("name")

	rec, ok := h.schema.GetByName(name)
	if !ok {
		utils.ErrorResponse(c, http.StatusNotFound, "Record not found", nil)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Schema record retrieved", rec)
}

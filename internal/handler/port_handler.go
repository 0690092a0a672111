// internal/handler/port_handler.go
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"gnss-configurator/internal/discovery"
	"gnss-configurator/internal/utils"
)

// PortHandler lists serial ports a receiver can be reached on
type PortHandler struct {
	scanner *discovery.Scanner
	logger  *utils.ServiceLogger
}

// NewPortHandler creates a new port handler
func NewPortHandler(scanner *discovery.Scanner, logger *zap.Logger) *PortHandler {
	return &PortHandler{
		scanner: scanner,
		logger:  utils.NewServiceLogger(logger, "port-handler"),
	}
}

// ListPorts scans the host serial ports
// @Summary List serial ports
// @Tags Ports
// @Produce json
// @Param prefix query string false "Port name prefix"
// @Success 200 {object} utils.APIResponse{data=object{ports_found=int,ports=[]discovery.Port}}
// @Failure 500 {object} utils.APIResponse "Scan failed"
// @Router /ports [get]
func (h *PortHandler) ListPorts(c *gin.Context) {
	ports, err := h.scanner.Scan(c.Request.Context(), c.Query("prefix"))
	if err != nil {
		h.logger.Error("Failed to scan ports", zap.Error(err))
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to scan ports", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Port scan completed", gin.H{
		"ports_found": len(ports),
		"ports":       ports,
	})
}

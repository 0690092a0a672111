// internal/handler/provision_handler.go
package handler

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"gnss-configurator/internal/protocol"
	"gnss-configurator/internal/service"
	"gnss-configurator/internal/utils"
)

// maxConfigurationSize bounds configuration request bodies
const maxConfigurationSize = 1 << 20

// ProvisionHandler applies configuration documents posted as YAML
type ProvisionHandler struct {
	configuration *service.ConfigurationService
	provision     *service.ProvisionService
	serial        protocol.SerialConfig
	logger        *utils.ServiceLogger
}

// NewProvisionHandler creates a new provision handler. serial is the line
// used when a request does not name a port.
func NewProvisionHandler(
	configuration *service.ConfigurationService,
	provision *service.ProvisionService,
	serial protocol.SerialConfig,
	logger *zap.Logger,
) *ProvisionHandler {
	return &ProvisionHandler{
		configuration: configuration,
		provision:     provision,
		serial:        serial,
		logger:        utils.NewServiceLogger(logger, "provision-handler"),
	}
}

// EncodeFrames builds the frames of a configuration without touching the device
// @Summary Encode frames
// @Description Validate a YAML configuration and return the frames it would send
// @Tags Provision
// @Accept application/yaml
// @Produce json
// @Success 200 {object} utils.APIResponse{data=model.Run}
// @Failure 400 {object} utils.APIResponse "Malformed configuration"
// @Failure 422 {object} utils.APIResponse "No configuration built"
// @Router /frames [post]
func (h *ProvisionHandler) EncodeFrames(c *gin.Context) {
	h.apply(c, true)
}

// Provision sends a configuration to the receiver
// @Summary Provision receiver
// @Description Validate a YAML configuration and send every accepted record
// @Tags Provision
// @Accept application/yaml
// @Produce json
// @Param port query string false "Serial port"
// @Param verbose query bool false "Log frame dumps"
// @Success 200 {object} utils.APIResponse{data=model.Run}
// @Failure 400 {object} utils.APIResponse "Malformed configuration"
// @Failure 422 {object} utils.APIResponse "No configuration built"
// @Failure 502 {object} utils.APIResponse "Device error"
// @Router /provision [post]
func (h *ProvisionHandler) Provision(c *gin.Context) {
	h.apply(c, false)
}

func (h *ProvisionHandler) apply(c *gin.Context, dryRun bool) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxConfigurationSize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			utils.ErrorResponse(c, http.StatusRequestEntityTooLarge, "Configuration too large", err)
			return
		}
		utils.ErrorResponse(c, http.StatusBadRequest, "Failed to read request body", err)
		return
	}

	result, err := h.configuration.Load(bytes.NewReader(body))
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Malformed configuration", err)
		return
	}

	if !result.Accepted {
		utils.DiagnosticsResponse(c, result.Diagnostics)
		return
	}

	serial := h.serial
	if port := c.Query("port"); port != "" {
		serial.Port = port
	}
	verbose, _ := strconv.ParseBool(c.DefaultQuery("verbose", "false"))

	source := "api"
	if requestID := c.GetString(utils.RequestIDKey); requestID != "" {
		source = "api:" + requestID
	}

	run, err := h.provision.Run(c.Request.Context(), &service.ProvisionRequest{
		Source:  source,
		Result:  result,
		Serial:  serial,
		DryRun:  dryRun,
		Verbose: verbose,
	})
	if err != nil {
		h.logger.Error("Provisioning run failed", zap.String("run_id", run.ID.String()), zap.Error(err))
		utils.ErrorResponseWithData(c, http.StatusBadGateway, "Provisioning run failed", err, run)
		return
	}

	message := "Configuration sent"
	if dryRun {
		message = "Frames encoded"
	}
	utils.SuccessResponse(c, http.StatusOK, message, run)
}

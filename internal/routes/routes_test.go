package routes

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial/enumerator"
	"go.uber.org/zap"

	"gnss-configurator/internal/config"
	"gnss-configurator/internal/database"
	"gnss-configurator/internal/discovery"
	"gnss-configurator/internal/handler"
	"gnss-configurator/internal/model"
	"gnss-configurator/internal/protocol"
	"gnss-configurator/internal/repository"
	"gnss-configurator/internal/schema"
	"gnss-configurator/internal/service"
)

const antennaSchema = `[
  {
    "commandCode": 100, "name": "ANTENNA", "type": 8,
    "item": [
      {"name": "HEIGHT", "dataType": "double", "position": 1, "width": 8, "description": "height",
       "policy": "mandatory", "constraint": "range", "minValue": 0.0, "maxValue": 100.0},
      {"name": "VERSION", "dataType": "byte", "position": 2, "width": 1, "description": "version",
       "defaultValue": 3, "constraint": "fixed"}
    ]
  }
]`

const antennaConfig = "- record: ANTENNA\n  HEIGHT: 1.5\n"

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code        string             `json:"code"`
		Details     string             `json:"details"`
		Diagnostics []model.Diagnostic `json:"diagnostics"`
	} `json:"error"`
	RequestID string `json:"request_id"`
}

type testServer struct {
	engine    *gin.Engine
	websocket *handler.WebSocketHandler

	mu      sync.Mutex
	channel *protocol.MockChannel
}

func (ts *testServer) setChannel(ch *protocol.MockChannel) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.channel = ch
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := zap.NewNop()

	s, err := schema.Load(strings.NewReader(antennaSchema))
	require.NoError(t, err)

	cfg := &config.Config{
		App:      config.AppConfig{Name: "gnssconf", Version: "test", Environment: "test"},
		Schema:   config.SchemaConfig{Path: "antenna.json"},
		Security: config.SecurityConfig{AllowedOrigins: []string{"*"}},
	}

	db, err := database.NewConnection(&config.JournalConfig{
		Enabled:      true,
		Driver:       config.DriverSQLite,
		DSN:          filepath.Join(t.TempDir(), "journal.db"),
		MaxOpenConns: 1,
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.NewMigrator(db, logger).Up())
	runs := repository.NewRunRepository(db, logger)

	ts := &testServer{channel: protocol.NewAckChannel()}
	factory := func(protocol.SerialConfig) (protocol.Channel, error) {
		ts.mu.Lock()
		defer ts.mu.Unlock()
		return ts.channel, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	bus := handler.NewEventBus(logger)
	go bus.Start(ctx)
	ts.websocket = handler.NewWebSocketHandler(bus, cfg.Security.AllowedOrigins, logger)
	go ts.websocket.Start(ctx)

	ports := func() ([]*enumerator.PortDetails, error) {
		return []*enumerator.PortDetails{{Name: "/dev/ttyUL1"}}, nil
	}

	handlers := &Handlers{
		Health: handler.NewHealthHandler(db, s, cfg, logger),
		Schema: handler.NewSchemaHandler(s, logger),
		Provision: handler.NewProvisionHandler(
			service.NewConfigurationService(s, logger),
			service.NewProvisionService(factory, 4, runs, bus, logger),
			protocol.SerialConfig{Port: "/dev/ttyUL1"},
			logger,
		),
		Runs:      handler.NewRunHandler(runs, logger),
		Ports:     handler.NewPortHandler(discovery.NewScannerWithLister(ports, logger), logger),
		WebSocket: ts.websocket,
	}

	ts.engine = NewRouter(cfg, logger, handlers).SetupRouter()
	return ts
}

func (ts *testServer) do(t *testing.T, method, path, body string) (int, envelope) {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/yaml")
	}
	w := httptest.NewRecorder()
	ts.engine.ServeHTTP(w, req)

	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	}
	return w.Code, env
}

func TestGinMode(t *testing.T) {
	tests := []struct {
		environment string
		debug       bool
		want        string
	}{
		{"test", false, gin.TestMode},
		{"development", false, gin.DebugMode},
		{"staging", false, gin.ReleaseMode},
		{"staging", true, gin.DebugMode},
		{"production", true, gin.ReleaseMode},
	}

	for _, tt := range tests {
		cfg := &config.Config{App: config.AppConfig{Environment: tt.environment, Debug: tt.debug}}
		assert.Equal(t, tt.want, ginMode(cfg), "%s debug=%t", tt.environment, tt.debug)
	}
}

func TestHealthRoutes(t *testing.T) {
	ts := newTestServer(t)

	w := httptest.NewRecorder()
	ts.engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var health handler.HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "healthy", health.Checks["journal"].Status)
	assert.EqualValues(t, 1, health.Checks["schema"].Data["records"])

	for _, path := range []string{"/ready", "/live"} {
		w = httptest.NewRecorder()
		ts.engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}

func TestSchemaRoutes(t *testing.T) {
	ts := newTestServer(t)

	code, env := ts.do(t, http.MethodGet, "/api/v1/schema/records", "")
	require.Equal(t, http.StatusOK, code)
	var list struct {
		Records []model.Record `json:"records"`
		Total   int            `json:"total"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Equal(t, 1, list.Total)
	assert.Equal(t, "ANTENNA", list.Records[0].Name)
	assert.Equal(t, 9, list.Records[0].TotalWidth)

	code, env = ts.do(t, http.MethodGet, "/api/v1/schema/records/ANTENNA", "")
	require.Equal(t, http.StatusOK, code)
	assert.NotEmpty(t, env.RequestID)

	code, env = ts.do(t, http.MethodGet, "/api/v1/schema/records/NOPE", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)
}

func TestEncodeFrames(t *testing.T) {
	ts := newTestServer(t)
	ch := protocol.NewAckChannel()
	ts.setChannel(ch)

	code, env := ts.do(t, http.MethodPost, "/api/v1/frames", antennaConfig)
	require.Equal(t, http.StatusOK, code, env.Message)

	var run model.Run
	require.NoError(t, json.Unmarshal(env.Data, &run))
	assert.True(t, run.DryRun)
	require.Len(t, run.Frames, 1)
	assert.Equal(t, model.FrameStatusEncoded, run.Frames[0].Status)
	assert.True(t, strings.HasPrefix(run.Frames[0].Hex, "02 00 64"))
	assert.Empty(t, ch.Writes(), "dry run never touches the device")
}

func TestEncodeFramesRejected(t *testing.T) {
	ts := newTestServer(t)

	code, env := ts.do(t, http.MethodPost, "/api/v1/frames", "- record: ANTENNA\n  HEIGHT: 500.0\n")
	require.Equal(t, http.StatusUnprocessableEntity, code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "CONFIGURATION_REJECTED", env.Error.Code)

	kinds := []model.DiagnosticKind{}
	for _, d := range env.Error.Diagnostics {
		kinds = append(kinds, d.Kind)
	}
	assert.Equal(t, []model.DiagnosticKind{model.DiagnosticInvalidValue, model.DiagnosticNotConfigured}, kinds)

	code, env = ts.do(t, http.MethodPost, "/api/v1/frames", "record: ANTENNA\n")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "BAD_REQUEST", env.Error.Code)
}

func TestProvisionAndJournal(t *testing.T) {
	ts := newTestServer(t)
	ch := protocol.NewAckChannel()
	ts.setChannel(ch)

	code, env := ts.do(t, http.MethodPost, "/api/v1/provision?port=/dev/ttyS3", antennaConfig)
	require.Equal(t, http.StatusOK, code, env.Message)

	var run model.Run
	require.NoError(t, json.Unmarshal(env.Data, &run))
	assert.Equal(t, model.RunStatusCompleted, run.Status)
	assert.Equal(t, "/dev/ttyS3", run.Port)
	assert.Equal(t, 1, run.FramesTotal)
	assert.Zero(t, run.FramesFailed)
	assert.Len(t, ch.Frames(), 1)

	code, env = ts.do(t, http.MethodGet, "/api/v1/runs/"+run.ID.String(), "")
	require.Equal(t, http.StatusOK, code)
	var stored model.Run
	require.NoError(t, json.Unmarshal(env.Data, &stored))
	require.Len(t, stored.Frames, 1)
	assert.Equal(t, run.Frames[0].Hex, stored.Frames[0].Hex)

	code, env = ts.do(t, http.MethodGet, "/api/v1/runs?status=COMPLETED", "")
	require.Equal(t, http.StatusOK, code)
	var page struct {
		Runs       []model.Run    `json:"runs"`
		Pagination map[string]int `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &page))
	assert.Equal(t, 1, page.Pagination["total"])

	code, _ = ts.do(t, http.MethodGet, "/api/v1/runs?status=BOGUS", "")
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = ts.do(t, http.MethodGet, "/api/v1/runs/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = ts.do(t, http.MethodGet, "/api/v1/runs/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestProvisionDeviceBusy(t *testing.T) {
	ts := newTestServer(t)
	ch := protocol.NewMockChannel()
	ts.setChannel(ch)

	code, env := ts.do(t, http.MethodPost, "/api/v1/provision", antennaConfig)
	require.Equal(t, http.StatusBadGateway, code)
	assert.Equal(t, "DEVICE_ERROR", env.Error.Code)
	assert.Contains(t, env.Error.Details, "device busy")

	var run model.Run
	require.NoError(t, json.Unmarshal(env.Data, &run))
	assert.Equal(t, model.RunStatusFailed, run.Status)
	assert.Empty(t, ch.Frames())
}

func TestListPorts(t *testing.T) {
	ts := newTestServer(t)

	code, env := ts.do(t, http.MethodGet, "/api/v1/ports", "")
	require.Equal(t, http.StatusOK, code)
	var ports struct {
		PortsFound int              `json:"ports_found"`
		Ports      []discovery.Port `json:"ports"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &ports))
	assert.Equal(t, 1, ports.PortsFound)
	assert.Equal(t, "/dev/ttyUL1", ports.Ports[0].Name)
}

func TestRunEventStream(t *testing.T) {
	ts := newTestServer(t)
	server := httptest.NewServer(ts.engine)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/runs"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		return ts.websocket.GetConnectionStats().TotalConnections == 1
	}, 2*time.Second, 10*time.Millisecond)

	code, _ := ts.do(t, http.MethodPost, "/api/v1/frames", antennaConfig)
	require.Equal(t, http.StatusOK, code)

	var types []model.EventType
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for len(types) < 3 {
		var msg struct {
			Type string         `json:"type"`
			Data model.RunEvent `json:"data"`
		}
		require.NoError(t, conn.ReadJSON(&msg))
		require.Equal(t, "run_event", msg.Type)
		types = append(types, msg.Data.Type)
	}
	assert.Equal(t, []model.EventType{
		model.EventRunStarted,
		model.EventFrameEncoded,
		model.EventRunCompleted,
	}, types)
}

func TestRunEventStreamRejectsBadRunID(t *testing.T) {
	ts := newTestServer(t)

	code, _ := ts.do(t, http.MethodGet, "/ws/runs?run_id=nope", "")
	assert.Equal(t, http.StatusBadRequest, code)
}

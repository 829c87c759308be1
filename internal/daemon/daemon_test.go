package daemon

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xkazm04/personas-sub002/internal/config"
	"github.com/xkazm04/personas-sub002/internal/logger"
)

func newTestDaemon(t *testing.T) *Daemon {
	t.Helper()

	tmpDir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.DataDir = tmpDir
	cfg.DatabasePath = filepath.Join(tmpDir, "engine.db")
	cfg.Server.Port = 0

	log, err := logger.New(logger.Config{Level: "error", Console: false})
	require.NoError(t, err)

	d, err := New(cfg, log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Stop() })
	return d
}

func TestNewWiresModules(t *testing.T) {
	d := newTestDaemon(t)

	assert.NotNil(t, d.GetStore())
	assert.NotNil(t, d.GetPipeline())
	assert.NotNil(t, d.GetScheduler())
	assert.NotNil(t, d.GetFailover())
}

func TestStatusBeforeStart(t *testing.T) {
	d := newTestDaemon(t)

	status := d.Status()
	assert.False(t, status.Running)
	assert.Empty(t, status.Uptime)
}

func TestStopWithoutStartIsNoop(t *testing.T) {
	d := newTestDaemon(t)

	assert.NoError(t, d.Stop())
}

func TestHandleStatus(t *testing.T) {
	d := newTestDaemon(t)
	srv := NewServer(ServerConfig{Daemon: d, Logger: d.logger.GetZerolog()})

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	srv.handleStatus(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"daemon"`)
	assert.Contains(t, rec.Body.String(), `"scheduler"`)
}

func TestHandleRunRejectsInvalidBody(t *testing.T) {
	d := newTestDaemon(t)
	srv := NewServer(ServerConfig{Daemon: d, Logger: d.logger.GetZerolog()})

	req := httptest.NewRequest(http.MethodPost, "/run", nil)
	rec := httptest.NewRecorder()
	srv.handleRun(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleRunRejectsEmptyPersona(t *testing.T) {
	d := newTestDaemon(t)
	srv := NewServer(ServerConfig{Daemon: d, Logger: d.logger.GetZerolog()})

	body := `{"persona_id": "", "input": "hello"}`
	req := httptest.NewRequest(http.MethodPost, "/run", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.handleRun(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleExecutionsEmpty(t *testing.T) {
	d := newTestDaemon(t)
	srv := NewServer(ServerConfig{Daemon: d, Logger: d.logger.GetZerolog()})

	req := httptest.NewRequest(http.MethodGet, "/executions", nil)
	rec := httptest.NewRecorder()
	srv.handleExecutions(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleMethodNotAllowed(t *testing.T) {
	d := newTestDaemon(t)
	srv := NewServer(ServerConfig{Daemon: d, Logger: d.logger.GetZerolog()})

	req := httptest.NewRequest(http.MethodDelete, "/status", nil)
	rec := httptest.NewRecorder()
	srv.handleStatus(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

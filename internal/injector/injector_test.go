package injector

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/sheetsync/internal/config"
	"github.com/zeusync/sheetsync/internal/relay"
)

func TestInitializeServer_StandaloneNode(t *testing.T) {
	cfg := config.Default()
	cfg.Log.Level = "error"

	server, cleanup, err := InitializeServer(cfg)
	require.NoError(t, err)
	defer cleanup()

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestProviders_FallBackToInProcessServices(t *testing.T) {
	cfg := config.Default()
	_, isMemory := ProvideStore(cfg, nil, nil).(*relay.MemoryStore)
	assert.True(t, isMemory)
	_, isLocal := ProvideBroker(nil).(*relay.LocalBroker)
	assert.True(t, isLocal)
	_, isMemoryPresence := ProvidePresence(nil).(*relay.MemoryPresence)
	assert.True(t, isMemoryPresence)

	exporter, cleanup, err := ProvideExporter(cfg, nil)
	require.NoError(t, err)
	cleanup()
	assert.Nil(t, exporter)
}

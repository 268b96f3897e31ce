package server_test

import (
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfrund/tickstream/internal/config"
	"github.com/nfrund/tickstream/internal/host"
	"github.com/nfrund/tickstream/internal/server"
)

func TestHealthEndpoint(t *testing.T) {
	_, ts := setupIntegrationTest(t)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "OK", string(body))
}

func TestOperationsCatalogEndpoint(t *testing.T) {
	_, ts := setupIntegrationTest(t)

	resp, err := http.Get(ts.URL + "/api/operations")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var catalog []host.RouteCatalog
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&catalog))
	require.Len(t, catalog, 2)
	assert.Equal(t, "bars", catalog[0].Route)
	assert.Equal(t, []string{"bars.subscribe", "bars.unsubscribe", "bars.update"}, catalog[0].Operations)
	assert.Equal(t, "books", catalog[1].Route)
}

func TestBuildRegistersBuiltins(t *testing.T) {
	s, err := server.NewWithConfig(&config.Config{
		Addr:          ":0",
		QueueCapacity: 100,
		FeedInterval:  time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(s.Close)

	names := s.Registry.Names()
	assert.Contains(t, names, "ping")
	assert.Contains(t, names, "bars.subscribe")
	assert.Contains(t, names, "books.subscribe")
	assert.Equal(t, 7, s.Registry.Count())
}

//go:build moenv

package moenv

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/air-quality-dashboard/internal/domain"
)

// These tests hit the real MOENV API and require a valid MOENV_API_KEY env var.
// Run with: go test -tags=moenv ./internal/adapter/moenv/ -v -count=1

func smokeClient(t *testing.T) *Client {
	t.Helper()
	key := os.Getenv("MOENV_API_KEY")
	if key == "" {
		t.Fatal("MOENV_API_KEY must be set to run smoke tests")
	}
	return &Client{
		apiKey:     key,
		baseURL:    "https://data.moenv.gov.tw/api/v2",
		dataset:    "aqx_p_432",
		httpClient: &http.Client{Timeout: 10 * time.Second},
		breaker:    newBreaker("moenv-smoke"),
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestSmoke_Stations(t *testing.T) {
	c := smokeClient(t)

	stations, err := c.Stations(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, stations)

	for _, st := range stations {
		assert.NotEmpty(t, st.SiteName)
		assert.NotContains(t, st.County, "台", "county names are normalized")
		assert.GreaterOrEqual(t, st.AQI, 0)
		assert.True(t, st.Geo.Valid())
	}
	t.Logf("fetched %d stations", len(stations))
}

func TestSmoke_RegistrySitesPresent(t *testing.T) {
	c := smokeClient(t)

	stations, err := c.Stations(context.Background())
	require.NoError(t, err)

	live := make(map[string]bool, len(stations))
	for _, st := range stations {
		live[st.SiteName] = true
	}
	var missing []string
	for _, loc := range domain.Counties() {
		for _, site := range loc.Sites {
			if !live[site] {
				missing = append(missing, site)
			}
		}
	}
	t.Logf("registry sites absent from the current release: %v", missing)
}

package drand

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cognosis/domain/beacon"
	"cognosis/domain/core"
)

func beaconServer(t *testing.T) *httptest.Server {
	t.Helper()
	randomness := strings.Repeat("ab", 32)
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == "/public/latest":
			fmt.Fprintf(w, `{"round": 4270316, "randomness": "%s", "signature": "b3"}`, randomness)
		case strings.HasPrefix(r.URL.Path, "/public/"):
			round := strings.TrimPrefix(r.URL.Path, "/public/")
			if round == "99" {
				w.WriteHeader(http.StatusNotFound)
				fmt.Fprint(w, `{"error": "round not found"}`)
				return
			}
			fmt.Fprintf(w, `{"round": %s, "randomness": "%s", "signature": "b3"}`, round, randomness)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func TestLatestFetchesExternalRound(t *testing.T) {
	server := beaconServer(t)
	defer server.Close()

	client := New(Config{BaseURL: server.URL})
	b, err := client.Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(4270316), b.Round)
	assert.Equal(t, beacon.SourceExternal, b.Source)
	assert.Len(t, b.Randomness, beacon.RandomnessSize)
	assert.NoError(t, b.RequireAuditable())
}

func TestRoundFetchesSpecificRound(t *testing.T) {
	server := beaconServer(t)
	defer server.Close()

	client := New(Config{BaseURL: server.URL})
	b, err := client.Round(context.Background(), 12345)
	require.NoError(t, err)
	assert.Equal(t, uint64(12345), b.Round)
}

func TestRoundErrorSurfacesStatus(t *testing.T) {
	server := beaconServer(t)
	defer server.Close()

	client := New(Config{BaseURL: server.URL})
	_, err := client.Round(context.Background(), 99)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestLatestWithoutFallbackFailsOffline(t *testing.T) {
	client := New(Config{BaseURL: "http://127.0.0.1:1", Timeout: 200 * time.Millisecond})
	_, err := client.Latest(context.Background())
	assert.Error(t, err)
}

func TestLatestFallsBackToLocalEntropy(t *testing.T) {
	client := New(Config{
		BaseURL:       "http://127.0.0.1:1",
		Timeout:       200 * time.Millisecond,
		AllowFallback: true,
	})
	b, err := client.Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, beacon.SourceLocalFallback, b.Source)
	assert.Equal(t, uint64(0), b.Round)
	assert.Len(t, b.Randomness, beacon.RandomnessSize)

	// Fallback rounds fail auditability checks.
	err = b.RequireAuditable()
	assert.ErrorIs(t, err, core.ErrLocalFallback)
}

func TestRoundNeverFallsBack(t *testing.T) {
	client := New(Config{
		BaseURL:       "http://127.0.0.1:1",
		Timeout:       200 * time.Millisecond,
		AllowFallback: true,
	})
	_, err := client.Round(context.Background(), 42)
	assert.Error(t, err, "historic rounds must come from the network or not at all")
}

package replicate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cognosis/domain/core"
	"cognosis/domain/target"
)

// replicateServer simulates the prediction API: a create followed by polls
// that report "processing" pollsUntilDone times before succeeding.
func replicateServer(t *testing.T, pollsUntilDone int32, finalStatus string) *httptest.Server {
	t.Helper()
	var polls int32
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/predictions":
			json.NewEncoder(w).Encode(map[string]any{"id": "pred-1", "status": "starting"})
		case r.Method == http.MethodGet && r.URL.Path == "/predictions/pred-1":
			if atomic.AddInt32(&polls, 1) <= pollsUntilDone {
				json.NewEncoder(w).Encode(map[string]any{"id": "pred-1", "status": "processing"})
				return
			}
			resp := map[string]any{"id": "pred-1", "status": finalStatus}
			if finalStatus == "succeeded" {
				resp["output"] = []string{"https://cdn.example/pred-1.png"}
			} else {
				resp["error"] = "NSFW content detected"
			}
			json.NewEncoder(w).Encode(resp)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func testConfig(url string) Config {
	return Config{
		BaseURL:      url,
		APIToken:     "r8_test",
		ModelVersion: "abc123",
		PollInterval: 5 * time.Millisecond,
		Timeout:      time.Second,
	}
}

func TestGeneratePollsUntilSucceeded(t *testing.T) {
	server := replicateServer(t, 2, "succeeded")
	defer server.Close()

	gen, err := NewGenerator(testConfig(server.URL))
	require.NoError(t, err)

	tgt, err := gen.Generate(context.Background(), target.Constraints{Category: "a coastal landmark"})
	require.NoError(t, err)
	assert.Equal(t, target.KindGenerated, tgt.Kind)
	assert.Equal(t, "https://cdn.example/pred-1.png", tgt.ImageRef)
	assert.Contains(t, tgt.Payload, "coastal landmark")
}

func TestGenerateFailedPrediction(t *testing.T) {
	server := replicateServer(t, 0, "failed")
	defer server.Close()

	gen, err := NewGenerator(testConfig(server.URL))
	require.NoError(t, err)

	_, err = gen.Generate(context.Background(), target.Constraints{})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrOracleUnavailable)
	assert.Contains(t, err.Error(), "NSFW")
}

func TestGenerateRespectsContextCancellation(t *testing.T) {
	// Never finishes processing.
	server := replicateServer(t, 1<<30, "succeeded")
	defer server.Close()

	gen, err := NewGenerator(testConfig(server.URL))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = gen.Generate(ctx, target.Constraints{})
	assert.Error(t, err)
}

func TestGenerateValidatesConfig(t *testing.T) {
	_, err := NewGenerator(Config{ModelVersion: "abc"})
	assert.Error(t, err, "missing token must be rejected")
	_, err = NewGenerator(Config{APIToken: "tok"})
	assert.Error(t, err, "missing model version must be rejected")
}

func TestGenerateSendsSeed(t *testing.T) {
	var gotSeed atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.Method == http.MethodPost {
			var body struct {
				Input map[string]any `json:"input"`
			}
			json.NewDecoder(r.Body).Decode(&body)
			gotSeed.Store(fmt.Sprintf("%v", body.Input["seed"]))
			json.NewEncoder(w).Encode(map[string]any{"id": "pred-1", "status": "starting"})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"id": "pred-1", "status": "succeeded", "output": []string{"https://cdn.example/x.png"},
		})
	}))
	defer server.Close()

	gen, err := NewGenerator(testConfig(server.URL))
	require.NoError(t, err)

	seed := int64(7777)
	_, err = gen.Generate(context.Background(), target.Constraints{Seed: &seed})
	require.NoError(t, err)
	assert.Equal(t, "7777", gotSeed.Load())
}

//go:build docker

// Package service holds the container-based integration tests for the
// loom-ingest HTTP surface. They exercise the shipped image end to end:
// health, stats over an empty store, and the retrieval query envelope.
//
// Run with:
//
//	go test -tags=docker ./tests/service/...
package service

import (
	"bytes"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomwork/loom/tests/common"
)

var httpClient = &http.Client{Timeout: 30 * time.Second}

func getJSON(t *testing.T, url string, out any) *http.Response {
	t.Helper()
	resp, err := httpClient.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	return resp
}

func postJSON(t *testing.T, url string, body any, out any) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := httpClient.Post(url, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	return resp
}

func TestService_Health(t *testing.T) {
	env := common.StartService(t)

	var health struct {
		Status string `json:"status"`
	}
	resp := getJSON(t, env.URL()+"/health", &health)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", health.Status)
}

func TestService_StatsOnEmptyStore(t *testing.T) {
	env := common.StartService(t)

	var stats struct {
		Works       int `json:"works"`
		Documents   int `json:"documents"`
		Chunks      int `json:"chunks"`
		Summaries   int `json:"summaries"`
		Collections []struct {
			Name          string `json:"name"`
			ShouldPromote bool   `json:"should_promote"`
		} `json:"collections"`
	}
	resp := getJSON(t, env.URL()+"/stats", &stats)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Zero(t, stats.Chunks)
	assert.Zero(t, stats.Summaries)
	require.NotEmpty(t, stats.Collections)
	for _, c := range stats.Collections {
		assert.False(t, c.ShouldPromote, "empty collection %s must not want promotion", c.Name)
	}
}

func TestService_QueryLimitZeroShortCircuits(t *testing.T) {
	env := common.StartService(t)

	var out struct {
		OK      bool   `json:"ok"`
		Mode    string `json:"mode"`
		Total   int    `json:"total"`
		Results []any  `json:"results"`
	}
	resp := postJSON(t, env.URL()+"/query", map[string]any{
		"mode":  "simple",
		"query": "what is virtue?",
		"limit": 0,
	}, &out)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, out.OK)
	assert.Zero(t, out.Total)
	assert.Empty(t, out.Results)
}

func TestService_QueryEmptyStoreReturnsNoResults(t *testing.T) {
	env := common.StartService(t)

	var out struct {
		OK    bool   `json:"ok"`
		Mode  string `json:"mode"`
		Total int    `json:"total"`
	}
	resp := postJSON(t, env.URL()+"/query", map[string]any{
		"mode":  "auto",
		"query": "What is the role of habit in Peirce's account of belief?",
		"limit": 5,
	}, &out)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, out.OK, "empty results are a valid successful response")
	assert.Equal(t, "hierarchical", out.Mode, "interrogative multi-token query routes hierarchical")
	assert.Zero(t, out.Total)
}

func TestService_QueryRejectsBadBody(t *testing.T) {
	env := common.StartService(t)

	resp, err := httpClient.Post(env.URL()+"/query", "application/json", bytes.NewReader([]byte("{not json")))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var out struct {
		OK      bool   `json:"ok"`
		Kind    string `json:"kind"`
		Message string `json:"message"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.False(t, out.OK)
	assert.NotEmpty(t, out.Kind)
}

func TestService_VersionAndVerifyConsistency(t *testing.T) {
	env := common.StartService(t)

	var version struct {
		Service string `json:"service"`
	}
	getJSON(t, env.URL()+"/version", &version)
	assert.Equal(t, "loom-ingest", version.Service)

	var orphans []any
	resp := getJSON(t, env.URL()+"/verify-consistency", &orphans)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, orphans, "empty store has no orphan works")
}

package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprediction/chronicle"
	"github.com/soundprediction/chronicle/pkg/config"
	"github.com/soundprediction/chronicle/pkg/types"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	client, err := chronicle.Open(chronicle.Config{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	cfg := &config.Config{}
	cfg.Server.Mode = gin.TestMode
	cfg.Server.Host = "localhost"
	cfg.Server.Port = 0

	s := New(cfg, client)
	s.Setup()
	return s
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func commitOneEntity(t *testing.T, s *Server, name, content string) string {
	t.Helper()
	w := doJSON(t, s, http.MethodPost, "/api/v1/commit", map[string]any{
		"entity_facts": []map[string]any{
			{"fact_id": "f1", "name": name, "content": content},
		},
		"entity_decisions": []map[string]any{
			{"fact_id": "f1", "kind": "NEW"},
		},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Committed bool          `json:"committed"`
		Commit    *types.Commit `json:"commit"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.True(t, resp.Committed)
	require.Len(t, resp.Commit.AddedEntityVersions, 1)
	return resp.Commit.AddedEntityVersions[0]
}

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(t)

	for _, path := range []string{"/health", "/ready", "/live", "/health/detailed"} {
		w := doJSON(t, s, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}

func TestCommitAndSearch(t *testing.T) {
	s := newTestServer(t)
	commitOneEntity(t, s, "Ye Wenjie", "an astrophysicist at Red Coast Base")

	w := doJSON(t, s, http.MethodPost, "/api/v1/search", map[string]any{
		"query":  "astrophysicist",
		"method": "lexical",
		"scope":  "content_only",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Matches []struct {
			Version *types.EntityVersion `json:"version"`
			Score   float64              `json:"score"`
		} `json:"matches"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Matches, 1)
	assert.Equal(t, "Ye Wenjie", resp.Matches[0].Version.Name)
	assert.Greater(t, resp.Matches[0].Score, 0.0)
}

func TestCommitAllRedundantAnswersNotCommitted(t *testing.T) {
	s := newTestServer(t)
	versionID := commitOneEntity(t, s, "Shi Qiang", "a detective")

	w := doJSON(t, s, http.MethodPost, "/api/v1/commit", map[string]any{
		"entity_facts": []map[string]any{
			{"fact_id": "f1", "name": "Shi Qiang", "content": "a detective"},
		},
		"entity_decisions": []map[string]any{
			{"fact_id": "f1", "kind": "REDUNDANT", "target_version_id": versionID},
		},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Committed bool `json:"committed"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Committed)
}

func TestCommitValidationRejected(t *testing.T) {
	s := newTestServer(t)

	// Empty batch fails dto validation before reaching the engine.
	w := doJSON(t, s, http.MethodPost, "/api/v1/commit", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// A decision referencing an unknown fact fails engine validation.
	w = doJSON(t, s, http.MethodPost, "/api/v1/commit", map[string]any{
		"entity_decisions": []map[string]any{
			{"fact_id": "ghost", "kind": "NEW"},
		},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStaleVersionPinAnswersConflict(t *testing.T) {
	s := newTestServer(t)
	commitOneEntity(t, s, "Luo Ji", "a sociologist")

	w := doJSON(t, s, http.MethodPost, "/api/v1/commit", map[string]any{
		"entity_facts": []map[string]any{
			{"fact_id": "f1", "name": "Luo Ji", "content": "the Wallfacer"},
		},
		"entity_decisions": []map[string]any{
			{"fact_id": "f1", "kind": "UPDATE", "target_version_id": "not-the-head"},
		},
	})
	assert.Equal(t, http.StatusConflict, w.Code, w.Body.String())
}

func TestEntityVersionsAndRelationsEndpoints(t *testing.T) {
	s := newTestServer(t)
	commitOneEntity(t, s, "Trisolaris", "a three-sun world")

	w := doJSON(t, s, http.MethodGet, "/api/v1/entities", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var listResp struct {
		Entities []*types.EntityVersion `json:"entities"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listResp))
	require.Len(t, listResp.Entities, 1)
	entityID := listResp.Entities[0].EntityID

	w = doJSON(t, s, http.MethodGet, "/api/v1/entities/"+entityID+"/versions", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, s, http.MethodGet, "/api/v1/entities/"+entityID+"/relations", nil)
	require.Equal(t, http.StatusOK, w.Code)

	// Unknown chain answers 404.
	w = doJSON(t, s, http.MethodGet, "/api/v1/entities/ent_missing/versions", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCacheEndpoints(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(t, s, http.MethodPost, "/api/v1/cache", map[string]any{
		"content":       "Chapter 1: the countdown appears.",
		"activity_type": "reading",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var saved struct {
		ID      string `json:"id"`
		Changed bool   `json:"changed"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &saved))
	require.True(t, saved.Changed)
	require.NotEmpty(t, saved.ID)

	// Identical content dedups against the stream head.
	w = doJSON(t, s, http.MethodPost, "/api/v1/cache", map[string]any{
		"content":       "Chapter 1: the countdown appears.",
		"activity_type": "reading",
	})
	require.Equal(t, http.StatusOK, w.Code)
	var again struct {
		ID      string `json:"id"`
		Changed bool   `json:"changed"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &again))
	assert.False(t, again.Changed)
	assert.Equal(t, saved.ID, again.ID)

	w = doJSON(t, s, http.MethodGet, "/api/v1/cache/"+saved.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, s, http.MethodGet, "/api/v1/cache/latest?activity=reading", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, s, http.MethodGet, "/api/v1/cache/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPathsRequiresBothEntities(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(t, s, http.MethodPost, "/api/v1/paths", map[string]any{
		"entity1_id": "ent_a",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

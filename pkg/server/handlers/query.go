package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/soundprediction/chronicle"
	"github.com/soundprediction/chronicle/pkg/search"
	"github.com/soundprediction/chronicle/pkg/server/dto"
	"github.com/soundprediction/chronicle/pkg/types"
)

// QueryHandler serves the read side of the API.
type QueryHandler struct {
	client *chronicle.Client
}

// NewQueryHandler creates a new query handler
func NewQueryHandler(client *chronicle.Client) *QueryHandler {
	return &QueryHandler{client: client}
}

// writeError maps sentinel errors to status codes. Unknown errors are
// reported as internal failures without leaking storage internals.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, types.ErrNotFound):
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: err.Error()})
	case errors.Is(err, types.ErrInvalidQuery), errors.Is(err, types.ErrInvalidDecision):
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
	case errors.Is(err, types.ErrIntegrityViolation):
		c.JSON(http.StatusConflict, dto.ErrorResponse{Error: err.Error()})
	case errors.Is(err, types.ErrClosed):
		c.JSON(http.StatusServiceUnavailable, dto.ErrorResponse{Error: err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "internal error"})
	}
}

// entityMatch is the wire shape of one ranked entity result.
type entityMatch struct {
	Version *types.EntityVersion `json:"version"`
	Score   float64              `json:"score"`
}

type relationMatch struct {
	Version *types.RelationVersion `json:"version"`
	Score   float64                `json:"score"`
}

type pathResult struct {
	Entities  []string                 `json:"entities"`
	Relations []*types.RelationVersion `json:"relations"`
	Hops      int                      `json:"hops"`
}

// Search handles POST /api/v1/search.
func (h *QueryHandler) Search(c *gin.Context) {
	var req dto.SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
		return
	}
	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
		return
	}

	q := search.Query{
		Text:      req.Query,
		Vector:    req.Vector,
		Scope:     search.Scope(req.Scope),
		Method:    search.Method(req.Method),
		Threshold: req.Threshold,
		Limit:     req.Limit,
	}
	if q.Method == "" {
		q.Method = search.MethodLexical
	}
	if q.Scope == "" {
		q.Scope = search.ScopeNameAndContent
	}

	if req.Relations {
		matches, err := h.client.SearchRelations(c.Request.Context(), q)
		if err != nil {
			writeError(c, err)
			return
		}
		out := make([]relationMatch, 0, len(matches))
		for _, m := range matches {
			out = append(out, relationMatch{Version: m.Version, Score: m.Score})
		}
		c.JSON(http.StatusOK, gin.H{"matches": out})
		return
	}

	matches, err := h.client.SearchEntity(c.Request.Context(), q)
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]entityMatch, 0, len(matches))
	for _, m := range matches {
		out = append(out, entityMatch{Version: m.Version, Score: m.Score})
	}
	c.JSON(http.StatusOK, gin.H{"matches": out})
}

// Paths handles POST /api/v1/paths.
func (h *QueryHandler) Paths(c *gin.Context) {
	var req dto.PathsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
		return
	}
	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
		return
	}
	maxHops := req.MaxHops
	if maxHops == 0 {
		maxHops = search.MaxHops
	}

	paths, err := h.client.GetRelationPaths(c.Request.Context(), req.Entity1ID, req.Entity2ID, maxHops)
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]pathResult, 0, len(paths))
	for _, p := range paths {
		out = append(out, pathResult{Entities: p.Entities, Relations: p.Relations, Hops: p.Hops()})
	}
	c.JSON(http.StatusOK, gin.H{"paths": out})
}

// ListEntities handles GET /api/v1/entities.
func (h *QueryHandler) ListEntities(c *gin.Context) {
	entities, err := h.client.ListEntities(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entities": entities})
}

// EntityVersions handles GET /api/v1/entities/:id/versions.
func (h *QueryHandler) EntityVersions(c *gin.Context) {
	versions, err := h.client.GetEntityVersions(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"versions": versions})
}

// EntityTimeline handles GET /api/v1/entities/:id/timeline.
func (h *QueryHandler) EntityTimeline(c *gin.Context) {
	timeline, err := h.client.EntityTimeline(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"timeline": timeline})
}

// EntityRelations handles GET /api/v1/entities/:id/relations. The optional
// "other" query parameter restricts results to relations shared with a
// second entity.
func (h *QueryHandler) EntityRelations(c *gin.Context) {
	relations, err := h.client.GetEntityRelations(c.Request.Context(), c.Param("id"), c.Query("other"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"relations": relations})
}

// ListRelations handles GET /api/v1/relations.
func (h *QueryHandler) ListRelations(c *gin.Context) {
	relations, err := h.client.ListRelations(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"relations": relations})
}

// RelationVersions handles GET /api/v1/relations/:id/versions.
func (h *QueryHandler) RelationVersions(c *gin.Context) {
	versions, err := h.client.GetRelationVersions(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"versions": versions})
}

// SaveCache handles POST /api/v1/cache.
func (h *QueryHandler) SaveCache(c *gin.Context) {
	var req dto.SaveCacheRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
		return
	}
	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
		return
	}

	physicalTime := time.Now()
	if req.PhysicalTime != nil {
		physicalTime = *req.PhysicalTime
	}
	id, changed, err := h.client.SaveMemoryCache(c.Request.Context(), req.Content, physicalTime, req.ActivityType)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.SaveCacheResponse{ID: id, Changed: changed})
}

// LatestCache handles GET /api/v1/cache/latest?activity=...
func (h *QueryHandler) LatestCache(c *gin.Context) {
	cache, err := h.client.LatestMemoryCache(c.Request.Context(), c.Query("activity"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cache)
}

// GetCache handles GET /api/v1/cache/:id.
func (h *QueryHandler) GetCache(c *gin.Context) {
	cache, err := h.client.GetMemoryCache(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cache)
}

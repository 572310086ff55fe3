package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/soundprediction/chronicle"
	"github.com/soundprediction/chronicle/pkg/server/dto"
)

// CommitHandler serves the write side of the API.
type CommitHandler struct {
	client *chronicle.Client
}

// NewCommitHandler creates a new commit handler
func NewCommitHandler(client *chronicle.Client) *CommitHandler {
	return &CommitHandler{client: client}
}

// Commit handles POST /api/v1/commit. The whole batch is applied atomically;
// an all-redundant batch answers 200 with committed=false.
func (h *CommitHandler) Commit(c *gin.Context) {
	var req dto.CommitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
		return
	}
	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
		return
	}

	in := chronicle.CommitInput{
		EntityFacts:       req.EntityFacts,
		RelationFacts:     req.RelationFacts,
		EntityDecisions:   req.EntityDecisions,
		RelationDecisions: req.RelationDecisions,
		EventTimes:        req.EventTimes,
		CacheID:           req.CacheID,
		Source:            req.Source,
	}
	if req.WorldTime != nil {
		in.WorldTime = *req.WorldTime
	} else {
		in.WorldTime = time.Now()
	}

	result, err := h.client.Commit(c.Request.Context(), in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.CommitResponse{
		Committed: result.Committed,
		Commit:    result.Commit,
		Deferred:  result.Deferred,
	})
}

// ListCommits handles GET /api/v1/commits.
func (h *CommitHandler) ListCommits(c *gin.Context) {
	commits, err := h.client.Commits(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"commits": commits})
}

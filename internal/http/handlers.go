package http

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/fyrsmithlabs/recalld/internal/cluster"
	"github.com/fyrsmithlabs/recalld/internal/knowledge"
	"github.com/fyrsmithlabs/recalld/internal/learning"
	"github.com/fyrsmithlabs/recalld/internal/memory"
	"github.com/fyrsmithlabs/recalld/internal/recall"
	"github.com/fyrsmithlabs/recalld/internal/sanitize"
)

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: s.config.Version,
		Stats:   s.svc.Stats(c.Request().Context()),
	})
}

// topK resolves an optional top_k against the server default.
func (s *Server) topK(v *int) int {
	if v == nil {
		return s.config.DefaultTopK
	}
	return *v
}

func (s *Server) handleMatch(c echo.Context) error {
	var req MatchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	matches := s.svc.MatchPatterns(c.Request().Context(), req.Query, s.topK(req.TopK))
	if matches == nil {
		matches = []knowledge.PatternMatch{}
	}
	return c.JSON(http.StatusOK, MatchResponse{Matches: matches})
}

func (s *Server) handleCacheStats(c echo.Context) error {
	return c.JSON(http.StatusOK, s.svc.KnowledgeCacheStats(c.Request().Context()))
}

func (s *Server) handleClearCache(c echo.Context) error {
	s.svc.ClearKnowledgeCache(c.Request().Context())
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleAddMemory(c echo.Context) error {
	var entry memory.Entry
	if err := c.Bind(&entry); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if len(entry.Embedding) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "embedding is required")
	}
	if err := sanitize.ValidateMemoryID(entry.ID); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	idx, id := s.svc.AddMemory(c.Request().Context(), entry)
	return c.JSON(http.StatusCreated, AddMemoryResponse{Index: idx, ID: id})
}

func (s *Server) handleListMemory(c echo.Context) error {
	entries := s.svc.Memories(c.Request().Context())
	if entries == nil {
		entries = []memory.Entry{}
	}
	return c.JSON(http.StatusOK, entries)
}

func (s *Server) handleSearchMemory(c echo.Context) error {
	var req SearchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	results := s.svc.SearchMemory(c.Request().Context(), req.Query, s.topK(req.TopK))
	if results == nil {
		results = []memory.SimilarityResult{}
	}
	return c.JSON(http.StatusOK, SearchResponse{Results: results})
}

func (s *Server) handleGetMemory(c echo.Context) error {
	entry, ok := s.svc.GetMemory(c.Request().Context(), c.Param("id"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "memory not found")
	}
	return c.JSON(http.StatusOK, entry)
}

func (s *Server) handleRemoveMemory(c echo.Context) error {
	if !s.svc.RemoveMemory(c.Request().Context(), c.Param("id")) {
		return echo.NewHTTPError(http.StatusNotFound, "memory not found")
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleClearMemory(c echo.Context) error {
	s.svc.ClearMemory(c.Request().Context())
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleMemoryClusters(c echo.Context) error {
	clusters := s.svc.ClusterMemories(c.Request().Context())
	if clusters == nil {
		clusters = []recall.MemoryCluster{}
	}
	return c.JSON(http.StatusOK, MemoryClustersResponse{Clusters: clusters})
}

func (s *Server) handleTDUpdate(c echo.Context) error {
	var req TDUpdateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validateTransition(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if (req.Reward == nil) == (req.Metrics == nil) {
		return echo.NewHTTPError(http.StatusBadRequest, "exactly one of reward or metrics is required")
	}

	ctx := c.Request().Context()
	if req.Reward != nil {
		res := s.svc.UpdateQ(ctx, req.State, req.Action, *req.Reward, req.NextState, req.NextAction)
		return c.JSON(http.StatusOK, TDUpdateResponse{UpdateResult: res})
	}

	res, breakdown := s.svc.LearnFromMetrics(ctx, req.State, req.Action, req.Metrics, req.NextState, req.NextAction)
	return c.JSON(http.StatusOK, TDUpdateResponse{UpdateResult: res, Reward: &breakdown})
}

func validateTransition(req TDUpdateRequest) error {
	ids := []struct{ kind, id string }{
		{"state.id", req.State.ID},
		{"action.id", req.Action.ID},
		{"next_state.id", req.NextState.ID},
	}
	if req.NextAction != nil {
		ids = append(ids, struct{ kind, id string }{"next_action.id", req.NextAction.ID})
	}
	for _, v := range ids {
		if err := sanitize.ValidateLearningID(v.kind, v.id); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) handleBestAction(c echo.Context) error {
	stateID := c.QueryParam("state")
	if err := sanitize.ValidateLearningID("state", stateID); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx := c.Request().Context()
	state := learning.State{ID: stateID}
	action, found := s.svc.BestAction(ctx, state)
	return c.JSON(http.StatusOK, BestActionResponse{
		State:  stateID,
		Action: action,
		Found:  found,
		Values: s.svc.ActionValues(ctx, state),
	})
}

func (s *Server) handleExportQTable(c echo.Context) error {
	return c.JSON(http.StatusOK, QTable{Entries: s.svc.ExportQTable(c.Request().Context())})
}

func (s *Server) handleImportQTable(c echo.Context) error {
	var req QTable
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	n := s.svc.ImportQTable(c.Request().Context(), req.Entries)
	return c.JSON(http.StatusOK, ImportResponse{Imported: n, Rejected: len(req.Entries) - n})
}

func (s *Server) handleResetTraces(c echo.Context) error {
	s.svc.ResetTraces(c.Request().Context())
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleReward(c echo.Context) error {
	var req RewardRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	return c.JSON(http.StatusOK, s.svc.ComputeReward(c.Request().Context(), req.Metrics))
}

func (s *Server) handleDetectClusters(c echo.Context) error {
	var req ClusterRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.MinPoints != nil && *req.MinPoints < 1 {
		return echo.NewHTTPError(http.StatusBadRequest, "min_points must be >= 1")
	}
	if req.Epsilon != nil && (*req.Epsilon < 0 || *req.Epsilon > 2) {
		return echo.NewHTTPError(http.StatusBadRequest, "epsilon must be in [0, 2]")
	}

	clusters := s.svc.DetectClusters(c.Request().Context(), req.Embeddings, req.MinPoints, req.Epsilon)
	if clusters == nil {
		clusters = []cluster.Cluster{}
	}
	return c.JSON(http.StatusOK, ClusterResponse{Clusters: clusters})
}

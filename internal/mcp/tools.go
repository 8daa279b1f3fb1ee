package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/recalld/internal/cluster"
	"github.com/fyrsmithlabs/recalld/internal/knowledge"
	"github.com/fyrsmithlabs/recalld/internal/learning"
	"github.com/fyrsmithlabs/recalld/internal/memory"
	"github.com/fyrsmithlabs/recalld/internal/sanitize"
)

func (s *Server) registerTools() {
	addTool(s, &ToolMetadata{
		Name:        "match_knowledge_patterns",
		Description: "Rank knowledge patterns against a query built from free text, error codes, tags and a file path",
		Category:    CategoryKnowledge,
		Keywords:    []string{"error", "pattern", "troubleshoot", "keyword"},
	}, s.matchKnowledgePatterns)

	addTool(s, &ToolMetadata{
		Name:        "memory_add",
		Description: "Store an embedding with its content in working memory, evicting the least valuable entry when full",
		Category:    CategoryMemory,
		Keywords:    []string{"remember", "store", "embedding"},
	}, s.memoryAdd)

	addTool(s, &ToolMetadata{
		Name:        "similarity_search",
		Description: "Find the stored memories most similar to a query embedding by cosine similarity",
		Category:    CategoryMemory,
		Keywords:    []string{"recall", "nearest", "cosine", "embedding"},
	}, s.similaritySearch)

	addTool(s, &ToolMetadata{
		Name:        "memory_clusters",
		Description: "Group stored memories into density clusters",
		Category:    CategoryMemory,
		Keywords:    []string{"dbscan", "group"},
	}, s.memoryClusters)

	addTool(s, &ToolMetadata{
		Name:        "td_update",
		Description: "Apply a TD(lambda) update for a state-action transition from a reward or from outcome metrics",
		Category:    CategoryLearning,
		Keywords:    []string{"reinforcement", "q-value", "reward"},
	}, s.tdUpdate)

	addTool(s, &ToolMetadata{
		Name:        "best_action",
		Description: "Return the action with the highest learned value for a state",
		Category:    CategoryLearning,
		Keywords:    []string{"greedy", "policy", "q-value"},
	}, s.bestAction)

	addTool(s, &ToolMetadata{
		Name:        "compute_reward",
		Description: "Turn outcome metrics into a shaped reward with a per-component breakdown",
		Category:    CategoryLearning,
		Keywords:    []string{"metrics", "score"},
	}, s.computeReward)

	addTool(s, &ToolMetadata{
		Name:        "detect_clusters",
		Description: "Cluster a batch of embeddings by density and return members and centroids",
		Category:    CategoryCluster,
		Keywords:    []string{"dbscan", "group", "centroid"},
	}, s.detectClusters)

	addTool(s, &ToolMetadata{
		Name:        "tool_search",
		Description: "Search the available tools by name, description or keyword",
		Category:    CategorySearch,
	}, s.toolSearch)
}

// ===== KNOWLEDGE =====

type matchInput struct {
	Text       string   `json:"text" jsonschema:"required,Free text to scan for pattern keywords"`
	ErrorCodes []string `json:"error_codes,omitempty" jsonschema:"Error codes observed (compared case-insensitively)"`
	Tags       []string `json:"tags,omitempty" jsonschema:"Context tags"`
	FilePath   string   `json:"file_path,omitempty" jsonschema:"Path of the file involved"`
	TopK       *int     `json:"top_k,omitempty" jsonschema:"Maximum matches (default: server setting)"`
}

type matchOutput struct {
	Matches []knowledge.PatternMatch `json:"matches" jsonschema:"Matching patterns, best first"`
	Count   int                      `json:"count" jsonschema:"Number of matches"`
}

func (s *Server) matchKnowledgePatterns(ctx context.Context, args matchInput) (matchOutput, string, error) {
	matches := s.svc.MatchPatterns(ctx, knowledge.Query{
		Text:       args.Text,
		ErrorCodes: args.ErrorCodes,
		Tags:       args.Tags,
		FilePath:   args.FilePath,
	}, s.topK(args.TopK))
	if matches == nil {
		matches = []knowledge.PatternMatch{}
	}

	summary := fmt.Sprintf("Found %d matching patterns", len(matches))
	if len(matches) > 0 {
		summary += fmt.Sprintf("; best: %s (%.3f)", matches[0].PatternID, matches[0].Score)
	}
	return matchOutput{Matches: matches, Count: len(matches)}, summary, nil
}

func (s *Server) topK(v *int) int {
	if v == nil {
		return s.defaultTopK
	}
	return *v
}

// ===== MEMORY =====

type memoryAddInput struct {
	ID         string    `json:"id,omitempty" jsonschema:"Entry id (generated when empty)"`
	Content    string    `json:"content,omitempty" jsonschema:"Content to remember"`
	Embedding  []float32 `json:"embedding" jsonschema:"required,Embedding vector of the content"`
	Importance *float64  `json:"importance,omitempty" jsonschema:"Importance weight for eviction (default: 0.5)"`
	Tags       []string  `json:"tags,omitempty" jsonschema:"Tags"`
}

type memoryAddOutput struct {
	Index int    `json:"index" jsonschema:"Position of the entry in working memory"`
	ID    string `json:"id" jsonschema:"Entry id"`
}

func (s *Server) memoryAdd(ctx context.Context, args memoryAddInput) (memoryAddOutput, string, error) {
	if len(args.Embedding) == 0 {
		return memoryAddOutput{}, "", fmt.Errorf("embedding is required")
	}
	if err := sanitize.ValidateMemoryID(args.ID); err != nil {
		return memoryAddOutput{}, "", err
	}

	importance := memory.DefaultImportance
	if args.Importance != nil {
		importance = *args.Importance
	}
	idx, id := s.svc.AddMemory(ctx, memory.Entry{
		ID:         args.ID,
		Content:    args.Content,
		Embedding:  args.Embedding,
		Importance: importance,
		Tags:       args.Tags,
	})
	return memoryAddOutput{Index: idx, ID: id}, fmt.Sprintf("Stored memory %s at index %d", id, idx), nil
}

type similaritySearchInput struct {
	Query []float32 `json:"query" jsonschema:"required,Query embedding"`
	TopK  *int      `json:"top_k,omitempty" jsonschema:"Maximum results (default: server setting)"`
}

type similaritySearchOutput struct {
	Results []memory.SimilarityResult `json:"results" jsonschema:"Most similar memories, best first"`
	Count   int                       `json:"count" jsonschema:"Number of results"`
}

func (s *Server) similaritySearch(ctx context.Context, args similaritySearchInput) (similaritySearchOutput, string, error) {
	results := s.svc.SearchMemory(ctx, args.Query, s.topK(args.TopK))
	if results == nil {
		results = []memory.SimilarityResult{}
	}
	return similaritySearchOutput{Results: results, Count: len(results)},
		fmt.Sprintf("Found %d similar memories", len(results)), nil
}

type memoryClustersInput struct{}

type memoryClusterOutput struct {
	ID        int       `json:"id" jsonschema:"Cluster id"`
	MemoryIDs []string  `json:"memory_ids" jsonschema:"Ids of the member memories"`
	Centroid  []float32 `json:"centroid" jsonschema:"Normalized centroid"`
	Size      int       `json:"size" jsonschema:"Number of members"`
}

type memoryClustersOutput struct {
	Clusters []memoryClusterOutput `json:"clusters" jsonschema:"Clusters of stored memories"`
	Count    int                   `json:"count" jsonschema:"Number of clusters"`
}

func (s *Server) memoryClusters(ctx context.Context, _ memoryClustersInput) (memoryClustersOutput, string, error) {
	clusters := s.svc.ClusterMemories(ctx)
	out := memoryClustersOutput{Clusters: make([]memoryClusterOutput, 0, len(clusters)), Count: len(clusters)}
	for _, c := range clusters {
		out.Clusters = append(out.Clusters, memoryClusterOutput{
			ID:        c.ID,
			MemoryIDs: c.MemoryIDs,
			Centroid:  c.Centroid,
			Size:      c.Size,
		})
	}
	return out, fmt.Sprintf("Found %d memory clusters", len(clusters)), nil
}

// ===== LEARNING =====

type tdUpdateInput struct {
	State      string             `json:"state" jsonschema:"required,Current state id"`
	Action     string             `json:"action" jsonschema:"required,Action taken"`
	Reward     *float64           `json:"reward,omitempty" jsonschema:"Observed reward (exclusive with metrics)"`
	Metrics    map[string]float64 `json:"metrics,omitempty" jsonschema:"Outcome metrics to shape into a reward (exclusive with reward)"`
	NextState  string             `json:"next_state" jsonschema:"required,State reached after the action"`
	NextAction string             `json:"next_action,omitempty" jsonschema:"Next action for an on-policy update; greedy when empty"`
}

type tdUpdateOutput struct {
	NewQValue     float64                   `json:"new_q_value" jsonschema:"Updated value of the state-action pair"`
	TDError       float64                   `json:"td_error" jsonschema:"Temporal difference error"`
	StatesUpdated int                       `json:"states_updated" jsonschema:"Pairs touched through eligibility traces"`
	Reward        *learning.RewardBreakdown `json:"reward_breakdown,omitempty" jsonschema:"Reward derived from metrics"`
}

func (s *Server) tdUpdate(ctx context.Context, args tdUpdateInput) (tdUpdateOutput, string, error) {
	for _, v := range []struct{ kind, id string }{
		{"state", args.State},
		{"action", args.Action},
		{"next_state", args.NextState},
	} {
		if err := sanitize.ValidateLearningID(v.kind, v.id); err != nil {
			return tdUpdateOutput{}, "", err
		}
	}
	if args.NextAction != "" {
		if err := sanitize.ValidateLearningID("next_action", args.NextAction); err != nil {
			return tdUpdateOutput{}, "", err
		}
	}
	if (args.Reward == nil) == (args.Metrics == nil) {
		return tdUpdateOutput{}, "", fmt.Errorf("exactly one of reward or metrics is required")
	}

	state := learning.State{ID: args.State}
	action := learning.Action{ID: args.Action}
	next := learning.State{ID: args.NextState}
	var nextAction *learning.Action
	if args.NextAction != "" {
		nextAction = &learning.Action{ID: args.NextAction}
	}

	var (
		res learning.UpdateResult
		out tdUpdateOutput
	)
	if args.Reward != nil {
		res = s.svc.UpdateQ(ctx, state, action, *args.Reward, next, nextAction)
	} else {
		var breakdown learning.RewardBreakdown
		res, breakdown = s.svc.LearnFromMetrics(ctx, state, action, args.Metrics, next, nextAction)
		out.Reward = &breakdown
	}
	out.NewQValue, out.TDError, out.StatesUpdated = res.NewQValue, res.TDError, res.StatesUpdated

	return out, fmt.Sprintf("Q(%s, %s) = %.4f (td error %.4f, %d pairs updated)",
		args.State, args.Action, res.NewQValue, res.TDError, res.StatesUpdated), nil
}

type bestActionInput struct {
	State string `json:"state" jsonschema:"required,State id"`
}

type bestActionOutput struct {
	State  string             `json:"state" jsonschema:"State id"`
	Action string             `json:"action,omitempty" jsonschema:"Best action, empty when the state is unknown"`
	Found  bool               `json:"found" jsonschema:"Whether any action is known for the state"`
	Values map[string]float64 `json:"values" jsonschema:"Value of every known action"`
}

func (s *Server) bestAction(ctx context.Context, args bestActionInput) (bestActionOutput, string, error) {
	if err := sanitize.ValidateLearningID("state", args.State); err != nil {
		return bestActionOutput{}, "", err
	}

	state := learning.State{ID: args.State}
	action, found := s.svc.BestAction(ctx, state)
	out := bestActionOutput{
		State:  args.State,
		Action: action,
		Found:  found,
		Values: s.svc.ActionValues(ctx, state),
	}
	if !found {
		return out, fmt.Sprintf("No actions known for state %s", args.State), nil
	}
	return out, fmt.Sprintf("Best action for %s: %s", args.State, action), nil
}

type computeRewardInput struct {
	Metrics map[string]float64 `json:"metrics" jsonschema:"required,Outcome metrics by name"`
}

func (s *Server) computeReward(ctx context.Context, args computeRewardInput) (learning.RewardBreakdown, string, error) {
	b := s.svc.ComputeReward(ctx, args.Metrics)
	return b, fmt.Sprintf("Reward %.4f from %d components", b.Total, len(b.Components)), nil
}

// ===== CLUSTERS =====

type detectClustersInput struct {
	Embeddings [][]float32 `json:"embeddings" jsonschema:"required,Embeddings to cluster"`
	MinPoints  *int        `json:"min_points,omitempty" jsonschema:"Neighbors needed for a core point (default: server setting)"`
	Epsilon    *float64    `json:"epsilon,omitempty" jsonschema:"Cosine distance radius in [0, 2] (default: server setting)"`
}

type detectClustersOutput struct {
	Clusters []cluster.Cluster `json:"clusters" jsonschema:"Clusters found"`
	Count    int               `json:"count" jsonschema:"Number of clusters"`
}

func (s *Server) detectClusters(ctx context.Context, args detectClustersInput) (detectClustersOutput, string, error) {
	if args.MinPoints != nil && *args.MinPoints < 1 {
		return detectClustersOutput{}, "", fmt.Errorf("min_points must be >= 1")
	}
	if args.Epsilon != nil && (*args.Epsilon < 0 || *args.Epsilon > 2) {
		return detectClustersOutput{}, "", fmt.Errorf("epsilon must be in [0, 2]")
	}

	clusters := s.svc.DetectClusters(ctx, args.Embeddings, args.MinPoints, args.Epsilon)
	if clusters == nil {
		clusters = []cluster.Cluster{}
	}
	return detectClustersOutput{Clusters: clusters, Count: len(clusters)},
		fmt.Sprintf("Found %d clusters in %d embeddings", len(clusters), len(args.Embeddings)), nil
}

// ===== TOOL SEARCH =====

type toolSearchInput struct {
	Query    string `json:"query" jsonschema:"required,Search text or regular expression"`
	Category string `json:"category,omitempty" jsonschema:"Restrict to a category (knowledge, memory, learning, cluster, search)"`
	Limit    int    `json:"limit,omitempty" jsonschema:"Maximum results (default: 5)"`
}

type toolSearchOutput struct {
	Query      string          `json:"query" jsonschema:"Search query used"`
	Results    []*SearchResult `json:"results" jsonschema:"Matching tools with score"`
	Count      int             `json:"count" jsonschema:"Number of tools found"`
	TotalTools int             `json:"total_tools" jsonschema:"Total number of registered tools"`
}

func (s *Server) toolSearch(_ context.Context, args toolSearchInput) (toolSearchOutput, string, error) {
	if args.Query == "" {
		return toolSearchOutput{}, "", fmt.Errorf("query is required")
	}
	limit := args.Limit
	if limit <= 0 {
		limit = 5
	}

	var results []*SearchResult
	if args.Category != "" {
		results = s.registry.SearchByCategory(args.Query, ToolCategory(args.Category))
	} else {
		results = s.registry.Search(args.Query)
	}
	if len(results) > limit {
		results = results[:limit]
	}
	if results == nil {
		results = []*SearchResult{}
	}

	names := make([]string, 0, len(results))
	for _, r := range results {
		names = append(names, r.Tool.Name)
	}
	summary := fmt.Sprintf("No tools found matching: %s", args.Query)
	if len(names) > 0 {
		summary = fmt.Sprintf("Found %d tool(s): %s", len(names), strings.Join(names, ", "))
	}

	return toolSearchOutput{
		Query:      args.Query,
		Results:    results,
		Count:      len(results),
		TotalTools: s.registry.Count(),
	}, summary, nil
}

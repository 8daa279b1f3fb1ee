package mcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRegistry() *ToolRegistry {
	r := NewToolRegistry()
	r.Register(&ToolMetadata{Name: "memory_add", Description: "Store an embedding", Category: CategoryMemory, Keywords: []string{"remember"}})
	r.Register(&ToolMetadata{Name: "similarity_search", Description: "Find similar memories", Category: CategoryMemory})
	r.Register(&ToolMetadata{Name: "best_action", Description: "Greedy action for a state", Category: CategoryLearning, Keywords: []string{"policy"}})
	return r
}

func TestToolRegistry_Register(t *testing.T) {
	r := testRegistry()
	r.Register(nil)
	r.Register(&ToolMetadata{})
	assert.Equal(t, 3, r.Count())

	tool, ok := r.Get("best_action")
	require.True(t, ok)
	assert.Equal(t, CategoryLearning, tool.Category)

	_, ok = r.Get("missing")
	assert.False(t, ok)

	assert.Len(t, r.ListByCategory(CategoryMemory), 2)
	assert.Empty(t, r.ListByCategory(CategoryCluster))
}

func TestToolRegistry_Search(t *testing.T) {
	r := testRegistry()

	tests := []struct {
		name      string
		query     string
		wantFirst string
		wantScore int
		wantCount int
	}{
		{"exact name", "memory_add", "memory_add", 3, 1},
		{"name substring", "MEMORY", "memory_add", 2, 1},
		{"description", "greedy", "best_action", 1, 1},
		{"keyword", "policy", "best_action", 1, 1},
		{"regex", "^best_.*", "best_action", 2, 1},
		{"no match", "cluster", "", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results := r.Search(tt.query)
			require.Len(t, results, tt.wantCount)
			if tt.wantCount > 0 {
				assert.Equal(t, tt.wantFirst, results[0].Tool.Name)
				assert.Equal(t, tt.wantScore, results[0].Score)
			}
		})
	}

	assert.Nil(t, r.Search(""))
}

func TestToolRegistry_SearchByCategory(t *testing.T) {
	r := testRegistry()

	results := r.SearchByCategory("e", CategoryLearning)
	require.Len(t, results, 1)
	assert.Equal(t, "best_action", results[0].Tool.Name)
}

func TestToolRegistry_InvalidRegexFallsBackToLiteral(t *testing.T) {
	r := NewToolRegistry()
	r.Register(&ToolMetadata{Name: "weird(", Description: "odd name"})

	results := r.Search("weird(")
	require.Len(t, results, 1)
	assert.Equal(t, 3, results[0].Score)
}

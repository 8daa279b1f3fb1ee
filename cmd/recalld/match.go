package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/recalld/internal/catalog"
	"github.com/fyrsmithlabs/recalld/internal/knowledge"
)

type matchOptions struct {
	patternsPath string
	query        knowledge.Query
	topK         int
}

func newMatchCmd() *cobra.Command {
	opts := &matchOptions{}

	cmd := &cobra.Command{
		Use:   "match",
		Short: "Match a query against a pattern catalog",
		Long: `Load a pattern catalog (YAML, TOML or JSON) and print the ranked matches
for a query as JSON. No server is needed.

Examples:
  recalld match --patterns patterns.yaml --text "cannot find module numpy" --tag python
  recalld match --patterns patterns.toml --text "borrow error" --error-code E0502 --file src/main.rs`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMatch(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.patternsPath, "patterns", "", "pattern catalog file (.yaml, .yml, .toml or .json)")
	f.StringVar(&opts.query.Text, "text", "", "query text")
	f.StringSliceVar(&opts.query.ErrorCodes, "error-code", nil, "error code (repeatable)")
	f.StringSliceVar(&opts.query.Tags, "tag", nil, "tag (repeatable)")
	f.StringVar(&opts.query.FilePath, "file", "", "file path involved")
	f.IntVar(&opts.topK, "top-k", 5, "maximum number of matches")
	_ = cmd.MarkFlagRequired("patterns")

	return cmd
}

func runMatch(cmd *cobra.Command, opts *matchOptions) error {
	patterns, err := catalog.Load(opts.patternsPath)
	if err != nil {
		return err
	}
	engine, err := knowledge.NewEngine(patterns)
	if err != nil {
		return fmt.Errorf("failed to build knowledge engine: %w", err)
	}

	matches := engine.MatchPatterns(opts.query, opts.topK)
	if matches == nil {
		matches = []knowledge.PatternMatch{}
	}
	return writeJSON(cmd, matches)
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/recalld/internal/cluster"
)

type clusterOptions struct {
	minPoints int
	epsilon   float64
}

func newClusterCmd() *cobra.Command {
	opts := &clusterOptions{}

	cmd := &cobra.Command{
		Use:   "cluster [file]",
		Short: "Cluster embeddings from a JSON file or stdin",
		Long: `Read a JSON array of embeddings and print the density clusters as JSON.
Use "-" or no argument to read from stdin.

Examples:
  recalld cluster embeddings.json
  cat embeddings.json | recalld cluster --min-points 2 --epsilon 0.2`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCluster(cmd, args, opts)
		},
	}

	cmd.Flags().IntVar(&opts.minPoints, "min-points", cluster.DefaultMinPoints, "neighbors needed for a core point")
	cmd.Flags().Float64Var(&opts.epsilon, "epsilon", cluster.DefaultEpsilon, "cosine distance radius in [0, 2]")
	return cmd
}

func runCluster(cmd *cobra.Command, args []string, opts *clusterOptions) error {
	if opts.minPoints < 1 {
		return fmt.Errorf("--min-points must be >= 1")
	}
	if opts.epsilon < 0 || opts.epsilon > 2 {
		return fmt.Errorf("--epsilon must be in [0, 2]")
	}

	var r io.Reader = cmd.InOrStdin()
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open embeddings: %w", err)
		}
		defer f.Close()
		r = f
	}

	var embeddings [][]float32
	if err := json.NewDecoder(r).Decode(&embeddings); err != nil {
		return fmt.Errorf("failed to decode embeddings: %w", err)
	}

	clusters := cluster.New(opts.minPoints, opts.epsilon).DetectClusters(embeddings)
	if clusters == nil {
		clusters = []cluster.Cluster{}
	}
	return writeJSON(cmd, clusters)
}

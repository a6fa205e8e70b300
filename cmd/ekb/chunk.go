package main

import (
	"encoding/json"
	"fmt"
	"os"

	"ekb/internal/chunker"
	"ekb/internal/loader"

	"github.com/spf13/cobra"
)

var (
	chunkOut     string
	chunkMax     int
	chunkOverlap int
	chunkRadius  int
)

var chunkCmd = &cobra.Command{
	Use:   "chunk <snapshot.json>",
	Short: "Rebuild the retrieval excerpts of a snapshot",
	Long: `Rechunk every node of a graph snapshot into overlapping, field-aware text
excerpts sized for lexical and semantic retrieval, and write the updated
snapshot back out. The graph itself is left untouched.

Examples:
  ekb chunk graph_snapshot.json --out graph_snapshot.chunked.json
  ekb chunk graph_snapshot.json --max-tokens 160 --overlap 32`,
	Args: cobra.ExactArgs(1),
	RunE: runChunk,
}

func init() {
	chunkCmd.Flags().StringVar(&chunkOut, "out", "", "Output path (default: overwrite the input)")
	chunkCmd.Flags().IntVar(&chunkMax, "max-tokens", chunker.DefaultMaxTokens, "Maximum tokens per excerpt")
	chunkCmd.Flags().IntVar(&chunkOverlap, "overlap", chunker.DefaultOverlapTokens, "Overlap tokens between consecutive excerpts")
	chunkCmd.Flags().IntVar(&chunkRadius, "snippet-radius", chunker.DefaultSnippetRadius, "Source snippet context lines")
	rootCmd.AddCommand(chunkCmd)
}

func runChunk(cmd *cobra.Command, args []string) error {
	snap, _, err := loader.ReadSnapshot(args[0])
	if err != nil {
		return err
	}
	loader.Normalize(snap)

	summary := chunker.Rechunk(snap, chunker.Options{
		MaxTokens:     chunkMax,
		OverlapTokens: chunkOverlap,
		SnippetRadius: chunkRadius,
	})

	out := chunkOut
	if out == "" {
		out = args[0]
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(out, data, 0644); err != nil {
		return err
	}

	fmt.Printf("Chunked %d nodes into %d excerpts (%s)\n",
		summary.Nodes, summary.VectorChunks, summary.Method)
	fmt.Printf("  avg per node: %.2f, max on one node: %d\n",
		summary.AvgChunksPerNode, summary.MaxChunksPerNode)
	fmt.Printf("  written to: %s\n", out)
	return nil
}

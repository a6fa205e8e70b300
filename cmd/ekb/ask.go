package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"ekb/internal/engine"

	"github.com/spf13/cobra"
)

var (
	askJSON  bool
	askDebug bool
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer a natural-language question from the knowledge base",
	Long: `Answer a Turkish or English question over the loaded knowledge graph.

The question is classified (WHAT, WHY, TRACE, CROSSREF), ranked candidates are
expanded along typed edges, and the answer is assembled with citations. When
the evidence is too weak the engine refuses instead of guessing.

Without a question argument an interactive prompt starts; exit with 'q' or
Ctrl+D.

Examples:
  ekb ask "axi_dma_0 nedir ve ne işe yarar?"
  ekb ask --json "Neden DMA seçildi, alternatifler neydi?"
  ekb ask --backend memory "DMA-REQ-L0-001'in alt gereksinimleri neler?"
  ekb ask`,
	Args: cobra.ArbitraryArgs,
	RunE: runAsk,
}

func init() {
	askCmd.Flags().BoolVar(&askJSON, "json", false, "Emit the full result as JSON")
	askCmd.Flags().BoolVar(&askDebug, "debug", false, "Include retrieval diagnostics in human output")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	root := mustGetRepoRoot()
	cfg := loadConfig(root, newLogger(nil))
	logger := newLogger(cfg)

	eng := mustBuildEngine(resolveBackend(cfg), cfg, logger)
	if s := newSynth(cfg, logger); s != nil {
		eng = eng.WithSynthesizer(s)
	}

	if len(args) > 0 {
		return askOnce(eng, strings.Join(args, " "))
	}
	return askInteractive(eng)
}

func askOnce(eng *engine.Engine, question string) error {
	res, err := eng.Query(newContext(), question)
	if err != nil {
		return err
	}
	printResult(res)
	return nil
}

func askInteractive(eng *engine.Engine) error {
	fmt.Println("EKB interactive mode. Empty line or 'q' exits.")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("soru> ")
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		question := strings.TrimSpace(scanner.Text())
		if question == "" || question == "q" || question == "quit" || question == "exit" {
			return nil
		}
		res, err := eng.Query(newContext(), question)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}
		printResult(res)
		fmt.Println()
	}
}

func printResult(res *engine.Result) {
	if askJSON {
		data, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return
		}
		fmt.Println(string(data))
		return
	}

	fmt.Println(res.Answer)
	fmt.Printf("\n[%s, güven: %s]\n", res.QueryType, res.ChainConfidence)
	for _, w := range res.Warnings {
		fmt.Printf("  uyarı: %s\n", w)
	}
	if len(res.Citations.Nodes) > 0 {
		fmt.Println("\nKaynaklar:")
		for _, c := range res.Citations.Nodes {
			fmt.Printf("  - %s (%s, %s)\n", c.NodeID, c.NodeType, c.Confidence)
		}
	}
	if askDebug {
		fmt.Printf("\nDebug: scope=%s stores=%v ranked=%d top_score=%.3f anchors=%v\n",
			res.Debug.Scope, res.Debug.StoresQueried, res.Debug.RankedNodeCount,
			res.Debug.TopRankScore, res.Debug.AnchorIDs)
	}
}

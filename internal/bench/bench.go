// Package bench measures query latency across storage backends with a
// fixed question set, so the two realizations can be compared on the
// same corpus.
package bench

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"ekb/internal/engine"
)

// DefaultQueries is the standard benchmark question mix: one of each
// intent plus existence and explicit-ID shapes.
var DefaultQueries = []string{
	"axi_dma_0 nedir ve ne işe yarar?",
	"Neden DMA seçildi, alternatifler neydi?",
	"DMA-REQ-L0-001'in alt gereksinimleri neler?",
	"Clock wizard her iki projede de var mı, farkları ne?",
	"Bu projenin bilinen sorunları neler?",
	"DMA-REQ-L1-001'i hangi component'ler karşılıyor?",
	"Bu projede Ethernet var mı?",
}

// Stats summarizes a latency distribution in milliseconds.
type Stats struct {
	Avg float64 `json:"avg"`
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// BackendResult is one backend's benchmark outcome.
type BackendResult struct {
	PerQueryMs map[string][]float64 `json:"per_query_ms"`
	Summary    Stats                `json:"summary_ms"`
}

// Result holds every backend's outcome for one run.
type Result struct {
	Iterations int                      `json:"iterations"`
	Queries    []string                 `json:"queries"`
	Backends   map[string]BackendResult `json:"backends"`
}

// Run benchmarks each engine over the query set. Every query gets one
// unmeasured warmup pass, then the given number of timed iterations.
func Run(ctx context.Context, engines map[string]*engine.Engine, queries []string, iterations int) (*Result, error) {
	if len(queries) == 0 {
		queries = DefaultQueries
	}
	if iterations <= 0 {
		iterations = 10
	}

	result := &Result{
		Iterations: iterations,
		Queries:    queries,
		Backends:   map[string]BackendResult{},
	}
	for name, eng := range engines {
		backend, err := benchEngine(ctx, eng, queries, iterations)
		if err != nil {
			return nil, fmt.Errorf("benchmark backend %s: %w", name, err)
		}
		result.Backends[name] = backend
	}
	return result, nil
}

func benchEngine(ctx context.Context, eng *engine.Engine, queries []string, iterations int) (BackendResult, error) {
	perQuery := map[string][]float64{}
	var all []float64

	for _, q := range queries {
		if _, err := eng.Query(ctx, q); err != nil {
			return BackendResult{}, err
		}
		times := make([]float64, 0, iterations)
		for i := 0; i < iterations; i++ {
			start := time.Now()
			if _, err := eng.Query(ctx, q); err != nil {
				return BackendResult{}, err
			}
			ms := float64(time.Since(start).Nanoseconds()) / 1e6
			times = append(times, ms)
			all = append(all, ms)
		}
		perQuery[q] = times
	}
	return BackendResult{PerQueryMs: perQuery, Summary: Summarize(all)}, nil
}

// Summarize computes the distribution stats of a sample set.
func Summarize(samples []float64) Stats {
	if len(samples) == 0 {
		return Stats{}
	}
	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)

	sum := 0.0
	for _, v := range sorted {
		sum += v
	}

	p95Idx := int(0.95*float64(len(sorted))) - 1
	if p95Idx < 0 {
		p95Idx = 0
	}
	return Stats{
		Avg: sum / float64(len(sorted)),
		P50: median(sorted),
		P95: sorted[p95Idx],
		Min: sorted[0],
		Max: sorted[len(sorted)-1],
	}
}

func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// Markdown renders the run as a comparison table.
func (r *Result) Markdown() string {
	names := make([]string, 0, len(r.Backends))
	for name := range r.Backends {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("# Query Backend Performance Benchmark\n\n")
	fmt.Fprintf(&b, "- iterations per query: %d\n\n", r.Iterations)
	b.WriteString("## Summary (ms)\n\n")
	b.WriteString("| Backend | Avg | P50 | P95 | Min | Max |\n")
	b.WriteString("|---|---:|---:|---:|---:|---:|\n")
	for _, name := range names {
		s := r.Backends[name].Summary
		fmt.Fprintf(&b, "| %s | %.3f | %.3f | %.3f | %.3f | %.3f |\n",
			name, s.Avg, s.P50, s.P95, s.Min, s.Max)
	}

	b.WriteString("\n## Per Query Avg (ms)\n\n")
	b.WriteString("| Query |")
	for _, name := range names {
		fmt.Fprintf(&b, " %s |", name)
	}
	b.WriteString("\n|---|")
	for range names {
		b.WriteString("---:|")
	}
	b.WriteString("\n")
	for _, q := range r.Queries {
		fmt.Fprintf(&b, "| %s |", q)
		for _, name := range names {
			fmt.Fprintf(&b, " %.3f |", Summarize(r.Backends[name].PerQueryMs[q]).Avg)
		}
		b.WriteString("\n")
	}
	return b.String()
}

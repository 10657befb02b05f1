package main

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// Report is the outcome of a benchmark run
type Report struct {
	Table       string
	Keys        int
	Operations  int
	Concurrency int
	ValueSize   int
	JSONRatio   float64
	Phases      []*PhaseStats
}

func (r *Report) totals() (ops int, failures int) {
	for _, p := range r.Phases {
		ops += p.Operations
		failures += p.Failures
	}
	return ops, failures
}

func printReport(w io.Writer, r *Report) {
	ops, failures := r.totals()

	fmt.Fprintln(w, strings.Repeat("-", 80))
	fmt.Fprintf(w, "Table:         %s\n", r.Table)
	fmt.Fprintf(w, "  Keys:        %d\n", r.Keys)
	fmt.Fprintf(w, "  Operations:  %d per phase\n", r.Operations)
	fmt.Fprintf(w, "  Concurrency: %d\n", r.Concurrency)
	fmt.Fprintf(w, "  Value size:  %d bytes (%s JSON)\n", r.ValueSize, percentageString(int(r.JSONRatio*100), 100))
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Summary:\n")
	fmt.Fprintf(w, "  Total:       %d\n", ops)
	fmt.Fprintf(w, "  Succeeded:   %d\n", ops-failures)
	if failures > 0 {
		fmt.Fprintf(w, "  Failed:      %d\n", failures)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Phases:")
	fmt.Fprintln(w)
	for _, p := range r.Phases {
		succeeded := p.Operations - p.Failures
		fmt.Fprintf(w, "  %s %s\n", statusEmoji(succeeded, p.Failures), p.Name)
		fmt.Fprintf(w, "    Count:          %d\n", p.Operations)
		fmt.Fprintf(w, "    Succeeded:      %d (%s)\n", succeeded, percentageString(succeeded, p.Operations))
		if p.Failures > 0 {
			fmt.Fprintf(w, "    Failed:         %d (%s)\n", p.Failures, percentageString(p.Failures, p.Operations))
			fmt.Fprintf(w, "    First Error:    %s\n", p.FirstError)
		}
		fmt.Fprintf(w, "    Total Duration: %s\n", formatDuration(p.Duration))
		fmt.Fprintf(w, "    Throughput:     %s\n", formatRate(p.Operations, p.Duration))
		fmt.Fprintf(w, "    Latency:        p50 %s, p95 %s, p99 %s, max %s\n",
			formatDuration(p.P50), formatDuration(p.P95), formatDuration(p.P99), formatDuration(p.Max))
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, strings.Repeat("-", 80))
}

// writeMarkdownReport writes a markdown report of the benchmark run
func writeMarkdownReport(w io.Writer, r *Report, generated time.Time) {
	ops, failures := r.totals()

	_, _ = fmt.Fprintf(w, "# Option Store Benchmark Report\n\n")
	_, _ = fmt.Fprintf(w, "Generated: %s\n\n", generated.Format("2006-01-02 15:04:05"))

	_, _ = fmt.Fprintf(w, "## Setup\n\n")
	_, _ = fmt.Fprintf(w, "| Property | Value |\n")
	_, _ = fmt.Fprintf(w, "|----------|-------|\n")
	_, _ = fmt.Fprintf(w, "| **Table** | `%s` |\n", r.Table)
	_, _ = fmt.Fprintf(w, "| **Keys** | %d |\n", r.Keys)
	_, _ = fmt.Fprintf(w, "| **Operations per phase** | %d |\n", r.Operations)
	_, _ = fmt.Fprintf(w, "| **Concurrency** | %d |\n", r.Concurrency)
	_, _ = fmt.Fprintf(w, "| **Value size** | %d bytes |\n", r.ValueSize)
	_, _ = fmt.Fprintf(w, "\n")

	_, _ = fmt.Fprintf(w, "## Summary\n\n")
	_, _ = fmt.Fprintf(w, "| Metric | Count |\n")
	_, _ = fmt.Fprintf(w, "|--------|-------|\n")
	_, _ = fmt.Fprintf(w, "| **Total** | %d |\n", ops)
	_, _ = fmt.Fprintf(w, "| **Succeeded** | %d |\n", ops-failures)
	if failures > 0 {
		_, _ = fmt.Fprintf(w, "| **Failed** | %d |\n", failures)
	}
	_, _ = fmt.Fprintf(w, "\n")

	_, _ = fmt.Fprintf(w, "## Phases\n\n")
	_, _ = fmt.Fprintf(w, "| Phase | Count | Failed | Duration | Throughput | p50 | p95 | p99 | Max |\n")
	_, _ = fmt.Fprintf(w, "|-------|-------|--------|----------|------------|-----|-----|-----|-----|\n")
	for _, p := range r.Phases {
		_, _ = fmt.Fprintf(w, "| %s %s | %d | %d | %s | %s | %s | %s | %s | %s |\n",
			statusEmoji(p.Operations-p.Failures, p.Failures), p.Name,
			p.Operations, p.Failures,
			formatDuration(p.Duration), formatRate(p.Operations, p.Duration),
			formatDuration(p.P50), formatDuration(p.P95), formatDuration(p.P99), formatDuration(p.Max))
	}
}

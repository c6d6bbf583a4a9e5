package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/wonny/aegis-allocator/internal/brain"
)

// ═══════════════════════════════════════════════════════════
// Common Formatting Utilities
// every command prints through these so output stays uniform
// ═══════════════════════════════════════════════════════════

const separatorWidth = 59

func printSeparator(w io.Writer) {
	fmt.Fprintln(w, strings.Repeat("─", separatorWidth))
}

func printDoubleSeparator(w io.Writer) {
	fmt.Fprintln(w, strings.Repeat("═", separatorWidth))
}

func printHeader(w io.Writer, title string) {
	fmt.Fprintln(w)
	printDoubleSeparator(w)
	fmt.Fprintf(w, "  %s\n", title)
	printSeparator(w)
}

func printKeyValue(w io.Writer, key, value string, keyWidth int) {
	fmt.Fprintf(w, "   %-*s : %s\n", keyWidth, key, value)
}

// printTableHeader prints column titles and an underline
func printTableHeader(w io.Writer, columns []string, widths []int) {
	printTableRow(w, columns, widths)

	total := 0
	for i, width := range widths {
		total += width
		if i < len(widths)-1 {
			total += 2 // spacing
		}
	}
	fmt.Fprintln(w, strings.Repeat("─", total))
}

func printTableRow(w io.Writer, values []string, widths []int) {
	for i, val := range values {
		fmt.Fprintf(w, "%-*s", widths[i], val)
		if i < len(values)-1 {
			fmt.Fprint(w, "  ")
		}
	}
	fmt.Fprintln(w)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printOutcome renders a plan and the tier trail that produced it
func printOutcome(w io.Writer, outcome *brain.Outcome) {
	plan := outcome.Plan

	printHeader(w, "Allocation Plan")
	printKeyValue(w, "Request", outcome.RequestID, 16)
	printKeyValue(w, "Tier", string(outcome.Tier), 16)
	printKeyValue(w, "Risk score", fmt.Sprintf("%g", plan.RiskScore), 16)
	printKeyValue(w, "Projected return", plan.TotalProjectedReturn, 16)
	printKeyValue(w, "Elapsed", outcome.Duration.String(), 16)
	printSeparator(w)

	widths := []int{16, 8, 32}
	printTableHeader(w, []string{"Asset class", "Weight", "Assets"}, widths)
	for _, item := range plan.Allocation {
		printTableRow(w, []string{
			item.AssetClass,
			fmt.Sprintf("%.2f%%", item.Percentage),
			strings.Join(item.RecommendedAssets, ", "),
		}, widths)
	}
	if len(plan.Allocation) == 0 {
		fmt.Fprintln(w, "   (no positions)")
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "💡 %s\n", plan.AgentSummary)

	for _, a := range outcome.Attempts {
		if a.Error != "" {
			fmt.Fprintf(w, "⚠️  %s tier failed after %s: %s\n", a.Tier, a.Duration, a.Error)
		}
	}
	fmt.Fprintf(w, "✅ Done via %s tier\n", outcome.Tier)
}

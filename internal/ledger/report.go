package ledger

import (
	"fmt"
	"sort"
	"strings"
)

// FormatTokenCount formats a token count for display.
func FormatTokenCount(count int64) string {
	if count <= 0 {
		return "0"
	}
	if count >= 1_000_000 {
		return fmt.Sprintf("%.1fm", float64(count)/1_000_000)
	}
	if count >= 10_000 {
		return fmt.Sprintf("%dk", count/1_000)
	}
	if count >= 1_000 {
		return fmt.Sprintf("%.1fk", float64(count)/1_000)
	}
	return fmt.Sprintf("%d", count)
}

// FormatUSD formats a dollar amount for display. Zero and negative
// amounts render as "$0".
func FormatUSD(amount float64) string {
	if amount <= 0 {
		return "$0"
	}
	if amount >= 0.01 {
		return fmt.Sprintf("$%.2f", amount)
	}
	return fmt.Sprintf("$%.4f", amount)
}

// FormatReport renders a human-readable run summary: overall totals,
// then per-provider and per-purpose breakdowns, then savings.
func (l *Ledger) FormatReport() string {
	var sb strings.Builder

	overall := l.OverallTotals()
	fmt.Fprintf(&sb, "tokens: %s (in %s, out %s), cost: %s, calls: %d\n",
		FormatTokenCount(overall.Total()),
		FormatTokenCount(overall.InputTokens),
		FormatTokenCount(overall.OutputTokens),
		FormatUSD(overall.Cost),
		overall.Calls,
	)

	writeGroup(&sb, "by provider", l.TotalsByProvider())
	writeGroup(&sb, "by purpose", l.TotalsByPurpose())

	if s := l.Savings(); s.Calls > 0 {
		fmt.Fprintf(&sb, "savings: %s tokens (~%d bytes) across %d summarisations\n",
			FormatTokenCount(s.TokensSaved), s.BytesSaved, s.Calls)
	}

	return sb.String()
}

func writeGroup(sb *strings.Builder, label string, groups map[string]Totals) {
	if len(groups) == 0 {
		return
	}
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Fprintf(sb, "%s:\n", label)
	for _, k := range keys {
		t := groups[k]
		fmt.Fprintf(sb, "  %-16s %8s tokens  %s\n", k, FormatTokenCount(t.Total()), FormatUSD(t.Cost))
	}
}

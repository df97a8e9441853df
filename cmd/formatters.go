package cmd

import (
	"fmt"
	"strings"
	"time"

	"pyrothor/core"
	"pyrothor/storage"
)

// renderRulesTable displays rules in a formatted table.
func renderRulesTable(rules []core.Rule) {
	if len(rules) == 0 {
		warningColor.Println("No rules stored")
		return
	}

	headerColor.Println("RULES")
	headerColor.Println(strings.Repeat("=", 100))
	fmt.Printf("%-10s %-30s %-10s %-10s %-20s\n",
		"ID", "Name", "Severity", "Version", "Updated")
	fmt.Println(strings.Repeat("-", 100))

	for _, rule := range rules {
		shortID := rule.ID
		if len(shortID) > 8 {
			shortID = shortID[:8]
		}

		name := rule.Name
		if len(name) > 29 {
			name = name[:26] + "..."
		}

		fmt.Printf("%-10s %-30s %-10s %-10s %-20s\n",
			shortID, name, rule.Severity, rule.Version, formatTimeSince(rule.UpdatedAt))
	}

	fmt.Println(strings.Repeat("=", 100))
	fmt.Printf("Total: %d rules\n", len(rules))
}

// renderIndicatorsTable displays indicators in a formatted table.
func renderIndicatorsTable(indicators []core.Indicator) {
	if len(indicators) == 0 {
		warningColor.Println("No indicators found")
		return
	}

	headerColor.Println("INDICATORS")
	headerColor.Println(strings.Repeat("=", 110))
	fmt.Printf("%-10s %-10s %-40s %-12s %-15s\n",
		"ID", "Type", "Value", "Confidence", "Last Seen")
	fmt.Println(strings.Repeat("-", 110))

	for _, ind := range indicators {
		shortID := ind.ID
		if len(shortID) > 8 {
			shortID = shortID[:8]
		}

		value := ind.Value
		if len(value) > 39 {
			value = value[:36] + "..."
		}

		fmt.Printf("%-10s %-10s %-40s %-12.2f %-15s\n",
			shortID, ind.Type, value, ind.Confidence, formatTimeSince(ind.LastSeen))
	}

	fmt.Println(strings.Repeat("=", 110))
	fmt.Printf("Total: %d indicators\n", len(indicators))
}

// renderStats displays store record counts.
func renderStats(stats *storage.StoreStats) {
	headerColor.Println("STORE STATISTICS")
	headerColor.Println(strings.Repeat("=", 40))
	fmt.Printf("%-20s %d\n", "Rules:", stats.RuleCount)
	fmt.Printf("%-20s %d\n", "Rule metadata:", stats.MetadataCount)
	fmt.Printf("%-20s %d\n", "Indicators:", stats.IndicatorCount)
	fmt.Println(strings.Repeat("=", 40))
	fmt.Printf("As of %s\n", stats.ComputedAt.Format(time.RFC3339))
}

// formatTimeSince renders a timestamp as a human relative duration.
func formatTimeSince(t time.Time) string {
	if t.IsZero() {
		return "Never"
	}

	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

package main

import (
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/apexai/apex/internal/aggregate"
	"github.com/apexai/apex/internal/storage"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

const lineTextRunes = 60

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

func printSuccess(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorGreen, "✓ "+msg))
}

func printError(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorRed, "✗ "+msg))
}

func printWarning(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorYellow, "⚠ "+msg))
}

func printStatus(label string, format string, args ...any) {
	val := fmt.Sprintf(format, args...)
	l := colorize(colorBold, label+":")
	fmt.Fprintf(os.Stderr, "  %s %s\n", l, val)
}

func printStep(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorCyan, "→ "+msg))
}

func sentimentColor(s storage.Sentiment) string {
	switch s {
	case storage.SentimentPositive:
		return colorGreen
	case storage.SentimentNegative:
		return colorRed
	default:
		return colorYellow
	}
}

// truncate shortens s to n runes, appending "..." when cut.
func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}

// printRecord prints one classified record in full.
func printRecord(r storage.FeedbackRecord) {
	fmt.Printf("%s %s  score %.2f  %s\n",
		colorize(sentimentColor(r.Sentiment), string(r.Sentiment)),
		colorize(colorBold, r.Summary), r.Score, r.Language)
	if len(r.Keywords) > 0 {
		fmt.Printf("  Keywords: %s\n", strings.Join(r.Keywords, ", "))
	}
	if r.ActionableInsight != "" {
		fmt.Printf("  Insight:  %s\n", r.ActionableInsight)
	}
	if r.SourcePreview != "" {
		fmt.Printf("  Preview:  %s\n", truncate(r.SourcePreview, lineTextRunes))
	}
	fmt.Printf("  ID:       %s\n", r.ID)
}

// printRecordLine prints a record as one list row.
func printRecordLine(r storage.FeedbackRecord) {
	fmt.Printf("%s  %-8s %s  %s\n",
		r.Timestamp.Local().Format("2006-01-02 15:04"),
		colorize(sentimentColor(r.Sentiment), string(r.Sentiment)),
		colorize(colorCyan, string(r.Origin)),
		truncate(r.OriginalText, lineTextRunes))
}

func printDashboard(d aggregate.Dashboard) {
	s := d.Stats
	fmt.Println(colorize(colorBold, "Overview"))
	fmt.Printf("  Total:    %d\n", s.TotalFeedbacks)
	fmt.Printf("  Average:  %.2f\n", s.AverageScore)
	for _, c := range d.Sentiments {
		fmt.Printf("  %-9s %d\n", colorize(sentimentColor(c.Name), string(c.Name)+":"), c.Value)
	}

	if len(d.Languages) > 0 {
		fmt.Println(colorize(colorBold, "Languages"))
		for _, l := range d.Languages {
			fmt.Printf("  %-12s %d\n", l.Name, l.Value)
		}
	}

	if len(d.Trend) > 0 {
		fmt.Println(colorize(colorBold, "Score trend"))
		for _, p := range d.Trend {
			fmt.Printf("  %s  %s %d\n", p.Time, strings.Repeat("▇", p.Score/10), p.Score)
		}
	}

	if len(d.Keywords) > 0 {
		fmt.Println(colorize(colorBold, "Keywords"))
		fmt.Printf("  %s\n", strings.Join(d.Keywords, ", "))
	}

	if len(d.PainPoints) > 0 {
		fmt.Println(colorize(colorBold, "Pain points"))
		for _, r := range d.PainPoints {
			fmt.Printf("  - %s (%s)\n", r.Summary, truncate(r.ActionableInsight, lineTextRunes))
		}
	}
}

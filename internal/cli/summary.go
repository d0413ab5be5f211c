package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/rshade/varbatch/internal/config"
	"github.com/rshade/varbatch/internal/engine/batch"
	"github.com/rshade/varbatch/internal/engine/dispatch"
)

const summaryBoxWidth = 48

// runSummary is what the annotate command reports after a successful run.
type runSummary struct {
	Annotator        string
	Mode             string
	Records          int
	Chunks           int
	Elapsed          time.Duration
	RecordsPerSecond float64
	Workers          int
	MaxLive          int
	Warnings         int64
}

func buildSummary(p batch.ProgressSnapshot, s dispatch.Stats, warnings int64, cfg *config.Config) runSummary {
	mode := "in-process"
	if cfg.Dispatch.Fork > 0 && !cfg.Dispatch.Sequential {
		mode = fmt.Sprintf("%d workers", cfg.Dispatch.Fork)
	}
	return runSummary{
		Annotator:        cfg.Annotation.Annotator,
		Mode:             mode,
		Records:          p.ProcessedRecords,
		Chunks:           p.ProcessedChunks,
		Elapsed:          p.ElapsedTime,
		RecordsPerSecond: p.RecordsPerSecond,
		Workers:          s.Spawned,
		MaxLive:          s.MaxLive,
		Warnings:         warnings,
	}
}

// summaryLines returns label/value pairs with numbers grouped for English.
func summaryLines(s runSummary) [][2]string {
	p := message.NewPrinter(language.English)
	lines := [][2]string{
		{"Annotator", s.Annotator},
		{"Mode", s.Mode},
		{"Records", p.Sprintf("%d", s.Records)},
		{"Chunks", p.Sprintf("%d", s.Chunks)},
		{"Elapsed", s.Elapsed.Round(time.Millisecond).String()},
		{"Throughput", p.Sprintf("%.0f records/s", s.RecordsPerSecond)},
	}
	if s.Workers > 0 {
		lines = append(lines,
			[2]string{"Workers spawned", p.Sprintf("%d", s.Workers)},
			[2]string{"Max live workers", p.Sprintf("%d", s.MaxLive)},
		)
	}
	if s.Warnings > 0 {
		lines = append(lines, [2]string{"Worker warnings", p.Sprintf("%d", s.Warnings)})
	}
	return lines
}

// renderSummary writes the run summary, boxed and colored when styled.
func renderSummary(w io.Writer, s runSummary, styled bool) {
	lines := summaryLines(s)
	if !styled {
		for _, l := range lines {
			_, _ = fmt.Fprintf(w, "%-17s %s\n", l[0]+":", l[1])
		}
		return
	}

	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	labelStyle := lipgloss.NewStyle().Bold(true)
	warnStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	boxStyle := lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1).
		Width(summaryBoxWidth)

	var content strings.Builder
	content.WriteString(titleStyle.Render("ANNOTATION COMPLETE"))
	for _, l := range lines {
		value := l[1]
		if l[0] == "Worker warnings" {
			value = warnStyle.Render(value)
		}
		content.WriteString("\n")
		content.WriteString(labelStyle.Render(fmt.Sprintf("%-17s", l[0]+":")))
		content.WriteString(" ")
		content.WriteString(value)
	}
	_, _ = fmt.Fprintln(w, boxStyle.Render(content.String()))
}

// Package tui renders live terminal views for long-running commands.
package tui

import (
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const (
	defaultBarWidth = 40
	minBarWidth     = 10
	statsPadding    = 2
)

// AnnotateProgressMsg reports one written chunk. Fraction is the share of the
// input consumed so far, in [0,1].
type AnnotateProgressMsg struct {
	Fraction         float64
	Records          int
	Chunks           int
	RecordsPerSecond float64
	Elapsed          time.Duration
}

// AnnotateDoneMsg ends the progress view.
type AnnotateDoneMsg struct{}

var statsStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))

// AnnotateProgressModel shows a progress bar with record throughput.
type AnnotateProgressModel struct {
	bar     progress.Model
	last    AnnotateProgressMsg
	done    bool
	printer *message.Printer
}

// NewAnnotateProgressModel creates the model for the annotate command.
func NewAnnotateProgressModel() AnnotateProgressModel {
	return AnnotateProgressModel{
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithWidth(defaultBarWidth)),
		printer: message.NewPrinter(language.English),
	}
}

// Init implements tea.Model.
func (m AnnotateProgressModel) Init() tea.Cmd { return nil }

// Update implements tea.Model.
func (m AnnotateProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case AnnotateProgressMsg:
		msg.Fraction = min(max(msg.Fraction, 0), 1)
		m.last = msg
		return m, nil
	case AnnotateDoneMsg:
		m.done = true
		m.last.Fraction = 1
		return m, tea.Quit
	case tea.WindowSizeMsg:
		m.bar.Width = max(min(msg.Width/2, defaultBarWidth), minBarWidth)
		return m, nil
	}
	return m, nil
}

// View implements tea.Model.
func (m AnnotateProgressModel) View() string {
	var b strings.Builder
	b.WriteString(m.bar.ViewAs(m.last.Fraction))
	b.WriteString(strings.Repeat(" ", statsPadding))
	b.WriteString(statsStyle.Render(m.printer.Sprintf("%d records, %d chunks, %.0f rec/s, %s",
		m.last.Records, m.last.Chunks, m.last.RecordsPerSecond, m.last.Elapsed.Round(time.Second))))
	b.WriteString("\n")
	return b.String()
}

// Done reports whether the view has finished.
func (m AnnotateProgressModel) Done() bool { return m.done }

// Fraction returns the fraction currently displayed.
func (m AnnotateProgressModel) Fraction() float64 { return m.last.Fraction }

// Package display formats retrieval results and answers for the terminal.
package display

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"pdfrag/internal/domain"
	"pdfrag/internal/index"
)

// Quality buckets a match distance.
type Quality int

const (
	Good Quality = iota
	Borderline
	Poor
)

func (q Quality) String() string {
	switch q {
	case Good:
		return "good"
	case Borderline:
		return "borderline"
	default:
		return "poor"
	}
}

// Thresholds are upper distance bounds, exclusive: scores below Good are
// good, scores below Borderline are borderline, anything else is poor.
type Thresholds struct {
	Good       float64
	Borderline float64
}

func (t Thresholds) Label(score float64) Quality {
	switch {
	case score < t.Good:
		return Good
	case score < t.Borderline:
		return Borderline
	default:
		return Poor
	}
}

// Preview flattens newlines and cuts text to n runes, appending "..." when
// something was cut.
func Preview(text string, n int) string {
	flat := strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(text)
	runes := []rune(flat)
	if n <= 0 || len(runes) <= n {
		return flat
	}
	return string(runes[:n]) + "..."
}

var (
	goodStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	borderlineStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	poorStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	sourceStyle     = lipgloss.NewStyle().Bold(true)
	dimStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errorStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	botStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Bold(true)
)

// Renderer turns session output into text.
type Renderer struct {
	thresholds   Thresholds
	previewChars int
}

func NewRenderer(t Thresholds, previewChars int) *Renderer {
	if previewChars <= 0 {
		previewChars = 200
	}
	return &Renderer{thresholds: t, previewChars: previewChars}
}

// Badge renders the quality label of score.
func (r *Renderer) Badge(score float64) string {
	q := r.thresholds.Label(score)
	switch q {
	case Good:
		return goodStyle.Render("✓ " + q.String())
	case Borderline:
		return borderlineStyle.Render("! " + q.String())
	default:
		return poorStyle.Render("✗ " + q.String())
	}
}

// Match renders one ranked result.
func (r *Renderer) Match(rank int, res domain.SearchResult) string {
	return fmt.Sprintf("  %d. %s - Score: %.3f %s\n     %q",
		rank, sourceStyle.Render(res.Chunk.Source), res.Score, r.Badge(res.Score),
		Preview(res.Chunk.Text, r.previewChars))
}

// Matches renders the ranked result list with a heading.
func (r *Renderer) Matches(results []domain.SearchResult) string {
	if len(results) == 0 {
		return dimStyle.Render("No matching passages.")
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Top %d similar passages:\n", len(results))
	for i, res := range results {
		sb.WriteString("\n")
		sb.WriteString(r.Match(i+1, res))
		sb.WriteString("\n")
	}
	return sb.String()
}

func (r *Renderer) Answer(answer string) string {
	return botStyle.Render("Bot:") + " " + answer
}

// Error renders err with its hint, if any.
func (r *Renderer) Error(err error) string {
	s := errorStyle.Render("Error:") + " " + err.Error()
	if hint := domain.HintOf(err); hint != "" {
		s += "\n" + dimStyle.Render(hint)
	}
	return s
}

// Banner describes the loaded index.
func (r *Renderer) Banner(m index.Manifest, model string, topK int) string {
	var sb strings.Builder
	sb.WriteString(sourceStyle.Render("PDF RAG Chatbot"))
	fmt.Fprintf(&sb, "\nIndex: %d chunks from %d file(s), embedder %s", m.Chunks, len(m.Sources), m.Embedder.Type)
	if m.Embedder.Model != "" {
		fmt.Fprintf(&sb, " (%s)", m.Embedder.Model)
	}
	for _, s := range m.Sources {
		line := fmt.Sprintf("  - %s: %d chunks", s.Name, s.Chunks)
		if s.Summary != "" {
			line += ". " + Preview(s.Summary, 120)
		}
		sb.WriteString("\n" + dimStyle.Render(line))
	}
	fmt.Fprintf(&sb, "\nReady! Using %s, retrieving top %d matches. Type 'exit' to quit.", model, topK)
	return sb.String()
}

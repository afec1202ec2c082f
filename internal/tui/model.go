// Package tui is the Bubble Tea front-end for a chat session.
package tui

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"pdfrag/internal/display"
	"pdfrag/internal/session"
	"pdfrag/internal/textutil"
)

// Submitter is the TUI-facing subset of a session.
type Submitter interface {
	Submit(ctx context.Context, input string) session.Outcome
}

// outcomeMsg carries a finished query back into Update.
type outcomeMsg session.Outcome

// Model is the Bubble Tea model for the chat TUI.
type Model struct {
	ctx        context.Context
	session    Submitter
	renderer   *display.Renderer
	input      textinput.Model
	viewport   viewport.Model
	spinner    spinner.Model
	banner     string
	status     string
	last       session.Outcome
	cursor     int
	processing bool
	ready      bool
}

// New creates a new TUI model instance. banner is shown above the results.
func New(ctx context.Context, s Submitter, r *display.Renderer, banner string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question and press Enter (exit to quit)"
	ti.Focus()
	ti.CharLimit = 0
	sp := spinner.New(spinner.WithSpinner(spinner.Dot))
	return Model{
		ctx:      ctx,
		session:  s,
		renderer: r,
		input:    ti,
		viewport: viewport.New(0, 0),
		spinner:  sp,
		banner:   banner,
		status:   "Ready. Type a question.",
	}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key and window events and updates the view state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		// account for frames around result and query boxes
		rw, rh := resultBoxStyle.GetFrameSize()
		qw, qh := queryBoxStyle.GetFrameSize()
		reserved := lipgloss.Height(m.banner) + 1 + qh + 1 + 1 // header, status, spacer
		m.viewport.Width = max(20, msg.Width-rw)
		m.input.Width = max(10, msg.Width-qw-len(m.input.Prompt)-1)
		m.viewport.Height = max(3, msg.Height-reserved-rh)
		m.viewport.SetContent(m.renderCurrent())
		return m, nil

	case outcomeMsg:
		m.processing = false
		m.last = session.Outcome(msg)
		m.cursor = 0
		switch m.last.Kind {
		case session.Failed:
			m.status = "Error: " + m.last.Err.Error()
		case session.Answered:
			m.status = fmt.Sprintf("%d match(es) for %q", len(m.last.Results), m.last.Query)
		}
		m.input.Focus()
		m.viewport.SetContent(m.renderCurrent())
		return m, nil

	case spinner.TickMsg:
		if !m.processing {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		// Global quits
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		if m.processing {
			return m, nil
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q == "" {
				return m, nil
			}
			m.input.Reset()
			if session.IsExit(q) {
				m.session.Submit(m.ctx, q)
				return m, tea.Quit
			}
			m.processing = true
			m.input.Blur()
			m.status = fmt.Sprintf("Searching for %q", q)
			return m, tea.Batch(m.spinner.Tick, m.query(q))
		case "down":
			if n := len(m.last.Results); n > 0 {
				m.cursor = (m.cursor + 1) % n
				m.viewport.SetContent(m.renderCurrent())
				return m, nil
			}
		case "up":
			if n := len(m.last.Results); n > 0 {
				m.cursor = (m.cursor - 1 + n) % n
				m.viewport.SetContent(m.renderCurrent())
				return m, nil
			}
		case "pgdown", "pgup":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) query(q string) tea.Cmd {
	ctx, s := m.ctx, m.session
	return func() tea.Msg {
		return outcomeMsg(s.Submit(ctx, q))
	}
}

// View renders the TUI layout and current result.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	status := statusStyle.Render(m.status)
	if m.processing {
		status = m.spinner.View() + " " + status
	}
	results := resultBoxStyle.Render(m.viewport.View())
	input := queryBoxStyle.Render(m.input.View())
	return m.banner + "\n" + results + "\n" + input + "\n" + status
}

// renderCurrent shows the answer followed by the selected match, with the
// sentence that best matches the query highlighted.
func (m Model) renderCurrent() string {
	o := m.last
	if o.Query == "" {
		return "No questions yet."
	}
	var sb strings.Builder
	if o.Kind == session.Answered {
		sb.WriteString(m.renderer.Answer(o.Answer))
		sb.WriteString("\n\n")
	} else if o.Err != nil {
		sb.WriteString(m.renderer.Error(o.Err))
		sb.WriteString("\n\n")
	}
	sb.WriteString(m.renderer.Matches(o.Results))
	if len(o.Results) == 0 {
		return sb.String()
	}
	r := o.Results[m.cursor]
	fmt.Fprintf(&sb, "\nMatch %d/%d  %s  score=%.3f %s  (up/down to browse)\n\n",
		m.cursor+1, len(o.Results), r.Chunk.Source, r.Score, m.renderer.Badge(r.Score))
	sb.WriteString(highlightBestSentence(r.Chunk.Text, o.Query))
	return sb.String()
}

var (
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	statusStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	sentenceRe     = regexp.MustCompile(`[^.!?]+[.!?]*`)
)

func highlightBestSentence(text, query string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	sentences := sentenceRe.FindAllString(text, -1)
	if len(sentences) == 0 {
		sentences = []string{strings.TrimSpace(text)}
	}
	qTokens := textutil.WordSet(query)
	bestIdx, bestScore := -1, 0
	for i, s := range sentences {
		if score := textutil.Shared(qTokens, textutil.WordSet(s)); score > bestScore {
			bestScore, bestIdx = score, i
		}
	}
	out := make([]string, 0, len(sentences))
	for i, s := range sentences {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if i == bestIdx {
			s = highlightStyle.Render(s)
		}
		out = append(out, s)
	}
	return strings.Join(out, " ")
}

// Run starts the TUI on the alternate screen and blocks until the user quits
// or ctx is cancelled.
func Run(ctx context.Context, s Submitter, r *display.Renderer, banner string) error {
	p := tea.NewProgram(New(ctx, s, r, banner), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("tui: %w", err)
	}
	return nil
}

package session

import "pdfrag/internal/domain"

// Turn is one answered question.
type Turn struct {
	Query   string
	Answer  string
	Results []domain.SearchResult
}

// History is the append-only conversation of a session.
type History struct {
	turns []Turn
}

func NewHistory() *History { return &History{} }

func (h *History) Append(t Turn) { h.turns = append(h.turns, t) }

func (h *History) Len() int {
	if h == nil {
		return 0
	}
	return len(h.turns)
}

// Last returns up to n most recent turns, oldest first.
func (h *History) Last(n int) []Turn {
	if h == nil || n <= 0 {
		return nil
	}
	if n > len(h.turns) {
		n = len(h.turns)
	}
	out := make([]Turn, n)
	copy(out, h.turns[len(h.turns)-n:])
	return out
}

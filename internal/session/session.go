// Package session implements the chat state machine shared by the line
// REPL and the TUI.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"pdfrag/internal/applog"
	"pdfrag/internal/domain"
)

type State int

const (
	AwaitingInput State = iota
	Processing
	Closed
)

func (s State) String() string {
	switch s {
	case AwaitingInput:
		return "awaiting input"
	case Processing:
		return "processing"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Retriever finds the chunks nearest to a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]domain.SearchResult, error)
}

// Answerer generates an answer from retrieved chunks.
type Answerer interface {
	Answer(ctx context.Context, history *History, query string, results []domain.SearchResult) (string, error)
}

type OutcomeKind int

const (
	Ignored OutcomeKind = iota
	Answered
	Failed
	Ended
)

// Outcome is the result of one Submit. Results may be set on a failed
// outcome when retrieval succeeded and generation did not.
type Outcome struct {
	Kind    OutcomeKind
	Query   string
	Results []domain.SearchResult
	Answer  string
	Err     error
}

// Session runs one query at a time.
type Session struct {
	retriever Retriever
	answerer  Answerer
	topK      int

	mu      sync.Mutex
	state   State
	history *History
}

func New(r Retriever, a Answerer, topK int) *Session {
	return &Session{retriever: r, answerer: a, topK: topK, history: NewHistory()}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) History() *History { return s.history }

// IsExit reports whether input ends the session.
func IsExit(input string) bool {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "exit", "quit":
		return true
	}
	return false
}

// Submit handles one line of user input. Query errors never close the
// session; only exit or quit does.
func (s *Session) Submit(ctx context.Context, input string) Outcome {
	query := strings.TrimSpace(input)

	s.mu.Lock()
	switch {
	case s.state == Closed:
		s.mu.Unlock()
		return Outcome{Kind: Ended}
	case s.state == Processing:
		s.mu.Unlock()
		return Outcome{Kind: Ignored, Query: query}
	case query == "":
		s.mu.Unlock()
		return Outcome{Kind: Ignored}
	case IsExit(query):
		s.state = Closed
		s.mu.Unlock()
		return Outcome{Kind: Ended, Query: query}
	}
	s.state = Processing
	s.mu.Unlock()

	out := s.process(ctx, query)

	s.mu.Lock()
	s.state = AwaitingInput
	if out.Kind == Answered {
		s.history.Append(Turn{Query: query, Answer: out.Answer, Results: out.Results})
	}
	s.mu.Unlock()
	return out
}

func (s *Session) process(ctx context.Context, query string) (out Outcome) {
	out = Outcome{Query: query}
	defer func() {
		if rec := recover(); rec != nil {
			applog.Error("[session] query panicked", "panic", rec)
			out.Kind = Failed
			out.Err = domain.NewError(domain.KindQuery, fmt.Sprintf("internal error: %v", rec), nil)
		}
	}()

	results, err := s.retriever.Retrieve(ctx, query, s.topK)
	if err != nil {
		out.Kind, out.Err = Failed, asQueryError(err)
		return out
	}
	out.Results = results

	answer, err := s.answerer.Answer(ctx, s.history, query, results)
	if err != nil {
		out.Kind, out.Err = Failed, asQueryError(err)
		return out
	}
	out.Kind, out.Answer = Answered, answer
	return out
}

func asQueryError(err error) error {
	var de *domain.Error
	if errors.As(err, &de) {
		return err
	}
	return domain.NewError(domain.KindQuery, "query failed", err)
}

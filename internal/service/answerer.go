package service

import (
	"context"
	"fmt"
	"strings"

	"pdfrag/internal/domain"
	"pdfrag/internal/llm"
	"pdfrag/internal/session"
)

const systemPrompt = "You are a helpful assistant. Answer the question using only the provided context from PDF documents. " +
	"If the context does not contain the information needed, say \"I don't know.\" or state clearly what is uncertain."

// Answerer asks the language model to answer from retrieved chunks.
type Answerer struct {
	llm          llm.Completer
	historyTurns int
}

// NewAnswerer creates an answerer that replays up to historyTurns previous
// turns to the model.
func NewAnswerer(completer llm.Completer, historyTurns int) *Answerer {
	return &Answerer{llm: completer, historyTurns: historyTurns}
}

// Answer makes one completion request for query.
func (a *Answerer) Answer(ctx context.Context, history *session.History, query string, results []domain.SearchResult) (string, error) {
	answer, err := a.llm.Complete(ctx, a.Messages(history, query, results))
	if err != nil {
		return "", domain.NewError(domain.KindQuery, "generate answer", err)
	}
	return answer, nil
}

// Messages builds the conversation sent to the model: the system prompt,
// recent turns, then the context blocks and question.
func (a *Answerer) Messages(history *session.History, query string, results []domain.SearchResult) []llm.Message {
	msgs := []llm.Message{{Role: llm.RoleSystem, Content: systemPrompt}}
	for _, t := range history.Last(a.historyTurns) {
		msgs = append(msgs,
			llm.Message{Role: llm.RoleUser, Content: t.Query},
			llm.Message{Role: llm.RoleAssistant, Content: t.Answer},
		)
	}
	return append(msgs, llm.Message{Role: llm.RoleUser, Content: userPrompt(query, results)})
}

func userPrompt(query string, results []domain.SearchResult) string {
	var sb strings.Builder
	sb.WriteString("Context:\n")
	if len(results) == 0 {
		sb.WriteString("(no matching passages)\n")
	}
	for i, r := range results {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "[%d] %s\n%s\n", i+1, r.Chunk.Source, r.Chunk.Text)
	}
	fmt.Fprintf(&sb, "\nQuestion: %s\n\nAnswer:", query)
	return sb.String()
}

var (
	_ session.Answerer  = (*Answerer)(nil)
	_ session.Retriever = (*Retriever)(nil)
)

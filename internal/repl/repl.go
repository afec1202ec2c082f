// Package repl runs a chat session over line-oriented input and output.
package repl

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"pdfrag/internal/display"
	"pdfrag/internal/session"
)

const maxLine = 1 << 20

// Run reads queries from in until exit, quit, end of input or ctx is done.
func Run(ctx context.Context, in io.Reader, out io.Writer, sess *session.Session, r *display.Renderer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLine)

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		fmt.Fprint(out, "\nYou: ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}

		o := sess.Submit(ctx, scanner.Text())
		switch o.Kind {
		case session.Ignored:
			continue
		case session.Ended:
			fmt.Fprintln(out, "Goodbye!")
			return nil
		}
		if len(o.Results) > 0 {
			fmt.Fprintln(out)
			fmt.Fprint(out, r.Matches(o.Results))
		}
		fmt.Fprintln(out)
		if o.Kind == session.Failed {
			fmt.Fprintln(out, r.Error(o.Err))
			fmt.Fprintln(out, "Please try again.")
			continue
		}
		fmt.Fprintln(out, r.Answer(o.Answer))
	}
}

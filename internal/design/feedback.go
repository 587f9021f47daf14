package design

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/nugget/designer-agent/internal/tools"
)

// StdinPrompter asks questions on a terminal. End of input is read as
// approval.
type StdinPrompter struct {
	out io.Writer

	mu     sync.Mutex
	reader *bufio.Reader
}

// NewStdinPrompter reads answers from in and writes questions to out.
// Nil selects os.Stdin and os.Stdout.
func NewStdinPrompter(in io.Reader, out io.Writer) *StdinPrompter {
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stdout
	}
	return &StdinPrompter{out: out, reader: bufio.NewReader(in)}
}

// Ask implements [tools.Prompter].
func (p *StdinPrompter) Ask(ctx context.Context, rc *tools.RunContext, question string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintln(p.out)
	fmt.Fprintln(p.out, question)
	if rc != nil && rc.Rendered != nil {
		fmt.Fprintf(p.out, "  slide: %s\n", rc.Rendered.Path)
		if rc.Rendered.BackgroundPath != "" {
			fmt.Fprintf(p.out, "  background: %s\n", rc.Rendered.BackgroundPath)
		}
	}
	fmt.Fprint(p.out, "> ")

	line, err := p.reader.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return "OK", nil
	}
	return line, nil
}

// AutoPrompter approves every question without asking. Notify, when
// set, is told about each question, for callers that surface it.
type AutoPrompter struct {
	Notify func(rc *tools.RunContext, question string)
}

// Ask implements [tools.Prompter].
func (p AutoPrompter) Ask(_ context.Context, rc *tools.RunContext, question string) (string, error) {
	if p.Notify != nil {
		p.Notify(rc, question)
	}
	return "OK", nil
}

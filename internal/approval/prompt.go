package approval

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"

	"github.com/Iron-Ham/sprint/internal/sprint"
)

// PromptApprover asks an operator to approve each gate on a terminal.
// Prompts are serialized so concurrent gates never interleave.
type PromptApprover struct {
	mu          sync.Mutex
	in          *bufio.Reader
	out         io.Writer
	interactive bool
	pending     chan readResult // outstanding read left behind by a canceled prompt
}

type readResult struct {
	line string
	err  error
}

// NewPromptApprover creates a PromptApprover reading answers from in and
// writing prompts to out. When in is a file that is not a terminal, every
// gate is rejected instead of blocking on input that will never come.
func NewPromptApprover(in io.Reader, out io.Writer) *PromptApprover {
	interactive := true
	if f, ok := in.(*os.File); ok {
		interactive = term.IsTerminal(int(f.Fd()))
	}
	return &PromptApprover{
		in:          bufio.NewReader(in),
		out:         out,
		interactive: interactive,
	}
}

// ResolveGate prompts until the operator answers yes or no. Text after the
// answer is recorded as the reason, as in "no tests are still red".
func (p *PromptApprover) ResolveGate(ctx context.Context, gate sprint.ApprovalGate) (Decision, error) {
	if !p.interactive {
		return Decision{Approved: false, Reason: "approval required but input is not a terminal"}, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.out, "\nApproval gate %q reached (requires: %s)\n", gate.Stage, strings.Join(gate.Requires, ", "))
	if gate.Message != "" {
		fmt.Fprintf(p.out, "  %s\n", gate.Message)
	}

	for {
		fmt.Fprint(p.out, "Approve? [y/n]: ")

		line, err := p.readLine(ctx)
		if err != nil {
			return Decision{}, err
		}

		answer, reason, _ := strings.Cut(strings.TrimSpace(line), " ")
		switch strings.ToLower(answer) {
		case "y", "yes":
			return Decision{Approved: true, Reason: strings.TrimSpace(reason)}, nil
		case "n", "no":
			reason = strings.TrimSpace(reason)
			if reason == "" {
				reason = "rejected by operator"
			}
			return Decision{Approved: false, Reason: reason}, nil
		}
		fmt.Fprintln(p.out, "Please answer y or n.")
	}
}

// readLine reads one line without holding ctx hostage to a blocked read.
// A read abandoned by a canceled prompt is picked up by the next prompt.
// The caller must hold p.mu.
func (p *PromptApprover) readLine(ctx context.Context) (string, error) {
	if p.pending == nil {
		ch := make(chan readResult, 1)
		go func() {
			line, err := p.in.ReadString('\n')
			if err == io.EOF && line != "" {
				err = nil
			}
			ch <- readResult{line, err}
		}()
		p.pending = ch
	}

	select {
	case r := <-p.pending:
		p.pending = nil
		if r.err != nil {
			return "", fmt.Errorf("read approval answer: %w", r.err)
		}
		return r.line, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

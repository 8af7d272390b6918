package agent

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"text/template"
	"time"

	"github.com/Iron-Ham/sprint/internal/sprint"
)

// DefaultBlockedExitCode is the exit status an agent command uses to report
// that it is blocked (EX_TEMPFAIL).
const DefaultBlockedExitCode = 75

// waitDelay bounds how long Wait blocks on output pipes held open by
// grandchildren after the agent process exits or is killed.
const waitDelay = 2 * time.Second

// maxErrorOutput bounds how much command output is kept for error messages.
const maxErrorOutput = 2048

// CommandConfig configures a CommandExecutor.
type CommandConfig struct {
	// Commands maps an agent kind to a shell command template. Templates are
	// rendered with text/template against the sprint.Task being dispatched,
	// for example `agent-cli run --title {{printf "%q" .Title}}`.
	Commands map[sprint.AgentKind]string
	// DefaultCommand is used for agent kinds without an entry in Commands.
	DefaultCommand string
	// Shell runs the rendered command as `<Shell> -c <command>`. Defaults to "sh".
	Shell string
	// BlockedExitCode is the exit status reported as a blocked completion.
	BlockedExitCode int
	// Dir is the working directory for commands.
	Dir string
	// Env is appended to the current environment.
	Env []string
	// Output receives the combined output of every command, if set.
	Output io.Writer
}

// CommandExecutor runs each task as a local shell command. Exit status 0 is
// success, BlockedExitCode is blocked, and anything else is a failure.
type CommandExecutor struct {
	cfg       CommandConfig
	templates map[sprint.AgentKind]*template.Template
	fallback  *template.Template
	outputMu  sync.Mutex
}

// NewCommandExecutor parses the command templates in cfg.
func NewCommandExecutor(cfg CommandConfig) (*CommandExecutor, error) {
	if cfg.Shell == "" {
		cfg.Shell = "sh"
	}
	if cfg.BlockedExitCode == 0 {
		cfg.BlockedExitCode = DefaultBlockedExitCode
	}

	e := &CommandExecutor{
		cfg:       cfg,
		templates: make(map[sprint.AgentKind]*template.Template, len(cfg.Commands)),
	}
	for kind, text := range cfg.Commands {
		if !kind.Valid() {
			return nil, fmt.Errorf("command for unknown agent kind %q", kind)
		}
		tmpl, err := parseCommand(string(kind), text)
		if err != nil {
			return nil, err
		}
		e.templates[kind] = tmpl
	}
	if cfg.DefaultCommand != "" {
		tmpl, err := parseCommand("default", cfg.DefaultCommand)
		if err != nil {
			return nil, err
		}
		e.fallback = tmpl
	}
	return e, nil
}

func parseCommand(name, text string) (*template.Template, error) {
	tmpl, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("invalid command template for %s: %w", name, err)
	}
	return tmpl, nil
}

// Render returns the shell command that would run for task.
func (e *CommandExecutor) Render(task sprint.Task) (string, error) {
	tmpl := e.templates[task.Agent]
	if tmpl == nil {
		tmpl = e.fallback
	}
	if tmpl == nil {
		return "", fmt.Errorf("no command configured for agent %q", task.Agent)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, task); err != nil {
		return "", fmt.Errorf("render command for task %s: %w", task.ID, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// Dispatch starts the command for task. It returns once the process has
// started.
func (e *CommandExecutor) Dispatch(ctx context.Context, task sprint.Task, events chan<- Completion) (Handle, error) {
	line, err := e.Render(task)
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, e.cfg.Shell, "-c", line)
	cmd.Dir = e.cfg.Dir
	cmd.WaitDelay = waitDelay
	cmd.Env = append(os.Environ(), e.cfg.Env...)
	cmd.Env = append(cmd.Env,
		"SPRINT_TASK_ID="+task.ID,
		"SPRINT_TASK_TITLE="+task.Title,
		"SPRINT_AGENT="+string(task.Agent),
		"SPRINT_TASK_DURATION="+task.Duration,
	)

	tail := &tailBuffer{max: maxErrorOutput}
	var out io.Writer = tail
	if e.cfg.Output != nil {
		out = io.MultiWriter(tail, &lockedWriter{mu: &e.outputMu, w: e.cfg.Output})
	}
	cmd.Stdout = out
	cmd.Stderr = out

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start command for task %s: %w", task.ID, err)
	}

	h := &commandHandle{cmd: cmd}
	go func() {
		waitErr := cmd.Wait()
		events <- e.completion(task.ID, waitErr, h.abortReason(), tail.String())
	}()
	return h, nil
}

func (e *CommandExecutor) completion(taskID string, waitErr error, aborted, output string) Completion {
	if aborted != "" {
		return Failed(taskID, "aborted: "+aborted)
	}
	if waitErr == nil {
		return Succeeded(taskID)
	}

	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) && exitErr.ExitCode() == e.cfg.BlockedExitCode {
		return Blocked(taskID, withOutput("agent reported blocked", output))
	}
	return Failed(taskID, withOutput(waitErr.Error(), output))
}

func withOutput(msg, output string) string {
	output = strings.TrimSpace(output)
	if output == "" {
		return msg
	}
	return msg + ": " + output
}

type commandHandle struct {
	cmd    *exec.Cmd
	mu     sync.Mutex
	reason string
}

func (h *commandHandle) Abort(reason string) error {
	h.mu.Lock()
	if h.reason == "" {
		if reason == "" {
			reason = "aborted"
		}
		h.reason = reason
	}
	h.mu.Unlock()

	if h.cmd.Process == nil {
		return nil
	}
	if err := h.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("kill agent process: %w", err)
	}
	return nil
}

func (h *commandHandle) abortReason() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.reason
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}

// lockedWriter serializes writes from concurrent commands to one writer.
type lockedWriter struct {
	mu *sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

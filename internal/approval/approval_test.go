package approval

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Iron-Ham/sprint/internal/sprint"
)

func testGate() sprint.ApprovalGate {
	return sprint.ApprovalGate{
		Stage:    "after-implementation",
		Requires: []string{"API-001", "UI-001"},
		Message:  "Review the implementation before testing",
	}
}

func TestAutoApprovers(t *testing.T) {
	ctx := context.Background()

	d, err := AutoApprove().ResolveGate(ctx, testGate())
	if err != nil || !d.Approved {
		t.Errorf("AutoApprove() = %+v, %v; want approved", d, err)
	}

	d, err = AutoReject("").ResolveGate(ctx, testGate())
	if err != nil || d.Approved {
		t.Errorf("AutoReject() = %+v, %v; want rejected", d, err)
	}
	if d.Reason != "auto-rejected" {
		t.Errorf("Reason = %q, want default reason", d.Reason)
	}

	d, _ = AutoReject("frozen").ResolveGate(ctx, testGate())
	if d.Reason != "frozen" {
		t.Errorf("Reason = %q, want %q", d.Reason, "frozen")
	}
}

func TestFunc(t *testing.T) {
	var got string
	a := Func(func(_ context.Context, g sprint.ApprovalGate) (Decision, error) {
		got = g.Stage
		return Decision{}, errors.New("unavailable")
	})

	if _, err := a.ResolveGate(context.Background(), testGate()); err == nil {
		t.Error("expected error from Func")
	}
	if got != "after-implementation" {
		t.Errorf("Func saw stage %q", got)
	}
}

func TestPromptApprover(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		approved   bool
		reason     string
		reprompted bool
	}{
		{name: "yes", input: "y\n", approved: true},
		{name: "long yes", input: "YES looks good\n", approved: true, reason: "looks good"},
		{name: "no", input: "n\n", approved: false, reason: "rejected by operator"},
		{name: "no with reason", input: "no tests are still red\n", approved: false, reason: "tests are still red"},
		{name: "reprompt", input: "maybe\ny\n", approved: true, reprompted: true},
		{name: "no trailing newline", input: "y", approved: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			p := NewPromptApprover(strings.NewReader(tt.input), &out)

			d, err := p.ResolveGate(context.Background(), testGate())
			if err != nil {
				t.Fatalf("ResolveGate() error = %v", err)
			}
			if d.Approved != tt.approved {
				t.Errorf("Approved = %v, want %v", d.Approved, tt.approved)
			}
			if d.Reason != tt.reason {
				t.Errorf("Reason = %q, want %q", d.Reason, tt.reason)
			}
			if !strings.Contains(out.String(), `"after-implementation"`) {
				t.Errorf("prompt output missing stage: %q", out.String())
			}
			if got := strings.Contains(out.String(), "Please answer y or n."); got != tt.reprompted {
				t.Errorf("reprompted = %v, want %v", got, tt.reprompted)
			}
		})
	}
}

func TestPromptApprover_EOF(t *testing.T) {
	p := NewPromptApprover(strings.NewReader(""), &bytes.Buffer{})
	if _, err := p.ResolveGate(context.Background(), testGate()); err == nil {
		t.Error("expected error on empty input")
	}
}

func TestPromptApprover_NonTerminal(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe() error = %v", err)
	}
	defer r.Close()
	defer w.Close()

	var out bytes.Buffer
	p := NewPromptApprover(r, &out)

	d, err := p.ResolveGate(context.Background(), testGate())
	if err != nil {
		t.Fatalf("ResolveGate() error = %v", err)
	}
	if d.Approved {
		t.Error("non-terminal input should reject")
	}
	if out.Len() != 0 {
		t.Errorf("non-terminal approver should not prompt, wrote %q", out.String())
	}
}

func TestPromptApprover_ContextCanceled(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe() error = %v", err)
	}
	defer r.Close()
	defer w.Close()

	// Construct directly so the pipe is treated as interactive.
	p := NewPromptApprover(nil, &bytes.Buffer{})
	p.in.Reset(r)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.ResolveGate(ctx, testGate()); !errors.Is(err, context.Canceled) {
		t.Fatalf("ResolveGate() error = %v, want context.Canceled", err)
	}

	// The abandoned read is picked up by the next prompt.
	if _, err := w.WriteString("yes\n"); err != nil {
		t.Fatalf("write: %v", err)
	}
	d, err := p.ResolveGate(context.Background(), testGate())
	if err != nil {
		t.Fatalf("ResolveGate() error = %v", err)
	}
	if !d.Approved {
		t.Error("expected approval from the pending read")
	}
}

func TestMarkerName(t *testing.T) {
	tests := []struct {
		stage string
		want  string
	}{
		{"after-implementation", "after-implementation"},
		{"release v1.2", "release_v1.2"},
		{"../escape", ".._escape"},
	}
	for _, tt := range tests {
		if got := MarkerName(tt.stage); got != tt.want {
			t.Errorf("MarkerName(%q) = %q, want %q", tt.stage, got, tt.want)
		}
	}
}

func newFileApprover(t *testing.T) *FileApprover {
	t.Helper()
	f, err := NewFileApprover(filepath.Join(t.TempDir(), "approvals"), nil)
	if err != nil {
		t.Fatalf("NewFileApprover() error = %v", err)
	}
	return f
}

func TestFileApprover_ExistingMarker(t *testing.T) {
	tests := []struct {
		name     string
		files    map[string]string
		approved bool
		reason   string
	}{
		{
			name:     "approve",
			files:    map[string]string{"after-implementation.approve": "ship it\n"},
			approved: true,
			reason:   "ship it",
		},
		{
			name:     "reject without reason",
			files:    map[string]string{"after-implementation.reject": ""},
			approved: false,
			reason:   "rejected by marker file",
		},
		{
			name: "reject wins",
			files: map[string]string{
				"after-implementation.approve": "",
				"after-implementation.reject":  "not yet",
			},
			approved: false,
			reason:   "not yet",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFileApprover(t)
			for name, content := range tt.files {
				if err := os.WriteFile(filepath.Join(f.Dir(), name), []byte(content), 0644); err != nil {
					t.Fatal(err)
				}
			}

			d, err := f.ResolveGate(context.Background(), testGate())
			if err != nil {
				t.Fatalf("ResolveGate() error = %v", err)
			}
			if d.Approved != tt.approved || d.Reason != tt.reason {
				t.Errorf("ResolveGate() = %+v, want approved=%v reason=%q", d, tt.approved, tt.reason)
			}
			if _, err := os.Stat(filepath.Join(f.Dir(), "after-implementation.request")); !os.IsNotExist(err) {
				t.Error("request file should be removed once resolved")
			}
		})
	}
}

func TestFileApprover_MarkerAfterRequest(t *testing.T) {
	f := newFileApprover(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	runErr := make(chan error, 1)
	go func() { runErr <- f.Run(ctx) }()

	type result struct {
		d   Decision
		err error
	}
	done := make(chan result, 1)
	go func() {
		d, err := f.ResolveGate(ctx, testGate())
		done <- result{d, err}
	}()

	request := filepath.Join(f.Dir(), "after-implementation.request")
	waitFor(t, func() bool {
		_, err := os.Stat(request)
		return err == nil
	})

	data, err := os.ReadFile(request)
	if err != nil {
		t.Fatalf("read request: %v", err)
	}
	if !strings.Contains(string(data), "API-001, UI-001") {
		t.Errorf("request file = %q, want required tasks", data)
	}

	if err := os.WriteFile(filepath.Join(f.Dir(), "after-implementation.approve"), []byte("lgtm"), 0644); err != nil {
		t.Fatal(err)
	}

	select {
	case r := <-done:
		if r.err != nil {
			t.Fatalf("ResolveGate() error = %v", r.err)
		}
		if !r.d.Approved || r.d.Reason != "lgtm" {
			t.Errorf("ResolveGate() = %+v, want approved with reason lgtm", r.d)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for the approval marker")
	}

	cancel()
	if err := <-runErr; err != nil {
		t.Errorf("Run() error = %v", err)
	}
}

func TestFileApprover_ContextCanceled(t *testing.T) {
	f := newFileApprover(t)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := f.ResolveGate(ctx, testGate()); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("ResolveGate() error = %v, want deadline exceeded", err)
	}
}

func TestNewFileApprover_RemovesStaleMarkers(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "approvals")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	stale := []string{
		"after-implementation.approve",
		"after-implementation.reject",
		"after-implementation.request",
	}
	for _, name := range stale {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("previous run"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	keep := filepath.Join(dir, "API-001.unblock")
	if err := os.WriteFile(keep, nil, 0644); err != nil {
		t.Fatal(err)
	}

	f, err := NewFileApprover(dir, nil)
	if err != nil {
		t.Fatalf("NewFileApprover() error = %v", err)
	}
	for _, name := range stale {
		if _, err := os.Stat(filepath.Join(dir, name)); !os.IsNotExist(err) {
			t.Errorf("%s should have been removed", name)
		}
	}
	if _, err := os.Stat(keep); err != nil {
		t.Errorf("unrelated file removed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if d, err := f.ResolveGate(ctx, testGate()); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("ResolveGate() = %+v, %v; want to keep waiting", d, err)
	}
}

func TestNewFileApprover_RequiresDir(t *testing.T) {
	if _, err := NewFileApprover("", nil); err == nil {
		t.Error("expected error for empty directory")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

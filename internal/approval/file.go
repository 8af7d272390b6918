package approval

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/Iron-Ham/sprint/internal/logging"
	"github.com/Iron-Ham/sprint/internal/sprint"
)

// Marker file suffixes understood by FileApprover.
const (
	ApproveSuffix = ".approve"
	RejectSuffix  = ".reject"
	RequestSuffix = ".request"
)

var unsafeStageChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// MarkerName returns the file name stem used for stage, with characters that
// are unsafe in file names replaced by underscores.
func MarkerName(stage string) string {
	return unsafeStageChars.ReplaceAllString(stage, "_")
}

// FileApprover resolves gates from marker files in a directory. For a gate
// with stage "review" it writes review.request describing the gate, then
// waits for review.approve or review.reject to appear. The marker's contents,
// if any, become the decision reason. A reject marker wins over an approve
// marker.
//
// Run must be running for markers created after a request to be noticed.
type FileApprover struct {
	dir    string
	logger *logging.Logger

	mu      sync.Mutex
	waiters map[string][]chan Decision
}

// NewFileApprover creates the directory if needed and returns an approver
// watching it. Marker and request files left in the directory by an earlier
// run are removed, so only markers created for this approver decide a gate.
func NewFileApprover(dir string, logger *logging.Logger) (*FileApprover, error) {
	if dir == "" {
		return nil, fmt.Errorf("approval directory is required")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create approval directory: %w", err)
	}
	if logger == nil {
		logger = logging.NopLogger()
	}
	f := &FileApprover{
		dir:     dir,
		logger:  logger.WithComponent("approval"),
		waiters: make(map[string][]chan Decision),
	}
	if err := f.clearStale(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *FileApprover) clearStale() error {
	for _, suffix := range []string{ApproveSuffix, RejectSuffix, RequestSuffix} {
		matches, err := filepath.Glob(filepath.Join(f.dir, "*"+suffix))
		if err != nil {
			return fmt.Errorf("scan approval directory: %w", err)
		}
		for _, path := range matches {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("remove stale marker: %w", err)
			}
			f.logger.Debug("removed stale approval marker", "path", path)
		}
	}
	return nil
}

// Dir returns the watched directory.
func (f *FileApprover) Dir() string {
	return f.dir
}

// Run watches the directory until ctx is done.
func (f *FileApprover) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(f.dir); err != nil {
		return fmt.Errorf("watch %s: %w", f.dir, err)
	}

	// Markers may have landed before the watch was in place.
	f.notifyAll()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) || ev.Has(fsnotify.Rename) {
				f.notify(markerStem(filepath.Base(ev.Name)))
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			f.logger.Warn("approval watcher error", "error", err.Error())
		}
	}
}

// ResolveGate publishes a request file and waits for a marker.
func (f *FileApprover) ResolveGate(ctx context.Context, gate sprint.ApprovalGate) (Decision, error) {
	stem := MarkerName(gate.Stage)
	ch := make(chan Decision, 1)

	f.mu.Lock()
	f.waiters[stem] = append(f.waiters[stem], ch)
	f.mu.Unlock()
	defer f.removeWaiter(stem, ch)

	if err := f.writeRequest(stem, gate); err != nil {
		return Decision{}, err
	}
	defer os.Remove(filepath.Join(f.dir, stem+RequestSuffix))

	f.logger.Info("waiting for approval marker", "stage", gate.Stage,
		"approve", filepath.Join(f.dir, stem+ApproveSuffix),
		"reject", filepath.Join(f.dir, stem+RejectSuffix))

	if d, ok := f.read(stem); ok {
		return d, nil
	}

	select {
	case d := <-ch:
		return d, nil
	case <-ctx.Done():
		return Decision{}, ctx.Err()
	}
}

func (f *FileApprover) writeRequest(stem string, gate sprint.ApprovalGate) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "stage: %s\n", gate.Stage)
	fmt.Fprintf(&sb, "requires: %s\n", strings.Join(gate.Requires, ", "))
	if gate.Message != "" {
		fmt.Fprintf(&sb, "message: %s\n", gate.Message)
	}
	fmt.Fprintf(&sb, "approve by creating %s%s, reject with %s%s\n", stem, ApproveSuffix, stem, RejectSuffix)

	path := filepath.Join(f.dir, stem+RequestSuffix)
	if err := os.WriteFile(path, []byte(sb.String()), 0644); err != nil {
		return fmt.Errorf("write approval request: %w", err)
	}
	return nil
}

func (f *FileApprover) removeWaiter(stem string, ch chan Decision) {
	f.mu.Lock()
	defer f.mu.Unlock()

	ws := f.waiters[stem]
	for i, w := range ws {
		if w == ch {
			f.waiters[stem] = append(ws[:i:i], ws[i+1:]...)
			break
		}
	}
	if len(f.waiters[stem]) == 0 {
		delete(f.waiters, stem)
	}
}

func (f *FileApprover) notifyAll() {
	f.mu.Lock()
	stems := make([]string, 0, len(f.waiters))
	for stem := range f.waiters {
		stems = append(stems, stem)
	}
	f.mu.Unlock()

	for _, stem := range stems {
		f.notify(stem)
	}
}

func (f *FileApprover) notify(stem string) {
	if stem == "" {
		return
	}
	d, ok := f.read(stem)
	if !ok {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.waiters[stem] {
		select {
		case ch <- d:
		default:
		}
	}
}

// read returns the decision recorded by marker files for stem, if any.
func (f *FileApprover) read(stem string) (Decision, bool) {
	if reason, ok := readMarker(filepath.Join(f.dir, stem+RejectSuffix)); ok {
		if reason == "" {
			reason = "rejected by marker file"
		}
		return Decision{Approved: false, Reason: reason}, true
	}
	if reason, ok := readMarker(filepath.Join(f.dir, stem+ApproveSuffix)); ok {
		return Decision{Approved: true, Reason: reason}, true
	}
	return Decision{}, false
}

func readMarker(path string) (string, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(string(data)), true
}

func markerStem(name string) string {
	for _, suffix := range []string{ApproveSuffix, RejectSuffix} {
		if stem, ok := strings.CutSuffix(name, suffix); ok {
			return stem
		}
	}
	return ""
}

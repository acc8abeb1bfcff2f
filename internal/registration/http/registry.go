package registrationhttp

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/practicum-hub/practicum/internal/registration"
)

// WizardFactory builds the wizard of one browser session. The draft key must
// be scoped to sessionID so sessions never see each other's drafts.
type WizardFactory func(ctx context.Context, sessionID string) *registration.Wizard

// PickerFactory builds the program picker of one browser session.
type PickerFactory func() *registration.ProgramPicker

// Workspace is the per-session state: the registration wizard and the
// program picker of the curricular-rule screen.
type Workspace struct {
	Wizard   *registration.Wizard
	Programs *registration.ProgramPicker
}

type workspaceEntry struct {
	workspace Workspace
	lastSeen  time.Time
	active    int
}

// Registry keeps one Workspace per session. Idle workspaces are released by
// Sweep; their drafts stay in storage and are restored on the next visit.
type Registry struct {
	newWizard WizardFactory
	newPicker PickerFactory
	logger    *slog.Logger
	now       func() time.Time

	mu      sync.Mutex
	entries map[string]*workspaceEntry
}

// NewRegistry constructs a registry. newPicker may be nil.
func NewRegistry(newWizard WizardFactory, newPicker PickerFactory, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		newWizard: newWizard,
		newPicker: newPicker,
		logger:    logger,
		now:       time.Now,
		entries:   make(map[string]*workspaceEntry),
	}
}

// Acquire returns the workspace of sessionID, creating it on first use, and
// holds it until release is called. Sweep never releases a held workspace.
func (r *Registry) Acquire(ctx context.Context, sessionID string) (Workspace, func()) {
	r.mu.Lock()
	if entry, ok := r.entries[sessionID]; ok {
		ws := r.holdLocked(entry)
		r.mu.Unlock()
		return ws, r.releaser(entry)
	}
	r.mu.Unlock()

	// Restoring the draft reads storage, so the workspace is built unlocked.
	built := r.build(ctx, sessionID)

	r.mu.Lock()
	entry, ok := r.entries[sessionID]
	if !ok {
		entry = &workspaceEntry{workspace: built}
		r.entries[sessionID] = entry
	}
	ws := r.holdLocked(entry)
	r.mu.Unlock()

	if ok {
		built.close()
	}
	return ws, r.releaser(entry)
}

// Workspace returns the workspace of sessionID without holding it.
func (r *Registry) Workspace(ctx context.Context, sessionID string) Workspace {
	ws, release := r.Acquire(ctx, sessionID)
	release()
	return ws
}

func (r *Registry) build(ctx context.Context, sessionID string) Workspace {
	ws := Workspace{Wizard: r.newWizard(ctx, sessionID)}
	if r.newPicker != nil {
		ws.Programs = r.newPicker()
	}
	return ws
}

func (r *Registry) holdLocked(entry *workspaceEntry) Workspace {
	entry.active++
	entry.lastSeen = r.now()
	return entry.workspace
}

func (r *Registry) releaser(entry *workspaceEntry) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			entry.active--
			entry.lastSeen = r.now()
			r.mu.Unlock()
		})
	}
}

// Len returns the number of live workspaces.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Sweep releases workspaces idle for longer than idle and returns how many
// were released. Workspaces held through Acquire are skipped.
func (r *Registry) Sweep(idle time.Duration) int {
	r.mu.Lock()
	cutoff := r.now().Add(-idle)
	var released []Workspace
	for id, entry := range r.entries {
		if entry.active == 0 && entry.lastSeen.Before(cutoff) {
			released = append(released, entry.workspace)
			delete(r.entries, id)
		}
	}
	r.mu.Unlock()

	for _, ws := range released {
		ws.close()
	}
	if len(released) > 0 {
		r.logger.Debug("released idle registration workspaces", slog.Int("count", len(released)))
	}
	return len(released)
}

// Run sweeps every interval until ctx is done, then releases everything.
func (r *Registry) Run(ctx context.Context, interval, idle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.Close()
			return
		case <-ticker.C:
			r.Sweep(idle)
		}
	}
}

// Close releases every workspace.
func (r *Registry) Close() {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]*workspaceEntry)
	r.mu.Unlock()
	for _, entry := range entries {
		entry.workspace.close()
	}
}

func (ws Workspace) close() {
	if ws.Wizard != nil {
		ws.Wizard.Shutdown()
	}
	if ws.Programs != nil {
		ws.Programs.Close()
	}
}

// DraftKey scopes the draft storage key to a session.
func DraftKey(sessionID string) string {
	return registration.DraftKey + ":" + sessionID
}

// Package presence tracks which collaborators are currently connected to a
// note and where their cursors sit. State is process-local: it is empty after
// a restart and is not shared across instances.
package presence

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	defaultSweepInterval = 30 * time.Second
	defaultIdleTimeout   = 5 * time.Minute
)

// Cursor is the last reported editing position of a user on a note.
// Last write wins; there is no cross-session ordering guarantee beyond
// arrival order at this process.
type Cursor struct {
	Line      int    `json:"line"`
	Column    int    `json:"column"`
	Selection string `json:"selection,omitempty"`
}

type session struct {
	noteID     string
	userID     string
	lastSeenAt time.Time
}

// RegistryConfig configures the presence registry and its sweeper.
type RegistryConfig struct {
	SweepInterval time.Duration
	IdleTimeout   time.Duration
	Clock         func() time.Time
	Logger        *zap.Logger
}

// Registry is the in-memory session and cursor table shared by all
// concurrently executing operations. Every access goes through the mutex;
// the sweeper goroutine uses the same discipline.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*session
	cursors  map[string]map[string]Cursor
	// counts tracks live sessions per (note, user) so a multi-tab user's
	// cursor survives until the last session leaves.
	counts map[string]map[string]int

	clock       func() time.Time
	logger      *zap.Logger
	idleTimeout time.Duration

	done      chan struct{}
	closeOnce sync.Once
}

// NewRegistry constructs the registry and starts its sweep goroutine. Call
// Close at shutdown to stop the sweeper.
func NewRegistry(cfg RegistryConfig) *Registry {
	sweepInterval := cfg.SweepInterval
	if sweepInterval <= 0 {
		sweepInterval = defaultSweepInterval
	}
	idleTimeout := cfg.IdleTimeout
	if idleTimeout <= 0 {
		idleTimeout = defaultIdleTimeout
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	registry := &Registry{
		sessions:    make(map[string]*session),
		cursors:     make(map[string]map[string]Cursor),
		counts:      make(map[string]map[string]int),
		clock:       clock,
		logger:      logger,
		idleTimeout: idleTimeout,
		done:        make(chan struct{}),
	}
	go registry.runSweeper(sweepInterval)
	return registry
}

// Close stops the sweep goroutine. Idempotent.
func (r *Registry) Close() {
	r.closeOnce.Do(func() {
		close(r.done)
	})
}

// Join records a connection for (noteID, userID). An existing session with
// the same connection id is overwritten. Access control happens before this
// call; the registry itself trusts its inputs.
func (r *Registry) Join(noteID, userID, connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.sessions[connectionID]; ok {
		r.decrementCount(existing.noteID, existing.userID)
	}
	r.sessions[connectionID] = &session{
		noteID:     noteID,
		userID:     userID,
		lastSeenAt: r.clock(),
	}
	r.incrementCount(noteID, userID)
	if _, ok := r.cursors[noteID]; !ok {
		r.cursors[noteID] = make(map[string]Cursor)
	}
}

// Leave removes the session for a connection id. Unknown connection ids are
// silent no-ops: transport disconnects arrive more than once. The user's
// cursor on the note is cleared only when their last session leaves. It
// returns the (note, user) pair the session belonged to, when one existed.
func (r *Registry) Leave(connectionID string) (noteID, userID string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, found := r.sessions[connectionID]
	if !found {
		return "", "", false
	}
	delete(r.sessions, connectionID)
	remaining := r.decrementCount(current.noteID, current.userID)
	if remaining == 0 {
		r.clearCursor(current.noteID, current.userID)
	}
	return current.noteID, current.userID, true
}

// UpdateCursor refreshes the session's activity timestamp and overwrites the
// user's cursor on the note. Unknown connection ids are silent no-ops. It
// returns the (note, user) pair the cursor belongs to, when the session
// exists.
func (r *Registry) UpdateCursor(connectionID string, cursor Cursor) (noteID, userID string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, found := r.sessions[connectionID]
	if !found {
		return "", "", false
	}
	current.lastSeenAt = r.clock()
	if _, exists := r.cursors[current.noteID]; !exists {
		r.cursors[current.noteID] = make(map[string]Cursor)
	}
	r.cursors[current.noteID][current.userID] = cursor
	return current.noteID, current.userID, true
}

// Touch refreshes the session's activity timestamp. Heartbeats from unknown
// connection ids are silent no-ops.
func (r *Registry) Touch(connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.sessions[connectionID]; ok {
		current.lastSeenAt = r.clock()
	}
}

// IsUserActive reports whether the user holds at least one live session on
// the note.
func (r *Registry) IsUserActive(noteID, userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.counts[noteID][userID] > 0
}

// CursorOf returns the user's last reported cursor on the note, if any.
func (r *Registry) CursorOf(noteID, userID string) (Cursor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cursor, ok := r.cursors[noteID][userID]
	return cursor, ok
}

// SessionCount returns the number of live sessions across all notes.
func (r *Registry) SessionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.sessions)
}

func (r *Registry) runSweeper(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
			if evicted := r.sweep(); evicted > 0 {
				r.logger.Info("presence sweep evicted stale sessions",
					zap.Int("evicted", evicted))
			}
		}
	}
}

// sweep evicts every session idle longer than the timeout. It is the sole
// reclaim path for sessions abandoned without an explicit leave. Cursors are
// left in place; a stale cursor is harmless and gets overwritten on rejoin.
func (r *Registry) sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	deadline := r.clock().Add(-r.idleTimeout)
	evicted := 0
	for connectionID, current := range r.sessions {
		if current.lastSeenAt.After(deadline) {
			continue
		}
		delete(r.sessions, connectionID)
		r.decrementCount(current.noteID, current.userID)
		evicted++
	}
	return evicted
}

func (r *Registry) incrementCount(noteID, userID string) {
	if _, ok := r.counts[noteID]; !ok {
		r.counts[noteID] = make(map[string]int)
	}
	r.counts[noteID][userID]++
}

func (r *Registry) decrementCount(noteID, userID string) int {
	users := r.counts[noteID]
	if users == nil {
		return 0
	}
	users[userID]--
	remaining := users[userID]
	if remaining <= 0 {
		delete(users, userID)
		if len(users) == 0 {
			delete(r.counts, noteID)
		}
		return 0
	}
	return remaining
}

func (r *Registry) clearCursor(noteID, userID string) {
	users := r.cursors[noteID]
	if users == nil {
		return
	}
	delete(users, userID)
	if len(users) == 0 {
		delete(r.cursors, noteID)
	}
}

package heal

import (
	"context"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/xkilldash9x/suture/internal/store"
)

// History maps selectors that stopped resolving to the replacements that
// healed them, most recent success first. Entries are never evicted.
type History struct {
	mu      sync.RWMutex
	entries map[string][]string
	backend store.Backend
	logger  *zap.Logger
}

// NewHistory loads the persisted mapping from backend. Missing or unreadable
// storage yields an empty history; the failure is logged, not returned. A nil
// backend keeps history in memory only.
func NewHistory(ctx context.Context, backend store.Backend, logger *zap.Logger) *History {
	h := &History{
		entries: map[string][]string{},
		backend: backend,
		logger:  logger.Named("history"),
	}
	if backend == nil {
		return h
	}

	loaded, err := backend.Load(ctx)
	if err != nil {
		h.logger.Warn("Could not load selector history, starting empty",
			zap.String("backend", backend.Name()), zap.Error(err))
		return h
	}
	for original, replacements := range loaded {
		h.entries[original] = sanitizeReplacements(original, replacements)
	}
	h.logger.Debug("Loaded selector history",
		zap.String("backend", backend.Name()), zap.Int("selectors", len(h.entries)))
	return h
}

// sanitizeReplacements enforces the invariants on data read from storage,
// which may have been edited by hand.
func sanitizeReplacements(original string, replacements []string) []string {
	seen := make(map[string]bool, len(replacements))
	out := make([]string, 0, len(replacements))
	for _, r := range replacements {
		if r == "" || r == original || seen[r] {
			continue
		}
		seen[r] = true
		out = append(out, r)
	}
	return out
}

// Record puts healed at the front of original's replacements and persists the
// mapping. Recording a pair that is already present, or a selector mapping to
// itself, changes nothing. The in-memory mapping is updated even when
// persistence fails; the persistence error is returned for logging.
func (h *History) Record(ctx context.Context, original, healed string) error {
	original = strings.TrimSpace(original)
	healed = strings.TrimSpace(healed)
	if original == "" || healed == "" || original == healed {
		return nil
	}

	h.mu.Lock()
	for _, existing := range h.entries[original] {
		if existing == healed {
			h.mu.Unlock()
			return nil
		}
	}
	h.entries[original] = append([]string{healed}, h.entries[original]...)
	snapshot := h.snapshotLocked()
	h.mu.Unlock()

	if h.backend == nil {
		return nil
	}
	return h.backend.Persist(ctx, original, healed, snapshot)
}

// Lookup returns a copy of the replacements for original, or nil.
func (h *History) Lookup(original string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	r := h.entries[strings.TrimSpace(original)]
	if len(r) == 0 {
		return nil
	}
	return append([]string(nil), r...)
}

// Snapshot returns a deep copy of the whole mapping.
func (h *History) Snapshot() map[string][]string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.snapshotLocked()
}

func (h *History) snapshotLocked() map[string][]string {
	out := make(map[string][]string, len(h.entries))
	for k, v := range h.entries {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// Selectors lists the originals with recorded replacements, sorted.
func (h *History) Selectors() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	keys := make([]string, 0, len(h.entries))
	for k, v := range h.entries {
		if len(v) > 0 {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// Close releases the backend.
func (h *History) Close() error {
	if h.backend == nil {
		return nil
	}
	return h.backend.Close()
}

package vector

import (
	"context"
	"log/slog"
	"sync"
)

// Holder caches the current snapshot for readers. It loads on first use and
// reloads after Invalidate. Snapshots it hands out are read-only.
type Holder struct {
	store   *Store
	modelID string

	mu   sync.RWMutex
	snap *Snapshot
}

func NewHolder(store *Store, modelID string) *Holder {
	return &Holder{store: store, modelID: modelID}
}

func (h *Holder) Store() *Store { return h.store }

// Get returns the cached snapshot, loading it from the store if needed.
func (h *Holder) Get(ctx context.Context) (*Snapshot, error) {
	h.mu.RLock()
	snap := h.snap
	h.mu.RUnlock()
	if snap != nil {
		return snap, nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.snap != nil {
		return h.snap, nil
	}
	snap, err := h.store.Load(h.modelID)
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "index snapshot loaded", "generation", snap.Generation, "chunks", snap.Len(), "dimension", snap.Index.Dimension())
	h.snap = snap
	return snap, nil
}

// Set replaces the cached snapshot with one that was just persisted.
func (h *Holder) Set(snap *Snapshot) {
	h.mu.Lock()
	h.snap = snap
	h.mu.Unlock()
}

// Invalidate drops the cached snapshot; the next Get reloads from disk.
func (h *Holder) Invalidate() {
	h.mu.Lock()
	h.snap = nil
	h.mu.Unlock()
}

package board

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/silapakurthi/collabboard/pkg/store"
)

// Registry lazily creates and evicts per-board hubs, generalized from the
// teacher's ServerState.documents sync.Map + cleanupExpiredDocuments sweep
// (pkg/server/server.go) from one entry per document to one per board.
type Registry struct {
	st  *store.Store
	ctx context.Context

	mu   sync.Mutex
	hubs map[string]*Hub
}

// NewRegistry creates a registry bound to ctx: every hub it creates is torn
// down when ctx is canceled.
func NewRegistry(ctx context.Context, st *store.Store) *Registry {
	return &Registry{st: st, ctx: ctx, hubs: make(map[string]*Hub)}
}

// Get returns the hub for boardID, creating it on first use.
func (r *Registry) Get(boardID string) (*Hub, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if h, ok := r.hubs[boardID]; ok {
		return h, nil
	}

	h, err := newHub(r.ctx, boardID, r.st)
	if err != nil {
		return nil, err
	}
	r.hubs[boardID] = h
	return h, nil
}

// Drop forcibly closes and removes a hub, used when a board is deleted.
func (r *Registry) Drop(boardID string) {
	r.mu.Lock()
	h, ok := r.hubs[boardID]
	if ok {
		delete(r.hubs, boardID)
	}
	r.mu.Unlock()

	if ok {
		h.Close()
	}
}

// RunIdleSweeper evicts hubs with no subscribers that have been idle past
// idleTimeout, checking every sweepInterval, until ctx is done. Mirrors
// StartCleaner's ticker loop in the teacher's server.go.
func (r *Registry) RunIdleSweeper(ctx context.Context, sweepInterval, idleTimeout time.Duration) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep(idleTimeout)
		}
	}
}

func (r *Registry) sweep(idleTimeout time.Duration) {
	now := time.Now()

	r.mu.Lock()
	var staleIDs []string
	var staleHubs []*Hub
	for id, h := range r.hubs {
		if h.SubscriberCount() == 0 && now.Sub(h.LastActive()) > idleTimeout {
			staleIDs = append(staleIDs, id)
			staleHubs = append(staleHubs, h)
		}
	}
	for _, id := range staleIDs {
		delete(r.hubs, id)
	}
	r.mu.Unlock()

	if len(staleIDs) > 0 {
		log.Info().Strs("board_ids", staleIDs).Msg("evicting idle board hubs")
	}
	for _, h := range staleHubs {
		h.Close()
	}
}

// Count reports how many hubs are currently live.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.hubs)
}

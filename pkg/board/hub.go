// Package board implements the per-board hub (spec component C4): one
// actor per board that holds the authoritative in-memory view of its
// objects, serializes cascade-delete logic, and fans changes out to every
// connected subscriber in commit order.
//
// Grounded on the teacher's Kolabpad actor (pkg/server/kolabpad.go): a
// mutex-protected struct with a subscribers map and a broadcast() that
// drops messages on a full channel rather than blocking, generalized from
// one document's operation log to one board's live object set fed by the
// durable store's change bus.
package board

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/silapakurthi/collabboard/pkg/store"
)

const broadcastBufferSize = 64

// Hub is the live, in-memory view of one board plus its subscriber set.
// objects holds each live document's full field set, both so a newly
// subscribed client can be handed a complete snapshot and so cascade
// delete can find connectors referencing an endpoint without a store
// round-trip.
type Hub struct {
	boardID string
	st      *store.Store

	mu          sync.RWMutex
	objects     map[string]map[string]any
	subscribers map[int]chan store.ChangeEvent
	nextSub     int

	lastActive atomic64

	cancel  context.CancelFunc
	done    chan struct{}
	busDone func()
}

// atomic64 avoids importing sync/atomic's Int64 type name collision with
// package-level identifiers elsewhere; it is a thin wrapper used only for
// the idle-eviction clock.
type atomic64 struct {
	mu sync.Mutex
	t  time.Time
}

func (a *atomic64) set(t time.Time) {
	a.mu.Lock()
	a.t = t
	a.mu.Unlock()
}

func (a *atomic64) get() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.t
}

// newHub creates a hub and starts its bridge goroutine, which consumes the
// store's change stream for this board (snapshot, then live) and keeps the
// in-memory summary + subscriber fanout current.
func newHub(ctx context.Context, boardID string, st *store.Store) (*Hub, error) {
	hubCtx, cancel := context.WithCancel(ctx)

	h := &Hub{
		boardID:     boardID,
		st:          st,
		objects:     make(map[string]map[string]any),
		subscribers: make(map[int]chan store.ChangeEvent),
		done:        make(chan struct{}),
		cancel:      cancel,
	}
	h.lastActive.set(time.Now())

	events, busDone, err := st.Subscribe(hubCtx, boardID)
	if err != nil {
		cancel()
		return nil, err
	}
	h.busDone = busDone

	go h.run(events)
	return h, nil
}

func (h *Hub) run(events <-chan store.ChangeEvent) {
	defer close(h.done)
	for evt := range events {
		h.apply(evt)
	}
}

func (h *Hub) apply(evt store.ChangeEvent) {
	h.mu.Lock()
	switch evt.Kind {
	case store.Removed:
		delete(h.objects, evt.DocID)
	default:
		h.objects[evt.DocID] = evt.Fields
	}
	for _, ch := range h.subscribers {
		select {
		case ch <- evt:
		default:
			log.Warn().Str("board_id", h.boardID).Msg("subscriber channel full, dropping event")
		}
	}
	h.mu.Unlock()
}

// Subscribe registers a new local listener and returns its current
// snapshot followed by live events on the same channel, matching the
// store-level contract (spec §4.4) at hub granularity so every WebSocket
// connection gets one ordered stream regardless of how many hubs exist.
func (h *Hub) Subscribe() (<-chan store.ChangeEvent, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.lastActive.set(time.Now())

	ch := make(chan store.ChangeEvent, broadcastBufferSize+len(h.objects))
	for id, fields := range h.objects {
		ch <- store.ChangeEvent{Kind: store.Added, BoardID: h.boardID, DocID: id, Fields: fields}
	}

	id := h.nextSub
	h.nextSub++
	h.subscribers[id] = ch

	unsubscribe := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if existing, ok := h.subscribers[id]; ok {
			delete(h.subscribers, id)
			close(existing)
		}
	}
	return ch, unsubscribe
}

// Snapshot returns every live object's fields, each stamped with its id,
// for callers (the agent executor) that need a point-in-time read without
// opening a subscription.
func (h *Hub) Snapshot() []map[string]any {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]map[string]any, 0, len(h.objects))
	for id, fields := range h.objects {
		withID := make(map[string]any, len(fields)+1)
		for k, v := range fields {
			withID[k] = v
		}
		withID["id"] = id
		out = append(out, withID)
	}
	return out
}

// Put forwards a single write to the store (spec §4.2).
func (h *Hub) Put(ctx context.Context, w store.Write) (map[string]any, error) {
	h.lastActive.set(time.Now())
	return h.st.Put(ctx, w)
}

// Batch forwards an atomic batch of writes to the store.
func (h *Hub) Batch(ctx context.Context, writes []store.Write) error {
	h.lastActive.set(time.Now())
	return h.st.Batch(ctx, writes)
}

// DeleteCascading deletes docID, plus every connector whose connectedFrom
// or connectedTo points at it, as a single atomic batch (spec §3
// "deleting an endpoint object cascades to delete its connectors").
func (h *Hub) DeleteCascading(ctx context.Context, docID string) error {
	h.lastActive.set(time.Now())

	h.mu.RLock()
	writes := []store.Write{{BoardID: h.boardID, DocID: docID, Delete: true}}
	for id, fields := range h.objects {
		from, _ := fields["connectedFrom"].(string)
		to, _ := fields["connectedTo"].(string)
		if from == docID || to == docID {
			writes = append(writes, store.Write{BoardID: h.boardID, DocID: id, Delete: true})
		}
	}
	h.mu.RUnlock()

	return h.st.Batch(ctx, writes)
}

// LastActive reports when this hub last served a subscription or mutation,
// used by the registry's idle eviction sweep.
func (h *Hub) LastActive() time.Time {
	return h.lastActive.get()
}

// SubscriberCount reports how many local listeners are attached.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Close tears down the hub's bridge goroutine and closes every subscriber
// channel, mirroring Kolabpad.Kill.
func (h *Hub) Close() {
	h.cancel()
	<-h.done
	h.busDone()
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.subscribers {
		delete(h.subscribers, id)
		close(ch)
	}
}

// Package presence implements the ephemeral, high-frequency cursor/online
// tracker (spec component C5): throttled write admission, stale eviction,
// and live fanout, kept entirely out of the durable object store since its
// entries are disposable by design.
//
// Grounded on the pack's PresenceStore idiom (other_examples' Tether
// src/store/presence.go: RWMutex-backed map + watcher channels + a
// non-blocking broadcast) for the in-memory shape, buntdb for the
// TTL-backed physical storage the reaper sweeps, and
// adred-codev-ws_poc's ResourceGuard rate-limiter idiom for throttle
// admission.
package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/buntdb"
	"golang.org/x/time/rate"

	"github.com/silapakurthi/collabboard/pkg/ids"
	"github.com/silapakurthi/collabboard/pkg/model"
)

const (
	// KeepaliveInterval is the cadence a client is expected to refresh
	// lastSeen at even without moving the cursor.
	KeepaliveInterval = 20 * time.Second
	// ReapInterval is the reaper's ceiling cadence ("at most every 10s").
	ReapInterval = 10 * time.Second
)

var palette = []string{
	"#e6194b", "#3cb44b", "#ffe119", "#4363d8", "#f58231",
	"#911eb4", "#46f0f0", "#f032e6", "#bcf60c", "#fabebe",
	"#008080", "#e6beff", "#9a6324", "#800000", "#aaffc3",
}

// CursorColor deterministically maps a user id to a stable palette entry
// (spec §4.5): same user always gets the same color across sessions.
func CursorColor(userID string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return palette[h.Sum32()%uint32(len(palette))]
}

// Event is a presence change delivered to subscribers.
type Event struct {
	BoardID string
	UserID  string
	Entry   model.Presence
	Removed bool
}

// Tracker is a per-process ephemeral presence store. One Tracker is shared
// across all boards; entries are keyed by (boardId, userId).
type Tracker struct {
	db *buntdb.DB

	throttle     time.Duration
	staleDisplay time.Duration
	staleStore   time.Duration

	mu          sync.Mutex
	limiters    map[string]*rate.Limiter
	watchers    map[int]chan Event
	nextWatcher int
}

// New opens an in-memory buntdb index used purely for its TTL semantics —
// every key is set with buntdb.SetOptions{Expires: true, TTL: staleStore},
// so a crashed reaper still self-heals via buntdb's own background sweep.
// throttle bounds cursor-write admission (THROTTLE_MS), staleDisplay is the
// age past which clients stop rendering an entry (STALE), and staleStore is
// the age past which the reaper physically removes one (STALE_STORE).
func New(throttle, staleDisplay, staleStore time.Duration) (*Tracker, error) {
	db, err := buntdb.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("open presence index: %w", err)
	}
	return &Tracker{
		db:           db,
		throttle:     throttle,
		staleDisplay: staleDisplay,
		staleStore:   staleStore,
		limiters:     make(map[string]*rate.Limiter),
		watchers:     make(map[int]chan Event),
	}, nil
}

func (t *Tracker) Close() error {
	return t.db.Close()
}

func key(boardID, userID string) string {
	return boardID + "\x00" + userID
}

func (t *Tracker) limiterFor(boardID, userID string) *rate.Limiter {
	t.mu.Lock()
	defer t.mu.Unlock()
	k := key(boardID, userID)
	l, ok := t.limiters[k]
	if !ok {
		l = rate.NewLimiter(rate.Every(t.throttle), 1)
		t.limiters[k] = l
	}
	return l
}

// WriteCursor admits at most one cursor write per throttle interval per
// (board,user) (spec §4.5); a throttled call is dropped silently, matching
// the spec's "admits at most one write per THROTTLE_MS" and §9's "a
// throttled write older than the last admitted cursor is dropped".
func (t *Tracker) WriteCursor(boardID, userID, displayName string, cursor model.CursorPos) error {
	if !t.limiterFor(boardID, userID).Allow() {
		return nil
	}
	return t.upsert(boardID, userID, displayName, cursor)
}

// Keepalive refreshes lastSeen without requiring a cursor move (spec §3,
// "refreshed ... by a keepalive tick"). It bypasses the cursor throttle:
// keepalives are already bounded to one per KeepaliveInterval by the
// caller, not by this tracker.
func (t *Tracker) Keepalive(boardID, userID, displayName string) error {
	existing, ok := t.lookup(boardID, userID)
	cursor := model.CursorPos{}
	if ok {
		cursor = existing.Cursor
	}
	return t.upsert(boardID, userID, displayName, cursor)
}

func (t *Tracker) upsert(boardID, userID, displayName string, cursor model.CursorPos) error {
	entry := model.Presence{
		BoardID:     boardID,
		UserID:      userID,
		DisplayName: displayName,
		Cursor:      cursor,
		CursorColor: CursorColor(userID),
		LastSeen:    ids.Now(),
	}

	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode presence entry: %w", err)
	}

	err = t.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(key(boardID, userID), string(payload), &buntdb.SetOptions{
			Expires: true,
			TTL:     t.staleStore,
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("write presence entry: %w", err)
	}

	t.broadcast(Event{BoardID: boardID, UserID: userID, Entry: entry})
	return nil
}

func (t *Tracker) lookup(boardID, userID string) (model.Presence, bool) {
	var entry model.Presence
	var found bool
	err := t.db.View(func(tx *buntdb.Tx) error {
		v, err := tx.Get(key(boardID, userID))
		if err == buntdb.ErrNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		if jerr := json.Unmarshal([]byte(v), &entry); jerr != nil {
			return jerr
		}
		found = true
		return nil
	})
	if err != nil {
		return model.Presence{}, false
	}
	return entry, found
}

// Remove deletes an entry explicitly (spec §3 "removed on explicit session
// end"). If the delete fails to reach the tracker (client went away before
// it could send the request), the reaper removes the entry once it goes
// stale instead — callers don't need to retry.
func (t *Tracker) Remove(boardID, userID string) {
	_ = t.db.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Delete(key(boardID, userID))
		if err == buntdb.ErrNotFound {
			return nil
		}
		return err
	})

	t.mu.Lock()
	delete(t.limiters, key(boardID, userID))
	t.mu.Unlock()

	t.broadcast(Event{BoardID: boardID, UserID: userID, Removed: true})
}

// Snapshot returns every live (not display-stale) entry for a board, used
// as the initial delivery to a new subscriber.
func (t *Tracker) Snapshot(boardID string) []model.Presence {
	prefix := boardID + "\x00"
	cutoff := ids.Now().Add(-t.staleDisplay)

	var out []model.Presence
	_ = t.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendGreaterOrEqual("", prefix, func(k, v string) bool {
			if len(k) < len(prefix) || k[:len(prefix)] != prefix {
				return false
			}
			var entry model.Presence
			if err := json.Unmarshal([]byte(v), &entry); err == nil && entry.LastSeen.After(cutoff) {
				out = append(out, entry)
			}
			return true
		})
	})
	return out
}

// Subscribe registers a watcher for every board's presence events; callers
// filter by BoardID themselves, mirroring the single-stream-per-connection
// shape the board hub uses for object changes.
func (t *Tracker) Subscribe() (<-chan Event, func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := t.nextWatcher
	t.nextWatcher++
	ch := make(chan Event, 64)
	t.watchers[id] = ch

	unsubscribe := func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if existing, ok := t.watchers[id]; ok {
			delete(t.watchers, id)
			close(existing)
		}
	}
	return ch, unsubscribe
}

func (t *Tracker) broadcast(evt Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, ch := range t.watchers {
		select {
		case ch <- evt:
		default:
			log.Warn().Str("board_id", evt.BoardID).Msg("presence watcher channel full, dropping event")
		}
	}
}

// RunReaper periodically removes entries past staleStore and broadcasts
// their removal, independent of buntdb's own TTL sweep: the spec requires
// removal to be observable as a tracker Event, not merely absent from the
// next read (spec §4.5 "runs at most every 10s; only mutator of entries it
// didn't create").
func (t *Tracker) RunReaper(ctx context.Context) {
	ticker := time.NewTicker(ReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.reapOnce()
		}
	}
}

func (t *Tracker) reapOnce() {
	cutoff := ids.Now().Add(-t.staleStore)

	type victim struct{ boardID, userID string }
	var victims []victim

	_ = t.db.View(func(tx *buntdb.Tx) error {
		return tx.Ascend("", func(k, v string) bool {
			var entry model.Presence
			if err := json.Unmarshal([]byte(v), &entry); err == nil && entry.LastSeen.Before(cutoff) {
				for i := 0; i < len(k); i++ {
					if k[i] == '\x00' {
						victims = append(victims, victim{boardID: k[:i], userID: k[i+1:]})
						break
					}
				}
			}
			return true
		})
	})

	for _, v := range victims {
		t.Remove(v.boardID, v.userID)
	}
	if len(victims) > 0 {
		log.Debug().Int("count", len(victims)).Msg("presence reaper evicted stale entries")
	}
}

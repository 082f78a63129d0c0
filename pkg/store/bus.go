package store

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"
)

// eventBus is the fanout dependency a Store uses to tell every interested
// hub, on any instance, that a board changed. NewBus (NATS) is used when
// a broker is configured; newLocalBus covers the single-instance
// deployment so board hubs still observe their own writes without a NATS
// server running (spec §7 notes horizontal scaling as an optional
// deployment shape, not a hard requirement).
type eventBus interface {
	Publish(ChangeEvent) error
	Subscribe(boardID string) (<-chan ChangeEvent, func(), error)
	Close()
}

// Bus fans ChangeEvents out across server instances over NATS core
// pub/sub, so a board hub on one instance sees writes committed by a hub
// for the same board on another instance (spec §4.4, §7 horizontal
// scaling). Grounded on adred-codev-ws_poc's pkg/nats client, generalized
// from a raw byte-message API to typed ChangeEvent publish/subscribe.
type Bus struct {
	nc *nats.Conn
}

// NewBus connects to a NATS server. url may be e.g. nats://localhost:4222.
func NewBus(url string) (*Bus, error) {
	nc, err := nats.Connect(url, nats.Name("collabboard"))
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Bus{nc: nc}, nil
}

func (b *Bus) Close() {
	b.nc.Drain()
}

func subject(boardID string) string {
	return "board." + boardID + ".objects"
}

// Publish broadcasts evt to every instance subscribed to its board,
// including this one's own other subscribers.
func (b *Bus) Publish(evt ChangeEvent) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode change event: %w", err)
	}
	return b.nc.Publish(subject(evt.BoardID), payload)
}

// Subscribe returns a channel of change events for boardID and an
// unsubscribe func. The channel is closed once unsubscribe is called.
func (b *Bus) Subscribe(boardID string) (<-chan ChangeEvent, func(), error) {
	out := make(chan ChangeEvent, 256)

	sub, err := b.nc.Subscribe(subject(boardID), func(msg *nats.Msg) {
		var evt ChangeEvent
		if err := json.Unmarshal(msg.Data, &evt); err != nil {
			return
		}
		select {
		case out <- evt:
		default:
			// a slow subscriber drops events rather than stalling the bus.
			// The rows in SQLite are unaffected, but this channel is the
			// hub's only live feed, so a dropped event does not reach it.
		}
	})
	if err != nil {
		close(out)
		return nil, nil, fmt.Errorf("subscribe %s: %w", boardID, err)
	}

	unsubscribe := func() {
		sub.Unsubscribe()
		close(out)
	}
	return out, unsubscribe, nil
}

// localBus is an in-process eventBus for deployments with no NATS server:
// a single collabboard instance still needs its own board hubs to observe
// their own committed writes, so Subscribe/Publish are wired directly
// through channels instead of a broker round-trip.
type localBus struct {
	mu   sync.Mutex
	subs map[string]map[int]chan ChangeEvent
	next int
}

func newLocalBus() *localBus {
	return &localBus{subs: make(map[string]map[int]chan ChangeEvent)}
}

func (b *localBus) Publish(evt ChangeEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs[evt.BoardID] {
		select {
		case ch <- evt:
		default:
		}
	}
	return nil
}

func (b *localBus) Subscribe(boardID string) (<-chan ChangeEvent, func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan ChangeEvent, 256)
	id := b.next
	b.next++
	if b.subs[boardID] == nil {
		b.subs[boardID] = make(map[int]chan ChangeEvent)
	}
	b.subs[boardID][id] = ch

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if m, ok := b.subs[boardID]; ok {
			if _, ok := m[id]; ok {
				delete(m, id)
				close(ch)
			}
		}
	}
	return ch, unsubscribe, nil
}

func (b *localBus) Close() {}

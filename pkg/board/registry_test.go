package board

import (
	"context"
	"testing"
)

func TestRegistryGetReusesHub(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st := testStore(t)
	registry := NewRegistry(ctx, st)

	h1, err := registry.Get("board1")
	if err != nil {
		t.Fatalf("get hub: %v", err)
	}
	h2, err := registry.Get("board1")
	if err != nil {
		t.Fatalf("get hub: %v", err)
	}
	if h1 != h2 {
		t.Error("expected the same hub instance on repeated Get for the same board")
	}
	if registry.Count() != 1 {
		t.Errorf("expected 1 live hub, got %d", registry.Count())
	}
}

func TestRegistryDropClosesHub(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st := testStore(t)
	registry := NewRegistry(ctx, st)

	if _, err := registry.Get("board1"); err != nil {
		t.Fatalf("get hub: %v", err)
	}
	registry.Drop("board1")
	if registry.Count() != 0 {
		t.Errorf("expected 0 live hubs after drop, got %d", registry.Count())
	}
}

func TestRegistrySweepEvictsIdleHubs(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st := testStore(t)
	registry := NewRegistry(ctx, st)

	if _, err := registry.Get("idle-board"); err != nil {
		t.Fatalf("get hub: %v", err)
	}

	registry.sweep(0) // every hub is "idle" under a zero timeout
	if registry.Count() != 0 {
		t.Errorf("expected idle hub to be evicted, got %d remaining", registry.Count())
	}
}

func TestRegistrySweepKeepsSubscribedHubs(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st := testStore(t)
	registry := NewRegistry(ctx, st)

	hub, err := registry.Get("active-board")
	if err != nil {
		t.Fatalf("get hub: %v", err)
	}
	_, unsubscribe := hub.Subscribe()
	defer unsubscribe()

	registry.sweep(0)
	if registry.Count() != 1 {
		t.Errorf("expected subscribed hub to survive sweep, got %d remaining", registry.Count())
	}
}

package protocol

import (
	"encoding/json"
	"testing"

	"github.com/silapakurthi/collabboard/pkg/model"
	"github.com/silapakurthi/collabboard/pkg/presence"
	"github.com/silapakurthi/collabboard/pkg/store"
)

func TestClientMsgUnmarshalCreateObject(t *testing.T) {
	raw := []byte(`{"CreateObject":{"object":{"id":"o1","type":"sticky","width":10,"height":10}}}`)
	var msg ClientMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.CreateObject == nil || msg.CreateObject.Object.ID != "o1" {
		t.Fatalf("expected CreateObject to be populated, got %+v", msg)
	}
	if msg.UpdateObject != nil || msg.DeleteObject != nil || msg.Cursor != nil || msg.Keepalive != nil {
		t.Errorf("expected only CreateObject to be set, got %+v", msg)
	}
}

func TestClientMsgUnmarshalUpdateObject(t *testing.T) {
	raw := []byte(`{"UpdateObject":{"objectId":"o1","fields":{"x":5}}}`)
	var msg ClientMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.UpdateObject == nil || msg.UpdateObject.ObjectID != "o1" {
		t.Fatalf("expected UpdateObject to be populated, got %+v", msg)
	}
	if msg.UpdateObject.Fields["x"] != float64(5) {
		t.Errorf("expected fields.x == 5, got %v", msg.UpdateObject.Fields["x"])
	}
}

func TestClientMsgUnmarshalDeleteObject(t *testing.T) {
	raw := []byte(`{"DeleteObject":{"objectId":"o1"}}`)
	var msg ClientMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.DeleteObject == nil || msg.DeleteObject.ObjectID != "o1" {
		t.Fatalf("expected DeleteObject to be populated, got %+v", msg)
	}
}

func TestClientMsgUnmarshalCursor(t *testing.T) {
	raw := []byte(`{"Cursor":{"displayName":"Alice","cursor":{"x":1,"y":2}}}`)
	var msg ClientMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.Cursor == nil || msg.Cursor.DisplayName != "Alice" {
		t.Fatalf("expected Cursor to be populated, got %+v", msg)
	}
}

func TestClientMsgUnmarshalKeepalive(t *testing.T) {
	raw := []byte(`{"Keepalive":{}}`)
	var msg ClientMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.Keepalive == nil {
		t.Fatal("expected Keepalive to be populated")
	}
}

func TestServerMsgMarshalOnlyEmitsPopulatedTag(t *testing.T) {
	msg := NewSnapshotMsg([]map[string]any{{"id": "o1"}}, []model.Presence{{UserID: "alice"}})
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal raw: %v", err)
	}
	if len(raw) != 1 {
		t.Fatalf("expected exactly one top-level tag, got %d: %s", len(raw), data)
	}
	if _, ok := raw["Snapshot"]; !ok {
		t.Errorf("expected a Snapshot tag, got %s", data)
	}
}

func TestFromChangeEventAdded(t *testing.T) {
	evt := store.ChangeEvent{Kind: store.Added, DocID: "o1", Fields: map[string]any{"x": 1.0}}
	msg := FromChangeEvent(evt)
	if msg.ObjectChanged == nil || msg.ObjectChanged.ID != "o1" {
		t.Fatalf("expected ObjectChanged for an Added event, got %+v", msg)
	}
	if msg.ObjectChanged.Fields["id"] != "o1" {
		t.Errorf("expected fields to carry the doc id, got %+v", msg.ObjectChanged.Fields)
	}
}

func TestFromChangeEventRemoved(t *testing.T) {
	evt := store.ChangeEvent{Kind: store.Removed, DocID: "o1"}
	msg := FromChangeEvent(evt)
	if msg.ObjectRemoved == nil || msg.ObjectRemoved.ID != "o1" {
		t.Fatalf("expected ObjectRemoved for a Removed event, got %+v", msg)
	}
}

func TestFromPresenceEventChanged(t *testing.T) {
	evt := presence.Event{Entry: model.Presence{UserID: "alice"}}
	msg := FromPresenceEvent(evt)
	if msg.PresenceChanged == nil || msg.PresenceChanged.Entry.UserID != "alice" {
		t.Fatalf("expected PresenceChanged, got %+v", msg)
	}
}

func TestFromPresenceEventRemoved(t *testing.T) {
	evt := presence.Event{Removed: true, UserID: "alice"}
	msg := FromPresenceEvent(evt)
	if msg.PresenceRemoved == nil || msg.PresenceRemoved.UserID != "alice" {
		t.Fatalf("expected PresenceRemoved, got %+v", msg)
	}
}

func TestNewErrorMsg(t *testing.T) {
	msg := NewErrorMsg("boom")
	if msg.Error == nil || *msg.Error != "boom" {
		t.Fatalf("expected Error to carry the message, got %+v", msg)
	}

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal raw: %v", err)
	}
	if raw["Error"] != "boom" {
		t.Errorf("expected Error field to carry the string directly, got %s", data)
	}
}

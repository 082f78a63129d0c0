// Package protocol defines the WebSocket wire messages between client and
// board server. Keeps the teacher's tagged-union-via-custom-MarshalJSON
// shape (internal/protocol/messages.go in the teacher), generalized from
// one OT edit-stream message set to one object-change/presence message set.
package protocol

import (
	"encoding/json"

	"github.com/silapakurthi/collabboard/pkg/model"
	"github.com/silapakurthi/collabboard/pkg/presence"
	"github.com/silapakurthi/collabboard/pkg/store"
)

// ClientMsg is a tagged union of every message a client can send. Only one
// field is set per message.
type ClientMsg struct {
	CreateObject *CreateObjectMsg `json:"CreateObject,omitempty"`
	UpdateObject *UpdateObjectMsg `json:"UpdateObject,omitempty"`
	DeleteObject *DeleteObjectMsg `json:"DeleteObject,omitempty"`
	Cursor       *CursorMsg       `json:"Cursor,omitempty"`
	Keepalive    *struct{}        `json:"Keepalive,omitempty"`
}

type CreateObjectMsg struct {
	Object model.Object `json:"object"`
}

type UpdateObjectMsg struct {
	ObjectID string         `json:"objectId"`
	Fields   map[string]any `json:"fields"`
}

type DeleteObjectMsg struct {
	ObjectID string `json:"objectId"`
}

type CursorMsg struct {
	DisplayName string          `json:"displayName"`
	Cursor      model.CursorPos `json:"cursor"`
}

// ServerMsg is a tagged union of every message the server can send.
type ServerMsg struct {
	Snapshot        *SnapshotMsg        `json:"Snapshot,omitempty"`
	ObjectChanged   *ObjectChangedMsg   `json:"ObjectChanged,omitempty"`
	ObjectRemoved   *ObjectRemovedMsg   `json:"ObjectRemoved,omitempty"`
	PresenceChanged *PresenceChangedMsg `json:"PresenceChanged,omitempty"`
	PresenceRemoved *PresenceRemovedMsg `json:"PresenceRemoved,omitempty"`
	Error           *string             `json:"Error,omitempty"`
}

type SnapshotMsg struct {
	Objects   []map[string]any `json:"objects"`
	Presences []model.Presence `json:"presences"`
}

type ObjectChangedMsg struct {
	ID     string         `json:"id"`
	Fields map[string]any `json:"fields"`
}

type ObjectRemovedMsg struct {
	ID string `json:"id"`
}

type PresenceChangedMsg struct {
	Entry model.Presence `json:"entry"`
}

type PresenceRemovedMsg struct {
	UserID string `json:"userId"`
}

// MarshalJSON ensures only the populated field is emitted, matching the
// teacher's tagged-union wire shape.
func (m *ServerMsg) MarshalJSON() ([]byte, error) {
	result := make(map[string]any, 1)
	switch {
	case m.Snapshot != nil:
		result["Snapshot"] = m.Snapshot
	case m.ObjectChanged != nil:
		result["ObjectChanged"] = m.ObjectChanged
	case m.ObjectRemoved != nil:
		result["ObjectRemoved"] = m.ObjectRemoved
	case m.PresenceChanged != nil:
		result["PresenceChanged"] = m.PresenceChanged
	case m.PresenceRemoved != nil:
		result["PresenceRemoved"] = m.PresenceRemoved
	case m.Error != nil:
		result["Error"] = *m.Error
	}
	return json.Marshal(result)
}

// UnmarshalJSON recovers which tag was sent from the client.
func (m *ClientMsg) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if v, ok := raw["CreateObject"]; ok {
		var msg CreateObjectMsg
		if err := json.Unmarshal(v, &msg); err != nil {
			return err
		}
		m.CreateObject = &msg
	}
	if v, ok := raw["UpdateObject"]; ok {
		var msg UpdateObjectMsg
		if err := json.Unmarshal(v, &msg); err != nil {
			return err
		}
		m.UpdateObject = &msg
	}
	if v, ok := raw["DeleteObject"]; ok {
		var msg DeleteObjectMsg
		if err := json.Unmarshal(v, &msg); err != nil {
			return err
		}
		m.DeleteObject = &msg
	}
	if v, ok := raw["Cursor"]; ok {
		var msg CursorMsg
		if err := json.Unmarshal(v, &msg); err != nil {
			return err
		}
		m.Cursor = &msg
	}
	if _, ok := raw["Keepalive"]; ok {
		m.Keepalive = &struct{}{}
	}
	return nil
}

// NewSnapshotMsg builds the initial-state message sent once a subscriber
// connects.
func NewSnapshotMsg(objects []map[string]any, presences []model.Presence) *ServerMsg {
	return &ServerMsg{Snapshot: &SnapshotMsg{Objects: objects, Presences: presences}}
}

// FromChangeEvent converts a store change event into its wire form.
func FromChangeEvent(evt store.ChangeEvent) *ServerMsg {
	if evt.Kind == store.Removed {
		return &ServerMsg{ObjectRemoved: &ObjectRemovedMsg{ID: evt.DocID}}
	}
	fields := make(map[string]any, len(evt.Fields)+1)
	for k, v := range evt.Fields {
		fields[k] = v
	}
	fields["id"] = evt.DocID
	return &ServerMsg{ObjectChanged: &ObjectChangedMsg{ID: evt.DocID, Fields: fields}}
}

// FromPresenceEvent converts a presence event into its wire form.
func FromPresenceEvent(evt presence.Event) *ServerMsg {
	if evt.Removed {
		return &ServerMsg{PresenceRemoved: &PresenceRemovedMsg{UserID: evt.UserID}}
	}
	return &ServerMsg{PresenceChanged: &PresenceChangedMsg{Entry: evt.Entry}}
}

// NewErrorMsg wraps a human-readable error for delivery to one client.
func NewErrorMsg(msg string) *ServerMsg {
	return &ServerMsg{Error: &msg}
}

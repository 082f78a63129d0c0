// Package mutation implements the client-facing write surface (spec
// component C6): createObject, updateObject, deleteObject, writePresence.
// It validates input shape, assigns ids and server-stamped fields, and
// delegates the actual write to a board hub or the presence tracker.
package mutation

import (
	"context"
	"fmt"

	"github.com/silapakurthi/collabboard/pkg/board"
	"github.com/silapakurthi/collabboard/pkg/ids"
	"github.com/silapakurthi/collabboard/pkg/model"
	"github.com/silapakurthi/collabboard/pkg/presence"
	"github.com/silapakurthi/collabboard/pkg/store"
)

// API is the single entry point mutation handlers (HTTP, WebSocket,
// agent executor) call through.
type API struct {
	registry  *board.Registry
	presences *presence.Tracker
}

func New(registry *board.Registry, presences *presence.Tracker) *API {
	return &API{registry: registry, presences: presences}
}

// CreateObject validates obj by its declared type, assigns an id if the
// caller left it blank, and writes it with create semantics — failing if
// the id is already taken (spec §4.6).
func (a *API) CreateObject(ctx context.Context, boardID, userID string, obj model.Object) (map[string]any, error) {
	if obj.ID == "" {
		obj.ID = ids.NewObjectID()
	} else if !ids.ValidProposedID(obj.ID) {
		return nil, fmt.Errorf("proposed id %q is not a valid identifier", obj.ID)
	}
	obj.LastEditedBy = userID

	if err := model.ValidateObject(&obj); err != nil {
		return nil, fmt.Errorf("invalid object: %w", err)
	}

	hub, err := a.registry.Get(boardID)
	if err != nil {
		return nil, fmt.Errorf("get board hub: %w", err)
	}

	return hub.Put(ctx, store.Write{
		BoardID: boardID,
		DocID:   obj.ID,
		Fields:  objectFields(obj),
		Mode:    store.ModeCreate,
	})
}

// UpdateObject merge-writes a partial field set. It MUST succeed even if
// the document is absent, tolerating races with concurrent deletes and
// agent-fabricated ids (spec §4.6).
func (a *API) UpdateObject(ctx context.Context, boardID, userID, objectID string, partial map[string]any) (map[string]any, error) {
	if err := validatePartial(partial); err != nil {
		return nil, err
	}

	fields := map[string]any{}
	for k, v := range partial {
		fields[k] = v
	}
	fields["lastEditedBy"] = userID

	hub, err := a.registry.Get(boardID)
	if err != nil {
		return nil, fmt.Errorf("get board hub: %w", err)
	}

	return hub.Put(ctx, store.Write{
		BoardID: boardID,
		DocID:   objectID,
		Fields:  fields,
		Mode:    store.ModeMerge,
	})
}

// DeleteObject idempotently removes an object and cascades to any
// connector that references it (spec §4.4, §4.6).
func (a *API) DeleteObject(ctx context.Context, boardID, objectID string) error {
	hub, err := a.registry.Get(boardID)
	if err != nil {
		return fmt.Errorf("get board hub: %w", err)
	}
	return hub.DeleteCascading(ctx, objectID)
}

// WritePresence merge-writes cursor/online state through the throttled
// presence tracker (spec §4.6); lastSeen is always server-stamped inside
// Tracker.WriteCursor, never accepted from the caller.
func (a *API) WritePresence(boardID, userID, displayName string, cursor model.CursorPos) error {
	return a.presences.WriteCursor(boardID, userID, displayName, cursor)
}

// Keepalive refreshes a user's presence lastSeen without a cursor move
// (spec §3 "refreshed by keepalive tick"), bypassing the cursor throttle.
func (a *API) Keepalive(boardID, userID, displayName string) error {
	return a.presences.Keepalive(boardID, userID, displayName)
}

func validatePartial(partial map[string]any) error {
	if v, ok := partial["color"].(string); ok {
		if err := model.ValidateColor(v); err != nil {
			return err
		}
	}
	if v, ok := partial["text"].(string); ok && len(v) > 10000 {
		return fmt.Errorf("text exceeds maximum length of 10000 characters")
	}
	for _, numeric := range []string{"x", "y", "width", "height", "rotation", "radius"} {
		if v, ok := partial[numeric]; ok {
			f, ok := v.(float64)
			if !ok {
				return fmt.Errorf("field %q must be numeric", numeric)
			}
			if !model.Finite(f) {
				return fmt.Errorf("field %q must be finite", numeric)
			}
		}
	}
	return nil
}

// objectFields flattens a model.Object into the generic field map the
// store persists, omitting nil optional fields.
func objectFields(o model.Object) map[string]any {
	fields := map[string]any{
		"type":         string(o.Type),
		"x":            o.X,
		"y":            o.Y,
		"rotation":     o.Rotation,
		"color":        o.Color,
		"zIndex":       o.ZIndex,
		"lastEditedBy": o.LastEditedBy,
	}
	if o.Type != model.TypeConnector {
		fields["width"] = o.Width
		fields["height"] = o.Height
	}
	if o.Text != nil {
		fields["text"] = *o.Text
	}
	if o.FontSize != nil {
		fields["fontSize"] = *o.FontSize
	}
	if o.Radius != nil {
		fields["radius"] = *o.Radius
	}
	if o.Points != nil {
		fields["points"] = o.Points
	}
	if o.ConnectedFrom != nil {
		fields["connectedFrom"] = *o.ConnectedFrom
	}
	if o.ConnectedTo != nil {
		fields["connectedTo"] = *o.ConnectedTo
	}
	if o.Style != nil {
		fields["style"] = map[string]any{
			"lineStyle": o.Style.LineStyle,
			"arrowHead": o.Style.ArrowHead,
		}
	}
	return fields
}

package agent

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestDispatchCreateStickyNote(t *testing.T) {
	p := newPlan("board1", nil)
	result, id := dispatch("createStickyNote", p, json.RawMessage(`{"x":10,"y":20,"text":"hi"}`))

	if id == "" {
		t.Fatal("expected an object id to be returned")
	}
	if !strings.Contains(result, id) {
		t.Errorf("expected result to mention the created id, got %q", result)
	}
	if !p.known[id] {
		t.Error("expected the created id to be registered as known")
	}
	if len(p.writes) != 1 || p.writes[0].DocID != id {
		t.Fatalf("expected exactly one write for %s, got %+v", id, p.writes)
	}
}

func TestDispatchUnknownTool(t *testing.T) {
	p := newPlan("board1", nil)
	result, id := dispatch("notARealTool", p, json.RawMessage(`{}`))

	if id != "" {
		t.Errorf("expected no object id for an unknown tool, got %q", id)
	}
	if !strings.Contains(result, "notARealTool") {
		t.Errorf("expected the error to name the unknown tool, got %q", result)
	}
}

func TestMoveObjectRejectsUnknownID(t *testing.T) {
	p := newPlan("board1", nil)
	result, id := dispatch("moveObject", p, json.RawMessage(`{"objectId":"ghost","x":1,"y":2}`))

	if id != "" {
		t.Errorf("expected no object id returned on a rejected move, got %q", id)
	}
	if !strings.Contains(result, "unknown") {
		t.Errorf("expected an unknown-id error, got %q", result)
	}
	if len(p.writes) != 0 {
		t.Errorf("expected no write for an unknown object id, got %+v", p.writes)
	}
}

func TestMoveObjectSucceedsForKnownID(t *testing.T) {
	snapshot := []map[string]any{
		{"id": "s1", "type": "sticky", "x": 0.0, "y": 0.0, "width": 200.0, "height": 200.0},
	}
	p := newPlan("board1", snapshot)

	result, id := dispatch("moveObject", p, json.RawMessage(`{"objectId":"s1","x":50,"y":60}`))
	if id != "s1" {
		t.Errorf("expected the moved id to be returned, got %q", id)
	}
	if !strings.Contains(result, "s1") {
		t.Errorf("expected result to mention the moved object, got %q", result)
	}
	if p.objects["s1"].rect.x != 50 || p.objects["s1"].rect.y != 60 {
		t.Errorf("expected the plan's in-memory object to reflect the move, got %+v", p.objects["s1"])
	}
}

func TestCreateConnectorRequiresBothEndpointsKnown(t *testing.T) {
	snapshot := []map[string]any{
		{"id": "a", "type": "rectangle", "width": 10.0, "height": 10.0},
	}
	p := newPlan("board1", snapshot)

	result, id := dispatch("createConnector", p, json.RawMessage(`{"fromId":"a","toId":"b"}`))
	if id != "" {
		t.Errorf("expected no connector created when toId is unknown, got %q", id)
	}
	if !strings.Contains(result, "toId") {
		t.Errorf("expected error to name the missing endpoint, got %q", result)
	}
}

func TestCreateConnectorSucceedsForKnownEndpoints(t *testing.T) {
	snapshot := []map[string]any{
		{"id": "a", "type": "rectangle", "width": 10.0, "height": 10.0},
		{"id": "b", "type": "rectangle", "width": 10.0, "height": 10.0},
	}
	p := newPlan("board1", snapshot)

	_, id := dispatch("createConnector", p, json.RawMessage(`{"fromId":"a","toId":"b"}`))
	if id == "" {
		t.Fatal("expected a connector id to be created")
	}
	if got := p.connectorEndpoints[id]; got[0] != "a" || got[1] != "b" {
		t.Errorf("expected connectorEndpoints to record [a b], got %v", got)
	}
}

func TestUpdateConnectorStyleOnlyChangesProvidedField(t *testing.T) {
	snapshot := []map[string]any{
		{"id": "a", "type": "rectangle", "width": 10.0, "height": 10.0},
		{"id": "b", "type": "rectangle", "width": 10.0, "height": 10.0},
	}
	p := newPlan("board1", snapshot)

	_, connID := dispatch("createConnector", p, json.RawMessage(`{"fromId":"a","toId":"b","lineStyle":"dashed","arrowHead":true}`))
	if connID == "" {
		t.Fatal("expected a connector id to be created")
	}

	// Only arrowHead is provided; lineStyle must survive unchanged.
	dispatch("updateConnectorStyle", p, json.RawMessage(`{"objectId":"`+connID+`","arrowHead":false}`))

	style := p.objects[connID].style
	if style == nil {
		t.Fatal("expected the connector's style to be tracked in the plan")
	}
	if style.LineStyle != "dashed" {
		t.Errorf("expected lineStyle to remain 'dashed' when only arrowHead is updated, got %q", style.LineStyle)
	}
	if style.ArrowHead != false {
		t.Errorf("expected arrowHead to be updated to false, got %v", style.ArrowHead)
	}
}

func TestUpdateConnectorStyleOnlyChangesLineStyle(t *testing.T) {
	snapshot := []map[string]any{
		{"id": "a", "type": "rectangle", "width": 10.0, "height": 10.0},
		{"id": "b", "type": "rectangle", "width": 10.0, "height": 10.0},
	}
	p := newPlan("board1", snapshot)

	_, connID := dispatch("createConnector", p, json.RawMessage(`{"fromId":"a","toId":"b","lineStyle":"dashed","arrowHead":true}`))

	// Only lineStyle is provided; arrowHead must survive unchanged.
	dispatch("updateConnectorStyle", p, json.RawMessage(`{"objectId":"`+connID+`","lineStyle":"solid"}`))

	style := p.objects[connID].style
	if style == nil {
		t.Fatal("expected the connector's style to be tracked in the plan")
	}
	if style.LineStyle != "solid" {
		t.Errorf("expected lineStyle to be updated to 'solid', got %q", style.LineStyle)
	}
	if style.ArrowHead != true {
		t.Errorf("expected arrowHead to remain true when only lineStyle is updated, got %v", style.ArrowHead)
	}
}

func TestMoveObjectDoesNotClobberConnectorStyle(t *testing.T) {
	snapshot := []map[string]any{
		{"id": "a", "type": "rectangle", "width": 10.0, "height": 10.0},
		{"id": "b", "type": "rectangle", "width": 10.0, "height": 10.0},
	}
	p := newPlan("board1", snapshot)
	_, connID := dispatch("createConnector", p, json.RawMessage(`{"fromId":"a","toId":"b","lineStyle":"dashed","arrowHead":true}`))

	// An unrelated merge (e.g. a move) must not silently drop the style
	// this plan object is carrying.
	dispatch("moveObject", p, json.RawMessage(`{"objectId":"`+connID+`","x":5,"y":5}`))

	style := p.objects[connID].style
	if style == nil || style.LineStyle != "dashed" || !style.ArrowHead {
		t.Errorf("expected style to survive an unrelated merge, got %+v", style)
	}
}

func TestDeleteObjectCascadesToConnectorWithinPlan(t *testing.T) {
	snapshot := []map[string]any{
		{"id": "a", "type": "rectangle", "width": 10.0, "height": 10.0},
		{"id": "b", "type": "rectangle", "width": 10.0, "height": 10.0},
		{"id": "conn1", "type": "connector", "connectedFrom": "a", "connectedTo": "b"},
	}
	p := newPlan("board1", snapshot)

	dispatch("deleteObject", p, json.RawMessage(`{"objectId":"a"}`))

	if p.known["a"] || p.known["conn1"] {
		t.Errorf("expected both 'a' and 'conn1' to be removed from known, got known=%v", p.known)
	}
	if !p.known["b"] {
		t.Error("expected 'b' to survive the cascade")
	}

	var deletedIDs []string
	for _, w := range p.writes {
		if w.Delete {
			deletedIDs = append(deletedIDs, w.DocID)
		}
	}
	if len(deletedIDs) != 2 {
		t.Errorf("expected 2 delete writes (object + connector), got %v", deletedIDs)
	}
}

func TestDeleteObjectRejectsUnknownID(t *testing.T) {
	p := newPlan("board1", nil)
	result, _ := dispatch("deleteObject", p, json.RawMessage(`{"objectId":"ghost"}`))
	if !strings.Contains(result, "unknown") {
		t.Errorf("expected an unknown-id error, got %q", result)
	}
}

func TestChangeColorRejectsInvalidColor(t *testing.T) {
	snapshot := []map[string]any{{"id": "a", "type": "rectangle", "width": 10.0, "height": 10.0}}
	p := newPlan("board1", snapshot)

	result, id := dispatch("changeColor", p, json.RawMessage(`{"objectId":"a","color":"notacolor"}`))
	if id != "" {
		t.Errorf("expected no merge write for an invalid color, got id %q", id)
	}
	_ = result
	if len(p.writes) != 0 {
		t.Errorf("expected no write for an invalid color, got %+v", p.writes)
	}
}

func TestGetBoardStateReportsEmptyBoard(t *testing.T) {
	p := newPlan("board1", nil)
	result, _ := dispatch("getBoardState", p, json.RawMessage(`{}`))
	if !strings.Contains(result, "empty") {
		t.Errorf("expected an empty-board message, got %q", result)
	}
}

func TestGetBoardStateListsObjects(t *testing.T) {
	snapshot := []map[string]any{{"id": "a", "type": "rectangle", "width": 10.0, "height": 10.0}}
	p := newPlan("board1", snapshot)
	result, _ := dispatch("getBoardState", p, json.RawMessage(`{}`))
	if !strings.Contains(result, "a") {
		t.Errorf("expected the summary to mention object 'a', got %q", result)
	}
}

func TestCreateShapeRejectsUnknownType(t *testing.T) {
	p := newPlan("board1", nil)
	result, id := dispatch("createShape", p, json.RawMessage(`{"type":"triangle","x":0,"y":0}`))
	if id != "" {
		t.Errorf("expected no object created for an unknown shape type, got %q", id)
	}
	if !strings.Contains(result, "triangle") {
		t.Errorf("expected the error to name the rejected type, got %q", result)
	}
}

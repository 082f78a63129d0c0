package agent

import (
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/silapakurthi/collabboard/pkg/ids"
	"github.com/silapakurthi/collabboard/pkg/model"
	"github.com/silapakurthi/collabboard/pkg/store"
)

// toolSpec pairs an anthropic.ToolParam with the dispatcher that turns a
// validated call into plan mutations, following the tool-registration
// idiom of the pack's agent-runtime reference (one schema + one handler
// per tool name) adapted to anthropic-sdk-go's param type instead of a
// provider-agnostic Tool interface.
type toolSpec struct {
	param   anthropic.ToolParam
	handler func(p *plan, input json.RawMessage) (result string, objectID string)
}

func schema(properties map[string]any, required []string) anthropic.ToolInputSchemaParam {
	return anthropic.ToolInputSchemaParam{
		Type:       "object",
		Properties: properties,
		Required:   required,
	}
}

func prop(typ, desc string) map[string]any {
	return map[string]any{"type": typ, "description": desc}
}

func buildToolSpecs() []toolSpec {
	return []toolSpec{
		{
			param: anthropic.ToolParam{
				Name:        "createStickyNote",
				Description: "Create a sticky note at a position with text and color.",
				InputSchema: schema(map[string]any{
					"x":     prop("number", "world x coordinate"),
					"y":     prop("number", "world y coordinate"),
					"text":  prop("string", "note contents"),
					"color": prop("string", "hex color, e.g. #fff2a8"),
				}, []string{"x", "y"}),
			},
			handler: handleCreateStickyNote,
		},
		{
			param: anthropic.ToolParam{
				Name:        "createText",
				Description: "Create a standalone text block.",
				InputSchema: schema(map[string]any{
					"x":        prop("number", "world x coordinate"),
					"y":        prop("number", "world y coordinate"),
					"text":     prop("string", "text contents"),
					"fontSize": prop("number", "font size in px"),
				}, []string{"x", "y", "text"}),
			},
			handler: handleCreateText,
		},
		{
			param: anthropic.ToolParam{
				Name:        "createShape",
				Description: "Create a rectangle, circle, or line.",
				InputSchema: schema(map[string]any{
					"type":   prop("string", "one of: rectangle, circle, line"),
					"x":      prop("number", "world x coordinate"),
					"y":      prop("number", "world y coordinate"),
					"width":  prop("number", "rectangle width"),
					"height": prop("number", "rectangle height"),
					"radius": prop("number", "circle radius"),
					"points": prop("array", "line points [x0,y0,x1,y1] relative to x,y"),
					"color":  prop("string", "hex color"),
				}, []string{"type", "x", "y"}),
			},
			handler: handleCreateShape,
		},
		{
			param: anthropic.ToolParam{
				Name:        "createFrame",
				Description: "Create a frame (container) that auto-fits around the objects placed inside it.",
				InputSchema: schema(map[string]any{
					"x":      prop("number", "world x coordinate"),
					"y":      prop("number", "world y coordinate"),
					"width":  prop("number", "initial width"),
					"height": prop("number", "initial height"),
					"text":   prop("string", "frame title"),
				}, []string{"x", "y", "width", "height"}),
			},
			handler: handleCreateFrame,
		},
		{
			param: anthropic.ToolParam{
				Name:        "createConnector",
				Description: "Create a connector between two existing objects.",
				InputSchema: schema(map[string]any{
					"fromId":    prop("string", "id of the source object"),
					"toId":      prop("string", "id of the target object"),
					"lineStyle": prop("string", "solid or dashed"),
					"arrowHead": prop("boolean", "whether to render an arrowhead"),
				}, []string{"fromId", "toId"}),
			},
			handler: handleCreateConnector,
		},
		{
			param: anthropic.ToolParam{
				Name:        "moveObject",
				Description: "Move an existing object to a new position.",
				InputSchema: schema(map[string]any{
					"objectId": prop("string", "id of the object to move"),
					"x":        prop("number", "new world x coordinate"),
					"y":        prop("number", "new world y coordinate"),
				}, []string{"objectId", "x", "y"}),
			},
			handler: handleMoveObject,
		},
		{
			param: anthropic.ToolParam{
				Name:        "resizeObject",
				Description: "Resize an existing object.",
				InputSchema: schema(map[string]any{
					"objectId": prop("string", "id of the object to resize"),
					"width":    prop("number", "new width"),
					"height":   prop("number", "new height"),
					"radius":   prop("number", "new radius, for circles"),
				}, []string{"objectId"}),
			},
			handler: handleResizeObject,
		},
		{
			param: anthropic.ToolParam{
				Name:        "updateText",
				Description: "Change the text content of an object.",
				InputSchema: schema(map[string]any{
					"objectId": prop("string", "id of the object to edit"),
					"text":     prop("string", "new text content"),
				}, []string{"objectId", "text"}),
			},
			handler: handleUpdateText,
		},
		{
			param: anthropic.ToolParam{
				Name:        "changeColor",
				Description: "Change the fill color of an object.",
				InputSchema: schema(map[string]any{
					"objectId": prop("string", "id of the object to recolor"),
					"color":    prop("string", "new hex color"),
				}, []string{"objectId", "color"}),
			},
			handler: handleChangeColor,
		},
		{
			param: anthropic.ToolParam{
				Name:        "updateConnectorStyle",
				Description: "Change a connector's line style or arrowhead.",
				InputSchema: schema(map[string]any{
					"objectId":  prop("string", "id of the connector"),
					"lineStyle": prop("string", "solid or dashed"),
					"arrowHead": prop("boolean", "whether to render an arrowhead"),
				}, []string{"objectId"}),
			},
			handler: handleUpdateConnectorStyle,
		},
		{
			param: anthropic.ToolParam{
				Name:        "deleteObject",
				Description: "Delete an object. Deleting an endpoint also deletes any connector attached to it.",
				InputSchema: schema(map[string]any{
					"objectId": prop("string", "id of the object to delete"),
				}, []string{"objectId"}),
			},
			handler: handleDeleteObject,
		},
		{
			param: anthropic.ToolParam{
				Name:        "getBoardState",
				Description: "Return a summary of every object currently on the board.",
				InputSchema: schema(map[string]any{}, nil),
			},
			handler: handleGetBoardState,
		},
	}
}

// plan accumulates writes across a turn loop without committing them
// intra-turn (spec §4.7 "appended to a pending plan; never committed
// intra-turn").
type plan struct {
	boardID            string
	writes             []store.Write
	known              map[string]bool
	objects            map[string]*planObject
	connectorEndpoints map[string][2]string // connector id -> [fromId, toId]
}

func newPlan(boardID string, snapshot []map[string]any) *plan {
	p := &plan{
		boardID:            boardID,
		known:              make(map[string]bool),
		objects:            make(map[string]*planObject),
		connectorEndpoints: make(map[string][2]string),
	}
	for _, fields := range snapshot {
		id, _ := fields["id"].(string)
		if id == "" {
			continue
		}
		p.known[id] = true
		p.objects[id] = planObjectFromFields(id, fields)
		from, hasFrom := fields["connectedFrom"].(string)
		to, hasTo := fields["connectedTo"].(string)
		if hasFrom || hasTo {
			p.connectorEndpoints[id] = [2]string{from, to}
		}
	}
	return p
}

func planObjectFromFields(id string, fields map[string]any) *planObject {
	typ, _ := fields["type"].(string)
	x, _ := fields["x"].(float64)
	y, _ := fields["y"].(float64)
	w, _ := fields["width"].(float64)
	h, _ := fields["height"].(float64)

	o := model.Object{ID: id, Type: model.ObjectType(typ), X: x, Y: y, Width: w, Height: h}
	if r, ok := fields["radius"].(float64); ok {
		o.Radius = &r
	}
	if pts, ok := fields["points"].([]any); ok {
		for _, v := range pts {
			if f, ok := v.(float64); ok {
				o.Points = append(o.Points, f)
			}
		}
	}
	if cf, ok := fields["connectedFrom"].(string); ok {
		o.ConnectedFrom = &cf
	}
	if ct, ok := fields["connectedTo"].(string); ok {
		o.ConnectedTo = &ct
	}

	return &planObject{
		id:    id,
		typ:   o.Type,
		bbox:  model.BoundingBox(&o),
		rect:  rect{x: x, y: y, w: w, h: h},
		style: connectorStyleFromFields(fields),
	}
}

// connectorStyleFromFields recovers a connector's style sub-object from its
// stored fields map, however it was encoded (a live model.ConnectorStyle
// round-tripped through JSON becomes a map[string]any once read back out of
// SQLite or a plan's own pending writes).
func connectorStyleFromFields(fields map[string]any) *model.ConnectorStyle {
	raw, ok := fields["style"]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case map[string]any:
		style := &model.ConnectorStyle{LineStyle: model.LineStyleSolid}
		if ls, ok := v["lineStyle"].(string); ok {
			style.LineStyle = ls
		}
		if ah, ok := v["arrowHead"].(bool); ok {
			style.ArrowHead = ah
		}
		return style
	case *model.ConnectorStyle:
		return v
	default:
		return nil
	}
}

func (p *plan) newID() string {
	id := ids.NewObjectID()
	p.known[id] = true
	return id
}

func (p *plan) create(id string, fields map[string]any) {
	p.writes = append(p.writes, store.Write{BoardID: p.boardID, DocID: id, Fields: fields, Mode: store.ModeCreate})
	p.known[id] = true
	p.objects[id] = planObjectFromFields(id, withID(fields, id))
	from, hasFrom := fields["connectedFrom"].(string)
	to, hasTo := fields["connectedTo"].(string)
	if hasFrom || hasTo {
		p.connectorEndpoints[id] = [2]string{from, to}
	}
}

func (p *plan) merge(id string, fields map[string]any) {
	p.writes = append(p.writes, store.Write{BoardID: p.boardID, DocID: id, Fields: fields, Mode: store.ModeMerge})
	if existing, ok := p.objects[id]; ok {
		merged := mergeObjectFields(existing, fields)
		p.objects[id] = planObjectFromFields(id, merged)
	}
}

func withID(fields map[string]any, id string) map[string]any {
	out := map[string]any{"id": id}
	for k, v := range fields {
		out[k] = v
	}
	return out
}

func mergeObjectFields(existing *planObject, patch map[string]any) map[string]any {
	out := map[string]any{
		"id":     existing.id,
		"type":   string(existing.typ),
		"x":      existing.rect.x,
		"y":      existing.rect.y,
		"width":  existing.rect.w,
		"height": existing.rect.h,
	}
	if existing.style != nil {
		out["style"] = existing.style
	}
	for k, v := range patch {
		out[k] = v
	}
	return out
}

func (p *plan) deleteCascading(id string) {
	p.writes = append(p.writes, store.Write{BoardID: p.boardID, DocID: id, Delete: true})
	delete(p.known, id)
	delete(p.objects, id)
	for childID, o := range p.objects {
		if o.typ != model.TypeConnector {
			continue
		}
		// connectorEndpoints holds the endpoints of every connector in the
		// plan: those in the board snapshot (filled by newPlan) and those
		// created earlier in this invocation.
		from, to := p.connectorEndpoints[childID][0], p.connectorEndpoints[childID][1]
		if from == id || to == id {
			p.writes = append(p.writes, store.Write{BoardID: p.boardID, DocID: childID, Delete: true})
			delete(p.known, childID)
			delete(p.objects, childID)
		}
	}
}

func dispatch(name string, p *plan, input json.RawMessage) (result, objectID string) {
	for _, spec := range buildToolSpecs() {
		if spec.param.Name == name {
			return spec.handler(p, input)
		}
	}
	return fmt.Sprintf("unknown tool %q", name), ""
}

func requireKnown(p *plan, id string) bool {
	return p.known[id]
}

func decode(input json.RawMessage, v any) error {
	if len(input) == 0 {
		return nil
	}
	return json.Unmarshal(input, v)
}

func handleCreateStickyNote(p *plan, input json.RawMessage) (string, string) {
	var in struct {
		X, Y  float64
		Text  string
		Color string
	}
	if err := decode(input, &in); err != nil {
		return err.Error(), ""
	}
	id := p.newID()
	fields := map[string]any{
		"type":  string(model.TypeSticky),
		"x":     in.X,
		"y":     in.Y,
		"width": 200.0,
		"height": 200.0,
		"color": firstNonEmpty(in.Color, "#fff2a8"),
		"text":  in.Text,
	}
	p.create(id, fields)
	return fmt.Sprintf("created sticky note %s", id), id
}

func handleCreateText(p *plan, input json.RawMessage) (string, string) {
	var in struct {
		X, Y     float64
		Text     string
		FontSize float64
	}
	if err := decode(input, &in); err != nil {
		return err.Error(), ""
	}
	id := p.newID()
	fields := map[string]any{
		"type": string(model.TypeText),
		"x":    in.X,
		"y":    in.Y,
		"text": in.Text,
	}
	if in.FontSize > 0 {
		fields["fontSize"] = in.FontSize
	} else {
		fields["fontSize"] = 16.0
	}
	p.create(id, fields)
	return fmt.Sprintf("created text %s", id), id
}

func handleCreateShape(p *plan, input json.RawMessage) (string, string) {
	var in struct {
		Type   string
		X, Y   float64
		Width  float64
		Height float64
		Radius float64
		Points []float64
		Color  string
	}
	if err := decode(input, &in); err != nil {
		return err.Error(), ""
	}

	var typ model.ObjectType
	switch in.Type {
	case "rectangle":
		typ = model.TypeRectangle
	case "circle":
		typ = model.TypeCircle
	case "line":
		typ = model.TypeLine
	default:
		return fmt.Sprintf("unknown shape type %q", in.Type), ""
	}

	id := p.newID()
	fields := map[string]any{
		"type":  string(typ),
		"x":     in.X,
		"y":     in.Y,
		"color": firstNonEmpty(in.Color, "#60a5fa"),
	}
	switch typ {
	case model.TypeRectangle:
		fields["width"] = firstPositive(in.Width, 120)
		fields["height"] = firstPositive(in.Height, 80)
	case model.TypeCircle:
		fields["radius"] = firstPositive(in.Radius, 50)
	case model.TypeLine:
		if len(in.Points) == 4 {
			fields["points"] = in.Points
		} else {
			fields["points"] = []float64{0, 0, 120, 0}
		}
	}
	p.create(id, fields)
	return fmt.Sprintf("created %s %s", in.Type, id), id
}

func handleCreateFrame(p *plan, input json.RawMessage) (string, string) {
	var in struct {
		X, Y, Width, Height float64
		Text                string
	}
	if err := decode(input, &in); err != nil {
		return err.Error(), ""
	}
	id := p.newID()
	fields := map[string]any{
		"type":   string(model.TypeFrame),
		"x":      in.X,
		"y":      in.Y,
		"width":  firstPositive(in.Width, 400),
		"height": firstPositive(in.Height, 300),
	}
	if in.Text != "" {
		fields["text"] = in.Text
	}
	p.create(id, fields)
	return fmt.Sprintf("created frame %s", id), id
}

func handleCreateConnector(p *plan, input json.RawMessage) (string, string) {
	var in struct {
		FromId, ToId, LineStyle string
		ArrowHead               bool
	}
	if err := decode(input, &in); err != nil {
		return err.Error(), ""
	}
	if !requireKnown(p, in.FromId) {
		return fmt.Sprintf("unknown fromId %q, connector not created", in.FromId), ""
	}
	if !requireKnown(p, in.ToId) {
		return fmt.Sprintf("unknown toId %q, connector not created", in.ToId), ""
	}

	id := p.newID()
	fields := map[string]any{
		"type":          string(model.TypeConnector),
		"x":             0.0,
		"y":             0.0,
		"connectedFrom": in.FromId,
		"connectedTo":   in.ToId,
		"style": map[string]any{
			"lineStyle": firstNonEmpty(in.LineStyle, "solid"),
			"arrowHead": in.ArrowHead,
		},
	}
	p.create(id, fields)
	return fmt.Sprintf("created connector %s from %s to %s", id, in.FromId, in.ToId), id
}

func handleMoveObject(p *plan, input json.RawMessage) (string, string) {
	var in struct {
		ObjectId string
		X, Y     float64
	}
	if err := decode(input, &in); err != nil {
		return err.Error(), ""
	}
	if !requireKnown(p, in.ObjectId) {
		return fmt.Sprintf("unknown objectId %q, move not applied", in.ObjectId), ""
	}
	p.merge(in.ObjectId, map[string]any{"x": in.X, "y": in.Y})
	return fmt.Sprintf("moved %s to (%.0f, %.0f)", in.ObjectId, in.X, in.Y), in.ObjectId
}

func handleResizeObject(p *plan, input json.RawMessage) (string, string) {
	var in struct {
		ObjectId             string
		Width, Height        float64
		Radius               float64
	}
	if err := decode(input, &in); err != nil {
		return err.Error(), ""
	}
	if !requireKnown(p, in.ObjectId) {
		return fmt.Sprintf("unknown objectId %q, resize not applied", in.ObjectId), ""
	}
	fields := map[string]any{}
	if in.Width > 0 {
		fields["width"] = in.Width
	}
	if in.Height > 0 {
		fields["height"] = in.Height
	}
	if in.Radius > 0 {
		fields["radius"] = in.Radius
	}
	p.merge(in.ObjectId, fields)
	return fmt.Sprintf("resized %s", in.ObjectId), in.ObjectId
}

func handleUpdateText(p *plan, input json.RawMessage) (string, string) {
	var in struct {
		ObjectId, Text string
	}
	if err := decode(input, &in); err != nil {
		return err.Error(), ""
	}
	if !requireKnown(p, in.ObjectId) {
		return fmt.Sprintf("unknown objectId %q, text not updated", in.ObjectId), ""
	}
	p.merge(in.ObjectId, map[string]any{"text": in.Text})
	return fmt.Sprintf("updated text on %s", in.ObjectId), in.ObjectId
}

func handleChangeColor(p *plan, input json.RawMessage) (string, string) {
	var in struct {
		ObjectId, Color string
	}
	if err := decode(input, &in); err != nil {
		return err.Error(), ""
	}
	if !requireKnown(p, in.ObjectId) {
		return fmt.Sprintf("unknown objectId %q, color not changed", in.ObjectId), ""
	}
	if err := model.ValidateColor(in.Color); err != nil {
		return err.Error(), ""
	}
	p.merge(in.ObjectId, map[string]any{"color": in.Color})
	return fmt.Sprintf("changed color of %s to %s", in.ObjectId, in.Color), in.ObjectId
}

func handleUpdateConnectorStyle(p *plan, input json.RawMessage) (string, string) {
	var in struct {
		ObjectId  string
		LineStyle *string
		ArrowHead *bool
	}
	if err := decode(input, &in); err != nil {
		return err.Error(), ""
	}
	if !requireKnown(p, in.ObjectId) {
		return fmt.Sprintf("unknown objectId %q, style not updated", in.ObjectId), ""
	}

	// Partial update (spec §4.7 updateConnectorStyle(objectId, lineStyle?,
	// arrowHead?)): start from the connector's current style and overlay
	// only the fields the caller actually provided, so omitting one field
	// never resets the other to its zero value.
	current := model.ConnectorStyle{LineStyle: model.LineStyleSolid}
	if existing, ok := p.objects[in.ObjectId]; ok && existing.style != nil {
		current = *existing.style
	}
	if in.LineStyle != nil {
		current.LineStyle = *in.LineStyle
	}
	if in.ArrowHead != nil {
		current.ArrowHead = *in.ArrowHead
	}

	p.merge(in.ObjectId, map[string]any{"style": map[string]any{
		"lineStyle": current.LineStyle,
		"arrowHead": current.ArrowHead,
	}})
	return fmt.Sprintf("updated connector style on %s", in.ObjectId), in.ObjectId
}

func handleDeleteObject(p *plan, input json.RawMessage) (string, string) {
	var in struct {
		ObjectId string
	}
	if err := decode(input, &in); err != nil {
		return err.Error(), ""
	}
	if !requireKnown(p, in.ObjectId) {
		return fmt.Sprintf("unknown objectId %q, nothing deleted", in.ObjectId), ""
	}
	p.deleteCascading(in.ObjectId)
	return fmt.Sprintf("deleted %s", in.ObjectId), in.ObjectId
}

func handleGetBoardState(p *plan, _ json.RawMessage) (string, string) {
	if len(p.objects) == 0 {
		return "the board is empty", ""
	}
	summary := make([]string, 0, len(p.objects))
	for id, o := range p.objects {
		b := o.bbox
		summary = append(summary, fmt.Sprintf("%s: %s at (%.0f,%.0f) size %.0fx%.0f",
			id, o.typ, b.MinX, b.MinY, b.Width(), b.Height()))
	}
	encoded, err := json.Marshal(summary)
	if err != nil {
		return err.Error(), ""
	}
	return string(encoded), ""
}

func firstNonEmpty(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}

func firstPositive(v, fallback float64) float64 {
	if v > 0 {
		return v
	}
	return fallback
}

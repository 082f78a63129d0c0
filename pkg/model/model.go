// Package model defines the canvas data model shared by every component:
// boards, the seven discriminated object types, and the validation rules
// that keep them well-formed (spec §3).
package model

import (
	"fmt"
	"math"
	"regexp"
	"time"
)

// ObjectType discriminates the seven drawable kinds a board can contain.
type ObjectType string

const (
	TypeSticky    ObjectType = "sticky"
	TypeRectangle ObjectType = "rectangle"
	TypeCircle    ObjectType = "circle"
	TypeLine      ObjectType = "line"
	TypeText      ObjectType = "text"
	TypeFrame     ObjectType = "frame"
	TypeConnector ObjectType = "connector"
)

func (t ObjectType) Valid() bool {
	switch t {
	case TypeSticky, TypeRectangle, TypeCircle, TypeLine, TypeText, TypeFrame, TypeConnector:
		return true
	}
	return false
}

// ConnectorStyle holds the two style knobs a connector exposes.
type ConnectorStyle struct {
	LineStyle string `json:"lineStyle"`
	ArrowHead bool   `json:"arrowHead"`
}

const (
	LineStyleSolid  = "solid"
	LineStyleDashed = "dashed"
)

// Board is the unit of subscription and presence (spec §3).
type Board struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedBy string    `json:"createdBy"`
	CreatedAt time.Time `json:"createdAt"`
}

// Object is the common envelope plus every type-specific optional field.
// The spec requires validation to fail if a field incompatible with the
// declared type is present (§9 "Polymorphic objects").
type Object struct {
	ID       string     `json:"id"`
	BoardID  string     `json:"-"`
	Type     ObjectType `json:"type"`
	X        float64    `json:"x"`
	Y        float64    `json:"y"`
	Width    float64    `json:"width,omitempty"`
	Height   float64    `json:"height,omitempty"`
	Rotation float64    `json:"rotation,omitempty"`
	Color    string     `json:"color,omitempty"`
	ZIndex   int        `json:"zIndex,omitempty"`
	Text     *string    `json:"text,omitempty"`

	FontSize      *float64        `json:"fontSize,omitempty"`
	Radius        *float64        `json:"radius,omitempty"`
	Points        []float64       `json:"points,omitempty"`
	ConnectedFrom *string         `json:"connectedFrom,omitempty"`
	ConnectedTo   *string         `json:"connectedTo,omitempty"`
	Style         *ConnectorStyle `json:"style,omitempty"`

	LastEditedBy string    `json:"lastEditedBy,omitempty"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// CursorPos is a world-space cursor position.
type CursorPos struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Presence is the ephemeral per-(board,user) state of §3.
type Presence struct {
	BoardID      string    `json:"-"`
	UserID       string    `json:"userId"`
	DisplayName  string    `json:"displayName"`
	Cursor       CursorPos `json:"cursor"`
	CursorColor  string    `json:"cursorColor"`
	LastSeen     time.Time `json:"lastSeen"`
}

var hexColorPattern = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

const maxTextLength = 10000

// ValidateColor checks the fixed-width hex color format the mutation API
// requires (spec §4.6).
func ValidateColor(c string) error {
	if c == "" {
		return nil
	}
	if !hexColorPattern.MatchString(c) {
		return fmt.Errorf("color %q is not a #rrggbb hex string", c)
	}
	return nil
}

// Finite reports whether f is a usable coordinate or dimension: neither NaN
// nor +/-Inf.
func Finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// ValidateObject enforces the type-specific shape and numeric invariants of
// §3: sized shapes need positive width/height (radius for circles, four
// point values for lines), connector geometry is pinned to zero, coordinates are finite,
// text is bounded, and fields foreign to the declared type are rejected.
func ValidateObject(o *Object) error {
	if !o.Type.Valid() {
		return fmt.Errorf("unknown object type %q", o.Type)
	}
	if !Finite(o.X) || !Finite(o.Y) {
		return fmt.Errorf("coordinates must be finite")
	}
	if o.Text != nil && len(*o.Text) > maxTextLength {
		return fmt.Errorf("text exceeds maximum length of %d characters", maxTextLength)
	}
	if err := ValidateColor(o.Color); err != nil {
		return err
	}

	hasCircleFields := o.Radius != nil
	hasLineFields := o.Points != nil
	hasConnectorFields := o.ConnectedFrom != nil || o.ConnectedTo != nil || o.Style != nil
	hasFontSize := o.FontSize != nil

	switch o.Type {
	case TypeCircle:
		if hasLineFields || hasConnectorFields || hasFontSize {
			return fmt.Errorf("circle object carries fields foreign to its type")
		}
		if o.Radius == nil || *o.Radius <= 0 {
			return fmt.Errorf("circle radius must be > 0")
		}
	case TypeLine:
		if hasCircleFields || hasConnectorFields || hasFontSize {
			return fmt.Errorf("line object carries fields foreign to its type")
		}
		if len(o.Points) != 4 {
			return fmt.Errorf("line requires exactly 4 point values [x0,y0,x1,y1]")
		}
	case TypeConnector:
		if hasCircleFields || hasLineFields || hasFontSize {
			return fmt.Errorf("connector object carries fields foreign to its type")
		}
		if o.ConnectedFrom == nil || o.ConnectedTo == nil {
			return fmt.Errorf("connector requires connectedFrom and connectedTo")
		}
		if o.Style != nil {
			if o.Style.LineStyle != LineStyleSolid && o.Style.LineStyle != LineStyleDashed {
				return fmt.Errorf("connector style.lineStyle must be solid or dashed")
			}
		}
		if o.Width != 0 || o.Height != 0 {
			return fmt.Errorf("connector width/height must be 0")
		}
	case TypeFrame:
		if hasCircleFields || hasLineFields || hasConnectorFields || hasFontSize {
			return fmt.Errorf("frame object carries fields foreign to its type")
		}
		if o.Width <= 0 || o.Height <= 0 {
			return fmt.Errorf("frame width/height must be > 0")
		}
	case TypeText:
		if hasCircleFields || hasLineFields || hasConnectorFields {
			return fmt.Errorf("text object carries fields foreign to its type")
		}
		if o.Width <= 0 || o.Height <= 0 {
			return fmt.Errorf("text width/height must be > 0")
		}
	case TypeSticky, TypeRectangle:
		if hasCircleFields || hasLineFields || hasConnectorFields || hasFontSize {
			return fmt.Errorf("%s object carries fields foreign to its type", o.Type)
		}
		if o.Width <= 0 || o.Height <= 0 {
			return fmt.Errorf("%s width/height must be > 0", o.Type)
		}
	}
	return nil
}

// BBox is an axis-aligned world-space bounding box.
type BBox struct {
	MinX, MinY, MaxX, MaxY float64
}

func (b BBox) Width() float64  { return b.MaxX - b.MinX }
func (b BBox) Height() float64 { return b.MaxY - b.MinY }

// Contains reports whether point (x,y) lies within the box (inclusive).
func (b BBox) Contains(x, y float64) bool {
	return x >= b.MinX && x <= b.MaxX && y >= b.MinY && y <= b.MaxY
}

// Union returns the smallest box enclosing both boxes.
func (b BBox) Union(o BBox) BBox {
	return BBox{
		MinX: math.Min(b.MinX, o.MinX),
		MinY: math.Min(b.MinY, o.MinY),
		MaxX: math.Max(b.MaxX, o.MaxX),
		MaxY: math.Max(b.MaxY, o.MaxY),
	}
}

// Area is used by the auto-fit pass to order frames from innermost to
// outermost (spec §4.7.1).
func (b BBox) Area() float64 {
	return b.Width() * b.Height()
}

// BoundingBox computes the world-space bbox of any non-connector object.
// Circle centers are offset by radius per spec §4.7.1; the spec explicitly
// leaves the circle bbox-derived heuristic untightened for Phase 2
// auto-fit (§9 open question), so this is the one and only bbox rule used
// everywhere a circle's extent matters.
func BoundingBox(o *Object) BBox {
	switch o.Type {
	case TypeCircle:
		r := 0.0
		if o.Radius != nil {
			r = *o.Radius
		}
		return BBox{MinX: o.X - r, MinY: o.Y - r, MaxX: o.X + r, MaxY: o.Y + r}
	case TypeLine:
		if len(o.Points) == 4 {
			x0, y0, x1, y1 := o.X+o.Points[0], o.Y+o.Points[1], o.X+o.Points[2], o.Y+o.Points[3]
			return BBox{
				MinX: math.Min(x0, x1), MinY: math.Min(y0, y1),
				MaxX: math.Max(x0, x1), MaxY: math.Max(y0, y1),
			}
		}
		return BBox{MinX: o.X, MinY: o.Y, MaxX: o.X, MaxY: o.Y}
	default:
		return BBox{MinX: o.X, MinY: o.Y, MaxX: o.X + o.Width, MaxY: o.Y + o.Height}
	}
}

package agent

import (
	"sort"

	"github.com/silapakurthi/collabboard/pkg/model"
)

// planObject is the minimal shape auto-fit needs: an id, its declared
// type, and a bbox recomputed from whatever the pending plan most recently
// set it to (so a frame created and resized in the same turn auto-fits
// against its final geometry, not its initial one).
type planObject struct {
	id    string
	typ   model.ObjectType
	bbox  model.BBox
	rect  rect                   // only meaningful for frames
	style *model.ConnectorStyle // only meaningful for connectors
}

type rect struct {
	x, y, w, h float64
}

func (r rect) bbox() model.BBox {
	return model.BBox{MinX: r.x, MinY: r.y, MaxX: r.x + r.w, MaxY: r.y + r.h}
}

// AutoFit grows every frame in objs to contain its assigned children with
// the given padding (padSide on the left/right edges, padTop/padBottom on
// the top/bottom edges), using a two-phase containment-then-spillover
// assignment. It returns the set of frame ids whose rect changed, in the
// order they should be applied (doesn't matter for correctness since
// writes are independent, but innermost-first mirrors natural nesting
// order).
//
// objs must contain the full merged (existing ∪ pending) object set. The
// map is mutated in place so nested frames observe each other's growth.
func AutoFit(objs map[string]*planObject, padSide, padTop, padBottom float64) []string {
	frames := make([]string, 0)
	for id, o := range objs {
		if o.typ == model.TypeFrame {
			frames = append(frames, id)
		}
	}
	if len(frames) == 0 {
		return nil
	}

	assignment := assignChildren(objs, frames)

	sort.Slice(frames, func(i, j int) bool {
		return objs[frames[i]].rect.bbox().Area() < objs[frames[j]].rect.bbox().Area()
	})

	var changed []string
	for _, frameID := range frames {
		frame := objs[frameID]
		children := assignment[frameID]
		if len(children) == 0 {
			continue
		}

		required := frame.rect.bbox()
		for _, childID := range children {
			c := objs[childID].bbox
			padded := model.BBox{
				MinX: c.MinX - padSide,
				MinY: c.MinY - padTop,
				MaxX: c.MaxX + padSide,
				MaxY: c.MaxY + padBottom,
			}
			required = required.Union(padded)
		}

		current := frame.rect.bbox()
		newBox := model.BBox{
			MinX: min(current.MinX, required.MinX),
			MinY: min(current.MinY, required.MinY),
			MaxX: max(current.MaxX, required.MaxX),
			MaxY: max(current.MaxY, required.MaxY),
		}

		if newBox != current {
			frame.rect = rect{x: newBox.MinX, y: newBox.MinY, w: newBox.Width(), h: newBox.Height()}
			frame.bbox = newBox
			changed = append(changed, frameID)
		}
	}
	return changed
}

// assignChildren implements the spec's two-phase child assignment.
func assignChildren(objs map[string]*planObject, frameIDs []string) map[string][]string {
	assigned := make(map[string]string, len(objs)) // childID -> frameID
	byArea := append([]string(nil), frameIDs...)
	sort.Slice(byArea, func(i, j int) bool {
		return objs[byArea[i]].rect.bbox().Area() < objs[byArea[j]].rect.bbox().Area()
	})

	// Phase 1: strict containment of the child's top-left, smallest frame
	// wins. A frame can itself be a child of an outer frame (nested frames),
	// so frames are not excluded from this loop. Connectors are excluded:
	// their bbox is the degenerate point (0,0) (model.BoundingBox's default
	// case), which would otherwise get claimed by whichever frame happens to
	// span the origin.
	for id, o := range objs {
		if o.typ == model.TypeConnector {
			continue
		}
		for _, frameID := range byArea {
			if frameID == id {
				continue
			}
			f := objs[frameID].rect.bbox()
			if strictlyContains(f, o.bbox.MinX, o.bbox.MinY) {
				assigned[id] = frameID
				break
			}
		}
	}

	// Phase 2: spillover for non-frame, non-connector objects only, nearest
	// frame by axis-wise gap, bounded by the object's own extent on that
	// axis. Connectors are skipped here for the same reason as in phase 1.
	for id, o := range objs {
		if o.typ == model.TypeFrame || o.typ == model.TypeConnector {
			continue
		}
		if _, ok := assigned[id]; ok {
			continue
		}
		best := ""
		bestGap := -1.0
		for _, frameID := range frameIDs {
			f := objs[frameID].rect.bbox()
			gapX := axisGap(o.bbox.MinX, o.bbox.MaxX, f.MinX, f.MaxX)
			gapY := axisGap(o.bbox.MinY, o.bbox.MaxY, f.MinY, f.MaxY)
			if gapX > o.bbox.Width() || gapY > o.bbox.Height() {
				continue
			}
			total := gapX + gapY
			if best == "" || total < bestGap {
				best, bestGap = frameID, total
			}
		}
		if best != "" {
			assigned[id] = best
		}
	}

	out := make(map[string][]string, len(frameIDs))
	for childID, frameID := range assigned {
		out[frameID] = append(out[frameID], childID)
	}
	return out
}

func strictlyContains(b model.BBox, x, y float64) bool {
	return x > b.MinX && x < b.MaxX && y > b.MinY && y < b.MaxY
}

// axisGap is the 1-D gap between an object's span and a frame's span along
// one axis: 0 if they overlap, otherwise the distance between the nearest
// edges.
func axisGap(oMin, oMax, fMin, fMax float64) float64 {
	if oMax < fMin {
		return fMin - oMax
	}
	if oMin > fMax {
		return oMin - fMax
	}
	return 0
}

package agent

import (
	"testing"

	"github.com/silapakurthi/collabboard/pkg/model"
)

const (
	testPadSide   = 30.0
	testPadTop    = 70.0
	testPadBottom = 30.0
)

func newFrame(x, y, w, h float64) *planObject {
	r := rect{x: x, y: y, w: w, h: h}
	return &planObject{typ: model.TypeFrame, rect: r, bbox: r.bbox()}
}

func newChild(typ model.ObjectType, x, y, w, h float64) *planObject {
	return &planObject{typ: typ, bbox: model.BBox{MinX: x, MinY: y, MaxX: x + w, MaxY: y + h}}
}

func TestAutoFitNoFramesIsNoop(t *testing.T) {
	objs := map[string]*planObject{
		"s1": newChild(model.TypeSticky, 0, 0, 10, 10),
	}
	if changed := AutoFit(objs, testPadSide, testPadTop, testPadBottom); changed != nil {
		t.Errorf("expected no frame changes, got %v", changed)
	}
}

func TestAutoFitGrowsFrameToContainChild(t *testing.T) {
	objs := map[string]*planObject{
		"f1": newFrame(0, 0, 100, 100),
		"s1": newChild(model.TypeSticky, 150, 150, 50, 50),
	}

	changed := AutoFit(objs, testPadSide, testPadTop, testPadBottom)
	if len(changed) != 1 || changed[0] != "f1" {
		t.Fatalf("expected f1 to change, got %v", changed)
	}

	f := objs["f1"].rect.bbox()
	wantMaxX := 150.0 + 50 + testPadSide
	wantMaxY := 150.0 + 50 + testPadBottom
	if f.MaxX < wantMaxX || f.MaxY < wantMaxY {
		t.Errorf("frame bbox %+v does not cover padded child at %v,%v", f, wantMaxX, wantMaxY)
	}
}

func TestAutoFitFrameAlreadyContainsChildIsNoop(t *testing.T) {
	objs := map[string]*planObject{
		"f1": newFrame(0, 0, 1000, 1000),
		"s1": newChild(model.TypeSticky, 100, 200, 20, 20),
	}

	changed := AutoFit(objs, testPadSide, testPadTop, testPadBottom)
	if changed != nil {
		t.Errorf("expected no change when frame already covers padded child, got %v", changed)
	}
}

func TestAutoFitAssignsToSmallestContainingFrame(t *testing.T) {
	objs := map[string]*planObject{
		"outer": newFrame(0, 0, 500, 500),
		"inner": newFrame(200, 200, 100, 100),
		"s1":    newChild(model.TypeSticky, 220, 220, 10, 10),
	}

	changed := AutoFit(objs, testPadSide, testPadTop, testPadBottom)

	for _, id := range changed {
		if id == "outer" {
			t.Errorf("expected the sticky to grow only the smaller nested frame, not outer")
		}
	}
}

func TestAutoFitSpilloverAssignsNearestFrame(t *testing.T) {
	objs := map[string]*planObject{
		"f1": newFrame(0, 0, 100, 100),
		"s1": newChild(model.TypeSticky, 105, 40, 10, 10),
	}

	changed := AutoFit(objs, testPadSide, testPadTop, testPadBottom)
	if len(changed) != 1 || changed[0] != "f1" {
		t.Fatalf("expected spillover child to grow f1, got %v", changed)
	}
}

func TestAutoFitSpilloverOutOfRangeIsIgnored(t *testing.T) {
	objs := map[string]*planObject{
		"f1": newFrame(0, 0, 100, 100),
		"s1": newChild(model.TypeSticky, 10000, 10000, 10, 10),
	}

	if changed := AutoFit(objs, testPadSide, testPadTop, testPadBottom); changed != nil {
		t.Errorf("expected a far-away object not to be assigned to any frame, got %v", changed)
	}
}

func TestStrictlyContains(t *testing.T) {
	b := model.BBox{MinX: 0, MinY: 0, MaxX: 10, MaxY: 10}
	if !strictlyContains(b, 5, 5) {
		t.Error("expected interior point to be contained")
	}
	if strictlyContains(b, 0, 5) {
		t.Error("expected edge point not to be strictly contained")
	}
	if strictlyContains(b, 10, 10) {
		t.Error("expected far corner not to be strictly contained")
	}
}

func TestAxisGap(t *testing.T) {
	if g := axisGap(0, 5, 0, 5); g != 0 {
		t.Errorf("overlapping spans should have zero gap, got %v", g)
	}
	if g := axisGap(10, 15, 0, 5); g != 5 {
		t.Errorf("expected gap of 5, got %v", g)
	}
	if g := axisGap(-10, -5, 0, 5); g != 5 {
		t.Errorf("expected gap of 5 on the other side, got %v", g)
	}
}

package raster

import (
	"image"
	"image/color"
	"testing"

	"github.com/paulmach/orb"
)

// 360×180 等距圆柱：1 像素 = 1 度
func square(lon0, lat0, lon1, lat1 float64, ccw bool) orb.Ring {
	r := orb.Ring{{lon0, lat0}, {lon1, lat0}, {lon1, lat1}, {lon0, lat1}}
	if !ccw {
		r = orb.Ring{{lon0, lat0}, {lon0, lat1}, {lon1, lat1}, {lon1, lat0}}
	}
	return r
}

func TestFillPolygon(t *testing.T) {
	t.Parallel()

	f := NewFiller(360, 180, Equirect(360, 180))
	f.FillPolygon(orb.Polygon{square(-50, -50, 50, 50, true)})
	cov := f.Coverage()
	if got := cov.AlphaAt(180, 90).A; got != 255 {
		t.Fatalf("center coverage=%d want 255", got)
	}
	if got := cov.AlphaAt(10, 10).A; got != 0 {
		t.Fatalf("outside coverage=%d want 0", got)
	}
}

func TestFillPolygonHoleWinding(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		holeCCW  bool
		wantHole uint8
	}{
		{"opposite orientation leaves hole", false, 0},
		{"same orientation fills hole", true, 255},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			f := NewFiller(360, 180, Equirect(360, 180))
			f.FillPolygon(orb.Polygon{
				square(-50, -50, 50, 50, true),
				square(-10, -10, 10, 10, tc.holeCCW),
			})
			if got := f.Coverage().AlphaAt(180, 90).A; got != tc.wantHole {
				t.Fatalf("hole coverage=%d want %d", got, tc.wantHole)
			}
			if got := f.Coverage().AlphaAt(150, 90).A; got != 255 {
				t.Fatalf("ring body coverage=%d want 255", got)
			}
		})
	}
}

func TestFillSkipsDegenerateRings(t *testing.T) {
	t.Parallel()

	f := NewFiller(360, 180, Equirect(360, 180))
	f.FillPolygon(orb.Polygon{{{0, 0}, {10, 10}}})
	f.FillGeometry(orb.LineString{{0, 0}, {10, 10}, {20, 0}})
	for _, v := range f.Coverage().Pix {
		if v != 0 {
			t.Fatal("degenerate input produced coverage")
		}
	}
}

func TestFillOffCanvasPolygon(t *testing.T) {
	t.Parallel()

	f := NewFiller(360, 180, Equirect(360, 180))
	// 左半部分落在画布外
	f.FillPolygon(orb.Polygon{square(-200, -20, -160, 20, true)})
	if got := f.Coverage().AlphaAt(5, 90).A; got != 255 {
		t.Fatalf("clipped coverage=%d want 255", got)
	}
	if got := f.Coverage().AlphaAt(30, 90).A; got != 0 {
		t.Fatalf("coverage past right edge=%d want 0", got)
	}
}

func TestStrokeLine(t *testing.T) {
	t.Parallel()

	s := NewStroker(360, 180, Equirect(360, 180))
	s.SetWidth(4)
	s.StrokeLine(orb.LineString{{-100, 0}, {100, 0}})
	s.StrokeLine(orb.LineString{{0, 60}})
	m := s.Mask()
	if got := m.AlphaAt(180, 90).A; got == 0 {
		t.Fatal("no coverage on the stroked line")
	}
	if got := m.AlphaAt(180, 30).A; got != 0 {
		t.Fatalf("single-point line drew coverage %d", got)
	}
	if got := m.AlphaAt(180, 120).A; got != 0 {
		t.Fatalf("coverage far from line=%d", got)
	}
}

func TestStrokeRingsIsOpen(t *testing.T) {
	t.Parallel()

	// 环未闭合：最后一点到第一点之间不描边
	s := NewStroker(360, 180, Equirect(360, 180))
	s.SetWidth(2)
	s.StrokeRings(orb.Polygon{{{-50, 0}, {50, 0}, {50, 50}}})
	m := s.Mask()
	if m.AlphaAt(180, 90).A == 0 {
		t.Fatal("first edge missing")
	}
	// (−50,0)→(50,50) 的对角线中点约在 lon=0, lat=25
	if got := m.AlphaAt(180, 65).A; got != 0 {
		t.Fatalf("closing edge drawn: %d", got)
	}
}

func TestDiscs(t *testing.T) {
	t.Parallel()

	s := NewStroker(100, 50, Equirect(100, 50))
	s.Disc(20, 20, 3)
	s.Disc(70, 30, 3)
	s.FillDiscs()
	m := s.Mask()
	if m.AlphaAt(20, 20).A != 255 || m.AlphaAt(70, 30).A != 255 {
		t.Fatal("disc centers not filled")
	}
	if m.AlphaAt(45, 25).A != 0 {
		t.Fatal("gap between discs filled")
	}
}

func TestSourceOverAndDestinationOut(t *testing.T) {
	t.Parallel()

	dst := image.NewNRGBA(image.Rect(0, 0, 4, 1))
	cov := image.NewAlpha(dst.Rect)
	cov.Pix[0], cov.Pix[1] = 255, 255

	SourceOver(dst, cov, color.NRGBA{R: 255, A: 255})
	if got := dst.NRGBAAt(0, 0); got != (color.NRGBA{R: 255, A: 255}) {
		t.Fatalf("lake pixel=%v", got)
	}
	if got := dst.NRGBAAt(2, 0); got.A != 0 {
		t.Fatalf("uncovered pixel=%v", got)
	}

	// 不透明绿色覆盖红色
	g := image.NewAlpha(dst.Rect)
	g.Pix[1] = 255
	SourceOver(dst, g, color.NRGBA{G: 255, A: 255})
	if got := dst.NRGBAAt(1, 0); got != (color.NRGBA{G: 255, A: 255}) {
		t.Fatalf("river over lake=%v", got)
	}

	erode := image.NewAlpha(dst.Rect)
	erode.Pix[0] = 255
	DestinationOut(dst, erode)
	if got := dst.NRGBAAt(0, 0).A; got != 0 {
		t.Fatalf("eroded alpha=%d want 0", got)
	}
	if got := dst.NRGBAAt(1, 0).A; got != 255 {
		t.Fatalf("untouched alpha=%d want 255", got)
	}

	half := image.NewAlpha(dst.Rect)
	half.Pix[1] = 128
	DestinationOut(dst, half)
	if got := dst.NRGBAAt(1, 0).A; got < 126 || got > 128 {
		t.Fatalf("half eroded alpha=%d", got)
	}
}

package countries

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"globe-core/internal/geodata"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

func square(lon0, lat0, lon1, lat1 float64) orb.Ring {
	return orb.Ring{{lon0, lat0}, {lon1, lat0}, {lon1, lat1}, {lon0, lat1}, {lon0, lat0}}
}

func feature(name string, polys ...orb.Polygon) Feature {
	f, ok := NormalizeFeature(&geojson.Feature{
		Geometry:   orb.MultiPolygon(polys),
		Properties: geojson.Properties{"ADMIN": name},
	})
	if !ok {
		panic("no geometry")
	}
	return f
}

func TestWithinWrapped(t *testing.T) {
	t.Parallel()

	cases := []struct {
		x, min, max float64
		want        bool
	}{
		{179.5, 179, -179, true},
		{-179.5, 179, -179, true},
		{0, 179, -179, false},
		{5, 0, 10, true},
		{11, 0, 10, false},
	}
	for _, c := range cases {
		if got := withinWrapped(c.x, c.min, c.max); got != c.want {
			t.Errorf("withinWrapped(%v,%v,%v)=%v want %v", c.x, c.min, c.max, got, c.want)
		}
	}
}

func TestHoleToggles(t *testing.T) {
	t.Parallel()

	fs := []Feature{feature("Ring", orb.Polygon{square(0, 0, 10, 10), square(4, 4, 6, 6)})}
	if got := FindAt(fs, 5, 5); got != nil {
		t.Fatalf("point in hole matched %q", got.Name)
	}
	if got := FindAt(fs, 2, 2); got == nil || got.Name != "Ring" {
		t.Fatalf("point in ring body=%v", got)
	}
	if got := FindAt(fs, 20, 20); got != nil {
		t.Fatal("point outside matched")
	}
}

func TestDatelinePolygon(t *testing.T) {
	t.Parallel()

	f := feature("Dateline", orb.Polygon{{{170, -10}, {-170, -10}, {-170, 10}, {170, 10}}})
	if f.BBox[0] != 170 || f.BBox[2] != -170 {
		t.Fatalf("bbox=%v want wrapped 170..-170", f.BBox)
	}
	if c := f.Centroid; c[0] != 180 || c[1] != 0 {
		t.Fatalf("centroid=%v want (180,0)", c)
	}
	fs := []Feature{f}
	for _, lon := range []float64{179, -179, 180, 540 - 1} {
		if got := FindAt(fs, lon, 0); got == nil {
			t.Errorf("lon %v: no match", lon)
		}
	}
	if got := FindAt(fs, 0, 0); got != nil {
		t.Fatal("lon 0 matched a dateline polygon")
	}
}

func TestCentroidDisambiguation(t *testing.T) {
	t.Parallel()

	big := feature("Big", orb.Polygon{square(-20, -20, 20, 20)})
	small := feature("Small", orb.Polygon{square(5, 5, 15, 15)})
	for _, fs := range [][]Feature{{big, small}, {small, big}} {
		if got := FindAt(fs, 6, 6); got == nil || got.Name != "Small" {
			t.Fatalf("FindAt(6,6)=%v want Small", got)
		}
		if got := FindAt(fs, -1, -1); got == nil || got.Name != "Big" {
			t.Fatalf("FindAt(-1,-1)=%v want Big", got)
		}
	}
}

func TestNormalizeFeatureNames(t *testing.T) {
	t.Parallel()

	f, ok := NormalizeFeature(&geojson.Feature{
		Geometry: orb.Polygon{square(0, 0, 1, 1)},
		Properties: geojson.Properties{
			"NAME_EN": "", "ADMIN": "Kosovo", "ISO_A3_EH": "-99", "ADM0_A3": "KOS",
		},
	})
	if !ok || f.Name != "Kosovo" || f.ISO3 != "" {
		t.Fatalf("feature=%+v ok=%v", f, ok)
	}
	if _, ok := NormalizeFeature(&geojson.Feature{Geometry: orb.Point{1, 1}}); ok {
		t.Fatal("point geometry accepted")
	}
}

const countriesJSON = `{"type":"FeatureCollection","features":[
 {"type":"Feature","properties":{"ADMIN":"Finland","ISO_A3_EH":"FIN"},"geometry":{"type":"Polygon","coordinates":[[[20,59],[32,59],[32,70],[20,70],[20,59]]]}}]}`

func TestStoreRetriesAfterFailure(t *testing.T) {
	t.Parallel()

	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(countriesJSON))
	}))
	defer srv.Close()

	st := NewStore(geodata.NewRegistry(geodata.NewFetcherWithBase(srv.Client(), srv.URL)))
	if _, err := st.Load(context.Background()); !errors.Is(err, geodata.ErrStatus) {
		t.Fatalf("first load err=%v want ErrStatus", err)
	}
	f, err := st.FindAt(context.Background(), 25, 62)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if f == nil || f.ISO3 != "FIN" {
		t.Fatalf("FindAt=%v", f)
	}
	if _, err := st.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Fatalf("calls=%d want 2", n)
	}
}

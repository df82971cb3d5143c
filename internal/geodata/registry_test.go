package geodata

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

const lakeFC = `{"type":"FeatureCollection","features":[
 {"type":"Feature","properties":{"name":"A"},"geometry":{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,1]]]}},
 {"type":"Feature","properties":{"name":"nogeom"},"geometry":null}
]}`

// geoServer serves lakeFC for any dataset listed in ok and 404 for the rest.
func geoServer(t *testing.T, ok map[string]bool, hits *int32, delay time.Duration) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			atomic.AddInt32(hits, 1)
		}
		if delay > 0 {
			time.Sleep(delay)
		}
		name := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/"), ".geojson")
		if !ok[name] {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("content-type", "application/geo+json")
		_, _ = w.Write([]byte(lakeFC))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCollectionDecodes(t *testing.T) {
	t.Parallel()

	srv := geoServer(t, map[string]bool{"ne_110m_lakes": true}, nil, 0)
	reg := NewRegistry(NewFetcherWithBase(srv.Client(), srv.URL))
	fc, err := reg.Collection(context.Background(), Name(ThemeLakes, Res110m))
	if err != nil {
		t.Fatalf("Collection: %v", err)
	}
	if len(fc.Features) != 2 {
		t.Fatalf("features=%d want 2", len(fc.Features))
	}
	if got := len(Polygons(fc.Features[1].Geometry)); got != 0 {
		t.Fatalf("null geometry yielded %d polygons", got)
	}
	if got := len(Polygons(fc.Features[0].Geometry)); got != 1 {
		t.Fatalf("Polygons=%d want 1", got)
	}
}

func TestRegistrySharesInFlightLoad(t *testing.T) {
	t.Parallel()

	var hits int32
	srv := geoServer(t, map[string]bool{"ne_50m_lakes": true}, &hits, 50*time.Millisecond)
	reg := NewRegistry(NewFetcherWithBase(srv.Client(), srv.URL))

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := reg.Collection(context.Background(), "ne_50m_lakes")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("Collection: %v", err)
		}
	}
	if _, err := reg.Collection(context.Background(), "ne_50m_lakes"); err != nil {
		t.Fatalf("cached Collection: %v", err)
	}
	if n := atomic.LoadInt32(&hits); n != 1 {
		t.Fatalf("server hits=%d want 1", n)
	}
}

func TestRegistryFailureIsRetried(t *testing.T) {
	t.Parallel()

	var fail atomic.Bool
	fail.Store(true)
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		if fail.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(lakeFC))
	}))
	defer srv.Close()
	reg := NewRegistry(NewFetcherWithBase(srv.Client(), srv.URL))

	_, err := reg.Collection(context.Background(), "x")
	if !errors.Is(err, ErrStatus) {
		t.Fatalf("err=%v want ErrStatus", err)
	}
	if _, ok := reg.Cached("fc:x"); ok {
		t.Fatal("failed load must not be cached")
	}
	fail.Store(false)
	if _, err := reg.Collection(context.Background(), "x"); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if n := atomic.LoadInt32(&hits); n != 2 {
		t.Fatalf("hits=%d want 2", n)
	}
}

func TestFirstAvailableFallsBack(t *testing.T) {
	t.Parallel()

	srv := geoServer(t, map[string]bool{"ne_110m_admin_0_boundary_lines_land": true}, nil, 0)
	reg := NewRegistry(NewFetcherWithBase(srv.Client(), srv.URL))
	_, name, err := reg.FirstAvailable(context.Background(),
		Name(ThemeBorders, Res50m), Name(ThemeBorders, Res110m))
	if err != nil {
		t.Fatalf("FirstAvailable: %v", err)
	}
	if name != "ne_110m_admin_0_boundary_lines_land" {
		t.Fatalf("picked %q", name)
	}

	_, _, err = reg.FirstAvailable(context.Background(), "missing_a", "missing_b")
	if !errors.Is(err, ErrNoTier) || !errors.Is(err, ErrStatus) {
		t.Fatalf("err=%v want ErrNoTier wrapping ErrStatus", err)
	}
}

func TestPreferSettledKeepsPreferenceOrder(t *testing.T) {
	t.Parallel()

	srv := geoServer(t, map[string]bool{"ne_50m_lakes": true, "ne_110m_lakes": true}, nil, 0)
	reg := NewRegistry(NewFetcherWithBase(srv.Client(), srv.URL))
	_, name, err := reg.PreferSettled(context.Background(), "ne_10m_lakes", "ne_50m_lakes", "ne_110m_lakes")
	if err != nil {
		t.Fatalf("PreferSettled: %v", err)
	}
	if name != "ne_50m_lakes" {
		t.Fatalf("picked %q want ne_50m_lakes", name)
	}
}

func TestPropHelpers(t *testing.T) {
	t.Parallel()

	props := map[string]any{"NAME": "", "ADMIN": "Finland", "POP_MAX": "5500000", "pop": 12.0}
	if got := PropString(props, "NAME", "ADMIN"); got != "Finland" {
		t.Fatalf("PropString=%q", got)
	}
	if v, ok := PropFloat(props, "pop_max", "POP_MAX"); !ok || v != 5500000 {
		t.Fatalf("PropFloat=%v,%v", v, ok)
	}
	if _, ok := PropFloat(props, "missing"); ok {
		t.Fatal("missing key resolved")
	}
}

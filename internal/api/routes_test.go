package api

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"math"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"globe-core/internal/borders"
	"globe-core/internal/cities"
	"globe-core/internal/countries"
	"globe-core/internal/geodata"
	"globe-core/internal/population"
	"globe-core/internal/projection"
	"globe-core/internal/revgeo"
	"globe-core/internal/terrain"
	"globe-core/internal/water"
)

const (
	countriesJSON = `{"type":"FeatureCollection","features":[
 {"type":"Feature","properties":{"ADMIN":"Finland","ISO_A3_EH":"FIN"},"geometry":{"type":"Polygon","coordinates":[[[20,59],[32,59],[32,70],[20,70],[20,59]]]}}]}`
	placesJSON = `{"type":"FeatureCollection","features":[
 {"type":"Feature","properties":{"name":"Helsinki","adm0_a3":"FIN","pop_max":1300000},"geometry":{"type":"Point","coordinates":[24.94,60.17]}}]}`
	lakesJSON = `{"type":"FeatureCollection","features":[
 {"type":"Feature","properties":{},"geometry":{"type":"Polygon","coordinates":[[[-20,-20],[20,-20],[20,20],[-20,20],[-20,-20]]]}}]}`
	bordersJSON = `{"type":"FeatureCollection","features":[
 {"type":"Feature","properties":{},"geometry":{"type":"LineString","coordinates":[[0,-10],[0,10]]}}]}`
)

func tilePNG(t *testing.T, c color.NRGBA) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, terrain.TileSize, terrain.TileSize))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// 上游：/ne 下为 GeoJSON，/tiles 下为高程瓦片，/wb 下为 World Bank；其余 404
func newAPI(t *testing.T, files map[string]string) *httptest.Server {
	t.Helper()
	tile := tilePNG(t, color.NRGBA{R: 128, G: 100, B: 0, A: 255})
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/ne/"):
			name := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/ne/"), ".geojson")
			body, ok := files[name]
			if !ok {
				http.NotFound(w, r)
				return
			}
			_, _ = w.Write([]byte(body))
		case strings.HasPrefix(r.URL.Path, "/tiles/"):
			w.Header().Set("content-type", "image/png")
			_, _ = w.Write(tile)
		case strings.HasPrefix(r.URL.Path, "/wb/country/FIN/"):
			_, _ = w.Write([]byte(`[{"page":1},[{"date":"2023","value":5584264}]]`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(up.Close)

	reg := geodata.NewRegistry(geodata.NewFetcherWithBase(up.Client(), up.URL+"/ne"))
	cs := cities.NewStore(reg)
	ep := population.Endpoints{
		Wikipedia:   up.URL + "/w/api.php",
		WikidataAPI: up.URL + "/wd/api.php",
		EntityData:  up.URL + "/entity",
		SPARQL:      up.URL + "/sparql",
		WorldBank:   up.URL + "/wb",
	}
	mux := BuildRoutes(Deps{
		Terrain:    terrain.NewBuilderWith(up.Client(), up.URL+"/tiles/{z}/{x}/{y}.png", 4),
		Water:      water.NewBuilder(reg),
		Borders:    borders.NewBuilder(reg),
		Cities:     cs,
		Pick:       revgeo.NewOrchestrator(countries.NewStore(reg), cs),
		Population: population.NewService(population.NewClient(up.Client(), 0), ep, nil, 0),
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, srv *httptest.Server, path string) *http.Response {
	t.Helper()
	resp, err := srv.Client().Get(srv.URL + path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodePNG(t *testing.T, resp *http.Response) image.Image {
	t.Helper()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d", resp.StatusCode)
	}
	if ct := resp.Header.Get("content-type"); ct != "image/png" {
		t.Fatalf("content-type=%q", ct)
	}
	img, err := png.Decode(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return img
}

func TestTerrainFeedsPickElevation(t *testing.T) {
	t.Parallel()

	srv := newAPI(t, map[string]string{
		countries.DatasetName: countriesJSON,
		cities.DatasetName:    placesJSON,
	})
	resp := get(t, srv, "/terrain.png?z=1")
	img := decodePNG(t, resp)
	if img.Bounds().Dx() != 512 || img.Bounds().Dy() != 512 {
		t.Fatalf("bounds=%v", img.Bounds())
	}
	if resp.Header.Get("x-mosaic-width") != "512" || resp.Header.Get("x-texture-filter") != "nearest" {
		t.Fatalf("headers=%v", resp.Header)
	}
	if resp.Header.Get("x-missing-tiles") != "0" {
		t.Fatalf("missing=%q", resp.Header.Get("x-missing-tiles"))
	}

	v := projection.LonLatToLocal(24.9, 60.3, 1)
	resp = get(t, srv, "/pick?x="+ftoa(v.X)+"&y="+ftoa(v.Y)+"&z="+ftoa(v.Z))
	var p revgeo.Pick
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		t.Fatal(err)
	}
	if p.Country == nil || p.Country.ISO3 != "FIN" || p.City == nil || p.City.Name != "Helsinki" {
		t.Fatalf("pick=%+v", p)
	}
	if p.Elevation == nil || *p.Elevation != 100 {
		t.Fatalf("elevation=%v", p.Elevation)
	}
}

func TestMaskRoutes(t *testing.T) {
	t.Parallel()

	srv := newAPI(t, map[string]string{
		"ne_110m_lakes":                      lakesJSON,
		"ne_50m_admin_0_boundary_lines_land": bordersJSON,
		cities.DatasetName:                   placesJSON,
	})

	if img := decodePNG(t, get(t, srv, "/water.png?z=1&river=-3")); img.Bounds().Dx() != 512 {
		t.Fatalf("water bounds=%v", img.Bounds())
	}
	if img := decodePNG(t, get(t, srv, "/borders.png?z=1&alpha=7")); img.Bounds().Dx() != 512 {
		t.Fatalf("borders bounds=%v", img.Bounds())
	}
	img := decodePNG(t, get(t, srv, "/cities.png?size=512&threshold=1000"))
	if img.Bounds().Dx() != 512 || img.Bounds().Dy() != 256 {
		t.Fatalf("cities bounds=%v", img.Bounds())
	}
	// 尺寸参数被钳制而不是拒绝
	img = decodePNG(t, get(t, srv, "/cities.png?size=3"))
	if img.Bounds().Dx() != 256 {
		t.Fatalf("clamped size=%v", img.Bounds())
	}
}

func TestMaskRoutesWithoutData(t *testing.T) {
	t.Parallel()

	srv := newAPI(t, nil)
	for _, path := range []string{"/water.png?z=2", "/borders.png?z=2", "/cities.png"} {
		if resp := get(t, srv, path); resp.StatusCode != http.StatusNoContent {
			t.Errorf("%s: status=%d want 204", path, resp.StatusCode)
		}
	}
}

func TestCountryAndCity(t *testing.T) {
	t.Parallel()

	srv := newAPI(t, map[string]string{
		countries.DatasetName: countriesJSON,
		cities.DatasetName:    placesJSON,
	})

	var c countryResult
	resp := get(t, srv, "/country?lon=24.9&lat=60.3")
	if err := json.NewDecoder(resp.Body).Decode(&c); err != nil {
		t.Fatal(err)
	}
	if c.Name != "Finland" || c.ISO3 != "FIN" || c.Population == nil || *c.Population != 5584264 || c.Year == nil || *c.Year != 2023 {
		t.Fatalf("country=%+v", c)
	}

	var city cityResult
	resp = get(t, srv, "/city?lon=24.95&lat=60.2")
	if err := json.NewDecoder(resp.Body).Decode(&city); err != nil {
		t.Fatal(err)
	}
	if city.Name != "Helsinki" || city.Population != 1300000 || city.Wiki != nil {
		t.Fatalf("city=%+v", city)
	}

	for _, path := range []string{"/country?lon=-30&lat=0", "/city?lon=28&lat=68"} {
		resp := get(t, srv, path)
		var buf bytes.Buffer
		_, _ = buf.ReadFrom(resp.Body)
		if strings.TrimSpace(buf.String()) != "null" {
			t.Errorf("%s: body=%q want null", path, buf.String())
		}
	}
	if resp := get(t, srv, "/country?lon=abc&lat=1"); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status=%d", resp.StatusCode)
	}
}

func TestPickRejectsBadPoints(t *testing.T) {
	t.Parallel()

	srv := newAPI(t, nil)
	for _, path := range []string{"/pick?x=1", "/pick?x=0&y=0&z=0"} {
		if resp := get(t, srv, path); resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: status=%d", path, resp.StatusCode)
		}
	}
	// 国家数据集不可用：503
	v := projection.LonLatToLocal(10, 10, 1)
	if resp := get(t, srv, "/pick?x="+ftoa(v.X)+"&y="+ftoa(v.Y)+"&z="+ftoa(v.Z)); resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status=%d", resp.StatusCode)
	}
}

func TestSunAndViewpoint(t *testing.T) {
	t.Parallel()

	srv := newAPI(t, nil)
	var out struct {
		Y float64 `json:"y"`
	}
	resp := get(t, srv, "/sun?t=2024-06-20T20:51:00Z")
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if math.Abs(out.Y-math.Sin(23.44*math.Pi/180)) > 0.005 {
		t.Fatalf("y=%v", out.Y)
	}
	if resp := get(t, srv, "/sun?t=yesterday"); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status=%d", resp.StatusCode)
	}
	if resp := get(t, srv, "/viewpoint"); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("viewpoint status=%d", resp.StatusCode)
	}
}

func TestStaleBuildNotPublished(t *testing.T) {
	t.Parallel()

	l := newLayer[string]("test")
	release := make(chan struct{})
	started := make(chan struct{})
	done := make(chan string)
	go func() {
		v, _ := l.get(context.Background(), "a", func(context.Context) (string, error) {
			close(started)
			<-release
			return "A", nil
		})
		done <- v
	}()
	<-started
	v, err := l.get(context.Background(), "b", func(context.Context) (string, error) { return "B", nil })
	if err != nil || v != "B" {
		t.Fatalf("b=%q,%v", v, err)
	}
	close(release)
	// 旧构建的结果仍交给发起它的请求
	if got := <-done; got != "A" {
		t.Fatalf("a=%q", got)
	}
	if _, ok := l.slot.Get("a"); ok {
		t.Fatal("stale result published")
	}
	if v, ok := l.slot.Get("b"); !ok || v != "B" {
		t.Fatalf("current=%q,%v", v, ok)
	}
}

func TestGetClientIP(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		header map[string]string
		remote string
		want   string
	}{
		{"xff", map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1"}, "10.0.0.2:1234", "203.0.113.7"},
		{"real ip", map[string]string{"X-Real-IP": "198.51.100.4"}, "10.0.0.2:1234", "198.51.100.4"},
		{"forwarded v6", map[string]string{"Forwarded": `for="[2001:db8::1]:4711";proto=https`}, "10.0.0.2:1234", "2001:db8::1"},
		{"forwarded v4", map[string]string{"Forwarded": "for=192.0.2.60;proto=http"}, "10.0.0.2:1234", "192.0.2.60"},
		{"remote", nil, "192.0.2.1:5555", "192.0.2.1"},
	}
	for _, c := range cases {
		r := httptest.NewRequest(http.MethodGet, "/viewpoint", nil)
		r.RemoteAddr = c.remote
		for k, v := range c.header {
			r.Header.Set(k, v)
		}
		if got := getClientIP(r); got != c.want {
			t.Errorf("%s: got %q want %q", c.name, got, c.want)
		}
	}
}

func ftoa(f float64) string { return strconv.FormatFloat(f, 'g', -1, 64) }

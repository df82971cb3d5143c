package api

import (
	"errors"
	"net/http"
	"time"

	"globe-core/internal/population"
	"globe-core/internal/revgeo"
	"globe-core/internal/sun"
	"globe-core/internal/viewpoint"

	"github.com/golang/geo/r3"
)

// countryResult：/country 响应
type countryResult struct {
	Name       string   `json:"name"`
	ISO3       string   `json:"iso3"`
	Population *float64 `json:"population"`
	Year       *int     `json:"year"`
}

// cityResult：/city 响应；Wiki 为 Wikidata 人口（仅在查到时给出）
type cityResult struct {
	Name       string                 `json:"name"`
	ISO3       string                 `json:"iso3,omitempty"`
	Population float64                `json:"population"`
	Lon        float64                `json:"lon"`
	Lat        float64                `json:"lat"`
	DistanceKm float64                `json:"distance_km"`
	Wiki       *population.Population `json:"wiki,omitempty"`
}

// viewResult：/viewpoint 响应，x/y/z 为单位球上的锚点
type viewResult struct {
	*viewpoint.View
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (s *server) handlePick(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	x, okx := queryCoord(q, "x")
	y, oky := queryCoord(q, "y")
	z, okz := queryCoord(q, "z")
	if !okx || !oky || !okz {
		writeJSONStatus(w, http.StatusBadRequest, map[string]string{"error": "x, y, z required"})
		return
	}
	p, err := s.d.Pick.Pick(r.Context(), r3.Vector{X: x, Y: y, Z: z})
	if err != nil {
		writeLookupError(w, err)
		return
	}
	writeJSON(w, p)
}

// locate：解析 lon/lat 并走拾取编排（与 /pick 共用结果缓存）
func (s *server) locate(w http.ResponseWriter, r *http.Request) (*revgeo.Pick, bool) {
	q := r.URL.Query()
	lon, okLon := queryCoord(q, "lon")
	lat, okLat := queryCoord(q, "lat")
	if !okLon || !okLat {
		writeJSONStatus(w, http.StatusBadRequest, map[string]string{"error": "lon, lat required"})
		return nil, false
	}
	p, err := s.d.Pick.Locate(r.Context(), lon, clampFloat(lat, -90, 90))
	if err != nil {
		writeLookupError(w, err)
		return nil, false
	}
	return p, true
}

func (s *server) handleCountry(w http.ResponseWriter, r *http.Request) {
	p, ok := s.locate(w, r)
	if !ok {
		return
	}
	if p.Country == nil {
		writeJSON(w, nil)
		return
	}
	out := countryResult{Name: p.Country.Name, ISO3: p.Country.ISO3}
	if s.d.Population != nil {
		pop := s.d.Population.Country(r.Context(), population.CountryQuery{ISO3: p.Country.ISO3, Name: p.Country.Name})
		out.Population, out.Year = pop.Value, pop.Year
	}
	writeJSON(w, out)
}

func (s *server) handleCity(w http.ResponseWriter, r *http.Request) {
	p, ok := s.locate(w, r)
	if !ok {
		return
	}
	if p.City == nil {
		writeJSON(w, nil)
		return
	}
	c := p.City
	out := cityResult{Name: c.Name, ISO3: c.ISO3, Population: c.Population, Lon: c.Lon, Lat: c.Lat, DistanceKm: c.DistanceKm}
	if s.d.Population != nil {
		pop := s.d.Population.City(r.Context(), population.CityQuery{Name: c.Name, ISO3: c.ISO3, Lat: c.Lat, Lon: c.Lon})
		if pop.Found() {
			out.Wiki = &pop
		}
	}
	writeJSON(w, out)
}

func handleSun(w http.ResponseWriter, r *http.Request) {
	t := time.Now().UTC()
	if s := r.URL.Query().Get("t"); s != "" {
		pt, err := time.Parse(time.RFC3339, s)
		if err != nil {
			writeJSONStatus(w, http.StatusBadRequest, map[string]string{"error": "t must be RFC3339"})
			return
		}
		t = pt
	}
	v := sun.Direction(t)
	lon, lat := sun.Subsolar(t)
	writeJSON(w, map[string]any{
		"t":   t.UTC().Format(time.RFC3339),
		"x":   v.X,
		"y":   v.Y,
		"z":   v.Z,
		"lon": lon,
		"lat": lat,
	})
}

func (s *server) handleViewpoint(w http.ResponseWriter, r *http.Request) {
	if !s.d.Viewpoint.Enabled() {
		writeJSONStatus(w, http.StatusNotFound, map[string]string{"error": "viewpoint disabled"})
		return
	}
	v, err := s.d.Viewpoint.Locate(getClientIP(r))
	if err != nil {
		if errors.Is(err, viewpoint.ErrNotFound) {
			writeJSONStatus(w, http.StatusNotFound, map[string]string{"error": "no location for client"})
			return
		}
		writeLookupError(w, err)
		return
	}
	writeJSON(w, viewResult{View: v, X: v.Anchor.X, Y: v.Anchor.Y, Z: v.Anchor.Z})
}

func writeLookupError(w http.ResponseWriter, err error) {
	if errors.Is(err, revgeo.ErrInvalidPoint) {
		writeJSONStatus(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	writeJSONStatus(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
}

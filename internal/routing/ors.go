package routing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/example/ride-client/internal/models"
)

// ORSClient talks to openrouteservice, the provider the map widgets were
// built against.
type ORSClient struct {
	BaseURL string
	Key     string
	HTTP    *http.Client
}

type geoJSON struct {
	Features []struct {
		Geometry struct {
			Coordinates json.RawMessage `json:"coordinates"`
		} `json:"geometry"`
		Properties struct {
			Summary struct {
				Distance float64 `json:"distance"`
				Duration float64 `json:"duration"`
			} `json:"summary"`
		} `json:"properties"`
	} `json:"features"`
}

func (o *ORSClient) Route(ctx context.Context, from, to models.Coord) (Route, error) {
	body, _ := json.Marshal(map[string]any{
		"coordinates": [][2]float64{{from.Lon, from.Lat}, {to.Lon, to.Lat}},
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.base()+"/v2/directions/driving-car/geojson", bytes.NewReader(body))
	if err != nil {
		return Route{}, err
	}
	req.Header.Set("Authorization", o.Key)
	req.Header.Set("Content-Type", "application/json")
	var out geoJSON
	if err := o.do(req, &out); err != nil {
		return Route{}, err
	}
	if len(out.Features) == 0 {
		return Route{}, ErrNoRoute
	}
	f := out.Features[0]
	var lonlat [][2]float64
	if err := json.Unmarshal(f.Geometry.Coordinates, &lonlat); err != nil {
		return Route{}, fmt.Errorf("ors geometry: %w", err)
	}
	r := Route{Path: fromLonLat(lonlat), Distance: f.Properties.Summary.Distance}
	r.Duration = time.Duration(f.Properties.Summary.Duration * float64(time.Second))
	if r.Distance == 0 {
		r.Distance = PathLength(r.Path)
	}
	return r, nil
}

func (o *ORSClient) Geocode(ctx context.Context, text string) (models.Coord, error) {
	q := url.Values{"api_key": {o.Key}, "text": {text}, "size": {"1"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.base()+"/geocode/search?"+q.Encode(), nil)
	if err != nil {
		return models.Coord{}, err
	}
	var out geoJSON
	if err := o.do(req, &out); err != nil {
		return models.Coord{}, err
	}
	if len(out.Features) == 0 {
		return models.Coord{}, fmt.Errorf("%q: %w", text, ErrNoMatch)
	}
	var lonlat [2]float64
	if err := json.Unmarshal(out.Features[0].Geometry.Coordinates, &lonlat); err != nil {
		return models.Coord{}, fmt.Errorf("ors point: %w", err)
	}
	return models.Coord{Lat: lonlat[1], Lon: lonlat[0]}, nil
}

func (o *ORSClient) base() string {
	if o.BaseURL == "" {
		return "https://api.openrouteservice.org"
	}
	return strings.TrimRight(o.BaseURL, "/")
}

func (o *ORSClient) do(req *http.Request, out any) error {
	client := o.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ors %s: status %d", req.URL.Path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func fromLonLat(pts [][2]float64) []models.Coord {
	out := make([]models.Coord, 0, len(pts))
	for _, p := range pts {
		out = append(out, models.Coord{Lat: p[1], Lon: p[0]})
	}
	return out
}

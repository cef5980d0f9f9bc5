package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/example/ride-client/internal/models"
)

// OSRMClient performs route lookups against an OSRM HTTP server. OSRM has
// no geocoder.
type OSRMClient struct {
	Endpoint string
	Client   *http.Client
}

func NewOSRMClient(endpoint string) *OSRMClient {
	return &OSRMClient{Endpoint: endpoint, Client: &http.Client{Timeout: 2 * time.Second}}
}

func (o *OSRMClient) Route(ctx context.Context, from, to models.Coord) (Route, error) {
	// /route/v1/driving/{lon1},{lat1};{lon2},{lat2}
	u := fmt.Sprintf("%s/route/v1/driving/%.6f,%.6f;%.6f,%.6f?overview=full&geometries=geojson", o.Endpoint, from.Lon, from.Lat, to.Lon, to.Lat)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Route{}, err
	}
	resp, err := o.Client.Do(req)
	if err != nil {
		return Route{}, err
	}
	defer resp.Body.Close()
	var out struct {
		Routes []struct {
			Duration float64 `json:"duration"`
			Distance float64 `json:"distance"`
			Geometry struct {
				Coordinates [][2]float64 `json:"coordinates"`
			} `json:"geometry"`
		} `json:"routes"`
		Code string `json:"code"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Route{}, err
	}
	if out.Code != "Ok" || len(out.Routes) == 0 {
		return Route{}, fmt.Errorf("osrm %s: %w", out.Code, ErrNoRoute)
	}
	r := out.Routes[0]
	return Route{
		Path:     fromLonLat(r.Geometry.Coordinates),
		Distance: r.Distance,
		Duration: time.Duration(r.Duration * float64(time.Second)),
	}, nil
}

func (o *OSRMClient) Geocode(context.Context, string) (models.Coord, error) {
	return models.Coord{}, ErrGeocoding
}

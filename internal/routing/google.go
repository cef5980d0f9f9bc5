package routing

import (
	"context"
	"fmt"
	"time"

	"googlemaps.github.io/maps"

	"github.com/example/ride-client/internal/models"
)

// GoogleClient routes and geocodes through the Google Maps APIs.
type GoogleClient struct {
	client *maps.Client
}

func NewGoogleClient(apiKey string) (*GoogleClient, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &GoogleClient{client: client}, nil
}

func (g *GoogleClient) Route(ctx context.Context, from, to models.Coord) (Route, error) {
	r := &maps.DirectionsRequest{
		Origin:      latLng(from),
		Destination: latLng(to),
		Mode:        maps.TravelModeDriving,
	}
	routes, _, err := g.client.Directions(ctx, r)
	if err != nil {
		return Route{}, fmt.Errorf("maps api error: %w", err)
	}
	if len(routes) == 0 || len(routes[0].Legs) == 0 {
		return Route{}, ErrNoRoute
	}
	pts, err := routes[0].OverviewPolyline.Decode()
	if err != nil {
		return Route{}, fmt.Errorf("decode polyline: %w", err)
	}
	out := Route{Path: make([]models.Coord, 0, len(pts))}
	for _, p := range pts {
		out.Path = append(out.Path, models.Coord{Lat: p.Lat, Lon: p.Lng})
	}
	var d time.Duration
	for _, leg := range routes[0].Legs {
		out.Distance += float64(leg.Distance.Meters)
		d += leg.Duration
	}
	out.Duration = d
	return out, nil
}

func (g *GoogleClient) Geocode(ctx context.Context, text string) (models.Coord, error) {
	res, err := g.client.Geocode(ctx, &maps.GeocodingRequest{Address: text})
	if err != nil {
		return models.Coord{}, fmt.Errorf("maps api error: %w", err)
	}
	if len(res) == 0 {
		return models.Coord{}, fmt.Errorf("%q: %w", text, ErrNoMatch)
	}
	loc := res[0].Geometry.Location
	return models.Coord{Lat: loc.Lat, Lon: loc.Lng}, nil
}

func latLng(c models.Coord) string {
	return fmt.Sprintf("%.6f,%.6f", c.Lat, c.Lon)
}

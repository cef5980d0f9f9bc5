// Package routing resolves free-text places to coordinates and draws the
// driving route between them for the map widgets.
package routing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/example/ride-client/internal/models"
)

var (
	ErrNoRoute   = errors.New("no route found")
	ErrNoMatch   = errors.New("no geocoding match")
	ErrGeocoding = errors.New("provider does not geocode")
)

// Route is a driving route as a polyline.
type Route struct {
	Path     []models.Coord `json:"path"`
	Distance float64        `json:"distance_m"`
	Duration time.Duration  `json:"duration"`
}

type Router interface {
	Route(ctx context.Context, from, to models.Coord) (Route, error)
}

type Geocoder interface {
	Geocode(ctx context.Context, text string) (models.Coord, error)
}

// Provider is a routing backend that may also geocode.
type Provider interface {
	Router
	Geocoder
}

type Config struct {
	Provider    string
	ORSBaseURL  string
	ORSKey      string
	OSRMBaseURL string
	GoogleKey   string
	CacheTTL    time.Duration
	Timeout     time.Duration
}

// New builds the configured provider wrapped in a route cache.
func New(cfg Config) (Provider, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	client := &http.Client{Timeout: cfg.Timeout}
	var p Provider
	switch cfg.Provider {
	case "", "ors":
		p = &ORSClient{BaseURL: cfg.ORSBaseURL, Key: cfg.ORSKey, HTTP: client}
	case "osrm":
		p = &OSRMClient{Endpoint: cfg.OSRMBaseURL, Client: client}
	case "google":
		g, err := NewGoogleClient(cfg.GoogleKey)
		if err != nil {
			return nil, err
		}
		p = g
	default:
		return nil, fmt.Errorf("unknown routing provider %q", cfg.Provider)
	}
	if cfg.CacheTTL > 0 {
		p = &cached{Provider: p, cache: NewCache(cfg.CacheTTL)}
	}
	return p, nil
}

// RouteBetween geocodes both places and routes between them.
func RouteBetween(ctx context.Context, p Provider, pickup, destination string) (Route, error) {
	from, err := p.Geocode(ctx, pickup)
	if err != nil {
		return Route{}, fmt.Errorf("geocode pickup: %w", err)
	}
	to, err := p.Geocode(ctx, destination)
	if err != nil {
		return Route{}, fmt.Errorf("geocode destination: %w", err)
	}
	r, err := p.Route(ctx, from, to)
	if err != nil {
		return Route{}, err
	}
	return complete(r), nil
}

type cached struct {
	Provider
	cache *Cache
}

func (c *cached) Route(ctx context.Context, from, to models.Coord) (Route, error) {
	if r, ok := c.cache.Get(from, to); ok {
		return r, nil
	}
	r, err := c.Provider.Route(ctx, from, to)
	if err != nil {
		return Route{}, err
	}
	c.cache.Set(from, to, r)
	return r, nil
}

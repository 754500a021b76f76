// README: Google Maps road-distance lookups for ETA refinement.
package maps

import (
	"context"
	"fmt"

	"googlemaps.github.io/maps"

	"roam/internal/types"
)

// RouteService resolves road distance between two points via the
// Directions API. Optional; the advisor falls back to great-circle
// distance when no API key is configured or a lookup fails.
type RouteService struct {
	client *maps.Client
}

// NewRouteService creates a new RouteService with the given API key.
func NewRouteService(apiKey string) (*RouteService, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &RouteService{client: client}, nil
}

// RouteDistanceKm returns the driving distance from origin to
// destination in kilometres.
func (s *RouteService) RouteDistanceKm(ctx context.Context, from, to types.Point) (float64, error) {
	r := &maps.DirectionsRequest{
		Origin:      fmt.Sprintf("%f,%f", from.Lat, from.Lng),
		Destination: fmt.Sprintf("%f,%f", to.Lat, to.Lng),
		Mode:        maps.TravelModeDriving,
	}

	routes, _, err := s.client.Directions(ctx, r)
	if err != nil {
		return 0, fmt.Errorf("maps api error: %w", err)
	}
	if len(routes) == 0 || len(routes[0].Legs) == 0 {
		return 0, fmt.Errorf("no route found")
	}

	distM := 0
	for _, leg := range routes[0].Legs {
		distM += leg.Distance.Meters
	}
	return float64(distM) / 1000.0, nil
}

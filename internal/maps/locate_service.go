package maps

import (
	"context"
	"fmt"
	"time"

	"googlemaps.github.io/maps"

	"pilgrim/internal/modules/geoloc"
)

// LocateService handles interactions with the Google Geolocation API. It is
// the resolver's network tier: a coarse IP-derived position used when live
// GPS is unavailable.
type LocateService struct {
	client *maps.Client
}

// NewLocateService creates a new LocateService with the given API Key.
func NewLocateService(apiKey string) (*LocateService, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &LocateService{client: client}, nil
}

// Locate asks the Geolocation API for an IP-based position. Accuracy is in
// the tens of kilometers by construction; the caller tags the result with
// the matching low confidence.
func (s *LocateService) Locate(ctx context.Context) (geoloc.Sample, error) {
	resp, err := s.client.Geolocate(ctx, &maps.GeolocationRequest{
		ConsiderIP: true,
	})
	if err != nil {
		return geoloc.Sample{}, fmt.Errorf("geolocation api error: %w", err)
	}
	return geoloc.Sample{
		Lat:       resp.Location.Lat,
		Lng:       resp.Location.Lng,
		AccuracyM: resp.Accuracy,
		Timestamp: time.Now(),
	}, nil
}

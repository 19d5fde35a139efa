package narration

import (
	"context"
	"sync"

	"pilgrim/internal/ai"
	"pilgrim/internal/modules/waypoint"
	"pilgrim/internal/types"
)

// Quota is the persistence the service needs; *Store implements it.
type Quota interface {
	UseToken(ctx context.Context, uid string) error
	EnsureUser(ctx context.Context, uid string) error
}

// Catalog looks up the waypoint being narrated.
type Catalog interface {
	GetWaypoint(ctx context.Context, id types.ID) (*waypoint.Waypoint, error)
}

// Service guards the AI guide behind the per-user monthly quota. The
// provider slot is filled by the startup orchestrator once the Gemini client
// initialises; until then Narrate answers ErrProviderUnavailable.
type Service struct {
	quota   Quota
	catalog Catalog

	mu       sync.RWMutex
	provider ai.GuideProvider
}

func NewService(quota Quota, catalog Catalog) *Service {
	return &Service{quota: quota, catalog: catalog}
}

// SetProvider installs the AI backend once it is ready.
func (s *Service) SetProvider(p ai.GuideProvider) {
	s.mu.Lock()
	s.provider = p
	s.mu.Unlock()
}

func (s *Service) guideProvider() ai.GuideProvider {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.provider
}

// Narrate deducts one token from the user's monthly allowance and generates
// the site introduction for the waypoint.
// If the user row does not exist yet it is initialised and the token is immediately consumed.
func (s *Service) Narrate(ctx context.Context, uid string, waypointID types.ID, language string) (*ai.SiteIntro, error) {
	provider := s.guideProvider()
	if provider == nil {
		return nil, ErrProviderUnavailable
	}

	w, err := s.catalog.GetWaypoint(ctx, waypointID)
	if err != nil {
		return nil, err
	}

	if err := s.useToken(ctx, uid); err != nil {
		return nil, err
	}

	return provider.SiteIntro(ctx, ai.SiteRequest{
		Name:        w.Name,
		NameLocal:   w.NameLocal,
		Description: w.Description,
		Language:    language,
	})
}

// useToken deducts one token, creating the user row on first use.
func (s *Service) useToken(ctx context.Context, uid string) error {
	err := s.quota.UseToken(ctx, uid)
	if err != ErrInsufficientTokens {
		return err
	}

	// Row may be missing: try to create it, then retry the deduction once.
	if initErr := s.quota.EnsureUser(ctx, uid); initErr != nil {
		return initErr
	}
	return s.quota.UseToken(ctx, uid)
}

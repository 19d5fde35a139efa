package ai

import (
	"context"
)

// GuideProvider defines the contract for generating site narrations.
// This interface allows for swapping different AI providers (Gemini, OpenAI, etc.) in the future.
type GuideProvider interface {
	// SiteIntro produces a short spoken-guide style introduction for one
	// trail waypoint, in the requested language.
	SiteIntro(ctx context.Context, req SiteRequest) (*SiteIntro, error)
}

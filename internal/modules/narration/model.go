package narration

import "errors"

// ErrInsufficientTokens is returned when a user has no narrations remaining for the current month.
var ErrInsufficientTokens = errors.New("insufficient narration tokens")

// ErrProviderUnavailable is returned while the AI guide has not initialised
// (or its startup failed and was not retried).
var ErrProviderUnavailable = errors.New("guide provider unavailable")

// DefaultTokens is the number of narrations granted per month.
const DefaultTokens = 30

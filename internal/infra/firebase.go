// README: Firebase Admin SDK initialisation and token verifier.
package infra

import (
	"context"
	"errors"
	"fmt"
	"sync"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"
)

// ErrVerifierUnavailable is returned while the auth subsystem has not finished
// initialising (or its initialisation failed and was not retried yet).
var ErrVerifierUnavailable = errors.New("token verifier unavailable")

// FirebaseToken holds the verified token data used by downstream middleware.
type FirebaseToken struct {
	UID    string
	Claims map[string]interface{}
}

// TokenVerifier verifies a raw Firebase ID token string and returns token data.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*FirebaseToken, error)
}

// firebaseVerifier is the production implementation backed by the Firebase Admin SDK.
type firebaseVerifier struct {
	client *auth.Client
}

// NewFirebaseVerifier creates a TokenVerifier using the Firebase Admin SDK.
// If credentialsFile is non-empty it is used as the service-account JSON path;
// otherwise application-default credentials / GOOGLE_APPLICATION_CREDENTIALS are used.
// projectID is required so the SDK can construct the correct token-verification URL.
func NewFirebaseVerifier(ctx context.Context, projectID, credentialsFile string) (TokenVerifier, error) {
	opts := []option.ClientOption{}
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("firebase.NewApp: %w", err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase app.Auth: %w", err)
	}
	return &firebaseVerifier{client: client}, nil
}

func (v *firebaseVerifier) VerifyIDToken(ctx context.Context, idToken string) (*FirebaseToken, error) {
	token, err := v.client.VerifyIDToken(ctx, idToken)
	if err != nil {
		return nil, err
	}
	return &FirebaseToken{UID: token.UID, Claims: token.Claims}, nil
}

// VerifierHolder is a TokenVerifier whose backing implementation arrives late:
// the auth subsystem is initialised by the startup orchestrator as a
// non-critical service, so routes wired at construction time hold this and the
// real verifier is injected once (or never, on init failure).
type VerifierHolder struct {
	mu sync.RWMutex
	v  TokenVerifier
}

// Set installs the backing verifier. Safe to call at most once per init pass.
func (h *VerifierHolder) Set(v TokenVerifier) {
	h.mu.Lock()
	h.v = v
	h.mu.Unlock()
}

func (h *VerifierHolder) VerifyIDToken(ctx context.Context, idToken string) (*FirebaseToken, error) {
	h.mu.RLock()
	v := h.v
	h.mu.RUnlock()
	if v == nil {
		return nil, ErrVerifierUnavailable
	}
	return v.VerifyIDToken(ctx, idToken)
}

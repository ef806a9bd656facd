package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/trafficlab/traffic-api/config"
	"github.com/trafficlab/traffic-api/models"
	"github.com/trafficlab/traffic-api/utils"
	"golang.org/x/oauth2"
)

// Credential resolution error constants
var (
	ErrNoCredentialSource = errors.New("integration has neither a secret name nor an inline credential")
)

const googleTokenURL = "https://oauth2.googleapis.com/token"

// CredentialResolver turns an integration row into a ready-to-use typed
// credential. The secret-store indirection is tried first; the sealed
// inline bundle is the deprecated fallback.
type CredentialResolver interface {
	// Resolve returns the typed credential for the integration. When a
	// Google access token had to be refreshed on an inline-sourced
	// integration, the second return value carries the resealed bundle the
	// caller should persist so later runs skip the refresh exchange.
	// Vault-sourced integrations never get a resealed bundle; rotation
	// happens in the store.
	Resolve(ctx context.Context, integration *models.Integration) (models.Credential, []byte, error)
}

// CredentialResolverImpl implements CredentialResolver
type CredentialResolverImpl struct {
	secretStore SecretStore
	sealKey     []byte
}

// NewCredentialResolver creates a credential resolver
func NewCredentialResolver(secretStore SecretStore, cfg config.SecurityConfig) (CredentialResolver, error) {
	sealKey, err := utils.ParseSealKey(cfg.CredentialSealKey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse credential seal key: %w", err)
	}

	return &CredentialResolverImpl{
		secretStore: secretStore,
		sealKey:     sealKey,
	}, nil
}

// Resolve loads, decodes and validates the integration's credential
func (r *CredentialResolverImpl) Resolve(ctx context.Context, integration *models.Integration) (models.Credential, []byte, error) {
	payload, err := r.loadPayload(ctx, integration)
	if err != nil {
		return nil, nil, err
	}

	cred, err := models.DecodeCredential(integration.Platform, payload)
	if err != nil {
		return nil, nil, err
	}

	if err := cred.Validate(); err != nil {
		return nil, nil, err
	}

	if googleCred, ok := cred.(models.GoogleAdsCredential); ok {
		return r.ensureGoogleAccessToken(ctx, integration, googleCred)
	}

	return cred, nil, nil
}

// loadPayload fetches the raw JSON credential bundle from the configured source
func (r *CredentialResolverImpl) loadPayload(ctx context.Context, integration *models.Integration) ([]byte, error) {
	switch integration.CredentialSource() {
	case models.CredentialSourceVault:
		secret, err := r.secretStore.GetSecret(ctx, *integration.SecretName)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve secret for integration %d: %w", integration.ID, err)
		}
		payload, err := json.Marshal(secret)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSecretMalformed, err)
		}
		return payload, nil
	case models.CredentialSourceInline:
		if len(integration.SealedCredential) == 0 {
			return nil, ErrNoCredentialSource
		}
		payload, err := utils.Open(r.sealKey, integration.SealedCredential)
		if err != nil {
			return nil, fmt.Errorf("failed to unseal credential for integration %d: %w", integration.ID, err)
		}
		return payload, nil
	default:
		return nil, ErrNoCredentialSource
	}
}

// ensureGoogleAccessToken refreshes the short-lived access token when the
// stored one is absent or about to expire
func (r *CredentialResolverImpl) ensureGoogleAccessToken(ctx context.Context, integration *models.Integration, cred models.GoogleAdsCredential) (models.Credential, []byte, error) {
	now := utils.UTCNow()
	if cred.HasUsableAccessToken(now) {
		return cred, nil, nil
	}

	oauthCfg := &oauth2.Config{
		ClientID:     cred.ClientID,
		ClientSecret: cred.ClientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: googleTokenURL},
	}

	source := oauthCfg.TokenSource(ctx, &oauth2.Token{RefreshToken: cred.RefreshToken})
	token, err := source.Token()
	if err != nil {
		return nil, nil, NewPlatformError(models.PlatformGoogleAds, fmt.Sprintf("token refresh failed: %v", err), err)
	}

	cred.AccessToken = token.AccessToken
	expiry := token.Expiry.UTC().Add(-utils.TokenExpirySkew)
	cred.TokenExpiry = &expiry

	// Reseal only for the inline source so the row keeps the fresh token.
	if integration.CredentialSource() != models.CredentialSourceInline {
		return cred, nil, nil
	}

	payload, err := json.Marshal(cred)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal refreshed credential: %w", err)
	}
	sealed, err := utils.Seal(r.sealKey, payload)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to seal refreshed credential: %w", err)
	}

	return cred, sealed, nil
}

package services

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trafficlab/traffic-api/config"
	"github.com/trafficlab/traffic-api/models"
	"github.com/trafficlab/traffic-api/utils"
)

const testSealKeyHex = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func newTestResolver(t *testing.T, store SecretStore) CredentialResolver {
	t.Helper()
	resolver, err := NewCredentialResolver(store, config.SecurityConfig{
		CredentialSealKey: testSealKeyHex,
	})
	require.NoError(t, err)
	return resolver
}

func sealTestPayload(t *testing.T, payload any) []byte {
	t.Helper()
	key, err := utils.ParseSealKey(testSealKeyHex)
	require.NoError(t, err)
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	sealed, err := utils.Seal(key, raw)
	require.NoError(t, err)
	return sealed
}

func TestResolveVaultSourcedCredential(t *testing.T) {
	store := NewMockSecretStore()
	store.Secrets["meta-acme"] = map[string]any{
		"access_token": "meta-token",
		"account_id":   "123456",
	}

	resolver := newTestResolver(t, store)
	secretName := "meta-acme"
	cred, resealed, err := resolver.Resolve(context.Background(), &models.Integration{
		ID:         1,
		Platform:   models.PlatformMeta,
		SecretName: &secretName,
	})

	require.NoError(t, err)
	assert.Nil(t, resealed)

	metaCred, ok := cred.(models.MetaCredential)
	require.True(t, ok)
	assert.Equal(t, "meta-token", metaCred.AccessToken)
	assert.Equal(t, "123456", metaCred.AccountID)
}

func TestResolveVaultSecretTakesPrecedenceOverInline(t *testing.T) {
	store := NewMockSecretStore()
	store.Secrets["tiktok-acme"] = map[string]any{
		"access_token":  "fresh",
		"advertiser_id": "555",
	}

	resolver := newTestResolver(t, store)
	secretName := "tiktok-acme"
	cred, _, err := resolver.Resolve(context.Background(), &models.Integration{
		ID:         2,
		Platform:   models.PlatformTikTokAds,
		SecretName: &secretName,
		SealedCredential: sealTestPayload(t, models.TikTokCredential{
			AccessToken:  "stale",
			AdvertiserID: "555",
		}),
	})

	require.NoError(t, err)
	assert.Equal(t, "fresh", cred.(models.TikTokCredential).AccessToken)
}

func TestResolveInlineSealedCredential(t *testing.T) {
	resolver := newTestResolver(t, NewMockSecretStore())
	cred, resealed, err := resolver.Resolve(context.Background(), &models.Integration{
		ID:       3,
		Platform: models.PlatformTikTokAds,
		SealedCredential: sealTestPayload(t, models.TikTokCredential{
			AccessToken:  "tt-token",
			AdvertiserID: "777",
		}),
	})

	require.NoError(t, err)
	assert.Nil(t, resealed)
	assert.Equal(t, "777", cred.(models.TikTokCredential).AdvertiserID)
}

func TestResolveGoogleWithUsableTokenSkipsRefresh(t *testing.T) {
	expiry := utils.UTCNow().Add(30 * time.Minute)
	resolver := newTestResolver(t, NewMockSecretStore())

	cred, resealed, err := resolver.Resolve(context.Background(), &models.Integration{
		ID:       4,
		Platform: models.PlatformGoogleAds,
		SealedCredential: sealTestPayload(t, models.GoogleAdsCredential{
			ClientID:       "client",
			ClientSecret:   "secret",
			RefreshToken:   "refresh",
			DeveloperToken: "dev",
			CustomerID:     "1234567890",
			AccessToken:    "still-good",
			TokenExpiry:    &expiry,
		}),
	})

	require.NoError(t, err)
	assert.Nil(t, resealed)
	assert.Equal(t, "still-good", cred.(models.GoogleAdsCredential).AccessToken)
}

func TestResolveMissingCredentialSource(t *testing.T) {
	resolver := newTestResolver(t, NewMockSecretStore())
	_, _, err := resolver.Resolve(context.Background(), &models.Integration{
		ID:       5,
		Platform: models.PlatformMeta,
	})

	assert.ErrorIs(t, err, ErrNoCredentialSource)
}

func TestResolveUnknownSecretName(t *testing.T) {
	resolver := newTestResolver(t, NewMockSecretStore())
	secretName := "does-not-exist"
	_, _, err := resolver.Resolve(context.Background(), &models.Integration{
		ID:         6,
		Platform:   models.PlatformMeta,
		SecretName: &secretName,
	})

	assert.ErrorIs(t, err, ErrSecretNotFound)
}

func TestResolveIncompleteSecret(t *testing.T) {
	store := NewMockSecretStore()
	store.Secrets["meta-partial"] = map[string]any{
		"access_token": "meta-token",
		// account_id missing
	}

	resolver := newTestResolver(t, store)
	secretName := "meta-partial"
	_, _, err := resolver.Resolve(context.Background(), &models.Integration{
		ID:         7,
		Platform:   models.PlatformMeta,
		SecretName: &secretName,
	})

	assert.ErrorIs(t, err, models.ErrCredentialFieldMissing)
}

func TestResolveTamperedSealedCredential(t *testing.T) {
	sealed := sealTestPayload(t, models.TikTokCredential{
		AccessToken:  "tt-token",
		AdvertiserID: "777",
	})
	sealed[len(sealed)-1] ^= 0xff

	resolver := newTestResolver(t, NewMockSecretStore())
	_, _, err := resolver.Resolve(context.Background(), &models.Integration{
		ID:               8,
		Platform:         models.PlatformTikTokAds,
		SealedCredential: sealed,
	})

	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "unseal"))
}

func TestNewCredentialResolverRejectsBadKey(t *testing.T) {
	_, err := NewCredentialResolver(NewMockSecretStore(), config.SecurityConfig{
		CredentialSealKey: "too-short",
	})
	assert.Error(t, err)
}

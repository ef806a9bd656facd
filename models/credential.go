package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Credential validation error constants
var (
	ErrCredentialFieldMissing = errors.New("required credential field is missing")
	ErrUnknownPlatform        = errors.New("unknown platform")
)

// Credential is the typed secret bundle resolved for one integration.
// Exactly one concrete type exists per platform; adapters receive the
// concrete type and never inspect raw JSON.
type Credential interface {
	Platform() Platform
	// Validate reports a configuration error when any platform-required
	// field is absent. Transport problems are never reported here.
	Validate() error
}

// MetaCredential carries a long-lived Meta system-user access token
// scoped to one ad account.
type MetaCredential struct {
	AccessToken string `json:"access_token"`
	AccountID   string `json:"account_id"`
}

func (c MetaCredential) Platform() Platform { return PlatformMeta }

func (c MetaCredential) Validate() error {
	return requireFields(map[string]string{
		"access_token": c.AccessToken,
		"account_id":   c.AccountID,
	})
}

// GoogleAdsCredential carries the OAuth application and refresh token
// needed to mint short-lived access tokens, plus the Google Ads customer
// and developer identifiers.
type GoogleAdsCredential struct {
	ClientID       string     `json:"client_id"`
	ClientSecret   string     `json:"client_secret"`
	RefreshToken   string     `json:"refresh_token"`
	DeveloperToken string     `json:"developer_token"`
	CustomerID     string     `json:"customer_id"`
	AccessToken    string     `json:"access_token,omitempty"`
	TokenExpiry    *time.Time `json:"token_expiry,omitempty"`
}

func (c GoogleAdsCredential) Platform() Platform { return PlatformGoogleAds }

func (c GoogleAdsCredential) Validate() error {
	return requireFields(map[string]string{
		"client_id":       c.ClientID,
		"client_secret":   c.ClientSecret,
		"refresh_token":   c.RefreshToken,
		"developer_token": c.DeveloperToken,
		"customer_id":     c.CustomerID,
	})
}

// HasUsableAccessToken reports whether the stored access token can still
// be used without a refresh exchange.
func (c GoogleAdsCredential) HasUsableAccessToken(now time.Time) bool {
	return c.AccessToken != "" && c.TokenExpiry != nil && c.TokenExpiry.After(now.Add(time.Minute))
}

// TikTokCredential carries a TikTok Business API access token scoped to
// one advertiser.
type TikTokCredential struct {
	AccessToken  string `json:"access_token"`
	AdvertiserID string `json:"advertiser_id"`
}

func (c TikTokCredential) Platform() Platform { return PlatformTikTokAds }

func (c TikTokCredential) Validate() error {
	return requireFields(map[string]string{
		"access_token":  c.AccessToken,
		"advertiser_id": c.AdvertiserID,
	})
}

// DecodeCredential converts a raw secret payload into the typed credential
// for the given platform. Unknown platforms are rejected here, at the
// boundary, rather than deep inside an adapter.
func DecodeCredential(platform Platform, payload []byte) (Credential, error) {
	switch platform {
	case PlatformMeta:
		var c MetaCredential
		if err := json.Unmarshal(payload, &c); err != nil {
			return nil, fmt.Errorf("malformed meta credential payload: %w", err)
		}
		return c, nil
	case PlatformGoogleAds:
		var c GoogleAdsCredential
		if err := json.Unmarshal(payload, &c); err != nil {
			return nil, fmt.Errorf("malformed google_ads credential payload: %w", err)
		}
		return c, nil
	case PlatformTikTokAds:
		var c TikTokCredential
		if err := json.Unmarshal(payload, &c); err != nil {
			return nil, fmt.Errorf("malformed tiktok_ads credential payload: %w", err)
		}
		return c, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownPlatform, platform)
	}
}

func requireFields(fields map[string]string) error {
	var missing []string
	for name, value := range fields {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrCredentialFieldMissing, strings.Join(missing, ", "))
	}
	return nil
}

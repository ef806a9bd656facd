package models

import (
	"database/sql/driver"
	"fmt"
)

// Platform identifies one of the supported advertising platforms
type Platform string

const (
	PlatformMeta      Platform = "meta"
	PlatformGoogleAds Platform = "google_ads"
	PlatformTikTokAds Platform = "tiktok_ads"
)

// String returns the string representation of the platform
func (p Platform) String() string {
	return string(p)
}

// Valid checks if the platform is one of the supported values
func (p Platform) Valid() bool {
	switch p {
	case PlatformMeta, PlatformGoogleAds, PlatformTikTokAds:
		return true
	default:
		return false
	}
}

// DisplayName returns a human-readable platform name
func (p Platform) DisplayName() string {
	switch p {
	case PlatformMeta:
		return "Meta Ads"
	case PlatformGoogleAds:
		return "Google Ads"
	case PlatformTikTokAds:
		return "TikTok Ads"
	default:
		return "Unknown"
	}
}

// AllPlatforms lists every supported platform in a stable order
func AllPlatforms() []Platform {
	return []Platform{PlatformMeta, PlatformGoogleAds, PlatformTikTokAds}
}

// Scan implements the sql.Scanner interface for Platform
func (p *Platform) Scan(value any) error {
	if value == nil {
		*p = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*p = Platform(v)
	case []byte:
		*p = Platform(string(v))
	default:
		return fmt.Errorf("cannot scan %T into Platform", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for Platform
func (p Platform) Value() (driver.Value, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("invalid Platform: %s", p)
	}
	return string(p), nil
}

package utils

import (
	"time"
)

// Sync window constants
const (
	// MetricDateLayout is the wire format for per-day metric dates
	MetricDateLayout = "2006-01-02"
)

// OAuth constants
const (
	// TokenExpirySkew is subtracted from token expiry so a token about to
	// expire mid-run is refreshed up front instead of failing downstream.
	TokenExpirySkew = 2 * time.Minute
)

package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/trafficlab/traffic-api/models"
)

// ErrorCategory classifies platform failures for the run summary
type ErrorCategory string

const (
	ErrorCategoryAuth            ErrorCategory = "authentication_failed"
	ErrorCategoryPermission      ErrorCategory = "permission_denied"
	ErrorCategoryAccountNotFound ErrorCategory = "account_not_found"
	ErrorCategoryRateLimited     ErrorCategory = "rate_limited"
	ErrorCategoryAPI             ErrorCategory = "platform_api_error"
)

// Message returns the caller-facing wording for the category
func (c ErrorCategory) Message() string {
	switch c {
	case ErrorCategoryAuth:
		return "platform authentication failed, reconnect the integration"
	case ErrorCategoryPermission:
		return "platform denied access to the ad account"
	case ErrorCategoryAccountNotFound:
		return "ad account was not found on the platform"
	case ErrorCategoryRateLimited:
		return "platform rate limit reached, retry later"
	default:
		return "platform API request failed"
	}
}

// PlatformError is a categorized failure from a platform API call. The raw
// platform message rides along in Detail for diagnostics; Category drives
// the wording shown to callers.
type PlatformError struct {
	Platform models.Platform
	Category ErrorCategory
	Detail   string
	Err      error
}

func (e *PlatformError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Platform, e.Category, e.Detail)
}

func (e *PlatformError) Unwrap() error {
	return e.Err
}

// NewPlatformError builds a categorized error from a raw platform message
func NewPlatformError(platform models.Platform, detail string, err error) *PlatformError {
	return &PlatformError{
		Platform: platform,
		Category: categorizeDetail(detail),
		Detail:   detail,
		Err:      err,
	}
}

// categorizeDetail maps raw platform error text onto a category. Matching
// is on substrings because the three platforms word the same failure
// differently.
func categorizeDetail(detail string) ErrorCategory {
	lower := strings.ToLower(detail)
	switch {
	case strings.Contains(lower, "expired") ||
		strings.Contains(lower, "invalid token") ||
		strings.Contains(lower, "invalid oauth") ||
		strings.Contains(lower, "invalid_grant") ||
		strings.Contains(lower, "access token"):
		return ErrorCategoryAuth
	case strings.Contains(lower, "permission") ||
		strings.Contains(lower, "not authorized") ||
		strings.Contains(lower, "forbidden"):
		return ErrorCategoryPermission
	case strings.Contains(lower, "not found") ||
		strings.Contains(lower, "does not exist") ||
		strings.Contains(lower, "unknown account") ||
		strings.Contains(lower, "unknown advertiser"):
		return ErrorCategoryAccountNotFound
	case strings.Contains(lower, "rate limit") ||
		strings.Contains(lower, "too many") ||
		strings.Contains(lower, "request limit"):
		return ErrorCategoryRateLimited
	default:
		return ErrorCategoryAPI
	}
}

// AsPlatformError unwraps err to a PlatformError when one is in the chain
func AsPlatformError(err error) (*PlatformError, bool) {
	var pe *PlatformError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// DateRange is an inclusive day window in the platform account's timezone
type DateRange struct {
	Since time.Time
	Until time.Time
}

// Days returns the number of days covered, inclusive
func (r DateRange) Days() int {
	return int(r.Until.Sub(r.Since).Hours()/24) + 1
}

// RawMetric is one day of raw counters for one external campaign as the
// platform reported them. Ratio fields reported by platforms are dropped
// at the adapter boundary; only counters cross it.
type RawMetric struct {
	ExternalCampaignID string
	Date               time.Time
	Impressions        int64
	Clicks             int64
	Investment         float64
	Leads              int64
	Sales              int64
	Revenue            float64
}

// PlatformAdapter fetches daily metrics from one ad platform. Adapters are
// stateless: the credential arrives per call so one adapter instance serves
// every integration of its platform.
type PlatformAdapter interface {
	Platform() models.Platform
	// FetchMetrics returns one RawMetric per (campaign, day) with activity
	// in the window. An account with no delivery returns an empty slice,
	// not an error.
	FetchMetrics(ctx context.Context, cred models.Credential, window DateRange) ([]RawMetric, error)
}

// newPlatformHTTPClient builds the HTTP client shared by adapter calls
func newPlatformHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// Platform APIs serialize most numbers as strings; absent or garbled
// values count as zero rather than failing the whole row.
func parseWireInt(s string) int64 {
	v, _ := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	return v
}

func parseWireFloat(s string) float64 {
	v, _ := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return v
}

// Package dto provides data transfer objects for API requests and responses
package dto

// SyncRequest optionally overrides the default lookback window of a run.
// Dates use the YYYY-MM-DD layout; both must be set together.
type SyncRequest struct {
	Since *string `json:"since,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Until *string `json:"until,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

// SyncErrorDetail describes one integration that failed during a run
type SyncErrorDetail struct {
	IntegrationID uint   `json:"integration_id"`
	Error         string `json:"error"`
	Details       string `json:"details,omitempty"`
}

// SyncSummaryResponse is the outcome of one synchronization run. A run that
// completed with some integrations failing is still a completed run; the
// failures ride along in Errors.
type SyncSummaryResponse struct {
	Message string            `json:"message"`
	Synced  int               `json:"synced"`
	Total   int               `json:"total"`
	Errors  []SyncErrorDetail `json:"errors,omitempty"`
}

// InsightsImportResponse is the outcome of a Meta insights import run
type InsightsImportResponse struct {
	Message  string            `json:"message"`
	Imported int               `json:"imported"`
	Total    int               `json:"total"`
	Errors   []SyncErrorDetail `json:"errors,omitempty"`
}

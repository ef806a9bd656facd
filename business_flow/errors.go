// Package businessflow contains the core business logic and use cases for metric synchronization workflows
package businessflow

import (
	"errors"
)

// Business flow error constants
var (
	// Integration-related errors
	ErrIntegrationListing   = errors.New("failed to list integrations")
	ErrPlatformNotSupported = errors.New("platform is not supported")

	// Credential-related errors
	ErrCredentialResolution = errors.New("failed to resolve integration credential")

	// Sync run errors
	ErrSyncAlreadyRunning = errors.New("a sync run for this platform is already in progress")

	// Window errors
	ErrWindowInverted = errors.New("window start cannot be after window end")
)

func IsIntegrationListing(err error) bool {
	return errors.Is(err, ErrIntegrationListing)
}

func IsPlatformNotSupported(err error) bool {
	return errors.Is(err, ErrPlatformNotSupported)
}

func IsSyncAlreadyRunning(err error) bool {
	return errors.Is(err, ErrSyncAlreadyRunning)
}

func IsWindowInverted(err error) bool {
	return errors.Is(err, ErrWindowInverted)
}

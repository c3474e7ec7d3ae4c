package offline

import "errors"

var (
	// ErrOffline is returned when a request can be answered neither from
	// the network nor from a cache.
	ErrOffline = errors.New("offline: network unavailable and no cached response")

	// ErrInstallFailed is returned when the manifest could not be stored.
	ErrInstallFailed = errors.New("install failed")

	// ErrInvalidTransition is returned when a lifecycle step is attempted
	// from the wrong state.
	ErrInvalidTransition = errors.New("invalid lifecycle transition")

	// ErrNilStorage is returned by New without cache storage.
	ErrNilStorage = errors.New("cache storage cannot be nil")
)

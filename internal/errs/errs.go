// Package errs defines the sentinel error taxonomy shared by every layer of
// the client. Callers use errors.Is against these sentinels; each layer wraps
// its own sentinel with context via fmt.Errorf("%w: ...", ...).
package errs

import "errors"

var (
	// ErrInvalidPath is returned when a UFS path fails validation.
	ErrInvalidPath = errors.New("invalid path")

	// ErrInvalidArgument is returned for a malformed offset, length, or count.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrConfig is returned for contradictory or missing configuration.
	ErrConfig = errors.New("invalid configuration")

	// ErrRegistryUnavailable is returned when no registry endpoint is reachable.
	ErrRegistryUnavailable = errors.New("registry unavailable")

	// ErrRegistryEmpty is returned when the registry prefix range is empty.
	ErrRegistryEmpty = errors.New("registry returned no workers")

	// ErrWorkerInfoParse is returned when a registry value cannot be decoded.
	ErrWorkerInfoParse = errors.New("failed to parse worker info")

	// ErrRouting is returned when the ring does not return the requested count.
	ErrRouting = errors.New("routing failed")

	// ErrPageRead is returned when a page GET fails.
	ErrPageRead = errors.New("page read failed")

	// ErrPageWrite is returned when a page POST fails.
	ErrPageWrite = errors.New("page write failed")

	// ErrFileStatus is returned when a list/stat HTTP call fails.
	ErrFileStatus = errors.New("file status request failed")

	// ErrLoadProtocol is returned when a load progress request fails or its
	// response is malformed.
	ErrLoadProtocol = errors.New("load protocol error")

	// ErrLoad is returned when a load submit/stop HTTP call fails, or when
	// waiting on a load job is ended by its context.
	ErrLoad = errors.New("load request failed")
)

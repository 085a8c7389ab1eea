package exitcode

import (
	"errors"

	"go.ngs.io/antgrid/internal/config"
	"go.ngs.io/antgrid/internal/domain"
)

// Exit codes for the antgrid CLI.
// Batch callers can use these to decide whether a retry makes sense.
const (
	// Success - command completed successfully
	Success = 0

	// ConfigError - missing or invalid configuration, unknown dataset or layer
	// Don't retry: fix the invocation first
	ConfigError = 1

	// NetworkError - download failed (timeout, DNS, HTTP error status)
	// Retry with backoff
	NetworkError = 2

	// SelectionError - archive member missing or archive layout changed
	// Don't retry: the catalog needs updating
	SelectionError = 3

	// StorageError - cache directory, registry or mirror unusable
	StorageError = 4

	// DataError - content hash mismatch or unparseable data
	// Don't retry: investigate the data
	DataError = 5

	// ApplicationError - anything else
	ApplicationError = 6
)

// For maps an error from the dataset pipeline to an exit code.
func For(err error) int {
	if err == nil {
		return Success
	}

	var (
		missing *config.ErrMissingRequiredEnvVar
		invalid *config.ErrInvalidEnvVar
		sel     *domain.SelectionError
		parse   *domain.ParseError
		proj    *domain.ProjectionError
		fetch   *domain.FetchError
	)
	switch {
	case errors.As(err, &missing), errors.As(err, &invalid),
		errors.Is(err, domain.ErrUnknownDataset),
		errors.Is(err, domain.ErrUnknownLayer),
		errors.Is(err, domain.ErrHashRequired),
		errors.Is(err, domain.ErrNotGridded):
		return ConfigError
	case errors.As(err, &sel):
		return SelectionError
	case errors.Is(err, domain.ErrCacheUnavailable):
		return StorageError
	case errors.Is(err, domain.ErrHashMismatch),
		errors.As(err, &parse),
		errors.As(err, &proj):
		return DataError
	case errors.As(err, &fetch):
		return NetworkError
	default:
		return ApplicationError
	}
}

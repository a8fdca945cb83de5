package data

import "errors"

// Shared sentinel errors for data-layer repositories.
var (
	// ErrJobExists is returned when a state record already exists for the job id.
	ErrJobExists = errors.New("job already exists")
	// ErrMalformedEnvelope is returned when a queue entry cannot be decoded.
	ErrMalformedEnvelope = errors.New("malformed queue envelope")
	// ErrChunkGap is returned when an append would leave a hole in the stream.
	ErrChunkGap = errors.New("chunk index beyond stream end")
	// ErrChunkConflict is returned when an index already holds a different chunk.
	ErrChunkConflict = errors.New("chunk index already holds different content")

	// ErrRequestIDRequired is returned when a validation request id is empty.
	ErrRequestIDRequired = errors.New("request_id is required")
	// ErrNoDatabase is returned by repositories constructed without a DB handle.
	ErrNoDatabase = errors.New("database not configured")
)

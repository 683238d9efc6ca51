package repository

import "errors"

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("repository: not found")
	// ErrDuplicate indicates a unique constraint rejected the write.
	ErrDuplicate = errors.New("repository: duplicate")
	// ErrUnavailable indicates the backing store could not be reached.
	ErrUnavailable = errors.New("repository: unavailable")
	// ErrCorrupt indicates a stored record could not be decoded.
	ErrCorrupt = errors.New("repository: corrupt record")
)

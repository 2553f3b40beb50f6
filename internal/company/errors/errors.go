package errors

import (
	"fmt"
)

var (
	ErrNotFound     = fmt.Errorf("not found")
	ErrInvalidInput = fmt.Errorf("invalid input")

	// ErrReadFailure marks a failed existence check of the created record.
	ErrReadFailure = fmt.Errorf("read failure")
	// ErrWriteFailure marks a failed record update or counter upsert.
	ErrWriteFailure = fmt.Errorf("write failure")

	ErrUnsupportedCollection = fmt.Errorf("unsupported collection")
)

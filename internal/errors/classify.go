package errors

import (
	"context"
	"errors"
	"os"
)

// Classify normalizes an arbitrary error into a *BlackboxError at a system
// boundary (store backend calls, context cancellation, file I/O).
func Classify(err error) *BlackboxError {
	if err == nil {
		return nil
	}
	if be, ok := err.(*BlackboxError); ok {
		return be
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return New(CodeTimeout, "operation timed out").WithCause(err)
	}
	if errors.Is(err, context.Canceled) {
		return New(CodeCancelled, "operation cancelled").WithCause(err)
	}
	if errors.Is(err, os.ErrNotExist) {
		return New(CodeNotFound, "key not found").WithCause(err)
	}

	return New(CodeStoreBackend, "backend error").WithCause(err)
}

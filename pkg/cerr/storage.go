package cerr

import (
	"errors"
	"fmt"

	"github.com/kazz187/sitecrew/pkg/storage"
)

const ReasonStoreUnavailable = "STORE_UNAVAILABLE"

func WrapStorageReadError(target string, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return NewError(NotFound, fmt.Sprintf("%s not found", target), err)
	}
	return storeUnavailable(fmt.Errorf("failed to read %s: %w", target, err))
}

func WrapStorageWriteError(target string, err error) error {
	return storeUnavailable(fmt.Errorf("failed to write %s: %w", target, err))
}

func WrapStorageDeleteError(target string, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return NewError(NotFound, fmt.Sprintf("%s not found", target), err)
	}
	return storeUnavailable(fmt.Errorf("failed to delete %s: %w", target, err))
}

func storeUnavailable(err error) error {
	e := NewError(Unavailable, "storage unavailable, retry later", err)
	e.Reason = ReasonStoreUnavailable
	return e
}

// WrapDatabaseError maps a relational store failure: a missing record becomes
// NotFound, anything else is a retryable Unavailable.
func WrapDatabaseError(target string, err error, notFound ...error) error {
	for _, nf := range notFound {
		if errors.Is(err, nf) {
			return NewError(NotFound, fmt.Sprintf("%s not found", target), err)
		}
	}
	return storeUnavailable(fmt.Errorf("database operation on %s failed: %w", target, err))
}

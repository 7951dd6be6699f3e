package sync

import (
	"errors"
	"fmt"
)

var (
	ErrConflict    = errors.New("sync conflict")
	ErrInterrupted = errors.New("sync interrupted")
	ErrNoRemote    = errors.New("direction needs a remote session")
)

// ConflictError reports a destination modified out of band.
type ConflictError struct {
	Path   string
	Reason string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict with file %s (%s)", e.Path, e.Reason)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// TransferError reports an I/O failure while moving one path.
type TransferError struct {
	Path string
	Op   string
	Err  error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

package domain

import (
	"errors"
	"fmt"
)

// ErrDraftImmutable is returned when an operation targets the draft entry.
var ErrDraftImmutable = errors.New("the draft entry cannot be modified")

// ErrEmptySource is returned when a submission carries no paper.
var ErrEmptySource = errors.New("source is empty")

// CheckNotFoundError is returned when no ledger entry exists for an id.
type CheckNotFoundError struct {
	ID CheckID
}

func (e *CheckNotFoundError) Error() string {
	return fmt.Sprintf("check %d not found", e.ID)
}

// IsCheckNotFound reports whether err is (or wraps) a CheckNotFoundError.
func IsCheckNotFound(err error) bool {
	var target *CheckNotFoundError
	return errors.As(err, &target)
}

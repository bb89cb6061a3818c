package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalidInput  = errors.New("invalid input")

	// ErrSystemic marks failures of shared infrastructure (database, calendar
	// provider). A batch that sees one stops processing further items.
	ErrSystemic = errors.New("systemic failure")

	// ErrNoContent is returned when stored content cannot be recovered intact.
	ErrNoContent = errors.New("no content")
)

// Systemic wraps err so that errors.Is(err, ErrSystemic) holds.
func Systemic(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrSystemic, err)
}

// ItemError is a failure confined to one item of a batch.
type ItemError struct {
	Item    string `json:"item"`
	Message string `json:"message"`
}

func (e ItemError) Error() string {
	return fmt.Sprintf("%s: %s", e.Item, e.Message)
}

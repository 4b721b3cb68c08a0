package domain

import (
	"errors"
	"fmt"
)

var (
	ErrDocumentNotFound  = errors.New("document not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrPayloadTooLarge   = errors.New("payload too large")
	ErrTemporary         = errors.New("temporary failure")
	ErrStatusConflict    = errors.New("status transition conflict")
	ErrAlreadyProcessing = errors.New("document already processing")
	ErrOCRFailed         = errors.New("ocr operation failed")
	ErrOCRTimeout        = errors.New("ocr operation timed out")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

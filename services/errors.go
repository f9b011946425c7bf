package services

import (
	"errors"
	"fmt"
)

// Общие ошибки, используемые в разных сервисах и маппинге HTTP.
var (
	ErrNotFound         = errors.New("requested resource not found")
	ErrValidationFailed = errors.New("validation failed")

	// State machine rejections. None of them has side effects.
	ErrInvalidState     = errors.New("operation not allowed in the current state")
	ErrAlreadyDrawn     = errors.New("division units are already assigned")
	ErrDrawExhausted    = errors.New("no units remain to be drawn")
	ErrCourtUnavailable = errors.New("court is not available")
	ErrCourtRequired    = errors.New("match has no court assigned")
	ErrMatchNotQueued   = errors.New("match is not queued")
	ErrScoreDisputed    = errors.New("game score is disputed")

	ErrUnauthorized = errors.New("caller is not allowed to perform this action")

	ErrEventNotFound    = fmt.Errorf("event %w", ErrNotFound)
	ErrDivisionNotFound = fmt.Errorf("division %w", ErrNotFound)
	ErrMatchNotFound    = fmt.Errorf("match %w", ErrNotFound)
	ErrCourtNotFound    = fmt.Errorf("court %w", ErrNotFound)
	ErrGameNotFound     = fmt.Errorf("game %w", ErrNotFound)
)

func invalidState(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidState, fmt.Sprintf(format, args...))
}

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidationFailed, fmt.Sprintf(format, args...))
}

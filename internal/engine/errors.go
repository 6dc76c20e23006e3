package engine

import (
	"errors"
	"fmt"

	"github.com/miradorstack/mirador-diagnose/internal/scratchpad"
)

// ErrMissingPrecondition is matched by every error reporting an absent upstream section.
var ErrMissingPrecondition = errors.New("missing precondition")

// PreconditionError reports that a stage found a required section absent.
type PreconditionError struct {
	Stage   string
	Section scratchpad.Section
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s: required section %s is missing", e.Stage, e.Section)
}

func (e *PreconditionError) Unwrap() error {
	return ErrMissingPrecondition
}

package orchestrator

import (
	"errors"
	"fmt"
)

// ErrUnhandledState matches any UnhandledStateError via errors.Is.
var ErrUnhandledState = errors.New("unhandled state")

// UnhandledStateError reports a state tag outside the closed set.
type UnhandledStateError struct {
	Tag string
}

func (e *UnhandledStateError) Error() string {
	return fmt.Sprintf("unhandled state %q", e.Tag)
}

func (e *UnhandledStateError) Is(target error) bool {
	return target == ErrUnhandledState
}

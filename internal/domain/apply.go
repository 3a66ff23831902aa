package domain

import (
	"context"
	"fmt"

	"pddlsynth/internal/logging"
	"pddlsynth/internal/sandbox"
)

// Apply runs an untrusted edit script against a copy of m. On success the
// edited copy is returned and m is left untouched. Every failure, including
// sandbox violations and protocol errors, comes back as a *ModificationError.
func (m *Model) Apply(ctx context.Context, x *sandbox.Executor, script string) (*Model, error) {
	next, err := m.Copy()
	if err != nil {
		return nil, &ModificationError{Err: err}
	}
	if err := x.RunEdit(ctx, script, next); err != nil {
		logging.DomainDebug("edit script rejected: %v", err)
		return nil, &ModificationError{Err: err}
	}
	return next, nil
}

// ModificationError wraps any failure of an edit script.
type ModificationError struct {
	Err error
}

func (e *ModificationError) Error() string {
	return fmt.Sprintf("Error while executing your code: %v", e.Err)
}

func (e *ModificationError) Unwrap() error { return e.Err }

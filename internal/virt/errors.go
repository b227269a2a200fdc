package virt

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrInvariant marks a broken engine invariant. Outside of strict mode the
// engine logs it and degrades the offending operation instead of failing.
var ErrInvariant = errors.New("invariant violation")

// InvariantError describes which operation detected a broken invariant.
type InvariantError struct {
	Op     string
	Detail string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrInvariant, e.Op, e.Detail)
}

func (e *InvariantError) Unwrap() error {
	return ErrInvariant
}

func invariantf(op, format string, args ...any) error {
	return &InvariantError{Op: op, Detail: fmt.Sprintf(format, args...)}
}

// violation reports err. It panics in strict mode.
func (e *Engine) violation(err error) {
	if err == nil {
		return
	}
	slog.Error("Virtual list invariant violated", "error", err)
	e.violations++
	if e.cfg.Strict {
		panic(err)
	}
}

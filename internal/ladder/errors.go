package ladder

import (
	"errors"
	"fmt"
)

// Stage names the adapter call a rung failed in.
type Stage string

const (
	StageOperatorList Stage = "operator_list"
	StageBuildTree    Stage = "build_tree"
)

// AdapterError is a failure of one rung's adapter call. It is recovered by
// the controller, which moves on to the next rung.
type AdapterError struct {
	Rung  int
	Stage Stage
	Err   error
}

func (e *AdapterError) Error() string {
	return fmt.Sprintf("rung %d: %s: %v", e.Rung, e.Stage, e.Err)
}

func (e *AdapterError) Unwrap() error { return e.Err }

var (
	// ErrNoDrawableContent rejects a rung whose normalized tree draws nothing.
	ErrNoDrawableContent = errors.New("no drawable content")

	// ErrLadderExhausted is reported when every rung was rejected.
	ErrLadderExhausted = errors.New("all render passes produced no drawable content")
)

// FatalError means the source could not be read at all, so the ladder never
// started. It is surfaced to the user.
type FatalError struct {
	Op  string
	Err error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// Fatal wraps err as a FatalError.
func Fatal(op string, err error) error {
	return &FatalError{Op: op, Err: err}
}

// IsFatal reports whether err is, or wraps, a FatalError.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}

// IsAdapterError reports whether err is, or wraps, an AdapterError.
func IsAdapterError(err error) bool {
	var ae *AdapterError
	return errors.As(err, &ae)
}

package core

import (
	"errors"
	"fmt"
)

// Kind classifies an Error. Each kind has a matching sentinel so callers can
// use errors.Is(err, core.ErrNotFitted) without type assertions.
type Kind string

const (
	KindConfiguration     Kind = "configuration"
	KindEstimatorFit      Kind = "estimator_fit"
	KindEstimatorMismatch Kind = "estimator_mismatch"
	KindNotFitted         Kind = "not_fitted"
	KindPrediction        Kind = "prediction"
)

var (
	ErrConfiguration     = errors.New("configuration error")
	ErrEstimatorFit      = errors.New("estimator fit error")
	ErrEstimatorMismatch = errors.New("estimator mismatch error")
	ErrNotFitted         = errors.New("not fitted")
	ErrPrediction        = errors.New("prediction error")
)

// NoSlice marks an Error that is not tied to a fold or slice.
const NoSlice = -2

// Error is the error type returned by the ensemble packages.
type Error struct {
	Kind      Kind
	Op        string
	Slice     int
	Estimator string
	Message   string
	Err       error
}

func (e *Error) Error() string {
	if e == nil {
		return "unknown error"
	}
	msg := fmt.Sprintf("[%s] %s", e.Kind, e.Op)
	if e.Slice != NoSlice {
		msg += fmt.Sprintf(" slice=%d", e.Slice)
	}
	if e.Estimator != "" {
		msg += fmt.Sprintf(" estimator=%s", e.Estimator)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports whether target is the sentinel for e's kind.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	switch target {
	case ErrConfiguration:
		return e.Kind == KindConfiguration
	case ErrEstimatorFit:
		return e.Kind == KindEstimatorFit
	case ErrEstimatorMismatch:
		return e.Kind == KindEstimatorMismatch
	case ErrNotFitted:
		return e.Kind == KindNotFitted
	case ErrPrediction:
		return e.Kind == KindPrediction
	}
	return false
}

// Configuration reports an invalid argument or option.
func Configuration(op, format string, args ...any) *Error {
	return &Error{
		Kind:    KindConfiguration,
		Op:      op,
		Slice:   NoSlice,
		Message: fmt.Sprintf(format, args...),
	}
}

// FitFailure wraps an estimator's fit failure with the slice it was fit on.
func FitFailure(op string, slice int, estimator string, err error) *Error {
	return &Error{
		Kind:      KindEstimatorFit,
		Op:        op,
		Slice:     slice,
		Estimator: estimator,
		Message:   "fit failed",
		Err:       err,
	}
}

// PredictionFailure wraps an estimator's predict failure.
func PredictionFailure(op string, slice int, estimator string, err error) *Error {
	return &Error{
		Kind:      KindPrediction,
		Op:        op,
		Slice:     slice,
		Estimator: estimator,
		Message:   "predict failed",
		Err:       err,
	}
}

// Mismatch reports expected estimators that produced no output.
func Mismatch(op string, missing []string) *Error {
	return &Error{
		Kind:    KindEstimatorMismatch,
		Op:      op,
		Slice:   NoSlice,
		Message: fmt.Sprintf("no predictions from %v", missing),
	}
}

// NotFitted reports a call that requires a fitted receiver.
func NotFitted(op string) *Error {
	return &Error{
		Kind:    KindNotFitted,
		Op:      op,
		Slice:   NoSlice,
		Message: "call Fit first",
	}
}

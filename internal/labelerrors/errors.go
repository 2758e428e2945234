package labelerrors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrLabelErrors is matched by every validation error of this package.
var ErrLabelErrors = errors.New("label errors")

// NoRecordsError is returned when no record carries both a prediction and an
// annotation.
type NoRecordsError struct{}

func (e *NoRecordsError) Error() string {
	return "it seems that none of your records have a prediction AND annotation"
}

func (e *NoRecordsError) Is(target error) bool { return target == ErrLabelErrors }

// MissingPredictionError is returned when the probability matrix or the
// annotation vector cannot be built because a label has no prediction.
type MissingPredictionError struct {
	Label  string
	Record string // empty when the label is missing from every prediction
}

func (e *MissingPredictionError) Error() string {
	if e.Record == "" {
		return fmt.Sprintf("it seems predictions are missing for the label %q", e.Label)
	}
	return fmt.Sprintf("it seems a prediction for %q is missing in the following record: %s", e.Label, e.Record)
}

func (e *MissingPredictionError) Is(target error) bool { return target == ErrLabelErrors }

// InvalidPolicyError is returned for an unrecognized sort policy.
type InvalidPolicyError struct {
	Value string
	Valid []string
}

func (e *InvalidPolicyError) Error() string {
	return fmt.Sprintf("%q is not a valid SortBy, please select one of [%s]", e.Value, strings.Join(e.Valid, ", "))
}

func (e *InvalidPolicyError) Is(target error) bool { return target == ErrLabelErrors }

// ReservedOptionError is returned when a caller passes an option the adapter
// sets itself.
type ReservedOptionError struct {
	Key  string
	Hint string
}

func (e *ReservedOptionError) Error() string {
	msg := fmt.Sprintf("the %q option is not supported", e.Key)
	if e.Hint != "" {
		msg += ", " + e.Hint
	}
	return msg
}

func (e *ReservedOptionError) Is(target error) bool { return target == ErrLabelErrors }

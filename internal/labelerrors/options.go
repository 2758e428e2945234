package labelerrors

import (
	"labelaudit/internal/noise"
)

// SortBy is the ranking policy applied to the returned records.
type SortBy string

const (
	// SortByLikelihood ranks records by likelihood of containing a label
	// error, most likely first.
	SortByLikelihood SortBy = "likelihood"
	// SortByPrediction ranks records by the probability the model gives to
	// the annotated label, lowest first.
	SortByPrediction SortBy = "prediction"
)

// Reserved option keys. The adapter sets both itself.
const (
	OptSortedIndexMethod = "sorted_index_method"
	OptMultiLabel        = "multi_label"
)

// ValidSortBy lists the accepted policy values in declaration order.
func ValidSortBy() []string {
	return []string{string(SortByLikelihood), string(SortByPrediction)}
}

// ParseSortBy resolves a policy name. The empty string selects
// SortByLikelihood.
func ParseSortBy(s string) (SortBy, error) {
	switch SortBy(s) {
	case "":
		return SortByLikelihood, nil
	case SortByLikelihood, SortByPrediction:
		return SortBy(s), nil
	}
	return "", &InvalidPolicyError{Value: s, Valid: ValidSortBy()}
}

// method maps the policy to the detector's sorted index method.
func (s SortBy) method() string {
	if s == SortByPrediction {
		return noise.MethodProbGivenLabel
	}
	return noise.MethodNormalizedMargin
}

// Options are extra settings forwarded to the noise detector.
type Options struct {
	PruneMethod         string
	FracNoise           float64
	NumToRemovePerClass []int

	// Extra is passed through untouched, for detector specific tuning.
	Extra map[string]any
}

// Validate rejects reserved keys in Extra.
func (o Options) Validate() error {
	if _, ok := o.Extra[OptSortedIndexMethod]; ok {
		return &ReservedOptionError{
			Key:  OptSortedIndexMethod,
			Hint: "please use the sort policy instead",
		}
	}
	return nil
}

// extra returns a copy of Extra without the multi-label key.
func (o Options) extra() (map[string]any, bool) {
	_, hadMultiLabel := o.Extra[OptMultiLabel]
	if len(o.Extra) == 0 {
		return nil, hadMultiLabel
	}

	out := make(map[string]any, len(o.Extra))
	for k, v := range o.Extra {
		if k == OptMultiLabel {
			continue
		}
		out[k] = v
	}
	return out, hadMultiLabel
}

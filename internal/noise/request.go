// Package noise finds examples whose given label likely disagrees with the
// true class, using the confident learning approach: per-class confidence
// thresholds, a confident joint of (given, true) label counts, and pruning of
// the rows that contribute to its off-diagonal.
//
// Native runs the computation in process. Remote calls a Server over HTTP.
package noise

import (
	"fmt"
	"math"
)

// Sorted index methods.
const (
	MethodNormalizedMargin = "normalized_margin"
	MethodProbGivenLabel   = "prob_given_label"
)

// Prune methods.
const (
	PruneByNoiseRate = "prune_by_noise_rate"
	PruneByClass     = "prune_by_class"
	PruneBoth        = "both"
)

// Request carries the numeric inputs of a noise search. Labels is used in
// single-label mode, MultiLabels otherwise.
type Request struct {
	Labels              []int          `json:"labels,omitempty"`
	MultiLabels         [][]int        `json:"multi_labels,omitempty"`
	Probabilities       [][]float64    `json:"probabilities"`
	MultiLabel          bool           `json:"multi_label"`
	SortedIndexMethod   string         `json:"sorted_index_method"`
	PruneMethod         string         `json:"prune_method,omitempty"`
	FracNoise           float64        `json:"frac_noise,omitempty"`
	NumToRemovePerClass []int          `json:"num_to_remove_per_class,omitempty"`
	Extra               map[string]any `json:"extra,omitempty"`
}

// Response is the server's reply.
type Response struct {
	Indices []int  `json:"indices"`
	Error   string `json:"error,omitempty"`
}

const probTolerance = 1e-9

// normalize validates the request and fills defaults.
func (r Request) normalize() (Request, error) {
	n := len(r.Probabilities)
	if n == 0 {
		return r, fmt.Errorf("probability matrix is empty")
	}
	k := len(r.Probabilities[0])
	if k == 0 {
		return r, fmt.Errorf("probability matrix has no columns")
	}

	for i, row := range r.Probabilities {
		if len(row) != k {
			return r, fmt.Errorf("row %d has %d columns, expected %d", i, len(row), k)
		}
		for j, p := range row {
			if math.IsNaN(p) || math.IsInf(p, 0) {
				return r, fmt.Errorf("probability at (%d, %d) is not finite", i, j)
			}
			if p < -probTolerance || p > 1+probTolerance {
				return r, fmt.Errorf("probability at (%d, %d) is outside [0, 1]: %f", i, j, p)
			}
		}
	}

	if r.MultiLabel {
		if len(r.MultiLabels) != n {
			return r, fmt.Errorf("got %d label sets for %d rows", len(r.MultiLabels), n)
		}
		for i, given := range r.MultiLabels {
			if len(given) == 0 {
				return r, fmt.Errorf("row %d has no given label", i)
			}
			for _, l := range given {
				if l < 0 || l >= k {
					return r, fmt.Errorf("row %d: label %d outside of %d classes", i, l, k)
				}
			}
		}
	} else {
		if len(r.Labels) != n {
			return r, fmt.Errorf("got %d labels for %d rows", len(r.Labels), n)
		}
		for i, l := range r.Labels {
			if l < 0 || l >= k {
				return r, fmt.Errorf("row %d: label %d outside of %d classes", i, l, k)
			}
		}
	}

	switch r.SortedIndexMethod {
	case "":
		r.SortedIndexMethod = MethodNormalizedMargin
	case MethodNormalizedMargin, MethodProbGivenLabel:
	default:
		return r, fmt.Errorf("unknown sorted index method %q", r.SortedIndexMethod)
	}

	switch r.PruneMethod {
	case "":
		r.PruneMethod = PruneByNoiseRate
	case PruneByNoiseRate, PruneByClass, PruneBoth:
	default:
		return r, fmt.Errorf("unknown prune method %q", r.PruneMethod)
	}

	if r.FracNoise == 0 {
		r.FracNoise = 1.0
	}
	if r.FracNoise < 0 || r.FracNoise > 1 {
		return r, fmt.Errorf("frac_noise must be in (0, 1], got %f", r.FracNoise)
	}

	if r.NumToRemovePerClass != nil {
		if len(r.NumToRemovePerClass) != k {
			return r, fmt.Errorf("num_to_remove_per_class has %d entries for %d classes", len(r.NumToRemovePerClass), k)
		}
		for j, c := range r.NumToRemovePerClass {
			if c < 0 {
				return r, fmt.Errorf("num_to_remove_per_class[%d] is negative", j)
			}
		}
	}

	return r, nil
}

// givenSet returns the given labels of row i.
func (r Request) givenSet(i int) []int {
	if r.MultiLabel {
		return r.MultiLabels[i]
	}
	return r.Labels[i : i+1]
}

// Package labelerrors finds potential annotation errors in text-classification
// records. It reshapes the records into a label vector and a probability
// matrix, hands them to a noise detector and maps the detector's row indices
// back to records.
//
// Only records with both a prediction and an annotation take part. Predictions
// should come from a model that did not see those records during training.
package labelerrors

import (
	"context"
	"fmt"
	"time"

	"labelaudit/internal/noise"
	"labelaudit/internal/records"

	"github.com/rs/zerolog/log"
)

// NoiseDetector returns the row indices suspected of label errors, ordered by
// the request's sorted index method.
type NoiseDetector interface {
	FindNoiseIndices(ctx context.Context, req noise.Request) ([]int, error)
}

// MetricsInterface defines metrics methods needed by the adapter
type MetricsInterface interface {
	AuditsInc()
	AuditFailuresInc()
	RecordsDroppedAdd(float64)
	LabelErrorsObserve(float64)
	DetectorLatencyObserve(float64)
}

type Adapter struct {
	detector NoiseDetector
	metrics  MetricsInterface
}

func New(detector NoiseDetector) *Adapter {
	return NewWithMetrics(detector, nil)
}

func NewWithMetrics(detector NoiseDetector, metrics MetricsInterface) *Adapter {
	return &Adapter{detector: detector, metrics: metrics}
}

// FindLabelErrors returns the subset of recs suspected of carrying a wrong
// annotation, ordered according to sortBy.
//
// Records lacking a prediction or an annotation are dropped without error.
// The multi-label mode is taken from the first record; batches are expected
// to be homogeneous.
func (a *Adapter) FindLabelErrors(ctx context.Context, recs []records.ClassificationRecord, sortBy SortBy, opts Options) ([]records.ClassificationRecord, error) {
	found, err := a.findLabelErrors(ctx, recs, sortBy, opts)
	if a.metrics != nil {
		if err != nil {
			a.metrics.AuditFailuresInc()
		} else {
			a.metrics.AuditsInc()
			a.metrics.LabelErrorsObserve(float64(len(found)))
		}
	}
	return found, err
}

func (a *Adapter) findLabelErrors(ctx context.Context, recs []records.ClassificationRecord, sortBy SortBy, opts Options) ([]records.ClassificationRecord, error) {
	if a == nil || a.detector == nil {
		return nil, fmt.Errorf("no noise detector configured")
	}

	policy, err := ParseSortBy(string(sortBy))
	if err != nil {
		return nil, err
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, &NoRecordsError{}
	}

	multiLabel := recs[0].MultiLabel
	extra, overridden := opts.extra()
	if overridden {
		log.Warn().
			Bool("multi_label", multiLabel).
			Msg("multi_label option is determined automatically from the records, ignoring the provided value")
	}

	kept := make([]records.ClassificationRecord, 0, len(recs))
	for _, rec := range recs {
		if rec.HasPrediction() && rec.HasAnnotationFor(multiLabel) {
			kept = append(kept, rec)
		}
	}
	if dropped := len(recs) - len(kept); dropped > 0 {
		log.Debug().Int("dropped", dropped).Int("kept", len(kept)).Msg("skipping records without prediction or annotation")
		if a.metrics != nil {
			a.metrics.RecordsDroppedAdd(float64(dropped))
		}
	}
	if len(kept) == 0 {
		return nil, &NoRecordsError{}
	}

	in, err := buildInputs(kept, multiLabel)
	if err != nil {
		return nil, err
	}

	req := noise.Request{
		Labels:              in.labels,
		MultiLabels:         in.multiLabels,
		Probabilities:       in.psx,
		MultiLabel:          multiLabel,
		SortedIndexMethod:   policy.method(),
		PruneMethod:         opts.PruneMethod,
		FracNoise:           opts.FracNoise,
		NumToRemovePerClass: opts.NumToRemovePerClass,
		Extra:               extra,
	}

	start := time.Now()
	indices, err := a.detector.FindNoiseIndices(ctx, req)
	if a.metrics != nil {
		a.metrics.DetectorLatencyObserve(time.Since(start).Seconds())
	}
	if err != nil {
		return nil, fmt.Errorf("noise detection failed: %w", err)
	}

	found := make([]records.ClassificationRecord, 0, len(indices))
	for _, idx := range indices {
		if idx < 0 || idx >= len(kept) {
			return nil, fmt.Errorf("noise detector returned index %d outside of %d records", idx, len(kept))
		}
		found = append(found, kept[idx])
	}

	log.Debug().
		Str("sort_by", string(policy)).
		Int("records", len(kept)).
		Int("labels", len(in.labelSpace)).
		Int("label_errors", len(found)).
		Msg("label error search finished")

	return found, nil
}

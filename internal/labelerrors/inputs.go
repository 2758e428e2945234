package labelerrors

import (
	"labelaudit/internal/records"
)

type inputs struct {
	labelSpace  []string
	labels      []int
	multiLabels [][]int
	psx         [][]float64
}

// buildInputs derives the label space, the probability matrix and the
// annotation vector. Columns follow the order in which labels first appear
// across the predictions.
func buildInputs(recs []records.ClassificationRecord, multiLabel bool) (inputs, error) {
	var in inputs

	predictions := make([]map[string]float64, len(recs))
	index := make(map[string]int)
	for i, rec := range recs {
		predictions[i] = rec.PredictionMap()
		for _, p := range rec.Prediction {
			if _, ok := index[p.Label]; !ok {
				index[p.Label] = len(in.labelSpace)
				in.labelSpace = append(in.labelSpace, p.Label)
			}
		}
	}

	in.psx = make([][]float64, len(recs))
	if multiLabel {
		in.multiLabels = make([][]int, len(recs))
	} else {
		in.labels = make([]int, len(recs))
	}

	for i, rec := range recs {
		row := make([]float64, len(in.labelSpace))
		for j, label := range in.labelSpace {
			prob, ok := predictions[i][label]
			if !ok {
				return inputs{}, &MissingPredictionError{Label: label, Record: rec.String()}
			}
			row[j] = prob
		}
		in.psx[i] = row

		if multiLabel {
			annotated := rec.AnnotatedLabels()
			given := make([]int, 0, len(annotated))
			for _, label := range annotated {
				j, ok := index[label]
				if !ok {
					return inputs{}, &MissingPredictionError{Label: label}
				}
				given = append(given, j)
			}
			in.multiLabels[i] = given
			continue
		}

		j, ok := index[rec.Annotation]
		if !ok {
			return inputs{}, &MissingPredictionError{Label: rec.Annotation}
		}
		in.labels[i] = j
	}

	return in, nil
}

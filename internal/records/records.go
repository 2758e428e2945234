// Package records defines the text-classification records audited for label
// errors, along with helpers to read and write them as JSON Lines.
package records

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
)

// LabelProb is a single (label, probability) pair of a prediction.
type LabelProb struct {
	Label       string  `json:"label"`
	Probability float64 `json:"probability"`
}

// ClassificationRecord is a text-classification example carrying a model
// prediction and a human annotation.
type ClassificationRecord struct {
	ID          string            `json:"id,omitempty"`
	Text        string            `json:"text,omitempty"`
	Inputs      map[string]string `json:"inputs,omitempty"`
	Prediction  []LabelProb       `json:"prediction,omitempty"`
	Annotation  string            `json:"annotation,omitempty"`
	Annotations []string          `json:"annotations,omitempty"`
	MultiLabel  bool              `json:"multi_label,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// HasPrediction reports whether the record carries a non-empty prediction.
func (r ClassificationRecord) HasPrediction() bool {
	return len(r.Prediction) > 0
}

// HasAnnotation reports whether the record carries an annotation matching
// its mode: Annotations for multi-label records, Annotation otherwise.
func (r ClassificationRecord) HasAnnotation() bool {
	return r.HasAnnotationFor(r.MultiLabel)
}

// HasAnnotationFor reports whether the record can be read as annotated in a
// batch of the given mode. A single-label batch needs Annotation; a
// multi-label batch accepts either field.
func (r ClassificationRecord) HasAnnotationFor(multiLabel bool) bool {
	if multiLabel {
		return len(r.AnnotatedLabels()) > 0
	}
	return r.Annotation != ""
}

// AnnotatedLabels returns the annotated label(s) regardless of mode.
func (r ClassificationRecord) AnnotatedLabels() []string {
	if r.MultiLabel {
		return r.Annotations
	}
	if r.Annotation == "" {
		return nil
	}
	return []string{r.Annotation}
}

// PredictionMap returns the prediction as label -> probability. Later pairs
// win over earlier ones with the same label.
func (r ClassificationRecord) PredictionMap() map[string]float64 {
	m := make(map[string]float64, len(r.Prediction))
	for _, p := range r.Prediction {
		m[p.Label] = p.Probability
	}
	return m
}

// String gives a short human readable form used in error messages.
func (r ClassificationRecord) String() string {
	id := r.ID
	if id == "" {
		id = "<no id>"
	}
	text := r.Text
	if len(text) > 40 {
		text = text[:40] + "..."
	}
	return fmt.Sprintf("record(id=%s text=%q annotation=%s)", id, text, strings.Join(r.AnnotatedLabels(), "|"))
}

// ReadJSONL decodes one record per non-blank line.
func ReadJSONL(r io.Reader) ([]ClassificationRecord, error) {
	var out []ClassificationRecord

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}

		var rec ClassificationRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("line %d: decode record: %w", line, err)
		}
		out = append(out, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read records: %w", err)
	}

	return out, nil
}

// LoadFile reads a JSON Lines file of records.
func LoadFile(path string) ([]ClassificationRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open records file %s: %w", path, err)
	}
	defer f.Close()

	return ReadJSONL(f)
}

// WriteJSONL encodes records one per line.
func WriteJSONL(w io.Writer, recs []ClassificationRecord) error {
	enc := json.NewEncoder(w)
	for i, rec := range recs {
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("encode record %d: %w", i, err)
		}
	}
	return nil
}

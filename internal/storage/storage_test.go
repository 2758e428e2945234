package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"labelaudit/internal/records"
	"labelaudit/internal/users"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestNew(t *testing.T) {
	tempDir := t.TempDir()

	store, err := New(tempDir)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	if store.db == nil {
		t.Error("Store database is nil")
	}

	dbPath := filepath.Join(tempDir, "labelaudit.db")
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file was not created")
	}
}

func TestNew_InvalidPath(t *testing.T) {
	invalidPath := filepath.Join(t.TempDir(), "missing", "dir")

	_, err := New(invalidPath)
	if err == nil {
		t.Error("Expected error for invalid path, got nil")
	}
}

func TestStore_Close(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	if err := store.Close(); err != nil {
		t.Errorf("Error closing store: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Errorf("Error closing already closed store: %v", err)
	}
}

func TestPutRecords_AssignsIDs(t *testing.T) {
	store := newTestStore(t)

	in := []records.ClassificationRecord{
		{Text: "great movie", Annotation: "pos"},
		{ID: "fixed", Text: "awful", Annotation: "neg"},
	}

	out, err := store.PutRecords("reviews", in)
	if err != nil {
		t.Fatalf("Failed to store records: %v", err)
	}

	if out[0].ID == "" {
		t.Error("Expected an ID to be assigned")
	}
	if out[1].ID != "fixed" {
		t.Errorf("Expected existing ID to be kept, got %s", out[1].ID)
	}
	if in[0].ID != "" {
		t.Error("Input slice must not be modified")
	}
}

func TestRecords_RoundTrip(t *testing.T) {
	store := newTestStore(t)

	in := []records.ClassificationRecord{
		{
			ID:         "a",
			Text:       "great movie",
			Prediction: []records.LabelProb{{Label: "pos", Probability: 0.9}, {Label: "neg", Probability: 0.1}},
			Annotation: "neg",
		},
		{
			ID:          "b",
			Text:        "sports and politics",
			Prediction:  []records.LabelProb{{Label: "sports", Probability: 0.7}, {Label: "politics", Probability: 0.6}},
			Annotations: []string{"sports"},
			MultiLabel:  true,
		},
	}
	if _, err := store.PutRecords("ds1", in); err != nil {
		t.Fatalf("Failed to store records: %v", err)
	}
	if _, err := store.PutRecords("ds10", []records.ClassificationRecord{{ID: "x"}}); err != nil {
		t.Fatalf("Failed to store records: %v", err)
	}

	got, err := store.Records("ds1")
	if err != nil {
		t.Fatalf("Failed to read records: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(got))
	}
	if got[0].ID != "a" || got[1].ID != "b" {
		t.Errorf("Unexpected order: %s, %s", got[0].ID, got[1].ID)
	}
	if got[0].Prediction[0].Probability != 0.9 {
		t.Errorf("Prediction not preserved: %+v", got[0].Prediction)
	}
	if !got[1].MultiLabel || got[1].Annotations[0] != "sports" {
		t.Errorf("Multi-label annotation not preserved: %+v", got[1])
	}
}

func TestRecords_KeepsStoredOrder(t *testing.T) {
	store := newTestStore(t)

	names := []string{"first", "second", "third", "fourth", "fifth"}
	in := make([]records.ClassificationRecord, len(names))
	for i, name := range names {
		in[i] = records.ClassificationRecord{ID: name, Annotation: "pos"}
	}
	if _, err := store.PutRecords("d", in); err != nil {
		t.Fatalf("Failed to store records: %v", err)
	}
	// A later import lands after the first one
	if _, err := store.PutRecords("d", []records.ClassificationRecord{{ID: "sixth"}}); err != nil {
		t.Fatalf("Failed to store records: %v", err)
	}

	got, err := store.Records("d")
	if err != nil {
		t.Fatalf("Failed to read records: %v", err)
	}

	want := append(names, "sixth")
	if len(got) != len(want) {
		t.Fatalf("Expected %d records, got %d", len(want), len(got))
	}
	for i, rec := range got {
		if rec.ID != want[i] {
			t.Errorf("Record %d: expected %s, got %s", i, want[i], rec.ID)
		}
	}
}

func TestRecords_EmptyDataset(t *testing.T) {
	store := newTestStore(t)

	got, err := store.Records("nothing")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Expected no records, got %d", len(got))
	}
}

func TestPutRecords_RequiresDataset(t *testing.T) {
	store := newTestStore(t)

	if _, err := store.PutRecords("", []records.ClassificationRecord{{ID: "a"}}); err == nil {
		t.Error("Expected error for empty dataset name")
	}
}

func TestDeleteDataset(t *testing.T) {
	store := newTestStore(t)

	store.PutRecords("keep", []records.ClassificationRecord{{ID: "k"}})
	store.PutRecords("drop", []records.ClassificationRecord{{ID: "1"}, {ID: "2"}, {ID: "3"}})

	if err := store.DeleteDataset("drop"); err != nil {
		t.Fatalf("Failed to delete dataset: %v", err)
	}

	dropped, _ := store.Records("drop")
	if len(dropped) != 0 {
		t.Errorf("Expected dataset to be empty, got %d records", len(dropped))
	}
	kept, _ := store.Records("keep")
	if len(kept) != 1 {
		t.Errorf("Expected other dataset untouched, got %d records", len(kept))
	}
}

func TestAudits(t *testing.T) {
	store := newTestStore(t)

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	first := AuditResult{Dataset: "reviews", SortBy: "likelihood", Timestamp: base, Checked: 10, RecordIDs: []string{"b", "a"}}
	second := AuditResult{Dataset: "reviews", SortBy: "prediction", Timestamp: base.Add(time.Hour), Checked: 10, RecordIDs: []string{"a"}}

	// Saved out of order on purpose
	if err := store.SaveAudit(second); err != nil {
		t.Fatalf("Failed to save audit: %v", err)
	}
	if err := store.SaveAudit(first); err != nil {
		t.Fatalf("Failed to save audit: %v", err)
	}
	store.SaveAudit(AuditResult{Dataset: "other", Timestamp: base.Add(2 * time.Hour)})

	audits, err := store.Audits("reviews")
	if err != nil {
		t.Fatalf("Failed to read audits: %v", err)
	}
	if len(audits) != 2 {
		t.Fatalf("Expected 2 audits, got %d", len(audits))
	}
	if audits[0].SortBy != "likelihood" || audits[1].SortBy != "prediction" {
		t.Errorf("Expected chronological order, got %s then %s", audits[0].SortBy, audits[1].SortBy)
	}
	if len(audits[0].RecordIDs) != 2 || audits[0].RecordIDs[0] != "b" {
		t.Errorf("Record order not preserved: %v", audits[0].RecordIDs)
	}

	latest, err := store.LatestAudit("reviews")
	if err != nil {
		t.Fatalf("Failed to read latest audit: %v", err)
	}
	if latest.SortBy != "prediction" {
		t.Errorf("Expected latest audit to be the prediction one, got %s", latest.SortBy)
	}
}

func TestLatestAudit_NotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.LatestAudit("missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestUsers(t *testing.T) {
	store := newTestStore(t)

	email := "ada@example.com"
	disabled := false
	u := users.User{
		Username:   "ada",
		Email:      &email,
		Disabled:   &disabled,
		UserGroups: []string{"admins", "beta"},
	}

	if err := store.PutUser(u); err != nil {
		t.Fatalf("Failed to store user: %v", err)
	}

	got, err := store.User("ada")
	if err != nil {
		t.Fatalf("Failed to read user: %v", err)
	}
	if got.Email == nil || *got.Email != email {
		t.Errorf("Email not preserved: %v", got.Email)
	}
	if got.FullName != nil {
		t.Errorf("Expected FullName to stay unset, got %v", *got.FullName)
	}
	if group, ok := got.CurrentGroup(); !ok || group != "admins" {
		t.Errorf("Expected current group admins, got %q", group)
	}
}

func TestUsers_Errors(t *testing.T) {
	store := newTestStore(t)

	if err := store.PutUser(users.User{}); !errors.Is(err, users.ErrMissingUsername) {
		t.Errorf("Expected ErrMissingUsername, got %v", err)
	}

	if _, err := store.User("ghost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

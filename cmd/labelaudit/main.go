package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"labelaudit/internal/cfg"
	"labelaudit/internal/labelerrors"
	"labelaudit/internal/metrics"
	"labelaudit/internal/noise"
	"labelaudit/internal/records"
	"labelaudit/internal/storage"
	"labelaudit/internal/users"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	var (
		inputPath  = flag.String("input", "", "JSON Lines file of records to audit")
		dataset    = flag.String("dataset", "", "Dataset name in the store")
		importOnly = flag.Bool("import", false, "Append -input to -dataset and exit")
		deleteOnly = flag.Bool("delete", false, "Delete the records of -dataset and exit")
		usersPath  = flag.String("import-users", "", "JSON Lines file of user accounts to store, then exit")
		username   = flag.String("user", "", "Account running the audit; disabled accounts are refused")
		sortBy     = flag.String("sort", "", "Sort policy: likelihood or prediction (overrides config)")
		prune      = flag.String("prune", "", "Prune method: prune_by_noise_rate, prune_by_class or both (overrides config)")
		detector   = flag.String("detector", "", "Noise detection service URL; empty runs in process (overrides config)")
		outputPath = flag.String("output", "", "Write flagged records here instead of stdout")
		logLevel   = flag.String("log-level", "", "Log level: debug, info, warn, error (overrides config)")
	)
	flag.Parse()

	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	if err := applyFlags(&c, *sortBy, *prune, *detector, *logLevel); err != nil {
		log.Fatal().Err(err).Msg("invalid flags")
	}
	setupLogging(c.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := initializeStorage(c)
	if store != nil {
		defer store.Close()
	}

	switch {
	case *deleteOnly:
		if err := deleteDataset(store, *dataset); err != nil {
			log.Fatal().Err(err).Msg("delete failed")
		}
		return
	case *usersPath != "":
		if err := importUsers(store, *usersPath); err != nil {
			log.Fatal().Err(err).Msg("user import failed")
		}
		return
	}

	var account *users.User
	if *username != "" {
		u, err := lookupUser(store, *username)
		if err != nil {
			log.Fatal().Err(err).Msg("user check failed")
		}
		account = &u
	}

	recs, err := loadRecords(store, *inputPath, *dataset)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load records")
	}

	if *importOnly {
		if err := importRecords(store, *dataset, recs); err != nil {
			log.Fatal().Err(err).Msg("import failed")
		}
		return
	}

	policy, err := labelerrors.ParseSortBy(c.SortBy)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid sort policy")
	}

	det := newDetector(c)
	adapter := labelerrors.New(det)
	var reg *prometheus.Registry
	if c.PushgatewayURL != "" {
		reg = prometheus.NewRegistry()
		adapter = labelerrors.NewWithMetrics(det, metrics.NewWrapper(metrics.NewWithRegistry(reg)))
	}

	found, err := adapter.FindLabelErrors(ctx, recs, policy, c.AuditOptions())
	if reg != nil {
		if perr := pushMetrics(ctx, c.PushgatewayURL, reg); perr != nil {
			log.Warn().Err(perr).Str("url", c.PushgatewayURL).Msg("failed to push metrics")
		}
	}
	if err != nil {
		log.Fatal().Err(err).Msg("label error search failed")
	}

	log.Info().
		Int("records", len(recs)).
		Int("label_errors", len(found)).
		Str("sort_by", string(policy)).
		Msg("label error search finished")

	if err := writeResults(*outputPath, found); err != nil {
		log.Fatal().Err(err).Msg("failed to write results")
	}

	if store != nil && *dataset != "" {
		saveAudit(store, *dataset, policy, len(recs), found, account)
	}
}

// applyFlags overrides the loaded settings and validates the result.
func applyFlags(c *cfg.Settings, sortBy, prune, detector, logLevel string) error {
	if sortBy != "" {
		c.SortBy = sortBy
	}
	if prune != "" {
		c.PruneMethod = prune
	}
	if detector != "" {
		c.DetectorURL = detector
	}
	if logLevel != "" {
		c.LogLevel = logLevel
	}
	return cfg.Validate(*c)
}

func setupLogging(levelName string) {
	level, err := zerolog.ParseLevel(levelName)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
}

// initializeStorage initializes storage if DATA_PATH is configured
func initializeStorage(c cfg.Settings) *storage.Store {
	if c.DataPath == "" {
		return nil
	}
	store, err := storage.New(c.DataPath)
	if err != nil {
		log.Warn().Err(err).Msg("storage initialization failed, continuing without persistence")
		return nil
	}
	return store
}

func newDetector(c cfg.Settings) labelerrors.NoiseDetector {
	if c.DetectorURL != "" {
		log.Info().Str("url", c.DetectorURL).Msg("using remote noise detector")
		return noise.NewRemote(c.DetectorURL, c.DetectorTimeout)
	}
	return noise.NewNative()
}

func loadRecords(store *storage.Store, inputPath, dataset string) ([]records.ClassificationRecord, error) {
	if inputPath != "" {
		return records.LoadFile(inputPath)
	}
	if dataset == "" {
		return nil, fmt.Errorf("either -input or -dataset is required")
	}
	if store == nil {
		return nil, fmt.Errorf("dataset %q requested but no store is configured (set DATA_PATH)", dataset)
	}
	return store.Records(dataset)
}

func importRecords(store *storage.Store, dataset string, recs []records.ClassificationRecord) error {
	if store == nil || dataset == "" {
		return fmt.Errorf("-import needs DATA_PATH and -dataset")
	}
	stored, err := store.PutRecords(dataset, recs)
	if err != nil {
		return err
	}
	log.Info().Str("dataset", dataset).Int("records", len(stored)).Msg("records imported")
	return nil
}

func deleteDataset(store *storage.Store, dataset string) error {
	if store == nil || dataset == "" {
		return fmt.Errorf("-delete needs DATA_PATH and -dataset")
	}
	if err := store.DeleteDataset(dataset); err != nil {
		return err
	}
	log.Info().Str("dataset", dataset).Msg("dataset deleted")
	return nil
}

func importUsers(store *storage.Store, path string) error {
	if store == nil {
		return fmt.Errorf("-import-users needs DATA_PATH")
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open users file: %w", err)
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	count := 0
	for {
		var u users.User
		if err := dec.Decode(&u); errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			return fmt.Errorf("user %d: %w", count+1, err)
		}
		if err := store.PutUser(u); err != nil {
			return fmt.Errorf("user %d: %w", count+1, err)
		}
		count++
	}

	log.Info().Int("users", count).Msg("users imported")
	return nil
}

// lookupUser returns the stored account, refusing disabled ones.
func lookupUser(store *storage.Store, username string) (users.User, error) {
	if store == nil {
		return users.User{}, fmt.Errorf("-user needs DATA_PATH")
	}
	u, err := store.User(username)
	if err != nil {
		return users.User{}, err
	}
	if u.IsDisabled() {
		return users.User{}, fmt.Errorf("user %q is disabled", username)
	}
	return u, nil
}

// pushMetrics sends the collectors of a one-shot run to a Prometheus
// Pushgateway.
func pushMetrics(ctx context.Context, url string, g prometheus.Gatherer) error {
	return push.New(url, "labelaudit").Gatherer(g).PushContext(ctx)
}

func writeResults(path string, found []records.ClassificationRecord) error {
	out := os.Stdout
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	w := bufio.NewWriter(out)
	if err := records.WriteJSONL(w, found); err != nil {
		return err
	}
	return w.Flush()
}

func saveAudit(store *storage.Store, dataset string, policy labelerrors.SortBy, checked int, found []records.ClassificationRecord, account *users.User) {
	ids := make([]string, len(found))
	for i, rec := range found {
		ids[i] = rec.ID
	}

	result := storage.AuditResult{
		Dataset:   dataset,
		SortBy:    string(policy),
		Timestamp: time.Now(),
		Checked:   checked,
		RecordIDs: ids,
	}
	if account != nil {
		result.User = account.Username
		result.Group, _ = account.CurrentGroup()
	}

	err := store.SaveAudit(result)
	if err != nil {
		log.Warn().Err(err).Str("dataset", dataset).Msg("failed to save audit result")
	}
}

package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/vjranagit/sleepfilter/internal/config"
	"github.com/vjranagit/sleepfilter/pkg/records"
	"github.com/vjranagit/sleepfilter/pkg/storage"
)

// snapshotName keys a dataset's snapshot by its file name
func snapshotName(path string) string {
	return filepath.Base(path)
}

// openDataset loads the configured dataset. With snapshots enabled, a stored
// snapshot is used when its checksum matches the file and it was parsed in the
// configured time zone; otherwise the file is parsed and the snapshot replaced.
func openDataset(ctx context.Context, cfg *config.Config, log *zap.Logger, force bool) (*records.Store, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	data, err := records.ReadFile(cfg.Dataset.Path)
	if err != nil {
		return nil, err
	}
	sum := records.Checksum(data)

	if !cfg.Storage.EnableSnapshots {
		return parseDataset(data, cfg, log)
	}

	scfg := cfg.ToStorageConfig()
	scfg.Location = loc
	scfg.Logger = log
	store, err := storage.NewStorage(scfg)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	name := snapshotName(cfg.Dataset.Path)
	if !force {
		snap, err := store.Get(ctx, name)
		switch {
		case err == nil && snap.Checksum == sum && snap.Location == loc.String():
			log.Info("Loaded snapshot",
				zap.String("name", name),
				zap.Int("records", len(snap.Records)),
				zap.Time("created", snap.Created),
			)
			return records.FromRecords(snap.Records), nil
		case err == nil && snap.Checksum != sum:
			log.Info("Dataset changed since snapshot", zap.String("name", name))
		case err == nil:
			log.Info("Time zone changed since snapshot",
				zap.String("name", name),
				zap.String("snapshot", snap.Location),
				zap.String("timezone", loc.String()),
			)
		case !errors.Is(err, storage.ErrSnapshotNotFound):
			return nil, err
		}
	}

	recs, err := parseDataset(data, cfg, log)
	if err != nil {
		return nil, err
	}

	snap := &storage.Snapshot{Name: name, Checksum: sum, Location: loc.String(), Created: time.Now(), Records: recs.All()}
	if err := store.Put(ctx, snap); err != nil {
		return nil, fmt.Errorf("failed to store snapshot: %w", err)
	}
	log.Info("Stored snapshot", zap.String("name", name), zap.Int("records", recs.Size()))
	return recs, nil
}

func parseDataset(data []byte, cfg *config.Config, log *zap.Logger) (*records.Store, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	entries, err := records.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	store, report := records.Load(entries, records.WithLocation(loc), records.WithLogger(log))
	if err := report.Err(); err != nil {
		log.Warn("Skipped malformed entries", zap.Int("count", len(report.Malformed)), zap.Error(err))
	}
	log.Info("Parsed dataset",
		zap.String("path", cfg.Dataset.Path),
		zap.String("size", humanize.Bytes(uint64(len(data)))),
		zap.Int("entries", report.Entries),
		zap.Int("loaded", report.Loaded),
		zap.Int("duplicates", report.Duplicates),
	)
	return store, nil
}

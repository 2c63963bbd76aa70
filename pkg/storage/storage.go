package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"github.com/vjranagit/sleepfilter/pkg/types"
)

// ErrSnapshotNotFound is returned when no snapshot exists under a name.
var ErrSnapshotNotFound = errors.New("snapshot not found")

const snapshotPrefix = "snapshot/"

// Snapshot is a loaded record set together with the checksum of its source
// and the time zone its dates were built in
type Snapshot struct {
	Name     string
	Checksum uint64
	Location string
	Created  time.Time
	Records  []types.Record
}

// SnapshotInfo describes a stored snapshot without its records
type SnapshotInfo struct {
	Name     string
	Checksum uint64
	Location string
	Created  time.Time
	Count    int
}

// SnapshotStore persists parsed record sets so a dataset is only parsed once.
type SnapshotStore interface {
	// Put stores snap under snap.Name, replacing any previous one
	Put(ctx context.Context, snap *Snapshot) error

	// Get returns the snapshot stored under name
	Get(ctx context.Context, name string) (*Snapshot, error)

	// List returns every stored snapshot, ordered by name
	List(ctx context.Context) ([]SnapshotInfo, error)

	// Delete removes the snapshot stored under name
	Delete(ctx context.Context, name string) error

	// Close closes the store
	Close() error
}

// Config holds storage configuration
type Config struct {
	Path             string
	CompressionLevel int
	Location         *time.Location
	Logger           *zap.Logger
}

// DefaultConfig returns default storage configuration
func DefaultConfig() *Config {
	return &Config{
		Path:             "./data",
		CompressionLevel: 3,
		Location:         time.Local,
	}
}

// badgerStore implements SnapshotStore using BadgerDB
type badgerStore struct {
	cfg        *Config
	db         *badger.DB
	compressor *Compressor
	logger     *zap.Logger
}

type snapshotPayload struct {
	Checksum uint64            `json:"checksum"`
	Location string            `json:"location"`
	Created  int64             `json:"created"`
	Count    int               `json:"count"`
	Columns  map[string][]byte `json:"columns"`
}

// NewStorage opens a snapshot store
func NewStorage(cfg *Config) (SnapshotStore, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}

	opts := badger.DefaultOptions(filepath.Join(cfg.Path, "badger"))
	opts.Logger = badgerLogger{logger.Sugar()}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB: %w", err)
	}

	compressor, err := NewCompressor(cfg.CompressionLevel)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create compressor: %w", err)
	}

	return &badgerStore{
		cfg:        cfg,
		db:         db,
		compressor: compressor,
		logger:     logger,
	}, nil
}

// Put implements SnapshotStore.Put
func (s *badgerStore) Put(ctx context.Context, snap *Snapshot) error {
	if snap.Name == "" {
		return fmt.Errorf("snapshot name is required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	cols, err := s.compressor.encodeRecords(snap.Records)
	if err != nil {
		return fmt.Errorf("failed to encode records: %w", err)
	}

	created := snap.Created
	if created.IsZero() {
		created = time.Now()
	}
	location := snap.Location
	if location == "" {
		location = s.cfg.Location.String()
	}
	payload, err := json.Marshal(&snapshotPayload{
		Checksum: snap.Checksum,
		Location: location,
		Created:  created.Unix(),
		Count:    len(snap.Records),
		Columns:  cols,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(snapshotKey(snap.Name), payload)
	})
	if err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}

	s.logger.Info("Stored snapshot",
		zap.String("name", snap.Name),
		zap.Int("records", len(snap.Records)),
		zap.Int("bytes", len(payload)))
	return nil
}

// Get implements SnapshotStore.Get
func (s *badgerStore) Get(ctx context.Context, name string) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	payload, err := s.readPayload(name)
	if err != nil {
		return nil, err
	}

	// Times come back in the zone they were parsed in, so a caller comparing
	// Location sees the records exactly as they were stored.
	loc := s.cfg.Location
	if payload.Location != "" {
		if l, err := time.LoadLocation(payload.Location); err == nil {
			loc = l
		}
	}

	recs, err := s.compressor.decodeRecords(payload.Columns, payload.Count, loc)
	if err != nil {
		return nil, fmt.Errorf("failed to decode snapshot %q: %w", name, err)
	}

	return &Snapshot{
		Name:     name,
		Checksum: payload.Checksum,
		Location: payload.Location,
		Created:  time.Unix(payload.Created, 0),
		Records:  recs,
	}, nil
}

// List implements SnapshotStore.List
func (s *badgerStore) List(ctx context.Context) ([]SnapshotInfo, error) {
	var infos []SnapshotInfo
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(snapshotPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			var payload snapshotPayload
			err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &payload)
			})
			if err != nil {
				return fmt.Errorf("failed to unmarshal payload: %w", err)
			}
			infos = append(infos, SnapshotInfo{
				Name:     strings.TrimPrefix(string(item.Key()), snapshotPrefix),
				Checksum: payload.Checksum,
				Location: payload.Location,
				Created:  time.Unix(payload.Created, 0),
				Count:    payload.Count,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, nil
}

// Delete implements SnapshotStore.Delete
func (s *badgerStore) Delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(snapshotKey(name))
	})
}

// Close implements SnapshotStore.Close
func (s *badgerStore) Close() error {
	s.compressor.Close()
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *badgerStore) readPayload(name string) (*snapshotPayload, error) {
	var payloadBytes []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(snapshotKey(name))
		if err != nil {
			return err
		}
		payloadBytes, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	var payload snapshotPayload
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	return &payload, nil
}

func snapshotKey(name string) []byte {
	return []byte(snapshotPrefix + name)
}

// badgerLogger routes BadgerDB's logging into zap
type badgerLogger struct {
	*zap.SugaredLogger
}

func (l badgerLogger) Warningf(format string, args ...interface{}) {
	l.Warnf(format, args...)
}

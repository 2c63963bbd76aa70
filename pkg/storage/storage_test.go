package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vjranagit/sleepfilter/pkg/types"
)

func testRecords() []types.Record {
	start := time.Date(2011, 3, 7, 0, 0, 0, 0, time.UTC)
	recs := make([]types.Record, 30)
	for i := range recs {
		date := start.AddDate(0, 0, i)
		recs[i] = types.Record{
			Index:       i,
			Date:        date,
			Pillow:      date.Add(23 * time.Hour),
			Wake:        date.Add(31 * time.Hour),
			Awakenings:  i % 4,
			Hours:       6 + float64(i%5)*0.5,
			ZQ:          float64(60 + i),
			DayOfWeek:   int(date.Weekday()),
			MorningFeel: float64(i % 3),
			TimeInWake:  float64(i * 2),
		}
	}
	return recs
}

func openStore(t *testing.T) SnapshotStore {
	t.Helper()
	store, err := NewStorage(&Config{
		Path:             t.TempDir(),
		CompressionLevel: 3,
		Location:         time.UTC,
	})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSnapshotPutAndGet(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	recs := testRecords()
	require.NoError(t, store.Put(ctx, &Snapshot{Name: "sleep.json", Checksum: 42, Records: recs}))

	snap, err := store.Get(ctx, "sleep.json")
	require.NoError(t, err)
	assert.Equal(t, uint64(42), snap.Checksum)
	assert.Equal(t, "UTC", snap.Location)
	assert.False(t, snap.Created.IsZero())
	require.Len(t, snap.Records, len(recs))

	for i, want := range recs {
		got := snap.Records[i]
		assert.True(t, want.Date.Equal(got.Date), "date %d", i)
		assert.True(t, want.Pillow.Equal(got.Pillow), "pillow %d", i)
		assert.True(t, want.Wake.Equal(got.Wake), "wake %d", i)
		assert.Equal(t, want.Index, got.Index)
		assert.Equal(t, want.Awakenings, got.Awakenings)
		assert.Equal(t, want.Hours, got.Hours)
		assert.Equal(t, want.ZQ, got.ZQ)
		assert.Equal(t, want.DayOfWeek, got.DayOfWeek)
		assert.Equal(t, want.MorningFeel, got.MorningFeel)
		assert.Equal(t, want.TimeInWake, got.TimeInWake)
	}
}

func TestSnapshotKeepsLocation(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	store := openStore(t)
	ctx := context.Background()

	date := time.Date(2011, 3, 7, 0, 0, 0, 0, ny)
	recs := []types.Record{{Date: date, Pillow: date.Add(22 * time.Hour), Wake: date.Add(30 * time.Hour), DayOfWeek: 1}}
	require.NoError(t, store.Put(ctx, &Snapshot{Name: "ny", Location: ny.String(), Records: recs}))

	snap, err := store.Get(ctx, "ny")
	require.NoError(t, err)
	assert.Equal(t, "America/New_York", snap.Location)
	assert.Equal(t, ny, snap.Records[0].Date.Location())
	assert.Equal(t, 7, snap.Records[0].Date.Day())
}

func TestSnapshotListAndDelete(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, &Snapshot{Name: "b", Checksum: 2, Records: testRecords()[:3]}))
	require.NoError(t, store.Put(ctx, &Snapshot{Name: "a", Checksum: 1, Records: testRecords()[:5]}))

	infos, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, "a", infos[0].Name)
	assert.Equal(t, 5, infos[0].Count)
	assert.Equal(t, "b", infos[1].Name)
	assert.Equal(t, uint64(2), infos[1].Checksum)
	assert.Equal(t, "UTC", infos[1].Location)

	require.NoError(t, store.Delete(ctx, "a"))
	_, err = store.Get(ctx, "a")
	assert.True(t, errors.Is(err, ErrSnapshotNotFound))
}

func TestSnapshotReplaceAndEmpty(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, &Snapshot{Name: "x", Checksum: 1, Records: testRecords()}))
	require.NoError(t, store.Put(ctx, &Snapshot{Name: "x", Checksum: 2}))

	snap, err := store.Get(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), snap.Checksum)
	assert.Empty(t, snap.Records)

	assert.Error(t, store.Put(ctx, &Snapshot{}))
}

func TestSnapshotCanceledContext(t *testing.T) {
	store := openStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, store.Put(ctx, &Snapshot{Name: "x"}), context.Canceled)
	_, err := store.Get(ctx, "x")
	assert.ErrorIs(t, err, context.Canceled)
}

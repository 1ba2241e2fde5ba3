package sink

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupSQLite(t *testing.T) *SQLiteSink {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "data", "lob.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

func TestSQLiteSink(t *testing.T) {
	s := setupSQLite(t)
	ctx := context.Background()

	require.NoError(t, s.WriteSnapshot(ctx, testSnapshot(t, 10)))
	require.NoError(t, s.WriteSnapshot(ctx, testSnapshot(t, 20)))

	latest, err := s.Latest("run1")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, uint64(20), latest.Sequence)
	assert.Equal(t, 2, latest.Books)
	assert.Equal(t, uint64(5), latest.FeedTime)

	levels, err := s.Levels(latest.ID, 1)
	require.NoError(t, err)
	require.Len(t, levels, 3)

	assert.Equal(t, "buy", levels[0].Side)
	assert.Equal(t, uint32(100), levels[0].Ticks)
	assert.Equal(t, "0.01", levels[0].Price)
	assert.Equal(t, uint64(10), levels[0].Volume)
	assert.Equal(t, 2, levels[0].Orders)
	assert.Equal(t, 0, levels[0].Level)

	assert.Equal(t, uint32(99), levels[1].Ticks)
	assert.Equal(t, 1, levels[1].Level)

	assert.Equal(t, "sell", levels[2].Side)
	assert.Equal(t, uint32(105), levels[2].Ticks)

	levels, err = s.Levels(latest.ID, 7)
	require.NoError(t, err)
	require.Len(t, levels, 1)
	assert.Equal(t, "0.25", levels[0].Price)
}

func TestSQLiteSinkLatestMissing(t *testing.T) {
	s := setupSQLite(t)
	latest, err := s.Latest("nope")
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestSQLiteSinkDuplicateSequence(t *testing.T) {
	s := setupSQLite(t)
	ctx := context.Background()

	require.NoError(t, s.WriteSnapshot(ctx, testSnapshot(t, 10)))
	assert.Error(t, s.WriteSnapshot(ctx, testSnapshot(t, 10)))

	var count int64
	require.NoError(t, s.db.Model(&LevelRecord{}).Count(&count).Error)
	assert.Equal(t, int64(4), count)
}

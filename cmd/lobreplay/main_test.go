package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/0x5487/lob"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSynthReplayInspect(t *testing.T) {
	dir := t.TempDir()
	feedPath := filepath.Join(dir, "session.itch")
	require.NoError(t, runSynth([]string{
		"-out", feedPath, "-books", "4", "-messages", "3000", "-max-live", "400", "-seed", "11",
	}))

	feed, err := os.Open(feedPath)
	require.NoError(t, err)
	defer feed.Close()

	mirror := lob.NewDepthMirror()
	registry, err := lob.NewBookRegistry(
		lob.RegistryConfig{MaxOrders: 1 << 12, MaxLevels: 1 << 11, MaxBooks: 8},
		lob.WithPublishLog(mirror),
		lob.WithObserver(mirror),
	)
	require.NoError(t, err)

	directory := lob.NewDirectory()
	fileSink := lob.NewFileSink(filepath.Join(dir, "snapshots"))
	rp, err := lob.NewReplayer(feed, registry,
		lob.ReplayConfig{ApplyExecutions: true, Verify: true},
		lob.WithInfoHandler(directory),
		lob.WithSnapshotSink(fileSink),
		lob.WithRunID("synth"),
	)
	require.NoError(t, err)

	stats, err := rp.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Anomalies, "a synthetic session is well formed")
	assert.Equal(t, uint64(1+2*4+1+3000+2), stats.Messages)
	assert.Equal(t, 4, directory.Len())
	require.NoError(t, mirror.Err())
	require.NoError(t, verifyMirror(mirror, registry, directory))

	snapDir := filepath.Join(dir, "snapshots", "synth-"+pad12(stats.Messages))
	var out bytes.Buffer
	require.NoError(t, runInspect([]string{"-dir", snapDir, "-levels", "3"}, &out))

	var got inspection
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	require.NotNil(t, got.Metadata)
	assert.Equal(t, "synth", got.Metadata.RunID)
	assert.Equal(t, stats.Books, len(got.Books))
	for _, b := range got.Books {
		book := registry.Book(b.Locate)
		require.NotNil(t, book)
		assert.Equal(t, book.Len(), b.Orders)
		assert.LessOrEqual(t, len(b.Bids), 3)
		assert.LessOrEqual(t, len(b.Asks), 3)
		symbol, _ := directory.Symbol(b.Locate)
		assert.Equal(t, symbol, b.Symbol)
	}

	out.Reset()
	err = runInspect([]string{"-dir", snapDir, "-locate", "999"}, &out)
	assert.ErrorContains(t, err, "locate 999")
}

func TestSynthRejectsBadFlags(t *testing.T) {
	out := filepath.Join(t.TempDir(), "x.itch")
	assert.Error(t, runSynth(nil))
	assert.Error(t, runSynth([]string{"-out", out, "-books", "0"}))
	assert.Error(t, runSynth([]string{"-out", out, "-max-live", "0"}))
	assert.Error(t, runInspect(nil, &bytes.Buffer{}))
}

func pad12(n uint64) string {
	s := strconv.FormatUint(n, 10)
	for len(s) < 12 {
		s = "0" + s
	}
	return s
}

package lob

import (
	"context"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

// Price renders feed ticks as a dollar amount.
func Price(ticks uint32) decimal.Decimal {
	return decimal.New(int64(ticks), -PriceScale)
}

// Snapshot is a consistent export of every book of a replay.
// Snapshots are for inspection and downstream systems; nothing restores a
// book from one.
type Snapshot struct {
	RunID    string         `json:"run_id"`
	Sequence uint64         `json:"sequence"`  // messages applied before the snapshot
	FeedTime uint64         `json:"feed_time"` // timestamp of the last message applied
	TakenAt  time.Time      `json:"taken_at"`
	Books    []BookSnapshot `json:"books"`
}

// BookSnapshot contains the full state of a single OrderBook.
type BookSnapshot struct {
	Locate    uint16          `json:"locate"`
	Symbol    string          `json:"symbol,omitempty"`
	SeqID     uint64          `json:"seq_id"` // Current BookLog sequence ID
	Orders    int             `json:"orders"`
	Bids      []LevelSnapshot `json:"bids"` // best price first
	Asks      []LevelSnapshot `json:"asks"` // best price first
	LastTrade *TradeSnapshot  `json:"last_trade,omitempty"`
}

type LevelSnapshot struct {
	Price  decimal.Decimal `json:"price"`
	Ticks  uint32          `json:"ticks"`
	Volume uint64          `json:"volume"`
	Orders []OrderSnapshot `json:"orders"` // time priority
}

type OrderSnapshot struct {
	Ref       uint64 `json:"ref"`
	Shares    uint32 `json:"shares"`
	Timestamp uint64 `json:"timestamp"`
}

type TradeSnapshot struct {
	Price       decimal.Decimal `json:"price"`
	Shares      uint64          `json:"shares"`
	MatchNumber uint64          `json:"match_number"`
	Timestamp   uint64          `json:"timestamp"`
}

// SnapshotSink receives snapshots taken during a replay.
type SnapshotSink interface {
	WriteSnapshot(ctx context.Context, snap *Snapshot) error
}

// MultiSnapshotSink writes every snapshot to each sink in order and stops at
// the first error.
type MultiSnapshotSink []SnapshotSink

func (m MultiSnapshotSink) WriteSnapshot(ctx context.Context, snap *Snapshot) error {
	for _, s := range m {
		if err := s.WriteSnapshot(ctx, snap); err != nil {
			return err
		}
	}
	return nil
}

// Snapshot captures the current state of the order book.
func (book *OrderBook) Snapshot(symbol string) BookSnapshot {
	snap := BookSnapshot{
		Locate: book.locate,
		Symbol: symbol,
		SeqID:  book.seqID,
		Orders: book.Len(),
		Bids:   book.bidQueue.snapshot(),
		Asks:   book.askQueue.snapshot(),
	}
	if t, ok := book.LastTrade(); ok {
		snap.LastTrade = &TradeSnapshot{
			Price:       Price(t.Price),
			Shares:      t.Shares,
			MatchNumber: t.MatchNumber,
			Timestamp:   t.Timestamp,
		}
	}
	return snap
}

// snapshot serializes the queue level by level, then order by order, to
// preserve priority.
func (q *queue) snapshot() []LevelSnapshot {
	levels := make([]LevelSnapshot, 0, q.depthCount())
	q.index.walk(func(price uint32, lh int32) bool {
		lv := q.pools.level(lh)
		ls := LevelSnapshot{
			Price:  Price(price),
			Ticks:  price,
			Volume: lv.volume,
			Orders: make([]OrderSnapshot, 0, lv.count),
		}
		for h := lv.head; h != nullIndex; {
			o := q.pools.order(h)
			ls.Orders = append(ls.Orders, OrderSnapshot{Ref: o.Ref, Shares: o.Shares, Timestamp: o.Timestamp})
			h = o.next
		}
		levels = append(levels, ls)
		return true
	})
	return levels
}

// Snapshot exports every live book in locate order. symbols may be nil.
func (r *BookRegistry) Snapshot(symbols SymbolLookup) []BookSnapshot {
	books := make([]BookSnapshot, 0, len(r.books))
	r.Range(func(book *OrderBook) bool {
		var symbol string
		if symbols != nil {
			symbol, _ = symbols.Symbol(book.locate)
		}
		books = append(books, book.Snapshot(symbol))
		return true
	})
	return books
}

// SnapshotMetadata holds the global metadata for a snapshot (stored in metadata.json).
type SnapshotMetadata struct {
	SchemaVersion    int    `json:"schema_version"`
	RunID            string `json:"run_id"`
	Sequence         uint64 `json:"sequence"`
	FeedTime         uint64 `json:"feed_time"`
	Timestamp        int64  `json:"timestamp"` // Unix Nano
	EngineVersion    string `json:"engine_version"`
	Books            int    `json:"books"`
	SnapshotChecksum uint32 `json:"snapshot_checksum"` // CRC32 of the entire snapshot.bin file
}

// SnapshotFileFooter is the footer structure stored at the end of snapshot.bin.
// Layout: [BookSegments...][FooterJSON][FooterLength(4 bytes, big endian)]
type SnapshotFileFooter struct {
	Books []BookSegment `json:"books"`
}

// BookSegment locates one book's JSON data within snapshot.bin.
type BookSegment struct {
	Locate   uint16 `json:"locate"`
	Offset   int64  `json:"offset"` // Start offset in snapshot.bin
	Length   int64  `json:"length"`
	Checksum uint32 `json:"checksum"` // CRC32 of this segment
}

// FileSink writes each snapshot into its own directory under Root.
type FileSink struct {
	Root string
}

func NewFileSink(root string) *FileSink {
	return &FileSink{Root: root}
}

// Dir returns the directory a snapshot is written to.
func (s *FileSink) Dir(snap *Snapshot) string {
	return filepath.Join(s.Root, fmt.Sprintf("%s-%012d", snap.RunID, snap.Sequence))
}

func (s *FileSink) WriteSnapshot(ctx context.Context, snap *Snapshot) error {
	_, err := WriteSnapshotFile(ctx, s.Dir(snap), snap)
	return err
}

// WriteSnapshotFile writes snap to outputDir as `snapshot.bin` plus
// `metadata.json`. Files are written to a temporary directory that replaces
// outputDir only once complete.
func WriteSnapshotFile(ctx context.Context, outputDir string, snap *Snapshot) (*SnapshotMetadata, error) {
	tmpDir := outputDir + ".tmp"
	if err := os.RemoveAll(tmpDir); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(tmpDir, 0755); err != nil {
		return nil, err
	}

	binPath := filepath.Join(tmpDir, "snapshot.bin")
	binFile, err := os.Create(binPath)
	if err != nil {
		return nil, err
	}

	if err := writeSegments(ctx, binFile, snap.Books); err != nil {
		binFile.Close()
		return nil, err
	}

	// Sync to ensure data is flushed to disk before checksum calculation
	if err := binFile.Sync(); err != nil {
		binFile.Close()
		return nil, err
	}
	if err := binFile.Close(); err != nil {
		return nil, err
	}

	snapshotChecksum, err := calculateFileCRC32(binPath)
	if err != nil {
		return nil, err
	}

	meta := &SnapshotMetadata{
		SchemaVersion:    SnapshotSchemaVersion,
		RunID:            snap.RunID,
		Sequence:         snap.Sequence,
		FeedTime:         snap.FeedTime,
		Timestamp:        snap.TakenAt.UnixNano(),
		EngineVersion:    Version,
		Books:            len(snap.Books),
		SnapshotChecksum: snapshotChecksum,
	}

	metaBytes, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(tmpDir, "metadata.json"), metaBytes, 0600); err != nil {
		return nil, err
	}

	if err := os.RemoveAll(outputDir); err != nil {
		return nil, err
	}
	if err := os.Rename(tmpDir, outputDir); err != nil {
		return nil, err
	}
	return meta, nil
}

func writeSegments(ctx context.Context, w io.Writer, books []BookSnapshot) error {
	segments := make([]BookSegment, 0, len(books))
	offset := int64(0)

	for i := range books {
		if err := ctx.Err(); err != nil {
			return err
		}

		data, err := json.Marshal(&books[i])
		if err != nil {
			return err
		}
		n, err := w.Write(data)
		if err != nil {
			return err
		}

		segments = append(segments, BookSegment{
			Locate:   books[i].Locate,
			Offset:   offset,
			Length:   int64(n),
			Checksum: crc32.ChecksumIEEE(data),
		})
		offset += int64(n)
	}

	footerData, err := json.Marshal(SnapshotFileFooter{Books: segments})
	if err != nil {
		return err
	}
	if _, err := w.Write(footerData); err != nil {
		return err
	}
	if len(footerData) > 1<<32-1 {
		return fmt.Errorf("%w: footer too large", ErrSnapshotCorrupt)
	}
	//nolint:gosec // Verified length above
	return binary.Write(w, binary.BigEndian, uint32(len(footerData)))
}

// ReadSnapshotFile reads a snapshot directory back, verifying the file and
// per-book checksums.
func ReadSnapshotFile(inputDir string) (*SnapshotMetadata, *Snapshot, error) {
	metaBytes, err := os.ReadFile(filepath.Join(inputDir, "metadata.json"))
	if err != nil {
		return nil, nil, err
	}
	var meta SnapshotMetadata
	if err := json.Unmarshal(metaBytes, &meta); err != nil {
		return nil, nil, fmt.Errorf("%w: metadata: %w", ErrSnapshotCorrupt, err)
	}

	binPath := filepath.Join(inputDir, "snapshot.bin")
	fileChecksum, err := calculateFileCRC32(binPath)
	if err != nil {
		return nil, nil, err
	}
	if fileChecksum != meta.SnapshotChecksum {
		return nil, nil, fmt.Errorf("%w: snapshot.bin", ErrSnapshotChecksum)
	}

	binFile, err := os.Open(binPath)
	if err != nil {
		return nil, nil, err
	}
	defer binFile.Close()

	stat, err := binFile.Stat()
	if err != nil {
		return nil, nil, err
	}
	fileSize := stat.Size()
	if fileSize < 4 {
		return nil, nil, fmt.Errorf("%w: %d bytes", ErrSnapshotCorrupt, fileSize)
	}

	footerLenBytes := make([]byte, 4)
	if _, err := binFile.ReadAt(footerLenBytes, fileSize-4); err != nil {
		return nil, nil, err
	}
	footerLen := int64(binary.BigEndian.Uint32(footerLenBytes))
	footerOffset := fileSize - 4 - footerLen
	if footerOffset < 0 {
		return nil, nil, fmt.Errorf("%w: footer length %d", ErrSnapshotCorrupt, footerLen)
	}

	footerBytes := make([]byte, footerLen)
	if _, err := binFile.ReadAt(footerBytes, footerOffset); err != nil {
		return nil, nil, err
	}
	var footer SnapshotFileFooter
	if err := json.Unmarshal(footerBytes, &footer); err != nil {
		return nil, nil, fmt.Errorf("%w: footer: %w", ErrSnapshotCorrupt, err)
	}

	snap := &Snapshot{
		RunID:    meta.RunID,
		Sequence: meta.Sequence,
		FeedTime: meta.FeedTime,
		TakenAt:  time.Unix(0, meta.Timestamp).UTC(),
		Books:    make([]BookSnapshot, 0, len(footer.Books)),
	}
	for _, segment := range footer.Books {
		if segment.Offset < 0 || segment.Length < 0 || segment.Offset+segment.Length > footerOffset {
			return nil, nil, fmt.Errorf("%w: segment of locate %d out of range", ErrSnapshotCorrupt, segment.Locate)
		}
		segmentData := make([]byte, segment.Length)
		if _, err := binFile.ReadAt(segmentData, segment.Offset); err != nil {
			return nil, nil, err
		}
		if crc32.ChecksumIEEE(segmentData) != segment.Checksum {
			return nil, nil, fmt.Errorf("%w: locate %d", ErrSnapshotChecksum, segment.Locate)
		}

		var book BookSnapshot
		if err := json.Unmarshal(segmentData, &book); err != nil {
			return nil, nil, fmt.Errorf("%w: locate %d: %w", ErrSnapshotCorrupt, segment.Locate, err)
		}
		snap.Books = append(snap.Books, book)
	}
	return &meta, snap, nil
}

func calculateFileCRC32(path string) (uint32, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	h := crc32.NewIEEE()
	if _, err := io.Copy(h, f); err != nil {
		return 0, err
	}
	return h.Sum32(), nil
}

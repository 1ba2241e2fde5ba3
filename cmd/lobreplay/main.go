package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/0x5487/lob"
	"github.com/0x5487/lob/config"
	"github.com/0x5487/lob/sink"
	"github.com/goccy/go-json"
)

const usage = `usage: lobreplay <command> [flags]

commands:
  replay   rebuild every order book from an ITCH 5.0 file
  synth    write a synthetic ITCH 5.0 session
  inspect  print a snapshot directory written by replay
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch os.Args[1] {
	case "replay":
		err = runReplay(ctx, os.Args[2:])
	case "synth":
		err = runSynth(os.Args[2:])
	case "inspect":
		err = runInspect(os.Args[2:], os.Stdout)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		slog.Error("lobreplay failed", slog.String("command", os.Args[1]), slog.Any("err", err))
		os.Exit(1)
	}
}

// report is printed to stdout when a replay ends.
type report struct {
	Stats      lob.ReplayStats     `json:"stats"`
	Metrics    lob.MetricsSnapshot `json:"metrics"`
	Pools      []lob.PoolUsage     `json:"pools"`
	Executions uint64              `json:"executions"`
	Broken     uint64              `json:"broken_trades"`
	KafkaSent  uint64              `json:"kafka_sent,omitempty"`
	KafkaLost  uint64              `json:"kafka_lost,omitempty"`
}

func runReplay(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("replay", flag.ContinueOnError)
	configPath := fs.String("config", "", "YAML configuration file")
	feedPath := fs.String("feed", "", "ITCH 5.0 file, overrides feed.path")
	runID := fs.String("run-id", "", "run id, generated when empty")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *feedPath != "" {
		cfg.Feed.Path = *feedPath
	}
	if cfg.Feed.Path == "" {
		return errors.New("no feed file: set feed.path or -feed")
	}

	logger, logCloser := config.NewLogger(cfg, os.Stderr)
	defer logCloser.Close()
	lob.SetLogger(logger)
	slog.SetDefault(logger)

	feed, err := os.Open(cfg.Feed.Path)
	if err != nil {
		return err
	}
	defer feed.Close()

	directory := lob.NewDirectory()
	executions := lob.NewExecutionRecorder(0)
	metrics := lob.NewMetrics()
	mirror := lob.NewDepthMirror()

	publishLogs := []lob.PublishLog{mirror}
	var kafkaLog *sink.KafkaPublishLog
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaLog = sink.NewKafkaPublishLog(sink.KafkaConfig{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
			Async:   cfg.Kafka.Async,
		}, logger)
		defer kafkaLog.Close()
		publishLogs = append(publishLogs, kafkaLog)
	}

	sinks, closeSinks, err := openSinks(cfg)
	if err != nil {
		return err
	}
	defer closeSinks()

	bookOpts := append(cfg.BookOptions(),
		lob.WithPublishLog(lob.NewMultiPublishLog(publishLogs...)),
		lob.WithObserver(lob.MultiObserver{metrics, mirror}),
	)
	opts := []lob.ReplayOption{
		lob.WithInfoHandler(directory),
		lob.WithExecutionHandler(executions),
		lob.WithReplayObserver(metrics),
		lob.WithRunID(*runID),
	}
	if len(sinks) > 0 {
		opts = append(opts, lob.WithSnapshotSink(sinks))
	}

	var (
		stats      lob.ReplayStats
		registries []*lob.BookRegistry
	)
	if cfg.Replay.Shards > 1 {
		sr, err := lob.NewShardedReplayer(feed, lob.ShardConfig{
			Shards:      cfg.Replay.Shards,
			RingSize:    cfg.Replay.RingSize,
			Registry:    cfg.RegistryConfig(),
			BookOptions: bookOpts,
		}, cfg.ReplayConfig(), opts...)
		if err != nil {
			return err
		}
		stats, err = sr.Run(ctx)
		if err != nil {
			return err
		}
		registries = sr.Registries()
	} else {
		registry, err := lob.NewBookRegistry(cfg.RegistryConfig(), bookOpts...)
		if err != nil {
			return err
		}
		rp, err := lob.NewReplayer(feed, registry, cfg.ReplayConfig(), opts...)
		if err != nil {
			return err
		}
		stats, err = rp.Run(ctx)
		if err != nil {
			return err
		}
		registries = []*lob.BookRegistry{registry}
	}

	if err := mirror.Err(); err != nil {
		return fmt.Errorf("depth mirror: %w", err)
	}
	if cfg.Replay.Verify {
		for _, r := range registries {
			if err := verifyMirror(mirror, r, directory); err != nil {
				return err
			}
		}
	}

	rep := report{
		Stats:   stats,
		Metrics: metrics.Snapshot(),
	}
	for _, r := range registries {
		rep.Pools = append(rep.Pools, r.Pools().Usage())
	}
	rep.Executions, rep.Broken = executions.Count()
	if kafkaLog != nil {
		rep.KafkaSent, rep.KafkaLost = kafkaLog.Stats()
	}
	return writeJSON(os.Stdout, rep)
}

// openSinks opens every configured snapshot sink.
func openSinks(cfg *config.Config) (lob.MultiSnapshotSink, func(), error) {
	var (
		sinks   lob.MultiSnapshotSink
		closers []io.Closer
	)
	closeAll := func() {
		for _, c := range closers {
			_ = c.Close()
		}
	}

	if cfg.Snapshot.Dir != "" {
		sinks = append(sinks, lob.NewFileSink(cfg.Snapshot.Dir))
	}
	if cfg.Snapshot.SQLite != "" {
		s, err := sink.OpenSQLite(cfg.Snapshot.SQLite)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		sinks = append(sinks, s)
		closers = append(closers, s)
	}
	if cfg.Snapshot.Pebble != "" {
		s, err := sink.OpenPebble(cfg.Snapshot.Pebble, nil)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		sinks = append(sinks, s)
		closers = append(closers, s)
	}
	return sinks, closeAll, nil
}

// verifyMirror checks the depth rebuilt from the published logs against
// every live book of registry.
func verifyMirror(mirror *lob.DepthMirror, registry *lob.BookRegistry, directory *lob.Directory) error {
	var err error
	registry.Range(func(book *lob.OrderBook) bool {
		err = compareDepth(mirror.Book(book.Locate()), book, directory)
		return err == nil
	})
	return err
}

func compareDepth(ab *lob.AggregatedBook, book *lob.OrderBook, directory *lob.Directory) error {
	name, ok := directory.Symbol(book.Locate())
	if !ok {
		name = fmt.Sprintf("locate %d", book.Locate())
	}
	depth := book.Depth(0)
	if ab == nil {
		if len(depth.Bids)+len(depth.Asks) > 0 {
			return fmt.Errorf("%w: %s: no depth mirror", lob.ErrInvariant, name)
		}
		return nil
	}
	for _, side := range []lob.Side{lob.Buy, lob.Sell} {
		want := depth.Bids
		if side == lob.Sell {
			want = depth.Asks
		}
		got := ab.Levels(side, 0)
		if len(got) != len(want) {
			return fmt.Errorf("%w: %s %s: mirror has %d levels, book %d", lob.ErrInvariant, name, side, len(got), len(want))
		}
		for i := range want {
			if got[i] != want[i] {
				return fmt.Errorf("%w: %s %s level %d: mirror %+v, book %+v", lob.ErrInvariant, name, side, i, got[i], want[i])
			}
		}
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

package main

import (
	"context"
	"flag"
	"os"

	"tracker/internal/config"
	"tracker/internal/deadletter"
	"tracker/internal/feed"
	"tracker/internal/health"
	"tracker/internal/ingest"
	"tracker/internal/obs"
	"tracker/internal/sink"
	"tracker/internal/storage"
	"tracker/pkg/websocket"

	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		logs.Errorf("tracker: %+v", err)
		os.Exit(1)
	}
}

// status is served at GET /stats.
type status struct {
	State    string       `json:"state"`
	Entities int          `json:"entities"`
	Metrics  obs.Snapshot `json:"metrics"`
}

func run() error {
	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "YAML config file (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	logs.SetDefault(logs.New(cfg.Level()))

	feedURL, err := cfg.FeedURL()
	if err != nil {
		return err
	}
	logs.Infof("feed: %s, store: %s/%s, log level: %s",
		websocket.RedactURL(feedURL), cfg.Store.Backend, cfg.Store.Bucket, cfg.LogLevel)

	stopProfiler, err := obs.StartProfiler(obs.ProfilerConfig{
		ApplicationName: "tracker",
		ServerAddress:   cfg.Obs.PyroscopeServerAddress,
		Tags:            map[string]string{"chain": cfg.Feed.Chain},
	})
	if err != nil {
		return err
	}
	defer stopProfiler()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-sys.Shutdown():
			logs.Info("shutdown requested")
			cancel()
		case <-ctx.Done():
		}
	}()

	store, err := storage.Open(ctx, cfg.Storage())
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logs.Errorf("close store, err: %+v", err)
		}
	}()

	metrics := obs.NewMetrics()
	sinkCfg := sink.Config{Store: store, Timeout: cfg.Store.Timeout, Metrics: metrics}
	if dlCfg, ok := cfg.DeadLetterWriter(); ok {
		writer, err := deadletter.NewWriter(dlCfg)
		if err != nil {
			return err
		}
		writer.Start()
		defer func() {
			if err := writer.Close(); err != nil {
				logs.Errorf("close dead-letter writer, err: %+v", err)
			}
		}()
		sinkCfg.DeadLetter = writer
		logs.Infof("dead-letter log: %s", dlCfg.Dir)
	}

	recordSink, err := sink.New(sinkCfg)
	if err != nil {
		return err
	}

	registry := ingest.NewRegistry()
	session, err := ingest.NewSession(ingest.SessionConfig{
		Registry: registry,
		Batcher:  feed.NewBatcher(cfg.Feed.BatchSize),
		Sink:     recordSink,
		Metrics:  metrics,
	})
	if err != nil {
		return err
	}

	var subprotocols []string
	if cfg.Feed.Subprotocol != "" {
		subprotocols = append(subprotocols, cfg.Feed.Subprotocol)
	}
	supervisor, err := ingest.NewSupervisor(ingest.SupervisorConfig{
		Dialer:  websocket.NewDialer(feedURL, subprotocols...),
		Session: session,
		Backoff: websocket.FixedBackoff(cfg.Feed.ReconnectDelay),
		Metrics: metrics,
		OnStateChange: func(s ingest.State) {
			logs.Infof("feed %s", s)
		},
	})
	if err != nil {
		return err
	}

	server := health.New(cfg.HealthAddr(), func() any {
		return status{
			State:    supervisor.State().String(),
			Entities: registry.Len(),
			Metrics:  metrics.Snapshot(),
		}
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return supervisor.Run(gctx)
	})
	g.Go(func() error {
		return server.Run(gctx)
	})
	g.Go(func() error {
		return metrics.LogEvery(gctx, cfg.Obs.StatsInterval)
	})

	err = g.Wait()
	logs.Infof("tracker stopped, tracked entities: %d", registry.Len())
	return err
}

package main

import (
	"context"
	"flag"
	"log"
	"os"

	"tradebot/internal/broker"
	"tradebot/internal/exchange"
	"tradebot/internal/feed"
	"tradebot/internal/obs"
	"tradebot/internal/ops"
	"tradebot/internal/risk"
	"tradebot/internal/store"
	"tradebot/internal/trader"

	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"
)

type emptyLogger struct{}

func (emptyLogger) Infof(format string, args ...interface{})  {}
func (emptyLogger) Debugf(format string, args ...interface{}) {}
func (emptyLogger) Errorf(format string, args ...interface{}) {}

func main() {
	configPath := flag.String("config", "", "Path to JSON config")
	metricsAddr := flag.String("metrics-addr", ":9090", "Prometheus listen address (empty=disable)")
	pyroAddr := flag.String("pyroscope", "", "Pyroscope server address (empty=disable)")
	flag.Parse()

	loaded, err := ops.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if *pyroAddr != "" {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: "tradebot",
			ServerAddress:   *pyroAddr,
			Logger:          emptyLogger{},
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			log.Fatalf("pyroscope start failed: %v", err)
		}
		defer func() { _ = profiler.Stop() }()
	}

	var st store.Store
	if loaded.Database.Configured() {
		pg, err := store.OpenPG(loaded.Database)
		if err != nil {
			log.Fatalf("open store: %v", err)
		}
		defer func() { _ = pg.Close() }()
		st = pg
	} else {
		logs.Warnf("no database configured, state will not survive restarts")
		st = store.NewMemory()
	}

	bn := exchange.NewBinance(loaded.Exchange.APIKey, loaded.Exchange.APISecret, loaded.Exchange.BaseURL, nil)

	var b broker.Broker
	switch loaded.Mode {
	case ops.ModeLive:
		logs.Warnf("starting in LIVE trading mode (%s)", loaded.Symbol)
		b, err = broker.NewLive(ctx, loaded.Live, bn, st)
	default:
		logs.Infof("starting in paper trading mode (%s)", loaded.Symbol)
		b, err = broker.NewPaper(ctx, loaded.Paper, st)
	}
	if err != nil {
		log.Fatalf("init broker: %v", err)
	}

	latest := feed.NewLatest()
	switch {
	case loaded.Feed.ReplayPath != "":
		replay := feed.NewReplay(loaded.Feed.ReplayPath, loaded.Feed.ReplaySpeed)
		go func() {
			if err := replay.Run(ctx, latest); err != nil {
				logs.Errorf("quote replay stopped: %+v", err)
			}
		}()
	case loaded.Feed.Websocket:
		pub := feed.NewBinancePub(ctx)
		stop, err := pub.Stream(ctx, loaded.Symbol, latest)
		if err != nil {
			log.Fatalf("start websocket feed: %v", err)
		}
		defer stop()
	default:
		var src feed.Source
		if loaded.Feed.Simulated {
			src = feed.NewSimSource(loaded.Feed.SimBase, loaded.Feed.SimVol, loaded.Feed.SimSeed)
		} else {
			src = feed.NewRESTSource(bn)
		}
		if loaded.Feed.RecordPath != "" {
			recorder, err := feed.NewRecorder(loaded.Feed.RecordPath)
			if err != nil {
				log.Fatalf("open quote capture: %v", err)
			}
			defer func() { _ = recorder.Close() }()
			src = recorder.Wrap(src)
		}
		poller := feed.NewPoller(src, loaded.Symbol, loaded.Feed.Interval, latest)
		go poller.Run(ctx)
	}

	if *metricsAddr != "" {
		go obs.Serve(*metricsAddr)
	}

	controller := trader.New(trader.Config{
		Symbol:       loaded.Symbol,
		TickInterval: loaded.Controller.TickInterval,
		StaleAfter:   loaded.Controller.StaleAfter,
		Strategy:     loaded.Strategy,
	}, b, risk.NewEngine(loaded.Risk), latest, trader.NewLogTail(0))

	if err := controller.Restore(ctx, st); err != nil {
		logs.Errorf("state restore failed: %+v", err)
	}

	go func() {
		<-sys.Shutdown()
		cancel()
	}()

	if err := controller.Run(ctx); err != nil {
		logs.Errorf("trading loop terminated: %+v", err)
		os.Exit(1)
	}
}

package ops

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"tradebot/internal/broker"
	"tradebot/internal/risk"
	"tradebot/internal/store"
	"tradebot/internal/strategy"
)

// Mode selects the execution backend at startup.
type Mode string

const (
	ModePaper Mode = "paper"
	ModeLive  Mode = "live"
)

// ExchangeConfig carries the live exchange credentials.
type ExchangeConfig struct {
	APIKey    string `json:"apiKey"`
	APISecret string `json:"apiSecret"`
	BaseURL   string `json:"baseUrl"`
}

// FeedConfig tunes the market data task. Exactly one source runs per
// process: a replay capture when ReplayPath is set, the simulated walk
// when Simulated is set, the exchange websocket when Websocket is set,
// REST polling otherwise. RecordPath captures polled quotes for replay.
type FeedConfig struct {
	Interval    time.Duration `json:"interval"`
	Websocket   bool          `json:"websocket"`
	Simulated   bool          `json:"simulated"`
	SimBase     float64       `json:"simBasePrice"`
	SimVol      float64       `json:"simVolatilityPct"`
	SimSeed     int64         `json:"simSeed"`
	RecordPath  string        `json:"recordPath"`
	ReplayPath  string        `json:"replayPath"`
	ReplaySpeed float64       `json:"replaySpeed"`
}

// ControllerConfig tunes the trading loop.
type ControllerConfig struct {
	TickInterval time.Duration `json:"tickInterval"`
	StaleAfter   time.Duration `json:"staleAfter"`
}

// FileConfig mirrors the JSON config layout.
type FileConfig struct {
	Mode       Mode               `json:"mode"`
	Symbol     string             `json:"symbol"`
	BaseAsset  string             `json:"baseAsset"`
	QuoteAsset string             `json:"quoteAsset"`
	Paper      broker.PaperConfig `json:"paper"`
	Live       broker.LiveConfig  `json:"live"`
	Exchange   ExchangeConfig     `json:"exchange"`
	Database   store.PGOption     `json:"database"`
	Risk       risk.Config        `json:"risk"`
	Strategy   strategy.Params    `json:"strategy"`
	Feed       FeedConfig         `json:"feed"`
	Controller ControllerConfig   `json:"controller"`
}

// Loaded is the resolved configuration ready for use.
type Loaded struct {
	Mode       Mode
	Symbol     string
	BaseAsset  string
	QuoteAsset string
	Paper      broker.PaperConfig
	Live       broker.LiveConfig
	Exchange   ExchangeConfig
	Database   store.PGOption
	Risk       risk.Config
	Strategy   strategy.Params
	Feed       FeedConfig
	Controller ControllerConfig
}

// Load reads a JSON config file and resolves defaults. An empty path
// yields the stock paper-trading setup.
func Load(path string) (Loaded, error) {
	var cfg FileConfig
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Loaded{}, err
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			return Loaded{}, err
		}
	}
	return resolve(cfg)
}

func resolve(cfg FileConfig) (Loaded, error) {
	if cfg.Mode == "" {
		cfg.Mode = ModePaper
	}
	if cfg.Mode != ModePaper && cfg.Mode != ModeLive {
		return Loaded{}, fmt.Errorf("unknown trading mode: %q", cfg.Mode)
	}
	if cfg.Symbol == "" {
		cfg.Symbol = "BTCBRL"
	}
	if cfg.BaseAsset == "" {
		cfg.BaseAsset = "BTC"
	}
	if cfg.QuoteAsset == "" {
		cfg.QuoteAsset = "BRL"
	}
	if cfg.Paper.InitialBalance <= 0 {
		cfg.Paper.InitialBalance = 10000
	}
	if cfg.Paper.FeePct <= 0 {
		cfg.Paper.FeePct = 0.005
	}
	if cfg.Paper.SlippagePct <= 0 {
		cfg.Paper.SlippagePct = 0.001
	}
	if cfg.Mode == ModeLive && (cfg.Exchange.APIKey == "" || cfg.Exchange.APISecret == "") {
		return Loaded{}, fmt.Errorf("live mode requires exchange credentials")
	}
	if cfg.Feed.Interval <= 0 {
		cfg.Feed.Interval = 10 * time.Second
	}
	if cfg.Controller.TickInterval <= 0 {
		cfg.Controller.TickInterval = time.Second
	}
	if cfg.Controller.StaleAfter <= 0 {
		cfg.Controller.StaleAfter = 20 * time.Second
	}

	cfg.Live.Symbol = cfg.Symbol
	cfg.Live.BaseAsset = cfg.BaseAsset
	cfg.Live.QuoteAsset = cfg.QuoteAsset

	return Loaded{
		Mode:       cfg.Mode,
		Symbol:     cfg.Symbol,
		BaseAsset:  cfg.BaseAsset,
		QuoteAsset: cfg.QuoteAsset,
		Paper:      cfg.Paper,
		Live:       cfg.Live,
		Exchange:   cfg.Exchange,
		Database:   cfg.Database,
		Risk:       cfg.Risk,
		Strategy:   cfg.Strategy.WithDefaults(),
		Feed:       cfg.Feed,
		Controller: cfg.Controller,
	}, nil
}

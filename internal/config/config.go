package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	General    GeneralConfig    `toml:"general"`
	Exchange   ExchangeConfig   `toml:"exchange"`
	Feed       FeedConfig       `toml:"feed"`
	Filter     FilterConfig     `toml:"filter"`
	Schedule   ScheduleConfig   `toml:"schedule"`
	Notify     NotifyConfig     `toml:"notify"`
	API        APIConfig        `toml:"api"`
	Accounts   []AccountConfig  `toml:"account"`
	Strategies []StrategyConfig `toml:"strategy"`
}

type GeneralConfig struct {
	DBPath   string `toml:"db_path"`
	LogLevel string `toml:"log_level"`
}

type ExchangeConfig struct {
	Mode         string  `toml:"mode"`
	MaxAttempts  int     `toml:"max_attempts"`
	PaperBalance float64 `toml:"paper_balance"`
	PaperSeed    int64   `toml:"paper_seed"`
}

type FeedConfig struct {
	MinChange24h float64  `toml:"min_change_24h"`
	BaseCandles  int      `toml:"base_candles"`
	Intervals    []string `toml:"intervals"`
}

type FilterConfig struct {
	Origins       []string `toml:"origins"`
	Deny          []string `toml:"deny"`
	Allow         []string `toml:"allow"`
	MinVolume     float64  `toml:"min_volume"`
	MinCandles    int      `toml:"min_candles"`
	MinPrecision  int      `toml:"min_precision"`
	SkipLeveraged bool     `toml:"skip_leveraged"`
}

type ScheduleConfig struct {
	PollInterval        Duration `toml:"poll_interval"`
	CollectInterval     Duration `toml:"collect_interval"`
	PerformanceInterval Duration `toml:"performance_interval"`
	MarketCacheTTL      Duration `toml:"market_cache_ttl"`
}

type NotifyConfig struct {
	Enabled  bool   `toml:"enabled"`
	Host     string `toml:"host"`
	Port     string `toml:"port"`
	Username string `toml:"username"`
	Password string `toml:"password"`
	From     string `toml:"from"`
	FromName string `toml:"from_name"`
}

type APIConfig struct {
	Enabled bool   `toml:"enabled"`
	Listen  string `toml:"listen"`
}

// AccountConfig is an exchange account strategies can trade on.
type AccountConfig struct {
	ID            string  `toml:"id"`
	Name          string  `toml:"name"`
	Email         string  `toml:"email"`
	MaxInvestment float64 `toml:"max_investment"`
}

// StrategyConfig describes one trading instance. A controller is started per
// strategy and per account it applies to.
type StrategyConfig struct {
	Name     string   `toml:"name"`
	Selector string   `toml:"selector"`
	Accounts []string `toml:"accounts"`
	Enabled  bool     `toml:"enabled"`

	MaxInvestment          float64  `toml:"max_investment"`
	MinInvestment          float64  `toml:"min_investment"`
	StopLossPercent        float64  `toml:"stop_loss_percent"`
	StopLimitOffsetPercent float64  `toml:"stop_limit_offset_percent"`
	MonitorWindow          Duration `toml:"monitor_window"`
	MonitorPoll            Duration `toml:"monitor_poll"`
	AbortThreshold         float64  `toml:"abort_threshold"`
	AutoRestart            bool     `toml:"auto_restart"`
	ValidateTiming         bool     `toml:"validate_timing"`
	MaxAttempts            int      `toml:"max_attempts"`
}

// Duration wraps time.Duration for TOML unmarshaling.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	// Strategy tables are decoded a second time on top of DefaultStrategy so
	// omitted keys keep their defaults.
	var raw struct {
		Strategies []toml.Primitive `toml:"strategy"`
	}
	md, err := toml.Decode(string(data), &raw)
	if err != nil {
		return nil, fmt.Errorf("parsing strategies: %w", err)
	}
	cfg.Strategies = make([]StrategyConfig, 0, len(raw.Strategies))
	for _, p := range raw.Strategies {
		s := DefaultStrategy()
		if err := md.PrimitiveDecode(p, &s); err != nil {
			return nil, fmt.Errorf("parsing strategy: %w", err)
		}
		cfg.Strategies = append(cfg.Strategies, s)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values the rest of the program relies on.
func (c *Config) Validate() error {
	accounts := make(map[string]bool)
	for _, a := range c.Accounts {
		if a.ID == "" {
			return fmt.Errorf("account %q has no id", a.Name)
		}
		if accounts[a.ID] {
			return fmt.Errorf("duplicate account id %q", a.ID)
		}
		accounts[a.ID] = true
	}

	seen := make(map[string]bool)
	for _, s := range c.Strategies {
		if s.Name == "" {
			return fmt.Errorf("strategy with selector %q has no name", s.Selector)
		}
		if seen[s.Name] {
			return fmt.Errorf("duplicate strategy name %q", s.Name)
		}
		seen[s.Name] = true
		if s.StopLossPercent >= 0 {
			return fmt.Errorf("strategy %s: stop_loss_percent must be negative", s.Name)
		}
		if s.MonitorPoll.Duration <= 0 || s.MonitorWindow.Duration <= 0 {
			return fmt.Errorf("strategy %s: monitor_window and monitor_poll must be positive", s.Name)
		}
		for _, id := range s.Accounts {
			if !accounts[id] {
				return fmt.Errorf("strategy %s: unknown account %q", s.Name, id)
			}
		}
	}
	if c.Feed.BaseCandles <= 0 {
		return fmt.Errorf("feed.base_candles must be positive")
	}
	return nil
}

// DefaultStrategy returns the defaults applied to every [[strategy]] entry.
func DefaultStrategy() StrategyConfig {
	return StrategyConfig{
		Enabled:                true,
		MaxInvestment:          100,
		MinInvestment:          10,
		StopLossPercent:        -3,
		StopLimitOffsetPercent: 0.5,
		MonitorWindow:          Duration{2 * time.Hour},
		MonitorPoll:            Duration{10 * time.Second},
		AbortThreshold:         -7,
		AutoRestart:            true,
		ValidateTiming:         true,
		MaxAttempts:            3,
	}
}

func DefaultConfig() *Config {
	return &Config{
		General: GeneralConfig{
			DBPath:   "./data/scalper.db",
			LogLevel: "info",
		},
		Exchange: ExchangeConfig{
			Mode:         "paper",
			MaxAttempts:  3,
			PaperBalance: 1000,
			PaperSeed:    1,
		},
		Feed: FeedConfig{
			MinChange24h: -10,
			BaseCandles:  2100,
			Intervals:    []string{"15m", "30m", "1h", "2h", "4h"},
		},
		Filter: FilterConfig{
			Origins:       []string{"USDT"},
			MinVolume:     100000,
			MinCandles:    100,
			MinPrecision:  0,
			SkipLeveraged: true,
		},
		Schedule: ScheduleConfig{
			PollInterval:        Duration{1 * time.Minute},
			CollectInterval:     Duration{15 * time.Minute},
			PerformanceInterval: Duration{1 * time.Hour},
			MarketCacheTTL:      Duration{5 * time.Minute},
		},
		Notify: NotifyConfig{
			Port:     "587",
			FromName: "scalper",
		},
		API: APIConfig{
			Enabled: true,
			Listen:  ":8080",
		},
	}
}

package config

import (
	"errors"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	App struct {
		HTTPAddr string `toml:"http_addr"`
	} `toml:"app"`

	Symbols struct {
		List []string `toml:"list"`
	} `toml:"symbols"`

	Provider struct {
		BaseURL       string `toml:"base_url"`
		WsURL         string `toml:"ws_url"`
		APIKey        string `toml:"api_key"`
		RequestLimit  int    `toml:"request_limit"`
		TimeoutSecs   int    `toml:"timeout_secs"`
		StreamEnabled bool   `toml:"stream_enabled"`
	} `toml:"provider"`

	Storage struct {
		Backend string `toml:"backend"` // "sqlite" or "postgres"
		DSN     string `toml:"dsn"`     // postgres connection string
		Path    string `toml:"path"`    // sqlite file path
	} `toml:"storage"`

	Redis struct {
		Enabled        bool   `toml:"enabled"`
		Addr           string `toml:"addr"`
		Password       string `toml:"password"`
		DB             int    `toml:"db"`
		Prefix         string `toml:"prefix"`
		TTLSeconds     int    `toml:"ttl_seconds"`
		DecisionStream string `toml:"decision_stream"`
	} `toml:"redis"`

	Strategy struct {
		Enabled      bool    `toml:"enabled"`
		ID           string  `toml:"id"`
		Capital      float64 `toml:"capital"`
		Timeframe    string  `toml:"timeframe"`
		LookbackDays int     `toml:"lookback_days"`
		EvalEveryMin int     `toml:"eval_every_min"`
	} `toml:"strategy"`

	Broker struct {
		Enabled   bool   `toml:"enabled"`
		APIKey    string `toml:"api_key"`
		APISecret string `toml:"api_secret"`
		BaseURL   string `toml:"base_url"`
	} `toml:"broker"`
}

func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.App.HTTPAddr == "" {
		cfg.App.HTTPAddr = ":8080"
	}
	if cfg.Provider.BaseURL == "" {
		cfg.Provider.BaseURL = "https://api.polygon.io/v2"
	}
	if cfg.Provider.RequestLimit <= 0 {
		cfg.Provider.RequestLimit = 50000
	}
	if cfg.Provider.TimeoutSecs <= 0 {
		cfg.Provider.TimeoutSecs = 15
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "sqlite"
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = "data/emax.db"
	}
	if cfg.Redis.Prefix == "" {
		cfg.Redis.Prefix = "emax"
	}
	if cfg.Strategy.ID == "" {
		cfg.Strategy.ID = "ema_crossover"
	}
	if cfg.Strategy.Capital <= 0 {
		cfg.Strategy.Capital = 100000
	}
	if cfg.Strategy.Timeframe == "" {
		cfg.Strategy.Timeframe = "10"
	}
	if cfg.Strategy.LookbackDays <= 0 {
		cfg.Strategy.LookbackDays = 30
	}
	if cfg.Strategy.EvalEveryMin <= 0 {
		cfg.Strategy.EvalEveryMin = 1
	}
}

func validate(cfg *Config) error {
	cfg.Symbols.List = normalizeSymbols(cfg.Symbols.List)
	if len(cfg.Symbols.List) == 0 {
		return errors.New("symbols.list is empty")
	}

	switch cfg.Storage.Backend {
	case "sqlite":
	case "postgres":
		if strings.TrimSpace(cfg.Storage.DSN) == "" {
			return errors.New("storage.dsn empty but backend is postgres")
		}
	default:
		return errors.New("storage.backend must be sqlite or postgres")
	}

	if strings.TrimSpace(cfg.Provider.APIKey) == "" {
		return errors.New("provider.api_key is empty")
	}
	if cfg.Provider.StreamEnabled && strings.TrimSpace(cfg.Provider.WsURL) == "" {
		return errors.New("provider.ws_url empty but stream enabled")
	}
	if cfg.Redis.Enabled && strings.TrimSpace(cfg.Redis.Addr) == "" {
		return errors.New("redis.addr empty but enabled")
	}
	if cfg.Broker.Enabled && (cfg.Broker.APIKey == "" || cfg.Broker.APISecret == "") {
		return errors.New("broker credentials empty but enabled")
	}
	return nil
}

func normalizeSymbols(in []string) []string {
	out := make([]string, 0, len(in))
	seen := map[string]struct{}{}
	for _, s := range in {
		u := strings.ToUpper(strings.TrimSpace(s))
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}

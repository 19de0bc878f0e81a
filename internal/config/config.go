package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

type Bot struct {
	// Token is never read from the config file, only from the
	// DISCORD_BOT_TOKEN environment variable.
	Token      string `json:"-"`
	DataFile   string `json:"data_file"`
	StylesFile string `json:"styles_file"`
}

type Quotes struct {
	Endpoint              string `json:"endpoint"`
	CacheTTLSeconds       int    `json:"cache_ttl_sec"`
	RequestTimeoutSec     int    `json:"request_timeout_sec"`
	MaxRequestsPerMinute  int    `json:"max_requests_per_minute"`
	MinRequestIntervalSec int    `json:"min_request_interval_sec"`
	Burst                 int    `json:"burst"`
}

type Refresh struct {
	VoiceCadenceSec      int `json:"voice_cadence_sec"`
	MessageCadenceSec    int `json:"message_cadence_sec"`
	DisconnectedRetrySec int `json:"disconnected_retry_sec"`
}

type Config struct {
	Bot     Bot     `json:"bot"`
	Quotes  Quotes  `json:"quotes"`
	Refresh Refresh `json:"refresh"`
}

func Default() Config {
	return Config{
		Bot: Bot{
			DataFile:   "crypto_bot_data.json",
			StylesFile: "crypto_bot_styles.json",
		},
		Quotes: Quotes{
			Endpoint:             "https://pro-api.coinmarketcap.com",
			CacheTTLSeconds:      60,
			RequestTimeoutSec:    10,
			MaxRequestsPerMinute: 30,
			Burst:                5,
		},
		Refresh: Refresh{
			VoiceCadenceSec:      3600,
			MessageCadenceSec:    1800,
			DisconnectedRetrySec: 180,
		},
	}
}

// Load reads JSON config from path. If path is empty or the file does
// not exist, it returns defaults. Environment variables override
// select fields for secrecy.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		if _, err := os.Stat("config.json"); err == nil {
			path = "config.json"
		}
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			if err := json.Unmarshal(b, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config: %w", err)
			}
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("DISCORD_BOT_TOKEN"); v != "" {
		cfg.Bot.Token = v
	}
	if v := os.Getenv("DATA_FILE"); v != "" {
		cfg.Bot.DataFile = v
	}
	if v := os.Getenv("STYLES_FILE"); v != "" {
		cfg.Bot.StylesFile = v
	}
	if v := os.Getenv("CMC_ENDPOINT"); v != "" {
		cfg.Quotes.Endpoint = v
	}
	if v := os.Getenv("CACHE_TTL_SEC"); v != "" {
		var x int
		fmt.Sscanf(v, "%d", &x)
		if x > 0 {
			cfg.Quotes.CacheTTLSeconds = x
		}
	}
	if v := os.Getenv("REQUEST_TIMEOUT_SEC"); v != "" {
		var x int
		fmt.Sscanf(v, "%d", &x)
		if x > 0 {
			cfg.Quotes.RequestTimeoutSec = x
		}
	}
	if v := os.Getenv("CMC_MAX_RPM"); v != "" {
		var x int
		fmt.Sscanf(v, "%d", &x)
		if x >= 0 {
			cfg.Quotes.MaxRequestsPerMinute = x
		}
	}
	if v := os.Getenv("CMC_MIN_INTERVAL_SEC"); v != "" {
		var x int
		fmt.Sscanf(v, "%d", &x)
		if x >= 0 {
			cfg.Quotes.MinRequestIntervalSec = x
		}
	}
	if v := os.Getenv("CMC_BURST"); v != "" {
		var x int
		fmt.Sscanf(v, "%d", &x)
		if x > 0 {
			cfg.Quotes.Burst = x
		}
	}
	if v := os.Getenv("VOICE_CADENCE_SEC"); v != "" {
		var x int
		fmt.Sscanf(v, "%d", &x)
		if x > 0 {
			cfg.Refresh.VoiceCadenceSec = x
		}
	}
	if v := os.Getenv("MESSAGE_CADENCE_SEC"); v != "" {
		var x int
		fmt.Sscanf(v, "%d", &x)
		if x > 0 {
			cfg.Refresh.MessageCadenceSec = x
		}
	}
	if v := os.Getenv("DISCONNECTED_RETRY_SEC"); v != "" {
		var x int
		fmt.Sscanf(v, "%d", &x)
		if x > 0 {
			cfg.Refresh.DisconnectedRetrySec = x
		}
	}
}

// Package config exposes strongly typed xforth configuration loaded from YAML.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DevnetURL is the public devnet endpoint used when nothing else is configured.
	DevnetURL = "https://api.devnet.solana.com"
	// LocalURL targets a solana-test-validator on the default port.
	LocalURL = "http://127.0.0.1:8899"
	// MaxFundingAttempts bounds the airdrop retry budget; past it the doubling backoff is measured in days.
	MaxFundingAttempts = 20
)

// App captures process-wide runtime settings.
type App struct {
	Name        string `yaml:"name"`
	LogLevel    string `yaml:"log_level"`
	MetricsAddr string `yaml:"metrics_addr"`
	JournalPath string `yaml:"journal_path"`
}

// Funding tunes airdrop requests and their rate-limit backoff.
type Funding struct {
	AirdropSOL  float64 `yaml:"airdrop_sol"`
	MaxAttempts int     `yaml:"max_attempts"`
	BaseDelayMs int     `yaml:"base_delay_ms"`
}

// Confirm bounds how long a receipt is polled for.
type Confirm struct {
	MaxPolls       int `yaml:"max_polls"`
	PollIntervalMs int `yaml:"poll_interval_ms"`
}

// Mint describes the test token created by the fund command.
type Mint struct {
	Decimals     uint8  `yaml:"decimals"`
	TokenProgram string `yaml:"token_program"` // token-2022|token
	SideFile     string `yaml:"side_file"`
}

// Payment configures the test transfer.
type Payment struct {
	MinBalanceSOL float64 `yaml:"min_balance_sol"`
	TransferSOL   float64 `yaml:"transfer_sol"`
}

// Config collects every configuration leaf for easy marshaling from YAML.
type Config struct {
	App     App     `yaml:"app"`
	Network Network `yaml:"network"`
	Funding Funding `yaml:"funding"`
	Confirm Confirm `yaml:"confirm"`
	Mint    Mint    `yaml:"mint"`
	Payment Payment `yaml:"payment"`
}

// Default returns the settings xforth runs with when no file is present.
func Default() *Config {
	return &Config{
		App:     App{Name: "xforth", LogLevel: "info"},
		Network: Network{RpcURL: DevnetURL, Commitment: "confirmed"},
		Funding: Funding{AirdropSOL: 0.5, MaxAttempts: 5, BaseDelayMs: 500},
		Confirm: Confirm{MaxPolls: 30, PollIntervalMs: 1000},
		Mint:    Mint{Decimals: 6, TokenProgram: "token-2022", SideFile: ".env.mint"},
		Payment: Payment{MinBalanceSOL: 0.1, TransferSOL: 0.1},
	}
}

// Load reads a YAML file from disk over the defaults.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	config := Default()
	if err := yaml.NewDecoder(file).Decode(config); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// LoadOrDefault behaves like Load but falls back to Default when the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.Funding.MaxAttempts < 1:
		return fmt.Errorf("funding.max_attempts must be at least 1, got %d", c.Funding.MaxAttempts)
	case c.Funding.MaxAttempts > MaxFundingAttempts:
		return fmt.Errorf("funding.max_attempts must be at most %d, got %d", MaxFundingAttempts, c.Funding.MaxAttempts)
	case c.Funding.BaseDelayMs < 0:
		return fmt.Errorf("funding.base_delay_ms must not be negative")
	case c.Confirm.MaxPolls < 1:
		return fmt.Errorf("confirm.max_polls must be at least 1, got %d", c.Confirm.MaxPolls)
	case c.Confirm.PollIntervalMs < 0:
		return fmt.Errorf("confirm.poll_interval_ms must not be negative")
	case c.Mint.TokenProgram != "token-2022" && c.Mint.TokenProgram != "token":
		return fmt.Errorf("mint.token_program must be token-2022 or token, got %q", c.Mint.TokenProgram)
	}
	return nil
}

// BaseDelay is the first rate-limit backoff step.
func (f Funding) BaseDelay() time.Duration {
	return time.Duration(f.BaseDelayMs) * time.Millisecond
}

// PollInterval is the pause between two status queries.
func (c Confirm) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

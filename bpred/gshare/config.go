package gshare

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/sarchlab/bpsim/bpred"
)

// MaxHistoryBits bounds the history width, and with it the counter table
// size.
const MaxHistoryBits = 24

// ErrInvalidConfig is wrapped by every error Validate returns.
var ErrInvalidConfig = errors.New("invalid predictor config")

// IndexScheme selects how the counter table index is formed.
type IndexScheme string

const (
	// SchemeGShare XORs program-counter bits with the global history.
	SchemeGShare IndexScheme = "gshare"
	// SchemeGlobal indexes with the global history alone (GAg).
	SchemeGlobal IndexScheme = "global"
)

// Config holds the construction-time parameters of a Predictor.
type Config struct {
	// HistoryBits is the global history width and log2 of the counter
	// table size. Default: 13 (8192 counters).
	HistoryBits uint `json:"history_bits"`

	// CounterBits is the width of each saturating counter. The taken
	// threshold is derived from it. Default: 2.
	CounterBits uint `json:"counter_bits"`

	// NumThreads is the number of hardware thread contexts, each with its
	// own history register. Default: 1.
	NumThreads int `json:"num_threads"`

	// PCHashOffset is the number of low address bits skipped before the
	// address is hashed with history. Default: 2 (4-byte instructions).
	PCHashOffset uint `json:"pc_hash_offset"`

	// CounterInit is the value every counter starts at. Default: 0.
	CounterInit uint8 `json:"counter_init"`

	// IndexScheme selects gshare or global-only indexing. Default: gshare.
	IndexScheme IndexScheme `json:"index_scheme"`
}

// DefaultConfig returns the default predictor configuration.
func DefaultConfig() *Config {
	return &Config{
		HistoryBits:  13,
		CounterBits:  2,
		NumThreads:   1,
		PCHashOffset: 2,
		CounterInit:  0,
		IndexScheme:  SchemeGShare,
	}
}

// LoadConfig loads a Config from a JSON file. Fields absent from the file
// keep their default values.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read predictor config file: %w", err)
	}

	config := DefaultConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse predictor config: %w", err)
	}

	return config, nil
}

// SaveConfig writes a Config to a JSON file.
func (c *Config) SaveConfig(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize predictor config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write predictor config file: %w", err)
	}

	return nil
}

// Validate checks that the configuration describes a usable predictor.
func (c *Config) Validate() error {
	if c.HistoryBits == 0 {
		return fmt.Errorf("%w: history_bits must be > 0", ErrInvalidConfig)
	}
	if c.HistoryBits > MaxHistoryBits {
		return fmt.Errorf("%w: history_bits must be <= %d", ErrInvalidConfig, MaxHistoryBits)
	}
	if c.CounterBits == 0 {
		return fmt.Errorf("%w: counter_bits must be > 0", ErrInvalidConfig)
	}
	if c.CounterBits > bpred.MaxCounterBits {
		return fmt.Errorf("%w: counter_bits must be <= %d", ErrInvalidConfig, bpred.MaxCounterBits)
	}
	if c.NumThreads <= 0 {
		return fmt.Errorf("%w: num_threads must be > 0", ErrInvalidConfig)
	}
	if c.PCHashOffset > 64-c.HistoryBits {
		return fmt.Errorf("%w: pc_hash_offset + history_bits must be <= 64", ErrInvalidConfig)
	}
	if uint(c.CounterInit) >= 1<<c.CounterBits {
		return fmt.Errorf("%w: counter_init must be < 2^counter_bits", ErrInvalidConfig)
	}
	switch c.IndexScheme {
	case SchemeGShare, SchemeGlobal:
	default:
		return fmt.Errorf("%w: unknown index_scheme %q", ErrInvalidConfig, c.IndexScheme)
	}
	return nil
}

// Clone returns a copy of the Config.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

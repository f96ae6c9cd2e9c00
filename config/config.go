package config

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
)

// ValidatorConfig describes one epoch participant as read from disk.
type ValidatorConfig struct {
	ID     uint32 `json:"id"`
	Pubkey string `json:"pubkey"` // hex-encoded ed25519 public key
	Stake  uint64 `json:"stake"`
}

// Config holds all node configuration.
type Config struct {
	NodeID  string `json:"node_id"`
	DataDir string `json:"data_dir"`

	// OwnValidatorID is this node's index into Validators, used to collect
	// "own votes" during standstill recovery.
	OwnValidatorID uint32 `json:"own_validator_id"`

	Validators []ValidatorConfig `json:"validators"`

	// StandstillSeconds is how long the node waits without finalization
	// progress before triggering standstill recovery. 0 -> 300 (the
	// protocol default).
	StandstillSeconds int `json:"standstill_seconds"`

	// SlotsPerWindow / SlotsPerEpoch are read from the file but not
	// applied: the pool always uses the built-in consensus.SlotsPerWindow /
	// consensus.SlotsPerEpoch constants.
	SlotsPerWindow uint64 `json:"slots_per_window,omitempty"`
	SlotsPerEpoch  uint64 `json:"slots_per_epoch,omitempty"`

	EventChannelCapacity  int `json:"event_channel_capacity,omitempty"`
	RepairChannelCapacity int `json:"repair_channel_capacity,omitempty"`
}

// DefaultConfig returns a single-node development configuration.
func DefaultConfig() *Config {
	return &Config{
		NodeID:            "node0",
		DataDir:           "./data",
		StandstillSeconds: 300,
	}
}

// Load reads a JSON config file from path and validates required fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// Validate checks that all required fields are present and well-formed.
func (c *Config) Validate() error {
	if c.NodeID == "" {
		return fmt.Errorf("node_id must not be empty")
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}
	if len(c.Validators) == 0 {
		return fmt.Errorf("validators list must not be empty")
	}
	seen := make(map[uint32]bool, len(c.Validators))
	for i, v := range c.Validators {
		b, err := hex.DecodeString(v.Pubkey)
		if err != nil || len(b) != 32 {
			return fmt.Errorf("validators[%d]: pubkey must be 64-char hex (32 bytes ed25519 pubkey), got %q", i, v.Pubkey)
		}
		if v.Stake == 0 {
			return fmt.Errorf("validators[%d]: stake must be > 0", i)
		}
		if seen[v.ID] {
			return fmt.Errorf("validators[%d]: duplicate validator id %d", i, v.ID)
		}
		seen[v.ID] = true
	}
	if !seen[c.OwnValidatorID] {
		return fmt.Errorf("own_validator_id %d is not present in validators", c.OwnValidatorID)
	}
	if c.StandstillSeconds < 0 {
		return fmt.Errorf("standstill_seconds must be >= 0")
	}
	return nil
}

// Save writes the config to path as formatted JSON.
func Save(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

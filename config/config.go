// Package config loads the poll node configuration from an optional YAML
// file and POLLS_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ilyakaznacheev/cleanenv"
	"go.vocdoni.io/dvote/db"
)

// Config is the poll node configuration.
type Config struct {
	Log         LogConfig         `yaml:"log"`
	Datadir     string            `yaml:"datadir" env:"POLLS_DATADIR" env-description:"data directory, defaults to ~/.fhepolls"`
	DBType      string            `yaml:"db_type" env:"POLLS_DB_TYPE" env-default:"pebble" env-description:"database backend (pebble or memory)"`
	API         APIConfig         `yaml:"api"`
	Chain       ChainConfig       `yaml:"chain"`
	Coprocessor CoprocessorConfig `yaml:"coprocessor"`
	KMS         KMSConfig         `yaml:"kms"`
	Monitor     MonitorConfig     `yaml:"monitor"`
	Relayer     RelayerConfig     `yaml:"relayer"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"POLLS_LOG_LEVEL" env-default:"info"`
	Output string `yaml:"output" env:"POLLS_LOG_OUTPUT" env-default:"stdout"`
}

type APIConfig struct {
	Host string `yaml:"host" env:"POLLS_API_HOST" env-default:"0.0.0.0"`
	Port int    `yaml:"port" env:"POLLS_API_PORT" env-default:"9090"`
}

// ChainConfig identifies the deployment. Addresses are hex strings.
type ChainConfig struct {
	ID                uint64 `yaml:"id" env:"POLLS_CHAIN_ID" env-default:"31337"`
	EngineAddress     string `yaml:"engine_address" env:"POLLS_ENGINE_ADDRESS" env-default:"0x00000000000000000000000000000000000f0115"`
	DecryptionAddress string `yaml:"decryption_address" env:"POLLS_DECRYPTION_ADDRESS" env-default:"0x000000000000000000000000000000000000dec0"`
}

// CoprocessorConfig configures the simulated FHE coprocessor.
type CoprocessorConfig struct {
	ProtocolID uint64 `yaml:"protocol_id" env:"POLLS_PROTOCOL_ID" env-default:"1"`
	KeyBits    int    `yaml:"key_bits" env:"POLLS_KEY_BITS" env-default:"2048"`
	// SignerKey is the hex private key of the input verifier. A random key
	// is generated and persisted on first start when empty.
	SignerKey string `yaml:"signer_key" env:"POLLS_SIGNER_KEY"`
}

// KMSConfig configures the simulated threshold decryption network.
type KMSConfig struct {
	// Keys are hex private keys of the KMS members. Signers random keys are
	// generated when empty.
	Keys      []string `yaml:"keys" env:"POLLS_KMS_KEYS" env-separator:","`
	Signers   int      `yaml:"signers" env:"POLLS_KMS_SIGNERS" env-default:"3"`
	Threshold int      `yaml:"threshold" env:"POLLS_KMS_THRESHOLD" env-default:"2"`
}

// Boolean switches are negative: cleanenv applies env-default to zero
// values, so a default of true could never be turned off from the file.

type MonitorConfig struct {
	Disabled bool          `yaml:"disabled" env:"POLLS_MONITOR_DISABLED"`
	Interval time.Duration `yaml:"interval" env:"POLLS_MONITOR_INTERVAL" env-default:"5s"`
}

type RelayerConfig struct {
	Disabled    bool          `yaml:"disabled" env:"POLLS_RELAYER_DISABLED"`
	Interval    time.Duration `yaml:"interval" env:"POLLS_RELAYER_INTERVAL" env-default:"2s"`
	MaxAttempts int           `yaml:"max_attempts" env:"POLLS_RELAYER_MAX_ATTEMPTS" env-default:"5"`
	// DisableEndpoints hides the coprocessor and KMS endpoints of the API.
	DisableEndpoints bool `yaml:"disable_endpoints" env:"POLLS_RELAYER_DISABLE_ENDPOINTS"`
}

// Load reads the configuration file at path, if any, and the environment.
// Environment variables override the file.
func Load(path string) (*Config, error) {
	conf := &Config{}
	var err error
	if path != "" {
		err = cleanenv.ReadConfig(path, conf)
	} else {
		err = cleanenv.ReadEnv(conf)
	}
	if err != nil {
		return nil, fmt.Errorf("cannot read config: %w", err)
	}
	if conf.Datadir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("cannot get home directory: %w", err)
		}
		conf.Datadir = filepath.Join(home, ".fhepolls")
	}
	return conf, nil
}

// Validate checks the configuration values.
func (c *Config) Validate() error {
	switch c.DBType {
	case db.TypePebble, TypeMemory:
	default:
		return fmt.Errorf("unknown database type %q", c.DBType)
	}
	if !common.IsHexAddress(c.Chain.EngineAddress) {
		return fmt.Errorf("invalid engine address %q", c.Chain.EngineAddress)
	}
	if !common.IsHexAddress(c.Chain.DecryptionAddress) {
		return fmt.Errorf("invalid decryption address %q", c.Chain.DecryptionAddress)
	}
	if c.API.Port < 0 || c.API.Port > 65535 {
		return fmt.Errorf("invalid API port %d", c.API.Port)
	}
	members := c.KMS.Signers
	if len(c.KMS.Keys) > 0 {
		members = len(c.KMS.Keys)
	}
	if c.KMS.Threshold < 1 || c.KMS.Threshold > members {
		return fmt.Errorf("invalid KMS threshold %d for %d signers", c.KMS.Threshold, members)
	}
	if c.Coprocessor.KeyBits < 512 {
		return fmt.Errorf("coprocessor key too small: %d bits", c.Coprocessor.KeyBits)
	}
	if !c.Monitor.Disabled && c.Monitor.Interval <= 0 {
		return fmt.Errorf("invalid monitor interval %s", c.Monitor.Interval)
	}
	if !c.Relayer.Disabled && (c.Relayer.Interval <= 0 || c.Relayer.MaxAttempts < 1) {
		return fmt.Errorf("invalid relayer interval %s or attempts %d", c.Relayer.Interval, c.Relayer.MaxAttempts)
	}
	return nil
}

// TypeMemory keeps the node state in memory, nothing survives a restart.
const TypeMemory = "memory"

// EngineAddress returns the parsed engine address.
func (c *Config) EngineAddress() common.Address {
	return common.HexToAddress(c.Chain.EngineAddress)
}

// DecryptionAddress returns the parsed decryption contract address.
func (c *Config) DecryptionAddress() common.Address {
	return common.HexToAddress(c.Chain.DecryptionAddress)
}

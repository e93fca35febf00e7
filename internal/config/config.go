/*
SPDX-License-Identifier: Apache-2.0
*/

// Package config loads chaincode settings from the environment.
package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

// CollectionPolicy decides what CreateCollectionEvent does with the
// compliance evaluation.
type CollectionPolicy string

const (
	// PolicyNone writes collection events without evaluating them.
	PolicyNone CollectionPolicy = "none"
	// PolicyRecord evaluates, stores a compliance snapshot and records quota
	// usage; non-compliant events are still written. Clients must not call
	// RecordQuotaUsage for events admitted under this policy or PolicyEnforce.
	PolicyRecord CollectionPolicy = "record"
	// PolicyEnforce is PolicyRecord but rejects events with compliance errors.
	PolicyEnforce CollectionPolicy = "enforce"
)

// Config is the chaincode configuration.
type Config struct {
	// Chaincode-as-a-service; when both are empty the peer launches the
	// chaincode and it connects back with shim.Start.
	CCID          string `env:"CHAINCODE_ID"`
	ServerAddress string `env:"CHAINCODE_SERVER_ADDRESS"`
	TLSDisabled   bool   `env:"CHAINCODE_TLS_DISABLED" envDefault:"true"`

	NetworkID     string `env:"HERBTRACE_NETWORK_ID" envDefault:"herbtrace-network"`
	ChaincodeName string `env:"HERBTRACE_CHAINCODE_NAME" envDefault:"herbtrace"`

	EnforceRoles     bool             `env:"HERBTRACE_ENFORCE_ROLES" envDefault:"false"`
	CollectionPolicy CollectionPolicy `env:"HERBTRACE_COLLECTION_POLICY" envDefault:"record"`

	// DefaultHarvestRatio is the assumed share of the standing crop taken
	// when a collection event carries no yield estimate.
	DefaultHarvestRatio float64 `env:"HERBTRACE_DEFAULT_HARVEST_RATIO" envDefault:"0.5"`
	// QuotaWarningRatio is the share of a limit above which a warning is raised.
	QuotaWarningRatio float64 `env:"HERBTRACE_QUOTA_WARNING_RATIO" envDefault:"0.8"`
}

// Default returns the configuration used when no environment is set.
func Default() Config {
	return Config{
		TLSDisabled:         true,
		NetworkID:           "herbtrace-network",
		ChaincodeName:       "herbtrace",
		CollectionPolicy:    PolicyRecord,
		DefaultHarvestRatio: 0.5,
		QuotaWarningRatio:   0.8,
	}
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.CollectionPolicy = CollectionPolicy(strings.ToLower(strings.TrimSpace(string(cfg.CollectionPolicy))))
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges and option sets.
func (c Config) Validate() error {
	switch c.CollectionPolicy {
	case PolicyNone, PolicyRecord, PolicyEnforce:
	default:
		return fmt.Errorf("invalid collection policy %q: want none, record or enforce", c.CollectionPolicy)
	}
	if c.DefaultHarvestRatio <= 0 || c.DefaultHarvestRatio > 1 {
		return fmt.Errorf("default harvest ratio must be in (0, 1], got %v", c.DefaultHarvestRatio)
	}
	if c.QuotaWarningRatio <= 0 || c.QuotaWarningRatio > 1 {
		return fmt.Errorf("quota warning ratio must be in (0, 1], got %v", c.QuotaWarningRatio)
	}
	if (c.CCID == "") != (c.ServerAddress == "") {
		return fmt.Errorf("CHAINCODE_ID and CHAINCODE_SERVER_ADDRESS must be set together")
	}
	return nil
}

// External reports whether the chaincode runs as an external service.
func (c Config) External() bool {
	return c.CCID != "" && c.ServerAddress != ""
}

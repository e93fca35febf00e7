/*
SPDX-License-Identifier: Apache-2.0
*/

package sustainability

import (
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"fmt"

	"gopkg.in/yaml.v3"

	"herbtrace-chaincode/internal/ledger"
)

//go:embed rules.yaml
var defaultRules []byte

// Ruleset is the reference data seeded into the ledger.
type Ruleset struct {
	Name         string                      `yaml:"name"`
	Version      string                      `yaml:"version"`
	Conservation []ledger.ConservationStatus `yaml:"conservation"`
	FairTrade    []ledger.FairTradePrice     `yaml:"fairTrade"`
	Practices    []ledger.HarvestingPractice `yaml:"practices"`

	checksum string
}

// Checksum is the sha256 of the ruleset source.
func (r *Ruleset) Checksum() string { return r.checksum }

// Rows is the number of reference rows the ruleset writes.
func (r *Ruleset) Rows() int {
	return len(r.Conservation) + len(r.FairTrade) + len(r.Practices)
}

// ParseRuleset decodes a YAML ruleset.
func ParseRuleset(src []byte) (*Ruleset, error) {
	var r Ruleset
	if err := yaml.Unmarshal(src, &r); err != nil {
		return nil, fmt.Errorf("failed to parse ruleset: %w", err)
	}
	if r.Name == "" || r.Version == "" {
		return nil, fmt.Errorf("ruleset needs a name and a version")
	}
	for _, c := range r.Conservation {
		if c.Species == "" {
			return nil, fmt.Errorf("ruleset %s: conservation entry without species", r.Version)
		}
	}
	for _, p := range r.FairTrade {
		if p.Species == "" {
			return nil, fmt.Errorf("ruleset %s: fair-trade entry without species", r.Version)
		}
	}
	for _, p := range r.Practices {
		if p.Type == "" {
			return nil, fmt.Errorf("ruleset %s: practice entry without type", r.Version)
		}
	}
	sum := sha256.Sum256(src)
	r.checksum = hex.EncodeToString(sum[:])
	return &r, nil
}

// DefaultRuleset returns the ruleset compiled into the chaincode.
func DefaultRuleset() *Ruleset {
	r, err := ParseRuleset(defaultRules)
	if err != nil {
		panic(err)
	}
	return r
}

// SeedResult reports the outcome of seeding.
type SeedResult struct {
	Version  string `json:"version"`
	Checksum string `json:"checksum"`
	Applied  bool   `json:"applied"`
	Rows     int    `json:"rows"`
	SeededAt string `json:"seededAt"`
}

// Seed writes the ruleset rows unless the same ruleset is already seeded.
func Seed(l *ledger.Ledger, r *Ruleset) (*SeedResult, error) {
	tx, err := l.Tx()
	if err != nil {
		return nil, err
	}
	var meta ledger.RulesetMeta
	found, err := l.Get(ledger.RulesetKey, &meta)
	if err != nil {
		return nil, err
	}
	if found && meta.Checksum == r.Checksum() {
		return &SeedResult{Version: meta.Version, Checksum: meta.Checksum, SeededAt: meta.SeededAt}, nil
	}

	for i := range r.Conservation {
		c := r.Conservation[i]
		if err := l.Put(ledger.ConservationKey(c.Species), &c); err != nil {
			return nil, err
		}
	}
	for i := range r.FairTrade {
		p := r.FairTrade[i]
		if err := l.Put(ledger.FairTradeKey(p.Species), &p); err != nil {
			return nil, err
		}
	}
	for i := range r.Practices {
		p := r.Practices[i]
		if err := l.Put(ledger.PracticeKey(p.Type), &p); err != nil {
			return nil, err
		}
	}
	meta = ledger.RulesetMeta{
		Name:     r.Name,
		Version:  r.Version,
		Checksum: r.Checksum(),
		SeededAt: tx.Timestamp(),
		TxID:     tx.ID,
	}
	if err := l.Put(ledger.RulesetKey, &meta); err != nil {
		return nil, err
	}
	return &SeedResult{
		Version:  r.Version,
		Checksum: r.Checksum(),
		Applied:  true,
		Rows:     r.Rows(),
		SeededAt: meta.SeededAt,
	}, nil
}

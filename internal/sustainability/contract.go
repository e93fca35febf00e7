/*
SPDX-License-Identifier: Apache-2.0
*/

// Package sustainability holds the conservation rule set: reference data,
// compliance evaluation, quota counters and compliance reports.
package sustainability

import (
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"

	"herbtrace-chaincode/internal/ledger"
)

// ContractName is the namespace of the sustainability transactions.
const ContractName = "sustainability"

// RoleRegulator may seed reference data.
const RoleRegulator = "regulator"

// Contract exposes the sustainability rules as Fabric transactions. Payloads
// and results are JSON strings.
type Contract struct {
	contractapi.Contract

	Evaluator    Evaluator
	Ruleset      *Ruleset
	EnforceRoles bool
	Logger       *log.Logger
}

// NewContract builds a contract with the compiled-in ruleset.
func NewContract(e Evaluator, enforceRoles bool, logger *log.Logger) *Contract {
	if logger == nil {
		logger = log.New(os.Stdout, "[SUSTAINABILITY] ", log.LstdFlags)
	}
	c := &Contract{Evaluator: e, Ruleset: DefaultRuleset(), EnforceRoles: enforceRoles, Logger: logger}
	c.Name = ContractName
	return c
}

// InitSustainabilityRules seeds conservation status, fair-trade prices and
// harvesting practices. Re-running with an unchanged ruleset writes nothing.
func (c *Contract) InitSustainabilityRules(ctx contractapi.TransactionContextInterface) (string, error) {
	l := ledger.New(ctx)
	if err := l.RequireRole(c.EnforceRoles, RoleRegulator); err != nil {
		return "", err
	}
	res, err := Seed(l, c.Ruleset)
	if err != nil {
		return "", fmt.Errorf("failed to seed sustainability rules: %w", err)
	}
	if res.Applied {
		c.Logger.Printf("Seeded ruleset %s (%d rows, checksum %s)", res.Version, res.Rows, res.Checksum)
	} else {
		c.Logger.Printf("Ruleset %s already seeded at %s, nothing written", res.Version, res.SeededAt)
	}
	return marshal(res)
}

// ValidateCompliance evaluates a collection event without writing anything.
func (c *Contract) ValidateCompliance(ctx contractapi.TransactionContextInterface, eventJSON string) (string, error) {
	var ev ledger.CollectionEvent
	if err := json.Unmarshal([]byte(eventJSON), &ev); err != nil {
		return "", ledger.Wrap(ledger.CodeValidation, err, "collection event JSON is malformed")
	}
	l := ledger.New(ctx)
	tx, err := l.Tx()
	if err != nil {
		return "", err
	}
	res, err := c.Evaluator.Evaluate(l, &ev, tx.Time.Year())
	if err != nil {
		return "", err
	}
	return marshal(res)
}

// RecordQuotaUsage adds quantity to the species/zone counter of the
// collection year and returns the new total. Under the record and enforce
// collection policies CreateCollectionEvent already records the event's
// quantity; calling this afterwards for the same event counts it twice.
func (c *Contract) RecordQuotaUsage(ctx contractapi.TransactionContextInterface, species, zone string, quantity float64, collectionDate string) (string, error) {
	usage, err := RecordUsage(ledger.New(ctx), species, zone, quantity, collectionDate)
	if err != nil {
		return "", err
	}
	return marshal(usage)
}

// GenerateComplianceReport re-evaluates a stored collection event.
func (c *Contract) GenerateComplianceReport(ctx contractapi.TransactionContextInterface, collectionEventID string) (string, error) {
	report, err := BuildReport(ledger.New(ctx), c.Evaluator, collectionEventID)
	if err != nil {
		return "", err
	}
	return marshal(report)
}

// GenerateRecommendations maps a compliance evaluation to advice.
func (c *Contract) GenerateRecommendations(ctx contractapi.TransactionContextInterface, complianceJSON string) (string, error) {
	var res Compliance
	if err := json.Unmarshal([]byte(complianceJSON), &res); err != nil {
		return "", ledger.Wrap(ledger.CodeValidation, err, "compliance JSON is malformed")
	}
	return marshal(c.Evaluator.Recommendations(&res))
}

// GetRulesetInfo returns the seeded ruleset metadata.
func (c *Contract) GetRulesetInfo(ctx contractapi.TransactionContextInterface) (string, error) {
	var meta ledger.RulesetMeta
	found, err := ledger.New(ctx).Get(ledger.RulesetKey, &meta)
	if err != nil {
		return "", err
	}
	if !found {
		return "", ledger.Errorf(ledger.CodeNotFound, "sustainability rules have not been seeded")
	}
	return marshal(meta)
}

// GetConservationStatus returns the reference row for species.
func (c *Contract) GetConservationStatus(ctx contractapi.TransactionContextInterface, species string) (string, error) {
	var status ledger.ConservationStatus
	found, err := ledger.New(ctx).Get(ledger.ConservationKey(species), &status)
	if err != nil {
		return "", err
	}
	if !found {
		return "", ledger.Errorf(ledger.CodeNotFound, "no conservation data for %s", species)
	}
	return marshal(status)
}

// GetQuotaUsage returns the counter for species, zone and year.
func (c *Contract) GetQuotaUsage(ctx contractapi.TransactionContextInterface, species, zone string, year int) (string, error) {
	usage, err := Usage(ledger.New(ctx), species, zone, year)
	if err != nil {
		return "", err
	}
	return marshal(usage)
}

func marshal(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal result: %w", err)
	}
	return string(b), nil
}

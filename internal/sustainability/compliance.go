/*
SPDX-License-Identifier: Apache-2.0
*/

package sustainability

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"herbtrace-chaincode/internal/ledger"
)

// Practice types.
const (
	RootCollection = "root-collection"
	LeafCollection = "leaf-collection"
	BarkCollection = "bark-collection"
)

// Severity of a compliance issue. Errors make an event non-compliant.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// IssueCode names a compliance rule outcome.
type IssueCode string

const (
	IssuePermitMissing          IssueCode = "permit-missing"
	IssueQuotaExceeded          IssueCode = "quota-exceeded"
	IssueQuotaApproaching       IssueCode = "quota-approaching"
	IssueToolProhibited         IssueCode = "tool-prohibited"
	IssueRegenerationMissing    IssueCode = "regeneration-missing"
	IssueHarvestExceeded        IssueCode = "harvest-percentage-exceeded"
	IssueHarvestHigh            IssueCode = "harvest-percentage-high"
	IssueSeasonalRestriction    IssueCode = "seasonal-restriction"
	IssueFairTradeBelowFloor    IssueCode = "fair-trade-below-floor"
	IssueFairTradePremiumLow    IssueCode = "fair-trade-premium-low"
	IssueConservationDataAbsent IssueCode = "conservation-data-missing"
	IssuePracticeDataAbsent     IssueCode = "practice-data-missing"
	IssuePriceDataAbsent        IssueCode = "price-data-missing"
)

// Issue is one finding of a compliance evaluation.
type Issue struct {
	Code     IssueCode `json:"code"`
	Severity Severity  `json:"severity"`
	Message  string    `json:"message"`
}

// Compliance is the result of evaluating a collection event.
type Compliance struct {
	IsCompliant          bool     `json:"isCompliant"`
	Errors               []string `json:"errors"`
	Warnings             []string `json:"warnings"`
	Issues               []Issue  `json:"issues"`
	ConservationStatus   string   `json:"conservationStatus"`
	QuotaUtilization     int      `json:"quotaUtilization"`
	HarvestQuota         float64  `json:"harvestQuota"`
	CurrentSeasonHarvest float64  `json:"currentSeasonHarvest"`
	ProposedTotal        float64  `json:"proposedTotal"`
	PracticeType         string   `json:"practiceType"`
	HarvestPercentage    float64  `json:"harvestPercentage"`
	Year                 int      `json:"year"`
}

func (c *Compliance) addError(code IssueCode, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	c.Errors = append(c.Errors, msg)
	c.Issues = append(c.Issues, Issue{Code: code, Severity: SeverityError, Message: msg})
}

func (c *Compliance) addWarning(code IssueCode, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	c.Warnings = append(c.Warnings, msg)
	c.Issues = append(c.Issues, Issue{Code: code, Severity: SeverityWarning, Message: msg})
}

// Has reports whether the evaluation produced an issue with code.
func (c *Compliance) Has(code IssueCode) bool {
	for _, i := range c.Issues {
		if i.Code == code {
			return true
		}
	}
	return false
}

// Snapshot condenses the evaluation for storage on the event.
func (c *Compliance) Snapshot(evaluatedAt string) *ledger.ComplianceSnapshot {
	return &ledger.ComplianceSnapshot{
		IsCompliant:      c.IsCompliant,
		QuotaUtilization: c.QuotaUtilization,
		ErrorCount:       len(c.Errors),
		WarningCount:     len(c.Warnings),
		EvaluatedAt:      evaluatedAt,
	}
}

// Evaluator checks collection events against the seeded reference data.
// It never writes.
type Evaluator struct {
	// HarvestRatio is the assumed harvested share when an event has no
	// yield estimate.
	HarvestRatio float64
	// WarningRatio is the share of a limit above which warnings are raised.
	WarningRatio float64
}

// DefaultEvaluator assumes a 50% harvest and warns above 80% of a limit.
func DefaultEvaluator() Evaluator {
	return Evaluator{HarvestRatio: 0.5, WarningRatio: 0.8}
}

// Evaluate runs every rule for ev against quota usage of year.
func (e Evaluator) Evaluate(l *ledger.Ledger, ev *ledger.CollectionEvent, year int) (*Compliance, error) {
	species := strings.TrimSpace(ev.BotanicalName)
	if species == "" {
		return nil, ledger.Errorf(ledger.CodeValidation, "collection event needs a botanicalName")
	}
	claims, err := ev.Claims()
	if err != nil {
		return nil, err
	}
	c := &Compliance{Errors: []string{}, Warnings: []string{}, Issues: []Issue{}, Year: year}
	quantity := ev.QuantityValue()

	var status ledger.ConservationStatus
	hasStatus, err := l.Get(ledger.ConservationKey(species), &status)
	if err != nil {
		return nil, err
	}
	if hasStatus {
		c.ConservationStatus = status.Status
		c.HarvestQuota = status.HarvestQuota
		if status.PermitRequired && !declared(claims.Conservation.Permit) {
			c.addError(IssuePermitMissing, "%s is %s: a collection permit is required", species, status.Status)
		}
	} else {
		c.ConservationStatus = "unknown"
		c.addWarning(IssueConservationDataAbsent, "no conservation data for %s", species)
	}

	var usage ledger.QuotaUsage
	if _, err := l.Get(ledger.QuotaKey(species, ev.Zone(), year), &usage); err != nil {
		return nil, err
	}
	c.CurrentSeasonHarvest = usage.Used
	c.ProposedTotal = usage.Used + quantity
	if hasStatus && status.HarvestQuota > 0 {
		if c.ProposedTotal > status.HarvestQuota {
			c.addError(IssueQuotaExceeded, "harvest quota exceeded: proposed total %g exceeds quota %g", c.ProposedTotal, status.HarvestQuota)
		}
		if c.ProposedTotal > e.WarningRatio*status.HarvestQuota {
			c.addWarning(IssueQuotaApproaching, "approaching harvest quota: proposed total %g of quota %g", c.ProposedTotal, status.HarvestQuota)
		}
		c.QuotaUtilization = int(math.Round(c.ProposedTotal / status.HarvestQuota * 100))
	}

	if err := e.checkPractice(l, c, ev, claims, quantity); err != nil {
		return nil, err
	}
	if claims.FairTrade.Certified {
		if err := checkFairTrade(l, c, species, claims); err != nil {
			return nil, err
		}
	}

	c.IsCompliant = len(c.Errors) == 0
	return c, nil
}

func (e Evaluator) checkPractice(l *ledger.Ledger, c *Compliance, ev *ledger.CollectionEvent, claims ledger.SustainabilityClaims, quantity float64) error {
	c.PracticeType = PracticeFor(ev.PartUsed)
	var rules ledger.HarvestingPractice
	found, err := l.Get(ledger.PracticeKey(c.PracticeType), &rules)
	if err != nil {
		return err
	}
	if !found {
		c.addWarning(IssuePracticeDataAbsent, "no harvesting rules for %s", c.PracticeType)
		return nil
	}

	method := strings.TrimSpace(claims.HarvestingPractices.Method)
	if method != "" && containsFold(rules.ToolsProhibited, method) {
		c.addError(IssueToolProhibited, "harvesting method %q is prohibited for %s", method, c.PracticeType)
	}
	if rules.RegenerationRequired && !declared(claims.HarvestingPractices.Regeneration) {
		c.addError(IssueRegenerationMissing, "%s requires a declared regeneration practice", c.PracticeType)
	}

	yield := 0.0
	if ev.Quantity != nil {
		yield = ev.Quantity.EstimatedYield
	}
	if yield <= 0 && quantity > 0 {
		yield = quantity / e.HarvestRatio
	}
	if yield > 0 {
		c.HarvestPercentage = quantity / yield * 100
	}
	switch {
	case c.HarvestPercentage > rules.MaxHarvestPercentage:
		c.addError(IssueHarvestExceeded, "harvest percentage %.1f%% exceeds the %g%% limit for %s", c.HarvestPercentage, rules.MaxHarvestPercentage, c.PracticeType)
	case c.HarvestPercentage > e.WarningRatio*rules.MaxHarvestPercentage:
		c.addWarning(IssueHarvestHigh, "harvest percentage %.1f%% is close to the %g%% limit for %s", c.HarvestPercentage, rules.MaxHarvestPercentage, c.PracticeType)
	}

	if month, ok := collectionMonth(ev.PerformedDateTime); ok && containsFold(rules.SeasonalRestrictions, month) {
		c.addWarning(IssueSeasonalRestriction, "%s is restricted in %s", c.PracticeType, month)
	}
	return nil
}

func checkFairTrade(l *ledger.Ledger, c *Compliance, species string, claims ledger.SustainabilityClaims) error {
	var price ledger.FairTradePrice
	found, err := l.Get(ledger.FairTradeKey(species), &price)
	if err != nil {
		return err
	}
	if !found {
		c.addWarning(IssuePriceDataAbsent, "no fair-trade reference price for %s", species)
		return nil
	}
	if claims.FairTrade.Price < price.FairTrade {
		c.addError(IssueFairTradeBelowFloor, "price %g is below the fair-trade floor %g for %s", claims.FairTrade.Price, price.FairTrade, species)
	}
	if claims.FairTrade.Premium < price.Premium {
		c.addWarning(IssueFairTradePremiumLow, "fair-trade premium %g is below the reference premium %g for %s", claims.FairTrade.Premium, price.Premium, species)
	}
	return nil
}

var practiceRank = map[string]int{LeafCollection: 1, BarkCollection: 2, RootCollection: 3}

// PracticeFor maps the harvested parts to the most restrictive practice
// type among them. Unknown or missing parts map to root collection.
func PracticeFor(parts []string) string {
	if len(parts) == 0 {
		return RootCollection
	}
	best := ""
	for _, part := range parts {
		var p string
		switch strings.ToLower(strings.TrimSpace(part)) {
		case "roots", "root", "whole-plant", "whole plant":
			p = RootCollection
		case "leaves", "leaf":
			p = LeafCollection
		case "bark":
			p = BarkCollection
		default:
			p = RootCollection
		}
		if practiceRank[p] > practiceRank[best] {
			best = p
		}
	}
	return best
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(strings.TrimSpace(v), s) {
			return true
		}
	}
	return false
}

// declared reports whether a claim field carries a value.
func declared(raw json.RawMessage) bool {
	switch strings.TrimSpace(string(raw)) {
	case "", "null", `""`, "false", "{}", "[]":
		return false
	}
	return true
}

func collectionMonth(performed string) (string, bool) {
	t, err := ParseCollectionDate(performed)
	if err != nil {
		return "", false
	}
	return t.Month().String(), true
}

// ParseCollectionDate accepts RFC 3339 timestamps and plain dates.
func ParseCollectionDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Time{}, ledger.Errorf(ledger.CodeValidation, "invalid collection date %q: want RFC 3339 or YYYY-MM-DD", s)
}

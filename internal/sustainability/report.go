/*
SPDX-License-Identifier: Apache-2.0
*/

package sustainability

import (
	"strings"

	"github.com/google/uuid"

	"herbtrace-chaincode/internal/ledger"
)

// reportNamespace scopes report ids derived from transaction ids.
var reportNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:herbtrace:compliance-report"))

// Report is the human-readable compliance summary of a collection event.
type Report struct {
	ReportID          string                     `json:"reportId"`
	CollectionEventID string                     `json:"collectionEventId"`
	Species           string                     `json:"species"`
	CollectionDate    string                     `json:"collectionDate"`
	Location          *ledger.Location           `json:"location,omitempty"`
	Quantity          *ledger.Quantity           `json:"quantity,omitempty"`
	Sustainability    *Compliance                `json:"sustainability"`
	Admission         *ledger.ComplianceSnapshot `json:"admission,omitempty"`
	Recommendations   []string                   `json:"recommendations"`
	RulesetVersion    string                     `json:"rulesetVersion,omitempty"`
	GeneratedAt       string                     `json:"generatedAt"`
}

// BuildReport re-evaluates the stored collection event id and composes a
// report. The report id is derived from the transaction id so every endorser
// produces the same payload.
func BuildReport(l *ledger.Ledger, e Evaluator, id string) (*Report, error) {
	var ev ledger.CollectionEvent
	found, err := l.Get(id, &ev)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ledger.Errorf(ledger.CodeNotFound, "collection event %s does not exist", id)
	}
	tx, err := l.Tx()
	if err != nil {
		return nil, err
	}
	compliance, err := e.Evaluate(l, &ev, tx.Time.Year())
	if err != nil {
		return nil, err
	}

	var meta ledger.RulesetMeta
	if _, err := l.Get(ledger.RulesetKey, &meta); err != nil {
		return nil, err
	}

	return &Report{
		ReportID:          uuid.NewSHA1(reportNamespace, []byte(tx.ID+"/"+id)).String(),
		CollectionEventID: id,
		Species:           ev.BotanicalName,
		CollectionDate:    ev.PerformedDateTime,
		Location:          ev.Location,
		Quantity:          ev.Quantity,
		Sustainability:    compliance,
		Admission:         ev.Compliance,
		Recommendations:   e.Recommendations(compliance),
		RulesetVersion:    meta.Version,
		GeneratedAt:       tx.Timestamp(),
	}, nil
}

// Recommendations maps an evaluation to advice. It reads nothing but c.
// Evaluations without coded issues are classified by their warning texts.
func (e Evaluator) Recommendations(c *Compliance) []string {
	has := c.Has
	if len(c.Issues) == 0 {
		classified := classifyWarnings(c.Warnings)
		has = func(code IssueCode) bool { return classified[code] }
	}
	recs := []string{}
	if float64(c.QuotaUtilization) > e.WarningRatio*100 {
		recs = append(recs,
			"Diversify collection across zones to relieve pressure on this population",
			"Schedule regeneration work before the next collection season")
	}
	switch c.ConservationStatus {
	case "endangered", "critically-endangered":
		recs = append(recs,
			"Source from cultivated stock in preference to wild collection",
			"Join community conservation programmes for this species")
	}
	if has(IssueFairTradePremiumLow) || has(IssuePriceDataAbsent) {
		recs = append(recs, "Review pricing against fair-trade reference prices and premiums")
	}
	if has(IssueHarvestHigh) {
		recs = append(recs,
			"Reduce harvest intensity at this site",
			"Extend the regeneration period between collections")
	}
	if len(recs) == 0 {
		recs = append(recs, "Continue current sustainable collection practices")
	}
	return recs
}

func classifyWarnings(warnings []string) map[IssueCode]bool {
	codes := make(map[IssueCode]bool)
	for _, w := range warnings {
		w = strings.ToLower(w)
		switch {
		case strings.Contains(w, "fair-trade"), strings.Contains(w, "fair trade"), strings.Contains(w, "premium"):
			codes[IssueFairTradePremiumLow] = true
		case strings.Contains(w, "harvest percentage"):
			codes[IssueHarvestHigh] = true
		}
	}
	return codes
}

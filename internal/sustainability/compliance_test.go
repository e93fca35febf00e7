package sustainability

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"herbtrace-chaincode/internal/ledger"
	"herbtrace-chaincode/internal/ledgertest"
)

// seeded returns a ledger holding the default ruleset, inside an open
// transaction dated 2025-03-10.
func seeded(t *testing.T) (*ledgertest.Env, *ledger.Ledger) {
	t.Helper()
	env := ledgertest.NewEnv()
	env.Begin()
	l := ledger.New(env.Ctx)
	_, err := Seed(l, DefaultRuleset())
	require.NoError(t, err)
	return env, l
}

func putStatus(t *testing.T, l *ledger.Ledger, s ledger.ConservationStatus) {
	t.Helper()
	require.NoError(t, l.Put(ledger.ConservationKey(s.Species), &s))
}

func event(t *testing.T, js string) *ledger.CollectionEvent {
	t.Helper()
	var ev ledger.CollectionEvent
	require.NoError(t, json.Unmarshal([]byte(js), &ev))
	return &ev
}

func codes(c *Compliance, sev Severity) []IssueCode {
	out := []IssueCode{}
	for _, i := range c.Issues {
		if i.Severity == sev {
			out = append(out, i.Code)
		}
	}
	return out
}

func TestQuotaBoundary(t *testing.T) {
	_, l := seeded(t)
	putStatus(t, l, ledger.ConservationStatus{Species: "Testus quotae", Status: "least-concern", HarvestQuota: 100})
	_, err := RecordUsage(l, "Testus quotae", "Z1", 80, "2025-02-01")
	require.NoError(t, err)

	const leafEvent = `{"botanicalName":"Testus quotae","location":{"zone":"Z1"},
		"quantity":{"value":%s,"estimatedYield":1000},"partUsed":["leaves"],"performedDateTime":"2025-03-01"}`

	res, err := DefaultEvaluator().Evaluate(l, event(t, fmt.Sprintf(leafEvent, "15")), 2025)
	require.NoError(t, err)
	assert.True(t, res.IsCompliant)
	assert.Empty(t, res.Errors)
	assert.Equal(t, []IssueCode{IssueQuotaApproaching}, codes(res, SeverityWarning))
	assert.Equal(t, 95, res.QuotaUtilization)
	assert.Equal(t, 80.0, res.CurrentSeasonHarvest)

	res, err = DefaultEvaluator().Evaluate(l, event(t, fmt.Sprintf(leafEvent, "25")), 2025)
	require.NoError(t, err)
	assert.False(t, res.IsCompliant)
	assert.Equal(t, []IssueCode{IssueQuotaExceeded}, codes(res, SeverityError))
	assert.Equal(t, []IssueCode{IssueQuotaApproaching}, codes(res, SeverityWarning))
	assert.Contains(t, res.Errors[0], "105")
	assert.Contains(t, res.Errors[0], "100")
	assert.Equal(t, 105, res.QuotaUtilization)
}

func TestQuotaUsageOfOtherYearsIsIgnored(t *testing.T) {
	_, l := seeded(t)
	putStatus(t, l, ledger.ConservationStatus{Species: "Testus quotae", Status: "least-concern", HarvestQuota: 100})
	_, err := RecordUsage(l, "Testus quotae", "Z1", 95, "2024-11-20")
	require.NoError(t, err)

	ev := event(t, `{"botanicalName":"Testus quotae","location":{"zone":"Z1"},"quantity":{"value":10,"estimatedYield":100},"partUsed":["leaves"]}`)
	res, err := DefaultEvaluator().Evaluate(l, ev, 2025)
	require.NoError(t, err)
	assert.True(t, res.IsCompliant)
	assert.Equal(t, 0.0, res.CurrentSeasonHarvest)
	assert.Equal(t, 10, res.QuotaUtilization)
}

func TestCriticallyEndangeredWithoutPermit(t *testing.T) {
	_, l := seeded(t)
	putStatus(t, l, ledger.ConservationStatus{
		Species: "Species X", Status: "critically-endangered", HarvestQuota: 50, PermitRequired: true,
	})

	ev := event(t, `{
		"botanicalName": "Species X",
		"location": {"lat": 30.1, "lng": 79.3, "zone": "UK-North"},
		"quantity": {"value": 10, "unit": "kg", "estimatedYield": 100},
		"partUsed": ["roots"],
		"performedDateTime": "2025-03-01T06:30:00Z",
		"sustainability": {"harvestingPractices": {"method": "digging-fork", "regeneration": "replanting"}}
	}`)
	res, err := DefaultEvaluator().Evaluate(l, ev, 2025)
	require.NoError(t, err)

	assert.False(t, res.IsCompliant)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, []IssueCode{IssuePermitMissing}, codes(res, SeverityError))
	assert.Equal(t, 20, res.QuotaUtilization)
	assert.Equal(t, "critically-endangered", res.ConservationStatus)
	assert.Equal(t, RootCollection, res.PracticeType)
}

func TestCriticallyEndangeredWithOnlyConservationData(t *testing.T) {
	env := ledgertest.NewEnv()
	env.Begin()
	l := ledger.New(env.Ctx)
	putStatus(t, l, ledger.ConservationStatus{
		Species: "Species X", Status: "critically-endangered", HarvestQuota: 50, PermitRequired: true,
	})

	ev := event(t, `{"botanicalName":"Species X","location":{"zone":"UK-North"},"quantity":{"value":10}}`)
	res, err := DefaultEvaluator().Evaluate(l, ev, 2025)
	require.NoError(t, err)

	assert.False(t, res.IsCompliant)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, []IssueCode{IssuePermitMissing}, codes(res, SeverityError))
	assert.Equal(t, 20, res.QuotaUtilization)
}

func TestRecommendationsFromWarningTexts(t *testing.T) {
	_, l := seeded(t)
	ev := event(t, `{"botanicalName":"Withania somnifera","location":{"zone":"RJ"},
		"quantity":{"value":27,"estimatedYield":100},"partUsed":["roots"],
		"sustainability":{"harvestingPractices":{"regeneration":"replanting"},
		"fairTrade":{"certified":true,"price":230,"premium":5}}}`)
	res, err := DefaultEvaluator().Evaluate(l, ev, 2025)
	require.NoError(t, err)
	require.True(t, res.Has(IssueHarvestHigh))
	require.True(t, res.Has(IssueFairTradePremiumLow))

	coded := DefaultEvaluator().Recommendations(res)
	plain := &Compliance{
		IsCompliant:        res.IsCompliant,
		Errors:             res.Errors,
		Warnings:           res.Warnings,
		ConservationStatus: res.ConservationStatus,
		QuotaUtilization:   res.QuotaUtilization,
	}
	assert.Equal(t, coded, DefaultEvaluator().Recommendations(plain))
	assert.Len(t, coded, 3)
}

func TestPermitSatisfiesRequirement(t *testing.T) {
	_, l := seeded(t)
	ev := event(t, `{"botanicalName":"Saussurea costus","location":{"zone":"Z"},"quantity":{"value":5,"estimatedYield":100},
		"partUsed":["roots"],"sustainability":{"conservation":{"permit":"UK-2025-17"},
		"harvestingPractices":{"method":"hand-trowel","regeneration":{"method":"replanting"}}}}`)
	res, err := DefaultEvaluator().Evaluate(l, ev, 2025)
	require.NoError(t, err)
	assert.True(t, res.IsCompliant, "errors: %v", res.Errors)
}

func TestHarvestingPracticeRules(t *testing.T) {
	tests := []struct {
		name      string
		evaluator Evaluator
		event     string
		errors    []IssueCode
		warnings  []IssueCode
	}{
		{
			name:      "prohibited tool",
			evaluator: DefaultEvaluator(),
			event: `{"botanicalName":"Withania somnifera","quantity":{"value":10,"estimatedYield":100},"partUsed":["roots"],
				"sustainability":{"harvestingPractices":{"method":"Excavator","regeneration":"replanting"}}}`,
			errors:   []IssueCode{IssueToolProhibited},
			warnings: []IssueCode{},
		},
		{
			name:      "regeneration missing",
			evaluator: DefaultEvaluator(),
			event: `{"botanicalName":"Withania somnifera","quantity":{"value":10,"estimatedYield":100},"partUsed":["bark"],
				"sustainability":{"harvestingPractices":{"method":"knife","regeneration":""}}}`,
			errors:   []IssueCode{IssueRegenerationMissing},
			warnings: []IssueCode{},
		},
		{
			name:      "default yield assumes half the crop",
			evaluator: DefaultEvaluator(),
			event: `{"botanicalName":"Withania somnifera","quantity":{"value":10},"partUsed":["roots"],
				"sustainability":{"harvestingPractices":{"regeneration":"replanting"}}}`,
			errors:   []IssueCode{IssueHarvestExceeded},
			warnings: []IssueCode{},
		},
		{
			name:      "configured harvest ratio",
			evaluator: Evaluator{HarvestRatio: 0.25, WarningRatio: 0.8},
			event: `{"botanicalName":"Withania somnifera","quantity":{"value":10},"partUsed":["roots"],
				"sustainability":{"harvestingPractices":{"regeneration":"replanting"}}}`,
			errors:   []IssueCode{},
			warnings: []IssueCode{IssueHarvestHigh},
		},
		{
			name:      "leaves under the limit",
			evaluator: DefaultEvaluator(),
			event:     `{"botanicalName":"Ocimum tenuiflorum","quantity":{"value":10,"estimatedYield":100},"partUsed":["leaves"]}`,
			errors:    []IssueCode{},
			warnings:  []IssueCode{},
		},
		{
			name:      "seasonal restriction",
			evaluator: DefaultEvaluator(),
			event: `{"botanicalName":"Withania somnifera","quantity":{"value":10,"estimatedYield":100},"partUsed":["roots"],
				"performedDateTime":"2025-07-14","sustainability":{"harvestingPractices":{"regeneration":"replanting"}}}`,
			errors:   []IssueCode{},
			warnings: []IssueCode{IssueSeasonalRestriction},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, l := seeded(t)
			res, err := tt.evaluator.Evaluate(l, event(t, tt.event), 2025)
			require.NoError(t, err)
			assert.Equal(t, tt.errors, codes(res, SeverityError))
			assert.Equal(t, tt.warnings, codes(res, SeverityWarning))
			assert.Equal(t, len(tt.errors) == 0, res.IsCompliant)
		})
	}
}

func TestFairTrade(t *testing.T) {
	tests := []struct {
		name     string
		claim    string
		species  string
		errors   []IssueCode
		warnings []IssueCode
	}{
		{"not certified is not checked", `{"certified":false,"price":1}`, "Withania somnifera", []IssueCode{}, []IssueCode{}},
		{"meets floor and premium", `{"certified":true,"price":230,"premium":30}`, "Withania somnifera", []IssueCode{}, []IssueCode{}},
		{"below floor", `{"certified":true,"price":200,"premium":30}`, "Withania somnifera", []IssueCode{IssueFairTradeBelowFloor}, []IssueCode{}},
		{"low premium", `{"certified":true,"price":230,"premium":5}`, "Withania somnifera", []IssueCode{}, []IssueCode{IssueFairTradePremiumLow}},
		{"no reference price", `{"certified":true,"price":230,"premium":30}`, "Saussurea costus", []IssueCode{}, []IssueCode{IssuePriceDataAbsent}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, l := seeded(t)
			ev := event(t, `{"botanicalName":"`+tt.species+`","quantity":{"value":1,"estimatedYield":100},"partUsed":["leaves"],
				"sustainability":{"conservation":{"permit":"P-1"},"fairTrade":`+tt.claim+`}}`)
			res, err := DefaultEvaluator().Evaluate(l, ev, 2025)
			require.NoError(t, err)
			assert.Equal(t, tt.errors, codes(res, SeverityError))
			assert.Equal(t, tt.warnings, codes(res, SeverityWarning))
		})
	}
}

func TestUnknownSpecies(t *testing.T) {
	_, l := seeded(t)
	ev := event(t, `{"botanicalName":"Unknownia","quantity":{"value":3,"estimatedYield":100},"partUsed":["leaves"]}`)
	res, err := DefaultEvaluator().Evaluate(l, ev, 2025)
	require.NoError(t, err)
	assert.True(t, res.IsCompliant)
	assert.Equal(t, "unknown", res.ConservationStatus)
	assert.Equal(t, 0, res.QuotaUtilization)
	assert.Equal(t, []IssueCode{IssueConservationDataAbsent}, codes(res, SeverityWarning))
}

func TestEvaluateRequiresSpecies(t *testing.T) {
	_, l := seeded(t)
	_, err := DefaultEvaluator().Evaluate(l, event(t, `{"quantity":{"value":1}}`), 2025)
	assert.ErrorIs(t, err, ledger.ErrValidation)
}

func TestEvaluateWithoutReferenceData(t *testing.T) {
	env := ledgertest.NewEnv()
	env.Begin()
	res, err := DefaultEvaluator().Evaluate(ledger.New(env.Ctx), event(t, `{"botanicalName":"Withania somnifera","quantity":{"value":1}}`), 2025)
	require.NoError(t, err)
	assert.True(t, res.IsCompliant)
	assert.ElementsMatch(t, []IssueCode{IssueConservationDataAbsent, IssuePracticeDataAbsent}, codes(res, SeverityWarning))
}

func TestPracticeFor(t *testing.T) {
	tests := []struct {
		parts []string
		want  string
	}{
		{nil, RootCollection},
		{[]string{"roots"}, RootCollection},
		{[]string{"whole-plant"}, RootCollection},
		{[]string{"Leaves"}, LeafCollection},
		{[]string{"bark"}, BarkCollection},
		{[]string{"flowers"}, RootCollection},
		{[]string{"leaves", "bark"}, BarkCollection},
		{[]string{"leaves", "roots", "bark"}, RootCollection},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, PracticeFor(tt.parts), "parts %v", tt.parts)
	}
}

func TestParseCollectionDate(t *testing.T) {
	d, err := ParseCollectionDate("2025-07-14T22:30:00+05:30")
	require.NoError(t, err)
	assert.Equal(t, 2025, d.Year())
	assert.Equal(t, "2025-07-14T17:00:00Z", d.Format("2006-01-02T15:04:05Z07:00"))

	d, err = ParseCollectionDate("2024-12-31")
	require.NoError(t, err)
	assert.Equal(t, 2024, d.Year())

	_, err = ParseCollectionDate("14/07/2025")
	assert.ErrorIs(t, err, ledger.ErrValidation)
}

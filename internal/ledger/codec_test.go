package ledger

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeTagsDocType(t *testing.T) {
	b, err := Encode(&QuotaUsage{Species: "Withania somnifera", Zone: "Z1", Year: 2025, Used: 12})
	require.NoError(t, err)

	dt, err := PeekDocType(b)
	require.NoError(t, err)
	assert.Equal(t, DocQuotaUsage, dt)
}

func TestDecodeDispatchesOnDocType(t *testing.T) {
	b, err := Encode(&ProcessingStep{ID: "P1", ProcessType: "drying", InputReference: "C1"})
	require.NoError(t, err)

	rec, err := Decode(b)
	require.NoError(t, err)
	step, ok := rec.(*ProcessingStep)
	require.True(t, ok, "expected *ProcessingStep, got %T", rec)
	assert.Equal(t, "C1", step.InputReference)
}

func TestDecodeIntoRefusesOtherDocType(t *testing.T) {
	b, err := Encode(&ProcessingStep{ID: "P1", ProcessType: "drying"})
	require.NoError(t, err)

	var ev CollectionEvent
	err = DecodeInto(b, &ev)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrValidation))
	assert.Contains(t, err.Error(), "processingStep")
}

func TestDecodeRejectsUntaggedAndUnknownValues(t *testing.T) {
	_, err := Decode([]byte(`{"id":"x"}`))
	assert.Error(t, err)

	_, err = Decode([]byte(`{"docType":"invoice"}`))
	assert.ErrorContains(t, err, "unknown docType")

	_, err = Decode([]byte(`not json`))
	assert.Error(t, err)
}

func TestExtensionsRoundTrip(t *testing.T) {
	payload := `{"processType":"drying","inputReference":"C1","temperature":45,"duration":{"value":6,"unit":"h"},"equipment":["tray-dryer"]}`

	var step ProcessingStep
	require.NoError(t, json.Unmarshal([]byte(payload), &step))
	assert.Equal(t, "drying", step.ProcessType)
	require.Len(t, step.Extensions, 3)

	b, err := Encode(&step)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, float64(45), got["temperature"])
	assert.Equal(t, map[string]any{"value": float64(6), "unit": "h"}, got["duration"])
	assert.Equal(t, []any{"tray-dryer"}, got["equipment"])
	assert.Equal(t, "processingStep", got["docType"])

	var again ProcessingStep
	require.NoError(t, DecodeInto(b, &again))
	assert.Equal(t, step.Extensions, again.Extensions, "docType must not leak into extensions")
}

func TestModelledFieldsWinOverExtensions(t *testing.T) {
	p := Product{Name: "Ashwagandha powder", Extensions: Extensions{"name": json.RawMessage(`"shadow"`), "sku": json.RawMessage(`"ASH-250"`)}}
	b, err := json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"Ashwagandha powder","sku":"ASH-250"}`, string(b))
}

func TestNestedExtensionsOnProvenance(t *testing.T) {
	payload := `{"id":"PR1","product":{"name":"Tulsi tea","batch":"B-7"},"target":{"qrCode":"QR1","label":"front"},"channel":"retail"}`

	var rec ProvenanceRecord
	require.NoError(t, json.Unmarshal([]byte(payload), &rec))
	assert.Equal(t, "QR1", rec.QRCode())
	assert.Equal(t, "Tulsi tea", rec.ProductName())

	b, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.JSONEq(t, payload, string(b))
}

func TestCollectionEventClaims(t *testing.T) {
	var ev CollectionEvent
	require.NoError(t, json.Unmarshal([]byte(`{
		"botanicalName": "Saussurea costus",
		"sustainability": {
			"conservation": {"permit": {"number": "UK-2025-17"}},
			"harvestingPractices": {"method": "digging-fork", "regeneration": "replanting"},
			"fairTrade": {"certified": true, "price": 2400, "premium": 300}
		}
	}`), &ev))

	claims, err := ev.Claims()
	require.NoError(t, err)
	assert.JSONEq(t, `{"number":"UK-2025-17"}`, string(claims.Conservation.Permit))
	assert.Equal(t, "digging-fork", claims.HarvestingPractices.Method)
	assert.True(t, claims.FairTrade.Certified)
	assert.Equal(t, 2400.0, claims.FairTrade.Price)

	empty := CollectionEvent{}
	claims, err = empty.Claims()
	require.NoError(t, err)
	assert.False(t, claims.FairTrade.Certified)
}

func TestErrorCodes(t *testing.T) {
	err := Errorf(CodeNotFound, "record %s does not exist", "X")
	assert.Equal(t, "NOT_FOUND: record X does not exist", err.Error())
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrAlreadyExists))

	wrapped := Wrap(CodeValidation, errors.New("boom"), "payload")
	assert.Equal(t, CodeValidation, CodeOf(wrapped))
	assert.Equal(t, "boom", errors.Unwrap(wrapped).Error())
	assert.Equal(t, Code(""), CodeOf(errors.New("plain")))
}

func TestNestedLocationAndQuantityKeepExtras(t *testing.T) {
	payload := `{"id":"C1","botanicalName":"Bacopa monnieri","location":{"zone":"KL","village":"Alappuzha"},"quantity":{"value":3,"moisture":0.1}}`

	var ev CollectionEvent
	require.NoError(t, json.Unmarshal([]byte(payload), &ev))
	assert.Nil(t, ev.Location.Latitude)
	assert.Equal(t, "KL", ev.Zone())

	b, err := json.Marshal(ev)
	require.NoError(t, err)
	assert.JSONEq(t, payload, string(b))
}

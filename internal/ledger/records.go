/*
SPDX-License-Identifier: Apache-2.0
*/

package ledger

import (
	"encoding/json"
	"strings"
)

// Meta holds the fields stamped from the invocation context on creation.
type Meta struct {
	Creator   string `json:"creator,omitempty"`
	TxID      string `json:"txId,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// Location is where a collection took place.
type Location struct {
	Latitude   *float64   `json:"lat,omitempty"`
	Longitude  *float64   `json:"lng,omitempty"`
	Address    string     `json:"address,omitempty"`
	Zone       string     `json:"zone,omitempty"`
	Extensions Extensions `json:"-"`
}

func (l Location) MarshalJSON() ([]byte, error) {
	type plain Location
	return MarshalExtended(plain(l), l.Extensions)
}

func (l *Location) UnmarshalJSON(data []byte) error {
	type plain Location
	var v plain
	ext, err := UnmarshalExtended(data, &v)
	if err != nil {
		return err
	}
	*l = Location(v)
	l.Extensions = ext
	return nil
}

// Quantity is the harvested amount.
type Quantity struct {
	Value          float64    `json:"value"`
	Unit           string     `json:"unit,omitempty"`
	EstimatedYield float64    `json:"estimatedYield,omitempty"`
	Extensions     Extensions `json:"-"`
}

func (q Quantity) MarshalJSON() ([]byte, error) {
	type plain Quantity
	return MarshalExtended(plain(q), q.Extensions)
}

func (q *Quantity) UnmarshalJSON(data []byte) error {
	type plain Quantity
	var v plain
	ext, err := UnmarshalExtended(data, &v)
	if err != nil {
		return err
	}
	*q = Quantity(v)
	q.Extensions = ext
	return nil
}

// SustainabilityClaims is what a collector declares about a harvest.
type SustainabilityClaims struct {
	Conservation struct {
		Permit json.RawMessage `json:"permit,omitempty"`
	} `json:"conservation"`
	HarvestingPractices struct {
		Method       string          `json:"method,omitempty"`
		Regeneration json.RawMessage `json:"regeneration,omitempty"`
	} `json:"harvestingPractices"`
	FairTrade struct {
		Certified bool    `json:"certified"`
		Price     float64 `json:"price"`
		Premium   float64 `json:"premium"`
	} `json:"fairTrade"`
}

// ComplianceSnapshot is the compliance evaluation stored on a collection event
// at admission time.
type ComplianceSnapshot struct {
	IsCompliant      bool   `json:"isCompliant"`
	QuotaUtilization int    `json:"quotaUtilization"`
	ErrorCount       int    `json:"errorCount"`
	WarningCount     int    `json:"warningCount"`
	EvaluatedAt      string `json:"evaluatedAt"`
}

// CollectionEvent records a harvest of a botanical species.
type CollectionEvent struct {
	ID                string              `json:"id"`
	BotanicalName     string              `json:"botanicalName"`
	Location          *Location           `json:"location,omitempty"`
	Quantity          *Quantity           `json:"quantity,omitempty"`
	PartUsed          []string            `json:"partUsed,omitempty"`
	PerformedDateTime string              `json:"performedDateTime,omitempty"`
	Sustainability    json.RawMessage     `json:"sustainability,omitempty"`
	Compliance        *ComplianceSnapshot `json:"compliance,omitempty"`
	Meta
	Extensions Extensions `json:"-"`
}

func (*CollectionEvent) RecordType() DocType { return DocCollectionEvent }

// Claims decodes the declared sustainability block. A missing block yields
// zero claims.
func (c *CollectionEvent) Claims() (SustainabilityClaims, error) {
	var s SustainabilityClaims
	if len(c.Sustainability) == 0 || string(c.Sustainability) == "null" {
		return s, nil
	}
	if err := json.Unmarshal(c.Sustainability, &s); err != nil {
		return s, Wrap(CodeValidation, err, "invalid sustainability block")
	}
	return s, nil
}

// Zone returns the collection zone, or "" when no location is set.
func (c *CollectionEvent) Zone() string {
	if c.Location == nil {
		return ""
	}
	return c.Location.Zone
}

// QuantityValue returns the harvested amount, or 0 when no quantity is set.
func (c *CollectionEvent) QuantityValue() float64 {
	if c.Quantity == nil {
		return 0
	}
	return c.Quantity.Value
}

func (c CollectionEvent) MarshalJSON() ([]byte, error) {
	type plain CollectionEvent
	return MarshalExtended(plain(c), c.Extensions)
}

func (c *CollectionEvent) UnmarshalJSON(data []byte) error {
	type plain CollectionEvent
	var p plain
	ext, err := UnmarshalExtended(data, &p)
	if err != nil {
		return err
	}
	*c = CollectionEvent(p)
	c.Extensions = ext
	return nil
}

// ProcessingStep records a transformation applied to an earlier record.
// Process parameters are carried as extensions.
type ProcessingStep struct {
	ID             string `json:"id"`
	ProcessType    string `json:"processType,omitempty"`
	InputReference string `json:"inputReference,omitempty"`
	Meta
	Extensions Extensions `json:"-"`
}

func (*ProcessingStep) RecordType() DocType { return DocProcessingStep }

func (p ProcessingStep) MarshalJSON() ([]byte, error) {
	type plain ProcessingStep
	return MarshalExtended(plain(p), p.Extensions)
}

func (p *ProcessingStep) UnmarshalJSON(data []byte) error {
	type plain ProcessingStep
	var v plain
	ext, err := UnmarshalExtended(data, &v)
	if err != nil {
		return err
	}
	*p = ProcessingStep(v)
	p.Extensions = ext
	return nil
}

// QualityTest records a laboratory result about an earlier record.
type QualityTest struct {
	ID               string          `json:"id"`
	TestType         string          `json:"testType,omitempty"`
	Result           json.RawMessage `json:"result,omitempty"`
	SubjectReference string          `json:"subjectReference,omitempty"`
	Meta
	Extensions Extensions `json:"-"`
}

func (*QualityTest) RecordType() DocType { return DocQualityTest }

func (q QualityTest) MarshalJSON() ([]byte, error) {
	type plain QualityTest
	return MarshalExtended(plain(q), q.Extensions)
}

func (q *QualityTest) UnmarshalJSON(data []byte) error {
	type plain QualityTest
	var v plain
	ext, err := UnmarshalExtended(data, &v)
	if err != nil {
		return err
	}
	*q = QualityTest(v)
	q.Extensions = ext
	return nil
}

// Product describes the finished good a provenance record covers.
type Product struct {
	Name       string     `json:"name,omitempty"`
	Extensions Extensions `json:"-"`
}

func (p Product) MarshalJSON() ([]byte, error) {
	type plain Product
	return MarshalExtended(plain(p), p.Extensions)
}

func (p *Product) UnmarshalJSON(data []byte) error {
	type plain Product
	var v plain
	ext, err := UnmarshalExtended(data, &v)
	if err != nil {
		return err
	}
	*p = Product(v)
	p.Extensions = ext
	return nil
}

// Target identifies the physical item a provenance record is attached to.
type Target struct {
	QRCode     string     `json:"qrCode,omitempty"`
	Extensions Extensions `json:"-"`
}

func (t Target) MarshalJSON() ([]byte, error) {
	type plain Target
	return MarshalExtended(plain(t), t.Extensions)
}

func (t *Target) UnmarshalJSON(data []byte) error {
	type plain Target
	var v plain
	ext, err := UnmarshalExtended(data, &v)
	if err != nil {
		return err
	}
	*t = Target(v)
	t.Extensions = ext
	return nil
}

// ConsumerScans counts consumer lookups by QR code.
type ConsumerScans struct {
	ScanCount int    `json:"scanCount"`
	FirstScan string `json:"firstScan,omitempty"`
	LastScan  string `json:"lastScan,omitempty"`
}

// ChainEnvelope locates the transaction that created a provenance record.
type ChainEnvelope struct {
	NetworkID     string `json:"networkId"`
	ChannelID     string `json:"channelId"`
	ChaincodeID   string `json:"chaincodeId"`
	TransactionID string `json:"transactionId"`
	BlockNumber   int64  `json:"blockNumber"`
	Creator       string `json:"creator"`
	MSPID         string `json:"mspId"`
}

// ProvenanceRecord summarises a product's traceable history.
type ProvenanceRecord struct {
	ID         string         `json:"id"`
	Product    *Product       `json:"product,omitempty"`
	Target     *Target        `json:"target,omitempty"`
	Consumer   *ConsumerScans `json:"consumer,omitempty"`
	Blockchain *ChainEnvelope `json:"blockchain,omitempty"`
	Meta
	Extensions Extensions `json:"-"`
}

func (*ProvenanceRecord) RecordType() DocType { return DocProvenance }

// QRCode returns the target QR code, or "".
func (p *ProvenanceRecord) QRCode() string {
	if p.Target == nil {
		return ""
	}
	return strings.TrimSpace(p.Target.QRCode)
}

// ProductName returns the product name, or "".
func (p *ProvenanceRecord) ProductName() string {
	if p.Product == nil {
		return ""
	}
	return p.Product.Name
}

func (p ProvenanceRecord) MarshalJSON() ([]byte, error) {
	type plain ProvenanceRecord
	return MarshalExtended(plain(p), p.Extensions)
}

func (p *ProvenanceRecord) UnmarshalJSON(data []byte) error {
	type plain ProvenanceRecord
	var v plain
	ext, err := UnmarshalExtended(data, &v)
	if err != nil {
		return err
	}
	*p = ProvenanceRecord(v)
	p.Extensions = ext
	return nil
}

// QRIndex maps a QR code to the provenance record it was issued for.
type QRIndex struct {
	QRCode       string `json:"qrCode"`
	ProvenanceID string `json:"provenanceId"`
	Timestamp    string `json:"timestamp"`
}

func (*QRIndex) RecordType() DocType { return DocQRIndex }

// ConservationStatus is reference data for one species.
type ConservationStatus struct {
	Species               string  `json:"species" yaml:"species"`
	Status                string  `json:"status" yaml:"status"`
	Population            string  `json:"population" yaml:"population"`
	HarvestQuota          float64 `json:"harvestQuota" yaml:"harvestQuota"`
	MinRegenerationPeriod int     `json:"minRegenerationPeriod" yaml:"minRegenerationPeriod"`
	PermitRequired        bool    `json:"permitRequired,omitempty" yaml:"permitRequired"`
	CITESAppendix         string  `json:"citesAppendix,omitempty" yaml:"citesAppendix"`
}

func (*ConservationStatus) RecordType() DocType { return DocConservationStatus }

// FairTradePrice is the reference price floor for one species, in currency
// units per mass unit.
type FairTradePrice struct {
	Species   string  `json:"species" yaml:"species"`
	FarmGate  float64 `json:"farmGate" yaml:"farmGate"`
	FairTrade float64 `json:"fairTrade" yaml:"fairTrade"`
	Premium   float64 `json:"premium" yaml:"premium"`
	Currency  string  `json:"currency,omitempty" yaml:"currency"`
}

func (*FairTradePrice) RecordType() DocType { return DocFairTradePrice }

// HarvestingPractice holds the rules for one practice type.
type HarvestingPractice struct {
	Type                 string   `json:"type" yaml:"type"`
	MaxHarvestPercentage float64  `json:"maxHarvestPercentage" yaml:"maxHarvestPercentage"`
	RegenerationRequired bool     `json:"regenerationRequired" yaml:"regenerationRequired"`
	SeasonalRestrictions []string `json:"seasonalRestrictions" yaml:"seasonalRestrictions"`
	ToolsAllowed         []string `json:"toolsAllowed" yaml:"toolsAllowed"`
	ToolsProhibited      []string `json:"toolsProhibited" yaml:"toolsProhibited"`
}

func (*HarvestingPractice) RecordType() DocType { return DocHarvestingPractice }

// QuotaUsage accumulates harvested quantity per species, zone and year.
type QuotaUsage struct {
	Species     string  `json:"species"`
	Zone        string  `json:"zone"`
	Year        int     `json:"year"`
	Used        float64 `json:"used"`
	LastUpdated string  `json:"lastUpdated"`
}

func (*QuotaUsage) RecordType() DocType { return DocQuotaUsage }

// RulesetMeta records which reference-data ruleset was seeded and when.
type RulesetMeta struct {
	Name     string `json:"name"`
	Version  string `json:"version"`
	Checksum string `json:"checksum"`
	SeededAt string `json:"seededAt"`
	TxID     string `json:"txId"`
}

func (*RulesetMeta) RecordType() DocType { return DocRulesetMeta }

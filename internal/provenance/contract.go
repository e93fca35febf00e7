/*
SPDX-License-Identifier: Apache-2.0
*/

// Package provenance records collection, processing and quality-test events,
// links them into provenance chains and indexes provenance records by QR code.
package provenance

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"

	"herbtrace-chaincode/internal/config"
	"herbtrace-chaincode/internal/ledger"
	"herbtrace-chaincode/internal/sustainability"
)

// ContractName is the namespace of the provenance transactions.
const ContractName = "provenance"

// Roles checked when role enforcement is on.
const (
	RoleCollector    = "collector"
	RoleProcessor    = "processor"
	RoleLaboratory   = "laboratory"
	RoleManufacturer = "manufacturer"
)

// Event names.
const (
	EventCollectionEventCreated = "CollectionEventCreated"
	EventProcessingStepCreated  = "ProcessingStepCreated"
	EventQualityTestCreated     = "QualityTestCreated"
	EventProvenanceCreated      = "ProvenanceCreated"
)

// maxLineage bounds TraceLineage walks.
const maxLineage = 64

// Contract exposes traceability records as Fabric transactions. Payloads and
// results are JSON strings.
type Contract struct {
	contractapi.Contract

	NetworkID     string
	ChaincodeName string
	EnforceRoles  bool
	Policy        config.CollectionPolicy
	Evaluator     sustainability.Evaluator
	Logger        *log.Logger
}

// NewContract builds a provenance contract from cfg.
func NewContract(cfg config.Config, logger *log.Logger) *Contract {
	if logger == nil {
		logger = log.New(os.Stdout, "[PROVENANCE] ", log.LstdFlags)
	}
	c := &Contract{
		NetworkID:     cfg.NetworkID,
		ChaincodeName: cfg.ChaincodeName,
		EnforceRoles:  cfg.EnforceRoles,
		Policy:        cfg.CollectionPolicy,
		Evaluator: sustainability.Evaluator{
			HarvestRatio: cfg.DefaultHarvestRatio,
			WarningRatio: cfg.QuotaWarningRatio,
		},
		Logger: logger,
	}
	c.Name = ContractName
	return c
}

// CreateCollectionEvent records a harvest. Depending on the collection
// policy the event is evaluated for compliance and its quantity added to
// the quota counter.
func (c *Contract) CreateCollectionEvent(ctx contractapi.TransactionContextInterface, id, dataJSON string) (string, error) {
	l := ledger.New(ctx)
	if err := l.RequireRole(c.EnforceRoles, RoleCollector); err != nil {
		return "", err
	}
	if err := c.requireNew(l, id); err != nil {
		return "", err
	}
	var ev ledger.CollectionEvent
	if err := decodePayload(dataJSON, &ev); err != nil {
		return "", err
	}
	switch {
	case strings.TrimSpace(ev.BotanicalName) == "":
		return "", ledger.Errorf(ledger.CodeValidation, "collection event %s: botanicalName is required", id)
	case ev.Location == nil:
		return "", ledger.Errorf(ledger.CodeValidation, "collection event %s: location is required", id)
	case ev.Quantity == nil:
		return "", ledger.Errorf(ledger.CodeValidation, "collection event %s: quantity is required", id)
	case ev.Quantity.Value <= 0:
		return "", ledger.Errorf(ledger.CodeValidation, "collection event %s: quantity must be positive", id)
	}
	tx, err := l.Tx()
	if err != nil {
		return "", err
	}
	ev.ID = id
	ev.Meta = tx.Stamp()
	ev.Compliance = nil

	// Quota counters are kept per collection year; events without a
	// readable date count against the year of the transaction.
	collected, err := sustainability.ParseCollectionDate(ev.PerformedDateTime)
	if err != nil {
		collected = tx.Time
	}
	if c.Policy != config.PolicyNone {
		res, err := c.Evaluator.Evaluate(l, &ev, collected.Year())
		if err != nil {
			return "", err
		}
		if !res.IsCompliant && c.Policy == config.PolicyEnforce {
			return "", ledger.Errorf(ledger.CodeComplianceViolation, "collection event %s: %s", id, strings.Join(res.Errors, "; "))
		}
		if !res.IsCompliant {
			c.Logger.Printf("Admitting non-compliant collection event %s: %s", id, strings.Join(res.Errors, "; "))
		}
		ev.Compliance = res.Snapshot(tx.Timestamp())
	}

	if err := l.Put(id, &ev); err != nil {
		return "", err
	}
	if c.Policy != config.PolicyNone {
		if _, err := sustainability.RecordUsage(l, ev.BotanicalName, ev.Zone(), ev.Quantity.Value, collected.Format(time.RFC3339)); err != nil {
			return "", fmt.Errorf("failed to record quota usage for %s: %w", id, err)
		}
	}
	err = l.Emit(EventCollectionEventCreated, map[string]any{
		"id":            id,
		"botanicalName": ev.BotanicalName,
		"location":      ev.Location,
		"timestamp":     ev.Timestamp,
	})
	if err != nil {
		return "", err
	}
	return marshal(&ev)
}

// CreateProcessingStep records a processing step. A set inputReference must
// name an existing record.
func (c *Contract) CreateProcessingStep(ctx contractapi.TransactionContextInterface, id, dataJSON string) (string, error) {
	l := ledger.New(ctx)
	if err := l.RequireRole(c.EnforceRoles, RoleProcessor); err != nil {
		return "", err
	}
	if err := c.requireNew(l, id); err != nil {
		return "", err
	}
	var step ledger.ProcessingStep
	if err := decodePayload(dataJSON, &step); err != nil {
		return "", err
	}
	if err := requireReference(l, "inputReference", step.InputReference); err != nil {
		return "", err
	}
	tx, err := l.Tx()
	if err != nil {
		return "", err
	}
	step.ID = id
	step.Meta = tx.Stamp()

	if err := l.Put(id, &step); err != nil {
		return "", err
	}
	err = l.Emit(EventProcessingStepCreated, map[string]any{
		"id":             id,
		"processType":    step.ProcessType,
		"inputReference": step.InputReference,
		"timestamp":      step.Timestamp,
	})
	if err != nil {
		return "", err
	}
	return marshal(&step)
}

// CreateQualityTest records a quality test. A set subjectReference must name
// an existing record.
func (c *Contract) CreateQualityTest(ctx contractapi.TransactionContextInterface, id, dataJSON string) (string, error) {
	l := ledger.New(ctx)
	if err := l.RequireRole(c.EnforceRoles, RoleLaboratory); err != nil {
		return "", err
	}
	if err := c.requireNew(l, id); err != nil {
		return "", err
	}
	var test ledger.QualityTest
	if err := decodePayload(dataJSON, &test); err != nil {
		return "", err
	}
	if err := requireReference(l, "subjectReference", test.SubjectReference); err != nil {
		return "", err
	}
	tx, err := l.Tx()
	if err != nil {
		return "", err
	}
	test.ID = id
	test.Meta = tx.Stamp()

	if err := l.Put(id, &test); err != nil {
		return "", err
	}
	err = l.Emit(EventQualityTestCreated, map[string]any{
		"id":               id,
		"testType":         test.TestType,
		"result":           test.Result,
		"subjectReference": test.SubjectReference,
		"timestamp":        test.Timestamp,
	})
	if err != nil {
		return "", err
	}
	return marshal(&test)
}

// CreateProvenance records a provenance record with its chain envelope and,
// when the target carries a QR code, the QR index entry.
func (c *Contract) CreateProvenance(ctx contractapi.TransactionContextInterface, id, dataJSON string) (string, error) {
	l := ledger.New(ctx)
	if err := l.RequireRole(c.EnforceRoles, RoleManufacturer); err != nil {
		return "", err
	}
	if err := c.requireNew(l, id); err != nil {
		return "", err
	}
	var rec ledger.ProvenanceRecord
	if err := decodePayload(dataJSON, &rec); err != nil {
		return "", err
	}
	qrCode := rec.QRCode()
	if qrCode != "" {
		taken, err := l.Exists(ledger.QRKey(qrCode))
		if err != nil {
			return "", err
		}
		if taken {
			return "", ledger.Errorf(ledger.CodeAlreadyExists, "QR code %s is already assigned", qrCode)
		}
	}
	tx, err := l.Tx()
	if err != nil {
		return "", err
	}
	rec.ID = id
	rec.Meta = tx.Stamp()
	if rec.Target != nil {
		rec.Target.QRCode = qrCode
	}
	rec.Blockchain = &ledger.ChainEnvelope{
		NetworkID:     c.NetworkID,
		ChannelID:     tx.ChannelID,
		ChaincodeID:   c.ChaincodeName,
		TransactionID: tx.ID,
		// Chaincode cannot see the block it lands in; the transaction time
		// in seconds stands in for the height.
		BlockNumber: tx.Time.Unix(),
		Creator:     tx.Creator,
		MSPID:       tx.MSPID,
	}

	if err := l.Put(id, &rec); err != nil {
		return "", err
	}
	if qrCode != "" {
		entry := ledger.QRIndex{QRCode: qrCode, ProvenanceID: id, Timestamp: tx.Timestamp()}
		if err := l.Put(ledger.QRKey(qrCode), &entry); err != nil {
			return "", fmt.Errorf("failed to index QR code %s: %w", qrCode, err)
		}
	}
	err = l.Emit(EventProvenanceCreated, map[string]any{
		"id":          id,
		"qrCode":      qrCode,
		"productName": rec.ProductName(),
		"timestamp":   rec.Timestamp,
	})
	if err != nil {
		return "", err
	}
	return marshal(&rec)
}

// ReadRecord returns the stored value of id.
func (c *Contract) ReadRecord(ctx contractapi.TransactionContextInterface, id string) (string, error) {
	b, err := ledger.New(ctx).GetRaw(id)
	if err != nil {
		return "", err
	}
	if b == nil {
		return "", ledger.Errorf(ledger.CodeNotFound, "record %s does not exist", id)
	}
	return string(b), nil
}

// RecordExists reports whether id is taken.
func (c *Contract) RecordExists(ctx contractapi.TransactionContextInterface, id string) (bool, error) {
	return ledger.New(ctx).Exists(id)
}

// GetAllRecords returns every key/value pair in [startKey, endKey).
func (c *Contract) GetAllRecords(ctx contractapi.TransactionContextInterface, startKey, endKey string) (string, error) {
	rows, err := ledger.New(ctx).Range(startKey, endKey)
	if err != nil {
		return "", err
	}
	for _, r := range rows {
		if r.Malformed {
			c.Logger.Printf("Returning malformed value at %s as a raw string", r.Key)
		}
	}
	return marshal(rows)
}

// GetRecordHistory returns every committed version of id, oldest first.
func (c *Contract) GetRecordHistory(ctx contractapi.TransactionContextInterface, id string) (string, error) {
	versions, err := ledger.New(ctx).History(id)
	if err != nil {
		return "", err
	}
	return marshal(versions)
}

func (c *Contract) requireNew(l *ledger.Ledger, id string) error {
	if strings.TrimSpace(id) == "" {
		return ledger.Errorf(ledger.CodeValidation, "record id is required")
	}
	if ledger.Reserved(id) {
		return ledger.Errorf(ledger.CodeValidation, "record id %s uses a reserved key prefix", id)
	}
	exists, err := l.Exists(id)
	if err != nil {
		return err
	}
	if exists {
		return ledger.Errorf(ledger.CodeAlreadyExists, "record %s already exists", id)
	}
	return nil
}

func requireReference(l *ledger.Ledger, field, ref string) error {
	if ref == "" {
		return nil
	}
	exists, err := l.Exists(ref)
	if err != nil {
		return err
	}
	if !exists {
		return ledger.Errorf(ledger.CodeReferenceNotFound, "%s %s does not exist", field, ref)
	}
	return nil
}

func decodePayload(dataJSON string, into any) error {
	if err := json.Unmarshal([]byte(dataJSON), into); err != nil {
		return ledger.Wrap(ledger.CodeValidation, err, "payload is not a valid JSON object")
	}
	return nil
}

func marshal(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal result: %w", err)
	}
	return string(b), nil
}

/*
SPDX-License-Identifier: Apache-2.0
*/

package provenance

import (
	"encoding/json"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"

	"herbtrace-chaincode/internal/ledger"
)

// ScanResult is returned by GetProvenanceByQR. ScanRecorded is always true
// on success: every lookup writes the updated scan counters.
type ScanResult struct {
	Record       *ledger.ProvenanceRecord `json:"record"`
	ScanRecorded bool                     `json:"scanRecorded"`
	ScanCount    int                      `json:"scanCount"`
}

// GetProvenanceByQR resolves a QR code and records a consumer scan on the
// provenance record. Repeated lookups keep incrementing the scan count.
func (c *Contract) GetProvenanceByQR(ctx contractapi.TransactionContextInterface, qrCode string) (string, error) {
	l := ledger.New(ctx)
	entry, err := resolveQR(l, qrCode)
	if err != nil {
		return "", err
	}
	var rec ledger.ProvenanceRecord
	found, err := l.Get(entry.ProvenanceID, &rec)
	if err != nil {
		return "", err
	}
	if !found {
		// The index points at a record that is gone.
		return "", ledger.Errorf(ledger.CodeNotFound, "provenance record %s for QR code %s does not exist", entry.ProvenanceID, qrCode)
	}
	tx, err := l.Tx()
	if err != nil {
		return "", err
	}

	now := tx.Timestamp()
	if rec.Consumer == nil {
		rec.Consumer = &ledger.ConsumerScans{}
	}
	rec.Consumer.ScanCount++
	rec.Consumer.LastScan = now
	if rec.Consumer.FirstScan == "" {
		rec.Consumer.FirstScan = now
	}
	if err := l.Put(rec.ID, &rec); err != nil {
		return "", err
	}
	return marshal(ScanResult{Record: &rec, ScanRecorded: true, ScanCount: rec.Consumer.ScanCount})
}

// ResolveQRCode returns the index entry of a QR code without touching the
// provenance record.
func (c *Contract) ResolveQRCode(ctx contractapi.TransactionContextInterface, qrCode string) (string, error) {
	entry, err := resolveQR(ledger.New(ctx), qrCode)
	if err != nil {
		return "", err
	}
	return marshal(entry)
}

func resolveQR(l *ledger.Ledger, qrCode string) (*ledger.QRIndex, error) {
	var entry ledger.QRIndex
	found, err := l.Get(ledger.QRKey(qrCode), &entry)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ledger.Errorf(ledger.CodeNotFound, "QR code %s is not registered", qrCode)
	}
	return &entry, nil
}

// LineageLink is one record on a provenance chain.
type LineageLink struct {
	ID        string          `json:"id"`
	DocType   ledger.DocType  `json:"docType"`
	Reference string          `json:"reference,omitempty"`
	Record    json.RawMessage `json:"record"`
}

// TraceLineage follows inputReference and subjectReference links from id
// back to the record that starts the chain. The result starts with id.
func (c *Contract) TraceLineage(ctx contractapi.TransactionContextInterface, id string) (string, error) {
	l := ledger.New(ctx)
	chain := []LineageLink{}
	seen := make(map[string]bool)
	for next := id; next != ""; {
		if seen[next] {
			return "", ledger.Errorf(ledger.CodeValidation, "lineage of %s loops back to %s", id, next)
		}
		if len(chain) == maxLineage {
			return "", ledger.Errorf(ledger.CodeValidation, "lineage of %s is longer than %d records", id, maxLineage)
		}
		seen[next] = true

		raw, err := l.GetRaw(next)
		if err != nil {
			return "", err
		}
		if raw == nil {
			if next == id {
				return "", ledger.Errorf(ledger.CodeNotFound, "record %s does not exist", id)
			}
			return "", ledger.Errorf(ledger.CodeReferenceNotFound, "lineage of %s references missing record %s", id, next)
		}
		rec, err := ledger.Decode(raw)
		if err != nil {
			return "", ledger.Wrap(ledger.CodeValidation, err, "record %s cannot be traced", next)
		}
		link := LineageLink{ID: next, DocType: rec.RecordType(), Record: raw}
		switch r := rec.(type) {
		case *ledger.ProcessingStep:
			link.Reference = r.InputReference
		case *ledger.QualityTest:
			link.Reference = r.SubjectReference
		}
		chain = append(chain, link)
		next = link.Reference
	}
	return marshal(chain)
}

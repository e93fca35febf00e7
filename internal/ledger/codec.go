/*
SPDX-License-Identifier: Apache-2.0
*/

package ledger

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"sync"
)

// DocType discriminates the record types sharing the ledger keyspace.
type DocType string

const (
	DocCollectionEvent    DocType = "collectionEvent"
	DocProcessingStep     DocType = "processingStep"
	DocQualityTest        DocType = "qualityTest"
	DocProvenance         DocType = "provenance"
	DocQRIndex            DocType = "qrIndex"
	DocConservationStatus DocType = "conservationStatus"
	DocFairTradePrice     DocType = "fairTradePrice"
	DocHarvestingPractice DocType = "harvestingPractice"
	DocQuotaUsage         DocType = "quotaUsage"
	DocRulesetMeta        DocType = "rulesetMeta"
)

const docTypeField = "docType"

// Record is any value stored in the ledger.
type Record interface {
	RecordType() DocType
}

var registry = map[DocType]func() Record{
	DocCollectionEvent:    func() Record { return &CollectionEvent{} },
	DocProcessingStep:     func() Record { return &ProcessingStep{} },
	DocQualityTest:        func() Record { return &QualityTest{} },
	DocProvenance:         func() Record { return &ProvenanceRecord{} },
	DocQRIndex:            func() Record { return &QRIndex{} },
	DocConservationStatus: func() Record { return &ConservationStatus{} },
	DocFairTradePrice:     func() Record { return &FairTradePrice{} },
	DocHarvestingPractice: func() Record { return &HarvestingPractice{} },
	DocQuotaUsage:         func() Record { return &QuotaUsage{} },
	DocRulesetMeta:        func() Record { return &RulesetMeta{} },
}

// Encode serializes r and tags it with its docType.
func Encode(r Record) ([]byte, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", r.RecordType(), err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return nil, fmt.Errorf("%s does not encode to a JSON object: %w", r.RecordType(), err)
	}
	tag, _ := json.Marshal(r.RecordType())
	fields[docTypeField] = tag
	return json.Marshal(fields)
}

// PeekDocType returns the discriminator of a stored value.
func PeekDocType(raw []byte) (DocType, error) {
	var head struct {
		DocType DocType `json:"docType"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return "", fmt.Errorf("failed to read docType: %w", err)
	}
	if head.DocType == "" {
		return "", fmt.Errorf("value carries no docType")
	}
	return head.DocType, nil
}

// Decode dispatches a stored value to the record type named by its docType.
func Decode(raw []byte) (Record, error) {
	dt, err := PeekDocType(raw)
	if err != nil {
		return nil, err
	}
	newRecord, ok := registry[dt]
	if !ok {
		return nil, fmt.Errorf("unknown docType %q", dt)
	}
	r := newRecord()
	if err := json.Unmarshal(raw, r); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s: %w", dt, err)
	}
	return r, nil
}

// DecodeInto decodes raw into r, refusing values of any other docType.
func DecodeInto(raw []byte, r Record) error {
	dt, err := PeekDocType(raw)
	if err != nil {
		return err
	}
	if dt != r.RecordType() {
		return Errorf(CodeValidation, "stored value is a %s, not a %s", dt, r.RecordType())
	}
	if err := json.Unmarshal(raw, r); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", dt, err)
	}
	return nil
}

// Extensions holds payload fields a record type does not model. They are
// written back unchanged next to the modelled fields.
type Extensions map[string]json.RawMessage

// MarshalExtended marshals known and merges ext into the resulting object.
// Modelled fields win over extensions with the same name.
func MarshalExtended(known any, ext Extensions) ([]byte, error) {
	b, err := json.Marshal(known)
	if err != nil || len(ext) == 0 {
		return b, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return nil, err
	}
	for k, v := range ext {
		if _, ok := fields[k]; !ok {
			fields[k] = v
		}
	}
	return json.Marshal(fields)
}

// UnmarshalExtended decodes data into known (a pointer to struct) and returns
// the object members that none of known's fields claim.
func UnmarshalExtended(data []byte, known any) (Extensions, error) {
	if err := json.Unmarshal(data, known); err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	delete(fields, docTypeField)
	for name := range jsonNames(reflect.TypeOf(known)) {
		delete(fields, name)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return Extensions(fields), nil
}

var namesCache sync.Map

func jsonNames(t reflect.Type) map[string]struct{} {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if cached, ok := namesCache.Load(t); ok {
		return cached.(map[string]struct{})
	}
	names := make(map[string]struct{})
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := f.Tag.Get("json")
		if tag == "-" {
			continue
		}
		name, _, _ := strings.Cut(tag, ",")
		if f.Anonymous && name == "" && f.Type.Kind() == reflect.Struct {
			for n := range jsonNames(f.Type) {
				names[n] = struct{}{}
			}
			continue
		}
		if !f.IsExported() {
			continue
		}
		if name == "" {
			name = f.Name
		}
		names[name] = struct{}{}
	}
	namesCache.Store(t, names)
	return names
}

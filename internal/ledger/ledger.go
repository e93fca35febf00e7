/*
SPDX-License-Identifier: Apache-2.0
*/

// Package ledger is the record codec and the key/value helpers every contract
// shares. All records live in one keyspace and carry a docType discriminator.
package ledger

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hyperledger/fabric-chaincode-go/pkg/cid"
	"github.com/hyperledger/fabric-chaincode-go/shim"
	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

// Key prefixes for rows that are not addressed by a caller-chosen id.
const (
	QRPrefix           = "qr_"
	ConservationPrefix = "conservation_"
	FairTradePrefix    = "fairtrade_"
	PracticePrefix     = "practice_"
	QuotaPrefix        = "quota_"
	RulesetKey         = "ruleset_sustainability"
)

var reservedPrefixes = []string{QRPrefix, ConservationPrefix, FairTradePrefix, PracticePrefix, QuotaPrefix, RulesetKey}

// QRKey is the key of the index entry for a QR code.
func QRKey(code string) string { return QRPrefix + code }

// ConservationKey is the key of a species' conservation status.
func ConservationKey(species string) string { return ConservationPrefix + species }

// FairTradeKey is the key of a species' fair-trade reference price.
func FairTradeKey(species string) string { return FairTradePrefix + species }

// PracticeKey is the key of the rules for a harvesting practice type.
func PracticeKey(practice string) string { return PracticePrefix + practice }

// QuotaKey is the key of the usage counter for species in zone during year.
func QuotaKey(species, zone string, year int) string {
	return QuotaPrefix + species + "_" + zone + "_" + strconv.Itoa(year)
}

// Reserved reports whether key falls in a keyspace owned by derived rows.
// Caller-chosen record ids must not.
func Reserved(key string) bool {
	for _, p := range reservedPrefixes {
		if strings.HasPrefix(key, p) {
			return true
		}
	}
	return false
}

// TxInfo is the invocation context used to stamp records.
type TxInfo struct {
	ID        string
	Time      time.Time
	Creator   string
	MSPID     string
	ChannelID string
}

// Timestamp is the transaction time in RFC 3339, UTC.
func (t TxInfo) Timestamp() string {
	return t.Time.UTC().Format(time.RFC3339)
}

// Stamp returns the creation metadata for a record written in this transaction.
func (t TxInfo) Stamp() Meta {
	return Meta{Creator: t.Creator, TxID: t.ID, Timestamp: t.Timestamp()}
}

// Row is one key/value pair of a range scan. Values that are not valid JSON
// are returned as a JSON string and flagged malformed.
type Row struct {
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	Malformed bool            `json:"malformed,omitempty"`
}

// Version is one historical value of a key.
type Version struct {
	TxID      string          `json:"txId"`
	Timestamp string          `json:"timestamp"`
	IsDelete  bool            `json:"isDelete,omitempty"`
	Value     json.RawMessage `json:"value"`
	Malformed bool            `json:"malformed,omitempty"`
}

// Ledger wraps the stub and client identity of one invocation.
type Ledger struct {
	stub     shim.ChaincodeStubInterface
	identity cid.ClientIdentity
}

// New binds a Ledger to the transaction context.
func New(ctx contractapi.TransactionContextInterface) *Ledger {
	return &Ledger{stub: ctx.GetStub(), identity: ctx.GetClientIdentity()}
}

// Tx reads the invocation context.
func (l *Ledger) Tx() (TxInfo, error) {
	ts, err := l.stub.GetTxTimestamp()
	if err != nil {
		return TxInfo{}, fmt.Errorf("failed to read transaction timestamp: %w", err)
	}
	info := TxInfo{
		ID:        l.stub.GetTxID(),
		Time:      ts.AsTime().UTC(),
		ChannelID: l.stub.GetChannelID(),
	}
	if l.identity == nil {
		return TxInfo{}, fmt.Errorf("no client identity in transaction context")
	}
	if info.Creator, err = l.identity.GetID(); err != nil {
		return TxInfo{}, fmt.Errorf("failed to read invoker identity: %w", err)
	}
	if info.MSPID, err = l.identity.GetMSPID(); err != nil {
		return TxInfo{}, fmt.Errorf("failed to read invoker MSP: %w", err)
	}
	return info, nil
}

// Attribute returns a certificate attribute of the invoker.
func (l *Ledger) Attribute(name string) (string, bool, error) {
	if l.identity == nil {
		return "", false, nil
	}
	return l.identity.GetAttributeValue(name)
}

// Exists reports whether key holds a value.
func (l *Ledger) Exists(key string) (bool, error) {
	b, err := l.stub.GetState(key)
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return b != nil, nil
}

// GetRaw returns the stored bytes, or nil when key is absent.
func (l *Ledger) GetRaw(key string) ([]byte, error) {
	b, err := l.stub.GetState(key)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return b, nil
}

// Get decodes the value at key into r. It reports false when key is absent.
func (l *Ledger) Get(key string, r Record) (bool, error) {
	b, err := l.GetRaw(key)
	if err != nil || b == nil {
		return false, err
	}
	if err := DecodeInto(b, r); err != nil {
		return true, fmt.Errorf("record %s: %w", key, err)
	}
	return true, nil
}

// Put encodes r and writes it at key.
func (l *Ledger) Put(key string, r Record) error {
	b, err := Encode(r)
	if err != nil {
		return err
	}
	if err := l.stub.PutState(key, b); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

// Range returns every pair in [startKey, endKey).
func (l *Ledger) Range(startKey, endKey string) ([]Row, error) {
	iter, err := l.stub.GetStateByRange(startKey, endKey)
	if err != nil {
		return nil, fmt.Errorf("failed to get state by range: %w", err)
	}
	defer iter.Close()

	rows := []Row{}
	for iter.HasNext() {
		kv, err := iter.Next()
		if err != nil {
			return nil, fmt.Errorf("failed during range iteration: %w", err)
		}
		value, malformed := jsonOrString(kv.Value)
		rows = append(rows, Row{Key: kv.Key, Value: value, Malformed: malformed})
	}
	return rows, nil
}

// History returns every committed version of key, oldest first. Fabric
// yields history newest first; the order is reversed here.
func (l *Ledger) History(key string) ([]Version, error) {
	iter, err := l.stub.GetHistoryForKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to get history for %s: %w", key, err)
	}
	defer iter.Close()

	versions := []Version{}
	for iter.HasNext() {
		mod, err := iter.Next()
		if err != nil {
			return nil, fmt.Errorf("failed during history iteration: %w", err)
		}
		v := Version{TxID: mod.TxId, IsDelete: mod.IsDelete}
		if mod.Timestamp != nil {
			v.Timestamp = mod.Timestamp.AsTime().UTC().Format(time.RFC3339)
		}
		if mod.IsDelete {
			v.Value = json.RawMessage("null")
		} else {
			v.Value, v.Malformed = jsonOrString(mod.Value)
		}
		versions = append(versions, v)
	}
	for i, j := 0, len(versions)-1; i < j; i, j = i+1, j-1 {
		versions[i], versions[j] = versions[j], versions[i]
	}
	return versions, nil
}

// Emit publishes a chaincode event. Fabric keeps one event per transaction.
func (l *Ledger) Emit(name string, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", name, err)
	}
	if err := l.stub.SetEvent(name, b); err != nil {
		return fmt.Errorf("failed to emit %s event: %w", name, err)
	}
	return nil
}

func jsonOrString(b []byte) (json.RawMessage, bool) {
	if json.Valid(b) {
		return json.RawMessage(b), false
	}
	s, _ := json.Marshal(string(b))
	return json.RawMessage(s), true
}

/*
SPDX-License-Identifier: Apache-2.0
*/

// Package ledgertest provides a Fabric stub with key history and captured
// events, and a fake client identity, for contract tests.
package ledgertest

import (
	"crypto/x509"
	"fmt"
	"time"

	"github.com/hyperledger/fabric-chaincode-go/shim"
	"github.com/hyperledger/fabric-chaincode-go/shimtest"
	"github.com/hyperledger/fabric-contract-api-go/contractapi"
	"github.com/hyperledger/fabric-protos-go/ledger/queryresult"
	"github.com/hyperledger/fabric-protos-go/peer"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// Epoch is the timestamp of the first transaction of a new Stub.
var Epoch = time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)

// Stub is a shimtest.MockStub that also records per-key history and events.
type Stub struct {
	*shimtest.MockStub
	Events  []*peer.ChaincodeEvent
	history map[string][]*queryresult.KeyModification
	clock   time.Time
}

func NewStub() *Stub {
	s := &Stub{
		MockStub: shimtest.NewMockStub("herbtrace", nil),
		history:  make(map[string][]*queryresult.KeyModification),
		clock:    Epoch,
	}
	s.ChannelID = "herbchannel"
	return s
}

// Begin starts a transaction at the stub clock, then advances the clock by
// one second.
func (s *Stub) Begin(txID string) {
	s.MockTransactionStart(txID)
	s.TxTimestamp = timestamppb.New(s.clock)
	s.clock = s.clock.Add(time.Second)
}

// SetClock moves the stub clock.
func (s *Stub) SetClock(t time.Time) {
	s.clock = t
}

func (s *Stub) PutState(key string, value []byte) error {
	if err := s.MockStub.PutState(key, value); err != nil {
		return err
	}
	s.history[key] = append(s.history[key], &queryresult.KeyModification{
		TxId:      s.TxID,
		Value:     append([]byte(nil), value...),
		Timestamp: s.TxTimestamp,
	})
	return nil
}

func (s *Stub) DelState(key string) error {
	if err := s.MockStub.DelState(key); err != nil {
		return err
	}
	s.history[key] = append(s.history[key], &queryresult.KeyModification{
		TxId:      s.TxID,
		Timestamp: s.TxTimestamp,
		IsDelete:  true,
	})
	return nil
}

// GetHistoryForKey yields versions newest first, as a Fabric peer does.
func (s *Stub) GetHistoryForKey(key string) (shim.HistoryQueryIteratorInterface, error) {
	mods := s.history[key]
	reversed := make([]*queryresult.KeyModification, len(mods))
	for i, m := range mods {
		reversed[len(mods)-1-i] = m
	}
	return &historyIterator{mods: reversed}, nil
}

func (s *Stub) SetEvent(name string, payload []byte) error {
	if name == "" {
		return fmt.Errorf("event name can not be empty string")
	}
	s.Events = append(s.Events, &peer.ChaincodeEvent{EventName: name, Payload: payload, TxId: s.TxID})
	return nil
}

// LastEvent returns the most recent event, or nil.
func (s *Stub) LastEvent() *peer.ChaincodeEvent {
	if len(s.Events) == 0 {
		return nil
	}
	return s.Events[len(s.Events)-1]
}

type historyIterator struct {
	mods []*queryresult.KeyModification
	pos  int
}

func (it *historyIterator) HasNext() bool { return it.pos < len(it.mods) }

func (it *historyIterator) Next() (*queryresult.KeyModification, error) {
	if !it.HasNext() {
		return nil, fmt.Errorf("history iterator exhausted")
	}
	m := it.mods[it.pos]
	it.pos++
	return m, nil
}

func (it *historyIterator) Close() error { return nil }

// Identity is a fake client identity.
type Identity struct {
	ID    string
	MSPID string
	Attrs map[string]string
}

func (i *Identity) GetID() (string, error)    { return i.ID, nil }
func (i *Identity) GetMSPID() (string, error) { return i.MSPID, nil }

func (i *Identity) GetAttributeValue(name string) (string, bool, error) {
	v, ok := i.Attrs[name]
	return v, ok, nil
}

func (i *Identity) AssertAttributeValue(name, value string) error {
	if v, ok := i.Attrs[name]; !ok || v != value {
		return fmt.Errorf("attribute %s is not %s", name, value)
	}
	return nil
}

func (i *Identity) GetX509Certificate() (*x509.Certificate, error) { return nil, nil }

// Env bundles a stub, an identity and a transaction context over both.
type Env struct {
	Stub     *Stub
	Identity *Identity
	Ctx      *contractapi.TransactionContext
	seq      int
}

func NewEnv() *Env {
	e := &Env{
		Stub:     NewStub(),
		Identity: &Identity{ID: "collector-01", MSPID: "Org1MSP", Attrs: map[string]string{}},
		Ctx:      new(contractapi.TransactionContext),
	}
	e.Ctx.SetStub(e.Stub)
	e.Ctx.SetClientIdentity(e.Identity)
	return e
}

// Begin starts the next transaction and returns its id.
func (e *Env) Begin() string {
	e.seq++
	txID := fmt.Sprintf("tx-%04d", e.seq)
	e.Stub.Begin(txID)
	return txID
}

// As switches the invoker identity. An empty role clears the role attribute.
func (e *Env) As(id, role string) {
	e.Identity.ID = id
	if role == "" {
		delete(e.Identity.Attrs, "role")
		return
	}
	e.Identity.Attrs["role"] = role
}

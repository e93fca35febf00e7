/*
SPDX-License-Identifier: Apache-2.0
*/

package sustainability

import (
	"strings"

	"herbtrace-chaincode/internal/ledger"
)

// RecordUsage adds quantity to the (species, zone, year) counter, the year
// taken from collectionDate, and returns the updated row. It is the only
// operation that mutates quota counters; it does not check the quota.
// CreateCollectionEvent calls it unless the collection policy is none.
func RecordUsage(l *ledger.Ledger, species, zone string, quantity float64, collectionDate string) (*ledger.QuotaUsage, error) {
	species = strings.TrimSpace(species)
	if species == "" {
		return nil, ledger.Errorf(ledger.CodeValidation, "quota usage needs a species")
	}
	if quantity <= 0 {
		return nil, ledger.Errorf(ledger.CodeValidation, "quota usage quantity must be positive, got %g", quantity)
	}
	date, err := ParseCollectionDate(collectionDate)
	if err != nil {
		return nil, err
	}
	tx, err := l.Tx()
	if err != nil {
		return nil, err
	}

	key := ledger.QuotaKey(species, zone, date.Year())
	usage := ledger.QuotaUsage{Species: species, Zone: zone, Year: date.Year()}
	if _, err := l.Get(key, &usage); err != nil {
		return nil, err
	}
	usage.Used += quantity
	usage.LastUpdated = tx.Timestamp()
	if err := l.Put(key, &usage); err != nil {
		return nil, err
	}
	return &usage, nil
}

// Usage returns the counter for (species, zone, year); an unseeded counter
// reads as zero.
func Usage(l *ledger.Ledger, species, zone string, year int) (*ledger.QuotaUsage, error) {
	usage := ledger.QuotaUsage{Species: species, Zone: zone, Year: year}
	if _, err := l.Get(ledger.QuotaKey(species, zone, year), &usage); err != nil {
		return nil, err
	}
	return &usage, nil
}

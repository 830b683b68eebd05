package metrics

import (
	"sort"

	"github.com/shopspring/decimal"

	"finledger-backend/internal/domain"
	apperrors "finledger-backend/pkg/errors"
)

// deltaKey addresses one metric row: a (wallet, period, category)
// combination. The granularity is implied by the period string length.
type deltaKey struct {
	WalletID   string
	Period     string
	CategoryID string
}

// delta is one additive (sum, count) contribution to a metric row.
type delta struct {
	Sum   decimal.Decimal
	Count int64
}

func (d delta) isZero() bool {
	return d.Count == 0 && d.Sum.IsZero()
}

// deltaSet accumulates deltas, coalescing contributions that land on the
// same key so the number of store updates stays proportional to distinct
// keys, not transaction count.
type deltaSet map[deltaKey]delta

func (s deltaSet) add(key deltaKey, d delta) {
	current := s[key]
	s[key] = delta{
		Sum:   current.Sum.Add(d.Sum),
		Count: current.Count + d.Count,
	}
}

// sortedKeys returns the set's keys in a stable order.
func (s deltaSet) sortedKeys() []deltaKey {
	keys := make([]deltaKey, 0, len(s))
	for key := range s {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.WalletID != b.WalletID {
			return a.WalletID < b.WalletID
		}
		if a.Period != b.Period {
			return a.Period < b.Period
		}
		return a.CategoryID < b.CategoryID
	})
	return keys
}

// entrySign is the net entry count contribution of a transaction value: +1
// for non-negative values, -1 for negative ones. The count is a net entry
// count, not a literal row count.
func entrySign(value decimal.Decimal) int64 {
	if value.Sign() < 0 {
		return -1
	}
	return 1
}

// periodsOf returns the transaction's three aggregation periods: the year
// and month come from the reference month, the day from the posting date.
func periodsOf(tx *domain.Transaction) ([]string, error) {
	if len(tx.ReferenceMonth) != 7 {
		return nil, apperrors.NewValidationError("transaction %s has malformed reference month %q", tx.TransactionID, tx.ReferenceMonth)
	}
	if len(tx.Date) != 10 {
		return nil, apperrors.NewValidationError("transaction %s has malformed date %q", tx.TransactionID, tx.Date)
	}
	return []string{tx.ReferenceMonth[:4], tx.ReferenceMonth, tx.Date}, nil
}

// accumulateCreated folds a newly created transaction into the set: its
// value and entry sign land on all three granularities of its category.
func (s deltaSet) accumulateCreated(tx *domain.Transaction) error {
	periods, err := periodsOf(tx)
	if err != nil {
		return err
	}
	for _, period := range periods {
		s.add(deltaKey{WalletID: tx.WalletID, Period: period, CategoryID: tx.CategoryID}, delta{
			Sum:   tx.Value,
			Count: entrySign(tx.Value),
		})
	}
	return nil
}

// accumulateUpdated folds a transaction update into the set. With the
// category unchanged, only the value difference lands on the existing rows.
// A recategorization is remove-then-add: a full negative delta on the old
// category's rows and a full positive delta on the new category's rows,
// because metric rows are keyed by category and an in-place rewrite is not
// representable.
func (s deltaSet) accumulateUpdated(old *domain.Transaction, patch domain.TransactionPatch) error {
	periods, err := periodsOf(old)
	if err != nil {
		return err
	}

	newValue := old.Value
	if patch.Value != nil {
		newValue = *patch.Value
	}
	newCategory := old.CategoryID
	if patch.CategoryID != nil {
		newCategory = *patch.CategoryID
	}

	if newCategory == old.CategoryID {
		difference := newValue.Sub(old.Value)
		for _, period := range periods {
			s.add(deltaKey{WalletID: old.WalletID, Period: period, CategoryID: old.CategoryID}, delta{
				Sum: difference,
			})
		}
		return nil
	}

	for _, period := range periods {
		s.add(deltaKey{WalletID: old.WalletID, Period: period, CategoryID: old.CategoryID}, delta{
			Sum:   old.Value.Neg(),
			Count: -entrySign(old.Value),
		})
		s.add(deltaKey{WalletID: old.WalletID, Period: period, CategoryID: newCategory}, delta{
			Sum:   newValue,
			Count: entrySign(newValue),
		})
	}
	return nil
}

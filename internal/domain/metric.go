package domain

import (
	"github.com/shopspring/decimal"
)

// Metric is one aggregation row: the running sum and net entry count of a
// (wallet, granularity, period, category) combination. Rows are created
// lazily on first delta and mutated only through additive updates, so
// concurrent writers converge without coordination. Only the full
// recalculation flow overwrites rows with absolute values.
type Metric struct {
	AccountID  string
	WalletID   string
	Date       string // 4-digit year, YYYY-MM month, or YYYY-MM-DD day
	CategoryID string
	Sum        decimal.Decimal
	Count      int64
	VersionID  int64
}

func (m *Metric) PartitionKey() string { return AccountPK(m.AccountID) }

// SortKey derives the granularity from the period length. The period is
// validated at construction time, so a malformed date cannot reach here
// through the public paths.
func (m *Metric) SortKey() string {
	granularity, err := GranularityForPeriod(m.Date)
	if err != nil {
		// Unreachable through validated constructors; keep the row
		// addressable rather than panic.
		granularity = GranularityDay
	}
	sk, _ := MetricSK(m.WalletID, granularity, m.Date, m.CategoryID)
	return sk
}

func (m *Metric) EntityType() string { return "Metric" }

func (m *Metric) Fields() []FieldDescriptor {
	return []FieldDescriptor{
		{Name: "AccountId", Kind: KindString, Value: &m.AccountID},
		{Name: "WalletId", Kind: KindString, Value: &m.WalletID},
		{Name: "Date", Kind: KindString, Value: &m.Date},
		{Name: "CategoryId", Kind: KindString, Value: &m.CategoryID},
		{Name: "Sum", Kind: KindNumber, Value: &m.Sum},
		{Name: "Count", Kind: KindInteger, Value: &m.Count},
		{Name: "VersionId", Kind: KindInteger, Value: &m.VersionID},
	}
}

package domain

import (
	"github.com/shopspring/decimal"
)

// Transaction is a single ledger entry. Date is the posting day
// (YYYY-MM-DD); ReferenceMonth (YYYY-MM) is the accounting period the entry
// aggregates into, which can differ from the posting month around statement
// boundaries. Value is signed: expenses are negative.
type Transaction struct {
	AccountID      string
	WalletID       string
	TransactionID  string
	Date           string
	ReferenceMonth string
	Description    string
	Value          decimal.Decimal
	CategoryID     string
	VersionID      int64
}

func (t *Transaction) PartitionKey() string { return AccountPK(t.AccountID) }

func (t *Transaction) SortKey() string {
	return TransactionSK(t.WalletID, t.Date, t.TransactionID)
}

func (t *Transaction) EntityType() string { return "Transaction" }

func (t *Transaction) Fields() []FieldDescriptor {
	return []FieldDescriptor{
		{Name: "AccountId", Kind: KindString, Value: &t.AccountID},
		{Name: "WalletId", Kind: KindString, Value: &t.WalletID},
		{Name: "TransactionId", Kind: KindString, Value: &t.TransactionID},
		{Name: "Date", Kind: KindString, Value: &t.Date},
		{Name: "ReferenceMonth", Kind: KindString, Value: &t.ReferenceMonth},
		{Name: "Description", Kind: KindString, Value: &t.Description},
		{Name: "Value", Kind: KindNumber, Value: &t.Value},
		{Name: "CategoryId", Kind: KindString, Value: &t.CategoryID},
		{Name: "VersionId", Kind: KindInteger, Value: &t.VersionID},
	}
}

// TransactionPatch carries the provided-fields-only shape of a transaction
// update. Nil means "unchanged".
type TransactionPatch struct {
	Description *string
	Value       *decimal.Decimal
	CategoryID  *string
}

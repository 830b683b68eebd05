package domain

// Wallet groups the transactions of one account sub-ledger (a bank account,
// a card, cash). Wallet ids are 4-digit zero-padded sequence numbers.
type Wallet struct {
	AccountID string
	WalletID  string
	Name      string
	Currency  string
	CreatedAt string
}

func (w *Wallet) PartitionKey() string { return AccountPK(w.AccountID) }
func (w *Wallet) SortKey() string      { return WalletSK(w.WalletID) }
func (w *Wallet) EntityType() string   { return "Wallet" }

func (w *Wallet) Fields() []FieldDescriptor {
	return []FieldDescriptor{
		{Name: "AccountId", Kind: KindString, Value: &w.AccountID},
		{Name: "WalletId", Kind: KindString, Value: &w.WalletID},
		{Name: "Name", Kind: KindString, Value: &w.Name},
		{Name: "Currency", Kind: KindString, Value: &w.Currency},
		{Name: "CreatedAt", Kind: KindString, Value: &w.CreatedAt},
	}
}

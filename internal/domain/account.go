package domain

// Account is the top-level aggregate. It lives under the owning user's
// partition so all of a user's accounts can be listed with one prefix query.
type Account struct {
	UserID    string
	AccountID string
	Name      string
	CreatedAt string
}

func (a *Account) PartitionKey() string { return UserPK(a.UserID) }
func (a *Account) SortKey() string      { return AccountSK(a.AccountID) }
func (a *Account) EntityType() string   { return "Account" }

func (a *Account) Fields() []FieldDescriptor {
	return []FieldDescriptor{
		{Name: "UserId", Kind: KindString, Value: &a.UserID},
		{Name: "AccountId", Kind: KindString, Value: &a.AccountID},
		{Name: "Name", Kind: KindString, Value: &a.Name},
		{Name: "CreatedAt", Kind: KindString, Value: &a.CreatedAt},
	}
}

// AccountMetadata is the single row per account holding the monotonically
// increasing version counter. It is mutated only by the version ledger, via
// an atomic additive update; the row is created at 0 so the first committed
// change-set gets version 1, and the counter never decreases.
type AccountMetadata struct {
	AccountID string
	Version   int64
}

func (m *AccountMetadata) PartitionKey() string { return AccountPK(m.AccountID) }
func (m *AccountMetadata) SortKey() string      { return MetadataSK }
func (m *AccountMetadata) EntityType() string   { return "AccountMetadata" }

func (m *AccountMetadata) Fields() []FieldDescriptor {
	return []FieldDescriptor{
		{Name: "AccountId", Kind: KindString, Value: &m.AccountID},
		{Name: "Version", Kind: KindInteger, Value: &m.Version},
	}
}

package domain

// Operation tags how a row changed inside a change-set.
type Operation string

const (
	OperationAdd    Operation = "Add"
	OperationUpdate Operation = "Update"
	OperationDelete Operation = "Delete"
)

// ItemChange records one changed row: its entity type, its composite key,
// and what happened to it.
type ItemChange struct {
	EntityType   string    `json:"entityType"`
	PartitionKey string    `json:"partitionKey"`
	SortKey      string    `json:"sortKey"`
	Operation    Operation `json:"operation"`
}

// NewItemChange builds the ItemChange for an entity and an operation.
func NewItemChange(entity Keyed, op Operation) ItemChange {
	return ItemChange{
		EntityType:   entity.EntityType(),
		PartitionKey: entity.PartitionKey(),
		SortKey:      entity.SortKey(),
		Operation:    op,
	}
}

// ChangeSet is the append-only ledger entry recording which rows changed in
// one logical write batch, keyed by the account version the batch produced.
// Change-sets are written once and never updated or deleted.
type ChangeSet struct {
	AccountID string
	Version   int64
	Changes   []ItemChange
}

func (c *ChangeSet) PartitionKey() string { return AccountPK(c.AccountID) }
func (c *ChangeSet) SortKey() string      { return VersionSK(c.Version) }
func (c *ChangeSet) EntityType() string   { return "ChangeSet" }

func (c *ChangeSet) Fields() []FieldDescriptor {
	return []FieldDescriptor{
		{Name: "AccountId", Kind: KindString, Value: &c.AccountID},
		{Name: "Version", Kind: KindInteger, Value: &c.Version},
		{Name: "Changes", Kind: KindJSON, Value: &c.Changes},
	}
}

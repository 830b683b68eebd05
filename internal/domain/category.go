package domain

// Category labels transactions for aggregation. Category ids are 2-digit
// zero-padded sequence numbers.
type Category struct {
	AccountID  string
	CategoryID string
	Name       string
	CreatedAt  string
}

func (c *Category) PartitionKey() string { return AccountPK(c.AccountID) }
func (c *Category) SortKey() string      { return CategorySK(c.CategoryID) }
func (c *Category) EntityType() string   { return "Category" }

func (c *Category) Fields() []FieldDescriptor {
	return []FieldDescriptor{
		{Name: "AccountId", Kind: KindString, Value: &c.AccountID},
		{Name: "CategoryId", Kind: KindString, Value: &c.CategoryID},
		{Name: "Name", Kind: KindString, Value: &c.Name},
		{Name: "CreatedAt", Kind: KindString, Value: &c.CreatedAt},
	}
}

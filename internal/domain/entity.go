// Package domain holds the persisted financial entities and the composite-key
// scheme they share. Every entity lives in one DynamoDB table and is
// identified by a (partition key, sort key) pair with an entity-type prefix
// on the sort key, so heterogeneous entities can share a partition and still
// be range-queried by prefix.
package domain

// FieldKind identifies how a field is encoded on the wire.
type FieldKind int

const (
	// KindString encodes as a DynamoDB string attribute.
	KindString FieldKind = iota
	// KindNumber encodes a decimal value as a DynamoDB number attribute.
	KindNumber
	// KindInteger encodes an integer as a DynamoDB number attribute.
	KindInteger
	// KindJSON encodes a structured value as a JSON string attribute.
	KindJSON
)

// FieldDescriptor declares one persisted field of an entity: its wire name,
// its encoding kind, and a pointer to the backing Go field. The codec walks
// these descriptors in both directions.
type FieldDescriptor struct {
	Name  string
	Kind  FieldKind
	Value interface{}
}

// Keyed is the contract every persisted entity fulfills. Implementations
// return their composite key, a type tag, and the descriptors of their
// persisted fields. Fields must return descriptors bound to the receiver so
// that unmarshaling can populate the entity in place.
type Keyed interface {
	PartitionKey() string
	SortKey() string
	EntityType() string
	Fields() []FieldDescriptor
}

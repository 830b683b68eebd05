package storage

import (
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// QueryBuilder starts a read over one partition. Exactly one sort-key
// predicate can be chosen; each predicate method consumes the builder and
// returns a *Query that offers no further sort-key methods, so a second
// predicate is unrepresentable rather than last-one-wins.
type QueryBuilder struct {
	pk string
}

// QueryFor starts a query over the given partition key.
func QueryFor(pk string) *QueryBuilder {
	return &QueryBuilder{pk: pk}
}

func (b *QueryBuilder) keyEquals() expression.KeyConditionBuilder {
	return expression.Key(AttrPK).Equal(expression.Value(b.pk))
}

// All reads the whole partition, with no sort-key predicate.
func (b *QueryBuilder) All() *Query {
	return &Query{key: b.keyEquals()}
}

// SortKeyEquals restricts the read to one exact sort key.
func (b *QueryBuilder) SortKeyEquals(sk string) *Query {
	return &Query{key: b.keyEquals().And(expression.Key(AttrSK).Equal(expression.Value(sk)))}
}

// SortKeyBeginsWith restricts the read to sort keys sharing a prefix.
func (b *QueryBuilder) SortKeyBeginsWith(prefix string) *Query {
	return &Query{key: b.keyEquals().And(expression.Key(AttrSK).BeginsWith(prefix))}
}

// SortKeyBetween restricts the read to sort keys in [start, end].
func (b *QueryBuilder) SortKeyBetween(start, end string) *Query {
	return &Query{key: b.keyEquals().And(
		expression.Key(AttrSK).Between(expression.Value(start), expression.Value(end)))}
}

// SortKeyAtLeast restricts the read to sort keys >= sk.
func (b *QueryBuilder) SortKeyAtLeast(sk string) *Query {
	return &Query{key: b.keyEquals().And(expression.Key(AttrSK).GreaterThanEqual(expression.Value(sk)))}
}

// SortKeyAtMost restricts the read to sort keys <= sk.
func (b *QueryBuilder) SortKeyAtMost(sk string) *Query {
	return &Query{key: b.keyEquals().And(expression.Key(AttrSK).LessThanEqual(expression.Value(sk)))}
}

// Query is a composed read: a fixed key condition plus optional post-read
// attribute filters, projection and limit. Attribute names are always
// parameterized through the expression builder, never interpolated, so
// reserved-word collisions cannot occur.
type Query struct {
	key         expression.KeyConditionBuilder
	filter      *expression.ConditionBuilder
	projection  []string
	limit       *int32
	scanForward *bool
	countOnly   bool
}

// WithFilter adds an attribute predicate, AND-combined with any existing one.
func (q *Query) WithFilter(filter expression.ConditionBuilder) *Query {
	if q.filter == nil {
		q.filter = &filter
	} else {
		combined := q.filter.And(filter)
		q.filter = &combined
	}
	return q
}

// WithAttributeBetween filters on attribute values in [start, end].
func (q *Query) WithAttributeBetween(name string, start, end interface{}) *Query {
	return q.WithFilter(expression.Name(name).Between(expression.Value(start), expression.Value(end)))
}

// WithAttributeAtLeast filters on attribute values >= value.
func (q *Query) WithAttributeAtLeast(name string, value interface{}) *Query {
	return q.WithFilter(expression.Name(name).GreaterThanEqual(expression.Value(value)))
}

// WithAttributeAtMost filters on attribute values <= value.
func (q *Query) WithAttributeAtMost(name string, value interface{}) *Query {
	return q.WithFilter(expression.Name(name).LessThanEqual(expression.Value(value)))
}

// WithProjection restricts the attributes returned.
func (q *Query) WithProjection(fields ...string) *Query {
	q.projection = fields
	return q
}

// WithLimit caps the number of items read per page.
func (q *Query) WithLimit(limit int32) *Query {
	q.limit = &limit
	return q
}

// WithScanDirection sets the scan direction (true = ascending sort keys).
func (q *Query) WithScanDirection(forward bool) *Query {
	q.scanForward = &forward
	return q
}

// counting marks the query as a COUNT read returning no attributes.
func (q *Query) counting() *Query {
	q.countOnly = true
	return q
}

// Build constructs the QueryInput for the given table.
func (q *Query) Build(tableName string) (*dynamodb.QueryInput, error) {
	builder := expression.NewBuilder().WithKeyCondition(q.key)

	if q.filter != nil {
		builder = builder.WithFilter(*q.filter)
	}

	if len(q.projection) > 0 {
		names := make([]expression.NameBuilder, 0, len(q.projection))
		for _, field := range q.projection {
			names = append(names, expression.Name(field))
		}
		builder = builder.WithProjection(expression.ProjectionBuilder{}.AddNames(names...))
	}

	expr, err := builder.Build()
	if err != nil {
		return nil, err
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(tableName),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}

	if q.filter != nil {
		input.FilterExpression = expr.Filter()
	}
	if len(q.projection) > 0 {
		input.ProjectionExpression = expr.Projection()
	}
	if q.limit != nil {
		input.Limit = q.limit
	}
	if q.scanForward != nil {
		input.ScanIndexForward = q.scanForward
	}
	if q.countOnly {
		input.Select = types.SelectCount
	}

	return input, nil
}

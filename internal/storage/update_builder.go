package storage

import (
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shopspring/decimal"

	apperrors "finledger-backend/pkg/errors"
)

// numberAttr marshals a decimal string as a DynamoDB number attribute. The
// default attributevalue marshaling would turn decimal.Decimal into a map.
type numberAttr struct {
	value string
}

func (n numberAttr) MarshalDynamoDBAttributeValue() (types.AttributeValue, error) {
	return &types.AttributeValueMemberN{Value: n.value}, nil
}

// Number wraps a decimal for use in expression values, preserving its exact
// decimal-string wire encoding.
func Number(d decimal.Decimal) interface{} {
	return numberAttr{value: d.String()}
}

// Update composes a conditional update of one row: SET and additive ADD
// clauses plus optional compare-and-set guards on previous values. Every
// built update additionally increments the row's VersionId, giving per-row
// optimistic versioning independent of the account-level version counter.
type Update struct {
	pk, sk    string
	update    expression.UpdateBuilder
	condition *expression.ConditionBuilder
	hasClause bool
}

// UpdateFor starts an update of the row with the given composite key.
func UpdateFor(pk, sk string) *Update {
	return &Update{pk: pk, sk: sk}
}

// Key returns the composite key the update targets.
func (u *Update) Key() (pk, sk string) {
	return u.pk, u.sk
}

// Set emits an unconditional SET clause for the attribute.
func (u *Update) Set(name string, value interface{}) *Update {
	u.update = u.update.Set(expression.Name(name), expression.Value(value))
	u.hasClause = true
	return u
}

// SetChecked emits a SET clause guarded by a compare-and-set condition: the
// attribute's current value must still equal previous or the whole update is
// rejected by the store. This is the only concurrency-control primitive for
// multi-writer attribute updates.
func (u *Update) SetChecked(name string, value, previous interface{}) *Update {
	u.Set(name, value)
	return u.withCondition(expression.Name(name).Equal(expression.Value(previous)))
}

// Add emits an additive ADD clause. Additive updates are commutative, so
// concurrent writers of counters and aggregates converge without guards.
func (u *Update) Add(name string, delta interface{}) *Update {
	u.update = u.update.Add(expression.Name(name), expression.Value(delta))
	u.hasClause = true
	return u
}

// AddNumber emits an additive ADD clause for a decimal delta.
func (u *Update) AddNumber(name string, delta decimal.Decimal) *Update {
	return u.Add(name, Number(delta))
}

// RequireExists guards the update on the row already existing.
func (u *Update) RequireExists() *Update {
	return u.withCondition(expression.AttributeExists(expression.Name(AttrPK)))
}

func (u *Update) withCondition(cond expression.ConditionBuilder) *Update {
	if u.condition == nil {
		u.condition = &cond
	} else {
		combined := u.condition.And(cond)
		u.condition = &combined
	}
	return u
}

// Build constructs the UpdateItemInput for the given table. An update with
// no SET or ADD clause is a validation error: there is nothing to apply.
func (u *Update) Build(tableName string) (*dynamodb.UpdateItemInput, error) {
	if !u.hasClause {
		return nil, apperrors.NewValidationError("update of %s/%s changes no attributes", u.pk, u.sk)
	}

	// Per-row optimistic version, bumped on every update.
	update := u.update.Add(expression.Name(AttrVersionID), expression.Value(1))

	builder := expression.NewBuilder().WithUpdate(update)
	if u.condition != nil {
		builder = builder.WithCondition(*u.condition)
	}

	expr, err := builder.Build()
	if err != nil {
		return nil, err
	}

	input := &dynamodb.UpdateItemInput{
		TableName: aws.String(tableName),
		Key: map[string]types.AttributeValue{
			AttrPK: &types.AttributeValueMemberS{Value: u.pk},
			AttrSK: &types.AttributeValueMemberS{Value: u.sk},
		},
		UpdateExpression:          expr.Update(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}
	if u.condition != nil {
		input.ConditionExpression = expr.Condition()
	}

	return input, nil
}

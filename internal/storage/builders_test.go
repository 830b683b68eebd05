package storage

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "finledger-backend/pkg/errors"
)

func attributeNames(names map[string]string) []string {
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, name)
	}
	return out
}

func attributeStrings(values map[string]types.AttributeValue) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		if member, ok := value.(*types.AttributeValueMemberS); ok {
			out = append(out, member.Value)
		}
	}
	return out
}

func TestQueryBuilder_PrefixRead(t *testing.T) {
	input, err := QueryFor("ACCOUNT#a1").SortKeyBeginsWith("TX#0001").Build("ledger")
	require.NoError(t, err)

	assert.Equal(t, "ledger", aws.ToString(input.TableName))
	assert.Contains(t, aws.ToString(input.KeyConditionExpression), "begins_with")
	assert.ElementsMatch(t, []string{AttrPK, AttrSK}, attributeNames(input.ExpressionAttributeNames))
	assert.ElementsMatch(t, []string{"ACCOUNT#a1", "TX#0001"}, attributeStrings(input.ExpressionAttributeValues))
	assert.Nil(t, input.FilterExpression)
}

func TestQueryBuilder_WholePartition(t *testing.T) {
	input, err := QueryFor("ACCOUNT#a1").All().Build("ledger")
	require.NoError(t, err)

	assert.NotContains(t, aws.ToString(input.KeyConditionExpression), "begins_with")
	assert.ElementsMatch(t, []string{AttrPK}, attributeNames(input.ExpressionAttributeNames))
}

func TestQueryBuilder_BetweenRead(t *testing.T) {
	input, err := QueryFor("ACCOUNT#a1").
		SortKeyBetween("TX#0001#2020-01-01", "TX#0001#2020-12-31").
		Build("ledger")
	require.NoError(t, err)

	assert.Contains(t, aws.ToString(input.KeyConditionExpression), "BETWEEN")
}

func TestQueryBuilder_AttributeFilterIsParameterized(t *testing.T) {
	input, err := QueryFor("ACCOUNT#a1").
		SortKeyBeginsWith("TX#").
		WithAttributeBetween("Date", "2020-01-01", "2020-06-30").
		Build("ledger")
	require.NoError(t, err)

	require.NotNil(t, input.FilterExpression)
	// The attribute name goes through the name map, never into the
	// expression text, so reserved words cannot collide.
	assert.NotContains(t, aws.ToString(input.FilterExpression), "Date")
	assert.Contains(t, attributeNames(input.ExpressionAttributeNames), "Date")
}

func TestQueryBuilder_Projection(t *testing.T) {
	input, err := QueryFor("ACCOUNT#a1").
		SortKeyBeginsWith("METRIC#").
		WithProjection(AttrPK, AttrSK).
		Build("ledger")
	require.NoError(t, err)

	assert.NotNil(t, input.ProjectionExpression)
}

func TestUpdateBuilder_AlwaysBumpsRowVersion(t *testing.T) {
	input, err := UpdateFor("ACCOUNT#a1", "WALLET#0001").
		Set("Name", "Renamed").
		Build("ledger")
	require.NoError(t, err)

	expr := aws.ToString(input.UpdateExpression)
	assert.Contains(t, expr, "SET")
	assert.Contains(t, expr, "ADD")
	assert.Contains(t, attributeNames(input.ExpressionAttributeNames), AttrVersionID)
	assert.Nil(t, input.ConditionExpression)
}

func TestUpdateBuilder_SetCheckedGuardsPreviousValue(t *testing.T) {
	input, err := UpdateFor("ACCOUNT#a1", "TX#0001#2020-02-01#tx1").
		SetChecked("CategoryId", "02", "01").
		Build("ledger")
	require.NoError(t, err)

	require.NotNil(t, input.ConditionExpression)
	assert.ElementsMatch(t,
		[]string{"02", "01", "ACCOUNT#a1", "TX#0001#2020-02-01#tx1"},
		append(attributeStrings(input.ExpressionAttributeValues),
			attributeStrings(input.Key)...),
	)
}

func TestUpdateBuilder_RequireExists(t *testing.T) {
	input, err := UpdateFor("ACCOUNT#a1", "METADATA").
		Add("Version", 1).
		RequireExists().
		Build("ledger")
	require.NoError(t, err)

	require.NotNil(t, input.ConditionExpression)
	assert.Contains(t, aws.ToString(input.ConditionExpression), "attribute_exists")
}

func TestUpdateBuilder_EmptyUpdateIsRejected(t *testing.T) {
	_, err := UpdateFor("ACCOUNT#a1", "WALLET#0001").Build("ledger")
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
}

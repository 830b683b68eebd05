package storage

import (
	"context"
	"errors"

	"finledger-backend/internal/domain"
	apperrors "finledger-backend/pkg/errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// batchLimit is DynamoDB's native batch size, also used as the fan-out bound
// for concurrent single-item writes.
const batchLimit = 25

// DynamoAPI is the subset of the DynamoDB client the store uses. Tests
// substitute a fake.
type DynamoAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

// Key is a raw composite key.
type Key struct {
	PK string `dynamodbav:"PK"`
	SK string `dynamodbav:"SK"`
}

// KeyOf returns the composite key of an entity.
func KeyOf(entity domain.Keyed) Key {
	return Key{PK: entity.PartitionKey(), SK: entity.SortKey()}
}

// WriteResult captures one item's outcome inside a batch. Partial failure is
// normal, not exceptional: callers receive a fully populated result slice and
// decide what to do.
type WriteResult struct {
	Entity domain.Keyed
	Err    error
}

// Succeeded reports whether the write was applied.
func (r WriteResult) Succeeded() bool { return r.Err == nil }

// UpdateResult captures one conditional update's outcome inside a batch.
type UpdateResult struct {
	Update *Update
	Err    error
}

// Succeeded reports whether the update was applied.
func (r UpdateResult) Succeeded() bool { return r.Err == nil }

// Client executes single-item and batched operations against the shared
// table.
type Client struct {
	db     DynamoAPI
	table  string
	codec  *Codec
	logger *zap.Logger
}

// NewClient creates a store client for the given table.
func NewClient(db DynamoAPI, table string, logger *zap.Logger) *Client {
	return &Client{
		db:     db,
		table:  table,
		codec:  NewCodec(logger),
		logger: logger,
	}
}

// Codec exposes the client's attribute codec.
func (c *Client) Codec() *Codec { return c.codec }

// PutItem writes an entity. With overwrite false, a "composite key must not
// already exist" guard is attached, which is how create operations guarantee
// at-most-once creation of an identity.
func (c *Client) PutItem(ctx context.Context, entity domain.Keyed, overwrite bool) error {
	item, err := c.codec.Marshal(entity)
	if err != nil {
		return err
	}

	input := &dynamodb.PutItemInput{
		TableName: aws.String(c.table),
		Item:      item,
	}
	if !overwrite {
		input.ConditionExpression = aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)")
	}

	if _, err := c.db.PutItem(ctx, input); err != nil {
		return c.classify(err, "PutItem", entity.PartitionKey(), entity.SortKey())
	}
	return nil
}

// PutItems writes a batch of entities with bounded-parallelism fan-out: up
// to batchLimit workers, items assigned round-robin, each worker processing
// its slice sequentially. The returned slice preserves each item's original
// index regardless of completion order, and one item's failure never aborts
// the rest.
func (c *Client) PutItems(ctx context.Context, entities []domain.Keyed, overwrite bool) []WriteResult {
	results := make([]WriteResult, len(entities))
	if len(entities) == 0 {
		return results
	}

	workers := len(entities)
	if workers > batchLimit {
		workers = batchLimit
	}

	var g errgroup.Group
	for w := 0; w < workers; w++ {
		worker := w
		g.Go(func() error {
			for i := worker; i < len(entities); i += workers {
				results[i] = WriteResult{
					Entity: entities[i],
					Err:    c.PutItem(ctx, entities[i], overwrite),
				}
			}
			return nil
		})
	}
	// Workers record their outcomes per item and never return an error.
	_ = g.Wait()

	return results
}

// Query executes a composed read, following pagination to exhaustion.
func (c *Client) Query(ctx context.Context, query *Query) ([]map[string]types.AttributeValue, error) {
	input, err := query.Build(c.table)
	if err != nil {
		return nil, err
	}

	var items []map[string]types.AttributeValue
	for {
		out, err := c.db.Query(ctx, input)
		if err != nil {
			return nil, c.classify(err, "Query", aws.ToString(input.TableName), "")
		}
		items = append(items, out.Items...)

		if out.LastEvaluatedKey == nil {
			break
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
	return items, nil
}

// QueryAll is the simple read: the whole partition when sk is empty, or the
// single exact sort key otherwise.
func (c *Client) QueryAll(ctx context.Context, pk, sk string) ([]map[string]types.AttributeValue, error) {
	if sk == "" {
		return c.Query(ctx, QueryFor(pk).All())
	}
	return c.Query(ctx, QueryFor(pk).SortKeyEquals(sk))
}

// GetNext counts the rows under a sort-key prefix and returns count+1, used
// as a sequence allocator for human-readable suffix ids. Two concurrent
// creators targeting the same prefix can read the same count and allocate
// the same suffix; the conditional create downstream turns that collision
// into a ConditionFailed error instead of a silent overwrite.
func (c *Client) GetNext(ctx context.Context, pk, skPrefix string) (int64, error) {
	input, err := QueryFor(pk).SortKeyBeginsWith(skPrefix).counting().Build(c.table)
	if err != nil {
		return 0, err
	}

	var count int64
	for {
		out, err := c.db.Query(ctx, input)
		if err != nil {
			return 0, c.classify(err, "GetNext", pk, skPrefix)
		}
		count += int64(out.Count)

		if out.LastEvaluatedKey == nil {
			break
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
	return count + 1, nil
}

// UpdateItem applies one conditional update.
func (c *Client) UpdateItem(ctx context.Context, update *Update) error {
	_, err := c.applyUpdate(ctx, update, types.ReturnValueNone)
	return err
}

// UpdateItemReturning applies one conditional update and returns the updated
// attributes' new values.
func (c *Client) UpdateItemReturning(ctx context.Context, update *Update) (map[string]types.AttributeValue, error) {
	return c.applyUpdate(ctx, update, types.ReturnValueUpdatedNew)
}

func (c *Client) applyUpdate(ctx context.Context, update *Update, returnValues types.ReturnValue) (map[string]types.AttributeValue, error) {
	input, err := update.Build(c.table)
	if err != nil {
		return nil, err
	}
	input.ReturnValues = returnValues

	pk, sk := update.Key()
	out, err := c.db.UpdateItem(ctx, input)
	if err != nil {
		return nil, c.classify(err, "UpdateItem", pk, sk)
	}
	return out.Attributes, nil
}

// UpdateItems applies a batch of conditional updates with the same fan-out
// and per-item result capture as PutItems. The single-update case skips the
// fan-out entirely.
func (c *Client) UpdateItems(ctx context.Context, updates []*Update) []UpdateResult {
	results := make([]UpdateResult, len(updates))
	if len(updates) == 0 {
		return results
	}
	if len(updates) == 1 {
		results[0] = UpdateResult{Update: updates[0], Err: c.UpdateItem(ctx, updates[0])}
		return results
	}

	workers := len(updates)
	if workers > batchLimit {
		workers = batchLimit
	}

	var g errgroup.Group
	for w := 0; w < workers; w++ {
		worker := w
		g.Go(func() error {
			for i := worker; i < len(updates); i += workers {
				results[i] = UpdateResult{
					Update: updates[i],
					Err:    c.UpdateItem(ctx, updates[i]),
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// DeleteAll deletes the rows with the given raw keys, in chunks sized to the
// store's native batch-delete limit.
func (c *Client) DeleteAll(ctx context.Context, keys []Key) error {
	for start := 0; start < len(keys); start += batchLimit {
		end := start + batchLimit
		if end > len(keys) {
			end = len(keys)
		}

		requests := make([]types.WriteRequest, 0, end-start)
		for _, key := range keys[start:end] {
			marshaled, err := attributevalue.MarshalMap(key)
			if err != nil {
				return apperrors.NewInternalError("failed to marshal delete key", err)
			}
			requests = append(requests, types.WriteRequest{
				DeleteRequest: &types.DeleteRequest{Key: marshaled},
			})
		}

		input := &dynamodb.BatchWriteItemInput{
			RequestItems: map[string][]types.WriteRequest{c.table: requests},
		}
		out, err := c.db.BatchWriteItem(ctx, input)
		if err != nil {
			return c.classify(err, "DeleteAll", c.table, "")
		}
		// Unprocessed deletes are retried once immediately; sustained
		// throttling surfaces as an error.
		if unprocessed := out.UnprocessedItems[c.table]; len(unprocessed) > 0 {
			retry := &dynamodb.BatchWriteItemInput{
				RequestItems: map[string][]types.WriteRequest{c.table: unprocessed},
			}
			retryOut, err := c.db.BatchWriteItem(ctx, retry)
			if err != nil {
				return c.classify(err, "DeleteAll", c.table, "")
			}
			if len(retryOut.UnprocessedItems[c.table]) > 0 {
				return apperrors.NewInternalError("batch delete left unprocessed keys", nil)
			}
		}
	}
	return nil
}

// GetItem point-reads a row by composite key, optionally restricted to a
// projection. A missing row is a NotFound error.
func (c *Client) GetItem(ctx context.Context, pk, sk string, projection ...string) (map[string]types.AttributeValue, error) {
	input := &dynamodb.GetItemInput{
		TableName: aws.String(c.table),
		Key: map[string]types.AttributeValue{
			AttrPK: &types.AttributeValueMemberS{Value: pk},
			AttrSK: &types.AttributeValueMemberS{Value: sk},
		},
	}

	if len(projection) > 0 {
		names := make([]expression.NameBuilder, 0, len(projection))
		for _, field := range projection {
			names = append(names, expression.Name(field))
		}
		expr, err := expression.NewBuilder().
			WithProjection(expression.ProjectionBuilder{}.AddNames(names...)).
			Build()
		if err != nil {
			return nil, err
		}
		input.ProjectionExpression = expr.Projection()
		input.ExpressionAttributeNames = expr.Names()
	}

	out, err := c.db.GetItem(ctx, input)
	if err != nil {
		return nil, c.classify(err, "GetItem", pk, sk)
	}
	if out.Item == nil {
		return nil, apperrors.NewNotFoundError("item %s/%s not found", pk, sk)
	}
	return out.Item, nil
}

// Load point-reads the entity's own key and unmarshals the item into it in
// place, returning whether the row was found.
func (c *Client) Load(ctx context.Context, entity domain.Keyed, projection ...string) (bool, error) {
	item, err := c.GetItem(ctx, entity.PartitionKey(), entity.SortKey(), projection...)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	c.codec.Unmarshal(item, entity)
	return true, nil
}

// classify maps store errors onto the application taxonomy. Conditional
// check failures are surfaced as-is and never retried here.
func (c *Client) classify(err error, operation, pk, sk string) error {
	var conditionFailed *types.ConditionalCheckFailedException
	if errors.As(err, &conditionFailed) {
		return apperrors.NewConditionFailedError("precondition failed on " + pk + "/" + sk).WithCause(err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() == "ConditionalCheckFailedException" {
		return apperrors.NewConditionFailedError("precondition failed on " + pk + "/" + sk).WithCause(err)
	}

	c.logger.Error("DynamoDB operation failed",
		zap.String("operation", operation),
		zap.String("pk", pk),
		zap.String("sk", sk),
		zap.Error(err),
	)
	return apperrors.NewInternalError(operation+" failed", err)
}

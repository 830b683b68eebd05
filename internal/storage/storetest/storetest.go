// Package storetest provides an in-memory fake of the DynamoDB API subset
// the storage client uses. It honors composite keys, conditional writes,
// key-condition queries and additive updates, which is enough to run the
// storage, ledger and metrics layers end to end in tests.
package storetest

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shopspring/decimal"
)

type item = map[string]types.AttributeValue

// FakeDynamo is a mutex-protected in-memory table keyed by PK/SK.
type FakeDynamo struct {
	mu    sync.Mutex
	items map[string]item

	// FailPut, when set, makes PutItem fail for the given sort keys.
	FailPut map[string]error
}

// NewFakeDynamo creates an empty fake table.
func NewFakeDynamo() *FakeDynamo {
	return &FakeDynamo{
		items:   make(map[string]item),
		FailPut: make(map[string]error),
	}
}

func compositeKey(it item) string {
	pk, _ := it["PK"].(*types.AttributeValueMemberS)
	sk, _ := it["SK"].(*types.AttributeValueMemberS)
	return pk.Value + "\x00" + sk.Value
}

func cloneItem(it item) item {
	out := make(item, len(it))
	for k, v := range it {
		out[k] = v
	}
	return out
}

// Len returns the number of stored rows.
func (f *FakeDynamo) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items)
}

// Item returns a copy of the stored row with the given key, or nil.
func (f *FakeDynamo) Item(pk, sk string) item {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.items[pk+"\x00"+sk]
	if !ok {
		return nil
	}
	return cloneItem(stored)
}

// PutItem stores an item, honoring attribute_not_exists conditions.
func (f *FakeDynamo) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := compositeKey(params.Item)
	if sk, ok := params.Item["SK"].(*types.AttributeValueMemberS); ok {
		if err := f.FailPut[sk.Value]; err != nil {
			return nil, err
		}
	}

	if params.ConditionExpression != nil &&
		strings.Contains(*params.ConditionExpression, "attribute_not_exists") {
		if _, exists := f.items[key]; exists {
			return nil, &types.ConditionalCheckFailedException{}
		}
	}

	f.items[key] = cloneItem(params.Item)
	return &dynamodb.PutItemOutput{}, nil
}

// GetItem returns the stored row, ignoring projections.
func (f *FakeDynamo) GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	stored, ok := f.items[compositeKey(params.Key)]
	if !ok {
		return &dynamodb.GetItemOutput{}, nil
	}
	return &dynamodb.GetItemOutput{Item: cloneItem(stored)}, nil
}

var (
	eqRe      = regexp.MustCompile(`(#\w+|\bPK\b|\bSK\b)\s*=\s*(:\w+)`)
	beginsRe  = regexp.MustCompile(`begins_with\s*\(\s*(#\w+|\bSK\b)\s*,\s*(:\w+)\s*\)`)
	betweenRe = regexp.MustCompile(`(#\w+|\bSK\b)\s+BETWEEN\s+(:\w+)\s+AND\s+(:\w+)`)
	geRe      = regexp.MustCompile(`(#\w+|\bSK\b)\s*>=\s*(:\w+)`)
	leRe      = regexp.MustCompile(`(#\w+|\bSK\b)\s*<=\s*(:\w+)`)
	existsRe  = regexp.MustCompile(`attribute_exists\s*\(\s*(#?\w+)\s*\)`)
	setRe     = regexp.MustCompile(`(#\w+)\s*=\s*(:\w+)`)
	addRe     = regexp.MustCompile(`(#\w+)\s+(:\w+)`)
)

func resolveName(name string, names map[string]string) string {
	if strings.HasPrefix(name, "#") {
		return names[name]
	}
	return name
}

func stringValue(ref string, values map[string]types.AttributeValue) string {
	if member, ok := values[ref].(*types.AttributeValueMemberS); ok {
		return member.Value
	}
	return ""
}

// Query evaluates the key condition's PK equality and optional SK predicate.
// Results come back sorted by SK ascending, unpaginated.
func (f *FakeDynamo) Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	expr := *params.KeyConditionExpression
	names := params.ExpressionAttributeNames
	values := params.ExpressionAttributeValues

	var pkWant string
	skPred := func(string) bool { return true }

	for _, match := range eqRe.FindAllStringSubmatch(expr, -1) {
		attr := resolveName(match[1], names)
		want := stringValue(match[2], values)
		switch attr {
		case "PK":
			pkWant = want
		case "SK":
			skPred = func(sk string) bool { return sk == want }
		}
	}
	if match := beginsRe.FindStringSubmatch(expr); match != nil {
		prefix := stringValue(match[2], values)
		skPred = func(sk string) bool { return strings.HasPrefix(sk, prefix) }
	}
	if match := betweenRe.FindStringSubmatch(expr); match != nil {
		lo := stringValue(match[2], values)
		hi := stringValue(match[3], values)
		skPred = func(sk string) bool { return sk >= lo && sk <= hi }
	}
	if match := geRe.FindStringSubmatch(expr); match != nil {
		bound := stringValue(match[2], values)
		skPred = func(sk string) bool { return sk >= bound }
	}
	if match := leRe.FindStringSubmatch(expr); match != nil {
		bound := stringValue(match[2], values)
		skPred = func(sk string) bool { return sk <= bound }
	}

	var matched []item
	for _, stored := range f.items {
		pk, _ := stored["PK"].(*types.AttributeValueMemberS)
		sk, _ := stored["SK"].(*types.AttributeValueMemberS)
		if pk.Value == pkWant && skPred(sk.Value) {
			matched = append(matched, cloneItem(stored))
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		a, _ := matched[i]["SK"].(*types.AttributeValueMemberS)
		b, _ := matched[j]["SK"].(*types.AttributeValueMemberS)
		return a.Value < b.Value
	})

	out := &dynamodb.QueryOutput{Count: int32(len(matched))}
	if params.Select != types.SelectCount {
		out.Items = matched
	}
	return out, nil
}

// UpdateItem evaluates equality and attribute_exists conditions, applies SET
// and additive ADD clauses, and creates the row if absent (DynamoDB upsert
// semantics).
func (f *FakeDynamo) UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := compositeKey(params.Key)
	stored, exists := f.items[key]
	names := params.ExpressionAttributeNames
	values := params.ExpressionAttributeValues

	if params.ConditionExpression != nil {
		cond := *params.ConditionExpression
		for _, match := range existsRe.FindAllStringSubmatch(cond, -1) {
			attr := resolveName(match[1], names)
			if !exists {
				return nil, &types.ConditionalCheckFailedException{}
			}
			if _, ok := stored[attr]; !ok {
				return nil, &types.ConditionalCheckFailedException{}
			}
		}
		for _, match := range eqRe.FindAllStringSubmatch(cond, -1) {
			attr := resolveName(match[1], names)
			want := values[match[2]]
			if !exists {
				return nil, &types.ConditionalCheckFailedException{}
			}
			if !attributesEqual(stored[attr], want) {
				return nil, &types.ConditionalCheckFailedException{}
			}
		}
	}

	if !exists {
		stored = cloneItem(params.Key)
		f.items[key] = stored
	}

	updateExpr := *params.UpdateExpression
	setSection := section(updateExpr, "SET")
	addSection := section(updateExpr, "ADD")

	updated := item{}
	for _, match := range setRe.FindAllStringSubmatch(setSection, -1) {
		attr := resolveName(match[1], names)
		stored[attr] = values[match[2]]
		updated[attr] = values[match[2]]
	}
	for _, match := range addRe.FindAllStringSubmatch(addSection, -1) {
		attr := resolveName(match[1], names)
		sum := addNumbers(stored[attr], values[match[2]])
		stored[attr] = sum
		updated[attr] = sum
	}

	out := &dynamodb.UpdateItemOutput{}
	if params.ReturnValues == types.ReturnValueUpdatedNew {
		out.Attributes = updated
	}
	return out, nil
}

// BatchWriteItem handles delete requests only, which is all the client
// sends through it for the fake's purposes besides puts, handled uniformly.
func (f *FakeDynamo) BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, requests := range params.RequestItems {
		for _, request := range requests {
			if request.DeleteRequest != nil {
				delete(f.items, compositeKey(request.DeleteRequest.Key))
			}
			if request.PutRequest != nil {
				f.items[compositeKey(request.PutRequest.Item)] = cloneItem(request.PutRequest.Item)
			}
		}
	}
	return &dynamodb.BatchWriteItemOutput{}, nil
}

// section extracts the clause list following a keyword, up to the next
// keyword or the end of the expression.
func section(expr, keyword string) string {
	start := -1
	for _, loc := range regexp.MustCompile(`\b(SET|ADD|REMOVE|DELETE)\b`).FindAllStringIndex(expr, -1) {
		word := expr[loc[0]:loc[1]]
		if word == keyword {
			start = loc[1]
		} else if start >= 0 && loc[0] > start {
			return expr[start:loc[0]]
		}
	}
	if start < 0 {
		return ""
	}
	return expr[start:]
}

func attributesEqual(a, b types.AttributeValue) bool {
	switch av := a.(type) {
	case *types.AttributeValueMemberS:
		bv, ok := b.(*types.AttributeValueMemberS)
		return ok && av.Value == bv.Value
	case *types.AttributeValueMemberN:
		bv, ok := b.(*types.AttributeValueMemberN)
		if !ok {
			return false
		}
		ad, errA := decimal.NewFromString(av.Value)
		bd, errB := decimal.NewFromString(bv.Value)
		return errA == nil && errB == nil && ad.Equal(bd)
	default:
		return false
	}
}

func addNumbers(current, deltaValue types.AttributeValue) types.AttributeValue {
	base := decimal.Zero
	if member, ok := current.(*types.AttributeValueMemberN); ok {
		if parsed, err := decimal.NewFromString(member.Value); err == nil {
			base = parsed
		}
	}
	d := decimal.Zero
	if member, ok := deltaValue.(*types.AttributeValueMemberN); ok {
		if parsed, err := decimal.NewFromString(member.Value); err == nil {
			d = parsed
		}
	}
	return &types.AttributeValueMemberN{Value: base.Add(d).String()}
}

// Package storage executes all reads and writes against the shared DynamoDB
// table: attribute encoding, key-range and conditional-update expression
// building, and the batched store client.
package storage

import (
	"encoding/json"
	"strconv"

	"finledger-backend/internal/domain"
	apperrors "finledger-backend/pkg/errors"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Attribute names of the composite key, present on every item.
const (
	AttrPK = "PK"
	AttrSK = "SK"

	// AttrEntityType tags every item with its entity kind.
	AttrEntityType = "EntityType"

	// AttrVersionID is the per-row optimistic version counter bumped by
	// every conditional update.
	AttrVersionID = "VersionId"
)

// Codec maps entities to DynamoDB items and back, driven by each entity's
// field descriptors.
type Codec struct {
	logger *zap.Logger
}

// NewCodec creates a codec.
func NewCodec(logger *zap.Logger) *Codec {
	return &Codec{logger: logger}
}

// Marshal walks the entity's declared fields and produces the wire item. The
// composite key and the entity type tag are always included. Fields holding
// an absent value (empty string, nil structured value) are skipped so that
// partially populated entities produce partial items.
func (c *Codec) Marshal(entity domain.Keyed) (map[string]types.AttributeValue, error) {
	item := map[string]types.AttributeValue{
		AttrPK:         &types.AttributeValueMemberS{Value: entity.PartitionKey()},
		AttrSK:         &types.AttributeValueMemberS{Value: entity.SortKey()},
		AttrEntityType: &types.AttributeValueMemberS{Value: entity.EntityType()},
	}

	for _, field := range entity.Fields() {
		av, ok, err := c.encodeField(field)
		if err != nil {
			return nil, err
		}
		if ok {
			item[field.Name] = av
		}
	}

	return item, nil
}

// Unmarshal populates the entity in place from the wire item, walking the
// entity's declared fields. A field that is absent from the item, or present
// with an unexpected shape, is skipped and logged rather than treated as an
// error: callers rely on unmarshal never failing on missing optional fields,
// and an item written by an older field set must degrade gracefully when
// read by a newer one.
func (c *Codec) Unmarshal(item map[string]types.AttributeValue, into domain.Keyed) {
	for _, field := range into.Fields() {
		av, present := item[field.Name]
		if !present {
			c.logger.Debug("attribute absent from item, skipping",
				zap.String("attribute", field.Name),
				zap.String("entityType", into.EntityType()),
			)
			continue
		}
		if err := c.decodeField(field, av); err != nil {
			c.logger.Warn("attribute has unexpected shape, skipping",
				zap.String("attribute", field.Name),
				zap.String("entityType", into.EntityType()),
				zap.Error(err),
			)
		}
	}
}

func (c *Codec) encodeField(field domain.FieldDescriptor) (types.AttributeValue, bool, error) {
	switch field.Kind {
	case domain.KindString:
		s, ok := field.Value.(*string)
		if !ok {
			return nil, false, apperrors.NewValidationError("field %s: string kind needs a *string value", field.Name)
		}
		if *s == "" {
			return nil, false, nil
		}
		return &types.AttributeValueMemberS{Value: *s}, true, nil

	case domain.KindNumber:
		d, ok := field.Value.(*decimal.Decimal)
		if !ok {
			return nil, false, apperrors.NewValidationError("field %s: number kind needs a *decimal.Decimal value", field.Name)
		}
		return &types.AttributeValueMemberN{Value: d.String()}, true, nil

	case domain.KindInteger:
		n, ok := field.Value.(*int64)
		if !ok {
			return nil, false, apperrors.NewValidationError("field %s: integer kind needs a *int64 value", field.Name)
		}
		return &types.AttributeValueMemberN{Value: strconv.FormatInt(*n, 10)}, true, nil

	case domain.KindJSON:
		raw, err := json.Marshal(field.Value)
		if err != nil {
			return nil, false, apperrors.NewValidationError("field %s: not JSON-encodable: %v", field.Name, err)
		}
		if string(raw) == "null" {
			return nil, false, nil
		}
		return &types.AttributeValueMemberS{Value: string(raw)}, true, nil

	default:
		return nil, false, apperrors.NewValidationError("field %s: unknown field kind %d", field.Name, field.Kind)
	}
}

func (c *Codec) decodeField(field domain.FieldDescriptor, av types.AttributeValue) error {
	switch field.Kind {
	case domain.KindString:
		member, ok := av.(*types.AttributeValueMemberS)
		if !ok {
			return apperrors.NewValidationError("expected S attribute")
		}
		s, ok := field.Value.(*string)
		if !ok {
			return apperrors.NewValidationError("string kind needs a *string value")
		}
		*s = member.Value
		return nil

	case domain.KindNumber:
		member, ok := av.(*types.AttributeValueMemberN)
		if !ok {
			return apperrors.NewValidationError("expected N attribute")
		}
		d, ok := field.Value.(*decimal.Decimal)
		if !ok {
			return apperrors.NewValidationError("number kind needs a *decimal.Decimal value")
		}
		parsed, err := decimal.NewFromString(member.Value)
		if err != nil {
			return apperrors.NewValidationError("not a decimal: %q", member.Value)
		}
		*d = parsed
		return nil

	case domain.KindInteger:
		member, ok := av.(*types.AttributeValueMemberN)
		if !ok {
			return apperrors.NewValidationError("expected N attribute")
		}
		n, ok := field.Value.(*int64)
		if !ok {
			return apperrors.NewValidationError("integer kind needs a *int64 value")
		}
		parsed, err := strconv.ParseInt(member.Value, 10, 64)
		if err != nil {
			return apperrors.NewValidationError("not an integer: %q", member.Value)
		}
		*n = parsed
		return nil

	case domain.KindJSON:
		member, ok := av.(*types.AttributeValueMemberS)
		if !ok {
			return apperrors.NewValidationError("expected S attribute")
		}
		if err := json.Unmarshal([]byte(member.Value), field.Value); err != nil {
			return apperrors.NewValidationError("not valid JSON: %v", err)
		}
		return nil

	default:
		return apperrors.NewValidationError("unknown field kind %d", field.Kind)
	}
}

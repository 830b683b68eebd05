package domain

import (
	"regexp"
	"strings"

	apperrors "finledger-backend/pkg/errors"
)

// RuleKind discriminates the classification rule variants.
type RuleKind string

const (
	RuleKindKeyword    RuleKind = "keyword"
	RuleKindStartsWith RuleKind = "startsWith"
	RuleKindContains   RuleKind = "contains"
	RuleKindRegex      RuleKind = "regex"
)

// CategoryRule assigns transactions matching a pattern to a category. The
// kind selects the matcher; there is no subclassing, just a tag.
type CategoryRule struct {
	AccountID  string
	CategoryID string
	RuleID     string
	Kind       RuleKind
	Pattern    string
}

func (r *CategoryRule) PartitionKey() string { return AccountPK(r.AccountID) }
func (r *CategoryRule) SortKey() string      { return RuleSK(r.CategoryID, r.RuleID) }
func (r *CategoryRule) EntityType() string   { return "CategoryRule" }

func (r *CategoryRule) Fields() []FieldDescriptor {
	kind := (*string)(&r.Kind)
	return []FieldDescriptor{
		{Name: "AccountId", Kind: KindString, Value: &r.AccountID},
		{Name: "CategoryId", Kind: KindString, Value: &r.CategoryID},
		{Name: "RuleId", Kind: KindString, Value: &r.RuleID},
		{Name: "RuleKind", Kind: KindString, Value: kind},
		{Name: "Pattern", Kind: KindString, Value: &r.Pattern},
	}
}

// Validate rejects rules with an unknown kind or an uncompilable regex
// pattern before any store call is attempted.
func (r *CategoryRule) Validate() error {
	switch r.Kind {
	case RuleKindKeyword, RuleKindStartsWith, RuleKindContains:
		return nil
	case RuleKindRegex:
		if _, err := regexp.Compile(r.Pattern); err != nil {
			return apperrors.NewValidationError("invalid rule pattern %q: %v", r.Pattern, err)
		}
		return nil
	default:
		return apperrors.NewValidationError("invalid rule kind %q", r.Kind)
	}
}

// Matches reports whether a transaction description matches the rule.
// Keyword matching is case-insensitive on whole words; the other kinds are
// case-insensitive substring, prefix, and regular-expression matches.
func (r *CategoryRule) Matches(description string) bool {
	desc := strings.ToLower(description)
	pattern := strings.ToLower(r.Pattern)

	switch r.Kind {
	case RuleKindKeyword:
		for _, word := range strings.Fields(desc) {
			if word == pattern {
				return true
			}
		}
		return false
	case RuleKindStartsWith:
		return strings.HasPrefix(desc, pattern)
	case RuleKindContains:
		return strings.Contains(desc, pattern)
	case RuleKindRegex:
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return false
		}
		return re.MatchString(description)
	default:
		return false
	}
}

package domain

import (
	"fmt"
	"strings"

	apperrors "finledger-backend/pkg/errors"
)

// Sort-key prefixes. Each entity kind owns a globally unique prefix so that
// begins_with queries never cross entity kinds.
const (
	prefixAccount  = "ACCOUNT"
	prefixWallet   = "WALLET"
	prefixCategory = "CATEGORY"
	prefixRule     = "RULE"
	prefixTx       = "TX"
	prefixMetric   = "METRIC"
	prefixVersion  = "VERSION"

	// MetadataSK is the fixed sort key of the per-account metadata row.
	MetadataSK = "METADATA"
)

// UserPK returns the partition key of rows owned by a user.
func UserPK(userID string) string {
	return "USER#" + userID
}

// AccountPK returns the partition key of rows owned by an account.
func AccountPK(accountID string) string {
	return "ACCOUNT#" + accountID
}

// joinKey builds a sort key from a literal prefix and the non-empty
// identifying parts, joined with '#'. Omitting trailing parts yields a valid
// prefix for range queries: a partial key is a query scope.
func joinKey(prefix string, parts ...string) string {
	elems := make([]string, 0, len(parts)+1)
	elems = append(elems, prefix)
	for _, p := range parts {
		if p == "" {
			break
		}
		elems = append(elems, p)
	}
	return strings.Join(elems, "#")
}

// AccountSK returns the sort key of an account row under its user partition.
func AccountSK(accountID string) string {
	return joinKey(prefixAccount, accountID)
}

// WalletSK returns the sort key of a wallet row.
func WalletSK(walletID string) string {
	return joinKey(prefixWallet, walletID)
}

// CategorySK returns the sort key of a category row.
func CategorySK(categoryID string) string {
	return joinKey(prefixCategory, categoryID)
}

// RuleSK returns the sort key of a classification rule row. With ruleID empty
// it is the prefix of all rules of a category.
func RuleSK(categoryID, ruleID string) string {
	return joinKey(prefixRule, categoryID, ruleID)
}

// TransactionSK returns the sort key of a transaction row. Trailing empty
// parts produce the prefix of a wallet's (or a day's) transactions.
func TransactionSK(walletID, date, transactionID string) string {
	return joinKey(prefixTx, walletID, date, transactionID)
}

// VersionSK returns the sort key of a change-set ledger row.
func VersionSK(version int64) string {
	return fmt.Sprintf("%s#%d", prefixVersion, version)
}

// VersionPrefix is the sort-key prefix of all change-set rows.
const VersionPrefix = prefixVersion + "#"

// MetricPrefix returns the sort-key prefix of a wallet's metric rows.
func MetricPrefix(walletID string) string {
	return joinKey(prefixMetric, walletID)
}

// Granularity is the time bucket size of a metric row.
type Granularity string

const (
	GranularityYear  Granularity = "Y"
	GranularityMonth Granularity = "M"
	GranularityDay   Granularity = "D"
)

// GranularityForPeriod infers the granularity from the period string length:
// a 4-digit year, a YYYY-MM month, or a YYYY-MM-DD day.
func GranularityForPeriod(period string) (Granularity, error) {
	switch len(period) {
	case 4:
		return GranularityYear, nil
	case 7:
		return GranularityMonth, nil
	case 10:
		return GranularityDay, nil
	default:
		return "", apperrors.NewValidationError("period %q has no recognizable granularity", period)
	}
}

// MetricSK returns the sort key of a metric row. The supplied granularity
// must agree with the period string length; a mismatch is a format error, not
// a silent reinterpretation.
func MetricSK(walletID string, granularity Granularity, period, categoryID string) (string, error) {
	inferred, err := GranularityForPeriod(period)
	if err != nil {
		return "", err
	}
	if inferred != granularity {
		return "", apperrors.NewValidationError(
			"granularity %s disagrees with period %q (expected %s)", granularity, period, inferred)
	}
	return joinKey(prefixMetric, walletID, string(granularity), period, categoryID), nil
}

// FormatCategoryID zero-pads an allocated sequence number to the 2-digit
// category id width.
func FormatCategoryID(n int64) string {
	return fmt.Sprintf("%02d", n)
}

// FormatWalletID zero-pads an allocated sequence number to the 4-digit wallet
// id width.
func FormatWalletID(n int64) string {
	return fmt.Sprintf("%04d", n)
}

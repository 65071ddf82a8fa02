package instrumentation

import "strings"

// Cardinality management helpers for metrics.
// These functions reduce high-cardinality label values to prevent metrics explosion.
//
// # Warning
//
// High cardinality in metrics can cause:
// - Increased memory usage in Prometheus/metrics backends
// - Slower query performance
// - Higher storage costs
//
// Always use these helpers when recording metrics with database profile names.

// ProfileType represents a classification of database profile names for metrics.
type ProfileType string

// Profile type classifications for metrics cardinality control.
const (
	// ProfileTypeProduction represents production databases.
	ProfileTypeProduction ProfileType = "production"

	// ProfileTypeStaging represents staging/pre-production databases.
	ProfileTypeStaging ProfileType = "staging"

	// ProfileTypeDevelopment represents development databases.
	ProfileTypeDevelopment ProfileType = "development"

	// ProfileTypeReplica represents read replicas and reporting copies.
	ProfileTypeReplica ProfileType = "replica"

	// ProfileTypeDefault represents the default profile (empty profile name).
	ProfileTypeDefault ProfileType = "default"

	// ProfileTypeOther represents profiles that don't match any known pattern.
	ProfileTypeOther ProfileType = "other"
)

// ClassifyProfileName classifies a database profile name into a type for
// metrics. This prevents cardinality explosion by grouping profiles into
// categories instead of using the full profile name.
//
// # Classification Rules
//
// The function uses case-insensitive pattern matching:
//
//	| Pattern                          | Classification |
//	|----------------------------------|----------------|
//	| Empty string, "default"          | default        |
//	| Contains: replica, readonly      | replica        |
//	| Suffix: -ro                      | replica        |
//	| Prefix: prod-, prod_             | production     |
//	| Contains: production, -prod-     | production     |
//	| Suffix: -prod                    | production     |
//	| Prefix: staging-, staging_, stg- | staging        |
//	| Contains: staging, -stg-         | staging        |
//	| Suffix: -stg                     | staging        |
//	| Prefix: dev-, dev_               | development    |
//	| Contains: development, -dev-     | development    |
//	| Suffix: -dev                     | development    |
//	| Prefix: test-, test_             | development    |
//	| Contains: -test-                 | development    |
//	| Suffix: -test                    | development    |
//	| Everything else                  | other          |
//
// # Examples
//
//	ClassifyProfileName("")                 // "default"
//	ClassifyProfileName("default")          // "default"
//	ClassifyProfileName("prod-analytics")   // "production"
//	ClassifyProfileName("orders-replica")   // "replica"
//	ClassifyProfileName("warehouse-ro")     // "replica"
//	ClassifyProfileName("staging-orders")   // "staging"
//	ClassifyProfileName("dev-scratch")      // "development"
//	ClassifyProfileName("test-fixtures")    // "development"
//	ClassifyProfileName("analytics")        // "other"
func ClassifyProfileName(name string) string {
	if name == "" || strings.EqualFold(name, "default") {
		return string(ProfileTypeDefault)
	}

	nameLower := strings.ToLower(name)

	// Replica patterns (check first as replicas often carry "prod" in the name)
	if strings.Contains(nameLower, "replica") ||
		strings.Contains(nameLower, "readonly") ||
		strings.HasSuffix(nameLower, "-ro") {
		return string(ProfileTypeReplica)
	}

	// Production patterns
	if strings.HasPrefix(nameLower, "prod-") ||
		strings.HasPrefix(nameLower, "prod_") ||
		strings.Contains(nameLower, "production") ||
		strings.Contains(nameLower, "-prod-") ||
		strings.HasSuffix(nameLower, "-prod") {
		return string(ProfileTypeProduction)
	}

	// Staging patterns
	if strings.HasPrefix(nameLower, "staging-") ||
		strings.HasPrefix(nameLower, "staging_") ||
		strings.HasPrefix(nameLower, "stg-") ||
		strings.Contains(nameLower, "staging") ||
		strings.Contains(nameLower, "-stg-") ||
		strings.HasSuffix(nameLower, "-stg") {
		return string(ProfileTypeStaging)
	}

	// Development patterns (including test profiles)
	if strings.HasPrefix(nameLower, "dev-") ||
		strings.HasPrefix(nameLower, "dev_") ||
		strings.Contains(nameLower, "development") ||
		strings.Contains(nameLower, "-dev-") ||
		strings.HasSuffix(nameLower, "-dev") ||
		strings.HasPrefix(nameLower, "test-") ||
		strings.HasPrefix(nameLower, "test_") ||
		strings.Contains(nameLower, "-test-") ||
		strings.HasSuffix(nameLower, "-test") {
		return string(ProfileTypeDevelopment)
	}

	return string(ProfileTypeOther)
}

// TruncateStatement returns a bounded prefix of a SQL statement for span
// attributes and audit logs. Full statements can be arbitrarily large and
// may embed literal data; spans only need enough to identify the query.
func TruncateStatement(stmt string, max int) string {
	stmt = strings.TrimSpace(stmt)
	if max <= 0 || len(stmt) <= max {
		return stmt
	}
	return stmt[:max] + "..."
}

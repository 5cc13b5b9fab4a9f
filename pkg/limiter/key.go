package limiter

import "strings"

const (
	keyPrefix = "rate_limit"

	// sentinel used for the resource and subject segments when the caller
	// does not scope the check. Must stay stable: every process sharing the
	// counter store has to derive identical keys.
	defaultSegment = "default"
)

// CounterKey derives the store key for one (tenant, config, resource,
// subject) combination. Fields are colon-joined in fixed order:
//
//	rate_limit:{tenantID}:{configID}:{resource|"default"}:{subjectID|"default"}
func CounterKey(tenantID, configID, resource, subjectID string) string {
	if resource == "" {
		resource = defaultSegment
	}
	if subjectID == "" {
		subjectID = defaultSegment
	}
	return strings.Join([]string{keyPrefix, tenantID, configID, resource, subjectID}, ":")
}

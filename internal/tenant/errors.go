package tenant

import (
	"errors"
	"fmt"
)

// ErrIdentityIncomplete signals a record with neither a consumer key nor
// a full registration+deployment pair.
var ErrIdentityIncomplete = errors.New("tenant: consumer key or registration and deployment id required")

// ErrNotFound is returned by Store lookups with no matching row.
var ErrNotFound = errors.New("tenant: not found")

// GUIDConflictError reports a mismatch between a tenant's recorded
// platform GUID and a newly observed one. It carries both values;
// neither is secret material.
type GUIDConflictError struct {
	Existing string
	New      string
}

func (e *GUIDConflictError) Error() string {
	return fmt.Sprintf("tenant: tool_consumer_instance_guid conflict: stored %q, launch sent %q", e.Existing, e.New)
}

// HostParseError reports an LMSURL whose host could not be parsed out.
type HostParseError struct {
	URL string
}

func (e *HostParseError) Error() string {
	return fmt.Sprintf("tenant: no host in lms_url %q", e.URL)
}

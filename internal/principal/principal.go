// Package principal models the authenticated end user derived from one
// LTI launch. Principals are values: reconstructed per request, never
// persisted, compared structurally.
package principal

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Launch parameter names, as sent by LTI 1.1 platforms.
const (
	ParamUserID     = "user_id"
	ParamRoles      = "roles"
	ParamGUID       = "tool_consumer_instance_guid"
	ParamGivenName  = "lis_person_name_given"
	ParamFamilyName = "lis_person_name_family"
	ParamFullName   = "lis_person_name_full"
	ParamEmail      = "lis_person_contact_email_primary"
)

// Principal is the authenticated end-user identity for one launch.
type Principal struct {
	UserID                   string
	Roles                    string // raw delimited roles string from the launch
	ToolConsumerInstanceGUID string
	DisplayName              string
	TenantID                 string
	Email                    string
}

// instructorRoles are matched as substrings of the lowercased roles
// string, not as tokens. A role like "NonInstructorRole" therefore also
// matches; platforms in the wild send role URNs where token splitting is
// unreliable, so the substring behavior is kept as-is.
var instructorRoles = []string{"administrator", "instructor", "teachingassistant"}

// IsInstructor reports whether any instructor-class role appears in the
// roles string.
func (p Principal) IsInstructor() bool {
	roles := strings.ToLower(p.Roles)
	for _, r := range instructorRoles {
		if strings.Contains(roles, r) {
			return true
		}
	}
	return false
}

// IsLearner reports whether "learner" appears in the roles string.
func (p Principal) IsLearner() bool {
	return strings.Contains(strings.ToLower(p.Roles), "learner")
}

// ValidationError reports a missing required launch parameter.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("principal: missing required launch parameter %q", e.Field)
}

// FromLaunchParams builds a Principal from validated raw launch
// parameters. user_id, roles and tool_consumer_instance_guid must be
// present; the name fields and email default to empty.
func FromLaunchParams(tenantID string, raw map[string]string) (Principal, error) {
	for _, field := range []string{ParamUserID, ParamRoles, ParamGUID} {
		if _, ok := raw[field]; !ok {
			return Principal{}, &ValidationError{Field: field}
		}
	}
	return Principal{
		UserID:                   raw[ParamUserID],
		Roles:                    raw[ParamRoles],
		ToolConsumerInstanceGUID: raw[ParamGUID],
		DisplayName:              DisplayName(raw[ParamGivenName], raw[ParamFamilyName], raw[ParamFullName]),
		TenantID:                 tenantID,
		Email:                    raw[ParamEmail],
	}, nil
}

// displayNameMaxLen is the longest display name downstream accepts.
const displayNameMaxLen = 30

// DisplayName folds the three LTI name parameters into one display name:
// the full name if present, else given and family joined, else
// "Anonymous". Names longer than 30 characters keep their first 29
// (trailing whitespace stripped) plus an ellipsis.
func DisplayName(givenName, familyName, fullName string) string {
	name := strings.TrimSpace(fullName)

	if name == "" {
		name = strings.TrimSpace(strings.TrimSpace(givenName) + " " + strings.TrimSpace(familyName))
	}
	if name == "" {
		return "Anonymous"
	}
	if utf8.RuneCountInString(name) <= displayNameMaxLen {
		return name
	}
	head := string([]rune(name)[:displayNameMaxLen-1])
	return strings.TrimRightFunc(head, unicode.IsSpace) + "…"
}

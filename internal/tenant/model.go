package tenant

import (
	"errors"
	"net/url"
	"time"

	"github.com/edubridge/ltibridge/internal/secretbox"
)

// LTI version markers, as they appear in the lti_version launch parameter.
const (
	LTIVersion13 = "1.3.0"
	LTIVersion11 = "LTI-1p0"
)

// Identity is one installed binding between this tool and a customer's
// LMS. Legacy installs are identified by ConsumerKey; 1.3 installs by the
// (RegistrationID, DeploymentID) pair. An install upgraded from 1.1 to
// 1.3 may carry all three. Empty string / zero means absent.
type Identity struct {
	ID string

	ConsumerKey  string
	SharedSecret string

	LMSURL         string
	RequesterEmail string

	// DeveloperKey/DeveloperSecret are the platform API credentials
	// supplied at provisioning. DeveloperSecret is ciphertext whenever
	// CipherIV is set, plaintext bytes otherwise.
	DeveloperKey    string
	DeveloperSecret []byte
	CipherIV        []byte

	Provisioning bool

	// ToolConsumerInstanceGUID is the platform fingerprint: set on first
	// launch, then immutable except through explicit reconciliation after
	// a CheckGUIDAligns conflict.
	ToolConsumerInstanceGUID string

	// Descriptive platform metadata, refreshed on launch.
	ProductFamilyCode    string
	ProductVersion       string
	InstanceName         string
	InstanceDescription  string
	InstanceURL          string
	InstanceContactEmail string

	RegistrationID int64
	DeploymentID   string

	CreatedAt time.Time
}

// Validate enforces the identity invariant: a consumer key, or a
// registration plus deployment id.
func (t *Identity) Validate() error {
	if t.ConsumerKey == "" && (t.RegistrationID == 0 || t.DeploymentID == "") {
		return ErrIdentityIncomplete
	}
	return nil
}

// LTIVersion reports "1.3.0" when both the registration and deployment id
// are set, and the legacy "LTI-1p0" marker otherwise.
func (t *Identity) LTIVersion() string {
	if t.RegistrationID != 0 && t.DeploymentID != "" {
		return LTIVersion13
	}
	return LTIVersion11
}

// LMSHost returns the hostname part of LMSURL, e.g. "example.com" for
// "https://example.com/lms/".
func (t *Identity) LMSHost() (string, error) {
	u, err := url.Parse(t.LMSURL)
	if err != nil {
		return "", &HostParseError{URL: t.LMSURL}
	}
	// Scheme-less URLs parse with an empty Host.
	if u.Host == "" {
		return "", &HostParseError{URL: t.LMSURL}
	}
	return u.Host, nil
}

// CheckGUIDAligns checks the candidate platform GUID against the stored
// one. It returns a *GUIDConflictError when both are non-empty and
// differ, and nil otherwise. It never updates the stored GUID; whether a
// conflict aborts the launch or triggers reconciliation is the caller's
// decision.
func (t *Identity) CheckGUIDAligns(candidate string) error {
	if candidate != "" && t.ToolConsumerInstanceGUID != "" && t.ToolConsumerInstanceGUID != candidate {
		return &GUIDConflictError{Existing: t.ToolConsumerInstanceGUID, New: candidate}
	}
	return nil
}

// DecryptedDeveloperSecret returns the developer secret in the clear, or
// nil when none is stored. When no IV is stored the secret was never
// encrypted and is returned as-is.
func (t *Identity) DecryptedDeveloperSecret(c *secretbox.Cipher) ([]byte, error) {
	if t.DeveloperSecret == nil {
		return nil, nil
	}
	if t.CipherIV == nil {
		return t.DeveloperSecret, nil
	}
	if c == nil {
		return nil, errors.New("tenant: developer secret is encrypted but no cipher is configured")
	}
	return c.Decrypt(t.CipherIV, t.DeveloperSecret)
}

// InstanceFingerprint is the platform metadata observed on a launch.
type InstanceFingerprint struct {
	GUID                 string
	ProductFamilyCode    string
	ProductVersion       string
	InstanceName         string
	InstanceDescription  string
	InstanceURL          string
	InstanceContactEmail string
}

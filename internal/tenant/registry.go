package tenant

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/edubridge/ltibridge/internal/secretbox"
)

// consumerKeyPrefix namespaces generated consumer keys so they are
// recognisable in platform configuration screens.
const consumerKeyPrefix = "ltibridge-"

// Store is the persistence interface behind the registry.
type Store interface {
	Create(ctx context.Context, t Identity) error
	Get(ctx context.Context, id string) (Identity, error)
	GetByConsumerKey(ctx context.Context, consumerKey string) (Identity, error)
	GetByDeployment(ctx context.Context, registrationID int64, deploymentID string) (Identity, error)
	List(ctx context.Context, offset, limit int) ([]Identity, error)

	// UpdateFingerprint persists launch-observed platform metadata,
	// including the GUID. Concurrent launches resolve last-writer-wins;
	// conflicting GUIDs are a reported anomaly, not a guarded path.
	UpdateFingerprint(ctx context.Context, id string, fp InstanceFingerprint) error
}

// Registry owns tenant identity records. It generates credentials at
// provisioning time and encrypts developer secrets when a cipher is
// configured.
type Registry struct {
	store  Store
	cipher *secretbox.Cipher // nil: store developer secrets as provided

	rand io.Reader
	now  func() time.Time
}

func NewRegistry(store Store, cipher *secretbox.Cipher) *Registry {
	return &Registry{store: store, cipher: cipher, rand: rand.Reader, now: time.Now}
}

// NewRegistryWithClock is NewRegistry with explicit random and clock
// sources, for deterministic tests.
func NewRegistryWithClock(store Store, cipher *secretbox.Cipher, r io.Reader, now func() time.Time) *Registry {
	return &Registry{store: store, cipher: cipher, rand: r, now: now}
}

// ProvisionParams is the input for a legacy (consumer-key) install.
type ProvisionParams struct {
	LMSURL          string
	RequesterEmail  string
	DeveloperKey    string
	DeveloperSecret string
}

// Provision creates a legacy tenant with a generated globally-unique
// consumer key and shared secret. The developer secret, when present, is
// encrypted iff the registry holds a cipher; the per-record IV is stored
// alongside the ciphertext.
func (r *Registry) Provision(ctx context.Context, p ProvisionParams) (Identity, error) {
	keySuffix, err := r.randomHex(16)
	if err != nil {
		return Identity{}, err
	}
	sharedSecret, err := r.randomHex(32)
	if err != nil {
		return Identity{}, err
	}

	t := Identity{
		ID:             uuid.NewString(),
		ConsumerKey:    consumerKeyPrefix + keySuffix,
		SharedSecret:   sharedSecret,
		LMSURL:         p.LMSURL,
		RequesterEmail: p.RequesterEmail,
		DeveloperKey:   p.DeveloperKey,
		Provisioning:   true,
		CreatedAt:      r.now().UTC(),
	}

	if p.DeveloperSecret != "" {
		if r.cipher != nil {
			iv, ct, err := r.cipher.Encrypt([]byte(p.DeveloperSecret))
			if err != nil {
				return Identity{}, err
			}
			t.CipherIV, t.DeveloperSecret = iv, ct
		} else {
			t.DeveloperSecret = []byte(p.DeveloperSecret)
		}
	}

	if err := t.Validate(); err != nil {
		return Identity{}, err
	}
	if err := r.store.Create(ctx, t); err != nil {
		return Identity{}, err
	}
	return t, nil
}

// BindDeployment creates a 1.3 tenant for the given registration and
// deployment, at the first successful launch of an unknown deployment.
func (r *Registry) BindDeployment(ctx context.Context, registrationID int64, deploymentID, lmsURL, requesterEmail string) (Identity, error) {
	sharedSecret, err := r.randomHex(32)
	if err != nil {
		return Identity{}, err
	}

	t := Identity{
		ID:             uuid.NewString(),
		SharedSecret:   sharedSecret,
		LMSURL:         lmsURL,
		RequesterEmail: requesterEmail,
		Provisioning:   true,
		RegistrationID: registrationID,
		DeploymentID:   deploymentID,
		CreatedAt:      r.now().UTC(),
	}
	if err := t.Validate(); err != nil {
		return Identity{}, err
	}
	if err := r.store.Create(ctx, t); err != nil {
		return Identity{}, err
	}
	return t, nil
}

func (r *Registry) Get(ctx context.Context, id string) (Identity, error) {
	return r.store.Get(ctx, id)
}

func (r *Registry) GetByConsumerKey(ctx context.Context, consumerKey string) (Identity, error) {
	return r.store.GetByConsumerKey(ctx, consumerKey)
}

func (r *Registry) GetByDeployment(ctx context.Context, registrationID int64, deploymentID string) (Identity, error) {
	return r.store.GetByDeployment(ctx, registrationID, deploymentID)
}

func (r *Registry) List(ctx context.Context, offset, limit int) ([]Identity, error) {
	return r.store.List(ctx, offset, limit)
}

// UpdateFingerprint records launch-observed platform metadata. Callers
// run Identity.CheckGUIDAligns first and decide what to do with a
// conflict; this method just writes.
func (r *Registry) UpdateFingerprint(ctx context.Context, id string, fp InstanceFingerprint) error {
	return r.store.UpdateFingerprint(ctx, id, fp)
}

// DecryptedDeveloperSecret exposes a tenant's developer secret to
// downstream platform API clients. Returns nil when none is stored.
func (r *Registry) DecryptedDeveloperSecret(t *Identity) ([]byte, error) {
	return t.DecryptedDeveloperSecret(r.cipher)
}

func (r *Registry) randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(r.rand, buf); err != nil {
		return "", fmt.Errorf("tenant: reading random bytes: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

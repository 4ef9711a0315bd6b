package tenant_test

import (
	"context"
	"crypto/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/edubridge/ltibridge/internal/db"
	"github.com/edubridge/ltibridge/internal/tenant"
)

func TestSQLStore_SQLite(t *testing.T) {
	ctx := context.Background()
	dbh, err := db.Open(ctx, db.DriverSQLite, "file:tenant_store_test?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { dbh.Close() })

	store := tenant.NewSQLStore(dbh, "sqlite")
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	registry := tenant.NewRegistryWithClock(store, nil, rand.Reader, func() time.Time { return now })

	provisioned, err := registry.Provision(ctx, tenant.ProvisionParams{
		LMSURL:          "https://lms.example.com",
		RequesterEmail:  "admin@school.edu",
		DeveloperKey:    "dk",
		DeveloperSecret: "ds",
	})
	require.NoError(t, err)

	t.Run("round trips through the schema", func(t *testing.T) {
		got, err := store.Get(ctx, provisioned.ID)
		require.NoError(t, err)
		require.Equal(t, provisioned, got)

		byKey, err := store.GetByConsumerKey(ctx, provisioned.ConsumerKey)
		require.NoError(t, err)
		require.Equal(t, provisioned.ID, byKey.ID)
	})

	t.Run("unknown id reports not found", func(t *testing.T) {
		_, err := store.Get(ctx, "no-such-tenant")
		require.ErrorIs(t, err, tenant.ErrNotFound)
	})

	t.Run("duplicate consumer key is rejected", func(t *testing.T) {
		dup := provisioned
		dup.ID = "tenant-dup-key"
		require.Error(t, store.Create(ctx, dup))
	})

	t.Run("fingerprint update persists", func(t *testing.T) {
		fp := tenant.InstanceFingerprint{
			GUID:              "guid-1",
			ProductFamilyCode: "canvas",
			InstanceName:      "Example School",
		}
		require.NoError(t, store.UpdateFingerprint(ctx, provisioned.ID, fp))

		got, err := store.Get(ctx, provisioned.ID)
		require.NoError(t, err)
		require.Equal(t, "guid-1", got.ToolConsumerInstanceGUID)
		require.Equal(t, "canvas", got.ProductFamilyCode)
		require.Equal(t, "Example School", got.InstanceName)
	})

	t.Run("fingerprint update on unknown id reports not found", func(t *testing.T) {
		err := store.UpdateFingerprint(ctx, "no-such-tenant", tenant.InstanceFingerprint{GUID: "g"})
		require.ErrorIs(t, err, tenant.ErrNotFound)
	})

	t.Run("deployment pair is unique", func(t *testing.T) {
		_, err := dbh.ExecContext(ctx,
			`INSERT INTO lti_registrations (issuer, client_id, auth_login_url, created_at)
			 VALUES ($1,$2,$3,$4)`,
			"https://platform.example.com", "client-1", "https://platform.example.com/auth", now.Unix())
		require.NoError(t, err)

		bound, err := registry.BindDeployment(ctx, 1, "dep-1", "https://platform.example.com", "")
		require.NoError(t, err)

		found, err := store.GetByDeployment(ctx, 1, "dep-1")
		require.NoError(t, err)
		require.Equal(t, bound.ID, found.ID)

		dup := bound
		dup.ID = "tenant-dup-dep"
		require.Error(t, store.Create(ctx, dup))
	})
}

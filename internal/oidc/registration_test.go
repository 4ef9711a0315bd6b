package oidc_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/edubridge/ltibridge/internal/db"
	"github.com/edubridge/ltibridge/internal/oidc"
)

func TestSQLStore_SQLite(t *testing.T) {
	ctx := context.Background()
	dbh, err := db.Open(ctx, db.DriverSQLite, "file:oidc_store_test?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { dbh.Close() })

	store := oidc.NewSQLStore(dbh, "sqlite")

	first, err := store.Create(ctx, oidc.Registration{
		Issuer:       "https://platform.example.com",
		ClientID:     "client-1",
		AuthLoginURL: "https://platform.example.com/auth",
		KeySetURL:    "https://platform.example.com/jwks",
		TokenURL:     "https://platform.example.com/token",
	})
	require.NoError(t, err)
	require.NotZero(t, first.ID)

	second, err := store.Create(ctx, oidc.Registration{
		Issuer:       "https://platform.example.com",
		ClientID:     "client-2",
		AuthLoginURL: "https://platform.example.com/auth",
	})
	require.NoError(t, err)
	require.Greater(t, second.ID, first.ID)

	t.Run("lookup by issuer and client id", func(t *testing.T) {
		got, err := store.Get(ctx, "https://platform.example.com", "client-2")
		require.NoError(t, err)
		require.Equal(t, second, got)
	})

	t.Run("missing client id falls back to the oldest registration", func(t *testing.T) {
		got, err := store.Get(ctx, "https://platform.example.com", "")
		require.NoError(t, err)
		require.Equal(t, first.ID, got.ID)
	})

	t.Run("miss carries the lookup pair", func(t *testing.T) {
		_, err := store.Get(ctx, "https://rogue.example.com", "client-x")
		var notFound *oidc.RegistrationNotFoundError
		require.True(t, errors.As(err, &notFound))
		require.Equal(t, "https://rogue.example.com", notFound.Issuer)
		require.Equal(t, "client-x", notFound.ClientID)
	})

	t.Run("duplicate issuer and client id is rejected", func(t *testing.T) {
		_, err := store.Create(ctx, oidc.Registration{
			Issuer:       "https://platform.example.com",
			ClientID:     "client-1",
			AuthLoginURL: "https://platform.example.com/auth",
		})
		require.Error(t, err)
	})

	t.Run("list returns registrations in id order", func(t *testing.T) {
		regs, err := store.List(ctx, 0, 10)
		require.NoError(t, err)
		require.Len(t, regs, 2)
		require.Equal(t, first.ID, regs[0].ID)
		require.Equal(t, second.ID, regs[1].ID)
	})
}

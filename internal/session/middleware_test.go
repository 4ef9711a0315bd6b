package session_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/edubridge/ltibridge/internal/principal"
	"github.com/edubridge/ltibridge/internal/session"
)

func TestMiddleware(t *testing.T) {
	codec := session.NewCodec(testSecret)

	var gotPrincipal principal.Principal
	var gotOK bool
	handler := session.Middleware(codec)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPrincipal, gotOK = session.PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("valid token reaches the handler with principal in context", func(t *testing.T) {
		auth, err := codec.Encode(testUser)
		require.NoError(t, err)

		r := httptest.NewRequest("GET", "/", nil)
		r.Header.Set("Authorization", auth)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)

		require.Equal(t, http.StatusOK, w.Code)
		require.True(t, gotOK)
		require.Equal(t, testUser, gotPrincipal)
	})

	t.Run("missing token is 401", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
		require.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("expired token is 401", func(t *testing.T) {
		stale := session.NewCodecWithClock(testSecret, fixedClock(time.Now().Add(-48*time.Hour)))
		auth, err := stale.Encode(testUser)
		require.NoError(t, err)

		r := httptest.NewRequest("GET", "/", nil)
		r.Header.Set("Authorization", auth)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		require.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("tampered token is 403", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/", nil)
		r.Header.Set("Authorization", "Bearer not.a.jwt")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		require.Equal(t, http.StatusForbidden, w.Code)
	})
}

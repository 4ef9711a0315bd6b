package lti_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/edubridge/ltibridge/internal/lti"
	"github.com/edubridge/ltibridge/internal/oidc"
	"github.com/edubridge/ltibridge/internal/session"
	"github.com/edubridge/ltibridge/internal/tenant"
)

/* ---------------- in-memory fakes for tenant.Store and oidc.RegistrationStore ---------------- */

type fakeTenants struct {
	byID map[string]tenant.Identity
}

func (s *fakeTenants) Create(_ context.Context, t tenant.Identity) error {
	s.byID[t.ID] = t
	return nil
}

func (s *fakeTenants) Get(_ context.Context, id string) (tenant.Identity, error) {
	t, ok := s.byID[id]
	if !ok {
		return tenant.Identity{}, tenant.ErrNotFound
	}
	return t, nil
}

func (s *fakeTenants) GetByConsumerKey(_ context.Context, key string) (tenant.Identity, error) {
	for _, t := range s.byID {
		if t.ConsumerKey == key {
			return t, nil
		}
	}
	return tenant.Identity{}, tenant.ErrNotFound
}

func (s *fakeTenants) GetByDeployment(_ context.Context, regID int64, depID string) (tenant.Identity, error) {
	for _, t := range s.byID {
		if t.RegistrationID == regID && t.DeploymentID == depID {
			return t, nil
		}
	}
	return tenant.Identity{}, tenant.ErrNotFound
}

func (s *fakeTenants) List(_ context.Context, _, _ int) ([]tenant.Identity, error) { return nil, nil }

func (s *fakeTenants) UpdateFingerprint(_ context.Context, id string, fp tenant.InstanceFingerprint) error {
	t, ok := s.byID[id]
	if !ok {
		return tenant.ErrNotFound
	}
	t.ToolConsumerInstanceGUID = fp.GUID
	s.byID[id] = t
	return nil
}

type fakeRegistrations struct {
	regs []oidc.Registration
}

func (s *fakeRegistrations) Get(_ context.Context, issuer, clientID string) (oidc.Registration, error) {
	for _, r := range s.regs {
		if r.Issuer == issuer && (clientID == "" || r.ClientID == clientID) {
			return r, nil
		}
	}
	return oidc.Registration{}, &oidc.RegistrationNotFoundError{Issuer: issuer, ClientID: clientID}
}

func (s *fakeRegistrations) Create(_ context.Context, r oidc.Registration) (oidc.Registration, error) {
	r.ID = int64(len(s.regs) + 1)
	s.regs = append(s.regs, r)
	return r, nil
}

func (s *fakeRegistrations) List(_ context.Context, _, _ int) ([]oidc.Registration, error) {
	return s.regs, nil
}

/* ---------------- OIDC login initiation ---------------- */

func TestOIDCLoginHandler(t *testing.T) {
	regs := &fakeRegistrations{regs: []oidc.Registration{{
		ID:           1,
		Issuer:       "https://platform.example.com",
		ClientID:     "client-1",
		AuthLoginURL: "https://platform.example.com/auth",
	}}}
	handler := lti.OIDCLoginHandler(oidc.NewHandshake(regs))

	validForm := url.Values{
		"iss":              {"https://platform.example.com"},
		"client_id":        {"client-1"},
		"target_link_uri":  {"https://tool.example.com/lti/launch"},
		"login_hint":       {"hint"},
		"lti_message_hint": {"mhint"},
	}

	t.Run("redirects to the platform auth endpoint", func(t *testing.T) {
		r := httptest.NewRequest("POST", "/lti/login", strings.NewReader(validForm.Encode()))
		r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)

		require.Equal(t, 302, w.Code)
		loc, err := url.Parse(w.Header().Get("Location"))
		require.NoError(t, err)
		require.Equal(t, "platform.example.com", loc.Host)
		require.Equal(t, "openid", loc.Query().Get("scope"))
		require.Equal(t, "client-1", loc.Query().Get("client_id"))
		require.NotEmpty(t, loc.Query().Get("state"))
		require.NotEmpty(t, loc.Query().Get("nonce"))
	})

	t.Run("accepts params via query on GET", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/lti/login?"+validForm.Encode(), nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		require.Equal(t, 302, w.Code)
	})

	t.Run("unknown registration is forbidden", func(t *testing.T) {
		form := url.Values{}
		for k, v := range validForm {
			form[k] = v
		}
		form.Set("iss", "https://rogue.example.com")
		r := httptest.NewRequest("POST", "/lti/login", strings.NewReader(form.Encode()))
		r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		require.Equal(t, 403, w.Code)
	})

	t.Run("missing required parameter is rejected", func(t *testing.T) {
		form := url.Values{}
		for k, v := range validForm {
			form[k] = v
		}
		form.Del("login_hint")
		r := httptest.NewRequest("POST", "/lti/login", strings.NewReader(form.Encode()))
		r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		require.Equal(t, 422, w.Code)
	})
}

/* ---------------- Launch ---------------- */

func TestLaunchHandler(t *testing.T) {
	codec := session.NewCodec([]byte("launch-test-secret"))

	newFixture := func(stored tenant.Identity) (*fakeTenants, *tenant.Registry) {
		tenants := &fakeTenants{byID: map[string]tenant.Identity{stored.ID: stored}}
		return tenants, tenant.NewRegistry(tenants, nil)
	}

	baseTenant := tenant.Identity{
		ID:          "tenant-1",
		ConsumerKey: "ltibridge-abc",
		LMSURL:      "https://lms.example.com",
	}

	launchForm := url.Values{
		"oauth_consumer_key":          {"ltibridge-abc"},
		"user_id":                     {"user-1"},
		"roles":                       {"Instructor"},
		"tool_consumer_instance_guid": {"guid-1"},
		"lis_person_name_full":        {"Ada Lovelace"},
	}

	post := func(handlerForm url.Values, registry *tenant.Registry) *httptest.ResponseRecorder {
		handler := lti.LaunchHandler(registry, &fakeRegistrations{}, codec)
		r := httptest.NewRequest("POST", "/lti/launch", strings.NewReader(handlerForm.Encode()))
		r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		return w
	}

	t.Run("mints a decodable bearer token", func(t *testing.T) {
		_, registry := newFixture(baseTenant)
		w := post(launchForm, registry)
		require.Equal(t, 200, w.Code)

		var resp map[string]string
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.Equal(t, "LTI-1p0", resp["lti_version"])

		p, err := codec.Decode(resp["authorization"])
		require.NoError(t, err)
		require.Equal(t, "user-1", p.UserID)
		require.Equal(t, "tenant-1", p.TenantID)
		require.Equal(t, "Ada Lovelace", p.DisplayName)
		require.True(t, p.IsInstructor())
	})

	t.Run("first launch records the platform GUID", func(t *testing.T) {
		tenants, registry := newFixture(baseTenant)
		w := post(launchForm, registry)
		require.Equal(t, 200, w.Code)
		require.Equal(t, "guid-1", tenants.byID["tenant-1"].ToolConsumerInstanceGUID)
	})

	t.Run("conflicting GUID is reported but does not abort", func(t *testing.T) {
		stored := baseTenant
		stored.ToolConsumerInstanceGUID = "guid-original"
		tenants, registry := newFixture(stored)

		w := post(launchForm, registry) // sends guid-1
		require.Equal(t, 200, w.Code)
		// The stored GUID stays; reconciliation is an explicit admin action.
		require.Equal(t, "guid-original", tenants.byID["tenant-1"].ToolConsumerInstanceGUID)
	})

	t.Run("unknown consumer key is forbidden", func(t *testing.T) {
		_, registry := newFixture(baseTenant)
		form := url.Values{}
		for k, v := range launchForm {
			form[k] = v
		}
		form.Set("oauth_consumer_key", "ltibridge-nope")
		w := post(form, registry)
		require.Equal(t, 403, w.Code)
	})

	t.Run("missing launch field names the field", func(t *testing.T) {
		_, registry := newFixture(baseTenant)
		form := url.Values{}
		for k, v := range launchForm {
			form[k] = v
		}
		form.Del("user_id")
		w := post(form, registry)
		require.Equal(t, 422, w.Code)
		require.Contains(t, w.Body.String(), "user_id")
	})

	t.Run("1.3 launch resolves via registration and deployment", func(t *testing.T) {
		modern := tenant.Identity{
			ID:             "tenant-2",
			RegistrationID: 1,
			DeploymentID:   "dep-1",
			LMSURL:         "https://lms.example.com",
		}
		tenants := &fakeTenants{byID: map[string]tenant.Identity{modern.ID: modern}}
		registry := tenant.NewRegistry(tenants, nil)
		regs := &fakeRegistrations{regs: []oidc.Registration{{
			ID: 1, Issuer: "https://platform.example.com", ClientID: "client-1",
		}}}

		form := url.Values{
			"iss":                         {"https://platform.example.com"},
			"deployment_id":               {"dep-1"},
			"user_id":                     {"user-2"},
			"roles":                       {"Learner"},
			"tool_consumer_instance_guid": {"guid-2"},
		}
		handler := lti.LaunchHandler(registry, regs, codec)
		r := httptest.NewRequest("POST", "/lti/launch", strings.NewReader(form.Encode()))
		r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)

		require.Equal(t, 200, w.Code)
		var resp map[string]string
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.Equal(t, "1.3.0", resp["lti_version"])

		p, err := codec.Decode(resp["authorization"])
		require.NoError(t, err)
		require.Equal(t, "tenant-2", p.TenantID)
		require.True(t, p.IsLearner())
	})

	t.Run("first 1.3 launch of an unknown deployment binds a tenant", func(t *testing.T) {
		tenants := &fakeTenants{byID: map[string]tenant.Identity{}}
		registry := tenant.NewRegistry(tenants, nil)
		regs := &fakeRegistrations{regs: []oidc.Registration{{
			ID: 1, Issuer: "https://platform.example.com", ClientID: "client-1",
		}}}

		form := url.Values{
			"iss":                         {"https://platform.example.com"},
			"deployment_id":               {"dep-new"},
			"user_id":                     {"user-3"},
			"roles":                       {"Learner"},
			"tool_consumer_instance_guid": {"guid-3"},
		}
		handler := lti.LaunchHandler(registry, regs, codec)
		r := httptest.NewRequest("POST", "/lti/launch", strings.NewReader(form.Encode()))
		r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)

		require.Equal(t, 200, w.Code)
		var resp map[string]string
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.Equal(t, "1.3.0", resp["lti_version"])

		// The launch itself created the install record.
		require.Len(t, tenants.byID, 1)
		bound, err := registry.GetByDeployment(context.Background(), 1, "dep-new")
		require.NoError(t, err)
		require.Equal(t, int64(1), bound.RegistrationID)
		require.Equal(t, "dep-new", bound.DeploymentID)
		require.Equal(t, "https://platform.example.com", bound.LMSURL)
		require.Equal(t, "guid-3", tenants.byID[bound.ID].ToolConsumerInstanceGUID)
	})

	t.Run("unknown issuer stays forbidden", func(t *testing.T) {
		tenants := &fakeTenants{byID: map[string]tenant.Identity{}}
		registry := tenant.NewRegistry(tenants, nil)

		form := url.Values{
			"iss":           {"https://rogue.example.com"},
			"deployment_id": {"dep-new"},
			"user_id":       {"user-3"},
			"roles":         {"Learner"},
		}
		handler := lti.LaunchHandler(registry, &fakeRegistrations{}, codec)
		r := httptest.NewRequest("POST", "/lti/launch", strings.NewReader(form.Encode()))
		r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)

		require.Equal(t, 403, w.Code)
		require.Empty(t, tenants.byID)
	})
}

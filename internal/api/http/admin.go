// Package api exposes the administrative HTTP surface: provisioning
// tenants and managing trusted LTI registrations. It is deliberately
// thin and delegates everything to the tenant registry and the
// registration store.
package api

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/edubridge/ltibridge/internal/oidc"
	"github.com/edubridge/ltibridge/internal/tenant"
)

// MountAdmin registers the admin endpoints on r. Callers wrap the
// router with RequireAdmin.
func MountAdmin(r chi.Router, registry *tenant.Registry, registrations oidc.RegistrationStore) {
	r.Post("/tenants", provisionTenant(registry))
	r.Get("/tenants", listTenants(registry))
	r.Get("/tenants/{tenantID}", getTenant(registry))

	r.Post("/registrations", createRegistration(registrations))
	r.Get("/registrations", listRegistrations(registrations))
}

// RequireAdmin guards a route group with HTTP basic auth against a
// bcrypt password hash from configuration.
func RequireAdmin(user, passHash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, p, ok := r.BasicAuth()
			if !ok || passHash == "" ||
				subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 ||
				bcrypt.CompareHashAndPassword([]byte(passHash), []byte(p)) != nil {
				w.Header().Set("WWW-Authenticate", `Basic realm="ltibridge admin"`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type provisionTenantReq struct {
	LMSURL          string `json:"lms_url"`
	RequesterEmail  string `json:"requester_email"`
	DeveloperKey    string `json:"developer_key,omitempty"`
	DeveloperSecret string `json:"developer_secret,omitempty"`
}

// tenantView is the wire shape of a tenant. Secrets stay out except the
// shared secret on the provisioning response, which the admin must copy
// into the LMS once.
type tenantView struct {
	ID             string `json:"id"`
	ConsumerKey    string `json:"consumer_key,omitempty"`
	SharedSecret   string `json:"shared_secret,omitempty"`
	LMSURL         string `json:"lms_url"`
	RequesterEmail string `json:"requester_email,omitempty"`
	LTIVersion     string `json:"lti_version"`
	GUID           string `json:"tool_consumer_instance_guid,omitempty"`
	RegistrationID int64  `json:"registration_id,omitempty"`
	DeploymentID   string `json:"deployment_id,omitempty"`
	CreatedAt      string `json:"created_at"`
}

func viewOf(t tenant.Identity, withSecret bool) tenantView {
	v := tenantView{
		ID:             t.ID,
		ConsumerKey:    t.ConsumerKey,
		LMSURL:         t.LMSURL,
		RequesterEmail: t.RequesterEmail,
		LTIVersion:     t.LTIVersion(),
		GUID:           t.ToolConsumerInstanceGUID,
		RegistrationID: t.RegistrationID,
		DeploymentID:   t.DeploymentID,
		CreatedAt:      t.CreatedAt.Format(time.RFC3339),
	}
	if withSecret {
		v.SharedSecret = t.SharedSecret
	}
	return v
}

func provisionTenant(registry *tenant.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req provisionTenantReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeErr(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
			return
		}
		if strings.TrimSpace(req.LMSURL) == "" {
			writeErr(w, http.StatusBadRequest, "lms_url is required")
			return
		}

		t, err := registry.Provision(r.Context(), tenant.ProvisionParams{
			LMSURL:          strings.TrimSpace(req.LMSURL),
			RequesterEmail:  strings.TrimSpace(req.RequesterEmail),
			DeveloperKey:    strings.TrimSpace(req.DeveloperKey),
			DeveloperSecret: req.DeveloperSecret,
		})
		if err != nil {
			writeErr(w, http.StatusInternalServerError, "provisioning failed")
			return
		}
		writeJSON(w, http.StatusCreated, viewOf(t, true))
	}
}

func listTenants(registry *tenant.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		offset, limit := pagination(r)
		ts, err := registry.List(r.Context(), offset, limit)
		if err != nil {
			writeErr(w, http.StatusInternalServerError, err.Error())
			return
		}
		views := make([]tenantView, 0, len(ts))
		for _, t := range ts {
			views = append(views, viewOf(t, false))
		}
		writeJSON(w, http.StatusOK, views)
	}
}

func getTenant(registry *tenant.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, err := registry.Get(r.Context(), chi.URLParam(r, "tenantID"))
		if err != nil {
			if errors.Is(err, tenant.ErrNotFound) {
				writeErr(w, http.StatusNotFound, "tenant not found")
				return
			}
			writeErr(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, viewOf(t, false))
	}
}

type createRegistrationReq struct {
	Issuer       string `json:"issuer"`
	ClientID     string `json:"client_id"`
	AuthLoginURL string `json:"auth_login_url"`
	KeySetURL    string `json:"key_set_url,omitempty"`
	TokenURL     string `json:"token_url,omitempty"`
}

func createRegistration(registrations oidc.RegistrationStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createRegistrationReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeErr(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
			return
		}
		for name, v := range map[string]string{
			"issuer":         req.Issuer,
			"client_id":      req.ClientID,
			"auth_login_url": req.AuthLoginURL,
		} {
			if strings.TrimSpace(v) == "" {
				writeErr(w, http.StatusBadRequest, name+" is required")
				return
			}
		}

		reg, err := registrations.Create(r.Context(), oidc.Registration{
			Issuer:       strings.TrimSpace(req.Issuer),
			ClientID:     strings.TrimSpace(req.ClientID),
			AuthLoginURL: strings.TrimSpace(req.AuthLoginURL),
			KeySetURL:    strings.TrimSpace(req.KeySetURL),
			TokenURL:     strings.TrimSpace(req.TokenURL),
		})
		if err != nil {
			writeErr(w, http.StatusInternalServerError, "registration create failed")
			return
		}
		writeJSON(w, http.StatusCreated, reg)
	}
}

func listRegistrations(registrations oidc.RegistrationStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		offset, limit := pagination(r)
		regs, err := registrations.List(r.Context(), offset, limit)
		if err != nil {
			writeErr(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, regs)
	}
}

func pagination(r *http.Request) (offset, limit int) {
	offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	if offset < 0 {
		offset = 0
	}
	return offset, limit
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

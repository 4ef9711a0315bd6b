package lti

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/edubridge/ltibridge/internal/oidc"
	"github.com/edubridge/ltibridge/internal/principal"
	"github.com/edubridge/ltibridge/internal/session"
	"github.com/edubridge/ltibridge/internal/tenant"
)

// LaunchHandler turns validated launch parameters into a bearer session
// token. Signature validation of the launch itself (OAuth1 for 1.1,
// id_token verification for 1.3) happens upstream; this handler resolves
// the tenant, runs the platform GUID check, refreshes the instance
// fingerprint and mints the token.
func LaunchHandler(registry *tenant.Registry, registrations oidc.RegistrationStore, codec *session.Codec) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}

		ten, err := resolveTenant(r, registry, registrations)
		if err != nil {
			if errors.Is(err, tenant.ErrNotFound) {
				http.Error(w, "unknown tenant", http.StatusForbidden)
				return
			}
			var notFound *oidc.RegistrationNotFoundError
			if errors.As(err, &notFound) {
				http.Error(w, "registration not found", http.StatusForbidden)
				return
			}
			log.Err(err).Msg("tenant resolution failed")
			http.Error(w, "tenant resolution failed", http.StatusInternalServerError)
			return
		}

		// The GUID check reports; it does not abort the launch. Whether a
		// conflict should be fatal is the integrating application's call.
		launchGUID := r.PostFormValue(principal.ParamGUID)
		guid := launchGUID
		if err := ten.CheckGUIDAligns(launchGUID); err != nil {
			guid = ten.ToolConsumerInstanceGUID // keep the stored one
			var conflict *tenant.GUIDConflictError
			if errors.As(err, &conflict) {
				log.Warn().
					Str("tenant_id", ten.ID).
					Str("existing_guid", conflict.Existing).
					Str("new_guid", conflict.New).
					Msg("tool_consumer_instance_guid conflict")
			} else {
				log.Err(err).Str("tenant_id", ten.ID).Msg("guid check failed")
			}
		}
		if guid != "" {
			fp := tenant.InstanceFingerprint{
				GUID:                 guid,
				ProductFamilyCode:    r.PostFormValue("tool_consumer_info_product_family_code"),
				ProductVersion:       r.PostFormValue("tool_consumer_info_version"),
				InstanceName:         r.PostFormValue("tool_consumer_instance_name"),
				InstanceDescription:  r.PostFormValue("tool_consumer_instance_description"),
				InstanceURL:          r.PostFormValue("tool_consumer_instance_url"),
				InstanceContactEmail: r.PostFormValue("tool_consumer_instance_contact_email"),
			}
			if err := registry.UpdateFingerprint(r.Context(), ten.ID, fp); err != nil {
				log.Err(err).Str("tenant_id", ten.ID).Msg("fingerprint update failed")
			}
		}

		p, err := principal.FromLaunchParams(ten.ID, firstValues(r.PostForm))
		if err != nil {
			var verr *principal.ValidationError
			if errors.As(err, &verr) {
				http.Error(w, verr.Error(), http.StatusUnprocessableEntity)
				return
			}
			http.Error(w, "invalid launch", http.StatusUnprocessableEntity)
			return
		}

		auth, err := codec.Encode(p)
		if err != nil {
			log.Err(err).Msg("token issue failed")
			http.Error(w, "token issue failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"authorization": auth,
			"lti_version":   ten.LTIVersion(),
		})
	}
}

// resolveTenant finds the install behind a launch: legacy launches carry
// oauth_consumer_key; 1.3 launches identify themselves by issuer (plus
// optional client id) and deployment id. An unknown deployment under a
// trusted registration is bound as a fresh tenant.
func resolveTenant(r *http.Request, registry *tenant.Registry, registrations oidc.RegistrationStore) (tenant.Identity, error) {
	if consumerKey := r.PostFormValue("oauth_consumer_key"); consumerKey != "" {
		return registry.GetByConsumerKey(r.Context(), consumerKey)
	}

	issuer := r.PostFormValue("iss")
	deploymentID := r.PostFormValue("deployment_id")
	if issuer == "" || deploymentID == "" {
		return tenant.Identity{}, tenant.ErrNotFound
	}
	reg, err := registrations.Get(r.Context(), issuer, r.PostFormValue("client_id"))
	if err != nil {
		return tenant.Identity{}, err
	}
	ten, err := registry.GetByDeployment(r.Context(), reg.ID, deploymentID)
	if errors.Is(err, tenant.ErrNotFound) {
		// First launch of a new deployment under a trusted registration
		// creates the tenant on the spot. The issuer doubles as the LMS
		// URL until an admin fills in the rest.
		ten, err = registry.BindDeployment(r.Context(), reg.ID, deploymentID, issuer, "")
		if err == nil {
			log.Info().
				Str("tenant_id", ten.ID).
				Int64("registration_id", reg.ID).
				Str("deployment_id", deploymentID).
				Msg("bound new deployment")
		}
	}
	return ten, err
}

func firstValues(form map[string][]string) map[string]string {
	out := make(map[string]string, len(form))
	for k, vs := range form {
		if len(vs) > 0 {
			out[k] = vs[0]
		}
	}
	return out
}
